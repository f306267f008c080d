package cli

import (
	"docbulk/internal/model"

	"github.com/spf13/cobra"
)

var (
	loadFlags     jobFlags
	loadURIPrefix string
	loadMetadata  bool
	loadRaw       bool
	loadS3Prefix  string
)

var loadCmd = &cobra.Command{
	Use:   "load [directory]",
	Short: "Write every file below a directory or S3 prefix as a document",
	Long: `Walk a directory (or list an S3 prefix) and write each file as a document.
The document URI is the URI prefix followed by the path relative to the root.

Examples:
  docbulk load ./data --uri-prefix /import
  docbulk load ./data --metadata --batch-size 200 --threads 8
  docbulk load --s3-prefix incoming/ --uri-prefix /incoming`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLoad,
}

func init() {
	loadFlags.register(loadCmd)
	loadCmd.Flags().StringVarP(&loadURIPrefix, "uri-prefix", "p", "", "prefix for generated document URIs")
	loadCmd.Flags().BoolVarP(&loadMetadata, "metadata", "m", false, "merge <file>.metadata.json sidecars")
	loadCmd.Flags().BoolVar(&loadRaw, "raw", false, "skip type detection and send content untouched")
	loadCmd.Flags().StringVar(&loadS3Prefix, "s3-prefix", "", "load objects below this prefix of the configured bucket")
}

func runLoad(cmd *cobra.Command, args []string) error {
	req := model.JobRequest{
		Kind:         model.RequestLoad,
		URIPrefix:    loadURIPrefix,
		LoadMetadata: loadMetadata,
		Raw:          loadRaw,
		S3Prefix:     loadS3Prefix,
	}
	if len(args) == 1 {
		req.Path = args[0]
	}
	loadFlags.apply(&req)

	return runRequest(cmd, &loadFlags, req, nil)
}
