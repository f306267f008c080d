package cli

import (
	"docbulk/internal/model"

	"github.com/spf13/cobra"
)

var (
	exportFlags      jobFlags
	exportFrom       string
	exportS3Prefix   string
	exportCategories []string
)

var exportCmd = &cobra.Command{
	Use:   "export [uri...]",
	Short: "Read documents by URI and upload them to S3 or print them",
	Long: `Read documents in batches. With --s3-prefix each document is uploaded to
the configured bucket, keyed by its URI. Otherwise documents are written to
stdout as JSON lines and the report goes to stderr.

Examples:
  docbulk export /a.json /b.xml
  docbulk export --from uris.txt --s3-prefix exports/2026-10/
  cat uris.txt | docbulk export --from - --categories content,metadata`,
	RunE: runExport,
}

func init() {
	exportFlags.register(exportCmd)
	exportCmd.Flags().StringVarP(&exportFrom, "from", "f", "", "file with one URI per line (- for stdin)")
	exportCmd.Flags().StringVar(&exportS3Prefix, "s3-prefix", "", "upload to this prefix of the configured bucket")
	exportCmd.Flags().StringSliceVar(&exportCategories, "categories", nil, "categories to read (default content)")
}

func runExport(cmd *cobra.Command, args []string) error {
	uris, err := readURIs(args, exportFrom, cmd.InOrStdin())
	if err != nil {
		return err
	}

	req := model.JobRequest{
		Kind:       model.RequestExport,
		URIs:       uris,
		S3Prefix:   exportS3Prefix,
		Categories: exportCategories,
	}
	exportFlags.apply(&req)

	if exportS3Prefix != "" {
		return runRequest(cmd, &exportFlags, req, nil)
	}
	return runRequest(cmd, &exportFlags, req, cmd.OutOrStdout())
}
