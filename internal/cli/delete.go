package cli

import (
	"docbulk/internal/model"

	"github.com/spf13/cobra"
)

var (
	deleteFlags jobFlags
	deleteFrom  string
)

var deleteCmd = &cobra.Command{
	Use:   "delete [uri...]",
	Short: "Delete documents by URI",
	Long: `Delete documents in batches.

Examples:
  docbulk delete /a.json /b.xml
  docbulk delete --from uris.txt --batch-size 500`,
	RunE: runDelete,
}

func init() {
	deleteFlags.register(deleteCmd)
	deleteCmd.Flags().StringVarP(&deleteFrom, "from", "f", "", "file with one URI per line (- for stdin)")
}

func runDelete(cmd *cobra.Command, args []string) error {
	uris, err := readURIs(args, deleteFrom, cmd.InOrStdin())
	if err != nil {
		return err
	}

	req := model.JobRequest{Kind: model.RequestDelete, URIs: uris}
	deleteFlags.apply(&req)

	return runRequest(cmd, &deleteFlags, req, nil)
}
