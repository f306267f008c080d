package cli

import (
	"docbulk/internal/server"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the job API and queue consumer",
	Long: `Serve the HTTP job API and consume queued jobs until interrupted.
Requires MongoDB and RabbitMQ. Redis and S3 are used when configured.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()
		return server.Run(ctx, cfg)
	},
}
