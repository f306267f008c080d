// Package cli provides the command-line interface for docbulk.
package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"docbulk/internal/config"

	"github.com/spf13/cobra"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	configPath string
	logLevel   string

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "docbulk",
	Short: "Bulk load, export and delete documents in a document store",
	Long: `docbulk moves large numbers of documents in and out of a document store
through its REST API, batching requests across a pool of workers.

Every run prints a report of the items that succeeded and failed.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		loaded, err := loadConfig(configPath, cmd.Flags().Changed("config"))
		if err != nil {
			return err
		}
		if logLevel != "" {
			loaded.Logging.Level = logLevel
		}
		cfg = loaded

		config.SetupLoggerWithWriter(cfg.Logging, os.Stderr)
		return nil
	},
}

// loadConfig reads path. A missing file falls back to defaults unless the
// path was given explicitly.
func loadConfig(path string, explicit bool) (*config.Config, error) {
	loaded, err := config.LoadConfig(path)
	if err == nil {
		return loaded, nil
	}
	if explicit || !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	loaded = config.Default()
	if err := loaded.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := loaded.Validate(); err != nil {
		return nil, err
	}
	return loaded, nil
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config/config.json", "path to the JSON config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the configured log level")

	rootCmd.AddCommand(loadCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(serveCmd)
}

func exitCode(failed int) error {
	if failed > 0 {
		return fmt.Errorf("%d items failed", failed)
	}
	return nil
}
