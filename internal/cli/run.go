package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"docbulk/internal/cache"
	"docbulk/internal/controller"
	"docbulk/internal/model"

	"github.com/spf13/cobra"
)

// jobFlags are the flags shared by every bulk command
type jobFlags struct {
	database     string
	threads      int
	batchSize    int
	clientConfig map[string]string
}

func (f *jobFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.database, "database", "d", "", "target database instead of the store default")
	cmd.Flags().IntVarP(&f.threads, "threads", "t", 0, "worker count (default from config, then CPU count)")
	cmd.Flags().IntVarP(&f.batchSize, "batch-size", "b", 0, "items per request (default from config)")
	cmd.Flags().StringToStringVar(&f.clientConfig, "client", nil, "build the document client from key=value settings instead of the config file")
}

func (f *jobFlags) apply(req *model.JobRequest) {
	req.Database = f.database
	req.ThreadCount = f.threads
	req.BatchSize = f.batchSize
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// runRequest executes req in process and prints the result as JSON to report
func runRequest(cmd *cobra.Command, flags *jobFlags, req model.JobRequest, output io.Writer) error {
	ctx, stop := signalContext()
	defer stop()

	var opts []controller.RunnerOption
	if len(flags.clientConfig) > 0 {
		opts = append(opts, controller.WithClientConfig(flags.clientConfig))
	}
	if output != nil {
		opts = append(opts, controller.WithOutput(output))
	}

	if req.S3Prefix != "" {
		storage, err := controller.OpenStorage(ctx, cfg.S3)
		if err != nil {
			return fmt.Errorf("connect to s3: %w", err)
		}
		if storage != nil {
			opts = append(opts, controller.WithStorage(storage))
		}
	}

	var docCache cache.Cache
	if cfg.DocStore.Cache {
		c, err := controller.OpenCache(cfg.Redis)
		if err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		if c != nil {
			defer c.Close()
			docCache = c
		}
	}

	registry := controller.NewClientRegistry(cfg.DocStore, docCache)
	defer registry.Close()

	runner := controller.NewRunner(cfg.Jobs, registry, opts...)
	result, err := runner.Run(ctx, "", req)
	if err != nil {
		return err
	}

	report := cmd.OutOrStdout()
	if output != nil {
		report = cmd.ErrOrStderr()
	}
	encoder := json.NewEncoder(report)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(result); err != nil {
		return err
	}

	return exitCode(len(result.FailedURIs()))
}

// readURIs returns args plus the non-empty lines of path. "-" reads stdin.
func readURIs(args []string, path string, stdin io.Reader) ([]string, error) {
	uris := append([]string{}, args...)
	if path == "" {
		return uris, nil
	}

	var r io.Reader = stdin
	if path != "-" {
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open uri list: %w", err)
		}
		defer file.Close()
		r = file
	}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			uris = append(uris, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read uri list: %w", err)
	}
	return uris, nil
}
