package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/baker-beach/market-index/internal/app"
	"github.com/baker-beach/market-index/internal/config"
	"github.com/baker-beach/market-index/internal/domain"
	pkgconfig "github.com/baker-beach/market-index/pkg/config"
	"github.com/baker-beach/market-index/pkg/logger"
)

var (
	// Version is injected at build time
	Version = "dev"
	// ProgramName is injected at build time
	ProgramName = "market-index"
)

func main() {
	runMain(os.Args, os.Exit)
}

func runMain(args []string, exit func(int)) {
	if err := Execute(Version, ProgramName, args[1:]); err != nil {
		exit(1)
	}
}

// Execute is the entry point for the CLI, extracted for testing
func Execute(version, programName string, args []string) error {
	var envFile string

	rootCmd := &cobra.Command{
		Use:     programName,
		Short:   "Temporal product search indexer",
		Long:    "Builds one search document per validity interval of a product and keeps the search indexes current.",
		Version: version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return pkgconfig.LoadDotEnv(envFile)
		},
		SilenceUsage: true,
	}
	rootCmd.SetVersionTemplate(`{{.Version}}
`)
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "file with environment variables, ignored when missing")

	rootCmd.AddCommand(serveCmd(), reindexCmd(), previewCmd())
	rootCmd.SetArgs(args)

	return rootCmd.Execute()
}

func setup(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger.NewWithWriter("market-index", cfg.LogLevel, cmd.ErrOrStderr()), nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the event consumers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(cmd)
			if err != nil {
				return err
			}
			log.Info("starting market index",
				slog.String("environment", cfg.Environment),
				slog.Int("http_port", cfg.HTTPPort),
				slog.Any("indexes", cfg.Addresses),
			)

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			application, err := app.NewApp(ctx, cfg, log)
			if err != nil {
				log.Error("failed to initialize application", slog.String("error", err.Error()))
				return err
			}
			if err := application.Run(ctx); err != nil {
				log.Error("application error", slog.String("error", err.Error()))
				return err
			}
			log.Info("market index stopped")
			return nil
		},
	}
}

func reindexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reindex",
		Short: "Reindex every catalog product once and print the summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			cfg, log, err := setup(cmd)
			if err != nil {
				return err
			}
			if !cfg.CatalogEnabled {
				return errors.New("reindex reads the catalog database: set CATALOG_ENABLED=true")
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			application, err := app.NewApp(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer func() { err = errors.Join(err, application.Shutdown()) }()

			sum, err := application.Service().Reindex(ctx)
			if encErr := writeJSON(cmd.OutOrStdout(), sum); encErr != nil {
				return errors.Join(err, encErr)
			}
			return err
		},
	}
}

func previewCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Print the documents a product JSON file would be indexed with",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(cmd)
			if err != nil {
				return err
			}

			p, err := readProduct(cmd.InOrStdin(), file)
			if err != nil {
				return err
			}

			docs, err := app.Preview(cmd.Context(), cfg, log, p)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), docs)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "-", "product JSON file, - for stdin")
	return cmd
}

func readProduct(stdin io.Reader, file string) (*domain.Product, error) {
	r := stdin
	if file != "-" {
		f, err := os.Open(file)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}

	var p domain.Product
	if err := json.NewDecoder(r).Decode(&p); err != nil {
		return nil, fmt.Errorf("decode product %s: %w", file, err)
	}
	return &p, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

