package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/medicompare/backend/config"
	httpDelivery "github.com/medicompare/backend/internal/delivery/http"
	"github.com/medicompare/backend/internal/domain"
	"github.com/medicompare/backend/internal/usecase"
)

const version = "1.0.0"

func main() {
	rootCmd := &cobra.Command{
		Use:     "medicompare",
		Short:   "Medical test price comparison backend",
		Version: version,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(compareCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Import a YAML catalog into the SQLite database",
		RunE: func(cmd *cobra.Command, args []string) error {
			file, _ := cmd.Flags().GetString("file")
			return runSeed(cmd.Context(), file)
		},
	}
	cmd.Flags().String("file", "data/catalog.yaml", "Path to the catalog YAML file")
	return cmd
}

func compareCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "compare <name>...",
		Short: "Match test names and print the comparison table as CSV",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompare(cmd.Context(), args)
		},
	}
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg, os.Stdout)

	logger.Info().
		Str("version", version).
		Str("environment", cfg.Server.Environment).
		Str("catalog_source", cfg.Catalog.Source).
		Msg("starting medicompare backend")

	app, err := newApp(cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to initialize")
		return err
	}
	defer app.Close()

	handler := httpDelivery.NewHandler(app.sessions, app.source, app.normalizer, app.browser, logger)
	router := httpDelivery.SetupRouter(cfg, handler, logger)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		logger.Error().Err(err).Msg("server error")
		return err
	case <-quit:
	}

	logger.Info().Msg("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

func runSeed(ctx context.Context, file string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg, os.Stderr)

	if cfg.Catalog.Source != config.SourceSQLite {
		return fmt.Errorf("seed requires catalog.source=%s, got %q", config.SourceSQLite, cfg.Catalog.Source)
	}

	store, err := openStore(cfg, usecase.NewNormalizer(usecase.NormalizerConfig{
		FoldDiacritics: cfg.Matching.FoldDiacritics,
	}), logger)
	if err != nil {
		return err
	}
	defer store.Close()

	n, err := store.SeedFromFile(ctx, file)
	if err != nil {
		return err
	}
	total, err := store.Count(ctx)
	if err != nil {
		return err
	}
	logger.Info().Str("file", file).Int("imported", n).Int("total", total).Msg("catalog seeded")
	return nil
}

// runCompare matches every argument as a typed query. Matched entries go to stdout
// as CSV; anything left pending is listed on stderr with its suggestions.
func runCompare(ctx context.Context, names []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg, os.Stderr)

	app, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	sess, err := app.sessions.Create(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = app.sessions.Delete(ctx, sess.ID()) }()

	for _, name := range names {
		res, err := sess.SubmitTypedQuery(ctx, name)
		if err != nil {
			if errors.Is(err, domain.ErrInvalidInput) {
				fmt.Fprintf(os.Stderr, "skipped blank name %q\n", name)
				continue
			}
			return err
		}
		if res.Warning != "" {
			fmt.Fprintf(os.Stderr, "warning: %s\n", res.Warning)
		}
		if res.Kind != domain.Pending || res.Pending == nil {
			continue
		}
		suggestions := make([]string, 0, len(res.Pending.Suggestions))
		for _, c := range res.Pending.Suggestions {
			suggestions = append(suggestions, c.Name)
		}
		if len(suggestions) == 0 {
			fmt.Fprintf(os.Stderr, "no match for %q\n", name)
		} else {
			fmt.Fprintf(os.Stderr, "no exact match for %q, did you mean: %s\n", name, strings.Join(suggestions, ", "))
		}
	}

	csv, err := sess.ExportTable()
	if err != nil {
		return err
	}
	fmt.Fprint(os.Stdout, csv)

	if provider, amount, ok := sess.BestProvider(domain.TierNormal); ok {
		fmt.Fprintf(os.Stderr, "cheapest (normal plan): %s %.2f\n", provider, amount)
	}
	return nil
}

// newLogger writes JSON lines to out, or human-readable output in development
func newLogger(cfg *config.Config, out io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil || cfg.Log.Level == "" {
		level = zerolog.InfoLevel
	}

	logger := zerolog.New(out).With().Timestamp().Logger()
	if cfg.Server.Environment == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: out}).With().Timestamp().Logger()
	}
	return logger.Level(level)
}
