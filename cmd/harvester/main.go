package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/aluiziolira/go-wishlist-harvester/config"
	"github.com/aluiziolira/go-wishlist-harvester/models"
	"github.com/aluiziolira/go-wishlist-harvester/pipeline"
	"github.com/aluiziolira/go-wishlist-harvester/scraper"
	"github.com/aluiziolira/go-wishlist-harvester/store"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		cfgFile string
		email   string
	)

	defaults := config.DefaultConfig()
	cmd := &cobra.Command{
		Use:   "harvester",
		Short: "Harvest the wishlist of a storefront account",
		Long: `harvester signs in to the storefront, reads the account profile and
wishlist, and collects prices, ratings, store availability and reviews for
every wishlisted product. Results are saved to the configured store and can
be exported as CSV or JSONL.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile, cmd.Flags())
			if err != nil {
				return err
			}
			logger, level := newLogger(cfg.Verbose)
			slog.SetDefault(logger)
			slog.SetLogLoggerLevel(level.Level())

			if err := cfg.Validate(); err != nil {
				slog.Error("invalid configuration", slog.Any("error", err))
				return err
			}

			creds, err := readCredentials(email, os.Stdin, os.Stderr)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg, creds)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&cfgFile, "config", "c", "", "config file path (default ./harvester.yaml)")
	flags.StringVar(&email, "email", "", "account email (or HARVEST_EMAIL)")
	flags.String("base-url", defaults.BaseURL, "storefront origin")
	flags.Duration("timeout", defaults.Timeout, "per-request timeout")
	flags.Duration("review-page-delay", defaults.ReviewPageDelay, "pause between review pages")
	flags.Int("max-review-pages", defaults.MaxReviewPages, "review pages fetched per product at most")
	flags.String("store", defaults.StoreType, "result store: postgres, mongo, or none")
	flags.String("postgres-dsn", defaults.PostgresDSN, "PostgreSQL connection string")
	flags.String("mongo-uri", defaults.MongoURI, "MongoDB connection URI")
	flags.String("mongo-database", defaults.MongoDatabase, "MongoDB database name")
	flags.StringP("export-file", "o", defaults.ExportFile, "also export products to this file")
	flags.String("export-format", defaults.ExportFormat, "export format: csv, json, or dual")
	flags.String("metrics-addr", defaults.MetricsAddr, "Prometheus metrics listen address (e.g. :9090)")
	flags.BoolP("verbose", "v", defaults.Verbose, "enable debug logging")

	return cmd
}

type credentials struct {
	email    string
	password string
}

// readCredentials takes the email from the flag, HARVEST_EMAIL or a prompt
// and the password from HARVEST_PASSWORD or a prompt. The prompt does not
// echo when in is a terminal.
func readCredentials(email string, in *os.File, prompt io.Writer) (credentials, error) {
	reader := bufio.NewReader(in)

	if email == "" {
		email = os.Getenv(config.EnvPrefix + "_EMAIL")
	}
	if email == "" {
		fmt.Fprint(prompt, "Email: ")
		line, err := reader.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return credentials{}, fmt.Errorf("read email: %w", err)
		}
		email = strings.TrimSpace(line)
	}
	if email == "" {
		return credentials{}, errors.New("email is required")
	}

	password := os.Getenv(config.EnvPrefix + "_PASSWORD")
	if password == "" {
		fmt.Fprint(prompt, "Password: ")
		if fd := int(in.Fd()); term.IsTerminal(fd) {
			raw, err := term.ReadPassword(fd)
			fmt.Fprintln(prompt)
			if err != nil {
				return credentials{}, fmt.Errorf("read password: %w", err)
			}
			password = string(raw)
		} else {
			line, err := reader.ReadString('\n')
			if err != nil && !errors.Is(err, io.EOF) {
				return credentials{}, fmt.Errorf("read password: %w", err)
			}
			password = strings.TrimRight(line, "\r\n")
		}
	}
	if password == "" {
		return credentials{}, errors.New("password is required")
	}
	return credentials{email: email, password: password}, nil
}

func run(parent context.Context, cfg *config.Config, creds credentials) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	h, err := scraper.NewHarvester(cfg)
	if err != nil {
		slog.Error("initialising harvester", slog.Any("error", err))
		return err
	}

	if cfg.MetricsAddr != "" {
		metricsServer := &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: promhttp.HandlerFor(h.Metrics.Registry, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				slog.Error("metrics server shutdown failed", slog.Any("error", err))
			}
		}()
	}

	// Connect before crawling so a bad DSN fails fast.
	st, err := store.Open(ctx, cfg)
	if err != nil {
		slog.Error("opening store", slog.String("store", cfg.StoreType), slog.Any("error", err))
		return err
	}
	if st != nil {
		defer st.Close()
	}

	slog.Info("starting harvest",
		slog.String("base_url", cfg.BaseURL),
		slog.String("store", cfg.StoreType),
	)
	result, err := h.Run(ctx, creds.email, creds.password)
	if err != nil {
		slog.Error("harvest failed", slog.Any("error", err))
		return err
	}

	var saveErr error
	if st != nil {
		userID, err := store.Save(ctx, st, result)
		if err != nil {
			slog.Error("saving harvest", slog.Any("error", err))
			saveErr = err
		} else {
			slog.Info("harvest saved", slog.String("user_id", userID))
		}
	}

	var exportMetrics map[string]interface{}
	if cfg.ExportFile != "" {
		exportMetrics, err = export(cfg, result.Products)
		if err != nil {
			slog.Error("export failed", slog.Any("error", err))
			return errors.Join(saveErr, err)
		}
	}

	printSummary(result, cfg, exportMetrics)
	return saveErr
}

func export(cfg *config.Config, products []*models.Product) (map[string]interface{}, error) {
	writer, err := pipeline.NewWriter(cfg.ExportFormat, cfg.ExportFile)
	if err != nil {
		return nil, err
	}
	p, err := pipeline.NewPipeline(writer, cfg.DedupeMaxSize)
	if err != nil {
		writer.Close()
		return nil, err
	}
	if err := p.Process(products...); err != nil {
		p.Close()
		return nil, err
	}
	if err := p.Close(); err != nil {
		return nil, err
	}
	if len(products) > 0 {
		if err := writer.Validate(); err != nil {
			return nil, fmt.Errorf("output validation: %w", err)
		}
	}
	return p.GetMetrics(), nil
}

func printSummary(result *models.HarvestResult, cfg *config.Config, exportMetrics map[string]interface{}) {
	separator := "--------------------------------------------------"
	fmt.Println("\n" + separator)
	fmt.Println("Harvest complete")

	reviews := 0
	for _, p := range result.Products {
		reviews += len(p.Reviews)
	}

	fmt.Printf("  Account:       %s\n", result.User.Email)
	fmt.Printf("  Products:      %d\n", len(result.Products))
	fmt.Printf("  Reviews:       %d\n", reviews)
	successRate := 0.0
	if result.RequestCount > 0 {
		successRate = float64(result.RequestCount-result.ErrorCount) / float64(result.RequestCount) * 100
	}
	fmt.Printf("  Requests:      %d\n", result.RequestCount)
	fmt.Printf("  Success rate:  %.2f%%\n", successRate)
	fmt.Printf("  Failed URLs:   %d\n", len(result.FailedURLs))
	if len(result.ErrorsByType) > 0 {
		fmt.Printf("  Error types:   %v\n", result.ErrorsByType)
	}
	if valErrors, ok := exportMetrics["validation_errors"].(map[string]int); ok && len(valErrors) > 0 {
		fmt.Printf("  Validation:    %v\n", valErrors)
	}
	fmt.Printf("  Duration:      %v\n", result.EndTime.Sub(result.StartTime).Round(time.Millisecond))
	if cfg.ExportFile != "" {
		fmt.Printf("  Output file:   %s (%s)\n", cfg.ExportFile, cfg.ExportFormat)
	}
	fmt.Println(separator)
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if term.IsTerminal(int(os.Stderr.Fd())) {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	return slog.New(handler), level
}
