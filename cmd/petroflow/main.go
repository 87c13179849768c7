package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/seantiz/petroflow/internal/api"
	"github.com/seantiz/petroflow/internal/cache"
	"github.com/seantiz/petroflow/internal/config"
	"github.com/seantiz/petroflow/internal/engine"
	"github.com/seantiz/petroflow/internal/events"
	"github.com/seantiz/petroflow/internal/fault"
	"github.com/seantiz/petroflow/internal/report"
	"github.com/seantiz/petroflow/internal/store"
	"github.com/seantiz/petroflow/internal/targets"
	"github.com/seantiz/petroflow/internal/telemetry"
)

var version = "dev"

const sweepInterval = 5 * time.Minute

var (
	configFile   string
	otelInsecure bool
	analyzeDB    string
)

func main() {
	root := &cobra.Command{
		Use:           "petroflow",
		Short:         "Petrophysical calculation and reservoir target engine",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configFile, "config", os.Getenv("PETROFLOW_CONFIG_FILE"), "YAML config file")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	serve.Flags().BoolVar(&otelInsecure, "otel-insecure", false, "export traces over plain HTTP")

	analyze := &cobra.Command{
		Use:   "analyze <request.json>",
		Short: "Run one workflow request and print its result",
		Args:  cobra.ExactArgs(1),
		RunE:  runAnalyze,
	}
	analyze.Flags().StringVar(&analyzeDB, "db", ":memory:", "SQLite database for workflow state")

	root.AddCommand(serve, analyze)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "petroflow:", err)
		os.Exit(1)
	}
}

// app holds the wired components shared by both commands.
type app struct {
	cfg    config.Config
	logger *slog.Logger
	store  *store.SQLiteStore
	cache  *cache.Cache
	engine *engine.Engine
}

func newApp(dbPath string) (*app, error) {
	cfg, err := config.LoadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if dbPath == "" {
		dbPath = cfg.DBPath
	}
	logger := config.NewLogger(os.Stderr, cfg.LogLevel)

	db, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	broker := events.NewBroker()
	fopts := fault.DefaultOptions()
	fopts.AutoRecovery = cfg.AutoRecovery
	fopts.MaxRetryAttempts = cfg.MaxRetries
	fopts.OnRecord = engine.RecordSink(db, logger)

	c := cache.New()
	eng := engine.New(engine.Deps{
		Cache:     c,
		Faults:    fault.NewHandler(fopts, broker, logger),
		Broker:    broker,
		Store:     db,
		Validator: report.StructuralValidator{},
		Reports:   report.NewTemplateEngine(),
		Exporter:  report.NewDefaultRegistry(report.NewMemoryExporter(), cfg.ExportDir),
		Targets:   targets.NewService(cfg.Perforation, logger),
		Logger:    logger,
	}, engine.Options{
		MaxConcurrent: cfg.MaxConcurrent,
		CacheTTL:      cfg.CacheTTL,
		Parameters:    cfg.Parameters,
		Cutoffs:       cfg.Cutoffs,
	})

	return &app{cfg: cfg, logger: logger, store: db, cache: c, engine: eng}, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := newApp("")
	if err != nil {
		return err
	}
	defer a.store.Close()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	shutdown, err := telemetry.Init(ctx, a.cfg.OTelEndpoint, version, otelInsecure)
	if err != nil {
		return err
	}
	defer func() {
		sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer scancel()
		if err := shutdown(sctx); err != nil {
			a.logger.Error("telemetry shutdown", "error", err)
		}
	}()

	go sweep(ctx, a.cache, a.logger)

	a.logger.Info("petroflow: starting",
		"listen_addr", a.cfg.ListenAddr,
		"db_path", a.cfg.DBPath,
		"max_concurrent", a.cfg.MaxConcurrent,
	)

	srv := api.NewServer(a.cfg.ListenAddr, a.store, a.engine, a.logger)
	err = srv.Run()

	for _, id := range a.engine.Active() {
		_ = a.engine.Cancel(id)
	}
	a.engine.Wait()
	return err
}

// sweep drops expired cache entries until ctx is done.
func sweep(ctx context.Context, c *cache.Cache, logger *slog.Logger) {
	t := time.NewTicker(sweepInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := c.Sweep(); n > 0 {
				logger.Debug("cache sweep", "removed", n)
			}
		}
	}
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	b, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read request: %w", err)
	}
	var req engine.Request
	if err := json.Unmarshal(b, &req); err != nil {
		return fmt.Errorf("parse request %s: %w", args[0], err)
	}

	a, err := newApp(analyzeDB)
	if err != nil {
		return err
	}
	defer a.store.Close()

	res, err := a.engine.Run(cmd.Context(), req)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}
