// Package main provides the lnaes binary entry point. The engine turns free
// text into a constraint-locked semantic graph and back into a verified,
// minimally edited draft, recording an audit card for every run.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/lnaes/engine/audit"
	"github.com/lnaes/engine/config"
	"github.com/lnaes/engine/constraint"
	"github.com/lnaes/engine/export"
	"github.com/lnaes/engine/metrics"
	"github.com/lnaes/engine/ontology"
	"github.com/lnaes/engine/operator"
	"github.com/lnaes/engine/operator/builtin"
	"github.com/lnaes/engine/pipeline"
	"github.com/lnaes/engine/provider"
	"github.com/lnaes/engine/source"
	"github.com/lnaes/engine/storage"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "lnaes"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		configPath string
		logLevel   string
		logFormat  string
	)

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Constraint-locked text pipeline",
		Long: `lnaes sequences seven typed operators over free text: entities and
relations are extracted into a graph, locked against hard constraints, and the
generated draft is verified and minimally rewritten until no hard violation
remains. Every run produces an audit card explaining why the draft looks the
way it does.`,
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file path (YAML)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format (text, json)")

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s version %s (build: %s)\n", appName, Version, BuildTime)
		},
	})
	cmd.AddCommand(runCmd(&configPath, &logLevel, &logFormat))

	return cmd
}

// runFlags carries the run subcommand's flag values.
type runFlags struct {
	soul         float64
	editor       float64
	fidelity     float64
	locks        []string
	invariants   string
	brief        string
	styleTargets []string
	ontologyPath string
	ontologyVer  string
	providerURL  string
	maxIter      int
	outDir       string
	exportFormat string
	auditReport  bool
	concurrency  int
	metricsAddr  string
	natsURL      string
}

func runCmd(configPath, logLevel, logFormat *string) *cobra.Command {
	var f runFlags

	cmd := &cobra.Command{
		Use:   "run [inputs...]",
		Short: "Run the pipeline over files, globs, or https URLs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), *configPath, *logLevel, *logFormat, f, args)
		},
	}

	cmd.Flags().Float64Var(&f.soul, "soul", 0, "Soul dial (0-1): stylistic latitude")
	cmd.Flags().Float64Var(&f.editor, "editor", 0, "Editor dial (0-1): editor target weight")
	cmd.Flags().Float64Var(&f.fidelity, "fidelity", 1, "Fidelity dial (0-1): closeness to source")
	cmd.Flags().StringSliceVar(&f.locks, "lock", nil, "Locks to activate (identity, toponym, relation, pov)")
	cmd.Flags().StringVar(&f.invariants, "invariants", "", "YAML file with invariants")
	cmd.Flags().StringVar(&f.brief, "brief", "", "Editor brief")
	cmd.Flags().StringSliceVar(&f.styleTargets, "style-target", nil, "Style targets (repeatable)")
	cmd.Flags().StringVar(&f.ontologyPath, "ontology", "", "Knowledge base YAML file")
	cmd.Flags().StringVar(&f.ontologyVer, "ontology-version", "", "Required knowledge base version")
	cmd.Flags().StringVar(&f.providerURL, "provider", "", "Generation provider URL (empty = passthrough)")
	cmd.Flags().IntVar(&f.maxIter, "max-iterations", 0, "Convergence budget (rewrites per run)")
	cmd.Flags().StringVar(&f.outDir, "out", "", "Output directory (empty = stdout)")
	cmd.Flags().StringVar(&f.exportFormat, "export-graph", "", "Export the locked graph (turtle, ntriples, dot, json)")
	cmd.Flags().BoolVar(&f.auditReport, "audit-report", false, "Print the human-readable audit card")
	cmd.Flags().IntVar(&f.concurrency, "concurrency", 4, "Concurrent runs")
	cmd.Flags().StringVar(&f.metricsAddr, "metrics-addr", "", "Prometheus listen address (empty = disabled)")
	cmd.Flags().StringVar(&f.natsURL, "nats", "", "NATS URL for audit card publishing (empty = disabled)")

	return cmd
}

func run(ctx context.Context, configPath, logLevel, logFormat string, f runFlags, inputs []string) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	applyFlags(cfg, logLevel, logFormat, f)
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := newLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	kb, err := loadKnowledgeBase(cfg, logger)
	if err != nil {
		return err
	}

	registry := builtin.NewRegistry(kb)
	if cfg.Schemas.Dir != "" {
		if err := loadSchemas(ctx, registry.Schemas, cfg, logger); err != nil {
			return err
		}
	}

	var gen provider.Generator = provider.Passthrough{}
	if cfg.Provider.URL != "" {
		gen = provider.NewHTTPGenerator(cfg.Provider.URL,
			provider.WithLogger(logger),
			provider.WithTimeout(cfg.Provider.Timeout))
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	if cfg.Metrics.Addr != "" {
		serveMetrics(ctx, cfg.Metrics.Addr, reg, logger)
	}

	publisher, store, closeNATS, err := connectNATS(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeNATS()

	opts := []pipeline.Option{
		pipeline.WithLogger(logger),
		pipeline.WithRetryConfig(cfg.Pipeline.Retry),
		pipeline.WithCallTimeout(cfg.Pipeline.CallTimeout),
		pipeline.WithMaxIterations(cfg.Pipeline.MaxIterations),
		pipeline.WithMetrics(m),
	}
	if publisher != nil {
		opts = append(opts, pipeline.WithPublisher(publisher))
	}
	orch, err := pipeline.NewOrchestrator(registry, gen, kb, opts...)
	if err != nil {
		return err
	}

	invariants, err := loadInvariants(f.invariants)
	if err != nil {
		return err
	}
	if f.exportFormat != "" {
		if _, err := export.ParseFormat(f.exportFormat); err != nil {
			return err
		}
	}

	req := pipeline.RunRequest{
		OntologyVersion: cfg.Ontology.Version,
		Dials: constraint.Dials{
			constraint.DialSoul:     f.soul,
			constraint.DialEditor:   f.editor,
			constraint.DialFidelity: f.fidelity,
		},
		Locks:        parseLocks(f.locks),
		Invariants:   invariants,
		EditorBrief:  f.brief,
		StyleTargets: f.styleTargets,
	}

	resolved, err := expandInputs(inputs)
	if err != nil {
		return err
	}
	logger.Info("Engine ready", "version", Version, "inputs", len(resolved),
		"ontology_version", kb.Version())

	return runAll(ctx, orch, req, resolved, f, store, logger)
}

// runAll executes the pipeline over every input with bounded concurrency.
// One input's failure does not stop the others; the first error is reported
// after all runs finish.
func runAll(ctx context.Context, orch *pipeline.Orchestrator, base pipeline.RunRequest, inputs []string, f runFlags, store *storage.CardStore, logger *slog.Logger) error {
	normalizer := source.NewNormalizer()
	fetcher := source.NewFetcher(30 * time.Second)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.concurrency)

	var failed atomic.Bool
	for _, input := range inputs {
		g.Go(func() error {
			if err := runOne(gctx, orch, base, normalizer, fetcher, input, f, store, logger); err != nil {
				failed.Store(true)
				logger.Error("Run failed", "input", input, "error", err)
				if errors.Is(err, context.Canceled) {
					return err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if failed.Load() {
		return fmt.Errorf("one or more runs failed")
	}
	return nil
}

func runOne(ctx context.Context, orch *pipeline.Orchestrator, base pipeline.RunRequest, normalizer *source.Normalizer, fetcher *source.Fetcher, input string, f runFlags, store *storage.CardStore, logger *slog.Logger) error {
	raw, pageURL, err := readInput(ctx, fetcher, input)
	if err != nil {
		return err
	}
	doc, err := normalizer.Normalize(raw, pageURL)
	if err != nil {
		return fmt.Errorf("normalize %s: %w", input, err)
	}
	if doc.Text == "" {
		return fmt.Errorf("no prose content in %s", input)
	}

	req := base
	req.Locks = base.Locks.Clone()
	req.Text = doc.Text

	result, runErr := orch.Run(ctx, req)
	if result != nil && result.Card != nil {
		if err := writeOutputs(input, result, f); err != nil {
			logger.Warn("Failed to write outputs", "input", input, "error", err)
		}
		if store != nil {
			if err := store.Put(context.WithoutCancel(ctx), result.Card); err != nil {
				logger.Warn("Failed to store audit card",
					"run_id", result.Card.RunID, "error", err)
			}
		}
	}
	return runErr
}

// readInput fetches https URLs and reads everything else from disk.
func readInput(ctx context.Context, fetcher *source.Fetcher, input string) ([]byte, string, error) {
	if strings.HasPrefix(input, "https://") {
		body, err := fetcher.Fetch(ctx, input)
		return body, input, err
	}
	data, err := os.ReadFile(input)
	return data, "", err
}

func writeOutputs(input string, result *pipeline.RunResult, f runFlags) error {
	cardJSON, err := result.Card.MarshalStructured()
	if err != nil {
		return err
	}

	var graphOut string
	if f.exportFormat != "" && result.Graph != nil {
		format, err := export.ParseFormat(f.exportFormat)
		if err != nil {
			return err
		}
		graphOut, err = export.NewLockedExporter(result.Graph).Export(format)
		if err != nil {
			return err
		}
	}

	if f.outDir == "" {
		if result.Draft != nil {
			fmt.Println(result.Draft.Text())
		}
		if f.auditReport {
			fmt.Println(result.Card.Render())
		} else {
			fmt.Println(string(cardJSON))
		}
		if graphOut != "" {
			fmt.Println(graphOut)
		}
		return nil
	}

	if err := os.MkdirAll(f.outDir, 0o755); err != nil {
		return err
	}
	stem := outputStem(input)
	if result.Draft != nil {
		draftPath := filepath.Join(f.outDir, stem+".out.txt")
		if err := os.WriteFile(draftPath, []byte(result.Draft.Text()+"\n"), 0o644); err != nil {
			return err
		}
	}
	cardPath := filepath.Join(f.outDir, stem+".audit.json")
	if err := os.WriteFile(cardPath, cardJSON, 0o644); err != nil {
		return err
	}
	if f.auditReport {
		reportPath := filepath.Join(f.outDir, stem+".audit.txt")
		if err := os.WriteFile(reportPath, []byte(result.Card.Render()), 0o644); err != nil {
			return err
		}
	}
	if graphOut != "" {
		info, _ := export.GetFormatInfo(export.Format(f.exportFormat))
		graphPath := filepath.Join(f.outDir, stem+".graph"+info.Extension)
		if err := os.WriteFile(graphPath, []byte(graphOut), 0o644); err != nil {
			return err
		}
	}
	return nil
}

// outputStem derives a filesystem-safe output name from a path or URL.
func outputStem(input string) string {
	name := filepath.Base(strings.TrimSuffix(input, "/"))
	if i := strings.Index(name, "?"); i >= 0 {
		name = name[:i]
	}
	name = strings.TrimSuffix(name, filepath.Ext(name))
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '-'
	}, name)
	if name == "" {
		name = "run"
	}
	return name
}

// expandInputs resolves glob patterns against the filesystem. URLs and plain
// paths pass through unchanged.
func expandInputs(inputs []string) ([]string, error) {
	var resolved []string
	for _, input := range inputs {
		if strings.HasPrefix(input, "https://") || !strings.ContainsAny(input, "*?[{") {
			resolved = append(resolved, input)
			continue
		}
		matches, err := doublestar.FilepathGlob(input)
		if err != nil {
			return nil, fmt.Errorf("bad pattern %q: %w", input, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("pattern %q matched nothing", input)
		}
		resolved = append(resolved, matches...)
	}
	return resolved, nil
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.NewLoader(slog.Default()).Load()
}

// applyFlags overlays non-default flag values onto the loaded config.
func applyFlags(cfg *config.Config, logLevel, logFormat string, f runFlags) {
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if logFormat != "" {
		cfg.LogFormat = logFormat
	}
	if f.providerURL != "" {
		cfg.Provider.URL = f.providerURL
	}
	if f.ontologyPath != "" {
		cfg.Ontology.Path = f.ontologyPath
	}
	if f.ontologyVer != "" {
		cfg.Ontology.Version = f.ontologyVer
	}
	if f.maxIter != 0 {
		cfg.Pipeline.MaxIterations = f.maxIter
	}
	if f.metricsAddr != "" {
		cfg.Metrics.Addr = f.metricsAddr
	}
	if f.natsURL != "" {
		cfg.NATS.URL = f.natsURL
	}
}

func newLogger(level, format string) *slog.Logger {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: l}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func loadKnowledgeBase(cfg *config.Config, logger *slog.Logger) (ontology.KnowledgeBase, error) {
	if cfg.Ontology.Path == "" {
		logger.Warn("No ontology configured, entities pass through unweighted")
		return ontology.NewInMemory("", nil), nil
	}
	kb, err := ontology.LoadFromFile(cfg.Ontology.Path)
	if err != nil {
		return nil, fmt.Errorf("load ontology: %w", err)
	}
	if err := ontology.CheckVersion(kb, cfg.Ontology.Version); err != nil {
		return nil, err
	}
	logger.Info("Ontology loaded", "path", cfg.Ontology.Path,
		"version", kb.Version(), "entries", kb.Len())
	return kb, nil
}

// loadSchemas layers schema files from the configured directory over the
// builtin contracts, and starts the hot-reload watcher when enabled.
func loadSchemas(ctx context.Context, schemas *operator.SchemaRegistry, cfg *config.Config, logger *slog.Logger) error {
	entries, err := os.ReadDir(cfg.Schemas.Dir)
	if err != nil {
		return fmt.Errorf("read schema dir: %w", err)
	}
	var paths []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		path := filepath.Join(cfg.Schemas.Dir, entry.Name())
		if err := schemas.LoadFile(path); err != nil {
			return fmt.Errorf("load schema %s: %w", path, err)
		}
		logger.Debug("Schema file loaded", "path", path)
		paths = append(paths, path)
	}

	if cfg.Schemas.Watch {
		for _, path := range paths {
			watcher := operator.NewSchemaWatcher(schemas, path, logger)
			go func() {
				if err := watcher.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("Schema watcher stopped", "path", path, "error", err)
				}
			}()
		}
	}
	return nil
}

func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.Info("Metrics endpoint listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
}

// connectNATS connects to NATS for audit card publishing and storage.
// Returns nils when NATS is not configured.
func connectNATS(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*audit.Publisher, *storage.CardStore, func(), error) {
	if cfg.NATS.URL == "" {
		return nil, nil, func() {}, nil
	}
	nc, err := nats.Connect(cfg.NATS.URL,
		nats.Name(appName),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connect to NATS: %w", err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, nil, fmt.Errorf("create JetStream context: %w", err)
	}
	store, err := storage.NewCardStore(ctx, js)
	if err != nil {
		nc.Close()
		return nil, nil, nil, err
	}
	logger.Info("Audit publishing enabled",
		"url", cfg.NATS.URL, "subject", audit.CardSubject, "bucket", storage.BucketCards)
	return audit.NewPublisher(js), store, nc.Close, nil
}

// parseLocks builds the lock set from flag values. Unknown names survive to
// Locks.Validate, which reports them.
func parseLocks(names []string) constraint.Locks {
	locks := make(constraint.Locks, len(names))
	for _, name := range names {
		locks[constraint.LockName(strings.ToLower(strings.TrimSpace(name)))] = true
	}
	return locks
}

// loadInvariants reads an invariants YAML file, a list under "invariants".
func loadInvariants(path string) ([]constraint.Invariant, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read invariants file: %w", err)
	}
	var doc struct {
		Invariants []constraint.Invariant `yaml:"invariants"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse invariants file: %w", err)
	}
	return doc.Invariants, nil
}
