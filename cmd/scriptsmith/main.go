// scriptsmith generates a long-form dialogue script from a structured
// outline: each section is drafted, verified, and refined in order, then the
// assembled script gets one cross-section pass.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/term"

	"scriptsmith/pkg/config"
	"scriptsmith/pkg/llm"
	anthropicimpl "scriptsmith/pkg/llm/llmimpl/anthropic"
	ollamaimpl "scriptsmith/pkg/llm/llmimpl/ollama"
	openaiimpl "scriptsmith/pkg/llm/llmimpl/openai"
	metricsmw "scriptsmith/pkg/llm/middleware/metrics"
	"scriptsmith/pkg/llm/middleware/retry"
	"scriptsmith/pkg/logx"
	"scriptsmith/pkg/persistence"
	"scriptsmith/pkg/pipeline"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "scriptsmith: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath = flag.String("config", "", "path to YAML config file")
		outlineArg = flag.String("outline", "", "outline file to generate from (- for stdin)")
		outPath    = flag.String("out", "", "write the final script here (default stdout)")
		provider   = flag.String("provider", "", "override configured provider")
		model      = flag.String("model", "", "override configured model")
		dbPath     = flag.String("db", "", "override checkpoint database path (empty string in config disables)")
		quiet      = flag.Bool("quiet", false, "suppress progress output")
	)
	flag.Parse()

	logger := logx.NewLogger("main")

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *provider != "" {
		cfg.Provider = *provider
		cfg.APIKeyEnv = ""
	}
	if *model != "" {
		cfg.Model = *model
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	outline, err := readOutline(*outlineArg)
	if err != nil {
		return err
	}

	client, err := buildClient(cfg)
	if err != nil {
		return err
	}

	var store pipeline.Checkpointer
	if cfg.DBPath != "" {
		s, err := persistence.Open(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("failed to open checkpoint database: %w", err)
		}
		defer func() { _ = s.Close() }()
		store = s
	}

	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr, logger)
	}

	runID := uuid.New().String()
	orch, err := pipeline.New(client, store, pipeline.Config{
		RunID:              runID,
		WPM:                cfg.WordsPerMinute,
		MaxAttempts:        cfg.MaxAttempts,
		MinImprovementRate: cfg.MinImprovementRate,
	})
	if err != nil {
		return err
	}
	if !*quiet {
		orch.OnProgress = func(percent int) {
			fmt.Fprintf(os.Stderr, "\rprogress: %3d%%", percent)
			if percent == 100 {
				fmt.Fprintln(os.Stderr)
			}
		}
	}

	// SIGINT triggers cooperative cancellation; the partial script is kept.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("run %s: model %s", runID, client.ModelName())
	result, err := orch.GenerateDocument(ctx, outline)
	switch {
	case err == nil:
	case result != nil && errors.Is(err, pipeline.ErrCancelled):
		fmt.Fprintln(os.Stderr)
		logger.Warn("run %s cancelled, writing partial script (%d section(s))", runID, len(result.Sections))
	default:
		return err
	}

	if err := writeScript(*outPath, result.Text); err != nil {
		return err
	}
	for _, sec := range result.Sections {
		status := "ok"
		if !sec.Valid {
			status = fmt.Sprintf("%d residual issue(s)", len(sec.Issues))
		}
		logger.Info("%s %s: %s after %d attempt(s)", sec.Section.Number, sec.Section.Title, status, sec.Attempts)
	}
	return nil
}

// buildClient assembles the provider client with retry and metrics wrapped
// around it.
func buildClient(cfg *config.Config) (llm.CompletionClient, error) {
	var base llm.CompletionClient
	switch cfg.Provider {
	case config.ProviderOpenAI:
		key, err := resolveKey(cfg)
		if err != nil {
			return nil, err
		}
		base = openaiimpl.NewClient(key, cfg.Model)
	case config.ProviderAnthropic:
		key, err := resolveKey(cfg)
		if err != nil {
			return nil, err
		}
		base = anthropicimpl.NewClient(key, cfg.Model)
	case config.ProviderOllama:
		base = ollamaimpl.NewClient(cfg.Host, cfg.Model)
	case config.ProviderMock:
		base = llm.NewMockClient(nil, nil)
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}

	return llm.Chain(base,
		metricsmw.Middleware(metricsmw.NewRecorder()),
		retry.Middleware(retry.DefaultConfig()),
	), nil
}

// resolveKey takes the API key from the environment, falling back to an
// interactive prompt on a terminal.
func resolveKey(cfg *config.Config) (string, error) {
	if key := cfg.APIKey(); key != "" {
		return key, nil
	}
	if !term.IsTerminal(int(syscall.Stdin)) {
		return "", fmt.Errorf("no API key: set %s or run interactively", cfg.APIKeyEnv)
	}

	fmt.Fprintf(os.Stderr, "Enter API key for %s: ", cfg.Provider)
	key, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read API key: %w", err)
	}
	if len(key) == 0 {
		return "", fmt.Errorf("empty API key")
	}
	return string(key), nil
}

func readOutline(arg string) (string, error) {
	switch arg {
	case "":
		return "", fmt.Errorf("no outline given: use -outline <file> or -outline -")
	case "-":
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read outline from stdin: %w", err)
		}
		return string(data), nil
	default:
		data, err := os.ReadFile(arg)
		if err != nil {
			return "", fmt.Errorf("failed to read outline: %w", err)
		}
		return string(data), nil
	}
}

func writeScript(path, text string) error {
	if path == "" {
		fmt.Println(text)
		return nil
	}
	if err := os.WriteFile(path, []byte(text+"\n"), 0o644); err != nil {
		return fmt.Errorf("failed to write script: %w", err)
	}
	return nil
}

func serveMetrics(addr string, logger *logx.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	logger.Info("serving metrics on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Warn("metrics server stopped: %v", err)
	}
}
