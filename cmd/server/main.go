// Command server runs the unichat gateway.
//
// Configuration is loaded from a YAML file (discovered or given with
// -config) layered with UNICHAT_* environment overrides; see pkg/config.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/unichat-ai/unichat/pkg/backend"
	"github.com/unichat-ai/unichat/pkg/config"
	"github.com/unichat-ai/unichat/pkg/debug"
	"github.com/unichat-ai/unichat/pkg/memory"
	"github.com/unichat-ai/unichat/pkg/models"
	"github.com/unichat-ai/unichat/pkg/moderation"
	"github.com/unichat-ai/unichat/pkg/storage"
	memstore "github.com/unichat-ai/unichat/pkg/storage/memory"
	"github.com/unichat-ai/unichat/pkg/storage/postgres"
	"github.com/unichat-ai/unichat/pkg/tokens"
	"github.com/unichat-ai/unichat/pkg/tools"
	"github.com/unichat-ai/unichat/pkg/tools/mcp"
	"github.com/unichat-ai/unichat/pkg/tools/registry"
	transporthttp "github.com/unichat-ai/unichat/pkg/transport/http"
	"github.com/unichat-ai/unichat/pkg/usage"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to config file (default: discovered)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	debug.Init("", "")
	logger := slog.Default()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := buildStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	executor, closeExecutor := buildExecutor(ctx, cfg, logger)
	defer closeExecutor()

	handler := transporthttp.NewHandler(transporthttp.HandlerConfig{
		Registry:     models.NewStaticRegistry(defaultModels()),
		Backends:     buildBackends(cfg),
		Store:        store,
		Validator:    moderation.NewKeywordValidator(cfg.Moderation.Blocklist),
		Extractor:    memory.HeuristicExtractor{},
		Memory:       memory.Settings{Enabled: cfg.Memory.Enabled, MaxEvents: cfg.Memory.MaxEvents},
		Executor:     executor,
		Limiter:      usage.NewMemoryLimiter(cfg.Usage.DailyLimit),
		Estimator:    tokens.NewEstimator(),
		EnabledTools: cfg.Tools.Enabled,
		Logger:       logger,
	})

	srv := transporthttp.NewServer(handler.Routes(), transporthttp.ServerConfig{
		Port:         cfg.Server.Port,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}, logger)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(ctx) })

	if cfg.Observability.Metrics.Enabled {
		g.Go(func() error { return runMetrics(ctx, cfg.Observability.Metrics, logger) })
	}

	logger.Info("unichat gateway starting",
		"port", cfg.Server.Port,
		"storage", cfg.Storage.Type,
		"backends", len(cfg.Backends))
	return g.Wait()
}

// buildStore creates the configured conversation store.
func buildStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.ConversationStore, func(), error) {
	switch cfg.Storage.Type {
	case "postgres":
		pg, err := postgres.New(ctx, postgres.Config{
			DSN:            cfg.Storage.Postgres.DSN,
			MaxConns:       cfg.Storage.Postgres.MaxConns,
			MigrateOnStart: cfg.Storage.Postgres.MigrateOnStart,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to postgres: %w", err)
		}
		logger.Info("storage enabled", "type", "postgres")
		return pg, pg.Close, nil
	default:
		logger.Info("storage enabled", "type", "memory", "max_size", cfg.Storage.MaxSize)
		return memstore.New(cfg.Storage.MaxSize), func() {}, nil
	}
}

// buildExecutor wires the tool executor: MCP servers when configured,
// otherwise the built-in function registry.
func buildExecutor(ctx context.Context, cfg *config.Config, logger *slog.Logger) (tools.Executor, func()) {
	if len(cfg.MCP.Servers) == 0 {
		return registry.New(), func() {}
	}

	clients := make(map[string]*mcp.Client, len(cfg.MCP.Servers))
	for _, sc := range cfg.MCP.Servers {
		client := mcp.NewClient(mcp.ServerConfig{
			Name:      sc.Name,
			Transport: sc.Transport,
			URL:       sc.URL,
			Headers:   sc.Headers,
		})
		if err := client.Connect(ctx); err != nil {
			logger.Error("mcp server unavailable", "server", sc.Name, "error", err)
			continue
		}
		clients[sc.Name] = client
		logger.Info("mcp server connected", "server", sc.Name, "url", sc.URL)
	}

	executor := mcp.NewExecutor(clients)
	return executor, func() {
		if err := executor.Close(); err != nil {
			logger.Error("closing mcp clients", "error", err)
		}
	}
}

func buildBackends(cfg *config.Config) map[backend.ID]transporthttp.BackendTarget {
	targets := make(map[backend.ID]transporthttp.BackendTarget, len(cfg.Backends))
	for name, bc := range cfg.Backends {
		targets[backend.ID(name)] = transporthttp.BackendTarget{
			URL:    bc.URL,
			APIKey: bc.APIKey,
		}
	}
	return targets
}

// runMetrics serves the Prometheus endpoint on its own listener so the
// scrape port can stay off the public surface.
func runMetrics(ctx context.Context, cfg config.MetricsConfig, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.Handler())

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: mux,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("metrics listening", "port", cfg.Port, "path", cfg.Path)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return srv.Close()
	case err := <-errCh:
		return err
	}
}

// defaultModels seeds the model registry with the capabilities of the
// commonly deployed models. Deployments with other models can extend
// this table.
func defaultModels() map[string]models.Capabilities {
	return map[string]models.Capabilities{
		"gpt-4o": {
			Type:            models.ModelTypeText,
			MaxTokens:       16384,
			FunctionCalling: true,
			Vision:          true,
		},
		"gpt-4o-mini": {
			Type:            models.ModelTypeText,
			MaxTokens:       16384,
			FunctionCalling: true,
			Vision:          true,
		},
		"o3-mini": {
			Type:            models.ModelTypeText,
			MaxTokens:       65536,
			FunctionCalling: true,
			Reasoning:       true,
		},
		"claude-sonnet-4-20250514": {
			Type:            models.ModelTypeText,
			MaxTokens:       64000,
			FunctionCalling: true,
			Reasoning:       true,
			Vision:          true,
		},
		"claude-3-5-haiku-20241022": {
			Type:            models.ModelTypeText,
			MaxTokens:       8192,
			FunctionCalling: true,
		},
		"gemini-2.0-flash": {
			Type:            models.ModelTypeText,
			MaxTokens:       8192,
			FunctionCalling: true,
			Vision:          true,
		},
		"@cf/black-forest-labs/flux-1-schnell": {
			Type:      models.ModelTypeImage,
			MaxTokens: 0,
		},
		"@cf/openai/whisper": {
			Type: models.ModelTypeSpeech,
		},
	}
}
