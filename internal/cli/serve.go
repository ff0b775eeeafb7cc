package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/leialab/leia/internal/config"
	"github.com/leialab/leia/internal/logger"
	"github.com/leialab/leia/internal/metrics"
	"github.com/leialab/leia/pkg/catalog"
	"github.com/leialab/leia/pkg/gateway"
	"github.com/leialab/leia/pkg/provider"
	"github.com/leialab/leia/pkg/purge"
	"github.com/leialab/leia/pkg/session"
	"github.com/leialab/leia/pkg/store"
	"github.com/leialab/leia/pkg/wizard"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the LEIA wizard service",
	Long: `Run the LEIA wizard service: validate the configured providers,
open the session store, and serve the gateway until interrupted.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.NewLoader(cfgFile).Load()
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	lg, err := logger.New(logger.Config{
		Level:     cfg.Logging.Level,
		File:      cfg.Logging.File,
		Console:   true,
		Pretty:    true,
		Redaction: cfg.Logging.Redaction,
		MaxSize:   cfg.Logging.MaxSize,
		MaxAge:    cfg.Logging.MaxAge,
		Compress:  cfg.Logging.Compress,
	})
	if err != nil {
		return err
	}
	defer lg.Close()
	log := lg.GetZerolog()

	st, err := store.Open(store.Config{Path: cfg.Store.Path, Logger: log})
	if err != nil {
		return err
	}
	defer st.Close()

	registry := provider.NewRegistry(provider.RegistryConfig{
		Providers:   buildProviders(cfg),
		DefaultName: cfg.Models.Default,
		Store:       st,
		Logger:      log,
	})

	initCtx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	err = registry.Initialize(initCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("provider initialization failed: %w", err)
	}
	if len(registry.ValidatedModels()) == 0 {
		log.Warn().Msg("No provider passed validation; sessions cannot be created")
	}

	m := metrics.New()
	sessions := session.NewManager(st, nil, log)
	cat := catalog.NewClient(catalog.Config{
		BaseURL: cfg.Catalog.BaseURL,
		Timeout: time.Duration(cfg.Catalog.Timeout) * time.Second,
		Logger:  log,
	})

	orch := wizard.New(wizard.Config{
		Registry: registry,
		Sessions: sessions,
		Tools:    wizard.NewToolset(cat, log),
		Metrics:  m,
		Logger:   log,
	})

	engine := purge.NewEngine(purge.Config{Store: st, Metrics: m, Logger: log})

	var scheduler *purge.Scheduler
	if cfg.Purge.Enabled {
		scheduler, err = purge.NewScheduler(engine, cfg.Purge.Schedule,
			purge.Request{TimeFrame: cfg.Purge.TimeFrame}, log)
		if err != nil {
			return err
		}
		scheduler.Start()
		defer scheduler.Stop()
	}

	srv, err := gateway.NewServer(gateway.Config{
		Host:         cfg.Gateway.Host,
		Port:         cfg.Gateway.Port,
		Orchestrator: orch,
		Registry:     registry,
		PurgeEngine:  engine,
		Metrics:      m,
		Logger:       log,
	})
	if err != nil {
		return err
	}
	if err := srv.Start(); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info().Str("signal", sig.String()).Msg("Shutting down")

	return srv.Stop()
}

// buildProviders assembles the provider set from configured credentials.
// Families without credentials are simply absent.
func buildProviders(cfg *config.Config) []provider.Provider {
	var providers []provider.Provider

	if key := cfg.Providers.OpenAI.APIKey; key != "" {
		providers = append(providers,
			provider.NewAssistantProvider(key, cfg.Providers.OpenAI.AssistantModel),
			provider.NewResponsesProvider(key, cfg.Providers.OpenAI.ResponsesModel),
			provider.NewWizardProvider(key, cfg.Providers.OpenAI.WizardModel),
		)
	}
	if key := cfg.Providers.Anthropic.APIKey; key != "" {
		providers = append(providers,
			provider.NewClaudeProvider(key, cfg.Providers.Anthropic.Model))
	}
	for _, local := range cfg.Providers.Local {
		providers = append(providers,
			provider.NewLocalModelProvider(local.Name, local.BaseURL, local.Model))
	}
	return providers
}
