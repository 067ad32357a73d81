package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nextlevelbuilder/membridge/internal/announce"
	"github.com/nextlevelbuilder/membridge/internal/auth"
	"github.com/nextlevelbuilder/membridge/internal/bridge"
	"github.com/nextlevelbuilder/membridge/internal/bus"
	"github.com/nextlevelbuilder/membridge/internal/channels"
	"github.com/nextlevelbuilder/membridge/internal/channels/discord"
	"github.com/nextlevelbuilder/membridge/internal/channels/telegram"
	"github.com/nextlevelbuilder/membridge/internal/config"
	"github.com/nextlevelbuilder/membridge/internal/memclient"
	"github.com/nextlevelbuilder/membridge/internal/persona"
	"github.com/nextlevelbuilder/membridge/internal/providers"
	"github.com/nextlevelbuilder/membridge/internal/router"
	"github.com/nextlevelbuilder/membridge/internal/sessions"
	"github.com/nextlevelbuilder/membridge/internal/telemetry"
	"github.com/nextlevelbuilder/membridge/internal/toolreg"
)

func runGateway() {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))

	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("config.load_failed", "path", cfgPath, "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		slog.Warn("telemetry.init_failed", "error", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTelemetry(shutdownCtx); err != nil {
				slog.Warn("telemetry.shutdown_failed", "error", err)
			}
		}()
	}

	provider, err := buildProvider(cfg)
	if err != nil {
		slog.Error("provider.setup_failed", "error", err)
		os.Exit(1)
	}
	slog.Info("provider.active", "name", provider.Name())

	// Memory backend is optional: when it is down the gateway still runs,
	// just without tools.
	var toolClient toolreg.ToolClient
	if mem, connErr := memclient.Connect(ctx, cfg.Memory); connErr != nil {
		slog.Warn("memclient.connect_failed", "transport", cfg.Memory.Transport, "error", connErr)
	} else {
		toolClient = mem
		defer mem.Close()
	}

	registry := toolreg.NewRegistry()
	registry.Initialize(ctx, toolClient)

	gate := auth.NewGate(cfg.Auth)
	store := sessions.NewStore(cfg.Sessions.MaxTurns)
	personaLoader := persona.NewLoader(config.ExpandHome(cfg.Gateway.PersonaPath))

	br := bridge.New(bridge.Config{
		Provider:  provider,
		Registry:  registry,
		Client:    toolClient,
		Persona:   personaLoader,
		Providers: cfg.Providers,
		Bridge:    cfg.Bridge,
	})

	msgBus := bus.NewMessageBus()
	manager := channels.NewManager(msgBus)
	registerChannels(manager, msgBus, cfg)

	rt := router.New(router.Config{
		Gate:                gate,
		Sessions:            store,
		Processor:           br,
		Manager:             manager,
		Bus:                 msgBus,
		TurnTimeout:         time.Duration(cfg.Gateway.TurnTimeoutSec) * time.Second,
		ProactiveRatePerMin: cfg.Gateway.ProactiveRatePerMin,
	})

	scheduler := announce.New(rt, cfg.Announce)

	if err := manager.StartAll(ctx); err != nil {
		slog.Error("channels.start_failed", "error", err)
	}
	rt.Start(ctx)
	scheduler.Start(ctx)

	g, gctx := errgroup.WithContext(ctx)

	// Hot reload: allowlists and announce entries apply without restart.
	g.Go(func() error {
		return config.Watch(gctx, cfgPath, func(next *config.Config) {
			gate.Replace(next.Auth)
			scheduler.Replace(next.Announce)
			cfg.ReplaceFrom(next)
		})
	})

	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	slog.Info("gateway.started",
		"version", Version,
		"provider", provider.Name(),
		"channels", manager.GetStatus(),
		"announce_entries", scheduler.EntryCount(),
	)

	if err := g.Wait(); err != nil && err != context.Canceled {
		slog.Error("gateway.error", "error", err)
	}

	slog.Info("gateway.stopping")
	scheduler.Stop()
	rt.Stop()

	stopCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := manager.StopAll(stopCtx); err != nil {
		slog.Error("channels.stop_failed", "error", err)
	}
}

// buildProvider constructs the active LLM provider from config.
func buildProvider(cfg *config.Config) (providers.Provider, error) {
	switch cfg.Providers.Active {
	case "ollama":
		var opts []providers.OllamaOption
		if cfg.Providers.Ollama.Host != "" {
			opts = append(opts, providers.WithOllamaHost(cfg.Providers.Ollama.Host))
		}
		if cfg.Providers.Ollama.Model != "" {
			opts = append(opts, providers.WithOllamaModel(cfg.Providers.Ollama.Model))
		}
		return providers.NewOllamaProvider(opts...), nil
	default:
		if cfg.Providers.Anthropic.APIKey == "" {
			slog.Warn("provider.no_api_key", "hint", "set MEMBRIDGE_ANTHROPIC_API_KEY")
		}
		var opts []providers.AnthropicOption
		if cfg.Providers.Anthropic.BaseURL != "" {
			opts = append(opts, providers.WithAnthropicBaseURL(cfg.Providers.Anthropic.BaseURL))
		}
		if cfg.Providers.Anthropic.Model != "" {
			opts = append(opts, providers.WithAnthropicModel(cfg.Providers.Anthropic.Model))
		}
		return providers.NewAnthropicProvider(cfg.Providers.Anthropic.APIKey, opts...), nil
	}
}

// registerChannels builds the enabled adapters. An adapter that fails to
// construct is skipped so one bad token does not take the gateway down.
func registerChannels(manager *channels.Manager, msgBus *bus.MessageBus, cfg *config.Config) {
	if cfg.Channels.Telegram.Enabled && cfg.Channels.Telegram.Token != "" {
		tg, err := telegram.New(cfg.Channels.Telegram.Token, msgBus)
		if err != nil {
			slog.Error("telegram.init_failed", "error", err)
		} else {
			manager.RegisterChannel("telegram", tg)
			slog.Info("telegram.enabled")
		}
	}

	if cfg.Channels.Discord.Enabled && cfg.Channels.Discord.Token != "" {
		dc, err := discord.New(cfg.Channels.Discord.Token, msgBus)
		if err != nil {
			slog.Error("discord.init_failed", "error", err)
		} else {
			manager.RegisterChannel("discord", dc)
			slog.Info("discord.enabled")
		}
	}
}
