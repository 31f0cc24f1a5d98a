package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"chatcoach/internal/analyzer"
	"chatcoach/internal/cache"
	"chatcoach/internal/collab"
	"chatcoach/internal/config"
	"chatcoach/internal/dispatch"
	"chatcoach/internal/httpapi"
	"chatcoach/internal/httpfetch"
	"chatcoach/internal/llmclient"
	_ "chatcoach/internal/llmclient/gemini"
	_ "chatcoach/internal/llmclient/ollama"
	_ "chatcoach/internal/llmclient/openailm"
	"chatcoach/internal/moderation"
	"chatcoach/internal/monitor"
	"chatcoach/internal/profilestore"
	"chatcoach/internal/promptstore"
	"chatcoach/internal/quota"
	"chatcoach/internal/reply"
	"chatcoach/internal/strategy"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if _, sysCfg, err := config.Load("config.json", "system.json"); err == nil {
		monitor.SetupSlog(sysCfg.LogLevel)
	}

	reloadCh := config.WatchConfig(ctx, "config.json", "system.json")

	for {
		err := runServer(ctx, reloadCh)
		if err != nil {
			slog.Error("server crashed or failed to load config", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-reloadCh:
				slog.Info("configuration change detected while waiting, retrying immediately")
			case <-time.After(5 * time.Second):
			}
			continue
		}

		select {
		case <-ctx.Done():
			return
		default:
			slog.Info("configuration reloaded, restarting")
		}
	}
}

func runServer(ctx context.Context, reloadCh <-chan struct{}) error {
	cfg, sysCfg, err := config.Load("config.json", "system.json")
	if err != nil {
		monitor.SetupSlog("info")
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	monitor.SetupSlog(sysCfg.LogLevel)

	profiles, err := profilestore.Open("data/profiles.db")
	if err != nil {
		return fmt.Errorf("failed to open profile store: %w", err)
	}
	defer profiles.Close()

	retryDelay := time.Duration(sysCfg.RetryDelayMs) * time.Millisecond

	multimodal, err := llmclient.NewFromConfig(cfg.Providers["multimodal"], sysCfg.MaxRetries, retryDelay)
	if err != nil {
		return fmt.Errorf("failed to build multimodal provider: %w", err)
	}
	premium, err := llmclient.NewFromConfig(cfg.Providers["premium"], sysCfg.MaxRetries, retryDelay)
	if err != nil {
		return fmt.Errorf("failed to build premium provider: %w", err)
	}
	replyLLM, err := llmclient.NewFromConfig(cfg.Providers["reply"], sysCfg.MaxRetries, retryDelay)
	if err != nil {
		return fmt.Errorf("failed to build reply provider: %w", err)
	}

	c := cache.New(time.Duration(sysCfg.CacheTTLSeconds) * time.Second)
	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go c.RunSweeper(sweepCtx, time.Duration(sysCfg.CacheSweepIntervalMs)*time.Millisecond)

	prompts := promptstore.New(cfg.PromptDir)
	fetcher := httpfetch.New(time.Duration(sysCfg.ImageFetchTimeoutMs)*time.Millisecond, sysCfg.ImageFetchMaxBytes)
	strategies := strategy.New(strategy.DefaultPools())
	quotaChecker := quota.New(5, 10)
	recorder := monitor.NewRecorder()

	var moderationService collab.ModerationService
	intimacyCheckEnabled := sysCfg.IntimacyCheckEnabled
	if sysCfg.ModerationEndpoint != "" {
		moderationService = moderation.New(sysCfg.ModerationEndpoint, 5*time.Second)
	} else {
		// config.go: "Empty disables the moderation gate regardless of
		// IntimacyCheckEnabled." reply.Pipeline also guards this itself, but
		// the gate should read as off in logs/telemetry too.
		intimacyCheckEnabled = false
	}

	az := &analyzer.Analyzer{
		Cache:      c,
		Fetcher:    fetcher,
		Prompts:    prompts,
		Strategies: strategies,
		Multimodal: multimodal,
		Premium:    premium,
		ArmTimeout: time.Duration(sysCfg.RaceArmTimeoutMs) * time.Millisecond,
		Telemetry:  recorder,
	}

	rp := &reply.Pipeline{
		Cache:                c,
		Prompts:              prompts,
		Moderation:           moderationService,
		LLM:                  replyLLM,
		MaxRetries:           sysCfg.MaxRetries,
		RetryDelay:           retryDelay,
		IntimacyCheckEnabled: intimacyCheckEnabled,
		ModerationFailOpen:   sysCfg.ModerationFailOpen,
		PlainTextThreshold:   sysCfg.PlainTextWrapThreshold,
		Telemetry:            recorder,
	}

	d := &dispatch.Dispatcher{
		Analyzer:         az,
		Reply:            rp,
		Strategies:       strategies,
		MergeStepEnabled: sysCfg.MergeStepEnabled,
		ParallelEnabled:  sysCfg.ParallelEnabled,
	}

	h := &httpapi.Handler{
		Dispatcher:    d,
		Authenticator: collab.NoopAuthenticator{},
		Quota:         quotaChecker,
		Telemetry:     recorder,
	}

	var handler http.Handler = h.Mux()
	if sysCfg.RequestTimeoutMs > 0 {
		mux := handler
		requestTimeout := time.Duration(sysCfg.RequestTimeoutMs) * time.Millisecond
		handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqCtx, cancel := context.WithTimeout(r.Context(), requestTimeout)
			defer cancel()
			mux.ServeHTTP(w, r.WithContext(reqCtx))
		})
	}

	srv := &http.Server{Addr: ":8787", Handler: handler}

	go func() {
		slog.Info("chatcoach listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("http server error", "error", err)
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received, stopping")
		srv.Close()
		return nil
	case <-reloadCh:
		slog.Info("configuration change detected, stopping for restart")
		srv.Close()
		time.Sleep(500 * time.Millisecond)
		return nil
	}
}
