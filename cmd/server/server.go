package main

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"keygate/internal/config"
	"keygate/internal/domain/dispatch"
	"keygate/internal/domain/key"
	"keygate/internal/infrastructure/logger"
	"keygate/internal/infrastructure/upstream"
	"keygate/internal/interfaces/httpserver"
	"keygate/internal/interfaces/httpserver/handlers/chathandler"
	"keygate/internal/interfaces/httpserver/handlers/usagehandler"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.GetLogger()
		bootLog.Fatal().Err(err).Msg("load config")
	}

	log, err := logger.Init(cfg.LogLevel, cfg.LogFormat, cfg.ServiceName, cfg.Environment)
	if err != nil {
		bootLog := logger.GetLogger()
		bootLog.Fatal().Err(err).Msg("configure logger")
	}

	pools, err := config.LoadKeyPools(cfg.KeysFile)
	if err != nil {
		log.Fatal().Err(err).Msg("load key pools")
	}

	dispatcher := dispatch.NewDispatcher(key.SystemClock, dispatch.BackoffPolicy{
		MaxAttempts:  cfg.RetryMaxAttempts,
		InitialDelay: cfg.RetryInitialDelay,
		MaxDelay:     cfg.RetryMaxDelay,
		JitterFactor: cfg.RetryJitter,
	}, log)

	registry := dispatch.NewRegistry(dispatcher, key.Options{
		FailureThreshold: cfg.FailureThreshold,
		Cooldown:         cfg.KeyCooldown,
	}, log)

	clients := make(map[string]*upstream.ChatClient, len(pools))
	for _, pool := range pools {
		registry.RegisterPool(pool.Scope, pool.Keys)
		clients[pool.Scope] = upstream.NewChatClient(pool.Scope, pool.UpstreamURL, cfg.UpstreamTimeout)
	}

	chatHandler := chathandler.NewChatHandler(registry, clients, log)
	usageHandler := usagehandler.NewUsageHandler(registry)
	server := httpserver.NewHTTPServer(chatHandler, usageHandler, cfg, log)

	var eg errgroup.Group
	eg.Go(func() error {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		log.Info().Int("port", cfg.MetricsPort).Msg("metrics server listening")
		return http.ListenAndServe(fmt.Sprintf(":%d", cfg.MetricsPort), mux)
	})
	eg.Go(func() error {
		log.Info().Int("port", cfg.HTTPPort).Str("environment", cfg.Environment).Msg("http server listening")
		return server.Run()
	})

	if err := eg.Wait(); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}
