package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"workflow-scheme/backend/internal/api"
	"workflow-scheme/backend/internal/auth"
	"workflow-scheme/backend/internal/config"
	"workflow-scheme/backend/internal/logging"
	"workflow-scheme/backend/internal/mcp"
	"workflow-scheme/backend/internal/messaging"
	"workflow-scheme/backend/internal/repository"
	"workflow-scheme/backend/internal/services"
	"workflow-scheme/backend/internal/tls"
)

func openRepository(ctx context.Context, cfg *config.Config, logger *logging.Logger) (repository.Repository, func(), error) {
	if cfg.Store.Driver == "memory" {
		logger.Warn("using in-memory store; data is lost on restart")
		return repository.NewMemoryRepository(), func() {}, nil
	}
	pool, err := initDatabase(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	if err := repository.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return repository.NewPostgresRepository(pool), pool.Close, nil
}

func openNotifier(ctx context.Context, cfg *config.Config, logger *logging.Logger) (services.Notifier, func(), error) {
	if cfg.Redis.Addr == "" {
		logger.Warn("redis.addr is not set; deploy notifications are only logged")
		return messaging.LogNotifier{Logger: logger}, func() {}, nil
	}
	client, err := messaging.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return nil, nil, err
	}
	notifier := messaging.NewRedisNotifier(client, cfg.Redis.Stream, logger)
	return notifier, func() {
		notifier.Close()
		client.Close()
	}, nil
}

func runServer(ctx context.Context, cfg *config.Config, logger *logging.Logger) error {
	logger.Info("Starting workflow scheme service", "version", version, "environment", cfg.Environment, "store", cfg.Store.Driver)

	repo, closeRepo, err := openRepository(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeRepo()

	notifier, closeNotifier, err := openNotifier(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeNotifier()

	collab := cfg.Collaborators
	client := services.NewHTTPClient(ctx, services.ClientConfig{
		Timeout:      collab.Timeout,
		TokenURL:     collab.TokenURL,
		ClientID:     collab.ClientID,
		ClientSecret: collab.ClientSecret,
	})
	directory := services.NewHTTPDirectory(collab.StateMachineURL, client)
	impact := services.NewHTTPImpactChecker(collab.AgileURL, client)
	evaluator := services.NewHTTPEvaluator(collab.EvaluatorURLTemplate, client)

	schemes := services.NewSchemeService(repo, directory, logger)
	deploys := services.NewDeployCoordinator(repo, directory, impact, notifier, logger)
	pipeline := services.NewPipeline(repo, evaluator, directory, logger)
	codes := services.NewConfigCodeService(repo, logger)
	projects := services.NewProjectConfigService(repo, schemes, deploys, pipeline, directory, logger)
	logger.Info("Service layer initialized")

	authz, err := auth.New(ctx, cfg, logger)
	if err != nil {
		return err
	}

	e := api.NewEcho(&api.Server{
		Schemes:  schemes,
		Deploys:  deploys,
		Pipeline: pipeline,
		Codes:    codes,
		Projects: projects,
		Store:    repo,
		Logger:   logger,
		Version:  version,
	}, authz)

	mcpServer := mcp.NewServer(schemes, deploys, pipeline, codes)
	mcpHandlers := http.NewServeMux()
	mcp.MountHTTPHandlers(mcpHandlers, mcpServer.GetMCPServer())
	mcpHandler := echo.WrapHandler(authz.RequireAuth(mcpHandlers))
	e.Any("/mcp", mcpHandler)
	e.Any("/mcp/*", mcpHandler)

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      e,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("Server starting", "address", server.Addr, "tls", cfg.TLS.Enable)
		if !cfg.TLS.Enable {
			serverErrors <- server.ListenAndServe()
			return
		}
		if cfg.IsDev() {
			created, err := tls.EnsureCert(cfg.TLS.CertFile, cfg.TLS.KeyFile, cfg.TLS.Hostnames)
			if err != nil {
				serverErrors <- err
				return
			}
			if created {
				logger.Info("generated self-signed certificate", "cert_file", cfg.TLS.CertFile)
			}
		}
		serverErrors <- server.ListenAndServeTLS(cfg.TLS.CertFile, cfg.TLS.KeyFile)
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", "error", err)
		if err := server.Close(); err != nil {
			logger.Error("Server close error", "error", err)
		}
	}
	logger.Info("Server stopped gracefully")
	return nil
}
