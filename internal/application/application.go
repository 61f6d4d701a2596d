package application

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/markdownpro2/edit-session-service/internal/auth"
	"github.com/markdownpro2/edit-session-service/internal/config"
	"github.com/markdownpro2/edit-session-service/internal/conversion"
	"github.com/markdownpro2/edit-session-service/internal/handler"
	"github.com/markdownpro2/edit-session-service/internal/router"
	"github.com/markdownpro2/edit-session-service/internal/service"
)

// API is the HTTP + WebSocket API application.
type API struct {
	cfg     *config.Config
	srv     *http.Server
	sweeper *service.CleanupSweeper
	logger  *zap.Logger
	authDir *auth.DirectoryValidator
}

// NewAPI creates the API application: validates config, builds the auth and
// conversion gateways, the session registry and the router.
func NewAPI(cfg *config.Config) (*API, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	logger, _ := zap.NewProduction()
	if cfg.AppEnv == "development" {
		logger, _ = zap.NewDevelopment()
	}

	var tokens auth.TokenValidator
	var authDir *auth.DirectoryValidator
	switch cfg.AuthMode {
	case config.AuthModeDirectory:
		dir, err := auth.OpenDirectory(cfg.AuthDSN(), nil, logger)
		if err != nil {
			return nil, fmt.Errorf("auth directory: %w", err)
		}
		tokens = dir
		authDir = dir
	default:
		jwtV, err := auth.NewJWTValidator([]byte(cfg.JWTSecret))
		if err != nil {
			return nil, fmt.Errorf("auth: %w", err)
		}
		tokens = jwtV
	}

	converter := conversion.NewClient(cfg.ConverterURL, logger)
	registry := service.NewSessionRegistry(cfg.SessionIdleTTL, cfg.SessionMaxLifetime, cfg.MaxSessionsPerUser, logger)
	sessionSvc := service.NewSessionService(registry, converter, cfg.TempFilesDir, cfg.PublicFilesURL, logger)
	sweeper := service.NewCleanupSweeper(registry, cfg.SessionCleanupInterval, logger)

	sessionHandler := handler.NewSessionHandler(sessionSvc, tokens, logger)
	editWS := handler.NewEditWSHandler(registry, sessionSvc, converter, tokens,
		cfg.WSReadBufferSize, cfg.WSWriteBufferSize, cfg.WSMaxMessageSize, logger)
	health := handler.NewHealthHandler()

	r := router.New(sessionHandler, editWS, health)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &API{cfg: cfg, srv: srv, sweeper: sweeper, logger: logger, authDir: authDir}, nil
}

// Run starts the HTTP server and the cleanup sweeper and blocks until ctx is
// cancelled; then shuts down gracefully.
func (a *API) Run(ctx context.Context) error {
	defer func() { _ = a.logger.Sync() }()

	addr := a.srv.Addr
	host := a.cfg.AppHost
	if host == "0.0.0.0" {
		host = "localhost"
	}
	base := "http://" + host + ":" + a.cfg.HTTPPort
	log.Printf("HTTP server listening on %s", addr)
	log.Printf("  Health:        %s/health", base)
	log.Printf("  Ready:         %s/ready", base)
	log.Printf("  Edit sessions: %s/edit-sessions", base)
	log.Printf("  WebSocket:     ws://%s:%s/ws/edit/:session_id", host, a.cfg.HTTPPort)

	go a.sweeper.Run(ctx)

	go func() {
		if err := a.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("http: %v", err)
		}
	}()

	<-ctx.Done()
	if a.authDir != nil {
		_ = a.authDir.Close()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}
