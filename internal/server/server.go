// Package server exposes the aggregation engine over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sort"
	"time"

	"github.com/labstack/echo/v4"

	"multichat/internal/config"
	"multichat/internal/keystore"
	"multichat/internal/router"
)

const (
	shutdownGracePeriod = 10 * time.Second
	readHeaderTimeout   = 10 * time.Second
	readTimeout         = 30 * time.Second
	idleTimeout         = 2 * time.Minute

	// Headroom past the dispatch ceiling so the final SSE frames still fit
	// inside the write deadline.
	writeHeadroom = 15 * time.Second

	headerUserID     = "X-User-ID"
	headerDispatchID = "X-Dispatch-ID"
)

// Dependencies are the collaborators shared by every request.
type Dependencies struct {
	// Client performs upstream provider calls.
	Client *http.Client
	// KeyStore holds per-user keys; nil disables the /v1/keys routes.
	KeyStore *keystore.Store
	// OperatorKeys are the fallback keys from the environment, by model ID.
	OperatorKeys map[string]string
	Logger       *slog.Logger
}

// Server serves the chat, model and key endpoints.
type Server struct {
	cfg          config.Config
	router       *router.Router
	client       *http.Client
	keys         *keystore.Store
	operatorKeys map[string]string
	logger       *slog.Logger
	app          *echo.Echo
}

// New validates cfg and builds the routed echo application.
func New(cfg config.Config, deps Dependencies) (*Server, error) {
	if deps.Client == nil {
		return nil, errors.New("http client must not be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("server config: %w", err)
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:          cfg,
		router:       router.New(cfg.Models),
		client:       deps.Client,
		keys:         deps.KeyStore,
		operatorKeys: deps.OperatorKeys,
		logger:       logger,
		app:          newEcho(logger),
	}

	s.app.GET("/health", s.handleHealth)
	v1 := s.app.Group("/v1")
	v1.GET("/models", s.handleModels)
	v1.POST("/chat", s.handleChat)
	v1.GET("/keys", s.handleListKeys)
	v1.PUT("/keys/:model", s.handlePutKey)
	v1.DELETE("/keys/:model", s.handleDeleteKey)

	return s, nil
}

// Handler exposes the routed echo instance.
func (s *Server) Handler() http.Handler {
	return s.app
}

// Run listens on the configured port until ctx ends, then drains in-flight
// requests for up to shutdownGracePeriod.
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.cfg.Server.Port)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.app,
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      s.cfg.Dispatch.Timeout + writeHeadroom,
		IdleTimeout:       idleTimeout,
	}

	s.printRoutes(os.Stdout)
	s.logger.Info("listening", "addr", addr, "dispatch_timeout", s.cfg.Dispatch.Timeout, "keystore", s.keys != nil)

	served := make(chan error, 1)
	go func() {
		served <- s.app.StartServer(httpServer)
	}()

	select {
	case err := <-served:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve %s: %w", addr, err)
	case <-ctx.Done():
	}

	s.logger.Info("shutting down", "grace", shutdownGracePeriod)
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownGracePeriod)
	defer cancel()
	if err := s.app.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status": "ok",
		"models": len(s.cfg.Models),
	})
}

func (s *Server) printRoutes(w io.Writer) {
	routes := s.app.Routes()
	sort.Slice(routes, func(i, j int) bool {
		if routes[i].Path != routes[j].Path {
			return routes[i].Path < routes[j].Path
		}
		return routes[i].Method < routes[j].Method
	})

	fmt.Fprintf(w, "\nmultichat on http://127.0.0.1:%d\n", s.cfg.Server.Port)
	for _, r := range routes {
		fmt.Fprintf(w, "  %-7s %s\n", r.Method, r.Path)
	}
	fmt.Fprintln(w)
}
