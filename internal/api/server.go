package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"staybook/internal/config"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
)

type HTTPServer struct {
	echo   *echo.Echo
	server *http.Server
	log    zerolog.Logger
}

func NewHTTPServer(cfg config.APIConfig, svc Services, logger *zerolog.Logger) *HTTPServer {
	serverLogger := zerolog.Nop()
	if logger != nil {
		serverLogger = logger.With().Str("component", "http").Logger()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler(&serverLogger)
	e.Use(middleware.Recover())
	e.Use(accessLog(&serverLogger))

	h := &handlers{svc: svc}
	e.GET("/healthz", h.healthz)
	e.GET("/readyz", h.readyz)

	auth := newAuthenticator(cfg)
	h.register(e.Group("/api/v1", auth.Middleware()))

	return &HTTPServer{
		echo: e,
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
			Handler:           e,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		log: serverLogger,
	}
}

// Handler exposes the router, mostly for httptest.
func (s *HTTPServer) Handler() http.Handler {
	return s.echo
}

func (s *HTTPServer) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
