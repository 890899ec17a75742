// Package server exposes the metrics feed and the scale-out API over HTTP.
package server

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/semaphore/internal/config"
	"github.com/zulandar/semaphore/internal/metrics"
	"github.com/zulandar/semaphore/internal/registry"
	"github.com/zulandar/semaphore/internal/scale"
	"github.com/zulandar/semaphore/internal/signal"
)

//go:embed templates/*.html
var templatesFS embed.FS

// shutdownTimeout bounds graceful shutdown after ctx is cancelled.
const shutdownTimeout = 10 * time.Second

// StartOpts holds configuration for the HTTP server.
type StartOpts struct {
	Collector registry.Collector
	Exporter  *metrics.Exporter
	Scaler    signal.Requester
	Encoder   *scale.Encoder // describes the scale form; optional
	Auth      config.AuthConfig
	Logger    *slog.Logger
	Port      int
	Out       io.Writer
}

// NewRouter builds the gin engine serving all routes.
func NewRouter(opts StartOpts) (*gin.Engine, error) {
	if opts.Collector == nil {
		return nil, fmt.Errorf("server: collector is required")
	}
	if opts.Scaler == nil {
		return nil, fmt.Errorf("server: scaler is required")
	}
	if opts.Exporter == nil {
		opts.Exporter = metrics.New(metrics.DefaultPrefix)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(opts.Logger))

	tmpl, err := parseTemplates()
	if err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}
	router.SetHTMLTemplate(tmpl)

	registerRoutes(router, opts)
	return router, nil
}

// Start launches the HTTP server. It blocks until ctx is cancelled, then
// shuts down gracefully.
func Start(ctx context.Context, opts StartOpts) error {
	if opts.Port <= 0 {
		opts.Port = 8080
	}

	gin.SetMode(gin.ReleaseMode)
	router, err := NewRouter(opts)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", opts.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "Semaphore listening on http://localhost:%d\n", opts.Port)
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}

// parseTemplates loads the embedded HTML templates.
func parseTemplates() (*template.Template, error) {
	tmpl, err := template.ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return tmpl, nil
}
