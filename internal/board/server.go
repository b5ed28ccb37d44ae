// Package board serves the scenario tab over HTTP and gRPC.
package board

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/scenario.board/internal/db"
	"github.com/banshee-data/scenario.board/internal/monitoring"
	"github.com/banshee-data/scenario.board/internal/tab"
)

// ANSI escape codes for request logging
const (
	colorCyan      = "\033[36m"
	colorReset     = "\033[0m"
	colorYellow    = "\033[33m"
	colorBoldGreen = "\033[1;32m"
	colorBoldRed   = "\033[1;31m"
)

// WebServer handles the HTTP interface of the scenario tab.
type WebServer struct {
	address    string
	controller *tab.Controller
	loop       *tab.Loop
	publisher  *tab.Publisher
	db         *db.DB
	assetsHost string
	server     *http.Server
}

// Config contains the collaborators of the web server. DB and Publisher are
// optional; without a DB the saved view and render log routes answer 503.
type Config struct {
	Address    string
	Controller *tab.Controller
	Loop       *tab.Loop
	Publisher  *tab.Publisher
	DB         *db.DB
	AssetsHost string
}

// NewWebServer creates a web server with the provided configuration.
func NewWebServer(config Config) *WebServer {
	ws := &WebServer{
		address:    config.Address,
		controller: config.Controller,
		loop:       config.Loop,
		publisher:  config.Publisher,
		db:         config.DB,
		assetsHost: config.AssetsHost,
	}
	ws.server = &http.Server{
		Addr:              ws.address,
		Handler:           LoggingMiddleware(ws.setupRoutes()),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return ws
}

// Handler returns the routed handler, including request logging.
func (ws *WebServer) Handler() http.Handler {
	return ws.server.Handler
}

// Start serves until ctx is cancelled, then shuts the server down.
func (ws *WebServer) Start(ctx context.Context) error {
	lis, err := net.Listen("tcp", ws.address)
	if err != nil {
		return err
	}
	return ws.Serve(ctx, lis)
}

// Serve is Start on an existing listener.
func (ws *WebServer) Serve(ctx context.Context, lis net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		monitoring.Logf("[board] starting HTTP server on %s", lis.Addr())
		if err := ws.server.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	monitoring.Logf("[board] shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := ws.server.Shutdown(shutdownCtx); err != nil {
		monitoring.Logf("[board] HTTP server shutdown error: %v", err)
		if err := ws.server.Close(); err != nil {
			monitoring.Logf("[board] HTTP server force close error: %v", err)
		}
	}
	monitoring.Logf("[board] HTTP server routine stopped")
	return nil
}

func (ws *WebServer) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", ws.handleHealth)

	mux.HandleFunc("/api/experiments", ws.handleExperiments)
	mux.HandleFunc("/api/experiments/active", ws.handleActive)
	mux.HandleFunc("/api/selection", ws.handleSelection)
	mux.HandleFunc("/api/planners", ws.handlePlanners)
	mux.HandleFunc("/api/layout", ws.handleLayout)

	mux.HandleFunc("/scenario", ws.handleScenarioPage)
	mux.HandleFunc("/api/figures/png", ws.handleFigurePNG)
	mux.HandleFunc("/api/export.xlsx", ws.handleExport)

	mux.HandleFunc("/api/views", ws.handleViews)
	mux.HandleFunc("/api/views/apply", ws.handleApplyView)
	mux.HandleFunc("/api/renders", ws.handleRenders)

	if ws.db != nil {
		if err := ws.db.AttachAdminRoutes(mux); err != nil {
			monitoring.Logf("[board] failed to attach db admin routes: %v", err)
		}
	}
	return mux
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}
