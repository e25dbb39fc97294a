// Package api serves stored detection runs over HTTP and accepts new runs.
package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/chrissnell/gnsschange/internal/detector"
	"github.com/chrissnell/gnsschange/internal/log"
	"github.com/chrissnell/gnsschange/internal/store"
	"github.com/chrissnell/gnsschange/pkg/config"
)

// Controller owns the HTTP server of the results API
type Controller struct {
	ctx      context.Context
	wg       *sync.WaitGroup
	cfg      config.ServerConfig
	Server   http.Server
	logger   *zap.SugaredLogger
	handlers *Handlers
}

// NewController creates the API controller and its router
func NewController(ctx context.Context, wg *sync.WaitGroup, c *config.Config, s *store.Store, det *detector.Detector, logger *zap.SugaredLogger) (*Controller, error) {
	if c == nil || s == nil || det == nil {
		return nil, fmt.Errorf("api controller needs a store and a detector")
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	ctrl := &Controller{
		ctx:    ctx,
		wg:     wg,
		cfg:    c.Server,
		logger: logger,
	}

	// Set default values
	if ctrl.cfg.Port == 0 {
		logger.Info("API port not specified; defaulting to 8080")
		ctrl.cfg.Port = 8080
	}

	ctrl.handlers = NewHandlers(s, det, c.Simulation, c.Server.MaxPoints, logger)

	ctrl.Server.Addr = fmt.Sprintf("%v:%v", ctrl.cfg.ListenAddr, ctrl.cfg.Port)
	ctrl.Server.Handler = ctrl.Router()
	ctrl.Server.ReadTimeout = c.Server.ReadTimeout
	ctrl.Server.WriteTimeout = c.Server.WriteTimeout

	return ctrl, nil
}

// StartController starts the API server and shuts it down when the
// controller context ends
func (c *Controller) StartController() error {
	log.Info("Starting results API controller...")
	c.wg.Add(1)

	go func() {
		defer c.wg.Done()

		c.logger.Infof("Results API server starting on %s", c.Server.Addr)

		var err error
		if c.cfg.Cert != "" && c.cfg.Key != "" {
			c.logger.Info("Starting results API server with TLS")
			err = c.Server.ListenAndServeTLS(c.cfg.Cert, c.cfg.Key)
		} else {
			c.logger.Info("Starting results API server without TLS")
			err = c.Server.ListenAndServe()
		}

		if err != http.ErrServerClosed {
			log.Errorf("Results API server error: %v", err)
		}
	}()

	go func() {
		<-c.ctx.Done()
		log.Info("Shutting down the results API server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		c.Server.Shutdown(shutdownCtx)
	}()

	return nil
}

// Router builds the HTTP routes
func (c *Controller) Router() *mux.Router {
	router := mux.NewRouter()
	router.Use(c.loggingMiddleware)
	router.Use(c.corsMiddleware)

	router.HandleFunc("/healthz", c.handlers.Health).Methods("GET")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/runs", c.handlers.ListRuns).Methods("GET")
	api.HandleFunc("/runs", c.handlers.CreateRun).Methods("POST")
	api.HandleFunc("/runs/{id}", c.handlers.GetRun).Methods("GET")
	api.HandleFunc("/runs/{id}", c.handlers.DeleteRun).Methods("DELETE")
	api.HandleFunc("/runs/{id}/axes/{axis}/trace", c.handlers.GetTrace).Methods("GET")
	api.HandleFunc("/requests", c.handlers.GetRequestLog).Methods("GET")

	return router
}

// statusRecorder captures the status and size written by a handler
type statusRecorder struct {
	http.ResponseWriter
	status int
	size   int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(b)
	r.size += n
	return n, err
}

// loggingMiddleware records every request except the metrics scrape
func (c *Controller) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)

		if r.URL.Path == "/metrics" {
			return
		}
		var err error
		if rec.status >= http.StatusInternalServerError {
			err = fmt.Errorf("status %d", rec.status)
		}
		log.LogHTTPRequest(r.Method, r.URL.Path, rec.status, time.Since(start), rec.size, r.RemoteAddr, r.UserAgent(), err)
	})
}

// corsMiddleware adds CORS headers
func (c *Controller) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
