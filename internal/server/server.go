// File: internal/server/server.go
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/polymarket-trade-monitor/internal/config"
	"github.com/smartdevs17/polymarket-trade-monitor/internal/metrics"
	"github.com/smartdevs17/polymarket-trade-monitor/internal/models"
	"github.com/smartdevs17/polymarket-trade-monitor/internal/monitor"
	"github.com/smartdevs17/polymarket-trade-monitor/internal/storage"
	"github.com/smartdevs17/polymarket-trade-monitor/pkg/utils"
)

// HTTPServer exposes the read-side of the pipeline: positions, trades,
// market metadata, copy-order intents, and monitor status. The only
// write is the copy-order status update the external executor reports
// back through.
type HTTPServer struct {
	config         *config.ServerConfig
	server         *http.Server
	router         *mux.Router
	storage        storage.Storage
	monitor        monitor.Monitor
	metricsManager *metrics.Manager
	logger         *logrus.Logger
	version        string

	stopChan chan struct{}
	stopOnce sync.Once
}

// apiResponse is the envelope for every JSON reply.
type apiResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// NewHTTPServer creates the API server over the given storage and monitor.
func NewHTTPServer(
	cfg *config.ServerConfig,
	version string,
	store storage.Storage,
	mon monitor.Monitor,
	metricsManager *metrics.Manager,
) (*HTTPServer, error) {

	server := &HTTPServer{
		config:         cfg,
		storage:        store,
		monitor:        mon,
		metricsManager: metricsManager,
		logger:         utils.GetLogger(),
		version:        version,
		stopChan:       make(chan struct{}),
	}

	server.setupRouter()

	server.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      server.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return server, nil
}

// setupRouter sets up the HTTP routes
func (s *HTTPServer) setupRouter() {
	s.router = mux.NewRouter()

	// Middleware
	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.corsMiddleware)
	if s.metricsManager != nil {
		s.router.Use(s.metricsMiddleware)
	}

	if s.config.EnableHealth {
		s.router.HandleFunc("/health", s.healthHandler).Methods("GET")
	}
	if s.config.EnableMetrics {
		s.router.Handle("/metrics", promhttp.Handler())
	}

	// API routes
	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/status", s.statusHandler).Methods("GET")
	api.HandleFunc("/positions", s.positionsHandler).Methods("GET")
	api.HandleFunc("/trades", s.tradesHandler).Methods("GET")
	api.HandleFunc("/markets/{tokenId}", s.marketHandler).Methods("GET")
	api.HandleFunc("/orders", s.listOrdersHandler).Methods("GET")
	api.HandleFunc("/orders/{id}", s.updateOrderHandler).Methods("PATCH")
	api.HandleFunc("/stats", s.statsHandler).Methods("GET")
}

// Start starts the HTTP server
func (s *HTTPServer) Start() error {
	s.logger.WithFields(logrus.Fields{
		"address":         s.server.Addr,
		"metrics_enabled": s.config.EnableMetrics,
	}).Info("Starting HTTP server")

	// Seed the gauges so the first scrape is not empty.
	if s.metricsManager != nil {
		s.updateComponentMetrics()
		go s.systemMetricsUpdater()
	}

	errChan := make(chan error, 1)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.WithError(err).Error("HTTP server error")
			errChan <- err
		}
	}()

	// Give the server a moment to surface immediate binding errors.
	select {
	case err := <-errChan:
		return fmt.Errorf("failed to start HTTP server: %w", err)
	case <-time.After(100 * time.Millisecond):
		return nil
	}
}

// Stop stops the HTTP server
func (s *HTTPServer) Stop() error {
	s.logger.Info("Stopping HTTP server")

	s.stopOnce.Do(func() {
		close(s.stopChan)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}

// systemMetricsUpdater refreshes system and component gauges periodically.
func (s *HTTPServer) systemMetricsUpdater() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.updateComponentMetrics()
		}
	}
}

func (s *HTTPServer) updateComponentMetrics() {
	s.metricsManager.UpdateSystemMetrics()

	prom := s.metricsManager.GetPrometheusMetrics()
	prom.UpdateComponentHealth("storage", s.storage.Ping() == nil)
	if s.monitor != nil {
		health := s.monitor.GetHealth()
		prom.UpdateComponentHealth("monitor", health.Healthy)
		prom.UpdateComponentHealth("rpc", health.ConnectionHealthy)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	positions, err := s.storage.GetPositions(ctx, models.PositionFilter{})
	if err != nil {
		s.logger.WithError(err).Debug("Failed to refresh ledger gauges")
		return
	}
	s.metricsManager.UpdateLedgerMetrics(positions)
}

// Middleware

// loggingMiddleware logs HTTP requests
func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		next.ServeHTTP(w, r)

		s.logger.WithFields(logrus.Fields{
			"method":    r.Method,
			"path":      r.URL.Path,
			"duration":  time.Since(start).String(),
			"remote_ip": r.RemoteAddr,
		}).Debug("HTTP request")
	})
}

// corsMiddleware handles CORS
func (s *HTTPServer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, PATCH, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Handlers

// healthHandler returns liveness and per-component health.
func (s *HTTPServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	components := map[string]bool{
		"storage": s.storage.Ping() == nil,
	}
	if s.monitor != nil {
		health := s.monitor.GetHealth()
		components["monitor"] = health.Healthy
		components["rpc"] = health.ConnectionHealthy
	}

	healthy := true
	for _, ok := range components {
		if !ok {
			healthy = false
			break
		}
	}

	status := "healthy"
	code := http.StatusOK
	if !healthy {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	s.writeJSON(w, code, map[string]interface{}{
		"status":     status,
		"version":    s.version,
		"components": components,
	})
}

// statusHandler returns the monitor's cursor, chain head, and lag.
func (s *HTTPServer) statusHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"running": s.monitor.IsRunning(),
		"monitor": s.monitor.GetStats(),
	})
}

// positionsHandler queries the position ledger.
func (s *HTTPServer) positionsHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := models.PositionFilter{Limit: 100}

	if v := q.Get("address"); v != "" {
		if !utils.IsValidAddress(v) {
			s.writeError(w, http.StatusBadRequest, "Invalid address", nil)
			return
		}
		addr := utils.NormalizeAddress(v)
		filter.Address = &addr
	}
	if v := q.Get("token_id"); v != "" {
		filter.TokenID = &v
	}
	if v := q.Get("status"); v != "" {
		filter.Status = &v
	}
	if v := q.Get("active"); v != "" {
		active, err := strconv.ParseBool(v)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "Invalid active flag", err)
			return
		}
		filter.Active = &active
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			filter.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			filter.Offset = n
		}
	}

	positions, err := s.storage.GetPositions(r.Context(), filter)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to retrieve positions", err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"positions": positions,
		"total":     len(positions),
		"limit":     filter.Limit,
		"offset":    filter.Offset,
	})
}

// tradesHandler queries persisted trades.
func (s *HTTPServer) tradesHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := models.TradeFilter{Limit: 50}

	if v := q.Get("address"); v != "" {
		if !utils.IsValidAddress(v) {
			s.writeError(w, http.StatusBadRequest, "Invalid address", nil)
			return
		}
		addr := utils.NormalizeAddress(v)
		filter.Address = &addr
	}
	if v := q.Get("token_id"); v != "" {
		filter.TokenID = &v
	}
	if v := q.Get("side"); v != "" {
		filter.Side = &v
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			filter.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			filter.Offset = n
		}
	}

	trades, err := s.storage.GetTrades(r.Context(), filter)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to retrieve trades", err)
		return
	}

	total, err := s.storage.GetTradeCount(r.Context(), filter)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to count trades", err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"trades": trades,
		"total":  total,
		"limit":  filter.Limit,
		"offset": filter.Offset,
	})
}

// marketHandler looks up cached metadata for one token.
func (s *HTTPServer) marketHandler(w http.ResponseWriter, r *http.Request) {
	tokenID := mux.Vars(r)["tokenId"]

	market, err := s.storage.GetMarketByToken(r.Context(), tokenID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to retrieve market", err)
		return
	}
	if market == nil {
		s.writeError(w, http.StatusNotFound, "Market not found", nil)
		return
	}

	s.writeJSON(w, http.StatusOK, market)
}

// listOrdersHandler lists copy-order intents, newest first. The external
// executor polls this with status=pending.
func (s *HTTPServer) listOrdersHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var status *string
	if v := q.Get("status"); v != "" {
		status = &v
	}

	limit := 50
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	orders, err := s.storage.GetCopyOrders(r.Context(), status, limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to retrieve copy orders", err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"orders": orders,
		"total":  len(orders),
	})
}

// updateOrderHandler records the executor's outcome for a copy order.
func (s *HTTPServer) updateOrderHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var request struct {
		Status       string  `json:"status"`
		OrderID      *string `json:"order_id"`
		ErrorMessage *string `json:"error_message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	switch request.Status {
	case models.CopyOrderPending, models.CopyOrderExecuted, models.CopyOrderFailed, models.CopyOrderSkipped:
	default:
		s.writeError(w, http.StatusBadRequest, "Unknown order status", nil)
		return
	}

	if err := s.storage.UpdateCopyOrderStatus(r.Context(), id, request.Status, request.OrderID, request.ErrorMessage); err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to update copy order", err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":     id,
		"status": request.Status,
	})
}

// statsHandler returns aggregate storage and monitor statistics.
func (s *HTTPServer) statsHandler(w http.ResponseWriter, r *http.Request) {
	storageStats, err := s.storage.GetStorageStats()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to retrieve storage stats", err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"storage": storageStats,
		"monitor": s.monitor.GetStats(),
	})
}

// Utility Methods

// writeJSON writes a JSON response in the standard envelope
func (s *HTTPServer) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	response := apiResponse{
		Success:   status < http.StatusBadRequest,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		s.logger.WithError(err).Error("Failed to encode JSON response")
	}
}

// writeError writes an error response
func (s *HTTPServer) writeError(w http.ResponseWriter, status int, message string, err error) {
	if err != nil {
		message = fmt.Sprintf("%s: %s", message, err.Error())
		s.logger.WithError(err).WithField("status", status).Error(message)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	response := apiResponse{
		Success:   false,
		Error:     message,
		Timestamp: time.Now().UTC(),
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		s.logger.WithError(err).Error("Failed to encode JSON response")
	}
}
