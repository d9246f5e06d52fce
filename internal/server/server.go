package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/raysh454/flipradar/internal/app"
	"github.com/raysh454/flipradar/internal/logging"
	"github.com/raysh454/flipradar/internal/metrics"
	"github.com/raysh454/flipradar/internal/model"
	"github.com/raysh454/flipradar/internal/notify"
)

const requestIDHeader = "X-Request-ID"

// Server is the HTTP + WebSocket API surface for flipradar.
type Server struct {
	cfg    Config
	svc    *app.Service
	hub    *notify.Hub
	router chi.Router
	logger logging.Logger
	now    func() time.Time
}

// NewServer builds the router around svc. hub may be nil, in which case the
// WebSocket endpoint is not mounted.
func NewServer(cfg Config, svc *app.Service, hub *notify.Hub) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewStdoutLogger("server")
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 15 * time.Second
	}

	s := &Server{
		cfg:    cfg,
		svc:    svc,
		hub:    hub,
		router: chi.NewRouter(),
		logger: logger,
		now:    time.Now,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router

	r.Use(s.corsMiddleware)
	r.Use(s.instrument)
	r.Use(s.recoverer)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	// CORS preflight
	r.Options("/api/opportunities", s.optionsHandler("GET"))
	r.Options("/api/opportunities/{id}", s.optionsHandler("GET"))
	r.Options("/api/opportunities/scan", s.optionsHandler("POST"))
	r.Options("/api/opportunities/scan/{jobID}", s.optionsHandler("GET"))
	r.Options("/api/opportunities/stats/summary", s.optionsHandler("GET"))
	r.Options("/api/purchase/approve", s.optionsHandler("POST"))
	r.Options("/api/scan/status", s.optionsHandler("GET"))
	r.Options("/api/scan/trigger", s.optionsHandler("POST"))
	r.Options("/api/scan/jobs", s.optionsHandler("GET"))
	r.Options("/api/stats/daily", s.optionsHandler("GET"))
	r.Options("/api/stats/performance", s.optionsHandler("GET"))
	r.Options("/api/health", s.optionsHandler("GET"))

	// Opportunities
	r.Get("/api/opportunities", s.handleListOpportunities)
	r.Get("/api/opportunities/{id}", s.handleGetOpportunity)
	r.Get("/api/opportunities/stats/summary", s.handleStatsSummary)

	// Scans
	r.Post("/api/opportunities/scan", s.handleTriggerScan)
	// Without this, GET falls through to /api/opportunities/{id}.
	r.Get("/api/opportunities/scan", s.methodNotAllowed("POST"))
	r.Get("/api/opportunities/scan/{jobID}", s.handleGetScanJob)
	r.Post("/api/scan/trigger", s.handleTriggerScan)
	r.Get("/api/scan/status", s.handleScanStatus)
	r.Get("/api/scan/jobs", s.handleListScanJobs)

	// Purchases
	r.Post("/api/purchase/approve", s.handleApprovePurchase)

	// Dashboard stats
	r.Get("/api/stats/daily", s.handleDailyStats)
	r.Get("/api/stats/performance", s.handlePerformance)

	r.Get("/api/health", s.handleHealth)

	if s.hub != nil {
		r.Get("/ws/opportunities", s.hub.ServeWS)
	}
	if s.cfg.Metrics {
		metrics.MustRegister()
		r.Method(http.MethodGet, "/metrics", metrics.Handler())
	}
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		next.ServeHTTP(w, r)
	})
}

func (s *Server) optionsHandler(methods string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Methods", methods+", OPTIONS")
		w.WriteHeader(http.StatusOK)
	}
}

func (s *Server) methodNotAllowed(allowed string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Allow", allowed+", OPTIONS")
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// instrument tags every request with an id, logs it and records it under
// its route pattern, so /api/opportunities/{id} is one series rather than
// one per id.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqID := r.Header.Get(requestIDHeader)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, reqID)
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := time.Since(start)

		route := ""
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			route = rctx.RoutePattern()
		}
		metrics.ObserveHTTP(r.Method, route, status, elapsed)

		fields := []logging.Field{
			{Key: "request_id", Value: reqID},
			{Key: "method", Value: r.Method},
			{Key: "path", Value: r.URL.Path},
			{Key: "status", Value: status},
			{Key: "duration_ms", Value: elapsed.Milliseconds()},
		}
		if q := r.URL.RawQuery; q != "" {
			fields = append(fields, logging.Field{Key: "query", Value: q})
		}
		s.logger.Info("http_request", fields...)
	})
}

func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				s.logger.Error("panic serving request",
					logging.Field{Key: "path", Value: r.URL.Path},
					logging.Field{Key: "panic", Value: fmt.Sprint(rec)})
				writeError(w, http.StatusInternalServerError, "internal error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// HTTPServer creates an *http.Server ready to ListenAndServe.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:         s.cfg.ListenAddr,
		Handler:      s,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: 0, // allow streaming
	}
}

// --- JSON helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrMethodNotAllowed):
		return http.StatusMethodNotAllowed
	case errors.Is(err, model.ErrAlreadyExists), errors.Is(err, model.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, model.ErrUpstreamUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// fail logs err and writes the mapped error response. Unclassified errors
// are not echoed to the client.
func (s *Server) fail(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
		s.logger.Error(op, logging.Field{Key: "error", Value: err.Error()})
	} else {
		s.logger.Warn(op, logging.Field{Key: "error", Value: err.Error()}, logging.Field{Key: "status", Value: status})
	}
	writeError(w, status, msg)
}

// decodeBody decodes an optional JSON body into v. An empty body leaves v
// untouched.
func decodeBody(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return fmt.Errorf("%w: invalid JSON body", model.ErrInvalidArgument)
}

func parseLimit(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("%w: limit must be a positive integer", model.ErrInvalidArgument)
	}
	return v, nil
}

func parseFilter(r *http.Request) (model.Filter, error) {
	q := r.URL.Query()
	f := model.Filter{Category: q.Get("category")}

	limit, err := parseLimit(q.Get("limit"))
	if err != nil {
		return f, err
	}
	f.Limit = limit

	if raw := q.Get("min_profit"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return f, fmt.Errorf("%w: min_profit must be a number", model.ErrInvalidArgument)
		}
		f.MinProfit = &v
	}
	return f, nil
}

// --- HTTP handlers ---

// Opportunities

// handleListOpportunities godoc
// @Summary List opportunities
// @Description Ordered by estimated profit, then newest first.
// @Tags opportunities
// @Produce json
// @Param category query string false "Category, or all"
// @Param min_profit query number false "Minimum estimated profit"
// @Param limit query int false "Maximum results"
// @Success 200 {array} model.Opportunity
// @Failure 400 {object} ErrorResponse
// @Router /api/opportunities [get]
func (s *Server) handleListOpportunities(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		s.fail(w, "parsing opportunity filter", err)
		return
	}

	opps, err := s.svc.ListOpportunities(r.Context(), f)
	if err != nil {
		s.fail(w, "listing opportunities", err)
		return
	}
	if opps == nil {
		opps = []model.Opportunity{}
	}
	s.logger.Debug("listed opportunities", logging.Field{Key: "count", Value: len(opps)})
	writeJSON(w, http.StatusOK, opps)
}

// @Summary Get an opportunity
// @Tags opportunities
// @Produce json
// @Param id path string true "Opportunity ID"
// @Success 200 {object} model.Opportunity
// @Failure 404 {object} ErrorResponse
// @Router /api/opportunities/{id} [get]
func (s *Server) handleGetOpportunity(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	o, err := s.svc.GetOpportunity(r.Context(), id)
	if err != nil {
		s.fail(w, "getting opportunity", err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// @Summary Summary statistics
// @Tags stats
// @Produce json
// @Success 200 {object} model.Stats
// @Router /api/opportunities/stats/summary [get]
func (s *Server) handleStatsSummary(w http.ResponseWriter, r *http.Request) {
	st, err := s.svc.GetStatsSummary(r.Context())
	if err != nil {
		s.fail(w, "computing stats", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// @Summary Statistics for the current UTC day
// @Tags stats
// @Produce json
// @Success 200 {object} model.DailyStats
// @Router /api/stats/daily [get]
func (s *Server) handleDailyStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.svc.GetDailyStats(r.Context())
	if err != nil {
		s.fail(w, "computing daily stats", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// @Summary All-time approval funnel
// @Tags stats
// @Produce json
// @Success 200 {object} model.Performance
// @Router /api/stats/performance [get]
func (s *Server) handlePerformance(w http.ResponseWriter, r *http.Request) {
	p, err := s.svc.GetPerformance(r.Context())
	if err != nil {
		s.fail(w, "computing performance", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// Scans

// handleTriggerScan godoc
// @Summary Queue a scan
// @Description Returns immediately with the new job id. An empty body scans all categories.
// @Tags scans
// @Accept json
// @Produce json
// @Param request body ScanRequest false "Category to scan"
// @Success 202 {object} ScanQueuedResponse
// @Failure 400 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /api/opportunities/scan [post]
// @Router /api/scan/trigger [post]
func (s *Server) handleTriggerScan(w http.ResponseWriter, r *http.Request) {
	var body ScanRequest
	if err := decodeBody(r, &body); err != nil {
		s.fail(w, "decoding scan body", err)
		return
	}

	job, err := s.svc.TriggerScan(r.Context(), model.ScanRequest{Category: body.Category})
	if err != nil {
		s.fail(w, "triggering scan", err)
		return
	}

	msg := "Scan queued for all categories"
	if job.Category != model.AllCategories {
		msg = "Scan queued for " + job.Category
	}
	s.logger.Info("queued scan", logging.Field{Key: "job_id", Value: job.ID}, logging.Field{Key: "category", Value: job.Category})
	writeJSON(w, http.StatusAccepted, ScanQueuedResponse{
		Status:  string(job.Status),
		JobID:   job.ID,
		Message: msg,
	})
}

// @Summary Get a scan job
// @Tags scans
// @Produce json
// @Param jobID path string true "Job ID"
// @Success 200 {object} model.ScanJob
// @Failure 404 {object} ErrorResponse
// @Router /api/opportunities/scan/{jobID} [get]
func (s *Server) handleGetScanJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	job, err := s.svc.GetScanJob(r.Context(), jobID)
	if err != nil {
		s.fail(w, "getting scan job", err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// @Summary Recent scan jobs
// @Tags scans
// @Produce json
// @Param limit query int false "Maximum results"
// @Success 200 {array} model.ScanJob
// @Router /api/scan/jobs [get]
func (s *Server) handleListScanJobs(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		s.fail(w, "parsing scan job limit", err)
		return
	}

	jobs, err := s.svc.ListScanJobs(r.Context(), limit)
	if err != nil {
		s.fail(w, "listing scan jobs", err)
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

// @Summary Scanning activity
// @Tags scans
// @Produce json
// @Success 200 {object} app.ScanStatus
// @Router /api/scan/status [get]
func (s *Server) handleScanStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.svc.ScanStatus(r.Context())
	if err != nil {
		s.fail(w, "reading scan status", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// Purchases

// handleApprovePurchase godoc
// @Summary Approve a purchase
// @Description Approving the same opportunity again returns the first approval.
// @Tags purchases
// @Accept json
// @Produce json
// @Param request body ApproveRequest true "Opportunity to approve"
// @Success 200 {object} ApproveResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/purchase/approve [post]
func (s *Server) handleApprovePurchase(w http.ResponseWriter, r *http.Request) {
	var body ApproveRequest
	if err := decodeBody(r, &body); err != nil {
		s.fail(w, "decoding approve body", err)
		return
	}
	if strings.TrimSpace(body.OpportunityID) == "" {
		s.fail(w, "approving purchase", fmt.Errorf("%w: opportunity_id is required", model.ErrInvalidArgument))
		return
	}

	p, err := s.svc.ApprovePurchase(r.Context(), body.OpportunityID)
	if err != nil {
		s.fail(w, "approving purchase", err)
		return
	}
	writeJSON(w, http.StatusOK, ApproveResponse{
		Status:        "approved",
		OpportunityID: p.OpportunityID,
		Message:       "Purchase approved",
		Timestamp:     p.ApprovedAt,
	})
}

// @Summary Health check
// @Tags health
// @Produce json
// @Success 200 {object} HealthResponse
// @Failure 503 {object} HealthResponse
// @Router /api/health [get]
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:    "healthy",
		Service:   app.ServiceName,
		Version:   app.Version,
		Timestamp: s.now().UTC(),
	}
	if err := s.svc.Ping(r.Context()); err != nil {
		s.logger.Warn("health check", logging.Field{Key: "error", Value: err.Error()})
		resp.Status = "unhealthy"
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
