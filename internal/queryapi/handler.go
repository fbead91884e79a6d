// Package queryapi serves the engine and the snapshot builders over a
// read-only HTTP API.
package queryapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/plexsphere/pcpmon/internal/api"
	"github.com/plexsphere/pcpmon/internal/metrics"
	"github.com/plexsphere/pcpmon/internal/snapshot"
)

// Engine is the subset of *metrics.Engine served by the API.
type Engine interface {
	Query(ctx context.Context, host string, names []string) (*metrics.QueryResult, error)
	Rates(ctx context.Context, host string, names []string, interval time.Duration) (*metrics.RateReport, error)
	Search(ctx context.Context, host, pattern string) ([]metrics.Descriptor, error)
	Describe(ctx context.Context, host, name string) (metrics.Descriptor, error)
	Namespaces(ctx context.Context, host string) (*metrics.NamespaceReport, error)
	Ping(ctx context.Context, host string) error
}

// Snapshots is the subset of *snapshot.Builder served by the API.
type Snapshots interface {
	Take(ctx context.Context, host string, categories []string, interval time.Duration) (*snapshot.Snapshot, error)
	NetworkStats(ctx context.Context, host string, interval time.Duration) (*snapshot.NetworkStats, error)
	Top(ctx context.Context, host, sortBy string, limit int, interval time.Duration) (*snapshot.ProcessTop, error)
}

// Handler provides the HTTP handlers of the query API.
type Handler struct {
	engine    Engine
	snapshots Snapshots
	logger    *slog.Logger
}

// NewHandler creates a new Handler.
func NewHandler(engine Engine, snapshots Snapshots, logger *slog.Logger) *Handler {
	return &Handler{
		engine:    engine,
		snapshots: snapshots,
		logger:    logger.With("component", "queryapi"),
	}
}

// Router returns a router with all query API routes and the request ID and
// access log middleware installed.
func (h *Handler) Router() *mux.Router {
	router := mux.NewRouter()
	router.Use(RequestIDMiddleware, accessLogMiddleware(h.logger))
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})

	v1 := router.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/healthz", h.handleHealthz).Methods(http.MethodGet)
	v1.HandleFunc("/metrics", h.handleQuery).Methods(http.MethodGet)
	v1.HandleFunc("/metrics/search", h.handleSearch).Methods(http.MethodGet)
	v1.HandleFunc("/metrics/describe/{name}", h.handleDescribe).Methods(http.MethodGet)
	v1.HandleFunc("/namespaces", h.handleNamespaces).Methods(http.MethodGet)
	v1.HandleFunc("/rates", h.handleRates).Methods(http.MethodGet)
	v1.HandleFunc("/snapshot", h.handleSnapshot).Methods(http.MethodGet)
	v1.HandleFunc("/netstat", h.handleNetworkStats).Methods(http.MethodGet)
	v1.HandleFunc("/processes", h.handleProcesses).Methods(http.MethodGet)
	return router
}

// RateResponse is the response for GET /v1/rates.
type RateResponse struct {
	Host           string                     `json:"host"`
	Interval       float64                    `json:"interval_seconds"`
	Elapsed        float64                    `json:"elapsed_seconds"`
	CapturedAt     time.Time                  `json:"captured_at"`
	Results        []metrics.RateResult       `json:"results"`
	Missing        []metrics.MetricAnnotation `json:"missing,omitempty"`
	RequestedNames []string                   `json:"requested"`
}

type healthResponse struct {
	Status string `json:"status"`
	Host   string `json:"host,omitempty"`
	Error  string `json:"error,omitempty"`
}

func (h *Handler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	host := r.URL.Query().Get("host")
	if err := h.engine.Ping(r.Context(), host); err != nil {
		writeJSON(w, statusFor(err), healthResponse{Status: "unavailable", Host: host, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Host: host})
}

func (h *Handler) handleQuery(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	res, err := h.engine.Query(r.Context(), q.Get("host"), splitList(q["names"]))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	res, err := h.engine.Search(r.Context(), q.Get("host"), q.Get("pattern"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"metrics": res})
}

func (h *Handler) handleDescribe(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	d, err := h.engine.Describe(r.Context(), r.URL.Query().Get("host"), name)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *Handler) handleNamespaces(w http.ResponseWriter, r *http.Request) {
	rep, err := h.engine.Namespaces(r.Context(), r.URL.Query().Get("host"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (h *Handler) handleRates(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	interval, err := parseInterval(q.Get("interval"), snapshot.DefaultSampleInterval)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	names := splitList(q["names"])
	rep, err := h.engine.Rates(r.Context(), q.Get("host"), names, interval)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, RateResponse{
		Host:           rep.Host,
		Interval:       rep.Interval.Seconds(),
		Elapsed:        rep.Elapsed.Seconds(),
		CapturedAt:     rep.CapturedAt,
		Results:        rep.Results,
		Missing:        rep.Missing,
		RequestedNames: names,
	})
}

func (h *Handler) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	interval, err := parseInterval(q.Get("interval"), snapshot.DefaultSampleInterval)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	snap, err := h.snapshots.Take(r.Context(), q.Get("host"), splitList(q["categories"]), interval)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *Handler) handleNetworkStats(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	interval, err := parseInterval(q.Get("interval"), snapshot.DefaultSampleInterval)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	stats, err := h.snapshots.NetworkStats(r.Context(), q.Get("host"), interval)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) handleProcesses(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	interval, err := parseInterval(q.Get("interval"), snapshot.DefaultSampleInterval)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	sortBy := q.Get("sort")
	if sortBy == "" {
		sortBy = snapshot.SortCPU
	}
	limit := snapshot.DefaultProcessLimit
	if s := q.Get("limit"); s != "" {
		if limit, err = strconv.Atoi(s); err != nil {
			h.fail(w, r, metrics.InvalidParameter("limit", "%q is not an integer", s))
			return
		}
	}
	top, err := h.snapshots.Top(r.Context(), q.Get("host"), sortBy, limit, interval)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, top)
}

// fail writes the error response for err, logging server-side failures.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Warn("request failed",
			"path", r.URL.Path,
			"status", status,
			"request_id", RequestID(r.Context()),
			"error", err,
		)
	}
	writeError(w, status, err.Error())
}

// statusFor maps engine errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, metrics.ErrInvalidParameter):
		return http.StatusBadRequest
	case errors.Is(err, metrics.ErrUnknownMetric):
		return http.StatusNotFound
	case errors.Is(err, metrics.ErrRateCalculation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, api.ErrConnectivity):
		return http.StatusBadGateway
	}
	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// parseInterval accepts seconds ("1.5") or a Go duration ("1500ms").
func parseInterval(s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, metrics.InvalidParameter("interval", "%q is neither seconds nor a duration", s)
	}
	return d, nil
}

// splitList flattens repeated and comma-separated query values.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
