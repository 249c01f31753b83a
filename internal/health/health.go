// Package health provides HTTP liveness and readiness handlers for the
// FluentSpeak server.
//
//   - /healthz — liveness probe; always returns 200 OK while the process
//     can serve HTTP.
//   - /readyz  — readiness probe; returns 200 only when every registered
//     [Checker] passes.
//
// Responses are JSON objects carrying the service name, a top-level "status"
// field ("ok" or "fail"), the process uptime, and a "checks" map with the
// result of each named checker.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// checkTimeout bounds a single readiness check.
const checkTimeout = 5 * time.Second

// Checker is a named health check. Check returns nil when the dependency is
// healthy and an error describing the failure otherwise. It must respect
// context cancellation.
type Checker struct {
	// Name labels this check (e.g. "progress", "recognition") and appears
	// as a key in the JSON response.
	Name string

	Check func(ctx context.Context) error
}

// result is the JSON response body for health endpoints.
type result struct {
	Service string            `json:"service"`
	Status  string            `json:"status"`
	Uptime  string            `json:"uptime"`
	Checks  map[string]string `json:"checks,omitempty"`
}

// Handler serves the /healthz and /readyz endpoints. Safe for concurrent
// use; the checker list is fixed at construction time.
type Handler struct {
	service  string
	started  time.Time
	checkers []Checker
}

// New creates a [Handler] for the named service that evaluates the given
// checkers, in order, on each /readyz request.
func New(service string, checkers ...Checker) *Handler {
	c := make([]Checker, len(checkers))
	copy(c, checkers)
	return &Handler{service: service, started: time.Now(), checkers: c}
}

// Healthz is the liveness probe; it always returns 200 OK.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.result("ok", nil))
}

// Readyz is the readiness probe; it returns 200 only when every registered
// [Checker] passes. Each checker runs with a [checkTimeout] deadline derived
// from the request context.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string, len(h.checkers))
	status := "ok"
	code := http.StatusOK

	for _, c := range h.checkers {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		err := c.Check(ctx)
		cancel()

		if err != nil {
			checks[c.Name] = "fail: " + err.Error()
			status = "fail"
			code = http.StatusServiceUnavailable
		} else {
			checks[c.Name] = "ok"
		}
	}

	writeJSON(w, code, h.result(status, checks))
}

// Register adds the /healthz and /readyz routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func (h *Handler) result(status string, checks map[string]string) result {
	return result{
		Service: h.service,
		Status:  status,
		Uptime:  time.Since(h.started).Round(time.Second).String(),
		Checks:  checks,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
