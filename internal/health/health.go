// Package health serves the bot's liveness and readiness endpoints on the ops
// listener, next to the Prometheus metrics endpoint.
//
//   - /healthz answers 200 whenever the process can serve HTTP.
//   - /readyz answers 200 only while every registered [Checker] passes,
//     turning 503 when the Discord gateway or a provider dependency is
//     unhealthy.
//
// Bodies are JSON: a top-level "status" ("ok" or "fail") and, for /readyz,
// a "checks" map with one entry per checker.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// checkTimeout bounds a single readiness check. Checks reach out to remote
// dependencies, so a hung one must not stall the whole response.
const checkTimeout = 5 * time.Second

// Checker names one readiness dependency. Check returns nil while the
// dependency is usable and must respect context cancellation.
type Checker struct {
	// Name keys the check in the /readyz response ("discord_gateway",
	// "voice_link").
	Name string

	Check func(ctx context.Context) error
}

// statusBody is the JSON shape both endpoints emit.
type statusBody struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler answers the liveness and readiness endpoints. The checker list is
// fixed at construction, so it is safe for concurrent requests.
type Handler struct {
	checkers []Checker
}

// New builds a [Handler] evaluating checkers in the given order on every
// /readyz request.
func New(checkers ...Checker) *Handler {
	h := &Handler{checkers: make([]Checker, len(checkers))}
	copy(h.checkers, checkers)
	return h
}

// Register mounts the health routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

// Healthz is the liveness endpoint. Serving the request is the proof of life,
// so it never fails.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, statusBody{Status: "ok"})
}

// Readyz is the readiness endpoint: 200 with every check "ok", 503 as soon as
// one fails.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	checks, ready := h.runChecks(r.Context())

	body := statusBody{Status: "ok", Checks: checks}
	status := http.StatusOK
	if !ready {
		body.Status = "fail"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, body)
}

// runChecks evaluates every checker under its own timeout and reports
// whether all passed.
func (h *Handler) runChecks(ctx context.Context) (map[string]string, bool) {
	checks := make(map[string]string, len(h.checkers))
	ready := true

	for _, c := range h.checkers {
		checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
		err := c.Check(checkCtx)
		cancel()

		if err != nil {
			checks[c.Name] = "fail: " + err.Error()
			ready = false
			continue
		}
		checks[c.Name] = "ok"
	}
	return checks, ready
}

func writeJSON(w http.ResponseWriter, status int, body statusBody) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
