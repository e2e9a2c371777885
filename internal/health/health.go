// Package health serves the client's liveness and readiness probes.
//
// GET /healthz answers 200 whenever the admin server can serve HTTP.
// GET /readyz answers 200 only while every registered [Check] passes; orbtalk
// registers a [StateCheck] over the voice session, so readiness means "a
// conversation is live".
//
// Both answer with a JSON [Report].
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultTimeout bounds a single readiness check.
const DefaultTimeout = 2 * time.Second

const (
	statusOK   = "ok"
	statusFail = "fail"
)

// Check probes one dependency. It returns nil when healthy and must honour
// ctx.
type Check func(ctx context.Context) error

// StateCheck passes while state() returns one of want.
func StateCheck(state func() string, want ...string) Check {
	return func(context.Context) error {
		if got := state(); !slices.Contains(want, got) {
			return fmt.Errorf("state %s", got)
		}
		return nil
	}
}

// Report is the JSON body of both probes.
type Report struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// OK reports whether every check passed.
func (r Report) OK() bool { return r.Status == statusOK }

// Option configures a [Handler].
type Option func(*Handler)

// WithCheck registers c under name. Registering a name twice replaces the
// earlier check.
func WithCheck(name string, c Check) Option {
	return func(h *Handler) {
		if _, dup := h.checks[name]; !dup {
			h.names = append(h.names, name)
		}
		h.checks[name] = c
	}
}

// WithTimeout bounds each check. Non-positive values keep [DefaultTimeout].
func WithTimeout(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.timeout = d
		}
	}
}

// Handler evaluates the registered checks. The set is fixed by [New].
type Handler struct {
	names   []string
	checks  map[string]Check
	timeout time.Duration
}

// New returns a handler with the given checks.
func New(opts ...Option) *Handler {
	h := &Handler{checks: make(map[string]Check), timeout: DefaultTimeout}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Evaluate runs every check concurrently and collects the results.
func (h *Handler) Evaluate(ctx context.Context) Report {
	rep := Report{Status: statusOK}
	if len(h.names) == 0 {
		return rep
	}
	rep.Checks = make(map[string]string, len(h.names))

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	for _, name := range h.names {
		check := h.checks[name]
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, h.timeout)
			defer cancel()
			res := statusOK
			if err := check(cctx); err != nil {
				res = statusFail + ": " + err.Error()
			}
			mu.Lock()
			rep.Checks[name] = res
			if res != statusOK {
				rep.Status = statusFail
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return rep
}

// Healthz serves the liveness probe.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeReport(w, Report{Status: statusOK})
}

// Readyz serves the readiness probe.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	writeReport(w, h.Evaluate(r.Context()))
}

// Register mounts both probes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func writeReport(w http.ResponseWriter, rep Report) {
	code := http.StatusOK
	if !rep.OK() {
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(rep)
}
