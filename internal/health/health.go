// Package health runs readiness checks and serves the operator endpoints
// (liveness, readiness, metrics) on their own listener.
package health

import (
	"context"
	"net/http"
	"time"

	"userservice/internal/httputil"
)

// Status of a single check or of the whole service
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
)

// CheckResult is the outcome of one check
type CheckResult struct {
	Status  Status `json:"status"`
	Message string `json:"message"`
}

// Response is the body of /readyz
type Response struct {
	Status    Status                 `json:"status"`
	Checks    map[string]CheckResult `json:"checks"`
	Timestamp time.Time              `json:"timestamp"`
}

// Check is a named readiness probe
type Check interface {
	Name() string
	Check(ctx context.Context) error
}

// CheckFunc adapts a function to Check
type CheckFunc struct {
	CheckName string
	Fn        func(ctx context.Context) error
}

func (c CheckFunc) Name() string                    { return c.CheckName }
func (c CheckFunc) Check(ctx context.Context) error { return c.Fn(ctx) }

// Checker runs every registered check, each bounded by timeout
type Checker struct {
	checks  []Check
	timeout time.Duration
}

// NewChecker creates a Checker. A zero timeout means 5s.
func NewChecker(timeout time.Duration) *Checker {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Checker{timeout: timeout}
}

// Add registers a check
func (c *Checker) Add(check Check) {
	c.checks = append(c.checks, check)
}

// RunAll runs the checks in registration order
func (c *Checker) RunAll(ctx context.Context) Response {
	results := make(map[string]CheckResult, len(c.checks))
	overall := StatusHealthy

	for _, check := range c.checks {
		checkCtx, cancel := context.WithTimeout(ctx, c.timeout)
		err := check.Check(checkCtx)
		cancel()

		if err != nil {
			results[check.Name()] = CheckResult{Status: StatusUnhealthy, Message: err.Error()}
			overall = StatusUnhealthy
			continue
		}
		results[check.Name()] = CheckResult{Status: StatusHealthy, Message: "OK"}
	}

	return Response{
		Status:    overall,
		Checks:    results,
		Timestamp: time.Now().UTC(),
	}
}

// Handler serves GET /healthz, GET /readyz and, when metrics is non-nil, GET /metrics
func Handler(checker *Checker, metrics http.Handler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		httputil.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		resp := checker.RunAll(r.Context())
		status := http.StatusOK
		if resp.Status != StatusHealthy {
			status = http.StatusServiceUnavailable
		}
		httputil.RespondJSON(w, status, resp)
	})

	if metrics != nil {
		mux.Handle("GET /metrics", metrics)
	}
	return mux
}
