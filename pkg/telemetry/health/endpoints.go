package health

import (
	"encoding/json"
	"net/http"
	"runtime"
	"time"
)

// started anchors the uptime reported by the detailed endpoint.
var started = time.Now()

// BuildInfo identifies the running binary on the detailed endpoint.
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	BuildTime string `json:"build_time,omitempty"`
	GoVersion string `json:"go_version"`
}

// detailedStatus is the detailed endpoint's response body.
type detailedStatus struct {
	Status     string                 `json:"status"`
	Checks     map[string]CheckResult `json:"checks,omitempty"`
	Build      BuildInfo              `json:"build"`
	Goroutines int                    `json:"goroutines"`
	UptimeSec  int64                  `json:"uptime_seconds"`
	Timestamp  time.Time              `json:"timestamp"`
}

// HealthHandler answers the plain health endpoint: a fixed 200 while
// the process accepts connections. Load balancers poll it, so it stays
// constant-cost.
func (c *Checker) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, http.StatusOK, Status{Status: StatusOK, Timestamp: time.Now()})
	}
}

// LivenessHandler answers the liveness probe. Always 200; dependency
// failures belong on the readiness probe.
func (c *Checker) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, http.StatusOK, c.Liveness(r.Context()))
	}
}

// ReadinessHandler answers the readiness probe: 200 when every
// registered probe passes, 503 when any fails.
func (c *Checker) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := c.Readiness(r.Context())

		code := http.StatusOK
		if status.Status != StatusReady && status.Status != StatusOK {
			code = http.StatusServiceUnavailable
		}
		writeStatus(w, code, status)
	}
}

// DetailedHandler answers the operator diagnostics endpoint: the
// readiness results plus build identity and process stats. The status
// code mirrors the readiness probe so it can double as one.
func (c *Checker) DetailedHandler(build BuildInfo) http.HandlerFunc {
	if build.GoVersion == "" {
		build.GoVersion = runtime.Version()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		status := c.Readiness(r.Context())

		code := http.StatusOK
		if status.Status != StatusReady && status.Status != StatusOK {
			code = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(detailedStatus{
			Status:     status.Status,
			Checks:     status.Checks,
			Build:      build,
			Goroutines: runtime.NumGoroutine(),
			UptimeSec:  int64(time.Since(started).Seconds()),
			Timestamp:  status.Timestamp,
		})
	}
}

func writeStatus(w http.ResponseWriter, code int, status Status) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(status)
}
