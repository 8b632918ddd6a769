package httpserver

import (
	"context"
	"net/http"
	"sync"
	"time"
)

func Healthz(service string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]any{
			"service": service,
			"status":  "ok",
		})
	}
}

type ReadinessCheck struct {
	Name  string
	Check func(context.Context) error
}

type checkResult struct {
	Name       string `json:"name"`
	Status     string `json:"status"`
	DurationMs int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

// ReadyzWithChecks runs all checks concurrently; results keep the order the
// checks were given in.
func ReadyzWithChecks(service string, checks ...ReadinessCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		results := make([]checkResult, len(checks))
		var wg sync.WaitGroup
		for i, check := range checks {
			wg.Go(func() {
				results[i] = runCheck(r.Context(), check)
			})
		}
		wg.Wait()

		status, code := "ready", http.StatusOK
		for _, res := range results {
			if res.Status != "ok" {
				status, code = "not_ready", http.StatusServiceUnavailable
				break
			}
		}
		WriteJSON(w, code, map[string]any{
			"service": service,
			"status":  status,
			"checks":  results,
		})
	}
}

func runCheck(ctx context.Context, check ReadinessCheck) checkResult {
	start := time.Now()
	err := check.Check(ctx)
	res := checkResult{
		Name:       check.Name,
		Status:     "ok",
		DurationMs: time.Since(start).Milliseconds(),
	}
	if err != nil {
		res.Status = "fail"
		res.Error = err.Error()
	}
	return res
}
