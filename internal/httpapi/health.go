package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

func Liveness() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}

// ReadinessReporter is implemented by the policy feed runner.
type ReadinessReporter interface {
	Readiness() (ready bool, partitions []int32)
}

// Pinger is implemented by the Redis store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Readiness is ready when the feed (if any) holds a partition assignment and
// every pinger answers.
func Readiness(rr ReadinessReporter, pingers ...Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		type resp struct {
			Status     string   `json:"status"`
			Partitions []int32  `json:"partitions,omitempty"`
			Errors     []string `json:"errors,omitempty"`
		}
		out := resp{Status: "ready"}
		ready := true

		if rr != nil {
			ok, parts := rr.Readiness()
			if ok {
				out.Partitions = parts
			} else {
				ready = false
				out.Errors = append(out.Errors, "policy feed: no partitions assigned")
			}
		}

		ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
		defer cancel()
		for _, p := range pingers {
			if err := p.Ping(ctx); err != nil {
				ready = false
				out.Errors = append(out.Errors, err.Error())
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if !ready {
			out.Status = "not_ready"
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(out)
	}
}
