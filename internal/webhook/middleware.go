package webhook

import (
	"net/http"
	"strconv"
	"time"

	"github.com/warelay-dev/warelay/internal/observability"
)

// statusRecorder captures the response status for metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// withMetrics records request count and duration for a route.
func withMetrics(path string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)
		observability.RecordHTTPRequest(r.Method, path, strconv.Itoa(rec.status), time.Since(start))
	}
}
