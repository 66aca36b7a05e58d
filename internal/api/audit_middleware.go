package api

import (
	"net/http"
	"time"

	"github.com/example/coop-ledger/internal/auth"
	"github.com/example/coop-ledger/internal/security"
	"github.com/example/coop-ledger/pkg/audit"
)

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// AuditMiddleware records every state-changing request on the audit chain,
// including refused ones.
func AuditMiddleware(a Auditor) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet || r.Method == http.MethodHead {
				next.ServeHTTP(w, r)
				return
			}

			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()
			next.ServeHTTP(sw, r)

			ev := audit.Event{
				CorrelationID: security.CorrelationIDFromContext(r.Context()),
				Method:        r.Method,
				Path:          r.URL.Path,
				Status:        sw.status,
				DurationMS:    time.Since(start).Milliseconds(),
			}
			if actor, ok := auth.ActorFromContext(r.Context()); ok {
				ev.UserID = actor.UserID
				ev.BranchID = actor.BranchID
			}
			a.Record(ev)
		})
	}
}
