package ratelimit

import (
	"net/http"

	"github.com/finbrain/finbrain/internal/api"
)

// StatsHandler serves the limiter's diagnostic snapshot.
func StatsHandler(l *Limiter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		api.JSON(w, http.StatusOK, l.Stats(r.Context()))
	}
}
