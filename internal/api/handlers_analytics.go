package api

import (
	"net/http"
	"strconv"
)

func (s *Server) handleAnalyticsSummary(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	days := 0
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "days must be a positive integer", nil)
			return
		}
		days = n
	}

	summary, err := s.analytics.Summary(r.Context(), userID, days)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, summary)
}
