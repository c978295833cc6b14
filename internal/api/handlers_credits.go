package api

import (
	"net/http"
)

// handleCreditBalance returns the caller's refill-checked balance. The tier
// comes from the user record, not the gateway header, so a stale header
// cannot inflate the refill projection.
func (s *Server) handleCreditBalance(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	user, err := s.users.Get(r.Context(), userID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	balance, err := s.credits.Balance(r.Context(), userID, user.Tier)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, balance)
}
