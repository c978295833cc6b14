package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/opportunity-scanner/internal/service"
	"github.com/opportunity-scanner/internal/types"
)

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var input service.CreateUserInput
	if err := parseJSONBody(r, &input); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	user, err := s.users.Create(r.Context(), &input)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, user)
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	user, err := s.users.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, user)
}

type updateTierRequest struct {
	Tier string `json:"tier"`
}

func (s *Server) handleUpdateTier(w http.ResponseWriter, r *http.Request) {
	targetID := mux.Vars(r)["id"]

	var req updateTierRequest
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	tier := types.UserTier(req.Tier)
	switch tier {
	case types.TierFree, types.TierPro, types.TierPremium:
	default:
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "tier must be one of: free, pro, premium", nil)
		return
	}

	if err := s.users.UpdateTier(r.Context(), targetID, tier); err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"userId": targetID,
		"tier":   string(tier),
	})
}
