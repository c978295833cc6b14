package api

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/opportunity-scanner/internal/models"
	"github.com/opportunity-scanner/internal/types"
)

func (s *Server) handleListOpportunities(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	filter := models.OpportunityFilter{}
	q := r.URL.Query()

	if raw := q.Get("platform"); raw != "" {
		p := types.Platform(raw)
		filter.Platform = &p
	}
	if raw := q.Get("saved"); raw != "" {
		saved, err := strconv.ParseBool(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "saved must be true or false", nil)
			return
		}
		filter.SavedOnly = saved
	}
	if raw := q.Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "page must be a positive integer", nil)
			return
		}
		filter.Page = n
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "limit must be a positive integer", nil)
			return
		}
		filter.Limit = n
	}

	page, err := s.opportunities.List(r.Context(), userID, filter)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, page)
}

func (s *Server) handleGetOpportunity(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	opp, err := s.opportunities.Get(r.Context(), userID, mux.Vars(r)["id"])
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, opp)
}

type updateOpportunityRequest struct {
	IsSaved   *bool `json:"isSaved,omitempty"`
	IsApplied *bool `json:"isApplied,omitempty"`
}

// handleUpdateOpportunity flips the saved or applied flag. Applied is
// one-way; sending isApplied=false is rejected.
func (s *Server) handleUpdateOpportunity(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	oppID := mux.Vars(r)["id"]

	var req updateOpportunityRequest
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}
	if req.IsSaved == nil && req.IsApplied == nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "one of isSaved or isApplied is required", nil)
		return
	}
	if req.IsApplied != nil && !*req.IsApplied {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "isApplied cannot be unset", nil)
		return
	}

	if req.IsSaved != nil {
		if err := s.opportunities.SetSaved(r.Context(), userID, oppID, *req.IsSaved); err != nil {
			respondServiceError(w, err)
			return
		}
	}
	if req.IsApplied != nil {
		if err := s.opportunities.MarkApplied(r.Context(), userID, oppID); err != nil {
			respondServiceError(w, err)
			return
		}
	}

	opp, err := s.opportunities.Get(r.Context(), userID, oppID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, opp)
}
