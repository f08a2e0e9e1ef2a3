package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"modguard/services/cases"
)

func (a *API) handleCreateRestriction(w http.ResponseWriter, r *http.Request) {
	actor, err := a.moderatorActor(r)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	var req struct {
		SubjectUserID   uuid.UUID      `json:"subject_user_id"`
		Type            string         `json:"type"`
		IsPermanent     bool           `json:"is_permanent"`
		Days            int            `json:"days"`
		Reason          string         `json:"reason"`
		SourceWarningID *uuid.UUID     `json:"source_warning_id"`
		Metadata        map[string]any `json:"metadata"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	restriction, err := a.sm.CreateRestriction(r.Context(), actor, cases.CreateRestrictionInput{
		SubjectUserID:   req.SubjectUserID,
		Type:            req.Type,
		IsPermanent:     req.IsPermanent,
		Days:            req.Days,
		Reason:          req.Reason,
		SourceWarningID: req.SourceWarningID,
		Metadata:        req.Metadata,
	})
	if err != nil {
		if _, ok := cases.AsFailure(err); ok {
			respondDomainError(w, err)
			return
		}
		respondError(w, http.StatusBadRequest, err)
		return
	}
	respondData(w, http.StatusCreated, map[string]any{"restriction": restriction})
}

func (a *API) handleLiftRestriction(w http.ResponseWriter, r *http.Request) {
	actor, err := a.moderatorActor(r)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	restrictionID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, errors.New("valid restriction id is required"))
		return
	}

	var req struct {
		Reason string `json:"reason"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	restriction, err := a.sm.LiftRestriction(r.Context(), actor, restrictionID, req.Reason)
	if err != nil {
		if _, ok := cases.AsFailure(err); ok {
			respondDomainError(w, err)
			return
		}
		respondError(w, http.StatusBadRequest, err)
		return
	}
	respondData(w, http.StatusOK, map[string]any{"restriction": restriction})
}

func (a *API) handleExtendRestriction(w http.ResponseWriter, r *http.Request) {
	actor, err := a.moderatorActor(r)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	restrictionID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, errors.New("valid restriction id is required"))
		return
	}

	var req struct {
		Days int `json:"days"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	restriction, err := a.sm.ExtendRestriction(r.Context(), actor, restrictionID, req.Days)
	if err != nil {
		if _, ok := cases.AsFailure(err); ok {
			respondDomainError(w, err)
			return
		}
		respondError(w, http.StatusBadRequest, err)
		return
	}
	respondData(w, http.StatusOK, map[string]any{"restriction": restriction})
}

func (a *API) handleListRestrictions(w http.ResponseWriter, r *http.Request) {
	if _, err := a.moderatorActor(r); err != nil {
		respondDomainError(w, err)
		return
	}

	filter, err := listFilterFromQuery(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	restrictions, err := a.store.ListRestrictions(r.Context(), filter)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondData(w, http.StatusOK, map[string]any{
		"restrictions": restrictions,
		"page":         filter.Page.Page,
		"per_page":     filter.Page.PerPage,
	})
}
