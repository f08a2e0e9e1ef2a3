package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"modguard/services/cases"
)

func (a *API) handleIssueWarning(w http.ResponseWriter, r *http.Request) {
	actor, err := a.moderatorActor(r)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	var req struct {
		SubjectUserID uuid.UUID      `json:"subject_user_id"`
		Level         int            `json:"level"`
		Reason        string         `json:"reason"`
		ExpiresAt     *time.Time     `json:"expires_at"`
		Metadata      map[string]any `json:"metadata"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	warning, err := a.sm.IssueWarning(r.Context(), actor, cases.IssueWarningInput{
		SubjectUserID: req.SubjectUserID,
		Level:         req.Level,
		Reason:        req.Reason,
		ExpiresAt:     req.ExpiresAt,
		Metadata:      req.Metadata,
	})
	if err != nil {
		if _, ok := cases.AsFailure(err); ok {
			respondDomainError(w, err)
			return
		}
		respondError(w, http.StatusBadRequest, err)
		return
	}

	// Threshold evaluation runs after the warning commits; a failed
	// automatic action must not undo the warning itself.
	outcome, err := a.engine.Evaluate(r.Context(), warning.SubjectUserID, warning.ID)
	if err != nil {
		a.logf("ERROR escalation evaluation for user %s: %v", warning.SubjectUserID, err)
	}

	respondData(w, http.StatusCreated, map[string]any{
		"warning":    warning,
		"escalation": outcome,
	})
}

func (a *API) handleAcknowledgeWarning(w http.ResponseWriter, r *http.Request) {
	actor, err := a.userActor(r)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	warningID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, errors.New("valid warning id is required"))
		return
	}

	warning, err := a.sm.AcknowledgeWarning(r.Context(), actor, warningID)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondData(w, http.StatusOK, map[string]any{"warning": warning})
}

func (a *API) handleEscalateWarning(w http.ResponseWriter, r *http.Request) {
	actor, err := a.moderatorActor(r)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	warningID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, errors.New("valid warning id is required"))
		return
	}

	var req struct {
		ToLevel           int        `json:"to_level"`
		Reason            string     `json:"reason"`
		SeniorModeratorID *uuid.UUID `json:"senior_moderator_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	warning, err := a.sm.EscalateWarning(r.Context(), actor, cases.EscalateWarningInput{
		WarningID:         warningID,
		ToLevel:           req.ToLevel,
		Reason:            req.Reason,
		SeniorModeratorID: req.SeniorModeratorID,
	})
	if err != nil {
		if _, ok := cases.AsFailure(err); ok {
			respondDomainError(w, err)
			return
		}
		respondError(w, http.StatusBadRequest, err)
		return
	}
	respondData(w, http.StatusOK, map[string]any{"warning": warning})
}

func (a *API) handleListWarnings(w http.ResponseWriter, r *http.Request) {
	if _, err := a.moderatorActor(r); err != nil {
		respondDomainError(w, err)
		return
	}

	filter, err := listFilterFromQuery(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	warnings, err := a.store.ListWarnings(r.Context(), filter)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondData(w, http.StatusOK, map[string]any{
		"warnings": warnings,
		"page":     filter.Page.Page,
		"per_page": filter.Page.PerPage,
	})
}

// listFilterFromQuery parses the shared list parameters: subject_user_id,
// status, type, from, to, page, per_page.
func listFilterFromQuery(r *http.Request) (ListFilter, error) {
	values := r.URL.Query()

	p, err := parsePage(values)
	if err != nil {
		return ListFilter{}, err
	}

	filter := ListFilter{
		Status: values.Get("status"),
		Type:   values.Get("type"),
		Page:   p,
	}

	if raw := values.Get("subject_user_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return ListFilter{}, errors.New("subject_user_id must be a UUID")
		}
		filter.SubjectUserID = id
	}

	if filter.From, err = parseTimeParam(values, "from"); err != nil {
		return ListFilter{}, err
	}
	if filter.To, err = parseTimeParam(values, "to"); err != nil {
		return ListFilter{}, err
	}

	return filter, nil
}
