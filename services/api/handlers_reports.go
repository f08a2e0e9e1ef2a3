package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"modguard/services/cases"
)

func (a *API) handleFileReport(w http.ResponseWriter, r *http.Request) {
	actor, err := a.userActor(r)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	var req struct {
		TargetUserID uuid.UUID `json:"target_user_id"`
		Category     string    `json:"category"`
		Details      string    `json:"details"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	report, err := a.sm.FileReport(r.Context(), actor, cases.FileReportInput{
		TargetUserID: req.TargetUserID,
		Category:     req.Category,
		Details:      req.Details,
	})
	if err != nil {
		if _, ok := cases.AsFailure(err); ok {
			respondDomainError(w, err)
			return
		}
		respondError(w, http.StatusBadRequest, err)
		return
	}
	respondData(w, http.StatusCreated, map[string]any{"report": report})
}

func (a *API) handleResolveReport(w http.ResponseWriter, r *http.Request) {
	actor, err := a.moderatorActor(r)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	reportID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, errors.New("valid report id is required"))
		return
	}

	var req struct {
		Actioned bool `json:"actioned"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	report, err := a.sm.ResolveReport(r.Context(), actor, reportID, req.Actioned)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondData(w, http.StatusOK, map[string]any{"report": report})
}

func (a *API) handleRetractReport(w http.ResponseWriter, r *http.Request) {
	actor, err := a.userActor(r)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	reportID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, errors.New("valid report id is required"))
		return
	}

	report, err := a.sm.RetractReport(r.Context(), actor, reportID)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondData(w, http.StatusOK, map[string]any{"report": report})
}

func (a *API) handleListReports(w http.ResponseWriter, r *http.Request) {
	if _, err := a.moderatorActor(r); err != nil {
		respondDomainError(w, err)
		return
	}

	filter, err := listFilterFromQuery(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	reports, err := a.store.ListReports(r.Context(), filter)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondData(w, http.StatusOK, map[string]any{
		"reports":  reports,
		"page":     filter.Page.Page,
		"per_page": filter.Page.PerPage,
	})
}
