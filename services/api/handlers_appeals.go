package api

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"modguard/services/cases"
	"modguard/services/evidence"
)

func (a *API) handleCreateAppeal(w http.ResponseWriter, r *http.Request) {
	actor, err := a.userActor(r)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	var req struct {
		Kind     string    `json:"kind"`
		ID       uuid.UUID `json:"id"`
		Reason   string    `json:"reason"`
		Evidence []struct {
			Filename    string `json:"filename"`
			ContentType string `json:"content_type"`
			Data        string `json:"data"`
		} `json:"evidence"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	ref := cases.AppealableRef{Kind: cases.AppealableKind(req.Kind), ID: req.ID}
	if !ref.Valid() {
		respondError(w, http.StatusBadRequest, errors.New("kind must be warning or restriction, with a valid id"))
		return
	}

	items := make([]evidence.Item, 0, len(req.Evidence))
	for i, e := range req.Evidence {
		data, err := base64.StdEncoding.DecodeString(e.Data)
		if err != nil {
			respondError(w, http.StatusBadRequest, fmt.Errorf("evidence item %d is not valid base64", i))
			return
		}
		items = append(items, evidence.Item{Filename: e.Filename, ContentType: e.ContentType, Data: data})
	}

	// Evidence is stored before the appeal transaction; a blob-store
	// failure only drops the affected items, never the appeal.
	keyPrefix := fmt.Sprintf("appeals/%s/%s", actor.ID, ref.ID)
	stored, failures := a.collector.Collect(r.Context(), keyPrefix, items)

	appeal, err := a.sm.CreateAppeal(r.Context(), actor, cases.CreateAppealInput{
		Ref:      ref,
		Reason:   req.Reason,
		Evidence: stored,
	})
	if err != nil {
		// The appeal was rejected, so the blobs stored for it have no
		// owning record and are removed again.
		a.collector.Discard(r.Context(), stored)
		if _, ok := cases.AsFailure(err); ok {
			respondDomainError(w, err)
			return
		}
		respondError(w, http.StatusBadRequest, err)
		return
	}

	respondData(w, http.StatusCreated, map[string]any{
		"appeal":            appeal,
		"evidence_stored":   len(stored),
		"evidence_failures": failures,
	})
}

func (a *API) handleClaimAppeal(w http.ResponseWriter, r *http.Request) {
	actor, err := a.moderatorActor(r)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	appealID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, errors.New("valid appeal id is required"))
		return
	}

	appeal, err := a.sm.ClaimAppeal(r.Context(), actor, appealID)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondData(w, http.StatusOK, map[string]any{"appeal": appeal})
}

func (a *API) handleDecideAppeal(w http.ResponseWriter, r *http.Request) {
	actor, err := a.moderatorActor(r)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	appealID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, errors.New("valid appeal id is required"))
		return
	}

	var req struct {
		Approve bool   `json:"approve"`
		Notes   string `json:"notes"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	appeal, err := a.sm.DecideAppeal(r.Context(), actor, appealID, req.Approve, req.Notes)
	if err != nil {
		if _, ok := cases.AsFailure(err); ok {
			respondDomainError(w, err)
			return
		}
		respondError(w, http.StatusBadRequest, err)
		return
	}
	respondData(w, http.StatusOK, map[string]any{"appeal": appeal})
}

func (a *API) handleListAppeals(w http.ResponseWriter, r *http.Request) {
	if _, err := a.moderatorActor(r); err != nil {
		respondDomainError(w, err)
		return
	}

	filter, err := listFilterFromQuery(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	appeals, err := a.store.ListAppeals(r.Context(), filter)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondData(w, http.StatusOK, map[string]any{
		"appeals":  appeals,
		"page":     filter.Page.Page,
		"per_page": filter.Page.PerPage,
	})
}
