package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"modguard/services/anomaly"
	"modguard/services/timeline"
)

func (a *API) handleTimeline(w http.ResponseWriter, r *http.Request) {
	if _, err := a.moderatorActor(r); err != nil {
		respondDomainError(w, err)
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, errors.New("valid case id is required"))
		return
	}
	ref := timeline.CaseRef{Kind: chi.URLParam(r, "kind"), ID: id}
	if !ref.Valid() {
		respondError(w, http.StatusBadRequest, errors.New("kind must be warning, restriction or appeal"))
		return
	}

	view, err := a.builder.Build(r.Context(), ref)
	if err != nil {
		respondError(w, http.StatusNotFound, fmt.Errorf("%s %s not found", ref.Kind, ref.ID))
		return
	}
	respondData(w, http.StatusOK, map[string]any{"timeline": view})
}

func (a *API) handleScore(w http.ResponseWriter, r *http.Request) {
	if _, err := a.moderatorActor(r); err != nil {
		respondDomainError(w, err)
		return
	}

	kind := chi.URLParam(r, "kind")
	if kind != anomaly.KindModerator && kind != anomaly.KindReporter {
		respondError(w, http.StatusBadRequest, errors.New("kind must be moderator or reporter"))
		return
	}
	subjectID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, errors.New("valid subject id is required"))
		return
	}

	// Cached results are served unless the caller asks for a recompute.
	if r.URL.Query().Get("refresh") != "true" {
		cached, ok, err := a.scorer.Latest(r.Context(), kind, subjectID)
		if err != nil {
			respondError(w, http.StatusInternalServerError, err)
			return
		}
		if ok {
			respondData(w, http.StatusOK, map[string]any{"score": cached, "cached": true})
			return
		}
	}

	result, err := a.scorer.Score(r.Context(), kind, subjectID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondData(w, http.StatusOK, map[string]any{
		"score": map[string]any{
			"subject_id": subjectID,
			"kind":       kind,
			"score":      result.Score,
			"risk_level": result.Level,
			"factors":    result.Factors,
			"failed":     result.Failed,
		},
		"cached": false,
	})
}
