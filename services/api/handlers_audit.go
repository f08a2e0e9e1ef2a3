package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"modguard/services/ledger"
)

func (a *API) handleListAuditRecords(w http.ResponseWriter, r *http.Request) {
	if _, err := a.moderatorActor(r); err != nil {
		respondDomainError(w, err)
		return
	}

	values := r.URL.Query()
	p, err := parsePage(values)
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	filter := AuditFilter{
		TargetType: values.Get("target_type"),
		TargetID:   values.Get("target_id"),
		Action:     values.Get("action"),
		Page:       p,
	}
	if raw := values.Get("actor_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, errors.New("actor_id must be a UUID"))
			return
		}
		filter.ActorID = id
	}
	if filter.From, err = parseTimeParam(values, "from"); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	if filter.To, err = parseTimeParam(values, "to"); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	records, err := a.store.ListAuditRecords(r.Context(), filter)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondData(w, http.StatusOK, map[string]any{
		"records":  records,
		"page":     p.Page,
		"per_page": p.PerPage,
	})
}

func (a *API) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	if _, err := a.moderatorActor(r); err != nil {
		respondDomainError(w, err)
		return
	}

	filter, err := listFilterFromQuery(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	alerts, err := a.store.ListAlerts(r.Context(), filter)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondData(w, http.StatusOK, map[string]any{
		"alerts":   alerts,
		"page":     filter.Page.Page,
		"per_page": filter.Page.PerPage,
	})
}

func (a *API) handleVerifyChain(w http.ResponseWriter, r *http.Request) {
	if _, err := a.moderatorActor(r); err != nil {
		respondDomainError(w, err)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, errors.New("limit must be a non-negative integer"))
			return
		}
		limit = n
	}

	report, err := a.ledger.VerifyChain(r.Context(), limit)
	if err != nil {
		if errors.Is(err, ledger.ErrMaintenanceBusy) {
			respondError(w, http.StatusConflict, err)
			return
		}
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondData(w, http.StatusOK, map[string]any{"report": report})
}
