package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"modguard/services/cases"
)

// envelope is the JSON shape of every API response.
type envelope struct {
	Success   bool   `json:"success"`
	Message   string `json:"message,omitempty"`
	Data      any    `json:"data,omitempty"`
	ErrorCode string `json:"error_code,omitempty"`
}

func decodeJSON(r *http.Request, dest any) error {
	if r.Body == nil {
		return errors.New("request body required")
	}
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dest)
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func respondData(w http.ResponseWriter, status int, data any) {
	respondJSON(w, status, envelope{Success: true, Data: data})
}

func respondError(w http.ResponseWriter, status int, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}
	respondJSON(w, status, envelope{Success: false, Message: err.Error()})
}

// respondDomainError maps typed precondition failures onto stable HTTP
// statuses: authorization failures are 403, every other precondition 422.
// Untyped errors fall through as 500.
func respondDomainError(w http.ResponseWriter, err error) {
	if failure, ok := cases.AsFailure(err); ok {
		status := http.StatusUnprocessableEntity
		if failure.Code == cases.CodeNotAuthorized {
			status = http.StatusForbidden
		}
		respondJSON(w, status, envelope{
			Success:   false,
			Message:   failure.Message,
			ErrorCode: failure.Code,
		})
		return
	}
	respondError(w, http.StatusInternalServerError, err)
}

// page holds validated pagination parameters.
type page struct {
	Page    int
	PerPage int
}

func (p page) limit() int  { return p.PerPage }
func (p page) offset() int { return (p.Page - 1) * p.PerPage }

const (
	defaultPerPage = 20
	maxPerPage     = 100
)

func parsePage(values url.Values) (page, error) {
	p := page{Page: 1, PerPage: defaultPerPage}

	if raw := values.Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return page{}, errors.New("page must be a positive integer")
		}
		p.Page = n
	}
	if raw := values.Get("per_page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return page{}, errors.New("per_page must be a positive integer")
		}
		if n > maxPerPage {
			n = maxPerPage
		}
		p.PerPage = n
	}
	return p, nil
}

// parseTimeParam reads an optional RFC 3339 query parameter.
func parseTimeParam(values url.Values, key string) (*time.Time, error) {
	raw := values.Get(key)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, errors.New(key + " must be RFC 3339")
	}
	return &t, nil
}
