package api

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"modguard/services/cases"
)

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.NewDecoder(rec.Body).Decode(&env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	return env
}

func TestRespondData(t *testing.T) {
	rec := httptest.NewRecorder()
	respondData(rec, 201, map[string]any{"id": "abc"})

	if rec.Code != 201 {
		t.Fatalf("status = %d, want 201", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content type = %q", ct)
	}
	env := decodeEnvelope(t, rec)
	if !env.Success || env.ErrorCode != "" {
		t.Fatalf("unexpected envelope: %+v", env)
	}
}

func TestRespondDomainError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "authorization failure is 403",
			err:        &cases.Failure{Code: cases.CodeNotAuthorized, Message: "moderator role required"},
			wantStatus: 403,
			wantCode:   cases.CodeNotAuthorized,
		},
		{
			name:       "precondition failure is 422",
			err:        &cases.Failure{Code: cases.CodeAppealDeadlinePassed, Message: "window closed"},
			wantStatus: 422,
			wantCode:   cases.CodeAppealDeadlinePassed,
		},
		{
			name:       "wrapped failure still maps",
			err:        errors.Join(errors.New("transact"), &cases.Failure{Code: cases.CodeRestrictionExists}),
			wantStatus: 422,
			wantCode:   cases.CodeRestrictionExists,
		},
		{
			name:       "untyped error is 500",
			err:        errors.New("connection refused"),
			wantStatus: 500,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			respondDomainError(rec, tt.err)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			env := decodeEnvelope(t, rec)
			if env.Success {
				t.Fatal("expected success=false")
			}
			if env.ErrorCode != tt.wantCode {
				t.Fatalf("error code = %q, want %q", env.ErrorCode, tt.wantCode)
			}
		})
	}
}

func TestDecodeJSONRejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest("POST", "/", strings.NewReader(`{"reason":"x","bogus":true}`))

	var dest struct {
		Reason string `json:"reason"`
	}
	if err := decodeJSON(req, &dest); err == nil {
		t.Fatal("expected unknown field to be rejected")
	}
}

func TestParsePage(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		want    page
		wantErr bool
	}{
		{"defaults", "", page{Page: 1, PerPage: 20}, false},
		{"explicit", "page=3&per_page=50", page{Page: 3, PerPage: 50}, false},
		{"per_page capped", "per_page=500", page{Page: 1, PerPage: 100}, false},
		{"zero page rejected", "page=0", page{}, true},
		{"negative per_page rejected", "per_page=-1", page{}, true},
		{"non-numeric rejected", "page=abc", page{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			values, err := url.ParseQuery(tt.query)
			if err != nil {
				t.Fatalf("parse query: %v", err)
			}
			got, err := parsePage(values)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("parsePage = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestPageOffsets(t *testing.T) {
	p := page{Page: 3, PerPage: 20}
	if p.limit() != 20 {
		t.Fatalf("limit = %d", p.limit())
	}
	if p.offset() != 40 {
		t.Fatalf("offset = %d", p.offset())
	}
}

func TestParseTimeParam(t *testing.T) {
	values := url.Values{}
	got, err := parseTimeParam(values, "from")
	if err != nil || got != nil {
		t.Fatalf("absent param: %v, %v", got, err)
	}

	values.Set("from", "2026-03-01T12:00:00Z")
	got, err = parseTimeParam(values, "from")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if got == nil || !got.Equal(want) {
		t.Fatalf("parsed %v, want %v", got, want)
	}

	values.Set("from", "yesterday")
	if _, err := parseTimeParam(values, "from"); err == nil {
		t.Fatal("expected an error for a non-RFC3339 value")
	}
}

func TestWhereBuilder(t *testing.T) {
	var b whereBuilder
	if b.clause() != "" {
		t.Fatalf("empty builder clause = %q", b.clause())
	}

	b.add("status = $%d", "active")
	b.add("subject_user_id = $%d", "abc")
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b.timeRange("created_at", &from, nil)

	if got, want := b.clause(), " WHERE status = $1 AND subject_user_id = $2 AND created_at >= $3"; got != want {
		t.Fatalf("clause = %q, want %q", got, want)
	}

	if got, want := b.paginate(page{Page: 2, PerPage: 25}), " LIMIT $4 OFFSET $5"; got != want {
		t.Fatalf("paginate = %q, want %q", got, want)
	}
	if len(b.args) != 5 {
		t.Fatalf("args = %d, want 5", len(b.args))
	}
	if b.args[3] != 25 || b.args[4] != 25 {
		t.Fatalf("pagination args = %v, %v", b.args[3], b.args[4])
	}
}
