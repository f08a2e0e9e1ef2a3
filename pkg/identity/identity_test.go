package identity

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
)

func TestHeaderProviderCurrentActor(t *testing.T) {
	id := uuid.MustParse("7f8c9a2e-1234-4cde-9f00-aabbccddeeff")

	tests := []struct {
		name      string
		headers   map[string]string
		wantRoles []string
		wantErr   error
	}{
		{
			name:      "id with roles",
			headers:   map[string]string{"X-Actor-ID": id.String(), "X-Actor-Roles": "moderator,admin"},
			wantRoles: []string{"moderator", "admin"},
		},
		{
			name:      "missing roles default to user",
			headers:   map[string]string{"X-Actor-ID": id.String()},
			wantRoles: []string{RoleUser},
		},
		{
			name:      "roles are trimmed and empties dropped",
			headers:   map[string]string{"X-Actor-ID": id.String(), "X-Actor-Roles": " moderator , , user "},
			wantRoles: []string{"moderator", "user"},
		},
		{
			name:    "no id header",
			headers: map[string]string{"X-Actor-Roles": "moderator"},
			wantErr: ErrUnauthenticated,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}

			actor, err := HeaderProvider{}.CurrentActor(req)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if actor.ID != id {
				t.Fatalf("actor id = %s", actor.ID)
			}
			if len(actor.Roles) != len(tt.wantRoles) {
				t.Fatalf("roles = %v, want %v", actor.Roles, tt.wantRoles)
			}
			for i, role := range tt.wantRoles {
				if actor.Roles[i] != role {
					t.Fatalf("roles = %v, want %v", actor.Roles, tt.wantRoles)
				}
			}
		})
	}
}

func TestHeaderProviderRejectsMalformedID(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Actor-ID", "not-a-uuid")

	if _, err := (HeaderProvider{}).CurrentActor(req); err == nil {
		t.Fatal("expected an error for a malformed actor id")
	}
}

func TestActorHasRole(t *testing.T) {
	actor := Actor{ID: uuid.New(), Roles: []string{RoleUser, RoleModerator}}
	if !actor.HasRole(RoleModerator) {
		t.Fatal("expected moderator role")
	}
	if actor.HasRole(RoleAdmin) {
		t.Fatal("did not expect admin role")
	}
}

func TestHeaderProviderHasRoleUnsupported(t *testing.T) {
	if _, err := (HeaderProvider{}).HasRole(context.Background(), uuid.New(), RoleAdmin); err == nil {
		t.Fatal("expected out-of-band lookups to be unsupported")
	}
}
