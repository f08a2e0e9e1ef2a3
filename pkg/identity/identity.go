package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// Roles known to the moderation service.
const (
	RoleUser      = "user"
	RoleModerator = "moderator"
	RoleAdmin     = "admin"
)

// ErrUnauthenticated is returned when no actor can be resolved from a
// request.
var ErrUnauthenticated = errors.New("identity: no authenticated actor")

// Actor is an authenticated principal.
type Actor struct {
	ID    uuid.UUID
	Roles []string
}

// HasRole reports whether the actor carries the role.
func (a Actor) HasRole(role string) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Provider resolves the acting principal for a request. Implementations
// wrap whatever auth system fronts the service.
type Provider interface {
	CurrentActor(r *http.Request) (Actor, error)
	HasRole(ctx context.Context, actorID uuid.UUID, role string) (bool, error)
}

// HeaderProvider trusts identity headers injected by an authenticating
// gateway: X-Actor-ID carries the principal UUID and X-Actor-Roles a
// comma-separated role list. Only deploy it behind a gateway that strips
// these headers from external traffic.
type HeaderProvider struct{}

func (HeaderProvider) CurrentActor(r *http.Request) (Actor, error) {
	raw := strings.TrimSpace(r.Header.Get("X-Actor-ID"))
	if raw == "" {
		return Actor{}, ErrUnauthenticated
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return Actor{}, fmt.Errorf("identity: invalid actor id %q: %w", raw, err)
	}

	var roles []string
	for _, role := range strings.Split(r.Header.Get("X-Actor-Roles"), ",") {
		role = strings.TrimSpace(role)
		if role != "" {
			roles = append(roles, role)
		}
	}
	if len(roles) == 0 {
		roles = []string{RoleUser}
	}

	return Actor{ID: id, Roles: roles}, nil
}

func (HeaderProvider) HasRole(_ context.Context, _ uuid.UUID, _ string) (bool, error) {
	return false, errors.New("identity: header provider cannot look up roles out of band")
}

var _ Provider = HeaderProvider{}
