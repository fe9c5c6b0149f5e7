package authorization

import (
	"context"
	"errors"
	"strings"
)

var (
	ErrForbidden           = errors.New("forbidden")
	ErrInvalidActor        = errors.New("invalid_actor")
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidObject       = errors.New("invalid_object")
	ErrInvalidAction       = errors.New("invalid_action")
	ErrUnknownRole         = errors.New("unknown_role")
)

// Roles known to the AP back office.
const (
	RoleAdmin      = "admin"
	RoleAccounting = "accounting"
	RoleOperations = "operations"
	RoleSystem     = "system"
)

// Actor is the caller as asserted by the upstream auth gateway.
type Actor struct {
	ID   string
	Role string
}

// Subject is the casbin subject of the actor, e.g. "user:42" or "system".
func (a Actor) Subject() string {
	if strings.EqualFold(a.Role, RoleSystem) {
		return RoleSystem
	}
	return "user:" + strings.TrimSpace(a.ID)
}

type Service interface {
	Authorize(ctx context.Context, actor Actor, orgID string, object string, action string) error
}

func knownRole(role string) bool {
	switch role {
	case RoleAdmin, RoleAccounting, RoleOperations, RoleSystem:
		return true
	default:
		return false
	}
}
