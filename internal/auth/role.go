package auth

import (
	"fmt"
	"strings"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleOrganizer Role = "organizer"
	RoleAdmin     Role = "admin"
)

func NormalizeRole(role string) Role {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case string(RoleOrganizer):
		return RoleOrganizer
	case string(RoleAdmin):
		return RoleAdmin
	default:
		return RoleUser
	}
}

// Kind selects which authority handles an account: the identity provider
// for end users, the legacy backend for organizers.
type Kind string

const (
	KindUser      Kind = "user"
	KindOrganizer Kind = "organizer"
)

// ParseKind maps a form value to a Kind. Empty means KindUser.
func ParseKind(value string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", string(KindUser):
		return KindUser, nil
	case string(KindOrganizer):
		return KindOrganizer, nil
	default:
		return "", fmt.Errorf("unknown account kind %q", value)
	}
}
