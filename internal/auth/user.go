package auth

import (
	"time"

	"github.com/bodhi-industries/eventhub/internal/identity"
	"github.com/bodhi-industries/eventhub/internal/legacyapi"
)

// User is the signed-in account as the rest of the application sees it,
// whichever authority issued it.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

func userFromIdentity(u identity.User) *User {
	return &User{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name(),
		Role:      RoleUser,
		CreatedAt: u.CreatedAt,
	}
}

func userFromLegacy(u legacyapi.User) *User {
	out := &User{
		ID:    u.ID.String(),
		Email: u.Email,
		Name:  u.Name,
		Role:  RoleOrganizer,
	}
	if role := NormalizeRole(u.Role); role == RoleAdmin {
		out.Role = RoleAdmin
	}
	if t, err := time.Parse(time.RFC3339, u.CreatedAt); err == nil {
		out.CreatedAt = t
	}
	return out
}
