package user

import (
	"strings"

	"github.com/pkg/errors"
)

// Role is the application mode a profile is entitled to.
type Role string

// Roles
const (
	RoleStudent Role = "STUDENT"
	RoleTeacher Role = "TEACHER"
	RoleAdmin   Role = "ADMIN"
)

var (
	AllRoles = []Role{RoleStudent, RoleTeacher, RoleAdmin}

	rolePriorities = map[Role]int{
		RoleAdmin:   30,
		RoleTeacher: 20,
		RoleStudent: 10,
	}

	errUnknownRole = errors.New("unknown role")
)

// ParseRole accepts any case ("teacher", "Teacher", "TEACHER").
func ParseRole(s string) (Role, error) {
	role := Role(strings.ToUpper(strings.TrimSpace(s)))
	if !role.IsValid() {
		return "", errors.Wrapf(errUnknownRole, "%q", s)
	}
	return role, nil
}

func (r Role) IsValid() bool {
	_, ok := rolePriorities[r]
	return ok
}

// Priority orders roles by privilege: STUDENT < TEACHER < ADMIN. Unknown roles have priority 0.
func (r Role) Priority() int {
	return rolePriorities[r]
}

func (r Role) String() string { return string(r) }

// Profile is the per-identity record stored at `users/{identityId}`.
type Profile struct {
	ID        string `json:"userId" db:"id"`
	Name      string `json:"name" db:"name"`
	Email     string `json:"email" db:"email"`
	Role      Role   `json:"userType" db:"role"`
	PhotoURL  string `json:"photoUrl,omitempty" db:"photo_url"`
	CreatedAt int64  `json:"createdAt" db:"created_at"` // epoch millis
}

func (p Profile) IsStudent() bool { return p.Role == RoleStudent }
func (p Profile) IsTeacher() bool { return p.Role == RoleTeacher }
func (p Profile) IsAdmin() bool   { return p.Role == RoleAdmin }
