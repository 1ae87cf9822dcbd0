package gate

import (
	"github.com/trezcool/companion/core/identity"
	"github.com/trezcool/companion/core/user"
)

// State of a session in the gate.
// Unauthenticated -> Authenticating -> {RoutedStudent, RoutedTeacher, RoutedAdmin} | LoginFailed
type State int

const (
	Unauthenticated State = iota
	Authenticating
	RoutedStudent
	RoutedTeacher
	RoutedAdmin
	LoginFailed
)

// Dashboard routes
const (
	RouteStudent = "student"
	RouteTeacher = "teacher"
	RouteAdmin   = "admin"
)

var stateNames = map[State]string{
	Unauthenticated: "unauthenticated",
	Authenticating:  "authenticating",
	RoutedStudent:   "routed_student",
	RoutedTeacher:   "routed_teacher",
	RoutedAdmin:     "routed_admin",
	LoginFailed:     "login_failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// IsRouted reports a terminal state in which the session is established.
func (s State) IsRouted() bool {
	return s == RoutedStudent || s == RoutedTeacher || s == RoutedAdmin
}

// Session is the result of a gate operation.
type Session struct {
	State    State
	Identity identity.Identity
	Profile  *user.Profile // nil when routing fell back to the student dashboard
	Err      error
}

// Route names the dashboard of a routed session, "" otherwise.
func (s Session) Route() string {
	switch s.State {
	case RoutedStudent:
		return RouteStudent
	case RoutedTeacher:
		return RouteTeacher
	case RoutedAdmin:
		return RouteAdmin
	default:
		return ""
	}
}

// RouteFor is the routing table: STUDENT -> student, TEACHER -> teacher, ADMIN -> admin.
func RouteFor(role user.Role) State {
	switch role {
	case user.RoleAdmin:
		return RoutedAdmin
	case user.RoleTeacher:
		return RoutedTeacher
	default:
		return RoutedStudent
	}
}
