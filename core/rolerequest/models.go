package rolerequest

import (
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/companion/core"
	"github.com/trezcool/companion/core/user"
)

// Status of a RoleRequest. Only pending -> approved and pending -> rejected are allowed.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Collections
const (
	TeacherRequests = "teacherRequests"
	AdminRequests   = "adminRequests"
)

var errInvalidStatus = errors.New("invalid status")

func (s Status) IsValid() bool {
	return s == StatusPending || s == StatusApproved || s == StatusRejected
}

func (s Status) IsResolved() bool {
	return s == StatusApproved || s == StatusRejected
}

// RoleRequest is a petition to change a profile's role to TEACHER or ADMIN.
type RoleRequest struct {
	ID            string    `json:"id" db:"id"`
	UserID        string    `json:"userId" db:"user_id"`
	Name          string    `json:"name" db:"name"`
	Email         string    `json:"email" db:"email"`
	Details       string    `json:"details" db:"details"`
	RequestedRole user.Role `json:"requestedRole" db:"requested_role"`
	Status        Status    `json:"status" db:"status"`
	Timestamp     int64     `json:"timestamp" db:"timestamp"` // epoch millis
}

func (r RoleRequest) IsPending() bool { return r.Status == StatusPending }

// Collection returns the collection holding requests for role, or "" when role cannot be requested.
func Collection(role user.Role) string {
	switch role {
	case user.RoleTeacher:
		return TeacherRequests
	case user.RoleAdmin:
		return AdminRequests
	default:
		return ""
	}
}

// FilterPending keeps the pending requests of reqs.
func FilterPending(reqs []RoleRequest) []RoleRequest {
	pending := make([]RoleRequest, 0, len(reqs))
	for _, r := range reqs {
		if r.IsPending() {
			pending = append(pending, r)
		}
	}
	return pending
}

// Sort orders reqs in place. Known fields: timestamp, name, email, status. Unknown fields are ignored.
func Sort(reqs []RoleRequest, orderings []core.Ordering) {
	if len(orderings) == 0 {
		return
	}
	sort.SliceStable(reqs, func(i, j int) bool {
		for _, ord := range orderings {
			c := compare(reqs[i], reqs[j], ord.Field)
			if c == 0 {
				continue
			}
			if ord.Ascending {
				return c < 0
			}
			return c > 0
		}
		return false
	})
}

func compare(a, b RoleRequest, field string) int {
	switch field {
	case "timestamp":
		switch {
		case a.Timestamp < b.Timestamp:
			return -1
		case a.Timestamp > b.Timestamp:
			return 1
		}
		return 0
	case "name":
		return strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
	case "email":
		return strings.Compare(a.Email, b.Email)
	case "status":
		return strings.Compare(string(a.Status), string(b.Status))
	}
	return 0
}
