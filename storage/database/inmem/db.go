package inmemdb

import (
	"sync"

	"github.com/trezcool/companion/core/course"
	"github.com/trezcool/companion/core/identity"
	"github.com/trezcool/companion/core/rolerequest"
	"github.com/trezcool/companion/core/user"
)

// DB keeps every collection in memory behind a single lock,
// so writes spanning several collections are atomic.
type DB struct {
	sync.RWMutex

	users       map[string]user.Profile
	requests    map[string]map[string]rolerequest.RoleRequest // {collection: {id: request}}
	credentials map[string]identity.Credential                // {email: credential}
	revoked     map[string]int64                              // {token id: expires at}
	courses     map[string]course.Course
}

func Open() *DB {
	return &DB{
		users: make(map[string]user.Profile),
		requests: map[string]map[string]rolerequest.RoleRequest{
			rolerequest.TeacherRequests: make(map[string]rolerequest.RoleRequest),
			rolerequest.AdminRequests:   make(map[string]rolerequest.RoleRequest),
		},
		credentials: make(map[string]identity.Credential),
		revoked:     make(map[string]int64),
		courses:     make(map[string]course.Course),
	}
}

func (db *DB) collection(name string) map[string]rolerequest.RoleRequest {
	coll, ok := db.requests[name]
	if !ok {
		coll = make(map[string]rolerequest.RoleRequest)
		db.requests[name] = coll
	}
	return coll
}
