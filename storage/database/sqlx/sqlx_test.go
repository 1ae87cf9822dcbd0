package sqlxrepos

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/companion/core"
	"github.com/trezcool/companion/core/course"
	"github.com/trezcool/companion/core/identity"
	"github.com/trezcool/companion/core/rolerequest"
	"github.com/trezcool/companion/core/user"
	"github.com/trezcool/companion/storage/database"
)

// prepareDB connects to TEST_DATABASE_URL, migrates it and empties every table.
func prepareDB(t *testing.T) *sqlx.DB {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	db, err := sqlx.Connect("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, database.Migrate(context.Background(), db, "up"))
	db.MustExec("TRUNCATE users, role_requests, credentials, revoked_tokens, courses")
	return db
}

func TestProfileRepository(t *testing.T) {
	db := prepareDB(t)
	repo := NewProfileRepository(db)
	ctx := context.Background()

	_, err := repo.GetProfile(ctx, "u1")
	assert.Equal(t, user.ErrNotFound, err)
	assert.Equal(t, user.ErrNotFound, repo.SetProfileRole(ctx, "u1", user.RoleAdmin))

	p := user.Profile{ID: "u1", Name: "Ann", Email: "ann@example.com", Role: user.RoleStudent, CreatedAt: 1}
	require.NoError(t, repo.UpsertProfile(ctx, p))
	p.Name = "Ann B."
	require.NoError(t, repo.UpsertProfile(ctx, p))
	require.NoError(t, repo.SetProfileRole(ctx, "u1", user.RoleTeacher))

	got, err := repo.GetProfile(ctx, "u1")
	require.NoError(t, err)
	p.Role = user.RoleTeacher
	assert.Equal(t, p, got)

	all, err := repo.QueryAllProfiles(ctx)
	require.NoError(t, err)
	assert.Equal(t, []user.Profile{p}, all)
}

func TestRoleRequestRepository(t *testing.T) {
	db := prepareDB(t)
	profiles := NewProfileRepository(db)
	repo := NewRoleRequestRepository(db)
	granter := repo.(rolerequest.Granter)
	ctx := context.Background()
	coll := rolerequest.AdminRequests

	require.NoError(t, profiles.UpsertProfile(ctx, user.Profile{ID: "u1", Role: user.RoleStudent}))
	newReq := func(id, userID string) rolerequest.RoleRequest {
		return rolerequest.RoleRequest{
			ID: id, UserID: userID, Name: "Ann", Email: "ann@example.com", Details: "please",
			RequestedRole: user.RoleAdmin, Status: rolerequest.StatusPending, Timestamp: 10,
		}
	}
	for _, r := range []rolerequest.RoleRequest{newReq("r1", "u1"), newReq("r2", "u1"), newReq("r3", "ghost")} {
		require.NoError(t, repo.InsertRequest(ctx, coll, r))
	}

	got, err := repo.GetRequest(ctx, coll, "r1")
	require.NoError(t, err)
	assert.Equal(t, newReq("r1", "u1"), got)
	_, err = repo.GetRequest(ctx, rolerequest.TeacherRequests, "r1")
	assert.Equal(t, rolerequest.ErrNotFound, err)

	require.NoError(t, repo.ResolveRequest(ctx, coll, "r2", rolerequest.StatusRejected))
	assert.Equal(t, rolerequest.ErrAlreadyResolved, repo.ResolveRequest(ctx, coll, "r2", rolerequest.StatusApproved))

	require.NoError(t, granter.ResolveAndGrant(ctx, coll, "r1", user.RoleAdmin))
	p, err := profiles.GetProfile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, user.RoleAdmin, p.Role)

	// missing profile: nothing written
	assert.Equal(t, user.ErrNotFound, granter.ResolveAndGrant(ctx, coll, "r3", user.RoleAdmin))
	r3, _ := repo.GetRequest(ctx, coll, "r3")
	assert.Equal(t, rolerequest.StatusPending, r3.Status)

	all, err := repo.QueryAllRequests(ctx, coll)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestCredentialRepository(t *testing.T) {
	db := prepareDB(t)
	repo := NewCredentialRepository(db)
	denylist := NewDenylist(db)
	ctx := context.Background()

	cred := identity.Credential{Email: "ann@example.com", IdentityID: "id-1", PasswordHash: []byte("hash"), CreatedAt: 1}
	require.NoError(t, repo.CreateCredential(ctx, cred))
	assert.Equal(t, identity.ErrCredentialExists, repo.CreateCredential(ctx, cred))

	cred.LastLogin = 5
	require.NoError(t, repo.UpdateCredential(ctx, cred))
	got, err := repo.GetCredentialByIdentityID(ctx, "id-1")
	require.NoError(t, err)
	assert.Equal(t, cred, got)
	_, err = repo.GetCredentialByEmail(ctx, "bob@example.com")
	assert.Equal(t, identity.ErrCredentialNotFound, err)

	require.NoError(t, denylist.Revoke(ctx, "jti-1", core.EpochMillis(time.Now().Add(time.Hour))))
	revoked, err := denylist.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, revoked)
	revoked, err = denylist.IsRevoked(ctx, "jti-2")
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestCourseRepository(t *testing.T) {
	db := prepareDB(t)
	repo := NewCourseRepository(db)
	ctx := context.Background()

	_, err := repo.GetCourse(ctx, "c1")
	assert.Equal(t, course.ErrNotFound, err)

	c1 := course.Course{ID: "c1", Name: "Algebra", TeacherID: "t1", TeacherName: "Ann", CreatedAt: 1, MaxStudents: 40}
	c2 := course.Course{ID: "c2", Name: "Physics", Description: "mechanics", TeacherID: "t1", TeacherName: "Ann", CreatedAt: 2, MaxStudents: 25}
	c3 := course.Course{ID: "c3", Name: "History", TeacherID: "t2", CreatedAt: 3, MaxStudents: 40}
	for _, c := range []course.Course{c1, c2, c3} {
		require.NoError(t, repo.InsertCourse(ctx, c))
	}
	err = repo.InsertCourse(ctx, c1)
	require.Error(t, err)
	assert.True(t, core.IsStoreError(err))

	got, err := repo.GetCourse(ctx, "c2")
	require.NoError(t, err)
	assert.Equal(t, c2, got)

	courses, err := repo.QueryCoursesByTeacher(ctx, "t1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []course.Course{c1, c2}, courses)

	courses, err = repo.QueryCoursesByTeacher(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, courses)
}
