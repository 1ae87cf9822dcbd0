package echoapi

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/companion/core"
	"github.com/trezcool/companion/core/gate"
	"github.com/trezcool/companion/core/rolerequest"
	"github.com/trezcool/companion/core/user"
	testutil "github.com/trezcool/companion/tests"
)

// failingRoleGrants fails every profile role update.
type failingRoleGrants struct {
	user.Repository
}

func (failingRoleGrants) SetProfileRole(context.Context, string, user.Role) error {
	return core.NewStoreError("setting profile role", errors.New("connection reset"))
}

// plainRequests hides the rolerequest.Granter capability of the wrapped repository.
type plainRequests struct {
	rolerequest.Repository
}

func decodeRequests(t *testing.T, body []byte) []rolerequest.RoleRequest {
	t.Helper()
	var reqs []rolerequest.RoleRequest
	require.NoError(t, json.Unmarshal(body, &reqs))
	return reqs
}

func Test_roleRequestApi_access(t *testing.T) {
	app := setup(t)
	student := testutil.CreateAccount(t, app.Stack, "Student", "student@test.cd", "Pa$$w0rd!xyz", user.RoleStudent)
	admin := testutil.CreateAccount(t, app.Stack, "Admin", "admin@test.cd", "Pa$$w0rd!xyz", user.RoleAdmin)
	studentToken := app.getToken(t, student)
	adminToken := app.getToken(t, admin)
	reqID := testutil.SubmitRequest(t, app.Stack, student, user.RoleTeacher)

	forbidden := marshallObj(t, httpErr{Error: "permission denied"})
	notFound := marshallObj(t, httpErr{Error: "not found"})

	tests := []httpTest{
		{"list without token", http.MethodGet, "/v1/role-requests/teacher", nil, "", http.StatusUnauthorized, marshallObj(t, errMissingToken)},
		{"list as student", http.MethodGet, "/v1/role-requests/teacher", nil, studentToken, http.StatusForbidden, forbidden},
		{"retrieve as student", http.MethodGet, "/v1/role-requests/teacher/" + reqID, nil, studentToken, http.StatusForbidden, forbidden},
		{"decide as student", http.MethodPost, "/v1/role-requests/teacher/" + reqID + "/decision", []byte(`{"approved": true}`), studentToken, http.StatusForbidden, forbidden},
		{"reconcile as student", http.MethodPost, "/v1/role-requests/reconcile", nil, studentToken, http.StatusForbidden, forbidden},
		{"student role cannot be requested", http.MethodPost, "/v1/role-requests/student", []byte(`{}`), studentToken, http.StatusNotFound, notFound},
		{"unknown role", http.MethodGet, "/v1/role-requests/principal", nil, adminToken, http.StatusNotFound, notFound},
		{"unknown request", http.MethodGet, "/v1/role-requests/teacher/nope", nil, adminToken, http.StatusNotFound, marshallObj(t, httpErr{Error: "role request not found"})},
		{"request in another collection", http.MethodGet, "/v1/role-requests/admin/" + reqID, nil, adminToken, http.StatusNotFound, marshallObj(t, httpErr{Error: "role request not found"})},
		{"decision without verdict", http.MethodPost, "/v1/role-requests/teacher/" + reqID + "/decision", []byte(`{}`), adminToken, http.StatusBadRequest, marshallObj(t, map[string]string{"approved": "this field is required"})},
		{"unsupported status filter", http.MethodGet, "/v1/role-requests/teacher?status=approved", nil, adminToken, http.StatusBadRequest, marshallObj(t, map[string]string{"status": "only pending can be filtered"})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.srv.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}

	r, err := app.Gate.GetRequest(context.Background(), user.RoleTeacher, reqID)
	require.NoError(t, err)
	assert.Equal(t, rolerequest.StatusPending, r.Status, "denied calls must not resolve the request")
}

func Test_roleRequestApi_teacherPromotion(t *testing.T) {
	app := setup(t)
	student := testutil.CreateAccount(t, app.Stack, "Joe", "joe@test.cd", "Pa$$w0rd!xyz", user.RoleStudent)
	admin := testutil.CreateAccount(t, app.Stack, "Admin", "admin@test.cd", "Pa$$w0rd!xyz", user.RoleAdmin)
	studentToken := app.getToken(t, student)
	adminToken := app.getToken(t, admin)

	rec := app.serve(t, httpTest{
		method:   http.MethodPost,
		path:     "/v1/role-requests/Teacher",
		body:     []byte(`{"details": " I teach maths "}`),
		token:    studentToken,
		wantCode: http.StatusCreated,
	})
	var created struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotEmpty(t, created.ID)

	rec = app.serve(t, httpTest{method: http.MethodGet, path: "/v1/role-requests/teacher?status=pending", token: adminToken, wantCode: http.StatusOK})
	pending := decodeRequests(t, rec.Body.Bytes())
	require.Len(t, pending, 1)
	assert.Equal(t, rolerequest.RoleRequest{
		ID:            created.ID,
		UserID:        student.ID,
		Name:          "Joe",
		Email:         "joe@test.cd",
		Details:       "I teach maths",
		RequestedRole: user.RoleTeacher,
		Status:        rolerequest.StatusPending,
		Timestamp:     pending[0].Timestamp,
	}, pending[0])

	decisionPath := "/v1/role-requests/teacher/" + created.ID + "/decision"
	rec = app.serve(t, httpTest{method: http.MethodPost, path: decisionPath, body: []byte(`{"approved": true}`), token: adminToken, wantCode: http.StatusOK})
	var decided rolerequest.RoleRequest
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decided))
	assert.Equal(t, rolerequest.StatusApproved, decided.Status)

	t.Run("resolved requests cannot be decided again", func(t *testing.T) {
		tt := httpTest{wantCode: http.StatusConflict, wantData: marshallObj(t, httpErr{Error: "role request already resolved"})}
		req, rec := newAuthRequest(http.MethodPost, decisionPath, adminToken, []byte(`{"approved": false}`))
		app.srv.ServeHTTP(rec, req)
		checkCodeAndData(t, tt, rec)
	})

	t.Run("pending list is empty", func(t *testing.T) {
		tt := httpTest{wantCode: http.StatusOK, wantData: []byte(`[]`)}
		req, rec := newAuthRequest(http.MethodGet, "/v1/role-requests/teacher?status=pending", adminToken)
		app.srv.ServeHTTP(rec, req)
		checkCodeAndData(t, tt, rec)
	})

	t.Run("student lands on the teacher dashboard", func(t *testing.T) {
		rec := app.serve(t, httpTest{method: http.MethodGet, path: "/v1/auth/me", token: studentToken, wantCode: http.StatusOK})
		assert.Equal(t, gate.RouteTeacher, decodeSession(t, rec).Route)

		rec = app.serve(t, httpTest{
			method:   http.MethodPost,
			path:     "/v1/auth/login",
			body:     []byte(`{"email": "joe@test.cd", "password": "Pa$$w0rd!xyz"}`),
			wantCode: http.StatusOK,
		})
		assert.Equal(t, gate.RouteTeacher, decodeSession(t, rec).Route)
	})

	t.Run("requester is notified", func(t *testing.T) {
		msgs := app.MailSvc.SentMessages()
		require.Len(t, msgs, 1)
		assert.Equal(t, "joe@test.cd", msgs[0].To[0].Address)
	})
}

func Test_roleRequestApi_query(t *testing.T) {
	app := setup(t)
	admin := testutil.CreateAccount(t, app.Stack, "Admin", "admin@test.cd", "Pa$$w0rd!xyz", user.RoleAdmin)
	adminToken := app.getToken(t, admin)

	var ts int64 = 1_600_000_000_000
	core.NowFunc = func() time.Time { ts += 1000; return time.Unix(0, ts*int64(time.Millisecond)) }
	t.Cleanup(func() { core.NowFunc = time.Now })

	ann := testutil.CreateAccount(t, app.Stack, "Ann", "ann@test.cd", "Pa$$w0rd!xyz", user.RoleStudent)
	bob := testutil.CreateAccount(t, app.Stack, "Bob", "bob@test.cd", "Pa$$w0rd!xyz", user.RoleTeacher)
	first := testutil.SubmitRequest(t, app.Stack, ann, user.RoleAdmin)
	second := testutil.SubmitRequest(t, app.Stack, bob, user.RoleAdmin)
	third := testutil.SubmitRequest(t, app.Stack, ann, user.RoleAdmin)
	_, err := app.Gate.DecideRequest(context.Background(), second, user.RoleAdmin, false)
	require.NoError(t, err)

	ids := func(reqs []rolerequest.RoleRequest) []string {
		out := make([]string, len(reqs))
		for i, r := range reqs {
			out[i] = r.ID
		}
		return out
	}

	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{"newest first by default", "", []string{third, second, first}},
		{"pending only", "?status=pending", []string{third, first}},
		{"custom ordering", "?ordering=name,timestamp", []string{first, third, second}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := app.serve(t, httpTest{method: http.MethodGet, path: "/v1/role-requests/admin" + tt.query, token: adminToken, wantCode: http.StatusOK})
			assert.Equal(t, tt.want, ids(decodeRequests(t, rec.Body.Bytes())))
		})
	}

	t.Run("retrieve", func(t *testing.T) {
		rec := app.serve(t, httpTest{method: http.MethodGet, path: "/v1/role-requests/admin/" + second, token: adminToken, wantCode: http.StatusOK})
		var r rolerequest.RoleRequest
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &r))
		assert.Equal(t, second, r.ID)
		assert.Equal(t, bob.ID, r.UserID)
		assert.Equal(t, rolerequest.StatusRejected, r.Status)
	})
}

func Test_roleRequestApi_consistencyError(t *testing.T) {
	app := setup(t, func(s *testutil.Stack, deps *gate.Deps) {
		deps.Requests = plainRequests{s.Requests}
		deps.Profiles = user.NewService(failingRoleGrants{s.ProfileRepo})
	})
	student := testutil.CreateAccount(t, app.Stack, "Joe", "joe@test.cd", "Pa$$w0rd!xyz", user.RoleStudent)
	admin := testutil.CreateAccount(t, app.Stack, "Admin", "admin@test.cd", "Pa$$w0rd!xyz", user.RoleAdmin)
	reqID := testutil.SubmitRequest(t, app.Stack, student, user.RoleTeacher)

	rec := app.serve(t, httpTest{
		method:   http.MethodPost,
		path:     "/v1/role-requests/teacher/" + reqID + "/decision",
		body:     []byte(`{"approved": true}`),
		token:    app.getToken(t, admin),
		wantCode: http.StatusInternalServerError,
	})
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, reqID, body["request_id"])
	assert.Equal(t, student.ID, body["user_id"])
	assert.Contains(t, body["error"], "approved but role TEACHER not granted")

	r, err := app.Gate.GetRequest(context.Background(), user.RoleTeacher, reqID)
	require.NoError(t, err)
	assert.Equal(t, rolerequest.StatusApproved, r.Status)

	p, err := app.Profiles.GetProfile(context.Background(), student.ID)
	require.NoError(t, err)
	assert.Equal(t, user.RoleStudent, p.Role)

	rec = app.serve(t, httpTest{method: http.MethodGet, path: "/metrics", wantCode: http.StatusOK})
	assert.Contains(t, rec.Body.String(), `companion_role_decisions_total{outcome="inconsistent",role="TEACHER"} 1`)
}

func Test_roleRequestApi_reconcile(t *testing.T) {
	app := setup(t)
	student := testutil.CreateAccount(t, app.Stack, "Joe", "joe@test.cd", "Pa$$w0rd!xyz", user.RoleStudent)
	admin := testutil.CreateAccount(t, app.Stack, "Admin", "admin@test.cd", "Pa$$w0rd!xyz", user.RoleAdmin)
	reqID := testutil.SubmitRequest(t, app.Stack, student, user.RoleAdmin)

	// approved without the grant, as left behind by a failed decision
	store, err := rolerequest.NewStore(app.Requests, user.RoleAdmin)
	require.NoError(t, err)
	require.NoError(t, store.SetStatus(context.Background(), reqID, rolerequest.StatusApproved))

	// approved request of an account whose profile is gone
	require.NoError(t, app.Requests.InsertRequest(context.Background(), rolerequest.AdminRequests, rolerequest.RoleRequest{
		ID: "orphan", UserID: "deleted-user", Email: "gone@test.cd",
		RequestedRole: user.RoleAdmin, Status: rolerequest.StatusApproved, Timestamp: 1,
	}))

	adminToken := app.getToken(t, admin)
	tt := httpTest{wantCode: http.StatusOK, wantData: []byte(`{"repaired": 1}`)}
	req, rec := newAuthRequest(http.MethodPost, "/v1/role-requests/reconcile", adminToken)
	app.srv.ServeHTTP(rec, req)
	checkCodeAndData(t, tt, rec)

	p, err := app.Profiles.GetProfile(context.Background(), student.ID)
	require.NoError(t, err)
	assert.Equal(t, user.RoleAdmin, p.Role)

	tt.wantData = []byte(`{"repaired": 0}`)
	req, rec = newAuthRequest(http.MethodPost, "/v1/role-requests/reconcile", adminToken)
	app.srv.ServeHTTP(rec, req)
	checkCodeAndData(t, tt, rec)
}

func Test_roleRequestApi_reconcile_incomplete(t *testing.T) {
	app := setup(t, func(s *testutil.Stack, deps *gate.Deps) {
		deps.Profiles = user.NewService(failingRoleGrants{s.ProfileRepo})
	})
	student := testutil.CreateAccount(t, app.Stack, "Joe", "joe@test.cd", "Pa$$w0rd!xyz", user.RoleStudent)
	admin := testutil.CreateAccount(t, app.Stack, "Admin", "admin@test.cd", "Pa$$w0rd!xyz", user.RoleAdmin)
	reqID := testutil.SubmitRequest(t, app.Stack, student, user.RoleTeacher)

	store, err := rolerequest.NewStore(app.Requests, user.RoleTeacher)
	require.NoError(t, err)
	require.NoError(t, store.SetStatus(context.Background(), reqID, rolerequest.StatusApproved))

	req, rec := newAuthRequest(http.MethodPost, "/v1/role-requests/reconcile", app.getToken(t, admin))
	app.srv.ServeHTTP(rec, req)
	checkCodeAndData(t, httpTest{
		wantCode: http.StatusInternalServerError,
		wantData: []byte(`{"repaired": 0, "error": "reconciliation incomplete"}`),
	}, rec)
}
