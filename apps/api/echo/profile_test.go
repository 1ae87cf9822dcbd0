package echoapi

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/companion/core/user"
	testutil "github.com/trezcool/companion/tests"
)

func Test_profileApi(t *testing.T) {
	app := setup(t)
	student := testutil.CreateAccount(t, app.Stack, "Joe", "joe@test.cd", "Pa$$w0rd!xyz", user.RoleStudent)
	teacher := testutil.CreateAccount(t, app.Stack, "Ann", "ann@test.cd", "Pa$$w0rd!xyz", user.RoleTeacher)
	admin := testutil.CreateAccount(t, app.Stack, "Admin", "admin@test.cd", "Pa$$w0rd!xyz", user.RoleAdmin)
	adminToken := app.getToken(t, admin)
	forbidden := marshallObj(t, httpErr{Error: "permission denied"})

	tests := []httpTest{
		{"list without token", http.MethodGet, "/v1/profiles", nil, "", http.StatusUnauthorized, marshallObj(t, errMissingToken)},
		{"list as student", http.MethodGet, "/v1/profiles", nil, app.getToken(t, student), http.StatusForbidden, forbidden},
		{"list as teacher", http.MethodGet, "/v1/profiles", nil, app.getToken(t, teacher), http.StatusForbidden, forbidden},
		{"unknown role filter", http.MethodGet, "/v1/profiles?role=dean", nil, adminToken, http.StatusBadRequest, marshallObj(t, map[string]string{"role": "unknown role dean"})},
		{"unknown profile", http.MethodGet, "/v1/profiles/nope", nil, adminToken, http.StatusNotFound, marshallObj(t, httpErr{Error: "profile not found"})},
		{"retrieve", http.MethodGet, "/v1/profiles/" + teacher.ID, nil, adminToken, http.StatusOK, marshallObj(t, teacher)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.srv.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}

	decode := func(t *testing.T, body []byte) []user.Profile {
		var profiles []user.Profile
		require.NoError(t, json.Unmarshal(body, &profiles))
		return profiles
	}

	t.Run("list", func(t *testing.T) {
		rec := app.serve(t, httpTest{method: http.MethodGet, path: "/v1/profiles", token: adminToken, wantCode: http.StatusOK})
		assert.ElementsMatch(t, []user.Profile{student, teacher, admin}, decode(t, rec.Body.Bytes()))
	})

	t.Run("filter by roles", func(t *testing.T) {
		rec := app.serve(t, httpTest{method: http.MethodGet, path: "/v1/profiles?role=teacher,ADMIN", token: adminToken, wantCode: http.StatusOK})
		assert.ElementsMatch(t, []user.Profile{teacher, admin}, decode(t, rec.Body.Bytes()))
	})
}
