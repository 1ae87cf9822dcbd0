package echoapi

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"

	"github.com/trezcool/companion/core"
	"github.com/trezcool/companion/core/user"
	testutil "github.com/trezcool/companion/tests"
)

func TestServer_home(t *testing.T) {
	app := setup(t)
	rec := app.serve(t, httpTest{method: http.MethodGet, path: "/", wantCode: http.StatusOK})
	assert.Equal(t, "Welcome to Companion API!", rec.Body.String())

	tt := httpTest{wantCode: http.StatusNotFound, wantData: marshallObj(t, httpErr{Error: "Not Found"})}
	req, rec := newRequest(http.MethodGet, "/v1/nowhere")
	app.srv.ServeHTTP(rec, req)
	checkCodeAndData(t, tt, rec)
}

func TestServer_metrics(t *testing.T) {
	app := setup(t)
	testutil.CreateAccount(t, app.Stack, "Teacher", "teacher@test.cd", "Pa$$w0rd!xyz", user.RoleTeacher)

	app.serve(t, httpTest{
		method:   http.MethodPost,
		path:     "/v1/auth/login",
		body:     []byte(`{"email": "teacher@test.cd", "password": "Pa$$w0rd!xyz"}`),
		wantCode: http.StatusOK,
	})
	app.serve(t, httpTest{
		method:   http.MethodPost,
		path:     "/v1/auth/login",
		body:     []byte(`{"email": "teacher@test.cd", "password": "nope-nope"}`),
		wantCode: http.StatusBadRequest,
	})

	rec := app.serve(t, httpTest{method: http.MethodGet, path: "/metrics", wantCode: http.StatusOK})
	body := rec.Body.String()
	for _, want := range []string{
		`companion_logins_total{outcome="success",route="teacher"} 1`,
		`companion_logins_total{outcome="failed",route=""} 1`,
		`companion_http_requests_total{code="200",method="POST",route="/v1/auth/login"} 1`,
		`companion_http_requests_total{code="400",method="POST",route="/v1/auth/login"} 1`,
		"go_goroutines",
	} {
		assert.True(t, strings.Contains(body, want), "missing %s", want)
	}
}

func TestServer_shutdownOnFatalError(t *testing.T) {
	app := setup(t)
	app.srv.app.GET("/fatal", func(echo.Context) error {
		return core.NewShutdownError("integrity check failed")
	})

	tt := httpTest{wantCode: http.StatusInternalServerError, wantData: marshallObj(t, httpErr{Error: "Internal Server Error"})}
	req, rec := newRequest(http.MethodGet, "/fatal")
	app.srv.ServeHTTP(rec, req)
	checkCodeAndData(t, tt, rec)

	select {
	case <-app.srv.ShutdownSignal():
	case <-time.After(time.Second):
		t.Fatal("shutdown not signaled")
	}
}
