package echoapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/companion/core"
	"github.com/trezcool/companion/core/gate"
	"github.com/trezcool/companion/core/identity"
	"github.com/trezcool/companion/core/user"
	testutil "github.com/trezcool/companion/tests"
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

type testApp struct {
	*testutil.Stack
	srv     *Server
	auth    *authenticator
	metrics *Metrics
}

func setup(t *testing.T, opts ...testutil.Option) *testApp {
	t.Helper()

	s := testutil.NewStack(t, opts...)
	app := &testApp{Stack: s, metrics: NewMetrics()}
	app.srv = NewServer(ServerDeps{
		Conf:           s.Conf,
		Logger:         core.NopLogger{},
		Gate:           s.Gate,
		Profiles:       s.Profiles,
		Courses:        s.Courses,
		Denylist:       s.Denylist,
		Validate:       s.Validate,
		Translator:     s.Translator,
		Metrics:        app.metrics,
		DisableReqLogs: true,
	})
	app.auth = newAuthenticator(s.Conf, s.Denylist)
	t.Cleanup(func() { _ = app.srv.Close() })
	return app
}

// serve runs tt against the server and checks the status code.
func (app *testApp) serve(t *testing.T, tt httpTest) *httptest.ResponseRecorder {
	t.Helper()
	req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
	app.srv.ServeHTTP(rec, req)
	require.Equal(t, tt.wantCode, rec.Code, "body: %s", rec.Body.String())
	return rec
}

// getToken issues the token a routed login of p would receive.
func (app *testApp) getToken(t *testing.T, p user.Profile) string {
	t.Helper()
	sess := gate.Session{
		State:    gate.RouteFor(p.Role),
		Identity: identity.Identity{ID: p.ID, Email: p.Email},
		Profile:  &p,
	}
	token, err := app.auth.GenerateToken(app.auth.NewClaims(sess))
	require.NoError(t, err)
	return token
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func marshallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marshallObj() failed: %v", err)
	}
	return data
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	if j1 == nil || j2 == nil {
		return false, nil
	}
	return assert.ElementsMatch(t, j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

func decodeSession(t *testing.T, rec *httptest.ResponseRecorder) SessionResponse {
	t.Helper()
	var resp SessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}
