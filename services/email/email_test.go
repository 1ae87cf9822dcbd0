package emailsvc

import (
	"encoding/json"
	"net/http"
	"net/mail"
	"testing"
	"time"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/companion/core"
)

var testConf = &core.Config{
	AppName:          "Companion",
	DefaultFromEmail: "noreply@companion.test",
	FrontendBaseURL:  "https://app.companion.test",
	SendgridAPIKey:   "SG.test",
}

type decision struct {
	Name     string
	Role     string
	Status   string
	Approved bool
}

func decisionMessage() *core.EmailMessage {
	return &core.EmailMessage{
		To:           []mail.Address{{Name: "Uno", Address: "u1@x.com"}},
		Subject:      "Role Request approved",
		TemplateName: "role_request_decision",
		TemplateData: decision{Name: "Uno", Role: "TEACHER", Status: "approved", Approved: true},
	}
}

func TestConsoleService(t *testing.T) {
	svc := NewConsoleServiceMock(testConf)

	svc.SendMessages(
		decisionMessage(),
		&core.EmailMessage{Subject: "no recipient", BodyStr: "hi"},
		&core.EmailMessage{To: []mail.Address{{Address: "x@x.com"}}, Subject: "plain", BodyStr: "hi there"},
		&core.EmailMessage{To: []mail.Address{{Address: "x@x.com"}}, TemplateName: "does_not_exist"},
	)

	sent := svc.SentMessages()
	require.Len(t, sent, 2)

	assert.Contains(t, sent[0].TextContent, "Hello Uno,")
	assert.Contains(t, sent[0].TextContent, "Your request to become TEACHER has been approved.")
	assert.Contains(t, sent[0].TextContent, "Sign in again")
	assert.Contains(t, sent[0].HTMLContent, "<strong>TEACHER</strong>")

	assert.Equal(t, "hi there", sent[1].TextContent)
	assert.Empty(t, sent[1].HTMLContent)
}

func TestFromAddress(t *testing.T) {
	tests := []struct {
		from string
		want mail.Address
	}{
		{from: "noreply@x.com", want: mail.Address{Name: "Companion", Address: "noreply@x.com"}},
		{from: "Campus <campus@x.com>", want: mail.Address{Name: "Campus", Address: "campus@x.com"}},
		{from: "noreply@localhost", want: mail.Address{Name: "Companion", Address: "noreply@localhost"}},
	}
	for _, tt := range tests {
		t.Run(tt.from, func(t *testing.T) {
			assert.Equal(t, tt.want, fromAddress(&core.Config{AppName: "Companion", DefaultFromEmail: tt.from}))
		})
	}
}

func TestSendgridService(t *testing.T) {
	requests := make(chan rest.Request, 1)
	sendgridAPIFunc = func(req rest.Request) (*rest.Response, error) {
		requests <- req
		return &rest.Response{StatusCode: http.StatusAccepted}, nil
	}
	defer func() { sendgridAPIFunc = sendgrid.API }()

	svc := NewSendgridService(testConf, core.NopLogger{})
	svc.SendMessages(decisionMessage())

	var req rest.Request
	select {
	case req = <-requests:
	case <-time.After(5 * time.Second):
		t.Fatal("no request sent to sendgrid")
	}

	assert.Equal(t, rest.Post, req.Method)
	assert.Equal(t, host+endpoint, req.BaseURL)
	assert.Equal(t, "Bearer SG.test", req.Headers["Authorization"])

	var body struct {
		From struct {
			Email string `json:"email"`
		} `json:"from"`
		Personalizations []struct {
			To []struct {
				Email string `json:"email"`
			} `json:"to"`
			Subject string `json:"subject"`
		} `json:"personalizations"`
		Content []struct {
			Type  string `json:"type"`
			Value string `json:"value"`
		} `json:"content"`
	}
	require.NoError(t, json.Unmarshal(req.Body, &body))
	assert.Equal(t, "noreply@companion.test", body.From.Email)
	require.Len(t, body.Personalizations, 1)
	assert.Equal(t, "[Companion] Role Request approved", body.Personalizations[0].Subject)
	assert.Equal(t, "u1@x.com", body.Personalizations[0].To[0].Email)
	require.Len(t, body.Content, 2)
	assert.Equal(t, "text/plain", body.Content[0].Type)
	assert.Equal(t, "text/html", body.Content[1].Type)
}
