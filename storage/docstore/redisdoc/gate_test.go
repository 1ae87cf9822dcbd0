package redisdoc

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/companion/core"
	"github.com/trezcool/companion/core/gate"
	"github.com/trezcool/companion/core/identity"
	"github.com/trezcool/companion/core/rolerequest"
	"github.com/trezcool/companion/core/user"
	emailsvc "github.com/trezcool/companion/services/email"
)

func TestGateOverRedis(t *testing.T) {
	client, _ := newTestClient(t)
	conf := &core.Config{AppName: "Companion", SecretKey: "secret"}
	validate := core.NewValidator(core.NewTranslator())
	mailSvc := emailsvc.NewConsoleServiceMock(conf)
	g, err := gate.New(gate.Deps{
		Provider: identity.NewLocalProvider(NewCredentialRepository(client), mailSvc, validate, conf),
		Profiles: user.NewService(NewProfileRepository(client)),
		Requests: NewRoleRequestRepository(client),
		Validate: validate,
		MailSvc:  mailSvc,
	})
	require.NoError(t, err)
	ctx := context.Background()

	// register then request the teacher role
	sess, err := g.Register(ctx, gate.Registration{
		Name: "Ann", Email: "ann@example.com", Password: "Gr8-teacher", PasswordConfirm: "Gr8-teacher",
	})
	require.NoError(t, err)
	assert.Equal(t, gate.RoutedStudent, sess.State)

	reqID, err := g.RequestRoleChange(ctx, sess.Identity.ID, "Ann", "ann@example.com", "I teach maths", user.RoleTeacher)
	require.NoError(t, err)
	pending, err := g.PendingRequests(ctx, user.RoleTeacher)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, reqID, pending[0].ID)

	// approval is atomic and final
	req, err := g.DecideRequest(ctx, reqID, user.RoleTeacher, true)
	require.NoError(t, err)
	assert.Equal(t, rolerequest.StatusApproved, req.Status)

	_, err = g.DecideRequest(ctx, reqID, user.RoleTeacher, false)
	assert.ErrorIs(t, err, rolerequest.ErrAlreadyResolved)
	req, err = g.GetRequest(ctx, user.RoleTeacher, reqID)
	require.NoError(t, err)
	assert.Equal(t, rolerequest.StatusApproved, req.Status)

	sess = g.Login(ctx, "ann@example.com", "Gr8-teacher")
	assert.Equal(t, gate.RoutedTeacher, sess.State)
	assert.Equal(t, gate.RouteTeacher, sess.Route())

	msgs := mailSvc.SentMessages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "ann@example.com", msgs[0].To[0].Address)
}
