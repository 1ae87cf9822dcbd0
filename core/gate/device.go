package gate

import (
	"context"
	"sync"

	"github.com/trezcool/companion/core/identity"
)

// Device drives the gate for a single device session, on top of an identity.Client.
type Device struct {
	gate   *Gate
	client *identity.Client

	mu      sync.Mutex
	session Session
}

func NewDevice(g *Gate, client *identity.Client) *Device {
	return &Device{gate: g, client: client, session: Session{State: Unauthenticated}}
}

// Start routes the identity already signed in on the device, if any.
func (d *Device) Start(ctx context.Context) Session {
	id, ok := d.client.CurrentIdentity()
	if !ok {
		return d.set(Session{State: Unauthenticated})
	}
	return d.set(d.gate.Resume(ctx, id))
}

func (d *Device) Login(ctx context.Context, email, password string) Session {
	d.set(Session{State: Authenticating})
	id, err := d.client.Login(ctx, email, password)
	if err != nil {
		return d.set(Session{State: LoginFailed, Err: err})
	}
	return d.set(d.gate.Resume(ctx, id))
}

// Register keeps the new account signed in only when its profile could be created.
func (d *Device) Register(ctx context.Context, reg Registration) (Session, error) {
	sess, err := d.gate.Register(ctx, reg)
	if err == nil {
		d.client.Adopt(sess.Identity)
	}
	return d.set(sess), err
}

func (d *Device) Logout() Session {
	d.client.Logout()
	d.mu.Lock()
	defer d.mu.Unlock()
	d.session = d.gate.Logout(d.session)
	return d.session
}

func (d *Device) Session() Session {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.session
}

func (d *Device) set(sess Session) Session {
	d.mu.Lock()
	d.session = sess
	d.mu.Unlock()
	return sess
}
