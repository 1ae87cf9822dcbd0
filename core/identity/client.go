package identity

import (
	"context"
	"sync"
)

// Client holds the current session of one device on top of a Provider.
type Client struct {
	provider Provider

	mu      sync.RWMutex
	current Identity
}

func NewClient(provider Provider) *Client {
	return &Client{provider: provider}
}

func (c *Client) Provider() Provider { return c.provider }

// Register creates an account and makes it the current session.
func (c *Client) Register(ctx context.Context, email, password string) (Identity, error) {
	id, err := c.provider.SignUp(ctx, email, password)
	if err != nil {
		return Identity{}, err
	}
	c.setCurrent(id)
	return id, nil
}

// Login checks the credentials and makes the identity the current session.
// A failed attempt leaves the previous session untouched.
func (c *Client) Login(ctx context.Context, email, password string) (Identity, error) {
	id, err := c.provider.SignIn(ctx, email, password)
	if err != nil {
		return Identity{}, err
	}
	c.setCurrent(id)
	return id, nil
}

// Adopt makes id the current session. It is used when the account was created outside of Register.
func (c *Client) Adopt(id Identity) {
	c.setCurrent(id)
}

// Logout clears the current session. It never fails.
func (c *Client) Logout() {
	c.setCurrent(Identity{})
}

// CurrentIdentity returns the last known authenticated identity, without calling the provider.
func (c *Client) CurrentIdentity() (Identity, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current, !c.current.IsZero()
}

func (c *Client) SendPasswordReset(ctx context.Context, email string) error {
	return c.provider.SendPasswordReset(ctx, email)
}

func (c *Client) setCurrent(id Identity) {
	c.mu.Lock()
	c.current = id
	c.mu.Unlock()
}
