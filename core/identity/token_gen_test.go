package identity

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/trezcool/companion/core"
)

func TestMakeVerifyToken(t *testing.T) {
	tg := newTokenGenerator(&core.Config{SecretKey: "secret", PasswordResetTimeoutDelta: 3 * 24 * time.Hour})

	now := time.Now()
	cred := Credential{
		Email:      "t@test.test",
		IdentityID: "0b6a7c1e",
		CreatedAt:  core.EpochMillis(now),
		LastLogin:  core.EpochMillis(now),
	}
	_ = cred.SetPassword("pwd")

	validToken, err := tg.makeToken(cred)
	if err != nil {
		t.Fatalf("makeToken() failed: %v", err)
	}

	// generate an expired token
	dayLate := tg.timeout + (24 * time.Hour)
	core.NowFunc = func() time.Time { return time.Now().Add(-dayLate) }
	expiredToken, _ := tg.makeToken(cred)
	core.NowFunc = time.Now // reset

	// signing in again invalidates the tokens issued before
	signedIn := cred
	signedIn.LastLogin++

	otherKey := newTokenGenerator(&core.Config{SecretKey: "other", PasswordResetTimeoutDelta: tg.timeout})

	tests := []struct {
		name    string
		tg      tokenGenerator
		cred    Credential
		token   string
		wantErr error
	}{
		{name: "no token", tg: tg, cred: cred, wantErr: ErrInvalidToken},
		{name: "invalid parts len", tg: tg, cred: cred, token: "lmaooolol", wantErr: ErrInvalidToken},
		{name: "invalid base32", tg: tg, cred: cred, token: "hahaha-sigsig-sig", wantErr: ErrInvalidToken},
		{name: "invalid timestamp", tg: tg, cred: cred, token: "NRXWY-sigsig-sig", wantErr: ErrInvalidToken},
		{name: "invalid token", tg: tg, cred: cred, token: "HE4TS-sigsig-sig", wantErr: ErrInvalidToken},
		{name: "expired token", tg: tg, cred: cred, token: expiredToken, wantErr: ErrTokenExpired},
		{name: "credential changed", tg: tg, cred: signedIn, token: validToken, wantErr: ErrInvalidToken},
		{name: "other secret", tg: otherKey, cred: cred, token: validToken, wantErr: ErrInvalidToken},
		{name: "valid token", tg: tg, cred: cred, token: validToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.tg.verifyToken(tt.cred, tt.token); err != tt.wantErr {
				t.Errorf("verifyToken() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestEncodeUID(t *testing.T) {
	cred := Credential{IdentityID: "5f0c3a4e-1d2b-4c6a-9e8f-7a6b5c4d3e2f"}
	got, err := decodeUID(EncodeUID(cred))
	if err != nil {
		t.Fatalf("decodeUID() failed: %v", err)
	}
	if got != cred.IdentityID {
		t.Errorf("decodeUID() = %s, want %s", got, cred.IdentityID)
	}
}

func TestIsWeakPassword(t *testing.T) {
	tests := []struct {
		pwd   string
		email string
		want  bool
	}{
		{pwd: "12345", email: "bob@x.com", want: true},
		{pwd: "secret1", email: "alice@x.com"},
		{pwd: "secret", email: ""},
		{pwd: "alice@x.co", email: "alice@x.com", want: true},
		{pwd: "Lx9#qTz!", email: "alice@x.com"},
		{pwd: strings.Repeat("x", 72), email: "alice@x.com"},
		{pwd: strings.Repeat("x", 73), email: "alice@x.com", want: true},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%.12s/%d", tt.pwd, len(tt.pwd)), func(t *testing.T) {
			if got := IsWeakPassword(tt.pwd, tt.email); got != tt.want {
				t.Errorf("IsWeakPassword() = %v, want %v", got, tt.want)
			}
		})
	}
}
