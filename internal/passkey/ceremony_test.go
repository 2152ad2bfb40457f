package passkey

import (
	"context"
	"io"
	"strings"
	"testing"

	"controlplane/internal/domain"

	"github.com/glebarez/sqlite"
	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type staticIssuer struct{}

func (staticIssuer) Issue(username string) (string, error) { return "token-for-" + username, nil }

func newCeremony(t *testing.T) (*Ceremony, *gorm.DB) {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, gdb.AutoMigrate(&domain.User{}, &domain.Credential{}))

	c, err := New(Config{
		RPID:      "example.com",
		RPName:    "Example",
		RPOrigins: []string{"https://example.com"},
	}, gdb, staticIssuer{})
	require.NoError(t, err)
	return c, gdb
}

func TestBeginRegistrationIssuesChallenge(t *testing.T) {
	c, _ := newCeremony(t)

	options, err := c.BeginRegistration(context.Background(), "alice")
	require.NoError(t, err)
	require.NotEmpty(t, options.Response.Challenge)
	require.Equal(t, "example.com", options.Response.RelyingParty.ID)
	require.Equal(t, "alice", options.Response.User.Name)
}

func TestBeginRegistrationOverwritesPending(t *testing.T) {
	c, _ := newCeremony(t)
	ctx := context.Background()

	first, err := c.BeginRegistration(ctx, "alice")
	require.NoError(t, err)
	second, err := c.BeginRegistration(ctx, "alice")
	require.NoError(t, err)
	require.NotEqual(t, first.Response.Challenge, second.Response.Challenge)

	// Only the latest challenge survives
	c.mu.Lock()
	session := c.pendingReg["alice"]
	c.mu.Unlock()
	require.NotNil(t, session)
	require.Equal(t, second.Response.Challenge.String(), session.Challenge)
}

func TestCompleteRegistrationWithoutBegin(t *testing.T) {
	c, _ := newCeremony(t)

	err := c.CompleteRegistration(context.Background(), "alice", strings.NewReader("{}"))
	require.ErrorIs(t, err, ErrInvalidCeremony)
}

func TestCompleteRegistrationGarbageBody(t *testing.T) {
	c, _ := newCeremony(t)
	ctx := context.Background()

	_, err := c.BeginRegistration(ctx, "alice")
	require.NoError(t, err)

	err = c.CompleteRegistration(ctx, "alice", strings.NewReader("not json"))
	require.ErrorIs(t, err, ErrInvalidCeremony)
}

func TestBeginAuthenticationRequiresCredentials(t *testing.T) {
	c, _ := newCeremony(t)

	_, err := c.BeginAuthentication(context.Background(), "alice")
	require.ErrorIs(t, err, ErrNoCredentials)
}

func TestBeginAuthenticationWithStoredCredential(t *testing.T) {
	c, db := newCeremony(t)
	ctx := context.Background()

	require.NoError(t, db.Create(&domain.Credential{
		Username:     "alice",
		CredentialID: []byte("cred-id-1"),
		PublicKey:    []byte("pubkey"),
	}).Error)

	options, err := c.BeginAuthentication(ctx, "alice")
	require.NoError(t, err)
	require.NotEmpty(t, options.Response.Challenge)
	require.Len(t, options.Response.AllowedCredentials, 1)
	require.Equal(t, []byte("cred-id-1"), []byte(options.Response.AllowedCredentials[0].CredentialID))
}

func TestCompleteAuthenticationWithoutBegin(t *testing.T) {
	c, _ := newCeremony(t)

	_, err := c.CompleteAuthentication(context.Background(), "alice", strings.NewReader("{}"))
	require.ErrorIs(t, err, ErrInvalidCeremony)
}

func TestCompleteAuthenticationGarbageBody(t *testing.T) {
	c, db := newCeremony(t)
	ctx := context.Background()

	require.NoError(t, db.Create(&domain.Credential{
		Username:     "alice",
		CredentialID: []byte("cred-id-1"),
		PublicKey:    []byte("pubkey"),
	}).Error)
	_, err := c.BeginAuthentication(ctx, "alice")
	require.NoError(t, err)

	_, err = c.CompleteAuthentication(ctx, "alice", strings.NewReader("not json"))
	require.ErrorIs(t, err, ErrInvalidCeremony)
}

// stubRegistration short-circuits parsing and attestation verification
// so the post-verification storage paths are reachable without a real
// authenticator.
func stubRegistration(c *Ceremony, cred *webauthn.Credential) {
	c.parseCreation = func(io.Reader) (*protocol.ParsedCredentialCreationData, error) {
		return &protocol.ParsedCredentialCreationData{}, nil
	}
	c.createCredential = func(webauthn.User, webauthn.SessionData, *protocol.ParsedCredentialCreationData) (*webauthn.Credential, error) {
		return cred, nil
	}
}

// stubAssertion short-circuits parsing and assertion verification
func stubAssertion(c *Ceremony, rawID []byte, validated *webauthn.Credential) {
	c.parseAssertion = func(io.Reader) (*protocol.ParsedCredentialAssertionData, error) {
		parsed := &protocol.ParsedCredentialAssertionData{}
		parsed.RawID = protocol.URLEncodedBase64(rawID)
		return parsed, nil
	}
	c.validateLogin = func(webauthn.User, webauthn.SessionData, *protocol.ParsedCredentialAssertionData) (*webauthn.Credential, error) {
		return validated, nil
	}
}

func TestCompleteRegistrationStoresCredential(t *testing.T) {
	c, db := newCeremony(t)
	ctx := context.Background()

	stubRegistration(c, &webauthn.Credential{
		ID:              []byte("cred-id-1"),
		PublicKey:       []byte("pubkey"),
		AttestationType: "none",
		Transport:       []protocol.AuthenticatorTransport{protocol.USB},
		Flags:           webauthn.CredentialFlags{UserPresent: true, UserVerified: true},
		Authenticator:   webauthn.Authenticator{SignCount: 1},
	})

	_, err := c.BeginRegistration(ctx, "alice")
	require.NoError(t, err)
	require.NoError(t, c.CompleteRegistration(ctx, "alice", strings.NewReader("{}")))

	var stored domain.Credential
	require.NoError(t, db.Where("username = ?", "alice").First(&stored).Error)
	require.Equal(t, []byte("cred-id-1"), stored.CredentialID)
	require.Equal(t, "usb", stored.Transports)
	require.True(t, stored.UserPresent)
	require.Equal(t, uint32(1), stored.SignCount)
}

func TestCompleteRegistrationReplayDoesNotDuplicate(t *testing.T) {
	c, db := newCeremony(t)
	ctx := context.Background()

	stubRegistration(c, &webauthn.Credential{
		ID:        []byte("cred-id-1"),
		PublicKey: []byte("pubkey"),
	})

	_, err := c.BeginRegistration(ctx, "alice")
	require.NoError(t, err)
	require.NoError(t, c.CompleteRegistration(ctx, "alice", strings.NewReader("{}")))

	// Replaying the same attestation through a fresh ceremony is a
	// no-op, not a second credential row
	_, err = c.BeginRegistration(ctx, "alice")
	require.NoError(t, err)
	require.NoError(t, c.CompleteRegistration(ctx, "alice", strings.NewReader("{}")))

	var count int64
	require.NoError(t, db.Model(&domain.Credential{}).Where("username = ?", "alice").Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestCompleteAuthenticationRejectsCounterRegression(t *testing.T) {
	c, db := newCeremony(t)
	ctx := context.Background()

	require.NoError(t, db.Create(&domain.Credential{
		Username:     "alice",
		CredentialID: []byte("cred-id-1"),
		PublicKey:    []byte("pubkey"),
		SignCount:    10,
	}).Error)
	stubAssertion(c, []byte("cred-id-1"), &webauthn.Credential{
		ID:            []byte("cred-id-1"),
		Authenticator: webauthn.Authenticator{SignCount: 5, CloneWarning: true},
	})

	_, err := c.BeginAuthentication(ctx, "alice")
	require.NoError(t, err)
	_, err = c.CompleteAuthentication(ctx, "alice", strings.NewReader("{}"))
	require.ErrorIs(t, err, ErrInvalidCeremony)

	// The stored counter is untouched by the rejected login
	var stored domain.Credential
	require.NoError(t, db.Where("username = ?", "alice").First(&stored).Error)
	require.Equal(t, uint32(10), stored.SignCount)
}

func TestCompleteAuthenticationAdvancesCounterAndIssuesToken(t *testing.T) {
	c, db := newCeremony(t)
	ctx := context.Background()

	require.NoError(t, db.Create(&domain.Credential{
		Username:     "alice",
		CredentialID: []byte("cred-id-1"),
		PublicKey:    []byte("pubkey"),
		SignCount:    10,
	}).Error)
	stubAssertion(c, []byte("cred-id-1"), &webauthn.Credential{
		ID:            []byte("cred-id-1"),
		Authenticator: webauthn.Authenticator{SignCount: 11},
	})

	_, err := c.BeginAuthentication(ctx, "alice")
	require.NoError(t, err)
	token, err := c.CompleteAuthentication(ctx, "alice", strings.NewReader("{}"))
	require.NoError(t, err)
	require.Equal(t, "token-for-alice", token)

	var stored domain.Credential
	require.NoError(t, db.Where("username = ?", "alice").First(&stored).Error)
	require.Equal(t, uint32(11), stored.SignCount)
}

func TestCompleteAuthenticationUnknownCredential(t *testing.T) {
	c, db := newCeremony(t)
	ctx := context.Background()

	require.NoError(t, db.Create(&domain.Credential{
		Username:     "alice",
		CredentialID: []byte("cred-id-1"),
		PublicKey:    []byte("pubkey"),
	}).Error)
	stubAssertion(c, []byte("cred-id-other"), &webauthn.Credential{
		ID: []byte("cred-id-other"),
	})

	_, err := c.BeginAuthentication(ctx, "alice")
	require.NoError(t, err)
	_, err = c.CompleteAuthentication(ctx, "alice", strings.NewReader("{}"))
	require.ErrorIs(t, err, ErrUnknownCredential)
}

func TestCeremonyNormalizesUsernameCase(t *testing.T) {
	c, db := newCeremony(t)
	ctx := context.Background()

	require.NoError(t, db.Create(&domain.Credential{
		Username:     "alice",
		CredentialID: []byte("cred-id-1"),
		PublicKey:    []byte("pubkey"),
	}).Error)

	// A mixed-case spelling resolves to the same credentials and the
	// same pending-state slot
	options, err := c.BeginAuthentication(ctx, "Alice")
	require.NoError(t, err)
	require.Len(t, options.Response.AllowedCredentials, 1)

	c.mu.Lock()
	_, pendingCanonical := c.pendingLogin["alice"]
	_, pendingTyped := c.pendingLogin["Alice"]
	c.mu.Unlock()
	require.True(t, pendingCanonical)
	require.False(t, pendingTyped)

	stubAssertion(c, []byte("cred-id-1"), &webauthn.Credential{
		ID:            []byte("cred-id-1"),
		Authenticator: webauthn.Authenticator{SignCount: 1},
	})
	token, err := c.CompleteAuthentication(ctx, "ALICE", strings.NewReader("{}"))
	require.NoError(t, err)
	require.Equal(t, "token-for-alice", token)
}
