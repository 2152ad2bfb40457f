// Package passkey implements the WebAuthn registration and
// authentication ceremonies: two independent two-phase state machines
// keyed by username. Challenge state is single-flight per user: a
// second Begin overwrites the prior pending challenge.
package passkey

import (
	"bytes"   // Credential id comparison
	"context" // Context for bounded DB calls
	"errors"  // Sentinel errors
	"io"      // Ceremony response bodies
	"strings" // Transport list encoding
	"sync"    // Guards ephemeral state maps

	"controlplane/internal/domain" // Importing domain models

	"github.com/go-webauthn/webauthn/protocol" // Wire-format parsing
	"github.com/go-webauthn/webauthn/webauthn" // Ceremony verification
	"github.com/sirupsen/logrus"               // Logging library
	"gorm.io/gorm"                             // GORM ORM library
)

// Sentinel errors returned by ceremony operations
var (
	ErrInvalidCeremony   = errors.New("invalid or expired ceremony")
	ErrUnknownCredential = errors.New("unknown credential")
	ErrNoCredentials     = errors.New("no registered credentials")
)

// TokenIssuer mints a session token for an authenticated subject
type TokenIssuer interface {
	Issue(username string) (string, error)
}

// Config carries the relying-party identity
type Config struct {
	RPID      string   // Relying-party id (the deployment domain)
	RPName    string   // Relying-party display name
	RPOrigins []string // Allowed origins
}

// Ceremony runs WebAuthn registration and authentication against the
// durable credential store. Usernames are canonicalized to lowercase
// on entry so state and credentials key consistently.
type Ceremony struct {
	db     *gorm.DB           // Durable credential storage
	web    *webauthn.WebAuthn // Protocol engine
	issuer TokenIssuer        // Session issuance after authentication

	// Parsing and verification steps, injectable for tests
	parseCreation    func(io.Reader) (*protocol.ParsedCredentialCreationData, error)
	parseAssertion   func(io.Reader) (*protocol.ParsedCredentialAssertionData, error)
	createCredential func(webauthn.User, webauthn.SessionData, *protocol.ParsedCredentialCreationData) (*webauthn.Credential, error)
	validateLogin    func(webauthn.User, webauthn.SessionData, *protocol.ParsedCredentialAssertionData) (*webauthn.Credential, error)

	mu           sync.Mutex                       // Guards both pending maps
	pendingReg   map[string]*webauthn.SessionData // Pending registration challenges by username
	pendingLogin map[string]*webauthn.SessionData // Pending authentication challenges by username
}

// New creates a ceremony handler for the given relying party
func New(cfg Config, db *gorm.DB, issuer TokenIssuer) (*Ceremony, error) {
	web, err := webauthn.New(&webauthn.Config{
		RPID:          cfg.RPID,
		RPDisplayName: cfg.RPName,
		RPOrigins:     cfg.RPOrigins,
	})
	if err != nil {
		return nil, err
	}
	return &Ceremony{
		db:               db,
		web:              web,
		issuer:           issuer,
		parseCreation:    protocol.ParseCredentialCreationResponseBody,
		parseAssertion:   protocol.ParseCredentialRequestResponseBody,
		createCredential: web.CreateCredential,
		validateLogin:    web.ValidateLogin,
		pendingReg:       make(map[string]*webauthn.SessionData),
		pendingLogin:     make(map[string]*webauthn.SessionData),
	}, nil
}

// BeginRegistration creates a fresh challenge bound to the relying
// party and username, replacing any prior pending registration.
func (c *Ceremony) BeginRegistration(ctx context.Context, username string) (*protocol.CredentialCreation, error) {
	username = strings.ToLower(username)
	user, err := c.loadUser(ctx, username)
	if err != nil {
		return nil, err
	}
	// Exclude already-registered authenticators from re-enrolling
	exclusions := make([]protocol.CredentialDescriptor, 0, len(user.creds))
	for _, cred := range user.creds {
		exclusions = append(exclusions, protocol.CredentialDescriptor{
			Type:         protocol.PublicKeyCredentialType,
			CredentialID: cred.ID,
		})
	}
	options, session, err := c.web.BeginRegistration(user, webauthn.WithExclusions(exclusions))
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.pendingReg[username] = session // Single-flight: overwrite any prior challenge
	c.mu.Unlock()
	return options, nil
}

// CompleteRegistration verifies the attestation response against the
// pending challenge and stores the new credential. Replaying the same
// attestation is a no-op; the ephemeral state is discarded on success.
func (c *Ceremony) CompleteRegistration(ctx context.Context, username string, body io.Reader) error {
	username = strings.ToLower(username)
	c.mu.Lock()
	session, ok := c.pendingReg[username]
	c.mu.Unlock()
	if !ok {
		return ErrInvalidCeremony
	}
	parsed, err := c.parseCreation(body)
	if err != nil {
		return ErrInvalidCeremony
	}
	user, err := c.loadUser(ctx, username)
	if err != nil {
		return err
	}
	cred, err := c.createCredential(user, *session, parsed)
	if err != nil {
		logrus.WithFields(logrus.Fields{"username": username, "error": err.Error()}).Warn("WebAuthn registration rejected")
		return ErrInvalidCeremony
	}
	c.mu.Lock()
	delete(c.pendingReg, username)
	c.mu.Unlock()
	// Deduplicate by credential id so a replayed attestation is a no-op
	for _, existing := range user.creds {
		if bytes.Equal(existing.ID, cred.ID) {
			return nil
		}
	}
	transports := make([]string, 0, len(cred.Transport))
	for _, t := range cred.Transport {
		transports = append(transports, string(t))
	}
	record := domain.Credential{
		Username:        username,
		CredentialID:    cred.ID,
		PublicKey:       cred.PublicKey,
		AttestationType: cred.AttestationType,
		Transports:      strings.Join(transports, ","),
		UserPresent:     cred.Flags.UserPresent,
		UserVerified:    cred.Flags.UserVerified,
		BackupEligible:  cred.Flags.BackupEligible,
		BackupState:     cred.Flags.BackupState,
		AAGUID:          cred.Authenticator.AAGUID,
		SignCount:       cred.Authenticator.SignCount,
	}
	return c.db.WithContext(ctx).Create(&record).Error
}

// BeginAuthentication builds assertion options carrying a fresh
// challenge and the allow-list of the user's credential ids. Fails
// with ErrNoCredentials when the user owns none.
func (c *Ceremony) BeginAuthentication(ctx context.Context, username string) (*protocol.CredentialAssertion, error) {
	username = strings.ToLower(username)
	user, err := c.loadUser(ctx, username)
	if err != nil {
		return nil, err
	}
	if len(user.creds) == 0 {
		return nil, ErrNoCredentials
	}
	options, session, err := c.web.BeginLogin(user)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.pendingLogin[username] = session // Single-flight: overwrite any prior challenge
	c.mu.Unlock()
	return options, nil
}

// CompleteAuthentication verifies the assertion against the pending
// challenge and the stored public key, persists the advanced signature
// counter (a regression is treated as a clone signal and rejected),
// and issues a session token.
func (c *Ceremony) CompleteAuthentication(ctx context.Context, username string, body io.Reader) (string, error) {
	username = strings.ToLower(username)
	c.mu.Lock()
	session, ok := c.pendingLogin[username]
	c.mu.Unlock()
	if !ok {
		return "", ErrInvalidCeremony
	}
	parsed, err := c.parseAssertion(body)
	if err != nil {
		return "", ErrInvalidCeremony
	}
	user, err := c.loadUser(ctx, username)
	if err != nil {
		return "", err
	}
	// The asserted credential must be one the user registered
	known := false
	for _, cred := range user.creds {
		if bytes.Equal(cred.ID, parsed.RawID) {
			known = true
			break
		}
	}
	if !known {
		return "", ErrUnknownCredential
	}
	validated, err := c.validateLogin(user, *session, parsed)
	if err != nil {
		logrus.WithFields(logrus.Fields{"username": username, "error": err.Error()}).Warn("WebAuthn authentication rejected")
		return "", ErrInvalidCeremony
	}
	// A non-advancing counter means a cloned authenticator may exist
	if validated.Authenticator.CloneWarning {
		logrus.WithFields(logrus.Fields{"username": username}).Warn("WebAuthn signature counter regression; possible cloned authenticator")
		return "", ErrInvalidCeremony
	}
	err = c.db.WithContext(ctx).Model(&domain.Credential{}).
		Where("credential_id = ?", validated.ID).
		Update("sign_count", validated.Authenticator.SignCount).Error
	if err != nil {
		return "", err
	}
	c.mu.Lock()
	delete(c.pendingLogin, username)
	c.mu.Unlock()
	return c.issuer.Issue(username)
}

// ceremonyUser adapts a username and its stored credentials to the
// webauthn.User interface. The user handle is the username bytes.
type ceremonyUser struct {
	name  string
	creds []webauthn.Credential
}

func (u *ceremonyUser) WebAuthnID() []byte                         { return []byte(u.name) }
func (u *ceremonyUser) WebAuthnName() string                       { return u.name }
func (u *ceremonyUser) WebAuthnDisplayName() string                { return u.name }
func (u *ceremonyUser) WebAuthnCredentials() []webauthn.Credential { return u.creds }

// loadUser fetches the user's stored credentials into the adapter
func (c *Ceremony) loadUser(ctx context.Context, username string) (*ceremonyUser, error) {
	var records []domain.Credential
	if err := c.db.WithContext(ctx).Where("username = ?", username).Find(&records).Error; err != nil {
		return nil, err
	}
	creds := make([]webauthn.Credential, 0, len(records))
	for _, r := range records {
		var transports []protocol.AuthenticatorTransport
		for _, t := range strings.Split(r.Transports, ",") {
			if t != "" {
				transports = append(transports, protocol.AuthenticatorTransport(t))
			}
		}
		creds = append(creds, webauthn.Credential{
			ID:              r.CredentialID,
			PublicKey:       r.PublicKey,
			AttestationType: r.AttestationType,
			Transport:       transports,
			Flags: webauthn.CredentialFlags{
				UserPresent:    r.UserPresent,
				UserVerified:   r.UserVerified,
				BackupEligible: r.BackupEligible,
				BackupState:    r.BackupState,
			},
			Authenticator: webauthn.Authenticator{
				AAGUID:    r.AAGUID,
				SignCount: r.SignCount,
			},
		})
	}
	return &ceremonyUser{name: username, creds: creds}, nil
}
