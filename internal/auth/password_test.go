package auth

import (
	"context"
	"testing"

	"controlplane/internal/domain"

	"github.com/stretchr/testify/require"
)

func TestRegisterThenAuthenticate(t *testing.T) {
	authority := NewPasswordAuthority(newTestDB(t))
	ctx := context.Background()

	require.NoError(t, authority.Register(ctx, "alice", "correct-horse"))

	username, err := authority.Authenticate(ctx, "alice", "correct-horse")
	require.NoError(t, err)
	require.Equal(t, "alice", username)

	_, err = authority.Authenticate(ctx, "alice", "wrong-password")
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestAuthenticateReturnsCanonicalUsername(t *testing.T) {
	authority := NewPasswordAuthority(newTestDB(t))
	ctx := context.Background()

	require.NoError(t, authority.Register(ctx, "Alice", "correct-horse"))

	// Whatever spelling the caller types, the canonical lowercase name
	// comes back for session issuance
	username, err := authority.Authenticate(ctx, "ALICE", "correct-horse")
	require.NoError(t, err)
	require.Equal(t, "alice", username)
}

func TestRegisterConflict(t *testing.T) {
	authority := NewPasswordAuthority(newTestDB(t))
	ctx := context.Background()

	require.NoError(t, authority.Register(ctx, "bob", "password123"))
	require.ErrorIs(t, authority.Register(ctx, "bob", "otherpassword"), ErrConflict)
	// Usernames are case-insensitive
	require.ErrorIs(t, authority.Register(ctx, "BOB", "otherpassword"), ErrConflict)
}

func TestRegisterValidation(t *testing.T) {
	authority := NewPasswordAuthority(newTestDB(t))
	ctx := context.Background()

	require.ErrorIs(t, authority.Register(ctx, "not valid!", "password123"), ErrInvalidUsername)
	require.ErrorIs(t, authority.Register(ctx, "carol", "short"), ErrInvalidPassword)
}

func TestRegisterCreatesWallet(t *testing.T) {
	db := newTestDB(t)
	authority := NewPasswordAuthority(db)
	ctx := context.Background()

	require.NoError(t, authority.Register(ctx, "dave", "password123"))

	var w domain.Wallet
	require.NoError(t, db.Where("username = ?", "dave").First(&w).Error)
	require.Zero(t, w.BalanceCents)
}

func TestAuthenticateUnknownUser(t *testing.T) {
	authority := NewPasswordAuthority(newTestDB(t))

	_, err := authority.Authenticate(context.Background(), "nobody", "password123")
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestPasswordNeverStoredPlaintext(t *testing.T) {
	db := newTestDB(t)
	authority := NewPasswordAuthority(db)

	require.NoError(t, authority.Register(context.Background(), "eve", "supersecretpw"))

	var user domain.User
	require.NoError(t, db.Where("username = ?", "eve").First(&user).Error)
	require.NotContains(t, user.Password, "supersecretpw")
}
