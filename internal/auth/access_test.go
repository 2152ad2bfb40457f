package auth

import (
	"context"
	"testing"
	"time"

	"controlplane/internal/domain"

	"github.com/stretchr/testify/require"
)

func newAccessController(t *testing.T) (*AccessController, *SessionAuthority) {
	t.Helper()
	db := newTestDB(t)
	sessions := NewSessionAuthority(db, "test-secret")
	return NewAccessController(db, sessions, "master, admin", "control-token"), sessions
}

func TestIsMaster(t *testing.T) {
	access, _ := newAccessController(t)

	require.True(t, access.IsMaster("master"))
	require.True(t, access.IsMaster("Admin")) // Allow-list is case-insensitive
	require.False(t, access.IsMaster("alice"))
}

func TestIsMasterToken(t *testing.T) {
	access, sessions := newAccessController(t)
	ctx := context.Background()

	require.True(t, access.IsMasterToken(ctx, "control-token"))
	require.False(t, access.IsMasterToken(ctx, ""))
	require.False(t, access.IsMasterToken(ctx, "garbage"))

	masterToken, err := sessions.Issue("master")
	require.NoError(t, err)
	require.True(t, access.IsMasterToken(ctx, masterToken))

	userToken, err := sessions.Issue("alice")
	require.NoError(t, err)
	require.False(t, access.IsMasterToken(ctx, userToken))
}

func TestSponsorAndCheckAccess(t *testing.T) {
	access, _ := newAccessController(t)
	ctx := context.Background()

	require.NoError(t, access.db.Create(&domain.User{Username: "alice", Password: "x"}).Error)

	// No sponsorship, no pricing
	decision, err := access.CheckAccess(ctx, "alice", "premium")
	require.NoError(t, err)
	require.False(t, decision.Granted)
	require.Equal(t, "no_pricing", decision.Reason)

	require.NoError(t, access.Sponsor(ctx, "alice", "master"))
	decision, err = access.CheckAccess(ctx, "alice", "premium")
	require.NoError(t, err)
	require.True(t, decision.Granted)
	require.Equal(t, "sponsored", decision.Reason)

	require.NoError(t, access.Unsponsor(ctx, "alice"))
	decision, err = access.CheckAccess(ctx, "alice", "premium")
	require.NoError(t, err)
	require.False(t, decision.Granted)
}

func TestSponsorUnknownUser(t *testing.T) {
	access, _ := newAccessController(t)

	require.ErrorIs(t, access.Sponsor(context.Background(), "ghost", "master"), ErrUserNotFound)
}

func TestCheckAccessPricing(t *testing.T) {
	access, _ := newAccessController(t)
	ctx := context.Background()

	require.NoError(t, access.db.Create(&domain.User{Username: "bob", Password: "x"}).Error)

	// Zero price grants access
	require.NoError(t, access.SetPricing(ctx, "bob", 0, "trial", nil))
	decision, err := access.CheckAccess(ctx, "bob", "premium")
	require.NoError(t, err)
	require.True(t, decision.Granted)
	require.Equal(t, "free", decision.Reason)

	// A price with no subscription denies and quotes it
	require.NoError(t, access.SetPricing(ctx, "bob", 500, "custom", nil))
	decision, err = access.CheckAccess(ctx, "bob", "premium")
	require.NoError(t, err)
	require.False(t, decision.Granted)
	require.Equal(t, int64(500), decision.PriceCents)

	// A live expiry grants access
	future := time.Now().Add(24 * time.Hour)
	require.NoError(t, access.SetPricing(ctx, "bob", 500, "custom", &future))
	decision, err = access.CheckAccess(ctx, "bob", "premium")
	require.NoError(t, err)
	require.True(t, decision.Granted)
	require.Equal(t, "subscription_active", decision.Reason)

	// An elapsed expiry denies again
	past := time.Now().Add(-24 * time.Hour)
	require.NoError(t, access.SetPricing(ctx, "bob", 500, "custom", &past))
	decision, err = access.CheckAccess(ctx, "bob", "premium")
	require.NoError(t, err)
	require.False(t, decision.Granted)
}

func TestListSponsored(t *testing.T) {
	access, _ := newAccessController(t)
	ctx := context.Background()

	require.NoError(t, access.db.Create(&domain.User{Username: "alice", Password: "x"}).Error)
	require.NoError(t, access.db.Create(&domain.User{Username: "bob", Password: "x"}).Error)
	require.NoError(t, access.Sponsor(ctx, "alice", "master"))

	users, err := access.ListSponsored(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	require.Equal(t, "alice", users[0].Username)
	require.Equal(t, "master", users[0].SponsoredBy)
}
