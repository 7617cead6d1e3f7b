package auth

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRefreshTokensIssueAndRedeem(t *testing.T) {
	store := newFakeStore()
	user := seedUser(store, "alice@example.com", "pw")
	tokens := NewRefreshTokens(store, time.Hour, nil)

	issued, err := tokens.Issue(context.Background(), user, nil)
	require.NoError(t, err)
	require.Contains(t, issued, "_")

	redeemed, row, err := tokens.Redeem(context.Background(), issued)
	require.NoError(t, err)
	assert.Equal(t, user.ID, redeemed.ID)
	assert.Equal(t, user.ID, row.UserID)
}

func TestRefreshTokensStoreOnlyDigest(t *testing.T) {
	store := newFakeStore()
	user := seedUser(store, "alice@example.com", "pw")
	tokens := NewRefreshTokens(store, time.Hour, nil)

	issued, err := tokens.Issue(context.Background(), user, nil)
	require.NoError(t, err)

	id, secret, found := strings.Cut(issued, "_")
	require.True(t, found)

	rec, err := store.GetByID(context.Background(), CollectionRefreshTokens, id)
	require.NoError(t, err)
	require.NotNil(t, rec)

	row := refreshTokenFromRecord(rec)
	assert.NotEqual(t, secret, row.TokenHash)
	assert.NotContains(t, row.TokenHash, secret)
	assert.Equal(t, saltedDigest(row.TokenSalt, secret), row.TokenHash)
}

func TestRefreshTokensRotation(t *testing.T) {
	store := newFakeStore()
	user := seedUser(store, "alice@example.com", "pw")
	tokens := NewRefreshTokens(store, time.Hour, nil)

	first, err := tokens.Issue(context.Background(), user, nil)
	require.NoError(t, err)

	_, row, err := tokens.Redeem(context.Background(), first)
	require.NoError(t, err)

	second, err := tokens.Issue(context.Background(), user, row)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	// The replaced token is gone; only the successor redeems.
	_, _, err = tokens.Redeem(context.Background(), first)
	require.ErrorIs(t, err, ErrRefreshTokenInvalid)

	_, _, err = tokens.Redeem(context.Background(), second)
	require.NoError(t, err)
}

func TestRefreshTokensRedeemFailures(t *testing.T) {
	store := newFakeStore()
	user := seedUser(store, "alice@example.com", "pw")
	tokens := NewRefreshTokens(store, time.Hour, nil)

	issued, err := tokens.Issue(context.Background(), user, nil)
	require.NoError(t, err)
	id, _, _ := strings.Cut(issued, "_")

	tests := []struct {
		name      string
		presented string
	}{
		{"empty", ""},
		{"no separator", "justonepart"},
		{"unknown id", "missing_secret"},
		{"wrong secret", id + "_wrongsecret"},
		{"empty secret", id + "_"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := tokens.Redeem(context.Background(), tc.presented)
			require.ErrorIs(t, err, ErrRefreshTokenInvalid)
		})
	}
}

func TestRefreshTokensExpiredDeletedOnRedeem(t *testing.T) {
	store := newFakeStore()
	user := seedUser(store, "alice@example.com", "pw")
	tokens := NewRefreshTokens(store, -time.Minute, nil)

	issued, err := tokens.Issue(context.Background(), user, nil)
	require.NoError(t, err)
	require.Equal(t, 1, store.count(CollectionRefreshTokens))

	_, _, err = tokens.Redeem(context.Background(), issued)
	require.ErrorIs(t, err, ErrRefreshTokenInvalid)
	assert.Equal(t, 0, store.count(CollectionRefreshTokens))
}

func TestRefreshTokensRevokeAll(t *testing.T) {
	store := newFakeStore()
	alice := seedUser(store, "alice@example.com", "pw")
	bob := seedUser(store, "bob@example.com", "pw")
	tokens := NewRefreshTokens(store, time.Hour, nil)

	for i := 0; i < 3; i++ {
		_, err := tokens.Issue(context.Background(), alice, nil)
		require.NoError(t, err)
	}
	bobToken, err := tokens.Issue(context.Background(), bob, nil)
	require.NoError(t, err)

	require.NoError(t, tokens.RevokeAll(context.Background(), alice.ID))

	assert.Equal(t, 1, store.count(CollectionRefreshTokens))
	_, _, err = tokens.Redeem(context.Background(), bobToken)
	require.NoError(t, err)
}
