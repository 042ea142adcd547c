package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIssuer(t *testing.T, ttl time.Duration) *TokenIssuer {
	t.Helper()
	ti, err := NewTokenIssuer("test-secret", ttl)
	require.NoError(t, err)
	return ti
}

func TestIssueAndVerify(t *testing.T) {
	ti := newTestIssuer(t, time.Hour)

	seat := 2
	token, err := ti.Issue(Identity{PlayerID: "p1", GameID: "g1", SeatIndex: &seat})
	require.NoError(t, err)

	id, err := ti.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "p1", id.PlayerID)
	assert.Equal(t, "g1", id.GameID)
	require.NotNil(t, id.SeatIndex)
	assert.Equal(t, 2, *id.SeatIndex)
	assert.False(t, id.IsSpectator)
}

func TestVerifySpectatorToken(t *testing.T) {
	ti := newTestIssuer(t, time.Hour)

	token, err := ti.Issue(Identity{PlayerID: "watcher", GameID: "g1", IsSpectator: true})
	require.NoError(t, err)

	id, err := ti.Verify(token)
	require.NoError(t, err)
	assert.Nil(t, id.SeatIndex)
	assert.True(t, id.IsSpectator)
}

func TestVerifyRejections(t *testing.T) {
	ti := newTestIssuer(t, time.Hour)

	t.Run("empty", func(t *testing.T) {
		_, err := ti.Verify("")
		require.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := ti.Verify("not.a.token")
		require.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong key", func(t *testing.T) {
		other, err := NewTokenIssuer("other-secret", time.Hour)
		require.NoError(t, err)
		token, err := other.Issue(Identity{PlayerID: "p1", GameID: "g1"})
		require.NoError(t, err)

		_, err = ti.Verify(token)
		require.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong algorithm", func(t *testing.T) {
		// alg=none tokens must never pass the allowlist
		unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
			"playerId": "p1",
			"gameId":   "g1",
			"iss":      "eldorado",
			"aud":      "eldorado-game",
			"exp":      time.Now().Add(time.Hour).Unix(),
		})
		token, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = ti.Verify(token)
		require.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("expired", func(t *testing.T) {
		ti := newTestIssuer(t, time.Hour)
		issuedAt := time.Now().Add(-2 * time.Hour)
		ti.now = func() time.Time { return issuedAt }
		token, err := ti.Issue(Identity{PlayerID: "p1", GameID: "g1"})
		require.NoError(t, err)

		ti.now = time.Now
		_, err = ti.Verify(token)
		require.ErrorIs(t, err, ErrExpiredToken)
	})
}

func TestEmptySecretRejected(t *testing.T) {
	_, err := NewTokenIssuer("", time.Hour)
	require.Error(t, err)
}

func TestNeedsRefresh(t *testing.T) {
	ti := newTestIssuer(t, time.Hour)
	base := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	ti.now = func() time.Time { return base }

	token, err := ti.Issue(Identity{PlayerID: "p1", GameID: "g1"})
	require.NoError(t, err)

	assert.False(t, ti.NeedsRefresh(token), "fresh token")

	ti.now = func() time.Time { return base.Add(30 * time.Minute) }
	assert.False(t, ti.NeedsRefresh(token), "half the ttl remains")

	ti.now = func() time.Time { return base.Add(45 * time.Minute) }
	assert.True(t, ti.NeedsRefresh(token), "under a third of the ttl remains")

	assert.False(t, ti.NeedsRefresh("garbage"))
}
