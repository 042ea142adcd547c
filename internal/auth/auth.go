// Package auth issues and verifies the signed player tokens that gate game
// connections. Tokens are HMAC-SHA-256 JWTs scoped to a single game.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken indicates the token is definitively invalid.
	ErrInvalidToken = errors.New("auth: invalid token")

	// ErrExpiredToken indicates the token was valid but is past its expiry.
	ErrExpiredToken = errors.New("auth: expired token")
)

const (
	issuer   = "eldorado"
	audience = "eldorado-game"

	// DefaultTTL is the token lifetime when none is configured.
	DefaultTTL = time.Hour

	// RefreshThreshold is the remaining-lifetime fraction below which a
	// connected client is handed a rotated token.
	RefreshThreshold = 3
)

// Identity is the authenticated subject a token grants access for. SeatIndex
// is nil for spectators.
type Identity struct {
	PlayerID    string
	GameID      string
	SeatIndex   *int
	IsSpectator bool
}

type playerClaims struct {
	PlayerID    string `json:"playerId"`
	GameID      string `json:"gameId"`
	SeatIndex   *int   `json:"seatIndex"`
	IsSpectator bool   `json:"isSpectator"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies player tokens with a shared symmetric key.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenIssuer builds an issuer. A zero ttl means DefaultTTL.
func NewTokenIssuer(secret string, ttl time.Duration) (*TokenIssuer, error) {
	if secret == "" {
		return nil, errors.New("auth: empty signing secret")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &TokenIssuer{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// Issue signs a token for the identity.
func (ti *TokenIssuer) Issue(id Identity) (string, error) {
	now := ti.now()
	claims := playerClaims{
		PlayerID:    id.PlayerID,
		GameID:      id.GameID,
		SeatIndex:   id.SeatIndex,
		IsSpectator: id.IsSpectator,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Audience:  jwt.ClaimStrings{audience},
			Subject:   id.PlayerID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ti.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(ti.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify checks the signature, algorithm, issuer, audience and expiry, and
// returns the embedded identity.
func (ti *TokenIssuer) Verify(tokenString string) (*Identity, error) {
	if tokenString == "" {
		return nil, ErrInvalidToken
	}

	claims := &playerClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (any, error) { return ti.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return ti.now() }),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.PlayerID == "" || claims.GameID == "" {
		return nil, ErrInvalidToken
	}

	return &Identity{
		PlayerID:    claims.PlayerID,
		GameID:      claims.GameID,
		SeatIndex:   claims.SeatIndex,
		IsSpectator: claims.IsSpectator,
	}, nil
}

// NeedsRefresh reports whether the token's remaining lifetime has dropped
// below 1/RefreshThreshold of the full TTL. Invalid tokens never refresh.
func (ti *TokenIssuer) NeedsRefresh(tokenString string) bool {
	claims := &playerClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (any, error) { return ti.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return ti.now() }),
	)
	if err != nil || claims.ExpiresAt == nil {
		return false
	}
	remaining := claims.ExpiresAt.Sub(ti.now())
	return remaining < ti.ttl/RefreshThreshold
}
