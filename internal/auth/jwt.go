package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const issuer = "crmhub"

var (
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("token invalid")
)

// Claims is the payload inside every session token.
//
// Why only the user and tenant ids?
//   - Role, permissions and active status are reloaded from the store on
//     every request. A role change or a deactivation applies to tokens
//     that were already handed out, with no revocation list.
//   - The token stays small enough to ride in a query string, which the
//     event socket needs because browsers cannot set headers on it.
//   - TenantID pins the token to one tenant. A token from acme presented
//     on globex's host fails the tenant check even if the user id exists.
type Claims struct {
	UserID uuid.UUID `json:"user_id"`
	// TenantID is uuid.Nil for super admins.
	TenantID uuid.UUID `json:"tenant_id"`
	jwt.RegisteredClaims
}

// GenerateToken creates a signed JWT for a given user.
//
// Why HS256?
//   - One process both issues and verifies tokens, so a shared secret is
//     enough and no key pair has to be distributed.
//   - If another service ever needs to verify without issuing, switch to
//     RS256 so only this service holds the private key.
//
// now is passed in rather than read here so tests can mint tokens that
// are already expired.
func GenerateToken(userID, tenantID uuid.UUID, secret string, ttl time.Duration, now time.Time) (string, error) {
	claims := Claims{
		UserID:   userID,
		TenantID: tenantID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	return signed, nil
}

// ParseToken validates a JWT string and extracts the claims. Expiry is
// reported as ErrTokenExpired, everything else as ErrTokenInvalid.
func ParseToken(tokenString, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{},
		func(token *jwt.Token) (any, error) {
			// Reject "none" and asymmetric algs before verifying.
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return []byte(secret), nil
		},
		jwt.WithIssuer(issuer),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == uuid.Nil {
		return nil, ErrTokenInvalid
	}

	return claims, nil
}
