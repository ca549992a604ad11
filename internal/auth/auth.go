// Package auth implements session authentication (C2's Login/LoginResp
// exchange). The pluggable Authenticator interface and JWT-backed
// implementation generalize the teacher's internal/ws/auth.go
// AuthenticatedUpgrader/JWTService pair from an HTTP-upgrade check into a
// plain user/password check performed once per TCP session.
package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/quantedge/matchcore/pkg/errors"
)

// Identity is what a successful Login resolves to.
type Identity struct {
	UserID string
	Role   string
}

// Authenticator validates a Login's user/password and returns the
// resulting Identity.
type Authenticator interface {
	Authenticate(user, password string) (Identity, error)
}

// TokenIssuer is implemented by Authenticators that can mint a correlation
// token for an Identity once it has passed Authenticate. internal/session
// type-asserts the configured Authenticator against this interface so the
// token is only minted (and logged) when the operator has opted into
// JWTIssuingAuthenticator.
type TokenIssuer interface {
	Issue(id Identity) (string, error)
}

// AllowAllAuthenticator accepts any non-empty user/password pair — the
// default when auth.mode is "allow-all" in configuration, matching the
// wire schema note that Login is accepted by "any non-empty user/password".
type AllowAllAuthenticator struct{}

func (AllowAllAuthenticator) Authenticate(user, password string) (Identity, error) {
	if user == "" || password == "" {
		return Identity{}, errors.New(errors.ErrValidationFailed, "empty user or password")
	}
	return Identity{UserID: user, Role: "trader"}, nil
}

// jwtClaims is the payload issued for a session once it authenticates —
// useful for downstream services (e.g. the admin HTTP surface) that want
// a bearer token scoped to the same identity, rather than for the wire
// session itself, which never sees a JWT on the binary protocol.
type jwtClaims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// JWTIssuingAuthenticator delegates the user/password check to an inner
// Authenticator. Authenticate itself mints nothing: Issue mints a signed
// JWT for an already authenticated Identity, and Validate checks one.
type JWTIssuingAuthenticator struct {
	Inner  Authenticator
	Secret []byte
	TTL    time.Duration
}

// IssuedIdentity extends Identity with the token minted for this login.
type IssuedIdentity struct {
	Identity
	Token string
}

func (a JWTIssuingAuthenticator) Authenticate(user, password string) (Identity, error) {
	return a.Inner.Authenticate(user, password)
}

// Issue mints a JWT for id, valid for a.TTL.
func (a JWTIssuingAuthenticator) Issue(id Identity) (string, error) {
	now := time.Now()
	claims := jwtClaims{
		UserID: id.UserID,
		Role:   id.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.TTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.Secret)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrInternalInvariant, "sign jwt")
	}
	return signed, nil
}

// Validate parses and checks a previously issued token.
func (a JWTIssuingAuthenticator) Validate(tokenStr string) (Identity, error) {
	claims := &jwtClaims{}
	_, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return a.Secret, nil
	})
	if err != nil {
		return Identity{}, errors.Wrap(err, errors.ErrValidationFailed, "invalid jwt")
	}
	return Identity{UserID: claims.UserID, Role: claims.Role}, nil
}
