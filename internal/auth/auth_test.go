package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllowAllAuthenticatorAcceptsNonEmptyCredentials(t *testing.T) {
	id, err := AllowAllAuthenticator{}.Authenticate("alice", "secret")
	require.NoError(t, err)
	assert.Equal(t, "alice", id.UserID)
	assert.Equal(t, "trader", id.Role)
}

func TestAllowAllAuthenticatorRejectsEmptyCredentials(t *testing.T) {
	_, err := AllowAllAuthenticator{}.Authenticate("", "secret")
	assert.Error(t, err)

	_, err = AllowAllAuthenticator{}.Authenticate("alice", "")
	assert.Error(t, err)
}

func TestJWTIssuingAuthenticatorRoundTripsToken(t *testing.T) {
	a := JWTIssuingAuthenticator{
		Inner:  AllowAllAuthenticator{},
		Secret: []byte("test-secret"),
		TTL:    time.Hour,
	}

	id, err := a.Authenticate("bob", "secret")
	require.NoError(t, err)

	token, err := a.Issue(id)
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	roundTripped, err := a.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, id.UserID, roundTripped.UserID)
	assert.Equal(t, id.Role, roundTripped.Role)
}

func TestJWTIssuingAuthenticatorRejectsTamperedToken(t *testing.T) {
	a := JWTIssuingAuthenticator{Inner: AllowAllAuthenticator{}, Secret: []byte("test-secret"), TTL: time.Hour}
	other := JWTIssuingAuthenticator{Inner: AllowAllAuthenticator{}, Secret: []byte("different-secret"), TTL: time.Hour}

	token, err := a.Issue(Identity{UserID: "carol", Role: "trader"})
	require.NoError(t, err)

	_, err = other.Validate(token)
	assert.Error(t, err)
}

func TestJWTIssuingAuthenticatorDelegatesAuthenticateFailure(t *testing.T) {
	a := JWTIssuingAuthenticator{Inner: AllowAllAuthenticator{}, Secret: []byte("test-secret"), TTL: time.Hour}
	_, err := a.Authenticate("", "")
	assert.Error(t, err)
}
