package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-streams/pkg/testhelpers"
)

func TestJWTValidator_HMAC(t *testing.T) {
	v, err := NewJWTValidator(context.Background(), &ValidatorConfig{
		EnableVerification: true,
		HMACSecret:         testhelpers.TestHMACSecret,
	})
	require.NoError(t, err)
	defer v.Close()

	claims, err := v.ValidateToken(testhelpers.GenerateTestJWT("u-1", "editor"))
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.Subject)
	assert.Equal(t, []string{"editor"}, claims.Roles)
}

func TestJWTValidator_RejectsBadTokens(t *testing.T) {
	v, err := NewJWTValidator(context.Background(), &ValidatorConfig{
		EnableVerification: true,
		HMACSecret:         "another-secret",
	})
	require.NoError(t, err)

	_, err = v.ValidateToken(testhelpers.GenerateTestJWT("u-1"))
	assert.Error(t, err, "wrong secret")

	_, err = v.ValidateToken(testhelpers.GenerateUnsignedTestJWT("u-1"))
	assert.Error(t, err, "unsigned tokens are refused when verifying")

	_, err = v.ValidateToken("not-a-token")
	assert.Error(t, err)
}

func TestJWTValidator_DevModeParsesUnverified(t *testing.T) {
	v, err := NewJWTValidator(context.Background(), &ValidatorConfig{EnableVerification: false})
	require.NoError(t, err)

	claims, err := v.ValidateToken(testhelpers.GenerateUnsignedTestJWT("dev", "admin"))
	require.NoError(t, err)
	assert.Equal(t, "dev", claims.Subject)
	assert.Equal(t, []string{"admin"}, claims.Roles)
}

func TestNewJWTValidator_NeedsKeys(t *testing.T) {
	_, err := NewJWTValidator(context.Background(), &ValidatorConfig{EnableVerification: true})
	assert.Error(t, err)
}
