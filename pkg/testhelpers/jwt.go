// Package testhelpers provides engines, sample schemas and tokens for
// testing ekaya-streams components.
package testhelpers

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TestHMACSecret signs tokens produced by GenerateTestJWT.
const TestHMACSecret = "test-secret"

type testClaims struct {
	jwt.RegisteredClaims
	Roles []string `json:"roles,omitempty"`
}

// GenerateTestJWT creates an HS256 token signed with TestHMACSecret that
// grants roles directly to sub.
func GenerateTestJWT(sub string, roles ...string) string {
	return signTestJWT(jwt.SigningMethodHS256, []byte(TestHMACSecret), sub, roles)
}

// GenerateUnsignedTestJWT creates an alg=none token for validators running
// without verification.
func GenerateUnsignedTestJWT(sub string, roles ...string) string {
	return signTestJWT(jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, sub, roles)
}

// GenerateTestJWTWithBearer returns token with "Bearer " prefix for Authorization header.
func GenerateTestJWTWithBearer(sub string, roles ...string) string {
	return "Bearer " + GenerateTestJWT(sub, roles...)
}

func signTestJWT(method jwt.SigningMethod, key any, sub string, roles []string) string {
	claims := testClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Roles: roles,
	}
	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		panic("failed to sign test token: " + err.Error())
	}
	return token
}
