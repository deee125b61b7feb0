package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

// TokenValidator validates bearer tokens.
// This abstraction enables testing with mock implementations.
type TokenValidator interface {
	// ValidateToken validates a JWT token string and returns the claims.
	ValidateToken(tokenString string) (*Claims, error)
	// Close releases any resources held by the validator.
	Close()
}

// ValidatorConfig configures token validation.
type ValidatorConfig struct {
	// EnableVerification controls whether JWT signatures are verified.
	// Set to false for development mode (parses tokens without verification).
	EnableVerification bool
	// HMACSecret verifies HS256/384/512 tokens when set.
	HMACSecret string
	// JWKSEndpoints maps issuer URLs to their JWKS endpoint URLs.
	// Only RSA/EC tokens from issuers in this map are accepted.
	JWKSEndpoints map[string]string
}

// JWTValidator validates tokens signed with a shared HMAC secret or with
// keys published on per-issuer JWKS endpoints.
type JWTValidator struct {
	endpoints map[string]keyfunc.Keyfunc
	config    *ValidatorConfig
}

// NewJWTValidator fetches JWKS from every configured endpoint when
// verification is enabled. Returns an error if any endpoint fails to load.
func NewJWTValidator(ctx context.Context, config *ValidatorConfig) (*JWTValidator, error) {
	v := &JWTValidator{
		endpoints: make(map[string]keyfunc.Keyfunc),
		config:    config,
	}

	if !config.EnableVerification {
		return v, nil
	}
	if config.HMACSecret == "" && len(config.JWKSEndpoints) == 0 {
		return nil, errors.New("token verification needs an HMAC secret or JWKS endpoints")
	}

	for issuer, jwksURL := range config.JWKSEndpoints {
		jwks, err := keyfunc.NewDefaultCtx(ctx, []string{jwksURL})
		if err != nil {
			return nil, fmt.Errorf("failed to create JWKS client for %s: %w", issuer, err)
		}
		v.endpoints[issuer] = jwks
	}

	return v, nil
}

// ValidateToken validates a JWT and returns its claims. Without
// verification the token is only parsed.
func (v *JWTValidator) ValidateToken(tokenString string) (*Claims, error) {
	if !v.config.EnableVerification {
		return v.parseUnverifiedToken(tokenString)
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, v.keyFor)
	if err != nil {
		return nil, fmt.Errorf("token validation failed: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, errors.New("invalid claims type")
	}
	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	return claims, nil
}

func (v *JWTValidator) keyFor(token *jwt.Token) (any, error) {
	switch token.Method.(type) {
	case *jwt.SigningMethodHMAC:
		if v.config.HMACSecret == "" {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(v.config.HMACSecret), nil
	case *jwt.SigningMethodRSA, *jwt.SigningMethodECDSA:
	default:
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, errors.New("invalid claims type")
	}

	// Look up JWKS for this issuer
	jwks, exists := v.endpoints[claims.Issuer]
	if !exists {
		return nil, fmt.Errorf("unauthorized issuer: %s", claims.Issuer)
	}
	return jwks.KeyfuncCtx(context.Background())(token)
}

// parseUnverifiedToken parses a JWT without verifying the signature.
// Used in development mode when EnableVerification is false.
func (v *JWTValidator) parseUnverifiedToken(tokenString string) (*Claims, error) {
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	token, _, err := parser.ParseUnverified(tokenString, &Claims{})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, errors.New("invalid claims type")
	}

	return claims, nil
}

// Close is a no-op; keyfunc v3 needs no explicit cleanup.
func (v *JWTValidator) Close() {}

var _ TokenValidator = (*JWTValidator)(nil)
