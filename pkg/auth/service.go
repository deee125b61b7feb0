package auth

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// Common authentication errors.
var (
	ErrMissingAuthorization = errors.New("missing authorization")
	ErrInvalidAuthFormat    = errors.New("invalid authorization header format")
)

// TokenQueryParam carries the token on websocket upgrades from browsers,
// which cannot set headers.
const TokenQueryParam = "access_token"

// AuthService resolves the user of a request or of a raw token.
type AuthService interface {
	// ValidateRequest extracts and validates a JWT from the request.
	// It checks for the token in:
	//   1. Authorization header with "Bearer" scheme
	//   2. access_token query parameter
	// Requests without a token get the anonymous user.
	ValidateRequest(r *http.Request) (*User, string, error)

	// Authenticate validates a raw token.
	Authenticate(token string) (*User, error)

	// Anonymous returns the user of unauthenticated connections.
	Anonymous() *User
}

type authService struct {
	validator      TokenValidator
	anonymousRoles []string
	logger         *zap.Logger
}

// NewAuthService creates an AuthService. anonymousRoles are granted to
// connections that present no token.
func NewAuthService(validator TokenValidator, anonymousRoles []string, logger *zap.Logger) AuthService {
	return &authService{
		validator:      validator,
		anonymousRoles: anonymousRoles,
		logger:         logger,
	}
}

func (s *authService) ValidateRequest(r *http.Request) (*User, string, error) {
	tokenString, err := requestToken(r)
	if errors.Is(err, ErrMissingAuthorization) {
		return s.Anonymous(), "", nil
	}
	if err != nil {
		s.logger.Debug("Invalid Authorization header format",
			zap.String("path", r.URL.Path))
		return nil, "", err
	}

	u, err := s.Authenticate(tokenString)
	if err != nil {
		s.logger.Debug("JWT validation failed",
			zap.Error(err),
			zap.String("path", r.URL.Path))
		return nil, "", err
	}
	return u, tokenString, nil
}

func (s *authService) Authenticate(token string) (*User, error) {
	claims, err := s.validator.ValidateToken(token)
	if err != nil {
		return nil, err
	}
	return claims.User(), nil
}

func (s *authService) Anonymous() *User {
	return Anonymous(s.anonymousRoles)
}

func requestToken(r *http.Request) (string, error) {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
			return "", ErrInvalidAuthFormat
		}
		return parts[1], nil
	}
	if token := r.URL.Query().Get(TokenQueryParam); token != "" {
		return token, nil
	}
	return "", ErrMissingAuthorization
}

var _ AuthService = (*authService)(nil)
