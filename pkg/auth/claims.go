// Package auth identifies connection users from JWT bearer tokens and
// answers permission checks against per-stream role maps.
package auth

import (
	"context"

	"github.com/golang-jwt/jwt/v5"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	// UserKey is the context key for the authenticated *User.
	UserKey contextKey = "user"
	// TokenKey is the context key for storing the raw JWT token string.
	TokenKey contextKey = "token"
)

// GroupClaim is one group carried in a token.
type GroupClaim struct {
	Name  string   `json:"name"`
	Roles []string `json:"roles"`
}

// Claims is the token payload. Roles granted directly are collected into
// a synthetic group named after the subject.
type Claims struct {
	jwt.RegisteredClaims
	Login  string       `json:"login,omitempty"`
	Roles  []string     `json:"roles,omitempty"`
	Groups []GroupClaim `json:"groups,omitempty"`
}

// User converts the claims into the permission model.
func (c *Claims) User() *User {
	u := &User{ID: c.Subject, Login: c.Login}
	if u.Login == "" {
		u.Login = c.Subject
	}
	if len(c.Roles) > 0 {
		u.Groups = append(u.Groups, Group{Name: c.Subject, Roles: c.Roles})
	}
	for _, g := range c.Groups {
		u.Groups = append(u.Groups, Group{Name: g.Name, Roles: g.Roles})
	}
	return u
}

// WithUser returns a context carrying the user and its raw token.
func WithUser(ctx context.Context, u *User, token string) context.Context {
	ctx = context.WithValue(ctx, UserKey, u)
	if token != "" {
		ctx = context.WithValue(ctx, TokenKey, token)
	}
	return ctx
}

// GetUser retrieves the user from the request context.
// Returns nil and false if no user is present.
func GetUser(ctx context.Context) (*User, bool) {
	u, ok := ctx.Value(UserKey).(*User)
	return u, ok && u != nil
}

// GetToken retrieves the raw JWT token string from the request context.
// Returns empty string and false if token is not present.
func GetToken(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(TokenKey).(string)
	return token, ok
}
