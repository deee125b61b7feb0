package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// mockValidator is a mock implementation of TokenValidator for testing.
type mockValidator struct {
	claims *Claims
	err    error
	seen   string
}

func (m *mockValidator) ValidateToken(token string) (*Claims, error) {
	m.seen = token
	if m.err != nil {
		return nil, m.err
	}
	return m.claims, nil
}

func (m *mockValidator) Close() {}

func TestAuthService_ValidateRequest(t *testing.T) {
	claims := &Claims{Roles: []string{"editor"}}
	claims.Subject = "u-1"

	tests := []struct {
		name      string
		header    string
		query     string
		wantToken string
		wantErr   error
		wantUser  string
	}{
		{"bearer header", "Bearer abc", "", "abc", nil, "u-1"},
		{"query parameter", "", "?access_token=xyz", "xyz", nil, "u-1"},
		{"no token is anonymous", "", "", "", nil, ""},
		{"wrong scheme", "Basic abc", "", "", ErrInvalidAuthFormat, ""},
		{"empty bearer", "Bearer ", "", "", ErrInvalidAuthFormat, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := &mockValidator{claims: claims}
			svc := NewAuthService(v, []string{"guest"}, zap.NewNop())
			req := httptest.NewRequest(http.MethodGet, "/ws"+tt.query, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}

			u, token, err := svc.ValidateRequest(req)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantToken, token)
			assert.Equal(t, tt.wantUser, u.ID)
			if tt.wantToken == "" {
				assert.Equal(t, []string{"guest"}, u.Roles())
			}
		})
	}
}

func TestAuthService_InvalidToken(t *testing.T) {
	v := &mockValidator{err: errors.New("expired")}
	svc := NewAuthService(v, nil, zap.NewNop())
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("Authorization", "Bearer old")

	_, _, err := svc.ValidateRequest(req)

	assert.EqualError(t, err, "expired")
	assert.Equal(t, "old", v.seen)
}
