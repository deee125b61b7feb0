package dispatcher

import (
	"errors"
	"net/http"

	"github.com/ekaya-inc/ekaya-streams/pkg/auth"
)

// mockAuthService accepts one token.
type mockAuthService struct {
	token string
	user  *auth.User
}

func (m *mockAuthService) ValidateRequest(*http.Request) (*auth.User, string, error) {
	return m.Anonymous(), "", nil
}

func (m *mockAuthService) Authenticate(token string) (*auth.User, error) {
	if token != m.token {
		return nil, errors.New("token is invalid")
	}
	return m.user, nil
}

func (m *mockAuthService) Anonymous() *auth.User {
	return auth.Anonymous(nil)
}

var _ auth.AuthService = (*mockAuthService)(nil)
