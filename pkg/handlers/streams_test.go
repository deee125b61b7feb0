package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ekaya-inc/ekaya-streams/pkg/auth"
	"github.com/ekaya-inc/ekaya-streams/pkg/dispatcher"
	"github.com/ekaya-inc/ekaya-streams/pkg/forms"
	"github.com/ekaya-inc/ekaya-streams/pkg/streams"
	"github.com/ekaya-inc/ekaya-streams/pkg/testhelpers"
)

func newStreamsServer(t *testing.T) *httptest.Server {
	t.Helper()
	logger := zaptest.NewLogger(t)
	db := testhelpers.NewSampleDatabase(t)
	registry, err := streams.Build(db.Registry, []streams.StreamDecl{{
		Entity: "Item",
		ListFields: []streams.ListField{
			{Field: forms.Field{Name: "id", Conv: forms.Int{}}, Order: true},
			{Field: forms.Field{Name: "title", Conv: forms.Str{}}, Order: true},
		},
		Permissions: map[string]string{"editor": "rwxcd"},
	}}, 10)
	require.NoError(t, err)

	validator, err := auth.NewJWTValidator(context.Background(), &auth.ValidatorConfig{
		EnableVerification: true,
		HMACSecret:         testhelpers.TestHMACSecret,
	})
	require.NoError(t, err)
	authService := auth.NewAuthService(validator, nil, logger)

	d := dispatcher.New(registry, db.Binds, authService, nil, logger)
	mux := http.NewServeMux()
	NewStreamsHandler(d, nil, logger).RegisterRoutes(mux, auth.NewMiddleware(authService, logger))

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func exchange(t *testing.T, ctx context.Context, conn *websocket.Conn, req map[string]any) map[string]any {
	t.Helper()
	data, err := json.Marshal(req)
	require.NoError(t, err)
	require.NoError(t, conn.Write(ctx, websocket.MessageText, data))
	_, resp, err := conn.Read(ctx)
	require.NoError(t, err)
	var env map[string]any
	require.NoError(t, json.Unmarshal(resp, &env))
	return env
}

func TestStreamsHandler_AuthenticatedConnection(t *testing.T) {
	srv := newStreamsServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	header := http.Header{}
	header.Set("Authorization", testhelpers.GenerateTestJWTWithBearer("user-1", "editor"))
	conn, _, err := websocket.Dial(ctx, wsURL(srv), &websocket.DialOptions{HTTPHeader: header})
	require.NoError(t, err)
	defer conn.CloseNow()

	env := exchange(t, ctx, conn, map[string]any{
		"name": "request", "request_id": "1", "handler": "items.create_item",
		"body": map[string]any{"values": map[string]any{"title": "over websocket"}},
	})
	assert.Equal(t, "response", env["name"])
	assert.Equal(t, "1", env["request_id"])

	env = exchange(t, ctx, conn, map[string]any{
		"name": "request", "request_id": "2", "handler": "items.list",
		"body": map[string]any{"page_size": 10},
	})
	body := env["body"].(map[string]any)
	assert.Equal(t, float64(1), body["total"])

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, ""))
}

func TestStreamsHandler_AnonymousIsDenied(t *testing.T) {
	srv := newStreamsServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL(srv), nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	env := exchange(t, ctx, conn, map[string]any{"name": "request", "request_id": "1", "handler": "items.list"})
	assert.Equal(t, "error", env["name"])
	assert.Equal(t, "AccessDeniedError", env["body"].(map[string]any)["error"])

	// Logging in over the connection grants the token's roles.
	env = exchange(t, ctx, conn, map[string]any{
		"name": "request", "request_id": "2", "handler": "auth.login",
		"body": map[string]any{"token": testhelpers.GenerateTestJWT("user-1", "editor")},
	})
	require.Equal(t, "response", env["name"], "body: %v", env["body"])

	env = exchange(t, ctx, conn, map[string]any{"name": "request", "request_id": "3", "handler": "items.list"})
	assert.Equal(t, "response", env["name"])
}

func TestStreamsHandler_InvalidTokenRejected(t *testing.T) {
	srv := newStreamsServer(t)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/ws", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
