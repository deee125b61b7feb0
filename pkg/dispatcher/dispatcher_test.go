package dispatcher

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ekaya-inc/ekaya-streams/pkg/auth"
	"github.com/ekaya-inc/ekaya-streams/pkg/forms"
	"github.com/ekaya-inc/ekaya-streams/pkg/metrics"
	"github.com/ekaya-inc/ekaya-streams/pkg/orm"
	"github.com/ekaya-inc/ekaya-streams/pkg/protocol"
	"github.com/ekaya-inc/ekaya-streams/pkg/streams"
	"github.com/ekaya-inc/ekaya-streams/pkg/testhelpers"
)

var permissions = map[string]string{"admin": "rwxcdp", "viewer": "rx"}

func userWithRoles(roles ...string) *auth.User {
	return &auth.User{ID: "u-1", Login: "tester", Groups: []auth.Group{{Name: "staff", Roles: roles}}}
}

func sampleDecls() []streams.StreamDecl {
	list := []streams.ListField{
		{Field: forms.Field{Name: "id", Conv: forms.Int{}}, Order: true},
		{Field: forms.Field{Name: "title", Conv: forms.Str{}}, Order: true},
	}
	return []streams.StreamDecl{
		{Entity: "Item", ListFields: list, Permissions: permissions},
		{Entity: "News", Name: "news", ListFields: list, Permissions: permissions},
	}
}

type fixture struct {
	dispatcher *Dispatcher
	metrics    *metrics.Registry
}

func newFixtureWithBinds(t *testing.T, reg *orm.Registry, binds map[string]orm.Engine) *fixture {
	t.Helper()
	registry, err := streams.Build(reg, sampleDecls(), 10)
	require.NoError(t, err)

	promReg := metrics.NewRegistry()
	m, err := metrics.NewDispatcherMetrics(promReg.Registerer())
	require.NoError(t, err)

	authService := &mockAuthService{token: "good-token", user: userWithRoles("admin")}
	return &fixture{
		dispatcher: New(registry, binds, authService, m, zaptest.NewLogger(t)),
		metrics:    promReg,
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testhelpers.NewSampleDatabase(t)
	return newFixtureWithBinds(t, db.Registry, db.Binds)
}

// handle runs one frame on conn and fails if no envelope comes back.
func handle(t *testing.T, conn *connection, frame string) *protocol.Envelope {
	t.Helper()
	env := conn.handleFrame(context.Background(), []byte(frame))
	require.NotNil(t, env, "no response to %s", frame)
	return env
}

func request(t *testing.T, requestID, handler string, body map[string]any) string {
	t.Helper()
	if body == nil {
		body = map[string]any{}
	}
	data, err := json.Marshal(map[string]any{
		"name":       protocol.NameRequest,
		"request_id": requestID,
		"handler":    handler,
		"body":       body,
	})
	require.NoError(t, err)
	return string(data)
}

func requireError(t *testing.T, env *protocol.Envelope, kind protocol.ErrorKind) map[string]any {
	t.Helper()
	require.Equal(t, protocol.NameError, env.Name, "body: %v", env.Body)
	require.Equal(t, string(kind), env.Body["error"])
	return env.Body["kwargs"].(map[string]any)
}

func TestHandleFrame_StreamHandler(t *testing.T) {
	f := newFixture(t)
	conn := f.dispatcher.newConnection(userWithRoles("admin"))

	for _, title := range []string{"111t", "222t", "333t"} {
		env := handle(t, conn, request(t, "c-"+title, "items.create_item",
			map[string]any{"values": map[string]any{"title": title}}))
		require.Equal(t, protocol.NameResponse, env.Name, "body: %v", env.Body)
		assert.Empty(t, env.Body["errors"])
	}

	env := handle(t, conn, request(t, "r-1", "items.list",
		map[string]any{"order": "-title", "page": 1, "page_size": 2}))
	require.Equal(t, protocol.NameResponse, env.Name, "body: %v", env.Body)
	assert.Equal(t, "r-1", env.RequestID)
	assert.Equal(t, "items.list", env.Handler)
	assert.Equal(t, int64(3), env.Body["total"])

	items := env.Body["items"].([]map[string]any)
	require.Len(t, items, 2)
	assert.Equal(t, "333t", items[0]["title"])
	assert.Equal(t, "222t", items[1]["title"])
}

func TestHandleFrame_StreamsAction(t *testing.T) {
	f := newFixture(t)
	conn := f.dispatcher.newConnection(userWithRoles("admin"))

	env := handle(t, conn, request(t, "1", HandlerStreamsAction, map[string]any{
		"stream": "items",
		"action": "create_item",
		"values": map[string]any{"title": "routed"},
	}))
	require.Equal(t, protocol.NameResponse, env.Name, "body: %v", env.Body)
	id := env.Body["item"].(map[string]any)["id"].(int64)

	env = handle(t, conn, request(t, "2", HandlerStreamsAction, map[string]any{
		"stream":  "items",
		"action":  "get_item",
		"item_id": id,
	}))
	require.Equal(t, protocol.NameResponse, env.Name, "body: %v", env.Body)
	assert.Equal(t, "routed", env.Body["item"].(map[string]any)["title"])

	kwargs := requireError(t, handle(t, conn, request(t, "3", HandlerStreamsAction,
		map[string]any{"stream": "missing", "action": "list"})), protocol.KindStreamNotFound)
	assert.Equal(t, "missing", kwargs["stream"])

	kwargs = requireError(t, handle(t, conn, request(t, "4", HandlerStreamsAction,
		map[string]any{"stream": "items", "action": "explode"})), protocol.KindStreamActionNotFound)
	assert.Equal(t, map[string]any{"stream": "items", "action": "explode"}, kwargs)

	kwargs = requireError(t, handle(t, conn, request(t, "5", HandlerStreamsAction,
		map[string]any{"action": "list"})), protocol.KindMessage)
	assert.Contains(t, kwargs["errors"], "stream")
}

func TestHandleFrame_HandlerNotAllowed(t *testing.T) {
	f := newFixture(t)
	conn := f.dispatcher.newConnection(userWithRoles("admin"))

	for _, handler := range []string{"", "items", "items.", "missing.list", "items.explode", ".list"} {
		t.Run(handler, func(t *testing.T) {
			env := handle(t, conn, request(t, "1", handler, nil))
			kwargs := requireError(t, env, protocol.KindHandlerNotAllowed)
			assert.Equal(t, handler, kwargs["handler"])
		})
	}
}

// An error envelope carries the request_id and handler of its request.
func TestHandleFrame_ErrorEcho(t *testing.T) {
	f := newFixture(t)
	conn := f.dispatcher.newConnection(userWithRoles("viewer"))

	tests := []struct {
		name  string
		frame string
		kind  protocol.ErrorKind
	}{
		{"access denied", request(t, "a1", "items.delete_item", map[string]any{"item_id": 1}), protocol.KindAccessDenied},
		{"invalid body", request(t, "a2", "items.get_item", map[string]any{"item_id": "x"}), protocol.KindMessage},
		{"item not found", request(t, "a3", "items.get_item", map[string]any{"item_id": 404}), protocol.KindStreamItemNotFound},
		{"unknown handler", request(t, "a4", "nope.list", nil), protocol.KindHandlerNotAllowed},
		{"unknown order field", request(t, "a5", "items.list", map[string]any{"order": "+date"}), protocol.KindStreamFieldNotFound},
		{"invalid envelope name", `{"name":"shout","request_id":"a6","handler":"items.list"}`, protocol.KindMessageFields},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var sent map[string]any
			require.NoError(t, json.Unmarshal([]byte(tt.frame), &sent))

			env := handle(t, conn, tt.frame)
			requireError(t, env, tt.kind)
			assert.Equal(t, sent["request_id"], env.RequestID)
			assert.Equal(t, sent["handler"], env.Handler)
		})
	}
}

func TestHandleFrame_DecodeErrors(t *testing.T) {
	f := newFixture(t)
	conn := f.dispatcher.newConnection(nil)

	env := handle(t, conn, `{"name": `)
	kwargs := requireError(t, env, protocol.KindJSONDecode)
	assert.Equal(t, 9, kwargs["pos"])
	assert.Empty(t, env.RequestID)
	assert.Empty(t, env.Handler)

	requireError(t, handle(t, conn, `[1, 2]`), protocol.KindRequestType)
}

func TestHandleFrame_IgnoresNonRequests(t *testing.T) {
	f := newFixture(t)
	conn := f.dispatcher.newConnection(nil)

	env := conn.handleFrame(context.Background(),
		[]byte(`{"name":"response","request_id":"1","handler":"items.list","body":{}}`))
	assert.Nil(t, env)
}

func TestHandleFrame_InternalError(t *testing.T) {
	reg := orm.NewRegistry()
	require.NoError(t, reg.Register(testhelpers.SampleEntities()...))
	// Tables are never created, so every statement fails.
	binds := testhelpers.NewSQLiteBinds(t, reg.DBIDs()...)
	f := newFixtureWithBinds(t, reg, binds)
	conn := f.dispatcher.newConnection(userWithRoles("admin"))

	env := handle(t, conn, request(t, "boom", "items.list", nil))
	requireError(t, env, protocol.KindInternalServer)
	assert.Equal(t, "boom", env.RequestID)
	assert.Equal(t, "Internal server error", env.Body["message"])
	assert.Equal(t, map[string]any{}, env.Body["kwargs"])

	expected := `
# HELP streams_requests_total Total number of handled requests
# TYPE streams_requests_total counter
streams_requests_total{handler_kind="stream",outcome="internal_error"} 1
`
	require.NoError(t, testutil.GatherAndCompare(f.metrics.Gatherer(),
		strings.NewReader(expected), "streams_requests_total"))
}

func TestHandleFrame_PublishTwiceIsInternalError(t *testing.T) {
	f := newFixture(t)
	conn := f.dispatcher.newConnection(userWithRoles("admin"))

	env := handle(t, conn, request(t, "1", "admin.news.create_item",
		map[string]any{"values": map[string]any{"title": "t"}}))
	require.Equal(t, protocol.NameResponse, env.Name, "body: %v", env.Body)
	id := env.Body["item"].(map[string]any)["id"]

	env = handle(t, conn, request(t, "2", "admin.news.publish", map[string]any{"item_id": id}))
	require.Equal(t, protocol.NameResponse, env.Name, "body: %v", env.Body)

	env = handle(t, conn, request(t, "3", "admin.news.publish", map[string]any{"item_id": id}))
	requireError(t, env, protocol.KindInternalServer)
	assert.Equal(t, "3", env.RequestID)
}

func TestHandleFrame_StreamsList(t *testing.T) {
	f := newFixture(t)

	conn := f.dispatcher.newConnection(userWithRoles("viewer"))
	env := handle(t, conn, request(t, "1", HandlerStreamsList, nil))
	require.Equal(t, protocol.NameResponse, env.Name)

	listed := env.Body["streams"].([]map[string]any)
	require.Len(t, listed, 3)
	assert.Equal(t, "items", listed[0]["id"])
	assert.Equal(t, []string{streams.ActionList, streams.ActionGetItem}, listed[0]["actions"])
	assert.Equal(t, "rx", listed[0]["permissions"])

	conn = f.dispatcher.newConnection(nil)
	env = handle(t, conn, request(t, "2", HandlerStreamsList, nil))
	assert.Empty(t, env.Body["streams"])
}

func TestHandleFrame_Login(t *testing.T) {
	f := newFixture(t)
	conn := f.dispatcher.newConnection(nil)

	requireError(t, handle(t, conn, request(t, "1", "items.list", nil)), protocol.KindAccessDenied)

	requireError(t, handle(t, conn, request(t, "2", HandlerAuthLogin,
		map[string]any{"token": "bad-token"})), protocol.KindAccessDenied)
	requireError(t, handle(t, conn, request(t, "3", HandlerAuthLogin, nil)), protocol.KindMessage)

	env := handle(t, conn, request(t, "4", HandlerAuthLogin, map[string]any{"token": "good-token"}))
	require.Equal(t, protocol.NameResponse, env.Name, "body: %v", env.Body)
	assert.Equal(t, "tester", env.Body["user"].(map[string]any)["login"])

	env = handle(t, conn, request(t, "5", "items.list", nil))
	assert.Equal(t, protocol.NameResponse, env.Name, "body: %v", env.Body)
}

func TestHandleFrame_LoginWithoutAuthService(t *testing.T) {
	db := testhelpers.NewSampleDatabase(t)
	registry, err := streams.Build(db.Registry, sampleDecls(), 10)
	require.NoError(t, err)
	d := New(registry, db.Binds, nil, nil, zaptest.NewLogger(t))

	conn := d.newConnection(nil)
	env := handle(t, conn, request(t, "1", HandlerAuthLogin, map[string]any{"token": "good-token"}))
	requireError(t, env, protocol.KindHandlerNotAllowed)
}

func TestServe_LineConn(t *testing.T) {
	f := newFixture(t)
	server, client := net.Pipe()

	done := make(chan error, 1)
	go func() {
		done <- f.dispatcher.Serve(context.Background(), protocol.NewLineConn(server), userWithRoles("admin"))
	}()

	reader := bufio.NewReader(client)
	exchange := func(frame string) map[string]any {
		_, err := client.Write([]byte(frame + "\n"))
		require.NoError(t, err)
		line, err := reader.ReadBytes('\n')
		require.NoError(t, err)
		var env map[string]any
		require.NoError(t, json.Unmarshal(line, &env))
		return env
	}

	env := exchange(request(t, "1", "items.create_item", map[string]any{"values": map[string]any{"title": "wire"}}))
	assert.Equal(t, "response", env["name"])
	assert.Equal(t, "1", env["request_id"])
	assert.Equal(t, "items.create_item", env["handler"])

	env = exchange(`{"name":`)
	assert.Equal(t, "error", env["name"])
	assert.Nil(t, env["request_id"])
	assert.Nil(t, env["handler"])
	assert.Equal(t, "JSONDecodeError", env["body"].(map[string]any)["error"])

	env = exchange(request(t, "2", "items.list", map[string]any{"page_size": 5}))
	assert.Equal(t, float64(1), env["body"].(map[string]any)["total"])

	require.NoError(t, client.Close())
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after the client disconnected")
	}
}

func TestServe_ContextCancel(t *testing.T) {
	f := newFixture(t)
	server, client := net.Pipe()
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- f.dispatcher.Serve(ctx, protocol.NewLineConn(server), nil)
	}()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancellation")
	}
}
