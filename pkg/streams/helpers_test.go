package streams_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ekaya-inc/ekaya-streams/pkg/auth"
	"github.com/ekaya-inc/ekaya-streams/pkg/forms"
	"github.com/ekaya-inc/ekaya-streams/pkg/protocol"
	"github.com/ekaya-inc/ekaya-streams/pkg/streams"
	"github.com/ekaya-inc/ekaya-streams/pkg/testhelpers"
)

var permissions = map[string]string{"admin": "rwxcdp", "viewer": "rx"}

func userWithRoles(roles ...string) *auth.User {
	return &auth.User{ID: "u-1", Login: "tester", Groups: []auth.Group{{Name: "staff", Roles: roles}}}
}

func titleFields() ([]streams.ListField, []streams.FilterField) {
	list := []streams.ListField{
		{Field: forms.Field{Name: "id", Conv: forms.Int{}}, Order: true},
		{Field: forms.Field{Name: "title", Conv: forms.Str{}}, Order: true},
	}
	filters := []streams.FilterField{
		{Field: forms.Field{Name: "title", Conv: forms.Str{}}, Filter: streams.FilterContains("title")},
	}
	return list, filters
}

func sampleDecls() []streams.StreamDecl {
	list, filters := titleFields()
	return []streams.StreamDecl{
		{Entity: "Item", ListFields: list, FilterFields: filters, Permissions: permissions},
		{Entity: "Article", ListFields: list, FilterFields: filters, Permissions: permissions},
		{Entity: "News", Name: "news", ListFields: list, Permissions: permissions},
		{Entity: "Doc", ListFields: list, Permissions: permissions},
		{Entity: "Tag", Permissions: permissions},
		{Entity: "Note", Permissions: permissions},
	}
}

type fixture struct {
	db       *testhelpers.SampleDatabase
	registry *streams.Registry
	env      *streams.Env
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testhelpers.NewSampleDatabase(t)
	reg, err := streams.Build(db.Registry, sampleDecls(), 10)
	require.NoError(t, err)
	return &fixture{
		db:       db,
		registry: reg,
		env:      &streams.Env{User: userWithRoles("admin"), Binds: db.Binds, Logger: zaptest.NewLogger(t)},
	}
}

func (f *fixture) stream(t *testing.T, id string) *streams.Stream {
	t.Helper()
	s, err := f.registry.Stream(id)
	require.NoError(t, err)
	return s
}

// call runs an action as the fixture user.
func (f *fixture) call(t *testing.T, streamID, action string, body map[string]any) (map[string]any, error) {
	t.Helper()
	s := f.stream(t, streamID)
	a, err := s.Action(action)
	require.NoError(t, err)
	return a.Handle(context.Background(), f.env, s, body)
}

func (f *fixture) mustCall(t *testing.T, streamID, action string, body map[string]any) map[string]any {
	t.Helper()
	resp, err := f.call(t, streamID, action, body)
	require.NoError(t, err)
	return resp
}

func (f *fixture) create(t *testing.T, streamID string, values map[string]any) int64 {
	t.Helper()
	resp := f.mustCall(t, streamID, streams.ActionCreateItem, map[string]any{"values": values})
	require.Empty(t, resp["errors"])
	return resp["item"].(map[string]any)["id"].(int64)
}

func requireKind(t *testing.T, err error, kind protocol.ErrorKind) *protocol.ClientError {
	t.Helper()
	var ce *protocol.ClientError
	require.True(t, errors.As(err, &ce), "expected client error %s, got %v", kind, err)
	require.Equal(t, kind, ce.Kind)
	return ce
}

func ids(items any) []int64 {
	var out []int64
	for _, it := range items.([]map[string]any) {
		out = append(out, it["id"].(int64))
	}
	return out
}
