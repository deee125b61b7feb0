package forms

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, s string) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(s), &m))
	return m
}

func itemForm() Form {
	return Form{
		{Name: "id", Conv: Int{}},
		{Name: "title", Conv: Str{}, NotNone: true},
		{Name: "date", Conv: Date{}},
		{Name: "count", Conv: IntStr{}},
		{Name: "visible", Conv: Bool{}, Default: false},
		{Name: "tags", Conv: List{Item: Field{Name: "tag", Conv: Int{}}}},
		{Name: "meta", Conv: RawDict{}},
		{Name: "extra", Conv: RawList{}},
		{Name: "author", Conv: Dict{Fields: Form{
			{Name: "name", Conv: Str{}, RawRequired: true},
			{Name: "age", Conv: Int{}},
		}}},
	}
}

func TestForm_RoundTrip(t *testing.T) {
	raw := decode(t, `{
		"id": 7,
		"title": "hello",
		"date": "2024-02-29",
		"count": "42",
		"visible": true,
		"tags": [3, 1, 2],
		"meta": {"a": "b"},
		"extra": ["x", 1],
		"author": {"name": "ann", "age": 30}
	}`)

	form := itemForm()
	values, errs := form.ToNative(raw, nil)
	require.Empty(t, errs)

	assert.Equal(t, int64(7), values["id"])
	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), values["date"])
	assert.Equal(t, int64(42), values["count"])
	assert.Equal(t, []any{int64(3), int64(1), int64(2)}, values["tags"])

	back := form.ToRaw(values, nil)
	want := decode(t, `{
		"id": 7, "title": "hello", "date": "2024-02-29", "count": "42",
		"visible": true, "tags": [3, 1, 2], "meta": {"a": "b"}, "extra": ["x", 1],
		"author": {"name": "ann", "age": 30}
	}`)
	gotJSON, err := json.Marshal(back)
	require.NoError(t, err)
	wantJSON, err := json.Marshal(want)
	require.NoError(t, err)
	assert.JSONEq(t, string(wantJSON), string(gotJSON))
}

func TestForm_ErrorIsolation(t *testing.T) {
	raw := decode(t, `{"id": "seven", "title": "ok", "date": "not-a-date", "count": "4x", "tags": [1, "b", 3]}`)

	values, errs := itemForm().ToNative(raw, nil)

	assert.Equal(t, "ok", values["title"])
	assert.Equal(t, false, values["visible"], "absent field takes its default")
	assert.NotContains(t, values, "id")
	assert.NotContains(t, values, "date")

	assert.Equal(t, "Expected integer", errs["id"])
	assert.Equal(t, MsgInvalidDate, errs["date"])
	assert.Equal(t, MsgInvalidInt, errs["count"])
	assert.Equal(t, map[string]any{"1": "Expected integer"}, errs["tags"])
}

func TestForm_SelectedKeys(t *testing.T) {
	raw := decode(t, `{"title": "x", "date": "bad"}`)

	values, errs := itemForm().ToNative(raw, []string{"title"})

	assert.Empty(t, errs)
	assert.Equal(t, map[string]any{"title": "x"}, values)
}

func TestForm_NullHandling(t *testing.T) {
	raw := decode(t, `{"title": null, "date": null}`)

	values, errs := itemForm().ToNative(raw, []string{"title", "date"})

	assert.Equal(t, MsgNotNull, errs["title"])
	assert.Contains(t, values, "date")
	assert.Nil(t, values["date"])
}

func TestForm_DictAggregatesErrors(t *testing.T) {
	raw := decode(t, `{"author": {"age": "old"}}`)

	_, errs := itemForm().ToNative(raw, []string{"author"})

	assert.Equal(t, map[string]any{"name": MsgRequired, "age": "Expected integer"}, errs["author"])
}

func TestForm_ToNativeOrErr(t *testing.T) {
	form := Form{
		{Name: "page", Conv: Int{}, Default: int64(1), Validators: []Validator{Between(1, 1000)}},
		{Name: "name", Conv: Str{}, RawRequired: true},
	}

	values, err := form.ToNativeOrErr(decode(t, `{"name": "a"}`), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), values["page"])

	_, err = form.ToNativeOrErr(decode(t, `{"page": 0}`), nil)
	var msgErr *MessageError
	require.ErrorAs(t, err, &msgErr)
	assert.Equal(t, Errors{"page": MsgTooSmall, "name": MsgRequired}, msgErr.Errors)
}

func TestForm_Initials(t *testing.T) {
	form := Form{
		{Name: "title", Conv: Str{}, Default: "untitled"},
		{Name: "parent", Conv: Int{}, InitialFunc: func(kwargs map[string]any) any {
			v, _ := AsInt64(kwargs["parent"])
			return v
		}},
	}

	initials := form.Initials(map[string]any{"parent": float64(5)})

	assert.Equal(t, map[string]any{"title": "untitled", "parent": int64(5)}, initials)
}

func TestConverters_TypeErrors(t *testing.T) {
	tests := []struct {
		name string
		conv Converter
		raw  any
	}{
		{"str rejects number", Str{}, float64(1)},
		{"int rejects fraction", Int{}, 1.5},
		{"int rejects string", Int{}, "1"},
		{"intstr rejects number", IntStr{}, float64(1)},
		{"bool rejects string", Bool{}, "true"},
		{"date rejects number", Date{}, float64(20240101)},
		{"rawdict rejects list", RawDict{}, []any{}},
		{"rawlist rejects dict", RawList{}, map[string]any{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.conv.ToNative(tt.raw)
			var typeErr *RawValueTypeError
			assert.ErrorAs(t, err, &typeErr)
		})
	}
}

func TestAsInt64(t *testing.T) {
	v, ok := AsInt64(json.Number("9007199254740993"))
	assert.True(t, ok)
	assert.Equal(t, int64(9007199254740993), v)

	_, ok = AsInt64(json.Number("1.5"))
	assert.False(t, ok)

	v, ok = AsInt64(float64(-1 << 63))
	assert.True(t, ok)
	assert.Equal(t, int64(math.MinInt64), v)

	for _, f := range []float64{1 << 63, 1 << 64, -1 << 64, math.Inf(1)} {
		_, ok = AsInt64(f)
		assert.False(t, ok, "%v is out of range", f)
	}
}
