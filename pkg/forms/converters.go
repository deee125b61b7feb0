package forms

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// DateLayout is the wire format of Date values.
const DateLayout = "2006-01-02"

// Converter translates between wire-JSON values and native values.
// ToNative is never called with nil; null handling belongs to Field.
type Converter interface {
	ToNative(raw any) (any, error)
	ToRaw(native any) any
	TypeName() string
}

// Str accepts JSON strings.
type Str struct {
	Trim   bool
	MinLen int
	MaxLen int
}

func (c Str) TypeName() string { return "string" }

func (c Str) ToNative(raw any) (any, error) {
	s, ok := raw.(string)
	if !ok {
		return nil, &RawValueTypeError{Expected: c.TypeName()}
	}
	if c.Trim {
		s = strings.TrimSpace(s)
	}
	n := utf8.RuneCountInString(s)
	if c.MinLen > 0 && n < c.MinLen {
		return nil, Invalid(MsgTooShort)
	}
	if c.MaxLen > 0 && n > c.MaxLen {
		return nil, Invalid(MsgTooLong)
	}
	return s, nil
}

func (c Str) ToRaw(native any) any { return native }

// Int accepts integral JSON numbers.
type Int struct {
	Min *int64
	Max *int64
}

func (c Int) TypeName() string { return "integer" }

func (c Int) ToNative(raw any) (any, error) {
	v, ok := AsInt64(raw)
	if !ok {
		return nil, &RawValueTypeError{Expected: c.TypeName()}
	}
	if c.Min != nil && v < *c.Min {
		return nil, Invalid(MsgTooSmall)
	}
	if c.Max != nil && v > *c.Max {
		return nil, Invalid(MsgTooLarge)
	}
	return v, nil
}

func (c Int) ToRaw(native any) any {
	if v, ok := AsInt64(native); ok {
		return v
	}
	return native
}

// IntStr accepts a string carrying a decimal integer.
type IntStr struct{}

func (IntStr) TypeName() string { return "string" }

func (c IntStr) ToNative(raw any) (any, error) {
	s, ok := raw.(string)
	if !ok {
		return nil, &RawValueTypeError{Expected: c.TypeName()}
	}
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return nil, Invalid(MsgInvalidInt)
	}
	return v, nil
}

func (IntStr) ToRaw(native any) any {
	if v, ok := AsInt64(native); ok {
		return strconv.FormatInt(v, 10)
	}
	return native
}

// Bool accepts JSON booleans.
type Bool struct{}

func (Bool) TypeName() string { return "boolean" }

func (c Bool) ToNative(raw any) (any, error) {
	b, ok := raw.(bool)
	if !ok {
		return nil, &RawValueTypeError{Expected: c.TypeName()}
	}
	return b, nil
}

func (Bool) ToRaw(native any) any { return native }

// Date accepts ISO dates (YYYY-MM-DD) and produces UTC midnight times.
type Date struct{}

func (Date) TypeName() string { return "string" }

func (c Date) ToNative(raw any) (any, error) {
	s, ok := raw.(string)
	if !ok {
		return nil, &RawValueTypeError{Expected: c.TypeName()}
	}
	t, err := time.ParseInLocation(DateLayout, s, time.UTC)
	if err != nil {
		return nil, Invalid(MsgInvalidDate)
	}
	return t, nil
}

func (Date) ToRaw(native any) any {
	if t, ok := native.(time.Time); ok {
		return t.UTC().Format(DateLayout)
	}
	return native
}

// Dict converts a JSON object with named subfields.
// Errors of all subfields are aggregated into one ValidationError.
type Dict struct {
	Fields Form
}

func (Dict) TypeName() string { return "object" }

func (c Dict) ToNative(raw any) (any, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, &RawValueTypeError{Expected: c.TypeName()}
	}
	values, errs := c.Fields.ToNative(m, nil)
	if len(errs) > 0 {
		return nil, &ValidationError{Detail: map[string]any(errs)}
	}
	return values, nil
}

func (c Dict) ToRaw(native any) any {
	m, ok := native.(map[string]any)
	if !ok {
		return native
	}
	return c.Fields.ToRaw(m, nil)
}

// List applies Item to every element. One bad element rejects the list,
// with details keyed by element index.
type List struct {
	Item Field
}

func (List) TypeName() string { return "array" }

func (c List) ToNative(raw any) (any, error) {
	items, ok := raw.([]any)
	if !ok {
		return nil, &RawValueTypeError{Expected: c.TypeName()}
	}
	out := make([]any, len(items))
	errs := map[string]any{}
	for i, item := range items {
		v, err := c.Item.ToNative(item)
		if err != nil {
			errs[strconv.Itoa(i)] = ErrorDetail(err)
			continue
		}
		out[i] = v
	}
	if len(errs) > 0 {
		return nil, &ValidationError{Detail: errs}
	}
	return out, nil
}

func (c List) ToRaw(native any) any {
	switch items := native.(type) {
	case []any:
		out := make([]any, len(items))
		for i, item := range items {
			out[i] = c.Item.ToRaw(item)
		}
		return out
	case []int64:
		out := make([]any, len(items))
		for i, item := range items {
			out[i] = c.Item.ToRaw(item)
		}
		return out
	}
	return native
}

// RawDict passes JSON objects through untouched.
type RawDict struct{}

func (RawDict) TypeName() string { return "object" }

func (c RawDict) ToNative(raw any) (any, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, &RawValueTypeError{Expected: c.TypeName()}
	}
	return m, nil
}

func (RawDict) ToRaw(native any) any { return native }

// RawList passes JSON arrays through untouched.
type RawList struct{}

func (RawList) TypeName() string { return "array" }

func (c RawList) ToNative(raw any) (any, error) {
	l, ok := raw.([]any)
	if !ok {
		return nil, &RawValueTypeError{Expected: c.TypeName()}
	}
	return l, nil
}

func (RawList) ToRaw(native any) any { return native }

// AsInt64 reports the integral value of a decoded JSON number or Go integer.
// Fractional numbers are rejected.
func AsInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return i, true
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) || n >= 1<<63 || n < -1<<63 {
			return 0, false
		}
		return int64(n), true
	}
	return 0, false
}
