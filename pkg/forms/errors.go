package forms

import (
	"fmt"
	"sort"
	"strings"
)

// Error messages reported to clients in the errors map of a response.
const (
	MsgRequired    = "Required field"
	MsgNotNull     = "Value must not be null"
	MsgInvalidDate = "Not a valid date"
	MsgInvalidInt  = "Not a valid integer"
	MsgTooShort    = "Value is too short"
	MsgTooLong     = "Value is too long"
	MsgTooSmall    = "Value is too small"
	MsgTooLarge    = "Value is too large"
	MsgNotAllowed  = "Value is not allowed"
)

// RawValueTypeError is returned when a wire value has the wrong JSON type.
type RawValueTypeError struct {
	Field    string
	Expected string
}

func (e *RawValueTypeError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("expected %s", e.Expected)
	}
	return fmt.Sprintf("field %s: expected %s", e.Field, e.Expected)
}

// ValidationError is returned when a value has the right type but is not acceptable.
// Detail is either a string or a nested map for Dict and List converters.
type ValidationError struct {
	Detail any
}

func (e *ValidationError) Error() string {
	if s, ok := e.Detail.(string); ok {
		return s
	}
	return fmt.Sprintf("invalid value: %v", e.Detail)
}

// Invalid is a shorthand for a ValidationError with a string detail.
func Invalid(msg string) error {
	return &ValidationError{Detail: msg}
}

// Errors maps field names to error details (strings or nested maps).
type Errors map[string]any

// Error details are flattened into a stable, human readable line.
func (e Errors) String() string {
	keys := make([]string, 0, len(e))
	for k := range e {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %v", k, e[k]))
	}
	return strings.Join(parts, "; ")
}

// MessageError is returned by the strict conversion of a whole message.
type MessageError struct {
	Errors Errors
}

func (e *MessageError) Error() string {
	return "message validation failed: " + e.Errors.String()
}

// ErrorDetail converts a conversion error into the value placed in an Errors map.
func ErrorDetail(err error) any {
	switch e := err.(type) {
	case *RawValueTypeError:
		return "Expected " + e.Expected
	case *ValidationError:
		return e.Detail
	default:
		return err.Error()
	}
}
