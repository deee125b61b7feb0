package protocol

import (
	"fmt"
	"maps"
)

// ErrorKind is the wire name of an error carried in an error envelope.
type ErrorKind string

// Error kinds reported to clients.
const (
	KindJSONDecode              ErrorKind = "JSONDecodeError"
	KindRequestType             ErrorKind = "RequestTypeError"
	KindMessageFields           ErrorKind = "MessageFieldsError"
	KindMessage                 ErrorKind = "MessageError"
	KindHandlerNotAllowed       ErrorKind = "HandlerNotAllowedError"
	KindAccessDenied            ErrorKind = "AccessDeniedError"
	KindStreamNotFound          ErrorKind = "StreamNotFound"
	KindStreamActionNotFound    ErrorKind = "StreamActionNotFoundError"
	KindStreamFieldNotFound     ErrorKind = "StreamFieldNotFound"
	KindStreamItemNotFound      ErrorKind = "StreamItemNotFoundError"
	KindStreamItemAlreadyExists ErrorKind = "StreamItemAlreadyExistsError"
	KindInternalServer          ErrorKind = "InternalServerError"
)

// ClientError is an error caused by the request. It is framed as an error
// envelope; Err is kept for logs and never sent.
type ClientError struct {
	Kind    ErrorKind
	Message string
	Kwargs  map[string]any
	Err     error
}

// NewClientError creates a ClientError. kwargs may be nil.
func NewClientError(kind ErrorKind, message string, kwargs map[string]any) *ClientError {
	return &ClientError{Kind: kind, Message: message, Kwargs: kwargs}
}

// Wrap attaches the underlying error.
func (e *ClientError) Wrap(err error) *ClientError {
	e.Err = err
	return e
}

func (e *ClientError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *ClientError) Unwrap() error { return e.Err }

// Body is the body of the error envelope.
func (e *ClientError) Body() map[string]any {
	kwargs := maps.Clone(e.Kwargs)
	if kwargs == nil {
		kwargs = map[string]any{}
	}
	return map[string]any{
		"error":   string(e.Kind),
		"message": e.Message,
		"kwargs":  kwargs,
	}
}

// InternalServerError is sent for every error that is not a ClientError.
// It carries no detail of the failure.
func InternalServerError() *ClientError {
	return NewClientError(KindInternalServer, "Internal server error", nil)
}
