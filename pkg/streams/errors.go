package streams

import (
	"errors"
	"fmt"

	"github.com/ekaya-inc/ekaya-streams/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-streams/pkg/auth"
	"github.com/ekaya-inc/ekaya-streams/pkg/forms"
	"github.com/ekaya-inc/ekaya-streams/pkg/protocol"
)

var (
	ErrStreamNotFound    = fmt.Errorf("stream %w", apperrors.ErrNotFound)
	ErrActionNotFound    = fmt.Errorf("stream action %w", apperrors.ErrNotFound)
	ErrFieldNotFound     = fmt.Errorf("stream field %w", apperrors.ErrNotFound)
	ErrItemNotFound      = fmt.Errorf("stream item %w", apperrors.ErrNotFound)
	ErrItemAlreadyExists = fmt.Errorf("stream item %w", apperrors.ErrAlreadyExists)
)

// ItemError reports a missing or conflicting item of a stream.
type ItemError struct {
	Err      error
	StreamID string
	ItemID   int64
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("%s: %v: %d", e.StreamID, e.Err, e.ItemID)
}

func (e *ItemError) Unwrap() error { return e.Err }

// FieldError reports an unknown or unorderable field.
type FieldError struct {
	StreamID string
	Field    string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %v: %s", e.StreamID, ErrFieldNotFound, e.Field)
}

func (e *FieldError) Unwrap() error { return ErrFieldNotFound }

// RouteError reports a stream or action that is not registered.
type RouteError struct {
	Err      error
	StreamID string
	Action   string
}

func (e *RouteError) Error() string {
	if e.Action == "" {
		return fmt.Sprintf("%v: %s", e.Err, e.StreamID)
	}
	return fmt.Sprintf("%v: %s.%s", e.Err, e.StreamID, e.Action)
}

func (e *RouteError) Unwrap() error { return e.Err }

func (e *RouteError) kwargs() map[string]any {
	kw := map[string]any{"stream": e.StreamID}
	if e.Action != "" {
		kw["action"] = e.Action
	}
	return kw
}

// ClientError converts stream-layer errors into errors framed for the
// client. Errors without a client meaning are returned unchanged and end
// up as internal errors.
func ClientError(err error) error {
	var (
		ce       *protocol.ClientError
		msgErr   *forms.MessageError
		itemErr  *ItemError
		fieldErr *FieldError
		routeErr *RouteError
	)
	switch {
	case err == nil:
		return nil
	case errors.As(err, &ce):
		return ce
	case errors.Is(err, auth.ErrAccessDenied):
		return protocol.NewClientError(protocol.KindAccessDenied, "Access denied", nil).Wrap(err)
	case errors.As(err, &msgErr):
		return protocol.NewClientError(protocol.KindMessage, "Invalid message",
			map[string]any{"errors": msgErr.Errors}).Wrap(err)
	case errors.As(err, &itemErr) && errors.Is(err, ErrItemNotFound):
		return protocol.NewClientError(protocol.KindStreamItemNotFound, "Item not found",
			map[string]any{"stream": itemErr.StreamID, "item_id": itemErr.ItemID}).Wrap(err)
	case errors.As(err, &itemErr) && errors.Is(err, ErrItemAlreadyExists):
		return protocol.NewClientError(protocol.KindStreamItemAlreadyExists, "Item already exists",
			map[string]any{"stream": itemErr.StreamID, "item_id": itemErr.ItemID}).Wrap(err)
	case errors.As(err, &fieldErr):
		return protocol.NewClientError(protocol.KindStreamFieldNotFound, "Field not found",
			map[string]any{"stream": fieldErr.StreamID, "field": fieldErr.Field}).Wrap(err)
	case errors.As(err, &routeErr) && errors.Is(err, ErrStreamNotFound):
		return protocol.NewClientError(protocol.KindStreamNotFound, "Stream not found", routeErr.kwargs()).Wrap(err)
	case errors.As(err, &routeErr) && errors.Is(err, ErrActionNotFound):
		return protocol.NewClientError(protocol.KindStreamActionNotFound, "Action not found", routeErr.kwargs()).Wrap(err)
	}
	return err
}
