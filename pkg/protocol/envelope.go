// Package protocol defines the JSON envelopes exchanged with stream
// clients and the framed transports that carry them.
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"

	"github.com/ekaya-inc/ekaya-streams/pkg/forms"
)

// Envelope names.
const (
	NameRequest  = "request"
	NameResponse = "response"
	NameError    = "error"
)

// Envelope is one framed message. Empty RequestID and Handler are sent as null.
type Envelope struct {
	Name      string
	RequestID string
	Handler   string
	Body      map[string]any
}

type wireEnvelope struct {
	Name      string         `json:"name"`
	RequestID *string        `json:"request_id"`
	Handler   *string        `json:"handler"`
	Body      map[string]any `json:"body"`
}

func (e Envelope) MarshalJSON() ([]byte, error) {
	w := wireEnvelope{Name: e.Name, Body: e.Body}
	if e.RequestID != "" {
		w.RequestID = &e.RequestID
	}
	if e.Handler != "" {
		w.Handler = &e.Handler
	}
	if w.Body == nil {
		w.Body = map[string]any{}
	}
	return json.Marshal(w)
}

// Response builds the response envelope of req.
func Response(req *Envelope, body map[string]any) *Envelope {
	return &Envelope{Name: NameResponse, RequestID: req.RequestID, Handler: req.Handler, Body: body}
}

// ErrorResponse builds the error envelope of req. req may be nil when the
// frame could not be decoded far enough to know the request.
func ErrorResponse(req *Envelope, err *ClientError) *Envelope {
	env := &Envelope{Name: NameError, Body: err.Body()}
	if req != nil {
		env.RequestID = req.RequestID
		env.Handler = req.Handler
	}
	return env
}

var envelopeForm = forms.Form{
	{Name: "name", Conv: forms.Str{}, RawRequired: true, NotNone: true,
		Validators: []forms.Validator{forms.OneOf(NameRequest, NameResponse, NameError)}},
	{Name: "request_id", Conv: forms.Str{}},
	{Name: "handler", Conv: forms.Str{}},
	{Name: "body", Conv: forms.RawDict{}},
}

// Decode parses one frame. Numbers are decoded as json.Number.
//
// On a MessageFieldsError the returned envelope holds whatever request_id
// and handler could be read, so the error can still be correlated.
func Decode(data []byte) (*Envelope, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, decodeError(data, err)
	}
	if off := dec.InputOffset(); len(bytes.TrimSpace(data[off:])) > 0 {
		start := off + int64(len(data[off:])-len(bytes.TrimLeft(data[off:], " \t\r\n")))
		return nil, jsonDecodeError(data, "Extra data", int(start))
	}

	raw, ok := v.(map[string]any)
	if !ok {
		return nil, NewClientError(KindRequestType, "Request must be a JSON object", nil)
	}

	env := &Envelope{}
	env.RequestID, _ = raw["request_id"].(string)
	env.Handler, _ = raw["handler"].(string)

	values, errs := envelopeForm.ToNative(raw, nil)
	if len(errs) > 0 {
		return env, NewClientError(KindMessageFields, "Invalid message fields", map[string]any{"errors": errs}).
			Wrap(&forms.MessageError{Errors: errs})
	}
	env.Name = values["name"].(string)
	env.Body, _ = values["body"].(map[string]any)
	if env.Body == nil {
		env.Body = map[string]any{}
	}
	return env, nil
}

// Encode serializes an envelope into one frame.
func Encode(env *Envelope) ([]byte, error) {
	return json.Marshal(env)
}

func decodeError(data []byte, err error) error {
	var syntaxErr *json.SyntaxError
	switch {
	case errors.As(err, &syntaxErr):
		pos := int(syntaxErr.Offset) - 1
		if pos < 0 {
			pos = 0
		}
		return jsonDecodeError(data, syntaxErr.Error(), pos)
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return jsonDecodeError(data, "Expecting value", len(data))
	default:
		return jsonDecodeError(data, err.Error(), 0)
	}
}

// jsonDecodeError reports pos as a byte offset with 1-based line and column.
func jsonDecodeError(data []byte, msg string, pos int) *ClientError {
	if pos > len(data) {
		pos = len(data)
	}
	lineno := bytes.Count(data[:pos], []byte{'\n'}) + 1
	colno := pos - bytes.LastIndexByte(data[:pos], '\n')
	return NewClientError(KindJSONDecode, msg, map[string]any{
		"lineno": lineno,
		"colno":  colno,
		"pos":    pos,
	})
}
