// Package dispatcher runs the request loop of one client connection:
// it decodes envelopes, routes them to stream actions and frames the
// responses.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-streams/pkg/auth"
	"github.com/ekaya-inc/ekaya-streams/pkg/forms"
	"github.com/ekaya-inc/ekaya-streams/pkg/logging"
	"github.com/ekaya-inc/ekaya-streams/pkg/metrics"
	"github.com/ekaya-inc/ekaya-streams/pkg/orm"
	"github.com/ekaya-inc/ekaya-streams/pkg/protocol"
	"github.com/ekaya-inc/ekaya-streams/pkg/streams"
)

// Handlers that are not bound to one stream.
const (
	HandlerStreamsAction = "streams.action"
	HandlerStreamsList   = "streams.list"
	HandlerAuthLogin     = "auth.login"
)

// Handler kinds used as metric labels.
const (
	kindStream  = "stream"
	kindInvalid = "invalid"
)

var (
	streamsActionForm = forms.Form{
		{Name: "stream", Conv: forms.Str{}, RawRequired: true, NotNone: true},
		{Name: "action", Conv: forms.Str{}, RawRequired: true, NotNone: true},
	}
	loginForm = forms.Form{
		{Name: "token", Conv: forms.Str{Trim: true}, RawRequired: true, NotNone: true},
	}
)

// Dispatcher serves client connections over the stream registry.
// It holds no per-connection state and is safe for concurrent use.
type Dispatcher struct {
	streams *streams.Registry
	binds   map[string]orm.Engine
	auth    auth.AuthService
	metrics *metrics.DispatcherMetrics
	logger  *zap.Logger
}

// New creates a Dispatcher. authService enables auth.login and may be nil;
// m may be nil to disable metrics.
func New(
	registry *streams.Registry,
	binds map[string]orm.Engine,
	authService auth.AuthService,
	m *metrics.DispatcherMetrics,
	logger *zap.Logger,
) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		streams: registry,
		binds:   binds,
		auth:    authService,
		metrics: m,
		logger:  logger.Named("dispatcher"),
	}
}

// connection is the state of one client connection. It is owned by the
// goroutine running Serve.
type connection struct {
	d      *Dispatcher
	env    *streams.Env
	logger *zap.Logger
}

func (d *Dispatcher) newConnection(user *auth.User) *connection {
	if user == nil {
		user = d.anonymous()
	}
	logger := d.logger.With(zap.String("conn_id", uuid.NewString()))
	return &connection{
		d:      d,
		env:    &streams.Env{User: user, Binds: d.binds, Logger: logger},
		logger: logger,
	}
}

func (d *Dispatcher) anonymous() *auth.User {
	if d.auth != nil {
		return d.auth.Anonymous()
	}
	return auth.Anonymous(nil)
}

// Serve handles requests from conn one at a time until the client
// disconnects or ctx is cancelled. conn is closed on return. A clean
// disconnect returns nil.
func (d *Dispatcher) Serve(ctx context.Context, conn protocol.FrameConn, user *auth.User) error {
	c := d.newConnection(user)
	d.metrics.ConnectionOpened()
	defer d.metrics.ConnectionClosed()
	defer conn.Close()

	// Closing the transport aborts a pending read.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	c.logger.Debug("Connection opened", zap.String("user", c.env.User.Login))
	for {
		frame, err := conn.ReadFrame(ctx)
		if err != nil {
			if errors.Is(err, protocol.ErrClosed) || ctx.Err() != nil {
				c.logger.Debug("Connection closed")
				return nil
			}
			return fmt.Errorf("read frame: %w", err)
		}

		resp := c.handleFrame(ctx, frame)
		if resp == nil {
			continue
		}
		data, err := protocol.Encode(resp)
		if err != nil {
			c.logger.Error("Failed to encode response",
				zap.String("handler", resp.Handler),
				zap.Error(err))
			data, err = protocol.Encode(protocol.ErrorResponse(resp, protocol.InternalServerError()))
			if err != nil {
				return fmt.Errorf("encode error envelope: %w", err)
			}
		}
		if err := conn.WriteFrame(ctx, data); err != nil {
			if errors.Is(err, protocol.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("write frame: %w", err)
		}
	}
}

// handleFrame returns the envelope to send back, or nil when the frame
// needs no answer.
func (c *connection) handleFrame(ctx context.Context, frame []byte) *protocol.Envelope {
	start := time.Now()

	req, err := protocol.Decode(frame)
	if err != nil {
		return c.fail(req, kindInvalid, start, err)
	}
	if req.Name != protocol.NameRequest {
		c.logger.Debug("Ignoring non-request envelope",
			zap.String("name", req.Name),
			zap.String("request_id", req.RequestID))
		return nil
	}

	kind, body, err := c.route(ctx, req)
	if err != nil {
		return c.fail(req, kind, start, err)
	}

	c.d.metrics.RecordRequest(kind, metrics.OutcomeOK, time.Since(start))
	c.logger.Debug("Request handled",
		zap.String("handler", req.Handler),
		zap.String("request_id", req.RequestID),
		zap.Duration("duration", time.Since(start)))
	return protocol.Response(req, body)
}

// fail frames err as an error envelope echoing req. Errors that are not
// client errors are logged and replaced by a generic internal error.
func (c *connection) fail(req *protocol.Envelope, kind string, start time.Time, err error) *protocol.Envelope {
	var handler, requestID string
	if req != nil {
		handler, requestID = req.Handler, req.RequestID
	}

	var ce *protocol.ClientError
	outcome := metrics.OutcomeClientError
	if !errors.As(err, &ce) {
		outcome = metrics.OutcomeInternalError
		fields := []zap.Field{
			zap.String("handler", handler),
			zap.String("request_id", requestID),
			zap.String("error", logging.SanitizeError(err)),
		}
		var dbErr *orm.DBAPIError
		if errors.As(err, &dbErr) {
			fields = append(fields, zap.String("statement", logging.SanitizeStatement(dbErr.SQL)))
		}
		c.logger.Error("Request failed", fields...)
		ce = protocol.InternalServerError()
	} else {
		c.logger.Debug("Request rejected",
			zap.String("handler", handler),
			zap.String("request_id", requestID),
			zap.String("error_kind", string(ce.Kind)),
			zap.Duration("duration", time.Since(start)))
	}

	c.d.metrics.RecordRequest(kind, outcome, time.Since(start))
	return protocol.ErrorResponse(req, ce)
}

// route resolves the handler of req and runs it. The returned kind labels
// the request in metrics.
func (c *connection) route(ctx context.Context, req *protocol.Envelope) (string, map[string]any, error) {
	switch req.Handler {
	case HandlerStreamsList:
		return req.Handler, c.listStreams(), nil
	case HandlerAuthLogin:
		body, err := c.login(req.Body)
		return req.Handler, body, err
	case HandlerStreamsAction:
		body, err := c.streamsAction(ctx, req.Body)
		return req.Handler, body, err
	}

	s, a, err := c.resolve(req.Handler)
	if err != nil {
		return kindInvalid, nil, err
	}
	body, err := a.Handle(ctx, c.env, s, req.Body)
	return kindStream, body, err
}

// resolve maps "<stream_id>.<action>" to its stream and action. Stream ids
// are dotted themselves, so the action is after the last dot.
func (c *connection) resolve(handler string) (*streams.Stream, *streams.Action, error) {
	notAllowed := func() error {
		return protocol.NewClientError(protocol.KindHandlerNotAllowed, "Handler is not allowed",
			map[string]any{"handler": handler})
	}
	i := strings.LastIndexByte(handler, '.')
	if i <= 0 || i == len(handler)-1 {
		return nil, nil, notAllowed()
	}
	s, err := c.d.streams.Stream(handler[:i])
	if err != nil {
		return nil, nil, notAllowed()
	}
	a, err := s.Action(handler[i+1:])
	if err != nil {
		return nil, nil, notAllowed()
	}
	return s, a, nil
}

// streamsAction routes on the stream and action named in the body. The
// rest of the body is the action request.
func (c *connection) streamsAction(ctx context.Context, body map[string]any) (map[string]any, error) {
	route, err := streamsActionForm.ToNativeOrErr(body, nil)
	if err != nil {
		return nil, streams.ClientError(err)
	}
	s, err := c.d.streams.Stream(route["stream"].(string))
	if err != nil {
		return nil, streams.ClientError(err)
	}
	a, err := s.Action(route["action"].(string))
	if err != nil {
		return nil, streams.ClientError(err)
	}

	actionBody := maps.Clone(body)
	delete(actionBody, "stream")
	delete(actionBody, "action")
	return a.Handle(ctx, c.env, s, actionBody)
}

// listStreams describes the streams the connection user can run at least
// one action on.
func (c *connection) listStreams() map[string]any {
	items := []map[string]any{}
	for _, s := range c.d.streams.Streams() {
		actions := s.AllowedActions(c.env.User)
		if len(actions) == 0 {
			continue
		}
		items = append(items, map[string]any{
			"id":          s.ID,
			"title":       s.Title,
			"permissions": s.Perms(c.env.User),
			"actions":     actions,
		})
	}
	return map[string]any{"streams": items}
}

// login replaces the connection user. Transports without HTTP headers
// authenticate this way.
func (c *connection) login(body map[string]any) (map[string]any, error) {
	if c.d.auth == nil {
		return nil, protocol.NewClientError(protocol.KindHandlerNotAllowed, "Handler is not allowed",
			map[string]any{"handler": HandlerAuthLogin})
	}
	values, err := loginForm.ToNativeOrErr(body, nil)
	if err != nil {
		return nil, streams.ClientError(err)
	}
	user, err := c.d.auth.Authenticate(values["token"].(string))
	if err != nil {
		return nil, protocol.NewClientError(protocol.KindAccessDenied, "Invalid token", nil).Wrap(err)
	}
	c.env.User = user
	c.logger.Debug("Connection user changed", zap.String("user", user.Login))
	return map[string]any{
		"user": map[string]any{
			"id":    user.ID,
			"login": user.Login,
			"roles": user.Roles(),
		},
	}, nil
}
