package handlers

import (
	"errors"
	"net/http"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-streams/pkg/auth"
	"github.com/ekaya-inc/ekaya-streams/pkg/dispatcher"
	"github.com/ekaya-inc/ekaya-streams/pkg/protocol"
)

// StreamsHandler upgrades /ws requests and hands the connection to the
// dispatcher.
type StreamsHandler struct {
	dispatcher     *dispatcher.Dispatcher
	originPatterns []string
	logger         *zap.Logger
}

// NewStreamsHandler creates a StreamsHandler. originPatterns lists the
// hosts allowed to open cross-origin connections.
func NewStreamsHandler(d *dispatcher.Dispatcher, originPatterns []string, logger *zap.Logger) *StreamsHandler {
	return &StreamsHandler{
		dispatcher:     d,
		originPatterns: originPatterns,
		logger:         logger,
	}
}

// RegisterRoutes registers /ws behind the auth middleware.
func (h *StreamsHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.HandleFunc("GET /ws", authMiddleware.Authenticate(h.Serve))
}

// Serve handles one websocket connection until it closes.
func (h *StreamsHandler) Serve(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.GetUser(r.Context())
	if !ok {
		if err := ErrorResponse(w, http.StatusUnauthorized, "unauthorized", "Authentication required"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		// Accept has already written the HTTP error.
		h.logger.Debug("Websocket upgrade failed", zap.Error(err))
		return
	}

	err = h.dispatcher.Serve(r.Context(), protocol.NewWebsocketConn(conn), user)
	if err != nil && !errors.Is(err, protocol.ErrClosed) {
		h.logger.Warn("Websocket connection failed",
			zap.String("user", user.Login),
			zap.Error(err))
	}
}
