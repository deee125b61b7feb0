package protocol

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"sync"

	"github.com/coder/websocket"
)

// MaxFrameSize bounds one incoming frame.
const MaxFrameSize = 10 * 1024 * 1024 // 10MB

// ErrClosed is returned by ReadFrame once the peer or the server closed the transport.
var ErrClosed = errors.New("transport closed")

// FrameConn is a bidirectional transport of whole frames.
type FrameConn interface {
	ReadFrame(ctx context.Context) ([]byte, error)
	WriteFrame(ctx context.Context, data []byte) error
	Close() error
}

// WebsocketConn carries one frame per websocket message.
type WebsocketConn struct {
	conn *websocket.Conn
}

// NewWebsocketConn wraps an accepted websocket connection.
func NewWebsocketConn(conn *websocket.Conn) *WebsocketConn {
	conn.SetReadLimit(MaxFrameSize)
	return &WebsocketConn{conn: conn}
}

func (c *WebsocketConn) ReadFrame(ctx context.Context) ([]byte, error) {
	_, data, err := c.conn.Read(ctx)
	if err != nil {
		status := websocket.CloseStatus(err)
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			return nil, ErrClosed
		}
		return nil, err
	}
	return data, nil
}

func (c *WebsocketConn) WriteFrame(ctx context.Context, data []byte) error {
	return c.conn.Write(ctx, websocket.MessageText, data)
}

func (c *WebsocketConn) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "")
}

// LineConn carries newline-delimited frames over any byte stream, such as
// a TCP connection or a pipe. Reads cannot be interrupted by ctx; close the
// connection to abort them.
type LineConn struct {
	rwc    io.ReadWriteCloser
	reader *bufio.Reader

	mu sync.Mutex // serializes writes
}

// NewLineConn wraps rwc.
func NewLineConn(rwc io.ReadWriteCloser) *LineConn {
	return &LineConn{rwc: rwc, reader: bufio.NewReader(rwc)}
}

func (c *LineConn) ReadFrame(ctx context.Context) ([]byte, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		line, err := c.readLine()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
				return nil, ErrClosed
			}
			return nil, err
		}
		if line = bytes.TrimSpace(line); len(line) > 0 {
			return line, nil
		}
	}
}

func (c *LineConn) readLine() ([]byte, error) {
	var frame []byte
	for {
		chunk, isPrefix, err := c.reader.ReadLine()
		if err != nil {
			if len(frame) > 0 && errors.Is(err, io.EOF) {
				return frame, nil
			}
			return nil, err
		}
		frame = append(frame, chunk...)
		if len(frame) > MaxFrameSize {
			return nil, errors.New("frame too large")
		}
		if !isPrefix {
			return frame, nil
		}
	}
}

// WriteFrame writes data followed by a newline. data must not contain
// newlines; encoded envelopes never do.
func (c *LineConn) WriteFrame(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	buf := make([]byte, 0, len(data)+1)
	buf = append(append(buf, data...), '\n')
	_, err := c.rwc.Write(buf)
	return err
}

func (c *LineConn) Close() error {
	return c.rwc.Close()
}
