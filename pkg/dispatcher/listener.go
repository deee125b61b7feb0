package dispatcher

import (
	"context"
	"errors"
	"net"
	"sync"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-streams/pkg/protocol"
)

// ServeListener accepts newline-delimited JSON connections from ln until
// ctx is cancelled, then closes ln and waits for open connections to end.
// Connections start as the anonymous user and authenticate with auth.login.
func (d *Dispatcher) ServeListener(ctx context.Context, ln net.Listener) error {
	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	var wg sync.WaitGroup
	defer wg.Wait()

	d.logger.Info("Accepting line connections", zap.String("addr", ln.Addr().String()))
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			remote := conn.RemoteAddr().String()
			if err := d.Serve(ctx, protocol.NewLineConn(conn), nil); err != nil {
				d.logger.Warn("Line connection failed",
					zap.String("remote_addr", remote),
					zap.Error(err))
			}
		}()
	}
}
