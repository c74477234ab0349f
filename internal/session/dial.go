package session

import (
	"context"

	"github.com/rbright/parley/internal/wsconn"
)

// Conn is the outbound half of a connection owned by one session.
type Conn interface {
	WriteText([]byte) error
	WriteBinary([]byte) error
	Close() error
}

// DialFunc opens a connection whose inbound traffic is delivered to handler.
type DialFunc func(ctx context.Context, handler wsconn.Handler) (Conn, error)

// WebSocket dials the remote service with cfg.
func WebSocket(cfg wsconn.Config) DialFunc {
	return func(ctx context.Context, handler wsconn.Handler) (Conn, error) {
		conn, err := wsconn.Dial(ctx, cfg, handler)
		if err != nil {
			return nil, err
		}
		return conn, nil
	}
}
