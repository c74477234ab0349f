package wsconn

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
)

// Probe dials the service, completes the upgrade, and closes normally without
// sending a handshake payload. It returns the upgrade round-trip time.
func Probe(ctx context.Context, cfg Config) (time.Duration, error) {
	started := time.Now()
	ws, _, err := dialSocket(ctx, cfg)
	if err != nil {
		return 0, err
	}
	elapsed := time.Since(started)

	_ = ws.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "probe"),
		time.Now().Add(writeWait),
	)
	return elapsed, ws.Close()
}
