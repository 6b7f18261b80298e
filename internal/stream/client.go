package stream

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/3dfirelab/satOverpass/internal/metrics"
)

// frameWriteTimeout bounds each SSE frame write once the server-wide write
// deadline has been cleared for the stream.
const frameWriteTimeout = 30 * time.Second

// client writes SSE frames to one connection.
type client struct {
	w      http.ResponseWriter
	rc     *http.ResponseController
	ip     string
	logger *slog.Logger

	messagesSent int64
	bytesSent    int64
}

// frame writes one SSE frame and flushes it to the client.
func (c *client) frame(format string, args ...any) error {
	if err := c.rc.SetWriteDeadline(time.Now().Add(frameWriteTimeout)); err != nil {
		c.logger.Debug("could not set write deadline", "remote_ip", c.ip, "error", err)
	}
	n, err := fmt.Fprintf(c.w, format, args...)
	c.bytesSent += int64(n)
	metrics.AddStreamBytes(n)
	if err != nil {
		return err
	}
	return c.rc.Flush()
}

// sendJSON sends v as a "data:" event.
func (c *client) sendJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		metrics.IncStreamErrors("marshal_error")
		return fmt.Errorf("encoding %T: %w", v, err)
	}
	if err := c.frame("data: %s\n\n", data); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	c.messagesSent++
	metrics.IncStreamMessages()
	return nil
}

// sendRetry sets the browser's reconnection delay.
func (c *client) sendRetry(ms int) error {
	if err := c.frame("retry: %d\n\n", ms); err != nil {
		return fmt.Errorf("retry write: %w", err)
	}
	return nil
}

// sendKeepalive sends an empty SSE comment.
func (c *client) sendKeepalive() error {
	if err := c.frame(":\n\n"); err != nil {
		return fmt.Errorf("keepalive write: %w", err)
	}
	return nil
}
