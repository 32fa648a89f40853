package reconcile

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/MikeSquared-Agency/caption/internal/notify"
)

const (
	minBackoff = time.Second
	maxBackoff = 30 * time.Second
)

// Listen feeds label events from the live websocket at wsURL into Notify until ctx ends,
// reconnecting with exponential backoff. Every (re)connect triggers a refresh, since
// events sent while disconnected are lost.
func (c *Client) Listen(ctx context.Context, wsURL, token string) error {
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}

	backoff := minBackoff
	for {
		conn, _, err := dialer.DialContext(ctx, wsURL, header)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Warn("live connection failed", "url", wsURL, "retry_in", backoff, "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, maxBackoff)
			continue
		}

		backoff = minBackoff
		c.logger.Info("live connection established", "url", wsURL)
		c.trigger()

		err = c.readEvents(ctx, conn)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Warn("live connection lost", "url", wsURL, "error", err)
	}
}

func (c *Client) readEvents(ctx context.Context, conn *websocket.Conn) error {
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()
	defer conn.Close()

	for {
		var evt notify.Event
		if err := conn.ReadJSON(&evt); err != nil {
			return err
		}
		c.Notify(evt)
	}
}
