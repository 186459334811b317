package ipc

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/devya-app/devya/domain"
	"github.com/gorilla/websocket"
)

// ListenEvents subscribes to the backend lifecycle events. handler is called from one
// goroutine in arrival order. stop closes the subscription and waits for that goroutine,
// it covers every event kind at once.
func (c *Client) ListenEvents(ctx context.Context, handler func(domain.BackendEvent)) (func(), error) {
	conn, _, err := c.Dialer.DialContext(ctx, c.wsEndpoint("events"), nil)
	if err != nil {
		return nil, fmt.Errorf("listening to events : %w", err)
	}

	done := make(chan struct{})
	var (
		once    sync.Once
		stopped bool
		mu      sync.Mutex
	)

	go func() {
		defer close(done)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				mu.Lock()
				quiet := stopped
				mu.Unlock()
				if !quiet && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					c.Logger.Warn("event stream read failed", "error", err)
				}
				return
			}

			var ev event
			if err := json.Unmarshal(data, &ev); err != nil {
				c.Logger.Warn("skipping malformed event", "error", err, "message", string(data))
				continue
			}
			switch e := domain.BackendEvent(ev.Event); e {
			case domain.EventProxyStarted, domain.EventProxyStopped:
				handler(e)
			default:
				c.Logger.Debug("ignoring unknown event", "event", ev.Event)
			}
		}
	}()

	return func() {
		once.Do(func() {
			mu.Lock()
			stopped = true
			mu.Unlock()
			_ = conn.Close()
			<-done
		})
	}, nil
}
