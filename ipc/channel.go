package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/devya-app/devya/capture"
	"github.com/devya-app/devya/domain"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// PushChannel receives captured fragments from the backend over a websocket.
// A single reader goroutine decodes messages and pushes them on a capture.Queue,
// the queue's drain goroutine is the only caller of the registered handler.
type PushChannel struct {
	id     string
	conn   *websocket.Conn
	queue  *capture.Queue
	logger *slog.Logger

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

var _ domain.PushChannel = (*PushChannel)(nil)

// OpenChannel dials a new push channel. The backend starts pushing on it once
// StartProxy is called with the channel id.
func (c *Client) OpenChannel(ctx context.Context) (domain.PushChannel, error) {
	id := uuid.NewString()
	conn, _, err := c.Dialer.DialContext(ctx, c.wsEndpoint("channels", id), nil)
	if err != nil {
		return nil, fmt.Errorf("opening channel %s : %w", id, err)
	}

	readCtx, cancel := context.WithCancel(context.Background())
	ch := &PushChannel{
		id:     id,
		conn:   conn,
		queue:  capture.NewQueue(c.QueueSize),
		logger: c.Logger.With("channel", id),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go ch.read(readCtx)
	return ch, nil
}

func (ch *PushChannel) ID() string {
	return ch.id
}

// Listen registers the handler. A channel has exactly one handler for its lifetime.
func (ch *PushChannel) Listen(ctx context.Context, handler func(domain.CapturedFragment)) (func(), error) {
	stop, err := ch.queue.Listen(ctx, handler)
	if errors.Is(err, capture.ErrQueueClosed) {
		return nil, ErrChannelClosed
	}
	return stop, err
}

// Close closes the websocket and the queue and waits for the reader to return.
func (ch *PushChannel) Close() error {
	var err error
	ch.closeOnce.Do(func() {
		ch.cancel()
		ch.queue.Close()
		err = ch.conn.Close()
		<-ch.done
	})
	return err
}

func (ch *PushChannel) read(ctx context.Context) {
	defer close(ch.done)
	defer ch.queue.Close()

	for {
		messageType, data, err := ch.conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				ch.logger.Warn("channel read failed", "error", err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var f fragment
		if err := json.Unmarshal(data, &f); err != nil {
			ch.logger.Warn("skipping malformed fragment", "error", err, "message", string(data))
			continue
		}
		if err := ch.queue.Push(ctx, f.toDomain()); err != nil {
			return
		}
	}
}
