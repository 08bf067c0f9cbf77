package binance

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rxtech-lab/argo-algo/pkg/errors"
	"go.uber.org/zap"
)

const (
	keepaliveInterval = 30 * time.Minute
	reconnectDelay    = 2 * time.Second
	closeTimeout      = 5 * time.Second
)

// userStream reads order updates from the Binance user data stream and keeps its listen key alive.
// A dropped connection is re-established with a fresh listen key followed by an order snapshot.
type userStream struct {
	c    *Connectivity
	stop chan struct{}

	mu        sync.Mutex
	conn      *websocket.Conn
	listenKey string
	stopOnce  sync.Once
}

func startUserStream(ctx context.Context, c *Connectivity) (*userStream, error) {
	u := &userStream{
		c:         c,
		stop:      make(chan struct{}),
		mu:        sync.Mutex{},
		conn:      nil,
		listenKey: "",
		stopOnce:  sync.Once{},
	}

	if err := u.connect(ctx); err != nil {
		return nil, err
	}

	c.wg.Go(u.readLoop)
	c.wg.Go(u.keepaliveLoop)

	return u, nil
}

func (u *userStream) connect(ctx context.Context) error {
	listenKey, err := u.c.client.UserStream().Start(ctx)
	if err != nil {
		return errors.Wrap(errors.ErrCodeStreamFailed, "failed to start user data stream", err)
	}

	url := strings.TrimSuffix(u.c.config.streamURL(), "/") + "/" + listenKey

	conn, _, err := u.c.dialer.DialContext(ctx, url, nil)
	if err != nil {
		return errors.Wrap(errors.ErrCodeStreamFailed, "failed to connect user data stream", err)
	}

	u.mu.Lock()
	u.conn = conn
	u.listenKey = listenKey
	u.mu.Unlock()

	return nil
}

func (u *userStream) current() (*websocket.Conn, string) {
	u.mu.Lock()
	defer u.mu.Unlock()

	return u.conn, u.listenKey
}

func (u *userStream) stopped() bool {
	select {
	case <-u.stop:
		return true
	default:
		return false
	}
}

func (u *userStream) readLoop() {
	for {
		conn, _ := u.current()

		_, message, err := conn.ReadMessage()
		if err != nil {
			if u.stopped() {
				return
			}

			u.c.log.Warn("user data stream disconnected", zap.Error(err))

			if !u.reconnect() {
				return
			}

			continue
		}

		u.handle(message)
	}
}

func (u *userStream) handle(message []byte) {
	var header struct {
		Event string `json:"e"`
	}

	if err := json.Unmarshal(message, &header); err != nil {
		u.c.log.Warn("failed to decode user data message", zap.Error(err))

		return
	}

	switch header.Event {
	case "executionReport":
		var report executionReport
		if err := json.Unmarshal(message, &report); err != nil {
			u.c.log.Warn("failed to decode execution report", zap.Error(err))

			return
		}

		u.c.handleExecutionReport(report)
	case "listenKeyExpired":
		conn, _ := u.current()
		_ = conn.Close()
	}
}

// reconnect retries until the stream is back or stopped. A fresh snapshot replaces whatever
// was missed while disconnected.
func (u *userStream) reconnect() bool {
	for {
		select {
		case <-u.stop:
			return false
		case <-time.After(reconnectDelay):
		}

		ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		err := u.connect(ctx)

		if err == nil {
			err = u.c.sendSnapshot(ctx)
		}

		cancel()

		if err == nil {
			u.c.log.Info("user data stream reconnected")

			return true
		}

		u.c.log.Warn("failed to reconnect user data stream", zap.Error(err))
	}
}

func (u *userStream) keepaliveLoop() {
	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-u.stop:
			return
		case <-ticker.C:
			_, listenKey := u.current()

			ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
			if err := u.c.client.UserStream().Keepalive(ctx, listenKey); err != nil {
				u.c.log.Warn("failed to keep user data stream alive", zap.Error(err))
			}

			cancel()
		}
	}
}

func (u *userStream) close() error {
	var err error

	u.stopOnce.Do(func() {
		close(u.stop)

		conn, listenKey := u.current()

		ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()

		if closeErr := u.c.client.UserStream().Close(ctx, listenKey); closeErr != nil {
			u.c.log.Warn("failed to close listen key", zap.Error(closeErr))
		}

		err = conn.Close()
	})

	return err
}
