package bus

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ListenerConfig wires a Listener.
type ListenerConfig struct {
	// Client is the redis connection. Required.
	Client *redis.Client

	// Channel is the pub/sub channel to consume. Empty means
	// DefaultChannel.
	Channel string

	// Prefix is the namespace of worker-owned redis keys purged on
	// every invalidation. Empty disables the purge.
	Prefix string

	// OnInvalidate, when set, runs after each processed message.
	OnInvalidate func(Message)

	// Logger receives every swallowed failure. Nil disables logging.
	Logger *zap.Logger
}

// Listener consumes invalidation messages. On each one it deletes every
// worker-owned key under the configured prefix (SCAN plus DEL, best
// effort) and invokes the hook. A lost subscription is reestablished
// with exponential backoff.
type Listener struct {
	cfg    ListenerConfig
	logger *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewListener creates a Listener. Nothing runs until Start.
func NewListener(cfg ListenerConfig) *Listener {
	if cfg.Channel == "" {
		cfg.Channel = DefaultChannel
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Listener{cfg: cfg, logger: logger}
}

// Start subscribes and consumes in the background. Starting a running
// Listener is a no-op.
func (l *Listener) Start() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	l.done = make(chan struct{})
	go l.run(ctx, l.done)
}

// Stop cancels the subscription and waits for the consume loop to exit.
// Stopping a stopped Listener is a no-op.
func (l *Listener) Stop() {
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	l.cancel, l.done = nil, nil
	l.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (l *Listener) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	for attempt := 0; ; {
		if ctx.Err() != nil {
			return
		}

		sub := l.cfg.Client.Subscribe(ctx, l.cfg.Channel)
		if _, err := sub.Receive(ctx); err != nil {
			_ = sub.Close()
			if ctx.Err() != nil {
				return
			}
			l.logger.Error("subscribe failed, backing off",
				zap.Int("attempt", attempt), zap.Error(err))
			if !sleep(ctx, backoff(attempt)) {
				return
			}
			attempt++
			continue
		}

		attempt = 0
		l.consume(ctx, sub.Channel())
		_ = sub.Close()
	}
}

// consume drains the subscription until it closes or ctx is done. A
// closed message channel means the connection dropped; the caller
// resubscribes.
func (l *Listener) consume(ctx context.Context, msgs <-chan *redis.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-msgs:
			if !ok {
				return
			}
			l.handle(ctx, m)
		}
	}
}

func (l *Listener) handle(ctx context.Context, m *redis.Message) {
	var msg Message
	if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
		l.logger.Error("undecodable invalidate message", zap.Error(err))
		return
	}

	if l.cfg.Prefix != "" {
		deleted, err := l.purge(ctx)
		if err != nil {
			l.logger.Error("worker cache purge incomplete",
				zap.Int("deleted", deleted), zap.Error(err))
		} else {
			l.logger.Info("worker cache purged",
				zap.String("id", msg.ID), zap.Int("deleted", deleted))
		}
	}

	if l.cfg.OnInvalidate != nil {
		l.cfg.OnInvalidate(msg)
	}
}

// purge deletes every key under the configured prefix. It returns how
// many keys were deleted even when it stops early on an error.
func (l *Listener) purge(ctx context.Context) (int, error) {
	pattern := l.cfg.Prefix + "*"
	deleted := 0
	var cursor uint64
	for {
		keys, next, err := l.cfg.Client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return deleted, err
		}
		if len(keys) > 0 {
			if err := l.cfg.Client.Del(ctx, keys...).Err(); err != nil {
				return deleted, err
			}
			deleted += len(keys)
		}
		if next == 0 {
			return deleted, nil
		}
		cursor = next
	}
}
