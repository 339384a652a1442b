// Package bus carries cache invalidation announcements between
// processes over redis pub/sub. The publishing side is fire-and-forget;
// the listening side purges the worker-owned keys it caches in redis
// and invokes an optional hook.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultChannel is the pub/sub channel invalidations travel on.
const DefaultChannel = "holdfast:invalidate"

// Message is one invalidation announcement.
type Message struct {
	ID     string    `json:"id"`
	Reason string    `json:"reason,omitempty"`
	At     time.Time `json:"at"`
}

// Publisher announces invalidations. No reply is expected and no
// delivery is guaranteed; a dead broker surfaces as a returned error
// that callers log and move past.
type Publisher struct {
	rdb     *redis.Client
	channel string
	logger  *zap.Logger
}

// NewPublisher creates a Publisher on the given channel. An empty
// channel name means DefaultChannel; a nil logger disables logging.
func NewPublisher(rdb *redis.Client, channel string, logger *zap.Logger) *Publisher {
	if channel == "" {
		channel = DefaultChannel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{rdb: rdb, channel: channel, logger: logger}
}

// Announce publishes one invalidation message.
func (p *Publisher) Announce(ctx context.Context) error {
	return p.AnnounceReason(ctx, "clear-all")
}

// AnnounceReason publishes one invalidation message carrying reason.
func (p *Publisher) AnnounceReason(ctx context.Context, reason string) error {
	msg := Message{
		ID:     uuid.NewString(),
		Reason: reason,
		At:     time.Now().UTC(),
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("bus: encode message: %w", err)
	}
	if err := p.rdb.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("bus: publish: %w", err)
	}
	p.logger.Info("invalidate announced", zap.String("id", msg.ID), zap.String("reason", reason))
	return nil
}
