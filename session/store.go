package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/NitishJha0207/holdfast/kv"
)

const (
	blobKey   = "session:record"
	expiryKey = "session:expires"

	// recordTTL bounds how long a persisted session may be recovered.
	// Past it the durable copy is wiped regardless of token validity.
	recordTTL = 24 * time.Hour
)

// Store keeps the durable copy of the session: an encoded blob plus an
// absolute expiry written as RFC 3339. Both keys live outside the cache
// namespace so cache purges never touch them.
type Store struct {
	kv      kv.Store
	logger  *zap.Logger
	nowFunc func() time.Time // for testing; defaults to time.Now
}

// NewStore creates a Store over the given durable tier. A nil logger
// disables logging.
func NewStore(kvs kv.Store, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{kv: kvs, logger: logger, nowFunc: time.Now}
}

// Persist writes the record and stamps its expiry at now plus the
// record TTL. Either both keys are written or an error is returned.
func (s *Store) Persist(ctx context.Context, r *Record) error {
	blob, err := Encode(r)
	if err != nil {
		return err
	}
	if err := s.kv.Set(ctx, blobKey, blob); err != nil {
		return fmt.Errorf("session: persist blob: %w", err)
	}
	expiry := s.now().Add(recordTTL).UTC().Format(time.RFC3339)
	if err := s.kv.Set(ctx, expiryKey, []byte(expiry)); err != nil {
		return fmt.Errorf("session: persist expiry: %w", err)
	}
	return nil
}

// Recover reads back the persisted session. It fails closed: a missing
// key, a past or unparseable expiry, or a corrupt blob all wipe the
// durable copy and report no session. The error is non-nil only for
// storage failures, and even then the session is reported absent.
func (s *Store) Recover(ctx context.Context) (*Record, bool, error) {
	blob, ok, err := s.kv.Get(ctx, blobKey)
	if err != nil {
		return nil, false, fmt.Errorf("session: recover blob: %w", err)
	}
	if !ok {
		return nil, false, nil
	}

	rawExpiry, ok, err := s.kv.Get(ctx, expiryKey)
	if err != nil {
		return nil, false, fmt.Errorf("session: recover expiry: %w", err)
	}
	if !ok {
		s.wipe(ctx)
		return nil, false, nil
	}

	expiry, err := time.Parse(time.RFC3339, string(rawExpiry))
	if err != nil || s.now().After(expiry) {
		s.wipe(ctx)
		return nil, false, nil
	}

	r, err := Decode(blob)
	if err != nil {
		s.logger.Info("discarding unreadable session record", zap.Error(err))
		s.wipe(ctx)
		return nil, false, nil
	}
	return r, true, nil
}

// Wipe removes both storage keys. Both deletes are attempted even when
// the first fails.
func (s *Store) Wipe(ctx context.Context) error {
	return errors.Join(
		s.kv.Delete(ctx, blobKey),
		s.kv.Delete(ctx, expiryKey),
	)
}

// wipe is Wipe with the error routed to the log, for the fail-closed
// paths inside Recover.
func (s *Store) wipe(ctx context.Context) {
	if err := s.Wipe(ctx); err != nil {
		s.logger.Error("session wipe failed", zap.Error(err))
	}
}

func (s *Store) now() time.Time {
	if s.nowFunc != nil {
		return s.nowFunc()
	}
	return time.Now()
}
