// Package redisseq keeps invoice counters in Redis. INCR is atomic on the
// server, so concurrent allocations on one key never share a value.
package redisseq

import (
	"context"
	"net"

	"github.com/pkg/errors"
	redis "github.com/redis/go-redis/v9"

	"fakturin/backend/internal/store"
)

const keyPrefix = "invoice_counter:"

type Store struct {
	client redis.UniversalClient
}

func New(client redis.UniversalClient) *Store {
	return &Store{client: client}
}

func Key(identifier string, dateKey string) string {
	return keyPrefix + identifier + ":" + dateKey
}

func (s *Store) PeekNextSequence(ctx context.Context, identifier string, dateKey string) (int64, error) {
	seq, err := s.client.Get(ctx, Key(identifier, dateKey)).Int64()
	if errors.Is(err, redis.Nil) {
		return 1, nil
	}
	if err != nil {
		return 0, classify("peek sequence", err)
	}
	return seq + 1, nil
}

func (s *Store) AllocateSequence(ctx context.Context, identifier string, dateKey string) (int64, error) {
	if identifier == "" || dateKey == "" {
		return 0, store.Invalid("counter", "identifier and date key are required")
	}
	seq, err := s.client.Incr(ctx, Key(identifier, dateKey)).Result()
	if err != nil {
		return 0, classify("allocate sequence", err)
	}
	return seq, nil
}

func classify(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || errors.Is(err, redis.ErrClosed) {
		return store.Unavailable(op, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return store.Unavailable(op, err)
	}
	return errors.Wrap(err, op)
}
