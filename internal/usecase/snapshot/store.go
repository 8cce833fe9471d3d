package snapshot

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	orderbookv1 "github.com/Hermit005-io/lob-simulator/internal/domain/orderbook/v1"
	"github.com/Hermit005-io/lob-simulator/pkg/errors"
	"github.com/Hermit005-io/lob-simulator/pkg/logger"
)

// Store persists book snapshots in Redis, keyed by pair, so a simulated book
// can be carried across runs.
type Store struct {
	pair   string
	logger *logger.Logger
	client redis.Cmdable
}

// NewStore creates a snapshot store for the given pair.
func NewStore(client redis.Cmdable, pair string, log *logger.Logger) *Store {
	return &Store{
		pair:   pair,
		client: client,
		logger: log,
	}
}

// Store serializes the snapshot and writes it to Redis.
func (s *Store) Store(ctx context.Context, snapshot *orderbookv1.BookSnapshot) error {
	buf, err := json.Marshal(snapshot)
	if err != nil {
		s.logger.ErrorContext(ctx, err, logger.Field{Key: "pair", Value: s.pair})
		return errors.NewTracer("snapshot_marshal_error").Wrap(err)
	}

	if err := s.client.Set(ctx, s.key(), buf, 0).Err(); err != nil {
		s.logger.ErrorContext(ctx, err, logger.Field{Key: "pair", Value: s.pair})
		return errors.NewTracer("snapshot_store_error").Wrap(err)
	}

	s.logger.InfoContext(ctx, "Book snapshot stored",
		logger.Field{Key: "pair", Value: s.pair},
		logger.Field{Key: "orders", Value: len(snapshot.Orders)},
	)
	return nil
}

// Load reads the snapshot back from Redis. A missing key yields (nil, nil).
func (s *Store) Load(ctx context.Context) (*orderbookv1.BookSnapshot, error) {
	data, err := s.client.Get(ctx, s.key()).Result()
	if err == redis.Nil {
		s.logger.WarnContext(ctx, "No book snapshot found",
			logger.Field{Key: "pair", Value: s.pair},
		)
		return nil, nil
	}
	if err != nil {
		s.logger.ErrorContext(ctx, err, logger.Field{Key: "pair", Value: s.pair})
		return nil, errors.NewTracer("snapshot_load_error").Wrap(err)
	}

	var snapshot orderbookv1.BookSnapshot
	if err := json.Unmarshal([]byte(data), &snapshot); err != nil {
		s.logger.ErrorContext(ctx, err, logger.Field{Key: "pair", Value: s.pair})
		return nil, errors.NewTracer("snapshot_unmarshal_error").Wrap(err)
	}

	return &snapshot, nil
}

func (s *Store) key() string {
	return fmt.Sprintf("lob:snapshot:%s", s.pair)
}
