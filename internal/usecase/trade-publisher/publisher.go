package tradepublisher

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"

	orderbookv1 "github.com/Hermit005-io/lob-simulator/internal/domain/orderbook/v1"
	"github.com/Hermit005-io/lob-simulator/pkg/errors"
	"github.com/Hermit005-io/lob-simulator/pkg/logger"
)

// Config holds the Kafka settings for the trade publisher.
type Config struct {
	Brokers []string
	Topic   string
}

// Publisher writes executed trades to a Kafka topic. It runs outside the
// simulation loop: trades are drained from the book after the run (or in
// batches between runs), never per-match inside the matching path.
type Publisher struct {
	kafkaWriter *kafka.Writer
	logger      *logger.Logger
}

// NewPublisher creates a new Kafka publisher for trade events.
func NewPublisher(config Config, log *logger.Logger) *Publisher {
	kafkaWriter := kafka.NewWriter(kafka.WriterConfig{
		Brokers: config.Brokers,
		Topic:   config.Topic,
	})

	return &Publisher{
		kafkaWriter: kafkaWriter,
		logger:      log,
	}
}

// PublishTrades serializes and publishes a batch of trades.
func (p *Publisher) PublishTrades(ctx context.Context, trades []orderbookv1.Trade) error {
	if len(trades) == 0 {
		return nil
	}

	msgs := make([]kafka.Message, 0, len(trades))
	for _, trade := range trades {
		value, err := json.Marshal(trade)
		if err != nil {
			return errors.NewTracer("trade_marshal_error").Wrap(err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(trade.ID.String()),
			Value: value,
		})
	}

	if err := p.kafkaWriter.WriteMessages(ctx, msgs...); err != nil {
		p.logger.Error(err,
			logger.Field{Key: "action", Value: "publish_trades"},
			logger.Field{Key: "count", Value: len(msgs)},
		)
		return errors.NewTracer("trade_publish_error").Wrap(err)
	}

	p.logger.Info("Trades published",
		logger.Field{Key: "count", Value: len(msgs)},
	)
	return nil
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	return p.kafkaWriter.Close()
}
