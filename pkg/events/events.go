// Package events publishes domain events to Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/IBM/sarama"
	"github.com/example/giftshop/pkg/config"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	TypeOrderCreated  = "order.created"
	TypeOrderApproved = "order.approved"
	TypeOrderDeclined = "order.declined"
	TypeWalletChanged = "wallet.changed"
)

// Event is the envelope written to every topic.
type Event struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Key        string          `json:"key"`
	OccurredAt time.Time       `json:"occurred_at"`
	Data       json.RawMessage `json:"data"`
}

func New(eventType, key string, data interface{}) (Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Event{}, fmt.Errorf("failed to encode %s event: %w", eventType, err)
	}
	return Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		Key:        key,
		OccurredAt: time.Now().UTC(),
		Data:       raw,
	}, nil
}

// OrderPayload is the data of order.* events.
type OrderPayload struct {
	OrderID     string          `json:"order_id"`
	Status      string          `json:"status"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	ItemCount   int             `json:"item_count,omitempty"`
	Actor       string          `json:"actor,omitempty"`
	Deduction   decimal.Decimal `json:"deduction"`
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

type KafkaPublisher struct {
	producer sarama.SyncProducer
	cfg      config.KafkaConfig
	logger   *zap.Logger
}

func NewKafkaPublisher(cfg config.KafkaConfig, logger *zap.Logger) (*KafkaPublisher, error) {
	producer, err := sarama.NewSyncProducer(cfg.Brokers, ProducerConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}
	return NewKafkaPublisherWithProducer(producer, cfg, logger), nil
}

func NewKafkaPublisherWithProducer(producer sarama.SyncProducer, cfg config.KafkaConfig, logger *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, cfg: cfg, logger: logger}
}

func ProducerConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5
	cfg.Producer.Return.Successes = true
	cfg.Version = sarama.V2_6_0_0
	return cfg
}

// TopicFor routes order.* events to the orders topic and wallet.* events to
// the wallet topic.
func (p *KafkaPublisher) TopicFor(eventType string) string {
	if strings.HasPrefix(eventType, "wallet.") {
		return p.cfg.WalletTopic
	}
	return p.cfg.OrdersTopic
}

func (p *KafkaPublisher) Publish(ctx context.Context, e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}

	topic := p.TopicFor(e.Type)
	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(e.Key),
		Value: sarama.ByteEncoder(data),
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		p.logger.Error("Failed to send event to Kafka", zap.String("type", e.Type), zap.Error(err))
		return err
	}

	p.logger.Debug("Event published to Kafka",
		zap.String("topic", topic),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
		zap.String("type", e.Type),
		zap.String("key", e.Key))
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}

// Noop discards events; used when Kafka is disabled.
type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }

func (Noop) Close() error { return nil }

// Emit builds and publishes an event. Failures are logged and swallowed so
// that a committed business action never reports an error because of
// notification trouble.
func Emit(ctx context.Context, p Publisher, logger *zap.Logger, eventType, key string, data interface{}) {
	e, err := New(eventType, key, data)
	if err == nil {
		err = p.Publish(ctx, e)
	}
	if err != nil {
		logger.Warn("Failed to publish event", zap.String("type", eventType), zap.String("key", key), zap.Error(err))
	}
}
