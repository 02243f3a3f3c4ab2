package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"
	"github.com/example/giftshop/pkg/config"
	"github.com/example/giftshop/pkg/wallet"
	"go.uber.org/zap"
)

// WalletPublisher forwards committed wallet changes as wallet.changed events.
type WalletPublisher struct {
	publisher Publisher
	logger    *zap.Logger
}

func NewWalletPublisher(p Publisher, logger *zap.Logger) *WalletPublisher {
	return &WalletPublisher{publisher: p, logger: logger}
}

func (w *WalletPublisher) WalletChanged(ctx context.Context, change wallet.Change) {
	Emit(ctx, w.publisher, w.logger, TypeWalletChanged, change.Username, change)
}

// WalletConsumer replays wallet.changed events from Kafka into an observer,
// so processes that did not commit a change still see it.
type WalletConsumer struct {
	group    sarama.ConsumerGroup
	topic    string
	observer wallet.Observer
	logger   *zap.Logger
}

func NewWalletConsumer(cfg config.KafkaConfig, observer wallet.Observer, logger *zap.Logger) (*WalletConsumer, error) {
	saramaCfg := sarama.NewConfig()
	saramaCfg.Consumer.Group.Rebalance.Strategy = sarama.BalanceStrategyRoundRobin
	saramaCfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	saramaCfg.Version = sarama.V2_6_0_0

	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, saramaCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka consumer group: %w", err)
	}
	return &WalletConsumer{group: group, topic: cfg.WalletTopic, observer: observer, logger: logger}, nil
}

// Start consumes until ctx is cancelled.
func (c *WalletConsumer) Start(ctx context.Context) error {
	handler := &walletHandler{observer: c.observer, logger: c.logger}
	for {
		if err := c.group.Consume(ctx, []string{c.topic}, handler); err != nil {
			c.logger.Error("Error consuming from Kafka", zap.Error(err))
			return err
		}
		if ctx.Err() != nil {
			c.logger.Info("Kafka consumer context cancelled")
			return nil
		}
	}
}

func (c *WalletConsumer) Close() error {
	return c.group.Close()
}

type walletHandler struct {
	observer wallet.Observer
	logger   *zap.Logger
}

func (h *walletHandler) Setup(sarama.ConsumerGroupSession) error { return nil }

func (h *walletHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *walletHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			change, err := DecodeWalletChange(message.Value)
			if err != nil {
				h.logger.Warn("Skipping undecodable wallet event",
					zap.Int64("offset", message.Offset), zap.Error(err))
			} else if change != nil {
				h.observer.WalletChanged(session.Context(), *change)
			}
			session.MarkMessage(message, "")
		case <-session.Context().Done():
			return nil
		}
	}
}

// DecodeWalletChange unwraps a wallet.changed envelope. Other event types
// decode to nil.
func DecodeWalletChange(data []byte) (*wallet.Change, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	if e.Type != TypeWalletChanged {
		return nil, nil
	}
	var change wallet.Change
	if err := json.Unmarshal(e.Data, &change); err != nil {
		return nil, err
	}
	return &change, nil
}
