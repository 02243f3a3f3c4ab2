package events_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/example/giftshop/pkg/config"
	"github.com/example/giftshop/pkg/events"
	"github.com/example/giftshop/pkg/models"
	"github.com/example/giftshop/pkg/wallet"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var kafkaCfg = config.KafkaConfig{OrdersTopic: "giftshop.orders", WalletTopic: "giftshop.wallet"}

func expectEnvelope(t *testing.T, wantType string) func([]byte) error {
	return func(val []byte) error {
		var e events.Event
		if err := json.Unmarshal(val, &e); err != nil {
			return err
		}
		if e.Type != wantType {
			return errors.New("unexpected event type " + e.Type)
		}
		if e.ID == "" || e.OccurredAt.IsZero() {
			return errors.New("envelope is missing id or timestamp")
		}
		return nil
	}
}

func TestKafkaPublisher_Publish(t *testing.T) {
	producer := mocks.NewSyncProducer(t, events.ProducerConfig())
	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(expectEnvelope(t, events.TypeOrderCreated))
	pub := events.NewKafkaPublisherWithProducer(producer, kafkaCfg, zap.NewNop())
	defer pub.Close()

	e, err := events.New(events.TypeOrderCreated, "ASM-1234", events.OrderPayload{
		OrderID: "ASM-1234", Status: "pending", TotalAmount: decimal.NewFromInt(70),
	})
	require.NoError(t, err)
	require.NoError(t, pub.Publish(context.Background(), e))
}

func TestKafkaPublisher_TopicRouting(t *testing.T) {
	pub := events.NewKafkaPublisherWithProducer(mocks.NewSyncProducer(t, nil), kafkaCfg, zap.NewNop())
	defer pub.Close()

	assert.Equal(t, "giftshop.orders", pub.TopicFor(events.TypeOrderApproved))
	assert.Equal(t, "giftshop.wallet", pub.TopicFor(events.TypeWalletChanged))
}

func TestEmit_SwallowsFailures(t *testing.T) {
	producer := mocks.NewSyncProducer(t, events.ProducerConfig())
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
	pub := events.NewKafkaPublisherWithProducer(producer, kafkaCfg, zap.NewNop())
	defer pub.Close()

	assert.NotPanics(t, func() {
		events.Emit(context.Background(), pub, zap.NewNop(), events.TypeOrderDeclined, "ASM-1", events.OrderPayload{})
	})
}

func TestWalletPublisher_RoundTrip(t *testing.T) {
	var published []byte
	producer := mocks.NewSyncProducer(t, events.ProducerConfig())
	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		published = val
		return nil
	})
	pub := events.NewKafkaPublisherWithProducer(producer, kafkaCfg, zap.NewNop())
	defer pub.Close()

	change := wallet.Change{
		Username: "asha",
		Balance:  decimal.NewFromInt(20),
		Delta:    decimal.NewFromInt(-80),
		OrderID:  "ASM-1234",
		Type:     models.TransactionDeduction,
	}
	events.NewWalletPublisher(pub, zap.NewNop()).WalletChanged(context.Background(), change)

	decoded, err := events.DecodeWalletChange(published)
	require.NoError(t, err)
	require.NotNil(t, decoded)
	assert.Equal(t, "asha", decoded.Username)
	assert.True(t, decoded.Balance.Equal(decimal.NewFromInt(20)))
	assert.True(t, decoded.Delta.Equal(decimal.NewFromInt(-80)))
	assert.Equal(t, "ASM-1234", decoded.OrderID)
}

func TestDecodeWalletChange_IgnoresOtherTypes(t *testing.T) {
	e, err := events.New(events.TypeOrderCreated, "ASM-1", events.OrderPayload{OrderID: "ASM-1"})
	require.NoError(t, err)
	data, err := json.Marshal(e)
	require.NoError(t, err)

	change, err := events.DecodeWalletChange(data)
	require.NoError(t, err)
	assert.Nil(t, change)

	_, err = events.DecodeWalletChange([]byte("not json"))
	assert.Error(t, err)
}

func TestNoop(t *testing.T) {
	var p events.Publisher = events.Noop{}
	assert.NoError(t, p.Publish(context.Background(), events.Event{}))
	assert.NoError(t, p.Close())
}
