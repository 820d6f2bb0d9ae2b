package messaging

import (
	"context"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"

	"github.com/Additional-Code/canteen/internal/config"
)

func TestHeadersRoundTrip(t *testing.T) {
	assert.Nil(t, toKafkaHeaders(nil))

	msg := kafka.Message{
		Topic:   "canteen.orders",
		Key:     []byte("order-7"),
		Value:   []byte(`{"orderId":7}`),
		Headers: toKafkaHeaders(map[string]string{HeaderEventType: "order.served"}),
		Offset:  12,
	}
	got := fromKafkaMessage(msg)
	assert.Equal(t, "order.served", got.EventType())
	assert.Equal(t, "order-7", string(got.Key))
	assert.Equal(t, int64(12), got.Offset)

	msg.Key[0] = 'x'
	assert.Equal(t, "order-7", string(got.Key), "payload is copied out of the fetch buffer")
}

func TestMessageWithoutHeaders(t *testing.T) {
	got := fromKafkaMessage(kafka.Message{Value: []byte("{}")})
	assert.Nil(t, got.Headers)
	assert.Empty(t, got.EventType())
}

func TestNoopClientWhenDisabled(t *testing.T) {
	var cfg config.Config
	cfg.Messaging.Driver = "kafka"
	cfg.Messaging.Kafka.Topic = "canteen.orders"

	client, err := NewClient(fxtest.NewLifecycle(t), cfg, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, "canteen.orders", client.Topic())
	require.NoError(t, client.Publish(context.Background(), []byte("k"), []byte("v"), nil))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err = client.Consume(ctx, func(context.Context, Message) error { return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestUnsupportedDriver(t *testing.T) {
	var cfg config.Config
	cfg.Messaging.Enabled = true
	cfg.Messaging.Driver = "nats"

	_, err := NewClient(fxtest.NewLifecycle(t), cfg, zap.NewNop())
	assert.ErrorContains(t, err, "unsupported messaging driver")
}
