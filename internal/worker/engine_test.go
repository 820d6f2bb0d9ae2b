package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Additional-Code/canteen/internal/config"
	"github.com/Additional-Code/canteen/internal/messaging"
)

type replayClient struct {
	msgs []messaging.Message
	once sync.Once
}

func (c *replayClient) Publish(context.Context, []byte, []byte, map[string]string) error { return nil }

func (c *replayClient) Consume(ctx context.Context, handler messaging.Handler) error {
	c.once.Do(func() {
		for _, m := range c.msgs {
			_ = handler(ctx, m)
		}
	})
	<-ctx.Done()
	return ctx.Err()
}

func (c *replayClient) Topic() string { return "canteen.orders" }

type recorder struct {
	mu  sync.Mutex
	got []string
}

func (r *recorder) handler(name string) messaging.Handler {
	return func(_ context.Context, msg messaging.Message) error {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.got = append(r.got, name+":"+msg.EventType())
		return nil
	}
}

func (r *recorder) calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.got...)
}

func msg(topic, eventType string) messaging.Message {
	return messaging.Message{Topic: topic, Headers: map[string]string{messaging.HeaderEventType: eventType}}
}

func newEngine(client messaging.Client, cfg config.Config, rec *recorder) *Engine {
	return NewEngine(Params{
		Client: client,
		Logger: zap.NewNop(),
		Config: cfg,
		Registrations: []HandlerRegistration{
			{Topic: "canteen.orders", EventType: "order.cancelled", Handler: rec.handler("cancel")},
			{Topic: "canteen.orders", Handler: rec.handler("audit")},
			{Topic: "", Handler: rec.handler("ignored")},
		},
	})
}

func TestDispatchRoutesByEventType(t *testing.T) {
	rec := &recorder{}
	e := newEngine(&replayClient{}, config.Config{}, rec)
	ctx := context.Background()

	require.NoError(t, e.Dispatch(ctx, msg("canteen.orders", "order.cancelled")))
	require.NoError(t, e.Dispatch(ctx, msg("canteen.orders", "order.created")))
	require.NoError(t, e.Dispatch(ctx, msg("other.topic", "order.created")))

	assert.Equal(t, []string{"cancel:order.cancelled", "audit:order.created"}, rec.calls())
}

func TestEngineConsumesUntilStopped(t *testing.T) {
	var cfg config.Config
	cfg.Messaging.Enabled = true
	cfg.Messaging.Workers.Enabled = true
	cfg.Messaging.Workers.Concurrency = 1

	rec := &recorder{}
	client := &replayClient{msgs: []messaging.Message{
		msg("canteen.orders", "order.created"),
		msg("canteen.orders", "order.cancelled"),
	}}
	e := newEngine(client, cfg, rec)

	require.NoError(t, e.start(context.Background()))
	assert.Eventually(t, func() bool { return len(rec.calls()) == 2 }, time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, e.stop(ctx))
	assert.Equal(t, []string{"audit:order.created", "cancel:order.cancelled"}, rec.calls())
}

func TestEngineDisabled(t *testing.T) {
	rec := &recorder{}
	e := newEngine(&replayClient{msgs: []messaging.Message{msg("canteen.orders", "order.created")}}, config.Config{}, rec)

	require.NoError(t, e.start(context.Background()))
	require.NoError(t, e.stop(context.Background()))
	assert.Empty(t, rec.calls())
}
