package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/sladdky/ah-mqttrouter/contracts"
	"github.com/sladdky/ah-mqttrouter/messaging"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// collector gathers deliveries handed to a listener
type collector struct {
	mu         sync.Mutex
	deliveries []messaging.Delivery
	arrived    chan struct{}
}

func newCollector() *collector {
	return &collector{arrived: make(chan struct{}, 1024)}
}

func (c *collector) listen(ctx context.Context, d messaging.Delivery) {
	c.mu.Lock()
	c.deliveries = append(c.deliveries, d)
	c.mu.Unlock()
	c.arrived <- struct{}{}
}

func (c *collector) wait(t *testing.T, n int) []messaging.Delivery {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-c.arrived:
		case <-time.After(time.Second):
			t.Fatalf("received %d of %d deliveries", i, n)
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]messaging.Delivery(nil), c.deliveries...)
}

func (c *collector) none(t *testing.T) {
	t.Helper()
	select {
	case <-c.arrived:
		t.Fatal("unexpected delivery")
	case <-time.After(30 * time.Millisecond):
	}
}

func TestTransport(t *testing.T) {
	ctx := context.Background()

	t.Run("delivers matching messages in order", func(t *testing.T) {
		broker := NewBroker()
		sub := broker.Connect()
		defer sub.Close()
		pub := broker.Connect()
		defer pub.Close()

		c := newCollector()
		sub.SetListener(c.listen)
		require.NoError(t, sub.Subscribe(ctx, "sensors/+/temp"))

		for i := 0; i < 50; i++ {
			require.NoError(t, pub.Publish(ctx, fmt.Sprintf("sensors/%d/temp", i), []byte(fmt.Sprint(i)), contracts.PublishOptions{}))
		}
		require.NoError(t, pub.Publish(ctx, "sensors/1/humidity", nil, contracts.PublishOptions{}))

		got := c.wait(t, 50)
		for i, d := range got {
			assert.Equal(t, fmt.Sprintf("sensors/%d/temp", i), d.Topic)
			assert.Equal(t, fmt.Sprint(i), string(d.Payload))
			assert.NotEmpty(t, d.Metadata.MessageID)
			assert.False(t, d.Metadata.Timestamp.IsZero())
		}
		c.none(t)
	})

	t.Run("overlapping patterns deliver once", func(t *testing.T) {
		broker := NewBroker()
		tr := broker.Connect()
		defer tr.Close()

		c := newCollector()
		tr.SetListener(c.listen)
		require.NoError(t, tr.Subscribe(ctx, "a/#"))
		require.NoError(t, tr.Subscribe(ctx, "a/+"))

		require.NoError(t, tr.Publish(ctx, "a/b", []byte("x"), contracts.PublishOptions{QoS: 1}))

		got := c.wait(t, 1)
		assert.Equal(t, byte(1), got[0].Metadata.QoS)
		c.none(t)
	})

	t.Run("unsubscribe stops delivery", func(t *testing.T) {
		broker := NewBroker()
		tr := broker.Connect()
		defer tr.Close()

		c := newCollector()
		tr.SetListener(c.listen)
		require.NoError(t, tr.Subscribe(ctx, "a"))
		require.NoError(t, tr.Unsubscribe(ctx, "a"))

		require.NoError(t, tr.Publish(ctx, "a", nil, contracts.PublishOptions{}))

		c.none(t)
		assert.Empty(t, tr.Patterns())
	})

	t.Run("headers are copied", func(t *testing.T) {
		broker := NewBroker()
		tr := broker.Connect()
		defer tr.Close()

		c := newCollector()
		tr.SetListener(c.listen)
		require.NoError(t, tr.Subscribe(ctx, "a"))

		headers := map[string]interface{}{"source": "test"}
		require.NoError(t, tr.Publish(ctx, "a", nil, contracts.PublishOptions{Headers: headers}))
		headers["source"] = "changed"

		got := c.wait(t, 1)
		assert.Equal(t, "test", got[0].Metadata.Headers["source"])
	})

	t.Run("closed transport rejects calls", func(t *testing.T) {
		broker := NewBroker()
		tr := broker.Connect()

		require.NoError(t, tr.Close())
		require.NoError(t, tr.Close())

		assert.ErrorIs(t, tr.Subscribe(ctx, "a"), ErrClosed)
		assert.ErrorIs(t, tr.Unsubscribe(ctx, "a"), ErrClosed)
		assert.ErrorIs(t, tr.Publish(ctx, "a", nil, contracts.PublishOptions{}), ErrClosed)
	})

	t.Run("cancelled context rejects publish", func(t *testing.T) {
		broker := NewBroker()
		tr := broker.Connect()
		defer tr.Close()

		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		assert.ErrorIs(t, tr.Publish(cancelled, "a", nil, contracts.PublishOptions{}), context.Canceled)
	})

	t.Run("messages without a listener are dropped", func(t *testing.T) {
		broker := NewBroker()
		tr := broker.Connect()
		defer tr.Close()

		require.NoError(t, tr.Subscribe(ctx, "a"))
		require.NoError(t, tr.Publish(ctx, "a", []byte("lost"), contracts.PublishOptions{}))
		time.Sleep(20 * time.Millisecond)

		c := newCollector()
		tr.SetListener(c.listen)
		require.NoError(t, tr.Publish(ctx, "a", []byte("kept"), contracts.PublishOptions{}))

		got := c.wait(t, 1)
		assert.Equal(t, "kept", string(got[0].Payload))
	})
}

func TestRetained(t *testing.T) {
	ctx := context.Background()
	broker := NewBroker()
	pub := broker.Connect()
	defer pub.Close()

	require.NoError(t, pub.Publish(ctx, "config/a", []byte("1"), contracts.PublishOptions{Retain: true}))
	require.NoError(t, pub.Publish(ctx, "config/b", []byte("2"), contracts.PublishOptions{Retain: true}))
	require.NoError(t, pub.Publish(ctx, "config/b", nil, contracts.PublishOptions{Retain: true}))
	assert.Equal(t, 1, broker.Retained())

	sub := broker.Connect()
	defer sub.Close()
	c := newCollector()
	sub.SetListener(c.listen)
	require.NoError(t, sub.Subscribe(ctx, "config/#"))

	got := c.wait(t, 1)
	assert.Equal(t, "config/a", got[0].Topic)
	assert.Equal(t, "1", string(got[0].Payload))
	assert.True(t, got[0].Metadata.Retain)
	c.none(t)
}
