package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/sladdky/ah-mqttrouter/contracts"
)

// newReplyingTransport answers every envelope published on requestTopic with reply
func newReplyingTransport(requestTopic, reply string) *mockTransport {
	m := &mockTransport{}
	m.On("Subscribe", mock.Anything, mock.Anything).Return(nil)
	m.On("Unsubscribe", mock.Anything, mock.Anything).Return(nil)
	m.On("Publish", mock.Anything, requestTopic, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			var env contracts.Envelope
			if err := json.Unmarshal(args.Get(2).([]byte), &env); err != nil {
				return
			}
			m.deliver(env.ResponseTopic, reply)
		}).
		Return(nil)
	return m
}

func TestRequestorSend(t *testing.T) {
	ctx := context.Background()

	t.Run("returns the first reply", func(t *testing.T) {
		defer goleak.VerifyNone(t)

		transport := newReplyingTransport("devices/lamp", `"on"`)
		metrics := &recordingMetrics{}
		router, _ := NewRouter(transport, WithRouterMetrics(metrics))
		requestor, err := NewRequestor(router)
		require.NoError(t, err)

		reply, err := requestor.Send(ctx, "devices/lamp", `"status"`)

		require.NoError(t, err)
		assert.Equal(t, "on", reply.Payload)
		assert.Empty(t, router.Subscriptions())
		assert.False(t, transport.attached())
		assert.Equal(t, []string{RequestOutcomeReplied}, metrics.requests)
	})

	t.Run("subscribes before publishing the envelope", func(t *testing.T) {
		transport := newReplyingTransport("q", `1`)
		router, _ := NewRouter(transport)
		requestor, _ := NewRequestor(router)

		_, err := requestor.Send(ctx, "q", `{"x":1}`, WithResponseTopic("replies/me"))
		require.NoError(t, err)

		require.GreaterOrEqual(t, len(transport.Calls), 3)
		assert.Equal(t, "Subscribe", transport.Calls[0].Method)
		assert.Equal(t, "replies/me", transport.Calls[0].Arguments.String(1))
		assert.Equal(t, "Publish", transport.Calls[1].Method)

		var env contracts.Envelope
		require.NoError(t, json.Unmarshal(transport.Calls[1].Arguments.Get(2).([]byte), &env))
		assert.Equal(t, contracts.NewEnvelope("replies/me", `{"x":1}`), env)

		transport.AssertCalled(t, "Unsubscribe", mock.Anything, "replies/me")
	})

	t.Run("generates a response topic", func(t *testing.T) {
		transport := newReplyingTransport("q", `1`)
		router, _ := NewRouter(transport)
		requestor, _ := NewRequestor(router)

		_, err := requestor.Send(ctx, "q", `1`)
		require.NoError(t, err)

		assert.Regexp(t, `^response/\d{1,4}$`, transport.Calls[0].Arguments.String(1))
	})

	t.Run("times out and ignores a late reply", func(t *testing.T) {
		defer goleak.VerifyNone(t)

		transport := newMockTransport()
		metrics := &recordingMetrics{}
		router, _ := NewRouter(transport, WithRouterMetrics(metrics))
		requestor, _ := NewRequestor(router, WithRequestTimeout(20*time.Millisecond))

		reply, err := requestor.Send(ctx, "q", `1`, WithResponseTopic("response/42"))

		assert.Nil(t, reply)
		assert.ErrorIs(t, err, ErrRequestTimeout)
		var timeoutErr *TimeoutError
		require.ErrorAs(t, err, &timeoutErr)
		assert.Equal(t, "response/42", timeoutErr.ResponseTopic)
		assert.Equal(t, 20*time.Millisecond, timeoutErr.Timeout)
		assert.Empty(t, router.Subscriptions())
		transport.AssertCalled(t, "Unsubscribe", mock.Anything, "response/42")

		// no listener is attached any more, so nothing can observe the reply
		transport.deliver("response/42", `"late"`)
		assert.Equal(t, []string{RequestOutcomeTimeout}, metrics.requests)
	})

	t.Run("late reply is ignored while other subscriptions exist", func(t *testing.T) {
		transport := newMockTransport()
		metrics := &recordingMetrics{}
		router, _ := NewRouter(transport, WithRouterMetrics(metrics))
		_, _ = router.Subscribe(ctx, "other", &namedHandler{name: "h", trace: &callTrace{}})
		requestor, _ := NewRequestor(router, WithRequestTimeout(10*time.Millisecond))

		_, err := requestor.Send(ctx, "q", `1`, WithResponseTopic("response/5"))
		require.ErrorIs(t, err, ErrRequestTimeout)

		transport.deliver("response/5", `"late"`)

		assert.Equal(t, 1, metrics.unmatched)
		assert.Len(t, router.Subscriptions(), 1)
	})

	t.Run("cancelled context ends the wait", func(t *testing.T) {
		defer goleak.VerifyNone(t)

		transport := newMockTransport()
		metrics := &recordingMetrics{}
		router, _ := NewRouter(transport, WithRouterMetrics(metrics))
		requestor, _ := NewRequestor(router)

		cancelled, cancel := context.WithCancel(ctx)
		go func() {
			time.Sleep(10 * time.Millisecond)
			cancel()
		}()

		_, err := requestor.Send(cancelled, "q", `1`)

		assert.ErrorIs(t, err, context.Canceled)
		assert.Empty(t, router.Subscriptions())
		assert.Equal(t, []string{RequestOutcomeCancelled}, metrics.requests)
	})

	t.Run("publish failure unsubscribes", func(t *testing.T) {
		transport := &mockTransport{}
		transport.On("Subscribe", mock.Anything, mock.Anything).Return(nil)
		transport.On("Unsubscribe", mock.Anything, mock.Anything).Return(nil)
		transport.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("offline"))
		router, _ := NewRouter(transport)
		requestor, _ := NewRequestor(router)

		_, err := requestor.Send(ctx, "q", `1`, WithResponseTopic("r"))

		assert.ErrorContains(t, err, "offline")
		assert.Empty(t, router.Subscriptions())
		transport.AssertCalled(t, "Unsubscribe", mock.Anything, "r")
	})

	t.Run("subscribe failure is returned", func(t *testing.T) {
		transport := &mockTransport{}
		transport.On("Subscribe", mock.Anything, mock.Anything).Return(errors.New("acl"))
		router, _ := NewRouter(transport)
		requestor, _ := NewRequestor(router)

		_, err := requestor.Send(ctx, "q", `1`)

		assert.ErrorContains(t, err, "acl")
		transport.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("only the first of several replies resolves", func(t *testing.T) {
		transport := &mockTransport{}
		transport.On("Subscribe", mock.Anything, mock.Anything).Return(nil)
		transport.On("Unsubscribe", mock.Anything, mock.Anything).Return(nil)
		transport.On("Publish", mock.Anything, "q", mock.Anything, mock.Anything).
			Run(func(args mock.Arguments) {
				transport.deliver("r", `"one"`)
				transport.deliver("r", `"two"`)
			}).
			Return(nil)
		router, _ := NewRouter(transport)
		requestor, _ := NewRequestor(router)

		reply, err := requestor.Send(ctx, "q", `1`, WithResponseTopic("r"))

		require.NoError(t, err)
		assert.Equal(t, "one", reply.Payload)
	})
}

func TestRequestorSendAsync(t *testing.T) {
	defer goleak.VerifyNone(t)

	transport := newReplyingTransport("q", `{"responseTopic":"ignored","message":"5"}`)
	router, _ := NewRouter(transport)
	requestor, _ := NewRequestor(router)

	result, ok := <-requestor.SendAsync(context.Background(), "q", `1`)

	require.True(t, ok)
	require.NoError(t, result.Err)
	assert.Equal(t, float64(5), result.Reply.Payload)
}

func TestNewRequestor(t *testing.T) {
	t.Run("rejects nil router", func(t *testing.T) {
		_, err := NewRequestor(nil)
		assert.Error(t, err)
	})

	t.Run("rejects non-positive timeout", func(t *testing.T) {
		router, _ := NewRouter(newMockTransport())
		_, err := NewRequestor(router, WithRequestTimeout(0))
		assert.Error(t, err)
	})

	t.Run("defaults", func(t *testing.T) {
		router, _ := NewRouter(newMockTransport())
		requestor, err := NewRequestor(router)

		require.NoError(t, err)
		assert.Equal(t, DefaultRequestTimeout, requestor.timeout)
		assert.Equal(t, 5000*time.Millisecond, requestor.timeout)
	})

	t.Run("random response topics stay in range", func(t *testing.T) {
		for i := 0; i < 200; i++ {
			assert.Regexp(t, `^response/(\d|[1-9]\d{1,3})$`, randomResponseTopic())
		}
	})
}
