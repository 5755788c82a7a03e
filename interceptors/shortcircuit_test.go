package interceptors

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sladdky/ah-mqttrouter/messaging"
)

type mockDuplicateDetector struct {
	mock.Mock
}

func (m *mockDuplicateDetector) IsDuplicate(ctx context.Context, messageID string) (bool, error) {
	args := m.Called(ctx, messageID)
	return args.Bool(0), args.Error(1)
}

func (m *mockDuplicateDetector) MarkProcessed(ctx context.Context, messageID string) error {
	return m.Called(ctx, messageID).Error(0)
}

func TestShortCircuitInterceptor(t *testing.T) {
	cached := ShortCircuitEvaluatorFunc(func(req *messaging.Request) (bool, *ShortCircuitResult, error) {
		if req.Topic == "config/get" {
			return true, &ShortCircuitResult{Reply: []byte(`"cached"`), Reason: "cache hit"}, nil
		}
		return false, nil, nil
	})

	t.Run("replies without running later handlers", func(t *testing.T) {
		var called bool
		transport := route(t, NewShortCircuitInterceptor(cached), terminal(&called))

		transport.deliver(messaging.Delivery{
			Topic:   "config/get",
			Payload: []byte(`{"responseTopic":"response/1","message":"null"}`),
		})

		assert.False(t, called)
		replies := transport.replies()
		require.Len(t, replies, 1)
		assert.Equal(t, "response/1", replies[0].Topic)
		assert.Equal(t, `"cached"`, string(replies[0].Payload))
	})

	t.Run("drops silently without a response topic", func(t *testing.T) {
		var called bool
		var result error
		transport := route(t, observe(&result), NewShortCircuitInterceptor(cached), terminal(&called))

		transport.deliver(messaging.Delivery{Topic: "config/get", Payload: []byte(`1`)})

		assert.NoError(t, result)
		assert.False(t, called)
		assert.Empty(t, transport.replies())
	})

	t.Run("passes other messages on", func(t *testing.T) {
		var called bool
		transport := route(t, NewShortCircuitInterceptor(cached), terminal(&called))

		transport.deliver(messaging.Delivery{Topic: "config/set"})

		assert.True(t, called)
	})

	t.Run("evaluator errors stop the chain", func(t *testing.T) {
		var called bool
		var result error
		failing := ShortCircuitEvaluatorFunc(func(req *messaging.Request) (bool, *ShortCircuitResult, error) {
			return false, nil, errors.New("cache down")
		})
		transport := route(t, observe(&result), NewShortCircuitInterceptor(failing), terminal(&called))

		transport.deliver(messaging.Delivery{Topic: "a"})

		assert.ErrorContains(t, result, "cache down")
		assert.False(t, called)
	})
}

func TestDuplicateDetectionInterceptor(t *testing.T) {
	t.Run("processes new messages and marks them", func(t *testing.T) {
		detector := &mockDuplicateDetector{}
		detector.On("IsDuplicate", mock.Anything, "m-1").Return(false, nil)
		detector.On("MarkProcessed", mock.Anything, "m-1").Return(nil)
		var called bool
		transport := route(t, NewDuplicateDetectionInterceptor(detector), terminal(&called))

		delivery := messaging.Delivery{Topic: "a"}
		delivery.Metadata.MessageID = "m-1"
		transport.deliver(delivery)

		assert.True(t, called)
		detector.AssertExpectations(t)
	})

	t.Run("drops duplicates", func(t *testing.T) {
		detector := &mockDuplicateDetector{}
		detector.On("IsDuplicate", mock.Anything, "m-2").Return(true, nil)
		var called bool
		transport := route(t, NewDuplicateDetectionInterceptor(detector), terminal(&called))

		delivery := messaging.Delivery{Topic: "a"}
		delivery.Metadata.MessageID = "m-2"
		transport.deliver(delivery)

		assert.False(t, called)
		detector.AssertNotCalled(t, "MarkProcessed", mock.Anything, mock.Anything)
	})

	t.Run("messages without an id pass", func(t *testing.T) {
		detector := &mockDuplicateDetector{}
		var called bool
		transport := route(t, NewDuplicateDetectionInterceptor(detector), terminal(&called))

		transport.deliver(messaging.Delivery{Topic: "a"})

		assert.True(t, called)
		detector.AssertNotCalled(t, "IsDuplicate", mock.Anything, mock.Anything)
	})
}
