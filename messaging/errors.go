package messaging

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrUndefinedResponseTopic is returned when a reply is sent without a topic
	ErrUndefinedResponseTopic = errors.New("cannot send response: no response topic, call SetTopic or send one with the request")

	// ErrRequestTimeout is returned when no reply arrives in time
	ErrRequestTimeout = errors.New("request timed out")

	// ErrNoHandlers is returned when subscribing without handlers
	ErrNoHandlers = errors.New("at least one handler is required")
)

// TimeoutError describes a request that received no reply
type TimeoutError struct {
	Topic         string
	ResponseTopic string
	Timeout       time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("request on %s timed out after %d ms waiting on %s",
		e.Topic, e.Timeout.Milliseconds(), e.ResponseTopic)
}

func (e *TimeoutError) Unwrap() error {
	return ErrRequestTimeout
}

// HandlerPanicError wraps a panic raised inside a handler
type HandlerPanicError struct {
	Topic string
	Value interface{}
}

func (e *HandlerPanicError) Error() string {
	return fmt.Sprintf("handler panicked on topic %s: %v", e.Topic, e.Value)
}
