package contracts

import "time"

// Metadata describes how a message was delivered by the transport
type Metadata struct {
	MessageID string
	QoS       byte
	Retain    bool
	Duplicate bool
	Timestamp time.Time
	Headers   map[string]interface{}
}

// PublishOptions configures an outbound message
type PublishOptions struct {
	QoS     byte
	Retain  bool
	Headers map[string]interface{}
}

// PublishOption configures publish behavior
type PublishOption func(*PublishOptions)

// WithQoS sets the delivery quality of service requested from the transport
func WithQoS(qos byte) PublishOption {
	return func(opts *PublishOptions) {
		opts.QoS = qos
	}
}

// WithRetain asks the transport to keep the message for late subscribers
func WithRetain(retain bool) PublishOption {
	return func(opts *PublishOptions) {
		opts.Retain = retain
	}
}

// WithHeaders sets custom headers
func WithHeaders(headers map[string]interface{}) PublishOption {
	return func(opts *PublishOptions) {
		if opts.Headers == nil {
			opts.Headers = make(map[string]interface{})
		}
		for k, v := range headers {
			opts.Headers[k] = v
		}
	}
}

// NewPublishOptions applies options over the defaults
func NewPublishOptions(options ...PublishOption) PublishOptions {
	var opts PublishOptions
	for _, opt := range options {
		opt(&opts)
	}
	return opts
}
