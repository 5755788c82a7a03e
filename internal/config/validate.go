package config

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidationError represents a single validation error with context
type ValidationError struct {
	Path    string // e.g. "serve.patterns[0]"
	Message string
	Hint    string
}

func (e ValidationError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s: %s; %s", e.Path, e.Message, e.Hint)
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// Validate checks the whole config and returns every problem found
func (c *Config) Validate() []error {
	var errs []error
	errs = append(errs, c.validateBroker()...)
	errs = append(errs, c.validateRequest()...)
	errs = append(errs, c.validateServe()...)
	errs = append(errs, c.validateLogging()...)
	return errs
}

func (c *Config) validateBroker() []error {
	var errs []error
	b := c.Broker

	u, err := url.Parse(b.URL)
	switch {
	case b.URL == "":
		errs = append(errs, ValidationError{Path: "broker.url", Message: "must not be empty"})
	case err != nil:
		errs = append(errs, ValidationError{Path: "broker.url", Message: "invalid URL"})
	case u.Scheme != "amqp" && u.Scheme != "amqps":
		errs = append(errs, ValidationError{
			Path:    "broker.url",
			Message: fmt.Sprintf("unsupported scheme %q", u.Scheme),
			Hint:    "expected amqp:// or amqps://",
		})
	}

	if b.Exchange == "" {
		errs = append(errs, ValidationError{Path: "broker.exchange", Message: "must not be empty"})
	}
	if b.ReconnectDelay <= 0 {
		errs = append(errs, ValidationError{Path: "broker.reconnect_delay", Message: "must be positive"})
	}
	if b.MaxRetries < -1 {
		errs = append(errs, ValidationError{
			Path:    "broker.max_retries",
			Message: "must be -1 or greater",
			Hint:    "-1 retries forever",
		})
	}
	if b.PrefetchCount < 0 {
		errs = append(errs, ValidationError{Path: "broker.prefetch_count", Message: "must not be negative"})
	}
	return errs
}

func (c *Config) validateRequest() []error {
	if c.Request.Timeout <= 0 {
		return []error{ValidationError{Path: "request.timeout", Message: "must be positive"}}
	}
	return nil
}

func (c *Config) validateServe() []error {
	var errs []error
	s := c.Serve

	if len(s.Patterns) == 0 {
		errs = append(errs, ValidationError{Path: "serve.patterns", Message: "must not be empty"})
	}
	for i, pattern := range s.Patterns {
		if pattern == "" {
			errs = append(errs, ValidationError{
				Path:    fmt.Sprintf("serve.patterns[%d]", i),
				Message: "must not be empty",
			})
		}
	}

	switch s.Reply {
	case "echo", "ack":
	default:
		errs = append(errs, ValidationError{
			Path:    "serve.reply",
			Message: fmt.Sprintf("unknown reply mode %q", s.Reply),
			Hint:    "expected echo or ack",
		})
	}
	if s.HandlerTimeout < 0 {
		errs = append(errs, ValidationError{Path: "serve.handler_timeout", Message: "must not be negative"})
	}
	return errs
}

func (c *Config) validateLogging() []error {
	var errs []error
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, ValidationError{
			Path:    "logging.level",
			Message: fmt.Sprintf("unknown level %q", c.Logging.Level),
			Hint:    "expected debug, info, warn or error",
		})
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		errs = append(errs, ValidationError{
			Path:    "logging.format",
			Message: fmt.Sprintf("unknown format %q", c.Logging.Format),
			Hint:    "expected text or json",
		})
	}
	return errs
}
