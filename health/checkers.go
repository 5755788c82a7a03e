package health

import (
	"context"
	"time"
)

// Connectable is implemented by transports that track a broker connection
type Connectable interface {
	IsConnected() bool
}

// ConnectionChecker reports a transport's broker connection
type ConnectionChecker struct {
	name      string
	transport Connectable
}

// NewConnectionChecker creates a checker for transport
func NewConnectionChecker(name string, transport Connectable) *ConnectionChecker {
	return &ConnectionChecker{
		name:      name,
		transport: transport,
	}
}

func (c *ConnectionChecker) Name() string {
	return c.name
}

func (c *ConnectionChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{
		Name:      c.Name(),
		Timestamp: start,
	}

	if c.transport.IsConnected() {
		result.Status = StatusHealthy
		result.Message = "Connection is healthy"
	} else {
		result.Status = StatusUnhealthy
		result.Message = "Not connected, reconnecting"
	}

	result.Duration = time.Since(start)
	return result
}

// ComponentChecker allows checking custom components
type ComponentChecker struct {
	name    string
	checker func(ctx context.Context) (Status, string, map[string]interface{}, error)
}

// NewComponentChecker creates a checker for custom components
func NewComponentChecker(name string, checker func(ctx context.Context) (Status, string, map[string]interface{}, error)) *ComponentChecker {
	return &ComponentChecker{
		name:    name,
		checker: checker,
	}
}

func (c *ComponentChecker) Name() string {
	return c.name
}

func (c *ComponentChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{
		Name:      c.Name(),
		Timestamp: start,
	}

	status, message, details, err := c.checker(ctx)

	result.Status = status
	result.Message = message
	result.Details = details
	if err != nil {
		result.Error = err.Error()
		if status == StatusHealthy {
			result.Status = StatusUnhealthy
		}
	}
	result.Duration = time.Since(start)

	return result
}
