package contracts

import (
	"encoding/json"
	"fmt"
)

// Envelope wraps a request that expects a reply.
//
// Message carries the real payload as JSON text; receivers parse it a second
// time after unwrapping the envelope.
type Envelope struct {
	ResponseTopic string `json:"responseTopic"`
	Message       string `json:"message"`
}

// NewEnvelope creates an envelope for message with replies expected on responseTopic
func NewEnvelope(responseTopic, message string) Envelope {
	return Envelope{
		ResponseTopic: responseTopic,
		Message:       message,
	}
}

// Marshal encodes the envelope as JSON
func (e Envelope) Marshal() ([]byte, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal envelope: %w", err)
	}
	return body, nil
}
