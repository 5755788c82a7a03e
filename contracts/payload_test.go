package contracts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodePayload(t *testing.T) {
	t.Run("empty body decodes to empty string", func(t *testing.T) {
		p := DecodePayload(nil)

		assert.Equal(t, "", p.Value)
		assert.Empty(t, p.ResponseTopic)
		assert.False(t, p.Invalid)
	})

	t.Run("non JSON body is kept as text and marked invalid", func(t *testing.T) {
		p := DecodePayload([]byte("ping"))

		assert.Equal(t, "ping", p.Value)
		assert.Empty(t, p.ResponseTopic)
		assert.True(t, p.Invalid)
	})

	t.Run("invalid UTF-8 is replaced per ill-formed sequence", func(t *testing.T) {
		cases := map[string]string{
			"\xff\xfe":         "\uFFFD\uFFFD",
			"a\xe2\x82b":       "a\uFFFDb",
			"\xed\xa0\x80":     "\uFFFD\uFFFD\uFFFD",
			"\xf0\x9f\x98":     "\uFFFD",
			"\xe2\x82\xac\xc3": "\u20AC\uFFFD",
		}
		for body, want := range cases {
			p := DecodePayload([]byte(body))
			assert.Equal(t, want, p.Value, "%q", body)
			assert.True(t, p.Invalid, "%q", body)
		}
	})

	t.Run("envelope unwraps message and reply topic", func(t *testing.T) {
		p := DecodePayload([]byte(`{"responseTopic":"r","message":"\"hello\""}`))

		assert.Equal(t, "hello", p.Value)
		assert.Equal(t, "r", p.ResponseTopic)
		assert.False(t, p.Invalid)
	})

	t.Run("envelope message may hold structured JSON", func(t *testing.T) {
		p := DecodePayload([]byte(`{"responseTopic":"r","message":"{\"temp\":21.5,\"tags\":[\"a\"]}"}`))

		require.IsType(t, map[string]any{}, p.Value)
		obj := p.Value.(map[string]any)
		assert.Equal(t, 21.5, obj["temp"])
		assert.Equal(t, []any{"a"}, obj["tags"])
	})

	t.Run("missing responseTopic reads as undefined", func(t *testing.T) {
		p := DecodePayload([]byte(`{"message":"42"}`))

		assert.Equal(t, UndefinedValue, p.ResponseTopic)
		assert.Equal(t, float64(42), p.Value)
	})

	t.Run("unparsable inner message becomes undefined", func(t *testing.T) {
		p := DecodePayload([]byte(`{"responseTopic":"reply/1","message":"ping"}`))

		assert.Equal(t, UndefinedValue, p.Value)
		assert.Equal(t, "reply/1", p.ResponseTopic)
		assert.True(t, p.Invalid)
	})

	t.Run("object without message field", func(t *testing.T) {
		p := DecodePayload([]byte(`{"temp":20}`))

		assert.Equal(t, UndefinedValue, p.Value)
		assert.Equal(t, UndefinedValue, p.ResponseTopic)
	})

	t.Run("non string envelope fields are coerced", func(t *testing.T) {
		p := DecodePayload([]byte(`{"responseTopic":7,"message":12}`))

		assert.Equal(t, "7", p.ResponseTopic)
		assert.Equal(t, float64(12), p.Value)

		p = DecodePayload([]byte(`{"responseTopic":null,"message":[1,null,"x"]}`))
		assert.Equal(t, "null", p.ResponseTopic)
		assert.True(t, p.Invalid) // "1,,x" is not JSON
		assert.Equal(t, UndefinedValue, p.Value)

		p = DecodePayload([]byte(`{"responseTopic":{"a":1},"message":"true"}`))
		assert.Equal(t, "[object Object]", p.ResponseTopic)
		assert.Equal(t, true, p.Value)
	})

	t.Run("scalars and arrays pass through without reply topic", func(t *testing.T) {
		cases := map[string]any{
			`"text"`:  "text",
			`3.25`:    3.25,
			`false`:   false,
			`null`:    nil,
			`[1,"a"]`: []any{float64(1), "a"},
		}
		for body, want := range cases {
			p := DecodePayload([]byte(body))
			assert.Equal(t, want, p.Value, body)
			assert.Empty(t, p.ResponseTopic, body)
			assert.False(t, p.Invalid, body)
		}
	})
}

func TestCoerceString(t *testing.T) {
	assert.Equal(t, "1", coerceString(float64(1)))
	assert.Equal(t, "0.5", coerceString(0.5))
	assert.Equal(t, "0", coerceString(-0.0))
	assert.Equal(t, "1e+21", coerceString(1e21))
	assert.Equal(t, "1e-7", coerceString(1e-7))
	assert.Equal(t, "a,,b", coerceString([]any{"a", nil, "b"}))
	assert.Equal(t, "1,2,3", coerceString([]any{float64(1), []any{float64(2), float64(3)}}))
}

func TestEnvelope(t *testing.T) {
	body, err := NewEnvelope("response/12", `{"cmd":"reboot"}`).Marshal()
	require.NoError(t, err)
	assert.JSONEq(t, `{"responseTopic":"response/12","message":"{\"cmd\":\"reboot\"}"}`, string(body))

	p := DecodePayload(body)
	assert.Equal(t, "response/12", p.ResponseTopic)
	assert.Equal(t, map[string]any{"cmd": "reboot"}, p.Value)
}

func TestPublishOptions(t *testing.T) {
	opts := NewPublishOptions(
		WithQoS(1),
		WithRetain(true),
		WithHeaders(map[string]interface{}{"a": 1}),
		WithHeaders(map[string]interface{}{"b": 2}),
	)

	assert.Equal(t, byte(1), opts.QoS)
	assert.True(t, opts.Retain)
	assert.Equal(t, map[string]interface{}{"a": 1, "b": 2}, opts.Headers)
}
