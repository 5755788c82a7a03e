package topic

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatcher(t *testing.T) {
	t.Run("single level wildcard matches exactly one level", func(t *testing.T) {
		m := Compile("a/+/c")

		assert.True(t, m.Match("a/b/c"))
		assert.True(t, m.Match("a/anything-here/c"))
		assert.False(t, m.Match("a/b/d/c"))
		assert.False(t, m.Match("a//c"))
		assert.False(t, m.Match("a/b/c/d"))
	})

	t.Run("multi level wildcard matches any suffix", func(t *testing.T) {
		m := Compile("a/#")

		assert.True(t, m.Match("a"))
		assert.True(t, m.Match("a/b"))
		assert.True(t, m.Match("a/b/c"))
		assert.False(t, m.Match("x/b"))
		assert.False(t, m.Match("ab"))
	})

	t.Run("bare multi level wildcard matches everything", func(t *testing.T) {
		m := Compile("#")

		assert.True(t, m.Match(""))
		assert.True(t, m.Match("a"))
		assert.True(t, m.Match("a/b/c"))
	})

	t.Run("match is anchored to the whole topic", func(t *testing.T) {
		m := Compile("b/c")

		assert.True(t, m.Match("b/c"))
		assert.False(t, m.Match("a/b/c"))
		assert.False(t, m.Match("b/c/d"))
	})

	t.Run("every wildcard occurrence is honoured", func(t *testing.T) {
		m := Compile("+/status/+")

		assert.True(t, m.Match("device/status/online"))
		assert.False(t, m.Match("device/status"))

		m = Compile("+/+/#")
		assert.True(t, m.Match("a/b"))
		assert.True(t, m.Match("a/b/c/d"))
		assert.False(t, m.Match("a"))
	})

	t.Run("regexp metacharacters are literal", func(t *testing.T) {
		m := Compile("metrics/cpu.load/(1m)")

		assert.True(t, m.Match("metrics/cpu.load/(1m)"))
		assert.False(t, m.Match("metrics/cpuXload/(1m)"))
	})

	t.Run("structurally odd patterns compile without error", func(t *testing.T) {
		assert.NotPanics(t, func() {
			Compile("a/#/b")
			Compile("a+b/#c")
			Compile("")
		})
		assert.True(t, Compile("").Match(""))
		assert.False(t, Compile("").Match("a"))
	})

	t.Run("Pattern returns the source", func(t *testing.T) {
		assert.Equal(t, "x/+/y", Compile("x/+/y").Pattern())
	})

	t.Run("Match helper", func(t *testing.T) {
		assert.True(t, Match("sensors/+", "sensors/temp"))
		assert.False(t, Match("sensors/+", "sensors/temp/raw"))
	})

	t.Run("HasWildcards", func(t *testing.T) {
		assert.True(t, HasWildcards("a/+"))
		assert.True(t, HasWildcards("#"))
		assert.False(t, HasWildcards("response/42"))
	})
}

func TestAMQPKeys(t *testing.T) {
	t.Run("routing keys", func(t *testing.T) {
		assert.Equal(t, "devices.42.status", ToRoutingKey("devices/42/status"))
		assert.Equal(t, "fw.v1%2E2.notes", ToRoutingKey("fw/v1.2/notes"))
		assert.Equal(t, "load.50%25", ToRoutingKey("load/50%"))
	})

	t.Run("routing keys round trip", func(t *testing.T) {
		for _, topic := range []string{"a", "a/b/c", "fw/v1.2/notes", "load/50%2E", "", "a//b"} {
			assert.Equal(t, topic, FromRoutingKey(ToRoutingKey(topic)))
		}
	})

	t.Run("binding keys", func(t *testing.T) {
		assert.Equal(t, "devices.*.status", ToBindingKey("devices/+/status"))
		assert.Equal(t, "devices.#", ToBindingKey("devices/#"))
		assert.Equal(t, "#", ToBindingKey("#"))
		assert.Equal(t, "response.7", ToBindingKey("response/7"))
		assert.Equal(t, "fw.v1%2E2", ToBindingKey("fw/v1.2"))
	})

	t.Run("mixed levels are widened", func(t *testing.T) {
		assert.Equal(t, "a.*.c", ToBindingKey("a/x+/c"))
		assert.Equal(t, "a.#", ToBindingKey("a/x#/c"))
		assert.Equal(t, "a.#", ToBindingKey("a/#/c"))
	})
}
