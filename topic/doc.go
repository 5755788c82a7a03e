// Package topic compiles subscription patterns into matchers for concrete topics.
//
// Topics are slash-delimited strings such as "devices/42/status". Patterns may
// contain two wildcard tokens:
//   - "+" matches exactly one level ("devices/+/status")
//   - "#" matches any remaining suffix, including none ("devices/#")
//
// Matching is anchored to the whole topic. Patterns are never validated against
// wildcard placement rules; an unusual pattern is translated mechanically and
// simply matches whatever its translation matches.
//
// The package also translates topics and patterns into AMQP topic-exchange
// routing and binding keys for brokers that use "." as the level separator.
package topic
