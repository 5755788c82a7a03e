package topic

import "strings"

// AMQP topic exchanges separate words with "."; a literal "." or "%" inside
// a level is percent-encoded so every level stays a single word.
var (
	wordEscaper   = strings.NewReplacer("%", "%25", ".", "%2E")
	wordUnescaper = strings.NewReplacer("%2E", ".", "%25", "%")
)

// ToRoutingKey converts a concrete topic into an AMQP routing key
func ToRoutingKey(topic string) string {
	levels := strings.Split(topic, Separator)
	for i, level := range levels {
		levels[i] = wordEscaper.Replace(level)
	}
	return strings.Join(levels, ".")
}

// FromRoutingKey reverses ToRoutingKey
func FromRoutingKey(key string) string {
	words := strings.Split(key, ".")
	for i, word := range words {
		words[i] = wordUnescaper.Replace(word)
	}
	return strings.Join(words, Separator)
}

// ToBindingKey converts a pattern into an AMQP topic-exchange binding key.
//
// "+" becomes "*" and "#" is kept. A level that mixes wildcards with other
// text has no AMQP equivalent and is widened: to "#" if it holds "#", to "*"
// otherwise. The broker may therefore deliver more than the pattern accepts,
// never less, so consumers re-check deliveries with a Matcher.
func ToBindingKey(pattern string) string {
	levels := strings.Split(pattern, Separator)
	words := make([]string, 0, len(levels))
	for _, level := range levels {
		switch {
		case level == SingleLevel:
			words = append(words, "*")
		case strings.Contains(level, MultiLevel):
			words = append(words, "#")
			return strings.Join(words, ".")
		case strings.Contains(level, SingleLevel):
			words = append(words, "*")
		default:
			words = append(words, wordEscaper.Replace(level))
		}
	}
	return strings.Join(words, ".")
}
