package contracts

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

// UndefinedValue is what a missing envelope field reads as once coerced to text
const UndefinedValue = "undefined"

// Payload is the decoded form of a raw delivery body
type Payload struct {
	// Value is the decoded payload: string, float64, bool, nil, []any or map[string]any
	Value any
	// ResponseTopic is the reply topic carried by an envelope, empty otherwise
	ResponseTopic string
	// Invalid marks a body that failed to parse as JSON
	Invalid bool
}

// DecodePayload decodes a raw delivery body.
//
//  1. Empty text decodes to "" with no reply topic.
//  2. Text that is not JSON decodes to itself and is marked Invalid.
//  3. A JSON object is an envelope: its responseTopic becomes the reply topic
//     and its message field is parsed again as the payload. When that second
//     parse fails the payload is "undefined" and the body is marked Invalid.
//  4. Any other JSON value is the payload as-is.
func DecodePayload(raw []byte) Payload {
	text := decodeText(raw)
	if text == "" {
		return Payload{Value: ""}
	}

	var parsed any
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		return Payload{Value: text, Invalid: true}
	}

	obj, ok := parsed.(map[string]any)
	if !ok {
		return Payload{Value: parsed}
	}

	p := Payload{ResponseTopic: coerceField(obj, "responseTopic")}
	if err := json.Unmarshal([]byte(coerceField(obj, "message")), &p.Value); err != nil {
		p.Value = UndefinedValue
		p.Invalid = true
	}
	return p
}

// decodeText converts raw to a string, replacing each maximal ill-formed
// subsequence with one U+FFFD as the WHATWG UTF-8 decoder does. "\xff\xfe"
// becomes two replacement characters, a truncated "\xe2\x82" one.
func decodeText(raw []byte) string {
	if utf8.Valid(raw) {
		return string(raw)
	}

	var b strings.Builder
	b.Grow(len(raw) + 8)
	for i := 0; i < len(raw); {
		r, size := utf8.DecodeRune(raw[i:])
		if r != utf8.RuneError || size > 1 {
			b.Write(raw[i : i+size])
			i += size
			continue
		}
		b.WriteRune(utf8.RuneError)
		i += illFormedLen(raw[i:])
	}
	return b.String()
}

// illFormedLen returns the length of the ill-formed sequence at the start of
// b: a lead byte plus the continuation bytes that could still have completed it
func illFormedLen(b []byte) int {
	var need int
	lo, hi := byte(0x80), byte(0xBF)
	switch c := b[0]; {
	case c >= 0xC2 && c <= 0xDF:
		need = 1
	case c == 0xE0:
		need, lo = 2, 0xA0
	case c == 0xED:
		need, hi = 2, 0x9F
	case c >= 0xE1 && c <= 0xEF:
		need = 2
	case c == 0xF0:
		need, lo = 3, 0x90
	case c == 0xF4:
		need, hi = 3, 0x8F
	case c >= 0xF1 && c <= 0xF3:
		need = 3
	default:
		return 1
	}

	n := 1
	for n <= need && n < len(b) && b[n] >= lo && b[n] <= hi {
		n++
		lo, hi = 0x80, 0xBF
	}
	return n
}

func coerceField(obj map[string]any, key string) string {
	v, ok := obj[key]
	if !ok {
		return UndefinedValue
	}
	return coerceString(v)
}

// coerceString renders a decoded JSON value the way template-string
// interpolation would: null is "null", objects are "[object Object]" and
// arrays join their elements with commas.
func coerceString(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return formatNumber(val)
	case []any:
		parts := make([]string, len(val))
		for i, elem := range val {
			if elem != nil {
				parts[i] = coerceString(elem)
			}
		}
		return strings.Join(parts, ",")
	default:
		return "[object Object]"
	}
}

func formatNumber(f float64) string {
	if f == 0 {
		return "0"
	}
	abs := math.Abs(f)
	if abs >= 1e21 || abs < 1e-6 {
		s := strconv.FormatFloat(f, 'e', -1, 64)
		mantissa, exp, _ := strings.Cut(s, "e")
		sign := exp[:1]
		digits := strings.TrimLeft(exp[1:], "0")
		return mantissa + "e" + sign + digits
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
