// Package linkstate implements the codec for the "layers" link parameter:
// a comma-separated mix of bare identifiers and inline JSON objects in
// either quote style. Tokenizing never fails; malformed input degrades
// per item, not per list.
package linkstate

import (
	"encoding/json"
	"strings"

	"github.com/amche/layerlink/internal/domain/layer"
)

// Tokenize converts raw parameter text into an ordered list of layer stubs.
// One left-to-right scan tracks brace depth (only outside quotes), the
// current quote character (so a ' inside a "-quoted run is literal and vice
// versa), and a backslash escape consuming the next character verbatim.
// A comma separates items only at depth 0 outside quotes. Items are
// trimmed; empty items are dropped.
func Tokenize(text string) []layer.Stub {
	var stubs []layer.Stub
	var item strings.Builder
	depth := 0
	inQuote := false
	var quote rune
	escaped := false

	flush := func() {
		raw := strings.TrimSpace(item.String())
		item.Reset()
		if raw == "" {
			return
		}
		stubs = append(stubs, parseItem(raw))
	}

	for _, r := range text {
		switch {
		case escaped:
			item.WriteRune(r)
			escaped = false
		case r == '\\':
			item.WriteRune(r)
			escaped = true
		case inQuote:
			if r == quote {
				inQuote = false
			}
			item.WriteRune(r)
		case r == '\'' || r == '"':
			inQuote = true
			quote = r
			item.WriteRune(r)
		case r == '{':
			depth++
			item.WriteRune(r)
		case r == '}':
			if depth > 0 {
				depth--
			}
			item.WriteRune(r)
		case r == ',' && depth == 0:
			flush()
		default:
			item.WriteRune(r)
		}
	}
	flush()

	return stubs
}

// parseItem builds one stub from trimmed item text. Object items keep their
// verbatim text for round-trip echo. A failed object parse, or an object
// without a usable id, degrades to a bare stub carrying the raw text.
func parseItem(raw string) layer.Stub {
	if strings.HasPrefix(raw, "{") && strings.HasSuffix(raw, "}") {
		var fields layer.Fields
		if err := json.Unmarshal([]byte(normalizeQuotes(raw)), &fields); err == nil {
			if id := fields.ID(); id != "" {
				return layer.Stub{
					Kind:         layer.StubInline,
					ID:           id,
					Overrides:    fields,
					OriginalText: raw,
				}
			}
		}
	}
	return layer.Stub{Kind: layer.StubBare, ID: raw}
}

// normalizeQuotes rewrites single-quote JSON into strict double-quote JSON.
// Escaped literal quotes keep their meaning: \' becomes a plain apostrophe
// (no escape needed inside double quotes), a bare " inside a single-quoted
// run gains one. Double-quoted runs pass through untouched.
func normalizeQuotes(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inQuote := false
	var quote rune
	escaped := false

	for _, r := range s {
		if escaped {
			escaped = false
			if inQuote && quote == '\'' {
				switch r {
				case '\'':
					b.WriteRune('\'')
				case '"':
					b.WriteString(`\"`)
				default:
					b.WriteRune('\\')
					b.WriteRune(r)
				}
			} else {
				b.WriteRune('\\')
				b.WriteRune(r)
			}
			continue
		}
		switch {
		case r == '\\':
			escaped = true
		case !inQuote && (r == '\'' || r == '"'):
			inQuote = true
			quote = r
			b.WriteRune('"')
		case inQuote && r == quote:
			inQuote = false
			b.WriteRune('"')
		case inQuote && quote == '\'' && r == '"':
			b.WriteString(`\"`)
		default:
			b.WriteRune(r)
		}
	}
	if escaped {
		b.WriteRune('\\')
	}

	return b.String()
}
