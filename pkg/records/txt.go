package records

import (
	"strings"

	"tailbeacon/pkg/model"
)

// ParseTXT decodes the quoted key=value strings of a TXT answer. A segment
// whose escapes cannot be decoded keeps its raw text; it never discards the
// rest of the record.
func ParseTXT(text string) model.TXTFields {
	fields := model.TXTFields{}
	for _, seg := range splitSegments(text) {
		decoded, ok := DecodeEscapes(seg)
		if !ok {
			decoded = seg
		}
		key, value, _ := strings.Cut(decoded, "=")
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		fields[key] = value
	}
	return fields
}

// splitSegments splits presentation text into character-strings. Quoted
// strings may contain spaces and escaped quotes; escapes are kept verbatim
// for DecodeEscapes.
func splitSegments(text string) []string {
	var (
		segs    []string
		cur     strings.Builder
		inQuote bool
		inBare  bool
		escaped bool
	)
	flush := func() {
		segs = append(segs, cur.String())
		cur.Reset()
	}
	for i := 0; i < len(text); i++ {
		c := text[i]
		switch {
		case escaped:
			cur.WriteByte(c)
			escaped = false
		case c == '\\':
			cur.WriteByte(c)
			escaped = true
			if !inQuote {
				inBare = true
			}
		case inQuote:
			if c == '"' {
				flush()
				inQuote = false
			} else {
				cur.WriteByte(c)
			}
		case c == '"':
			if inBare {
				flush()
				inBare = false
			}
			inQuote = true
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			if inBare {
				flush()
				inBare = false
			}
		default:
			cur.WriteByte(c)
			inBare = true
		}
	}
	if (inQuote || inBare) && cur.Len() > 0 {
		flush()
	}
	return segs
}
