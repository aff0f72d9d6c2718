// Package records parses dig-style presentation output for the DNS-SD
// record types used by wide-area discovery.
package records

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"tailbeacon/pkg/model"
)

// ParseError reports a structurally malformed answer.
type ParseError struct {
	Record model.RecordType
	Input  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s %q: %s", e.Record, e.Input, e.Reason)
}

// answerLines returns trimmed, non-empty lines that are not dig comments.
func answerLines(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, ";") {
			continue
		}
		out = append(out, line)
	}
	return out
}

// DecodeEscapes decodes presentation-format escapes: \DDD (three decimal
// digits, one byte) and \c (literal c). The decoded bytes must form valid
// UTF-8; otherwise raw is returned unchanged with ok=false.
func DecodeEscapes(raw string) (string, bool) {
	if !strings.Contains(raw, `\`) {
		return raw, utf8.ValidString(raw)
	}
	buf := make([]byte, 0, len(raw))
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if c != '\\' {
			buf = append(buf, c)
			continue
		}
		if i+1 >= len(raw) {
			return raw, false
		}
		next := raw[i+1]
		if !isDigit(next) {
			buf = append(buf, next)
			i++
			continue
		}
		if i+3 >= len(raw) || !isDigit(raw[i+2]) || !isDigit(raw[i+3]) {
			return raw, false
		}
		v := int(next-'0')*100 + int(raw[i+2]-'0')*10 + int(raw[i+3]-'0')
		if v > 255 {
			return raw, false
		}
		buf = append(buf, byte(v))
		i += 3
	}
	if !utf8.Valid(buf) {
		return raw, false
	}
	return string(buf), true
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
