package records

import (
	"strconv"
	"strings"

	"tailbeacon/pkg/model"
)

// SRV is one parsed SRV answer.
type SRV struct {
	Priority int
	Weight   int
	Port     int
	Target   string // trailing dot stripped
}

// ParseSRV parses "<priority> <weight> <port> <target>." answers. When several
// well-formed records are present the lowest priority, then highest weight, wins.
func ParseSRV(text string) (SRV, error) {
	lines := answerLines(text)
	if len(lines) == 0 {
		return SRV{}, &ParseError{Record: model.RecordSRV, Input: text, Reason: "empty answer"}
	}
	var (
		best    SRV
		found   bool
		lastErr error
	)
	for _, line := range lines {
		rec, err := parseSRVLine(line)
		if err != nil {
			lastErr = err
			continue
		}
		if !found || rec.Priority < best.Priority || (rec.Priority == best.Priority && rec.Weight > best.Weight) {
			best = rec
			found = true
		}
	}
	if !found {
		return SRV{}, lastErr
	}
	return best, nil
}

func parseSRVLine(line string) (SRV, error) {
	fields := strings.Fields(line)
	if len(fields) != 4 {
		return SRV{}, &ParseError{Record: model.RecordSRV, Input: line, Reason: "expected 4 fields"}
	}
	nums := make([]int, 3)
	for i, name := range []string{"priority", "weight", "port"} {
		v, err := strconv.Atoi(fields[i])
		if err != nil || v < 0 || v > 65535 {
			return SRV{}, &ParseError{Record: model.RecordSRV, Input: line, Reason: "invalid " + name + " " + strconv.Quote(fields[i])}
		}
		nums[i] = v
	}
	target := strings.TrimSuffix(fields[3], ".")
	if target == "" {
		return SRV{}, &ParseError{Record: model.RecordSRV, Input: line, Reason: "empty target"}
	}
	return SRV{Priority: nums[0], Weight: nums[1], Port: nums[2], Target: target}, nil
}
