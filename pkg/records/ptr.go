package records

import "strings"

// Instance is a service instance named by a PTR answer.
type Instance struct {
	Name  string // left-most label, escapes decoded
	Label string // left-most label as it appeared on the wire
	FQDN  string // full name without the trailing dot
}

// ParsePTR extracts service instances from PTR answer lines. Lines must be
// fully-qualified (trailing dot); anything else is skipped.
func ParsePTR(text string) []Instance {
	var out []Instance
	for _, line := range answerLines(text) {
		if strings.ContainsAny(line, " \t") || !strings.HasSuffix(line, ".") {
			continue
		}
		fqdn := strings.TrimSuffix(line, ".")
		label := firstLabel(fqdn)
		if label == "" || label == fqdn {
			continue
		}
		name, ok := DecodeEscapes(label)
		if !ok {
			name = label
		}
		out = append(out, Instance{Name: name, Label: label, FQDN: fqdn})
	}
	return out
}

// firstLabel returns the text before the first unescaped dot.
func firstLabel(name string) string {
	for i := 0; i < len(name); i++ {
		switch name[i] {
		case '\\':
			i++
		case '.':
			return name[:i]
		}
	}
	return name
}

// HasServiceSuffix reports whether fqdn is an instance of serviceType in domain.
func HasServiceSuffix(fqdn, serviceType, domain string) bool {
	suffix := "." + strings.Trim(serviceType, ".") + "." + strings.Trim(domain, ".")
	fqdn = strings.TrimSuffix(fqdn, ".")
	return len(fqdn) > len(suffix) && strings.EqualFold(fqdn[len(fqdn)-len(suffix):], suffix)
}
