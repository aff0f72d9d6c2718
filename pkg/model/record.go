package model

// RecordType is a DNS-SD record type the resolver is asked for.
type RecordType string

const (
	RecordPTR RecordType = "PTR"
	RecordSRV RecordType = "SRV"
	RecordTXT RecordType = "TXT"
)

// RawRecordAnswer is the unparsed resolver output for one query.
type RawRecordAnswer struct {
	Type       RecordType `json:"type"`
	Target     string     `json:"target"`
	Nameserver string     `json:"nameserver"`
	Text       string     `json:"text"`
}

// Empty reports whether the resolver answered with no record.
func (a RawRecordAnswer) Empty() bool {
	for i := 0; i < len(a.Text); i++ {
		switch a.Text[i] {
		case ' ', '\t', '\r', '\n':
		default:
			return false
		}
	}
	return true
}

// Known TXT keys advertised by a gateway.
const (
	TXTDisplayName = "displayName"
	TXTGatewayPort = "gatewayPort"
	TXTTailnetDNS  = "tailnetDns"
	TXTCLIPath     = "cliPath"
)

// TXTFields holds decoded key=value pairs from one TXT answer.
type TXTFields map[string]string

// Get returns the value for key and whether it was present.
func (f TXTFields) Get(key string) (string, bool) {
	if f == nil {
		return "", false
	}
	v, ok := f[key]
	return v, ok
}
