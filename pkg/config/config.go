package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Defaults. The domain is a documented option, not a hidden constant:
// override with TAILBEACON_DOMAIN (or the ADAMARIE_/OPENCLAW_ WIDE_AREA_DOMAIN aliases).
const (
	DefaultDomain        = "adamarie.internal"
	DefaultServiceType   = "_adamarie-gw._tcp"
	DefaultTimeout       = 2 * time.Second
	DefaultListenAddr    = ":8787"
	DefaultSweepInterval = 30 * time.Second
	DefaultJournalPath   = "/var/lib/tailbeacon/runs.db"
	DefaultRetention     = 7 * 24 * time.Hour
)

// Config is the process configuration resolved from the environment.
type Config struct {
	Domain         string
	ServiceType    string
	Timeout        time.Duration
	MaxConcurrency int

	Resolver      string // dig | dns
	DigPath       string
	DNSPort       string
	Overlay       string // tailscale | wireguard
	TailscalePath string
	WireGuardIf   string

	ListenAddr    string
	SweepInterval time.Duration
	Store         string // memory | consul
	ConsulAddr    string
	JournalPath   string // sqlite file; "off" disables the journal
	MySQLDSN      string // when set the journal goes to MySQL instead
	Retention     time.Duration

	TLSCert  string
	TLSKey   string
	ClientCA string // enables mutual TLS

	JWTSecret         string
	AdminPasswordHash string

	LogLevel  string
	LogFormat string // console | json
}

// Load reads .env (when present) and the process environment.
func Load() Config {
	_ = loadDotEnv()
	return Config{
		Domain:         firstNonEmpty(os.Getenv("TAILBEACON_DOMAIN"), os.Getenv("ADAMARIE_WIDE_AREA_DOMAIN"), os.Getenv("OPENCLAW_WIDE_AREA_DOMAIN"), DefaultDomain),
		ServiceType:    getenv("TAILBEACON_SERVICE", DefaultServiceType),
		Timeout:        getDuration("TAILBEACON_TIMEOUT", DefaultTimeout),
		MaxConcurrency: getInt("TAILBEACON_MAX_CONCURRENCY", 0),

		Resolver:      getenv("TAILBEACON_RESOLVER", "dig"),
		DigPath:       os.Getenv("TAILBEACON_DIG"),
		DNSPort:       getenv("TAILBEACON_DNS_PORT", "53"),
		Overlay:       getenv("TAILBEACON_OVERLAY", "tailscale"),
		TailscalePath: os.Getenv("TAILBEACON_TAILSCALE"),
		WireGuardIf:   getenv("TAILBEACON_WG_IFACE", "wg0"),

		ListenAddr:    getenv("TAILBEACON_LISTEN", DefaultListenAddr),
		SweepInterval: getDuration("TAILBEACON_SWEEP_INTERVAL", DefaultSweepInterval),
		Store:         getenv("TAILBEACON_STORE", "memory"),
		ConsulAddr:    getenv("CONSUL_ADDR", "127.0.0.1:8500"),
		JournalPath:   getenv("TAILBEACON_JOURNAL", DefaultJournalPath),
		MySQLDSN:      os.Getenv("MYSQL_DSN"),
		Retention:     getDuration("TAILBEACON_JOURNAL_RETENTION", DefaultRetention),

		TLSCert:  os.Getenv("TAILBEACON_TLS_CERT"),
		TLSKey:   os.Getenv("TAILBEACON_TLS_KEY"),
		ClientCA: os.Getenv("TAILBEACON_CLIENT_CA"),

		JWTSecret:         os.Getenv("JWT_SECRET"),
		AdminPasswordHash: os.Getenv("TAILBEACON_ADMIN_HASH"),

		LogLevel:  getenv("TAILBEACON_LOG_LEVEL", "info"),
		LogFormat: getenv("TAILBEACON_LOG_FORMAT", "console"),
	}
}

// JournalEnabled reports whether sweeps should be journaled.
func (c Config) JournalEnabled() bool {
	return c.MySQLDSN != "" || (c.JournalPath != "" && !strings.EqualFold(c.JournalPath, "off"))
}

// NormalizedDomain returns the domain without surrounding dots.
func (c Config) NormalizedDomain() string {
	return strings.Trim(strings.TrimSpace(c.Domain), ".")
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		return d
	}
	// bare numbers are seconds
	if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
		return time.Duration(f * float64(time.Second))
	}
	return def
}

func getInt(key string, def int) int {
	if v, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key))); err == nil {
		return v
	}
	return def
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func loadDotEnv() error {
	if _, err := os.Stat(".env"); err == nil {
		return godotenv.Load(".env")
	}
	return nil
}
