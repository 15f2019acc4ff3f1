// Package config holds the client configuration and its loading rules.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Mode is the call mode the client runs in.
type Mode string

const (
	ModeRandom Mode = "random" // 1:1 random matching
	ModeGroup  Mode = "group"  // N-way mesh room
)

// Default configuration values.
const (
	DefaultSignalURL     = "wss://flux-be-production.up.railway.app/ws" // needs a relay speaking the JSON envelope
	DefaultICEEndpoint   = "https://flux-be-production.up.railway.app/api/turn/credentials"
	DefaultOfferDelay    = 500 * time.Millisecond
	DefaultFetchTimeout  = 5 * time.Second
	DefaultStatsInterval = 10 * time.Second
)

// DefaultSTUN is the public STUN-only fallback used when the ICE endpoint
// cannot be reached.
var DefaultSTUN = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
}

// Config stores all parameters gathered from defaults, file, environment and flags.
type Config struct {
	SignalURL     string        `yaml:"signal_url"`     // WebSocket signaling endpoint
	ICEEndpoint   string        `yaml:"ice_endpoint"`   // GET endpoint returning {iceServers: [...]}
	FallbackSTUN  []string      `yaml:"fallback_stun"`  // used when the endpoint fails
	OfferDelay    time.Duration `yaml:"offer_delay"`    // initiator pause before the 1:1 offer
	FetchTimeout  time.Duration `yaml:"fetch_timeout"`  // ICE endpoint request timeout
	StatsInterval time.Duration `yaml:"stats_interval"` // 0 disables the stats reporter
	Debug         bool          `yaml:"debug"`
}

// Options carries CLI flag overrides. Zero values mean "not set".
type Options struct {
	File        string
	SignalURL   string
	ICEEndpoint string
	STUN        []string
	OfferDelay  time.Duration
	Debug       bool
}

// Default returns the hard-coded configuration.
func Default() *Config {
	return &Config{
		SignalURL:     DefaultSignalURL,
		ICEEndpoint:   DefaultICEEndpoint,
		FallbackSTUN:  append([]string(nil), DefaultSTUN...),
		OfferDelay:    DefaultOfferDelay,
		FetchTimeout:  DefaultFetchTimeout,
		StatsInterval: DefaultStatsInterval,
	}
}

// Load reads configuration with the following priority:
//  1. CLI flags (passed via Options) - highest priority
//  2. Environment variables
//  3. YAML file (Options.File), if given
//  4. Hard-coded defaults - lowest priority
func Load(opts Options) (*Config, error) {
	cfg := Default()

	if opts.File != "" {
		if err := cfg.loadFile(opts.File); err != nil {
			return nil, err
		}
	}

	if err := cfg.loadEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	if opts.SignalURL != "" {
		cfg.SignalURL = opts.SignalURL
	}
	if opts.ICEEndpoint != "" {
		cfg.ICEEndpoint = opts.ICEEndpoint
	}
	if len(opts.STUN) > 0 {
		cfg.FallbackSTUN = opts.STUN
	}
	if opts.OfferDelay > 0 {
		cfg.OfferDelay = opts.OfferDelay
	}
	if opts.Debug {
		cfg.Debug = true
	}

	wsURL, err := NormalizeWSURL(cfg.SignalURL)
	if err != nil {
		return nil, err
	}
	cfg.SignalURL = wsURL

	if len(cfg.FallbackSTUN) == 0 {
		cfg.FallbackSTUN = append([]string(nil), DefaultSTUN...)
	}
	if cfg.OfferDelay < 0 {
		return nil, fmt.Errorf("offer delay must not be negative: %s", cfg.OfferDelay)
	}

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) loadEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("FLUX_SIGNAL_URL"); ok && v != "" {
		c.SignalURL = v
	}
	if v, ok := lookup("FLUX_ICE_ENDPOINT"); ok && v != "" {
		c.ICEEndpoint = v
	}
	if v, ok := lookup("FLUX_STUN"); ok && v != "" {
		c.FallbackSTUN = splitList(v)
	}
	if v, ok := lookup("FLUX_OFFER_DELAY"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid FLUX_OFFER_DELAY: %w", err)
		}
		c.OfferDelay = d
	}
	if v, ok := lookup("FLUX_DEBUG"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid FLUX_DEBUG: %w", err)
		}
		c.Debug = b
	}
	return nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// NormalizeWSURL validates and normalizes a raw signaling URL. Schemes other
// than ws/wss are mapped (http→ws, everything else→wss) and an empty path
// defaults to /ws.
func NormalizeWSURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if !strings.Contains(raw, "://") {
		raw = "wss://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid WebSocket URL: %s", raw)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	default:
		u.Scheme = "wss"
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/ws"
	}
	return u.String(), nil
}
