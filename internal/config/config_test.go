package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNormalizeWSURL(t *testing.T) {
	testCases := []struct {
		in   string
		want string
	}{
		{"example.com", "wss://example.com/ws"},
		{"ws://localhost:3001", "ws://localhost:3001/ws"},
		{"http://localhost:3001/", "ws://localhost:3001/ws"},
		{"https://example.com/signal", "wss://example.com/signal"},
		{"  wss://example.com/ws  ", "wss://example.com/ws"},
	}

	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := NormalizeWSURL(tc.in)
			if err != nil {
				t.Fatalf("NormalizeWSURL(%q) error: %v", tc.in, err)
			}
			if got != tc.want {
				t.Errorf("NormalizeWSURL(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}

	if _, err := NormalizeWSURL("wss://"); err == nil {
		t.Error("expected error for URL without host")
	}
}

func TestLoadPriority(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "flux.yaml")
	content := "signal_url: ws://file.local:9000/ws\nice_endpoint: http://file.local/ice\noffer_delay: 250ms\n"
	if err := os.WriteFile(file, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("FLUX_ICE_ENDPOINT", "http://env.local/ice")
	t.Setenv("FLUX_STUN", "stun:a.example:3478, stun:b.example:3478")

	cfg, err := Load(Options{File: file, OfferDelay: time.Second})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.SignalURL != "ws://file.local:9000/ws" {
		t.Errorf("SignalURL = %q, want file value", cfg.SignalURL)
	}
	if cfg.ICEEndpoint != "http://env.local/ice" {
		t.Errorf("ICEEndpoint = %q, want env value", cfg.ICEEndpoint)
	}
	if cfg.OfferDelay != time.Second {
		t.Errorf("OfferDelay = %s, want flag value", cfg.OfferDelay)
	}
	if len(cfg.FallbackSTUN) != 2 || cfg.FallbackSTUN[1] != "stun:b.example:3478" {
		t.Errorf("FallbackSTUN = %v", cfg.FallbackSTUN)
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(Options{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.OfferDelay != DefaultOfferDelay {
		t.Errorf("OfferDelay = %s", cfg.OfferDelay)
	}
	if len(cfg.FallbackSTUN) != len(DefaultSTUN) {
		t.Errorf("FallbackSTUN = %v", cfg.FallbackSTUN)
	}
}

func TestLoadInvalidEnv(t *testing.T) {
	t.Setenv("FLUX_OFFER_DELAY", "soon")
	if _, err := Load(Options{}); err == nil {
		t.Fatal("expected error for invalid FLUX_OFFER_DELAY")
	}
}
