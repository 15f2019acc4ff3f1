// Package ice supplies the ICE server configuration for new peer sessions.
// The configuration is fetched once from an HTTP endpoint and cached for the
// lifetime of the process; any failure falls back to public STUN servers.
package ice

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"golang.org/x/sync/singleflight"

	"github.com/1ureka/flux/internal/util"
)

// CandidatePoolSize matches the pre-gathering pool the browser client used.
const CandidatePoolSize = 10

// maxResponseSize bounds the credentials response body.
const maxResponseSize = 64 * 1024

// Provider fetches and caches the ICE configuration.
type Provider struct {
	endpoint string
	fallback []string
	client   *http.Client

	group singleflight.Group

	mu     sync.RWMutex
	cached *webrtc.Configuration
}

// NewProvider creates a provider for the given endpoint. An empty endpoint
// always yields the fallback configuration.
func NewProvider(endpoint string, fallbackSTUN []string, timeout time.Duration) *Provider {
	return &Provider{
		endpoint: endpoint,
		fallback: fallbackSTUN,
		client:   &http.Client{Timeout: timeout},
	}
}

// Configuration returns the cached configuration, fetching it on first use.
// Concurrent first callers share one request. It never fails: fetch errors
// are logged and the STUN-only fallback is cached instead.
func (p *Provider) Configuration(ctx context.Context) webrtc.Configuration {
	p.mu.RLock()
	cached := p.cached
	p.mu.RUnlock()
	if cached != nil {
		return *cached
	}

	v, _, _ := p.group.Do("ice", func() (interface{}, error) {
		p.mu.RLock()
		cached := p.cached
		p.mu.RUnlock()
		if cached != nil {
			return *cached, nil
		}

		cfg, err := p.fetch(ctx)
		if err != nil {
			util.LogWarning("failed to fetch ICE servers, using STUN fallback: %v", err)
			cfg = Fallback(p.fallback)
		} else {
			util.LogDebug("ICE servers loaded: %d servers", len(cfg.ICEServers))
		}

		p.mu.Lock()
		p.cached = &cfg
		p.mu.Unlock()
		return cfg, nil
	})
	return v.(webrtc.Configuration)
}

// Prefetch warms the cache in the background.
func (p *Provider) Prefetch(ctx context.Context) {
	go p.Configuration(ctx)
}

func (p *Provider) fetch(ctx context.Context) (webrtc.Configuration, error) {
	if p.endpoint == "" {
		return webrtc.Configuration{}, fmt.Errorf("no ICE endpoint configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint, nil)
	if err != nil {
		return webrtc.Configuration{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return webrtc.Configuration{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return webrtc.Configuration{}, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	var body credentialsResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(&body); err != nil {
		return webrtc.Configuration{}, fmt.Errorf("decode response: %w", err)
	}

	servers := make([]webrtc.ICEServer, 0, len(body.ICEServers))
	for _, s := range body.ICEServers {
		if len(s.URLs) == 0 {
			continue
		}
		server := webrtc.ICEServer{URLs: s.URLs, Username: s.Username}
		if s.Credential != "" {
			server.Credential = s.Credential
		}
		servers = append(servers, server)
	}
	if len(servers) == 0 {
		return webrtc.Configuration{}, fmt.Errorf("response has no ICE servers")
	}

	return webrtc.Configuration{
		ICEServers:           servers,
		ICECandidatePoolSize: CandidatePoolSize,
	}, nil
}

// Fallback builds the STUN-only configuration.
func Fallback(stun []string) webrtc.Configuration {
	servers := make([]webrtc.ICEServer, 0, len(stun))
	for _, url := range stun {
		servers = append(servers, webrtc.ICEServer{URLs: []string{url}})
	}
	return webrtc.Configuration{
		ICEServers:           servers,
		ICECandidatePoolSize: CandidatePoolSize,
	}
}

// credentialsResponse is the endpoint's body: {"iceServers": [...]}.
type credentialsResponse struct {
	ICEServers []iceServer `json:"iceServers"`
}

// iceServer mirrors the browser RTCIceServer shape, where urls may be a
// single string or a list.
type iceServer struct {
	URLs       urlList `json:"urls"`
	Username   string  `json:"username,omitempty"`
	Credential string  `json:"credential,omitempty"`
}

type urlList []string

func (u *urlList) UnmarshalJSON(data []byte) error {
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		if one != "" {
			*u = urlList{one}
		}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("urls must be a string or a list of strings")
	}
	*u = many
	return nil
}
