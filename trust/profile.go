package trust

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"
)

const (
	profileFetchTimeout = 10 * time.Second
	profileCacheTTL     = time.Hour

	// maxProfileBytes bounds how much of a profile document is read.
	maxProfileBytes = 1 << 20
)

// AgentProfile is the subset of an agent's UCP discovery profile the trust
// layer consumes.
type AgentProfile struct {
	Name        string `json:"name,omitempty"`
	SigningKeys []JWK  `json:"signing_keys"`
}

type cachedProfile struct {
	profile   *AgentProfile
	fetchedAt time.Time
}

// ProfileFetcher retrieves agent discovery profiles over HTTP with a bounded
// timeout and a TTL cache keyed by profile URL. Transport and decode errors
// yield nil, so signature verification fails closed.
type ProfileFetcher struct {
	client *http.Client
	ttl    time.Duration
	clock  func() time.Time

	mu    sync.Mutex
	cache map[string]cachedProfile
}

// FetcherOption customizes a ProfileFetcher.
type FetcherOption func(*ProfileFetcher)

// WithHTTPClient replaces the fetcher's HTTP client.
func WithHTTPClient(client *http.Client) FetcherOption {
	return func(f *ProfileFetcher) {
		f.client = client
	}
}

// WithCacheTTL overrides how long fetched profiles stay cached.
func WithCacheTTL(ttl time.Duration) FetcherOption {
	return func(f *ProfileFetcher) {
		f.ttl = ttl
	}
}

// WithClock provides deterministic time in tests.
func WithClock(clock func() time.Time) FetcherOption {
	return func(f *ProfileFetcher) {
		f.clock = clock
	}
}

// NewProfileFetcher builds a fetcher with a 10s fetch timeout and a one hour
// cache TTL.
func NewProfileFetcher(opts ...FetcherOption) *ProfileFetcher {
	f := &ProfileFetcher{
		client: &http.Client{Timeout: profileFetchTimeout},
		ttl:    profileCacheTTL,
		clock:  time.Now,
		cache:  make(map[string]cachedProfile),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(f)
	}
	return f
}

// Fetch returns the agent profile at url, from cache when fresh. Any
// failure returns nil.
func (f *ProfileFetcher) Fetch(ctx context.Context, url string) *AgentProfile {
	if url == "" {
		return nil
	}
	now := f.clock()

	f.mu.Lock()
	if entry, ok := f.cache[url]; ok && now.Sub(entry.fetchedAt) < f.ttl {
		f.mu.Unlock()
		return entry.profile
	}
	f.mu.Unlock()

	profile := f.fetch(ctx, url)
	if profile == nil {
		return nil
	}

	f.mu.Lock()
	f.cache[url] = cachedProfile{profile: profile, fetchedAt: now}
	f.mu.Unlock()
	return profile
}

func (f *ProfileFetcher) fetch(ctx context.Context, url string) *AgentProfile {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProfileBytes))
	if err != nil {
		return nil
	}

	var profile AgentProfile
	if err := json.Unmarshal(body, &profile); err != nil {
		return nil
	}
	return &profile
}
