package gbfs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/velov-data/velov/internal/provider/resilience"
)

const (
	// DefaultDiscoveryURL is the Vélo'v (Lyon) discovery document.
	DefaultDiscoveryURL = "https://download.data.grandlyon.com/files/rdata/jcd_jcdecaux.jcdvelov/gbfs.json"

	// DefaultRegion is the language key the Vélo'v discovery document publishes under.
	DefaultRegion = "fr"

	// ProviderName identifies this upstream.
	ProviderName = "gbfs"

	maxDocumentSize = 32 << 20
)

// Feed errors.
var (
	// ErrFeedUnavailable is returned when a feed document cannot be fetched
	// or is not valid JSON.
	ErrFeedUnavailable = errors.New("gbfs feed unavailable")

	// ErrFeedShape is returned when a parseable document lacks an expected
	// key or feed entry.
	ErrFeedShape = errors.New("gbfs feed shape error")
)

// HTTPDoer abstracts HTTP request execution.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig holds configuration for the GBFS client.
type ClientConfig struct {
	// DiscoveryURL is the gbfs.json URL (defaults to DefaultDiscoveryURL).
	DiscoveryURL string

	// Region is the language key under data (defaults to DefaultRegion).
	Region string

	// HTTPClient executes requests. If nil, a resilient client is created.
	HTTPClient HTTPDoer

	// Timeout for individual requests when HTTPClient is nil (default: 10s).
	Timeout time.Duration

	// UserAgent is sent with every request.
	UserAgent string
}

// Client fetches GBFS documents.
type Client struct {
	discoveryURL string
	region       string
	userAgent    string
	httpClient   HTTPDoer
}

// NewClient creates a new GBFS client.
func NewClient(cfg ClientConfig) *Client {
	discoveryURL := cfg.DiscoveryURL
	if discoveryURL == "" {
		discoveryURL = DefaultDiscoveryURL
	}
	region := cfg.Region
	if region == "" {
		region = DefaultRegion
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		rc := resilience.DefaultClientConfig(ProviderName)
		if cfg.Timeout > 0 {
			rc.Timeout = cfg.Timeout
		}
		httpClient = resilience.NewClient(rc)
	}

	return &Client{
		discoveryURL: discoveryURL,
		region:       region,
		userAgent:    cfg.UserAgent,
		httpClient:   httpClient,
	}
}

// DiscoveryURL returns the discovery document URL this client reads.
func (c *Client) DiscoveryURL() string {
	return c.discoveryURL
}

type envelope struct {
	LastUpdated int64           `json:"last_updated"`
	TTL         int             `json:"ttl"`
	Data        json.RawMessage `json:"data"`
}

type regionFeeds struct {
	Feeds []Feed `json:"feeds"`
}

// Discover fetches the discovery document and returns the feed list of the
// configured region.
func (c *Client) Discover(ctx context.Context) (*Discovery, error) {
	env, err := c.getEnvelope(ctx, c.discoveryURL)
	if err != nil {
		return nil, fmt.Errorf("fetch discovery: %w", err)
	}

	var regions map[string]json.RawMessage
	if err := json.Unmarshal(env.Data, &regions); err != nil || regions == nil {
		return nil, fmt.Errorf("%w: discovery document has no data object", ErrFeedShape)
	}

	raw, ok := regions[c.region]
	if !ok {
		return nil, fmt.Errorf("%w: discovery document has no %q region", ErrFeedShape, c.region)
	}

	var rf regionFeeds
	if err := json.Unmarshal(raw, &rf); err != nil {
		return nil, fmt.Errorf("%w: region %q: %v", ErrFeedShape, c.region, err)
	}

	return &Discovery{
		LastUpdated: env.LastUpdated,
		TTL:         env.TTL,
		Region:      c.region,
		Feeds:       rf.Feeds,
	}, nil
}

// FetchStationInformation fetches the station_information document at url.
func (c *Client) FetchStationInformation(ctx context.Context, url string) ([]StationInformation, error) {
	var stations []StationInformation
	if err := c.getStations(ctx, url, &stations); err != nil {
		return nil, fmt.Errorf("fetch station information: %w", err)
	}
	return stations, nil
}

// FetchStationStatus fetches the station_status document at url.
func (c *Client) FetchStationStatus(ctx context.Context, url string) ([]StationStatus, error) {
	var stations []StationStatus
	if err := c.getStations(ctx, url, &stations); err != nil {
		return nil, fmt.Errorf("fetch station status: %w", err)
	}
	return stations, nil
}

// getStations decodes data.stations of the document at url into dst.
func (c *Client) getStations(ctx context.Context, url string, dst any) error {
	env, err := c.getEnvelope(ctx, url)
	if err != nil {
		return err
	}

	var data struct {
		Stations json.RawMessage `json:"stations"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return fmt.Errorf("%w: %s has no data object", ErrFeedShape, url)
	}
	if len(data.Stations) == 0 || string(data.Stations) == "null" {
		return fmt.Errorf("%w: %s has no data.stations list", ErrFeedShape, url)
	}
	if err := json.Unmarshal(data.Stations, dst); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrFeedShape, url, err)
	}
	return nil
}

func (c *Client) getEnvelope(ctx context.Context, url string) (*envelope, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", ErrFeedUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrFeedUnavailable, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s: unexpected status %d", ErrFeedUnavailable, url, resp.StatusCode)
	}

	var env envelope
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxDocumentSize)).Decode(&env); err != nil {
		return nil, fmt.Errorf("%w: %s: decode: %v", ErrFeedUnavailable, url, err)
	}
	return &env, nil
}
