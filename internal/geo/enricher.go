package geo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Location is a coarse resolution of an IP address. A zero Location means
// "unknown"; callers must treat enrichment as best-effort.
type Location struct {
	CountryCode string `json:"country_code,omitempty"`
	Region      string `json:"region,omitempty"`
	City        string `json:"city,omitempty"`
}

var ErrUnavailable = errors.New("geo: lookup unavailable")

const cacheTTL = 24 * time.Hour

// Enricher resolves IPs against an ip-api style JSON endpoint, with a
// Redis cache in front. Lookup never blocks longer than the configured
// timeout and degrades to a zero Location on any failure.
type Enricher struct {
	baseURL string
	client  *http.Client
	rdb     *redis.Client
}

func NewEnricher(baseURL string, timeout time.Duration, rdb *redis.Client) *Enricher {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Enricher{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		rdb:     rdb,
	}
}

// Lookup resolves ip to a Location. Private, loopback and malformed IPs
// resolve to a zero Location without a network call.
func (e *Enricher) Lookup(ctx context.Context, ip string) (Location, error) {
	parsed := net.ParseIP(strings.TrimSpace(ip))
	if parsed == nil || parsed.IsLoopback() || parsed.IsPrivate() || parsed.IsUnspecified() {
		return Location{}, nil
	}

	if loc, ok := e.fromCache(ctx, ip); ok {
		return loc, nil
	}

	loc, err := e.fetch(ctx, ip)
	if err != nil {
		return Location{}, err
	}
	e.toCache(ctx, ip, loc)
	return loc, nil
}

type lookupResponse struct {
	Status      string `json:"status"`
	CountryCode string `json:"countryCode"`
	RegionName  string `json:"regionName"`
	City        string `json:"city"`
}

func (e *Enricher) fetch(ctx context.Context, ip string) (Location, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/"+ip, nil)
	if err != nil {
		return Location{}, err
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return Location{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Location{}, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var body lookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Location{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if body.Status != "success" {
		// The service answered but could not resolve; not an error worth
		// surfacing, just no enrichment.
		return Location{}, nil
	}
	return Location{CountryCode: body.CountryCode, Region: body.RegionName, City: body.City}, nil
}

func (e *Enricher) fromCache(ctx context.Context, ip string) (Location, bool) {
	if e.rdb == nil {
		return Location{}, false
	}
	raw, err := e.rdb.Get(ctx, cacheKey(ip)).Bytes()
	if err != nil {
		return Location{}, false
	}
	var loc Location
	if err := json.Unmarshal(raw, &loc); err != nil {
		return Location{}, false
	}
	return loc, true
}

func (e *Enricher) toCache(ctx context.Context, ip string, loc Location) {
	if e.rdb == nil {
		return
	}
	raw, err := json.Marshal(loc)
	if err != nil {
		return
	}
	// Cache write failures are ignored; the next lookup just refetches.
	_ = e.rdb.Set(ctx, cacheKey(ip), raw, cacheTTL).Err()
}

func cacheKey(ip string) string { return "geo:" + ip }
