// Package sentiment fetches and caches a market fear/greed index reading.
package sentiment

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Classification labels for index buckets.
const (
	ExtremeFear  = "Extreme Fear"
	Fear         = "Fear"
	Neutral      = "Neutral"
	Greed        = "Greed"
	ExtremeGreed = "Extreme Greed"
)

// Reading is one observation of the sentiment index.
type Reading struct {
	Value          float64   `json:"value"`
	Classification string    `json:"classification"`
	FetchedAt      time.Time `json:"fetched_at"`
}

// Provider yields the latest sentiment reading, or nil when none is
// available. Consumers must treat nil as "no sentiment" and carry on.
type Provider interface {
	Current() *Reading
}

// Classify maps an index value to its label bucket.
func Classify(value float64) string {
	switch {
	case value <= 20:
		return ExtremeFear
	case value <= 40:
		return Fear
	case value <= 60:
		return Neutral
	case value <= 80:
		return Greed
	default:
		return ExtremeGreed
	}
}

// attemptBackoff spaces out upstream requests while the endpoint is failing
// so a stale cache cannot turn every caller into a blocking HTTP round trip.
const attemptBackoff = 30 * time.Second

// Client polls a fear/greed HTTP endpoint and caches the result for a TTL.
// Fetch failures fall back to the stale cached value rather than blocking.
type Client struct {
	baseURL string
	ttl     time.Duration
	http    *http.Client
	log     zerolog.Logger

	mu          sync.Mutex
	cached      *Reading
	lastAttempt time.Time
	now         func() time.Time
}

// NewClient constructs a sentiment client against baseURL with the given cache TTL.
func NewClient(baseURL string, ttl time.Duration, log zerolog.Logger) *Client {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Client{
		baseURL: baseURL,
		ttl:     ttl,
		http:    &http.Client{Timeout: 5 * time.Second},
		log:     log,
		now:     time.Now,
	}
}

type fngResponse struct {
	Data []struct {
		Value          string `json:"value"`
		Classification string `json:"value_classification"`
	} `json:"data"`
}

// Current returns the cached reading when fresh, otherwise refetches. A
// failed fetch returns whatever stale reading exists, possibly nil, and no
// further upstream attempt is made until the backoff window passes.
func (c *Client) Current() *Reading {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if c.cached != nil && now.Sub(c.cached.FetchedAt) < c.ttl {
		return c.cached
	}
	if !c.lastAttempt.IsZero() && now.Sub(c.lastAttempt) < attemptBackoff {
		return c.cached
	}
	c.lastAttempt = now

	reading, err := c.fetch()
	if err != nil {
		c.log.Warn().Err(err).Msg("sentiment fetch failed, using stale value")
		return c.cached
	}
	c.cached = reading
	return c.cached
}

func (c *Client) fetch() (*Reading, error) {
	resp, err := c.http.Get(c.baseURL + "/fng/?limit=1")
	if err != nil {
		return nil, fmt.Errorf("get fng: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fng status %d", resp.StatusCode)
	}

	var payload fngResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode fng: %w", err)
	}
	if len(payload.Data) == 0 {
		return nil, fmt.Errorf("fng response empty")
	}

	value, err := strconv.ParseFloat(payload.Data[0].Value, 64)
	if err != nil {
		return nil, fmt.Errorf("parse fng value: %w", err)
	}
	classification := payload.Data[0].Classification
	if classification == "" {
		classification = Classify(value)
	}
	return &Reading{Value: value, Classification: classification, FetchedAt: c.now()}, nil
}
