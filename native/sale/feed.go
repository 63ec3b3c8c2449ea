package sale

import (
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"
)

// RoundData is the latest observation reported by a price feed, mirroring the
// aggregator round shape. Answer is signed: a misbehaving feed may report a
// non-positive price, which consumers must reject.
type RoundData struct {
	RoundID         uint64
	Answer          *big.Int
	StartedAt       int64
	UpdatedAt       int64
	AnsweredInRound uint64
}

// PriceFeed is the consumed oracle interface. Description is diagnostic only.
type PriceFeed interface {
	Decimals() (uint8, error)
	Description() (string, error)
	LatestRoundData() (RoundData, error)
}

// ProbeFeed exercises the full feed interface and validates the returned
// round. Bindings are rejected at configuration time when the probe fails, so
// purchase-time resolution only ever deals with price-level failures.
func ProbeFeed(feed PriceFeed) error {
	if feed == nil {
		return fmt.Errorf("%w: feed not provided", ErrOracleInvalid)
	}
	if _, err := feed.Decimals(); err != nil {
		return fmt.Errorf("%w: decimals: %v", ErrOracleInvalid, err)
	}
	if _, err := feed.Description(); err != nil {
		return fmt.Errorf("%w: description: %v", ErrOracleInvalid, err)
	}
	round, err := feed.LatestRoundData()
	if err != nil {
		return fmt.Errorf("%w: latest round: %v", ErrOracleInvalid, err)
	}
	if round.Answer == nil || round.Answer.Sign() <= 0 {
		return fmt.Errorf("%w: non-positive answer", ErrOracleInvalid)
	}
	if round.UpdatedAt <= 0 {
		return fmt.Errorf("%w: missing update timestamp", ErrOracleInvalid)
	}
	return nil
}

// FeedHealth summarises the last known state of a registered feed.
type FeedHealth struct {
	ID           string
	Description  string
	LastAnswer   *big.Int
	LastUpdated  int64
	ProbeFailure string
}

// FeedRegistry maps feed identifiers to live adapters. Oracle bindings in the
// policy store reference feeds by identifier.
type FeedRegistry struct {
	mu    sync.RWMutex
	feeds map[string]PriceFeed
}

// NewFeedRegistry constructs an empty registry.
func NewFeedRegistry() *FeedRegistry {
	return &FeedRegistry{feeds: make(map[string]PriceFeed)}
}

// Register adds or replaces a feed under the given identifier.
func (r *FeedRegistry) Register(id string, feed PriceFeed) error {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return fmt.Errorf("sale: feed id required")
	}
	if feed == nil {
		return fmt.Errorf("sale: feed required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.feeds[trimmed] = feed
	return nil
}

// Lookup resolves a feed by identifier.
func (r *FeedRegistry) Lookup(id string) (PriceFeed, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	feed, ok := r.feeds[strings.TrimSpace(id)]
	return feed, ok
}

// Health probes every registered feed and reports its last observation.
func (r *FeedRegistry) Health() []FeedHealth {
	r.mu.RLock()
	ids := make([]string, 0, len(r.feeds))
	for id := range r.feeds {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Strings(ids)

	out := make([]FeedHealth, 0, len(ids))
	for _, id := range ids {
		feed, ok := r.Lookup(id)
		if !ok {
			continue
		}
		health := FeedHealth{ID: id}
		if desc, err := feed.Description(); err == nil {
			health.Description = desc
		}
		round, err := feed.LatestRoundData()
		if err != nil {
			health.ProbeFailure = err.Error()
		} else {
			if round.Answer != nil {
				health.LastAnswer = new(big.Int).Set(round.Answer)
			}
			health.LastUpdated = round.UpdatedAt
		}
		out = append(out, health)
	}
	return out
}

// HTTPDoer is satisfied by *http.Client and test doubles.
type HTTPDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// HTTPFeed adapts a JSON round endpoint to the PriceFeed interface. The
// endpoint is expected to serve the latest round as
// {"roundId":..,"answer":"..","startedAt":..,"updatedAt":..,"answeredInRound":..,
//  "decimals":..,"description":".."}.
type HTTPFeed struct {
	client   HTTPDoer
	endpoint string
	apiKey   string
}

// NewHTTPFeed constructs an HTTP feed adapter. When client is nil
// http.DefaultClient is used. The API key is optional and only added to the
// request headers when supplied.
func NewHTTPFeed(client HTTPDoer, endpoint, apiKey string) *HTTPFeed {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPFeed{client: client, endpoint: strings.TrimSpace(endpoint), apiKey: strings.TrimSpace(apiKey)}
}

type httpRoundPayload struct {
	RoundID         uint64 `json:"roundId"`
	Answer          string `json:"answer"`
	StartedAt       int64  `json:"startedAt"`
	UpdatedAt       int64  `json:"updatedAt"`
	AnsweredInRound uint64 `json:"answeredInRound"`
	Decimals        uint8  `json:"decimals"`
	Description     string `json:"description"`
}

func (f *HTTPFeed) fetch() (httpRoundPayload, error) {
	var payload httpRoundPayload
	if f == nil || f.endpoint == "" {
		return payload, fmt.Errorf("http feed not configured")
	}
	req, err := http.NewRequest(http.MethodGet, f.endpoint, nil)
	if err != nil {
		return payload, err
	}
	if f.apiKey != "" {
		req.Header.Set("x-api-key", f.apiKey)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return payload, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return payload, fmt.Errorf("http feed: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return payload, fmt.Errorf("http feed: decode: %w", err)
	}
	return payload, nil
}

// Decimals implements PriceFeed.
func (f *HTTPFeed) Decimals() (uint8, error) {
	payload, err := f.fetch()
	if err != nil {
		return 0, err
	}
	return payload.Decimals, nil
}

// Description implements PriceFeed.
func (f *HTTPFeed) Description() (string, error) {
	payload, err := f.fetch()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(payload.Description), nil
}

// LatestRoundData implements PriceFeed.
func (f *HTTPFeed) LatestRoundData() (RoundData, error) {
	payload, err := f.fetch()
	if err != nil {
		return RoundData{}, err
	}
	answer := strings.TrimSpace(payload.Answer)
	if answer == "" {
		return RoundData{}, fmt.Errorf("http feed: empty answer")
	}
	value, ok := new(big.Int).SetString(answer, 10)
	if !ok {
		return RoundData{}, fmt.Errorf("http feed: invalid answer %q", payload.Answer)
	}
	return RoundData{
		RoundID:         payload.RoundID,
		Answer:          value,
		StartedAt:       payload.StartedAt,
		UpdatedAt:       payload.UpdatedAt,
		AnsweredInRound: payload.AnsweredInRound,
	}, nil
}

// StaticFeed is an in-process feed whose round can be set directly. It backs
// unit tests and manual deployments without an external oracle.
type StaticFeed struct {
	mu          sync.RWMutex
	decimals    uint8
	description string
	round       RoundData
	failure     error
}

// NewStaticFeed constructs a static feed with the given unit scale.
func NewStaticFeed(decimals uint8, description string) *StaticFeed {
	return &StaticFeed{decimals: decimals, description: strings.TrimSpace(description)}
}

// SetRound replaces the latest round observation.
func (f *StaticFeed) SetRound(answer *big.Int, updatedAt time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.round.RoundID++
	f.round.AnsweredInRound = f.round.RoundID
	if answer != nil {
		f.round.Answer = new(big.Int).Set(answer)
	} else {
		f.round.Answer = nil
	}
	f.round.StartedAt = updatedAt.Unix()
	f.round.UpdatedAt = updatedAt.Unix()
	f.failure = nil
}

// Fail makes every subsequent query return err, simulating an unreachable feed.
func (f *StaticFeed) Fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failure = err
}

// Decimals implements PriceFeed.
func (f *StaticFeed) Decimals() (uint8, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.failure != nil {
		return 0, f.failure
	}
	return f.decimals, nil
}

// Description implements PriceFeed.
func (f *StaticFeed) Description() (string, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.failure != nil {
		return "", f.failure
	}
	return f.description, nil
}

// LatestRoundData implements PriceFeed.
func (f *StaticFeed) LatestRoundData() (RoundData, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.failure != nil {
		return RoundData{}, f.failure
	}
	round := f.round
	if f.round.Answer != nil {
		round.Answer = new(big.Int).Set(f.round.Answer)
	}
	return round, nil
}
