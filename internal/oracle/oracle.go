// Package oracle wraps an external price-lookup API the way the teacher's
// internal/clients/exchangerate.Client wraps exchangerate-api.com: a small
// http.Client with a timeout, a persistent cache-backed fallback, and
// stale-data-beats-no-data semantics.
package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/arcfin/planner/internal/clientdata"
	"github.com/arcfin/planner/internal/errs"
)

const cacheTable = "prices"

// Quote is the best-available price for one symbol.
type Quote struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
	Stale  bool    `json:"stale"`
}

type cachedPrice struct {
	Price float64 `json:"price"`
}

// Client is the Market Oracle's HTTP-backed implementation.
type Client struct {
	baseURL   string
	http      *http.Client
	log       zerolog.Logger
	cacheRepo *clientdata.Repository
	batchSize int
}

// New creates a price-lookup client. cacheRepo is required: every quote
// that succeeds is cached, and every failure first attempts a stale-cache
// fallback before returning an error.
func New(baseURL string, cacheRepo *clientdata.Repository, batchSize int, budget time.Duration, log zerolog.Logger) *Client {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Client{
		baseURL:   baseURL,
		http:      &http.Client{Timeout: budget},
		log:       log.With().Str("client", "oracle").Logger(),
		cacheRepo: cacheRepo,
		batchSize: batchSize,
	}
}

// GetPrice returns the best-available price for one symbol: a fresh API
// lookup if possible, else a stale cached value, else a classified error.
func (c *Client) GetPrice(ctx context.Context, symbol string) (Quote, error) {
	if fresh, ok := c.fromFreshCache(symbol); ok {
		return Quote{Symbol: symbol, Price: fresh}, nil
	}

	price, err := c.fetchOne(ctx, symbol)
	if err == nil {
		c.store(symbol, price)
		return Quote{Symbol: symbol, Price: price}, nil
	}

	if stale, ok := c.fromStaleCache(symbol); ok {
		c.log.Warn().Err(err).Str("symbol", symbol).Float64("price", stale).Msg("oracle lookup failed, using stale cached price")
		return Quote{Symbol: symbol, Price: stale, Stale: true}, nil
	}

	return Quote{}, errs.Wrap(errs.KindTransient, fmt.Sprintf("no price available for %s", symbol), err)
}

// GetPrices looks up many symbols, split into price_batch_size chunks.
// Per-symbol failures are returned alongside successes rather than
// aborting the whole batch, since price refresh is best-effort (§4.2).
func (c *Client) GetPrices(ctx context.Context, symbols []string) (map[string]Quote, map[string]error) {
	quotes := make(map[string]Quote, len(symbols))
	failures := make(map[string]error)

	for start := 0; start < len(symbols); start += c.batchSize {
		end := start + c.batchSize
		if end > len(symbols) {
			end = len(symbols)
		}

		for _, symbol := range symbols[start:end] {
			select {
			case <-ctx.Done():
				failures[symbol] = ctx.Err()
				continue
			default:
			}

			quote, err := c.GetPrice(ctx, symbol)
			if err != nil {
				failures[symbol] = err
				continue
			}
			quotes[symbol] = quote
		}
	}

	return quotes, failures
}

func (c *Client) fetchOne(ctx context.Context, symbol string) (float64, error) {
	url := fmt.Sprintf("%s/prices/%s", c.baseURL, symbol)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("build price request for %s: %w", symbol, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("price request failed for %s: %w", symbol, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("price API returned status %d for %s", resp.StatusCode, symbol)
	}

	var result struct {
		Price float64 `json:"price"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return 0, fmt.Errorf("decode price response for %s: %w", symbol, err)
	}

	return result.Price, nil
}

func (c *Client) store(symbol string, price float64) {
	if err := c.cacheRepo.Store(cacheTable, symbol, cachedPrice{Price: price}, clientdata.TTLPrice); err != nil {
		c.log.Warn().Err(err).Str("symbol", symbol).Msg("failed to cache price")
	}
}

func (c *Client) fromFreshCache(symbol string) (float64, bool) {
	data, err := c.cacheRepo.GetIfFresh(cacheTable, symbol)
	if err != nil || data == nil {
		return 0, false
	}
	var cached cachedPrice
	if err := json.Unmarshal(data, &cached); err != nil {
		return 0, false
	}
	return cached.Price, true
}

func (c *Client) fromStaleCache(symbol string) (float64, bool) {
	data, err := c.cacheRepo.Get(cacheTable, symbol)
	if err != nil || data == nil {
		return 0, false
	}
	var cached cachedPrice
	if err := json.Unmarshal(data, &cached); err != nil {
		return 0, false
	}
	return cached.Price, true
}
