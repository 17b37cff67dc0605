// Package vep queries the Ensembl Variant Effect Predictor REST API and
// selects the most severe consequences from its results.
package vep

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ebivariation/cmat/internal/duckdb"
	"github.com/ebivariation/cmat/internal/retry"
)

const (
	// DefaultURL is the Ensembl REST server.
	DefaultURL = "https://rest.ensembl.org"

	// DefaultDistance is the upstream/downstream gene search distance.
	DefaultDistance = 5000

	// MaxBatchSize is the largest number of variants VEP accepts per request.
	MaxBatchSize = 200
)

// Client talks to the Ensembl REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	policy     retry.Policy
	cache      *duckdb.Store
	logger     *zap.Logger

	distance  int
	batchSize int
	workers   int
}

// NewClient creates a client for the REST server at baseURL (DefaultURL when empty).
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 5 * time.Minute},
		limiter:    rate.NewLimiter(rate.Inf, 1),
		policy:     retry.DefaultPolicy(),
		logger:     zap.NewNop(),
		distance:   DefaultDistance,
		batchSize:  MaxBatchSize,
		workers:    1,
	}
}

// SetLogger sets the logger for batch progress and retries.
func (c *Client) SetLogger(logger *zap.Logger) { c.logger = logger }

// SetRetryPolicy replaces the default retry policy.
func (c *Client) SetRetryPolicy(p retry.Policy) { c.policy = p }

// SetRateLimit limits requests per second; zero or less means unlimited.
func (c *Client) SetRateLimit(rps float64) {
	if rps <= 0 {
		c.limiter = rate.NewLimiter(rate.Inf, 1)
		return
	}
	c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
}

// SetCache makes the client reuse and store responses in s.
func (c *Client) SetCache(s *duckdb.Store) { c.cache = s }

// SetWorkers sets how many batches are in flight at once.
func (c *Client) SetWorkers(n int) {
	if n < 1 {
		n = 1
	}
	c.workers = n
}

// SetBatchSize sets the number of variants per request, capped at MaxBatchSize.
func (c *Client) SetBatchSize(n int) {
	if n < 1 || n > MaxBatchSize {
		n = MaxBatchSize
	}
	c.batchSize = n
}

type regionRequest struct {
	Variants    []string `json:"variants"`
	Distance    int      `json:"distance"`
	Shift3Prime int      `json:"shift_3prime"`
}

// Query sends one batch of region identifiers to VEP and returns the raw
// JSON of each result, keyed by its input.
func (c *Client) Query(ctx context.Context, variants []string) (map[string]json.RawMessage, error) {
	body, err := json.Marshal(regionRequest{Variants: variants, Distance: c.distance})
	if err != nil {
		return nil, retry.Permanent(err)
	}

	var raw []json.RawMessage
	err = retry.Do(ctx, c.policy, c.logger, "vep region query", func(ctx context.Context) error {
		raw = nil
		resp, err := c.do(ctx, http.MethodPost, c.baseURL+"/vep/human/region", body)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode == http.StatusBadRequest {
			c.logger.Error("bad request for variants", zap.Strings("variants", variants))
		}
		if err := retry.CheckResponse(resp); err != nil {
			return err
		}
		if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
			return fmt.Errorf("decode vep response: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make(map[string]json.RawMessage, len(raw))
	for _, r := range raw {
		var head struct {
			Input string `json:"input"`
		}
		if err := json.Unmarshal(r, &head); err != nil {
			return nil, fmt.Errorf("decode vep result: %w", err)
		}
		out[head.Input] = r
	}
	return out, nil
}

// ConsequenceTypes lists the consequence terms Ensembl knows with their rank.
func (c *Client) ConsequenceTypes(ctx context.Context) ([]ConsequenceType, error) {
	var types []ConsequenceType
	err := retry.Do(ctx, c.policy, c.logger, "consequence types", func(ctx context.Context) error {
		types = nil
		resp, err := c.do(ctx, http.MethodGet,
			c.baseURL+"/info/variation/consequence_types?content-type=application/json&rank=1", nil)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if err := retry.CheckResponse(resp); err != nil {
			return err
		}
		if err := json.NewDecoder(resp.Body).Decode(&types); err != nil {
			return fmt.Errorf("decode consequence types: %w", err)
		}
		return nil
	})
	return types, err
}

// SeverityRanking returns the consequence severity ranking, from the cache
// when one is set and populated, otherwise from Ensembl.
func (c *Client) SeverityRanking(ctx context.Context) (Ranking, error) {
	if c.cache != nil {
		cached, err := c.cache.LoadSeverityRanking(ctx)
		if err != nil {
			return nil, err
		}
		if len(cached) > 0 {
			return Ranking(cached), nil
		}
	}
	types, err := c.ConsequenceTypes(ctx)
	if err != nil {
		return nil, err
	}
	ranking := NewRanking(types)
	if c.cache != nil {
		if err := c.cache.WriteSeverityRanking(ctx, ranking); err != nil {
			return nil, err
		}
	}
	return ranking, nil
}

func (c *Client) do(ctx context.Context, method, url string, body []byte) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return nil, retry.Permanent(err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ensembl request failed: %w", err)
	}
	return resp, nil
}
