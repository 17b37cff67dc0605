// Package ols reads the Sequence Ontology from the EBI Ontology Lookup Service.
package ols

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ebivariation/cmat/internal/retry"
)

// DefaultURL is the public OLS server.
const DefaultURL = "https://www.ebi.ac.uk/ols4"

// SequenceVariant is the SO root under which all consequence terms live.
const SequenceVariant = "SO:0001060"

// DefaultPageSize is the number of terms requested per page.
const DefaultPageSize = 500

// Client queries OLS.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	policy     retry.Policy
	logger     *zap.Logger
	pageSize   int
}

// NewClient creates a client for the OLS server at baseURL (DefaultURL when empty).
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 2 * time.Minute},
		limiter:    rate.NewLimiter(rate.Inf, 1),
		policy:     retry.DefaultPolicy(),
		logger:     zap.NewNop(),
		pageSize:   DefaultPageSize,
	}
}

// SetLogger sets the logger.
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

// SetPageSize sets the number of terms requested per page.
func (c *Client) SetPageSize(n int) {
	if n > 0 {
		c.pageSize = n
	}
}

type termsPage struct {
	Embedded struct {
		Terms []struct {
			Label     string `json:"label"`
			ShortForm string `json:"short_form"`
		} `json:"terms"`
	} `json:"_embedded"`
	Links struct {
		Next *struct {
			Href string `json:"href"`
		} `json:"next"`
	} `json:"_links"`
}

// SOTerms returns every hierarchical descendant of sequence_variant as a map
// from term label to SO accession in short form (SO_0001583).
func (c *Client) SOTerms(ctx context.Context) (map[string]string, error) {
	q := url.Values{"id": {SequenceVariant}, "size": {fmt.Sprint(c.pageSize)}}
	next := c.baseURL + "/api/ontologies/so/hierarchicalDescendants?" + q.Encode()

	terms := make(map[string]string)
	for pages := 0; next != ""; pages++ {
		var page termsPage
		pageURL := next
		err := retry.Do(ctx, c.policy, c.logger, "ols so descendants", func(ctx context.Context) error {
			page = termsPage{}
			return c.getJSON(ctx, pageURL, &page)
		})
		if err != nil {
			return nil, err
		}
		for _, t := range page.Embedded.Terms {
			terms[t.Label] = t.ShortForm
		}
		next = ""
		if page.Links.Next != nil {
			next = page.Links.Next.Href
		}
		c.logger.Debug("fetched so page", zap.Int("page", pages), zap.Int("terms", len(terms)))
	}
	return terms, nil
}

func (c *Client) getJSON(ctx context.Context, u string, v any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return retry.Permanent(err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ols request failed: %w", err)
	}
	defer resp.Body.Close()
	if err := retry.CheckResponse(resp); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode ols response: %w", err)
	}
	return nil
}
