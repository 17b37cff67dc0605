// Package biomart queries Ensembl BioMart to map external gene identifiers
// (HGNC id, gene symbol, RefSeq transcript) to Ensembl genes.
package biomart

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ebivariation/cmat/internal/retry"
)

// DefaultURL is the BioMart martservice endpoint.
const DefaultURL = "http://www.ensembl.org/biomart/martservice"

// MaxRequestLength bounds the query length so URLs stay acceptable to the server.
const MaxRequestLength = 5000

const identifierPlaceholder = "{identifier_list}"

var reTemplateIndent = regexp.MustCompile(`\n *`)

// Template builds a BioMart XML query that filters keyColumn by a list of
// identifiers and returns keyColumn followed by queryColumns. The identifier
// list is left as a placeholder to be filled per chunk.
func Template(keyColumn string, queryColumns []string) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>
    <!DOCTYPE Query>
    <Query virtualSchemaName="default" formatter="TSV" header="0" uniqueRows="0" count="" datasetConfigVersion="0.6">
        <Dataset name = "hsapiens_gene_ensembl" interface = "default" >
            <Filter name = "`)
	b.WriteString(keyColumn)
	b.WriteString(`" value = "` + identifierPlaceholder + `"/>
            <Attribute name = "`)
	b.WriteString(keyColumn)
	b.WriteString(`" />
    `)
	for _, c := range queryColumns {
		b.WriteString(`<Attribute name = "` + c + `" />`)
	}
	b.WriteString(`</Dataset></Query>`)
	return reTemplateIndent.ReplaceAllString(b.String(), "")
}

// SplitIntoChunks splits ids so that each chunk joined with commas is at most
// maxSize bytes long. An identifier longer than maxSize forms its own chunk.
func SplitIntoChunks(ids []string, maxSize int) [][]string {
	var chunks [][]string
	for i := 0; i < len(ids); {
		size := len(ids[i])
		chunk := []string{ids[i]}
		i++
		for i < len(ids) && size+1+len(ids[i]) <= maxSize {
			size += 1 + len(ids[i])
			chunk = append(chunk, ids[i])
			i++
		}
		chunks = append(chunks, chunk)
	}
	return chunks
}

// Client sends templated queries to BioMart.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	policy     retry.Policy
	logger     *zap.Logger
}

// NewClient creates a client for the martservice at baseURL (DefaultURL when empty).
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
	}
}

// SetLogger sets the logger for chunk progress and retries.
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

// Query maps every identifier in ids (values of keyColumn) to queryColumns.
// Each returned row holds the key followed by the query columns; a gene with
// several mappings yields several rows. Missing cells are empty strings.
func (c *Client) Query(ctx context.Context, keyColumn string, queryColumns []string, ids []string) ([][]string, error) {
	tmpl := Template(keyColumn, queryColumns)
	width := 1 + len(queryColumns)

	var rows [][]string
	budget := MaxRequestLength - len(c.baseURL+"?query=") - len(tmpl)
	for _, chunk := range SplitIntoChunks(ids, budget) {
		c.logger.Info("querying biomart", zap.String("key", keyColumn), zap.Int("identifiers", len(chunk)))
		query := strings.Replace(tmpl, identifierPlaceholder, strings.Join(chunk, ","), 1)
		var body string
		err := retry.Do(ctx, c.policy, c.logger, "biomart query", func(ctx context.Context) error {
			var err error
			body, err = c.get(ctx, query)
			return err
		})
		if err != nil {
			return nil, err
		}
		rows = append(rows, parseTSV(body, width)...)
	}
	return rows, nil
}

func (c *Client) get(ctx context.Context, query string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+url.Values{"query": {query}}.Encode(), nil)
	if err != nil {
		return "", retry.Permanent(err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("biomart request failed: %w", err)
	}
	defer resp.Body.Close()
	if err := retry.CheckResponse(resp); err != nil {
		return "", err
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read biomart response: %w", err)
	}
	text := string(body)
	// Some BioMart failures come back as 200 with an error page.
	lower := strings.ToLower(text)
	if strings.HasPrefix(lower, "query error") || strings.HasPrefix(lower, "<html>") {
		return "", &retry.StatusError{Code: resp.StatusCode, Body: text}
	}
	return text, nil
}

func parseTSV(body string, width int) [][]string {
	var rows [][]string
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		row := make([]string, width)
		copy(row, fields)
		rows = append(rows, row)
	}
	return rows
}
