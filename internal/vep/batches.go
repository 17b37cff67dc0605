package vep

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ebivariation/cmat/internal/duckdb"
	"github.com/ebivariation/cmat/internal/retry"
)

// batchResult holds the responses of one batch, indexed by batch sequence.
type batchResult struct {
	Seq       int
	Responses map[string]json.RawMessage
}

// QueryBatches resolves every region identifier in variants. Cached
// responses are reused; the rest are split into batches that run on up to
// the configured number of workers. A batch rejected permanently (e.g. 400)
// is logged and skipped; any other failure cancels the remaining batches.
//
// Results come back in the order of variants, one per input VEP answered.
func (c *Client) QueryBatches(ctx context.Context, variants []string) ([]Result, error) {
	variants = uniqueStrings(variants)

	responses := make(map[string]json.RawMessage, len(variants))
	if c.cache != nil {
		cached, err := c.cache.LookupVEPResults(ctx, variants, c.distance)
		if err != nil {
			return nil, err
		}
		for in, r := range cached {
			responses[in] = json.RawMessage(r)
		}
		c.logger.Info("vep cache lookup", zap.Int("inputs", len(variants)), zap.Int("cached", len(cached)))
	}

	var pending []string
	for _, v := range variants {
		if _, ok := responses[v]; !ok {
			pending = append(pending, v)
		}
	}
	batches := chunk(pending, c.batchSize)

	results := make([]batchResult, len(batches))
	var done int
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)
	for i, batch := range batches {
		i, batch := i, batch
		g.Go(func() error {
			resp, err := c.Query(gctx, batch)
			if err != nil {
				if retry.IsPermanent(err) {
					c.logger.Error("skipping vep batch", zap.Int("batch", i), zap.Error(err))
					return nil
				}
				return fmt.Errorf("vep batch %d: %w", i, err)
			}
			results[i] = batchResult{Seq: i, Responses: resp}

			mu.Lock()
			done++
			c.logger.Info("done with vep batch", zap.Int("done", done), zap.Int("batches", len(batches)))
			mu.Unlock()
			return nil
		})
	}
	runErr := g.Wait()

	// Completed batches are cached even when the run failed so a rerun resumes.
	var fresh []duckdb.VEPResult
	for _, br := range results {
		for _, v := range batches[br.Seq] {
			r, ok := br.Responses[v]
			if !ok {
				continue
			}
			responses[v] = r
			fresh = append(fresh, duckdb.VEPResult{Input: v, Distance: c.distance, Response: string(r)})
		}
	}
	if c.cache != nil && len(fresh) > 0 {
		if err := c.cache.WriteVEPResults(ctx, fresh); err != nil {
			if runErr == nil {
				runErr = err
			}
		}
	}
	if runErr != nil {
		return nil, runErr
	}

	out := make([]Result, 0, len(responses))
	for _, v := range variants {
		raw, ok := responses[v]
		if !ok {
			continue
		}
		var r Result
		if err := json.Unmarshal(raw, &r); err != nil {
			return nil, fmt.Errorf("decode vep result for %q: %w", v, err)
		}
		out = append(out, r)
	}
	return out, nil
}

func chunk(items []string, size int) [][]string {
	var out [][]string
	for len(items) > 0 {
		n := min(size, len(items))
		out = append(out, items[:n])
		items = items[n:]
	}
	return out
}

func uniqueStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
