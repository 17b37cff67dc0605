package duckdb

import (
	"context"
	"database/sql/driver"
	"fmt"
	"strings"
)

// VEPResult is the raw JSON returned by VEP for one input identifier.
type VEPResult struct {
	Input    string
	Distance int
	Response string
}

// WriteVEPResults caches results. Inputs that are already cached for the same
// distance, or repeated within results, are skipped.
func (s *Store) WriteVEPResults(ctx context.Context, results []VEPResult) error {
	if len(results) == 0 {
		return nil
	}

	byDistance := make(map[int][]string)
	for _, r := range results {
		byDistance[r.Distance] = append(byDistance[r.Distance], r.Input)
	}
	existing := make(map[VEPResult]bool)
	for distance, inputs := range byDistance {
		cached, err := s.LookupVEPResults(ctx, inputs, distance)
		if err != nil {
			return err
		}
		for input := range cached {
			existing[VEPResult{Input: input, Distance: distance}] = true
		}
	}

	rows := make([][]driver.Value, 0, len(results))
	for _, r := range results {
		k := VEPResult{Input: r.Input, Distance: r.Distance}
		if existing[k] {
			continue
		}
		existing[k] = true
		rows = append(rows, []driver.Value{r.Input, int32(r.Distance), r.Response})
	}
	return s.appendRows(ctx, "vep_results", rows)
}

// LookupVEPResults returns the cached responses for inputs, keyed by input.
// Inputs that were never cached are absent from the map.
func (s *Store) LookupVEPResults(ctx context.Context, inputs []string, distance int) (map[string]string, error) {
	out := make(map[string]string)
	if len(inputs) == 0 {
		return out, nil
	}

	args := make([]any, 0, len(inputs)+1)
	args = append(args, distance)
	for _, in := range inputs {
		args = append(args, in)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(inputs)), ",")
	rows, err := s.db.QueryContext(ctx,
		`SELECT input, response FROM vep_results WHERE distance=? AND input IN (`+placeholders+`)`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("query vep results: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var input, response string
		if err := rows.Scan(&input, &response); err != nil {
			return nil, fmt.Errorf("scan vep result: %w", err)
		}
		out[input] = response
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate vep results: %w", err)
	}
	return out, nil
}

// CountVEPResults returns the number of cached VEP results.
func (s *Store) CountVEPResults(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT count(*) FROM vep_results").Scan(&n); err != nil {
		return 0, fmt.Errorf("count vep results: %w", err)
	}
	return n, nil
}
