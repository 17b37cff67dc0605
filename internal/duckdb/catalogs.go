package duckdb

import (
	"context"
	"database/sql/driver"
	"fmt"
	"sort"
)

// WriteSeverityRanking replaces the cached severity ranking.
func (s *Store) WriteSeverityRanking(ctx context.Context, ranks map[string]int) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM severity_ranking"); err != nil {
		return fmt.Errorf("clear severity ranking: %w", err)
	}
	rows := make([][]driver.Value, 0, len(ranks))
	for _, term := range sortedTerms(ranks) {
		rows = append(rows, []driver.Value{term, int32(ranks[term])})
	}
	return s.appendRows(ctx, "severity_ranking", rows)
}

// LoadSeverityRanking returns the cached ranking; an empty map means nothing is cached.
func (s *Store) LoadSeverityRanking(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT so_term, rank FROM severity_ranking")
	if err != nil {
		return nil, fmt.Errorf("query severity ranking: %w", err)
	}
	defer rows.Close()

	ranks := make(map[string]int)
	for rows.Next() {
		var term string
		var rank int
		if err := rows.Scan(&term, &rank); err != nil {
			return nil, fmt.Errorf("scan severity ranking: %w", err)
		}
		ranks[term] = rank
	}
	return ranks, rows.Err()
}

// WriteSOTerms replaces the cached SO label to accession catalog.
func (s *Store) WriteSOTerms(ctx context.Context, terms map[string]string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM so_terms"); err != nil {
		return fmt.Errorf("clear so terms: %w", err)
	}
	labels := make([]string, 0, len(terms))
	for label := range terms {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	rows := make([][]driver.Value, 0, len(terms))
	for _, label := range labels {
		rows = append(rows, []driver.Value{label, terms[label]})
	}
	return s.appendRows(ctx, "so_terms", rows)
}

// LoadSOTerms returns the cached catalog; an empty map means nothing is cached.
func (s *Store) LoadSOTerms(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT label, accession FROM so_terms")
	if err != nil {
		return nil, fmt.Errorf("query so terms: %w", err)
	}
	defer rows.Close()

	terms := make(map[string]string)
	for rows.Next() {
		var label, accession string
		if err := rows.Scan(&label, &accession); err != nil {
			return nil, fmt.Errorf("scan so term: %w", err)
		}
		terms[label] = accession
	}
	return terms, rows.Err()
}

func sortedTerms(m map[string]int) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
