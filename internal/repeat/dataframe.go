package repeat

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/gocarina/gocsv"
)

// WriteAllVariants writes the annotated variants as a tab-separated table
// with a header row, for review and debugging.
func WriteAllVariants(w io.Writer, variants []Variant) error {
	cw := csv.NewWriter(w)
	cw.Comma = '\t'
	if err := gocsv.MarshalCSV(variants, gocsv.NewSafeCSVWriter(cw)); err != nil {
		return fmt.Errorf("write repeat expansion variants: %w", err)
	}
	return nil
}

// ReadAllVariants reads a table written by WriteAllVariants.
func ReadAllVariants(r io.Reader) ([]Variant, error) {
	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.LazyQuotes = true
	var variants []Variant
	if err := gocsv.UnmarshalCSV(cr, &variants); err != nil {
		return nil, fmt.Errorf("read repeat expansion variants: %w", err)
	}
	return variants, nil
}
