// Package output writes the consequence tables produced by the repeat
// expansion and structural variant pipelines.
package output

import (
	"bufio"
	"io"
	"strings"
)

// ConsequenceRow is one line of a consequence table.
type ConsequenceRow struct {
	Key          string // RCV accession, CHR:POS:REF:ALT or HGVS
	GeneID       string
	GeneSymbol   string
	SOTerm       string
	TranscriptID string
}

// ConsequenceWriter writes consequence rows as headerless tab-delimited
// lines. The transcript column is present only when transcripts are included.
type ConsequenceWriter struct {
	w                  *bufio.Writer
	includeTranscripts bool
	count              int
}

// NewConsequenceWriter creates a new consequence table writer.
func NewConsequenceWriter(w io.Writer, includeTranscripts bool) *ConsequenceWriter {
	return &ConsequenceWriter{w: bufio.NewWriter(w), includeTranscripts: includeTranscripts}
}

// Write writes a single row.
func (cw *ConsequenceWriter) Write(r ConsequenceRow) error {
	values := []string{r.Key, r.GeneID, r.GeneSymbol, r.SOTerm}
	if cw.includeTranscripts {
		values = append(values, r.TranscriptID)
	}
	if _, err := cw.w.WriteString(strings.Join(values, "\t") + "\n"); err != nil {
		return err
	}
	cw.count++
	return nil
}

// WriteAll writes rows in order.
func (cw *ConsequenceWriter) WriteAll(rows []ConsequenceRow) error {
	for _, r := range rows {
		if err := cw.Write(r); err != nil {
			return err
		}
	}
	return nil
}

// Count returns the number of rows written.
func (cw *ConsequenceWriter) Count() int { return cw.count }

// Flush flushes any buffered data to the underlying writer.
func (cw *ConsequenceWriter) Flush() error {
	return cw.w.Flush()
}
