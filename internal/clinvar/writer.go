package clinvar

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/klauspost/pgzip"
)

const xmlDeclaration = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` + "\n"

// Writer writes a gzipped release: header, ClinVarSets, closing tag.
type Writer struct {
	file  *os.File
	gz    *pgzip.Writer
	w     *bufio.Writer
	count int
	now   func() time.Time
}

// Create creates a gzipped release file at path.
func Create(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create clinvar xml: %w", err)
	}
	w := NewWriter(f)
	w.file = f
	return w, nil
}

// NewWriter writes a gzipped release to dst.
func NewWriter(dst io.Writer) *Writer {
	gz := pgzip.NewWriter(dst)
	return &Writer{gz: gz, w: bufio.NewWriter(gz), now: time.Now}
}

// WriteHeader writes the XML declaration and the opening root element. The
// LastProcessed attribute is set to today's date.
func (w *Writer) WriteHeader(h *ReleaseHeader) error {
	root := &ReleaseHeader{Attrs: append([]Attr(nil), h.Attrs...)}
	root.Set("LastProcessed", w.now().Format("2006-01-02"))

	n := &Node{Name: "ReleaseSet", Attrs: root.Attrs}
	if _, err := w.w.WriteString(xmlDeclaration); err != nil {
		return err
	}
	// Render an empty root and drop its self-closing suffix to get the opening tag.
	var open strings.Builder
	if err := n.WriteIndent(&open, 0); err != nil {
		return err
	}
	tag := open.String()
	tag = tag[:len(tag)-len("/>\n")] + ">\n"
	_, err := w.w.WriteString(tag)
	return err
}

// WriteSet writes one <ClinVarSet> element.
func (w *Writer) WriteSet(n *Node) error {
	w.count++
	return n.WriteIndent(w.w, 1)
}

// Count returns the number of sets written.
func (w *Writer) Count() int {
	return w.count
}

// Close writes the closing root tag and flushes all layers.
func (w *Writer) Close() error {
	if _, err := w.w.WriteString("</ReleaseSet>\n"); err != nil {
		return err
	}
	if err := w.w.Flush(); err != nil {
		return fmt.Errorf("flush clinvar xml: %w", err)
	}
	if err := w.gz.Close(); err != nil {
		return fmt.Errorf("close gzip: %w", err)
	}
	if w.file != nil {
		return w.file.Close()
	}
	return nil
}
