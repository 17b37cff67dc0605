// Package clinvar reads, models and writes the ClinVar XML release.
package clinvar

import (
	"bufio"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"

	"github.com/klauspost/pgzip"
	"go.uber.org/zap"
)

// DefaultXSDVersion is assumed when the release does not name its schema.
const DefaultXSDVersion = 2.0

const schemaLocationAttr = "xsi:noNamespaceSchemaLocation"

var reXSDVersion = regexp.MustCompile(`(?i)(ClinVar_RCV|clinvar_public)_([0-9.]+)\.xsd`)

// ReleaseHeader holds the attributes of the root <ReleaseSet> element in document order.
type ReleaseHeader struct {
	Attrs      []Attr
	XSDVersion float64
}

// Attr returns the named root attribute.
func (h *ReleaseHeader) Attr(name string) (string, bool) {
	for _, a := range h.Attrs {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// Set sets a root attribute, keeping its position when it already exists.
func (h *ReleaseHeader) Set(name, value string) {
	for i := range h.Attrs {
		if h.Attrs[i].Name == name {
			h.Attrs[i].Value = value
			return
		}
	}
	h.Attrs = append(h.Attrs, Attr{Name: name, Value: value})
}

// xsdVersion extracts the schema version from the schema location, or returns def.
func xsdVersion(h *ReleaseHeader, def float64) float64 {
	loc, ok := h.Attr(schemaLocationAttr)
	if !ok {
		return def
	}
	m := reXSDVersion.FindStringSubmatch(loc)
	if m == nil || m[2] == "" {
		return def
	}
	v, err := strconv.ParseFloat(m[2], 64)
	if err != nil {
		return def
	}
	return v
}

// SetSource yields ClinVarSets until io.EOF.
type SetSource interface {
	Next() (*ClinVarSet, error)
}

// Reader streams <ClinVarSet> elements from a (possibly gzipped) release.
type Reader struct {
	file     *os.File
	gz       *pgzip.Reader
	dec      *xml.Decoder
	header   *ReleaseHeader
	prefixes map[string]string
	logger   *zap.Logger
}

// Open opens a release file. Gzip input is detected from its magic bytes.
func Open(path string) (*Reader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open clinvar xml: %w", err)
	}
	br := bufio.NewReaderSize(file, 1<<16)
	magic, err := br.Peek(2)
	if err != nil && err != io.EOF {
		file.Close()
		return nil, fmt.Errorf("read clinvar xml: %w", err)
	}

	var src io.Reader = br
	var gz *pgzip.Reader
	if len(magic) == 2 && magic[0] == 0x1f && magic[1] == 0x8b {
		gz, err = pgzip.NewReader(br)
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("create gzip reader: %w", err)
		}
		src = gz
	}

	r, err := NewReader(src)
	if err != nil {
		if gz != nil {
			gz.Close()
		}
		file.Close()
		return nil, err
	}
	r.file = file
	r.gz = gz
	return r, nil
}

// NewReader reads an uncompressed release from rd. The root element is
// consumed immediately so the header is available before the first record.
func NewReader(rd io.Reader) (*Reader, error) {
	r := &Reader{
		dec:      xml.NewDecoder(rd),
		prefixes: make(map[string]string),
		logger:   zap.NewNop(),
		header:   &ReleaseHeader{XSDVersion: DefaultXSDVersion},
	}
	r.dec.Strict = true
	for {
		tok, err := r.dec.Token()
		if err == io.EOF {
			// Empty document: no header, no records.
			return r, nil
		}
		if err != nil {
			return nil, fmt.Errorf("parse clinvar xml: %w", err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		for _, a := range start.Attr {
			if a.Name.Space == "xmlns" {
				r.prefixes[a.Value] = a.Name.Local
			}
		}
		for _, a := range start.Attr {
			r.header.Attrs = append(r.header.Attrs, Attr{Name: qualifiedName(a.Name, r.prefixes), Value: a.Value})
		}
		r.header.XSDVersion = xsdVersion(r.header, DefaultXSDVersion)
		if start.Name.Local != "ReleaseSet" {
			return nil, fmt.Errorf("parse clinvar xml: unexpected root element <%s>", start.Name.Local)
		}
		return r, nil
	}
}

// SetLogger sets the logger used for record-level diagnostics.
func (r *Reader) SetLogger(logger *zap.Logger) {
	r.logger = logger
}

// SetDefaultXSDVersion overrides the version assumed when the release does not name its schema.
func (r *Reader) SetDefaultXSDVersion(v float64) {
	r.header.XSDVersion = xsdVersion(r.header, v)
}

// Header returns the release root attributes.
func (r *Reader) Header() *ReleaseHeader {
	return r.header
}

// NextNode returns the next <ClinVarSet> element, or io.EOF.
func (r *Reader) NextNode() (*Node, error) {
	for {
		tok, err := r.dec.Token()
		if err == io.EOF {
			return nil, io.EOF
		}
		if err != nil {
			return nil, fmt.Errorf("parse clinvar xml: %w", err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if start.Name.Local != "ClinVarSet" {
			if err := r.dec.Skip(); err != nil {
				return nil, fmt.Errorf("parse clinvar xml: %w", err)
			}
			continue
		}
		n, err := buildNode(r.dec, start, r.prefixes)
		if err != nil {
			return nil, fmt.Errorf("parse clinvar xml: %w", err)
		}
		return n, nil
	}
}

// Next returns the next parsed set. A *RecordError means that one set could
// not be interpreted; the reader remains usable. Any other error is fatal.
func (r *Reader) Next() (*ClinVarSet, error) {
	n, err := r.NextNode()
	if err != nil {
		return nil, err
	}
	return ParseSet(n, r.header.XSDVersion, r.logger)
}

// Close releases the underlying file.
func (r *Reader) Close() error {
	if r.gz != nil {
		r.gz.Close()
	}
	if r.file != nil {
		return r.file.Close()
	}
	return nil
}
