package ontology

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
)

// DefaultOntology is assumed when the mapping file has no #ontology= header.
const DefaultOntology = "EFO"

var reOntologyHeader = regexp.MustCompile(`^#ontology=(.*?)$`)

// Term is one mapped ontology term.
type Term struct {
	ID    string
	Label string
}

// Mapping holds curated trait name -> ontology term mappings keyed by lowercased name.
type Mapping struct {
	Ontology string
	terms    map[string][]Term
	total    int
}

// NewMapping builds an empty mapping for the default ontology.
func NewMapping() *Mapping {
	return &Mapping{Ontology: DefaultOntology, terms: make(map[string][]Term)}
}

// Add records a mapping for name.
func (m *Mapping) Add(name string, term Term) {
	key := strings.ToLower(name)
	m.terms[key] = append(m.terms[key], term)
	m.total++
}

// Lookup returns the terms mapped to name, ignoring case.
func (m *Mapping) Lookup(name string) []Term {
	return m.terms[strings.ToLower(name)]
}

// Total returns the number of (name, term) mappings loaded.
func (m *Mapping) Total() int {
	return m.total
}

// LoadMapping reads a tab-separated trait mapping file.
func LoadMapping(path string) (*Mapping, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open ontology mapping: %w", err)
	}
	defer f.Close()
	return ReadMapping(f)
}

// ReadMapping parses "<name>\t<ontology id>\t<label>" lines. Header lines
// start with '#'; "#ontology=NAME" selects the target ontology.
func ReadMapping(r io.Reader) (*Mapping, error) {
	m := NewMapping()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	inHeader := true
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimRight(scanner.Text(), " \t\r\n")
		if inHeader {
			if sm := reOntologyHeader.FindStringSubmatch(line); sm != nil && sm[1] != "" {
				m.Ontology = strings.ToUpper(sm[1])
			}
		}
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		inHeader = false
		fields := strings.Split(line, "\t")
		if len(fields) != 3 {
			return nil, fmt.Errorf("line %d: expected 3 tab-separated fields, got %d", lineNum, len(fields))
		}
		m.Add(fields[0], Term{ID: fields[1], Label: fields[2]})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read ontology mapping: %w", err)
	}
	return m, nil
}
