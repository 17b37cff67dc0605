package consequence

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
)

// Store maps a variant key (RCV accession, CHR:POS:REF:ALT or HGVS text) to
// its consequences. Within a key, (gene, term, transcript) triples are unique.
type Store struct {
	catalog *Catalog
	entries map[string][]Consequence
	total   int
}

// NewStore creates an empty store resolving terms through catalog.
func NewStore(catalog *Catalog) *Store {
	return &Store{catalog: catalog, entries: make(map[string][]Consequence)}
}

// Add records a consequence for key. Duplicates are ignored.
func (s *Store) Add(key, geneID, soName, transcriptID string) {
	c := Consequence{GeneID: geneID, Term: s.catalog.Term(soName), TranscriptID: transcriptID}
	for _, existing := range s.entries[key] {
		if existing == c {
			return
		}
	}
	s.entries[key] = append(s.entries[key], c)
	s.total++
}

// Get returns the consequences stored under key.
func (s *Store) Get(key string) []Consequence {
	return s.entries[key]
}

// Has reports whether key has any consequences.
func (s *Store) Has(key string) bool {
	return len(s.entries[key]) > 0
}

// Len returns the number of keys.
func (s *Store) Len() int { return len(s.entries) }

// Total returns the number of stored consequences across all keys.
func (s *Store) Total() int { return s.total }

// Load reads a consequence table from path.
func Load(path string, catalog *Catalog, logger *zap.Logger) (*Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open consequence mappings: %w", err)
	}
	defer f.Close()
	return Read(f, catalog, logger)
}

// Read parses tab-separated lines
//
//	<key> <gene id> <gene symbol> <so term> [<transcript id>]
//
// Lines with fewer than four columns or a gene id of NA are skipped with a warning.
func Read(r io.Reader, catalog *Catalog, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := NewStore(catalog)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), " \t\r\n")
		fields := strings.Split(line, "\t")
		if len(fields) < 4 {
			logger.Warn("skip invalid line in consequence mappings", zap.String("line", line))
			continue
		}
		if fields[1] == "NA" {
			logger.Warn("skip line with missing gene id", zap.String("line", line))
			continue
		}
		var transcript string
		if len(fields) >= 5 {
			transcript = fields[4]
		}
		s.Add(fields[0], fields[1], fields[3], transcript)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read consequence mappings: %w", err)
	}
	logger.Info("consequence mappings loaded", zap.Int("variants", s.Len()), zap.Int("mappings", s.Total()))
	return s, nil
}
