package consequence

import (
	"regexp"

	"go.uber.org/zap"

	"github.com/ebivariation/cmat/internal/clinvar"
)

// MaxTargetGenes bounds how many consequences an HGVS-keyed variant may
// carry before it is considered too broad to report.
const MaxTargetGenes = 3

// Category tells which key scheme matched a variant.
type Category string

const (
	Repeat  Category = "REPEAT"
	Simple  Category = "SIMPLE"
	Complex Category = "COMPLEX"
	None    Category = "NONE"
)

var reNonACGT = regexp.MustCompile(`[^ACGT]`)

// Key is one way of addressing a variant in the store: RCVKey, CoordKey or HGVSKey.
type Key interface {
	String() string
	Category() Category
}

// RCVKey addresses repeat expansions, whose RCV accessions are variant specific.
type RCVKey string

// CoordKey is a CHR:POS:REF:ALT identifier.
type CoordKey string

// HGVSKey is the preferred current HGVS text of a measure.
type HGVSKey string

func (k RCVKey) String() string     { return string(k) }
func (k RCVKey) Category() Category { return Repeat }

func (k CoordKey) String() string     { return string(k) }
func (k CoordKey) Category() Category { return Simple }

func (k HGVSKey) String() string     { return string(k) }
func (k HGVSKey) Category() Category { return Complex }

// Keys lists the candidate keys of a record's measure in lookup order.
func Keys(accession string, m *clinvar.Measure) []Key {
	keys := []Key{RCVKey(accession)}
	if m == nil {
		return keys
	}
	if id := m.CoordID(); id != "" {
		keys = append(keys, CoordKey(id))
	}
	if h := m.PreferredCurrentHGVS(); h != nil {
		keys = append(keys, HGVSKey(h.Text))
	}
	return keys
}

// Lookup returns the consequences of a record's variant and the category of
// the key that matched. The first key with entries wins; an HGVS match with
// more than MaxTargetGenes consequences is discarded.
func (s *Store) Lookup(accession string, m *clinvar.Measure, logger *zap.Logger) ([]Consequence, Category) {
	if logger == nil {
		logger = zap.NewNop()
	}
	for _, k := range Keys(accession, m) {
		if _, ok := k.(CoordKey); ok {
			l := m.Location
			if reNonACGT.MatchString(l.Ref + l.Alt) {
				logger.Warn("observed variant with non-ACGT allele sequences", zap.String("variant", k.String()))
			}
		}
		cs := s.Get(k.String())
		if len(cs) == 0 {
			continue
		}
		if _, ok := k.(HGVSKey); ok && len(cs) > MaxTargetGenes {
			logger.Warn("skipping variant with too many target genes",
				zap.String("hgvs", k.String()), zap.Int("genes", len(cs)))
			return nil, None
		}
		return cs, k.Category()
	}
	return nil, None
}
