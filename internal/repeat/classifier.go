// Package repeat finds repeat expansion variants in ClinVar, decides whether
// each is a trinucleotide or short tandem repeat and maps it to Ensembl genes.
package repeat

import (
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/ebivariation/cmat/internal/clinvar"
	"github.com/ebivariation/cmat/internal/hgvs"
)

// Repeat types, named after their Sequence Ontology terms.
const (
	Trinucleotide = "trinucleotide_repeat_expansion"
	ShortTandem   = "short_tandem_repeat_expansion"
)

// reDescription matches human-readable names such as
// "ATXN8, (CAG)n REPEAT EXPANSION" or "TNRC6A, 5-BP INS, TTTCA(n) REPEAT EXPANSION".
var reDescription = regexp.MustCompile(`\(?([` + hgvs.IUPACAmbiguousDNA + `]+)\)?\(?n\)?(?: REPEAT)? EXPANSION`)

// Identifier is what could be read from one variant name or HGVS expression.
// Zero lengths mean unknown.
type Identifier struct {
	TranscriptID     string // RefSeq NM_ accession without version
	CoordinateSpan   int
	RepeatUnitLength int
	IsProteinHGVS    bool
}

// ParseIdentifier reads a variant identifier. Genomic and coding HGVS give a
// transcript, coordinate span and repeat unit; protein HGVS is flagged; other
// names are searched for a "(XYZ)n REPEAT EXPANSION" description.
func ParseIdentifier(name string, logger *zap.Logger) Identifier {
	var id Identifier
	if name == "" {
		return id
	}
	v := hgvs.Parse(name)
	switch v.SequenceType {
	case hgvs.Genomic, hgvs.Coding:
		if strings.HasPrefix(v.ReferenceSequence, "NM") {
			id.TranscriptID = stripVersion(v.ReferenceSequence)
		}
		if span, ok := v.PreciseSpan(); ok {
			id.CoordinateSpan = span
		}
		id.RepeatUnitLength = len(v.RepeatSequence)
		return id
	case hgvs.Protein:
		id.IsProteinHGVS = true
		return id
	}
	if m := reDescription.FindStringSubmatch(name); m != nil {
		id.RepeatUnitLength = len(m[1])
		return id
	}
	if logger != nil {
		logger.Warn("clinvar identifier did not match any of the regular expressions", zap.String("identifier", name))
	}
	return id
}

func stripVersion(accession string) string {
	if i := strings.IndexByte(accession, '.'); i >= 0 {
		return accession[:i]
	}
	return accession
}

// TypeFromLength classifies a repeat by unit length; zero means unknown.
func TypeFromLength(length int) string {
	if length == 0 {
		return ""
	}
	if length%3 == 0 {
		return Trinucleotide
	}
	return ShortTandem
}

// InferType returns the repeat type and transcript described by identifier.
// Protein HGVS is taken as trinucleotide since repeats there span whole
// amino acids. Names ending in a deletion never count as expansions.
func InferType(identifier string, logger *zap.Logger) (repeatType, transcriptID string) {
	id := ParseIdentifier(identifier, logger)
	if id.IsProteinHGVS {
		repeatType = Trinucleotide
	} else {
		repeatType = TypeFromLength(id.RepeatUnitLength)
		if repeatType == "" {
			repeatType = TypeFromLength(id.CoordinateSpan)
		}
	}
	if strings.HasSuffix(identifier, "del") || strings.HasSuffix(identifier, "del)") {
		repeatType = ""
	}
	return repeatType, id.TranscriptID
}

// Classify tries the measure's name, then each current HGVS, then every
// name until one yields a repeat type. Failing that, the explicit insertion
// length decides, without a transcript.
func Classify(m *clinvar.Measure, logger *zap.Logger) (repeatType, transcriptID string) {
	candidates := []string{m.NameOrHGVS()}
	for _, v := range m.CurrentHGVS() {
		candidates = append(candidates, v.Text)
	}
	candidates = append(candidates, m.AllNames...)

	for _, c := range candidates {
		if rt, tr := InferType(c, logger); rt != "" {
			return rt, tr
		}
	}
	if length, ok := m.ExplicitInsertionLength(); ok {
		return TypeFromLength(length), ""
	}
	return "", ""
}
