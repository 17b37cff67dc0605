package clinvar

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/ebivariation/cmat/internal/hgvs"
)

// RepeatExpansionThreshold is the minimum explicit insertion length for a
// microsatellite with complete coordinates to count as a repeat expansion.
// Shorter events are processed as regular insertions.
const RepeatExpansionThreshold = 12

// MicrosatelliteCategory classifies Microsatellite measures.
type MicrosatelliteCategory string

const (
	NotMicrosatellite  MicrosatelliteCategory = ""
	MSDeletion         MicrosatelliteCategory = "deletion"
	MSShortExpansion   MicrosatelliteCategory = "short_expansion"
	MSRepeatExpansion  MicrosatelliteCategory = "repeat_expansion"
	MSNoCompleteCoords MicrosatelliteCategory = "no_complete_coords"
)

const (
	measureTranslocation  = "Translocation"
	measureMicrosatellite = "Microsatellite"
)

// SequenceLocation holds the GRCh38 location attributes of a measure. Absent
// attributes are empty strings.
type SequenceLocation struct {
	Chr       string
	Accession string
	Pos       string
	Ref       string
	Alt       string
	Start     string
	Stop      string
}

// HGVSEntry is one HGVS expression with its lowercased type tags, e.g.
// {"hgvs", "genomic", "top level"}.
type HGVSEntry struct {
	Variant *hgvs.Variant
	Types   map[string]bool
}

func (e HGVSEntry) hasType(t string) bool { return e.Types[t] }

// Measure is an isolated variant inside a record's MeasureSet.
type Measure struct {
	Type                 string
	PreferredName        string
	AllNames             []string
	PreferredGeneSymbols []string
	HGNCIDs              []string
	RsID                 string
	NsvID                string
	HGVS                 []HGVSEntry
	Location             *SequenceLocation
	ExistingSOTerms      []string
	PubMedRefs           []int
	VCVID                string

	// RecordAccession refers back to the owning record for diagnostics.
	RecordAccession string
}

func parseMeasure(n *Node, accession, vcvID string, logger *zap.Logger) (*Measure, error) {
	m := &Measure{
		Type:            n.AttrOr("Type", ""),
		VCVID:           vcvID,
		RecordAccession: accession,
	}

	preferred, err := n.FindOptional(`./Name/ElementValue[@Type="Preferred"]`)
	if err != nil {
		return nil, err
	}
	if preferred != nil {
		m.PreferredName = preferred.Text
	}
	m.AllNames = n.Texts("./Name/ElementValue")
	sort.Strings(m.AllNames)
	m.PreferredGeneSymbols = n.Texts(`./MeasureRelationship/Symbol/ElementValue[@Type="Preferred"]`)
	for _, x := range n.FindAll(`./MeasureRelationship/XRef[@DB="HGNC"]`) {
		m.HGNCIDs = append(m.HGNCIDs, x.AttrOr("ID", ""))
	}

	var rsIDs, nsvIDs []string
	for _, x := range n.FindAll(`./XRef[@DB="dbSNP"]`) {
		rsIDs = append(rsIDs, "rs"+x.AttrOr("ID", ""))
	}
	for _, x := range n.FindAll(`./XRef[@DB="dbVar"]`) {
		if id := x.AttrOr("ID", ""); strings.HasPrefix(id, "nsv") {
			nsvIDs = append(nsvIDs, id)
		}
	}
	m.RsID = singleOrWarn(rsIDs, "rs", accession, logger)
	m.NsvID = singleOrWarn(nsvIDs, "nsv", accession, logger)

	seen := make(map[string]bool)
	for _, attr := range n.FindAll("./AttributeSet/Attribute") {
		typ := attr.AttrOr("Type", "")
		if !strings.HasPrefix(typ, "HGVS") || attr.Text == "" || seen[attr.Text] {
			continue
		}
		seen[attr.Text] = true
		types := make(map[string]bool)
		for _, t := range strings.Split(typ, ",") {
			types[strings.ToLower(strings.TrimSpace(t))] = true
		}
		m.HGVS = append(m.HGVS, HGVSEntry{Variant: hgvs.Parse(attr.Text), Types: types})
	}

	if m.Type != measureTranslocation {
		// Variants with several locations (e.g. chrX/chrY) are not supported.
		if locs := n.FindAll(`./SequenceLocation[@Assembly="GRCh38"]`); len(locs) == 1 {
			l := locs[0]
			m.Location = &SequenceLocation{
				Chr:       l.AttrOr("Chr", ""),
				Accession: l.AttrOr("Accession", ""),
				Pos:       l.AttrOr("positionVCF", ""),
				Ref:       l.AttrOr("referenceAlleleVCF", ""),
				Alt:       l.AttrOr("alternateAlleleVCF", ""),
				Start:     l.AttrOr("start", ""),
				Stop:      l.AttrOr("stop", ""),
			}
		}
	}

	terms := make(map[string]bool)
	for _, set := range n.FindAll("./AttributeSet") {
		if _, provided := set.Attr("providedBy"); provided {
			continue
		}
		if len(set.FindAll(`./Attribute[@Type="MolecularConsequence"]`)) == 0 {
			continue
		}
		for _, x := range set.FindAll(`./XRef[@DB="Sequence Ontology"]`) {
			terms[x.AttrOr("ID", "")] = true
		}
	}
	m.ExistingSOTerms = sortedKeys(terms)

	if m.PubMedRefs, err = pubMedRefs(n, `./Citation/ID[@Source="PubMed"]`); err != nil {
		return nil, err
	}
	return m, nil
}

func singleOrWarn(ids []string, kind, accession string, logger *zap.Logger) string {
	switch len(ids) {
	case 0:
		return ""
	case 1:
		return ids[0]
	default:
		logger.Warn(fmt.Sprintf("found multiple %s ids, this is not yet supported", kind),
			zap.String("accession", accession), zap.Strings("ids", ids))
		return ""
	}
}

func (m *Measure) location() SequenceLocation {
	if m.Location == nil {
		return SequenceLocation{}
	}
	return *m.Location
}

// Chr returns the GRCh38 chromosome, or "".
func (m *Measure) Chr() string { return m.location().Chr }

// HasCompleteCoordinates reports whether chromosome, VCF position, reference
// and alternate alleles are all present.
func (m *Measure) HasCompleteCoordinates() bool {
	l := m.location()
	return l.Chr != "" && l.Pos != "" && l.Ref != "" && l.Alt != ""
}

// ExplicitInsertionLength returns len(alt) - len(ref) when both alleles are present.
func (m *Measure) ExplicitInsertionLength() (int, bool) {
	l := m.location()
	if l.Ref == "" || l.Alt == "" {
		return 0, false
	}
	return len(l.Alt) - len(l.Ref), true
}

// MicrosatelliteCategory returns NotMicrosatellite for any other measure type.
func (m *Measure) MicrosatelliteCategory() MicrosatelliteCategory {
	if m.Type != measureMicrosatellite {
		return NotMicrosatellite
	}
	if !m.HasCompleteCoordinates() {
		return MSNoCompleteCoords
	}
	length, _ := m.ExplicitInsertionLength()
	switch {
	case length < 0:
		return MSDeletion
	case length < RepeatExpansionThreshold:
		return MSShortExpansion
	default:
		return MSRepeatExpansion
	}
}

// IsRepeatExpansionVariant reports whether the measure is a repeat expansion candidate.
func (m *Measure) IsRepeatExpansionVariant() bool {
	c := m.MicrosatelliteCategory()
	return c == MSRepeatExpansion || c == MSNoCompleteCoords
}

// VCFFullCoords returns CHROM_POS_REF_ALT, or "" without complete coordinates.
func (m *Measure) VCFFullCoords() string {
	if !m.HasCompleteCoordinates() {
		return ""
	}
	l := m.location()
	return strings.Join([]string{l.Chr, l.Pos, l.Ref, l.Alt}, "_")
}

// CoordID returns CHROM:POS:REF:ALT, the key used by the consequence store.
func (m *Measure) CoordID() string {
	if !m.HasCompleteCoordinates() {
		return ""
	}
	l := m.location()
	return strings.Join([]string{l.Chr, l.Pos, l.Ref, l.Alt}, ":")
}

// PreferredOrOtherName returns the preferred name, else the first of all names.
func (m *Measure) PreferredOrOtherName() string {
	if m.PreferredName != "" {
		return m.PreferredName
	}
	if len(m.AllNames) > 0 {
		return m.AllNames[0]
	}
	return ""
}

// CurrentHGVS returns all non-previous HGVS variants sorted by text.
func (m *Measure) CurrentHGVS() []*hgvs.Variant {
	return m.hgvsWhere(func(e HGVSEntry) bool { return !e.hasType("previous") })
}

func (m *Measure) hgvsWhere(keep func(HGVSEntry) bool) []*hgvs.Variant {
	var out []*hgvs.Variant
	for _, e := range m.HGVS {
		if keep(e) {
			out = append(out, e.Variant)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Text < out[j].Text })
	return out
}

// ToplevelRefSeqHGVS returns the HGVS tagged exactly {hgvs, genomic, top level}.
func (m *Measure) ToplevelRefSeqHGVS() *hgvs.Variant {
	for _, e := range m.HGVS {
		if len(e.Types) == 3 && e.hasType("hgvs") && e.hasType("genomic") && e.hasType("top level") {
			return e.Variant
		}
	}
	return nil
}

// PreferredCurrentHGVS picks, in order: the top-level RefSeq HGVS; the first
// current genomic HGVS on the measure's own accession; the first current
// genomic HGVS; the first current HGVS.
func (m *Measure) PreferredCurrentHGVS() *hgvs.Variant {
	if top := m.ToplevelRefSeqHGVS(); top != nil {
		return top
	}
	genomic := m.hgvsWhere(func(e HGVSEntry) bool { return !e.hasType("previous") && e.hasType("genomic") })
	if len(genomic) > 0 {
		accession := m.location().Accession
		for _, v := range genomic {
			if accession != "" && v.ReferenceSequence == accession {
				return v
			}
		}
		return genomic[0]
	}
	if current := m.CurrentHGVS(); len(current) > 0 {
		return current[0]
	}
	return nil
}

// NameOrHGVS returns the preferred or other name, falling back to the top-level HGVS text.
func (m *Measure) NameOrHGVS() string {
	if name := m.PreferredOrOtherName(); name != "" {
		return name
	}
	if top := m.ToplevelRefSeqHGVS(); top != nil {
		return top.Text
	}
	return ""
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
