// Package hgvs parses HGVS-like variant identifiers as they appear in ClinVar.
//
// Parsing is best effort: ClinVar names are frequently not valid HGVS, so
// Parse never fails and callers check which fields were recovered.
package hgvs

import (
	"regexp"
	"strconv"
	"strings"
)

// SequenceType is the coordinate system named by the letter before the dot.
type SequenceType string

const (
	Coding        SequenceType = "coding"
	Genomic       SequenceType = "genomic"
	Noncoding     SequenceType = "noncoding"
	Protein       SequenceType = "protein"
	Mitochondrial SequenceType = "mitochondrial"
	Circular      SequenceType = "circular"
	RNA           SequenceType = "rna"
)

var sequenceTypes = map[string]SequenceType{
	"c": Coding,
	"g": Genomic,
	"n": Noncoding,
	"p": Protein,
	"m": Mitochondrial,
	"o": Circular,
	"r": RNA,
}

// VariantType is the kind of change described by a simple range.
type VariantType string

const (
	Substitution VariantType = "substitution"
	Deletion     VariantType = "deletion"
	Duplication  VariantType = "duplication"
	Insertion    VariantType = "insertion"
	Inversion    VariantType = "inversion"
	Delins       VariantType = "delins"
	Other        VariantType = "other"
)

// IUPACAmbiguousDNA lists the nucleotide codes accepted in repeat units.
const IUPACAmbiguousDNA = "GATCRYWSMKHBVDN"

const sequenceIdentifier = `^([a-zA-Z][a-zA-Z0-9_.]+)` + // accession, e.g. NM_001256054.2
	`(?:\([a-zA-Z0-9_.]+\))?` + // optional gene symbol, e.g. (C9orf72)
	`:`

// coordinate matches either "<pivot><offset>" (capturing the offset) or a
// plain coordinate, optionally starred.
const coordinate = `(?:[-+]?[0-9]+([+-][0-9]+)|\*?([+-]?[0-9]+))`

var (
	reSequence    = regexp.MustCompile(sequenceIdentifier + `([cgnpmor])\.`)
	reSimpleRange = regexp.MustCompile(sequenceIdentifier + `([cgnpmor])\.([0-9]+)_([0-9]+)([a-zA-Z0-9]*)$`)
	rePivots      = regexp.MustCompile(`^([a-zA-Z][a-zA-Z0-9_]+)\.[0-9]+(?:\([a-zA-Z0-9_.]+\))?:[gc]\.` +
		coordinate + `(?:_` + coordinate + `)?([` + IUPACAmbiguousDNA + `]*)`)
)

// Variant is the information recovered from one identifier.
type Variant struct {
	Text              string
	ReferenceSequence string
	SequenceType      SequenceType
	VariantType       VariantType
	Start             int
	Stop              int
	RepeatSequence    string

	hasStart bool
	hasStop  bool
}

// Parse extracts whatever it can from text. It never fails.
func Parse(text string) *Variant {
	v := &Variant{Text: text}
	v.matchSequence()
	v.matchSimpleRange()
	v.matchPivots()
	return v
}

// HasStart reports whether a start coordinate was recovered.
func (v *Variant) HasStart() bool { return v.hasStart }

// HasStop reports whether a stop coordinate was recovered.
func (v *Variant) HasStop() bool { return v.hasStop }

// HasValidPreciseSpan reports whether both ends are known and ordered.
func (v *Variant) HasValidPreciseSpan() bool {
	return v.hasStart && v.hasStop && v.Stop >= v.Start
}

// PreciseSpan returns stop - start + 1, and false when the span is not valid.
func (v *Variant) PreciseSpan() (int, bool) {
	if !v.HasValidPreciseSpan() {
		return 0, false
	}
	return v.Stop - v.Start + 1, true
}

func (v *Variant) String() string {
	return v.Text
}

func (v *Variant) matchSequence() {
	m := reSequence.FindStringSubmatch(v.Text)
	if m == nil {
		return
	}
	v.ReferenceSequence = m[1]
	v.SequenceType = sequenceTypes[m[2]]
}

func (v *Variant) matchSimpleRange() {
	m := reSimpleRange.FindStringSubmatch(v.Text)
	if m == nil {
		return
	}
	start, errStart := strconv.Atoi(m[3])
	stop, errStop := strconv.Atoi(m[4])
	if errStart != nil || errStop != nil {
		return
	}
	v.setStart(start)
	v.setStop(stop)

	op := m[5]
	switch {
	case strings.Contains(op, "del") && !strings.Contains(op, "delins"):
		v.VariantType = Deletion
	case strings.Contains(op, "dup"):
		v.VariantType = Duplication
	case strings.Contains(op, "ins") && !strings.Contains(op, "delins"):
		v.VariantType = Insertion
	}
}

func (v *Variant) matchPivots() {
	m := rePivots.FindStringSubmatch(v.Text)
	if m == nil {
		return
	}
	if !v.hasStart {
		if n, ok := firstInt(m[2], m[3]); ok {
			v.setStart(n)
		}
	}
	if !v.hasStop {
		if n, ok := firstInt(m[4], m[5]); ok {
			v.setStop(n)
		}
	}
	if m[6] != "" {
		v.RepeatSequence = m[6]
	}
}

func (v *Variant) setStart(n int) {
	v.Start = n
	v.hasStart = true
}

func (v *Variant) setStop(n int) {
	v.Stop = n
	v.hasStop = true
}

// firstInt parses the first non-empty candidate.
func firstInt(candidates ...string) (int, bool) {
	for _, c := range candidates {
		if c == "" {
			continue
		}
		n, err := strconv.Atoi(c)
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}
