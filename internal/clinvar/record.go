package clinvar

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// NonspecificAlleleOrigins convey a lack of information and are ignored.
var NonspecificAlleleOrigins = setOf("unknown", "not provided", "not applicable", "tested-inconclusive", "not-reported")

// Record holds the fields shared by reference and submitted records.
type Record struct {
	Accession                 string
	CreatedDate               string
	LastUpdatedDate           string
	ModeOfInheritance         []string
	TraitSetType              string
	Traits                    []*Trait
	Measure                   *Measure
	ClinicalClassifications   []*ClinicalClassification
	EvidenceSupportPubMedRefs []int
	AlleleOrigins             []string
	XSDVersion                float64
}

func parseRecord(n *Node, xsdVersion float64, strict bool, logger *zap.Logger) (*Record, error) {
	acc, err := n.FindMandatory("./ClinVarAccession")
	if err != nil {
		return nil, err
	}
	r := &Record{
		Accession:       acc.AttrOr("Acc", ""),
		CreatedDate:     n.AttrOr("DateCreated", ""),
		LastUpdatedDate: n.AttrOr("DateLastUpdated", ""),
		XSDVersion:      xsdVersion,
	}

	modes := make(map[string]bool)
	for _, text := range n.Texts(`./AttributeSet/Attribute[@Type="ModeOfInheritance"]`) {
		modes[text] = true
	}
	r.ModeOfInheritance = sortedKeys(modes)

	if set, err := n.FindOptional("./TraitSet"); err != nil {
		return nil, err
	} else if set != nil {
		r.TraitSetType = set.AttrOr("Type", "")
	}
	for _, tn := range n.FindAll("./TraitSet/Trait") {
		t, err := parseTrait(tn)
		if err != nil {
			return nil, fmt.Errorf("trait: %w", err)
		}
		r.Traits = append(r.Traits, t)
	}

	// Only MeasureSets of type Variant are supported; haplotypes and
	// GenotypeSets are left without a measure.
	measureSet, err := n.FindOptional(`./MeasureSet[@Type="Variant"]`)
	if err != nil {
		return nil, err
	}
	if measureSet != nil {
		mn, err := measureSet.FindOptional("./Measure")
		if err != nil {
			return nil, err
		}
		if mn != nil {
			if r.Measure, err = parseMeasure(mn, r.Accession, measureSet.AttrOr("Acc", ""), logger); err != nil {
				return nil, fmt.Errorf("measure: %w", err)
			}
		}
	}

	if xsdVersion < 2 {
		cn, err := n.FindMandatory("./ClinicalSignificance")
		switch {
		case err != nil && strict:
			return nil, err
		case err == nil:
			c, err := parseClassification(cn, xsdVersion, strict)
			if err != nil {
				return nil, err
			}
			r.ClinicalClassifications = append(r.ClinicalClassifications, c)
		}
	} else {
		for _, cn := range n.FindAll("./Classifications/*") {
			c, err := parseClassification(cn, xsdVersion, strict)
			if err != nil {
				return nil, err
			}
			r.ClinicalClassifications = append(r.ClinicalClassifications, c)
		}
	}

	if r.EvidenceSupportPubMedRefs, err = pubMedRefs(n, `./ObservedIn/ObservedData/Citation/ID[@Source="PubMed"]`); err != nil {
		return nil, err
	}
	origins := make(map[string]bool)
	for _, o := range n.Texts("./ObservedIn/Sample/Origin") {
		origins[o] = true
	}
	r.AlleleOrigins = sortedKeys(origins)
	return r, nil
}

func pubMedRefs(n *Node, path string) ([]int, error) {
	var refs []int
	for _, text := range n.Texts(path) {
		id, err := strconv.Atoi(strings.TrimSpace(text))
		if err != nil {
			return nil, fmt.Errorf("pubmed id %q: %w", text, err)
		}
		refs = append(refs, id)
	}
	return refs, nil
}

// ValidAlleleOrigins returns the sorted allele origins that are not nonspecific.
func (r *Record) ValidAlleleOrigins() []string {
	var out []string
	for _, o := range r.AlleleOrigins {
		if !NonspecificAlleleOrigins[strings.ToLower(o)] {
			out = append(out, o)
		}
	}
	return out
}

// TraitsWithValidNames returns the traits with at least one resolvable name.
func (r *Record) TraitsWithValidNames() []*Trait {
	var out []*Trait
	for _, t := range r.Traits {
		if t.PreferredOrOtherValidName() != "" {
			out = append(out, t)
		}
	}
	return out
}

// TraitPubMedRefs returns the union of all trait PubMed references, sorted.
func (r *Record) TraitPubMedRefs() []int {
	var out []int
	for _, t := range r.Traits {
		out = append(out, t.PubMedRefs...)
	}
	sort.Ints(out)
	return out
}

// classification returns the record's only classification. Callers handling
// XSD v2 records must inspect ClinicalClassifications instead.
func (r *Record) classification() (*ClinicalClassification, error) {
	switch len(r.ClinicalClassifications) {
	case 0:
		return nil, fmt.Errorf("%s: %w", r.Accession, ErrNoClinicalClassifications)
	case 1:
		return r.ClinicalClassifications[0], nil
	default:
		return nil, fmt.Errorf("%s: %w", r.Accession, ErrMultipleClinicalClassifications)
	}
}

// LastEvaluatedDate of the single clinical classification.
func (r *Record) LastEvaluatedDate() (string, error) {
	c, err := r.classification()
	if err != nil {
		return "", err
	}
	return c.LastEvaluated, nil
}

// ReviewStatus of the single clinical classification.
func (r *Record) ReviewStatus() (string, error) {
	c, err := r.classification()
	if err != nil {
		return "", err
	}
	return c.ReviewStatus, nil
}

// Score of the single clinical classification.
func (r *Record) Score() (int, error) {
	c, err := r.classification()
	if err != nil {
		return 0, err
	}
	return c.Score, nil
}

// ClinicalSignificanceList of the single clinical classification.
func (r *Record) ClinicalSignificanceList() ([]string, error) {
	c, err := r.classification()
	if err != nil {
		return nil, err
	}
	return c.SignificanceList(), nil
}

// ValidClinicalSignificances of the single clinical classification.
func (r *Record) ValidClinicalSignificances() ([]string, error) {
	c, err := r.classification()
	if err != nil {
		return nil, err
	}
	return c.ValidSignificances(), nil
}

// ReferenceRecord (RCV) summarises the submitted records and carries the
// annotations added by ClinVar curators.
type ReferenceRecord struct {
	Record
}

func (r *ReferenceRecord) String() string {
	return "reference record " + r.Accession
}

// SubmittedRecord (SCV) is an individual submission for a reference record.
type SubmittedRecord struct {
	Record
	SubmissionDate string
	Submitter      string
	SubmissionName string

	// Reference is the record this submission contributes to.
	Reference *ReferenceRecord
}

func (r *SubmittedRecord) String() string {
	return "submitted record " + r.Accession
}

func parseSubmittedRecord(n *Node, xsdVersion float64, ref *ReferenceRecord, logger *zap.Logger) (*SubmittedRecord, error) {
	rec, err := parseRecord(n, xsdVersion, false, logger)
	if err != nil {
		return nil, err
	}
	sub, err := n.FindMandatory("./ClinVarSubmissionID")
	if err != nil {
		return nil, err
	}
	return &SubmittedRecord{
		Record:         *rec,
		SubmissionDate: sub.AttrOr("submitterDate", ""),
		Submitter:      sub.AttrOr("submitter", ""),
		SubmissionName: n.AttrOr("SubmissionName", ""),
		Reference:      ref,
	}, nil
}
