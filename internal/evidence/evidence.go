// Package evidence turns ClinVar reference records into Open Targets
// evidence strings: one per combination of clinical classification, allele
// origin group, disease and functional consequence.
package evidence

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/araddon/dateparse"

	"github.com/ebivariation/cmat/internal/clinvar"
	"github.com/ebivariation/cmat/internal/consequence"
)

// Data source and type identifiers.
const (
	DatasourceGermline = "eva"
	DatasourceSomatic  = "eva_somatic"
	DatatypeGermline   = "genetic_association"
	DatatypeSomatic    = "somatic_mutation"
)

var reISODate = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)

// Evidence is one evidence string. Empty values are left out of the JSON.
type Evidence struct {
	AlleleOrigins                  []string `json:"alleleOrigins,omitempty"`
	DatasourceID                   string   `json:"datasourceId"`
	DatatypeID                     string   `json:"datatypeId"`
	AllelicRequirements            []string `json:"allelicRequirements,omitempty"`
	ClinicalSignificances          []string `json:"clinicalSignificances,omitempty"`
	Confidence                     string   `json:"confidence,omitempty"`
	Literature                     []string `json:"literature,omitempty"`
	StudyID                        string   `json:"studyId,omitempty"`
	ReleaseDate                    string   `json:"releaseDate,omitempty"`
	TargetFromSourceID             string   `json:"targetFromSourceId,omitempty"`
	VariantFunctionalConsequenceID string   `json:"variantFunctionalConsequenceId,omitempty"`
	VariantID                      string   `json:"variantId,omitempty"`
	VariantRsID                    string   `json:"variantRsId,omitempty"`
	CohortPhenotypes               []string `json:"cohortPhenotypes,omitempty"`
	DiseaseFromSource              string   `json:"diseaseFromSource,omitempty"`
	DiseaseFromSourceID            string   `json:"diseaseFromSourceId,omitempty"`
	DiseaseFromSourceMappedID      string   `json:"diseaseFromSourceMappedId,omitempty"`
	VariantHGVSID                  string   `json:"variantHgvsId,omitempty"`
}

// FormatReleaseDate returns the YYYY-MM-DD part of a record date, or "" when
// none can be found.
func FormatReleaseDate(s string) string {
	if s == "" {
		return ""
	}
	if m := reISODate.FindString(s); m != "" {
		return m
	}
	t, err := dateparse.ParseAny(s)
	if err != nil {
		return ""
	}
	return t.Format("2006-01-02")
}

// mappedID compacts an ontology URI to its last path segment.
func mappedID(id string) string {
	if i := strings.LastIndexByte(id, '/'); i >= 0 {
		return id[i+1:]
	}
	return id
}

func literature(refs []int) []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range refs {
		s := strconv.Itoa(r)
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

// Build assembles one evidence string.
func Build(rcv *clinvar.ReferenceRecord, c *clinvar.ClinicalClassification, origins []string,
	d Disease, cons consequence.Consequence, phenotypes []string) *Evidence {
	somatic := len(origins) == 1 && origins[0] == "somatic"
	ev := &Evidence{
		AlleleOrigins:                  origins,
		DatasourceID:                   DatasourceGermline,
		DatatypeID:                     DatatypeGermline,
		AllelicRequirements:            rcv.ModeOfInheritance,
		ClinicalSignificances:          c.SignificanceList(),
		Confidence:                     c.ReviewStatus,
		Literature:                     literature(rcv.EvidenceSupportPubMedRefs),
		StudyID:                        rcv.Accession,
		ReleaseDate:                    FormatReleaseDate(rcv.CreatedDate),
		TargetFromSourceID:             cons.GeneID,
		VariantFunctionalConsequenceID: cons.Term.Accession,
		CohortPhenotypes:               phenotypes,
		DiseaseFromSource:              d.Name,
		DiseaseFromSourceID:            d.MedGenID,
		DiseaseFromSourceMappedID:      mappedID(d.OntologyID),
	}
	if somatic {
		ev.DatasourceID = DatasourceSomatic
		ev.DatatypeID = DatatypeSomatic
	}
	if m := rcv.Measure; m != nil {
		ev.VariantID = m.VCFFullCoords()
		ev.VariantRsID = m.RsID
		if h := m.PreferredCurrentHGVS(); h != nil {
			ev.VariantHGVSID = h.Text
		}
	}
	return ev
}
