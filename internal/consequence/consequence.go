// Package consequence holds the variant -> (gene, SO term) table that the
// evidence and annotation pipelines join ClinVar records against.
package consequence

import (
	"sort"
	"strings"
)

// SOTerm is a Sequence Ontology consequence term. Accession is empty when
// the catalog does not know the term; Rank orders terms by severity.
type SOTerm struct {
	Name      string
	Accession string
	Rank      int
}

// CURIE returns the accession in SO:0001583 form, or "" when unknown.
func (t SOTerm) CURIE() string {
	return strings.ReplaceAll(t.Accession, "_", ":")
}

// Label returns the term name with underscores as spaces, as ClinVar writes it.
func (t SOTerm) Label() string {
	return strings.ReplaceAll(t.Name, "_", " ")
}

// Catalog resolves SO term names to accessions and severity ranks. It is
// built once at startup and read-only afterwards.
type Catalog struct {
	accessions map[string]string
	ranking    map[string]int
}

// NewCatalog builds a catalog from a label -> accession map and a
// term -> rank severity ranking. Either may be nil.
func NewCatalog(accessions map[string]string, ranking map[string]int) *Catalog {
	return &Catalog{accessions: accessions, ranking: ranking}
}

// Term resolves name. Terms missing from the ranking rank last.
func (c *Catalog) Term(name string) SOTerm {
	t := SOTerm{Name: name}
	if c == nil {
		return t
	}
	t.Accession = c.accessions[name]
	if r, ok := c.ranking[name]; ok {
		t.Rank = r
	} else {
		t.Rank = len(c.ranking)
	}
	return t
}

// Consequence is one functional consequence of a variant on a gene.
type Consequence struct {
	GeneID       string
	Term         SOTerm
	TranscriptID string
}

// SortByGene orders consequences by gene id, then term, then transcript.
func SortByGene(cs []Consequence) {
	sort.SliceStable(cs, func(i, j int) bool {
		if cs[i].GeneID != cs[j].GeneID {
			return cs[i].GeneID < cs[j].GeneID
		}
		if cs[i].Term.Name != cs[j].Term.Name {
			return cs[i].Term.Name < cs[j].Term.Name
		}
		return cs[i].TranscriptID < cs[j].TranscriptID
	})
}
