package vep

import (
	"sort"
)

// DefaultBiotypes are the transcript biotypes whose consequences are reported.
var DefaultBiotypes = map[string]bool{"protein_coding": true, "miRNA": true}

// Result is the VEP response for one input.
type Result struct {
	Input                  string                  `json:"input"`
	TranscriptConsequences []TranscriptConsequence `json:"transcript_consequences"`
}

// TranscriptConsequence is one transcript-level prediction. Distance is set
// only for transcripts near but not overlapping the variant.
type TranscriptConsequence struct {
	GeneID           string   `json:"gene_id"`
	GeneSymbol       string   `json:"gene_symbol"`
	Biotype          string   `json:"biotype"`
	ConsequenceTerms []string `json:"consequence_terms"`
	TranscriptID     string   `json:"transcript_id"`
	Distance         *int     `json:"distance"`
}

// Consequence is one selected (gene, term[, transcript]) for a variant.
type Consequence struct {
	Input        string
	GeneID       string
	GeneSymbol   string
	Term         string
	TranscriptID string
}

func (c Consequence) less(o Consequence) bool {
	if c.Input != o.Input {
		return c.Input < o.Input
	}
	if c.GeneID != o.GeneID {
		return c.GeneID < o.GeneID
	}
	if c.GeneSymbol != o.GeneSymbol {
		return c.GeneSymbol < o.GeneSymbol
	}
	if c.Term != o.Term {
		return c.Term < o.Term
	}
	return c.TranscriptID < o.TranscriptID
}

// Extractor selects the most severe consequences from VEP results.
type Extractor struct {
	Ranking            Ranking
	Biotypes           map[string]bool
	IncludeTranscripts bool
}

// Extract returns the selected consequences of every result, sorted and
// deduplicated. Variants left without consequences of an accepted biotype
// contribute nothing.
//
// When some transcripts overlap the variant, each overlapped gene reports
// its own most severe term. Otherwise the single most severe term among the
// nearby transcripts is reported for every gene carrying it.
func (e Extractor) Extract(results []Result) []Consequence {
	biotypes := e.Biotypes
	if biotypes == nil {
		biotypes = DefaultBiotypes
	}

	var out []Consequence
	for _, res := range results {
		var accepted, overlapping []TranscriptConsequence
		for _, tc := range res.TranscriptConsequences {
			if !biotypes[tc.Biotype] {
				continue
			}
			accepted = append(accepted, tc)
			if tc.Distance == nil {
				overlapping = append(overlapping, tc)
			}
		}
		if len(accepted) == 0 {
			continue
		}
		if len(overlapping) > 0 {
			out = append(out, e.mostSeverePerGene(res.Input, overlapping)...)
		} else {
			out = append(out, e.overallMostSevere(res.Input, accepted)...)
		}
	}
	return dedupe(out)
}

type geneKey struct {
	id, symbol string
}

type termTranscript struct {
	term, transcript string
}

func (e Extractor) mostSeverePerGene(input string, consequences []TranscriptConsequence) []Consequence {
	var genes []geneKey
	perGene := make(map[geneKey][]termTranscript)
	for _, tc := range consequences {
		k := geneKey{tc.GeneID, tc.GeneSymbol}
		if _, ok := perGene[k]; !ok {
			genes = append(genes, k)
		}
		for _, term := range tc.ConsequenceTerms {
			perGene[k] = append(perGene[k], termTranscript{term, tc.TranscriptID})
		}
	}

	var out []Consequence
	for _, g := range genes {
		pairs := perGene[g]
		if len(pairs) == 0 {
			continue
		}
		terms := make([]string, len(pairs))
		for i, p := range pairs {
			terms[i] = p.term
		}
		worst := e.Ranking.MostSevere(terms)
		if !e.IncludeTranscripts {
			out = append(out, Consequence{Input: input, GeneID: g.id, GeneSymbol: g.symbol, Term: worst})
			continue
		}
		for _, p := range pairs {
			if p.term == worst {
				out = append(out, Consequence{Input: input, GeneID: g.id, GeneSymbol: g.symbol, Term: worst, TranscriptID: p.transcript})
			}
		}
	}
	return out
}

func (e Extractor) overallMostSevere(input string, consequences []TranscriptConsequence) []Consequence {
	var terms []string
	for _, tc := range consequences {
		terms = append(terms, tc.ConsequenceTerms...)
	}
	if len(terms) == 0 {
		return nil
	}
	worst := e.Ranking.MostSevere(terms)

	var out []Consequence
	for _, tc := range consequences {
		if !contains(tc.ConsequenceTerms, worst) {
			continue
		}
		c := Consequence{Input: input, GeneID: tc.GeneID, GeneSymbol: tc.GeneSymbol, Term: worst}
		if e.IncludeTranscripts {
			c.TranscriptID = tc.TranscriptID
		}
		out = append(out, c)
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func dedupe(cs []Consequence) []Consequence {
	sort.Slice(cs, func(i, j int) bool { return cs[i].less(cs[j]) })
	var out []Consequence
	for _, c := range cs {
		if len(out) > 0 && c == out[len(out)-1] {
			continue
		}
		out = append(out, c)
	}
	return out
}
