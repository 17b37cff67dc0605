package vep

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// ConsequenceType is one entry of the Ensembl consequence_types endpoint.
type ConsequenceType struct {
	SOTerm string    `json:"SO_term"`
	Rank   rankValue `json:"consequence_ranking"`
}

// rankValue accepts consequence_ranking as either a JSON number or a string.
type rankValue int

func (r *rankValue) UnmarshalJSON(b []byte) error {
	var n json.Number
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		n = json.Number(s)
	} else {
		n = json.Number(b)
	}
	v, err := strconv.Atoi(n.String())
	if err != nil {
		return fmt.Errorf("consequence_ranking %s: %w", b, err)
	}
	*r = rankValue(v)
	return nil
}

// Ranking maps SO terms to a severity position; lower is more severe.
// Positions are distinct: terms sharing an Ensembl rank are ordered by name.
type Ranking map[string]int

// NewRanking builds a Ranking from the consequence_types listing.
func NewRanking(types []ConsequenceType) Ranking {
	byRank := make(map[int][]string)
	for _, t := range types {
		byRank[int(t.Rank)] = append(byRank[int(t.Rank)], t.SOTerm)
	}
	ranks := make([]int, 0, len(byRank))
	for r := range byRank {
		ranks = append(ranks, r)
	}
	sort.Ints(ranks)

	out := make(Ranking)
	for _, r := range ranks {
		terms := byRank[r]
		sort.Strings(terms)
		for _, term := range terms {
			if _, seen := out[term]; !seen {
				out[term] = len(out)
			}
		}
	}
	return out
}

// Rank returns the position of term. Unknown terms rank after every known one.
func (r Ranking) Rank(term string) int {
	if n, ok := r[term]; ok {
		return n
	}
	return len(r)
}

// Less reports whether a is more severe than b.
func (r Ranking) Less(a, b string) bool {
	ra, rb := r.Rank(a), r.Rank(b)
	if ra != rb {
		return ra < rb
	}
	return a < b
}

// MostSevere returns the most severe of terms, or "" when terms is empty.
func (r Ranking) MostSevere(terms []string) string {
	var best string
	for i, t := range terms {
		if i == 0 || r.Less(t, best) {
			best = t
		}
	}
	return best
}

// Terms lists the known terms from most to least severe.
func (r Ranking) Terms() []string {
	out := make([]string, 0, len(r))
	for t := range r {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return r.Less(out[i], out[j]) })
	return out
}
