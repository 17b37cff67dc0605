package clinvar

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// ReviewStatusScores maps review statuses to the number of ClinVar gold stars.
var ReviewStatusScores = map[string]int{
	"no assertion provided":                                0,
	"no classification provided":                           0,
	"no classification for the single variant":             0,
	"no assertion criteria provided":                       0,
	"no classifications from unflagged records":            0,
	"criteria provided, single submitter":                  1,
	"criteria provided, conflicting interpretations":       1,
	"criteria provided, conflicting classifications":       1,
	"criteria provided, multiple submitters, no conflicts": 2,
	"reviewed by expert panel":                             3,
	"practice guideline":                                   4,
}

// InvalidClinicalSignificances are flagged by ClinVar and must not be used.
var InvalidClinicalSignificances = setOf("no classifications from unflagged records")

var reSignificanceDelimiters = regexp.MustCompile(`/|, |; `)

// ClinicalClassification is one germline, somatic-impact or oncogenicity classification.
type ClinicalClassification struct {
	Type            string
	LastEvaluated   string
	ReviewStatus    string
	Score           int
	RawSignificance string
}

// parseClassification reads a classification element. Reference records
// require a known review status; submitted records carry theirs as-is.
func parseClassification(n *Node, xsdVersion float64, strict bool) (*ClinicalClassification, error) {
	c := &ClinicalClassification{Type: n.Name, Score: -1}
	if xsdVersion < 2 {
		c.LastEvaluated = n.AttrOr("DateLastEvaluated", "")
	} else {
		date, err := n.FindOptional("./DateLastEvaluated")
		if err != nil {
			return nil, err
		}
		if date != nil {
			c.LastEvaluated = date.Text
		}
	}

	status, err := n.FindMandatory("./ReviewStatus")
	if err != nil {
		if strict {
			return nil, err
		}
	} else {
		c.ReviewStatus = status.Text
	}
	if score, ok := ReviewStatusScores[c.ReviewStatus]; ok {
		c.Score = score
	} else if strict {
		return nil, fmt.Errorf("unknown review status %q", c.ReviewStatus)
	}

	desc, err := n.FindMandatory("./Description")
	if err != nil {
		var ce *CardinalityError
		if errors.As(err, &ce) && ce.Count > 1 {
			err = fmt.Errorf("%w: %v", ErrMultipleClinicalClassifications, err)
		}
		if strict {
			return nil, err
		}
	} else {
		c.RawSignificance = desc.Text
	}
	return c, nil
}

// SignificanceList splits the raw significance on "/", ", " and "; ",
// lowercases, replaces underscores and returns the sorted unique values.
func (c *ClinicalClassification) SignificanceList() []string {
	raw := strings.ReplaceAll(strings.ToLower(c.RawSignificance), "_", " ")
	seen := make(map[string]bool)
	var out []string
	for _, s := range reSignificanceDelimiters.Split(raw, -1) {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

// ValidSignificances drops significances ClinVar has flagged.
func (c *ClinicalClassification) ValidSignificances() []string {
	var out []string
	for _, s := range c.SignificanceList() {
		if !InvalidClinicalSignificances[strings.ToLower(s)] {
			out = append(out, s)
		}
	}
	return out
}
