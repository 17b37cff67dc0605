package annotate

import (
	"fmt"
	"io"
	"strings"
)

// Comparison categories. Exactly one is counted per compared record.
const (
	ExactMatch     = "exact_match"
	CMATSuperset   = "cmat_superset"
	CMATSubset     = "cmat_subset"
	DivergentMatch = "divergent_match"
	Mismatch       = "mismatch"
	CVMissing      = "cv_missing"
	CMATMissing    = "cmat_missing"
	BothMissing    = "both_missing"
)

var (
	matchKeys       = []string{ExactMatch, CMATSuperset, CMATSubset, DivergentMatch}
	bothPresentKeys = append(append([]string(nil), matchKeys...), Mismatch)
	someMissingKeys = []string{CVMissing, CMATMissing, BothMissing}
)

// SetMetrics compares sets of values coming from ClinVar against the sets
// annotated by this tool, one pair per record.
type SetMetrics struct {
	Counts map[string]int
	Scores map[string]float64

	// Match and BothPresent aggregate the disjoint categories; they are
	// filled in by Finalise.
	MatchCount       int
	MatchScore       float64
	BothPresentCount int
	BothPresentScore float64
}

// NewSetMetrics returns metrics with every category at zero.
func NewSetMetrics() *SetMetrics {
	m := &SetMetrics{Counts: make(map[string]int), Scores: make(map[string]float64)}
	for _, k := range append(append([]string(nil), bothPresentKeys...), someMissingKeys...) {
		m.Counts[k] = 0
		m.Scores[k] = 0
	}
	return m
}

// F1 returns the F1 score of cmat against cv along with the true positive,
// false positive and false negative counts.
func F1(cv, cmat map[string]bool) (score float64, tp, fp, fn int) {
	if len(cv) == 0 && len(cmat) == 0 {
		return 0, 0, 0, 0
	}
	for v := range cmat {
		if cv[v] {
			tp++
		} else {
			fp++
		}
	}
	for v := range cv {
		if !cmat[v] {
			fn++
		}
	}
	return float64(2*tp) / float64(2*tp+fp+fn), tp, fp, fn
}

// CountAndScore classifies one pair of sets. Scores are only accumulated
// when both sets are non-empty, since neither source is assumed complete.
func (m *SetMetrics) CountAndScore(cv, cmat []string) {
	cvSet, cmatSet := toSet(cv), toSet(cmat)
	switch {
	case len(cvSet) == 0 && len(cmatSet) > 0:
		m.Counts[CVMissing]++
		return
	case len(cvSet) > 0 && len(cmatSet) == 0:
		m.Counts[CMATMissing]++
		return
	case len(cvSet) == 0 && len(cmatSet) == 0:
		m.Counts[BothMissing]++
		return
	}

	score, tp, fp, fn := F1(cvSet, cmatSet)
	var k string
	switch {
	case fp > 0 && fn == 0:
		k = CMATSuperset
	case fp == 0 && fn > 0:
		k = CMATSubset
	case fp == 0 && fn == 0:
		k = ExactMatch
	case tp > 0:
		k = DivergentMatch
	default:
		k = Mismatch
	}
	m.Counts[k]++
	m.Scores[k] += score
}

// Finalise turns accumulated scores into averages and computes the match
// and both-present aggregates. Call it once, after the last CountAndScore.
func (m *SetMetrics) Finalise() {
	var matchScore, bothScore float64
	m.MatchCount, m.BothPresentCount = 0, 0
	for _, k := range matchKeys {
		m.MatchCount += m.Counts[k]
		matchScore += m.Scores[k]
	}
	for _, k := range bothPresentKeys {
		m.BothPresentCount += m.Counts[k]
		bothScore += m.Scores[k]
	}
	if m.MatchCount > 0 {
		m.MatchScore = matchScore / float64(m.MatchCount)
	}
	if m.BothPresentCount > 0 {
		m.BothPresentScore = bothScore / float64(m.BothPresentCount)
	}
	for k, n := range m.Counts {
		if n > 0 {
			m.Scores[k] /= float64(n)
		} else {
			m.Scores[k] = 0
		}
	}
}

// Total returns the number of compared records.
func (m *SetMetrics) Total() int {
	total := 0
	for _, n := range m.Counts {
		total += n
	}
	return total
}

// Report writes the total and a right-aligned table of counts, percentages
// and average F1 scores per category.
func (m *SetMetrics) Report(w io.Writer) error {
	total := m.Total()
	row := func(name string, count int, score float64) []string {
		pct := 0.0
		if total > 0 {
			pct = 100 * float64(count) / float64(total)
		}
		return []string{name, fmt.Sprint(count), fmt.Sprintf("%.1f%%", pct), fmt.Sprintf("%.2f", score)}
	}

	var rows [][]string
	for _, k := range bothPresentKeys {
		rows = append(rows, row(k, m.Counts[k], m.Scores[k]))
	}
	rows = append(rows,
		row("-->match", m.MatchCount, m.MatchScore),
		row("-->both_present", m.BothPresentCount, m.BothPresentScore))
	for _, k := range someMissingKeys {
		rows = append(rows, row(k, m.Counts[k], m.Scores[k]))
	}

	if _, err := fmt.Fprintf(w, "Total = %d\n", total); err != nil {
		return err
	}
	return prettyPrint(w, []string{"Category", "Count", "Percent", "F1 Score"}, rows)
}

func prettyPrint(w io.Writer, header []string, rows [][]string) error {
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = len(h)
	}
	for _, r := range rows {
		for i, cell := range r {
			widths[i] = max(widths[i], len(cell))
		}
	}
	line := func(cells []string) error {
		padded := make([]string, len(cells))
		for i, cell := range cells {
			padded[i] = fmt.Sprintf("%*s", widths[i], cell)
		}
		_, err := fmt.Fprintf(w, " %s \n", strings.Join(padded, "  "))
		return err
	}
	if err := line(header); err != nil {
		return err
	}
	for _, r := range rows {
		if err := line(r); err != nil {
			return err
		}
	}
	return nil
}

func toSet(values []string) map[string]bool {
	s := make(map[string]bool, len(values))
	for _, v := range values {
		s[v] = true
	}
	return s
}
