// Package report holds the counters of an evidence generation run. Reports
// from partial runs can be saved as YAML and summed.
package report

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// File names written to the evidence output directory.
const (
	UnmappedTraitsFileName = "unmapped_traits.tsv"
	CountsFileName         = "counts.yml"
)

// ErrInconsistentCounts is returned when fatal + skipped + done differs from the total.
var ErrInconsistentCounts = errors.New("clinvar evidence string tallies do not add up to the total amount")

// TraitMapping is one (trait name, ontology id) pair used in a complete evidence string.
type TraitMapping struct {
	Name       string
	OntologyID string
}

// MappingSet is a set of trait mappings, serialised as a sorted list of pairs.
type MappingSet map[TraitMapping]struct{}

// Add inserts m.
func (s MappingSet) Add(m TraitMapping) { s[m] = struct{}{} }

// Sorted returns the mappings ordered by name, then ontology id.
func (s MappingSet) Sorted() []TraitMapping {
	out := make([]TraitMapping, 0, len(s))
	for m := range s {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].OntologyID < out[j].OntologyID
	})
	return out
}

// MarshalYAML implements yaml.Marshaler.
func (s MappingSet) MarshalYAML() (interface{}, error) {
	pairs := make([][]string, 0, len(s))
	for _, m := range s.Sorted() {
		pairs = append(pairs, []string{m.Name, m.OntologyID})
	}
	return pairs, nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *MappingSet) UnmarshalYAML(value *yaml.Node) error {
	var pairs [][]string
	if err := value.Decode(&pairs); err != nil {
		return err
	}
	set := make(MappingSet, len(pairs))
	for _, p := range pairs {
		if len(p) != 2 {
			return fmt.Errorf("line %d: trait mapping must be a [name, id] pair", value.Line)
		}
		set.Add(TraitMapping{Name: p[0], OntologyID: p[1]})
	}
	*s = set
	return nil
}

// Report counts evidence strings and per-record outcomes.
type Report struct {
	EvidenceStringCount         int `yaml:"evidence_string_count"`
	CompleteEvidenceStringCount int `yaml:"complete_evidence_string_count"`

	ClinVarTotal                        int `yaml:"clinvar_total"`
	FatalNoValidTraits                  int `yaml:"clinvar_fatal_no_valid_traits"`
	FatalNoClinicalSignificance         int `yaml:"clinvar_fatal_no_clinical_significance"`
	SkipUnsupportedVariation            int `yaml:"clinvar_skip_unsupported_variation"`
	SkipNoFunctionalConsequences        int `yaml:"clinvar_skip_no_functional_consequences"`
	SkipMissingEFOMapping               int `yaml:"clinvar_skip_missing_efo_mapping"`
	SkipInvalidEvidenceString           int `yaml:"clinvar_skip_invalid_evidence_string"`
	DoneOneCompleteEvidenceString       int `yaml:"clinvar_done_one_complete_evidence_string"`
	DoneMultipleCompleteEvidenceStrings int `yaml:"clinvar_done_multiple_complete_evidence_strings"`
	ClinVarFatal                        int `yaml:"clinvar_fatal"`
	ClinVarSkipped                      int `yaml:"clinvar_skipped"`
	ClinVarDone                         int `yaml:"clinvar_done"`

	// TotalTraitMappings is the size of the trait mapping table.
	TotalTraitMappings int            `yaml:"total_trait_mappings"`
	UsedTraitMappings  MappingSet     `yaml:"used_trait_mappings"`
	UnmappedTraitNames map[string]int `yaml:"unmapped_trait_names"`

	// TotalConsequenceMappings is the size of the consequence table.
	TotalConsequenceMappings int `yaml:"total_consequence_mappings"`
	RepeatExpansionVariants  int `yaml:"repeat_expansion_variants"`
	StructuralVariants       int `yaml:"structural_variants"`
}

// New creates an empty report for a run using tables of the given sizes.
func New(totalTraitMappings, totalConsequenceMappings int) *Report {
	return &Report{
		TotalTraitMappings:       totalTraitMappings,
		TotalConsequenceMappings: totalConsequenceMappings,
		UsedTraitMappings:        make(MappingSet),
		UnmappedTraitNames:       make(map[string]int),
	}
}

// Add returns the sum of r and o. Table sizes take the maximum, used
// mappings the union; every other counter is added.
func (r *Report) Add(o *Report) *Report {
	s := New(max(r.TotalTraitMappings, o.TotalTraitMappings), max(r.TotalConsequenceMappings, o.TotalConsequenceMappings))

	s.EvidenceStringCount = r.EvidenceStringCount + o.EvidenceStringCount
	s.CompleteEvidenceStringCount = r.CompleteEvidenceStringCount + o.CompleteEvidenceStringCount
	s.ClinVarTotal = r.ClinVarTotal + o.ClinVarTotal
	s.FatalNoValidTraits = r.FatalNoValidTraits + o.FatalNoValidTraits
	s.FatalNoClinicalSignificance = r.FatalNoClinicalSignificance + o.FatalNoClinicalSignificance
	s.SkipUnsupportedVariation = r.SkipUnsupportedVariation + o.SkipUnsupportedVariation
	s.SkipNoFunctionalConsequences = r.SkipNoFunctionalConsequences + o.SkipNoFunctionalConsequences
	s.SkipMissingEFOMapping = r.SkipMissingEFOMapping + o.SkipMissingEFOMapping
	s.SkipInvalidEvidenceString = r.SkipInvalidEvidenceString + o.SkipInvalidEvidenceString
	s.DoneOneCompleteEvidenceString = r.DoneOneCompleteEvidenceString + o.DoneOneCompleteEvidenceString
	s.DoneMultipleCompleteEvidenceStrings = r.DoneMultipleCompleteEvidenceStrings + o.DoneMultipleCompleteEvidenceStrings
	s.ClinVarFatal = r.ClinVarFatal + o.ClinVarFatal
	s.ClinVarSkipped = r.ClinVarSkipped + o.ClinVarSkipped
	s.ClinVarDone = r.ClinVarDone + o.ClinVarDone
	s.RepeatExpansionVariants = r.RepeatExpansionVariants + o.RepeatExpansionVariants
	s.StructuralVariants = r.StructuralVariants + o.StructuralVariants

	for _, src := range []*Report{r, o} {
		for m := range src.UsedTraitMappings {
			s.UsedTraitMappings.Add(m)
		}
		for name, n := range src.UnmappedTraitNames {
			s.UnmappedTraitNames[name] += n
		}
	}
	return s
}

// ComputeRecordTallies derives the fatal, skipped and done totals from the
// granular counters.
func (r *Report) ComputeRecordTallies() {
	r.ClinVarFatal = r.FatalNoValidTraits + r.FatalNoClinicalSignificance
	r.ClinVarSkipped = r.SkipUnsupportedVariation + r.SkipNoFunctionalConsequences +
		r.SkipMissingEFOMapping + r.SkipInvalidEvidenceString
	r.ClinVarDone = r.DoneOneCompleteEvidenceString + r.DoneMultipleCompleteEvidenceStrings
}

// CheckCounts recomputes the tallies and returns ErrInconsistentCounts when
// they do not add up to the total.
func (r *Report) CheckCounts() error {
	r.ComputeRecordTallies()
	if expected := r.ClinVarFatal + r.ClinVarSkipped + r.ClinVarDone; expected != r.ClinVarTotal {
		return fmt.Errorf("%w: fatal + skipped + done = %d, total = %d", ErrInconsistentCounts, expected, r.ClinVarTotal)
	}
	return nil
}

// Print writes the human-readable summary.
func (r *Report) Print(w io.Writer) error {
	r.ComputeRecordTallies()
	var pct float64
	if supportable := r.ClinVarSkipped + r.ClinVarDone; supportable > 0 {
		pct = 100 * float64(r.ClinVarDone) / float64(supportable)
	}
	_, err := fmt.Fprintf(w, `Total number of evidence strings generated	%d
Total number of complete evidence strings generated	%d

Total number of ClinVar records	%d
    Fatal: No traits with valid names	%d
        No clinical significance	%d
    Skipped: Can be rescued by future improvements	%d
        Unsupported variation type	%d
        No functional consequences	%d
        Missing EFO mapping	%d
        Invalid evidence string	%d
    Done: Generated at least one complete evidence string	%d
        One complete evidence string	%d
        Multiple complete evidence strings	%d
Percentage of all potentially supportable ClinVar records which generated at least one complete evidence string	%.1f%%

Total number of trait-to-ontology mappings in the database	%d
    The number of distinct trait-to-ontology mappings used in the evidence strings	%d
The number of distinct unmapped trait names which prevented complete evidence string generation	%d

Total number of variant to consequence mappings	%d
    Number of repeat expansion variants	%d
    Number of structural variants 	%d
`,
		r.EvidenceStringCount, r.CompleteEvidenceStringCount,
		r.ClinVarTotal, r.FatalNoValidTraits, r.FatalNoClinicalSignificance,
		r.ClinVarSkipped, r.SkipUnsupportedVariation, r.SkipNoFunctionalConsequences, r.SkipMissingEFOMapping, r.SkipInvalidEvidenceString,
		r.ClinVarDone, r.DoneOneCompleteEvidenceString, r.DoneMultipleCompleteEvidenceStrings,
		pct,
		r.TotalTraitMappings, len(r.UsedTraitMappings), len(r.UnmappedTraitNames),
		r.TotalConsequenceMappings, r.RepeatExpansionVariants, r.StructuralVariants)
	return err
}

// WriteUnmappedTraits writes "name\tcount" lines, most frequent first.
func (r *Report) WriteUnmappedTraits(w io.Writer) error {
	names := make([]string, 0, len(r.UnmappedTraitNames))
	for name := range r.UnmappedTraitNames {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		ci, cj := r.UnmappedTraitNames[names[i]], r.UnmappedTraitNames[names[j]]
		if ci != cj {
			return ci > cj
		}
		return names[i] < names[j]
	})
	bw := bufio.NewWriter(w)
	for _, name := range names {
		if _, err := fmt.Fprintf(bw, "%s\t%d\n", name, r.UnmappedTraitNames[name]); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteFiles writes counts.yml and unmapped_traits.tsv into dir.
func (r *Report) WriteFiles(dir string) error {
	r.ComputeRecordTallies()
	if err := writeFile(filepath.Join(dir, CountsFileName), r.Dump); err != nil {
		return err
	}
	return writeFile(filepath.Join(dir, UnmappedTraitsFileName), r.WriteUnmappedTraits)
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

// Dump writes the report as YAML.
func (r *Report) Dump(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return err
	}
	return enc.Close()
}

// Read decodes a report written by Dump.
func Read(rd io.Reader) (*Report, error) {
	r := New(0, 0)
	if err := yaml.NewDecoder(rd).Decode(r); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode counts: %w", err)
	}
	if r.UsedTraitMappings == nil {
		r.UsedTraitMappings = make(MappingSet)
	}
	if r.UnmappedTraitNames == nil {
		r.UnmappedTraitNames = make(map[string]int)
	}
	return r, nil
}

// Load reads a counts file.
func Load(path string) (*Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open counts: %w", err)
	}
	defer f.Close()
	return Read(f)
}

// Aggregate loads and sums every counts file in paths.
func Aggregate(paths []string, logger *zap.Logger) (*Report, error) {
	total := New(0, 0)
	for _, p := range paths {
		r, err := Load(p)
		if err != nil {
			return nil, err
		}
		logger.Debug("loaded counts", zap.String("path", p), zap.Int("records", r.ClinVarTotal))
		total = total.Add(r)
	}
	return total, nil
}
