package evidence

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/ebivariation/cmat/internal/clinvar"
	"github.com/ebivariation/cmat/internal/consequence"
	"github.com/ebivariation/cmat/internal/ontology"
	"github.com/ebivariation/cmat/internal/report"
)

// EvidenceStringsFileName is the evidence output inside the output directory.
const EvidenceStringsFileName = "evidence_strings.json"

const progressInterval = 1000

// Outcome is the tally a record ends up in.
type Outcome string

const (
	FatalNoValidTraits           Outcome = "fatal_no_valid_traits"
	FatalNoClinicalSignificance  Outcome = "fatal_no_clinical_significance"
	SkipUnsupportedVariation     Outcome = "skip_unsupported_variation"
	SkipNoFunctionalConsequences Outcome = "skip_no_functional_consequences"
	SkipMissingEFOMapping        Outcome = "skip_missing_efo_mapping"
	SkipInvalidEvidenceString    Outcome = "skip_invalid_evidence_string"
	DoneOne                      Outcome = "done_one"
	DoneMany                     Outcome = "done_many"
)

// Assembler generates evidence strings and keeps the run report.
type Assembler struct {
	mapping   *ontology.Mapping
	store     *consequence.Store
	validator *Validator
	report    *report.Report
	skip      map[string]bool
	logger    *zap.Logger
}

// NewAssembler creates an assembler joining records against mapping and
// store. A nil validator accepts every evidence string.
func NewAssembler(mapping *ontology.Mapping, store *consequence.Store, validator *Validator) *Assembler {
	return &Assembler{
		mapping:   mapping,
		store:     store,
		validator: validator,
		report:    report.New(mapping.Total(), store.Total()),
		logger:    zap.NewNop(),
	}
}

// SetLogger sets the logger.
func (a *Assembler) SetLogger(logger *zap.Logger) { a.logger = logger }

// SetSkip sets RCV accessions that are already done; they are neither
// processed nor counted.
func (a *Assembler) SetSkip(accessions map[string]bool) { a.skip = accessions }

// Report returns the counters accumulated so far.
func (a *Assembler) Report() *report.Report { return a.report }

// Process generates the evidence strings of one record and passes each
// JSON-encoded string to emit. Evidence strings failing validation are
// logged and dropped. An error from emit stops processing.
func (a *Assembler) Process(rcv *clinvar.ReferenceRecord, emit func([]byte) error) (Outcome, error) {
	r := a.report
	r.ClinVarTotal++

	traits := rcv.TraitsWithValidNames()
	if len(traits) == 0 {
		r.FatalNoValidTraits++
		return FatalNoValidTraits, nil
	}
	if len(rcv.ClinicalClassifications) == 0 {
		r.FatalNoClinicalSignificance++
		return FatalNoClinicalSignificance, nil
	}
	m := rcv.Measure
	if m == nil {
		r.SkipUnsupportedVariation++
		return SkipUnsupportedVariation, nil
	}

	found, _ := a.store.Lookup(rcv.Accession, m, a.logger)
	if len(found) == 0 {
		r.SkipNoFunctionalConsequences++
		return SkipNoFunctionalConsequences, nil
	}
	consequences := append([]consequence.Consequence(nil), found...)
	consequence.SortByGene(consequences)

	if m.IsRepeatExpansionVariant() {
		r.RepeatExpansionVariants += len(consequences)
	} else if !m.HasCompleteCoordinates() {
		r.StructuralVariants += len(consequences)
	}

	origins := GroupAlleleOrigins(rcv.ValidAlleleOrigins())
	diseases := GroupDiseases(traits, a.mapping)
	phenotypes := cohortPhenotypes(traits)

	var valid, complete int
	for _, c := range rcv.ClinicalClassifications {
		for _, o := range origins {
			for _, d := range diseases {
				for _, cons := range consequences {
					doc, err := json.Marshal(Build(rcv, c, o, d, cons, phenotypes))
					if err != nil {
						return "", fmt.Errorf("%s: encode evidence: %w", rcv.Accession, err)
					}
					if a.validator != nil {
						if err := a.validator.Validate(doc); err != nil {
							a.logger.Error("evidence string does not validate against schema",
								zap.String("accession", rcv.Accession), zap.Error(err), zap.ByteString("evidence", doc))
							continue
						}
					}
					if err := emit(doc); err != nil {
						return "", err
					}
					valid++
					if d.Mapped() {
						complete++
						r.UsedTraitMappings.Add(report.TraitMapping{Name: d.Name, OntologyID: d.OntologyID})
					}
				}
			}
		}
	}
	r.EvidenceStringCount += valid
	r.CompleteEvidenceStringCount += complete

	switch {
	case valid == 0:
		r.SkipInvalidEvidenceString++
		return SkipInvalidEvidenceString, nil
	case !anyMapped(diseases):
		r.SkipMissingEFOMapping++
		r.UnmappedTraitNames[traits[0].PreferredOrOtherValidName()]++
		return SkipMissingEFOMapping, nil
	case complete == 0:
		r.SkipInvalidEvidenceString++
		return SkipInvalidEvidenceString, nil
	case complete == 1:
		r.DoneOneCompleteEvidenceString++
		return DoneOne, nil
	default:
		r.DoneMultipleCompleteEvidenceStrings++
		return DoneMany, nil
	}
}

func anyMapped(diseases []Disease) bool {
	for _, d := range diseases {
		if d.Mapped() {
			return true
		}
	}
	return false
}

// Run processes every set from src, writing one evidence string per line to
// w. Sets that fail to parse, sets from excluded submissions and already
// processed records are skipped without being counted.
func (a *Assembler) Run(ctx context.Context, src clinvar.SetSource, w io.Writer) error {
	bw := bufio.NewWriter(w)
	emit := func(doc []byte) error {
		if _, err := bw.Write(doc); err != nil {
			return err
		}
		return bw.WriteByte('\n')
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		set, err := src.Next()
		if err == io.EOF {
			break
		}
		var recErr *clinvar.RecordError
		if errors.As(err, &recErr) {
			a.logger.Error("problem generating evidence", zap.String("accession", recErr.Accession), zap.Error(recErr.Err))
			continue
		}
		if err != nil {
			return err
		}
		if !clinvar.FilterBySubmissionName(set) {
			a.logger.Debug("skipping excluded submission", zap.String("accession", set.RCV.Accession))
			continue
		}
		if a.skip[set.RCV.Accession] {
			continue
		}

		if _, err := a.Process(set.RCV, emit); err != nil {
			return fmt.Errorf("write evidence: %w", err)
		}
		if a.report.ClinVarTotal%progressInterval == 0 {
			a.logger.Info("processing clinvar records", zap.Int("records", a.report.ClinVarTotal))
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("write evidence: %w", err)
	}
	a.report.ComputeRecordTallies()
	return nil
}

// ReadStudyIDs returns the studyId of every evidence string in r.
func ReadStudyIDs(r io.Reader) (map[string]bool, error) {
	ids := make(map[string]bool)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var ev struct {
			StudyID string `json:"studyId"`
		}
		if err := json.Unmarshal(line, &ev); err != nil {
			// A run killed mid-write leaves a truncated last line.
			continue
		}
		if ev.StudyID != "" {
			ids[ev.StudyID] = true
		}
	}
	return ids, scanner.Err()
}

// LoadStudyIDs reads studyIds from an existing evidence file. A missing file
// yields an empty set.
func LoadStudyIDs(path string) (map[string]bool, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]bool{}, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadStudyIDs(f)
}
