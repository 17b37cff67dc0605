// Package annotate re-emits the ClinVar release with ontology cross-references
// added to traits and molecular consequences added to measures, and can
// evaluate those annotations against what ClinVar already records.
package annotate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/ebivariation/cmat/internal/clinvar"
	"github.com/ebivariation/cmat/internal/consequence"
	"github.com/ebivariation/cmat/internal/ontology"
)

// Processor tags every element this package adds.
const Processor = "CMAT"

// MismatchesFileName receives trait mappings that disagree with ClinVar.
const MismatchesFileName = "mismatches.tsv"

// Source yields the release header and raw <ClinVarSet> elements.
type Source interface {
	Header() *clinvar.ReleaseHeader
	NextNode() (*clinvar.Node, error)
}

// Sink receives the annotated release.
type Sink interface {
	WriteHeader(h *clinvar.ReleaseHeader) error
	WriteSet(n *clinvar.Node) error
}

// CategoryMetrics compares genes and consequences for one variant category.
type CategoryMetrics struct {
	Genes        *SetMetrics
	Consequences *SetMetrics
}

// Annotator adds trait and consequence annotations to ClinVar sets.
type Annotator struct {
	mapping    *ontology.Mapping
	store      *consequence.Store
	eval       *Evaluation
	mismatches io.Writer
	logger     *zap.Logger

	Overall  *Counter
	Obsolete *Counter

	Genes        *SetMetrics
	Consequences *SetMetrics
	ByCategory   map[consequence.Category]CategoryMetrics
	Traits       *SetMetrics
}

// NewAnnotator creates an annotator using mapping for traits and store for
// variant consequences.
func NewAnnotator(mapping *ontology.Mapping, store *consequence.Store) *Annotator {
	a := &Annotator{
		mapping: mapping,
		store:   store,
		logger:  zap.NewNop(),
		Overall: NewCounter("total", "has_supported_measure", "has_supported_trait", "both_measure_and_trait"),
		// cv_* count EFO-aligned xrefs already in ClinVar, cmat_* the added ones.
		Obsolete:     NewCounter("cv_total", "cmat_total", "cv_obsolete", "cmat_obsolete"),
		Genes:        NewSetMetrics(),
		Consequences: NewSetMetrics(),
		ByCategory:   make(map[consequence.Category]CategoryMetrics),
		Traits:       NewSetMetrics(),
	}
	for _, c := range []consequence.Category{consequence.Simple, consequence.Repeat, consequence.Complex} {
		a.ByCategory[c] = CategoryMetrics{Genes: NewSetMetrics(), Consequences: NewSetMetrics()}
	}
	return a
}

// SetLogger sets the logger.
func (a *Annotator) SetLogger(logger *zap.Logger) { a.logger = logger }

// SetEvaluation enables evaluation against ev. Trait mappings sharing no
// term with ClinVar are written to mismatches as RCV, ClinVar and CMAT ids.
func (a *Annotator) SetEvaluation(ev *Evaluation, mismatches io.Writer) {
	a.eval = ev
	a.mismatches = mismatches
}

// Annotate adds annotations to set.Node in place and updates the counters.
func (a *Annotator) Annotate(set *clinvar.ClinVarSet) error {
	rec := set.RCV
	rcvNode, err := set.Node.FindMandatory("./ReferenceClinVarAssertion")
	if err != nil {
		return err
	}

	a.Overall.Inc("total")
	if rec.Measure != nil {
		a.Overall.Inc("has_supported_measure")
		if err := a.annotateMeasure(rcvNode, rec); err != nil {
			return err
		}
	}
	if len(rec.TraitsWithValidNames()) > 0 {
		a.Overall.Inc("has_supported_trait")
		if err := a.annotateTraits(rcvNode, rec); err != nil {
			return err
		}
		if rec.Measure != nil {
			a.Overall.Inc("both_measure_and_trait")
		}
	}
	return nil
}

func (a *Annotator) annotateMeasure(rcvNode *clinvar.Node, rec *clinvar.ReferenceRecord) error {
	measureSet, err := rcvNode.FindMandatory(`./MeasureSet[@Type="Variant"]`)
	if err != nil {
		return err
	}
	mn, err := measureSet.FindMandatory("./Measure")
	if err != nil {
		return err
	}

	consequences, category := a.store.Lookup(rec.Accession, rec.Measure, a.logger)
	genes := make(map[string]bool)
	terms := make(map[string]bool)
	for _, c := range consequences {
		set := clinvar.NewElement("AttributeSet", "providedBy", Processor)
		attr := clinvar.NewElement("Attribute", "Type", "MolecularConsequence")
		attr.Text = c.Term.Label()
		set.Append(attr,
			clinvar.NewElement("XRef", "ID", c.Term.CURIE(), "DB", "Sequence Ontology"),
			clinvar.NewElement("XRef", "ID", c.GeneID, "DB", "Ensembl"))
		mn.Append(set)

		if c.GeneID != "" {
			genes[c.GeneID] = true
		}
		if id := c.Term.CURIE(); id != "" {
			terms[id] = true
		}
	}

	if a.eval == nil {
		return nil
	}
	existing := a.eval.Genes[rec.Accession]
	annotatedGenes, annotatedTerms := sortedKeys(genes), sortedKeys(terms)
	a.Genes.CountAndScore(existing, annotatedGenes)
	a.Consequences.CountAndScore(rec.Measure.ExistingSOTerms, annotatedTerms)
	if cm, ok := a.ByCategory[category]; ok {
		cm.Genes.CountAndScore(existing, annotatedGenes)
		cm.Consequences.CountAndScore(rec.Measure.ExistingSOTerms, annotatedTerms)
	}
	return nil
}

func (a *Annotator) annotateTraits(rcvNode *clinvar.Node, rec *clinvar.ReferenceRecord) error {
	traitNodes := rcvNode.FindAll("./TraitSet/Trait")
	if len(traitNodes) != len(rec.Traits) {
		return fmt.Errorf("%s: found %d trait elements for %d traits", rec.Accession, len(traitNodes), len(rec.Traits))
	}
	for i, t := range rec.Traits {
		name := t.PreferredOrOtherValidName()
		if name == "" {
			continue
		}
		existing := make(map[string]bool)
		for _, x := range t.CurrentEFOAlignedXRefs() {
			if curie, ok := ontology.XRefCURIE(x.ID, x.DB); ok {
				existing[curie] = true
			}
		}

		// Only the preferred name is looked up.
		var ids []string
		for _, term := range a.mapping.Lookup(name) {
			id := ontology.FormatID(term.ID)
			ids = append(ids, id)
			traitNodes[i].Append(clinvar.NewElement("XRef",
				"ID", id, "DB", "EFO", "Status", "annotated", "providedBy", Processor))
		}

		if a.eval != nil {
			if err := a.evaluateTrait(rec.Accession, existing, ids); err != nil {
				return err
			}
		}
	}
	return nil
}

func (a *Annotator) evaluateTrait(accession string, existing map[string]bool, ids []string) error {
	current := make(map[string]bool)
	for cvID := range existing {
		a.Obsolete.Inc("cv_total")
		st := a.eval.XRefs[cvID]
		if st.Obsolete {
			a.Obsolete.Inc("cv_obsolete")
		} else if len(st.Synonyms) > 0 {
			// Only terms known to the current ontology are compared.
			current[cvID] = true
		}
	}

	annotated := make(map[string]bool)
	for _, id := range ids {
		a.Obsolete.Inc("cmat_total")
		latest := a.eval.Latest[id]
		if latest.Obsolete {
			a.Obsolete.Inc("cmat_obsolete")
			continue
		}
		// A synonym in either direction stands in for the ClinVar term.
		for cvID := range current {
			if a.eval.XRefs[cvID].Synonyms[id] || latest.Synonyms[cvID] {
				annotated[cvID] = true
			}
		}
		if len(annotated) == 0 {
			annotated[id] = true
		}
	}

	cv, cmat := sortedKeys(current), sortedKeys(annotated)
	a.Traits.CountAndScore(cv, cmat)
	if a.mismatches == nil || len(cv) == 0 || len(cmat) == 0 {
		return nil
	}
	for _, id := range cmat {
		if current[id] {
			return nil
		}
	}
	_, err := fmt.Fprintf(a.mismatches, "%s\t%s\t%s\n", accession, strings.Join(cv, ","), strings.Join(cmat, ","))
	return err
}

// Run annotates every set from src and writes it to dst, after a header
// tagged with ProcessedBy. Sets that cannot be interpreted are written
// unchanged; sets from excluded submissions are dropped.
func (a *Annotator) Run(ctx context.Context, src Source, dst Sink) error {
	h := &clinvar.ReleaseHeader{Attrs: append([]clinvar.Attr(nil), src.Header().Attrs...), XSDVersion: src.Header().XSDVersion}
	h.Set("ProcessedBy", Processor)
	if err := dst.WriteHeader(h); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if a.eval != nil && a.mismatches != nil {
		if _, err := io.WriteString(a.mismatches, "RCV\tCV\tCMAT\n"); err != nil {
			return err
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := src.NextNode()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}

		set, err := clinvar.ParseSet(n, h.XSDVersion, a.logger)
		var recErr *clinvar.RecordError
		switch {
		case errors.As(err, &recErr):
			a.logger.Error("problem annotating record", zap.String("accession", recErr.Accession), zap.Error(recErr.Err))
		case err != nil:
			a.logger.Error("problem annotating record", zap.Error(err))
		case !clinvar.FilterBySubmissionName(set):
			a.logger.Debug("skipping excluded submission", zap.String("accession", set.RCV.Accession))
			continue
		default:
			if err := a.Annotate(set); err != nil {
				return fmt.Errorf("annotate %s: %w", set.RCV.Accession, err)
			}
		}
		if err := dst.WriteSet(n); err != nil {
			return fmt.Errorf("write set: %w", err)
		}
	}

	a.Genes.Finalise()
	a.Consequences.Finalise()
	a.Traits.Finalise()
	for _, cm := range a.ByCategory {
		cm.Genes.Finalise()
		cm.Consequences.Finalise()
	}
	return nil
}

// Report writes the overall counts and, when evaluating, every metric table.
func (a *Annotator) Report(w io.Writer) error {
	pw := &printer{w: w}
	pw.printf("\nOverall counts (RCVs):\n")
	pw.counter(a.Overall)
	if a.eval != nil {
		pw.printf("\nGene annotations:\n")
		pw.metrics(a.Genes)
		pw.printf("\nFunctional consequences:\n")
		pw.metrics(a.Consequences)

		pw.printf("\nBy variant type:\n")
		for _, c := range []struct {
			name     string
			category consequence.Category
		}{{"Simple", consequence.Simple}, {"Repeat", consequence.Repeat}, {"Complex", consequence.Complex}} {
			cm := a.ByCategory[c.category]
			pw.printf("\n\t%s (genes):\n", c.name)
			pw.metrics(cm.Genes)
			pw.printf("\n\t%s (consequences):\n", c.name)
			pw.metrics(cm.Consequences)
		}

		pw.printf("\nTrait mappings:\n")
		pw.metrics(a.Traits)
		pw.printf("\nObsolete terms:\n")
		pw.counter(a.Obsolete)
	}
	pw.printf("\n")
	return pw.err
}

// printer remembers the first write error.
type printer struct {
	w   io.Writer
	err error
}

func (p *printer) printf(format string, args ...any) {
	if p.err == nil {
		_, p.err = fmt.Fprintf(p.w, format, args...)
	}
}

func (p *printer) counter(c *Counter) {
	if p.err == nil {
		p.err = c.Print(p.w)
	}
}

func (p *printer) metrics(m *SetMetrics) {
	if p.err == nil {
		p.err = m.Report(p.w)
	}
}

// Counter is a set of named counts that prints in insertion order.
type Counter struct {
	names  []string
	counts map[string]int
}

// NewCounter creates a counter with the given names at zero.
func NewCounter(names ...string) *Counter {
	c := &Counter{counts: make(map[string]int)}
	for _, n := range names {
		c.names = append(c.names, n)
		c.counts[n] = 0
	}
	return c
}

// Inc adds one to name.
func (c *Counter) Inc(name string) {
	if _, ok := c.counts[name]; !ok {
		c.names = append(c.names, name)
	}
	c.counts[name]++
}

// Get returns the count of name.
func (c *Counter) Get(name string) int { return c.counts[name] }

// Print writes one "name count" line per entry with names left-aligned.
func (c *Counter) Print(w io.Writer) error {
	width := 0
	for _, n := range c.names {
		width = max(width, len(n))
	}
	for _, n := range c.names {
		if _, err := fmt.Fprintf(w, "%-*s %d\n", width, n, c.counts[n]); err != nil {
			return err
		}
	}
	return nil
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
