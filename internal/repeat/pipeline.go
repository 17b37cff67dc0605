package repeat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"go.uber.org/zap"

	"github.com/ebivariation/cmat/internal/biomart"
	"github.com/ebivariation/cmat/internal/clinvar"
	"github.com/ebivariation/cmat/internal/output"
)

// StandardChromosomes are the chromosome names accepted in the output.
var StandardChromosomes = func() map[string]bool {
	m := map[string]bool{"X": true, "Y": true, "M": true, "MT": true}
	for i := 1; i <= 22; i++ {
		m[fmt.Sprint(i)] = true
	}
	return m
}()

// ErrAmbiguousRepeatType is returned when one (RCV, gene[, transcript])
// combination ends up with more than one repeat type.
var ErrAmbiguousRepeatType = errors.New("multiple (RCV, gene) to repeat type mappings")

// Variant is one row of the repeat expansion table: a candidate record and
// gene symbol, later annotated with its Ensembl gene.
type Variant struct {
	Name                  string `csv:"Name"`
	RCVAccession          string `csv:"RCVaccession"`
	GeneSymbol            string `csv:"GeneSymbol"`
	HGNCID                string `csv:"HGNC_ID"`
	TranscriptID          string `csv:"TranscriptID"`
	EnsemblGeneID         string `csv:"EnsemblGeneID"`
	EnsemblGeneName       string `csv:"EnsemblGeneName"`
	EnsemblChromosomeName string `csv:"EnsemblChromosomeName"`
	GeneAnnotationSource  string `csv:"GeneAnnotationSource"`
	RepeatType            string `csv:"RepeatType"`
	RecordIsComplete      bool   `csv:"RecordIsComplete"`
	EnsemblTranscriptID   string `csv:"-"`
}

// Stats counts microsatellite records per category.
type Stats map[clinvar.MicrosatelliteCategory]int

// Candidates is the number of repeat expansion candidates seen.
func (s Stats) Candidates() int {
	return s[clinvar.MSRepeatExpansion] + s[clinvar.MSNoCompleteCoords]
}

// Total is the number of microsatellite records seen.
func (s Stats) Total() int {
	var n int
	for _, v := range s {
		n += v
	}
	return n
}

// GeneResolver maps gene identifiers to Ensembl genes; *biomart.Resolver implements it.
type GeneResolver interface {
	Resolve(ctx context.Context, queries []biomart.GeneQuery, includeTranscripts bool) ([]biomart.GeneAnnotation, error)
	GeneInfo(ctx context.Context, geneIDs []string) (map[string]biomart.GeneInfo, error)
}

// Pipeline extracts repeat expansion consequences from a ClinVar release.
type Pipeline struct {
	resolver           GeneResolver
	includeTranscripts bool
	logger             *zap.Logger
}

// NewPipeline creates a pipeline resolving genes through resolver.
func NewPipeline(resolver GeneResolver, includeTranscripts bool) *Pipeline {
	return &Pipeline{resolver: resolver, includeTranscripts: includeTranscripts, logger: zap.NewNop()}
}

// SetLogger sets the logger for progress and statistics.
func (p *Pipeline) SetLogger(logger *zap.Logger) { p.logger = logger }

// Load reads every set from src and returns one Variant per repeat
// expansion candidate and gene symbol, deduplicated and sorted by name.
// Sets that fail to parse are logged and skipped.
func (p *Pipeline) Load(src clinvar.SetSource) ([]Variant, Stats, error) {
	stats := make(Stats)
	seen := make(map[Variant]bool)
	var variants []Variant

	records := 0
	for {
		set, err := src.Next()
		if err == io.EOF {
			break
		}
		var recErr *clinvar.RecordError
		if errors.As(err, &recErr) {
			p.logger.Error("skipping record", zap.String("accession", recErr.Accession), zap.Error(recErr.Err))
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		if records > 0 && records%100000 == 0 {
			p.logger.Info("loading clinvar records", zap.Int("records", records), zap.Int("candidates", stats.Candidates()))
		}
		records++

		m := set.RCV.Measure
		if m == nil {
			continue
		}
		if cat := m.MicrosatelliteCategory(); cat != clinvar.NotMicrosatellite {
			stats[cat]++
		}
		if !m.IsRepeatExpansionVariant() {
			continue
		}

		symbols := m.PreferredGeneSymbols
		if len(symbols) == 0 {
			symbols = []string{"-"}
		}
		hgncID := "-"
		if len(m.HGNCIDs) == 1 && len(symbols) == 1 {
			hgncID = m.HGNCIDs[0]
		}
		repeatType, transcriptID := Classify(m, p.logger)

		for _, symbol := range symbols {
			v := Variant{
				Name:         m.PreferredOrOtherName(),
				RCVAccession: set.RCV.Accession,
				GeneSymbol:   symbol,
				HGNCID:       hgncID,
				TranscriptID: transcriptID,
				RepeatType:   repeatType,
			}
			if seen[v] {
				continue
			}
			seen[v] = true
			variants = append(variants, v)
		}
	}
	p.logger.Info("loaded clinvar records", zap.Int("records", records), zap.Int("candidates", stats.Candidates()))

	sort.SliceStable(variants, func(i, j int) bool { return variants[i].Name < variants[j].Name })
	return variants, stats, nil
}

// LogStats logs the microsatellite breakdown.
func (p *Pipeline) LogStats(s Stats) {
	p.logger.Info("microsatellite records",
		zap.Int("total", s.Total()),
		zap.Int("with_complete_coordinates", s[clinvar.MSDeletion]+s[clinvar.MSShortExpansion]+s[clinvar.MSRepeatExpansion]),
		zap.Int("deletions", s[clinvar.MSDeletion]),
		zap.Int("short_insertions", s[clinvar.MSShortExpansion]),
		zap.Int("repeat_expansions", s[clinvar.MSRepeatExpansion]),
		zap.Int("no_complete_coordinates", s[clinvar.MSNoCompleteCoords]))
}

// Annotate attaches Ensembl genes to variants. A variant mapping to several
// genes is repeated once per gene; unresolved variants are kept without a
// gene. Every row then gets RecordIsComplete.
func (p *Pipeline) Annotate(ctx context.Context, variants []Variant) ([]Variant, error) {
	queries := make([]biomart.GeneQuery, len(variants))
	for i, v := range variants {
		queries[i] = biomart.GeneQuery{HGNCID: v.HGNCID, GeneSymbol: v.GeneSymbol, TranscriptID: v.TranscriptID}
	}
	annotations, err := p.resolver.Resolve(ctx, queries, p.includeTranscripts)
	if err != nil {
		return nil, err
	}

	byIndex := make(map[int][]biomart.GeneAnnotation)
	var geneIDs []string
	for _, a := range annotations {
		byIndex[a.Index] = append(byIndex[a.Index], a)
		geneIDs = append(geneIDs, a.EnsemblGeneID)
	}
	info, err := p.resolver.GeneInfo(ctx, geneIDs)
	if err != nil {
		return nil, err
	}

	var out []Variant
	for i, v := range variants {
		found := byIndex[i]
		if len(found) == 0 {
			v.RecordIsComplete = p.isComplete(v)
			out = append(out, v)
			continue
		}
		for _, a := range found {
			av := v
			av.EnsemblGeneID = a.EnsemblGeneID
			av.EnsemblTranscriptID = a.EnsemblTranscriptID
			av.GeneAnnotationSource = a.Source
			if gi, ok := info[a.EnsemblGeneID]; ok {
				av.EnsemblGeneName = gi.Name
				av.EnsemblChromosomeName = gi.Chromosome
			}
			av.RecordIsComplete = p.isComplete(av)
			out = append(out, av)
		}
	}
	return out, nil
}

func (p *Pipeline) isComplete(v Variant) bool {
	return v.EnsemblGeneID != "" &&
		v.EnsemblGeneName != "" &&
		v.RepeatType != "" &&
		(!p.includeTranscripts || v.EnsemblTranscriptID != "") &&
		StandardChromosomes[v.EnsemblChromosomeName]
}

type consequenceKey struct {
	rcv, geneID, geneName, transcriptID string
}

// Consequences builds the consequence table from complete variants, sorted
// by repeat type, RCV and gene. It fails if a combination of RCV and gene
// (and transcript, when included) has more than one repeat type.
func (p *Pipeline) Consequences(variants []Variant) ([]output.ConsequenceRow, error) {
	types := make(map[consequenceKey]string)
	var keys []consequenceKey
	for _, v := range variants {
		if !v.RecordIsComplete {
			continue
		}
		k := consequenceKey{v.RCVAccession, v.EnsemblGeneID, v.EnsemblGeneName, ""}
		if p.includeTranscripts {
			k.transcriptID = v.EnsemblTranscriptID
		}
		if prev, ok := types[k]; ok {
			if prev != v.RepeatType {
				return nil, fmt.Errorf("%w: %s %s: %s, %s", ErrAmbiguousRepeatType, k.rcv, k.geneID, prev, v.RepeatType)
			}
			continue
		}
		types[k] = v.RepeatType
		keys = append(keys, k)
	}

	rows := make([]output.ConsequenceRow, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, output.ConsequenceRow{
			Key:          k.rcv,
			GeneID:       k.geneID,
			GeneSymbol:   k.geneName,
			SOTerm:       types[k],
			TranscriptID: k.transcriptID,
		})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.SOTerm != b.SOTerm {
			return a.SOTerm < b.SOTerm
		}
		if a.Key != b.Key {
			return a.Key < b.Key
		}
		return a.GeneID < b.GeneID
	})
	return rows, nil
}

// Run loads, annotates and tabulates repeat expansions from src. It returns
// the annotated variants (for the optional full dump) and consequence rows.
func (p *Pipeline) Run(ctx context.Context, src clinvar.SetSource) ([]Variant, []output.ConsequenceRow, error) {
	variants, stats, err := p.Load(src)
	if err != nil {
		return nil, nil, err
	}
	p.LogStats(stats)
	if len(variants) == 0 {
		p.logger.Info("no variants to process")
		return nil, nil, nil
	}

	p.logger.Info("matching records to ensembl genes", zap.Int("variants", len(variants)))
	variants, err = p.Annotate(ctx, variants)
	if err != nil {
		return nil, nil, err
	}
	rows, err := p.Consequences(variants)
	if err != nil {
		return nil, nil, err
	}

	var tri, str int
	for _, r := range rows {
		switch r.SOTerm {
		case Trinucleotide:
			tri++
		case ShortTandem:
			str++
		}
	}
	p.logger.Info("generated repeat expansion consequences",
		zap.Int("total", len(rows)), zap.Int("trinucleotide", tri), zap.Int("short_tandem", str))
	return variants, rows, nil
}
