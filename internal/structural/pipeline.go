// Package structural predicts consequences for ClinVar variants that lack
// complete VCF coordinates by sending their HGVS, in region notation, to VEP.
package structural

import (
	"context"
	"errors"
	"io"

	"go.uber.org/zap"

	"github.com/ebivariation/cmat/internal/clinvar"
	"github.com/ebivariation/cmat/internal/output"
	"github.com/ebivariation/cmat/internal/vep"
)

// Predictor runs VEP; *vep.Client implements it.
type Predictor interface {
	QueryBatches(ctx context.Context, variants []string) ([]vep.Result, error)
	SeverityRanking(ctx context.Context) (vep.Ranking, error)
}

// Pipeline derives consequences for structural variants.
type Pipeline struct {
	predictor          Predictor
	includeTranscripts bool
	logger             *zap.Logger
}

// NewPipeline creates a pipeline querying predictor.
func NewPipeline(predictor Predictor, includeTranscripts bool) *Pipeline {
	return &Pipeline{predictor: predictor, includeTranscripts: includeTranscripts, logger: zap.NewNop()}
}

// SetLogger sets the logger.
func (p *Pipeline) SetLogger(logger *zap.Logger) { p.logger = logger }

// Eligible reports whether m should go through VEP: it has a preferred
// current HGVS and no complete coordinates.
func Eligible(m *clinvar.Measure) bool {
	return m != nil && !m.HasCompleteCoordinates() && m.PreferredCurrentHGVS() != nil
}

// Identifiers collects the distinct VEP region identifiers of eligible
// measures in src, in first-seen order.
func (p *Pipeline) Identifiers(src clinvar.SetSource) ([]string, error) {
	seen := make(map[string]bool)
	var ids []string
	var eligible int
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
			return nil, err
		}
		m := set.RCV.Measure
		if !Eligible(m) {
			continue
		}
		eligible++
		id, ok := vep.RegionIdentifier(m.PreferredCurrentHGVS())
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	p.logger.Info("collected structural variants",
		zap.Int("eligible", eligible), zap.Int("vep_identifiers", len(ids)))
	return ids, nil
}

// Run queries VEP for every eligible variant in src and returns one row per
// selected consequence, keyed by the variant's HGVS.
func (p *Pipeline) Run(ctx context.Context, src clinvar.SetSource) ([]output.ConsequenceRow, error) {
	ids, err := p.Identifiers(src)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	ranking, err := p.predictor.SeverityRanking(ctx)
	if err != nil {
		return nil, err
	}
	results, err := p.predictor.QueryBatches(ctx, ids)
	if err != nil {
		return nil, err
	}

	extractor := vep.Extractor{Ranking: ranking, IncludeTranscripts: p.includeTranscripts}
	consequences := extractor.Extract(results)

	rows := make([]output.ConsequenceRow, 0, len(consequences))
	for _, c := range consequences {
		rows = append(rows, output.ConsequenceRow{
			Key:          vep.IdentifierHGVS(c.Input),
			GeneID:       c.GeneID,
			GeneSymbol:   c.GeneSymbol,
			SOTerm:       c.Term,
			TranscriptID: c.TranscriptID,
		})
	}
	p.logger.Info("generated structural variant consequences",
		zap.Int("results", len(results)), zap.Int("consequences", len(rows)))
	return rows, nil
}
