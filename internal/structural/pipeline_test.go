package structural

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ebivariation/cmat/internal/clinvar"
	"github.com/ebivariation/cmat/internal/hgvs"
	"github.com/ebivariation/cmat/internal/output"
	"github.com/ebivariation/cmat/internal/vep"
)

const rhdDeletion = "NC_000001.11:g.25271785_25329047del"

type sliceSource struct {
	sets []*clinvar.ClinVarSet
}

func (s *sliceSource) Next() (*clinvar.ClinVarSet, error) {
	if len(s.sets) == 0 {
		return nil, io.EOF
	}
	set := s.sets[0]
	s.sets = s.sets[1:]
	return set, nil
}

func measureWithHGVS(text string) *clinvar.Measure {
	return &clinvar.Measure{
		Type: "Deletion",
		HGVS: []clinvar.HGVSEntry{{
			Variant: hgvs.Parse(text),
			Types:   map[string]bool{"hgvs": true, "genomic": true, "top level": true},
		}},
	}
}

func set(m *clinvar.Measure) *clinvar.ClinVarSet {
	return &clinvar.ClinVarSet{RCV: &clinvar.ReferenceRecord{Record: clinvar.Record{Measure: m}}}
}

type fakePredictor struct {
	results map[string]vep.Result
	queried []string
}

func (f *fakePredictor) QueryBatches(_ context.Context, variants []string) ([]vep.Result, error) {
	f.queried = append(f.queried, variants...)
	var out []vep.Result
	for _, v := range variants {
		if r, ok := f.results[v]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakePredictor) SeverityRanking(context.Context) (vep.Ranking, error) {
	return vep.Ranking{"stop_lost": 0, "missense_variant": 1, "intron_variant": 2}, nil
}

func TestEligible(t *testing.T) {
	assert.True(t, Eligible(measureWithHGVS(rhdDeletion)))
	assert.False(t, Eligible(nil))
	assert.False(t, Eligible(&clinvar.Measure{Type: "Deletion"}))

	complete := measureWithHGVS(rhdDeletion)
	complete.Location = &clinvar.SequenceLocation{Chr: "1", Pos: "25271785", Ref: "AC", Alt: "A"}
	assert.False(t, Eligible(complete))
}

func TestRunStructuralDeletion(t *testing.T) {
	input := "NC_000001.11 25271785 25329047 DEL + " + rhdDeletion
	predictor := &fakePredictor{results: map[string]vep.Result{
		input: {
			Input: input,
			TranscriptConsequences: []vep.TranscriptConsequence{
				{GeneID: "ENSG00000117616", GeneSymbol: "RSRP1", Biotype: "protein_coding", ConsequenceTerms: []string{"intron_variant"}, TranscriptID: "ENST00000243189"},
				{GeneID: "ENSG00000187010", GeneSymbol: "RHD", Biotype: "protein_coding", ConsequenceTerms: []string{"stop_lost"}, TranscriptID: "ENST00000328664"},
			},
		},
	}}

	src := &sliceSource{sets: []*clinvar.ClinVarSet{
		set(measureWithHGVS(rhdDeletion)),
		set(measureWithHGVS(rhdDeletion)),
		set(measureWithHGVS("NC_000001.11:g.100A>G")),
		set(&clinvar.Measure{Type: "Deletion"}),
	}}

	rows, err := NewPipeline(predictor, false).Run(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, []string{input}, predictor.queried)
	assert.Equal(t, []output.ConsequenceRow{
		{Key: rhdDeletion, GeneID: "ENSG00000117616", GeneSymbol: "RSRP1", SOTerm: "intron_variant"},
		{Key: rhdDeletion, GeneID: "ENSG00000187010", GeneSymbol: "RHD", SOTerm: "stop_lost"},
	}, rows)
}

func TestRunWithTranscripts(t *testing.T) {
	input := "NC_000001.11 25271785 25329047 DEL + " + rhdDeletion
	predictor := &fakePredictor{results: map[string]vep.Result{
		input: {
			Input: input,
			TranscriptConsequences: []vep.TranscriptConsequence{
				{GeneID: "ENSG00000187010", GeneSymbol: "RHD", Biotype: "protein_coding", ConsequenceTerms: []string{"stop_lost"}, TranscriptID: "ENST00000328664"},
			},
		},
	}}
	rows, err := NewPipeline(predictor, true).Run(context.Background(), &sliceSource{sets: []*clinvar.ClinVarSet{set(measureWithHGVS(rhdDeletion))}})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "ENST00000328664", rows[0].TranscriptID)
}

func TestRunNothingEligible(t *testing.T) {
	predictor := &fakePredictor{}
	rows, err := NewPipeline(predictor, false).Run(context.Background(), &sliceSource{})
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.Empty(t, predictor.queried)
}
