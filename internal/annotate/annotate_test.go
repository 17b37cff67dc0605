package annotate

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/klauspost/pgzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ebivariation/cmat/internal/clinvar"
	"github.com/ebivariation/cmat/internal/consequence"
	"github.com/ebivariation/cmat/internal/ontology"
)

const release = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<ReleaseSet Dated="2024-04-15" Type="full">
<ClinVarSet ID="1">
  <RecordStatus>current</RecordStatus>
  <ReferenceClinVarAssertion DateCreated="2017-01-25" DateLastUpdated="2024-04-15" ID="100">
    <ClinVarAccession Acc="RCV000000100" Type="RCV"/>
    <Classifications>
      <GermlineClassification>
        <ReviewStatus>criteria provided, single submitter</ReviewStatus>
        <Description>Pathogenic</Description>
      </GermlineClassification>
    </Classifications>
    <MeasureSet Type="Variant" Acc="VCV000000100">
      <Measure Type="single nucleotide variant" ID="1">
        <AttributeSet>
          <Attribute Type="MolecularConsequence">missense variant</Attribute>
          <XRef ID="SO:0001583" DB="Sequence Ontology"/>
        </AttributeSet>
        <SequenceLocation Assembly="GRCh38" Chr="1" positionVCF="100" referenceAlleleVCF="A" alternateAlleleVCF="G"/>
      </Measure>
    </MeasureSet>
    <TraitSet Type="Disease">
      <Trait Type="Disease">
        <Name>
          <ElementValue Type="Preferred">Familial disease</ElementValue>
        </Name>
        <XRef ID="MONDO:0000001" DB="MONDO"/>
      </Trait>
    </TraitSet>
  </ReferenceClinVarAssertion>
  <ClinVarAssertion ID="200">
    <ClinVarSubmissionID submitter="Lab A" submitterDate="2019-01-01"/>
    <ClinVarAccession Acc="SCV000000100" Type="SCV"/>
  </ClinVarAssertion>
</ClinVarSet>
<ClinVarSet ID="2">
  <ReferenceClinVarAssertion DateCreated="2017-01-25" DateLastUpdated="2024-04-15" ID="101">
    <ClinVarAccession Acc="RCV000000101" Type="RCV"/>
    <Classifications/>
  </ReferenceClinVarAssertion>
  <ClinVarAssertion ID="201" SubmissionName="SUB14299258">
    <ClinVarSubmissionID submitter="Lab B" submitterDate="2019-01-01"/>
    <ClinVarAccession Acc="SCV000000101" Type="SCV"/>
  </ClinVarAssertion>
</ClinVarSet>
<ClinVarSet ID="3">
  <ReferenceClinVarAssertion DateCreated="2017-01-25" DateLastUpdated="2024-04-15" ID="102">
    <ClinVarAccession Acc="RCV000000102" Type="RCV"/>
  </ReferenceClinVarAssertion>
</ClinVarSet>
</ReleaseSet>
`

func testAnnotator() *Annotator {
	mapping := ontology.NewMapping()
	mapping.Add("Familial disease", ontology.Term{ID: "http://purl.obolibrary.org/obo/MONDO_0000002", Label: "familial disease"})
	catalog := consequence.NewCatalog(map[string]string{"missense_variant": "SO_0001583"}, nil)
	store := consequence.NewStore(catalog)
	store.Add("1:100:A:G", "ENSG00000000001", "missense_variant", "")
	return NewAnnotator(mapping, store)
}

// annotateRelease runs a over the test release and reads the output back.
func annotateRelease(t *testing.T, a *Annotator) (*clinvar.Reader, int) {
	t.Helper()
	src, err := clinvar.NewReader(strings.NewReader(release))
	require.NoError(t, err)
	var buf bytes.Buffer
	w := clinvar.NewWriter(&buf)
	require.NoError(t, a.Run(context.Background(), src, w))
	require.NoError(t, w.Close())

	gz, err := pgzip.NewReader(&buf)
	require.NoError(t, err)
	out, err := clinvar.NewReader(gz)
	require.NoError(t, err)
	return out, w.Count()
}

func TestRunAnnotatesRelease(t *testing.T) {
	a := testAnnotator()
	out, written := annotateRelease(t, a)
	// The excluded submission is dropped, the broken set passes through.
	assert.Equal(t, 2, written)

	processedBy, _ := out.Header().Attr("ProcessedBy")
	assert.Equal(t, Processor, processedBy)
	_, ok := out.Header().Attr("LastProcessed")
	assert.True(t, ok)

	n, err := out.NextNode()
	require.NoError(t, err)
	set, err := clinvar.ParseSet(n, out.Header().XSDVersion, nil)
	require.NoError(t, err)
	assert.Equal(t, "RCV000000100", set.RCV.Accession)

	// Added attribute sets are not mistaken for ClinVar's own terms.
	assert.Equal(t, []string{"SO:0001583"}, set.RCV.Measure.ExistingSOTerms)
	added := n.FindAll(`./ReferenceClinVarAssertion/MeasureSet/Measure/AttributeSet[@providedBy="CMAT"]`)
	require.Len(t, added, 1)
	assert.Equal(t, []string{"missense variant"}, added[0].Texts(`./Attribute[@Type="MolecularConsequence"]`))
	so, err := added[0].FindMandatory(`./XRef[@DB="Sequence Ontology"]`)
	require.NoError(t, err)
	assert.Equal(t, "SO:0001583", so.AttrOr("ID", ""))
	gene, err := added[0].FindMandatory(`./XRef[@DB="Ensembl"]`)
	require.NoError(t, err)
	assert.Equal(t, "ENSG00000000001", gene.AttrOr("ID", ""))

	trait := set.RCV.Traits[0]
	assert.Contains(t, trait.XRefs, clinvar.XRef{DB: "EFO", ID: "MONDO:0000002", Status: "annotated"})
	assert.Equal(t, []clinvar.XRef{{DB: "MONDO", ID: "MONDO:0000001", Status: "current"}}, trait.CurrentEFOAlignedXRefs())

	n, err = out.NextNode()
	require.NoError(t, err)
	assert.Equal(t, "3", n.AttrOr("ID", ""))
	_, err = out.NextNode()
	assert.ErrorIs(t, err, io.EOF)

	assert.Equal(t, 1, a.Overall.Get("total"))
	assert.Equal(t, 1, a.Overall.Get("has_supported_measure"))
	assert.Equal(t, 1, a.Overall.Get("has_supported_trait"))
	assert.Equal(t, 1, a.Overall.Get("both_measure_and_trait"))
}

func TestRunWithEvaluation(t *testing.T) {
	cvTerm := TermStatus{Synonyms: map[string]bool{"MONDO:0000001": true}}

	t.Run("mismatch", func(t *testing.T) {
		a := testAnnotator()
		var mismatches bytes.Buffer
		a.SetEvaluation(&Evaluation{
			Genes:  map[string][]string{"RCV000000100": {"ENSG00000000001"}},
			XRefs:  map[string]TermStatus{"MONDO:0000001": cvTerm},
			Latest: map[string]TermStatus{"MONDO:0000002": {}},
		}, &mismatches)
		annotateRelease(t, a)

		assert.Equal(t, 1, a.Genes.Counts[ExactMatch])
		assert.Equal(t, 1, a.Consequences.Counts[ExactMatch])
		assert.Equal(t, 1, a.ByCategory[consequence.Simple].Genes.Counts[ExactMatch])
		assert.Equal(t, 0, a.ByCategory[consequence.Repeat].Genes.Total())
		assert.Equal(t, 1, a.Traits.Counts[Mismatch])
		assert.Equal(t, 1, a.Obsolete.Get("cv_total"))
		assert.Equal(t, 1, a.Obsolete.Get("cmat_total"))
		assert.Equal(t, "RCV\tCV\tCMAT\nRCV000000100\tMONDO:0000001\tMONDO:0000002\n", mismatches.String())
	})

	t.Run("synonym", func(t *testing.T) {
		a := testAnnotator()
		var mismatches bytes.Buffer
		a.SetEvaluation(&Evaluation{
			XRefs:  map[string]TermStatus{"MONDO:0000001": cvTerm},
			Latest: map[string]TermStatus{"MONDO:0000002": {Synonyms: map[string]bool{"MONDO:0000001": true}}},
		}, &mismatches)
		annotateRelease(t, a)

		assert.Equal(t, 1, a.Traits.Counts[ExactMatch])
		assert.Equal(t, 1, a.Genes.Counts[CVMissing])
		assert.Equal(t, "RCV\tCV\tCMAT\n", mismatches.String())
	})

	t.Run("obsolete", func(t *testing.T) {
		a := testAnnotator()
		a.SetEvaluation(&Evaluation{
			XRefs:  map[string]TermStatus{"MONDO:0000001": {Obsolete: true}},
			Latest: map[string]TermStatus{"MONDO:0000002": {Obsolete: true}},
		}, nil)
		annotateRelease(t, a)

		assert.Equal(t, 1, a.Obsolete.Get("cv_obsolete"))
		assert.Equal(t, 1, a.Obsolete.Get("cmat_obsolete"))
		assert.Equal(t, 1, a.Traits.Counts[BothMissing])
	})
}

func TestReport(t *testing.T) {
	a := testAnnotator()
	annotateRelease(t, a)

	var buf bytes.Buffer
	require.NoError(t, a.Report(&buf))
	assert.Equal(t, "\nOverall counts (RCVs):\n"+
		"total                  1\n"+
		"has_supported_measure  1\n"+
		"has_supported_trait    1\n"+
		"both_measure_and_trait 1\n\n", buf.String())
}

func TestSetMetrics(t *testing.T) {
	tests := []struct {
		name     string
		cv, cmat []string
		category string
		score    float64
	}{
		{"exact", []string{"a", "b"}, []string{"b", "a"}, ExactMatch, 1},
		{"superset", []string{"a"}, []string{"a", "b"}, CMATSuperset, 2.0 / 3},
		{"subset", []string{"a", "b"}, []string{"a"}, CMATSubset, 2.0 / 3},
		{"divergent", []string{"a", "b"}, []string{"a", "c"}, DivergentMatch, 0.5},
		{"mismatch", []string{"a"}, []string{"b"}, Mismatch, 0},
		{"cv missing", nil, []string{"a"}, CVMissing, 0},
		{"cmat missing", []string{"a"}, nil, CMATMissing, 0},
		{"both missing", nil, nil, BothMissing, 0},
	}
	all := NewSetMetrics()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewSetMetrics()
			m.CountAndScore(tt.cv, tt.cmat)
			assert.Equal(t, 1, m.Counts[tt.category])
			assert.Equal(t, 1, m.Total())
			assert.InDelta(t, tt.score, m.Scores[tt.category], 1e-9)
		})
		all.CountAndScore(tt.cv, tt.cmat)
	}

	all.Finalise()
	assert.Equal(t, 4, all.MatchCount)
	assert.InDelta(t, (1+2.0/3+2.0/3+0.5)/4, all.MatchScore, 1e-9)
	assert.Equal(t, 5, all.BothPresentCount)
	assert.InDelta(t, (1+2.0/3+2.0/3+0.5)/5, all.BothPresentScore, 1e-9)
	assert.InDelta(t, 2.0/3, all.Scores[CMATSuperset], 1e-9)
}

func TestSetMetricsReport(t *testing.T) {
	m := NewSetMetrics()
	m.CountAndScore([]string{"a"}, []string{"a"})
	m.Finalise()

	var buf bytes.Buffer
	require.NoError(t, m.Report(&buf))
	lines := strings.Split(buf.String(), "\n")
	require.Len(t, lines, 13)
	assert.Equal(t, "Total = 1", lines[0])
	assert.Equal(t, " "+"       Category"+"  "+"Count"+"  "+"Percent"+"  "+"F1 Score"+" ", lines[1])
	assert.Equal(t, " "+"    exact_match"+"  "+"    1"+"  "+" 100.0%"+"  "+"    1.00"+" ", lines[2])
	assert.Equal(t, " "+"       mismatch"+"  "+"    0"+"  "+"   0.0%"+"  "+"    0.00"+" ", lines[6])
	assert.Equal(t, " "+"-->both_present"+"  "+"    1"+"  "+" 100.0%"+"  "+"    1.00"+" ", lines[8])
	assert.Equal(t, "", lines[12])
}

func TestSetMetricsReportEmpty(t *testing.T) {
	m := NewSetMetrics()
	m.Finalise()
	var buf bytes.Buffer
	require.NoError(t, m.Report(&buf))
	assert.Contains(t, buf.String(), "Total = 0\n")
	assert.Contains(t, buf.String(), "   0.0%")
}

func TestStringToSet(t *testing.T) {
	assert.Equal(t, map[string]bool{"EFO:0000001": true, "MONDO:0000002": true},
		stringToSet("{'EFO:0000001', 'MONDO:0000002'}"))
	assert.Empty(t, stringToSet("{}"))
}

func TestReadEvaluationFiles(t *testing.T) {
	genes, err := ReadGeneMappings(strings.NewReader("RCV1\tENSG1\nRCV1\tENSG2\nbad line\n"))
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{"RCV1": {"ENSG1", "ENSG2"}}, genes)

	xrefs, err := ReadXRefMappings(strings.NewReader(
		"MONDO:1\tFalse\t{'EFO:1'}\t{'MONDO:0'}\t{}\n" +
			"OMIM:2\tTrue\t{}\n" +
			"HP:3\tFalse\n"))
	require.NoError(t, err)
	require.Len(t, xrefs, 2)
	assert.Equal(t, TermStatus{
		Synonyms: map[string]bool{"EFO:1": true},
		Parents:  map[string]bool{"MONDO:0": true},
		Children: map[string]bool{},
	}, xrefs["MONDO:1"])
	assert.True(t, xrefs["OMIM:2"].Obsolete)

	latest, err := ReadLatestMappings(strings.NewReader("EFO:1\tTrue\t{'MONDO:1'}\nEFO:2\tFalse\t{}\t{}\n"))
	require.NoError(t, err)
	assert.Equal(t, map[string]TermStatus{
		"EFO:1": {Obsolete: true, Synonyms: map[string]bool{"MONDO:1": true}},
	}, latest)
}
