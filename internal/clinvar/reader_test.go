package clinvar

import (
	"bytes"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/pgzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ebivariation/cmat/internal/hgvs"
)

func TestReaderHeader(t *testing.T) {
	r, err := Open(writeRelease(t, releaseOpenV2, repeatSet))
	require.NoError(t, err)
	defer r.Close()

	h := r.Header()
	assert.Equal(t, 2.0, h.XSDVersion)
	dated, ok := h.Attr("Dated")
	require.True(t, ok)
	assert.Equal(t, "2024-04-15", dated)
	loc, ok := h.Attr("xsi:noNamespaceSchemaLocation")
	require.True(t, ok)
	assert.Contains(t, loc, "ClinVar_RCV_2.0.xsd")
	_, ok = h.Attr("xmlns:xsi")
	assert.True(t, ok)
}

func TestReaderXSDVersion(t *testing.T) {
	r, err := Open(writeRelease(t, releaseOpenV1, v1Set))
	require.NoError(t, err)
	defer r.Close()
	assert.InDelta(t, 1.71, r.Header().XSDVersion, 1e-9)

	noSchema := `<?xml version="1.0"?>` + "\n" + `<ReleaseSet Dated="2024-01-01">` + "\n"
	r2, err := Open(writeRelease(t, noSchema))
	require.NoError(t, err)
	defer r2.Close()
	assert.Equal(t, DefaultXSDVersion, r2.Header().XSDVersion)
	r2.SetDefaultXSDVersion(1.5)
	assert.Equal(t, 1.5, r2.Header().XSDVersion)
}

func TestReaderUncompressed(t *testing.T) {
	doc := releaseOpenV2 + repeatSet + "</ReleaseSet>\n"
	r, err := NewReader(strings.NewReader(doc))
	require.NoError(t, err)
	set, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, "RCV000000001", set.RCV.Accession)
	_, err = r.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestReaderMalformed(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing.xml.gz"))
	assert.Error(t, err)

	r, err := NewReader(strings.NewReader(releaseOpenV2 + `<ClinVarSet ID="1"><Title>x</ClinVarSet>`))
	require.NoError(t, err)
	_, err = r.Next()
	require.Error(t, err)
	var recErr *RecordError
	assert.False(t, errors.As(err, &recErr), "malformed XML is fatal, not a record error")
}

func TestParseReferenceRecord(t *testing.T) {
	sets := readAll(t, writeRelease(t, releaseOpenV2, repeatSet))
	require.Len(t, sets, 1)
	set := sets[0]

	assert.Equal(t, "5001", set.ID)
	assert.Equal(t, "current", set.Status)
	assert.True(t, strings.HasSuffix(set.Title, "Familial disease"))

	rcv := set.RCV
	assert.Equal(t, "RCV000000001", rcv.Accession)
	assert.Equal(t, "2017-01-25", rcv.CreatedDate)
	assert.Equal(t, "2024-04-15", rcv.LastUpdatedDate)
	assert.Equal(t, []string{"Autosomal dominant inheritance", "Autosomal recessive inheritance"}, rcv.ModeOfInheritance)
	assert.Equal(t, "Disease", rcv.TraitSetType)
	assert.Equal(t, []int{20301418}, rcv.EvidenceSupportPubMedRefs)
	assert.Equal(t, []string{"germline", "unknown"}, rcv.AlleleOrigins)
	assert.Equal(t, []string{"germline"}, rcv.ValidAlleleOrigins())

	score, err := rcv.Score()
	require.NoError(t, err)
	assert.Equal(t, 2, score)
	sig, err := rcv.ClinicalSignificanceList()
	require.NoError(t, err)
	assert.Equal(t, []string{"likely pathogenic", "pathogenic", "risk factor"}, sig)
	date, err := rcv.LastEvaluatedDate()
	require.NoError(t, err)
	assert.Equal(t, "2020-02-01", date)
	assert.Equal(t, "GermlineClassification", rcv.ClinicalClassifications[0].Type)
}

func TestParseTrait(t *testing.T) {
	sets := readAll(t, writeRelease(t, releaseOpenV2, repeatSet))
	rcv := sets[0].RCV
	require.Len(t, rcv.Traits, 1)
	trait := rcv.Traits[0]

	assert.Equal(t, "9580", trait.Identifier)
	assert.Equal(t, "Familial disease", trait.PreferredName)
	assert.Equal(t, []string{"Familial disease", "not provided"}, trait.AllNames)
	assert.Equal(t, []string{"Familial disease"}, trait.AllValidNames())
	assert.Equal(t, "Familial disease", trait.PreferredOrOtherValidName())
	assert.Equal(t, "C1234567", trait.MedGenID())
	assert.Equal(t, []int{555}, rcv.TraitPubMedRefs())

	xrefs := trait.CurrentEFOAlignedXRefs()
	require.Len(t, xrefs, 2)
	assert.Equal(t, "MedGen", xrefs[0].DB)
	assert.Equal(t, "OMIM", xrefs[1].DB)
	assert.Len(t, rcv.TraitsWithValidNames(), 1)
}

func TestParseMeasure(t *testing.T) {
	sets := readAll(t, writeRelease(t, releaseOpenV2, repeatSet))
	m := sets[0].RCV.Measure
	require.NotNil(t, m)

	assert.Equal(t, "Microsatellite", m.Type)
	assert.Equal(t, "VCV000000001", m.VCVID)
	assert.Equal(t, "RCV000000001", m.RecordAccession)
	assert.Equal(t, []string{"HBB"}, m.PreferredGeneSymbols)
	assert.Equal(t, []string{"HGNC:4827"}, m.HGNCIDs)
	assert.Equal(t, "rs80356820", m.RsID)
	assert.Equal(t, "nsv1234", m.NsvID)
	assert.Equal(t, []string{"SO:0001623"}, m.ExistingSOTerms)
	assert.Equal(t, []int{1234}, m.PubMedRefs)

	assert.True(t, m.HasCompleteCoordinates())
	assert.Equal(t, "11_5226797_T_TGGGGCCGGGGCC", m.VCFFullCoords())
	assert.Equal(t, "11:5226797:T:TGGGGCCGGGGCC", m.CoordID())
	length, ok := m.ExplicitInsertionLength()
	require.True(t, ok)
	assert.Equal(t, 12, length)
	assert.Equal(t, MSRepeatExpansion, m.MicrosatelliteCategory())
	assert.True(t, m.IsRepeatExpansionVariant())

	assert.Len(t, m.CurrentHGVS(), 2)
	top := m.ToplevelRefSeqHGVS()
	require.NotNil(t, top)
	assert.Equal(t, "NC_000011.10:g.5226797_5226798insGGGGCCGGGGCC", top.Text)
	assert.Same(t, top, m.PreferredCurrentHGVS())
	assert.Equal(t, "NM_000518.5(HBB):c.-79_-78insCCCCGGCCCCGG", m.NameOrHGVS())
}

func TestMicrosatelliteBoundary(t *testing.T) {
	measure := func(ref, alt string) *Measure {
		return &Measure{Type: "Microsatellite", Location: &SequenceLocation{Chr: "1", Pos: "10", Ref: ref, Alt: alt}}
	}
	assert.Equal(t, MSShortExpansion, measure("A", "A"+strings.Repeat("C", 11)).MicrosatelliteCategory())
	assert.Equal(t, MSRepeatExpansion, measure("A", "A"+strings.Repeat("C", 12)).MicrosatelliteCategory())
	assert.Equal(t, MSDeletion, measure("AC", "A").MicrosatelliteCategory())
	assert.Equal(t, MSNoCompleteCoords, (&Measure{Type: "Microsatellite"}).MicrosatelliteCategory())
	assert.Equal(t, NotMicrosatellite, (&Measure{Type: "Deletion"}).MicrosatelliteCategory())
	assert.False(t, measure("A", "AC").IsRepeatExpansionVariant())
}

func TestPreferredCurrentHGVS(t *testing.T) {
	entry := func(text string, types ...string) HGVSEntry {
		e := HGVSEntry{Variant: hgvs.Parse(text), Types: map[string]bool{}}
		for _, typ := range types {
			e.Types[typ] = true
		}
		return e
	}

	m := &Measure{
		Location: &SequenceLocation{Accession: "NC_000002.12"},
		HGVS: []HGVSEntry{
			entry("NC_000001.11:g.5del", "hgvs", "genomic"),
			entry("NC_000002.12:g.7del", "hgvs", "genomic", "refseqgene"),
			entry("NM_000001.1:c.1del", "hgvs", "coding"),
		},
	}
	assert.Equal(t, "NC_000002.12:g.7del", m.PreferredCurrentHGVS().Text)

	m.Location = nil
	assert.Equal(t, "NC_000001.11:g.5del", m.PreferredCurrentHGVS().Text)

	m.HGVS = []HGVSEntry{
		entry("NM_2.1:c.2del", "hgvs", "coding"),
		entry("NM_1.1:c.1del", "hgvs", "coding"),
		entry("NC_0.1:g.1del", "hgvs", "genomic", "previous"),
	}
	assert.Equal(t, "NM_1.1:c.1del", m.PreferredCurrentHGVS().Text)

	m.HGVS = nil
	assert.Nil(t, m.PreferredCurrentHGVS())
}

func TestTwoGRCh38LocationsAndMultipleClassifications(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	r, err := Open(writeRelease(t, releaseOpenV2, twoLocationSet))
	require.NoError(t, err)
	defer r.Close()
	r.SetLogger(zap.New(core))

	set, err := r.Next()
	require.NoError(t, err)
	rcv := set.RCV
	m := rcv.Measure
	require.NotNil(t, m)
	assert.Nil(t, m.Location)
	assert.False(t, m.HasCompleteCoordinates())
	assert.Empty(t, m.Chr())
	assert.Empty(t, m.RsID)
	assert.Equal(t, 1, logs.FilterMessageSnippet("multiple rs ids").Len())

	assert.Len(t, rcv.ClinicalClassifications, 2)
	_, err = rcv.Score()
	assert.ErrorIs(t, err, ErrMultipleClinicalClassifications)
	_, err = rcv.ValidClinicalSignificances()
	assert.ErrorIs(t, err, ErrMultipleClinicalClassifications)

	assert.Empty(t, rcv.TraitsWithValidNames())
	require.Len(t, set.SCVs, 1)
	scv := set.SCVs[0]
	assert.Equal(t, "SCV000000002", scv.Accession)
	assert.Equal(t, "Lab B", scv.Submitter)
	assert.Equal(t, "2020-05-05", scv.SubmissionDate)
	assert.Same(t, rcv, scv.Reference)
}

func TestTranslocationAndV1Classification(t *testing.T) {
	sets := readAll(t, writeRelease(t, releaseOpenV1, v1Set))
	require.Len(t, sets, 1)
	rcv := sets[0].RCV

	assert.Nil(t, rcv.Measure.Location)
	require.Len(t, rcv.ClinicalClassifications, 1)
	status, err := rcv.ReviewStatus()
	require.NoError(t, err)
	assert.Equal(t, "criteria provided, conflicting interpretations", status)
	date, err := rcv.LastEvaluatedDate()
	require.NoError(t, err)
	assert.Equal(t, "2014-06-01", date)
	assert.Equal(t, "ClinicalSignificance", rcv.ClinicalClassifications[0].Type)
}

func TestRecordErrorDoesNotStopReader(t *testing.T) {
	r, err := Open(writeRelease(t, releaseOpenV2, brokenSet, repeatSet))
	require.NoError(t, err)
	defer r.Close()

	_, err = r.Next()
	var recErr *RecordError
	require.ErrorAs(t, err, &recErr)
	assert.Equal(t, "RCV000000003", recErr.Accession)
	var cardErr *CardinalityError
	assert.ErrorAs(t, err, &cardErr)

	set, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, "RCV000000001", set.RCV.Accession)
}

func TestSignificanceList(t *testing.T) {
	c := &ClinicalClassification{RawSignificance: "Benign/Likely benign; risk_factor, Benign, no classifications from unflagged records"}
	assert.Equal(t, []string{"benign", "likely benign", "no classifications from unflagged records", "risk factor"}, c.SignificanceList())
	assert.Equal(t, []string{"benign", "likely benign", "risk factor"}, c.ValidSignificances())
}

func TestSubmittedRecordsAreLenient(t *testing.T) {
	sets := readAll(t, writeRelease(t, releaseOpenV2, repeatSet))
	scv := sets[0].SCVs[0]
	assert.Equal(t, "SUB14299258", scv.SubmissionName)
	assert.Equal(t, "Lab A", scv.Submitter)
	assert.Empty(t, scv.ClinicalClassifications)
}

func TestFilterBySubmissionName(t *testing.T) {
	set := &ClinVarSet{SCVs: []*SubmittedRecord{{SubmissionName: "SUB14299258"}, {SubmissionName: "SUB14767656"}}}
	assert.False(t, FilterBySubmissionName(set))

	set.SCVs = append(set.SCVs, &SubmittedRecord{SubmissionName: "SUB1"})
	assert.True(t, FilterBySubmissionName(set))

	set.SCVs = []*SubmittedRecord{{}}
	assert.True(t, FilterBySubmissionName(set))
}

func TestWriterRoundTrip(t *testing.T) {
	src := writeRelease(t, releaseOpenV2, repeatSet, twoLocationSet)
	original := readAll(t, src)

	r, err := Open(src)
	require.NoError(t, err)
	defer r.Close()

	out := filepath.Join(t.TempDir(), "out.xml.gz")
	w, err := Create(out)
	require.NoError(t, err)
	w.now = func() time.Time { return time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC) }
	require.NoError(t, w.WriteHeader(r.Header()))
	for {
		n, err := r.NextNode()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		require.NoError(t, w.WriteSet(n))
	}
	assert.Equal(t, 2, w.Count())
	require.NoError(t, w.Close())

	again, err := Open(out)
	require.NoError(t, err)
	defer again.Close()
	last, ok := again.Header().Attr("LastProcessed")
	require.True(t, ok)
	assert.Equal(t, "2024-05-06", last)
	assert.Equal(t, 2.0, again.Header().XSDVersion)

	reread := readAll(t, out)
	require.Len(t, reread, len(original))
	for i := range original {
		assert.Equal(t, original[i].RCV.Accession, reread[i].RCV.Accession)
		assert.Equal(t, len(original[i].SCVs), len(reread[i].SCVs))
		assert.Equal(t, original[i].RCV.Traits, reread[i].RCV.Traits)
		assert.Equal(t, original[i].RCV.ClinicalClassifications, reread[i].RCV.ClinicalClassifications)
	}
}

func TestNodeWriteIndent(t *testing.T) {
	n := NewElement("Trait", "ID", "1")
	name := NewElement("Name")
	name.Append(&Node{Name: "ElementValue", Attrs: []Attr{{Name: "Type", Value: "Preferred"}}, Text: "A & B"})
	n.Append(name, NewElement("XRef", "DB", "EFO", "ID", "EFO_1"))

	var buf bytes.Buffer
	require.NoError(t, n.WriteIndent(&buf, 1))
	want := `  <Trait ID="1">
    <Name>
      <ElementValue Type="Preferred">A &amp; B</ElementValue>
    </Name>
    <XRef DB="EFO" ID="EFO_1"/>
  </Trait>
`
	assert.Equal(t, want, buf.String())
}

func TestNodeFind(t *testing.T) {
	r, err := NewReader(strings.NewReader(releaseOpenV2 + repeatSet + "</ReleaseSet>"))
	require.NoError(t, err)
	n, err := r.NextNode()
	require.NoError(t, err)

	_, err = n.FindMandatory("./ReferenceClinVarAssertion/ObservedIn")
	var cardErr *CardinalityError
	require.ErrorAs(t, err, &cardErr)
	assert.Equal(t, 2, cardErr.Count)

	none, err := n.FindOptional("./Missing")
	require.NoError(t, err)
	assert.Nil(t, none)

	origins := n.Texts("./ReferenceClinVarAssertion/ObservedIn/Sample/Origin")
	assert.Equal(t, []string{"germline", "unknown"}, origins)
	assert.Len(t, n.FindAll(`./ReferenceClinVarAssertion/MeasureSet/Measure/XRef[@DB]`), 3)
	assert.Len(t, n.FindAll("./*"), 4)
}

func TestNewWriterIsGzip(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.WriteHeader(&ReleaseHeader{Attrs: []Attr{{Name: "Dated", Value: "x"}}}))
	require.NoError(t, w.Close())

	gz, err := pgzip.NewReader(&buf)
	require.NoError(t, err)
	body, err := io.ReadAll(gz)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(body), xmlDeclaration+`<ReleaseSet Dated="x" LastProcessed="`))
	assert.True(t, strings.HasSuffix(string(body), "</ReleaseSet>\n"))
}
