package clinvar

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/pgzip"
	"github.com/stretchr/testify/require"
)

const releaseOpenV2 = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<ReleaseSet Dated="2024-04-15" xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance" Type="full" xsi:noNamespaceSchemaLocation="http://ftp.ncbi.nlm.nih.gov/pub/clinvar/xsd_public/ClinVar_RCV_2.0.xsd">
`

const releaseOpenV1 = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<ReleaseSet Dated="2023-10-01" xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance" Type="full" xsi:noNamespaceSchemaLocation="http://ftp.ncbi.nlm.nih.gov/pub/clinvar/xsd_public/clinvar_public_1.71.xsd">
`

// repeatSet is a microsatellite with an insertion of 12 bases.
const repeatSet = `<ClinVarSet ID="5001">
  <RecordStatus>current</RecordStatus>
  <Title>NC_000011.10:g.5226797_5226798insGGGGCCGGGGCC AND Familial disease</Title>
  <ReferenceClinVarAssertion DateCreated="2017-01-25" DateLastUpdated="2024-04-15" ID="100">
    <ClinVarAccession Acc="RCV000000001" Version="3" Type="RCV"/>
    <RecordStatus>current</RecordStatus>
    <Classifications>
      <GermlineClassification>
        <ReviewStatus>criteria provided, multiple submitters, no conflicts</ReviewStatus>
        <Description>Pathogenic/Likely pathogenic, risk_factor</Description>
        <DateLastEvaluated>2020-02-01</DateLastEvaluated>
      </GermlineClassification>
    </Classifications>
    <AttributeSet>
      <Attribute Type="ModeOfInheritance">Autosomal recessive inheritance</Attribute>
    </AttributeSet>
    <AttributeSet>
      <Attribute Type="ModeOfInheritance">Autosomal dominant inheritance</Attribute>
    </AttributeSet>
    <ObservedIn>
      <Sample>
        <Origin>germline</Origin>
      </Sample>
      <ObservedData>
        <Citation>
          <ID Source="PubMed">20301418</ID>
        </Citation>
      </ObservedData>
    </ObservedIn>
    <ObservedIn>
      <Sample>
        <Origin>unknown</Origin>
      </Sample>
    </ObservedIn>
    <MeasureSet Type="Variant" Acc="VCV000000001">
      <Measure Type="Microsatellite" ID="15000">
        <Name>
          <ElementValue Type="Preferred">NM_000518.5(HBB):c.-79_-78insCCCCGGCCCCGG</ElementValue>
        </Name>
        <Name>
          <ElementValue Type="Alternate">HBB repeat</ElementValue>
        </Name>
        <AttributeSet>
          <Attribute Type="HGVS, genomic, top level">NC_000011.10:g.5226797_5226798insGGGGCCGGGGCC</Attribute>
        </AttributeSet>
        <AttributeSet>
          <Attribute Type="HGVS, coding, RefSeq">NM_000518.5:c.-79_-78insCCCCGGCCCCGG</Attribute>
        </AttributeSet>
        <AttributeSet>
          <Attribute Type="HGVS, genomic, RefSeqGene, previous">NG_000007.3:g.70599_70600insCCCCGGCCCCGG</Attribute>
        </AttributeSet>
        <AttributeSet>
          <Attribute Type="MolecularConsequence">5 prime UTR variant</Attribute>
          <XRef ID="SO:0001623" DB="Sequence Ontology"/>
        </AttributeSet>
        <Citation>
          <ID Source="PubMed">1234</ID>
        </Citation>
        <SequenceLocation Assembly="GRCh38" Chr="11" Accession="NC_000011.10" start="5226797" stop="5226798" positionVCF="5226797" referenceAlleleVCF="T" alternateAlleleVCF="TGGGGCCGGGGCC"/>
        <SequenceLocation Assembly="GRCh37" Chr="11" Accession="NC_000011.9" positionVCF="5248027" referenceAlleleVCF="T" alternateAlleleVCF="TGGGGCCGGGGCC"/>
        <MeasureRelationship Type="variant in gene">
          <Symbol>
            <ElementValue Type="Preferred">HBB</ElementValue>
          </Symbol>
          <XRef ID="HGNC:4827" DB="HGNC"/>
        </MeasureRelationship>
        <XRef Type="rs" ID="80356820" DB="dbSNP"/>
        <XRef ID="nsv1234" DB="dbVar"/>
        <XRef ID="esv5678" DB="dbVar"/>
      </Measure>
    </MeasureSet>
    <TraitSet Type="Disease" ID="9">
      <Trait ID="9580" Type="Disease">
        <Name>
          <ElementValue Type="Preferred">Familial disease</ElementValue>
        </Name>
        <Name>
          <ElementValue Type="Alternate">not provided</ElementValue>
        </Name>
        <XRef ID="C1234567" DB="MedGen"/>
        <XRef ID="613985" DB="OMIM" Type="MIM"/>
        <XRef ID="MONDO:0100001" DB="MONDO" Status="Obsolete"/>
        <Citation>
          <ID Source="PubMed">555</ID>
        </Citation>
      </Trait>
    </TraitSet>
  </ReferenceClinVarAssertion>
  <ClinVarAssertion ID="200" SubmissionName="SUB14299258">
    <ClinVarSubmissionID localKey="a" submitter="Lab A" submitterDate="2019-01-01"/>
    <ClinVarAccession Acc="SCV000000001" Type="SCV"/>
    <Classification>
      <ReviewStatus>some unlisted status</ReviewStatus>
      <GermlineClassification>Pathogenic</GermlineClassification>
    </Classification>
  </ClinVarAssertion>
</ClinVarSet>
`

// twoLocationSet has two GRCh38 locations and two germline classifications.
const twoLocationSet = `<ClinVarSet ID="5002">
  <RecordStatus>current</RecordStatus>
  <Title>chrX/chrY variant</Title>
  <ReferenceClinVarAssertion DateCreated="2018-03-01" DateLastUpdated="2024-04-15" ID="101">
    <ClinVarAccession Acc="RCV000000002" Version="1" Type="RCV"/>
    <Classifications>
      <GermlineClassification>
        <ReviewStatus>criteria provided, single submitter</ReviewStatus>
        <Description>Benign</Description>
      </GermlineClassification>
      <SomaticClinicalImpact>
        <ReviewStatus>criteria provided, single submitter</ReviewStatus>
        <Description>Tier I - Strong</Description>
      </SomaticClinicalImpact>
    </Classifications>
    <MeasureSet Type="Variant" Acc="VCV000000002">
      <Measure Type="single nucleotide variant" ID="15001">
        <SequenceLocation Assembly="GRCh38" Chr="X" Accession="NC_000023.11" positionVCF="100" referenceAlleleVCF="A" alternateAlleleVCF="G"/>
        <SequenceLocation Assembly="GRCh38" Chr="Y" Accession="NC_000024.10" positionVCF="200" referenceAlleleVCF="A" alternateAlleleVCF="G"/>
        <XRef ID="1" DB="dbSNP"/>
        <XRef ID="2" DB="dbSNP"/>
      </Measure>
    </MeasureSet>
    <TraitSet Type="Disease">
      <Trait Type="Disease">
        <Name>
          <ElementValue Type="Preferred">not provided</ElementValue>
        </Name>
      </Trait>
    </TraitSet>
  </ReferenceClinVarAssertion>
  <ClinVarAssertion ID="201">
    <ClinVarSubmissionID submitter="Lab B" submitterDate="2020-05-05"/>
    <ClinVarAccession Acc="SCV000000002" Type="SCV"/>
  </ClinVarAssertion>
</ClinVarSet>
`

// brokenSet has no submitted record.
const brokenSet = `<ClinVarSet ID="5003">
  <ReferenceClinVarAssertion DateCreated="2018-03-01" DateLastUpdated="2024-04-15" ID="102">
    <ClinVarAccession Acc="RCV000000003" Type="RCV"/>
    <Classifications/>
  </ReferenceClinVarAssertion>
</ClinVarSet>
`

const v1Set = `<ClinVarSet ID="6001">
  <ReferenceClinVarAssertion DateCreated="2015-01-01" DateLastUpdated="2023-10-01" ID="300">
    <ClinVarAccession Acc="RCV000000010" Type="RCV"/>
    <ClinicalSignificance DateLastEvaluated="2014-06-01">
      <ReviewStatus>criteria provided, conflicting interpretations</ReviewStatus>
      <Description>Uncertain significance</Description>
    </ClinicalSignificance>
    <MeasureSet Type="Variant" Acc="VCV000000010">
      <Measure Type="Translocation" ID="1">
        <SequenceLocation Assembly="GRCh38" Chr="1" positionVCF="1" referenceAlleleVCF="A" alternateAlleleVCF="T"/>
      </Measure>
    </MeasureSet>
  </ReferenceClinVarAssertion>
  <ClinVarAssertion ID="301">
    <ClinVarSubmissionID submitter="Lab C" submitterDate="2014-01-01"/>
    <ClinVarAccession Acc="SCV000000010" Type="SCV"/>
  </ClinVarAssertion>
</ClinVarSet>
`

// writeRelease writes a gzipped release containing the given sets.
func writeRelease(t *testing.T, open string, sets ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "release.xml.gz")
	f, err := os.Create(path)
	require.NoError(t, err)
	gz := pgzip.NewWriter(f)
	_, err = gz.Write([]byte(open + strings.Join(sets, "") + "</ReleaseSet>\n"))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())
	return path
}

func readAll(t *testing.T, path string) []*ClinVarSet {
	t.Helper()
	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()
	var sets []*ClinVarSet
	for {
		set, err := r.Next()
		if err != nil {
			require.ErrorIs(t, err, io.EOF)
			return sets
		}
		sets = append(sets, set)
	}
}
