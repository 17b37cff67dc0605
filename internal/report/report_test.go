package report

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func partial(total int, mappings ...TraitMapping) *Report {
	r := New(100, 50)
	r.ClinVarTotal = total
	r.FatalNoValidTraits = 1
	r.SkipNoFunctionalConsequences = 1
	r.DoneOneCompleteEvidenceString = total - 2
	r.EvidenceStringCount = 10
	r.CompleteEvidenceStringCount = 8
	for _, m := range mappings {
		r.UsedTraitMappings.Add(m)
	}
	return r
}

func TestSumOfPartialReports(t *testing.T) {
	a := partial(5, TraitMapping{"A", "EFO_1"}, TraitMapping{"D", "EFO_2"})
	a.UnmappedTraitNames["G"] = 2
	b := partial(4, TraitMapping{"D", "EFO_2"}, TraitMapping{"E", "EFO_4"})
	b.UnmappedTraitNames["G"] = 1
	b.UnmappedTraitNames["H"] = 1
	b.TotalTraitMappings = 120

	sum := a.Add(b)
	require.NoError(t, sum.CheckCounts())
	assert.Equal(t, 9, sum.ClinVarTotal)
	assert.Equal(t, 2, sum.ClinVarFatal)
	assert.Equal(t, 2, sum.ClinVarSkipped)
	assert.Equal(t, 5, sum.ClinVarDone)
	assert.Equal(t, 120, sum.TotalTraitMappings)
	assert.Equal(t, 50, sum.TotalConsequenceMappings)
	assert.Equal(t, 20, sum.EvidenceStringCount)
	assert.Equal(t, []TraitMapping{{"A", "EFO_1"}, {"D", "EFO_2"}, {"E", "EFO_4"}}, sum.UsedTraitMappings.Sorted())
	assert.Equal(t, map[string]int{"G": 3, "H": 1}, sum.UnmappedTraitNames)

	// Summation is commutative.
	other := b.Add(a)
	other.ComputeRecordTallies()
	assert.Equal(t, sum, other)
}

func TestCheckCountsInconsistent(t *testing.T) {
	r := partial(5)
	r.ClinVarTotal = 6
	err := r.CheckCounts()
	assert.ErrorIs(t, err, ErrInconsistentCounts)
	assert.Contains(t, err.Error(), "total = 6")
}

func TestPrint(t *testing.T) {
	r := partial(5, TraitMapping{"A", "EFO_1"})
	r.SkipMissingEFOMapping = 0
	r.StructuralVariants = 3

	var buf bytes.Buffer
	require.NoError(t, r.Print(&buf))
	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "Total number of evidence strings generated\t10\n"))
	assert.Contains(t, out, "\n    Fatal: No traits with valid names\t1\n")
	assert.Contains(t, out, "\n    Skipped: Can be rescued by future improvements\t1\n")
	assert.Contains(t, out, "at least one complete evidence string\t75.0%\n")
	assert.Contains(t, out, "\n    The number of distinct trait-to-ontology mappings used in the evidence strings\t1\n")
	assert.True(t, strings.HasSuffix(out, "    Number of structural variants \t3\n"))
}

func TestPrintEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, New(0, 0).Print(&buf))
	assert.Contains(t, buf.String(), "\t0.0%\n")
}

func TestWriteUnmappedTraits(t *testing.T) {
	r := New(0, 0)
	r.UnmappedTraitNames = map[string]int{"rare": 1, "common": 7, "middle": 3, "also rare": 1}
	var buf bytes.Buffer
	require.NoError(t, r.WriteUnmappedTraits(&buf))
	assert.Equal(t, "common\t7\nmiddle\t3\nalso rare\t1\nrare\t1\n", buf.String())
}

func TestDumpAndAggregate(t *testing.T) {
	dir := t.TempDir()
	a := partial(5, TraitMapping{"A", "EFO_1"})
	a.UnmappedTraitNames["G"] = 2
	b := partial(3, TraitMapping{"B", "MONDO_0000001"})

	dirA := filepath.Join(dir, "a")
	dirB := filepath.Join(dir, "b")
	require.NoError(t, os.Mkdir(dirA, 0o755))
	require.NoError(t, os.Mkdir(dirB, 0o755))
	require.NoError(t, a.WriteFiles(dirA))
	require.NoError(t, b.WriteFiles(dirB))

	unmapped, err := os.ReadFile(filepath.Join(dirA, UnmappedTraitsFileName))
	require.NoError(t, err)
	assert.Equal(t, "G\t2\n", string(unmapped))

	loaded, err := Load(filepath.Join(dirA, CountsFileName))
	require.NoError(t, err)
	assert.Equal(t, a, loaded)

	sum, err := Aggregate([]string{filepath.Join(dirA, CountsFileName), filepath.Join(dirB, CountsFileName)}, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, sum.CheckCounts())
	assert.Equal(t, 8, sum.ClinVarTotal)
	assert.Len(t, sum.UsedTraitMappings, 2)
}
