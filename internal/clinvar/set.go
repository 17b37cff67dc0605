package clinvar

import (
	"go.uber.org/zap"
)

// ClinVarSet groups a single reference record with its submitted records.
type ClinVarSet struct {
	ID     string
	Title  string
	Status string
	RCV    *ReferenceRecord
	SCVs   []*SubmittedRecord

	// Node is the parsed element, kept so the set can be annotated and written back.
	Node *Node
}

// ParseSet builds a ClinVarSet from a <ClinVarSet> element.
func ParseSet(n *Node, xsdVersion float64, logger *zap.Logger) (*ClinVarSet, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	rcvNode, err := n.FindMandatory("./ReferenceClinVarAssertion")
	if err != nil {
		return nil, err
	}
	accession := ""
	if acc, _ := rcvNode.FindOptional("./ClinVarAccession"); acc != nil {
		accession = acc.AttrOr("Acc", "")
	}
	fail := func(err error) (*ClinVarSet, error) {
		return nil, &RecordError{Accession: accession, Err: err}
	}

	rec, err := parseRecord(rcvNode, xsdVersion, true, logger)
	if err != nil {
		return fail(err)
	}
	set := &ClinVarSet{
		ID:   n.AttrOr("ID", ""),
		RCV:  &ReferenceRecord{Record: *rec},
		Node: n,
	}
	if title, err := n.FindOptional("./Title"); err != nil {
		return fail(err)
	} else if title != nil {
		set.Title = title.Text
	}
	if status, err := n.FindOptional("./RecordStatus"); err != nil {
		return fail(err)
	} else if status != nil {
		set.Status = status.Text
	}

	scvNodes := n.FindAll("./ClinVarAssertion")
	if len(scvNodes) == 0 {
		return fail(&CardinalityError{Path: "ClinVarAssertion", Count: 0})
	}
	for _, sn := range scvNodes {
		scv, err := parseSubmittedRecord(sn, xsdVersion, set.RCV, logger)
		if err != nil {
			return fail(err)
		}
		set.SCVs = append(set.SCVs, scv)
	}
	return set, nil
}

// ExcludedSubmissionNames are problematic submissions, for example ones with
// many unmappable trait names.
var ExcludedSubmissionNames = setOf("SUB14299258", "SUB14767656")

// FilterBySubmissionName reports whether the set should be kept: false only
// when every submitted record comes from an excluded submission.
func FilterBySubmissionName(set *ClinVarSet) bool {
	for _, scv := range set.SCVs {
		if !ExcludedSubmissionNames[scv.SubmissionName] {
			return true
		}
	}
	return false
}
