package clinvar

import (
	"errors"
	"fmt"
)

// ErrMultipleClinicalClassifications is returned by accessors that assume a
// record carries a single clinical classification when it carries several.
var ErrMultipleClinicalClassifications = errors.New("multiple clinical classifications")

// ErrNoClinicalClassifications is returned by the same accessors when the record has none.
var ErrNoClinicalClassifications = errors.New("no clinical classifications")

// CardinalityError reports a path that matched an unexpected number of elements.
type CardinalityError struct {
	Path  string
	Count int
}

func (e *CardinalityError) Error() string {
	return fmt.Sprintf("found %d instances of %s, which is not allowed", e.Count, e.Path)
}

// RecordError wraps a failure to interpret a single ClinVarSet. The reader
// stays usable after returning one.
type RecordError struct {
	Accession string
	Err       error
}

func (e *RecordError) Error() string {
	if e.Accession == "" {
		return fmt.Sprintf("parse record: %v", e.Err)
	}
	return fmt.Sprintf("parse record %s: %v", e.Accession, e.Err)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}
