package vep

import (
	"fmt"
	"strings"

	"github.com/ebivariation/cmat/internal/hgvs"
)

var regionTypes = map[hgvs.VariantType]string{
	hgvs.Deletion:    "DEL",
	hgvs.Duplication: "DUP",
	hgvs.Insertion:   "INS",
}

// RegionIdentifier converts a genomic deletion, duplication or insertion
// with a valid span into VEP region notation:
//
//	<ref> <start> <stop> <TYPE> + <hgvs>
//
// The HGVS text rides along as the variant identifier. Other variants are
// not convertible and return false.
func RegionIdentifier(v *hgvs.Variant) (string, bool) {
	if v == nil || v.SequenceType != hgvs.Genomic || !v.HasValidPreciseSpan() {
		return "", false
	}
	typ, ok := regionTypes[v.VariantType]
	if !ok {
		return "", false
	}
	return fmt.Sprintf("%s %d %d %s + %s", v.ReferenceSequence, v.Start, v.Stop, typ, v.Text), true
}

// IdentifierHGVS returns the HGVS part of a region identifier (its last field).
func IdentifierHGVS(input string) string {
	fields := strings.Fields(input)
	if len(fields) == 0 {
		return ""
	}
	return fields[len(fields)-1]
}
