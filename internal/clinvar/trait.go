package clinvar

import (
	"sort"
	"strings"
)

// NonspecificTraitNames cannot be resolved to any meaningful ontology term.
var NonspecificTraitNames = setOf(
	"", "allhighlypenetrant", "disease", "none provided", "not provided", "not specified",
	"reclassified - variant of unknown significance", "see cases", "variant of unknown significance",
)

// EFOAlignedDatabases are the cross-reference sources comparable with ontology mappings.
var EFOAlignedDatabases = setOf("OMIM", "Orphanet", "MeSH", "MedGen", "EFO", "MONDO", "HP", "Human Phenotype Ontology")

// XRef is an external cross-reference of a trait.
type XRef struct {
	DB     string
	ID     string
	Status string
}

// Trait is usually a disease associated with a record.
type Trait struct {
	Identifier    string
	PreferredName string
	AllNames      []string
	PubMedRefs    []int
	XRefs         []XRef
}

func parseTrait(n *Node) (*Trait, error) {
	t := &Trait{Identifier: strings.TrimSpace(n.AttrOr("ID", ""))}

	preferred, err := n.FindOptional(`./Name/ElementValue[@Type="Preferred"]`)
	if err != nil {
		return nil, err
	}
	if preferred != nil {
		t.PreferredName = preferred.Text
	}
	t.AllNames = n.Texts("./Name/ElementValue")
	sort.Strings(t.AllNames)

	if t.PubMedRefs, err = pubMedRefs(n, `./Citation/ID[@Source="PubMed"]`); err != nil {
		return nil, err
	}

	for _, x := range n.FindAll("./XRef") {
		t.XRefs = append(t.XRefs, XRef{
			DB:     x.AttrOr("DB", ""),
			ID:     strings.TrimSpace(x.AttrOr("ID", "")),
			Status: strings.ToLower(x.AttrOr("Status", "current")),
		})
	}
	return t, nil
}

func isValidTraitName(name string) bool {
	return !NonspecificTraitNames[strings.ToLower(name)]
}

// AllValidNames returns the sorted names that are not in the nonspecific set.
func (t *Trait) AllValidNames() []string {
	var out []string
	for _, name := range t.AllNames {
		if isValidTraitName(name) {
			out = append(out, name)
		}
	}
	return out
}

// PreferredOrOtherValidName returns the preferred name when valid, otherwise
// the first valid name, otherwise "".
func (t *Trait) PreferredOrOtherValidName() string {
	if t.PreferredName != "" && isValidTraitName(t.PreferredName) {
		return t.PreferredName
	}
	if valid := t.AllValidNames(); len(valid) > 0 {
		return valid[0]
	}
	return ""
}

// MedGenIDs returns the sorted current MedGen identifiers.
func (t *Trait) MedGenIDs() []string {
	var ids []string
	for _, x := range t.XRefs {
		if x.DB == "MedGen" && x.Status == "current" {
			ids = append(ids, x.ID)
		}
	}
	sort.Strings(ids)
	return ids
}

// MedGenID returns the lexicographically first current MedGen identifier.
func (t *Trait) MedGenID() string {
	if ids := t.MedGenIDs(); len(ids) > 0 {
		return ids[0]
	}
	return ""
}

// CurrentEFOAlignedXRefs returns current cross-references to ontologies comparable with EFO.
func (t *Trait) CurrentEFOAlignedXRefs() []XRef {
	var out []XRef
	for _, x := range t.XRefs {
		if x.Status == "current" && EFOAlignedDatabases[x.DB] {
			out = append(out, x)
		}
	}
	return out
}

func setOf(values ...string) map[string]bool {
	m := make(map[string]bool, len(values))
	for _, v := range values {
		m[v] = true
	}
	return m
}
