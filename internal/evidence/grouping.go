package evidence

import (
	"sort"
	"strings"

	"github.com/ebivariation/cmat/internal/clinvar"
	"github.com/ebivariation/cmat/internal/ontology"
)

// Disease is one disease an evidence string is reported against. OntologyID
// is empty for traits without a mapping.
type Disease struct {
	Name       string
	MedGenID   string
	OntologyID string
}

// Mapped reports whether the disease has an ontology mapping.
func (d Disease) Mapped() bool { return d.OntologyID != "" }

// GroupDiseases groups traits mapping to the same ontology term and splits
// traits mapping to several terms. Each term yields the trait whose name
// sorts first; unmapped traits are kept with an empty term. The result is
// sorted by name, then ontology id.
func GroupDiseases(traits []*clinvar.Trait, mapping *ontology.Mapping) []Disease {
	var out []Disease
	var ids []string
	byID := make(map[string][]*clinvar.Trait)
	for _, t := range traits {
		mapped := false
		for _, name := range t.AllNames {
			for _, term := range mapping.Lookup(name) {
				mapped = true
				if _, ok := byID[term.ID]; !ok {
					ids = append(ids, term.ID)
				}
				byID[term.ID] = append(byID[term.ID], t)
			}
		}
		if !mapped {
			out = append(out, Disease{Name: t.PreferredOrOtherValidName(), MedGenID: t.MedGenID()})
		}
	}

	for _, id := range ids {
		group := byID[id]
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].PreferredOrOtherValidName() < group[j].PreferredOrOtherValidName()
		})
		first := group[0]
		out = append(out, Disease{Name: first.PreferredOrOtherValidName(), MedGenID: first.MedGenID(), OntologyID: id})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].OntologyID < out[j].OntologyID
	})
	return out
}

// GroupAlleleOrigins splits allele origins into a somatic group and a group
// of everything else, somatic first. Without any origins a single empty
// group is returned, which is reported as germline.
func GroupAlleleOrigins(origins []string) [][]string {
	rest := make(map[string]bool)
	somatic := false
	for _, o := range origins {
		o = strings.ToLower(o)
		if o == "somatic" {
			somatic = true
			continue
		}
		rest[o] = true
	}

	var groups [][]string
	if somatic {
		groups = append(groups, []string{"somatic"})
	}
	if len(rest) > 0 {
		other := make([]string, 0, len(rest))
		for o := range rest {
			other = append(other, o)
		}
		sort.Strings(other)
		groups = append(groups, other)
	}
	if len(groups) == 0 {
		return [][]string{{}}
	}
	return groups
}

// cohortPhenotypes returns every valid name of every trait, sorted and unique.
func cohortPhenotypes(traits []*clinvar.Trait) []string {
	seen := make(map[string]bool)
	var out []string
	for _, t := range traits {
		for _, name := range t.AllValidNames() {
			if !seen[name] {
				seen[name] = true
				out = append(out, name)
			}
		}
	}
	sort.Strings(out)
	return out
}
