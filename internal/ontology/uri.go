// Package ontology converts between ClinVar cross-references, ontology URIs
// and compact identifiers, and loads curated trait-to-ontology mappings.
package ontology

import (
	"strings"
)

var dbToURI = map[string]func(id string) string{
	"orphanet": func(id string) string { return "http://www.orpha.net/ORDO/Orphanet_" + id },
	"omim":     func(id string) string { return "https://www.omim.org/entry/" + id },
	"efo":      func(id string) string { return "http://www.ebi.ac.uk/efo/" + id },
	"mesh":     func(id string) string { return "http://identifiers.org/mesh/" + id },
	"medgen":   func(id string) string { return "http://identifiers.org/medgen/" + id },
	"mondo":    func(id string) string { return "http://purl.obolibrary.org/obo/" + strings.ReplaceAll(id, ":", "_") },
	"hp":       func(id string) string { return "http://purl.obolibrary.org/obo/" + strings.ReplaceAll(id, ":", "_") },
}

var uriDBToCURIEDB = map[string]string{
	"ordo":     "Orphanet",
	"orphanet": "Orphanet",
	"omim":     "OMIM",
	"efo":      "EFO",
	"hp":       "HP",
	"mondo":    "MONDO",
	"mesh":     "MeSH",
	"medgen":   "MedGen",
}

// NormalizeDB maps ClinVar database names to the short names used here.
func NormalizeDB(db string) string {
	if strings.EqualFold(db, "Human Phenotype Ontology") {
		return "HP"
	}
	return db
}

// URI builds the ontology URI for an identifier as it is written in a ClinVar
// XRef (e.g. ID="1756" DB="Orphanet"). It returns false for unsupported databases.
func URI(id, db string) (string, bool) {
	build, ok := dbToURI[strings.ToLower(NormalizeDB(db))]
	if !ok {
		return "", false
	}
	return build(id), true
}

// CURIE converts an ontology URI to DB:ID form. Unknown URIs yield false.
func CURIE(uri string) (string, bool) {
	lower := strings.ToLower(uri)
	known := false
	for k := range uriDBToCURIEDB {
		if strings.Contains(lower, k) {
			known = true
			break
		}
	}
	if !known {
		return "", false
	}

	parts := strings.Split(strings.TrimRight(uri, "/"), "/")
	last := parts[len(parts)-1]
	var db, id string
	switch {
	case strings.Contains(uri, "identifiers.org"):
		if len(parts) < 2 {
			return "", false
		}
		db, id = parts[len(parts)-2], last
	case strings.Contains(uri, "omim.org"):
		db, id = "OMIM", last
	case strings.Contains(last, ":"):
		return last, true
	case strings.Contains(last, "_"):
		db, id, _ = strings.Cut(last, "_")
	default:
		return "", false
	}
	curieDB, ok := uriDBToCURIEDB[strings.ToLower(db)]
	if !ok {
		return "", false
	}
	return curieDB + ":" + id, true
}

// URIFromCURIE is the inverse of CURIE on the supported prefixes.
func URIFromCURIE(curie string) (string, bool) {
	db, id, ok := strings.Cut(curie, ":")
	if !ok {
		return "", false
	}
	switch strings.ToLower(db) {
	case "efo":
		return URI("EFO_"+id, db)
	case "mondo", "hp":
		return URI(curie, db)
	default:
		return URI(id, db)
	}
}

// XRefCURIE converts a ClinVar cross-reference straight to DB:ID form.
func XRefCURIE(id, db string) (string, bool) {
	uri, ok := URI(id, db)
	if !ok {
		return "", false
	}
	return CURIE(uri)
}

// FormatID renders a mapped ontology URI as the identifier written into
// annotated XML, e.g. http://www.ebi.ac.uk/efo/EFO_0000400 -> EFO:0000400.
func FormatID(id string) string {
	if strings.HasPrefix(id, "http") {
		return strings.ReplaceAll(CompactID(id), "_", ":")
	}
	return id
}

// CompactID returns the last path segment of a URI (EFO_0000400).
func CompactID(id string) string {
	if i := strings.LastIndexByte(id, '/'); i >= 0 {
		return id[i+1:]
	}
	return id
}
