package biomart

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrAmbiguousGene is returned when an Ensembl gene maps to more than one name or chromosome.
var ErrAmbiguousGene = errors.New("found multiple gene ID to gene attribute mappings")

// GeneQuery holds the identifiers available for one variant row.
type GeneQuery struct {
	HGNCID       string
	GeneSymbol   string
	TranscriptID string
}

// GeneAnnotation is one Ensembl gene found for the query at Index. A query
// mapping to several genes produces several annotations.
type GeneAnnotation struct {
	Index               int
	EnsemblGeneID       string
	EnsemblTranscriptID string
	Source              string
}

// GeneInfo is the name and chromosome of an Ensembl gene.
type GeneInfo struct {
	Name       string
	Chromosome string
}

// Querier runs a BioMart query; *Client implements it.
type Querier interface {
	Query(ctx context.Context, keyColumn string, queryColumns []string, ids []string) ([][]string, error)
}

type annotationSource struct {
	name   string
	column string
	value  func(GeneQuery) string
	accept func(string) bool
}

// Sources are tried in order of decreasing priority; a query resolved by one
// source is not sent to the next.
var annotationSources = []annotationSource{
	{"HGNC_ID", "hgnc_id", func(q GeneQuery) string { return q.HGNCID }, func(s string) bool { return strings.HasPrefix(s, "HGNC:") }},
	{"GeneSymbol", "external_gene_name", func(q GeneQuery) string { return q.GeneSymbol }, func(s string) bool { return s != "" && s != "-" }},
	{"TranscriptID", "refseq_mrna", func(q GeneQuery) string { return q.TranscriptID }, func(s string) bool { return s != "" }},
}

// Resolver maps gene identifiers to Ensembl genes.
type Resolver struct {
	q Querier
}

// NewResolver creates a resolver backed by q.
func NewResolver(q Querier) *Resolver {
	return &Resolver{q: q}
}

// Resolve annotates queries with Ensembl gene ids (and transcript ids when
// includeTranscripts is set). Queries that no source resolves are absent
// from the result.
func (r *Resolver) Resolve(ctx context.Context, queries []GeneQuery, includeTranscripts bool) ([]GeneAnnotation, error) {
	queryColumns := []string{"ensembl_gene_id"}
	if includeTranscripts {
		queryColumns = append(queryColumns, "ensembl_transcript_id")
	}

	remaining := make([]int, len(queries))
	for i := range queries {
		remaining[i] = i
	}

	var out []GeneAnnotation
	for _, src := range annotationSources {
		if len(remaining) == 0 {
			break
		}
		ids := make(map[string]bool)
		for _, i := range remaining {
			if v := src.value(queries[i]); src.accept(v) {
				ids[v] = true
			}
		}
		if len(ids) == 0 {
			continue
		}
		rows, err := r.q.Query(ctx, src.column, queryColumns, sortedSet(ids))
		if err != nil {
			return nil, fmt.Errorf("resolve by %s: %w", src.name, err)
		}
		mapped := make(map[string][][]string)
		for _, row := range rows {
			mapped[row[0]] = append(mapped[row[0]], row)
		}

		var next []int
		for _, i := range remaining {
			v := src.value(queries[i])
			matches := mapped[v]
			if !src.accept(v) || len(matches) == 0 {
				next = append(next, i)
				continue
			}
			for _, row := range matches {
				a := GeneAnnotation{Index: i, EnsemblGeneID: row[1], Source: src.name}
				if includeTranscripts {
					a.EnsemblTranscriptID = row[2]
				}
				out = append(out, a)
			}
		}
		remaining = next
	}
	return out, nil
}

// GeneInfo looks up the name and chromosome of every ENSG identifier in geneIDs.
func (r *Resolver) GeneInfo(ctx context.Context, geneIDs []string) (map[string]GeneInfo, error) {
	ids := make(map[string]bool)
	for _, id := range geneIDs {
		if strings.HasPrefix(id, "ENSG") {
			ids[id] = true
		}
	}
	info := make(map[string]GeneInfo)
	if len(ids) == 0 {
		return info, nil
	}
	rows, err := r.q.Query(ctx, "ensembl_gene_id", []string{"external_gene_name", "chromosome_name"}, sortedSet(ids))
	if err != nil {
		return nil, fmt.Errorf("gene info: %w", err)
	}
	for _, row := range rows {
		gi := GeneInfo{Name: row[1], Chromosome: row[2]}
		if prev, ok := info[row[0]]; ok && prev != gi {
			return nil, fmt.Errorf("%w: %s -> %v, %v", ErrAmbiguousGene, row[0], prev, gi)
		}
		info[row[0]] = gi
	}
	return info, nil
}

func sortedSet(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
