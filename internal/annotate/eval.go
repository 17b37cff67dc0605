package annotate

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
)

// TermStatus describes one ontology term as seen by the evaluation
// collaborator: whether it is obsolete and which terms it is synonymous with.
type TermStatus struct {
	Obsolete bool
	Synonyms map[string]bool
	Parents  map[string]bool
	Children map[string]bool
}

// Evaluation holds the reference data needed to compare annotations
// against what ClinVar already records.
type Evaluation struct {
	// Genes maps an RCV accession to the Ensembl genes ClinVar lists.
	Genes map[string][]string
	// XRefs describes the ontology terms ClinVar cross-references.
	XRefs map[string]TermStatus
	// Latest describes the ontology terms produced by the mapping.
	Latest map[string]TermStatus
}

var reSetPunctuation = regexp.MustCompile(`[{}']`)

// stringToSet parses a rendered set such as "{'EFO:1', 'EFO:2'}".
func stringToSet(s string) map[string]bool {
	out := make(map[string]bool)
	for _, v := range strings.Split(reSetPunctuation.ReplaceAllString(s, ""), ", ") {
		if v != "" {
			out[v] = true
		}
	}
	return out
}

// eachRow calls fn with the tab-separated fields of every line of r.
func eachRow(r io.Reader, fn func(cols []string)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		fn(strings.Split(strings.TrimSpace(scanner.Text()), "\t"))
	}
	return scanner.Err()
}

// ReadGeneMappings parses "<rcv>\t<ensembl gene>" lines. Other lines are ignored.
func ReadGeneMappings(r io.Reader) (map[string][]string, error) {
	out := make(map[string][]string)
	err := eachRow(r, func(cols []string) {
		if len(cols) == 2 {
			out[cols[0]] = append(out[cols[0]], cols[1])
		}
	})
	if err != nil {
		return nil, fmt.Errorf("read gene mappings: %w", err)
	}
	return out, nil
}

// ReadXRefMappings parses "<id>\t<obsolete>\t<synonyms>[\t<parents>\t<children>]"
// lines. Lines with any other number of columns are ignored.
func ReadXRefMappings(r io.Reader) (map[string]TermStatus, error) {
	out := make(map[string]TermStatus)
	err := eachRow(r, func(cols []string) {
		switch len(cols) {
		case 5:
			out[cols[0]] = TermStatus{
				Obsolete: cols[1] == "True",
				Synonyms: stringToSet(cols[2]),
				Parents:  stringToSet(cols[3]),
				Children: stringToSet(cols[4]),
			}
		case 3:
			out[cols[0]] = TermStatus{Obsolete: cols[1] == "True", Synonyms: stringToSet(cols[2])}
		}
	})
	if err != nil {
		return nil, fmt.Errorf("read xref mappings: %w", err)
	}
	return out, nil
}

// ReadLatestMappings parses "<id>\t<obsolete>\t<synonyms>" lines.
func ReadLatestMappings(r io.Reader) (map[string]TermStatus, error) {
	out := make(map[string]TermStatus)
	err := eachRow(r, func(cols []string) {
		if len(cols) == 3 {
			out[cols[0]] = TermStatus{Obsolete: cols[1] == "True", Synonyms: stringToSet(cols[2])}
		}
	})
	if err != nil {
		return nil, fmt.Errorf("read latest mappings: %w", err)
	}
	return out, nil
}

// LoadEvaluation reads the three evaluation files.
func LoadEvaluation(genesPath, xrefsPath, latestPath string) (*Evaluation, error) {
	ev := &Evaluation{}
	loaders := []struct {
		path string
		read func(io.Reader) error
	}{
		{genesPath, func(r io.Reader) (err error) { ev.Genes, err = ReadGeneMappings(r); return }},
		{xrefsPath, func(r io.Reader) (err error) { ev.XRefs, err = ReadXRefMappings(r); return }},
		{latestPath, func(r io.Reader) (err error) { ev.Latest, err = ReadLatestMappings(r); return }},
	}
	for _, l := range loaders {
		f, err := os.Open(l.path)
		if err != nil {
			return nil, fmt.Errorf("open evaluation file: %w", err)
		}
		err = l.read(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", l.path, err)
		}
	}
	return ev, nil
}
