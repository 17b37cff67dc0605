package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ebivariation/cmat/internal/consequence"
	"github.com/ebivariation/cmat/internal/evidence"
	"github.com/ebivariation/cmat/internal/ontology"
	"github.com/ebivariation/cmat/internal/report"
)

func newGenerateEvidenceCmd() *cobra.Command {
	var (
		clinvarXML  string
		efoMapping  string
		geneMapping string
		schema      string
		outDir      string
		resume      bool
	)
	cmd := &cobra.Command{
		Use:   "generate-evidence",
		Short: "Generate Open Targets evidence strings from a ClinVar release",
		Long: `Join every ClinVar record with the trait mappings and functional consequences
and write one validated evidence string per line to evidence_strings.json.
counts.yml and unmapped_traits.tsv are written next to it.`,
		Example: `  cmat generate-evidence --clinvar-xml ClinVarFullRelease.xml.gz \
    --efo-mapping trait_names_to_ontology_mappings.tsv \
    --gene-mapping consequences.tsv --ot-schema opentargets.json --out evidence/`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			mapping, err := ontology.LoadMapping(efoMapping)
			if err != nil {
				return err
			}
			cache, err := openCache()
			if err != nil {
				return err
			}
			defer cache.Close()
			catalog, err := soCatalog(ctx, cache)
			if err != nil {
				return err
			}
			store, err := consequence.Load(geneMapping, catalog, logger)
			if err != nil {
				return err
			}
			validator, err := evidence.LoadValidator(schema)
			if err != nil {
				return err
			}

			if err := os.MkdirAll(outDir, 0o755); err != nil {
				return fmt.Errorf("create output directory: %w", err)
			}
			path := filepath.Join(outDir, evidence.EvidenceStringsFileName)
			done := map[string]bool{}
			flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
			if resume {
				if done, err = evidence.LoadStudyIDs(path); err != nil {
					return fmt.Errorf("read existing evidence: %w", err)
				}
				flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
				logger.Info("resuming evidence generation", zap.Int("done", len(done)))
			}
			out, err := os.OpenFile(path, flags, 0o644)
			if err != nil {
				return fmt.Errorf("open evidence output: %w", err)
			}
			defer out.Close()

			r, err := openRelease(clinvarXML)
			if err != nil {
				return err
			}
			defer r.Close()

			a := evidence.NewAssembler(mapping, store, validator)
			a.SetLogger(logger.Named("evidence"))
			a.SetSkip(done)
			if err := a.Run(ctx, r, out); err != nil {
				return err
			}
			if err := out.Close(); err != nil {
				return fmt.Errorf("close evidence output: %w", err)
			}

			rep := a.Report()
			if err := rep.WriteFiles(outDir); err != nil {
				return err
			}
			return printReport(cmd.OutOrStdout(), rep)
		},
	}

	f := cmd.Flags()
	f.StringVar(&clinvarXML, "clinvar-xml", "", "ClinVar release XML (gzipped or plain)")
	f.StringVar(&efoMapping, "efo-mapping", "", "trait name to ontology mapping file")
	f.StringVar(&geneMapping, "gene-mapping", "", "variant to gene and consequence mapping file")
	f.StringVar(&schema, "ot-schema", "", "Open Targets JSON schema (path or URL)")
	f.StringVar(&outDir, "out", "", "output directory")
	f.BoolVar(&resume, "resume", false, "append to an existing evidence_strings.json, skipping records already in it")
	requireFlags(cmd, "clinvar-xml", "efo-mapping", "gene-mapping", "ot-schema", "out")
	return cmd
}

func newAggregateCountsCmd() *cobra.Command {
	var patterns []string
	cmd := &cobra.Command{
		Use:   "aggregate-counts",
		Short: "Sum counts files from partial evidence runs",
		Example: `  cmat aggregate-counts --counts-yml 'evidence_*/counts.yml'
  cmat aggregate-counts --counts-yml a/counts.yml --counts-yml b/counts.yml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var paths []string
			for _, p := range patterns {
				matches, err := filepath.Glob(p)
				if err != nil {
					return fmt.Errorf("bad pattern %q: %w", p, err)
				}
				if len(matches) == 0 {
					return fmt.Errorf("no counts files match %q", p)
				}
				paths = append(paths, matches...)
			}
			rep, err := report.Aggregate(paths, logger)
			if err != nil {
				return err
			}
			logger.Info("aggregated counts", zap.Int("files", len(paths)))
			return printReport(cmd.OutOrStdout(), rep)
		},
	}
	cmd.Flags().StringSliceVar(&patterns, "counts-yml", nil, "counts files or glob patterns")
	requireFlags(cmd, "counts-yml")
	return cmd
}

// printReport prints the report followed by a coloured verdict on the
// tally identity. Inconsistent counts are returned as an error.
func printReport(w io.Writer, rep *report.Report) error {
	if err := rep.Print(w); err != nil {
		return err
	}
	if err := rep.CheckCounts(); err != nil {
		color.New(color.FgRed, color.Bold).Fprintln(w, "Record counts are inconsistent")
		return err
	}
	color.New(color.FgGreen).Fprintln(w, "Record counts are consistent")
	return nil
}
