package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ebivariation/cmat/internal/annotate"
	"github.com/ebivariation/cmat/internal/clinvar"
	"github.com/ebivariation/cmat/internal/consequence"
	"github.com/ebivariation/cmat/internal/ontology"
)

func newAnnotatedXMLCmd() *cobra.Command {
	var (
		clinvarXML  string
		efoMapping  string
		geneMapping string
		outputXML   string
		evalGenes   string
		evalXRefs   string
		evalLatest  string
	)
	cmd := &cobra.Command{
		Use:   "generate-annotated-xml",
		Short: "Write a copy of the ClinVar release annotated with ontology and consequence mappings",
		Long: `Re-emit the release, adding EFO cross-references to traits and molecular
consequences to measures. With all three --eval-* files the annotations are
compared with those already in ClinVar and mismatches.tsv is written next to
the output.`,
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

			a := annotate.NewAnnotator(mapping, store)
			a.SetLogger(logger.Named("annotate"))
			if evalGenes != "" && evalXRefs != "" && evalLatest != "" {
				ev, err := annotate.LoadEvaluation(evalGenes, evalXRefs, evalLatest)
				if err != nil {
					return err
				}
				mismatches, err := os.Create(filepath.Join(filepath.Dir(outputXML), annotate.MismatchesFileName))
				if err != nil {
					return fmt.Errorf("create mismatches file: %w", err)
				}
				defer mismatches.Close()
				a.SetEvaluation(ev, mismatches)
			}

			r, err := openRelease(clinvarXML)
			if err != nil {
				return err
			}
			defer r.Close()
			w, err := clinvar.Create(outputXML)
			if err != nil {
				return err
			}
			if err := a.Run(ctx, r, w); err != nil {
				w.Close()
				return err
			}
			if err := w.Close(); err != nil {
				return err
			}
			logger.Info("wrote annotated release", zap.String("path", outputXML), zap.Int("sets", w.Count()))
			return a.Report(cmd.OutOrStdout())
		},
	}

	f := cmd.Flags()
	f.StringVar(&clinvarXML, "clinvar-xml", "", "ClinVar release XML (gzipped or plain)")
	f.StringVar(&efoMapping, "efo-mapping", "", "trait name to ontology mapping file")
	f.StringVar(&geneMapping, "gene-mapping", "", "variant to gene and consequence mapping file")
	f.StringVar(&outputXML, "output-xml", "", "annotated release to write (gzipped)")
	f.StringVar(&evalGenes, "eval-gene-mappings", "", "RCV to Ensembl gene mappings from ClinVar")
	f.StringVar(&evalXRefs, "eval-xref-mappings", "", "status and synonyms of ClinVar ontology xrefs")
	f.StringVar(&evalLatest, "eval-latest-mappings", "", "status and synonyms of mapped ontology terms")
	requireFlags(cmd, "clinvar-xml", "efo-mapping", "gene-mapping", "output-xml")
	return cmd
}
