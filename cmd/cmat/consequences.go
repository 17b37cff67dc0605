package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ebivariation/cmat/internal/output"
	"github.com/ebivariation/cmat/internal/repeat"
	"github.com/ebivariation/cmat/internal/structural"
)

func newRepeatExpansionCmd() *cobra.Command {
	var (
		clinvarXML         string
		includeTranscripts bool
		outConsequences    string
		outDataframe       string
	)
	cmd := &cobra.Command{
		Use:   "repeat-expansion",
		Short: "Derive consequences for repeat expansion variants",
		Long: `Classify microsatellite records as trinucleotide or short tandem repeat
expansions, resolve their genes through BioMart and write the consequence table.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRelease(clinvarXML)
			if err != nil {
				return err
			}
			defer r.Close()

			p := repeat.NewPipeline(newGeneResolver(), includeTranscripts)
			p.SetLogger(logger.Named("repeat"))
			variants, rows, err := p.Run(cmd.Context(), r)
			if err != nil {
				return err
			}
			if err := writeConsequences(outConsequences, rows, includeTranscripts); err != nil {
				return err
			}
			if outDataframe != "" {
				f, err := os.Create(outDataframe)
				if err != nil {
					return fmt.Errorf("create dataframe: %w", err)
				}
				if err := repeat.WriteAllVariants(f, variants); err != nil {
					f.Close()
					return fmt.Errorf("write dataframe: %w", err)
				}
				return f.Close()
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&clinvarXML, "clinvar-xml", "", "ClinVar release XML (gzipped or plain)")
	f.BoolVar(&includeTranscripts, "include-transcripts", false, "add a transcript column to the output")
	f.StringVar(&outConsequences, "output-consequences", "", "consequence table to write")
	f.StringVar(&outDataframe, "output-dataframe", "", "optional table of every variant with its classification")
	requireFlags(cmd, "clinvar-xml", "output-consequences")
	return cmd
}

func newStructuralVariantsCmd() *cobra.Command {
	var (
		clinvarXML         string
		includeTranscripts bool
		outConsequences    string
	)
	cmd := &cobra.Command{
		Use:   "structural-variants",
		Short: "Derive consequences for variants without complete coordinates",
		Long: `Send the HGVS of records lacking VCF coordinates to Ensembl VEP as region
queries and write the most severe consequence per gene.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cache, err := openCache()
			if err != nil {
				return err
			}
			defer cache.Close()

			r, err := openRelease(clinvarXML)
			if err != nil {
				return err
			}
			defer r.Close()

			p := structural.NewPipeline(newVEPClient(cache), includeTranscripts)
			p.SetLogger(logger.Named("structural"))
			rows, err := p.Run(cmd.Context(), r)
			if err != nil {
				return err
			}
			return writeConsequences(outConsequences, rows, includeTranscripts)
		},
	}
	f := cmd.Flags()
	f.StringVar(&clinvarXML, "clinvar-xml", "", "ClinVar release XML (gzipped or plain)")
	f.BoolVar(&includeTranscripts, "include-transcripts", false, "add a transcript column to the output")
	f.StringVar(&outConsequences, "output-consequences", "", "consequence table to write")
	requireFlags(cmd, "clinvar-xml", "output-consequences")
	return cmd
}

func writeConsequences(path string, rows []output.ConsequenceRow, includeTranscripts bool) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create consequences: %w", err)
	}
	cw := output.NewConsequenceWriter(f, includeTranscripts)
	if err := cw.WriteAll(rows); err != nil {
		f.Close()
		return fmt.Errorf("write consequences: %w", err)
	}
	if err := cw.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("write consequences: %w", err)
	}
	logger.Info("wrote consequences", zap.String("path", path), zap.Int("rows", cw.Count()))
	return f.Close()
}
