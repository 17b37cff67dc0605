// Package main provides the cmat command-line tool.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ebivariation/cmat/internal/biomart"
	"github.com/ebivariation/cmat/internal/clinvar"
	"github.com/ebivariation/cmat/internal/ols"
	"github.com/ebivariation/cmat/internal/retry"
	"github.com/ebivariation/cmat/internal/vep"
)

// Exit codes
const (
	ExitSuccess = 0
	ExitError   = 1
	ExitUsage   = 2
)

// Version information (set at build time)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	cfgFile string
	verbose bool
	logger  = zap.NewNop()
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer func() { _ = logger.Sync() }()
	err := newRootCmd().ExecuteContext(ctx)
	switch {
	case err == nil:
		return ExitSuccess
	case strings.HasPrefix(err.Error(), "unknown command"), strings.HasPrefix(err.Error(), "unknown flag"):
		return ExitUsage
	default:
		return ExitError
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "cmat",
		Short: "ClinVar Mapping and Annotation Toolkit",
		Long: `cmat turns the ClinVar XML release into Open Targets evidence strings,
functional consequence tables and an annotated copy of the release.`,
		Version:       fmt.Sprintf("%s (%s) built %s", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := initConfig(); err != nil {
				return err
			}
			l, err := newLogger(verbose)
			if err != nil {
				return fmt.Errorf("create logger: %w", err)
			}
			logger = l
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default ~/.cmat.yaml)")
	pf.BoolVarP(&verbose, "verbose", "v", false, "development logging at debug level")

	root.AddCommand(
		newAggregateCountsCmd(),
		newGenerateEvidenceCmd(),
		newAnnotatedXMLCmd(),
		newRepeatExpansionCmd(),
		newStructuralVariantsCmd(),
		newConfigCmd(),
	)
	return root
}

// defaults are the configuration keys with their default values.
func defaults() map[string]any {
	policy := retry.DefaultPolicy()
	return map[string]any{
		"ensembl.rest_url":            vep.DefaultURL,
		"ensembl.biomart_url":         biomart.DefaultURL,
		"ensembl.requests_per_second": 15.0,
		"ols.url":                     ols.DefaultURL,
		"retry.max_attempts":          policy.MaxAttempts,
		"retry.base_delay":            policy.BaseDelay,
		"retry.growth":                policy.Growth,
		"retry.jitter_min":            policy.JitterMin,
		"retry.jitter_max":            policy.JitterMax,
		"retry.attempt_timeout":       policy.AttemptTimeout,
		"vep.workers":                 4,
		"vep.batch_size":              vep.MaxBatchSize,
		"cache.path":                  defaultCachePath(),
		"clinvar.default_xsd_version": clinvar.DefaultXSDVersion,
	}
}

func defaultCachePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".cmat", "ensembl.duckdb")
}

// initConfig reads the config file and CMAT_* environment variables.
func initConfig() error {
	for k, v := range defaults() {
		viper.SetDefault(k, v)
	}
	viper.SetEnvPrefix("cmat")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
		}
		viper.SetConfigName(".cmat")
		viper.SetConfigType("yaml")
	}
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}
	return nil
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	return cfg.Build()
}

// openRelease opens a ClinVar release with the configured logger and
// default schema version.
func openRelease(path string) (*clinvar.Reader, error) {
	r, err := clinvar.Open(path)
	if err != nil {
		return nil, err
	}
	r.SetLogger(logger)
	r.SetDefaultXSDVersion(viper.GetFloat64("clinvar.default_xsd_version"))
	return r, nil
}

// requireFlags marks flags as required, panicking on a misspelt name.
func requireFlags(cmd *cobra.Command, names ...string) {
	for _, n := range names {
		if err := cmd.MarkFlagRequired(n); err != nil {
			panic(err)
		}
	}
}
