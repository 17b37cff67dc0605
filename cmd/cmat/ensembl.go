package main

import (
	"context"
	"fmt"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ebivariation/cmat/internal/biomart"
	"github.com/ebivariation/cmat/internal/consequence"
	"github.com/ebivariation/cmat/internal/duckdb"
	"github.com/ebivariation/cmat/internal/ols"
	"github.com/ebivariation/cmat/internal/retry"
	"github.com/ebivariation/cmat/internal/vep"
)

func retryPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts:    viper.GetInt("retry.max_attempts"),
		BaseDelay:      viper.GetDuration("retry.base_delay"),
		Growth:         viper.GetFloat64("retry.growth"),
		JitterMin:      viper.GetDuration("retry.jitter_min"),
		JitterMax:      viper.GetDuration("retry.jitter_max"),
		AttemptTimeout: viper.GetDuration("retry.attempt_timeout"),
	}
}

// openCache opens the Ensembl response cache at cache.path; an empty path
// keeps it in memory.
func openCache() (*duckdb.Store, error) {
	path := viper.GetString("cache.path")
	s, err := duckdb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open ensembl cache: %w", err)
	}
	logger.Debug("opened ensembl cache", zap.String("path", path))
	return s, nil
}

func newVEPClient(cache *duckdb.Store) *vep.Client {
	c := vep.NewClient(viper.GetString("ensembl.rest_url"))
	c.SetLogger(logger.Named("vep"))
	c.SetRetryPolicy(retryPolicy())
	c.SetRateLimit(viper.GetFloat64("ensembl.requests_per_second"))
	c.SetWorkers(viper.GetInt("vep.workers"))
	c.SetBatchSize(viper.GetInt("vep.batch_size"))
	if cache != nil {
		c.SetCache(cache)
	}
	return c
}

func newGeneResolver() *biomart.Resolver {
	c := biomart.NewClient(viper.GetString("ensembl.biomart_url"))
	c.SetLogger(logger.Named("biomart"))
	c.SetRetryPolicy(retryPolicy())
	c.SetRateLimit(viper.GetFloat64("ensembl.requests_per_second"))
	return biomart.NewResolver(c)
}

// soCatalog builds the SO term catalog from the cache, fetching the term
// accessions from OLS and the severity ranking from Ensembl when missing.
func soCatalog(ctx context.Context, cache *duckdb.Store) (*consequence.Catalog, error) {
	terms, err := cache.LoadSOTerms(ctx)
	if err != nil {
		return nil, fmt.Errorf("load so terms: %w", err)
	}
	if len(terms) == 0 {
		c := ols.NewClient(viper.GetString("ols.url"))
		c.SetLogger(logger.Named("ols"))
		c.SetRetryPolicy(retryPolicy())
		c.SetRateLimit(viper.GetFloat64("ensembl.requests_per_second"))
		if terms, err = c.SOTerms(ctx); err != nil {
			return nil, fmt.Errorf("fetch so terms: %w", err)
		}
		if err := cache.WriteSOTerms(ctx, terms); err != nil {
			return nil, fmt.Errorf("store so terms: %w", err)
		}
	}

	ranking, err := newVEPClient(cache).SeverityRanking(ctx)
	if err != nil {
		return nil, fmt.Errorf("severity ranking: %w", err)
	}
	logger.Info("loaded sequence ontology catalog", zap.Int("terms", len(terms)), zap.Int("ranked", len(ranking)))
	return consequence.NewCatalog(terms, ranking), nil
}
