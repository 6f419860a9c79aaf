// Package indexer runs catalog index jobs: it pulls a tenant's storefront
// catalog, skips products whose content fingerprint is unchanged, enriches
// the rest, and upserts the resulting product profiles. A single bad product
// never fails the job; it is counted and the run carries on.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"storepulse/internal/alerts/core"
	"storepulse/internal/enrichment"
	"storepulse/internal/external"
	"storepulse/internal/types"
)

const (
	defaultConcurrency = 4

	// maxCatalogPages bounds pagination so a broken cursor cannot spin the
	// worker forever.
	maxCatalogPages = 500
)

// JobStore is the persistence surface the indexer needs for index job rows.
type JobStore interface {
	// MarkRunning transitions a pending job to running and records the total.
	MarkRunning(ctx context.Context, id string, totalProducts int, at time.Time) error
	// IncrementProcessed bumps the job's processed_products counter.
	IncrementProcessed(ctx context.Context, id string) error
	// IncrementFailed bumps the job's failed_products counter.
	IncrementFailed(ctx context.Context, id string) error
	// Finish records the terminal status and finished_at timestamp.
	Finish(ctx context.Context, id string, status types.IndexJobStatus, errorMessage string, at time.Time) error
}

// ProfileStore is the persistence surface for product profiles.
type ProfileStore interface {
	// GetByExternalID returns the stored profile, or nil when the product has
	// never been indexed.
	GetByExternalID(ctx context.Context, tenant, shopifyProductID string) (*types.ProductProfile, error)
	// Upsert inserts or replaces a profile keyed on (tenant, shopify_product_id).
	Upsert(ctx context.Context, p *types.ProductProfile) error
}

// Embedder produces a search vector for a product profile.
type Embedder interface {
	Embed(ctx context.Context, profile *types.ProductProfile) ([]float32, error)
}

// SearchIndex persists search vectors for indexed profiles.
type SearchIndex interface {
	// UpsertEmbedding stores the vector for (tenant, shopify_product_id).
	UpsertEmbedding(ctx context.Context, tenant, shopifyProductID string, vector []float32) error
}

// Options control a single index run.
type Options struct {
	// UseAIEnrichment enables the LLM extractor for dirty products. The
	// heuristic extractor always runs regardless.
	UseAIEnrichment bool

	// ConfidenceThreshold is the minimum LLM confidence required before its
	// output is preferred over the heuristic extraction.
	ConfidenceThreshold float64

	// Concurrency caps the product worker pool. Zero means the default.
	Concurrency int

	// ProductIDs restricts the run to only these storefront products.
	// Empty means the full catalog. Used for webhook-driven updates where
	// only a handful of products changed.
	ProductIDs []string
}

// Summary reports what a run did.
type Summary struct {
	Total     int
	Processed int
	Skipped   int
	Failed    int
	Enriched  int
}

// Indexer executes catalog index jobs.
type Indexer struct {
	jobs      JobStore
	profiles  ProfileStore
	catalog   external.CatalogSource
	heuristic enrichment.Extractor
	llm       enrichment.Extractor
	embedder  Embedder
	search    SearchIndex
	metrics   core.AlertMetrics
	clock     types.Clock
	logger    *slog.Logger
}

// Config wires an Indexer's collaborators.
type Config struct {
	Jobs      JobStore
	Profiles  ProfileStore
	Catalog   external.CatalogSource
	Heuristic enrichment.Extractor
	// LLM may be nil; runs then fall back to heuristic-only enrichment even
	// when Options request AI enrichment.
	LLM enrichment.Extractor
	// Embedder and Search are optional as a pair. When both are set, every
	// changed product gets its search vector regenerated after the profile
	// write; when either is nil the sync step is skipped entirely.
	Embedder Embedder
	Search   SearchIndex
	Metrics  core.AlertMetrics
	Logger   *slog.Logger
}

// New creates an Indexer.
func New(cfg Config) *Indexer {
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = core.NoopAlertMetrics{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{
		jobs:      cfg.Jobs,
		profiles:  cfg.Profiles,
		catalog:   cfg.Catalog,
		heuristic: cfg.Heuristic,
		llm:       cfg.LLM,
		embedder:  cfg.Embedder,
		search:    cfg.Search,
		metrics:   metrics,
		clock:     types.RealClock{},
		logger:    logger,
	}
}

// SetClock overrides the indexer's clock. Used in tests.
func (ix *Indexer) SetClock(c types.Clock) { ix.clock = c }

// Run executes one index job for a tenant. The catalog is fetched up front so
// the job row carries an accurate total, then products are processed by a
// bounded worker pool. Per-product failures are counted and skipped; Run only
// returns an error when the job as a whole could not proceed.
func (ix *Indexer) Run(ctx context.Context, tenant, jobID string, opts Options) (Summary, error) {
	products, err := ix.fetchCatalog(ctx, tenant)
	if err != nil {
		ix.logger.ErrorContext(ctx, "catalog fetch failed",
			"tenant", tenant, "job_id", jobID, "error", err)
		ix.finish(ctx, jobID, types.JobStatusFailed, fmt.Sprintf("catalog fetch failed: %v", err))
		return Summary{}, err
	}
	if len(opts.ProductIDs) > 0 {
		products = filterProducts(products, opts.ProductIDs)
	}

	if err := ix.jobs.MarkRunning(ctx, jobID, len(products), ix.clock.Now()); err != nil {
		return Summary{}, err
	}

	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	var processed, skipped, failed, enriched atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, product := range products {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			outcome := ix.processProduct(gctx, tenant, jobID, product, opts)
			switch outcome.status {
			case productProcessed:
				processed.Add(1)
				if outcome.enriched {
					enriched.Add(1)
				}
			case productSkipped:
				skipped.Add(1)
				processed.Add(1)
			case productFailed:
				failed.Add(1)
			}
			// Worker errors are never propagated; one bad product must not
			// cancel the rest of the pool.
			return nil
		})
	}
	_ = g.Wait()

	summary := Summary{
		Total:     len(products),
		Processed: int(processed.Load()),
		Skipped:   int(skipped.Load()),
		Failed:    int(failed.Load()),
		Enriched:  int(enriched.Load()),
	}

	ix.metrics.RecordIndexProgress(ctx, tenant, summary.Processed, summary.Failed)

	status := types.JobStatusCompleted
	errorMessage := ""
	switch {
	case ctx.Err() != nil:
		status = types.JobStatusFailed
		errorMessage = fmt.Sprintf("run interrupted after %d of %d products: %v",
			summary.Processed, summary.Total, ctx.Err())
	case summary.Failed > 0:
		status = types.JobStatusFailed
		errorMessage = fmt.Sprintf("%d of %d products failed", summary.Failed, summary.Total)
	}
	ix.finish(ctx, jobID, status, errorMessage)

	ix.logger.InfoContext(ctx, "index run finished",
		"tenant", tenant,
		"job_id", jobID,
		"status", string(status),
		"total", summary.Total,
		"processed", summary.Processed,
		"skipped", summary.Skipped,
		"failed", summary.Failed,
		"enriched", summary.Enriched,
	)
	return summary, nil
}

type productStatus int

const (
	productProcessed productStatus = iota
	productSkipped
	productFailed
)

type productOutcome struct {
	status   productStatus
	enriched bool
}

// processProduct indexes a single product and records its counter bump.
func (ix *Indexer) processProduct(ctx context.Context, tenant, jobID string, product types.CatalogProduct, opts Options) productOutcome {
	hash := Fingerprint(product)

	existing, err := ix.profiles.GetByExternalID(ctx, tenant, product.ID)
	if err != nil {
		ix.recordFailure(ctx, tenant, jobID, product.ID, "profile lookup failed", err)
		return productOutcome{status: productFailed}
	}

	// Unchanged products are skipped without touching the extractors.
	if existing != nil && existing.ContentHash == hash {
		ix.bump(ctx, jobID, ix.jobs.IncrementProcessed)
		return productOutcome{status: productSkipped}
	}

	heurAttrs, err := ix.heuristic.Extract(ctx, product)
	if err != nil {
		ix.logger.WarnContext(ctx, "heuristic extraction failed",
			"tenant", tenant, "product_id", product.ID, "error", err)
		heurAttrs = nil
	}

	var llmAttrs *types.ExtractedAttributes
	if opts.UseAIEnrichment && ix.llm != nil {
		llmAttrs, err = ix.llm.Extract(ctx, product)
		if err != nil {
			// Enrichment is best-effort; fall back to the heuristic result.
			ix.logger.WarnContext(ctx, "llm extraction failed, using heuristic",
				"tenant", tenant, "product_id", product.ID, "error", err)
			llmAttrs = nil
		}
	}

	attrs, method := enrichment.Merge(heurAttrs, llmAttrs, opts.ConfidenceThreshold)

	profile := &types.ProductProfile{
		Tenant:               tenant,
		ShopifyProductID:     product.ID,
		Title:                product.Title,
		Description:          product.Description,
		Vendor:               product.Vendor,
		ProductType:          product.ProductType,
		ImageURL:             product.ImageURL,
		Firmness:             attrs.Firmness,
		Height:               attrs.Height,
		Material:             attrs.Material,
		Certifications:       attrs.Certifications,
		Features:             attrs.Features,
		SupportFeatures:      attrs.SupportFeatures,
		EnrichmentMethod:     method,
		EnrichmentConfidence: attrs.Confidence,
		ContentHash:          hash,
	}
	if existing != nil {
		profile.ID = existing.ID
	}

	if err := ix.profiles.Upsert(ctx, profile); err != nil {
		ix.recordFailure(ctx, tenant, jobID, product.ID, "profile upsert failed", err)
		return productOutcome{status: productFailed}
	}

	// Keep the search index in step with the profile. A failure here counts
	// the product failed so the job retries: the content hash has already
	// advanced, and a later run would otherwise skip the product and leave
	// its vector stale.
	if ix.embedder != nil && ix.search != nil {
		if err := ix.syncSearchIndex(ctx, tenant, profile); err != nil {
			ix.recordFailure(ctx, tenant, jobID, product.ID, "search index sync failed", err)
			return productOutcome{status: productFailed}
		}
	}

	ix.bump(ctx, jobID, ix.jobs.IncrementProcessed)
	return productOutcome{status: productProcessed, enriched: method == types.EnrichmentLLM}
}

// syncSearchIndex regenerates and stores the profile's search vector.
func (ix *Indexer) syncSearchIndex(ctx context.Context, tenant string, profile *types.ProductProfile) error {
	vector, err := ix.embedder.Embed(ctx, profile)
	if err != nil {
		return err
	}
	return ix.search.UpsertEmbedding(ctx, tenant, profile.ShopifyProductID, vector)
}

// fetchCatalog pulls every page of the tenant's catalog.
func (ix *Indexer) fetchCatalog(ctx context.Context, tenant string) ([]types.CatalogProduct, error) {
	var all []types.CatalogProduct
	pageToken := ""
	for page := 0; page < maxCatalogPages; page++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		result, err := ix.catalog.ListProducts(ctx, tenant, pageToken)
		if err != nil {
			return nil, err
		}
		all = append(all, result.Products...)
		if result.NextPage == "" {
			return all, nil
		}
		pageToken = result.NextPage
	}
	return nil, fmt.Errorf("catalog pagination exceeded %d pages for tenant %s", maxCatalogPages, tenant)
}

// filterProducts keeps only the products named by a restricted run.
func filterProducts(products []types.CatalogProduct, ids []string) []types.CatalogProduct {
	keep := make(map[string]bool, len(ids))
	for _, id := range ids {
		keep[id] = true
	}
	out := products[:0]
	for _, p := range products {
		if keep[p.ID] {
			out = append(out, p)
		}
	}
	return out
}

func (ix *Indexer) recordFailure(ctx context.Context, tenant, jobID, productID, msg string, err error) {
	ix.logger.ErrorContext(ctx, msg,
		"tenant", tenant, "job_id", jobID, "product_id", productID, "error", err)
	ix.bump(ctx, jobID, ix.jobs.IncrementFailed)
}

// bump applies a counter increment. Counter drift is tolerable; the summary
// totals written at finish are authoritative for operators.
func (ix *Indexer) bump(ctx context.Context, jobID string, fn func(context.Context, string) error) {
	if err := fn(ctx, jobID); err != nil {
		ix.logger.WarnContext(ctx, "job counter update failed", "job_id", jobID, "error", err)
	}
}

func (ix *Indexer) finish(ctx context.Context, jobID string, status types.IndexJobStatus, errorMessage string) {
	// Finish with a fresh context so a deadline that interrupted the run
	// cannot also block recording its outcome.
	finishCtx := ctx
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		finishCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
	}
	if err := ix.jobs.Finish(finishCtx, jobID, status, errorMessage, ix.clock.Now()); err != nil {
		ix.logger.ErrorContext(ctx, "failed to record job outcome",
			"job_id", jobID, "status", string(status), "error", err)
	}
}
