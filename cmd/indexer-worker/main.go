// Package main is the entrypoint for the Indexer Worker Lambda function.
//
// The Indexer Worker consumes IndexJobMessage payloads from the index SQS
// queue and runs catalog index jobs: fetch the tenant's storefront catalog,
// skip unchanged products by content fingerprint, enrich the rest, and
// upsert product profiles. It implements the SQS Lambda handler pattern with
// partial batch responses so only failed messages are retried.
//
// Cold Start (main):
//  1. Load and validate configuration.
//  2. Initialize structured logger, database pool, and repositories.
//  3. Initialize the Shopify catalog source and extractors.
//  4. Initialize CloudWatch metrics and the indexer, register the handler.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"

	"storepulse/internal/alerts/core"
	"storepulse/internal/config"
	"storepulse/internal/db"
	"storepulse/internal/enrichment"
	"storepulse/internal/external"
	"storepulse/internal/indexer"
	"storepulse/internal/types"
)

// slogAdapter wraps *slog.Logger to implement the types.Logger interface.
type slogAdapter struct {
	logger *slog.Logger
}

func (a *slogAdapter) Info(msg string, args ...any)  { a.logger.Info(msg, args...) }
func (a *slogAdapter) Error(msg string, args ...any) { a.logger.Error(msg, args...) }
func (a *slogAdapter) Warn(msg string, args ...any)  { a.logger.Warn(msg, args...) }
func (a *slogAdapter) With(args ...any) types.Logger {
	return &slogAdapter{logger: a.logger.With(args...)}
}

var _ types.Logger = (*slogAdapter)(nil)

// IndexRunner runs one catalog index job.
type IndexRunner interface {
	Run(ctx context.Context, tenant, jobID string, opts indexer.Options) (indexer.Summary, error)
}

// JobReader looks up index job rows for the duplicate-delivery check.
type JobReader interface {
	Get(ctx context.Context, id string) (*types.IndexJob, error)
}

// Handler holds the dependencies for the indexer worker Lambda handler.
type Handler struct {
	Indexer IndexRunner
	Jobs    JobReader

	// Defaults applied when the message leaves an option zeroed.
	AIEnabled           bool
	ConfidenceThreshold float64
	Concurrency         int

	Logger *slog.Logger
}

// Handle processes an SQS event containing one or more index job messages.
// Each message is processed independently; failures are reported through
// batchItemFailures so SQS retries only the affected messages.
func (h *Handler) Handle(ctx context.Context, sqsEvent events.SQSEvent) (events.SQSEventResponse, error) {
	response := events.SQSEventResponse{}

	for _, record := range sqsEvent.Records {
		if err := h.processMessage(ctx, record); err != nil {
			h.Logger.ErrorContext(ctx, "failed to process SQS message",
				"message_id", record.MessageId,
				"error", err,
			)
			response.BatchItemFailures = append(response.BatchItemFailures,
				events.SQSBatchItemFailure{ItemIdentifier: record.MessageId},
			)
		}
	}

	return response, nil
}

// processMessage runs one index job end to end.
func (h *Handler) processMessage(ctx context.Context, record events.SQSMessage) error {
	var msg types.IndexJobMessage
	if err := json.Unmarshal([]byte(record.Body), &msg); err != nil {
		h.Logger.ErrorContext(ctx, "failed to unmarshal index job message",
			"message_id", record.MessageId,
			"error", err,
		)
		// Permanent parse failure, ACK so the message is not redelivered.
		return nil
	}
	if msg.JobID == "" || msg.Tenant == "" {
		h.Logger.ErrorContext(ctx, "index job message missing identity",
			"message_id", record.MessageId)
		return nil
	}

	logger := h.Logger.With(
		"job_id", msg.JobID,
		"tenant", msg.Tenant,
		"trace_id", msg.TraceID,
	)

	// Duplicate-delivery check: SQS is at-least-once. Only pending jobs run;
	// a redelivered message finds the job already running or finished.
	job, err := h.Jobs.Get(ctx, msg.JobID)
	if err != nil {
		return fmt.Errorf("job lookup: %w", err)
	}
	if job.Status != types.JobStatusPending {
		logger.InfoContext(ctx, "skipping non-pending index job",
			"status", string(job.Status))
		return nil
	}

	opts := indexer.Options{
		UseAIEnrichment:     h.AIEnabled && msg.UseAIEnrichment,
		ConfidenceThreshold: msg.ConfidenceThreshold,
		Concurrency:         msg.Concurrency,
		ProductIDs:          msg.ProductIDs,
	}
	if opts.ConfidenceThreshold <= 0 {
		opts.ConfidenceThreshold = h.ConfidenceThreshold
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = h.Concurrency
	}

	logger.InfoContext(ctx, "starting index run",
		"ai_enrichment", opts.UseAIEnrichment,
		"restricted_products", len(opts.ProductIDs),
	)

	summary, err := h.Indexer.Run(ctx, msg.Tenant, msg.JobID, opts)
	if err != nil {
		return fmt.Errorf("index run: %w", err)
	}

	logger.InfoContext(ctx, "index run complete",
		"total", summary.Total,
		"processed", summary.Processed,
		"skipped", summary.Skipped,
		"failed", summary.Failed,
		"enriched", summary.Enriched,
	)
	return nil
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	typedLogger := &slogAdapter{logger: logger}

	logger.Info("indexer worker initializing (cold start)",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
	)

	ctx := context.Background()

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to initialize database pool", "error", err)
		os.Exit(1)
	}

	jobRepo := db.NewIndexJobRepository(pool)
	productRepo := db.NewProductRepository(pool)

	var catalog external.CatalogSource
	if cfg.Environment == "local" {
		logger.Warn("local environment, using stub catalog source")
		catalog = &external.StubCatalogSource{Logger: typedLogger}
	} else {
		catalog = external.NewShopifyClient(external.ShopifyClientConfig{
			AccessToken: cfg.Catalog.ShopifyToken,
			APIVersion:  cfg.Catalog.ShopifyAPIVersion,
			PageSize:    cfg.Catalog.PageSize,
			UserAgent:   cfg.Webhook.UserAgent,
			Logger:      typedLogger,
		})
	}

	var llm enrichment.Extractor
	var embedder indexer.Embedder
	var search indexer.SearchIndex
	aiEnabled := cfg.Feature.EnableAIEnrichment && cfg.Enrichment.OpenAIAPIKey.Unmask() != ""
	if aiEnabled {
		llm = enrichment.NewLLMExtractor(
			cfg.Enrichment.OpenAIAPIKey,
			cfg.Enrichment.Model,
			cfg.Enrichment.Timeout,
			typedLogger,
		)
		embedder = enrichment.NewEmbedder(
			cfg.Enrichment.OpenAIAPIKey,
			cfg.Enrichment.EmbeddingModel,
			cfg.Enrichment.Timeout,
			typedLogger,
		)
		search = productRepo
	} else {
		logger.Info("AI enrichment disabled, running heuristic-only")
	}

	var metrics core.AlertMetrics = core.NoopAlertMetrics{}
	if cfg.Environment != "local" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
		if err != nil {
			logger.Error("failed to load AWS SDK config", "error", err)
			os.Exit(1)
		}
		metrics = core.NewCloudWatchAlertMetrics(
			cloudwatch.NewFromConfig(awsCfg), cfg.Observability.MetricNamespace, typedLogger)
	}

	handler := &Handler{
		Indexer: indexer.New(indexer.Config{
			Jobs:      jobRepo,
			Profiles:  productRepo,
			Catalog:   catalog,
			Heuristic: enrichment.NewHeuristicExtractor(),
			LLM:       llm,
			Embedder:  embedder,
			Search:    search,
			Metrics:   metrics,
			Logger:    logger,
		}),
		Jobs:                jobRepo,
		AIEnabled:           aiEnabled,
		ConfidenceThreshold: cfg.Enrichment.ConfidenceThreshold,
		Concurrency:         cfg.Enrichment.Concurrency,
		Logger:              logger,
	}

	logger.Info("indexer worker initialized",
		"ai_enrichment", aiEnabled,
		"model", cfg.Enrichment.Model,
		"confidence_threshold", cfg.Enrichment.ConfidenceThreshold,
	)

	// Local mode: read a JSON SQS event from stdin instead of starting the
	// Lambda runtime. Usage:
	//   echo '{"Records":[{"messageId":"1","body":"{...}"}]}' | APP_ENV=local go run ./cmd/indexer-worker
	if cfg.Environment == "local" {
		payload, err := io.ReadAll(os.Stdin)
		if err != nil || len(payload) == 0 {
			logger.Error("no SQS event received on stdin", "error", err)
			os.Exit(1)
		}
		var sqsEvent events.SQSEvent
		if err := json.Unmarshal(payload, &sqsEvent); err != nil {
			logger.Error("failed to parse stdin as SQS event", "error", err)
			os.Exit(1)
		}
		response, err := handler.Handle(ctx, sqsEvent)
		if err != nil {
			logger.Error("handler execution failed", "error", err)
			os.Exit(1)
		}
		logger.Info("handler execution completed",
			"records_processed", len(sqsEvent.Records),
			"failures", len(response.BatchItemFailures),
		)
		return
	}

	lambda.Start(handler.Handle)
}
