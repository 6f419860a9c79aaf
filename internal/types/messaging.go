package types

import "time"

// IndexJobMessage is the SQS payload that triggers a catalog index run.
// Published by the ops surface (or an upstream webhook consumer) and consumed
// by the indexer worker. JSON tags use snake_case for cross-service parity.
type IndexJobMessage struct {
	// Core Identity
	JobID  string `json:"job_id"`
	Tenant string `json:"tenant"`

	// Indexing options. Zero values mean "use configured defaults".
	UseAIEnrichment     bool    `json:"use_ai_enrichment"`
	ConfidenceThreshold float64 `json:"confidence_threshold,omitempty"`
	Concurrency         int     `json:"concurrency,omitempty"`

	// ProductIDs restricts the run to only these products. Used for
	// incremental webhook-driven updates; empty means full catalog.
	ProductIDs []string `json:"product_ids,omitempty"`

	// Observability
	RequestedAt time.Time `json:"requested_at"`
	TraceID     string    `json:"trace_id,omitempty"`
}
