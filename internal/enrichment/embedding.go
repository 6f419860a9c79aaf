package enrichment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"storepulse/internal/types"
)

// EmbeddingClient abstracts the OpenAI embeddings call for testability.
type EmbeddingClient interface {
	CreateEmbeddings(ctx context.Context, req openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error)
}

// Embedder produces search vectors for product profiles. The vectors back
// the storefront quiz's similarity search; they are regenerated whenever a
// product's content fingerprint changes.
type Embedder struct {
	client  EmbeddingClient
	model   openai.EmbeddingModel
	timeout time.Duration
	logger  types.Logger
}

// NewEmbedder creates an Embedder backed by the OpenAI API. A timeout of
// zero disables the per-call deadline.
func NewEmbedder(apiKey types.SecretString, model string, timeout time.Duration, logger types.Logger) *Embedder {
	return &Embedder{
		client:  openai.NewClient(apiKey.Unmask()),
		model:   openai.EmbeddingModel(model),
		timeout: timeout,
		logger:  logger,
	}
}

// NewEmbedderWithClient creates an Embedder with a caller-supplied embeddings
// client. This constructor exists for testing.
func NewEmbedderWithClient(client EmbeddingClient, model string, logger types.Logger) *Embedder {
	return &Embedder{
		client: client,
		model:  openai.EmbeddingModel(model),
		logger: logger,
	}
}

// Embed returns the search vector for a product profile.
func (e *Embedder) Embed(ctx context.Context, profile *types.ProductProfile) ([]float32, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{EmbeddingText(profile)},
		Model: e.model,
	})
	if err != nil {
		return nil, types.NewAppError(
			types.ErrCodeUpstreamEnrichment,
			fmt.Sprintf("embedding request failed for product %s", profile.ShopifyProductID),
			err,
		)
	}
	if len(resp.Data) == 0 {
		return nil, types.NewAppError(
			types.ErrCodeUpstreamEnrichment,
			fmt.Sprintf("embedding returned no data for product %s", profile.ShopifyProductID),
			nil,
		)
	}
	if len(resp.Data) > 1 {
		e.logger.Warn("embedding returned extra vectors for single input",
			"product_id", profile.ShopifyProductID,
			"count", len(resp.Data),
		)
	}
	return resp.Data[0].Embedding, nil
}

// EmbeddingText flattens a profile into the text that gets embedded. The
// extracted attributes lead so two mattresses with the same firmness and
// material land near each other even when their marketing copy differs.
func EmbeddingText(p *types.ProductProfile) string {
	var b strings.Builder
	b.WriteString(p.Title)
	writeField(&b, "firmness", p.Firmness)
	writeField(&b, "material", p.Material)
	writeField(&b, "height", p.Height)
	writeList(&b, "certifications", p.Certifications)
	writeList(&b, "features", p.Features)
	writeList(&b, "support", p.SupportFeatures)
	writeField(&b, "vendor", p.Vendor)
	writeField(&b, "type", p.ProductType)
	if p.Description != "" {
		b.WriteString("\n")
		b.WriteString(p.Description)
	}
	return b.String()
}

func writeField(b *strings.Builder, label, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(b, "\n%s: %s", label, value)
}

func writeList(b *strings.Builder, label string, values []string) {
	if len(values) == 0 {
		return
	}
	fmt.Fprintf(b, "\n%s: %s", label, strings.Join(values, ", "))
}
