package enrichment

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sashabaranov/go-openai"

	"storepulse/internal/types"
)

const systemPrompt = `You extract mattress product attributes from store listings.
Respond with a single JSON object using exactly these keys:
firmness (string: soft|plush|medium|medium-firm|firm|extra-firm or ""),
height (string, e.g. "12in", or ""),
material (string: memory-foam|gel-foam|latex|hybrid|innerspring|polyfoam or ""),
certifications (array of strings),
features (array of strings),
support_features (array of strings),
confidence (number 0..1 reflecting how certain you are overall).
Only report attributes stated or strongly implied by the text. When unsure, leave the field empty and lower confidence.`

// ChatCompleter abstracts the OpenAI chat completion call for testability.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Compile-time assertion that LLMExtractor implements Extractor.
var _ Extractor = (*LLMExtractor)(nil)

// LLMExtractor derives attributes by asking a language model for a
// structured JSON extraction. Its output is only trusted when the reported
// confidence clears the tenant's threshold; the indexer falls back to the
// heuristic extraction otherwise.
type LLMExtractor struct {
	client  ChatCompleter
	model   string
	timeout time.Duration
	logger  types.Logger
}

// NewLLMExtractor creates an LLMExtractor backed by the OpenAI API. A
// timeout of zero disables the per-call deadline.
func NewLLMExtractor(apiKey types.SecretString, model string, timeout time.Duration, logger types.Logger) *LLMExtractor {
	return &LLMExtractor{
		client:  openai.NewClient(apiKey.Unmask()),
		model:   model,
		timeout: timeout,
		logger:  logger,
	}
}

// NewLLMExtractorWithClient creates an LLMExtractor with a caller-supplied
// completion client. This constructor exists for testing.
func NewLLMExtractorWithClient(client ChatCompleter, model string, logger types.Logger) *LLMExtractor {
	return &LLMExtractor{
		client: client,
		model:  model,
		logger: logger,
	}
}

// Extract asks the model for a JSON attribute extraction of the product.
func (e *LLMExtractor) Extract(ctx context.Context, product types.CatalogProduct) (*types.ExtractedAttributes, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	userPrompt := fmt.Sprintf("Title: %s\nVendor: %s\nType: %s\nTags: %v\nDescription: %s",
		product.Title, product.Vendor, product.ProductType, product.Tags, product.Description)

	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       e.model,
		Temperature: 0,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
	})
	if err != nil {
		return nil, types.NewAppError(
			types.ErrCodeUpstreamEnrichment,
			fmt.Sprintf("enrichment completion failed for product %s", product.ID),
			err,
		)
	}
	if len(resp.Choices) == 0 {
		return nil, types.NewAppError(
			types.ErrCodeUpstreamEnrichment,
			fmt.Sprintf("enrichment returned no choices for product %s", product.ID),
			nil,
		)
	}

	var attrs types.ExtractedAttributes
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &attrs); err != nil {
		return nil, types.NewAppError(
			types.ErrCodeUpstreamEnrichment,
			fmt.Sprintf("enrichment returned malformed JSON for product %s", product.ID),
			err,
		)
	}

	// Clamp whatever the model claimed into [0, 1].
	if attrs.Confidence < 0 || attrs.Confidence > 1 {
		e.logger.Warn("model reported out-of-range confidence",
			"product_id", product.ID,
			"confidence", attrs.Confidence,
		)
		if attrs.Confidence < 0 {
			attrs.Confidence = 0
		} else {
			attrs.Confidence = 1
		}
	}

	return &attrs, nil
}

// Merge combines a heuristic extraction with an optional LLM extraction.
// LLM fields are accepted only when its confidence clears the threshold;
// heuristic values fill any field the accepted LLM output left empty.
// Returns the merged attributes and which method won.
func Merge(heuristic, llm *types.ExtractedAttributes, threshold float64) (*types.ExtractedAttributes, types.EnrichmentMethod) {
	if llm == nil || llm.Confidence < threshold {
		if heuristic == nil {
			return &types.ExtractedAttributes{}, types.EnrichmentNone
		}
		return heuristic, types.EnrichmentHeuristic
	}

	merged := *llm
	if heuristic != nil {
		if merged.Firmness == "" {
			merged.Firmness = heuristic.Firmness
		}
		if merged.Height == "" {
			merged.Height = heuristic.Height
		}
		if merged.Material == "" {
			merged.Material = heuristic.Material
		}
		if len(merged.Certifications) == 0 {
			merged.Certifications = heuristic.Certifications
		}
		if len(merged.Features) == 0 {
			merged.Features = heuristic.Features
		}
		if len(merged.SupportFeatures) == 0 {
			merged.SupportFeatures = heuristic.SupportFeatures
		}
	}
	return &merged, types.EnrichmentLLM
}
