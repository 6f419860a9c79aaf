package enrichment

import (
	"context"
	"errors"
	"testing"

	"github.com/sashabaranov/go-openai"

	"storepulse/internal/types"
)

type nopLogger struct{}

func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) With(...any) types.Logger { return nopLogger{} }

// mockChatCompleter returns a canned completion and records the request.
type mockChatCompleter struct {
	content string
	err     error
	lastReq openai.ChatCompletionRequest
}

func (m *mockChatCompleter) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	m.lastReq = req
	if m.err != nil {
		return openai.ChatCompletionResponse{}, m.err
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: m.content}},
		},
	}, nil
}

func testProduct() types.CatalogProduct {
	return types.CatalogProduct{
		ID:          "gid://shopify/Product/42",
		Title:       "CloudRest Hybrid",
		Description: "Pocketed coils with a gel foam comfort layer.",
		ProductType: "Mattress",
		Tags:        []string{"hybrid"},
	}
}

func TestLLMExtract_ParsesStructuredOutput(t *testing.T) {
	mock := &mockChatCompleter{content: `{
		"firmness": "medium-firm",
		"height": "12in",
		"material": "hybrid",
		"certifications": ["CertiPUR-US"],
		"features": ["cooling"],
		"support_features": ["pocketed-coils"],
		"confidence": 0.92
	}`}
	e := NewLLMExtractorWithClient(mock, "gpt-4o-mini", nopLogger{})

	attrs, err := e.Extract(context.Background(), testProduct())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if attrs.Firmness != "medium-firm" || attrs.Height != "12in" || attrs.Material != "hybrid" {
		t.Errorf("unexpected scalar fields: %+v", attrs)
	}
	if attrs.Confidence != 0.92 {
		t.Errorf("expected confidence 0.92, got %v", attrs.Confidence)
	}

	if mock.lastReq.Model != "gpt-4o-mini" {
		t.Errorf("expected configured model, got %q", mock.lastReq.Model)
	}
	if mock.lastReq.ResponseFormat == nil ||
		mock.lastReq.ResponseFormat.Type != openai.ChatCompletionResponseFormatTypeJSONObject {
		t.Errorf("expected JSON object response format, got %+v", mock.lastReq.ResponseFormat)
	}
	if len(mock.lastReq.Messages) != 2 {
		t.Fatalf("expected system+user messages, got %d", len(mock.lastReq.Messages))
	}
}

func TestLLMExtract_ClampsConfidence(t *testing.T) {
	mock := &mockChatCompleter{content: `{"confidence": 1.7}`}
	e := NewLLMExtractorWithClient(mock, "gpt-4o-mini", nopLogger{})

	attrs, err := e.Extract(context.Background(), testProduct())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if attrs.Confidence != 1 {
		t.Errorf("expected confidence clamped to 1, got %v", attrs.Confidence)
	}
}

func TestLLMExtract_CompletionErrorMapsToUpstream(t *testing.T) {
	mock := &mockChatCompleter{err: errors.New("rate limited")}
	e := NewLLMExtractorWithClient(mock, "gpt-4o-mini", nopLogger{})

	_, err := e.Extract(context.Background(), testProduct())
	var appErr *types.AppError
	if !errors.As(err, &appErr) || appErr.Code != types.ErrCodeUpstreamEnrichment {
		t.Fatalf("expected upstream_enrichment error, got %v", err)
	}
}

func TestLLMExtract_MalformedJSON(t *testing.T) {
	mock := &mockChatCompleter{content: "I think this mattress is firm."}
	e := NewLLMExtractorWithClient(mock, "gpt-4o-mini", nopLogger{})

	_, err := e.Extract(context.Background(), testProduct())
	var appErr *types.AppError
	if !errors.As(err, &appErr) || appErr.Code != types.ErrCodeUpstreamEnrichment {
		t.Fatalf("expected upstream_enrichment error, got %v", err)
	}
}

func TestMerge_AcceptsLLMAboveThreshold(t *testing.T) {
	heuristic := &types.ExtractedAttributes{
		Firmness:   "firm",
		Material:   "hybrid",
		Features:   []string{"cooling"},
		Confidence: heuristicConfidence,
	}
	llm := &types.ExtractedAttributes{
		Firmness:       "medium-firm",
		Height:         "12in",
		Certifications: []string{"CertiPUR-US"},
		Confidence:     0.9,
	}

	merged, method := Merge(heuristic, llm, 0.7)
	if method != types.EnrichmentLLM {
		t.Fatalf("expected llm method, got %s", method)
	}
	if merged.Firmness != "medium-firm" {
		t.Errorf("LLM field must win, got %q", merged.Firmness)
	}
	// Heuristic backfills fields the model left empty.
	if merged.Material != "hybrid" {
		t.Errorf("expected heuristic backfill for material, got %q", merged.Material)
	}
	if len(merged.Features) != 1 || merged.Features[0] != "cooling" {
		t.Errorf("expected heuristic backfill for features, got %v", merged.Features)
	}
	if merged.Confidence != 0.9 {
		t.Errorf("expected llm confidence kept, got %v", merged.Confidence)
	}
}

func TestMerge_RejectsLLMBelowThreshold(t *testing.T) {
	heuristic := &types.ExtractedAttributes{Firmness: "firm", Confidence: heuristicConfidence}
	llm := &types.ExtractedAttributes{Firmness: "plush", Confidence: 0.4}

	merged, method := Merge(heuristic, llm, 0.7)
	if method != types.EnrichmentHeuristic {
		t.Fatalf("expected heuristic method, got %s", method)
	}
	if merged.Firmness != "firm" {
		t.Errorf("low-confidence LLM output must be discarded, got %q", merged.Firmness)
	}
}

func TestMerge_NilLLM(t *testing.T) {
	heuristic := &types.ExtractedAttributes{Material: "latex", Confidence: heuristicConfidence}

	merged, method := Merge(heuristic, nil, 0.7)
	if method != types.EnrichmentHeuristic || merged.Material != "latex" {
		t.Errorf("expected heuristic passthrough, got method=%s merged=%+v", method, merged)
	}
}

func TestMerge_NothingAvailable(t *testing.T) {
	merged, method := Merge(nil, nil, 0.7)
	if method != types.EnrichmentNone {
		t.Errorf("expected none, got %s", method)
	}
	if merged == nil {
		t.Fatal("merge must never return nil attributes")
	}
}
