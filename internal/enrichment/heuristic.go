// Package enrichment extracts structured mattress attributes (firmness,
// material, certifications, features) from raw catalog product text. Two
// extractors are provided: a deterministic keyword heuristic that always
// runs, and an optional LLM extractor whose output is gated on a confidence
// threshold. The indexer merges the two, preferring accepted LLM fields.
package enrichment

import (
	"context"
	"strings"

	"storepulse/internal/types"
)

// Extractor derives product attributes from catalog text.
type Extractor interface {
	Extract(ctx context.Context, product types.CatalogProduct) (*types.ExtractedAttributes, error)
}

// heuristicConfidence is the fixed confidence reported for keyword matches.
// Keyword hits are precise but shallow; the value keeps heuristic output
// below typical LLM acceptance thresholds so merged profiles prefer model
// output when it qualifies.
const heuristicConfidence = 0.5

// firmness keywords, checked most-specific first.
var firmnessTerms = []struct {
	term  string
	value string
}{
	{"medium-firm", "medium-firm"},
	{"medium firm", "medium-firm"},
	{"extra firm", "extra-firm"},
	{"extra-firm", "extra-firm"},
	{"ultra plush", "plush"},
	{"plush", "plush"},
	{"soft", "soft"},
	{"medium", "medium"},
	{"firm", "firm"},
}

var materialTerms = []struct {
	term  string
	value string
}{
	{"memory foam", "memory-foam"},
	{"gel foam", "gel-foam"},
	{"gel-infused", "gel-foam"},
	{"natural latex", "latex"},
	{"latex", "latex"},
	{"pocketed coil", "hybrid"},
	{"pocket coil", "hybrid"},
	{"innerspring", "innerspring"},
	{"hybrid", "hybrid"},
	{"polyurethane", "polyfoam"},
	{"polyfoam", "polyfoam"},
}

var certificationTerms = []struct {
	term  string
	value string
}{
	{"certipur-us", "CertiPUR-US"},
	{"certipur", "CertiPUR-US"},
	{"oeko-tex", "OEKO-TEX"},
	{"greenguard gold", "GREENGUARD Gold"},
	{"greenguard", "GREENGUARD"},
	{"gots", "GOTS"},
	{"gols", "GOLS"},
	{"fsc certified", "FSC"},
}

var featureTerms = []struct {
	term  string
	value string
}{
	{"cooling", "cooling"},
	{"cool-to-the-touch", "cooling"},
	{"breathable", "breathable"},
	{"moisture-wicking", "moisture-wicking"},
	{"hypoallergenic", "hypoallergenic"},
	{"organic cotton", "organic-cotton"},
	{"washable cover", "washable-cover"},
	{"removable cover", "washable-cover"},
	{"motion isolation", "motion-isolation"},
	{"pressure relief", "pressure-relief"},
	{"fiberglass free", "fiberglass-free"},
	{"fiberglass-free", "fiberglass-free"},
}

var supportTerms = []struct {
	term  string
	value string
}{
	{"edge support", "edge-support"},
	{"zoned support", "zoned-support"},
	{"lumbar support", "lumbar-support"},
	{"pocketed coil", "pocketed-coils"},
	{"pocket coil", "pocketed-coils"},
	{"reinforced perimeter", "edge-support"},
}

// Compile-time assertion that HeuristicExtractor implements Extractor.
var _ Extractor = (*HeuristicExtractor)(nil)

// HeuristicExtractor derives attributes from keyword matches over the
// product's title, description, tags, and product type. It is deterministic,
// free, and always available; the indexer runs it on every dirty product.
type HeuristicExtractor struct{}

// NewHeuristicExtractor creates a HeuristicExtractor.
func NewHeuristicExtractor() *HeuristicExtractor {
	return &HeuristicExtractor{}
}

// Extract scans the product text for known attribute keywords. It never
// fails; a product with no matches yields empty attributes.
func (e *HeuristicExtractor) Extract(_ context.Context, product types.CatalogProduct) (*types.ExtractedAttributes, error) {
	text := searchText(product)

	attrs := &types.ExtractedAttributes{
		Confidence: heuristicConfidence,
	}

	for _, ft := range firmnessTerms {
		if strings.Contains(text, ft.term) {
			attrs.Firmness = ft.value
			break
		}
	}

	for _, mt := range materialTerms {
		if strings.Contains(text, mt.term) {
			attrs.Material = mt.value
			break
		}
	}

	attrs.Certifications = matchAll(text, certificationTerms)
	attrs.Features = matchAll(text, featureTerms)
	attrs.SupportFeatures = matchAll(text, supportTerms)

	return attrs, nil
}

// searchText lowercases and concatenates the product's searchable fields.
func searchText(product types.CatalogProduct) string {
	parts := []string{product.Title, product.Description, product.ProductType}
	parts = append(parts, product.Tags...)
	return strings.ToLower(strings.Join(parts, " "))
}

// matchAll returns the distinct values of all matching terms, in term order.
func matchAll(text string, terms []struct {
	term  string
	value string
}) []string {
	var out []string
	seen := map[string]bool{}
	for _, t := range terms {
		if seen[t.value] {
			continue
		}
		if strings.Contains(text, t.term) {
			out = append(out, t.value)
			seen[t.value] = true
		}
	}
	return out
}
