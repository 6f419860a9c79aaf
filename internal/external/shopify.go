package external

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"storepulse/internal/types"
)

// ShopifyClient fetches product catalogs through the Shopify Admin REST API.
// Tenants are identified by their shop domain (e.g. "acme.myshopify.com").
// It embeds BaseClient for retries and circuit breaking.
type ShopifyClient struct {
	*BaseClient
	accessToken types.SecretString
	apiVersion  string
	pageSize    int
	scheme      string // overridable for tests; defaults to https
	logger      types.Logger
}

// ShopifyClientConfig configures a ShopifyClient.
type ShopifyClientConfig struct {
	AccessToken types.SecretString
	APIVersion  string // e.g. "2024-10"
	PageSize    int    // products per page, max 250
	UserAgent   string
	Logger      types.Logger
}

// NewShopifyClient creates a Shopify catalog source.
func NewShopifyClient(cfg ShopifyClientConfig, opts ...BaseClientOption) *ShopifyClient {
	pageSize := cfg.PageSize
	if pageSize <= 0 || pageSize > 250 {
		pageSize = 100
	}

	return &ShopifyClient{
		BaseClient: NewBaseClient(
			&http.Client{Timeout: 30 * time.Second},
			"shopify",
			DefaultRetryPolicy(),
			cfg.UserAgent,
			opts...,
		),
		accessToken: cfg.AccessToken,
		apiVersion:  cfg.APIVersion,
		pageSize:    pageSize,
		scheme:      "https",
		logger:      cfg.Logger,
	}
}

// WithScheme overrides the URL scheme used for shop domains. Tests use this
// to point the client at an httptest server over plain http.
func (c *ShopifyClient) WithScheme(scheme string) *ShopifyClient {
	c.scheme = scheme
	return c
}

type shopifyVariant struct {
	Price string `json:"price"`
}

type shopifyImage struct {
	Src string `json:"src"`
}

type shopifyProduct struct {
	ID          int64            `json:"id"`
	Title       string           `json:"title"`
	BodyHTML    string           `json:"body_html"`
	Vendor      string           `json:"vendor"`
	ProductType string           `json:"product_type"`
	Tags        string           `json:"tags"`
	Variants    []shopifyVariant `json:"variants"`
	Image       *shopifyImage    `json:"image"`
}

type shopifyProductsResponse struct {
	Products []shopifyProduct `json:"products"`
}

// ListProducts fetches one page of the tenant's catalog. An empty pageToken
// requests the first page; the returned NextPage token comes from the
// rel="next" Link header and is empty when the listing is exhausted.
func (c *ShopifyClient) ListProducts(ctx context.Context, tenant string, pageToken string) (*CatalogPage, error) {
	endpoint := fmt.Sprintf("%s://%s/admin/api/%s/products.json", c.scheme, tenant, c.apiVersion)

	query := url.Values{}
	query.Set("limit", strconv.Itoa(c.pageSize))
	if pageToken != "" {
		query.Set("page_info", pageToken)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build shopify request", err)
	}
	req.Header.Set("X-Shopify-Access-Token", c.accessToken.Unmask())
	req.Header.Set("Accept", "application/json")

	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		c.logger.Warn("shopify catalog fetch failed",
			"tenant", tenant,
			"status", resp.StatusCode,
			"body", string(raw),
		)
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return nil, types.NewAppError(
				types.ErrCodeConfigMissingCredentials,
				fmt.Sprintf("shopify returned %d for %s", resp.StatusCode, tenant),
				nil,
			)
		}
		return nil, types.NewAppError(
			types.ErrCodeUpstreamCatalog,
			fmt.Sprintf("shopify returned %d for %s", resp.StatusCode, tenant),
			nil,
		)
	}

	var listing shopifyProductsResponse
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamCatalog, "failed to decode shopify products response", err)
	}

	page := &CatalogPage{
		Products: make([]types.CatalogProduct, 0, len(listing.Products)),
		NextPage: parseNextPageInfo(resp.Header.Get("Link")),
	}
	for _, p := range listing.Products {
		page.Products = append(page.Products, convertShopifyProduct(p))
	}

	return page, nil
}

func convertShopifyProduct(p shopifyProduct) types.CatalogProduct {
	out := types.CatalogProduct{
		ID:          fmt.Sprintf("gid://shopify/Product/%d", p.ID),
		Title:       p.Title,
		Description: p.BodyHTML,
		Vendor:      p.Vendor,
		ProductType: p.ProductType,
		Tags:        splitShopifyTags(p.Tags),
	}
	if len(p.Variants) > 0 {
		out.PriceCents = parsePriceCents(p.Variants[0].Price)
	}
	if p.Image != nil {
		out.ImageURL = p.Image.Src
	}
	return out
}

// splitShopifyTags converts Shopify's comma-separated tag string into a slice.
func splitShopifyTags(tags string) []string {
	if strings.TrimSpace(tags) == "" {
		return nil
	}
	parts := strings.Split(tags, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// parsePriceCents converts a Shopify decimal price string ("1299.00") to
// integer cents. Unparseable prices become zero rather than failing the
// whole product.
func parsePriceCents(price string) int64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(price), 64)
	if err != nil {
		return 0
	}
	return int64(math.Round(f * 100))
}

// parseNextPageInfo extracts the page_info cursor from the rel="next" entry
// of a Shopify Link header. Returns "" when there is no next page.
func parseNextPageInfo(linkHeader string) string {
	if linkHeader == "" {
		return ""
	}
	for _, entry := range strings.Split(linkHeader, ",") {
		if !strings.Contains(entry, `rel="next"`) {
			continue
		}
		start := strings.Index(entry, "<")
		end := strings.Index(entry, ">")
		if start < 0 || end < 0 || end <= start {
			continue
		}
		u, err := url.Parse(entry[start+1 : end])
		if err != nil {
			continue
		}
		return u.Query().Get("page_info")
	}
	return ""
}

var _ CatalogSource = (*ShopifyClient)(nil)
