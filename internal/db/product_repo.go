package db

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"storepulse/internal/types"
)

// ProductRepository provides data access for the product_profiles table.
//
// The table carries a hard invariant: title and shopify_product_id are never
// empty. Upsert enforces it with struct validation before any SQL runs, so a
// bad enrichment result can never clobber a good profile.
type ProductRepository struct {
	db       DBTX
	validate *validator.Validate
}

// NewProductRepository creates a new ProductRepository backed by the given
// database connection (pool or transaction).
func NewProductRepository(db DBTX) *ProductRepository {
	return &ProductRepository{
		db:       db,
		validate: validator.New(),
	}
}

// GetByExternalID returns the profile for a storefront product, or nil when
// the product has never been indexed. Absence is not an error here: the
// indexer uses this to decide between insert and incremental skip.
func (r *ProductRepository) GetByExternalID(ctx context.Context, tenant, shopifyProductID string) (*types.ProductProfile, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, tenant, shopify_product_id, title, description, vendor,
		        product_type, image_url, firmness, height, material,
		        certifications, features, support_features,
		        enrichment_method, enrichment_confidence, content_hash,
		        created_at, updated_at
		 FROM product_profiles
		 WHERE tenant = $1 AND shopify_product_id = $2`,
		tenant, shopifyProductID,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get product profile", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get product profile", err)
		}
		return nil, nil
	}
	p, err := scanProfile(rows)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan product profile", err)
	}
	return p, nil
}

// Upsert inserts or replaces a product profile, keyed on
// (tenant, shopify_product_id). The profile is validated first; writes with
// an empty title or product ID are rejected before reaching the database.
func (r *ProductRepository) Upsert(ctx context.Context, p *types.ProductProfile) error {
	if err := r.validate.Struct(p); err != nil {
		return types.NewAppError(types.ErrCodeValidationEmptyTitle,
			"product profile failed validation", err)
	}
	if p.ID == "" {
		p.ID = "prf_" + uuid.NewString()
	}

	row := r.db.QueryRow(ctx,
		`INSERT INTO product_profiles
		 (id, tenant, shopify_product_id, title, description, vendor,
		  product_type, image_url, firmness, height, material,
		  certifications, features, support_features,
		  enrichment_method, enrichment_confidence, content_hash)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		 ON CONFLICT (tenant, shopify_product_id) DO UPDATE SET
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			vendor = EXCLUDED.vendor,
			product_type = EXCLUDED.product_type,
			image_url = EXCLUDED.image_url,
			firmness = EXCLUDED.firmness,
			height = EXCLUDED.height,
			material = EXCLUDED.material,
			certifications = EXCLUDED.certifications,
			features = EXCLUDED.features,
			support_features = EXCLUDED.support_features,
			enrichment_method = EXCLUDED.enrichment_method,
			enrichment_confidence = EXCLUDED.enrichment_confidence,
			content_hash = EXCLUDED.content_hash,
			updated_at = NOW()
		 RETURNING id, created_at, updated_at`,
		p.ID,
		p.Tenant,
		p.ShopifyProductID,
		p.Title,
		p.Description,
		p.Vendor,
		p.ProductType,
		p.ImageURL,
		p.Firmness,
		p.Height,
		p.Material,
		p.Certifications,
		p.Features,
		p.SupportFeatures,
		string(p.EnrichmentMethod),
		p.EnrichmentConfidence,
		p.ContentHash,
	)
	if err := row.Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to upsert product profile", err)
	}
	return nil
}

// UpsertEmbedding stores the search vector for an indexed profile. The
// embedding column (float4[]) backs the storefront quiz's similarity search
// and is written after the profile row, keyed the same way, so the vector
// always belongs to the profile version the content hash describes.
func (r *ProductRepository) UpsertEmbedding(ctx context.Context, tenant, shopifyProductID string, vector []float32) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE product_profiles
		 SET embedding = $1, updated_at = NOW()
		 WHERE tenant = $2 AND shopify_product_id = $3`,
		vector, tenant, shopifyProductID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to upsert product embedding", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundProduct,
			"no profile row for embedding", nil)
	}
	return nil
}

// CleanupCorruptProfiles deletes historical rows that violate the non-empty
// title/product-id invariant. These predate repository-level validation and
// poison search results until removed. Returns the count deleted.
func (r *ProductRepository) CleanupCorruptProfiles(ctx context.Context) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM product_profiles
		 WHERE title = '' OR title IS NULL
		    OR shopify_product_id = '' OR shopify_product_id IS NULL`,
	)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to cleanup corrupt profiles", err)
	}
	return tag.RowsAffected(), nil
}

// CountByTenant returns the number of indexed profiles for a tenant.
func (r *ProductRepository) CountByTenant(ctx context.Context, tenant string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM product_profiles WHERE tenant = $1`, tenant,
	).Scan(&count)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to count product profiles", err)
	}
	return count, nil
}

// scanProfile scans a single product_profiles row from a pgx.Rows result set.
// Handles nullable columns using pointer types.
func scanProfile(rows pgx.Rows) (*types.ProductProfile, error) {
	var (
		p        types.ProductProfile
		method   string
		desc     *string
		vendor   *string
		ptype    *string
		imageURL *string
		firmness *string
		height   *string
		material *string
	)

	err := rows.Scan(
		&p.ID,
		&p.Tenant,
		&p.ShopifyProductID,
		&p.Title,
		&desc,
		&vendor,
		&ptype,
		&imageURL,
		&firmness,
		&height,
		&material,
		&p.Certifications,
		&p.Features,
		&p.SupportFeatures,
		&method,
		&p.EnrichmentConfidence,
		&p.ContentHash,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.EnrichmentMethod = types.EnrichmentMethod(method)
	if desc != nil {
		p.Description = *desc
	}
	if vendor != nil {
		p.Vendor = *vendor
	}
	if ptype != nil {
		p.ProductType = *ptype
	}
	if imageURL != nil {
		p.ImageURL = *imageURL
	}
	if firmness != nil {
		p.Firmness = *firmness
	}
	if height != nil {
		p.Height = *height
	}
	if material != nil {
		p.Material = *material
	}
	return &p, nil
}
