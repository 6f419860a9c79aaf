package types

import (
	"time"
)

// Alert is the core domain entity representing a single merchant notification
// bound for a specific channel. One shopper event fans out to one alert row
// per enabled channel; each row retries independently.
type Alert struct {
	ID        string  `json:"id" db:"id"`
	TenantID  string  `json:"tenant_id" db:"tenant_id"`
	SessionID *string `json:"session_id,omitempty" db:"session_id"`

	Channel     ChannelType  `json:"channel" db:"channel"`
	TriggerType TriggerType  `json:"trigger_type" db:"trigger_type"`
	Payload     AlertPayload `json:"payload" db:"payload"`

	// Delivery state. Attempts only moves forward; quiet-hours deferral
	// reschedules without touching it.
	Status        AlertStatus `json:"status" db:"status"`
	Attempts      int         `json:"attempts" db:"attempts"`
	LastError     string      `json:"last_error,omitempty" db:"last_error"`
	NextAttemptAt *time.Time  `json:"next_attempt_at,omitempty" db:"next_attempt_at"`
	SentAt        *time.Time  `json:"sent_at,omitempty" db:"sent_at"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Terminal reports whether the alert has reached a state that no scheduler
// pass will move again.
func (a *Alert) Terminal() bool {
	return a.Status == AlertStatusSent || a.Status == AlertStatusDead
}

// AlertPayload is the JSONB document carried by an alert. Shape depends on
// the trigger type: lead alerts carry contact fields, session alerts carry
// the summary and intent score.
type AlertPayload map[string]any

// AlertSettings holds a tenant's alerting configuration. A row is upserted
// with defaults the first time the tenant is seen.
type AlertSettings struct {
	TenantID      string      `json:"tenant_id" db:"tenant_id"`
	Triggers      TriggerSet  `json:"triggers" db:"triggers"`
	Channels      ChannelMap  `json:"channels" db:"channels"`
	QuietHours    *QuietHours `json:"quiet_hours,omitempty" db:"quiet_hours"`
	Digest        DigestMode  `json:"digest" db:"digest"`
	AutoCloseIdle bool        `json:"auto_close_idle" db:"auto_close_idle"`
	CreatedAt     time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at" db:"updated_at"`
}

// TriggerEnabled reports whether the tenant wants alerts for the trigger.
// Unknown triggers default to off.
func (s *AlertSettings) TriggerEnabled(t TriggerType) bool {
	return s.Triggers[t]
}

// EnabledChannels returns the channel types with Enabled=true, in a stable
// order so fan-out is deterministic.
func (s *AlertSettings) EnabledChannels() []ChannelType {
	order := []ChannelType{ChannelEmail, ChannelSMS, ChannelWebhook, ChannelCRM}
	var out []ChannelType
	for _, ct := range order {
		if cfg, ok := s.Channels[ct]; ok && cfg.Enabled {
			out = append(out, ct)
		}
	}
	return out
}

// TriggerSet maps trigger types to their enabled state (JSONB).
type TriggerSet map[TriggerType]bool

// ChannelMap maps channel types to per-channel configuration (JSONB).
type ChannelMap map[ChannelType]ChannelConfig

// ChannelConfig holds a single channel's enablement flag and provider
// configuration (destination address, credentials, webhook URL).
type ChannelConfig struct {
	Enabled bool           `json:"enabled"`
	Config  map[string]any `json:"config,omitempty"`
}

// QuietHours defines a daily window during which alert delivery is deferred.
// Start and End use "HH:MM" in the tenant's timezone; windows may cross
// midnight (e.g. 22:00-07:00).
type QuietHours struct {
	Start    string `json:"start"`
	End      string `json:"end"`
	Timezone string `json:"timezone"`
}

// Session is a shopper-assistant conversation. The idle detector reads open
// sessions (EndedAt null) and may close them with EndReasonIdleTimeout.
type Session struct {
	ID             string     `json:"id" db:"id"`
	TenantID       string     `json:"tenant_id" db:"tenant_id"`
	IntentScore    int        `json:"intent_score" db:"intent_score"`
	Summary        string     `json:"summary,omitempty" db:"summary"`
	Consent        bool       `json:"consent" db:"consent"`
	EndReason      EndReason  `json:"end_reason,omitempty" db:"end_reason"`
	LastActivityAt time.Time  `json:"last_activity_at" db:"last_activity_at"`
	EndedAt        *time.Time `json:"ended_at,omitempty" db:"ended_at"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
}

// IndexJob tracks a single catalog indexing run for a tenant. Counters are
// incremented in the store as products complete so a crashed run leaves an
// accurate partial record. Finished rows are immutable.
type IndexJob struct {
	ID                string         `json:"id" db:"id"`
	Tenant            string         `json:"tenant" db:"tenant"`
	Status            IndexJobStatus `json:"status" db:"status"`
	TotalProducts     int            `json:"total_products" db:"total_products"`
	ProcessedProducts int            `json:"processed_products" db:"processed_products"`
	FailedProducts    int            `json:"failed_products" db:"failed_products"`
	ErrorMessage      string         `json:"error_message,omitempty" db:"error_message"`
	StartedAt         *time.Time     `json:"started_at,omitempty" db:"started_at"`
	FinishedAt        *time.Time     `json:"finished_at,omitempty" db:"finished_at"`
	CreatedAt         time.Time      `json:"created_at" db:"created_at"`
}

// Finished reports whether the job has reached a terminal status.
func (j *IndexJob) Finished() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}

// ProductProfile is the indexed representation of a storefront product,
// including attributes extracted by enrichment. Title and ShopifyProductID
// must never be empty; the repository rejects writes that violate this.
type ProductProfile struct {
	ID               string `json:"id" db:"id"`
	Tenant           string `json:"tenant" db:"tenant" validate:"required"`
	ShopifyProductID string `json:"shopify_product_id" db:"shopify_product_id" validate:"required"`

	Title       string `json:"title" db:"title" validate:"required"`
	Description string `json:"description,omitempty" db:"description"`
	Vendor      string `json:"vendor,omitempty" db:"vendor"`
	ProductType string `json:"product_type,omitempty" db:"product_type"`
	ImageURL    string `json:"image_url,omitempty" db:"image_url"`

	// Extracted attributes
	Firmness        string   `json:"firmness,omitempty" db:"firmness"`
	Height          string   `json:"height,omitempty" db:"height"`
	Material        string   `json:"material,omitempty" db:"material"`
	Certifications  []string `json:"certifications,omitempty" db:"certifications"`
	Features        []string `json:"features,omitempty" db:"features"`
	SupportFeatures []string `json:"support_features,omitempty" db:"support_features"`

	EnrichmentMethod     EnrichmentMethod `json:"enrichment_method" db:"enrichment_method"`
	EnrichmentConfidence float64          `json:"enrichment_confidence" db:"enrichment_confidence"`

	// ContentHash is the fingerprint of the source product at index time.
	// An unchanged hash means the profile is current and enrichment is skipped.
	ContentHash string `json:"content_hash" db:"content_hash"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// CatalogProduct is a raw product as returned by the storefront API, before
// enrichment. This is the input side of the indexer.
type CatalogProduct struct {
	ID          string            `json:"id"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Vendor      string            `json:"vendor"`
	ProductType string            `json:"product_type"`
	Tags        []string          `json:"tags"`
	PriceCents  int64             `json:"price_cents"`
	ImageURL    string            `json:"image_url"`
	Metafields  map[string]string `json:"metafields,omitempty"`
}

// DeliveryResult tracks the outcome of a channel send attempt.
type DeliveryResult struct {
	ProviderMessageID string
	Status            string
	FailureReason     string
	Retryable         bool

	// RetryAfter is set when the provider told us when to come back (429).
	RetryAfter *time.Duration
}

// ExtractedAttributes is the output contract of enrichment: the attribute
// fields a profile can gain, plus the model's confidence in them.
type ExtractedAttributes struct {
	Firmness        string   `json:"firmness,omitempty"`
	Height          string   `json:"height,omitempty"`
	Material        string   `json:"material,omitempty"`
	Certifications  []string `json:"certifications,omitempty"`
	Features        []string `json:"features,omitempty"`
	SupportFeatures []string `json:"support_features,omitempty"`
	Confidence      float64  `json:"confidence"`
}
