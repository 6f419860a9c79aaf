package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"storepulse/internal/config"
	"storepulse/internal/types"
)

// maxResponseBodyRead limits how much of a response body we read for error
// messages.
const maxResponseBodyRead = 4096

// Compile-time assertion that WebhookChannel implements AlertChannel.
var _ AlertChannel = (*WebhookChannel)(nil)

// WebhookChannel delivers alerts as signed JSON POSTs to a merchant-supplied
// endpoint. Payloads carry an HMAC-SHA256 signature in X-Storepulse-Signature
// so receivers can authenticate the sender.
type WebhookChannel struct {
	httpClient *http.Client
	cfg        config.WebhookConfig
	logger     types.Logger
	clock      types.Clock
}

// NewWebhookChannel creates a webhook alert channel. The HTTP client caps
// redirects per config to keep deliveries from wandering.
func NewWebhookChannel(cfg config.WebhookConfig, logger types.Logger) *WebhookChannel {
	client := &http.Client{
		Timeout: cfg.DefaultTimeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= cfg.MaxRedirects {
				return fmt.Errorf("stopped after %d redirects", cfg.MaxRedirects)
			}
			return nil
		},
	}
	return &WebhookChannel{
		httpClient: client,
		cfg:        cfg,
		logger:     logger,
		clock:      types.RealClock{},
	}
}

// NewWebhookChannelWithClient creates a WebhookChannel with a caller-supplied
// HTTP client. This constructor exists for testing.
func NewWebhookChannelWithClient(cfg config.WebhookConfig, httpClient *http.Client, logger types.Logger) *WebhookChannel {
	return &WebhookChannel{
		httpClient: httpClient,
		cfg:        cfg,
		logger:     logger,
		clock:      types.RealClock{},
	}
}

// SetClock overrides the clock for testing.
func (c *WebhookChannel) SetClock(clock types.Clock) {
	c.clock = clock
}

func (c *WebhookChannel) Type() types.ChannelType { return types.ChannelWebhook }

// webhookEnvelope is the JSON body posted to the merchant endpoint.
type webhookEnvelope struct {
	AlertID   string             `json:"alert_id"`
	Tenant    string             `json:"tenant"`
	Trigger   types.TriggerType  `json:"trigger"`
	SessionID *string            `json:"session_id,omitempty"`
	Payload   types.AlertPayload `json:"payload"`
	SentAt    time.Time          `json:"sent_at"`
}

// Send posts the alert to the endpoint from the tenant's channel config
// ("url", "secret"). Response classification: 2xx success, 429/5xx
// transient, remaining 4xx rejected.
func (c *WebhookChannel) Send(ctx context.Context, cfg types.ChannelConfig, alert *types.Alert) (*types.DeliveryResult, error) {
	endpoint, err := configString(cfg, "url")
	if err != nil {
		return nil, err
	}
	secret, err := configString(cfg, "secret")
	if err != nil {
		return nil, err
	}

	parsed, err := url.Parse(endpoint)
	if err != nil || (parsed.Scheme != "https" && parsed.Scheme != "http") || parsed.Host == "" {
		return nil, &ConfigError{Reason: fmt.Sprintf("invalid webhook url %q", endpoint)}
	}

	now := c.clock.Now()
	body, err := json.Marshal(webhookEnvelope{
		AlertID:   alert.ID,
		Tenant:    alert.TenantID,
		Trigger:   alert.TriggerType,
		SessionID: alert.SessionID,
		Payload:   alert.Payload,
		SentAt:    now,
	})
	if err != nil {
		return nil, &RejectedError{Reason: "failed to encode webhook payload", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &ConfigError{Reason: fmt.Sprintf("cannot build request for %q", endpoint), Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("X-Storepulse-Signature", SignaturePayload(body, secret, now))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransientError{Reason: "webhook request failed", Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		c.logger.Info("webhook alert delivered",
			"alert_id", alert.ID,
			"tenant", alert.TenantID,
			"status", resp.StatusCode,
		)
		return &types.DeliveryResult{Status: "delivered"}, nil

	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, &TransientError{
			Reason: fmt.Sprintf("endpoint returned %d", resp.StatusCode),
		}

	default:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodyRead))
		return nil, &RejectedError{
			Reason: fmt.Sprintf("endpoint returned %d: %s", resp.StatusCode, string(snippet)),
		}
	}
}
