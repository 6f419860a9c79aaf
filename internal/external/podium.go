package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"storepulse/internal/types"
)

const podiumDefaultBaseURL = "https://api.podium.com/v4"

// PodiumClient pushes conversation records into the Podium CRM. It embeds
// BaseClient for retries and circuit breaking.
type PodiumClient struct {
	*BaseClient
	apiKey  types.SecretString
	baseURL string
	logger  types.Logger
}

// PodiumClientConfig configures a PodiumClient.
type PodiumClientConfig struct {
	APIKey    types.SecretString
	BaseURL   string // defaults to the public Podium API
	UserAgent string
	Logger    types.Logger
}

// NewPodiumClient creates a Podium CRM provider.
func NewPodiumClient(cfg PodiumClientConfig, opts ...BaseClientOption) *PodiumClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = podiumDefaultBaseURL
	}

	return &PodiumClient{
		BaseClient: NewBaseClient(
			&http.Client{Timeout: 15 * time.Second},
			"podium",
			DefaultRetryPolicy(),
			cfg.UserAgent,
			opts...,
		),
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		logger:  cfg.Logger,
	}
}

type podiumMessageRequest struct {
	LocationID string `json:"locationUid"`
	Subject    string `json:"subject,omitempty"`
	Body       string `json:"body"`
	ContactRef string `json:"contactUid,omitempty"`
}

type podiumMessageResponse struct {
	UID    string `json:"uid"`
	Status string `json:"status"`
}

// CreateMessage posts a conversation record into the merchant's Podium inbox.
func (c *PodiumClient) CreateMessage(ctx context.Context, msg CRMMessage) (*types.DeliveryResult, error) {
	body, err := json.Marshal(podiumMessageRequest{
		LocationID: msg.LocationID,
		Subject:    msg.Subject,
		Body:       msg.Body,
		ContactRef: msg.ContactRef,
	})
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode podium request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build podium request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey.Unmask())
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated {
		var created podiumMessageResponse
		if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
			return nil, types.NewAppError(types.ErrCodeUpstreamCRM, "failed to decode podium response", err)
		}
		return &types.DeliveryResult{
			ProviderMessageID: created.UID,
			Status:            created.Status,
		}, nil
	}

	return nil, c.handleErrorResponse(resp)
}

func (c *PodiumClient) handleErrorResponse(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	c.logger.Warn("podium rejected message create",
		"status", resp.StatusCode,
		"body", string(raw),
	)

	msg := fmt.Sprintf("podium returned %d", resp.StatusCode)

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return types.NewAppError(types.ErrCodeConfigMissingCredentials, msg, nil)
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return types.NewAppError(types.ErrCodeUpstreamRejected, msg, nil)
	default:
		return types.NewAppError(types.ErrCodeUpstreamCRM, msg, nil)
	}
}

var _ CRMProvider = (*PodiumClient)(nil)
