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

const sendGridDefaultBaseURL = "https://api.sendgrid.com"

// SendGridClient sends transactional email through the SendGrid v3 Mail Send
// API. It embeds BaseClient for retries and circuit breaking.
type SendGridClient struct {
	*BaseClient
	apiKey      types.SecretString
	baseURL     string
	fromAddress string
	fromName    string
	logger      types.Logger
}

// SendGridClientConfig configures a SendGridClient.
type SendGridClientConfig struct {
	APIKey      types.SecretString
	BaseURL     string // defaults to the public SendGrid API
	FromAddress string
	FromName    string
	UserAgent   string
	Logger      types.Logger
}

// NewSendGridClient creates a SendGrid email provider.
func NewSendGridClient(cfg SendGridClientConfig, opts ...BaseClientOption) *SendGridClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = sendGridDefaultBaseURL
	}

	return &SendGridClient{
		BaseClient: NewBaseClient(
			&http.Client{Timeout: 15 * time.Second},
			"sendgrid",
			DefaultRetryPolicy(),
			cfg.UserAgent,
			opts...,
		),
		apiKey:      cfg.APIKey,
		baseURL:     baseURL,
		fromAddress: cfg.FromAddress,
		fromName:    cfg.FromName,
		logger:      cfg.Logger,
	}
}

type sendGridAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type sendGridContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type sendGridPersonalization struct {
	To []sendGridAddress `json:"to"`
}

type sendGridSendRequest struct {
	Personalizations []sendGridPersonalization `json:"personalizations"`
	From             sendGridAddress           `json:"from"`
	Subject          string                    `json:"subject"`
	Content          []sendGridContent         `json:"content"`
}

type sendGridErrorResponse struct {
	Errors []struct {
		Message string `json:"message"`
		Field   string `json:"field"`
	} `json:"errors"`
}

// SendEmail delivers msg through SendGrid. A 202 Accepted response is a
// success; the X-Message-Id header becomes the provider message ID.
func (c *SendGridClient) SendEmail(ctx context.Context, msg EmailMessage) (*types.DeliveryResult, error) {
	content := make([]sendGridContent, 0, 2)
	if msg.TextBody != "" {
		content = append(content, sendGridContent{Type: "text/plain", Value: msg.TextBody})
	}
	if msg.HTMLBody != "" {
		content = append(content, sendGridContent{Type: "text/html", Value: msg.HTMLBody})
	}
	if len(content) == 0 {
		return nil, types.NewAppError(
			types.ErrCodeValidationMissingField,
			"email message requires at least one of text or html body",
			nil,
		)
	}

	payload := sendGridSendRequest{
		Personalizations: []sendGridPersonalization{
			{To: []sendGridAddress{{Email: msg.ToAddress, Name: msg.ToName}}},
		},
		From:    sendGridAddress{Email: c.fromAddress, Name: c.fromName},
		Subject: msg.Subject,
		Content: content,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode sendgrid request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v3/mail/send", bytes.NewReader(body))
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build sendgrid request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey.Unmask())
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusAccepted {
		return &types.DeliveryResult{
			ProviderMessageID: resp.Header.Get("X-Message-Id"),
			Status:            "accepted",
		}, nil
	}

	return nil, c.handleErrorResponse(resp)
}

func (c *SendGridClient) handleErrorResponse(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	var errResp sendGridErrorResponse
	detail := ""
	if json.Unmarshal(raw, &errResp) == nil && len(errResp.Errors) > 0 {
		detail = errResp.Errors[0].Message
	}

	c.logger.Warn("sendgrid rejected email send",
		"status", resp.StatusCode,
		"detail", detail,
	)

	msg := fmt.Sprintf("sendgrid returned %d", resp.StatusCode)
	if detail != "" {
		msg = fmt.Sprintf("%s: %s", msg, detail)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return types.NewAppError(types.ErrCodeConfigMissingCredentials, msg, nil)
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return types.NewAppError(types.ErrCodeUpstreamRejected, msg, nil)
	default:
		return types.NewAppError(types.ErrCodeUpstreamEmail, msg, nil)
	}
}

var _ EmailProvider = (*SendGridClient)(nil)
