package external

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"storepulse/internal/types"
)

const twilioDefaultBaseURL = "https://api.twilio.com"

// TwilioClient sends SMS through the Twilio Messages API. It embeds
// BaseClient for retries and circuit breaking.
type TwilioClient struct {
	*BaseClient
	accountSID string
	authToken  types.SecretString
	fromNumber string
	baseURL    string
	logger     types.Logger
}

// TwilioClientConfig configures a TwilioClient.
type TwilioClientConfig struct {
	AccountSID string
	AuthToken  types.SecretString
	FromNumber string
	BaseURL    string // defaults to the public Twilio API
	UserAgent  string
	Logger     types.Logger
}

// NewTwilioClient creates a Twilio SMS provider.
func NewTwilioClient(cfg TwilioClientConfig, opts ...BaseClientOption) *TwilioClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = twilioDefaultBaseURL
	}

	return &TwilioClient{
		BaseClient: NewBaseClient(
			&http.Client{Timeout: 15 * time.Second},
			"twilio",
			DefaultRetryPolicy(),
			cfg.UserAgent,
			opts...,
		),
		accountSID: cfg.AccountSID,
		authToken:  cfg.AuthToken,
		fromNumber: cfg.FromNumber,
		baseURL:    baseURL,
		logger:     cfg.Logger,
	}
}

type twilioMessageResponse struct {
	SID          string `json:"sid"`
	Status       string `json:"status"`
	ErrorCode    *int   `json:"error_code"`
	ErrorMessage string `json:"error_message"`
}

type twilioErrorResponse struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	MoreInfo string `json:"more_info"`
	Status   int    `json:"status"`
}

// SendSMS delivers msg through Twilio. A 201 Created response is a success;
// the returned message SID becomes the provider message ID.
func (c *TwilioClient) SendSMS(ctx context.Context, msg SMSMessage) (*types.DeliveryResult, error) {
	form := url.Values{}
	form.Set("To", msg.ToNumber)
	form.Set("From", c.fromNumber)
	form.Set("Body", msg.Body)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", c.baseURL, c.accountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build twilio request", err)
	}
	req.SetBasicAuth(c.accountSID, c.authToken.Unmask())
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusCreated {
		var created twilioMessageResponse
		if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
			return nil, types.NewAppError(types.ErrCodeUpstreamSMS, "failed to decode twilio response", err)
		}
		return &types.DeliveryResult{
			ProviderMessageID: created.SID,
			Status:            created.Status,
		}, nil
	}

	return nil, c.handleErrorResponse(resp)
}

func (c *TwilioClient) handleErrorResponse(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	var errResp twilioErrorResponse
	detail := ""
	if json.Unmarshal(raw, &errResp) == nil && errResp.Message != "" {
		detail = fmt.Sprintf("code %d: %s", errResp.Code, errResp.Message)
	}

	c.logger.Warn("twilio rejected sms send",
		"status", resp.StatusCode,
		"detail", detail,
	)

	msg := fmt.Sprintf("twilio returned %d", resp.StatusCode)
	if detail != "" {
		msg = fmt.Sprintf("%s: %s", msg, detail)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return types.NewAppError(types.ErrCodeConfigMissingCredentials, msg, nil)
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		// Invalid destination numbers, unsubscribed recipients, malformed
		// bodies. Retrying will not help.
		return types.NewAppError(types.ErrCodeUpstreamRejected, msg, nil)
	default:
		return types.NewAppError(types.ErrCodeUpstreamSMS, msg, nil)
	}
}

var _ SMSProvider = (*TwilioClient)(nil)
