package channel

import (
	"context"
	"fmt"
	"strings"

	"storepulse/internal/external"
	"storepulse/internal/types"
)

// smsMaxLength caps SMS bodies at three concatenated segments.
const smsMaxLength = 480

// Compile-time assertion that SMSChannel implements AlertChannel.
var _ AlertChannel = (*SMSChannel)(nil)

// SMSChannel delivers alerts to the merchant's phone through an SMSProvider
// (Twilio in production).
type SMSChannel struct {
	provider external.SMSProvider
	logger   types.Logger
}

// NewSMSChannel creates an sms alert channel.
func NewSMSChannel(provider external.SMSProvider, logger types.Logger) *SMSChannel {
	return &SMSChannel{provider: provider, logger: logger}
}

func (c *SMSChannel) Type() types.ChannelType { return types.ChannelSMS }

// Send renders the alert into a short text and delivers it to the number
// from the tenant's channel config ("to_number").
func (c *SMSChannel) Send(ctx context.Context, cfg types.ChannelConfig, alert *types.Alert) (*types.DeliveryResult, error) {
	toNumber, err := configString(cfg, "to_number")
	if err != nil {
		return nil, err
	}

	body := renderText(alert)
	if len(body) > smsMaxLength {
		body = strings.TrimSpace(body[:smsMaxLength-3]) + "..."
	}

	result, err := c.provider.SendSMS(ctx, external.SMSMessage{
		ToNumber: toNumber,
		Body:     body,
	})
	if err != nil {
		return nil, classifyProviderError(fmt.Errorf("SMSChannel.Send: %w", err))
	}

	c.logger.Info("sms alert delivered",
		"alert_id", alert.ID,
		"tenant", alert.TenantID,
		"provider_message_id", result.ProviderMessageID,
	)
	return result, nil
}
