package channel

import (
	"context"
	"fmt"

	"storepulse/internal/external"
	"storepulse/internal/types"
)

// Compile-time assertion that EmailChannel implements AlertChannel.
var _ AlertChannel = (*EmailChannel)(nil)

// EmailChannel delivers alerts to the merchant's inbox through an
// EmailProvider (SendGrid in production).
type EmailChannel struct {
	provider external.EmailProvider
	logger   types.Logger
}

// NewEmailChannel creates an email alert channel.
func NewEmailChannel(provider external.EmailProvider, logger types.Logger) *EmailChannel {
	return &EmailChannel{provider: provider, logger: logger}
}

func (c *EmailChannel) Type() types.ChannelType { return types.ChannelEmail }

// Send renders the alert into an email and delivers it to the address from
// the tenant's channel config ("to_address", optional "to_name").
func (c *EmailChannel) Send(ctx context.Context, cfg types.ChannelConfig, alert *types.Alert) (*types.DeliveryResult, error) {
	toAddress, err := configString(cfg, "to_address")
	if err != nil {
		return nil, err
	}

	result, err := c.provider.SendEmail(ctx, external.EmailMessage{
		ToAddress: toAddress,
		ToName:    optionalConfigString(cfg, "to_name"),
		Subject:   renderSubject(alert),
		HTMLBody:  renderHTML(alert),
		TextBody:  renderText(alert),
	})
	if err != nil {
		return nil, classifyProviderError(fmt.Errorf("EmailChannel.Send: %w", err))
	}

	c.logger.Info("email alert delivered",
		"alert_id", alert.ID,
		"tenant", alert.TenantID,
		"provider_message_id", result.ProviderMessageID,
	)
	return result, nil
}
