package channel

import (
	"context"
	"fmt"

	"storepulse/internal/external"
	"storepulse/internal/types"
)

// Compile-time assertion that CRMChannel implements AlertChannel.
var _ AlertChannel = (*CRMChannel)(nil)

// CRMChannel pushes alerts into the merchant's CRM inbox through a
// CRMProvider (Podium in production).
type CRMChannel struct {
	provider external.CRMProvider
	logger   types.Logger
}

// NewCRMChannel creates a crm alert channel.
func NewCRMChannel(provider external.CRMProvider, logger types.Logger) *CRMChannel {
	return &CRMChannel{provider: provider, logger: logger}
}

func (c *CRMChannel) Type() types.ChannelType { return types.ChannelCRM }

// Send creates a CRM message for the location from the tenant's channel
// config ("location_uid", optional "contact_uid").
func (c *CRMChannel) Send(ctx context.Context, cfg types.ChannelConfig, alert *types.Alert) (*types.DeliveryResult, error) {
	locationID, err := configString(cfg, "location_uid")
	if err != nil {
		return nil, err
	}

	result, err := c.provider.CreateMessage(ctx, external.CRMMessage{
		LocationID: locationID,
		Subject:    renderSubject(alert),
		Body:       renderText(alert),
		ContactRef: optionalConfigString(cfg, "contact_uid"),
	})
	if err != nil {
		return nil, classifyProviderError(fmt.Errorf("CRMChannel.Send: %w", err))
	}

	c.logger.Info("crm alert delivered",
		"alert_id", alert.ID,
		"tenant", alert.TenantID,
		"provider_message_id", result.ProviderMessageID,
	)
	return result, nil
}
