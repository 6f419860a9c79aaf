package external

import (
	"context"
	"fmt"

	"storepulse/internal/types"

	"github.com/google/uuid"
)

// Stub providers for local development. They log the call and return a
// plausible success result without any network I/O. Wire them in when
// APP_ENV=local so workers can run without vendor credentials.

// StubEmailProvider is a no-op EmailProvider for local development.
type StubEmailProvider struct {
	Logger types.Logger
}

func (s *StubEmailProvider) SendEmail(_ context.Context, msg EmailMessage) (*types.DeliveryResult, error) {
	s.Logger.Info("stub: SendEmail called", "to", msg.ToAddress, "subject", msg.Subject)
	return &types.DeliveryResult{
		ProviderMessageID: "stub-email-" + uuid.NewString(),
		Status:            "accepted",
	}, nil
}

// StubSMSProvider is a no-op SMSProvider for local development.
type StubSMSProvider struct {
	Logger types.Logger
}

func (s *StubSMSProvider) SendSMS(_ context.Context, msg SMSMessage) (*types.DeliveryResult, error) {
	s.Logger.Info("stub: SendSMS called", "to", msg.ToNumber, "body_len", len(msg.Body))
	return &types.DeliveryResult{
		ProviderMessageID: "stub-sms-" + uuid.NewString(),
		Status:            "queued",
	}, nil
}

// StubCRMProvider is a no-op CRMProvider for local development.
type StubCRMProvider struct {
	Logger types.Logger
}

func (s *StubCRMProvider) CreateMessage(_ context.Context, msg CRMMessage) (*types.DeliveryResult, error) {
	s.Logger.Info("stub: CreateMessage called", "location", msg.LocationID, "subject", msg.Subject)
	return &types.DeliveryResult{
		ProviderMessageID: "stub-crm-" + uuid.NewString(),
		Status:            "created",
	}, nil
}

// StubCatalogSource serves a small fixed catalog for local development.
type StubCatalogSource struct {
	Logger types.Logger
}

func (s *StubCatalogSource) ListProducts(_ context.Context, tenant string, pageToken string) (*CatalogPage, error) {
	s.Logger.Info("stub: ListProducts called", "tenant", tenant, "page", pageToken)
	if pageToken != "" {
		return &CatalogPage{}, nil
	}
	products := make([]types.CatalogProduct, 0, 3)
	for i, title := range []string{
		"Dreamline Plush Memory Foam Mattress",
		"Ironwood Firm Hybrid Mattress",
		"Feathercloud Latex Topper",
	} {
		products = append(products, types.CatalogProduct{
			ID:          fmt.Sprintf("gid://shopify/Product/%d", 1000+i),
			Title:       title,
			Vendor:      "Stub Sleep Co",
			ProductType: "Mattress",
			PriceCents:  int64(89900 + i*20000),
		})
	}
	return &CatalogPage{Products: products}, nil
}

var (
	_ EmailProvider = (*StubEmailProvider)(nil)
	_ SMSProvider   = (*StubSMSProvider)(nil)
	_ CRMProvider   = (*StubCRMProvider)(nil)
	_ CatalogSource = (*StubCatalogSource)(nil)
)
