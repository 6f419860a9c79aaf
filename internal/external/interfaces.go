package external

import (
	"context"

	"storepulse/internal/types"
)

// EmailMessage is the provider-agnostic input for sending an email.
type EmailMessage struct {
	ToAddress string
	ToName    string
	Subject   string
	HTMLBody  string
	TextBody  string
}

// SMSMessage is the provider-agnostic input for sending a text message.
type SMSMessage struct {
	ToNumber string
	Body     string
}

// CRMMessage is the provider-agnostic input for pushing a conversation
// summary into a merchant's CRM inbox.
type CRMMessage struct {
	LocationID string
	Subject    string
	Body       string
	ContactRef string
}

// EmailProvider sends transactional email on behalf of a tenant.
type EmailProvider interface {
	SendEmail(ctx context.Context, msg EmailMessage) (*types.DeliveryResult, error)
}

// SMSProvider sends text messages on behalf of a tenant.
type SMSProvider interface {
	SendSMS(ctx context.Context, msg SMSMessage) (*types.DeliveryResult, error)
}

// CRMProvider pushes lead and conversation records into a merchant CRM.
type CRMProvider interface {
	CreateMessage(ctx context.Context, msg CRMMessage) (*types.DeliveryResult, error)
}

// CatalogPage is a single page of products from a storefront catalog.
type CatalogPage struct {
	Products []types.CatalogProduct
	NextPage string
}

// CatalogSource fetches a tenant's product catalog page by page. An empty
// pageToken requests the first page; an empty NextPage in the result means
// the listing is exhausted.
type CatalogSource interface {
	ListProducts(ctx context.Context, tenant string, pageToken string) (*CatalogPage, error)
}
