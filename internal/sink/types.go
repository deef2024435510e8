package sink

import (
	"context"

	"github.com/shopspring/decimal"
)

// CustomerRequest is the buyer record sent on order creation.
type CustomerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Document string `json:"document,omitempty"`
	Phone    string `json:"phone,omitempty"`
}

// AddressRequest is the shipping address sent on order creation.
type AddressRequest struct {
	Street  string `json:"street,omitempty"`
	Number  string `json:"number,omitempty"`
	City    string `json:"city,omitempty"`
	State   string `json:"state,omitempty"`
	ZipCode string `json:"zip_code,omitempty"`
	Country string `json:"country,omitempty"`
}

// ItemRequest is one order line item.
type ItemRequest struct {
	SKU      string          `json:"sku,omitempty"`
	Name     string          `json:"name"`
	Quantity int             `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

// OrderRequest is the payload for creating a storefront order. ExternalRef
// is the idempotency tag embedding the source order id; it makes duplicate
// creates detectable after the fact.
type OrderRequest struct {
	ExternalRef     string          `json:"external_ref"`
	FinancialStatus string          `json:"financial_status"`
	Total           decimal.Decimal `json:"total"`
	PaymentMethod   string          `json:"payment_method,omitempty"`
	Note            string          `json:"note,omitempty"`
	Customer        CustomerRequest `json:"customer"`
	Address         AddressRequest  `json:"shipping_address,omitempty"`
	Items           []ItemRequest   `json:"items"`
}

// Order is a storefront order as returned by the sink API.
type Order struct {
	ID              string `json:"id"`
	ExternalRef     string `json:"external_ref"`
	FinancialStatus string `json:"financial_status"`
}

// API is the set of storefront operations the orchestrator needs. The HTTP
// client implements it; tests substitute an in-memory fake.
type API interface {
	CreateOrder(ctx context.Context, req *OrderRequest) (*Order, error)
	UpdateFinancialStatus(ctx context.Context, orderID, status string) (*Order, error)
	CancelOrder(ctx context.Context, orderID string) error
	RefundOrder(ctx context.Context, orderID string) error
	// FindByExternalRef searches recent orders for one carrying the given
	// idempotency tag. Returns (nil, nil) when none is found. The search is
	// bounded: it only looks back a configured window, which is acceptable
	// because it is the fallback path for orders the mapping store has not
	// yet learned.
	FindByExternalRef(ctx context.Context, externalRef string) (*Order, error)
}
