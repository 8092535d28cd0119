package ucp

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Product is the catalog collaborator's view of one purchasable entry.
// Price is in major units; conversion to minor units happens exactly once,
// inside the engine.
type Product struct {
	ID            string
	Title         string
	Price         float64
	ImageURL      string
	Permalink     string
	SKU           string
	InStock       bool
	ManagesStock  bool
	StockQuantity int
	NeedsShipping bool
}

// ErrProductNotFound is returned by catalogs when no id, SKU, or slug
// matches the reference.
var ErrProductNotFound = errors.New("ucp: product not found")

// Catalog resolves raw item references against the store's product data.
// Implementations try numeric id first, then SKU, then slug.
type Catalog interface {
	ResolveProduct(ctx context.Context, ref string) (*Product, error)
}

// Rate is one shipping quote from the rating collaborator, major units.
type Rate struct {
	ID     string
	Title  string
	Amount float64
}

// ShippingRater quotes delivery of the given items to a destination.
type ShippingRater interface {
	RateDestination(ctx context.Context, dest Destination, items []LineItem) ([]Rate, error)
}

// TaxCalculator computes tax on the decimal subtotal for a destination.
type TaxCalculator interface {
	TaxEnabled() bool
	ComputeTax(ctx context.Context, subtotal float64, dest Destination) (float64, error)
}

// OrderStatus is the underlying order collaborator's status vocabulary.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusOnHold     OrderStatus = "on-hold"
	OrderStatusCompleted  OrderStatus = "completed"
	OrderStatusCancelled  OrderStatus = "cancelled"
	OrderStatusRefunded   OrderStatus = "refunded"
	OrderStatusFailed     OrderStatus = "failed"
)

// MapOrderStatus translates collaborator statuses into the protocol's order
// vocabulary.
func MapOrderStatus(status OrderStatus) string {
	switch status {
	case OrderStatusPending:
		return "pending_payment"
	case OrderStatusProcessing:
		return "confirmed"
	case OrderStatusOnHold:
		return "on_hold"
	case OrderStatusCompleted:
		return "delivered"
	case OrderStatusCancelled:
		return "cancelled"
	case OrderStatusRefunded:
		return "refunded"
	case OrderStatusFailed:
		return "failed"
	default:
		return string(status)
	}
}

// Refund is one adjustment recorded against an order.
type Refund struct {
	ID        string    `json:"id"`
	Amount    int64     `json:"amount"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Order is the materialized order the collaborator creates on completion.
type Order struct {
	ID              string
	SessionID       string
	Number          string
	Status          OrderStatus
	PermalinkURL    string
	LineItems       []LineItem
	Totals          []Total
	ShippingAddress *Destination
	Refunds         []Refund
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// OrderError carries the diagnostics of a failed order materialization. The
// session survives the failure; callers fold these messages into a
// requires_escalation response instead of surfacing a transport error.
type OrderError struct {
	Messages []Message
}

func (e *OrderError) Error() string {
	parts := make([]string, 0, len(e.Messages))
	for _, m := range e.Messages {
		parts = append(parts, m.Text)
	}
	if len(parts) == 0 {
		return "ucp: order creation failed"
	}
	return "ucp: order creation failed: " + strings.Join(parts, "; ")
}

// OrderService materializes and looks up orders. CreateOrder is
// all-or-nothing from the caller's point of view: a failure leaves no
// half-created order behind. MarkPaid is a boundary no-op in deployments
// without gateway settlement.
type OrderService interface {
	CreateOrder(ctx context.Context, session *Session, payment PaymentData) (*Order, error)
	MarkPaid(ctx context.Context, orderID string) error
	GetOrder(ctx context.Context, orderID string) (*Order, error)
}

// ErrOrderNotFound is returned by order services for unknown ids.
var ErrOrderNotFound = errors.New("ucp: order not found")

// OrderEvents receives order lifecycle transitions raised by the order
// collaborator. The webhook dispatcher implements it.
type OrderEvents interface {
	StatusChanged(ctx context.Context, order *Order, from, to OrderStatus)
	Refunded(ctx context.Context, order *Order, refund Refund)
	TrackingAdded(ctx context.Context, order *Order, trackingNumber, trackingURL string)
}
