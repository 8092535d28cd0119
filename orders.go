package ucp

import (
	"time"
)

// OrderSummary is the condensed order view embedded in session responses.
type OrderSummary struct {
	ID           string     `json:"id"`
	OrderNumber  string     `json:"order_number"`
	Status       string     `json:"status"`
	PermalinkURL string     `json:"permalink_url,omitempty"`
	CreatedAt    *time.Time `json:"created_at,omitempty"`
}

func orderSummary(order *Order) *OrderSummary {
	if order == nil {
		return nil
	}
	summary := &OrderSummary{
		ID:           order.ID,
		OrderNumber:  order.Number,
		Status:       MapOrderStatus(order.Status),
		PermalinkURL: order.PermalinkURL,
	}
	if !order.CreatedAt.IsZero() {
		created := order.CreatedAt
		summary.CreatedAt = &created
	}
	return summary
}

// Adjustment records a post-completion change against an order, currently
// always a refund.
type Adjustment struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	OccurredAt  string `json:"occurred_at,omitempty"`
	Status      string `json:"status"`
	Amount      int64  `json:"amount"`
	Description string `json:"description"`
}

// FulfillmentExpectation describes where an order is headed.
type FulfillmentExpectation struct {
	ID          string       `json:"id"`
	MethodType  string       `json:"method_type"`
	Destination *Destination `json:"destination,omitempty"`
}

// OrderFulfillment is the fulfillment section of an order snapshot.
type OrderFulfillment struct {
	Expectations []FulfillmentExpectation `json:"expectations"`
	Events       []any                    `json:"events"`
}

// OrderSnapshot is the full order view delivered in webhook payloads and
// from the order endpoint.
type OrderSnapshot struct {
	UCP          ProtocolInfo     `json:"ucp"`
	ID           string           `json:"id"`
	CheckoutID   string           `json:"checkout_id"`
	OrderNumber  string           `json:"order_number"`
	Status       string           `json:"status"`
	PermalinkURL string           `json:"permalink_url,omitempty"`
	CreatedAt    string           `json:"created_at,omitempty"`
	UpdatedAt    string           `json:"updated_at,omitempty"`
	LineItems    []LineItem       `json:"line_items"`
	Totals       []Total          `json:"totals"`
	Fulfillment  OrderFulfillment `json:"fulfillment"`
	Adjustments  []Adjustment     `json:"adjustments,omitempty"`
}

func orderSnapshot(order *Order) OrderSnapshot {
	snapshot := OrderSnapshot{
		UCP: ProtocolInfo{
			Version: ProtocolVersion,
			Capabilities: []Capability{
				{Name: "dev.ucp.shopping.order", Version: ProtocolVersion},
			},
		},
		ID:           order.ID,
		CheckoutID:   order.SessionID,
		OrderNumber:  order.Number,
		Status:       MapOrderStatus(order.Status),
		PermalinkURL: order.PermalinkURL,
		LineItems:    order.LineItems,
		Totals:       order.Totals,
		Fulfillment: OrderFulfillment{
			Expectations: []FulfillmentExpectation{},
			Events:       []any{},
		},
	}
	if snapshot.LineItems == nil {
		snapshot.LineItems = []LineItem{}
	}
	if snapshot.Totals == nil {
		snapshot.Totals = []Total{}
	}
	if !order.CreatedAt.IsZero() {
		snapshot.CreatedAt = order.CreatedAt.UTC().Format(time.RFC3339)
	}
	if !order.UpdatedAt.IsZero() {
		snapshot.UpdatedAt = order.UpdatedAt.UTC().Format(time.RFC3339)
	}
	if order.ShippingAddress != nil {
		snapshot.Fulfillment.Expectations = append(snapshot.Fulfillment.Expectations, FulfillmentExpectation{
			ID:          "exp_shipping",
			MethodType:  MethodTypeShipping,
			Destination: order.ShippingAddress,
		})
	}
	for _, refund := range order.Refunds {
		adj := Adjustment{
			ID:          "adj_" + refund.ID,
			Type:        "refund",
			Status:      "completed",
			Amount:      refund.Amount,
			Description: refund.Reason,
		}
		if adj.Description == "" {
			adj.Description = "Refund"
		}
		if !refund.CreatedAt.IsZero() {
			adj.OccurredAt = refund.CreatedAt.UTC().Format(time.RFC3339)
		}
		snapshot.Adjustments = append(snapshot.Adjustments, adj)
	}
	return snapshot
}
