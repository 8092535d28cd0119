package ucp

import (
	"time"

	"github.com/google/uuid"
)

// ProtocolVersion is the UCP revision this module implements.
const ProtocolVersion = "2026-01-11"

// SessionStatus defines the checkout session state machine vocabulary.
type SessionStatus string

const (
	SessionStatusIncomplete         SessionStatus = "incomplete"
	SessionStatusReadyForComplete   SessionStatus = "ready_for_complete"
	SessionStatusProcessing         SessionStatus = "processing"
	SessionStatusComplete           SessionStatus = "complete"
	SessionStatusRequiresEscalation SessionStatus = "requires_escalation"
	SessionStatusExpired            SessionStatus = "expired"
	SessionStatusCancelled          SessionStatus = "cancelled"
)

// Terminal reports whether no further transition may leave the status.
func (s SessionStatus) Terminal() bool {
	return s == SessionStatusComplete || s == SessionStatusCancelled
}

// TotalType labels one entry of a totals breakdown.
type TotalType string

const (
	TotalTypeSubtotal TotalType = "subtotal"
	TotalTypeShipping TotalType = "shipping"
	TotalTypeTax      TotalType = "tax"
	TotalTypeDiscount TotalType = "discount"
	TotalTypeTotal    TotalType = "total"
)

// Total is one monetary component in the currency's minor unit.
type Total struct {
	Type   TotalType `json:"type"`
	Amount int64     `json:"amount"`
}

// AmountOf returns the amount for the given type, or zero when absent.
func AmountOf(totals []Total, typ TotalType) int64 {
	for _, t := range totals {
		if t.Type == typ {
			return t.Amount
		}
	}
	return 0
}

// MessageType classifies a diagnostic surfaced to the caller.
type MessageType string

const (
	MessageTypeError   MessageType = "error"
	MessageTypeWarning MessageType = "warning"
	MessageTypeInfo    MessageType = "info"
)

// SeverityRequiresBuyerInput signals the agent must re-prompt a human.
const SeverityRequiresBuyerInput = "requires_buyer_input"

// Message is a structured diagnostic. Messages are transient: recomputed per
// request, never persisted with the session.
type Message struct {
	Type     MessageType `json:"type"`
	Code     string      `json:"code"`
	Text     string      `json:"message"`
	Severity string      `json:"severity,omitempty"`
}

// Buyer identifies the human the agent is buying for.
type Buyer struct {
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Email     string `json:"email,omitempty" validate:"omitempty,email"`
	Phone     string `json:"phone,omitempty"`
}

// Destination is a delivery address in the schema.org-flavored shape agents
// send.
type Destination struct {
	FullName        string `json:"full_name,omitempty"`
	StreetAddress   string `json:"street_address,omitempty"`
	AddressLocality string `json:"address_locality,omitempty"`
	AddressRegion   string `json:"address_region,omitempty"`
	PostalCode      string `json:"postal_code,omitempty"`
	AddressCountry  string `json:"address_country,omitempty"`
}

// ShippingOption is one rated delivery choice inside a fulfillment group.
type ShippingOption struct {
	ID     string  `json:"id"`
	Title  string  `json:"title"`
	Totals []Total `json:"totals"`
}

// FulfillmentGroup ties a set of line items to shipping options and the
// agent's selection.
type FulfillmentGroup struct {
	ID               string           `json:"id"`
	LineItemIDs      []string         `json:"line_item_ids,omitempty"`
	Options          []ShippingOption `json:"options,omitempty"`
	SelectedOptionID string           `json:"selected_option_id,omitempty"`
}

// FulfillmentMethod describes one requested delivery method.
type FulfillmentMethod struct {
	Type         string             `json:"type"`
	Destinations []Destination      `json:"destinations,omitempty"`
	Groups       []FulfillmentGroup `json:"groups,omitempty"`
}

// MethodTypeShipping marks methods that move physical goods.
const MethodTypeShipping = "shipping"

// Fulfillment collects the delivery methods requested for a session.
type Fulfillment struct {
	Methods []FulfillmentMethod `json:"methods,omitempty"`
}

// ShippingDestination returns the first destination of the first shipping
// method, or nil when the agent has not provided one yet.
func (f *Fulfillment) ShippingDestination() *Destination {
	if f == nil {
		return nil
	}
	for _, m := range f.Methods {
		if len(m.Destinations) > 0 {
			d := m.Destinations[0]
			return &d
		}
	}
	return nil
}

// SelectedShipping returns the chosen option across all groups, minor units.
func (f *Fulfillment) SelectedShipping() int64 {
	if f == nil {
		return 0
	}
	var sum int64
	for _, m := range f.Methods {
		for _, g := range m.Groups {
			if g.SelectedOptionID == "" {
				continue
			}
			for _, o := range g.Options {
				if o.ID == g.SelectedOptionID {
					sum += AmountOf(o.Totals, TotalTypeTotal)
					break
				}
			}
		}
	}
	return sum
}

// HasSelection reports whether any group carries a selected option.
func (f *Fulfillment) HasSelection() bool {
	if f == nil {
		return false
	}
	for _, m := range f.Methods {
		for _, g := range m.Groups {
			if g.SelectedOptionID != "" {
				return true
			}
		}
	}
	return false
}

// ItemDetail is the resolved catalog view embedded in a line item.
type ItemDetail struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Price      int64  `json:"price"`
	ImageURL   string `json:"image_url,omitempty"`
	ProductURL string `json:"product_url,omitempty"`
	SKU        string `json:"sku,omitempty"`
}

// LineItem is one purchasable entry of a session.
type LineItem struct {
	ID            string     `json:"id"`
	Item          ItemDetail `json:"item"`
	Quantity      int        `json:"quantity"`
	Totals        []Total    `json:"totals"`
	CatalogID     string     `json:"catalog_id,omitempty"`
	NeedsShipping bool       `json:"requires_shipping,omitempty"`
}

// Session is the mutable, expiring unit of negotiation between an agent and
// the store before an order exists.
type Session struct {
	ID              string        `json:"id"`
	Status          SessionStatus `json:"status"`
	Currency        string        `json:"currency"`
	Buyer           *Buyer        `json:"buyer,omitempty"`
	LineItems       []LineItem    `json:"line_items"`
	Totals          []Total       `json:"totals"`
	Fulfillment     *Fulfillment  `json:"fulfillment,omitempty"`
	PlatformProfile string        `json:"platform_profile,omitempty"`
	OrderID         string        `json:"order_id,omitempty"`

	// Version counts saves, for stores running at the versioned
	// consistency level. Zero before the first save.
	Version int64 `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewSession builds an empty incomplete session with a fresh chk_ id.
func NewSession(currency string, now time.Time, timeout time.Duration) *Session {
	return &Session{
		ID:        "chk_" + uuid.NewString(),
		Status:    SessionStatusIncomplete,
		Currency:  currency,
		LineItems: []LineItem{},
		Totals:    []Total{},
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(timeout),
	}
}

// Expired reports whether the session's deadline has passed.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

// Touch advances the update timestamp and pushes the expiry window forward.
func (s *Session) Touch(now time.Time, timeout time.Duration) {
	s.UpdatedAt = now
	s.ExpiresAt = now.Add(timeout)
}

// Capability names one protocol feature advertised in every response.
type Capability struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ProtocolInfo is the ucp envelope on responses.
type ProtocolInfo struct {
	Version      string       `json:"version"`
	Capabilities []Capability `json:"capabilities"`
}

// Link points at store policy documents the agent should surface.
type Link struct {
	Rel  string `json:"rel"`
	Href string `json:"href"`
}

// PaymentHandlerKind tags the payment handler variants.
type PaymentHandlerKind string

const (
	// HandlerEmbedded hands the buyer off to the store's own hosted
	// checkout instead of completing autonomously.
	HandlerEmbedded PaymentHandlerKind = "embedded"
	// HandlerDirect completes the purchase through a payment gateway
	// without human involvement.
	HandlerDirect PaymentHandlerKind = "direct"
)

// PaymentHandler describes one way a session may be paid for.
type PaymentHandler struct {
	ID      string             `json:"id"`
	Name    string             `json:"name"`
	Version string             `json:"version,omitempty"`
	Kind    PaymentHandlerKind `json:"type"`
	Title   string             `json:"title,omitempty"`

	// CheckoutURL is the hosted checkout base for embedded handlers.
	CheckoutURL string `json:"-"`
	// GatewayID names the gateway behind direct handlers.
	GatewayID string `json:"-"`
}

// PaymentOptions is the payment-handler catalog embedded in responses.
type PaymentOptions struct {
	Handlers []PaymentHandler `json:"handlers"`
}

// PaymentData is the payment instruction supplied on completion.
type PaymentData struct {
	HandlerID      string       `json:"handler_id"`
	Token          string       `json:"token,omitempty"`
	BillingAddress *Destination `json:"billing_address,omitempty"`
}

// SessionResponse is the checkout-session JSON shape returned by every
// successful protocol operation.
type SessionResponse struct {
	UCP         ProtocolInfo    `json:"ucp"`
	ID          string          `json:"id"`
	Status      SessionStatus   `json:"status"`
	Currency    string          `json:"currency"`
	LineItems   []LineItem      `json:"line_items"`
	Totals      []Total         `json:"totals"`
	Links       []Link          `json:"links"`
	Buyer       *Buyer          `json:"buyer,omitempty"`
	Fulfillment *Fulfillment    `json:"fulfillment,omitempty"`
	Payment     *PaymentOptions `json:"payment,omitempty"`
	Messages    []Message       `json:"messages,omitempty"`
	Order       *OrderSummary   `json:"order,omitempty"`
	ContinueURL string          `json:"continue_url,omitempty"`
}

// CheckoutSessionCreateRequest opens a new session.
type CheckoutSessionCreateRequest struct {
	Currency    string         `json:"currency,omitempty" validate:"omitempty,len=3"`
	LineItems   []LineItemSpec `json:"line_items" validate:"required,min=1,dive"`
	Buyer       *Buyer         `json:"buyer,omitempty"`
	Fulfillment *Fulfillment   `json:"fulfillment,omitempty"`
}

// CheckoutSessionUpdateRequest patches an existing session. Nil fields are
// left untouched.
type CheckoutSessionUpdateRequest struct {
	LineItems   *[]LineItemSpec `json:"line_items,omitempty" validate:"omitempty,dive"`
	Buyer       *Buyer          `json:"buyer,omitempty"`
	Fulfillment *Fulfillment    `json:"fulfillment,omitempty"`
}

// CheckoutSessionCompleteRequest finalizes a session.
type CheckoutSessionCompleteRequest struct {
	Buyer       *Buyer       `json:"buyer,omitempty"`
	PaymentData *PaymentData `json:"payment_data" validate:"required"`
}

// LineItemSpec is the raw, unresolved line item an agent sends.
type LineItemSpec struct {
	ID       string  `json:"id,omitempty"`
	Item     ItemRef `json:"item" validate:"required"`
	Quantity int     `json:"quantity,omitempty" validate:"omitempty,min=1"`
}

// ItemRef names a catalog entry by id, SKU, or slug.
type ItemRef struct {
	ID string `json:"id" validate:"required"`
}

// WebhookRegisterRequest subscribes a platform endpoint to order events.
type WebhookRegisterRequest struct {
	WebhookURL string   `json:"webhook_url" validate:"required,url"`
	Events     []string `json:"events,omitempty"`
}

// WebhookRegisterResponse acknowledges a webhook registration.
type WebhookRegisterResponse struct {
	Success   bool     `json:"success"`
	WebhookID string   `json:"webhook_id"`
	Events    []string `json:"events"`
}

func defaultCapabilities() []Capability {
	return []Capability{
		{Name: "dev.ucp.shopping.checkout", Version: ProtocolVersion},
		{Name: "dev.ucp.shopping.fulfillment", Version: ProtocolVersion},
	}
}

func protocolInfo() ProtocolInfo {
	return ProtocolInfo{Version: ProtocolVersion, Capabilities: defaultCapabilities()}
}
