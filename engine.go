package ucp

import (
	"context"
	"fmt"
	"math"
)

// MinorUnits converts a major-unit decimal amount into integer minor units,
// rounding half up. This is the only place a monetary decimal is rounded;
// all arithmetic after the conversion is integer.
func MinorUnits(amount float64) int64 {
	return int64(math.Floor(amount*100 + 0.5))
}

// Engine performs the pure checkout computation over a session: line-item
// resolution, totals, shipping-option lookup, and status derivation. All
// collaborators are explicit; the engine holds no ambient store state.
type Engine struct {
	catalog  Catalog
	shipping ShippingRater
	tax      TaxCalculator

	// baseAddress is the store's own address, used for tax estimates
	// while the agent has not supplied a destination.
	baseAddress Destination
}

// EngineOption customizes an Engine.
type EngineOption func(*Engine)

// WithBaseAddress sets the store address used for destination-less tax
// estimates.
func WithBaseAddress(addr Destination) EngineOption {
	return func(e *Engine) {
		e.baseAddress = addr
	}
}

// NewEngine builds an Engine over the given collaborators. Shipping and tax
// may be nil when the store offers neither.
func NewEngine(catalog Catalog, shipping ShippingRater, tax TaxCalculator, opts ...EngineOption) *Engine {
	e := &Engine{
		catalog:  catalog,
		shipping: shipping,
		tax:      tax,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(e)
	}
	return e
}

// ProcessLineItems resolves raw item specs against the catalog. Items that
// cannot be resolved, purchased, or stocked are dropped with an error
// message; insufficient stock clamps the quantity with a warning instead of
// failing the request.
func (e *Engine) ProcessLineItems(ctx context.Context, specs []LineItemSpec) ([]LineItem, []Message) {
	processed := make([]LineItem, 0, len(specs))
	var messages []Message

	for i, spec := range specs {
		ref := spec.Item.ID
		if ref == "" {
			messages = append(messages, Message{
				Type: MessageTypeError,
				Code: "invalid_item",
				Text: fmt.Sprintf("Line item %d is missing product ID", i),
			})
			continue
		}

		quantity := spec.Quantity
		if quantity <= 0 {
			quantity = 1
		}

		product, err := e.catalog.ResolveProduct(ctx, ref)
		if err != nil || product == nil {
			messages = append(messages, Message{
				Type: MessageTypeError,
				Code: "product_not_found",
				Text: fmt.Sprintf("Product %q not found", ref),
			})
			continue
		}
		if !product.InStock {
			messages = append(messages, Message{
				Type: MessageTypeError,
				Code: "out_of_stock",
				Text: fmt.Sprintf("Product %q is out of stock", ref),
			})
			continue
		}
		if product.ManagesStock && product.StockQuantity < quantity {
			messages = append(messages, Message{
				Type: MessageTypeWarning,
				Code: "insufficient_stock",
				Text: fmt.Sprintf("Only %d units available for %q", product.StockQuantity, ref),
			})
			quantity = product.StockQuantity
		}
		if quantity <= 0 {
			continue
		}

		lineID := spec.ID
		if lineID == "" {
			lineID = fmt.Sprintf("li_%d", i+1)
		}
		price := MinorUnits(product.Price)

		processed = append(processed, LineItem{
			ID: lineID,
			Item: ItemDetail{
				ID:         product.ID,
				Title:      product.Title,
				Price:      price,
				ImageURL:   product.ImageURL,
				ProductURL: product.Permalink,
				SKU:        product.SKU,
			},
			Quantity: quantity,
			Totals: []Total{
				{Type: TotalTypeSubtotal, Amount: price * int64(quantity)},
			},
			CatalogID:     product.ID,
			NeedsShipping: product.NeedsShipping,
		})
	}

	return processed, messages
}

// CalculateTotals recomputes the session's ordered five-part totals:
// subtotal, shipping, tax, discount, total. Amounts are integer minor units
// throughout; tax is computed on the decimal subtotal and rounded exactly
// once.
func (e *Engine) CalculateTotals(ctx context.Context, session *Session) []Total {
	var subtotal int64
	for _, item := range session.LineItems {
		subtotal += item.Item.Price * int64(item.Quantity)
	}

	shipping := session.Fulfillment.SelectedShipping()
	tax := e.calculateTax(ctx, subtotal, session.Fulfillment)

	// Reserved for a discount extension.
	var discount int64

	total := subtotal + shipping + tax - discount

	return []Total{
		{Type: TotalTypeSubtotal, Amount: subtotal},
		{Type: TotalTypeShipping, Amount: shipping},
		{Type: TotalTypeTax, Amount: tax},
		{Type: TotalTypeDiscount, Amount: discount},
		{Type: TotalTypeTotal, Amount: total},
	}
}

func (e *Engine) calculateTax(ctx context.Context, subtotal int64, fulfillment *Fulfillment) int64 {
	if e.tax == nil || !e.tax.TaxEnabled() {
		return 0
	}

	dest := fulfillment.ShippingDestination()
	if dest == nil || dest.AddressCountry == "" {
		dest = &e.baseAddress
	}

	amount, err := e.tax.ComputeTax(ctx, float64(subtotal)/100, *dest)
	if err != nil {
		return 0
	}
	return MinorUnits(amount)
}

// DetermineStatus derives the session status from its current contents.
func (e *Engine) DetermineStatus(session *Session) SessionStatus {
	if len(session.LineItems) == 0 {
		return SessionStatusIncomplete
	}

	needsShipping := false
	for _, item := range session.LineItems {
		if item.NeedsShipping {
			needsShipping = true
			break
		}
	}

	if needsShipping {
		dest := session.Fulfillment.ShippingDestination()
		if dest == nil || dest.AddressCountry == "" {
			return SessionStatusIncomplete
		}
		if !session.Fulfillment.HasSelection() {
			return SessionStatusIncomplete
		}
	}

	return SessionStatusReadyForComplete
}

// ShippingOptions rates a synthetic parcel built from the current line items
// against the destination. An empty destination or empty item set yields an
// empty result, not an error.
func (e *Engine) ShippingOptions(ctx context.Context, dest Destination, items []LineItem) ([]ShippingOption, error) {
	if e.shipping == nil || dest.AddressCountry == "" || len(items) == 0 {
		return []ShippingOption{}, nil
	}

	rates, err := e.shipping.RateDestination(ctx, dest, items)
	if err != nil {
		return nil, fmt.Errorf("rate destination: %w", err)
	}

	options := make([]ShippingOption, 0, len(rates))
	for _, rate := range rates {
		options = append(options, ShippingOption{
			ID:    rate.ID,
			Title: rate.Title,
			Totals: []Total{
				{Type: TotalTypeTotal, Amount: MinorUnits(rate.Amount)},
			},
		})
	}
	return options, nil
}
