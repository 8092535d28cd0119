package ucp

import (
	"context"
	"errors"
	"testing"
)

type stubCatalog struct {
	products map[string]Product
}

func (s *stubCatalog) ResolveProduct(_ context.Context, ref string) (*Product, error) {
	p, ok := s.products[ref]
	if !ok {
		return nil, ErrProductNotFound
	}
	return &p, nil
}

type stubRater struct {
	rates []Rate
	err   error
}

func (s *stubRater) RateDestination(context.Context, Destination, []LineItem) ([]Rate, error) {
	return s.rates, s.err
}

type stubTax struct {
	enabled bool
	rate    float64
	gotDest Destination
}

func (s *stubTax) TaxEnabled() bool { return s.enabled }

func (s *stubTax) ComputeTax(_ context.Context, subtotal float64, dest Destination) (float64, error) {
	s.gotDest = dest
	return subtotal * s.rate, nil
}

func testCatalog() *stubCatalog {
	return &stubCatalog{products: map[string]Product{
		"p1": {ID: "p1", Title: "Widget", Price: 19.99, SKU: "W-1", InStock: true, NeedsShipping: true},
		"p2": {ID: "p2", Title: "Gadget", Price: 5.00, InStock: true, ManagesStock: true, StockQuantity: 3},
		"p3": {ID: "p3", Title: "Gone", Price: 1.00, InStock: false},
	}}
}

func TestMinorUnits(t *testing.T) {
	t.Parallel()

	tests := []struct {
		amount float64
		want   int64
	}{
		{19.99, 1999},
		{0, 0},
		{0.005, 1},
		{0.004, 0},
		{9.999, 1000},
		{100, 10000},
		{12.50, 1250},
	}
	for _, tt := range tests {
		if got := MinorUnits(tt.amount); got != tt.want {
			t.Errorf("MinorUnits(%v) = %d, want %d", tt.amount, got, tt.want)
		}
	}
}

func TestProcessLineItems(t *testing.T) {
	t.Parallel()

	engine := NewEngine(testCatalog(), nil, nil)
	ctx := context.Background()

	items, messages := engine.ProcessLineItems(ctx, []LineItemSpec{
		{Item: ItemRef{ID: "p1"}, Quantity: 2},
		{Item: ItemRef{ID: "missing"}, Quantity: 1},
		{Item: ItemRef{ID: "p3"}, Quantity: 1},
		{Item: ItemRef{}, Quantity: 1},
	})

	if len(items) != 1 {
		t.Fatalf("got %d items, want 1", len(items))
	}
	item := items[0]
	if item.Item.Price != 1999 {
		t.Errorf("unit price = %d, want 1999", item.Item.Price)
	}
	if got := AmountOf(item.Totals, TotalTypeSubtotal); got != 3998 {
		t.Errorf("line subtotal = %d, want 3998", got)
	}
	if !item.NeedsShipping {
		t.Error("line item should carry the product's shipping flag")
	}

	wantCodes := map[string]bool{"product_not_found": false, "out_of_stock": false, "invalid_item": false}
	for _, m := range messages {
		if m.Type != MessageTypeError {
			t.Errorf("message %q has type %q, want error", m.Code, m.Type)
		}
		if _, ok := wantCodes[m.Code]; ok {
			wantCodes[m.Code] = true
		}
	}
	for code, seen := range wantCodes {
		if !seen {
			t.Errorf("missing expected message code %q", code)
		}
	}
}

func TestProcessLineItemsClampsStock(t *testing.T) {
	t.Parallel()

	engine := NewEngine(testCatalog(), nil, nil)

	items, messages := engine.ProcessLineItems(context.Background(), []LineItemSpec{
		{Item: ItemRef{ID: "p2"}, Quantity: 10},
	})

	if len(items) != 1 {
		t.Fatalf("got %d items, want 1", len(items))
	}
	if items[0].Quantity != 3 {
		t.Errorf("quantity = %d, want clamp to 3", items[0].Quantity)
	}
	if len(messages) != 1 || messages[0].Type != MessageTypeWarning || messages[0].Code != "insufficient_stock" {
		t.Errorf("messages = %+v, want one insufficient_stock warning", messages)
	}
}

func TestProcessLineItemsDefaultsQuantity(t *testing.T) {
	t.Parallel()

	engine := NewEngine(testCatalog(), nil, nil)

	items, _ := engine.ProcessLineItems(context.Background(), []LineItemSpec{
		{Item: ItemRef{ID: "p1"}},
	})
	if len(items) != 1 || items[0].Quantity != 1 {
		t.Fatalf("items = %+v, want one item with quantity 1", items)
	}
	if items[0].ID != "li_1" {
		t.Errorf("line id = %q, want li_1", items[0].ID)
	}
}

func TestCalculateTotalsShape(t *testing.T) {
	t.Parallel()

	tax := &stubTax{enabled: true, rate: 0.10}
	engine := NewEngine(testCatalog(), nil, tax)

	session := &Session{
		LineItems: []LineItem{
			{Item: ItemDetail{Price: 1999}, Quantity: 2},
		},
		Fulfillment: &Fulfillment{
			Methods: []FulfillmentMethod{{
				Type:         MethodTypeShipping,
				Destinations: []Destination{{AddressCountry: "US"}},
				Groups: []FulfillmentGroup{{
					Options: []ShippingOption{{
						ID:     "flat",
						Totals: []Total{{Type: TotalTypeTotal, Amount: 500}},
					}},
					SelectedOptionID: "flat",
				}},
			}},
		},
	}

	totals := engine.CalculateTotals(context.Background(), session)

	wantOrder := []TotalType{TotalTypeSubtotal, TotalTypeShipping, TotalTypeTax, TotalTypeDiscount, TotalTypeTotal}
	if len(totals) != len(wantOrder) {
		t.Fatalf("got %d totals, want %d", len(totals), len(wantOrder))
	}
	for i, typ := range wantOrder {
		if totals[i].Type != typ {
			t.Errorf("totals[%d].Type = %q, want %q", i, totals[i].Type, typ)
		}
	}

	if got := AmountOf(totals, TotalTypeSubtotal); got != 3998 {
		t.Errorf("subtotal = %d, want 3998", got)
	}
	if got := AmountOf(totals, TotalTypeShipping); got != 500 {
		t.Errorf("shipping = %d, want 500", got)
	}
	// 10% of 39.98 rounds once, at conversion.
	if got := AmountOf(totals, TotalTypeTax); got != 400 {
		t.Errorf("tax = %d, want 400", got)
	}
	if got := AmountOf(totals, TotalTypeDiscount); got != 0 {
		t.Errorf("discount = %d, want 0", got)
	}
	if got := AmountOf(totals, TotalTypeTotal); got != 4898 {
		t.Errorf("total = %d, want 4898", got)
	}
}

func TestCalculateTotalsBaseAddressFallback(t *testing.T) {
	t.Parallel()

	tax := &stubTax{enabled: true, rate: 0.08}
	engine := NewEngine(testCatalog(), nil, tax,
		WithBaseAddress(Destination{AddressCountry: "DE"}))

	session := &Session{
		LineItems: []LineItem{{Item: ItemDetail{Price: 1000}, Quantity: 1}},
	}
	engine.CalculateTotals(context.Background(), session)

	if tax.gotDest.AddressCountry != "DE" {
		t.Errorf("tax destination = %q, want base address DE", tax.gotDest.AddressCountry)
	}
}

func TestDetermineStatus(t *testing.T) {
	t.Parallel()

	engine := NewEngine(testCatalog(), nil, nil)

	shippable := LineItem{Item: ItemDetail{Price: 100}, Quantity: 1, NeedsShipping: true}
	digital := LineItem{Item: ItemDetail{Price: 100}, Quantity: 1}

	withSelection := &Fulfillment{
		Methods: []FulfillmentMethod{{
			Type:         MethodTypeShipping,
			Destinations: []Destination{{AddressCountry: "US"}},
			Groups: []FulfillmentGroup{{
				Options:          []ShippingOption{{ID: "flat"}},
				SelectedOptionID: "flat",
			}},
		}},
	}
	withoutSelection := &Fulfillment{
		Methods: []FulfillmentMethod{{
			Type:         MethodTypeShipping,
			Destinations: []Destination{{AddressCountry: "US"}},
		}},
	}

	tests := []struct {
		name    string
		session *Session
		want    SessionStatus
	}{
		{"no items", &Session{}, SessionStatusIncomplete},
		{"digital only", &Session{LineItems: []LineItem{digital}}, SessionStatusReadyForComplete},
		{"shippable without destination", &Session{LineItems: []LineItem{shippable}}, SessionStatusIncomplete},
		{"shippable without selection", &Session{LineItems: []LineItem{shippable}, Fulfillment: withoutSelection}, SessionStatusIncomplete},
		{"shippable fully specified", &Session{LineItems: []LineItem{shippable}, Fulfillment: withSelection}, SessionStatusReadyForComplete},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := engine.DetermineStatus(tt.session); got != tt.want {
				t.Errorf("DetermineStatus() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestShippingOptions(t *testing.T) {
	t.Parallel()

	rater := &stubRater{rates: []Rate{{ID: "flat", Title: "Flat rate", Amount: 5.00}}}
	engine := NewEngine(testCatalog(), rater, nil)
	ctx := context.Background()
	items := []LineItem{{Item: ItemDetail{Price: 100}, Quantity: 1, NeedsShipping: true}}

	options, err := engine.ShippingOptions(ctx, Destination{AddressCountry: "US"}, items)
	if err != nil {
		t.Fatalf("ShippingOptions() error = %v", err)
	}
	if len(options) != 1 {
		t.Fatalf("got %d options, want 1", len(options))
	}
	if got := AmountOf(options[0].Totals, TotalTypeTotal); got != 500 {
		t.Errorf("option total = %d, want 500", got)
	}

	options, err = engine.ShippingOptions(ctx, Destination{}, items)
	if err != nil || len(options) != 0 {
		t.Errorf("empty destination: options = %v, err = %v, want empty, nil", options, err)
	}

	options, err = engine.ShippingOptions(ctx, Destination{AddressCountry: "US"}, nil)
	if err != nil || len(options) != 0 {
		t.Errorf("no items: options = %v, err = %v, want empty, nil", options, err)
	}
}

func TestShippingOptionsRaterError(t *testing.T) {
	t.Parallel()

	rater := &stubRater{err: errors.New("carrier down")}
	engine := NewEngine(testCatalog(), rater, nil)

	_, err := engine.ShippingOptions(context.Background(),
		Destination{AddressCountry: "US"},
		[]LineItem{{Item: ItemDetail{Price: 100}, Quantity: 1}})
	if err == nil {
		t.Fatal("ShippingOptions() error = nil, want wrapped rater error")
	}
}
