package ucp

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	canonicaljson "github.com/gibson042/canonicaljson-go"
	"github.com/oapi-codegen/runtime"
	"go.uber.org/zap"

	"github.com/johnquery/ucp/trust"
)

// Webhook event vocabulary the dispatcher emits.
const (
	EventOrderConfirmed     = "order.confirmed"
	EventOrderOnHold        = "order.on_hold"
	EventOrderDelivered     = "order.delivered"
	EventOrderCancelled     = "order.cancelled"
	EventOrderRefunded      = "order.refunded"
	EventOrderFailed        = "order.failed"
	EventOrderShipped       = "order.shipped"
	EventOrderStatusChanged = "order.status_changed"
)

const webhookTimeout = 30 * time.Second

// eventForStatus maps the order collaborator's status vocabulary onto the
// protocol's event names.
func eventForStatus(status OrderStatus) string {
	switch status {
	case OrderStatusProcessing:
		return EventOrderConfirmed
	case OrderStatusOnHold:
		return EventOrderOnHold
	case OrderStatusCompleted:
		return EventOrderDelivered
	case OrderStatusCancelled:
		return EventOrderCancelled
	case OrderStatusRefunded:
		return EventOrderRefunded
	case OrderStatusFailed:
		return EventOrderFailed
	default:
		return EventOrderStatusChanged
	}
}

// matchesEvent evaluates the closed pattern grammar: `*` matches everything,
// `order.*` matches every order event, anything else matches exactly.
func matchesEvent(pattern, event string) bool {
	switch pattern {
	case "*":
		return true
	case "order.*":
		return strings.HasPrefix(event, "order.")
	default:
		return pattern == event
	}
}

// WebhookRegistration is one platform subscription to order events.
type WebhookRegistration struct {
	SubscriberID  string    `json:"subscriber_id"`
	URL           string    `json:"url"`
	EventPatterns []string  `json:"event_patterns"`
	RegisteredAt  time.Time `json:"registered_at"`
}

// SubscriberID derives the process-wide registration key from a platform's
// profile URL. Registrations without a profile share the default key.
func SubscriberID(profileURL string) string {
	if profileURL == "" {
		return "default"
	}
	sum := sha256.Sum256([]byte(profileURL))
	return hex.EncodeToString(sum[:16])
}

// WebhookRegistry holds registrations keyed by subscriber. Re-registering a
// subscriber replaces its previous endpoint.
type WebhookRegistry struct {
	mu   sync.RWMutex
	subs map[string]WebhookRegistration
}

// NewWebhookRegistry builds an empty registry.
func NewWebhookRegistry() *WebhookRegistry {
	return &WebhookRegistry{subs: make(map[string]WebhookRegistration)}
}

// Register stores or replaces a subscription.
func (r *WebhookRegistry) Register(reg WebhookRegistration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs[reg.SubscriberID] = reg
}

// All returns a snapshot of the current registrations.
func (r *WebhookRegistry) All() []WebhookRegistration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]WebhookRegistration, 0, len(r.subs))
	for _, reg := range r.subs {
		out = append(out, reg)
	}
	return out
}

// WebhookDispatcher fans order lifecycle events out to registered
// subscribers as signed, best-effort HTTP posts. Deliveries never retry and
// never propagate failure into the transition that raised them.
type WebhookDispatcher struct {
	registry *WebhookRegistry
	signer   *trust.KeyPair
	client   *http.Client
	log      *zap.Logger
	debug    bool
	clock    func() time.Time

	wg sync.WaitGroup
}

// NewWebhookDispatcher builds a dispatcher over the registry. A nil signer
// sends unsigned payloads with an empty X-UCP-Signature header.
func NewWebhookDispatcher(registry *WebhookRegistry, signer *trust.KeyPair, log *zap.Logger, debug bool) *WebhookDispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &WebhookDispatcher{
		registry: registry,
		signer:   signer,
		client:   &http.Client{Timeout: webhookTimeout},
		log:      log,
		debug:    debug,
		clock:    time.Now,
	}
}

// StatusChanged implements [OrderEvents] for order status transitions.
func (d *WebhookDispatcher) StatusChanged(ctx context.Context, order *Order, from, to OrderStatus) {
	if order == nil || order.SessionID == "" {
		return
	}
	d.dispatch(eventForStatus(to), order, nil)
}

// Refunded implements [OrderEvents] for refund adjustments.
func (d *WebhookDispatcher) Refunded(ctx context.Context, order *Order, refund Refund) {
	if order == nil || order.SessionID == "" {
		return
	}
	d.dispatch(EventOrderRefunded, order, map[string]any{
		"refund": refund,
	})
}

// TrackingAdded implements [OrderEvents] for shipment tracking updates.
func (d *WebhookDispatcher) TrackingAdded(ctx context.Context, order *Order, trackingNumber, trackingURL string) {
	if order == nil || order.SessionID == "" {
		return
	}
	d.dispatch(EventOrderShipped, order, map[string]any{
		"tracking": map[string]string{
			"tracking_number": trackingNumber,
			"tracking_url":    trackingURL,
		},
	})
}

// Wait blocks until every in-flight delivery finishes. Used by tests and at
// shutdown.
func (d *WebhookDispatcher) Wait() {
	d.wg.Wait()
}

func (d *WebhookDispatcher) dispatch(event string, order *Order, extra map[string]any) {
	body, err := d.buildPayload(event, order, extra)
	if err != nil {
		d.log.Warn("webhook payload build failed", zap.String("event", event), zap.Error(err))
		return
	}

	signature := d.signer.Sign(body)

	for _, reg := range d.registry.All() {
		matched := false
		for _, pattern := range reg.EventPatterns {
			if matchesEvent(pattern, event) {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}

		d.wg.Add(1)
		go func(reg WebhookRegistration) {
			defer d.wg.Done()
			d.deliver(reg, event, signature, body)
		}(reg)
	}
}

// buildPayload assembles {event, occurred_at, order, ...extra} and
// serializes it canonically, so intermediaries that re-encode JSON cannot
// break the signature.
func (d *WebhookDispatcher) buildPayload(event string, order *Order, extra map[string]any) ([]byte, error) {
	base, err := json.Marshal(map[string]any{
		"event":       event,
		"occurred_at": d.clock().UTC().Format(time.RFC3339),
		"order":       orderSnapshot(order),
	})
	if err != nil {
		return nil, err
	}

	if len(extra) > 0 {
		patch, err := json.Marshal(extra)
		if err != nil {
			return nil, err
		}
		base, err = runtime.JSONMerge(base, patch)
		if err != nil {
			return nil, err
		}
	}

	var payload any
	if err := json.Unmarshal(base, &payload); err != nil {
		return nil, err
	}
	return canonicaljson.Marshal(payload)
}

func (d *WebhookDispatcher) deliver(reg WebhookRegistration, event, signature string, body []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), webhookTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reg.URL, bytes.NewReader(body))
	if err != nil {
		if d.debug {
			d.log.Warn("webhook request build failed", zap.String("url", reg.URL), zap.Error(err))
		}
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-UCP-Event", event)
	req.Header.Set("X-UCP-Signature", signature)
	req.Header.Set("X-UCP-Key-ID", d.signer.KeyID())

	resp, err := d.client.Do(req)
	if err != nil {
		if d.debug {
			d.log.Warn("webhook delivery failed", zap.String("url", reg.URL), zap.Error(err))
		}
		return
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= http.StatusBadRequest && d.debug {
		d.log.Warn("webhook endpoint rejected delivery",
			zap.String("url", reg.URL),
			zap.Int("status", resp.StatusCode))
	}
}
