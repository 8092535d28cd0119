package ucp

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/johnquery/ucp/trust"
)

type config struct {
	protocol Config
	signer   *trust.KeyPair
	profiles *trust.ProfileFetcher
	log      *zap.Logger
	clock    func() time.Time

	baseURL  string
	currency string
	links    []Link
	handlers []PaymentHandler

	registry   *WebhookRegistry
	events     OrderEvents
	middleware []Middleware
}

// Middleware wraps route handlers in registration order.
type Middleware func(http.HandlerFunc) http.HandlerFunc

func applyMiddleware(h http.HandlerFunc, middleware ...Middleware) http.HandlerFunc {
	for _, m := range middleware {
		h = m(h)
	}
	return h
}

// Option customizes the handler behavior.
type Option func(*config)

// WithConfig installs the protocol configuration. Values are normalized the
// same way LoadConfig normalizes them.
func WithConfig(cfg Config) Option {
	cfg.normalize()
	return func(c *config) {
		c.protocol = cfg
	}
}

// WithSigner sets the store's signing key pair, used to notarize webhook
// payloads and issue JWS tokens.
func WithSigner(signer *trust.KeyPair) Option {
	return func(c *config) {
		c.signer = signer
	}
}

// WithProfileFetcher enables agent signature verification against fetched
// discovery profiles.
func WithProfileFetcher(fetcher *trust.ProfileFetcher) Option {
	return func(c *config) {
		c.profiles = fetcher
	}
}

// WithLogger installs the structured logger. Defaults to a no-op logger.
func WithLogger(log *zap.Logger) Option {
	return func(c *config) {
		c.log = log
	}
}

// WithBaseURL sets the externally visible base URL used for Location
// headers and continuation URLs.
func WithBaseURL(baseURL string) Option {
	return func(c *config) {
		c.baseURL = baseURL
	}
}

// WithCurrency sets the store currency applied to sessions that do not
// request one. Defaults to USD.
func WithCurrency(currency string) Option {
	return func(c *config) {
		c.currency = currency
	}
}

// WithLinks sets the policy links embedded in every session response.
func WithLinks(links []Link) Option {
	return func(c *config) {
		c.links = links
	}
}

// WithPaymentHandlers replaces the payment handler catalog advertised to
// agents.
func WithPaymentHandlers(handlers []PaymentHandler) Option {
	return func(c *config) {
		c.handlers = handlers
	}
}

// WithWebhookRegistry shares a registry between the handler and an
// externally constructed dispatcher.
func WithWebhookRegistry(registry *WebhookRegistry) Option {
	return func(c *config) {
		c.registry = registry
	}
}

// WithOrderEvents replaces the order event sink. Defaults to a webhook
// dispatcher over the handler's registry.
func WithOrderEvents(events OrderEvents) Option {
	return func(c *config) {
		c.events = events
	}
}

// WithMiddleware appends custom middleware in the order provided.
func WithMiddleware(mw ...Middleware) Option {
	return func(c *config) {
		for _, m := range mw {
			if m == nil {
				continue
			}
			c.middleware = append(c.middleware, m)
		}
	}
}

// withClock provides deterministic time in tests.
func withClock(fn func() time.Time) Option {
	return func(c *config) {
		c.clock = fn
	}
}
