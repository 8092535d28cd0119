// Command ucpd runs a standalone UCP checkout endpoint backed by SQLite and
// a static demo catalog. It is the reference wiring of the ucp package; real
// stores swap the catalog, rater, and order service for their own.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/johnquery/ucp"
	"github.com/johnquery/ucp/sqlitestore"
	"github.com/johnquery/ucp/trust"
)

func main() {
	_ = godotenv.Load()

	cfg, err := ucp.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "ucpd:", err)
		os.Exit(1)
	}

	log, err := buildLogger(cfg.Debug)
	if err != nil {
		fmt.Fprintln(os.Stderr, "ucpd:", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("ucpd exited", zap.Error(err))
	}
}

func buildLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run(cfg ucp.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	signer, err := loadSigner()
	if err != nil {
		return fmt.Errorf("load signing key: %w", err)
	}
	log.Info("signing key ready", zap.String("key_id", signer.KeyID()))

	store, cleanup, err := openStore(cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	baseURL := envOr("UCP_BASE_URL", "http://localhost:8475/ucp/v1")
	catalog := newDemoCatalog()
	engine := ucp.NewEngine(catalog, catalog, catalog,
		ucp.WithBaseAddress(ucp.Destination{
			AddressLocality: "San Francisco",
			AddressRegion:   "CA",
			PostalCode:      "94103",
			AddressCountry:  "US",
		}),
	)

	handler := ucp.NewHandler(store, engine, newDemoOrderService(catalog),
		ucp.WithConfig(cfg),
		ucp.WithSigner(signer),
		ucp.WithProfileFetcher(trust.NewProfileFetcher()),
		ucp.WithLogger(log),
		ucp.WithBaseURL(baseURL),
		ucp.WithCurrency(envOr("UCP_CURRENCY", "USD")),
		ucp.WithLinks([]ucp.Link{
			{Rel: "terms_of_use", Href: baseURL + "/terms"},
			{Rel: "privacy_policy", Href: baseURL + "/privacy"},
		}),
	)

	ucp.StartJanitor(ctx, store, 5*time.Minute, log)

	mux := http.NewServeMux()
	mux.Handle("/ucp/v1/", http.StripPrefix("/ucp/v1", handler))

	srv := &http.Server{
		Addr:              envOr("UCP_LISTEN_ADDR", ":8475"),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
	}
	return nil
}

func loadSigner() (*trust.KeyPair, error) {
	keyID := envOr("UCP_KEY_ID", "ucpd-"+time.Now().UTC().Format("2006-01"))
	if path := os.Getenv("UCP_SIGNING_KEY_FILE"); path != "" {
		pemBytes, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return trust.Load(pemBytes, keyID)
	}
	return trust.Generate(keyID)
}

func openStore(cfg ucp.Config, log *zap.Logger) (ucp.SessionStore, func(), error) {
	path := os.Getenv("UCP_SQLITE_PATH")
	if path == "" {
		log.Info("no UCP_SQLITE_PATH set, using in-memory session store")
		return ucp.NewMemoryStore(cfg.Consistency), func() {}, nil
	}
	store, err := sqlitestore.Open(path, cfg.Consistency)
	if err != nil {
		return nil, nil, fmt.Errorf("open session store: %w", err)
	}
	log.Info("sqlite session store ready", zap.String("path", path))
	return store, func() { _ = store.Close() }, nil
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

// demoCatalog serves a fixed product list and flat-rate shipping. It stands
// in for the commerce platform's catalog, rater, and tax service.
type demoCatalog struct {
	products map[string]ucp.Product
}

func newDemoCatalog() *demoCatalog {
	return &demoCatalog{
		products: map[string]ucp.Product{
			"sku-tee": {
				ID:            "sku-tee",
				Title:         "Logo T-Shirt",
				Price:         19.99,
				SKU:           "TEE-001",
				InStock:       true,
				NeedsShipping: true,
			},
			"sku-mug": {
				ID:            "sku-mug",
				Title:         "Ceramic Mug",
				Price:         12.50,
				SKU:           "MUG-001",
				InStock:       true,
				ManagesStock:  true,
				StockQuantity: 8,
				NeedsShipping: true,
			},
			"sku-ebook": {
				ID:      "sku-ebook",
				Title:   "Field Guide (PDF)",
				Price:   9.00,
				SKU:     "BOOK-001",
				InStock: true,
			},
		},
	}
}

func (c *demoCatalog) ResolveProduct(_ context.Context, ref string) (*ucp.Product, error) {
	for _, p := range c.products {
		if p.ID == ref || p.SKU == ref {
			return &p, nil
		}
	}
	return nil, ucp.ErrProductNotFound
}

func (c *demoCatalog) RateDestination(_ context.Context, _ ucp.Destination, items []ucp.LineItem) ([]ucp.Rate, error) {
	needsShipping := false
	for _, item := range items {
		if item.NeedsShipping {
			needsShipping = true
			break
		}
	}
	if !needsShipping {
		return nil, nil
	}
	return []ucp.Rate{
		{ID: "flat_rate", Title: "Flat rate", Amount: 5.00},
		{ID: "express", Title: "Express", Amount: 14.00},
	}, nil
}

func (c *demoCatalog) TaxEnabled() bool { return true }

func (c *demoCatalog) ComputeTax(_ context.Context, subtotal float64, _ ucp.Destination) (float64, error) {
	return subtotal * 0.085, nil
}

// demoOrderService records orders in memory.
type demoOrderService struct {
	mu      sync.Mutex
	catalog *demoCatalog
	orders  map[string]*ucp.Order
	seq     int
}

func newDemoOrderService(catalog *demoCatalog) *demoOrderService {
	return &demoOrderService{
		catalog: catalog,
		orders:  make(map[string]*ucp.Order),
	}
}

func (s *demoOrderService) CreateOrder(_ context.Context, session *ucp.Session, _ ucp.PaymentData) (*ucp.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	now := time.Now().UTC()
	order := &ucp.Order{
		ID:        uuid.NewString(),
		SessionID: session.ID,
		Number:    fmt.Sprintf("%04d", s.seq),
		Status:    ucp.OrderStatusPending,
		LineItems: session.LineItems,
		Totals:    session.Totals,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if session.Fulfillment != nil {
		order.ShippingAddress = session.Fulfillment.ShippingDestination()
	}
	s.orders[order.ID] = order
	return order, nil
}

func (s *demoOrderService) MarkPaid(_ context.Context, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[orderID]
	if !ok {
		return ucp.ErrOrderNotFound
	}
	order.Status = ucp.OrderStatusProcessing
	order.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *demoOrderService) GetOrder(_ context.Context, orderID string) (*ucp.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[orderID]
	if !ok {
		return nil, ucp.ErrOrderNotFound
	}
	cp := *order
	return &cp, nil
}
