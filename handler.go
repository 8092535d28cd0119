package ucp

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// Handler wires the UCP checkout-session routes to a session store, the
// checkout engine, and the order collaborator, under the protocol
// permission gate.
type Handler struct {
	store    SessionStore
	engine   *Engine
	orders   OrderService
	mux      *http.ServeMux
	cfg      config
	validate *validator.Validate
}

// NewHandler builds a Handler backed by net/http's ServeMux.
func NewHandler(store SessionStore, engine *Engine, orders OrderService, opts ...Option) *Handler {
	cfg := config{
		protocol: DefaultConfig(),
		clock:    time.Now,
		currency: "USD",
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}
	if cfg.log == nil {
		cfg.log = zap.NewNop()
	}
	if cfg.registry == nil {
		cfg.registry = NewWebhookRegistry()
	}
	if cfg.events == nil {
		cfg.events = NewWebhookDispatcher(cfg.registry, cfg.signer, cfg.log, cfg.protocol.Debug)
	}
	if cfg.handlers == nil {
		cfg.handlers = []PaymentHandler{
			{
				ID:          "embedded",
				Name:        "com.johnquery.embedded_checkout",
				Version:     ProtocolVersion,
				Kind:        HandlerEmbedded,
				Title:       "Hosted checkout",
				CheckoutURL: cfg.baseURL + "/checkout",
			},
		}
	}
	if cfg.protocol.RequireSignature && cfg.profiles == nil {
		panic("ucp: profile fetcher required when request signatures are enforced")
	}

	h := &Handler{
		store:    store,
		engine:   engine,
		orders:   orders,
		mux:      http.NewServeMux(),
		cfg:      cfg,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
	middleware := append([]Middleware{h.permissionMiddleware}, cfg.middleware...)
	h.registerRoutes(middleware...)
	return h
}

// ServeHTTP satisfies http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestCtx := requestContextFromRequest(r)
	ctx := contextWithRequestContext(r.Context(), requestCtx)
	h.mux.ServeHTTP(w, r.WithContext(ctx))
}

// Registry exposes the webhook registry, for wiring external dispatchers.
func (h *Handler) Registry() *WebhookRegistry {
	return h.cfg.registry
}

func (h *Handler) registerRoutes(middleware ...Middleware) {
	h.mux.HandleFunc("POST /checkout-sessions", applyMiddleware(h.handleCreate, middleware...))
	h.mux.HandleFunc("GET /checkout-sessions/{id}", applyMiddleware(h.handleGet, middleware...))
	h.mux.HandleFunc("PUT /checkout-sessions/{id}", applyMiddleware(h.handleUpdate, middleware...))
	h.mux.HandleFunc("POST /checkout-sessions/{id}/complete", applyMiddleware(h.handleComplete, middleware...))
	h.mux.HandleFunc("POST /checkout-sessions/{id}/cancel", applyMiddleware(h.handleCancel, middleware...))
	h.mux.HandleFunc("GET /orders/{id}", applyMiddleware(h.handleGetOrder, middleware...))
	h.mux.HandleFunc("POST /webhooks/register", applyMiddleware(h.handleRegisterWebhook, middleware...))
}

func (h *Handler) timeout() time.Duration {
	return h.cfg.protocol.SessionTimeout()
}

// escalationResponse is the reduced body returned when every line item was
// rejected during processing.
type escalationResponse struct {
	Status   SessionStatus `json:"status"`
	Messages []Message     `json:"messages"`
}

func hasErrors(messages []Message) bool {
	for _, m := range messages {
		if m.Type == MessageTypeError {
			return true
		}
	}
	return false
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req CheckoutSessionCreateRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeJSONError(w, NewValidationError(InvalidRequestBody, err.Error()))
		return
	}
	if len(req.LineItems) == 0 {
		writeJSONError(w, NewValidationError(MissingLineItems, "line_items is required"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeJSONError(w, NewValidationError(InvalidRequestBody, err.Error()))
		return
	}

	ctx := r.Context()
	now := h.cfg.clock()

	currency := h.cfg.currency
	if req.Currency != "" {
		currency = strings.ToUpper(req.Currency)
	}
	session := NewSession(currency, now, h.timeout())
	session.PlatformProfile = RequestContextFromContext(ctx).ProfileURL()

	items, messages := h.engine.ProcessLineItems(ctx, req.LineItems)
	if len(items) == 0 && hasErrors(messages) {
		writeJSON(w, http.StatusBadRequest, escalationResponse{
			Status:   SessionStatusRequiresEscalation,
			Messages: messages,
		})
		return
	}
	session.LineItems = items
	session.Buyer = req.Buyer
	session.Fulfillment = req.Fulfillment

	session.Totals = h.engine.CalculateTotals(ctx, session)
	session.Status = h.engine.DetermineStatus(session)

	if err := h.store.Create(ctx, session); err != nil {
		writeJSONError(w, NewPersistenceError("Failed to create checkout session"))
		return
	}

	w.Header().Set("Location", h.cfg.baseURL+"/checkout-sessions/"+session.ID)
	writeJSON(w, http.StatusCreated, h.sessionResponse(ctx, session, messages))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	session, err := h.store.Get(ctx, r.PathValue("id"))
	if err != nil {
		writeSessionLoadError(w, err)
		return
	}

	if session.Expired(h.cfg.clock()) && !session.Status.Terminal() {
		// Lazy expiry: persist the transition before reporting it.
		session.Status = SessionStatusExpired
		session.UpdatedAt = h.cfg.clock()
		if err := h.store.Save(ctx, session); err != nil {
			h.cfg.log.Warn("failed to persist session expiry", zap.String("session_id", session.ID), zap.Error(err))
		}
		writeJSONError(w, NewGoneError("Checkout session has expired"))
		return
	}

	writeJSON(w, http.StatusOK, h.sessionResponse(ctx, session, nil))
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	session, err := h.store.Get(ctx, r.PathValue("id"))
	if err != nil {
		writeSessionLoadError(w, err)
		return
	}
	if session.Expired(h.cfg.clock()) {
		writeJSONError(w, NewGoneError("Checkout session has expired"))
		return
	}
	if session.Status.Terminal() {
		writeJSONError(w, NewConflictError(SessionNotModifiable, "Checkout session cannot be modified"))
		return
	}

	var req CheckoutSessionUpdateRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeJSONError(w, NewValidationError(InvalidRequestBody, err.Error()))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeJSONError(w, NewValidationError(InvalidRequestBody, err.Error()))
		return
	}

	var messages []Message
	if req.LineItems != nil {
		items, itemMessages := h.engine.ProcessLineItems(ctx, *req.LineItems)
		session.LineItems = items
		messages = append(messages, itemMessages...)
	}
	if req.Buyer != nil {
		session.Buyer = req.Buyer
	}
	if req.Fulfillment != nil {
		messages = append(messages, h.applyFulfillment(r, session, req.Fulfillment)...)
	}

	session.Totals = h.engine.CalculateTotals(ctx, session)
	session.Status = h.engine.DetermineStatus(session)
	session.Touch(h.cfg.clock(), h.timeout())

	if err := h.store.Save(ctx, session); err != nil {
		writeJSONError(w, NewPersistenceError("Failed to update checkout session"))
		return
	}

	writeJSON(w, http.StatusOK, h.sessionResponse(ctx, session, messages))
}

// applyFulfillment installs the requested fulfillment and re-rates shipping
// options for every shipping method that carries a destination. A
// previously selected option id survives the re-rate.
func (h *Handler) applyFulfillment(r *http.Request, session *Session, fulfillment *Fulfillment) []Message {
	var messages []Message
	for i := range fulfillment.Methods {
		method := &fulfillment.Methods[i]
		if method.Type != MethodTypeShipping || len(method.Destinations) == 0 {
			continue
		}

		options, err := h.engine.ShippingOptions(r.Context(), method.Destinations[0], session.LineItems)
		if err != nil {
			h.cfg.log.Warn("shipping rate lookup failed", zap.String("session_id", session.ID), zap.Error(err))
			messages = append(messages, Message{
				Type: MessageTypeWarning,
				Code: "shipping_rates_unavailable",
				Text: "Shipping rates could not be calculated for the destination",
			})
			continue
		}
		if len(options) == 0 {
			continue
		}

		selected := ""
		if len(method.Groups) > 0 {
			selected = method.Groups[0].SelectedOptionID
		}
		lineItemIDs := make([]string, 0, len(session.LineItems))
		for _, item := range session.LineItems {
			lineItemIDs = append(lineItemIDs, item.ID)
		}
		method.Groups = []FulfillmentGroup{
			{
				ID:               "shipping_group_1",
				LineItemIDs:      lineItemIDs,
				Options:          options,
				SelectedOptionID: selected,
			},
		}
	}
	session.Fulfillment = fulfillment
	return messages
}

func (h *Handler) handleComplete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	session, err := h.store.Get(ctx, r.PathValue("id"))
	if err != nil {
		writeSessionLoadError(w, err)
		return
	}
	if session.Expired(h.cfg.clock()) {
		writeJSONError(w, NewGoneError("Checkout session has expired"))
		return
	}
	if session.Status == SessionStatusComplete {
		writeJSONError(w, NewConflictError(SessionComplete, "Checkout session is already complete"))
		return
	}
	if session.Status.Terminal() {
		writeJSONError(w, NewConflictError(SessionNotModifiable, "Checkout session cannot be completed"))
		return
	}

	var req CheckoutSessionCompleteRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeJSONError(w, NewValidationError(InvalidRequestBody, err.Error()))
		return
	}
	if req.PaymentData == nil {
		writeJSONError(w, NewValidationError(MissingPaymentData, "payment_data is required"))
		return
	}
	if req.Buyer != nil {
		session.Buyer = req.Buyer
	}

	handler := h.resolvePaymentHandler(req.PaymentData.HandlerID)
	switch handler.Kind {
	case HandlerEmbedded:
		h.completeEmbedded(w, r, session, handler)
	case HandlerDirect:
		h.completeDirect(w, r, session, *req.PaymentData)
	default:
		writeJSONError(w, NewValidationError(InvalidRequestBody, "unknown payment handler kind"))
	}
}

// resolvePaymentHandler looks the handler up in the advertised catalog;
// unknown ids fall back to a direct handler so gateway-specific ids keep
// working.
func (h *Handler) resolvePaymentHandler(handlerID string) PaymentHandler {
	for _, handler := range h.cfg.handlers {
		if handler.ID == handlerID {
			return handler
		}
	}
	return PaymentHandler{ID: handlerID, Kind: HandlerDirect, GatewayID: handlerID}
}

// completeEmbedded escalates the session to the store's hosted checkout
// instead of creating an order.
func (h *Handler) completeEmbedded(w http.ResponseWriter, r *http.Request, session *Session, handler PaymentHandler) {
	ctx := r.Context()

	session.Status = SessionStatusRequiresEscalation
	session.Touch(h.cfg.clock(), h.timeout())
	if err := h.store.Save(ctx, session); err != nil {
		writeJSONError(w, NewPersistenceError("Failed to update checkout session"))
		return
	}

	continueURL := handler.CheckoutURL
	if u, err := url.Parse(continueURL); err == nil {
		q := u.Query()
		q.Set("ucp_session", session.ID)
		u.RawQuery = q.Encode()
		continueURL = u.String()
	}

	resp := h.sessionResponse(ctx, session, []Message{
		{
			Type:     MessageTypeInfo,
			Code:     "embedded_checkout_required",
			Text:     "Please complete checkout using the embedded checkout flow",
			Severity: SeverityRequiresBuyerInput,
		},
	})
	resp.ContinueURL = continueURL
	writeJSON(w, http.StatusOK, resp)
}

// completeDirect materializes the order through the order collaborator. A
// collaborator failure folds into requires_escalation with diagnostic
// messages; the session stays valid for a retry or a human handoff.
func (h *Handler) completeDirect(w http.ResponseWriter, r *http.Request, session *Session, payment PaymentData) {
	ctx := r.Context()

	session.Status = SessionStatusProcessing
	session.Touch(h.cfg.clock(), h.timeout())
	if err := h.store.Save(ctx, session); err != nil {
		writeJSONError(w, NewPersistenceError("Failed to update checkout session"))
		return
	}

	order, err := h.orders.CreateOrder(ctx, session, payment)
	if err != nil {
		session.Status = SessionStatusRequiresEscalation
		if saveErr := h.store.Save(ctx, session); saveErr != nil {
			h.cfg.log.Warn("failed to persist escalation", zap.String("session_id", session.ID), zap.Error(saveErr))
		}

		messages := []Message{{
			Type: MessageTypeError,
			Code: "order_creation_failed",
			Text: "Order could not be created",
		}}
		var orderErr *OrderError
		if errors.As(err, &orderErr) && len(orderErr.Messages) > 0 {
			messages = orderErr.Messages
		}
		writeJSON(w, http.StatusOK, h.sessionResponse(ctx, session, messages))
		return
	}

	// Settlement is out of scope; MarkPaid is the collaborator's no-op
	// acknowledgement that payment concluded.
	if err := h.orders.MarkPaid(ctx, order.ID); err != nil {
		h.cfg.log.Warn("mark paid failed", zap.String("order_id", order.ID), zap.Error(err))
	}
	order.Status = OrderStatusProcessing

	session.OrderID = order.ID
	session.Status = SessionStatusComplete
	if err := h.store.Save(ctx, session); err != nil {
		writeJSONError(w, NewPersistenceError("Failed to update checkout session"))
		return
	}

	h.cfg.events.StatusChanged(ctx, order, OrderStatusPending, OrderStatusProcessing)

	resp := h.sessionResponse(ctx, session, nil)
	resp.Order = orderSummary(order)
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	session, err := h.store.Get(ctx, r.PathValue("id"))
	if err != nil {
		writeSessionLoadError(w, err)
		return
	}
	if session.Status == SessionStatusComplete {
		writeJSONError(w, NewConflictError(SessionNotCancelable, "Completed sessions cannot be cancelled"))
		return
	}

	session.Status = SessionStatusCancelled
	session.UpdatedAt = h.cfg.clock()
	if err := h.store.Save(ctx, session); err != nil {
		writeJSONError(w, NewPersistenceError("Failed to cancel checkout session"))
		return
	}

	writeJSON(w, http.StatusOK, h.sessionResponse(ctx, session, nil))
}

func (h *Handler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	order, err := h.orders.GetOrder(ctx, r.PathValue("id"))
	if err != nil || order == nil {
		writeJSONError(w, NewNotFoundError(OrderNotFound, "Order not found"))
		return
	}
	if order.SessionID == "" {
		writeJSONError(w, NewAuthError(NotUCPOrder, "This order was not created via UCP"))
		return
	}
	writeJSON(w, http.StatusOK, orderSnapshot(order))
}

func (h *Handler) handleRegisterWebhook(w http.ResponseWriter, r *http.Request) {
	var req WebhookRegisterRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeJSONError(w, NewValidationError(InvalidRequestBody, err.Error()))
		return
	}
	if req.WebhookURL == "" {
		writeJSONError(w, NewValidationError(MissingWebhookURL, "webhook_url is required"))
		return
	}
	parsed, err := url.Parse(req.WebhookURL)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		writeJSONError(w, NewValidationError(InvalidWebhookURL, "Invalid webhook URL"))
		return
	}

	events := req.Events
	if len(events) == 0 {
		events = []string{"order.*"}
	}

	subscriberID := SubscriberID(RequestContextFromContext(r.Context()).ProfileURL())
	h.cfg.registry.Register(WebhookRegistration{
		SubscriberID:  subscriberID,
		URL:           req.WebhookURL,
		EventPatterns: events,
		RegisteredAt:  h.cfg.clock(),
	})

	writeJSON(w, http.StatusCreated, WebhookRegisterResponse{
		Success:   true,
		WebhookID: subscriberID,
		Events:    events,
	})
}

func writeSessionLoadError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrSessionNotFound) {
		writeJSONError(w, NewNotFoundError(SessionNotFound, "Checkout session not found"))
		return
	}
	writeServiceError(w, err)
}

// sessionResponse builds the uniform checkout-session JSON shape. An order
// summary is attached when the session already references one.
func (h *Handler) sessionResponse(ctx context.Context, session *Session, messages []Message) SessionResponse {
	resp := SessionResponse{
		UCP:         protocolInfo(),
		ID:          session.ID,
		Status:      session.Status,
		Currency:    session.Currency,
		LineItems:   session.LineItems,
		Totals:      session.Totals,
		Links:       h.cfg.links,
		Buyer:       session.Buyer,
		Fulfillment: session.Fulfillment,
		Payment:     &PaymentOptions{Handlers: h.cfg.handlers},
		Messages:    messages,
	}
	if resp.LineItems == nil {
		resp.LineItems = []LineItem{}
	}
	if resp.Totals == nil {
		resp.Totals = []Total{}
	}
	if resp.Links == nil {
		resp.Links = []Link{}
	}
	if session.OrderID != "" && h.orders != nil {
		if order, err := h.orders.GetOrder(ctx, session.OrderID); err == nil {
			resp.Order = orderSummary(order)
		}
	}
	return resp
}
