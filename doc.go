// Package ucp implements the merchant side of the Universal Commerce
// Protocol (UCP): the checkout-session surface that lets autonomous buying
// agents negotiate and complete a purchase against a merchant catalog.
//
// # Checkout sessions
//
// Use [NewHandler] with a [SessionStore], an [Engine], and an [OrderService]
// to expose the UCP checkout-session contract over `net/http`. The handler
// applies the protocol permission gate (enabled check, agent whitelist,
// request signatures) before any session mutation, and drives the session
// state machine: incomplete, ready_for_complete, processing, complete, with
// side branches for escalation, cancellation, and expiry.
//
// # Trust
//
// The trust subpackage carries the cryptographic identity of the store: an
// ES256 (EC P-256) signing key pair, JWS construction and verification,
// JWK/PEM conversion, and cached retrieval of agent discovery profiles.
// Inbound request signatures are verified against the first signing key
// published in the agent's discovery profile; outbound webhook payloads are
// notarized with the store's own key.
//
// # Webhooks
//
// Platforms register delivery endpoints with event patterns (`*`, `order.*`,
// or exact event names). Order lifecycle transitions fan out to every
// matching registration as signed, best-effort HTTP posts that never block
// or fail the transition that raised them.
package ucp
