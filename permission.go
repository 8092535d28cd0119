package ucp

import (
	"net/http"
	"strings"

	"github.com/johnquery/ucp/trust"
)

// permissionMiddleware gates every protocol operation, in order: protocol
// enabled (503), agent whitelist (403), request signature (401). All checks
// run before any session mutation.
func (h *Handler) permissionMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !h.cfg.protocol.Enabled {
			writeJSONError(w, NewProtocolDisabledError("UCP is currently disabled"))
			return
		}

		agent := strings.TrimSpace(r.Header.Get("UCP-Agent"))
		if h.cfg.protocol.WhitelistEnabled && !isWhitelisted(agent, h.cfg.protocol.WhitelistPatterns) {
			writeJSONError(w, NewAuthError(AgentNotWhitelisted, "Agent is not authorized"))
			return
		}

		if h.cfg.protocol.RequireSignature && !h.validateAgentSignature(r) {
			writeJSONError(w, NewAuthError(InvalidSignature, "Request signature is invalid or missing"))
			return
		}

		next(w, r)
	}
}

// validateAgentSignature verifies the Request-Signature header against the
// first signing key published in the agent's discovery profile. Every
// missing piece fails closed.
func (h *Handler) validateAgentSignature(r *http.Request) bool {
	signature := strings.TrimSpace(r.Header.Get("Request-Signature"))
	if signature == "" {
		return false
	}

	profileURL := agentProfileURL(r.Header.Get("UCP-Agent"))
	if profileURL == "" {
		return false
	}

	if h.cfg.profiles == nil {
		return false
	}
	profile := h.cfg.profiles.Fetch(r.Context(), profileURL)
	if profile == nil || len(profile.SigningKeys) == 0 {
		return false
	}

	publicPEM, err := trust.JWKToPEM(profile.SigningKeys[0])
	if err != nil {
		return false
	}

	body, err := readAndBufferBody(r)
	if err != nil {
		return false
	}
	return trust.Verify(body, signature, publicPEM)
}
