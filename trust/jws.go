package trust

import (
	"encoding/json"
	"strings"
)

// jwsHeader is the fixed protected header on every token the store issues.
type jwsHeader struct {
	Alg string `json:"alg"`
	Typ string `json:"typ"`
	Kid string `json:"kid"`
}

// CreateJWS builds a compact-serialized signed token over the payload:
// base64url(header).base64url(payload).base64url(signature), header always
// {alg: ES256, typ: JWT, kid}. Returns the empty string when no key is
// configured or the payload cannot be serialized.
func (k *KeyPair) CreateJWS(payload any) string {
	if k == nil || k.key == nil {
		return ""
	}

	headerJSON, err := json.Marshal(jwsHeader{Alg: "ES256", Typ: "JWT", Kid: k.keyID})
	if err != nil {
		return ""
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return ""
	}

	signingInput := Base64URLEncode(headerJSON) + "." + Base64URLEncode(payloadJSON)
	signature := k.Sign([]byte(signingInput))
	if signature == "" {
		return ""
	}

	return signingInput + "." + signature
}

// VerifyJWS checks a compact token against a PEM public key and returns the
// decoded payload. It returns nil unless the token has exactly three
// segments, the signature verifies, and the payload is a JSON object.
func VerifyJWS(token, publicPEM string) map[string]any {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil
	}

	signingInput := parts[0] + "." + parts[1]
	if !Verify([]byte(signingInput), parts[2], publicPEM) {
		return nil
	}

	payloadJSON, err := Base64URLDecode(parts[1])
	if err != nil {
		return nil
	}
	var payload map[string]any
	if err := json.Unmarshal(payloadJSON, &payload); err != nil {
		return nil
	}
	return payload
}
