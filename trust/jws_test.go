package trust

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestCreateJWSShape(t *testing.T) {
	t.Parallel()

	kp, err := Generate("kid_42")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	token := kp.CreateJWS(map[string]any{"session_id": "chk_1"})
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		t.Fatalf("CreateJWS() produced %d segments, want 3", len(parts))
	}

	headerJSON, err := Base64URLDecode(parts[0])
	if err != nil {
		t.Fatalf("decode header: %v", err)
	}
	var header map[string]string
	if err := json.Unmarshal(headerJSON, &header); err != nil {
		t.Fatalf("unmarshal header: %v", err)
	}
	if header["alg"] != "ES256" {
		t.Errorf("header alg = %q, want ES256", header["alg"])
	}
	if header["typ"] != "JWT" {
		t.Errorf("header typ = %q, want JWT", header["typ"])
	}
	if header["kid"] != "kid_42" {
		t.Errorf("header kid = %q, want kid_42", header["kid"])
	}
}

func TestVerifyJWSRoundTrip(t *testing.T) {
	t.Parallel()

	kp, err := Generate("kid_1")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	publicPEM, err := kp.PublicPEM()
	if err != nil {
		t.Fatalf("PublicPEM() error = %v", err)
	}

	token := kp.CreateJWS(map[string]any{"order_id": "ord_7", "total": 3998})

	payload := VerifyJWS(token, publicPEM)
	if payload == nil {
		t.Fatal("VerifyJWS() = nil for a valid token")
	}
	if payload["order_id"] != "ord_7" {
		t.Errorf("payload order_id = %v, want ord_7", payload["order_id"])
	}
	if payload["total"] != float64(3998) {
		t.Errorf("payload total = %v, want 3998", payload["total"])
	}
}

func TestVerifyJWSRejections(t *testing.T) {
	t.Parallel()

	kp, err := Generate("kid_1")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	other, err := Generate("kid_2")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	publicPEM, err := kp.PublicPEM()
	if err != nil {
		t.Fatalf("PublicPEM() error = %v", err)
	}
	otherPEM, err := other.PublicPEM()
	if err != nil {
		t.Fatalf("PublicPEM() error = %v", err)
	}

	token := kp.CreateJWS(map[string]any{"k": "v"})
	parts := strings.Split(token, ".")

	tests := []struct {
		name  string
		token string
		pem   string
	}{
		{"wrong key", token, otherPEM},
		{"two segments", parts[0] + "." + parts[1], publicPEM},
		{"four segments", token + ".extra", publicPEM},
		{"tampered payload", parts[0] + "." + Base64URLEncode([]byte(`{"k":"x"}`)) + "." + parts[2], publicPEM},
		{"empty token", "", publicPEM},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := VerifyJWS(tt.token, tt.pem); got != nil {
				t.Errorf("VerifyJWS() = %v, want nil", got)
			}
		})
	}
}

func TestVerifyJWSNonObjectPayload(t *testing.T) {
	t.Parallel()

	kp, err := Generate("kid_1")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	publicPEM, err := kp.PublicPEM()
	if err != nil {
		t.Fatalf("PublicPEM() error = %v", err)
	}

	// Sign a token whose payload is a JSON array rather than an object.
	headerJSON, _ := json.Marshal(jwsHeader{Alg: "ES256", Typ: "JWT", Kid: "kid_1"})
	signingInput := Base64URLEncode(headerJSON) + "." + Base64URLEncode([]byte(`[1,2,3]`))
	token := signingInput + "." + kp.Sign([]byte(signingInput))

	if got := VerifyJWS(token, publicPEM); got != nil {
		t.Errorf("VerifyJWS() = %v for array payload, want nil", got)
	}
}
