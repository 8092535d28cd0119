package trust

import (
	"bytes"
	"testing"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	t.Parallel()

	kp, err := Generate("key_1")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	data := []byte(`{"amount":1999}`)
	signature := kp.Sign(data)
	if signature == "" {
		t.Fatal("Sign() returned empty signature")
	}

	publicPEM, err := kp.PublicPEM()
	if err != nil {
		t.Fatalf("PublicPEM() error = %v", err)
	}

	if !Verify(data, signature, publicPEM) {
		t.Error("Verify() = false for a signature from the same key")
	}
	if Verify([]byte(`{"amount":2000}`), signature, publicPEM) {
		t.Error("Verify() = true for tampered data")
	}
}

func TestVerifyRejectsUnrelatedKey(t *testing.T) {
	t.Parallel()

	signer, err := Generate("signer")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	other, err := Generate("other")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	data := []byte("payload")
	signature := signer.Sign(data)

	otherPEM, err := other.PublicPEM()
	if err != nil {
		t.Fatalf("PublicPEM() error = %v", err)
	}
	if Verify(data, signature, otherPEM) {
		t.Error("Verify() = true against an unrelated public key")
	}
}

func TestVerifyFailsClosedOnGarbage(t *testing.T) {
	t.Parallel()

	kp, err := Generate("key_1")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	publicPEM, err := kp.PublicPEM()
	if err != nil {
		t.Fatalf("PublicPEM() error = %v", err)
	}

	if Verify([]byte("data"), "%%not-base64url%%", publicPEM) {
		t.Error("Verify() = true for malformed signature encoding")
	}
	if Verify([]byte("data"), kp.Sign([]byte("data")), "not a pem block") {
		t.Error("Verify() = true for malformed public key")
	}
}

func TestNilKeyPairFailsClosed(t *testing.T) {
	t.Parallel()

	var kp *KeyPair
	if got := kp.Sign([]byte("data")); got != "" {
		t.Errorf("nil KeyPair Sign() = %q, want empty", got)
	}
	if got := kp.KeyID(); got != "" {
		t.Errorf("nil KeyPair KeyID() = %q, want empty", got)
	}
	if got := kp.CreateJWS(map[string]string{"a": "b"}); got != "" {
		t.Errorf("nil KeyPair CreateJWS() = %q, want empty", got)
	}
}

func TestLoadRoundTrip(t *testing.T) {
	t.Parallel()

	kp, err := Generate("persisted")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	privatePEM, err := kp.PrivatePEM()
	if err != nil {
		t.Fatalf("PrivatePEM() error = %v", err)
	}

	restored, err := Load([]byte(privatePEM), "persisted")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	data := []byte("signed before restart")
	signature := kp.Sign(data)
	publicPEM, err := restored.PublicPEM()
	if err != nil {
		t.Fatalf("PublicPEM() error = %v", err)
	}
	if !Verify(data, signature, publicPEM) {
		t.Error("restored key does not verify signatures from the original")
	}
}

func TestLoadRejectsGarbage(t *testing.T) {
	t.Parallel()

	if _, err := Load([]byte("not a key"), "bad"); err == nil {
		t.Error("Load() accepted a non-PEM input")
	}
}

func TestBase64URLDecodeAcceptsBothPaddings(t *testing.T) {
	t.Parallel()

	raw := []byte{0xfb, 0xef}
	unpadded := Base64URLEncode(raw)

	got, err := Base64URLDecode(unpadded)
	if err != nil {
		t.Fatalf("Base64URLDecode(unpadded) error = %v", err)
	}
	if !bytes.Equal(got, raw) {
		t.Errorf("Base64URLDecode(unpadded) = %v, want %v", got, raw)
	}

	got, err = Base64URLDecode(unpadded + "=")
	if err != nil {
		t.Fatalf("Base64URLDecode(padded) error = %v", err)
	}
	if !bytes.Equal(got, raw) {
		t.Errorf("Base64URLDecode(padded) = %v, want %v", got, raw)
	}
}
