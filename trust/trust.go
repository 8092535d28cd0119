// Package trust carries the cryptographic identity of a UCP store: an ES256
// (ECDSA P-256 + SHA-256) signing key pair, JWS construction and
// verification, JWK/PEM conversion, and cached retrieval of agent discovery
// profiles.
//
// Every operation fails closed: malformed input yields an empty string,
// false, or nil, never a panic. Absence of a valid signature is a normal
// outcome the permission layer interprets.
package trust

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// KeyPair is the store's active EC P-256 signing identity. It is generated
// once at install time; regenerating it invalidates every previously issued
// signature.
type KeyPair struct {
	key   *ecdsa.PrivateKey
	keyID string
}

// Generate creates a fresh P-256 key pair under the given key id.
func Generate(keyID string) (*KeyPair, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return &KeyPair{key: key, keyID: keyID}, nil
}

// Load restores a key pair from a PEM-encoded EC private key.
func Load(privatePEM []byte, keyID string) (*KeyPair, error) {
	key, err := jwt.ParseECPrivateKeyFromPEM(privatePEM)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	if key.Curve != elliptic.P256() {
		return nil, fmt.Errorf("unsupported curve %s, want P-256", key.Curve.Params().Name)
	}
	return &KeyPair{key: key, keyID: keyID}, nil
}

// KeyID returns the identifier published alongside signatures.
func (k *KeyPair) KeyID() string {
	if k == nil {
		return ""
	}
	return k.keyID
}

// Sign produces a base64url ES256 signature over data, or the empty string
// when no key is configured.
func (k *KeyPair) Sign(data []byte) string {
	if k == nil || k.key == nil {
		return ""
	}
	sig, err := jwt.SigningMethodES256.Sign(string(data), k.key)
	if err != nil {
		return ""
	}
	return Base64URLEncode(sig)
}

// Verify checks a base64url ES256 signature over data against a PEM public
// key. Any malformed input verifies false.
func Verify(data []byte, signature, publicPEM string) bool {
	key, err := jwt.ParseECPublicKeyFromPEM([]byte(publicPEM))
	if err != nil {
		return false
	}
	sig, err := Base64URLDecode(signature)
	if err != nil {
		return false
	}
	return jwt.SigningMethodES256.Verify(string(data), sig, key) == nil
}

// PrivatePEM exports the private key for persistence across restarts.
func (k *KeyPair) PrivatePEM() (string, error) {
	if k == nil || k.key == nil {
		return "", fmt.Errorf("no key configured")
	}
	der, err := x509.MarshalECPrivateKey(k.key)
	if err != nil {
		return "", fmt.Errorf("marshal private key: %w", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der})), nil
}

// PublicPEM exports the public half as a SubjectPublicKeyInfo PEM.
func (k *KeyPair) PublicPEM() (string, error) {
	if k == nil || k.key == nil {
		return "", fmt.Errorf("no key configured")
	}
	der, err := x509.MarshalPKIXPublicKey(&k.key.PublicKey)
	if err != nil {
		return "", fmt.Errorf("marshal public key: %w", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})), nil
}

// Base64URLEncode encodes data as unpadded base64url.
func Base64URLEncode(data []byte) string {
	return base64.RawURLEncoding.EncodeToString(data)
}

// Base64URLDecode decodes unpadded or padded base64url input.
func Base64URLDecode(value string) ([]byte, error) {
	if n := len(value) % 4; n != 0 {
		return base64.RawURLEncoding.DecodeString(value)
	}
	return base64.URLEncoding.DecodeString(value)
}
