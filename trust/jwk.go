package trust

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"math/big"
)

// JWK is the public-key description agents publish in their discovery
// profiles, restricted to EC P-256 signing keys.
type JWK struct {
	Kid string `json:"kid,omitempty"`
	Kty string `json:"kty"`
	Crv string `json:"crv"`
	X   string `json:"x"`
	Y   string `json:"y"`
	Use string `json:"use,omitempty"`
	Alg string `json:"alg,omitempty"`
}

// JWKToPEM converts an EC P-256 JWK into a SubjectPublicKeyInfo PEM. Any
// other key type or curve is rejected.
func JWKToPEM(jwk JWK) (string, error) {
	if jwk.Kty != "EC" || jwk.Crv != "P-256" {
		return "", fmt.Errorf("unsupported key type %s/%s, want EC/P-256", jwk.Kty, jwk.Crv)
	}

	x, err := Base64URLDecode(jwk.X)
	if err != nil {
		return "", fmt.Errorf("decode x coordinate: %w", err)
	}
	y, err := Base64URLDecode(jwk.Y)
	if err != nil {
		return "", fmt.Errorf("decode y coordinate: %w", err)
	}

	key := &ecdsa.PublicKey{
		Curve: elliptic.P256(),
		X:     new(big.Int).SetBytes(x),
		Y:     new(big.Int).SetBytes(y),
	}
	if !key.Curve.IsOnCurve(key.X, key.Y) {
		return "", fmt.Errorf("point is not on P-256")
	}

	der, err := x509.MarshalPKIXPublicKey(key)
	if err != nil {
		return "", fmt.Errorf("marshal public key: %w", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})), nil
}

// PublicJWK exposes the store's active public key in JWK form, for
// publication in its own discovery document.
func (k *KeyPair) PublicJWK() *JWK {
	if k == nil || k.key == nil {
		return nil
	}
	x := make([]byte, 32)
	y := make([]byte, 32)
	k.key.PublicKey.X.FillBytes(x)
	k.key.PublicKey.Y.FillBytes(y)
	return &JWK{
		Kid: k.keyID,
		Kty: "EC",
		Crv: "P-256",
		X:   Base64URLEncode(x),
		Y:   Base64URLEncode(y),
		Use: "sig",
		Alg: "ES256",
	}
}
