// Package keys generates RSA key pairs for the watermark generator and
// position generator, DER-encoded for interoperability (spec.md §6).
package keys

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"fmt"
)

// DefaultBits is the recommended RSA key size (spec.md §3 data model).
const DefaultBits = 2048

// Generate creates a new RSA key pair and returns both halves DER-encoded:
// the private key as PKCS#1, the public key as PKIX.
func Generate(bits int) (privDER, pubDER []byte, err error) {
	if bits <= 0 {
		bits = DefaultBits
	}
	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, nil, fmt.Errorf("keys: generate: %w", err)
	}

	privDER = x509.MarshalPKCS1PrivateKey(key)
	pubDER, err = x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return nil, nil, fmt.Errorf("keys: marshal public key: %w", err)
	}
	return privDER, pubDER, nil
}

// ParsePrivate parses a DER-encoded RSA private key (PKCS#1).
func ParsePrivate(der []byte) (*rsa.PrivateKey, error) {
	key, err := x509.ParsePKCS1PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("keys: invalid private key: %w", err)
	}
	return key, nil
}

// ParsePublic parses a DER-encoded RSA public key (PKIX).
func ParsePublic(der []byte) (*rsa.PublicKey, error) {
	pub, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("keys: invalid public key: %w", err)
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("keys: public key is not RSA")
	}
	return rsaPub, nil
}
