// Package generator derives a key-bound watermark bit sequence from an
// image and an RSA private key, per spec.md §4.3: sign SHA-256(image bytes)
// with PKCS#1 v1.5, expand the signature to bits, map 0->-1, 1->+1.
package generator

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"fmt"

	"github.com/deepshield/imagewatermark/internal/imageio"
	"github.com/deepshield/imagewatermark/internal/keys"
	"github.com/deepshield/imagewatermark/internal/wmerrors"
)

// sign hashes the image's deterministic byte serialization and signs it
// with the RSA private key using PKCS#1 v1.5 padding over SHA-256.
func sign(image *imageio.Image, privDER []byte) (signature []byte, digest [32]byte, err error) {
	priv, err := keys.ParsePrivate(privDER)
	if err != nil {
		return nil, digest, fmt.Errorf("generator: %w: %v", wmerrors.ErrInvalidKey, err)
	}

	digest = sha256.Sum256(imageio.SerializeRowMajor(image))
	signature, err = rsa.SignPKCS1v15(rand.Reader, priv, crypto.SHA256, digest[:])
	if err != nil {
		return nil, digest, fmt.Errorf("generator: sign: %w", err)
	}
	return signature, digest, nil
}

// Generate derives the length-L watermark bit sequence w in {+1, -1}^L.
// Fails with ErrInvalidKey if privDER cannot be parsed, ErrWatermarkTooLong
// if length exceeds the available signature bits.
func Generate(image *imageio.Image, privDER []byte, length int) ([]int, error) {
	signature, _, err := sign(image, privDER)
	if err != nil {
		return nil, err
	}

	available := len(signature) * 8
	if length > available {
		return nil, fmt.Errorf("generator: %w: requested %d bits, signature has %d", wmerrors.ErrWatermarkTooLong, length, available)
	}
	if length <= 0 {
		return nil, fmt.Errorf("generator: %w: length must be positive, got %d", wmerrors.ErrInvalidInput, length)
	}

	w := make([]int, length)
	for i := 0; i < length; i++ {
		byteIdx := i / 8
		bitIdx := 7 - (i % 8)
		bit := (signature[byteIdx] >> uint(bitIdx)) & 1
		if bit == 1 {
			w[i] = 1
		} else {
			w[i] = -1
		}
	}
	return w, nil
}

// VerifySignature recomputes the image's SHA-256 digest and checks the
// PKCS#1 v1.5 signature produced by privDER against pubDER. This is the
// attacker-grade test: only an identity holding the private key could have
// produced bits that verify against the matching public key.
func VerifySignature(image *imageio.Image, privDER, pubDER []byte) (bool, error) {
	signature, digest, err := sign(image, privDER)
	if err != nil {
		return false, err
	}

	pub, err := keys.ParsePublic(pubDER)
	if err != nil {
		return false, fmt.Errorf("generator: %w: %v", wmerrors.ErrInvalidKey, err)
	}

	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], signature); err != nil {
		return false, nil
	}
	return true, nil
}
