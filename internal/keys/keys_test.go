package keys_test

import (
	"testing"

	"github.com/deepshield/imagewatermark/internal/keys"
)

func TestGenerateRoundTripsThroughDER(t *testing.T) {
	privDER, pubDER, err := keys.Generate(2048)
	if err != nil {
		t.Fatal(err)
	}
	priv, err := keys.ParsePrivate(privDER)
	if err != nil {
		t.Fatal(err)
	}
	pub, err := keys.ParsePublic(pubDER)
	if err != nil {
		t.Fatal(err)
	}
	if priv.PublicKey.N.Cmp(pub.N) != 0 {
		t.Fatal("parsed public key does not match private key's public half")
	}
}

func TestGenerateDefaultsBits(t *testing.T) {
	privDER, _, err := keys.Generate(0)
	if err != nil {
		t.Fatal(err)
	}
	priv, err := keys.ParsePrivate(privDER)
	if err != nil {
		t.Fatal(err)
	}
	if priv.N.BitLen() < keys.DefaultBits-1 {
		t.Fatalf("expected ~%d bit key, got %d", keys.DefaultBits, priv.N.BitLen())
	}
}

func TestParseInvalidKey(t *testing.T) {
	if _, err := keys.ParsePrivate([]byte("garbage")); err == nil {
		t.Fatal("expected error parsing garbage private key")
	}
	if _, err := keys.ParsePublic([]byte("garbage")); err == nil {
		t.Fatal("expected error parsing garbage public key")
	}
}
