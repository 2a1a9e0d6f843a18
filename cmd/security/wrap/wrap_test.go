package wrap

import (
	"bytes"
	"crypto/ecdh"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/go-jose/go-jose/v4"
	"golang.org/x/crypto/nacl/box"
)

var (
	rsaOnce sync.Once
	rsaKey  *rsa.PrivateKey
	rsaErr  error
)

func testRSAKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	rsaOnce.Do(func() {
		rsaKey, rsaErr = rsa.GenerateKey(rand.Reader, 2048)
	})
	if rsaErr != nil {
		t.Fatalf("rsa.GenerateKey: %v", rsaErr)
	}
	return rsaKey
}

func spkiPEM(t *testing.T, pub any) string {
	t.Helper()
	s, err := EncodePublicKeyPEM(pub)
	if err != nil {
		t.Fatalf("EncodePublicKeyPEM: %v", err)
	}
	return s
}

func symKey() []byte {
	return []byte("0123456789abcdef")
}

func TestWrapRSA_Encodings(t *testing.T) {
	t.Parallel()

	priv := testRSAKey(t)
	pemSPKI := spkiPEM(t, &priv.PublicKey)

	der, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		t.Fatalf("MarshalPKIXPublicKey: %v", err)
	}
	bare := base64.StdEncoding.EncodeToString(der)

	pkcs1 := string(pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PUBLIC KEY",
		Bytes: x509.MarshalPKCS1PublicKey(&priv.PublicKey),
	}))

	jwkJSON, err := jose.JSONWebKey{Key: &priv.PublicKey}.MarshalJSON()
	if err != nil {
		t.Fatalf("jwk marshal: %v", err)
	}

	// Browser clients often send the SPKI body as a single line between armor lines.
	oneLine := "-----BEGIN PUBLIC KEY-----\n" + bare + "\n-----END PUBLIC KEY-----"

	tests := []struct {
		name string
		key  string
	}{
		{name: "pem_spki", key: pemSPKI},
		{name: "pem_spki_one_line", key: oneLine},
		{name: "bare_base64_spki", key: bare},
		{name: "pem_pkcs1", key: pkcs1},
		{name: "jwk", key: string(jwkJSON)},
	}

	c := New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			wrapped, err := c.Wrap(symKey(), tt.key)
			if err != nil {
				t.Fatalf("Wrap err=%v", err)
			}
			got, err := UnwrapRSA(priv, wrapped)
			if err != nil {
				t.Fatalf("UnwrapRSA err=%v", err)
			}
			if !bytes.Equal(got, symKey()) {
				t.Fatalf("unwrapped=%x want=%x", got, symKey())
			}
		})
	}
}

func TestWrapRSA_IsRandomized(t *testing.T) {
	t.Parallel()

	priv := testRSAKey(t)
	pub := spkiPEM(t, &priv.PublicKey)

	c := New()
	a, err := c.Wrap(symKey(), pub)
	if err != nil {
		t.Fatalf("Wrap: %v", err)
	}
	b, err := c.Wrap(symKey(), pub)
	if err != nil {
		t.Fatalf("Wrap: %v", err)
	}
	if a == b {
		t.Fatalf("expected distinct ciphertexts for repeated wraps")
	}
}

func TestWrapX25519_RoundTrip(t *testing.T) {
	t.Parallel()

	pub, priv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("box.GenerateKey: %v", err)
	}
	ek, err := ecdh.X25519().NewPublicKey(pub[:])
	if err != nil {
		t.Fatalf("NewPublicKey: %v", err)
	}

	wrapped, err := New().Wrap(symKey(), spkiPEM(t, ek))
	if err != nil {
		t.Fatalf("Wrap err=%v", err)
	}
	got, err := UnwrapX25519(pub, priv, wrapped)
	if err != nil {
		t.Fatalf("UnwrapX25519 err=%v", err)
	}
	if !bytes.Equal(got, symKey()) {
		t.Fatalf("unwrapped=%x want=%x", got, symKey())
	}
}

func TestWrap_Rejects(t *testing.T) {
	t.Parallel()

	weak, err := rsa.GenerateKey(rand.Reader, 1024)
	if err != nil {
		t.Fatalf("rsa.GenerateKey: %v", err)
	}
	p256, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("P256 GenerateKey: %v", err)
	}
	priv := testRSAKey(t)
	privJWK, err := jose.JSONWebKey{Key: priv}.MarshalJSON()
	if err != nil {
		t.Fatalf("jwk marshal: %v", err)
	}

	tests := []struct {
		name string
		key  string
		want error
	}{
		{name: "empty", key: "   ", want: ErrMalformedKey},
		{name: "garbage", key: "not a key!!", want: ErrMalformedKey},
		{name: "bad_der", key: base64.StdEncoding.EncodeToString([]byte("nope")), want: ErrMalformedKey},
		{name: "bad_jwk", key: `{"kty":`, want: ErrMalformedKey},
		{name: "private_jwk", key: string(privJWK), want: ErrMalformedKey},
		{name: "weak_rsa", key: spkiPEM(t, &weak.PublicKey), want: ErrWeakKey},
		{name: "p256", key: spkiPEM(t, p256.PublicKey()), want: ErrUnsupportedKey},
		{name: "cert_block", key: "-----BEGIN CERTIFICATE-----\nAAAA\n-----END CERTIFICATE-----\n", want: ErrUnsupportedKey},
	}

	c := New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := c.Wrap(symKey(), tt.key)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err=%v want=%v", err, tt.want)
			}
		})
	}
}

func TestWrap_MinRSABitsOption(t *testing.T) {
	t.Parallel()

	weak, err := rsa.GenerateKey(rand.Reader, 1024)
	if err != nil {
		t.Fatalf("rsa.GenerateKey: %v", err)
	}

	c := New(WithMinRSABits(1024))
	wrapped, err := c.Wrap(symKey(), spkiPEM(t, &weak.PublicKey))
	if err != nil {
		t.Fatalf("Wrap err=%v", err)
	}
	if _, err := UnwrapRSA(weak, wrapped); err != nil {
		t.Fatalf("UnwrapRSA err=%v", err)
	}
}

func TestWrap_EmptySymKey(t *testing.T) {
	t.Parallel()

	priv := testRSAKey(t)
	_, err := New().Wrap(nil, spkiPEM(t, &priv.PublicKey))
	if !errors.Is(err, ErrEncrypt) {
		t.Fatalf("err=%v want=%v", err, ErrEncrypt)
	}
}

func TestUnwrap_BadInput(t *testing.T) {
	t.Parallel()

	priv := testRSAKey(t)
	if _, err := UnwrapRSA(priv, "%%%"); !errors.Is(err, ErrDecrypt) {
		t.Fatalf("bad base64 err=%v", err)
	}
	if _, err := UnwrapRSA(priv, base64.StdEncoding.EncodeToString([]byte(strings.Repeat("x", 256)))); !errors.Is(err, ErrDecrypt) {
		t.Fatalf("bad ciphertext err=%v", err)
	}

	pub, sk, err := box.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("box.GenerateKey: %v", err)
	}
	if _, err := UnwrapX25519(pub, sk, base64.StdEncoding.EncodeToString([]byte("short"))); !errors.Is(err, ErrDecrypt) {
		t.Fatalf("bad sealed box err=%v", err)
	}
}
