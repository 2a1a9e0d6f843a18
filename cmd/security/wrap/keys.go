package wrap

import (
	"crypto"
	"crypto/ecdh"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"strings"

	"github.com/go-jose/go-jose/v4"
)

// ParsePublicKey decodes an encoded public key into an RSA or X25519 key.
// The input is untrusted client material.
func ParsePublicKey(encoded string) (crypto.PublicKey, error) {
	s := strings.TrimSpace(encoded)
	if s == "" {
		return nil, fmt.Errorf("%w: empty", ErrMalformedKey)
	}

	if strings.HasPrefix(s, "{") {
		return parseJWK([]byte(s))
	}

	if block, _ := pem.Decode([]byte(s)); block != nil {
		switch block.Type {
		case "PUBLIC KEY":
			return parseSPKI(block.Bytes)
		case "RSA PUBLIC KEY":
			k, err := x509.ParsePKCS1PublicKey(block.Bytes)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrMalformedKey, err)
			}
			return k, nil
		default:
			return nil, fmt.Errorf("%w: pem block %q", ErrUnsupportedKey, block.Type)
		}
	}

	der, err := decodeArmoredBase64(s)
	if err != nil {
		return nil, err
	}
	return parseSPKI(der)
}

// EncodePublicKeyPEM encodes pub as a PEM "PUBLIC KEY" block (SPKI).
func EncodePublicKeyPEM(pub crypto.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("marshal public key: %w", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})), nil
}

func parseSPKI(der []byte) (crypto.PublicKey, error) {
	pub, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedKey, err)
	}
	return checkKeyType(pub)
}

func parseJWK(b []byte) (crypto.PublicKey, error) {
	var jwk jose.JSONWebKey
	if err := jwk.UnmarshalJSON(b); err != nil {
		return nil, fmt.Errorf("%w: jwk: %v", ErrMalformedKey, err)
	}
	if !jwk.IsPublic() {
		return nil, fmt.Errorf("%w: jwk carries private material", ErrMalformedKey)
	}
	return checkKeyType(jwk.Key)
}

func checkKeyType(pub any) (crypto.PublicKey, error) {
	switch k := pub.(type) {
	case *rsa.PublicKey:
		return k, nil
	case *ecdh.PublicKey:
		if k.Curve() != ecdh.X25519() {
			return nil, fmt.Errorf("%w: ecdh curve", ErrUnsupportedKey)
		}
		return k, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedKey, pub)
	}
}

// decodeArmoredBase64 strips "-----BEGIN/END ...-----" lines and whitespace,
// then decodes the remaining base64 body.
func decodeArmoredBase64(s string) ([]byte, error) {
	var b strings.Builder
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "-----") {
			continue
		}
		b.WriteString(line)
	}
	body := strings.Join(strings.Fields(b.String()), "")
	if body == "" {
		return nil, fmt.Errorf("%w: empty body", ErrMalformedKey)
	}

	if der, err := base64.StdEncoding.DecodeString(body); err == nil {
		return der, nil
	}
	der, err := base64.RawStdEncoding.DecodeString(body)
	if err != nil {
		return nil, fmt.Errorf("%w: base64: %v", ErrMalformedKey, err)
	}
	return der, nil
}
