package wrap

import (
	"crypto"
	"crypto/ecdh"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/box"
)

// DefaultMinRSABits is the smallest RSA modulus accepted by default.
const DefaultMinRSABits = 2048

// Wrapper encrypts a symmetric key so only the holder of the private key
// matching publicKey can recover it.
type Wrapper interface {
	Wrap(symKey []byte, publicKey string) (string, error)
}

// Cipher is the default Wrapper implementation. It is safe for concurrent use.
type Cipher struct {
	minRSABits int
	rand       io.Reader
}

// Option configures a Cipher.
type Option func(*Cipher)

// WithMinRSABits sets the minimum RSA modulus size. Values <= 0 are ignored.
func WithMinRSABits(bits int) Option {
	return func(c *Cipher) {
		if bits > 0 {
			c.minRSABits = bits
		}
	}
}

// WithRandom overrides the entropy source (tests only).
func WithRandom(r io.Reader) Option {
	return func(c *Cipher) {
		if r != nil {
			c.rand = r
		}
	}
}

// New constructs a Cipher.
func New(opts ...Option) *Cipher {
	c := &Cipher{
		minRSABits: DefaultMinRSABits,
		rand:       rand.Reader,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Wrap encrypts symKey under publicKey and returns the base64 ciphertext.
func (c *Cipher) Wrap(symKey []byte, publicKey string) (string, error) {
	if len(symKey) == 0 {
		return "", fmt.Errorf("%w: empty key", ErrEncrypt)
	}

	pub, err := ParsePublicKey(publicKey)
	if err != nil {
		return "", err
	}

	ct, err := c.seal(symKey, pub)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(ct), nil
}

func (c *Cipher) seal(msg []byte, pub crypto.PublicKey) ([]byte, error) {
	switch k := pub.(type) {
	case *rsa.PublicKey:
		if k.N.BitLen() < c.minRSABits {
			return nil, fmt.Errorf("%w: rsa %d bits, min %d", ErrWeakKey, k.N.BitLen(), c.minRSABits)
		}
		ct, err := rsa.EncryptOAEP(sha256.New(), c.rand, k, msg, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrEncrypt, err)
		}
		return ct, nil

	case *ecdh.PublicKey:
		if k.Curve() != ecdh.X25519() {
			return nil, fmt.Errorf("%w: ecdh curve", ErrUnsupportedKey)
		}
		ct, err := box.SealAnonymous(nil, msg, (*[32]byte)(k.Bytes()), c.rand)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrEncrypt, err)
		}
		return ct, nil

	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedKey, pub)
	}
}

var _ Wrapper = (*Cipher)(nil)
