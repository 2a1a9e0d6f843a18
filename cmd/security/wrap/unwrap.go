package wrap

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/nacl/box"
)

// UnwrapRSA recovers a key wrapped by Cipher under priv's public key.
func UnwrapRSA(priv *rsa.PrivateKey, wrapped string) ([]byte, error) {
	ct, err := base64.StdEncoding.DecodeString(wrapped)
	if err != nil {
		return nil, fmt.Errorf("%w: base64: %v", ErrDecrypt, err)
	}
	pt, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, priv, ct, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	return pt, nil
}

// UnwrapX25519 recovers a key sealed by Cipher under pub.
func UnwrapX25519(pub, priv *[32]byte, wrapped string) ([]byte, error) {
	ct, err := base64.StdEncoding.DecodeString(wrapped)
	if err != nil {
		return nil, fmt.Errorf("%w: base64: %v", ErrDecrypt, err)
	}
	pt, ok := box.OpenAnonymous(nil, ct, pub, priv)
	if !ok {
		return nil, ErrDecrypt
	}
	return pt, nil
}
