package wrap

import "errors"

// Public, stable errors for callers.
var (
	ErrMalformedKey   = errors.New("malformed public key")
	ErrUnsupportedKey = errors.New("unsupported public key type")
	ErrWeakKey        = errors.New("public key too weak")
	ErrEncrypt        = errors.New("wrap encryption failed")
	ErrDecrypt        = errors.New("unwrap failed")
)
