// Package wrap encrypts per-pair session keys under a peer's public key.
//
// It is the relay's only cryptographic operation. The relay never holds private
// keys; the Unwrap helpers exist for clients, tests and smoke tooling.
//
// Supported public-key encodings:
// - PEM "PUBLIC KEY" (SPKI) and PEM "RSA PUBLIC KEY" (PKCS#1)
// - base64 SPKI with or without PEM armor lines (what browser clients often send)
// - JWK JSON objects
//
// Schemes:
// - RSA: RSA-OAEP with SHA-256, matching WebCrypto's RSA-OAEP/SHA-256
// - X25519: anonymous NaCl sealed box
//
// Wrapped output is standard padded base64.
package wrap
