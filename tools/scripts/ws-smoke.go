// Package main provides a CI-friendly WebSocket smoke test for the sigrelay signaling server.
//
// It validates:
//   - handshake + subprotocol selection
//   - join + presence fanout
//   - key exchange: both peers unwrap the same session key
//   - private message relay (AES-GCM under the session key)
//   - user_left on disconnect
package main

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"sigrelay/cmd/security/wrap"
	v1 "sigrelay/shared/contracts/signal/v1"

	"github.com/coder/websocket"
)

const maxReadBytes = 1 << 20 // 1MiB

type smokeClient struct {
	name string
	conn *websocket.Conn
	priv *rsa.PrivateKey

	inbox chan v1.Envelope
	errCh chan error
}

var presenceTypes = map[string]struct{}{v1.TypeUsers: {}, v1.TypeUserJoined: {}}

func main() {
	var (
		wsURL   = flag.String("url", "ws://127.0.0.1:5000/ws", "WebSocket URL")
		origin  = flag.String("origin", "http://localhost", "Origin header to send (browser-like WS handshake)")
		text    = flag.String("text", "hello over sigrelay", "Plaintext to encrypt and relay")
		timeout = flag.Duration("timeout", 7*time.Second, "Per-step timeout")
		verbose = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	if err := validateWSURL(*wsURL); err != nil {
		fatalf("invalid -url: %v", err)
	}
	if err := validateOrigin(*origin); err != nil {
		fatalf("invalid -origin: %v", err)
	}

	root := context.Background()
	suffix := fmt.Sprintf("%06d", time.Now().UnixNano()%1_000_000)

	a := mustConnect(root, "smokeA"+suffix, *wsURL, *origin, *timeout)
	defer closeWS(a.conn)

	b := mustConnect(root, "smokeB"+suffix, *wsURL, *origin, *timeout)
	defer closeWS(b.conn)

	mustJoin(root, a, *timeout)
	mustJoin(root, b, *timeout)
	if *verbose {
		fmt.Printf("joined: A=%s B=%s origin=%q\n", a.name, b.name, *origin)
	}

	mustWrite(root, a.conn, envelope(v1.TypeKeyExchange, v1.KeyExchangeRequestPayload{To: b.name}), *timeout)

	keyB := b.mustSessionKey(root, a.name, *timeout)
	keyA := a.mustSessionKey(root, b.name, *timeout)
	if !bytes.Equal(keyA, keyB) {
		fatalf("session keys differ: A=%x B=%x", keyA, keyB)
	}
	if *verbose {
		fmt.Printf("session key agreed (%d bytes)\n", len(keyA))
	}

	ct := mustSeal(keyA, []byte(*text))
	mustWrite(root, a.conn, envelope(v1.TypePrivateMessage, v1.PrivateMessageSendPayload{To: b.name, Content: ct}), *timeout)

	msg := b.mustReadUntilType(root, v1.TypePrivateMessage, *timeout, presenceTypes)
	var pm v1.PrivateMessagePayload
	if err := json.Unmarshal(msg.Payload, &pm); err != nil {
		fatalf("unmarshal private_message (%s): %v", b.name, err)
	}
	if pm.From != a.name {
		fatalf("private_message from mismatch: got=%q want=%q", pm.From, a.name)
	}
	if pm.Content != ct {
		fatalf("private_message content altered in transit")
	}
	if got := mustOpen(keyB, pm.Content); got != *text {
		fatalf("decrypted text mismatch: got=%q want=%q", got, *text)
	}

	closeWS(b.conn)
	left := a.mustReadUntilType(root, v1.TypeUserLeft, *timeout, presenceTypes)
	var lp v1.UserLeftPayload
	if err := json.Unmarshal(left.Payload, &lp); err != nil {
		fatalf("unmarshal user_left: %v", err)
	}
	if lp.Username != b.name {
		fatalf("user_left mismatch: got=%q want=%q", lp.Username, b.name)
	}

	fmt.Printf("OK: A=%s B=%s session_key_bytes=%d\n", a.name, b.name, len(keyA))
}

func validateWSURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("missing host")
	}
	if strings.TrimSpace(u.Path) == "" {
		return errors.New("missing path")
	}
	return nil
}

func validateOrigin(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("origin must be http/https, got: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("origin missing host")
	}
	return nil
}

func mustConnect(parent context.Context, name, wsURL, origin string, stepTimeout time.Duration) *smokeClient {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	h := http.Header{}
	if strings.TrimSpace(origin) != "" {
		h.Set("Origin", origin)
	}

	conn, resp, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		Subprotocols: []string{v1.Subprotocol},
		HTTPHeader:   h,
	})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		fatalf("connect %s: %v", name, err)
	}
	if got := conn.Subprotocol(); got != v1.Subprotocol {
		fatalf("subprotocol mismatch: got=%q want=%q", got, v1.Subprotocol)
	}

	conn.SetReadLimit(maxReadBytes)

	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		fatalf("generate key (%s): %v", name, err)
	}

	c := &smokeClient{
		name:  name,
		conn:  conn,
		priv:  priv,
		inbox: make(chan v1.Envelope, 512),
		errCh: make(chan error, 1),
	}
	c.startReadLoop()
	return c
}

func (c *smokeClient) startReadLoop() {
	go func() {
		defer close(c.inbox)

		for {
			mt, data, err := c.conn.Read(context.Background())
			if err != nil {
				select {
				case c.errCh <- err:
				default:
				}
				return
			}
			if mt != websocket.MessageText {
				select {
				case c.errCh <- fmt.Errorf("unsupported message type: %v", mt):
				default:
				}
				return
			}

			var env v1.Envelope
			if err := json.Unmarshal(data, &env); err != nil {
				select {
				case c.errCh <- fmt.Errorf("bad json: %w", err):
				default:
				}
				return
			}
			if env.V != v1.Version {
				select {
				case c.errCh <- fmt.Errorf("bad envelope version: %q", env.V):
				default:
				}
				return
			}

			select {
			case c.inbox <- env:
			default:
				select {
				case c.errCh <- errors.New("inbox overflow: consumer too slow"):
				default:
				}
				return
			}
		}
	}()
}

func mustJoin(parent context.Context, c *smokeClient, stepTimeout time.Duration) {
	pub, err := wrap.EncodePublicKeyPEM(&c.priv.PublicKey)
	if err != nil {
		fatalf("encode public key (%s): %v", c.name, err)
	}
	mustWrite(parent, c.conn, envelope(v1.TypeJoin, v1.JoinPayload{Username: c.name, PublicKey: pub}), stepTimeout)

	env := c.mustReadUntilType(parent, v1.TypeUsers, stepTimeout, presenceTypes)

	var users v1.UsersPayload
	if err := json.Unmarshal(env.Payload, &users); err != nil {
		fatalf("unmarshal users (%s): %v", c.name, err)
	}
	for _, u := range users {
		if u.Username == c.name {
			return
		}
	}
	fatalf("users snapshot missing self (%s)", c.name)
}

func (c *smokeClient) mustSessionKey(parent context.Context, peer string, stepTimeout time.Duration) []byte {
	env := c.mustReadUntilType(parent, v1.TypeKeyExchange, stepTimeout, presenceTypes)

	var p v1.KeyExchangePayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		fatalf("unmarshal key_exchange (%s): %v", c.name, err)
	}
	if p.From != peer {
		fatalf("key_exchange from mismatch (%s): got=%q want=%q", c.name, p.From, peer)
	}

	key, err := wrap.UnwrapRSA(c.priv, p.SessionKey)
	if err != nil {
		fatalf("unwrap session key (%s): %v", c.name, err)
	}
	return key
}

func mustSeal(key, plaintext []byte) string {
	aead := mustAEAD(key)
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		fatalf("nonce: %v", err)
	}
	return base64.StdEncoding.EncodeToString(aead.Seal(nonce, nonce, plaintext, nil))
}

func mustOpen(key []byte, content string) string {
	raw, err := base64.StdEncoding.DecodeString(content)
	if err != nil {
		fatalf("decode content: %v", err)
	}
	aead := mustAEAD(key)
	if len(raw) < aead.NonceSize() {
		fatalf("ciphertext too short")
	}
	pt, err := aead.Open(nil, raw[:aead.NonceSize()], raw[aead.NonceSize():], nil)
	if err != nil {
		fatalf("decrypt: %v", err)
	}
	return string(pt)
}

func mustAEAD(key []byte) cipher.AEAD {
	block, err := aes.NewCipher(key)
	if err != nil {
		fatalf("aes: %v", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		fatalf("gcm: %v", err)
	}
	return aead
}

func (c *smokeClient) mustReadUntilType(parent context.Context, wantType string, stepTimeout time.Duration, skipTypes map[string]struct{}) v1.Envelope {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			fatalf("timeout waiting for %q (%s): %v", wantType, c.name, ctx.Err())
		case err := <-c.errCh:
			if err == nil {
				fatalf("connection closed while waiting for %q (%s)", wantType, c.name)
			}
			fatalf("connection error while waiting for %q (%s): %v", wantType, c.name, err)
		case env, ok := <-c.inbox:
			if !ok {
				fatalf("connection closed while waiting for %q (%s)", wantType, c.name)
			}
			if env.Type == wantType {
				return env
			}
			if env.Type == v1.TypeError {
				var ep v1.ErrorPayload
				_ = json.Unmarshal(env.Payload, &ep)
				fatalf("server error (%s): code=%q msg=%q", c.name, ep.Code, ep.Message)
			}
			if _, ok := skipTypes[env.Type]; ok {
				continue
			}
			fatalf("unexpected envelope type (%s): got=%q want=%q", c.name, env.Type, wantType)
		}
	}
}

func envelope(typ string, payload any) v1.Envelope {
	return v1.Envelope{
		V:       v1.Version,
		Type:    typ,
		TS:      time.Now().UTC(),
		Payload: mustJSON(payload),
	}
}

func mustWrite(parent context.Context, conn *websocket.Conn, env v1.Envelope, stepTimeout time.Duration) {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	b, err := json.Marshal(env)
	if err != nil {
		fatalf("marshal envelope: %v", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, b); err != nil {
		fatalf("write failed: %v", err)
	}
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

func closeWS(conn *websocket.Conn) {
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}
