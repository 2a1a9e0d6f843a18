package signal

import (
	"errors"
	"fmt"
)

// Operation error kinds. Coordinator operations return an OpError whose Kind
// is one of these.
var (
	ErrValidation      = errors.New("validation failed")
	ErrInvalidUsername = errors.New("invalid username")
	ErrDuplicateUser   = errors.New("duplicate user")
	ErrUnknownSender   = errors.New("unknown sender")
	ErrUnknownReceiver = errors.New("unknown receiver")
	ErrWrapFailure     = errors.New("wrap failure")
	ErrUnsupported     = errors.New("unsupported event")
	ErrInternal        = errors.New("internal error")
)

// State-level errors returned by Registry and SessionKeyStore.
var (
	ErrAlreadyExists   = errors.New("username already registered")
	ErrConnectionBound = errors.New("connection already owns a username")
	ErrSamePeer        = errors.New("pair requires two distinct usernames")
)

// Wire error codes (stable).
const (
	CodeValidation      = "validation"
	CodeInvalidUsername = "invalid_username"
	CodeDuplicateUser   = "duplicate_user"
	CodeUnknownSender   = "unknown_sender"
	CodeUnknownReceiver = "unknown_receiver"
	CodeWrapFailure     = "wrap_failure"
	CodeInternal        = "internal"

	CodeBadJSON     = "bad_json"
	CodeBadEnvelope = "bad_envelope"
	CodeUnsupported = "unsupported"
	CodeRateLimited = "rate_limited"
)

// User-facing messages.
const (
	msgJoinRequired      = "Username and public key required"
	msgUsernameTaken     = "Username already taken"
	msgUsernameFormat    = "Username must be 3-20 alphanumeric characters"
	msgAlreadyJoined     = "Already joined"
	msgConnectionClosed  = "Connection closed"
	msgPublicKeyTooLarge = "Public key too large"
	msgBadExchange       = "Invalid sender or receiver"
	msgReceiverNotFound  = "Receiver not found"
	msgWrapFailed        = "Failed to encrypt session key"
	msgBadMessage        = "Invalid message data"
	msgUnsupported       = "Unsupported event type"
	msgInternal          = "Internal server error"
)

// OpError is a typed operation error with a stable Op + Kind contract.
// Msg is shown to the requesting client; it must not carry secrets.
type OpError struct {
	Op   string
	Kind error
	Msg  string
}

func (e OpError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %s", e.Op, e.Kind, e.Msg)
}

func (e OpError) Unwrap() error { return e.Kind }

func opErr(op string, kind error, msg string) error {
	return OpError{Op: op, Kind: kind, Msg: msg}
}

// CodeOf maps err to its wire code. Unknown errors map to CodeInternal.
func CodeOf(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return CodeValidation
	case errors.Is(err, ErrInvalidUsername):
		return CodeInvalidUsername
	case errors.Is(err, ErrDuplicateUser):
		return CodeDuplicateUser
	case errors.Is(err, ErrUnknownSender):
		return CodeUnknownSender
	case errors.Is(err, ErrUnknownReceiver):
		return CodeUnknownReceiver
	case errors.Is(err, ErrWrapFailure):
		return CodeWrapFailure
	case errors.Is(err, ErrUnsupported):
		return CodeUnsupported
	default:
		return CodeInternal
	}
}

// MessageOf returns the client-facing message for err.
// Anything that is not a known OpError collapses to the generic internal message.
func MessageOf(err error) string {
	var oe OpError
	if errors.As(err, &oe) && oe.Msg != "" && CodeOf(oe) != CodeInternal {
		return oe.Msg
	}
	return msgInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err, kind error) bool { return errors.Is(err, kind) }
