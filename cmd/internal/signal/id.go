package signal

import (
	"encoding/json"
	"fmt"
	"time"

	"sigrelay/cmd/internal/ids"
	v1 "sigrelay/shared/contracts/signal/v1"
)

var envelopeIDs = ids.NewGenerator(nil)

// NewConnID returns a ULID used as the websocket connection id.
func NewConnID(now time.Time) (string, error) {
	return ids.NewULID(now)
}

// newEnvelope builds an outbound envelope with a fresh id.
func newEnvelope(typ string, payload any, now time.Time) (v1.Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return v1.Envelope{}, fmt.Errorf("marshal %s payload: %w", typ, err)
	}
	id, err := envelopeIDs.New(now)
	if err != nil {
		return v1.Envelope{}, fmt.Errorf("envelope id: %w", err)
	}
	return v1.Envelope{
		V:       v1.Version,
		Type:    typ,
		ID:      id,
		TS:      now.UTC(),
		Payload: raw,
	}, nil
}
