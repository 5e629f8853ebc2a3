// Package events defines the refresh events published for downstream
// consumers of the tracker gateway.
package events

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/argosight/livetrack/pkg/model"
)

// Envelope carries metadata common to all published events.
type Envelope struct {
	MessageID     string    `json:"message_id"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	Source        string    `json:"source"`
	SourceType    string    `json:"source_type"`
	Timestamp     time.Time `json:"timestamp"`
	// Signature is an HMAC-SHA256 of the payload, set when a shared secret
	// is configured.
	Signature string `json:"signature,omitempty"`
}

// NewEnvelope creates an envelope with a generated message ID.
func NewEnvelope(source, sourceType string) Envelope {
	return Envelope{
		MessageID:  uuid.New().String(),
		Source:     source,
		SourceType: sourceType,
		Timestamp:  time.Now().UTC(),
	}
}

// WithCorrelation sets the correlation ID.
func (e Envelope) WithCorrelation(correlationID string) Envelope {
	e.CorrelationID = correlationID
	return e
}

// Sign generates an HMAC signature over the payload.
func (e *Envelope) Sign(payload, secret []byte) {
	h := hmac.New(sha256.New, secret)
	h.Write(payload)
	e.Signature = hex.EncodeToString(h.Sum(nil))
}

// VerifySignature checks the HMAC signature over the payload.
func (e *Envelope) VerifySignature(payload, secret []byte) bool {
	expected := hmac.New(sha256.New, secret)
	expected.Write(payload)
	expectedSig := hex.EncodeToString(expected.Sum(nil))
	return hmac.Equal([]byte(e.Signature), []byte(expectedSig))
}

// Event is the interface all published event types satisfy.
type Event interface {
	GetEnvelope() Envelope
	SetEnvelope(Envelope)
	Subject() string
}

// RefreshEvent announces one kind's point count after a completed provider
// round.
type RefreshEvent struct {
	Envelope Envelope `json:"envelope"`

	Kind        model.Kind `json:"kind"`
	Count       int        `json:"count"`
	Warnings    []string   `json:"warnings,omitempty"`
	Forced      bool       `json:"forced"`
	RefreshedAt time.Time  `json:"refreshed_at"`
}

func (e *RefreshEvent) GetEnvelope() Envelope {
	return e.Envelope
}

func (e *RefreshEvent) SetEnvelope(env Envelope) {
	e.Envelope = env
}

func (e *RefreshEvent) Subject() string {
	return "tracker.refreshed." + string(e.Kind)
}

// NewRefreshEvent creates a refresh event for one kind.
func NewRefreshEvent(source string, kind model.Kind, count int, warnings []string, forced bool, refreshedAt time.Time) *RefreshEvent {
	return &RefreshEvent{
		Envelope:    NewEnvelope(source, "tracker-gateway"),
		Kind:        kind,
		Count:       count,
		Warnings:    warnings,
		Forced:      forced,
		RefreshedAt: refreshedAt,
	}
}

// MarshalSigned marshals the event, signing its envelope with the secret when
// one is provided.
func MarshalSigned(ev Event, secret []byte) ([]byte, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	if len(secret) == 0 {
		return data, nil
	}
	env := ev.GetEnvelope()
	env.Sign(data, secret)
	ev.SetEnvelope(env)
	return json.Marshal(ev)
}
