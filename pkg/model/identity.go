package model

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// EntityIdentity is the stable key used to correlate the same real-world
// entity across refresh cycles. Providers return no durable ID for some feed
// types, so the key is derived from normalized observable fields. Two points
// with the same identity are treated as the same tracked entity; collisions
// between distinct entities sharing label+country+category are an accepted
// limitation of the scheme.
type EntityIdentity struct {
	Kind     Kind   `json:"kind"`
	Label    string `json:"label"`
	Country  string `json:"country"`
	Category string `json:"category"`
}

// NewEntityIdentity builds an identity from raw point fields, normalizing
// case and surrounding whitespace so equality is well defined.
func NewEntityIdentity(kind Kind, label, country, category string) EntityIdentity {
	return EntityIdentity{
		Kind:     kind,
		Label:    normalizeIdentityField(label),
		Country:  normalizeIdentityField(country),
		Category: normalizeIdentityField(category),
	}
}

func normalizeIdentityField(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Key returns the canonical string form: kind|label|country|category.
func (id EntityIdentity) Key() string {
	return strings.Join([]string{string(id.Kind), id.Label, id.Country, id.Category}, "|")
}

// ParseKey parses the canonical string form back into an identity.
func ParseKey(key string) (EntityIdentity, error) {
	parts := strings.Split(key, "|")
	if len(parts) != 4 {
		return EntityIdentity{}, fmt.Errorf("identity key must have 4 segments, got %d", len(parts))
	}
	kind := Kind(parts[0])
	if !kind.Valid() {
		return EntityIdentity{}, fmt.Errorf("unknown kind %q in identity key", parts[0])
	}
	return NewEntityIdentity(kind, parts[1], parts[2], parts[3]), nil
}

// TrackerID returns the opaque URL-safe form of the identity used in API paths.
func (id EntityIdentity) TrackerID() string {
	return base64.RawURLEncoding.EncodeToString([]byte(id.Key()))
}

// ParseTrackerID decodes an opaque tracker id back into an identity. An error
// here means the id was never valid, as opposed to merely stale.
func ParseTrackerID(trackerID string) (EntityIdentity, error) {
	raw, err := base64.RawURLEncoding.DecodeString(trackerID)
	if err != nil {
		return EntityIdentity{}, fmt.Errorf("malformed tracker id: %w", err)
	}
	return ParseKey(string(raw))
}
