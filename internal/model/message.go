// Package model defines the core domain models used throughout the application.
package model

import (
	"crypto/sha256"
	"fmt"
	"time"
)

// fingerprintBodyPrefix is how much of the message body participates in the
// fingerprint. Bank alerts front-load the identifying content (amount,
// account tail, reference); trailing marketing text varies between resends.
const fingerprintBodyPrefix = 64

// RawMessage is a single inbound SMS observation as delivered by the
// platform message source. It is ephemeral: only its fingerprint is kept
// once the pipeline has reached a terminal outcome for it.
type RawMessage struct {
	ReceivedAt time.Time `json:"receivedAt"`
	Sender     string    `json:"sender"`
	Body       string    `json:"body"`
	ExternalID string    `json:"externalId,omitempty"`
}

// Fingerprint derives the stable dedup key for this message. The same
// physical SMS must fingerprint identically in the foreground listener and
// in a headless invocation, so the key uses only wire-visible fields:
// sender, received time bucketed to the minute, and a body prefix.
func (m RawMessage) Fingerprint() string {
	body := m.Body
	if len(body) > fingerprintBodyPrefix {
		body = body[:fingerprintBodyPrefix]
	}
	data := fmt.Sprintf("%s:%s:%s",
		m.Sender,
		m.ReceivedAt.UTC().Truncate(time.Minute).Format(time.RFC3339),
		body)
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash)
}
