// Package delivery reconciles asynchronous message status callbacks from the
// WhatsApp provider (Twilio) with stored outbound messages.
package delivery

import "strings"

// Status is the canonical delivery status of a message.
type Status string

// Canonical statuses.
const (
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusRead      Status = "read"
	StatusFailed    Status = "failed"
)

// MapStatus converts a provider status to its canonical form. Unknown
// statuses map to StatusSent.
func MapStatus(provider string) Status {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "queued", "sent":
		return StatusSent
	case "delivered":
		return StatusDelivered
	case "read":
		return StatusRead
	case "failed", "undelivered":
		return StatusFailed
	default:
		return StatusSent
	}
}
