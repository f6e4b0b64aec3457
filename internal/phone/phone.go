// Package phone maps raw sender identifiers to their canonical E.164
// form and back. Twilio delivers WhatsApp senders as
// "whatsapp:+1234567890"; everything else in the relay keys off the bare
// "+1234567890" form.
package phone

import (
	"errors"
	"strings"
)

const transportPrefix = "whatsapp:"

// ErrEmpty is returned when the raw identifier contains no number.
var ErrEmpty = errors.New("phone: empty number")

// Normalize strips the transport prefix and guarantees a leading "+".
// Normalizing an already-canonical number returns it unchanged.
func Normalize(raw string) (string, error) {
	p := strings.TrimSpace(raw)
	p = strings.TrimPrefix(p, transportPrefix)
	if p == "" {
		return "", ErrEmpty
	}
	if !strings.HasPrefix(p, "+") {
		p = "+" + p
	}
	return p, nil
}

// ForTwilio formats a number for the Twilio WhatsApp API, which expects
// the transport prefix back on the canonical form.
func ForTwilio(raw string) (string, error) {
	p, err := Normalize(raw)
	if err != nil {
		return "", err
	}
	return transportPrefix + p, nil
}
