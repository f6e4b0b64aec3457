// Package twilio holds the transport edge: webhook signature
// validation, TwiML rendering, and the outbound Messages API client.
package twilio

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base64"
	"sort"
	"strings"
)

// Validator checks the X-Twilio-Signature header on inbound webhooks.
// Twilio signs the full request URL concatenated with the POST
// parameters sorted by name, HMAC-SHA1 keyed with the account's auth
// token, base64-encoded.
type Validator struct {
	authToken string
}

// NewValidator creates a validator for the given auth token.
func NewValidator(authToken string) *Validator {
	return &Validator{authToken: authToken}
}

// Validate reports whether signature matches the request URL and params.
func (v *Validator) Validate(url string, params map[string]string, signature string) bool {
	expected := v.sign(url, params)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}

func (v *Validator) sign(url string, params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(url)
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(params[k])
	}

	mac := hmac.New(sha1.New, []byte(v.authToken))
	mac.Write([]byte(b.String()))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
