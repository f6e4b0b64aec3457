package twilio

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"testing"
)

func signFor(authToken, url string, sortedKV []string) string {
	payload := url
	for _, s := range sortedKV {
		payload += s
	}
	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(payload))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestValidatorValid(t *testing.T) {
	const token = "12345"
	const url = "https://example.com/chat/whatsapp"
	params := map[string]string{
		"Body": "hello world",
		"From": "whatsapp:+15551234567",
		"To":   "whatsapp:+15557654321",
	}
	// Parameter names concatenated with values, sorted by name.
	sig := signFor(token, url, []string{
		"Body" + "hello world",
		"From" + "whatsapp:+15551234567",
		"To" + "whatsapp:+15557654321",
	})

	v := NewValidator(token)
	if !v.Validate(url, params, sig) {
		t.Error("Validate() = false for a correctly signed request")
	}
}

func TestValidatorRejects(t *testing.T) {
	const token = "12345"
	const url = "https://example.com/chat/whatsapp"
	params := map[string]string{"Body": "hello", "From": "whatsapp:+15551234567"}
	good := signFor(token, url, []string{"Bodyhello", "Fromwhatsapp:+15551234567"})

	v := NewValidator(token)

	tests := []struct {
		name      string
		url       string
		params    map[string]string
		signature string
	}{
		{"empty signature", url, params, ""},
		{"garbage signature", url, params, "bm90IGEgc2lnbmF0dXJl"},
		{"wrong url", "https://evil.example.com/chat/whatsapp", params, good},
		{"tampered param", url, map[string]string{"Body": "hacked", "From": "whatsapp:+15551234567"}, good},
		{"extra param", url, map[string]string{"Body": "hello", "From": "whatsapp:+15551234567", "X": "y"}, good},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if v.Validate(tt.url, tt.params, tt.signature) {
				t.Error("Validate() = true, want rejection")
			}
		})
	}
}

func TestValidatorWrongToken(t *testing.T) {
	const url = "https://example.com/chat/whatsapp"
	params := map[string]string{"Body": "hello"}
	sig := signFor("right-token", url, []string{"Bodyhello"})

	v := NewValidator("wrong-token")
	if v.Validate(url, params, sig) {
		t.Error("Validate() accepted a signature made with a different token")
	}
}

func TestValidatorEmptyParams(t *testing.T) {
	const token = "abc"
	const url = "https://example.com/chat/whatsapp"
	sig := signFor(token, url, nil)

	v := NewValidator(token)
	if !v.Validate(url, map[string]string{}, sig) {
		t.Error("Validate() = false for a signed request with no params")
	}
}
