package twilio

import (
	"strings"
	"testing"
)

func TestMessagingResponse(t *testing.T) {
	out, err := MessagingResponse("Hello there!")
	if err != nil {
		t.Fatalf("MessagingResponse() error = %v", err)
	}
	s := string(out)
	if !strings.HasPrefix(s, "<?xml") {
		t.Errorf("missing XML declaration: %q", s)
	}
	if !strings.Contains(s, "<Response><Message>Hello there!</Message></Response>") {
		t.Errorf("unexpected document: %q", s)
	}
}

func TestMessagingResponseEscapes(t *testing.T) {
	out, err := MessagingResponse(`use <b> & "quotes"`)
	if err != nil {
		t.Fatalf("MessagingResponse() error = %v", err)
	}
	s := string(out)
	if strings.Contains(s, "<b>") {
		t.Errorf("markup not escaped: %q", s)
	}
	if !strings.Contains(s, "&lt;b&gt; &amp;") {
		t.Errorf("expected escaped entities: %q", s)
	}
}

func TestMessagingResponseEmpty(t *testing.T) {
	out, err := MessagingResponse()
	if err != nil {
		t.Fatalf("MessagingResponse() error = %v", err)
	}
	if !strings.Contains(string(out), "<Response></Response>") {
		t.Errorf("unexpected document: %q", out)
	}
}
