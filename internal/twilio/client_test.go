package twilio

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClientSendMessage(t *testing.T) {
	var gotPath, gotFrom, gotTo, gotBody string
	var gotUser, gotPass string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotUser, gotPass, _ = r.BasicAuth()
		_ = r.ParseForm()
		gotFrom = r.PostForm.Get("From")
		gotTo = r.PostForm.Get("To")
		gotBody = r.PostForm.Get("Body")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]string{"sid": "SM123"})
	}))
	defer srv.Close()

	c := NewClientWithBaseURL("AC111", "token", "whatsapp:+15550000000", srv.URL)
	sid, err := c.SendMessage(context.Background(), "whatsapp:+15551234567", "hello")
	if err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}
	if sid != "SM123" {
		t.Errorf("sid = %q, want SM123", sid)
	}
	if gotPath != "/Accounts/AC111/Messages.json" {
		t.Errorf("path = %q", gotPath)
	}
	if gotUser != "AC111" || gotPass != "token" {
		t.Errorf("basic auth = %q/%q", gotUser, gotPass)
	}
	if gotFrom != "whatsapp:+15550000000" || gotTo != "whatsapp:+15551234567" || gotBody != "hello" {
		t.Errorf("form = From %q To %q Body %q", gotFrom, gotTo, gotBody)
	}
}

func TestClientSendMessageAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"code":    21211,
			"message": "Invalid 'To' phone number",
		})
	}))
	defer srv.Close()

	c := NewClientWithBaseURL("AC111", "token", "whatsapp:+15550000000", srv.URL)
	_, err := c.SendMessage(context.Background(), "whatsapp:bogus", "hello")
	if err == nil {
		t.Fatal("SendMessage() error = nil, want APIError")
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %T, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusBadRequest || apiErr.Code != 21211 {
		t.Errorf("APIError = %+v", apiErr)
	}
}

func TestClientSendMessageNonJSONError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream unavailable"))
	}))
	defer srv.Close()

	c := NewClientWithBaseURL("AC111", "token", "whatsapp:+15550000000", srv.URL)
	_, err := c.SendMessage(context.Background(), "whatsapp:+15551234567", "hello")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %T, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusBadGateway || apiErr.Message != "upstream unavailable" {
		t.Errorf("APIError = %+v", apiErr)
	}
}
