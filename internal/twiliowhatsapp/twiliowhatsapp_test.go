package twiliowhatsapp

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"net/url"
	"sort"
	"strings"
	"testing"
)

func TestMockClient_SendMessage(t *testing.T) {
	ctx := context.Background()
	mock := NewMockClient()

	err := mock.SendMessage(ctx, "12345", "Hello Test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	msgs := mock.Messages()
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if msgs[0].Body != "Hello Test" {
		t.Errorf("expected body %q, got %q", "Hello Test", msgs[0].Body)
	}
	select {
	case got := <-mock.Sent():
		if got.To != "12345" {
			t.Errorf("expected recipient 12345, got %q", got.To)
		}
	default:
		t.Error("expected message on Sent channel")
	}
}

func TestMockClient_Error(t *testing.T) {
	mock := NewMockClient()
	mock.Err = errors.New("boom")
	if err := mock.SendMessage(context.Background(), "1", "x"); err == nil {
		t.Fatal("expected error")
	}
	if len(mock.Messages()) != 0 {
		t.Error("failed send should not be recorded")
	}
}

func TestNewClient_Validation(t *testing.T) {
	if _, err := NewClient(); !errors.Is(err, ErrMissingCredentials) {
		t.Errorf("expected ErrMissingCredentials, got %v", err)
	}
	if _, err := NewClient(WithAccountSID("AC123"), WithAuthToken("secret")); err == nil {
		t.Error("expected error without from number")
	}
	c, err := NewClient(WithAccountSID("AC123"), WithAuthToken("secret"), WithFromWhats("+15550000000"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.fromWhats != "whatsapp:+15550000000" {
		t.Errorf("expected prefixed from number, got %q", c.fromWhats)
	}
}

// sign computes the X-Twilio-Signature for a form POST.
func sign(token, fullURL string, params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(fullURL)
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(params.Get(k))
	}
	mac := hmac.New(sha1.New, []byte(token))
	mac.Write([]byte(b.String()))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestValidateSignature(t *testing.T) {
	c, err := NewClient(WithAccountSID("AC123"), WithAuthToken("secret"), WithFromWhats("whatsapp:+15550000000"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fullURL := "https://relay.example.com/twilio/webhook"
	params := url.Values{
		"MessageSid": {"SM123"},
		"From":       {"whatsapp:+15551234567"},
		"Body":       {"What is an automation?"},
	}

	if !c.ValidateSignature(fullURL, params, sign("secret", fullURL, params)) {
		t.Error("expected valid signature")
	}
	if c.ValidateSignature(fullURL, params, sign("other", fullURL, params)) {
		t.Error("signature with wrong token accepted")
	}
	params.Set("Body", "tampered")
	if c.ValidateSignature(fullURL, params, sign("secret", fullURL, url.Values{"Body": {"original"}})) {
		t.Error("tampered body accepted")
	}
}

func TestParseInbound(t *testing.T) {
	msg, err := ParseInbound(url.Values{
		"MessageSid": {"SM1"},
		"From":       {"whatsapp:+15551234567"},
		"Body":       {"hello"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.From != "+15551234567" || msg.Body != "hello" || msg.MessageSID != "SM1" {
		t.Errorf("unexpected message %+v", msg)
	}

	if _, err := ParseInbound(url.Values{"From": {"whatsapp:+1"}}); err == nil {
		t.Error("expected error without MessageSid")
	}
	if _, err := ParseInbound(url.Values{"MessageSid": {"SM1"}}); err == nil {
		t.Error("expected error without From")
	}
}

func TestAddress(t *testing.T) {
	for in, want := range map[string]string{
		"+15551234567":          "whatsapp:+15551234567",
		"whatsapp:+15551234567": "whatsapp:+15551234567",
		" +15551234567 ":        "whatsapp:+15551234567",
	} {
		if got := Address(in); got != want {
			t.Errorf("Address(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSplitBody(t *testing.T) {
	if parts := SplitBody("short"); len(parts) != 1 || parts[0] != "short" {
		t.Errorf("unexpected split of short body: %q", parts)
	}

	exact := strings.Repeat("a", MaxBodyLength)
	if parts := SplitBody(exact); len(parts) != 1 {
		t.Errorf("body of exactly MaxBodyLength split into %d parts", len(parts))
	}

	long := strings.Repeat("b", MaxBodyLength+10)
	parts := SplitBody(long)
	if len(parts) != 2 || len([]rune(parts[0])) != MaxBodyLength || len(parts[1]) != 10 {
		t.Errorf("unexpected hard split: %d parts", len(parts))
	}

	lines := strings.Repeat("c", MaxBodyLength-100) + "\n" + strings.Repeat("d", 200)
	parts = SplitBody(lines)
	if len(parts) != 2 || parts[0] != strings.Repeat("c", MaxBodyLength-100) || parts[1] != strings.Repeat("d", 200) {
		t.Errorf("expected split at newline, got %d parts", len(parts))
	}
}
