// Package twiliowhatsapp wraps the Twilio API for the PlatformAI WhatsApp channel.
package twiliowhatsapp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"github.com/twilio/twilio-go"
	twilioClient "github.com/twilio/twilio-go/client"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// MaxBodyLength is the longest WhatsApp body Twilio accepts, in characters.
const MaxBodyLength = 1600

// addressPrefix marks WhatsApp addresses in Twilio requests.
const addressPrefix = "whatsapp:"

// ErrMissingCredentials is returned when the account SID or auth token is unset.
var ErrMissingCredentials = errors.New("account SID and auth token must be provided")

// Sender sends WhatsApp messages.
type Sender interface {
	SendMessage(ctx context.Context, to string, body string) error
}

// SignatureValidator checks the X-Twilio-Signature of a webhook request.
type SignatureValidator interface {
	ValidateSignature(fullURL string, params url.Values, signature string) bool
}

// Opts holds configuration options for the Twilio WhatsApp client.
type Opts struct {
	AccountSID string
	AuthToken  string
	FromWhats  string
}

// Option defines a configuration option for the Twilio WhatsApp client.
type Option func(*Opts)

// WithAccountSID sets the Twilio account SID.
func WithAccountSID(sid string) Option {
	return func(o *Opts) { o.AccountSID = sid }
}

// WithAuthToken sets the auth token used for REST calls and webhook signatures.
func WithAuthToken(token string) Option {
	return func(o *Opts) { o.AuthToken = token }
}

// WithFromWhats sets the sending number, with or without the whatsapp: prefix.
func WithFromWhats(from string) Option {
	return func(o *Opts) { o.FromWhats = from }
}

// Client wraps Twilio REST API for WhatsApp
type Client struct {
	client    *twilio.RestClient
	validator twilioClient.RequestValidator
	fromWhats string // WhatsApp number in "whatsapp:+1234567890" format
}

var (
	_ Sender             = (*Client)(nil)
	_ SignatureValidator = (*Client)(nil)
)

func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("Twilio client config loaded",
		"AccountSID_set", cfg.AccountSID != "",
		"AuthToken_set", cfg.AuthToken != "",
		"FromWhats_set", cfg.FromWhats != "")

	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, ErrMissingCredentials
	}
	if cfg.FromWhats == "" {
		return nil, fmt.Errorf("fromWhats number must be provided")
	}

	client := twilio.NewRestClientWithParams(
		twilio.ClientParams{
			Username: cfg.AccountSID,
			Password: cfg.AuthToken,
		},
	)

	return &Client{
		client:    client,
		validator: twilioClient.NewRequestValidator(cfg.AuthToken),
		fromWhats: Address(cfg.FromWhats),
	}, nil
}

// SendMessage sends body to the WhatsApp number to, split into as many
// messages as MaxBodyLength requires.
func (c *Client) SendMessage(ctx context.Context, to string, body string) error {
	for i, part := range SplitBody(body) {
		if err := ctx.Err(); err != nil {
			return err
		}
		params := &twilioApi.CreateMessageParams{}
		params.SetTo(Address(to))
		params.SetFrom(c.fromWhats)
		params.SetBody(part)

		resp, err := c.client.Api.CreateMessage(params)
		if err != nil {
			slog.Error("Twilio SendMessage failed", "to", to, "part", i, "error", err)
			return fmt.Errorf("failed to send message to %s: %w", to, err)
		}
		if resp != nil && resp.Sid != nil {
			slog.Debug("Twilio message sent", "to", to, "part", i, "sid", *resp.Sid)
		}
	}
	return nil
}

// ValidateSignature reports whether signature matches the request Twilio sent
// to fullURL with the given form params.
func (c *Client) ValidateSignature(fullURL string, params url.Values, signature string) bool {
	flat := make(map[string]string, len(params))
	for k := range params {
		flat[k] = params.Get(k)
	}
	return c.validator.Validate(fullURL, flat, signature)
}

// InboundMessage is the part of a Twilio messaging webhook the relay uses.
type InboundMessage struct {
	MessageSID string
	From       string // E.164 number without the whatsapp: prefix
	Body       string
}

// ParseInbound extracts an InboundMessage from webhook form values.
func ParseInbound(form url.Values) (InboundMessage, error) {
	msg := InboundMessage{
		MessageSID: form.Get("MessageSid"),
		From:       strings.TrimPrefix(form.Get("From"), addressPrefix),
		Body:       form.Get("Body"),
	}
	if msg.MessageSID == "" {
		return msg, errors.New("webhook is missing MessageSid")
	}
	if msg.From == "" {
		return msg, errors.New("webhook is missing From")
	}
	return msg, nil
}

// Address returns number in whatsapp:+E164 form.
func Address(number string) string {
	number = strings.TrimSpace(number)
	if strings.HasPrefix(number, addressPrefix) {
		return number
	}
	return addressPrefix + number
}

// SplitBody cuts body into chunks of at most MaxBodyLength characters,
// preferring to break at a newline.
func SplitBody(body string) []string {
	runes := []rune(body)
	if len(runes) <= MaxBodyLength {
		return []string{body}
	}
	var parts []string
	for len(runes) > MaxBodyLength {
		cut := MaxBodyLength
		for i := MaxBodyLength; i > MaxBodyLength/2; i-- {
			if runes[i-1] == '\n' {
				cut = i
				break
			}
		}
		parts = append(parts, strings.TrimRight(string(runes[:cut]), "\n"))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		parts = append(parts, string(runes))
	}
	return parts
}

// MockClient records messages instead of calling Twilio. It is safe for concurrent use.
type MockClient struct {
	mu           sync.Mutex
	SentMessages []SentMessage
	Err          error
	sent         chan SentMessage
}

type SentMessage struct {
	To   string
	Body string
}

var _ Sender = (*MockClient)(nil)

func NewMockClient() *MockClient {
	return &MockClient{SentMessages: []SentMessage{}, sent: make(chan SentMessage, 64)}
}

func (m *MockClient) SendMessage(ctx context.Context, to string, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	msg := SentMessage{To: to, Body: body}
	m.SentMessages = append(m.SentMessages, msg)
	select {
	case m.sent <- msg:
	default:
	}
	return nil
}

// Sent returns a channel that receives every message sent after creation.
func (m *MockClient) Sent() <-chan SentMessage { return m.sent }

// Messages returns a copy of the messages sent so far.
func (m *MockClient) Messages() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentMessage(nil), m.SentMessages...)
}
