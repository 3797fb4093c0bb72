// CLAUDE:SUMMARY HTTP subscription channel: subscribers POST a callback URL and receive signed notifications there.
package channels

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
)

// WebhookConfig is the per-channel JSON config for HTTP subscribers.
type WebhookConfig struct {
	ListenAddr string `json:"listen_addr"`
	Path       string `json:"path"`
	// Secret, when set, signs both directions: subscribe requests must carry
	// X-Signature-256 and notifications are sent with one.
	Secret string `json:"secret,omitempty"`
	// AllowPrivate permits callbacks to private and loopback addresses.
	AllowPrivate bool `json:"allow_private,omitempty"`
}

// maxSubscribeBody bounds an inbound subscribe request.
const maxSubscribeBody = 64 << 10

// subscribeRequest is the body a subscriber POSTs to register.
type subscribeRequest struct {
	CallbackURL string `json:"callback_url"`
	Text        string `json:"text,omitempty"`
}

// notification is the body POSTed to a subscriber's callback.
type notification struct {
	Channel string    `json:"channel"`
	Text    string    `json:"text"`
	ReplyTo string    `json:"reply_to,omitempty"`
	SentAt  time.Time `json:"sent_at"`
}

// WebhookFactory returns a ChannelFactory for HTTP subscribers.
//
// A subscriber POSTs {"callback_url": "https://..."} to the configured path.
// The callback URL becomes the message's SenderID, so registering the sender
// registers the callback, and every notification is POSTed back to it as
// {"channel", "text", "sent_at"}.
//
//	{"listen_addr": ":8080", "path": "/subscribe", "secret": "hmac_key"}
func WebhookFactory() ChannelFactory {
	return func(name string, config json.RawMessage) (Channel, error) {
		var cfg WebhookConfig
		if err := json.Unmarshal(config, &cfg); err != nil {
			return nil, fmt.Errorf("webhook: parse config: %w", err)
		}
		if cfg.ListenAddr == "" {
			return nil, fmt.Errorf("webhook: listen_addr is required")
		}
		if cfg.Path == "" {
			cfg.Path = "/"
		}
		return newWebhookChannel(name, cfg), nil
	}
}

type webhookChannel struct {
	name   string
	config WebhookConfig
	client *retryablehttp.Client

	inbound   chan Message
	closeCh   chan struct{}
	startOnce sync.Once

	mu     sync.Mutex
	closed bool
	status ChannelStatus
	server *http.Server
}

func newWebhookChannel(name string, cfg WebhookConfig) *webhookChannel {
	return &webhookChannel{
		name:    name,
		config:  cfg,
		client:  newCallbackClient(),
		inbound: make(chan Message, 64),
		closeCh: make(chan struct{}),
		status:  ChannelStatus{Platform: "webhook", AuthState: "listening"},
	}
}

func newCallbackClient() *retryablehttp.Client {
	c := retryablehttp.NewClient()
	c.RetryMax = 2
	c.RetryWaitMin = 200 * time.Millisecond
	c.RetryWaitMax = 2 * time.Second
	c.HTTPClient.Timeout = 15 * time.Second
	c.Logger = nil
	return c
}

func (c *webhookChannel) sign(body []byte) string {
	mac := hmac.New(sha256.New, []byte(c.config.Secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// verifyHMAC accepts everything when no secret is configured. The
// "sha256=" prefix is optional.
func (c *webhookChannel) verifyHMAC(body []byte, signature string) bool {
	if c.config.Secret == "" {
		return true
	}
	got, err := hex.DecodeString(strings.TrimPrefix(signature, "sha256="))
	if err != nil || len(got) == 0 {
		return false
	}
	want, _ := hex.DecodeString(strings.TrimPrefix(c.sign(body), "sha256="))
	return hmac.Equal(got, want)
}

// subscribe turns a POSTed subscribe request into an inbound message.
func (c *webhookChannel) subscribe(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxSubscribeBody))
	if err != nil {
		http.Error(w, "read body failed", http.StatusBadRequest)
		return
	}
	if !c.verifyHMAC(body, r.Header.Get("X-Signature-256")) {
		http.Error(w, "invalid signature", http.StatusForbidden)
		return
	}

	var req subscribeRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if req.CallbackURL == "" {
		http.Error(w, "callback_url is required", http.StatusBadRequest)
		return
	}
	if err := validateURL(req.CallbackURL, c.config.AllowPrivate); err != nil {
		http.Error(w, "callback_url: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Text == "" {
		req.Text = "subscribe"
	}

	msg := Message{
		ID:          uuid.NewString(),
		ChannelName: c.name,
		Platform:    "webhook",
		Direction:   Inbound,
		SenderID:    req.CallbackURL,
		Text:        req.Text,
		Timestamp:   time.Now(),
	}
	select {
	case c.inbound <- msg:
		w.WriteHeader(http.StatusAccepted)
	default:
		http.Error(w, "busy", http.StatusServiceUnavailable)
	}
}

func (c *webhookChannel) start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	r := chi.NewRouter()
	r.Post(c.config.Path, c.subscribe)
	c.server = &http.Server{
		Addr:              c.config.ListenAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		MaxHeaderBytes:    1 << 16,
	}
	c.status.Connected = true

	srv := c.server
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			c.mu.Lock()
			c.status.Connected = false
			c.status.Error = err.Error()
			c.mu.Unlock()
		}
	}()
}

// Listen starts the HTTP server on first use.
func (c *webhookChannel) Listen(ctx context.Context) <-chan Message {
	c.startOnce.Do(c.start)

	out := make(chan Message)
	go func() {
		defer close(out)
		for {
			var msg Message
			select {
			case <-ctx.Done():
				return
			case <-c.closeCh:
				return
			case msg = <-c.inbound:
			}
			select {
			case out <- msg:
			case <-ctx.Done():
				return
			case <-c.closeCh:
				return
			}
		}
	}()
	return out
}

// Send POSTs a notification to msg.RecipientID, the subscriber's callback.
// A message without a recipient is dropped.
func (c *webhookChannel) Send(ctx context.Context, msg Message) error {
	fail := func(cause error) error {
		return &ErrSendFailed{Channel: c.name, Platform: "webhook", Cause: cause}
	}

	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return fail(errors.New("channel closed"))
	}
	if msg.RecipientID == "" {
		return nil
	}
	if err := validateURL(msg.RecipientID, c.config.AllowPrivate); err != nil {
		return fail(fmt.Errorf("callback url: %w", err))
	}

	body, err := json.Marshal(notification{
		Channel: c.name,
		Text:    msg.Text,
		ReplyTo: msg.ReplyTo,
		SentAt:  time.Now().UTC(),
	})
	if err != nil {
		return fail(err)
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, msg.RecipientID, body)
	if err != nil {
		return fail(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.Secret != "" {
		req.Header.Set("X-Signature-256", c.sign(body))
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fail(fmt.Errorf("callback POST: %w", err))
	}
	resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fail(fmt.Errorf("callback returned %d", resp.StatusCode))
	}

	c.mu.Lock()
	c.status.LastMessage = time.Now()
	c.mu.Unlock()
	return nil
}

func (c *webhookChannel) Status() ChannelStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *webhookChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	close(c.closeCh)
	c.status.Connected = false
	c.status.AuthState = "stopped"
	if c.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return c.server.Shutdown(ctx)
}
