// CLAUDE:SUMMARY Telegram bot channel: long-poll getUpdates for inbound, sendMessage for notifications.
package channels

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// TelegramConfig is the per-channel JSON config for Telegram bots.
type TelegramConfig struct {
	// BotToken is the Telegram bot API token (from @BotFather).
	BotToken string `json:"bot_token"`
	// APIBase overrides https://api.telegram.org.
	APIBase string `json:"api_base,omitempty"`
	// PollTimeout is the getUpdates long-poll timeout in seconds. Default: 30.
	PollTimeout int `json:"poll_timeout,omitempty"`
	// ParseMode for sendMessage. Default: "HTML".
	ParseMode string `json:"parse_mode,omitempty"`
	// RetryMax bounds retries of one API call. Default: 3.
	RetryMax int `json:"retry_max,omitempty"`
}

// TelegramFactory returns a ChannelFactory for Telegram bots using the Bot
// API with getUpdates long-polling.
//
// Config example:
//
//	{"bot_token": "123456:ABC-DEF"}
func TelegramFactory(logger *slog.Logger) ChannelFactory {
	if logger == nil {
		logger = slog.Default()
	}
	return func(name string, config json.RawMessage) (Channel, error) {
		var cfg TelegramConfig
		if err := json.Unmarshal(config, &cfg); err != nil {
			return nil, fmt.Errorf("telegram: parse config: %w", err)
		}
		if cfg.BotToken == "" {
			return nil, fmt.Errorf("telegram: bot_token is required")
		}
		if cfg.APIBase == "" {
			cfg.APIBase = "https://api.telegram.org"
		}
		if cfg.PollTimeout <= 0 {
			cfg.PollTimeout = 30
		}
		if cfg.ParseMode == "" {
			cfg.ParseMode = "HTML"
		}
		if cfg.RetryMax <= 0 {
			cfg.RetryMax = 3
		}
		return newTelegramChannel(name, cfg, logger), nil
	}
}

// telegramChannel implements Channel for Telegram.
type telegramChannel struct {
	name   string
	config TelegramConfig
	client *retryablehttp.Client
	logger *slog.Logger

	mu      sync.Mutex
	closed  bool
	status  ChannelStatus
	closeCh chan struct{}
}

func newTelegramChannel(name string, cfg TelegramConfig, logger *slog.Logger) *telegramChannel {
	client := retryablehttp.NewClient()
	client.RetryMax = cfg.RetryMax
	client.RetryWaitMin = 500 * time.Millisecond
	client.RetryWaitMax = 10 * time.Second
	client.Logger = logger.With("channel", name)
	// Long polls hold the connection for PollTimeout seconds.
	client.HTTPClient.Timeout = time.Duration(cfg.PollTimeout)*time.Second + 10*time.Second

	return &telegramChannel{
		name:   name,
		config: cfg,
		client: client,
		logger: logger,
		status: ChannelStatus{
			Connected: false,
			Platform:  "telegram",
			AuthState: "token_valid",
		},
		closeCh: make(chan struct{}),
	}
}

// Bot API payloads, reduced to the fields used here.
type tgResponse struct {
	OK          bool            `json:"ok"`
	Description string          `json:"description,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
}

type tgUpdate struct {
	UpdateID int64      `json:"update_id"`
	Message  *tgMessage `json:"message,omitempty"`
}

type tgMessage struct {
	MessageID int64  `json:"message_id"`
	Date      int64  `json:"date"`
	Text      string `json:"text"`
	Chat      struct {
		ID int64 `json:"id"`
	} `json:"chat"`
	From *struct {
		ID       int64  `json:"id"`
		Username string `json:"username"`
	} `json:"from,omitempty"`
}

type tgSendMessage struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode,omitempty"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview,omitempty"`
	ReplyToMessageID      int64  `json:"reply_to_message_id,omitempty"`
}

func (c *telegramChannel) endpoint(method string) string {
	return c.config.APIBase + "/bot" + c.config.BotToken + "/" + method
}

// call performs one Bot API request and decodes result into out.
func (c *telegramChannel) call(ctx context.Context, method string, body any, query url.Values, out any) error {
	u := c.endpoint(method)
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var (
		req *retryablehttp.Request
		err error
	)
	if body == nil {
		req, err = retryablehttp.NewRequestWithContext(ctx, "GET", u, nil)
	} else {
		payload, merr := json.Marshal(body)
		if merr != nil {
			return merr
		}
		req, err = retryablehttp.NewRequestWithContext(ctx, "POST", u, payload)
		if err == nil {
			req.Header.Set("Content-Type", "application/json")
		}
	}
	if err != nil {
		return err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return err
	}
	var env tgResponse
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("telegram: %s: HTTP %d: %w", method, resp.StatusCode, err)
	}
	if !env.OK {
		return fmt.Errorf("telegram: %s: %s", method, env.Description)
	}
	if out != nil && len(env.Result) > 0 {
		return json.Unmarshal(env.Result, out)
	}
	return nil
}

func (c *telegramChannel) Listen(ctx context.Context) <-chan Message {
	ch := make(chan Message)

	// Close aborts an in-flight long poll.
	pollCtx, cancel := context.WithCancel(ctx)
	go func() {
		select {
		case <-c.closeCh:
			cancel()
		case <-pollCtx.Done():
		}
	}()

	go func() {
		defer close(ch)
		defer cancel()

		var offset int64
		for {
			q := url.Values{}
			q.Set("timeout", strconv.Itoa(c.config.PollTimeout))
			q.Set("allowed_updates", `["message"]`)
			if offset > 0 {
				q.Set("offset", strconv.FormatInt(offset, 10))
			}

			var updates []tgUpdate
			err := c.call(pollCtx, "getUpdates", nil, q, &updates)
			if pollCtx.Err() != nil {
				return
			}
			if err != nil {
				c.setError(err)
				c.logger.Warn("telegram: getUpdates failed", "channel", c.name, "error", err)
				select {
				case <-time.After(3 * time.Second):
					continue
				case <-pollCtx.Done():
					return
				}
			}
			c.setConnected()

			for _, u := range updates {
				if u.UpdateID >= offset {
					offset = u.UpdateID + 1
				}
				if u.Message == nil || u.Message.Text == "" {
					continue
				}
				msg := c.toMessage(u.Message)
				select {
				case ch <- msg:
				case <-pollCtx.Done():
					return
				}
			}
		}
	}()
	return ch
}

func (c *telegramChannel) toMessage(m *tgMessage) Message {
	msg := Message{
		ID:          strconv.FormatInt(m.MessageID, 10),
		ChannelName: c.name,
		Platform:    "telegram",
		Direction:   Inbound,
		SenderID:    strconv.FormatInt(m.Chat.ID, 10),
		Text:        m.Text,
		Timestamp:   time.Unix(m.Date, 0),
	}
	if m.From != nil && m.From.Username != "" {
		msg.Metadata = map[string]string{"username": m.From.Username}
	}
	return msg
}

func (c *telegramChannel) Send(ctx context.Context, msg Message) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return &ErrSendFailed{Channel: c.name, Platform: "telegram",
			Cause: fmt.Errorf("channel closed")}
	}
	if msg.RecipientID == "" {
		return &ErrSendFailed{Channel: c.name, Platform: "telegram",
			Cause: fmt.Errorf("no recipient")}
	}

	body := tgSendMessage{
		ChatID:                msg.RecipientID,
		Text:                  msg.Text,
		ParseMode:             c.config.ParseMode,
		DisableWebPagePreview: true,
	}
	if msg.ReplyTo != "" {
		body.ReplyToMessageID, _ = strconv.ParseInt(msg.ReplyTo, 10, 64)
	}
	if err := c.call(ctx, "sendMessage", body, nil, nil); err != nil {
		return &ErrSendFailed{Channel: c.name, Platform: "telegram", Cause: err}
	}

	c.mu.Lock()
	c.status.LastMessage = time.Now()
	c.mu.Unlock()
	return nil
}

func (c *telegramChannel) setConnected() {
	c.mu.Lock()
	c.status.Connected = true
	c.status.Error = ""
	c.mu.Unlock()
}

func (c *telegramChannel) setError(err error) {
	c.mu.Lock()
	c.status.Connected = false
	c.status.Error = err.Error()
	c.mu.Unlock()
}

func (c *telegramChannel) Status() ChannelStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *telegramChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	close(c.closeCh)
	c.status.Connected = false
	c.status.AuthState = "disconnected"
	return nil
}
