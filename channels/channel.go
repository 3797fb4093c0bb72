// CLAUDE:SUMMARY Defines Message, Recipient, Channel and ChannelFactory for messaging connectors.
// Package channels provides bidirectional messaging connectors: a Telegram
// bot and a generic HTTP webhook.
//
// Inbound messages are how subscribers find the service (any message to the
// bot registers its chat); outbound messages carry change notifications.
//
//	d := channels.NewDispatcher(handler, channels.WithLogger(logger))
//	d.RegisterPlatform("telegram", channels.TelegramFactory(logger))
//	d.RegisterPlatform("webhook", channels.WebhookFactory())
//	d.Open("tg", "telegram", json.RawMessage(`{"bot_token":"123:ABC"}`))
//	d.Deliver(ctx, channels.Recipient{Channel: "tg", ID: "42"}, "hello")
package channels

import (
	"context"
	"encoding/json"
	"time"
)

// Direction indicates whether a message is inbound (received from a user)
// or outbound (sent by the system).
type Direction int

const (
	Inbound  Direction = iota // Message received from a platform user.
	Outbound                  // Message sent to a platform user.
)

// String returns "inbound" or "outbound".
func (d Direction) String() string {
	if d == Inbound {
		return "inbound"
	}
	return "outbound"
}

// Message is a platform-normalized inbound or outbound message.
// For inbound messages SenderID is the address replies and notifications
// go to: the chat ID on Telegram, the callback URL on a webhook.
type Message struct {
	ID          string            `json:"id"`
	ChannelName string            `json:"channel"`            // e.g. "tg_alerts"
	Platform    string            `json:"platform"`           // "telegram", "webhook"
	Direction   Direction         `json:"direction"`          // Inbound or Outbound
	SenderID    string            `json:"sender_id"`          // platform-specific reply address
	RecipientID string            `json:"recipient_id"`       // platform-specific recipient ID
	Text        string            `json:"text"`               // message body
	ReplyTo     string            `json:"reply_to,omitempty"` // ID of message being replied to
	Metadata    map[string]string `json:"metadata,omitempty"` // platform-specific extras
	Timestamp   time.Time         `json:"timestamp"`
}

// Recipient addresses one subscriber: a channel name and the
// platform-specific ID within it. Comparable.
type Recipient struct {
	Channel string `json:"channel"`
	ID      string `json:"id"`
}

func (r Recipient) String() string { return r.Channel + ":" + r.ID }

// ReplyAddress returns the Recipient that reaches the sender of msg.
func ReplyAddress(msg Message) Recipient {
	return Recipient{Channel: msg.ChannelName, ID: msg.SenderID}
}

// ChannelStatus describes the current state of a channel connection.
type ChannelStatus struct {
	Connected   bool      `json:"connected"`
	Platform    string    `json:"platform"`
	AuthState   string    `json:"auth_state"` // "token_valid", "listening", "disconnected", etc.
	LastMessage time.Time `json:"last_message"`
	Error       string    `json:"error,omitempty"`
}

// Channel is a bidirectional connection to a messaging platform.
type Channel interface {
	// Listen returns a read-only channel of inbound messages.
	// The returned channel is closed when ctx is cancelled or Close is called.
	Listen(ctx context.Context) <-chan Message

	// Send pushes an outbound message to the platform.
	Send(ctx context.Context, msg Message) error

	// Status returns the current connection status.
	Status() ChannelStatus

	// Close shuts down the connection and releases resources.
	// After Close, the channel returned by Listen will be closed.
	Close() error
}

// ChannelFactory creates a Channel from a name and JSON config.
type ChannelFactory func(name string, config json.RawMessage) (Channel, error)

// InboundHandler processes an inbound message and returns zero or more
// outbound responses, sent back through the same channel.
//
// The handler may return nil to indicate no response should be sent.
type InboundHandler func(ctx context.Context, msg Message) ([]Message, error)
