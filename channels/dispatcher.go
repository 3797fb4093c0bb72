// CLAUDE:SUMMARY Manages open channels, routes inbound messages to a handler and delivers outbound ones.
package channels

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// channelEntry holds a running channel.
type channelEntry struct {
	channel  Channel
	cancel   context.CancelFunc
	wg       sync.WaitGroup // tracks the dispatch goroutine
	platform string
}

// Dispatcher manages open channels and routes their inbound messages
// through an InboundHandler.
type Dispatcher struct {
	mu        sync.RWMutex
	channels  map[string]*channelEntry
	factories map[string]ChannelFactory
	handler   InboundHandler
	logger    *slog.Logger

	// lifecycleCtx parents all channel listen contexts so channels outlive
	// the ctx passed to any single call.
	lifecycleCtx    context.Context
	lifecycleCancel context.CancelFunc

	// sem limits concurrent InboundHandler calls when maxConcurrent > 0.
	sem chan struct{}
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithLogger sets a custom logger for the dispatcher.
func WithLogger(l *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.logger = l }
}

// WithMaxConcurrent sets the maximum number of concurrent InboundHandler
// calls across all channels. Zero or negative means unlimited (default).
func WithMaxConcurrent(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.sem = make(chan struct{}, n)
		}
	}
}

// NewDispatcher creates a Dispatcher with the given inbound handler.
// Register platform factories before calling Open.
func NewDispatcher(handler InboundHandler, opts ...DispatcherOption) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		channels:        make(map[string]*channelEntry),
		factories:       make(map[string]ChannelFactory),
		handler:         handler,
		logger:          slog.Default(),
		lifecycleCtx:    ctx,
		lifecycleCancel: cancel,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// RegisterPlatform registers a ChannelFactory for a platform name.
func (d *Dispatcher) RegisterPlatform(platform string, f ChannelFactory) {
	d.mu.Lock()
	d.factories[platform] = f
	d.mu.Unlock()
}

// Open creates the named channel and starts dispatching its inbound
// messages. An open channel with the same name is closed first.
func (d *Dispatcher) Open(name, platform string, config json.RawMessage) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	factory, ok := d.factories[platform]
	if !ok {
		return &ErrNoPlatformFactory{Channel: name, Platform: platform}
	}
	if len(config) == 0 {
		config = json.RawMessage(`{}`)
	}
	ch, err := factory(name, config)
	if err != nil {
		return err
	}

	if old, ok := d.channels[name]; ok {
		d.closeEntry(name, old)
	}

	listenCtx, cancel := context.WithCancel(d.lifecycleCtx)
	entry := &channelEntry{channel: ch, cancel: cancel, platform: platform}
	d.channels[name] = entry

	entry.wg.Add(1)
	go d.dispatch(listenCtx, name, ch, &entry.wg)

	d.logger.Info("channels: channel started", "channel", name, "platform", platform)
	return nil
}

// Names returns the open channel names, sorted.
func (d *Dispatcher) Names() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.channels))
	for n := range d.channels {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Send sends an outbound message through the named channel.
// Returns ErrChannelNotFound if the channel is not open.
func (d *Dispatcher) Send(ctx context.Context, msg Message) error {
	d.mu.RLock()
	entry, ok := d.channels[msg.ChannelName]
	d.mu.RUnlock()

	if !ok {
		return &ErrChannelNotFound{Channel: msg.ChannelName}
	}
	if msg.Platform == "" {
		msg.Platform = entry.platform
	}
	return entry.channel.Send(ctx, msg)
}

// Deliver sends text to one recipient.
func (d *Dispatcher) Deliver(ctx context.Context, to Recipient, text string) error {
	return d.Send(ctx, Message{
		ChannelName: to.Channel,
		Direction:   Outbound,
		RecipientID: to.ID,
		Text:        text,
		Timestamp:   time.Now(),
	})
}

// Status returns the ChannelStatus for a named channel.
// Returns ok=false if the channel is not open.
func (d *Dispatcher) Status(name string) (ChannelStatus, bool) {
	d.mu.RLock()
	entry, ok := d.channels[name]
	d.mu.RUnlock()

	if !ok {
		return ChannelStatus{}, false
	}
	return entry.channel.Status(), true
}

// dispatch reads inbound messages from a channel and processes them through
// the InboundHandler. Responses are sent back through the same channel.
func (d *Dispatcher) dispatch(ctx context.Context, name string, ch Channel, wg *sync.WaitGroup) {
	defer wg.Done()
	msgs := ch.Listen(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				d.logger.Info("channels: listen closed", "channel", name)
				return
			}

			if msg.ChannelName == "" {
				msg.ChannelName = name
			}

			if d.sem != nil {
				select {
				case d.sem <- struct{}{}:
				case <-ctx.Done():
					return
				}
			}

			responses, err := d.handler(ctx, msg)

			if d.sem != nil {
				<-d.sem
			}

			if err != nil {
				d.logger.Error("channels: inbound handler failed",
					"channel", name, "sender", msg.SenderID, "error", err)
				continue
			}

			for _, resp := range responses {
				resp.ChannelName = name
				resp.Direction = Outbound
				if err := ch.Send(ctx, resp); err != nil {
					d.logger.Error("channels: send response failed",
						"channel", name, "recipient", resp.RecipientID, "error", err)
				}
			}
		}
	}
}

// closeEntry shuts down a channel entry and waits for its dispatch goroutine
// to exit before returning.
func (d *Dispatcher) closeEntry(name string, entry *channelEntry) {
	entry.cancel()
	if err := entry.channel.Close(); err != nil {
		d.logger.Error("channels: close failed",
			"channel", name, "platform", entry.platform, "error", err)
	} else {
		d.logger.Info("channels: channel stopped",
			"channel", name, "platform", entry.platform)
	}
	entry.wg.Wait()
}

// Close shuts down all open channels and cancels the lifecycle context.
func (d *Dispatcher) Close() error {
	d.lifecycleCancel()
	d.mu.Lock()
	defer d.mu.Unlock()
	for name, entry := range d.channels {
		d.closeEntry(name, entry)
	}
	d.channels = make(map[string]*channelEntry)
	return nil
}
