package authwatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/hazyhaar/authwatch/internal/browser"
	"github.com/hazyhaar/authwatch/internal/config"
	"github.com/hazyhaar/authwatch/internal/storage"
	"github.com/hazyhaar/authwatch/channels"
	"github.com/hazyhaar/authwatch/snapshot"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --------------------------------------------------------------------------
// Markup
// --------------------------------------------------------------------------

const cell = `<div role="gridcell">
	<img class="MuiAvatar-img" src="https://cdn.example/img/SOLANA-%s.png">
	<h2 class="css-1wz1i5j">%s</h2>
	<div class="css-1r9kwv0"><span class="css-e9h5tp">%s</span></div>
	<span class="css-1wutgjf">1m</span>
</div>`

// grid renders one list cell per token.
func grid(tokens ...string) string {
	var b strings.Builder
	b.WriteString(`<html><body><div class="css-1j135c3">`)
	for _, tok := range tokens {
		fmt.Fprintf(&b, cell, tok, "coin "+tok, "src")
	}
	b.WriteString(`</div></body></html>`)
	return b.String()
}

// --------------------------------------------------------------------------
// Tab
// --------------------------------------------------------------------------

var errPageGone = errors.New("target closed")

// fakeTab serves a queue of markup, one entry per HTML call; the last entry
// repeats. While failing > 0, HTML calls fail and decrement it.
type fakeTab struct {
	*storage.Memory

	mu        sync.Mutex
	present   map[string]bool
	navigated []string
	pages     []string
	htmlCalls int
	failing   int
	jar       []snapshot.Cookie
	shots     int
	closes    int
}

func newFakeTab(present ...string) *fakeTab {
	t := &fakeTab{Memory: storage.NewMemory(), present: map[string]bool{}}
	for _, s := range present {
		t.present[s] = true
	}
	return t
}

func (t *fakeTab) Navigate(_ context.Context, url string) error {
	t.mu.Lock()
	t.navigated = append(t.navigated, url)
	t.mu.Unlock()
	return nil
}

func (t *fakeTab) Reload(context.Context) error { return nil }

func (t *fakeTab) WaitElement(ctx context.Context, selector string) error {
	t.mu.Lock()
	ok := t.present[selector]
	t.mu.Unlock()
	if ok {
		return nil
	}
	<-ctx.Done()
	return ctx.Err()
}

func (t *fakeTab) Click(ctx context.Context, selector string) error {
	return t.WaitElement(ctx, selector)
}

func (t *fakeTab) HTML(context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.htmlCalls++
	if t.failing > 0 {
		t.failing--
		return "", errPageGone
	}
	if len(t.pages) == 0 {
		return "<html></html>", nil
	}
	page := t.pages[0]
	if len(t.pages) > 1 {
		t.pages = t.pages[1:]
	}
	return page, nil
}

func (t *fakeTab) Screenshot(context.Context) ([]byte, error) {
	t.mu.Lock()
	t.shots++
	t.mu.Unlock()
	return []byte("\x89PNG"), nil
}

func (t *fakeTab) Cookies(context.Context) ([]snapshot.Cookie, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]snapshot.Cookie{}, t.jar...), nil
}

func (t *fakeTab) SetCookies(_ context.Context, cookies []snapshot.Cookie) error {
	t.mu.Lock()
	t.jar = append([]snapshot.Cookie{}, cookies...)
	t.mu.Unlock()
	return nil
}

func (t *fakeTab) Close() error {
	t.mu.Lock()
	t.closes++
	t.mu.Unlock()
	return nil
}

func (t *fakeTab) closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closes > 0
}

func (t *fakeTab) calls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.htmlCalls
}

// --------------------------------------------------------------------------
// Browser
// --------------------------------------------------------------------------

// fakeBrowsers hands out one scripted tab per OpenTab call, per mode.
type fakeBrowsers struct {
	mu         sync.Mutex
	tabs       map[browser.Mode][]*fakeTab
	started    []browser.Mode
	due        int // Due returns true this many times
	recycled   int
	recycleErr error
}

func (f *fakeBrowsers) factory(mode browser.Mode) Browser {
	return &fakeBrowser{parent: f, mode: mode}
}

type fakeBrowser struct {
	parent *fakeBrowsers
	mode   browser.Mode
}

func (b *fakeBrowser) Start(context.Context) error {
	b.parent.mu.Lock()
	b.parent.started = append(b.parent.started, b.mode)
	b.parent.mu.Unlock()
	return nil
}

func (b *fakeBrowser) OpenTab(context.Context) (Tab, error) {
	f := b.parent
	f.mu.Lock()
	defer f.mu.Unlock()
	q := f.tabs[b.mode]
	if len(q) == 0 {
		return nil, fmt.Errorf("no %s tab scripted", b.mode)
	}
	f.tabs[b.mode] = q[1:]
	return q[0], nil
}

func (b *fakeBrowser) Due() (bool, string) {
	f := b.parent
	f.mu.Lock()
	defer f.mu.Unlock()
	if b.mode == browser.Headless && f.due > 0 {
		f.due--
		return true, "interval"
	}
	return false, ""
}

func (b *fakeBrowser) Recycle(context.Context) error {
	b.parent.mu.Lock()
	defer b.parent.mu.Unlock()
	b.parent.recycled++
	return b.parent.recycleErr
}

func (b *fakeBrowser) Close() error { return nil }

// --------------------------------------------------------------------------
// Channel
// --------------------------------------------------------------------------

// stubChannel records outbound messages and replays queued inbound ones.
type stubChannel struct {
	inbound chan channels.Message

	mu   sync.Mutex
	sent []channels.Message
}

func newStubChannel() *stubChannel {
	return &stubChannel{inbound: make(chan channels.Message, 8)}
}

func (s *stubChannel) factory(string, json.RawMessage) (channels.Channel, error) {
	return s, nil
}

func (s *stubChannel) Listen(ctx context.Context) <-chan channels.Message {
	out := make(chan channels.Message)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case m := <-s.inbound:
				select {
				case out <- m:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

func (s *stubChannel) Send(_ context.Context, msg channels.Message) error {
	s.mu.Lock()
	s.sent = append(s.sent, msg)
	s.mu.Unlock()
	return nil
}

func (s *stubChannel) Status() channels.ChannelStatus {
	return channels.ChannelStatus{Connected: true, Platform: "stub"}
}

func (s *stubChannel) Close() error { return nil }

func (s *stubChannel) messages() []channels.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]channels.Message{}, s.sent...)
}

// --------------------------------------------------------------------------
// Artifacts
// --------------------------------------------------------------------------

type memArtifacts struct {
	mu    sync.Mutex
	files map[string][]byte
}

func (m *memArtifacts) WriteArtifact(name string, data []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.files == nil {
		m.files = map[string][]byte{}
	}
	m.files[name] = data
	return "mem/" + name, nil
}

func (m *memArtifacts) has(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.files[name]
	return ok
}

// testConfig is the default config with one stub channel and a fast loop.
func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Channels = []config.ChannelConfig{{Name: "chat", Platform: "stub"}}
	cfg.Poll.Interval = 5 * time.Millisecond
	cfg.Target.LoginWait = 20 * time.Millisecond
	return cfg
}
