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
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// freePort returns a TCP port that is currently available.
func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("find free port: %v", err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	l.Close()
	return port
}

type stubChannel struct {
	name      string
	platform  string
	closeCh   chan struct{}
	inbound   chan Message
	onMessage func(Message)
	closed    int32
}

func newStub(name string, onMessage func(Message)) *stubChannel {
	return &stubChannel{
		name:      name,
		platform:  "stub",
		closeCh:   make(chan struct{}),
		inbound:   make(chan Message, 100),
		onMessage: onMessage,
	}
}

func (s *stubChannel) Listen(ctx context.Context) <-chan Message {
	ch := make(chan Message)
	go func() {
		defer close(ch)
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.closeCh:
				return
			case msg, ok := <-s.inbound:
				if !ok {
					return
				}
				select {
				case ch <- msg:
				case <-ctx.Done():
					return
				case <-s.closeCh:
					return
				}
			}
		}
	}()
	return ch
}

func (s *stubChannel) Send(_ context.Context, msg Message) error {
	if atomic.LoadInt32(&s.closed) == 1 {
		return &ErrSendFailed{Channel: s.name, Platform: s.platform,
			Cause: fmt.Errorf("closed")}
	}
	if s.onMessage != nil {
		s.onMessage(msg)
	}
	return nil
}

func (s *stubChannel) Status() ChannelStatus {
	return ChannelStatus{Connected: true, Platform: s.platform}
}

func (s *stubChannel) Close() error {
	if atomic.CompareAndSwapInt32(&s.closed, 0, 1) {
		close(s.closeCh)
	}
	return nil
}

func factoryFor(ch Channel) ChannelFactory {
	return func(name string, config json.RawMessage) (Channel, error) {
		return ch, nil
	}
}

func noopHandler(ctx context.Context, msg Message) ([]Message, error) { return nil, nil }

// ---------------------------------------------------------------------------
// Dispatcher
// ---------------------------------------------------------------------------

func TestDispatcher_Open_UnknownPlatform(t *testing.T) {
	d := NewDispatcher(noopHandler, WithLogger(quietLogger()))
	defer d.Close()

	err := d.Open("x", "carrier-pigeon", nil)
	var nf *ErrNoPlatformFactory
	if !errors.As(err, &nf) || nf.Platform != "carrier-pigeon" {
		t.Fatalf("expected ErrNoPlatformFactory, got %v", err)
	}
}

func TestDispatcher_Open_FactoryError(t *testing.T) {
	d := NewDispatcher(noopHandler, WithLogger(quietLogger()))
	defer d.Close()
	d.RegisterPlatform("telegram", TelegramFactory(quietLogger()))

	if err := d.Open("tg", "telegram", json.RawMessage(`{}`)); err == nil {
		t.Fatal("expected error for missing bot token")
	}
	if len(d.Names()) != 0 {
		t.Fatalf("failed channel must not be registered: %v", d.Names())
	}
}

func TestDispatcher_Open_ReplacesSameName(t *testing.T) {
	first := newStub("a", nil)
	second := newStub("a", nil)
	calls := 0
	d := NewDispatcher(noopHandler, WithLogger(quietLogger()))
	d.RegisterPlatform("stub", func(name string, config json.RawMessage) (Channel, error) {
		calls++
		if calls == 1 {
			return first, nil
		}
		return second, nil
	})

	if err := d.Open("a", "stub", nil); err != nil {
		t.Fatal(err)
	}
	if err := d.Open("a", "stub", nil); err != nil {
		t.Fatal(err)
	}
	if atomic.LoadInt32(&first.closed) != 1 {
		t.Fatal("first channel should be closed when replaced")
	}
	if names := d.Names(); len(names) != 1 || names[0] != "a" {
		t.Fatalf("names: %v", names)
	}
	d.Close()
	if atomic.LoadInt32(&second.closed) != 1 {
		t.Fatal("Close should close every channel")
	}
}

func TestDispatcher_Send_NotFound(t *testing.T) {
	d := NewDispatcher(noopHandler, WithLogger(quietLogger()))
	defer d.Close()

	err := d.Deliver(context.Background(), Recipient{Channel: "nope", ID: "1"}, "hi")
	var nf *ErrChannelNotFound
	if !errors.As(err, &nf) || nf.Channel != "nope" {
		t.Fatalf("expected ErrChannelNotFound, got %v", err)
	}
}

func TestDispatcher_Deliver(t *testing.T) {
	var mu sync.Mutex
	var sent []Message
	ch := newStub("tg", func(m Message) {
		mu.Lock()
		sent = append(sent, m)
		mu.Unlock()
	})

	d := NewDispatcher(noopHandler, WithLogger(quietLogger()))
	defer d.Close()
	d.RegisterPlatform("stub", factoryFor(ch))
	if err := d.Open("tg", "stub", nil); err != nil {
		t.Fatal(err)
	}

	if err := d.Deliver(context.Background(), Recipient{Channel: "tg", ID: "42"}, "new item"); err != nil {
		t.Fatal(err)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(sent) != 1 {
		t.Fatalf("expected 1 message, got %d", len(sent))
	}
	m := sent[0]
	if m.RecipientID != "42" || m.Text != "new item" || m.Direction != Outbound || m.Platform != "stub" {
		t.Fatalf("unexpected message: %+v", m)
	}
}

func TestDispatcher_Status(t *testing.T) {
	d := NewDispatcher(noopHandler, WithLogger(quietLogger()))
	defer d.Close()
	d.RegisterPlatform("stub", factoryFor(newStub("s", nil)))
	d.Open("s", "stub", nil)

	st, ok := d.Status("s")
	if !ok || !st.Connected {
		t.Fatalf("status: %+v %v", st, ok)
	}
	if _, ok := d.Status("missing"); ok {
		t.Fatal("missing channel should report ok=false")
	}
}

func TestDispatcher_InboundHandler(t *testing.T) {
	handled := make(chan Message, 1)
	replied := make(chan Message, 1)

	ch := newStub("wh1", func(msg Message) { replied <- msg })
	d := NewDispatcher(func(ctx context.Context, msg Message) ([]Message, error) {
		handled <- msg
		return []Message{{Text: "reply", RecipientID: msg.SenderID}}, nil
	}, WithLogger(quietLogger()))
	d.RegisterPlatform("webhook", factoryFor(ch))
	d.Open("wh1", "webhook", nil)
	defer d.Close()

	ch.inbound <- Message{SenderID: "user1", Text: "hello"}

	select {
	case msg := <-handled:
		if msg.Text != "hello" {
			t.Fatalf("expected handler to receive 'hello', got %q", msg.Text)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("handler not called")
	}
	select {
	case resp := <-replied:
		if resp.Text != "reply" || resp.Direction != Outbound || resp.ChannelName != "wh1" {
			t.Fatalf("unexpected response: %+v", resp)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("response not sent")
	}
}

func TestDispatcher_Close_WaitsForGoroutines(t *testing.T) {
	d := NewDispatcher(noopHandler, WithLogger(quietLogger()))
	d.RegisterPlatform("webhook", factoryFor(newStub("wh1", nil)))
	d.Open("wh1", "webhook", nil)

	done := make(chan struct{})
	go func() {
		d.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Close() hung: goroutine leak")
	}
}

func TestDispatcher_MaxConcurrent(t *testing.T) {
	var concurrent, maxSeen int32
	handler := func(ctx context.Context, msg Message) ([]Message, error) {
		cur := atomic.AddInt32(&concurrent, 1)
		defer atomic.AddInt32(&concurrent, -1)
		for {
			old := atomic.LoadInt32(&maxSeen)
			if cur <= old || atomic.CompareAndSwapInt32(&maxSeen, old, cur) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		return nil, nil
	}

	a, b := newStub("a", nil), newStub("b", nil)
	d := NewDispatcher(handler, WithMaxConcurrent(1), WithLogger(quietLogger()))
	d.RegisterPlatform("a", factoryFor(a))
	d.RegisterPlatform("b", factoryFor(b))
	d.Open("a", "a", nil)
	d.Open("b", "b", nil)

	for i := 0; i < 5; i++ {
		a.inbound <- Message{Text: fmt.Sprintf("a%d", i)}
		b.inbound <- Message{Text: fmt.Sprintf("b%d", i)}
	}
	time.Sleep(400 * time.Millisecond)
	d.Close()

	if m := atomic.LoadInt32(&maxSeen); m > 1 {
		t.Fatalf("concurrent handlers exceeded limit: %d > 1", m)
	}
}

// ---------------------------------------------------------------------------
// Telegram
// ---------------------------------------------------------------------------

// fakeBotAPI serves getUpdates (one batch, then empty) and records sendMessage.
type fakeBotAPI struct {
	mu      sync.Mutex
	served  bool
	offsets []string
	sent    []tgSendMessage
	failOn  string // chat_id answered with ok=false
}

func (f *fakeBotAPI) handler(token string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/bot"+token+"/getUpdates", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.offsets = append(f.offsets, r.URL.Query().Get("offset"))
		first := !f.served
		f.served = true
		f.mu.Unlock()

		if first {
			fmt.Fprint(w, `{"ok":true,"result":[
				{"update_id":10,"message":{"message_id":1,"date":1700000000,"text":"/start","chat":{"id":4242},"from":{"id":7,"username":"alice"}}},
				{"update_id":11,"message":{"message_id":2,"date":1700000001,"chat":{"id":4242}}}
			]}`)
			return
		}
		// Emulate a short long-poll.
		select {
		case <-r.Context().Done():
		case <-time.After(50 * time.Millisecond):
		}
		fmt.Fprint(w, `{"ok":true,"result":[]}`)
	})
	mux.HandleFunc("/bot"+token+"/sendMessage", func(w http.ResponseWriter, r *http.Request) {
		var m tgSendMessage
		json.NewDecoder(r.Body).Decode(&m)
		f.mu.Lock()
		f.sent = append(f.sent, m)
		fail := m.ChatID == f.failOn
		f.mu.Unlock()
		if fail {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"ok":false,"description":"Bad Request: chat not found"}`)
			return
		}
		fmt.Fprint(w, `{"ok":true,"result":{"message_id":99}}`)
	})
	return mux
}

func newTestTelegram(t *testing.T, api *fakeBotAPI) Channel {
	t.Helper()
	srv := httptest.NewServer(api.handler("T0K"))
	t.Cleanup(srv.Close)

	cfg := json.RawMessage(fmt.Sprintf(`{"bot_token":"T0K","api_base":%q,"poll_timeout":1}`, srv.URL))
	ch, err := TelegramFactory(quietLogger())("tg", cfg)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ch.Close() })
	return ch
}

func TestTelegramFactory_RequiresBotToken(t *testing.T) {
	_, err := TelegramFactory(nil)("test", json.RawMessage(`{}`))
	if err == nil {
		t.Fatal("expected error for missing bot_token")
	}
}

func TestTelegramFactory_Defaults(t *testing.T) {
	ch, err := TelegramFactory(nil)("test", json.RawMessage(`{"bot_token":"123:ABC"}`))
	if err != nil {
		t.Fatal(err)
	}
	defer ch.Close()
	tg := ch.(*telegramChannel)
	if tg.config.APIBase != "https://api.telegram.org" || tg.config.ParseMode != "HTML" || tg.config.PollTimeout != 30 {
		t.Fatalf("defaults not applied: %+v", tg.config)
	}
	if st := ch.Status(); st.Platform != "telegram" {
		t.Fatalf("expected platform telegram, got %q", st.Platform)
	}
}

func TestTelegram_Listen(t *testing.T) {
	api := &fakeBotAPI{}
	ch := newTestTelegram(t, api)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	msgs := ch.Listen(ctx)

	select {
	case msg := <-msgs:
		if msg.Text != "/start" || msg.SenderID != "4242" || msg.Direction != Inbound {
			t.Fatalf("unexpected message: %+v", msg)
		}
		if msg.Metadata["username"] != "alice" {
			t.Fatalf("username not carried: %+v", msg.Metadata)
		}
		if msg.ChannelName != "tg" || msg.Platform != "telegram" {
			t.Fatalf("channel fields: %+v", msg)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no message received")
	}

	// The text-less update is dropped; the next poll acknowledges both.
	deadline := time.After(3 * time.Second)
	for {
		api.mu.Lock()
		offsets := append([]string(nil), api.offsets...)
		api.mu.Unlock()
		if len(offsets) >= 2 {
			if offsets[1] != "12" {
				t.Fatalf("expected offset 12 on second poll, got %q", offsets[1])
			}
			break
		}
		select {
		case <-deadline:
			t.Fatalf("second poll not issued: %v", offsets)
		case <-time.After(20 * time.Millisecond):
		}
	}
	if !ch.Status().Connected {
		t.Fatal("channel should be connected after a successful poll")
	}
}

func TestTelegram_Listen_ClosedOnClose(t *testing.T) {
	ch := newTestTelegram(t, &fakeBotAPI{})
	msgs := ch.Listen(context.Background())
	<-msgs // first update
	ch.Close()

	select {
	case _, ok := <-msgs:
		for ok {
			_, ok = <-msgs
		}
	case <-time.After(3 * time.Second):
		t.Fatal("listen channel not closed after Close")
	}
}

func TestTelegram_Send(t *testing.T) {
	api := &fakeBotAPI{}
	ch := newTestTelegram(t, api)

	err := ch.Send(context.Background(), Message{RecipientID: "4242", Text: "<b>new</b>"})
	if err != nil {
		t.Fatal(err)
	}
	api.mu.Lock()
	defer api.mu.Unlock()
	if len(api.sent) != 1 {
		t.Fatalf("expected 1 sendMessage, got %d", len(api.sent))
	}
	m := api.sent[0]
	if m.ChatID != "4242" || m.Text != "<b>new</b>" || m.ParseMode != "HTML" {
		t.Fatalf("unexpected payload: %+v", m)
	}
}

func TestTelegram_Send_APIError(t *testing.T) {
	api := &fakeBotAPI{failOn: "13"}
	ch := newTestTelegram(t, api)

	err := ch.Send(context.Background(), Message{RecipientID: "13", Text: "x"})
	var sf *ErrSendFailed
	if !errors.As(err, &sf) || !strings.Contains(err.Error(), "chat not found") {
		t.Fatalf("expected ErrSendFailed with API description, got %v", err)
	}
}

func TestTelegram_Send_Closed(t *testing.T) {
	ch := newTestTelegram(t, &fakeBotAPI{})
	ch.Close()
	if err := ch.Send(context.Background(), Message{RecipientID: "1", Text: "x"}); err == nil {
		t.Fatal("expected error on closed channel")
	}
}

// ---------------------------------------------------------------------------
// Webhook: HMAC
// ---------------------------------------------------------------------------

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestWebhook_VerifyHMAC(t *testing.T) {
	wh := &webhookChannel{config: WebhookConfig{Secret: "s3cret"}}
	body := []byte(`{"text":"x"}`)
	good := sign("s3cret", body)

	if !wh.verifyHMAC(body, good) {
		t.Fatal("valid prefixed signature rejected")
	}
	if !wh.verifyHMAC(body, strings.TrimPrefix(good, "sha256=")) {
		t.Fatal("valid bare signature rejected")
	}
	if wh.verifyHMAC(body, "") {
		t.Fatal("missing signature accepted")
	}
	if wh.verifyHMAC(body, "sha256=00") {
		t.Fatal("wrong signature accepted")
	}
	if !(&webhookChannel{}).verifyHMAC(body, "") {
		t.Fatal("no secret configured should accept")
	}
}

// ---------------------------------------------------------------------------
// Webhook: Listen
// ---------------------------------------------------------------------------

func startWebhook(t *testing.T, extra string) (Channel, <-chan Message, string) {
	t.Helper()
	port := freePort(t)
	cfg := json.RawMessage(fmt.Sprintf(`{"listen_addr":"127.0.0.1:%d","path":"/hook"%s}`, port, extra))
	ch, err := WebhookFactory()("test-wh", cfg)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ch.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	msgs := ch.Listen(ctx)
	time.Sleep(100 * time.Millisecond)
	return ch, msgs, fmt.Sprintf("http://127.0.0.1:%d/hook", port)
}

func TestWebhook_Listen_CallbackBecomesSender(t *testing.T) {
	_, msgs, url := startWebhook(t, "")

	body := `{"callback_url":"https://hooks.example/in","text":"/start"}`
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}

	select {
	case msg := <-msgs:
		if msg.SenderID != "https://hooks.example/in" {
			t.Fatalf("expected callback as sender, got %q", msg.SenderID)
		}
		if msg.ChannelName != "test-wh" || msg.Direction != Inbound || msg.Text != "/start" || msg.ID == "" {
			t.Fatalf("unexpected message: %+v", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
	}
}

func TestWebhook_Listen_RejectsNonPost(t *testing.T) {
	_, _, url := startWebhook(t, "")
	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", resp.StatusCode)
	}
}

func TestWebhook_Listen_RejectsBadCallback(t *testing.T) {
	_, msgs, url := startWebhook(t, "")

	for _, body := range []string{
		`{"text":"no callback"}`,
		`{"callback_url":"http://127.0.0.1:9/in"}`,
		`{"callback_url":"ftp://hooks.example/in"}`,
		`not json`,
	} {
		resp, err := http.Post(url, "application/json", strings.NewReader(body))
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", body, resp.StatusCode)
		}
	}
	select {
	case msg := <-msgs:
		t.Fatalf("rejected request produced a message: %+v", msg)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestWebhook_Listen_HMAC(t *testing.T) {
	_, msgs, url := startWebhook(t, `,"secret":"test-secret-key"`)

	resp, err := http.Post(url, "application/json",
		strings.NewReader(`{"callback_url":"https://hooks.example/in","text":"unsigned"}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}

	body := []byte(`{"callback_url":"https://hooks.example/in","text":"signed"}`)
	req, _ := http.NewRequest(http.MethodPost, url, strings.NewReader(string(body)))
	req.Header.Set("X-Signature-256", sign("test-secret-key", body))
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}
	select {
	case msg := <-msgs:
		if msg.Text != "signed" {
			t.Fatalf("expected 'signed', got %q", msg.Text)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
	}
}

// ---------------------------------------------------------------------------
// Webhook: Send
// ---------------------------------------------------------------------------

func TestWebhook_Send_ToRecipient(t *testing.T) {
	got := make(chan *http.Request, 1)
	bodies := make(chan []byte, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		got <- r
		bodies <- b
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	wh := newWebhookChannel("wh", WebhookConfig{Secret: "k", AllowPrivate: true})
	if err := wh.Send(context.Background(), Message{RecipientID: srv.URL, Text: "item"}); err != nil {
		t.Fatal(err)
	}
	r := <-got
	b := <-bodies
	if r.Header.Get("X-Signature-256") != sign("k", b) {
		t.Fatal("outbound payload not signed")
	}
	var n notification
	if err := json.Unmarshal(b, &n); err != nil || n.Text != "item" || n.Channel != "wh" || n.SentAt.IsZero() {
		t.Fatalf("payload: %s (%v)", b, err)
	}
}

func TestWebhook_Send_SSRFBlocked(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	wh := newWebhookChannel("wh", WebhookConfig{})
	for _, target := range []string{srv.URL, "http://10.0.0.1:8080/hook", "file:///etc/passwd"} {
		if err := wh.Send(context.Background(), Message{RecipientID: target}); err == nil {
			t.Fatalf("expected rejection for %s", target)
		}
	}
}

func TestWebhook_Send_CallbackStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	wh := newWebhookChannel("wh", WebhookConfig{AllowPrivate: true})
	err := wh.Send(context.Background(), Message{RecipientID: srv.URL})
	var sf *ErrSendFailed
	if !errors.As(err, &sf) {
		t.Fatalf("expected ErrSendFailed, got %v", err)
	}
}

func TestWebhook_Send_NoTarget(t *testing.T) {
	wh := newWebhookChannel("wh", WebhookConfig{})
	if err := wh.Send(context.Background(), Message{Text: "response"}); err != nil {
		t.Fatalf("Send with no target should succeed silently: %v", err)
	}
}

func TestWebhook_Send_Closed(t *testing.T) {
	wh := newWebhookChannel("wh", WebhookConfig{})
	wh.Close()
	if err := wh.Send(context.Background(), Message{RecipientID: "http://x"}); err == nil {
		t.Fatal("expected error on closed channel")
	}
}

func TestWebhookFactory_Validation(t *testing.T) {
	if _, err := WebhookFactory()("test", json.RawMessage(`{}`)); err == nil {
		t.Fatal("expected error for missing listen_addr")
	}
	ch, err := WebhookFactory()("test", json.RawMessage(`{"listen_addr":":0"}`))
	if err != nil {
		t.Fatal(err)
	}
	defer ch.Close()
	if p := ch.(*webhookChannel).config.Path; p != "/" {
		t.Fatalf("expected default path '/', got %q", p)
	}
}

// ---------------------------------------------------------------------------
// Misc
// ---------------------------------------------------------------------------

func TestErrors(t *testing.T) {
	if e := (&ErrChannelNotFound{Channel: "foo"}); !strings.Contains(e.Error(), "foo") {
		t.Fatal("expected channel name in error")
	}
	if e := (&ErrNoPlatformFactory{Channel: "foo", Platform: "bar"}); !strings.Contains(e.Error(), "bar") {
		t.Fatal("expected platform in error")
	}
	cause := fmt.Errorf("boom")
	e := &ErrSendFailed{Channel: "foo", Platform: "bar", Cause: cause}
	if !strings.Contains(e.Error(), "boom") || !errors.Is(e, cause) {
		t.Fatal("ErrSendFailed should carry and unwrap its cause")
	}
}

func TestDirection_String(t *testing.T) {
	if Inbound.String() != "inbound" || Outbound.String() != "outbound" {
		t.Fatalf("got %q / %q", Inbound, Outbound)
	}
}

func TestReplyAddress(t *testing.T) {
	r := ReplyAddress(Message{ChannelName: "tg", SenderID: "42"})
	if r != (Recipient{Channel: "tg", ID: "42"}) || r.String() != "tg:42" {
		t.Fatalf("got %+v", r)
	}
}

func TestValidateURL(t *testing.T) {
	tests := []struct {
		url          string
		allowPrivate bool
		wantErr      error
	}{
		{"https://203.0.113.7/hook", false, nil},
		{"http://127.0.0.1/hook", false, ErrSSRF},
		{"http://192.168.1.2/hook", false, ErrSSRF},
		{"http://127.0.0.1/hook", true, nil},
		{"ftp://203.0.113.7/", false, ErrUnsafeScheme},
		{"gopher://x", true, ErrUnsafeScheme},
	}
	for _, tt := range tests {
		err := validateURL(tt.url, tt.allowPrivate)
		if !errors.Is(err, tt.wantErr) && !(err == nil && tt.wantErr == nil) {
			t.Errorf("validateURL(%q, %v) = %v, want %v", tt.url, tt.allowPrivate, err, tt.wantErr)
		}
	}
}
