// CLAUDE:SUMMARY Orchestrates capture, replay, verification and monitoring, and exposes status for the admin surface.
// Package authwatch runs the whole pipeline: interactive capture of a
// logged-in browser state, replay into a headless browser, login
// verification, then a polling loop that reports newly listed items to
// subscribers.
package authwatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/hazyhaar/authwatch/internal/admin"
	"github.com/hazyhaar/authwatch/internal/browser"
	"github.com/hazyhaar/authwatch/internal/config"
	"github.com/hazyhaar/authwatch/internal/detect"
	"github.com/hazyhaar/authwatch/internal/fanout"
	"github.com/hazyhaar/authwatch/internal/listing"
	"github.com/hazyhaar/authwatch/internal/metrics"
	"github.com/hazyhaar/authwatch/internal/session"
	"github.com/hazyhaar/authwatch/internal/storage"
	"github.com/hazyhaar/authwatch/internal/store"
	"github.com/hazyhaar/authwatch/channels"
	"github.com/hazyhaar/authwatch/snapshot"
)

// Phases reported by Status.
const (
	PhaseIdle       = "idle"
	PhaseCapturing  = "capturing"
	PhaseInjecting  = "injecting"
	PhaseVerifying  = "verifying"
	PhaseMonitoring = "monitoring"
	PhaseStopped    = "stopped"
	PhaseFailed     = "failed"
)

// Options wires a Watcher. Only Config is required.
type Options struct {
	Config *config.Config

	// Browsers builds one browser per phase. Default: RodBrowsers.
	Browsers BrowserFactory
	// Confirmer tells capture the operator has logged in. Default: a
	// LineConfirmer on stdin/stdout.
	Confirmer session.Confirmer
	// Platforms maps platform names to channel factories. Default:
	// telegram and webhook.
	Platforms map[string]channels.ChannelFactory
	// Store persists captured snapshots. Nil disables persistence.
	Store   *store.Store
	Metrics *metrics.Metrics
	// Artifacts receives diagnostic screenshots and markup. Default: the
	// configured artifact directory.
	Artifacts session.ArtifactWriter
	// Out receives the operator presentation. Default: stdout.
	Out io.Writer

	Logger *slog.Logger
}

// Watcher drives capture, replay and monitoring for one target.
type Watcher struct {
	cfg       *config.Config
	browsers  BrowserFactory
	confirmer session.Confirmer
	store     *store.Store
	metrics   *metrics.Metrics
	artifacts session.ArtifactWriter
	logger    *slog.Logger

	codec      *storage.Codec
	injector   *session.Injector
	verifier   *session.Verifier
	extractor  *listing.Extractor
	detector   *detect.Detector
	presenter  *Presenter
	dispatcher *channels.Dispatcher
	fan        *fanout.Fanout

	mu     sync.Mutex
	status admin.Status
}

// New builds a Watcher. Channels are opened by Run.
func New(opts Options) (*Watcher, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, errors.New("authwatch: nil config")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	w := &Watcher{
		cfg:       cfg,
		browsers:  opts.Browsers,
		confirmer: opts.Confirmer,
		store:     opts.Store,
		metrics:   opts.Metrics,
		artifacts: opts.Artifacts,
		logger:    logger,
	}
	if w.browsers == nil {
		w.browsers = RodBrowsers(cfg.Browser, logger)
	}
	if w.confirmer == nil {
		w.confirmer = &session.LineConfirmer{
			In:     os.Stdin,
			Out:    os.Stdout,
			Prompt: "Log in in the browser window, then press ENTER here.",
		}
	}
	if w.metrics == nil {
		w.metrics = metrics.New()
	}
	if w.artifacts == nil {
		w.artifacts = session.DirArtifacts{Dir: cfg.Verify.ArtifactDir}
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}

	w.codec = storage.NewCodec(logger)
	w.injector = session.NewInjector(w.codec, logger)
	w.injector.StepTimeout = cfg.Inject.StepTimeout
	w.verifier = session.NewVerifier(session.VerifyConfig{
		Mode:            session.VerifyMode(cfg.Verify.Mode),
		Route:           cfg.Route(),
		ReadySelector:   cfg.Target.ReadySelector,
		Timeout:         cfg.Verify.Timeout,
		DismissSelector: cfg.Verify.DismissSelector,
		DismissTimeout:  cfg.Verify.DismissTimeout,
		ArtifactName:    cfg.Verify.ArtifactName,
		SuccessName:     cfg.Verify.SuccessScreenshot,
		Artifacts:       w.artifacts,
		Logger:          logger,
	})
	w.extractor = listing.NewExtractor(cfg.Listing, logger)
	w.detector = detect.NewDetector()
	w.presenter = NewPresenter(out)

	w.dispatcher = channels.NewDispatcher(w.handleInbound, channels.WithLogger(logger))
	platforms := opts.Platforms
	if platforms == nil {
		platforms = map[string]channels.ChannelFactory{
			"telegram": channels.TelegramFactory(logger),
			"webhook":  channels.WebhookFactory(),
		}
	}
	for name, f := range platforms {
		w.dispatcher.RegisterPlatform(name, f)
	}
	w.fan = fanout.New(fanout.Config{
		Deliverer: w.dispatcher,
		Timeout:   cfg.Poll.DeliveryTimeout,
		Rate:      cfg.Poll.SendRate,
		Burst:     cfg.Poll.SendBurst,
		OnResult: func(_ channels.Recipient, err error) {
			w.metrics.ObserveDelivery(err)
		},
		Logger: logger,
	})

	w.status = admin.Status{Origin: cfg.Target.Origin, Phase: PhaseIdle}
	return w, nil
}

// Metrics returns the watcher's collectors.
func (w *Watcher) Metrics() *metrics.Metrics { return w.metrics }

// Run acquires a session state, from the store when reuse is set and one
// exists, otherwise by interactive capture, then monitors until ctx is
// cancelled. Cancellation is not an error.
func (w *Watcher) Run(ctx context.Context, reuse bool) error {
	if err := w.OpenChannels(); err != nil {
		return err
	}
	defer w.dispatcher.Close()

	err := w.run(ctx, reuse)
	if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		err = nil
	}
	if err != nil {
		w.setFailed(err)
		return err
	}
	w.setPhase(PhaseStopped)
	return nil
}

func (w *Watcher) run(ctx context.Context, reuse bool) error {
	var st *snapshot.State
	if reuse {
		var err error
		st, err = w.LoadSnapshot(ctx)
		switch {
		case err == nil:
			w.logger.Info("authwatch: reusing stored session", "snapshot", st.ID,
				"captured_at", time.UnixMilli(st.CapturedAt))
		case errors.Is(err, store.ErrNotFound):
			w.logger.Info("authwatch: no stored session, capturing")
		default:
			return err
		}
	}
	if st == nil {
		var err error
		if st, err = w.Capture(ctx); err != nil {
			return err
		}
		if err := w.Persist(ctx, st); err != nil {
			w.logger.Warn("authwatch: snapshot not persisted", "error", err)
		}
	}
	return w.Monitor(ctx, st)
}

// OpenChannels starts every configured messaging channel.
func (w *Watcher) OpenChannels() error {
	for _, ch := range w.cfg.Channels {
		raw, err := w.cfg.RawConfig(ch)
		if err != nil {
			return err
		}
		if err := w.dispatcher.Open(ch.Name, ch.Platform, raw); err != nil {
			return fmt.Errorf("authwatch: open channel %s: %w", ch.Name, err)
		}
	}
	return nil
}

// LoadSnapshot returns the latest stored state for the target origin.
func (w *Watcher) LoadSnapshot(ctx context.Context) (*snapshot.State, error) {
	if w.store == nil {
		return nil, store.ErrNotFound
	}
	return w.store.Latest(ctx, w.cfg.Target.Origin)
}

// Capture opens an interactive browser, waits for the operator to log in
// and returns the captured state.
func (w *Watcher) Capture(ctx context.Context) (*snapshot.State, error) {
	w.setPhase(PhaseCapturing)
	b := w.browsers(browser.Interactive)
	if err := b.Start(ctx); err != nil {
		return nil, fmt.Errorf("authwatch: start interactive browser: %w", err)
	}
	defer b.Close()

	tab, err := b.OpenTab(ctx)
	if err != nil {
		return nil, fmt.Errorf("authwatch: open capture tab: %w", err)
	}
	defer tab.Close()

	c := session.NewCapturer(session.CaptureConfig{
		Origin:        w.cfg.Target.Origin,
		LoginSelector: w.cfg.Target.LoginSelector,
		Databases:     w.cfg.Storage.Databases,
		LoginWait:     w.cfg.Target.LoginWait,
		Confirmer:     w.confirmer,
		Codec:         w.codec,
		Logger:        w.logger,
	})
	st, err := c.Capture(ctx, tab)
	if err != nil {
		return nil, err
	}

	attrs := []any{"snapshot", st.ID, "cookies", len(st.Cookies),
		"local", len(st.LocalStorage), "session", len(st.SessionStorage)}
	if exp, ok := st.TokenExpiry(); ok {
		attrs = append(attrs, "token_expires", exp)
	}
	w.logger.Info("authwatch: session captured", attrs...)
	return st, nil
}

// Persist stores st and prunes older snapshots of the same origin. It is
// a no-op without a store; prune failures are logged only.
func (w *Watcher) Persist(ctx context.Context, st *snapshot.State) error {
	if w.store == nil {
		return nil
	}
	if err := w.store.Save(ctx, st); err != nil {
		return err
	}
	if n, err := w.store.Prune(ctx, st.Origin, w.cfg.Storage.Keep); err != nil {
		w.logger.Warn("authwatch: prune failed", "error", err)
	} else if n > 0 {
		w.logger.Info("authwatch: pruned snapshots", "removed", n)
	}
	return nil
}

// Monitor replays st into a headless browser, verifies the login and
// polls the list until ctx is cancelled or the session cannot be
// re-established after a browser recycle.
func (w *Watcher) Monitor(ctx context.Context, st *snapshot.State) error {
	b := w.browsers(browser.Headless)
	if err := b.Start(ctx); err != nil {
		return fmt.Errorf("authwatch: start headless browser: %w", err)
	}
	defer b.Close()

	tab, err := w.replay(ctx, b, st)
	if err != nil {
		return err
	}
	w.update(func(s *admin.Status) { s.SnapshotID = st.ID })
	return w.poll(ctx, b, tab, st)
}

// replay opens a tab, injects st and verifies the login. The tab is
// closed on failure.
func (w *Watcher) replay(ctx context.Context, b Browser, st *snapshot.State) (Tab, error) {
	tab, err := b.OpenTab(ctx)
	if err != nil {
		return nil, fmt.Errorf("authwatch: open monitor tab: %w", err)
	}

	w.setPhase(PhaseInjecting)
	rep, err := w.injector.Inject(ctx, tab, st)
	if err != nil {
		tab.Close()
		return nil, err
	}
	if !rep.OK() {
		w.logger.Warn("authwatch: partial injection", "errors", len(rep.Errors))
	}

	w.setPhase(PhaseVerifying)
	if err := w.verifier.Verify(ctx, tab); err != nil {
		tab.Close()
		return nil, err
	}
	w.logger.Info("authwatch: login verified", "route", w.cfg.Route())
	return tab, nil
}

// handleInbound registers every sender of a text message. /start also
// gets the greeting.
func (w *Watcher) handleInbound(_ context.Context, msg channels.Message) ([]channels.Message, error) {
	text := strings.TrimSpace(msg.Text)
	if text == "" || msg.SenderID == "" {
		return nil, nil
	}
	to := channels.ReplyAddress(msg)
	w.fan.Register(to)
	w.logger.Info("authwatch: registration queued", "recipient", to.String())

	if strings.HasPrefix(text, "/start") {
		return []channels.Message{{
			RecipientID: msg.SenderID,
			ReplyTo:     msg.ID,
			Text:        w.cfg.Greeting,
			Timestamp:   time.Now(),
		}}, nil
	}
	return nil, nil
}

// Status implements admin.Source.
func (w *Watcher) Status() admin.Status {
	w.mu.Lock()
	st := w.status
	w.mu.Unlock()
	st.Subscribers = len(w.fan.Subscribers())
	st.Channels = w.dispatcher.Names()
	return st
}

// Subscribers implements admin.Source.
func (w *Watcher) Subscribers() []string {
	subs := w.fan.Subscribers()
	out := make([]string, len(subs))
	for i, r := range subs {
		out[i] = r.String()
	}
	return out
}

func (w *Watcher) update(fn func(*admin.Status)) {
	w.mu.Lock()
	fn(&w.status)
	w.mu.Unlock()
}

func (w *Watcher) setPhase(p string) {
	w.update(func(s *admin.Status) { s.Phase = p })
}

func (w *Watcher) setFailed(err error) {
	w.update(func(s *admin.Status) {
		s.Phase = PhaseFailed
		s.LastError = err.Error()
	})
}
