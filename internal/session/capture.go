// CLAUDE:SUMMARY One-shot interactive capture state machine producing a validated snapshot.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/authwatch/internal/storage"
	"github.com/hazyhaar/authwatch/snapshot"
)

// CaptureState is the position of a capture in its lifecycle.
type CaptureState int

const (
	Idle CaptureState = iota
	AwaitingLogin
	VerifyingLogin
	Capturing
	Done
	Failed
)

func (s CaptureState) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitingLogin:
		return "awaiting login"
	case VerifyingLogin:
		return "verifying login"
	case Capturing:
		return "capturing"
	case Done:
		return "done"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("CaptureState(%d)", int(s))
}

// CaptureConfig configures a Capturer.
type CaptureConfig struct {
	Origin        string
	LoginSelector string
	Databases     []string

	// LoginWait bounds the login marker probe. Default: 5s.
	LoginWait time.Duration

	Confirmer Confirmer
	Codec     *storage.Codec
	Logger    *slog.Logger
}

// Capturer extracts the authenticated state from an interactive tab.
// A Capturer runs once.
type Capturer struct {
	cfg   CaptureConfig
	mu    sync.Mutex
	state CaptureState
}

// NewCapturer creates a Capturer in the Idle state.
func NewCapturer(cfg CaptureConfig) *Capturer {
	if cfg.LoginWait <= 0 {
		cfg.LoginWait = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Codec == nil {
		cfg.Codec = storage.NewCodec(cfg.Logger)
	}
	return &Capturer{cfg: cfg}
}

// State returns the current lifecycle state.
func (c *Capturer) State() CaptureState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Capturer) enter(s CaptureState) {
	c.mu.Lock()
	prev := c.state
	c.state = s
	c.mu.Unlock()
	c.cfg.Logger.Info("session: capture state", "from", prev, "to", s)
}

func (c *Capturer) fail(stage CaptureState, err error) error {
	c.enter(Failed)
	return &CaptureError{Stage: stage, Cause: err}
}

// Capture navigates page to the origin, waits for the operator, checks the
// login marker and reads every storage domain. It returns exactly one
// complete snapshot or an error, never a partial state.
func (c *Capturer) Capture(ctx context.Context, page Page) (*snapshot.State, error) {
	if c.State() != Idle {
		return nil, fmt.Errorf("session: capture already ran (state %s)", c.State())
	}
	log := c.cfg.Logger

	if err := page.Navigate(ctx, c.cfg.Origin); err != nil {
		return nil, c.fail(Idle, err)
	}

	c.enter(AwaitingLogin)
	if c.cfg.Confirmer == nil {
		return nil, c.fail(AwaitingLogin, errors.New("no confirmer configured"))
	}
	if err := c.cfg.Confirmer.Confirm(ctx); err != nil {
		return nil, c.fail(AwaitingLogin, err)
	}

	c.enter(VerifyingLogin)
	probe, cancel := context.WithTimeout(ctx, c.cfg.LoginWait)
	err := page.WaitElement(probe, c.cfg.LoginSelector)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return nil, c.fail(VerifyingLogin, ctx.Err())
		}
		log.Warn("session: login marker absent", "selector", c.cfg.LoginSelector, "error", err)
		return nil, c.fail(VerifyingLogin, ErrLoginNotConfirmed)
	}

	c.enter(Capturing)
	st, err := c.read(ctx, page)
	if err != nil {
		return nil, c.fail(Capturing, err)
	}

	c.enter(Done)
	log.Info("session: captured",
		"id", st.ID,
		"local", len(st.LocalStorage),
		"session", len(st.SessionStorage),
		"databases", len(st.Databases),
		"records", st.Records(),
		"cookies", len(st.Cookies))
	return st, nil
}

func (c *Capturer) read(ctx context.Context, page Page) (*snapshot.State, error) {
	codec := c.cfg.Codec
	st := snapshot.New(c.cfg.Origin)

	var err error
	if st.LocalStorage, err = codec.SerializeKV(ctx, page, storage.Local); err != nil {
		return nil, err
	}
	if st.SessionStorage, err = codec.SerializeKV(ctx, page, storage.Session); err != nil {
		return nil, err
	}
	for _, name := range c.cfg.Databases {
		db, err := codec.SerializeDB(ctx, page, name)
		if err != nil {
			return nil, err
		}
		st.Databases[name] = db
	}
	cookies, err := page.Cookies(ctx)
	if err != nil {
		return nil, err
	}
	if cookies != nil {
		st.Cookies = cookies
	}

	if err := st.Validate(); err != nil {
		return nil, err
	}
	return st, nil
}
