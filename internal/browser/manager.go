// CLAUDE:SUMMARY Manages the Chrome lifecycle for capture and monitoring: launch, connect, recycle on age or heap size.
// Package browser launches Chrome through Rod and exposes tabs with the
// narrow capabilities the session and storage packages consume.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
)

// Mode selects how Chrome is launched.
type Mode int

const (
	// Headless runs without a window; tabs get the stealth patches.
	Headless Mode = iota
	// Interactive shows a window an operator can log in through.
	Interactive
)

func (m Mode) String() string {
	if m == Interactive {
		return "interactive"
	}
	return "headless"
}

// Config configures the browser manager.
type Config struct {
	Mode Mode

	// RemoteURL is the WebSocket URL of an external Chrome instance.
	// Empty = launch a local Chrome via launcher.
	RemoteURL string

	// Bin overrides the Chrome binary. Empty lets the launcher find or download one.
	Bin string

	// MemoryLimit in bytes. Zero disables heap-based recycling.
	MemoryLimit int64

	// RecycleInterval is the maximum lifetime of a Chrome process. Zero disables.
	RecycleInterval time.Duration

	// ResourceBlocking lists resource types to block (images, fonts, media, stylesheets).
	ResourceBlocking []string

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Manager owns one Chrome process at a time.
type Manager struct {
	cfg     Config
	mu      sync.RWMutex
	browser *rod.Browser
	lnch    *launcher.Launcher
	startAt time.Time
	closed  bool
}

// NewManager creates a browser Manager. Call Start to launch Chrome.
func NewManager(cfg Config) *Manager {
	cfg.defaults()
	return &Manager{cfg: cfg}
}

// Start launches Chrome (or connects to a remote instance).
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("browser: manager is closed")
	}
	b, err := m.launch(ctx)
	if err != nil {
		return err
	}
	m.browser = b
	m.startAt = time.Now()
	return nil
}

// Browser returns the current Rod browser handle. Thread-safe.
func (m *Manager) Browser() *rod.Browser {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.browser
}

// Due reports whether the running Chrome should be recycled, and why.
// The caller decides when: tabs die with the process.
func (m *Manager) Due() (bool, string) {
	m.mu.RLock()
	b, startAt := m.browser, m.startAt
	m.mu.RUnlock()
	if b == nil {
		return false, ""
	}

	if m.cfg.RecycleInterval > 0 && time.Since(startAt) > m.cfg.RecycleInterval {
		return true, "interval"
	}
	if m.cfg.MemoryLimit > 0 {
		used, err := jsHeapUsage(b)
		if err != nil {
			m.cfg.Logger.Debug("browser: heap check failed", "error", err)
			return false, ""
		}
		if used > m.cfg.MemoryLimit {
			m.cfg.Logger.Info("browser: memory limit exceeded",
				"used", used, "limit", m.cfg.MemoryLimit)
			return true, "memory"
		}
	}
	return false, ""
}

// Recycle kills Chrome and starts a fresh one. Open tabs become invalid.
func (m *Manager) Recycle(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("browser: manager is closed")
	}

	log := m.cfg.Logger
	log.Info("browser: recycling", "uptime", time.Since(m.startAt))
	m.cleanup()

	b, err := m.launch(ctx)
	if err != nil {
		return fmt.Errorf("browser: relaunch: %w", err)
	}
	m.browser = b
	m.startAt = time.Now()
	log.Info("browser: recycled")
	return nil
}

// Close shuts Chrome down. The manager cannot be restarted.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.cleanup()
	return nil
}

func (m *Manager) launch(ctx context.Context) (*rod.Browser, error) {
	log := m.cfg.Logger

	var wsURL string
	if m.cfg.RemoteURL != "" {
		wsURL = m.cfg.RemoteURL
		log.Info("browser: connecting to remote", "url", wsURL)
	} else {
		l := launcher.New().Context(ctx).Headless(m.cfg.Mode == Headless)
		if m.cfg.Bin != "" {
			l = l.Bin(m.cfg.Bin)
		}
		// Anti-detection flags.
		l = l.Set("disable-blink-features", "AutomationControlled")

		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("browser: launch: %w", err)
		}
		wsURL = u
		m.lnch = l
		log.Info("browser: launched local chrome", "url", wsURL, "mode", m.cfg.Mode)
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("browser: connect: %w", err)
	}
	return b, nil
}

func (m *Manager) cleanup() {
	if m.browser != nil {
		if err := m.browser.Close(); err != nil {
			m.cfg.Logger.Debug("browser: close", "error", err)
		}
		m.browser = nil
	}
	if m.lnch != nil {
		m.lnch.Cleanup()
		m.lnch = nil
	}
}

// jsHeapUsage queries the JS heap of the first page as a proxy for the process.
func jsHeapUsage(b *rod.Browser) (int64, error) {
	pages, err := b.Pages()
	if err != nil || len(pages) == 0 {
		return 0, fmt.Errorf("no pages for heap check")
	}
	res, err := pages[0].Eval(`() => {
		if (performance.memory) {
			return performance.memory.usedJSHeapSize;
		}
		return 0;
	}`)
	if err != nil {
		return 0, err
	}
	return int64(res.Value.Int()), nil
}
