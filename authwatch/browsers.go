// CLAUDE:SUMMARY Adapts the Rod browser manager to the Browser and Tab interfaces the watcher drives.
package authwatch

import (
	"context"
	"log/slog"

	"github.com/hazyhaar/authwatch/internal/browser"
	"github.com/hazyhaar/authwatch/internal/config"
	"github.com/hazyhaar/authwatch/internal/session"
)

// Browser is one Chrome process used for one phase.
type Browser interface {
	Start(ctx context.Context) error
	OpenTab(ctx context.Context) (Tab, error)
	// Due reports whether the process should be recycled, and why.
	Due() (bool, string)
	Recycle(ctx context.Context) error
	Close() error
}

// Tab is a page the phases drive.
type Tab interface {
	session.Page
	Close() error
}

// BrowserFactory builds the browser for a phase.
type BrowserFactory func(mode browser.Mode) Browser

// RodBrowsers returns the factory backed by Rod, configured from cfg.
// Only the headless monitor browser gets recycling and resource blocking;
// the interactive one is driven by a person.
func RodBrowsers(cfg config.BrowserConfig, logger *slog.Logger) BrowserFactory {
	return func(mode browser.Mode) Browser {
		bc := browser.Config{
			Mode:      mode,
			RemoteURL: cfg.Remote,
			Bin:       cfg.Bin,
			Logger:    logger,
		}
		if mode == browser.Headless {
			bc.MemoryLimit = cfg.MemoryLimit
			bc.RecycleInterval = cfg.RecycleInterval
			bc.ResourceBlocking = cfg.ResourceBlocking
		}
		return &rodBrowser{Manager: browser.NewManager(bc)}
	}
}

type rodBrowser struct {
	*browser.Manager
}

func (b *rodBrowser) OpenTab(ctx context.Context) (Tab, error) {
	t, err := browser.OpenTab(ctx, b.Manager)
	if err != nil {
		return nil, err
	}
	return t, nil
}
