package session

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/hazyhaar/authwatch/internal/storage"
	"github.com/hazyhaar/authwatch/snapshot"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakePage is a Page backed by storage.Memory. Selectors listed in present
// resolve immediately; any other selector blocks until ctx ends.
type fakePage struct {
	*storage.Memory

	mu        sync.Mutex
	calls     []string // navigate, cookies, <area>, indexedDB
	hangDB    bool     // ReplaceStores blocks until ctx ends
	navErr    error
	navigated []string
	reloads   int
	present   map[string]bool
	clicked   []string
	jar       []snapshot.Cookie
	cookieErr error
	html      string
}

func newFakePage(present ...string) *fakePage {
	p := &fakePage{Memory: storage.NewMemory(), present: map[string]bool{}, html: "<html></html>"}
	for _, s := range present {
		p.present[s] = true
	}
	return p
}

func (p *fakePage) Navigate(ctx context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.navErr != nil {
		return p.navErr
	}
	p.navigated = append(p.navigated, url)
	p.calls = append(p.calls, "navigate")
	return nil
}

func (p *fakePage) called(step string) {
	p.mu.Lock()
	p.calls = append(p.calls, step)
	p.mu.Unlock()
}

func (p *fakePage) ReplaceArea(ctx context.Context, area storage.Area, data map[string]string) error {
	p.called(string(area))
	return p.Memory.ReplaceArea(ctx, area, data)
}

func (p *fakePage) ReplaceStores(ctx context.Context, db string, stores map[string][]json.RawMessage) error {
	p.called("indexedDB")
	if p.hangDB {
		<-ctx.Done()
		return ctx.Err()
	}
	return p.Memory.ReplaceStores(ctx, db, stores)
}

func (p *fakePage) Reload(ctx context.Context) error {
	p.mu.Lock()
	p.reloads++
	p.mu.Unlock()
	return nil
}

func (p *fakePage) WaitElement(ctx context.Context, selector string) error {
	p.mu.Lock()
	ok := p.present[selector]
	p.mu.Unlock()
	if ok {
		return nil
	}
	<-ctx.Done()
	return ctx.Err()
}

func (p *fakePage) Click(ctx context.Context, selector string) error {
	if err := p.WaitElement(ctx, selector); err != nil {
		return err
	}
	p.mu.Lock()
	p.clicked = append(p.clicked, selector)
	p.mu.Unlock()
	return nil
}

func (p *fakePage) HTML(ctx context.Context) (string, error) { return p.html, nil }

func (p *fakePage) Screenshot(ctx context.Context) ([]byte, error) {
	return []byte("\x89PNG fake"), nil
}

func (p *fakePage) Cookies(ctx context.Context) ([]snapshot.Cookie, error) {
	if p.cookieErr != nil {
		return nil, p.cookieErr
	}
	return append([]snapshot.Cookie(nil), p.jar...), nil
}

func (p *fakePage) SetCookies(ctx context.Context, cookies []snapshot.Cookie) error {
	p.called("cookies")
	if p.cookieErr != nil {
		return p.cookieErr
	}
	p.jar = append(p.jar, cookies...)
	return nil
}

// memArtifacts records artifacts in memory.
type memArtifacts struct {
	files map[string][]byte
}

func (m *memArtifacts) WriteArtifact(name string, data []byte) (string, error) {
	if m.files == nil {
		m.files = map[string][]byte{}
	}
	m.files[name] = data
	return "mem://" + name, nil
}

var errBoom = errors.New("boom")
