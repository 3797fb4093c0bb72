// CLAUDE:SUMMARY Rod tab adapter: navigation, waits, screenshots, cookies and the Web Storage/IndexedDB JS bridges.
package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/hazyhaar/authwatch/internal/storage"
	"github.com/hazyhaar/authwatch/snapshot"
)

// Tab wraps a Rod page. It satisfies storage.KVStore, storage.ObjectDB and
// the page capabilities of the session package.
type Tab struct {
	Page    *rod.Page
	browser *rod.Browser
	router  *rod.HijackRouter
	logger  *slog.Logger
}

var (
	_ storage.KVStore  = (*Tab)(nil)
	_ storage.ObjectDB = (*Tab)(nil)
)

// OpenTab creates a blank tab on the manager's current browser. Headless
// tabs get the stealth patches applied before any navigation.
func OpenTab(ctx context.Context, mgr *Manager) (*Tab, error) {
	b := mgr.Browser()
	if b == nil {
		return nil, fmt.Errorf("browser: no active browser")
	}

	var page *rod.Page
	var err error
	if mgr.cfg.Mode == Headless {
		page, err = stealth.Page(b.Context(ctx))
	} else {
		page, err = b.Context(ctx).Page(proto.TargetCreateTarget{URL: ""})
	}
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}
	// Detach from ctx: the page outlives the call that opened it.
	page = page.Context(context.Background())

	tab := &Tab{Page: page, browser: b, logger: mgr.cfg.Logger}
	if len(mgr.cfg.ResourceBlocking) > 0 {
		blocked, ignored := blockedTypes(mgr.cfg.ResourceBlocking)
		if len(ignored) > 0 {
			tab.logger.Warn("browser: resource types not blockable, ignored", "types", ignored)
		}
		tab.router = blockResources(page, blocked)
	}
	return tab, nil
}

// Navigate loads url and waits for the load event.
func (t *Tab) Navigate(ctx context.Context, url string) error {
	p := t.Page.Context(ctx)
	if err := p.Navigate(url); err != nil {
		return fmt.Errorf("browser: navigate %s: %w", url, err)
	}
	if err := p.WaitLoad(); err != nil {
		t.logger.Warn("browser: wait load", "url", url, "error", err)
	}
	return nil
}

// Reload reloads the current document.
func (t *Tab) Reload(ctx context.Context) error {
	p := t.Page.Context(ctx)
	if err := p.Reload(); err != nil {
		return fmt.Errorf("browser: reload: %w", err)
	}
	if err := p.WaitLoad(); err != nil {
		t.logger.Warn("browser: wait load after reload", "error", err)
	}
	return nil
}

// WaitElement blocks until selector matches or ctx ends.
func (t *Tab) WaitElement(ctx context.Context, selector string) error {
	if _, err := t.Page.Context(ctx).Element(selector); err != nil {
		return fmt.Errorf("browser: wait %q: %w", selector, err)
	}
	return nil
}

// Click waits for selector then clicks it once.
func (t *Tab) Click(ctx context.Context, selector string) error {
	el, err := t.Page.Context(ctx).Element(selector)
	if err != nil {
		return fmt.Errorf("browser: find %q: %w", selector, err)
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("browser: click %q: %w", selector, err)
	}
	return nil
}

// HTML returns the rendered markup of the document.
func (t *Tab) HTML(ctx context.Context) (string, error) {
	html, err := t.Page.Context(ctx).HTML()
	if err != nil {
		return "", fmt.Errorf("browser: html: %w", err)
	}
	return html, nil
}

// Screenshot captures the full page as PNG.
func (t *Tab) Screenshot(ctx context.Context) ([]byte, error) {
	img, err := t.Page.Context(ctx).Screenshot(true, nil)
	if err != nil {
		return nil, fmt.Errorf("browser: screenshot: %w", err)
	}
	return img, nil
}

// Cookies returns every cookie in the browser's jar.
func (t *Tab) Cookies(ctx context.Context) ([]snapshot.Cookie, error) {
	raw, err := t.browser.Context(ctx).GetCookies()
	if err != nil {
		return nil, fmt.Errorf("browser: get cookies: %w", err)
	}
	out := make([]snapshot.Cookie, 0, len(raw))
	for _, c := range raw {
		out = append(out, snapshot.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  float64(c.Expires),
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: string(c.SameSite),
		})
	}
	return out, nil
}

// SetCookies installs cookies into the browser's jar.
func (t *Tab) SetCookies(ctx context.Context, cookies []snapshot.Cookie) error {
	params := make([]*proto.NetworkCookieParam, 0, len(cookies))
	for _, c := range cookies {
		params = append(params, &proto.NetworkCookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  proto.TimeSinceEpoch(c.Expires),
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: proto.NetworkCookieSameSite(c.SameSite),
		})
	}
	if err := t.Page.Context(ctx).SetCookies(params); err != nil {
		return fmt.Errorf("browser: set cookies: %w", err)
	}
	return nil
}

// Close stops request interception and closes the tab.
func (t *Tab) Close() error {
	if t.router != nil {
		if err := t.router.Stop(); err != nil {
			t.logger.Debug("browser: stop hijack router", "error", err)
		}
		t.router = nil
	}
	if t.Page != nil {
		return t.Page.Close()
	}
	return nil
}

func (t *Tab) evalString(ctx context.Context, js string, args ...any) (string, error) {
	res, err := t.Page.Context(ctx).Eval(js, args...)
	if err != nil {
		return "", err
	}
	return res.Value.Str(), nil
}

const jsDumpArea = `(area) => {
	const s = window[area];
	const out = {};
	for (let i = 0; i < s.length; i++) {
		const k = s.key(i);
		out[k] = s.getItem(k);
	}
	return JSON.stringify(out);
}`

const jsReplaceArea = `(area, data) => {
	const s = window[area];
	s.clear();
	for (const [k, v] of Object.entries(JSON.parse(data))) {
		s.setItem(k, v);
	}
	return "ok";
}`

// DumpArea implements storage.KVStore.
func (t *Tab) DumpArea(ctx context.Context, area storage.Area) (string, error) {
	s, err := t.evalString(ctx, jsDumpArea, string(area))
	if err != nil {
		return "", fmt.Errorf("browser: dump %s: %w", area, err)
	}
	return s, nil
}

// ReplaceArea implements storage.KVStore.
func (t *Tab) ReplaceArea(ctx context.Context, area storage.Area, data map[string]string) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if _, err := t.evalString(ctx, jsReplaceArea, string(area), string(payload)); err != nil {
		return fmt.Errorf("browser: replace %s: %w", area, err)
	}
	return nil
}

// An upgradeneeded event means the database did not exist; the upgrade is
// aborted so probing never creates it.
const jsStoreNames = `(name) => new Promise((resolve, reject) => {
	let created = false;
	const req = indexedDB.open(name);
	req.onupgradeneeded = () => { created = true; req.transaction.abort(); };
	req.onerror = () => {
		if (created) { resolve("[]"); return; }
		reject(new Error("open " + name + ": " + req.error));
	};
	req.onsuccess = () => {
		const db = req.result;
		const names = Array.from(db.objectStoreNames);
		db.close();
		resolve(JSON.stringify(names));
	};
})`

// Transaction handlers are attached before any request is issued so a
// failing request always settles the promise.
const jsGetAll = `(name, store) => new Promise((resolve, reject) => {
	const req = indexedDB.open(name);
	req.onerror = () => reject(new Error("open " + name + ": " + req.error));
	req.onsuccess = () => {
		const db = req.result;
		let result = [];
		try {
			const tx = db.transaction(store, "readonly");
			tx.oncomplete = () => { db.close(); resolve(JSON.stringify(result)); };
			tx.onabort = () => { db.close(); reject(tx.error || new Error("transaction aborted")); };
			const get = tx.objectStore(store).getAll();
			get.onsuccess = () => { result = get.result; };
		} catch (e) {
			db.close();
			reject(e);
		}
	};
})`

// Every put runs in its own try block: out-of-line keys or a missing
// keyPath throw synchronously, and a rejected record must not stop the
// rest. Request errors are prevented from aborting the transaction. The
// promise resolves with {written, rejected: [{store, error}]}.
const jsReplaceStores = `(name, data) => new Promise((resolve, reject) => {
	const stores = JSON.parse(data);
	const names = Object.keys(stores);
	const out = { written: 0, rejected: [] };
	const refuse = (store, e) => {
		out.rejected.push({ store: store, error: String((e && (e.name + ": " + e.message)) || e) });
	};
	const req = indexedDB.open(name);
	req.onerror = () => reject(new Error("open " + name + ": " + req.error));
	req.onsuccess = () => {
		const db = req.result;
		if (names.length === 0) { db.close(); resolve(JSON.stringify(out)); return; }
		let tx;
		try {
			tx = db.transaction(names, "readwrite");
		} catch (e) {
			db.close();
			reject(e);
			return;
		}
		tx.oncomplete = () => { db.close(); resolve(JSON.stringify(out)); };
		tx.onabort = () => { db.close(); reject(tx.error || new Error("transaction aborted")); };
		tx.onerror = (ev) => { ev.preventDefault(); };
		for (const n of names) {
			let os;
			try {
				os = tx.objectStore(n);
				os.clear();
			} catch (e) {
				refuse(n, e);
				continue;
			}
			for (const rec of stores[n]) {
				try {
					const put = os.put(rec);
					put.onsuccess = () => { out.written++; };
					put.onerror = (ev) => { ev.preventDefault(); refuse(n, put.error); };
				} catch (e) {
					refuse(n, e);
				}
			}
		}
	};
})`

// replaceOutcome is what jsReplaceStores resolves with.
type replaceOutcome struct {
	Written  int `json:"written"`
	Rejected []struct {
		Store string `json:"store"`
		Error string `json:"error"`
	} `json:"rejected"`
}

// parseReplaceOutcome decodes the script result. Rejected records are
// reported as an error naming the first rejection; the accepted ones are
// committed regardless.
func parseReplaceOutcome(db, raw string) (replaceOutcome, error) {
	var out replaceOutcome
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return out, fmt.Errorf("browser: replace stores in %s: %w", db, err)
	}
	if n := len(out.Rejected); n > 0 {
		first := out.Rejected[0]
		return out, fmt.Errorf("browser: %s: %d record(s) rejected, %d written (first: %s: %s)",
			db, n, out.Written, first.Store, first.Error)
	}
	return out, nil
}

// StoreNames implements storage.ObjectDB.
func (t *Tab) StoreNames(ctx context.Context, db string) ([]string, error) {
	s, err := t.evalString(ctx, jsStoreNames, db)
	if err != nil {
		return nil, fmt.Errorf("browser: stores of %s: %w", db, err)
	}
	var names []string
	if err := json.Unmarshal([]byte(s), &names); err != nil {
		return nil, fmt.Errorf("browser: stores of %s: %w", db, err)
	}
	return names, nil
}

// GetAll implements storage.ObjectDB.
func (t *Tab) GetAll(ctx context.Context, db, store string) ([]json.RawMessage, error) {
	s, err := t.evalString(ctx, jsGetAll, db, store)
	if err != nil {
		return nil, fmt.Errorf("browser: getAll %s/%s: %w", db, store, err)
	}
	var recs []json.RawMessage
	if err := json.Unmarshal([]byte(s), &recs); err != nil {
		return nil, fmt.Errorf("browser: getAll %s/%s: %w", db, store, err)
	}
	return recs, nil
}

// ReplaceStores implements storage.ObjectDB.
func (t *Tab) ReplaceStores(ctx context.Context, db string, stores map[string][]json.RawMessage) error {
	payload, err := json.Marshal(stores)
	if err != nil {
		return err
	}
	raw, err := t.evalString(ctx, jsReplaceStores, db, string(payload))
	if err != nil {
		return fmt.Errorf("browser: replace stores in %s: %w", db, err)
	}
	out, err := parseReplaceOutcome(db, raw)
	if err != nil {
		return err
	}
	t.logger.Debug("browser: stores replaced", "db", db, "records", out.Written)
	return nil
}
