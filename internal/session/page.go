// CLAUDE:SUMMARY Page capability interface shared by capture, injection and verification.
// Package session drives the three authentication phases: interactive
// capture of a logged-in state, replay into a fresh tab, and verification
// that the replay produced a logged-in page.
package session

import (
	"context"

	"github.com/hazyhaar/authwatch/internal/storage"
	"github.com/hazyhaar/authwatch/snapshot"
)

// Page is the set of tab capabilities the session phases use.
// browser.Tab implements it.
type Page interface {
	Navigate(ctx context.Context, url string) error
	Reload(ctx context.Context) error
	WaitElement(ctx context.Context, selector string) error
	Click(ctx context.Context, selector string) error
	HTML(ctx context.Context) (string, error)
	Screenshot(ctx context.Context) ([]byte, error)

	Cookies(ctx context.Context) ([]snapshot.Cookie, error)
	SetCookies(ctx context.Context, cookies []snapshot.Cookie) error

	storage.KVStore
	storage.ObjectDB
}
