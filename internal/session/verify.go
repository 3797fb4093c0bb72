// CLAUDE:SUMMARY Headless login verification with failure artifacts and best-effort overlay dismissal.
package session

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// VerifyMode selects how the replayed page is re-rendered before checking.
type VerifyMode string

const (
	// VerifyReload reloads the current document.
	VerifyReload VerifyMode = "reload"
	// VerifyNavigate loads Route.
	VerifyNavigate VerifyMode = "navigate"
)

// VerifyConfig configures a Verifier.
type VerifyConfig struct {
	Mode  VerifyMode
	Route string // used by VerifyNavigate

	ReadySelector string
	// Timeout bounds the wait for ReadySelector. Default: 15s.
	Timeout time.Duration

	// DismissSelector is clicked once after success when set. Failure to
	// click is only logged.
	DismissSelector string
	DismissTimeout  time.Duration // default 5s

	// ArtifactName is the base name of the failure artifacts. Default:
	// "headless_error_page".
	ArtifactName string
	// SuccessName, when set, saves a screenshot under that base name after
	// a successful verification.
	SuccessName string
	Artifacts   ArtifactWriter

	Logger *slog.Logger
}

func (c *VerifyConfig) defaults() {
	if c.Mode == "" {
		c.Mode = VerifyReload
	}
	if c.Timeout <= 0 {
		c.Timeout = 15 * time.Second
	}
	if c.DismissTimeout <= 0 {
		c.DismissTimeout = 5 * time.Second
	}
	if c.ArtifactName == "" {
		c.ArtifactName = "headless_error_page"
	}
	if c.Artifacts == nil {
		c.Artifacts = DirArtifacts{Dir: "."}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Verifier confirms a replayed session reached the logged-in state.
type Verifier struct {
	cfg VerifyConfig
}

// NewVerifier creates a Verifier.
func NewVerifier(cfg VerifyConfig) *Verifier {
	cfg.defaults()
	return &Verifier{cfg: cfg}
}

// Verify re-renders page and waits for the ready marker. On timeout it
// writes a screenshot and the rendered markup, then returns a
// *VerificationError wrapping ErrVerificationTimeout. Cancellation of ctx
// is returned as is, without artifacts.
func (v *Verifier) Verify(ctx context.Context, page Page) error {
	cfg := v.cfg
	log := cfg.Logger

	var err error
	switch cfg.Mode {
	case VerifyNavigate:
		err = page.Navigate(ctx, cfg.Route)
	default:
		err = page.Reload(ctx)
	}
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &VerificationError{Selector: cfg.ReadySelector, Cause: err}
	}

	wctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	err = page.WaitElement(wctx, cfg.ReadySelector)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn("session: ready marker not found", "selector", cfg.ReadySelector, "timeout", cfg.Timeout)
		return &VerificationError{
			Selector:  cfg.ReadySelector,
			Artifacts: v.dumpFailure(ctx, page),
			Cause:     errors.Join(ErrVerificationTimeout, err),
		}
	}
	log.Info("session: logged in", "selector", cfg.ReadySelector)

	if cfg.SuccessName != "" {
		if img, err := page.Screenshot(ctx); err != nil {
			log.Warn("session: success screenshot", "error", err)
		} else if path, err := cfg.Artifacts.WriteArtifact(cfg.SuccessName+".png", img); err != nil {
			log.Warn("session: success screenshot", "error", err)
		} else {
			log.Info("session: success screenshot saved", "path", path)
		}
	}

	if cfg.DismissSelector != "" {
		dctx, cancel := context.WithTimeout(ctx, cfg.DismissTimeout)
		if err := page.Click(dctx, cfg.DismissSelector); err != nil {
			log.Warn("session: dismiss click skipped", "selector", cfg.DismissSelector, "error", err)
		} else {
			log.Info("session: dismiss clicked", "selector", cfg.DismissSelector)
		}
		cancel()
	}
	return nil
}

// dumpFailure saves <name>.png and <name>.html. Each artifact is best-effort.
func (v *Verifier) dumpFailure(ctx context.Context, page Page) []string {
	cfg := v.cfg
	var paths []string

	if img, err := page.Screenshot(ctx); err != nil {
		cfg.Logger.Warn("session: failure screenshot", "error", err)
	} else if path, err := cfg.Artifacts.WriteArtifact(cfg.ArtifactName+".png", img); err != nil {
		cfg.Logger.Warn("session: failure screenshot", "error", err)
	} else {
		paths = append(paths, path)
	}

	if html, err := page.HTML(ctx); err != nil {
		cfg.Logger.Warn("session: failure markup", "error", err)
	} else if path, err := cfg.Artifacts.WriteArtifact(cfg.ArtifactName+".html", []byte(html)); err != nil {
		cfg.Logger.Warn("session: failure markup", "error", err)
	} else {
		paths = append(paths, path)
	}

	if len(paths) > 0 {
		cfg.Logger.Info("session: failure artifacts saved", "paths", paths)
	}
	return paths
}
