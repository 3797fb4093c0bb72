// CLAUDE:SUMMARY Replays a snapshot into a tab in fixed order with per-step timeouts and non-fatal step failures.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/hazyhaar/authwatch/internal/storage"
	"github.com/hazyhaar/authwatch/snapshot"
)

// InjectReport summarises a replay. Steps after navigation never abort the
// replay; their failures are collected here.
type InjectReport struct {
	Cookies int
	Written map[string][]string // database → stores rewritten
	Skipped map[string][]string // database → stores absent at the destination
	Errors  []error
}

// OK reports whether every step succeeded.
func (r *InjectReport) OK() bool { return len(r.Errors) == 0 }

// DefaultStepTimeout bounds each injection step unless overridden.
const DefaultStepTimeout = 15 * time.Second

// Injector replays a snapshot into a fresh tab.
type Injector struct {
	// StepTimeout bounds navigation and each restore step. A step that
	// runs out of time is recorded like any other failure.
	StepTimeout time.Duration

	codec  *storage.Codec
	logger *slog.Logger
}

// NewInjector creates an Injector. A nil codec uses a codec on logger.
func NewInjector(codec *storage.Codec, logger *slog.Logger) *Injector {
	if logger == nil {
		logger = slog.Default()
	}
	if codec == nil {
		codec = storage.NewCodec(logger)
	}
	return &Injector{StepTimeout: DefaultStepTimeout, codec: codec, logger: logger}
}

// step runs fn under StepTimeout.
func (in *Injector) step(ctx context.Context, fn func(context.Context) error) error {
	if in.StepTimeout <= 0 {
		return fn(ctx)
	}
	sctx, cancel := context.WithTimeout(ctx, in.StepTimeout)
	defer cancel()
	return fn(sctx)
}

// Inject navigates page to the snapshot's origin so storage writes land on
// the right origin, then restores cookies, both Web Storage areas and every
// database, in that order.
func (in *Injector) Inject(ctx context.Context, page Page, st *snapshot.State) (*InjectReport, error) {
	if err := st.Validate(); err != nil {
		return nil, fmt.Errorf("session: inject: %w", err)
	}
	err := in.step(ctx, func(ctx context.Context) error { return page.Navigate(ctx, st.Origin) })
	if err != nil {
		return nil, &InjectionError{Origin: st.Origin, Cause: err}
	}

	log := in.logger
	rep := &InjectReport{
		Written: map[string][]string{},
		Skipped: map[string][]string{},
	}
	record := func(step string, err error) {
		log.Warn("session: inject step failed", "step", step, "error", err)
		rep.Errors = append(rep.Errors, fmt.Errorf("%s: %w", step, err))
	}

	if len(st.Cookies) > 0 {
		err := in.step(ctx, func(ctx context.Context) error { return page.SetCookies(ctx, st.Cookies) })
		if err != nil {
			record("cookies", err)
		} else {
			rep.Cookies = len(st.Cookies)
		}
	}

	for _, kv := range []struct {
		area storage.Area
		data map[string]string
	}{
		{storage.Local, st.LocalStorage},
		{storage.Session, st.SessionStorage},
	} {
		err := in.step(ctx, func(ctx context.Context) error {
			return in.codec.RestoreKV(ctx, page, kv.area, kv.data)
		})
		if err != nil {
			record(string(kv.area), err)
		}
	}

	names := make([]string, 0, len(st.Databases))
	for name := range st.Databases {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		var res storage.Result
		err := in.step(ctx, func(ctx context.Context) error {
			var err error
			res, err = in.codec.RestoreDB(ctx, page, name, st.Databases[name])
			return err
		})
		if len(res.Skipped) > 0 {
			rep.Skipped[name] = res.Skipped
		}
		if err != nil {
			record("indexedDB "+name, err)
			continue
		}
		rep.Written[name] = res.Written
	}

	log.Info("session: injected",
		"id", st.ID,
		"origin", st.Origin,
		"cookies", rep.Cookies,
		"errors", len(rep.Errors))
	return rep, nil
}
