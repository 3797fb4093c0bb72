// CLAUDE:SUMMARY Monitoring loop: ticks, failure streaks, critical screenshots and browser recycling.
package authwatch

import (
	"context"
	"fmt"
	"time"

	"github.com/hazyhaar/authwatch/internal/admin"
	"github.com/hazyhaar/authwatch/internal/fanout"
	"github.com/hazyhaar/authwatch/snapshot"
)

const criticalArtifact = "monitoring_critical_error"

// poll runs ticks back to back, one interval apart, until ctx ends. The
// first tick runs immediately. A failed tick is logged and retried on the
// next interval; after FailureThreshold failures in a row a screenshot is
// saved once for the streak.
func (w *Watcher) poll(ctx context.Context, b Browser, tab Tab, st *snapshot.State) error {
	defer func() {
		if tab != nil {
			tab.Close()
		}
	}()

	w.setPhase(PhaseMonitoring)
	w.logger.Info("authwatch: monitoring", "interval", w.cfg.Poll.Interval)

	failures := 0
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}

		err := w.tick(ctx, tab)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			failures++
			w.logger.Warn("authwatch: tick failed", "error", err, "consecutive", failures)
			w.update(func(s *admin.Status) {
				s.LastError = err.Error()
				s.Failures = failures
			})
			if failures == w.cfg.Poll.FailureThreshold {
				w.critical(ctx, tab)
			}
		} else if failures > 0 {
			failures = 0
			w.update(func(s *admin.Status) { s.Failures = 0 })
		}

		if due, reason := b.Due(); due {
			// recycle always closes the old tab; next is nil on failure.
			next, err := w.recycle(ctx, b, tab, st, reason)
			tab = next
			if err != nil {
				return err
			}
			failures = 0
		}

		timer.Reset(w.cfg.Poll.Interval)
	}
}

// tick runs one iteration: activate queued subscribers, extract the list,
// diff it against what was seen, present and broadcast the new items.
func (w *Watcher) tick(ctx context.Context, tab Tab) error {
	start := time.Now()
	if n := w.fan.Drain(); n > 0 {
		w.logger.Info("authwatch: subscribers activated", "added", n)
	}

	w.logger.Debug("authwatch: checking list")
	items, err := w.extractor.ExtractPage(ctx, tab)
	if err != nil {
		w.metrics.ObserveTick(time.Since(start), 0, 0, 0, 0, err)
		return err
	}

	res := w.detector.Observe(items)
	w.presenter.Present(res)

	for _, it := range res.New {
		rep := w.fan.Broadcast(ctx, fanout.Format(it))
		if rep.Failed > 0 {
			w.logger.Warn("authwatch: notification partly failed", "key", it.Key,
				"delivered", rep.Delivered, "failed", rep.Failed)
		}
		if ctx.Err() != nil {
			break
		}
	}

	subs := len(w.fan.Subscribers())
	w.metrics.ObserveTick(time.Since(start), len(items), len(res.New), res.Seen, subs, nil)
	primed := w.detector.Primed()
	w.update(func(s *admin.Status) {
		s.Ticks++
		s.LastTick = start
		s.Seen = res.Seen
		s.Primed = primed
	})
	return nil
}

// critical saves a screenshot of the failing page. Errors are logged only.
func (w *Watcher) critical(ctx context.Context, tab Tab) {
	sctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	png, err := tab.Screenshot(sctx)
	if err != nil {
		w.logger.Error("authwatch: critical screenshot failed", "error", err)
		return
	}
	path, err := w.artifacts.WriteArtifact(criticalArtifact+".png", png)
	if err != nil {
		w.logger.Error("authwatch: critical screenshot not written", "error", err)
		return
	}
	w.logger.Error("authwatch: monitoring keeps failing", "screenshot", path,
		"threshold", w.cfg.Poll.FailureThreshold)
}

// recycle restarts Chrome and replays st into a fresh tab. The seen set
// survives, so nothing is re-announced.
func (w *Watcher) recycle(ctx context.Context, b Browser, old Tab, st *snapshot.State, reason string) (Tab, error) {
	w.logger.Info("authwatch: recycling browser", "reason", reason)
	old.Close()
	if err := b.Recycle(ctx); err != nil {
		return nil, fmt.Errorf("authwatch: recycle: %w", err)
	}
	w.metrics.Recycles.Inc()

	tab, err := w.replay(ctx, b, st)
	if err != nil {
		return nil, fmt.Errorf("authwatch: replay after recycle: %w", err)
	}
	w.setPhase(PhaseMonitoring)
	return tab, nil
}
