// Package maintenance runs the environment's periodic background jobs
// on a cron scheduler. The one job shipped today pre-aggregates
// thread-tree usage per root thread, so dashboards polling usage for a
// deep delegation tree read a cached figure instead of triggering a
// recursive walk on every request. The cache is advisory: callers that
// need exact, up-to-the-message numbers still hit the store directly.
package maintenance

import (
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/promptobjects/core/internal/store"
)

// Runner owns the cron scheduler and the rollup cache.
type Runner struct {
	store *store.Store
	cron  *cron.Cron

	mu         sync.RWMutex
	rollups    map[string]store.UsageTotals
	computedAt time.Time
}

// New creates a Runner refreshing on schedule (cron spec, e.g.
// "@every 5m"). Start must be called to begin.
func New(st *store.Store, schedule string) (*Runner, error) {
	r := &Runner{store: st, cron: cron.New(), rollups: map[string]store.UsageTotals{}}
	if schedule == "" {
		schedule = "@every 5m"
	}
	if _, err := r.cron.AddFunc(schedule, r.Refresh); err != nil {
		return nil, err
	}
	return r, nil
}

// Start begins the schedule and computes an initial rollup.
func (r *Runner) Start() {
	r.Refresh()
	r.cron.Start()
}

// Stop halts the scheduler; a refresh already running completes.
func (r *Runner) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
}

// Refresh recomputes the per-root usage rollup. Roots are aggregated
// concurrently; the store's WAL mode serves the parallel readers.
func (r *Runner) Refresh() {
	sessions, err := r.store.ListAllSessions("")
	if err != nil {
		slog.Warn("usage rollup refresh failed", "error", err)
		return
	}
	totals := make(map[string]store.UsageTotals)
	var totalsMu sync.Mutex
	var g errgroup.Group
	g.SetLimit(4)
	for _, sess := range sessions {
		if sess.ParentSessionID != "" {
			continue
		}
		g.Go(func() error {
			t, err := r.store.ThreadTreeUsage(sess.ID)
			if err != nil {
				slog.Warn("usage rollup failed for root", "session", sess.ID, "error", err)
				return nil
			}
			totalsMu.Lock()
			totals[sess.ID] = t
			totalsMu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	r.mu.Lock()
	r.rollups = totals
	r.computedAt = time.Now()
	r.mu.Unlock()
	slog.Debug("usage rollup refreshed", "roots", len(totals))
}

// Snapshot returns the cached per-root totals and when they were
// computed.
func (r *Runner) Snapshot() (map[string]store.UsageTotals, time.Time) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]store.UsageTotals, len(r.rollups))
	for k, v := range r.rollups {
		out[k] = v
	}
	return out, r.computedAt
}
