// Package reconcile watches a document's catalog status until it leaves
// processing. It only reads the listing; status is owned by the pipeline.
package reconcile

import (
	"context"
	"errors"
	"strings"
	"time"

	"docuchat-backend/internal/shared/telemetry"
)

// DefaultInterval is the fixed polling period.
const DefaultInterval = 2 * time.Second

const statusProcessing = "processing"

// State is where a watch is in its lifecycle.
type State string

const (
	StateIdle      State = "idle"
	StateWatching  State = "watching"
	StateConverged State = "converged"
	StateTimedOut  State = "timed_out"
	StateCancelled State = "cancelled"
)

// Entry is one row of the owner's listing.
type Entry struct {
	ID     string
	Name   string
	Status string
}

// Lister fetches the owner's full listing.
type Lister interface {
	List(ctx context.Context) ([]Entry, error)
}

// ListerFunc adapts a function to Lister.
type ListerFunc func(ctx context.Context) ([]Entry, error)

func (f ListerFunc) List(ctx context.Context) ([]Entry, error) { return f(ctx) }

// Target names the document to watch. ID is preferred; Name matches the first
// entry with that display name and is ambiguous when names repeat.
type Target struct {
	ID   string
	Name string
}

func (t Target) matches(e Entry) bool {
	if t.ID != "" {
		return e.ID == t.ID
	}
	return t.Name != "" && e.Name == t.Name
}

func (t Target) key() string {
	if t.ID != "" {
		return t.ID
	}
	return t.Name
}

// Options tunes a Watcher.
type Options struct {
	Interval time.Duration
	// MaxAttempts caps the number of polls. Zero polls until cancelled.
	MaxAttempts int
	// OnPoll, when set, is called after every poll with the watched entry or
	// nil when it was not in the listing.
	OnPoll func(attempt int, entry *Entry)
}

// Result is the final state of a watch.
type Result struct {
	State State
	Entry Entry
	Polls int
}

// Watcher polls a Lister at a fixed interval.
type Watcher struct {
	lister Lister
	opts   Options
}

func NewWatcher(lister Lister, opts Options) *Watcher {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.MaxAttempts < 0 {
		opts.MaxAttempts = 0
	}
	return &Watcher{lister: lister, opts: opts}
}

// Watch blocks until the target's status is no longer processing, the attempt
// cap is reached, or ctx is done. Cancellation is reported as StateCancelled
// rather than as an error. Listing errors are logged and polling continues.
func (w *Watcher) Watch(ctx context.Context, target Target) (Result, error) {
	if strings.TrimSpace(target.key()) == "" {
		return Result{State: StateIdle}, errors.New("reconcile: target needs an id or a name")
	}

	ticker := time.NewTicker(w.opts.Interval)
	defer ticker.Stop()

	res := Result{State: StateWatching}
	for {
		select {
		case <-ctx.Done():
			res.State = StateCancelled
			return res, nil
		case <-ticker.C:
		}

		res.Polls++
		entry, found, err := w.poll(ctx, target)
		if err != nil {
			if ctx.Err() != nil {
				res.State = StateCancelled
				return res, nil
			}
			telemetry.Warn("reconcile.poll.failed", map[string]any{
				"target":  target.key(),
				"attempt": res.Polls,
				"error":   err,
			})
		}
		if w.opts.OnPoll != nil {
			if found {
				w.opts.OnPoll(res.Polls, &entry)
			} else {
				w.opts.OnPoll(res.Polls, nil)
			}
		}
		if found {
			res.Entry = entry
			if entry.Status != statusProcessing {
				res.State = StateConverged
				return res, nil
			}
		}
		if w.opts.MaxAttempts > 0 && res.Polls >= w.opts.MaxAttempts {
			res.State = StateTimedOut
			return res, nil
		}
	}
}

func (w *Watcher) poll(ctx context.Context, target Target) (Entry, bool, error) {
	entries, err := w.lister.List(ctx)
	if err != nil {
		return Entry{}, false, err
	}
	for _, e := range entries {
		if target.matches(e) {
			return e, true, nil
		}
	}
	return Entry{}, false, nil
}
