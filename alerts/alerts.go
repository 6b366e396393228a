/*
Package alerts detects compliance status changes and fans them out.

PURPOSE:
  The engine only computes summaries. Whether a traveler should hear about
  one depends on what they saw last time: moving from safe to warning is
  news, staying at warning for a week is not. The snapshot job hands each
  (previous, current) pair to a Dispatcher, which asks DetectTransition
  whether anything changed and notifies every registered Notifier.

DIRECTIONS:
  worsened:  status moved to a more severe band
  recovered: status moved to a less severe band (days expired)

DELIVERY:
  Push and email delivery live outside this service. LogNotifier writes a
  structured log line; other notifiers plug in through the Notifier
  interface.
*/
package alerts

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/warp/staycount/generic"
	"github.com/warp/staycount/metrics"
)

// Direction of a status change.
type Direction string

const (
	Worsened  Direction = "worsened"
	Recovered Direction = "recovered"
)

// Transition is one status change for one traveler and jurisdiction.
type Transition struct {
	Owner        generic.OwnerID
	Jurisdiction generic.JurisdictionCode
	From         generic.Status
	To           generic.Status
	Direction    Direction
	Summary      generic.Summary
}

func (t Transition) String() string {
	return fmt.Sprintf("%s %s: %s -> %s (%d/%d days)",
		t.Jurisdiction, t.Direction, t.From, t.To, t.Summary.DaysUsed, t.Summary.DaysAllowed)
}

// DetectTransition compares the previous summary (nil on first observation)
// with the current one. A first observation is compared against safe.
func DetectTransition(owner generic.OwnerID, prev *generic.Summary, cur generic.Summary) (Transition, bool) {
	from := generic.StatusSafe
	if prev != nil {
		from = prev.Status
	}
	if from == cur.Status {
		return Transition{}, false
	}

	dir := Worsened
	if cur.Status.Severity() < from.Severity() {
		dir = Recovered
	}
	return Transition{
		Owner:        owner,
		Jurisdiction: cur.Jurisdiction,
		From:         from,
		To:           cur.Status,
		Direction:    dir,
		Summary:      cur,
	}, true
}

// =============================================================================
// NOTIFIERS
// =============================================================================

// Notifier receives transitions. Implementations must be safe for
// concurrent use; the snapshot job dispatches from several goroutines.
type Notifier interface {
	Notify(ctx context.Context, t Transition) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, t Transition) error

func (f NotifierFunc) Notify(ctx context.Context, t Transition) error { return f(ctx, t) }

// LogNotifier logs every transition.
type LogNotifier struct {
	Logger zerolog.Logger
}

func (n LogNotifier) Notify(_ context.Context, t Transition) error {
	ev := n.Logger.Info()
	if t.Direction == Worsened && t.To.Severity() >= generic.StatusCritical.Severity() {
		ev = n.Logger.Warn()
	}
	ev.Str("owner", string(t.Owner)).
		Str("jurisdiction", string(t.Jurisdiction)).
		Str("from", string(t.From)).
		Str("to", string(t.To)).
		Str("direction", string(t.Direction)).
		Int("days_used", t.Summary.DaysUsed).
		Int("days_allowed", t.Summary.DaysAllowed).
		Msg("Compliance status changed")
	return nil
}

// =============================================================================
// DISPATCHER
// =============================================================================

// Dispatcher fans transitions out to every registered notifier.
type Dispatcher struct {
	mu        sync.RWMutex
	notifiers []Notifier
	logger    zerolog.Logger
}

func NewDispatcher(logger zerolog.Logger, notifiers ...Notifier) *Dispatcher {
	return &Dispatcher{
		notifiers: notifiers,
		logger:    logger.With().Str("component", "alerts").Logger(),
	}
}

// Register adds a notifier.
func (d *Dispatcher) Register(n Notifier) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.notifiers = append(d.notifiers, n)
}

// Observe detects a transition between prev and cur and dispatches it.
// Returns whether a transition was found.
func (d *Dispatcher) Observe(ctx context.Context, owner generic.OwnerID, prev *generic.Summary, cur generic.Summary) (bool, error) {
	t, changed := DetectTransition(owner, prev, cur)
	if !changed {
		return false, nil
	}
	return true, d.Dispatch(ctx, t)
}

// Dispatch delivers t to all notifiers. A failing notifier does not stop the
// others; their errors are joined.
func (d *Dispatcher) Dispatch(ctx context.Context, t Transition) error {
	d.mu.RLock()
	notifiers := make([]Notifier, len(d.notifiers))
	copy(notifiers, d.notifiers)
	d.mu.RUnlock()

	metrics.AlertsTotal.WithLabelValues(string(t.Jurisdiction), string(t.Direction)).Inc()

	var errs []error
	for _, n := range notifiers {
		if err := n.Notify(ctx, t); err != nil {
			d.logger.Error().Err(err).Str("transition", t.String()).Msg("Notifier failed")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
