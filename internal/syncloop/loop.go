// Package syncloop keeps a client's view of the orders current by combining
// the change feed with unconditional polling.
package syncloop

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"ms-delivery/internal/changefeed"
	"ms-delivery/internal/logger"
	"ms-delivery/internal/metrics"
	"ms-delivery/internal/models"
)

// FetchFunc loads the full collection a view is built from.
type FetchFunc func(ctx context.Context) ([]models.Order, error)

// InfoFunc loads store info alongside the orders.
type InfoFunc func(ctx context.Context) (models.StoreInfo, error)

// Snapshot is one complete fetch. Orders must be treated as read-only. Info
// is nil when the loop has no InfoFunc or that fetch failed.
type Snapshot struct {
	Orders    []models.Order
	Info      *models.StoreInfo
	Seq       uint64
	FetchedAt time.Time
}

type Loop struct {
	Name     string
	Fetch    FetchFunc
	Feed     changefeed.Subscriber
	OrderID  string
	Interval time.Duration
	Logger   *logger.Logger

	// FetchInfo is optional. Its result rides on the same snapshot, so a
	// stale refresh is discarded with its store info.
	FetchInfo InfoFunc

	started atomic.Uint64

	mu        sync.Mutex
	applied   uint64
	snapshot  Snapshot
	listeners []func(Snapshot)

	wg sync.WaitGroup
}

// New builds a loop. A nil feed means polling only; orderID narrows the
// subscription to one order.
func New(name string, fetch FetchFunc, feed changefeed.Subscriber, orderID string, interval time.Duration, log *logger.Logger) *Loop {
	return &Loop{
		Name:     name,
		Fetch:    fetch,
		Feed:     feed,
		OrderID:  orderID,
		Interval: interval,
		Logger:   log,
	}
}

// OnSnapshot registers fn to run after each applied snapshot. Listeners run
// in apply order while the loop's lock is held, so they must not call Refresh.
func (l *Loop) OnSnapshot(fn func(Snapshot)) {
	l.mu.Lock()
	l.listeners = append(l.listeners, fn)
	l.mu.Unlock()
}

// Snapshot returns the last applied snapshot. Seq is zero before the first.
func (l *Loop) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshot
}

// Refresh fetches and applies a full snapshot. A fetch that started before
// the applied snapshot's fetch is discarded. On error the last good snapshot
// stays in place.
func (l *Loop) Refresh(ctx context.Context) error {
	seq := l.started.Add(1)

	rows, err := l.Fetch(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		metrics.SyncRefreshesTotal.WithLabelValues(l.Name, "error").Inc()
		l.Logger.Warn("SYNC", fmt.Sprintf("%s: refresh #%d failed, keeping last snapshot: %v", l.Name, seq, err))
		return err
	}

	orders, bad := models.SanitizeOrders(rows)
	for _, err := range bad {
		l.Logger.Warn("SYNC", fmt.Sprintf("%s: skipping row: %v", l.Name, err))
	}

	var info *models.StoreInfo
	if l.FetchInfo != nil {
		got, err := l.FetchInfo(ctx)
		switch {
		case err == nil:
			info = &got
		case ctx.Err() == nil:
			l.Logger.Warn("SYNC", fmt.Sprintf("%s: store info refresh #%d failed, keeping previous: %v", l.Name, seq, err))
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if seq < l.applied {
		metrics.SyncRefreshesTotal.WithLabelValues(l.Name, "stale").Inc()
		l.Logger.LogSync(l.Name, fmt.Sprintf("discarding refresh #%d, #%d already applied", seq, l.applied))
		return nil
	}

	l.applied = seq
	l.snapshot = Snapshot{Orders: orders, Info: info, Seq: seq, FetchedAt: time.Now()}
	metrics.SyncRefreshesTotal.WithLabelValues(l.Name, "ok").Inc()
	l.Logger.LogSync(l.Name, fmt.Sprintf("applied refresh #%d with %d orders", seq, len(orders)))

	for _, fn := range l.listeners {
		fn(l.snapshot)
	}
	return nil
}

// Run refreshes once, then on every change event and every Interval until ctx
// is done. In-flight refreshes are allowed to finish before Run returns.
func (l *Loop) Run(ctx context.Context) error {
	defer l.wg.Wait()

	_ = l.Refresh(ctx)
	events := l.subscribe(ctx)

	ticker := time.NewTicker(l.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-ticker.C:
			if events == nil {
				events = l.subscribe(ctx)
			}
			l.refreshAsync(ctx)

		case ev, ok := <-events:
			if !ok {
				if ctx.Err() == nil {
					l.Logger.Warn("SYNC", fmt.Sprintf("%s: change feed closed, polling until resubscribed", l.Name))
				}
				events = nil
				continue
			}
			l.Logger.LogSync(l.Name, fmt.Sprintf("%s %s on %s", ev.Type, ev.OrderID(), ev.Table))
			l.refreshAsync(ctx)
		}
	}
}

func (l *Loop) refreshAsync(ctx context.Context) {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		_ = l.Refresh(ctx)
	}()
}

func (l *Loop) subscribe(ctx context.Context) <-chan models.ChangeEvent {
	if l.Feed == nil {
		return nil
	}
	events, err := l.Feed.Subscribe(ctx, l.OrderID)
	if err != nil {
		l.Logger.Warn("SYNC", fmt.Sprintf("%s: subscribe failed, will retry on next poll: %v", l.Name, err))
		return nil
	}
	return events
}
