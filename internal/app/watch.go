package app

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"gymthreads/internal/live"
	"gymthreads/internal/models"
	"gymthreads/internal/notify"
	"gymthreads/internal/scheduler"
)

type WatchOptions struct {
	// Interval is the polling resync period. Zero disables polling.
	Interval time.Duration
	// Coalesce folds bursts of live signals into one refetch.
	Coalesce time.Duration
	// NoLive skips the push channel and relies on polling alone.
	NoLive bool
}

// Watch emits every unread notification once. Seen keys are persisted, so
// a notification printed by an earlier run is not printed again. Fetches
// are triggered by live signals and by the polling schedule.
func (a *App) Watch(ctx context.Context, opts WatchOptions, emit func(models.Notification) error) error {
	if err := a.RequireSession(); err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		emitMu  sync.Mutex
		failure = make(chan error, 1)
	)
	fail := func(err error) {
		select {
		case failure <- err:
		default:
		}
		cancel()
	}
	stream := a.Notifications(notify.Options{
		Coalesce: opts.Coalesce,
		OnChange: func(items []models.Notification, _ int) {
			emitMu.Lock()
			defer emitMu.Unlock()
			if err := a.emitUnseen(ctx, items, emit); err != nil {
				fail(err)
			}
		},
	})

	sched, err := scheduler.New("", opts.Interval, a.Log)
	if err != nil {
		return err
	}
	resync := func(ctx context.Context) error {
		return stream.Fetch(ctx, 1)
	}
	if opts.Interval > 0 {
		if err := sched.Every("notifications", opts.Interval, resync); err != nil {
			return err
		}
	}
	sched.Start(ctx)
	defer sched.Stop()
	if err := sched.RunNow("notifications", resync); err != nil {
		return err
	}

	if !opts.NoLive {
		ch := a.Live()
		ch.On(notify.LiveEvent, func([]json.RawMessage) {
			if err := stream.HandleSignal(ctx); err != nil {
				a.Log.Warn("notification refetch failed", "err", err)
			}
		})
		go func() {
			err := ch.Run(ctx)
			switch {
			case errors.Is(err, live.ErrRejected):
				fail(err)
			case err != nil:
				a.Log.Warn("live channel stopped; polling only", "err", err)
			}
		}()
	}

	<-ctx.Done()
	select {
	case err := <-failure:
		return err
	default:
		return nil
	}
}

func seenKey(n models.Notification) string {
	return n.Key() + "@" + n.CreatedAt
}

func (a *App) emitUnseen(ctx context.Context, items []models.Notification, emit func(models.Notification) error) error {
	unread := make([]models.Notification, 0, len(items))
	keys := make([]string, 0, len(items))
	for _, n := range items {
		if n.Unread() {
			unread = append(unread, n)
			keys = append(keys, seenKey(n))
		}
	}
	fresh, err := a.Store.MarkSeen(ctx, keys)
	if err != nil {
		return err
	}
	isNew := make(map[string]bool, len(fresh))
	for _, k := range fresh {
		isNew[k] = true
	}
	// Oldest first so output reads chronologically.
	for i := len(unread) - 1; i >= 0; i-- {
		if isNew[seenKey(unread[i])] {
			if err := emit(unread[i]); err != nil {
				return err
			}
		}
	}
	return nil
}
