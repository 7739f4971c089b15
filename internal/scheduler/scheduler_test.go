package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestAddJobRejectsBadSchedule(t *testing.T) {
	s, err := New("", 0, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := s.AddJob("bad", "not a schedule", func(context.Context) error { return nil }); err == nil {
		t.Fatalf("expected schedule error")
	}
}

func TestInvalidTimezone(t *testing.T) {
	if _, err := New("Mars/Olympus", 0, nil); err == nil {
		t.Fatalf("expected timezone error")
	}
}

func TestRunNowReturnsJobError(t *testing.T) {
	s, _ := New("UTC", time.Second, nil)
	boom := errors.New("boom")
	err := s.RunNow("resync", func(ctx context.Context) error {
		if _, ok := ctx.Deadline(); !ok {
			t.Errorf("job context has no deadline")
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
}

func TestEveryRunsUntilContextEnds(t *testing.T) {
	s, _ := New("UTC", time.Second, nil)
	var runs atomic.Int32
	if err := s.Every("poll", time.Second, func(context.Context) error {
		runs.Add(1)
		return nil
	}); err != nil {
		t.Fatalf("every: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	deadline := time.Now().Add(5 * time.Second)
	for runs.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	cancel()
	if runs.Load() == 0 {
		t.Fatalf("job never ran")
	}
}

func TestRunNowUsesStartContext(t *testing.T) {
	s, _ := New("UTC", time.Minute, nil)
	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	defer s.Stop()
	cancel()
	err := s.RunNow("resync", func(ctx context.Context) error {
		return ctx.Err()
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want canceled", err)
	}
}

func TestAddJobReplacesSameName(t *testing.T) {
	s, _ := New("UTC", time.Second, nil)
	noop := func(context.Context) error { return nil }
	if err := s.Every("poll", time.Hour, noop); err != nil {
		t.Fatalf("every: %v", err)
	}
	if err := s.Every("poll", time.Minute, noop); err != nil {
		t.Fatalf("every: %v", err)
	}
	if n := len(s.cron.Entries()); n != 1 {
		t.Fatalf("entries = %d, want 1", n)
	}
}
