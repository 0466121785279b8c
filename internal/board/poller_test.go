package board

import (
	"context"
	"testing"
	"time"

	"fragboard/internal/codec"
	"fragboard/internal/testutil"
	"fragboard/pkg/models"
)

func TestPollerFiresOnChangeOnlyWhenBoardDiffers(t *testing.T) {
	store := testutil.NewFakeStore()
	a := seedTask(store, "Alpha", models.StatusTodo, 10)
	e := newTestEngine(t, store)

	fired := make(chan struct{}, 8)
	p := NewPoller(e, 5*time.Millisecond, func() { fired <- struct{}{} })
	p.Start(context.Background())
	defer p.Stop()

	// A few quiet ticks first: identical remote state must not fire.
	time.Sleep(25 * time.Millisecond)
	select {
	case <-fired:
		t.Fatal("onChange fired without a remote change")
	default:
	}

	store.SetContent(a, codec.Encode(models.StatusDone, models.PriorityMedium, 10, ""))
	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("onChange never fired after remote change")
	}
}

func TestPollerStopHaltsPolling(t *testing.T) {
	store := testutil.NewFakeStore()
	seedTask(store, "Alpha", models.StatusTodo, 10)
	e := newTestEngine(t, store)

	p := NewPoller(e, 5*time.Millisecond, nil)
	p.Start(context.Background())
	time.Sleep(25 * time.Millisecond)
	p.Stop()

	calls := store.ListCalls
	time.Sleep(25 * time.Millisecond)
	if store.ListCalls != calls {
		t.Fatalf("poller still listing after Stop: %d -> %d", calls, store.ListCalls)
	}

	// Stop on a stopped poller is a no-op.
	p.Stop()
}

func TestPollerSwallowsTransientErrors(t *testing.T) {
	store := testutil.NewFakeStore()
	seedTask(store, "Alpha", models.StatusTodo, 10)
	e := newTestEngine(t, store)

	store.ListErr = context.DeadlineExceeded
	p := NewPoller(e, 5*time.Millisecond, func() { t.Error("onChange fired during outage") })
	p.Start(context.Background())
	time.Sleep(25 * time.Millisecond)
	p.Stop()

	if tasks := e.Tasks(); len(tasks) != 1 {
		t.Fatalf("cache disturbed by failed polls: %+v", tasks)
	}
}
