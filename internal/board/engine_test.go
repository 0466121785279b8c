package board

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"fragboard/internal/codec"
	"fragboard/internal/fragment"
	"fragboard/internal/sortkey"
	"fragboard/internal/testutil"
	"fragboard/pkg/models"
)

const testClockMillis = 1_000_000

func strp(s string) *string { return &s }

func priop(p models.Priority) *models.Priority { return &p }

func seedTask(store *testutil.FakeStore, title string, status models.Status, sort int) string {
	return store.Seed(fragment.Fragment{
		Workspace: "ws",
		Type:      "task",
		Title:     title,
		Content:   codec.Encode(status, models.PriorityMedium, sort, ""),
		Tags:      models.ImplicitTags,
	})
}

func newTestEngine(t *testing.T, store *testutil.FakeStore) *Engine {
	t.Helper()
	alloc := sortkey.NewAt(func() time.Time { return time.UnixMilli(testClockMillis) })
	e := New(store, alloc, Config{Workspace: "ws", FragmentType: "task", ListLimit: 250}, nil)
	if err := e.Load(context.Background()); err != nil {
		t.Fatalf("initial Load failed: %v", err)
	}
	return e
}

func storedSort(t *testing.T, store *testutil.FakeStore, id string) (models.Status, int) {
	t.Helper()
	f, ok := store.Stored(id)
	if !ok {
		t.Fatalf("fragment %s not in store", id)
	}
	p := codec.Decode(f.Content)
	return p.Status, p.Sort
}

func TestLoadFailureLeavesCacheUnchanged(t *testing.T) {
	store := testutil.NewFakeStore()
	seedTask(store, "Alpha", models.StatusTodo, 10)
	e := newTestEngine(t, store)

	store.ListErr = errors.New("connection refused")
	err := e.Load(context.Background())
	if !errors.Is(err, ErrSyncUnavailable) {
		t.Fatalf("Load error = %v, want ErrSyncUnavailable", err)
	}
	if tasks := e.Tasks(); len(tasks) != 1 || tasks[0].Title != "Alpha" {
		t.Fatalf("cache changed after failed load: %+v", tasks)
	}
}

func TestMoveToOwnPositionIssuesNoRemoteCall(t *testing.T) {
	store := testutil.NewFakeStore()
	a := seedTask(store, "Alpha", models.StatusTodo, 10)
	seedTask(store, "Beta", models.StatusTodo, 20)
	e := newTestEngine(t, store)

	// Alpha back to the head of its own column: neighbors give floor(20/2)
	// which is Alpha's current key, so nothing changes.
	if err := e.MoveOrReorder(context.Background(), a, models.StatusTodo, 0); err != nil {
		t.Fatalf("MoveOrReorder failed: %v", err)
	}
	if store.MutationCalls() != 0 {
		t.Fatalf("no-op move issued %d remote calls", store.MutationCalls())
	}
}

func TestReorderToEndUsesClockAsUpperBound(t *testing.T) {
	store := testutil.NewFakeStore()
	a := seedTask(store, "Alpha", models.StatusTodo, 10)
	seedTask(store, "Beta", models.StatusTodo, 20)
	e := newTestEngine(t, store)

	if err := e.MoveOrReorder(context.Background(), a, models.StatusTodo, 1); err != nil {
		t.Fatalf("MoveOrReorder failed: %v", err)
	}

	wantKey := 20 + (testClockMillis-20)/2
	status, sort := storedSort(t, store, a)
	if status != models.StatusTodo {
		t.Errorf("status = %s, want todo", status)
	}
	if sort != wantKey {
		t.Errorf("sort = %d, want %d", sort, wantKey)
	}

	todo := e.Grouped()[models.StatusTodo]
	if len(todo) != 2 || todo[0].Title != "Beta" || todo[1].Title != "Alpha" {
		t.Fatalf("column order after reorder: %+v", todo)
	}
}

func TestMoveAcrossColumnsAllocatesBetweenNeighbors(t *testing.T) {
	store := testutil.NewFakeStore()
	a := seedTask(store, "Alpha", models.StatusTodo, 10)
	seedTask(store, "Gamma", models.StatusInProgress, 100)
	seedTask(store, "Delta", models.StatusInProgress, 200)
	e := newTestEngine(t, store)

	if err := e.MoveOrReorder(context.Background(), a, models.StatusInProgress, 1); err != nil {
		t.Fatalf("MoveOrReorder failed: %v", err)
	}

	status, sort := storedSort(t, store, a)
	if status != models.StatusInProgress || sort != 150 {
		t.Fatalf("moved task = %s/%d, want in-progress/150", status, sort)
	}
	if n := len(e.Grouped()[models.StatusInProgress]); n != 3 {
		t.Fatalf("in-progress column has %d tasks, want 3", n)
	}
}

func TestFailedMoveReconcilesByReload(t *testing.T) {
	store := testutil.NewFakeStore()
	a := seedTask(store, "Alpha", models.StatusTodo, 10)
	e := newTestEngine(t, store)

	store.UpdateErr = errors.New("503 from store")
	listsBefore := store.ListCalls

	err := e.MoveOrReorder(context.Background(), a, models.StatusDone, 0)
	if !errors.Is(err, ErrSyncUnavailable) {
		t.Fatalf("move error = %v, want ErrSyncUnavailable", err)
	}
	if store.ListCalls != listsBefore+1 {
		t.Fatalf("expected one reconciling reload, got %d extra lists", store.ListCalls-listsBefore)
	}

	// The optimistic state must be gone: the store never accepted the move.
	task, err := e.Get(a)
	if err != nil {
		t.Fatalf("Get after reconcile failed: %v", err)
	}
	if got := codec.Decode(task.RawContent).Status; got != models.StatusTodo {
		t.Fatalf("status after reconcile = %s, want todo", got)
	}
}

func TestCreateAppendsAtEndOfColumn(t *testing.T) {
	store := testutil.NewFakeStore()
	seedTask(store, "Alpha", models.StatusTodo, 10)
	e := newTestEngine(t, store)

	task, err := e.Create(context.Background(), Fields{Title: strp("  New thing  "), Summary: strp("short")})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if task.ID == "" {
		t.Fatal("created task has no server-assigned ID")
	}
	if task.Title != "New thing" {
		t.Errorf("Title = %q, want trimmed", task.Title)
	}

	p := codec.Decode(task.RawContent)
	wantKey := 10 + (testClockMillis-10)/2
	if p.Status != models.StatusTodo || p.Priority != models.PriorityMedium || p.Sort != wantKey {
		t.Errorf("parsed = %+v, want todo/medium/%d", p, wantKey)
	}

	if _, err := e.Get(task.ID); err != nil {
		t.Errorf("created task missing from cache: %v", err)
	}
	if len(task.Tags) == 0 {
		t.Error("created task carries no tags")
	}
}

func TestCreateRejectsEmptyTitle(t *testing.T) {
	store := testutil.NewFakeStore()
	e := newTestEngine(t, store)

	if _, err := e.Create(context.Background(), Fields{Title: strp("   ")}); err == nil {
		t.Fatal("expected error for blank title")
	}
	if store.CreateCalls != 0 {
		t.Fatalf("blank title reached the store (%d creates)", store.CreateCalls)
	}
}

func TestUpdatePreservesSortKey(t *testing.T) {
	store := testutil.NewFakeStore()
	a := seedTask(store, "Alpha", models.StatusTodo, 42)
	e := newTestEngine(t, store)

	task, err := e.Update(context.Background(), a, Fields{
		Title:    strp("Alpha v2"),
		Priority: priop(models.PriorityHigh),
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if task.Title != "Alpha v2" {
		t.Errorf("Title = %q", task.Title)
	}

	p := codec.Decode(task.RawContent)
	if p.Priority != models.PriorityHigh || p.Sort != 42 || p.Status != models.StatusTodo {
		t.Errorf("parsed after update = %+v", p)
	}

	cached, _ := e.Get(a)
	if cached.Title != "Alpha v2" {
		t.Errorf("cache not patched: %q", cached.Title)
	}
}

func TestUpdateUnknownTaskReturnsNotFound(t *testing.T) {
	store := testutil.NewFakeStore()
	e := newTestEngine(t, store)

	_, err := e.Update(context.Background(), "nope", Fields{Title: strp("x")})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
	if store.UpdateCalls != 0 {
		t.Fatal("unknown ID reached the store")
	}
}

func TestSoftDeleteHidesTaskButKeepsItFetchable(t *testing.T) {
	store := testutil.NewFakeStore()
	a := seedTask(store, "Alpha", models.StatusTodo, 10)
	seedTask(store, "Beta", models.StatusDone, 20)
	e := newTestEngine(t, store)

	if err := e.SoftDelete(context.Background(), a); err != nil {
		t.Fatalf("SoftDelete failed: %v", err)
	}
	if store.DeleteCalls != 0 {
		t.Fatal("soft delete must not issue a remote delete")
	}

	if tasks := e.Tasks(); len(tasks) != 1 || tasks[0].Title != "Beta" {
		t.Fatalf("Tasks after soft delete = %+v", tasks)
	}
	if counts := e.Counts(); counts[models.StatusTodo] != 0 || counts[models.StatusDone] != 1 {
		t.Fatalf("Counts after soft delete = %+v", counts)
	}

	task, err := e.Get(a)
	if err != nil {
		t.Fatalf("deleted task no longer fetchable: %v", err)
	}
	if got := codec.Decode(task.RawContent).Status; got != models.StatusDeleted {
		t.Fatalf("status = %s, want deleted", got)
	}

	status, _ := storedSort(t, store, a)
	if status != models.StatusDeleted {
		t.Fatal("store fragment not marked deleted")
	}
}

func TestReloadIfChangedDetectsRemoteEdits(t *testing.T) {
	store := testutil.NewFakeStore()
	a := seedTask(store, "Alpha", models.StatusTodo, 10)
	e := newTestEngine(t, store)

	changed, err := e.ReloadIfChanged(context.Background())
	if err != nil || changed {
		t.Fatalf("unchanged board reported changed=%v err=%v", changed, err)
	}

	store.SetContent(a, codec.Encode(models.StatusDone, models.PriorityMedium, 10, ""))
	changed, err = e.ReloadIfChanged(context.Background())
	if err != nil || !changed {
		t.Fatalf("remote edit not detected: changed=%v err=%v", changed, err)
	}
	if counts := e.Counts(); counts[models.StatusDone] != 1 {
		t.Fatalf("cache not replaced after detected change: %+v", counts)
	}
}

func TestContextDigestGroupsByStatus(t *testing.T) {
	store := testutil.NewFakeStore()
	seedTask(store, "Alpha", models.StatusTodo, 10)
	seedTask(store, "Beta", models.StatusInProgress, 20)
	e := newTestEngine(t, store)

	digest := e.ContextDigest()
	for _, want := range []string{
		"Task board (2 tasks)",
		"## To Do (1)",
		"## In Progress (1)",
		"## Done (0)",
		"Alpha [medium]",
	} {
		if !strings.Contains(digest, want) {
			t.Errorf("digest missing %q:\n%s", want, digest)
		}
	}
}
