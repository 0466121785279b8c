package mcp

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"fragboard/internal/board"
	"fragboard/internal/codec"
	"fragboard/internal/fragment"
	"fragboard/internal/sortkey"
	"fragboard/internal/testutil"
	"fragboard/pkg/models"
)

// --- Test helpers ---

func newTestServer(t *testing.T, store *testutil.FakeStore) *Server {
	t.Helper()
	alloc := sortkey.NewAt(func() time.Time { return time.UnixMilli(1_000_000) })
	engine := board.New(store, alloc, board.Config{Workspace: "ws", FragmentType: "task", ListLimit: 250}, nil)
	if err := engine.Load(context.Background()); err != nil {
		t.Fatalf("initial load: %v", err)
	}
	return NewServer(engine, "test")
}

func seedTask(store *testutil.FakeStore, title string, status models.Status, sort int) string {
	return store.Seed(fragment.Fragment{
		Workspace: "ws",
		Type:      "task",
		Title:     title,
		Content:   codec.Encode(status, models.PriorityMedium, sort, "body of "+title),
		Tags:      models.ImplicitTags,
	})
}

// callTool is a helper that connects a client to the server and calls a tool.
func callTool(t *testing.T, srv *Server, toolName string, args map[string]any) *gomcp.CallToolResult {
	t.Helper()

	ctx := context.Background()
	client := gomcp.NewClient(&gomcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)

	t1, t2 := gomcp.NewInMemoryTransports()

	// Connect server (non-blocking).
	go func() {
		_ = srv.MCPServer().Run(ctx, t1)
	}()

	session, err := client.Connect(ctx, t2, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	defer session.Close()

	result, err := session.CallTool(ctx, &gomcp.CallToolParams{
		Name:      toolName,
		Arguments: args,
	})
	if err != nil {
		t.Fatalf("call tool %s: %v", toolName, err)
	}

	return result
}

// decodeResult parses a tool result from structured content or text.
func decodeResult(t *testing.T, result *gomcp.CallToolResult, out any) {
	t.Helper()
	if result.StructuredContent != nil {
		data, _ := json.Marshal(result.StructuredContent)
		if err := json.Unmarshal(data, out); err != nil {
			t.Fatalf("unmarshalling structured content: %v", err)
		}
		return
	}
	text := extractText(result)
	if err := json.Unmarshal([]byte(text), out); err != nil {
		t.Fatalf("unmarshalling result text: %v (text was: %s)", err, text)
	}
}

// --- Tests ---

func TestGetTask(t *testing.T) {
	store := testutil.NewFakeStore()
	id := seedTask(store, "Wire the login flow", models.StatusInProgress, 10)
	srv := newTestServer(t, store)

	result := callTool(t, srv, "get_task", map[string]any{"id": id})
	if result.IsError {
		t.Fatalf("expected success, got error: %s", extractText(result))
	}

	var out taskOutput
	decodeResult(t, result, &out)
	if out.ID != id || out.Status != "in-progress" || out.Priority != "medium" {
		t.Errorf("task output = %+v", out)
	}
	if out.Body != "body of Wire the login flow" {
		t.Errorf("Body = %q", out.Body)
	}
}

func TestGetTaskNotFound(t *testing.T) {
	srv := newTestServer(t, testutil.NewFakeStore())

	result := callTool(t, srv, "get_task", map[string]any{"id": "frag-404"})
	if !result.IsError {
		t.Fatal("expected error result for non-existent task")
	}
	if extractText(result) == "" {
		t.Fatal("expected error message in result content")
	}
}

func TestListTasksAll(t *testing.T) {
	store := testutil.NewFakeStore()
	seedTask(store, "Alpha", models.StatusTodo, 10)
	seedTask(store, "Beta", models.StatusDone, 20)
	srv := newTestServer(t, store)

	result := callTool(t, srv, "list_tasks", map[string]any{})
	if result.IsError {
		t.Fatalf("expected success, got error: %s", extractText(result))
	}

	var out listTasksOutput
	decodeResult(t, result, &out)
	if out.Count != 2 {
		t.Errorf("expected 2 tasks, got %d", out.Count)
	}
}

func TestListTasksWithFilter(t *testing.T) {
	store := testutil.NewFakeStore()
	seedTask(store, "Alpha", models.StatusTodo, 10)
	beta := seedTask(store, "Beta", models.StatusDone, 20)
	srv := newTestServer(t, store)

	result := callTool(t, srv, "list_tasks", map[string]any{"status": "done"})
	if result.IsError {
		t.Fatalf("expected success, got error: %s", extractText(result))
	}

	var out listTasksOutput
	decodeResult(t, result, &out)
	if out.Count != 1 {
		t.Errorf("expected 1 done task, got %d", out.Count)
	}
	if len(out.Tasks) > 0 && out.Tasks[0].ID != beta {
		t.Errorf("expected %s, got %s", beta, out.Tasks[0].ID)
	}
}

func TestListTasksInvalidStatus(t *testing.T) {
	srv := newTestServer(t, testutil.NewFakeStore())

	result := callTool(t, srv, "list_tasks", map[string]any{"status": "archived"})
	if !result.IsError {
		t.Fatal("expected error for unknown status")
	}
}

func TestCreateTask(t *testing.T) {
	store := testutil.NewFakeStore()
	srv := newTestServer(t, store)

	result := callTool(t, srv, "create_task", map[string]any{
		"title":    "Ship the relay",
		"priority": "high",
		"body":     "notes",
	})
	if result.IsError {
		t.Fatalf("expected success, got error: %s", extractText(result))
	}

	var out taskOutput
	decodeResult(t, result, &out)
	if out.ID == "" || out.Status != "todo" || out.Priority != "high" {
		t.Errorf("created task = %+v", out)
	}
	if store.CreateCalls != 1 {
		t.Errorf("CreateCalls = %d", store.CreateCalls)
	}
}

func TestUpdateTaskKeepsStatus(t *testing.T) {
	store := testutil.NewFakeStore()
	id := seedTask(store, "Alpha", models.StatusInProgress, 10)
	srv := newTestServer(t, store)

	result := callTool(t, srv, "update_task", map[string]any{
		"id":       id,
		"title":    "Alpha, revised",
		"priority": "low",
	})
	if result.IsError {
		t.Fatalf("expected success, got error: %s", extractText(result))
	}

	var out taskOutput
	decodeResult(t, result, &out)
	if out.Title != "Alpha, revised" || out.Priority != "low" {
		t.Errorf("updated task = %+v", out)
	}
	if out.Status != "in-progress" {
		t.Errorf("update changed status to %s", out.Status)
	}
}

func TestMoveTask(t *testing.T) {
	store := testutil.NewFakeStore()
	id := seedTask(store, "Alpha", models.StatusTodo, 10)
	srv := newTestServer(t, store)

	result := callTool(t, srv, "move_task", map[string]any{
		"id":     id,
		"status": "done",
	})
	if result.IsError {
		t.Fatalf("expected success, got error: %s", extractText(result))
	}

	f, _ := store.Stored(id)
	if codec.Decode(f.Content).Status != models.StatusDone {
		t.Fatal("fragment not moved to done")
	}
}

func TestMoveTaskInvalidStatus(t *testing.T) {
	store := testutil.NewFakeStore()
	id := seedTask(store, "Alpha", models.StatusTodo, 10)
	srv := newTestServer(t, store)

	result := callTool(t, srv, "move_task", map[string]any{
		"id":     id,
		"status": "deleted",
	})
	if !result.IsError {
		t.Fatal("expected error moving to deleted status")
	}
}

func TestDeleteTask(t *testing.T) {
	store := testutil.NewFakeStore()
	id := seedTask(store, "Alpha", models.StatusTodo, 10)
	srv := newTestServer(t, store)

	result := callTool(t, srv, "delete_task", map[string]any{"id": id})
	if result.IsError {
		t.Fatalf("expected success, got error: %s", extractText(result))
	}

	if store.DeleteCalls != 0 {
		t.Error("soft delete issued a remote delete")
	}
	f, _ := store.Stored(id)
	if codec.Decode(f.Content).Status != models.StatusDeleted {
		t.Fatal("fragment not marked deleted")
	}

	// Deleted tasks disappear from listings.
	listResult := callTool(t, srv, "list_tasks", map[string]any{})
	var out listTasksOutput
	decodeResult(t, listResult, &out)
	if out.Count != 0 {
		t.Errorf("deleted task still listed: %+v", out)
	}
}

// extractText extracts the text from the first TextContent in a CallToolResult.
func extractText(result *gomcp.CallToolResult) string {
	for _, c := range result.Content {
		if tc, ok := c.(*gomcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}
