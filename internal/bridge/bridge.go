// Package bridge is the message surface between the task board and the
// embedded chat-agent panel. It speaks a small typed postMessage protocol:
// the panel announces READY, the bridge hands over the access token,
// registers the board tools, and pushes a board digest as conversation
// context; the panel then issues TOOL_CALL messages that the bridge answers
// with exactly one TOOL_RESPONSE each.
//
// Every inbound message is origin-checked against the single allowed panel
// origin. A message from any other origin is dropped without a reply and
// without side effects.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"fragboard/internal/board"
	"fragboard/internal/codec"
	"fragboard/internal/observability"
	"fragboard/pkg/models"
)

// Message types exchanged with the panel.
const (
	TypeReady               = "READY"
	TypeAuth                = "AUTH"
	TypeRequestTokenRefresh = "REQUEST_TOKEN_REFRESH"
	TypeRegisterTools       = "REGISTER_TOOLS"
	TypeAddContext          = "ADD_CONTEXT"
	TypeToolCall            = "TOOL_CALL"
	TypeToolResponse        = "TOOL_RESPONSE"
)

// Message is one protocol frame. Unused fields stay empty per type.
type Message struct {
	Origin    string          `json:"origin,omitempty"`
	Type      string          `json:"type"`
	Token     string          `json:"token,omitempty"`
	Tools     []ToolSpec      `json:"tools,omitempty"`
	Items     []ContextItem   `json:"items,omitempty"`
	RequestID string          `json:"requestId,omitempty"`
	Tool      string          `json:"tool,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	Result    any             `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// ToolSpec describes one registered tool to the panel.
type ToolSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema,omitempty"`
}

// ContextItem is one piece of board context pushed to the conversation.
type ContextItem struct {
	Kind string `json:"kind"`
	Text string `json:"text"`
}

// TokenProvider supplies and refreshes the access token handed to the panel.
type TokenProvider interface {
	AccessToken() string
	Refresh(ctx context.Context) error
}

// Bridge wires one panel connection to the board engine.
type Bridge struct {
	engine        *board.Engine
	tokens        TokenProvider
	port          Port
	allowedOrigin string
	pollInterval  time.Duration
	events        observability.EventLog
	tools         map[string]tool
	order         []string
}

type tool struct {
	spec     ToolSpec
	mutating bool
	run      func(ctx context.Context, input json.RawMessage) (any, error)
}

// New creates a Bridge for one panel session. events may be nil.
func New(engine *board.Engine, tokens TokenProvider, port Port, allowedOrigin string, pollInterval time.Duration, events observability.EventLog) *Bridge {
	if events == nil {
		events = observability.Nop()
	}
	b := &Bridge{
		engine:        engine,
		tokens:        tokens,
		port:          port,
		allowedOrigin: allowedOrigin,
		pollInterval:  pollInterval,
		events:        events,
	}
	b.registerTools()
	return b
}

// Run serves the panel session until ctx is done or the port closes. A silent
// board poller runs for the session's lifetime and pushes a fresh digest
// whenever the board changes under the panel; it is stopped when Run returns.
func (b *Bridge) Run(ctx context.Context) error {
	poller := board.NewPoller(b.engine, b.pollInterval, func() { b.pushContext() })
	poller.Start(ctx)
	defer poller.Stop()

	for {
		msg, err := b.port.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		b.handle(ctx, msg)
	}
}

func (b *Bridge) handle(ctx context.Context, msg Message) {
	if msg.Origin != b.allowedOrigin {
		// Unknown origin: no reply, no effects, nothing for a probe to learn.
		return
	}

	switch msg.Type {
	case TypeReady:
		b.send(Message{Type: TypeAuth, Token: b.tokens.AccessToken()})
		b.send(Message{Type: TypeRegisterTools, Tools: b.toolSpecs()})
		b.pushContext()

	case TypeRequestTokenRefresh:
		if err := b.tokens.Refresh(ctx); err != nil {
			_ = b.events.Write(observability.Event{
				Level: "WARN", Type: observability.EventAuthExpired,
				Message: "panel-requested refresh failed",
				Data:    map[string]any{"error": err.Error()},
			})
		}
		// Empty token tells the panel the session is gone.
		b.send(Message{Type: TypeAuth, Token: b.tokens.AccessToken()})

	case TypeToolCall:
		resp, mutated := b.dispatch(ctx, msg)
		b.send(resp)
		if mutated {
			// The agent just changed the board; refresh and re-push context
			// so the conversation keeps seeing current state.
			if err := b.engine.Load(ctx); err == nil {
				b.pushContext()
			}
		}

	default:
		// Panel-bound types echoed back, or future types: ignore.
	}
}

// dispatch runs one tool call and always produces exactly one response frame
// carrying the caller's request ID. The second return reports whether a
// mutating tool succeeded and the board context should be re-pushed.
func (b *Bridge) dispatch(ctx context.Context, msg Message) (Message, bool) {
	resp := Message{Type: TypeToolResponse, RequestID: msg.RequestID}

	t, ok := b.tools[msg.Tool]
	if !ok {
		resp.Error = fmt.Sprintf("unknown tool %q", msg.Tool)
		return resp, false
	}

	result, err := t.run(ctx, msg.Input)
	if err != nil {
		resp.Error = err.Error()
		return resp, false
	}
	resp.Result = result
	return resp, t.mutating
}

func (b *Bridge) pushContext() {
	b.send(Message{
		Type:      TypeAddContext,
		RequestID: uuid.NewString(),
		Items:     []ContextItem{{Kind: "board_digest", Text: b.engine.ContextDigest()}},
	})
}

func (b *Bridge) send(m Message) {
	m.Origin = b.allowedOrigin
	if err := b.port.Send(m); err != nil {
		_ = b.events.Write(observability.Event{
			Level: "WARN", Type: observability.EventSyncFailed,
			Message: "panel send failed",
			Data:    map[string]any{"type": m.Type, "error": err.Error()},
		})
	}
}

func (b *Bridge) toolSpecs() []ToolSpec {
	out := make([]ToolSpec, 0, len(b.order))
	for _, name := range b.order {
		out = append(out, b.tools[name].spec)
	}
	return out
}

// --- tools ---

type taskView struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Status   string   `json:"status"`
	Priority string   `json:"priority"`
	Sort     int      `json:"sort"`
	Summary  string   `json:"summary,omitempty"`
	Tags     []string `json:"tags,omitempty"`
	Body     string   `json:"body,omitempty"`
}

func viewOf(t models.Task, withBody bool) taskView {
	p := codec.Decode(t.RawContent)
	v := taskView{
		ID:       t.ID,
		Title:    t.Title,
		Status:   string(p.Status),
		Priority: string(p.Priority),
		Sort:     p.Sort,
		Summary:  t.Summary,
		Tags:     models.VisibleTags(t.Tags),
	}
	if withBody {
		v.Body = p.Body
	}
	return v
}

func (b *Bridge) registerTools() {
	b.tools = map[string]tool{}
	add := func(t tool) {
		b.tools[t.spec.Name] = t
		b.order = append(b.order, t.spec.Name)
	}

	add(tool{
		spec: ToolSpec{
			Name:        "list_tasks",
			Description: "List board tasks, optionally filtered by status (todo, in-progress, done).",
			InputSchema: objectSchema(map[string]any{
				"status": map[string]any{"type": "string"},
			}, nil),
		},
		run: b.listTasks,
	})
	add(tool{
		spec: ToolSpec{
			Name:        "get_task",
			Description: "Fetch one task by ID, including its body text.",
			InputSchema: objectSchema(map[string]any{
				"id": map[string]any{"type": "string"},
			}, []string{"id"}),
		},
		run: b.getTask,
	})
	add(tool{
		spec: ToolSpec{
			Name:        "create_task",
			Description: "Create a task. Only title is required; status defaults to todo and priority to medium.",
			InputSchema: objectSchema(map[string]any{
				"title":    map[string]any{"type": "string"},
				"summary":  map[string]any{"type": "string"},
				"body":     map[string]any{"type": "string"},
				"status":   map[string]any{"type": "string"},
				"priority": map[string]any{"type": "string"},
				"tags":     map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			}, []string{"title"}),
		},
		mutating: true,
		run:      b.createTask,
	})
	add(tool{
		spec: ToolSpec{
			Name:        "update_task",
			Description: "Update a task's fields. Cannot change status; use move_task for that.",
			InputSchema: objectSchema(map[string]any{
				"id":       map[string]any{"type": "string"},
				"title":    map[string]any{"type": "string"},
				"summary":  map[string]any{"type": "string"},
				"body":     map[string]any{"type": "string"},
				"priority": map[string]any{"type": "string"},
				"tags":     map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			}, []string{"id"}),
		},
		mutating: true,
		run:      b.updateTask,
	})
	add(tool{
		spec: ToolSpec{
			Name:        "move_task",
			Description: "Move a task to a status column, appended at the end unless a position is given.",
			InputSchema: objectSchema(map[string]any{
				"id":       map[string]any{"type": "string"},
				"status":   map[string]any{"type": "string"},
				"position": map[string]any{"type": "integer"},
			}, []string{"id", "status"}),
		},
		mutating: true,
		run:      b.moveTask,
	})
	add(tool{
		spec: ToolSpec{
			Name:        "delete_task",
			Description: "Soft-delete a task. It disappears from the board but remains in the store.",
			InputSchema: objectSchema(map[string]any{
				"id": map[string]any{"type": "string"},
			}, []string{"id"}),
		},
		mutating: true,
		run:      b.deleteTask,
	})
}

func objectSchema(props map[string]any, required []string) map[string]any {
	s := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func (b *Bridge) listTasks(_ context.Context, input json.RawMessage) (any, error) {
	var in struct {
		Status string `json:"status"`
	}
	if err := parseInput(input, &in); err != nil {
		return nil, err
	}

	var filter *models.Status
	if in.Status != "" {
		s, ok := models.ParseStatus(in.Status)
		if !ok {
			return nil, fmt.Errorf("unknown status %q", in.Status)
		}
		filter = &s
	}

	views := []taskView{}
	for _, s := range models.BoardStatuses {
		if filter != nil && s != *filter {
			continue
		}
		for _, t := range b.engine.Grouped()[s] {
			views = append(views, viewOf(t, false))
		}
	}
	return map[string]any{"tasks": views}, nil
}

func (b *Bridge) getTask(_ context.Context, input json.RawMessage) (any, error) {
	var in struct {
		ID string `json:"id"`
	}
	if err := parseInput(input, &in); err != nil {
		return nil, err
	}
	t, err := b.engine.Get(in.ID)
	if err != nil {
		return nil, err
	}
	return viewOf(*t, true), nil
}

func (b *Bridge) createTask(ctx context.Context, input json.RawMessage) (any, error) {
	var in struct {
		Title    string   `json:"title"`
		Summary  *string  `json:"summary"`
		Body     *string  `json:"body"`
		Status   string   `json:"status"`
		Priority string   `json:"priority"`
		Tags     []string `json:"tags"`
	}
	if err := parseInput(input, &in); err != nil {
		return nil, err
	}

	f := board.Fields{Title: &in.Title, Summary: in.Summary, Body: in.Body, Tags: in.Tags}
	if in.Status != "" {
		s, ok := models.ParseStatus(in.Status)
		if !ok || s == models.StatusDeleted {
			return nil, fmt.Errorf("unknown status %q", in.Status)
		}
		f.Status = &s
	}
	if in.Priority != "" {
		p, ok := models.ParsePriority(in.Priority)
		if !ok {
			return nil, fmt.Errorf("unknown priority %q", in.Priority)
		}
		f.Priority = &p
	}

	t, err := b.engine.Create(ctx, f)
	if err != nil {
		return nil, err
	}
	return viewOf(*t, true), nil
}

func (b *Bridge) updateTask(ctx context.Context, input json.RawMessage) (any, error) {
	var in struct {
		ID       string   `json:"id"`
		Title    *string  `json:"title"`
		Summary  *string  `json:"summary"`
		Body     *string  `json:"body"`
		Priority string   `json:"priority"`
		Tags     []string `json:"tags"`
	}
	if err := parseInput(input, &in); err != nil {
		return nil, err
	}

	f := board.Fields{Title: in.Title, Summary: in.Summary, Body: in.Body, Tags: in.Tags}
	if in.Priority != "" {
		p, ok := models.ParsePriority(in.Priority)
		if !ok {
			return nil, fmt.Errorf("unknown priority %q", in.Priority)
		}
		f.Priority = &p
	}

	t, err := b.engine.Update(ctx, in.ID, f)
	if err != nil {
		return nil, err
	}
	return viewOf(*t, true), nil
}

func (b *Bridge) moveTask(ctx context.Context, input json.RawMessage) (any, error) {
	var in struct {
		ID       string `json:"id"`
		Status   string `json:"status"`
		Position *int   `json:"position"`
	}
	if err := parseInput(input, &in); err != nil {
		return nil, err
	}

	s, ok := models.ParseStatus(in.Status)
	if !ok || s == models.StatusDeleted {
		return nil, fmt.Errorf("unknown status %q", in.Status)
	}

	pos := 1 << 30
	if in.Position != nil {
		pos = *in.Position
	}
	if err := b.engine.MoveOrReorder(ctx, in.ID, s, pos); err != nil {
		return nil, err
	}

	t, err := b.engine.Get(in.ID)
	if err != nil {
		return nil, err
	}
	return viewOf(*t, false), nil
}

func (b *Bridge) deleteTask(ctx context.Context, input json.RawMessage) (any, error) {
	var in struct {
		ID string `json:"id"`
	}
	if err := parseInput(input, &in); err != nil {
		return nil, err
	}
	if err := b.engine.SoftDelete(ctx, in.ID); err != nil {
		return nil, err
	}
	return map[string]any{"id": in.ID, "deleted": true}, nil
}

func parseInput(input json.RawMessage, out any) error {
	if len(input) == 0 {
		input = json.RawMessage("{}")
	}
	dec := json.NewDecoder(strings.NewReader(string(input)))
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("invalid tool input: %w", err)
	}
	return nil
}
