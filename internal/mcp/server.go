// Package mcp exposes the task board as MCP (Model Context Protocol) tools,
// so assistants running outside the embedded panel can read and mutate the
// same board through the sync engine.
package mcp

import (
	"context"
	"fmt"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"fragboard/internal/board"
	"fragboard/internal/codec"
	"fragboard/pkg/models"
)

// Server wraps the board engine and exposes it as MCP tools.
type Server struct {
	server *gomcp.Server
	engine *board.Engine
}

// NewServer creates an MCP server over the given engine.
func NewServer(engine *board.Engine, version string) *Server {
	if version == "" {
		version = "dev"
	}

	s := &Server{engine: engine}
	s.server = gomcp.NewServer(
		&gomcp.Implementation{Name: "fragboard", Version: version},
		nil,
	)
	s.registerTools()
	return s
}

// Run starts the MCP server on stdio, blocking until the client disconnects
// or the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &gomcp.StdioTransport{})
}

// MCPServer returns the underlying mcp.Server for testing purposes.
func (s *Server) MCPServer() *gomcp.Server {
	return s.server
}

// --- Tool input/output types ---

type taskOutput struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Status   string   `json:"status"`
	Priority string   `json:"priority"`
	Sort     int      `json:"sort"`
	Summary  string   `json:"summary,omitempty"`
	Tags     []string `json:"tags,omitempty"`
	Body     string   `json:"body,omitempty"`
}

type listTasksInput struct {
	Status string `json:"status,omitempty" jsonschema:"filter tasks by status (todo, in-progress, done)"`
}

type listTasksOutput struct {
	Tasks []taskOutput `json:"tasks"`
	Count int          `json:"count"`
}

type getTaskInput struct {
	ID string `json:"id" jsonschema:"required,the task identifier"`
}

type createTaskInput struct {
	Title    string   `json:"title" jsonschema:"required,the task title"`
	Summary  string   `json:"summary,omitempty" jsonschema:"one-line summary shown on the card"`
	Body     string   `json:"body,omitempty" jsonschema:"free-text task body"`
	Status   string   `json:"status,omitempty" jsonschema:"initial status (todo, in-progress, done). Defaults to todo."`
	Priority string   `json:"priority,omitempty" jsonschema:"priority (low, medium, high). Defaults to medium."`
	Tags     []string `json:"tags,omitempty" jsonschema:"extra tags for the backing fragment"`
}

type updateTaskInput struct {
	ID       string   `json:"id" jsonschema:"required,the task identifier"`
	Title    *string  `json:"title,omitempty" jsonschema:"new title"`
	Summary  *string  `json:"summary,omitempty" jsonschema:"new summary"`
	Body     *string  `json:"body,omitempty" jsonschema:"new body text"`
	Priority string   `json:"priority,omitempty" jsonschema:"new priority (low, medium, high)"`
	Tags     []string `json:"tags,omitempty" jsonschema:"replacement tag set"`
}

type moveTaskInput struct {
	ID       string `json:"id" jsonschema:"required,the task identifier"`
	Status   string `json:"status" jsonschema:"required,the target column (todo, in-progress, done)"`
	Position *int   `json:"position,omitempty" jsonschema:"drop position within the column. Defaults to the end."`
}

type deleteTaskInput struct {
	ID string `json:"id" jsonschema:"required,the task identifier"`
}

type messageOutput struct {
	Message string `json:"message"`
}

// --- Tool registration ---

func (s *Server) registerTools() {
	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "list_tasks",
		Description: "List board tasks with an optional status filter. Soft-deleted tasks are excluded.",
	}, s.handleListTasks)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_task",
		Description: "Get one task by ID, including its body text. Works for soft-deleted tasks too.",
	}, s.handleGetTask)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "create_task",
		Description: "Create a task on the board. The new task is appended at the end of its column.",
	}, s.handleCreateTask)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "update_task",
		Description: "Update a task's fields. Status cannot be changed here; use move_task.",
	}, s.handleUpdateTask)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "move_task",
		Description: "Move a task to a status column, appended at the end unless a position is given.",
	}, s.handleMoveTask)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "delete_task",
		Description: "Soft-delete a task. The backing fragment stays in the store.",
	}, s.handleDeleteTask)
}

// --- Tool handlers ---

func (s *Server) handleListTasks(_ context.Context, _ *gomcp.CallToolRequest, input listTasksInput) (*gomcp.CallToolResult, listTasksOutput, error) {
	var filter *models.Status
	if input.Status != "" {
		status, ok := models.ParseStatus(input.Status)
		if !ok || status == models.StatusDeleted {
			return errorResult(fmt.Sprintf("invalid status %q: must be one of todo, in-progress, done", input.Status)), listTasksOutput{}, nil
		}
		filter = &status
	}

	grouped := s.engine.Grouped()
	out := listTasksOutput{Tasks: []taskOutput{}}
	for _, status := range models.BoardStatuses {
		if filter != nil && status != *filter {
			continue
		}
		for _, t := range grouped[status] {
			out.Tasks = append(out.Tasks, taskToOutput(t, false))
		}
	}
	out.Count = len(out.Tasks)
	return nil, out, nil
}

func (s *Server) handleGetTask(_ context.Context, _ *gomcp.CallToolRequest, input getTaskInput) (*gomcp.CallToolResult, taskOutput, error) {
	if input.ID == "" {
		return errorResult("id is required"), taskOutput{}, nil
	}

	task, err := s.engine.Get(input.ID)
	if err != nil {
		return errorResult(fmt.Sprintf("getting task %s: %s", input.ID, err)), taskOutput{}, nil
	}
	return nil, taskToOutput(*task, true), nil
}

func (s *Server) handleCreateTask(ctx context.Context, _ *gomcp.CallToolRequest, input createTaskInput) (*gomcp.CallToolResult, taskOutput, error) {
	if input.Title == "" {
		return errorResult("title is required"), taskOutput{}, nil
	}

	fields := board.Fields{Title: &input.Title, Tags: input.Tags}
	if input.Summary != "" {
		fields.Summary = &input.Summary
	}
	if input.Body != "" {
		fields.Body = &input.Body
	}
	if input.Status != "" {
		status, ok := models.ParseStatus(input.Status)
		if !ok || status == models.StatusDeleted {
			return errorResult(fmt.Sprintf("invalid status %q: must be one of todo, in-progress, done", input.Status)), taskOutput{}, nil
		}
		fields.Status = &status
	}
	if input.Priority != "" {
		priority, ok := models.ParsePriority(input.Priority)
		if !ok {
			return errorResult(fmt.Sprintf("invalid priority %q: must be one of low, medium, high", input.Priority)), taskOutput{}, nil
		}
		fields.Priority = &priority
	}

	task, err := s.engine.Create(ctx, fields)
	if err != nil {
		return errorResult(fmt.Sprintf("creating task: %s", err)), taskOutput{}, nil
	}
	return nil, taskToOutput(*task, true), nil
}

func (s *Server) handleUpdateTask(ctx context.Context, _ *gomcp.CallToolRequest, input updateTaskInput) (*gomcp.CallToolResult, taskOutput, error) {
	if input.ID == "" {
		return errorResult("id is required"), taskOutput{}, nil
	}

	fields := board.Fields{Title: input.Title, Summary: input.Summary, Body: input.Body, Tags: input.Tags}
	if input.Priority != "" {
		priority, ok := models.ParsePriority(input.Priority)
		if !ok {
			return errorResult(fmt.Sprintf("invalid priority %q: must be one of low, medium, high", input.Priority)), taskOutput{}, nil
		}
		fields.Priority = &priority
	}

	task, err := s.engine.Update(ctx, input.ID, fields)
	if err != nil {
		return errorResult(fmt.Sprintf("updating task %s: %s", input.ID, err)), taskOutput{}, nil
	}
	return nil, taskToOutput(*task, true), nil
}

func (s *Server) handleMoveTask(ctx context.Context, _ *gomcp.CallToolRequest, input moveTaskInput) (*gomcp.CallToolResult, messageOutput, error) {
	if input.ID == "" {
		return errorResult("id is required"), messageOutput{}, nil
	}
	status, ok := models.ParseStatus(input.Status)
	if !ok || status == models.StatusDeleted {
		return errorResult(fmt.Sprintf("invalid status %q: must be one of todo, in-progress, done", input.Status)), messageOutput{}, nil
	}

	position := 1 << 30
	if input.Position != nil {
		position = *input.Position
	}
	if err := s.engine.MoveOrReorder(ctx, input.ID, status, position); err != nil {
		return errorResult(fmt.Sprintf("moving task %s: %s", input.ID, err)), messageOutput{}, nil
	}

	return nil, messageOutput{Message: fmt.Sprintf("task %s moved to %s", input.ID, input.Status)}, nil
}

func (s *Server) handleDeleteTask(ctx context.Context, _ *gomcp.CallToolRequest, input deleteTaskInput) (*gomcp.CallToolResult, messageOutput, error) {
	if input.ID == "" {
		return errorResult("id is required"), messageOutput{}, nil
	}

	if err := s.engine.SoftDelete(ctx, input.ID); err != nil {
		return errorResult(fmt.Sprintf("deleting task %s: %s", input.ID, err)), messageOutput{}, nil
	}
	return nil, messageOutput{Message: fmt.Sprintf("task %s deleted", input.ID)}, nil
}

// --- Helpers ---

func taskToOutput(t models.Task, withBody bool) taskOutput {
	parsed := codec.Decode(t.RawContent)
	out := taskOutput{
		ID:       t.ID,
		Title:    t.Title,
		Status:   string(parsed.Status),
		Priority: string(parsed.Priority),
		Sort:     parsed.Sort,
		Summary:  t.Summary,
		Tags:     models.VisibleTags(t.Tags),
	}
	if withBody {
		out.Body = parsed.Body
	}
	return out
}

func errorResult(msg string) *gomcp.CallToolResult {
	return &gomcp.CallToolResult{
		Content: []gomcp.Content{&gomcp.TextContent{Text: msg}},
		IsError: true,
	}
}
