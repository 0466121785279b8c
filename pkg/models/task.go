package models

import (
	"sort"
	"strings"
)

// Status represents the board column a task belongs to.
type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in-progress"
	StatusDone       Status = "done"
	StatusDeleted    Status = "deleted"
)

// BoardStatuses are the statuses rendered as board columns, in display order.
// Deleted is not a column; soft-deleted tasks are hidden from every view.
var BoardStatuses = []Status{StatusTodo, StatusInProgress, StatusDone}

// ParseStatus returns the Status for s, reporting whether s is recognized.
func ParseStatus(s string) (Status, bool) {
	switch Status(s) {
	case StatusTodo, StatusInProgress, StatusDone, StatusDeleted:
		return Status(s), true
	}
	return "", false
}

// Priority represents the urgency level of a task.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// ParsePriority returns the Priority for s, reporting whether s is recognized.
func ParsePriority(s string) (Priority, bool) {
	switch Priority(s) {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return Priority(s), true
	}
	return "", false
}

// Task is a board card as stored in the remote fragment store. ID is assigned
// by the store and immutable once set. RawContent is the only field that
// round-trips through the content codec; all structured card state (status,
// priority, sort key, body) lives inside it.
type Task struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	Summary    string   `json:"summary,omitempty"`
	Tags       []string `json:"tags,omitempty"`
	RawContent string   `json:"-"`
}

// ParsedTask is the structured view of a Task's RawContent. It is derived on
// demand and never persisted on its own.
type ParsedTask struct {
	Status   Status   `json:"status"`
	Priority Priority `json:"priority"`
	Sort     int      `json:"sort"`
	Body     string   `json:"body,omitempty"`
}

// ImplicitTags are attached to every fragment the client writes so the board
// can find its own cards in a shared workspace. They are never shown to users.
var ImplicitTags = []string{"fragboard", "task"}

// NormalizeTags lowercases and deduplicates tags and unions in the implicit
// set, returning a sorted slice.
func NormalizeTags(tags []string) []string {
	seen := make(map[string]bool, len(tags)+len(ImplicitTags))
	for _, t := range ImplicitTags {
		seen[t] = true
	}
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			seen[t] = true
		}
	}
	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// VisibleTags strips the implicit tags from a task's tag set.
func VisibleTags(tags []string) []string {
	implicit := make(map[string]bool, len(ImplicitTags))
	for _, t := range ImplicitTags {
		implicit[t] = true
	}
	var out []string
	for _, t := range tags {
		if !implicit[t] {
			out = append(out, t)
		}
	}
	return out
}
