// Package codec serializes a task's structured fields into the single opaque
// string stored by the remote fragment store, and parses it back out. The
// encoded form is a line-oriented header block between literal markers,
// followed by a blank line and the free-text body, so human edits to the body
// stay isolated from the header.
package codec

import (
	"fmt"
	"strconv"
	"strings"

	"fragboard/pkg/models"
)

const (
	startMarker = "<!--task"
	endMarker   = "-->"
)

// Encode writes the structured fields as a header block followed by the body.
func Encode(status models.Status, priority models.Priority, sortKey int, body string) string {
	var b strings.Builder
	b.WriteString(startMarker)
	b.WriteByte('\n')
	fmt.Fprintf(&b, "status: %s\n", status)
	fmt.Fprintf(&b, "priority: %s\n", priority)
	fmt.Fprintf(&b, "sort: %d\n", sortKey)
	b.WriteString(endMarker)
	b.WriteString("\n\n")
	b.WriteString(body)
	return b.String()
}

// EncodeParsed is Encode for an already-assembled ParsedTask.
func EncodeParsed(p models.ParsedTask) string {
	return Encode(p.Status, p.Priority, p.Sort, p.Body)
}

// Decode parses raw content back into its structured fields. Decoding is
// total: when the header markers are missing or malformed, the whole input is
// treated as body and every structured field takes its default. Unrecognized
// header keys and values are ignored in favor of defaults.
func Decode(raw string) models.ParsedTask {
	p := models.ParsedTask{
		Status:   models.StatusTodo,
		Priority: models.PriorityMedium,
		Sort:     0,
		Body:     raw,
	}

	lines := strings.Split(raw, "\n")
	if len(lines) == 0 || lines[0] != startMarker {
		return p
	}

	end := -1
	for i := 1; i < len(lines); i++ {
		if lines[i] == endMarker {
			end = i
			break
		}
	}
	if end < 0 {
		// Start marker without a closing marker: not a header.
		return p
	}

	for _, line := range lines[1:end] {
		key, val, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		val = strings.TrimSpace(val)
		switch strings.TrimSpace(key) {
		case "status":
			if s, ok := models.ParseStatus(val); ok {
				p.Status = s
			}
		case "priority":
			if pr, ok := models.ParsePriority(val); ok {
				p.Priority = pr
			}
		case "sort":
			if n, err := strconv.Atoi(val); err == nil {
				p.Sort = n
			}
		}
	}

	rest := lines[end+1:]
	if len(rest) > 0 && rest[0] == "" {
		// The blank separator line written by Encode is not part of the body.
		rest = rest[1:]
	}
	p.Body = strings.Join(rest, "\n")
	return p
}
