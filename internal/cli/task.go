package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"fragboard/internal/board"
	"fragboard/internal/codec"
	"fragboard/pkg/models"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Manage board tasks (add, list, show, move, done, rm)",
	Long: `Task management commands against the remote board.

Every command loads the current board from the fragment store first, so the
output always reflects the store's state, not a stale local copy.`,
}

var taskAddCmd = &cobra.Command{
	Use:   "add <title>",
	Short: "Create a task",
	Long: `Create a task with the given title. The task lands at the end of the
To Do column unless --status says otherwise.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireBoard(cmd); err != nil {
			return err
		}

		summaryFlag, _ := cmd.Flags().GetString("summary")
		bodyFlag, _ := cmd.Flags().GetString("body")
		statusFlag, _ := cmd.Flags().GetString("status")
		priorityFlag, _ := cmd.Flags().GetString("priority")
		tagsFlag, _ := cmd.Flags().GetStringSlice("tags")

		fields := board.Fields{Title: &args[0], Tags: tagsFlag}
		if summaryFlag != "" {
			fields.Summary = &summaryFlag
		}
		if bodyFlag != "" {
			fields.Body = &bodyFlag
		}
		if statusFlag != "" {
			status, ok := models.ParseStatus(statusFlag)
			if !ok || status == models.StatusDeleted {
				return fmt.Errorf("invalid status %q: must be one of todo, in-progress, done", statusFlag)
			}
			fields.Status = &status
		}
		if priorityFlag != "" {
			priority, ok := models.ParsePriority(priorityFlag)
			if !ok {
				return fmt.Errorf("invalid priority %q: must be one of low, medium, high", priorityFlag)
			}
			fields.Priority = &priority
		}

		task, err := Engine.Create(cmd.Context(), fields)
		if err != nil {
			return err
		}

		parsed := codec.Decode(task.RawContent)
		fmt.Printf("Created task %s\n", task.ID)
		fmt.Printf("  Status:   %s\n", parsed.Status)
		fmt.Printf("  Priority: %s\n", parsed.Priority)
		return nil
	},
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List board tasks by column",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireBoard(cmd); err != nil {
			return err
		}

		statusFlag, _ := cmd.Flags().GetString("status")
		var filter *models.Status
		if statusFlag != "" {
			status, ok := models.ParseStatus(statusFlag)
			if !ok {
				return fmt.Errorf("invalid status %q", statusFlag)
			}
			filter = &status
		}

		grouped := Engine.Grouped()
		for _, status := range models.BoardStatuses {
			if filter != nil && status != *filter {
				continue
			}
			tasks := grouped[status]
			fmt.Printf("%s (%d)\n", columnTitle(status), len(tasks))
			for _, t := range tasks {
				parsed := codec.Decode(t.RawContent)
				fmt.Printf("  %-12s [%-6s] %s\n", t.ID, parsed.Priority, t.Title)
			}
		}
		return nil
	},
}

var taskShowCmd = &cobra.Command{
	Use:   "show <task-id>",
	Short: "Show one task in full",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireBoard(cmd); err != nil {
			return err
		}

		task, err := Engine.Get(args[0])
		if err != nil {
			return err
		}

		parsed := codec.Decode(task.RawContent)
		fmt.Printf("%s  %s\n", task.ID, task.Title)
		fmt.Printf("  Status:   %s\n", parsed.Status)
		fmt.Printf("  Priority: %s\n", parsed.Priority)
		if task.Summary != "" {
			fmt.Printf("  Summary:  %s\n", task.Summary)
		}
		if tags := models.VisibleTags(task.Tags); len(tags) > 0 {
			fmt.Printf("  Tags:     %v\n", tags)
		}
		if parsed.Body != "" {
			fmt.Printf("\n%s\n", parsed.Body)
		}
		return nil
	},
}

var taskMoveCmd = &cobra.Command{
	Use:   "move <task-id> <status>",
	Short: "Move a task to another column",
	Long: `Move a task to the given column (todo, in-progress, done). The task is
appended at the end of the column unless --position gives a drop index.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireBoard(cmd); err != nil {
			return err
		}

		status, ok := models.ParseStatus(args[1])
		if !ok || status == models.StatusDeleted {
			return fmt.Errorf("invalid status %q: must be one of todo, in-progress, done", args[1])
		}

		position, _ := cmd.Flags().GetInt("position")
		if !cmd.Flags().Changed("position") {
			position = 1 << 30
		}

		if err := Engine.MoveOrReorder(cmd.Context(), args[0], status, position); err != nil {
			return err
		}
		fmt.Printf("Moved %s to %s\n", args[0], status)
		return nil
	},
}

var taskDoneCmd = &cobra.Command{
	Use:   "done <task-id>",
	Short: "Move a task to Done",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireBoard(cmd); err != nil {
			return err
		}
		if err := Engine.MoveOrReorder(cmd.Context(), args[0], models.StatusDone, 1<<30); err != nil {
			return err
		}
		fmt.Printf("Moved %s to done\n", args[0])
		return nil
	},
}

var taskRmCmd = &cobra.Command{
	Use:   "rm <task-id>",
	Short: "Soft-delete a task",
	Long: `Soft-delete a task. It disappears from the board, but the backing
fragment stays in the store and the task remains addressable by ID.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireBoard(cmd); err != nil {
			return err
		}
		if err := Engine.SoftDelete(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("Deleted %s\n", args[0])
		return nil
	},
}

// requireBoard checks the wiring and loads the board before a task command.
func requireBoard(cmd *cobra.Command) error {
	if Engine == nil {
		return fmt.Errorf("board engine not initialized")
	}
	return Engine.Load(cmd.Context())
}

func columnTitle(s models.Status) string {
	switch s {
	case models.StatusTodo:
		return "To Do"
	case models.StatusInProgress:
		return "In Progress"
	case models.StatusDone:
		return "Done"
	default:
		return string(s)
	}
}

func init() {
	taskAddCmd.Flags().String("summary", "", "one-line summary shown on the card")
	taskAddCmd.Flags().String("body", "", "free-text task body")
	taskAddCmd.Flags().String("status", "", "initial column (todo, in-progress, done)")
	taskAddCmd.Flags().String("priority", "", "priority (low, medium, high)")
	taskAddCmd.Flags().StringSlice("tags", nil, "extra tags for the backing fragment")

	taskListCmd.Flags().String("status", "", "only show one column")

	taskMoveCmd.Flags().Int("position", 0, "drop position within the column (default: end)")

	taskCmd.AddCommand(taskAddCmd, taskListCmd, taskShowCmd, taskMoveCmd, taskDoneCmd, taskRmCmd)
	rootCmd.AddCommand(taskCmd)
}
