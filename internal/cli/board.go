package cli

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"fragboard/internal/codec"
	"fragboard/pkg/models"
)

// Board column indices follow models.BoardStatuses.
const columnCount = 3

type boardModel struct {
	width  int
	height int

	columns [columnCount][]models.Task
	col     int
	row     [columnCount]int

	loading bool
	err     error
}

// boardLoadedMsg carries reloaded columns back to the model.
type boardLoadedMsg struct {
	columns [columnCount][]models.Task
	err     error
}

// boardTickMsg triggers the silent background refresh.
type boardTickMsg time.Time

// Style definitions.
var (
	boardTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("230")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	columnStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	activeColumnStyle = lipgloss.NewStyle().
				BorderStyle(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("62")).
				Padding(0, 1)

	columnHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("62"))

	selectedCardStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("230")).
				Background(lipgloss.Color("62"))

	priorityHigh   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	priorityMedium = lipgloss.NewStyle().Foreground(lipgloss.Color("226"))
	priorityLow    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))

	boardHelpStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

func newBoardModel() boardModel {
	return boardModel{loading: true}
}

func (m boardModel) Init() tea.Cmd {
	return tea.Batch(loadBoard, boardTick())
}

// loadBoard fetches the board and regroups it into columns.
func loadBoard() tea.Msg {
	if err := Engine.Load(context.Background()); err != nil {
		return boardLoadedMsg{err: err}
	}
	return groupedMsg()
}

// refreshBoard is the silent poll: no error surfacing, no reload indicator.
func refreshBoard() tea.Msg {
	changed, err := Engine.ReloadIfChanged(context.Background())
	if err != nil || !changed {
		return nil
	}
	return groupedMsg()
}

func groupedMsg() boardLoadedMsg {
	grouped := Engine.Grouped()
	var msg boardLoadedMsg
	for i, status := range models.BoardStatuses {
		msg.columns[i] = grouped[status]
	}
	return msg
}

func boardTick() tea.Cmd {
	interval := 20 * time.Second
	if Cfg != nil && Cfg.PollInterval > 0 {
		interval = Cfg.PollInterval
	}
	return tea.Tick(interval, func(t time.Time) tea.Msg { return boardTickMsg(t) })
}

func (m boardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		case "left", "h":
			if m.col > 0 {
				m.col--
			}
			return m, nil
		case "right", "l":
			if m.col < columnCount-1 {
				m.col++
			}
			return m, nil
		case "up", "k":
			if m.row[m.col] > 0 {
				m.row[m.col]--
			}
			return m, nil
		case "down", "j":
			if m.row[m.col] < len(m.columns[m.col])-1 {
				m.row[m.col]++
			}
			return m, nil
		case "m":
			return m, m.moveSelected(1)
		case "M":
			return m, m.moveSelected(-1)
		case "x":
			return m, m.deleteSelected()
		case "r":
			m.loading = true
			return m, loadBoard
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case boardLoadedMsg:
		m.loading = false
		m.err = msg.err
		if msg.err == nil {
			m.columns = msg.columns
			for i := range m.row {
				if m.row[i] >= len(m.columns[i]) {
					m.row[i] = max(0, len(m.columns[i])-1)
				}
			}
		}
		return m, nil

	case boardTickMsg:
		return m, tea.Batch(refreshBoard, boardTick())
	}

	return m, nil
}

// moveSelected moves the selected task delta columns over, appended at the
// end of the target column.
func (m boardModel) moveSelected(delta int) tea.Cmd {
	target := m.col + delta
	if target < 0 || target >= columnCount {
		return nil
	}
	tasks := m.columns[m.col]
	if len(tasks) == 0 {
		return nil
	}
	id := tasks[m.row[m.col]].ID
	status := models.BoardStatuses[target]

	return func() tea.Msg {
		if err := Engine.MoveOrReorder(context.Background(), id, status, 1<<30); err != nil {
			return boardLoadedMsg{err: err}
		}
		return groupedMsg()
	}
}

func (m boardModel) deleteSelected() tea.Cmd {
	tasks := m.columns[m.col]
	if len(tasks) == 0 {
		return nil
	}
	id := tasks[m.row[m.col]].ID

	return func() tea.Msg {
		if err := Engine.SoftDelete(context.Background(), id); err != nil {
			return boardLoadedMsg{err: err}
		}
		return groupedMsg()
	}
}

func (m boardModel) View() string {
	if m.loading {
		return "\n  Loading board...\n"
	}

	title := boardTitleStyle.Render(" Fragboard ")

	colWidth := 30
	if m.width > 0 {
		colWidth = max(20, m.width/columnCount-4)
	}

	cols := make([]string, columnCount)
	for i, status := range models.BoardStatuses {
		cols[i] = m.renderColumn(i, status, colWidth)
	}
	body := lipgloss.JoinHorizontal(lipgloss.Top, cols...)

	help := boardHelpStyle.Render("  ←/→ column · ↑/↓ task · m/M move · x delete · r reload · q quit")

	out := "\n" + title + "\n\n" + body + "\n" + help + "\n"
	if m.err != nil {
		out += boardHelpStyle.Render(fmt.Sprintf("  error: %v", m.err)) + "\n"
	}
	return out
}

func (m boardModel) renderColumn(idx int, status models.Status, width int) string {
	header := columnHeaderStyle.Render(fmt.Sprintf("%s (%d)", columnTitle(status), len(m.columns[idx])))

	lines := header + "\n"
	for row, t := range m.columns[idx] {
		parsed := codec.Decode(t.RawContent)
		marker := priorityStyle(parsed.Priority).Render("●")
		label := truncate(t.Title, width-4)
		line := fmt.Sprintf("%s %s", marker, label)
		if idx == m.col && row == m.row[idx] {
			line = selectedCardStyle.Render(line)
		}
		lines += line + "\n"
	}

	style := columnStyle
	if idx == m.col {
		style = activeColumnStyle
	}
	return style.Width(width).Render(lines)
}

func priorityStyle(p models.Priority) lipgloss.Style {
	switch p {
	case models.PriorityHigh:
		return priorityHigh
	case models.PriorityLow:
		return priorityLow
	default:
		return priorityMedium
	}
}

func truncate(s string, n int) string {
	if n < 1 || len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}

var boardCmd = &cobra.Command{
	Use:   "board",
	Short: "Open the interactive terminal board",
	Long: `Open the three-column board in the terminal. The board silently
refreshes in the background and re-renders only when the store's state
actually changed.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Engine == nil {
			return fmt.Errorf("board engine not initialized")
		}

		p := tea.NewProgram(newBoardModel(), tea.WithAltScreen())
		if _, err := p.Run(); err != nil {
			return fmt.Errorf("running board: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(boardCmd)
}
