// Package tui is a terminal browser for stored analysis sessions.
package tui

import (
	"context"
	"fmt"
	"sort"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/rcliao/commentlens/internal/core"
	"github.com/rcliao/commentlens/internal/sentiment"
	"github.com/rcliao/commentlens/internal/tags"
)

// SessionSource loads sessions for display.
type SessionSource interface {
	ListSessions(ctx context.Context) ([]core.SessionSummary, error)
	GetSession(ctx context.Context, id int64) (*core.AnalysisSession, error)
}

type sessionsLoadedMsg struct {
	sessions []core.SessionSummary
	err      error
}

type sessionLoadedMsg struct {
	id      int64
	session *core.AnalysisSession
	err     error
}

// model represents the state of the TUI application.
type model struct {
	ctx    context.Context
	source SessionSource

	sessions    []core.SessionSummary
	details     map[int64]*core.AnalysisSession
	selectedIdx int
	err         error
	loading     bool
	width       int
	height      int
	quitting    bool
}

func newModel(ctx context.Context, source SessionSource) model {
	return model{
		ctx:     ctx,
		source:  source,
		details: make(map[int64]*core.AnalysisSession),
		loading: true,
		width:   100,
	}
}

// Init loads the session list.
func (m model) Init() tea.Cmd {
	return m.loadSessions
}

func (m model) loadSessions() tea.Msg {
	sessions, err := m.source.ListSessions(m.ctx)
	return sessionsLoadedMsg{sessions: sessions, err: err}
}

func (m model) loadSession(id int64) tea.Cmd {
	if _, ok := m.details[id]; ok {
		return nil
	}
	return func() tea.Msg {
		s, err := m.source.GetSession(m.ctx, id)
		return sessionLoadedMsg{id: id, session: s, err: err}
	}
}

func (m model) selected() (core.SessionSummary, bool) {
	if m.selectedIdx < 0 || m.selectedIdx >= len(m.sessions) {
		return core.SessionSummary{}, false
	}
	return m.sessions[m.selectedIdx], true
}

// Update handles messages and updates the model accordingly.
func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case sessionsLoadedMsg:
		m.loading = false
		m.err = msg.err
		m.sessions = msg.sessions
		m.selectedIdx = 0
		if s, ok := m.selected(); ok {
			return m, m.loadSession(s.ID)
		}

	case sessionLoadedMsg:
		if msg.err != nil {
			m.err = msg.err
			break
		}
		m.err = nil
		m.details[msg.id] = msg.session

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		case "up", "k":
			if m.selectedIdx > 0 {
				m.selectedIdx--
			}
		case "down", "j":
			if m.selectedIdx < len(m.sessions)-1 {
				m.selectedIdx++
			}
		case "r":
			m.loading = true
			m.details = make(map[int64]*core.AnalysisSession)
			return m, m.loadSessions
		}
		if s, ok := m.selected(); ok {
			return m, m.loadSession(s.ID)
		}
	}

	return m, nil
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true)
	cursorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("212")).Bold(true)
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

// View renders the TUI.
func (m model) View() string {
	if m.quitting {
		return "Quitting...\n"
	}

	docStyle := lipgloss.NewStyle().Margin(1, 2)
	paneWidth := m.width/2 - 5
	if paneWidth < 20 {
		paneWidth = 20
	}
	listStyle := lipgloss.NewStyle().Border(lipgloss.NormalBorder(), true).Padding(1).Width(paneWidth)
	detailStyle := lipgloss.NewStyle().Border(lipgloss.NormalBorder(), true).Padding(1).Width(paneWidth)

	main := lipgloss.JoinHorizontal(lipgloss.Top,
		listStyle.Render(m.listView()),
		detailStyle.Render(m.detailView()),
	)

	help := dimStyle.Render("[↑/k] Up | [↓/j] Down | [r] Reload | [q] Quit")
	out := main + "\n\n" + help
	if m.err != nil {
		out += "\n" + errStyle.Render("Error: "+m.err.Error())
	}
	return docStyle.Render(out)
}

func (m model) listView() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Analysis sessions"))
	b.WriteString("\n\n")

	if m.loading {
		b.WriteString("Loading...")
		return b.String()
	}
	if len(m.sessions) == 0 {
		b.WriteString("No sessions yet. Run `commentlens analyze <file>` first.")
		return b.String()
	}

	for i, s := range m.sessions {
		line := fmt.Sprintf("%s #%d %s %s (%.1f%%)",
			sentiment.MoodEmoji[sentiment.Classify(s.OverallPositivePercent)],
			s.ID,
			s.CreatedAt.Local().Format("2006-01-02 15:04"),
			s.SourceName,
			s.OverallPositivePercent,
		)
		if i == m.selectedIdx {
			b.WriteString(cursorStyle.Render("> " + line))
		} else {
			b.WriteString("  " + line)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func (m model) detailView() string {
	sum, ok := m.selected()
	if !ok {
		return "Nothing selected."
	}
	s, ok := m.details[sum.ID]
	if !ok {
		return "Loading session..."
	}
	return renderSession(s)
}

func renderSession(s *core.AnalysisSession) string {
	var b strings.Builder

	b.WriteString(titleStyle.Render(fmt.Sprintf("Session #%d: %s", s.ID, s.SourceName)))
	b.WriteString("\n")
	b.WriteString(dimStyle.Render(s.CreatedAt.Local().Format("Mon Jan 2 2006 15:04:05")))
	b.WriteString("\n\n")

	fmt.Fprintf(&b, "Comments: %d (dangerous: %d)\n", s.TotalComments, s.DangerousCommentCount)
	fmt.Fprintf(&b, "Sentiment: %.1f%% positive / %.1f%% negative\n\n", s.OverallPositivePercent, s.OverallNegativePercent)

	if len(s.CategorySentimentPercents) > 0 {
		b.WriteString(titleStyle.Render("Categories"))
		b.WriteString("\n")
		names := make([]string, 0, len(s.CategorySentimentPercents))
		for name := range s.CategorySentimentPercents {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			pct := s.CategorySentimentPercents[name]
			fmt.Fprintf(&b, "  %s %-16s %5.1f%% positive\n", sentiment.MoodEmoji[sentiment.Classify(pct)], name, pct)
		}
		b.WriteString("\n")
	}

	if len(s.TopClusters) > 0 {
		b.WriteString(titleStyle.Render("Top clusters"))
		b.WriteString("\n")
		for i, c := range s.TopClusters {
			fmt.Fprintf(&b, "  %d. [%.2f] %q (%d comments)\n", i+1, c.AverageImportanceScore, c.RepresentativeText, c.CommentCount)
			if t := tags.Format(c.MergedTags); t != "" {
				b.WriteString(dimStyle.Render("     " + t))
				b.WriteString("\n")
			}
		}
		b.WriteString("\n")
	}

	if s.Narrative != "" {
		b.WriteString(titleStyle.Render("Narrative"))
		b.WriteString("\n")
		b.WriteString(s.Narrative)
	}
	return b.String()
}

// Run starts the session browser and blocks until the user quits.
func Run(ctx context.Context, source SessionSource) error {
	p := tea.NewProgram(newModel(ctx, source), tea.WithAltScreen(), tea.WithContext(ctx))

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}
	return nil
}
