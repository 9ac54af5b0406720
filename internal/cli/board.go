package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/alexanderramin/crq/internal/cli/formatter"
	"github.com/alexanderramin/crq/internal/domain"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

type boardKeyMap struct {
	Up       key.Binding
	Down     key.Binding
	Open     key.Binding
	Close    key.Binding
	Approve  key.Binding
	Reject   key.Binding
	SendCAB  key.Binding
	Refresh  key.Binding
	Quit     key.Binding
	ShowHelp key.Binding
}

func newBoardKeyMap() boardKeyMap {
	return boardKeyMap{
		Up:       key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		Down:     key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		Open:     key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "details")),
		Close:    key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
		Approve:  key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "approve")),
		Reject:   key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "reject")),
		SendCAB:  key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "submit to CAB")),
		Refresh:  key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
		Quit:     key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
		ShowHelp: key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "more")),
	}
}

func (k boardKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Open, k.Approve, k.Reject, k.Refresh, k.Quit, k.ShowHelp}
}

func (k boardKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Open, k.Close},
		{k.Approve, k.Reject, k.SendCAB},
		{k.Refresh, k.Quit, k.ShowHelp},
	}
}

type boardLoadedMsg struct {
	rows  []*domain.ChangeRequest
	names formatter.Names
	err   error
}

type boardActionMsg struct {
	verb string
	cr   *domain.ChangeRequest
	err  error
}

type boardDetailMsg struct {
	text string
	err  error
}

// boardModel is the CAB dashboard: the review queue with approve and
// reject actions for the acting user.
type boardModel struct {
	ctx   context.Context
	app   *App
	actor *domain.User
	keys  boardKeyMap
	help  help.Model

	rows    []*domain.ChangeRequest
	names   formatter.Names
	cursor  int
	loading bool
	err     error
	status  string
	detail  string
	width   int
}

func newBoardModel(ctx context.Context, app *App, actor *domain.User) *boardModel {
	return &boardModel{
		ctx:     ctx,
		app:     app,
		actor:   actor,
		keys:    newBoardKeyMap(),
		help:    help.New(),
		loading: true,
	}
}

func (m *boardModel) Init() tea.Cmd {
	return m.load()
}

func (m *boardModel) load() tea.Cmd {
	return func() tea.Msg {
		rows, err := m.app.Query.CABQueue(m.ctx, m.app.now())
		if err != nil {
			return boardLoadedMsg{err: err}
		}
		names, err := m.app.names(m.ctx)
		return boardLoadedMsg{rows: rows, names: names, err: err}
	}
}

func (m *boardModel) selected() *domain.ChangeRequest {
	if m.cursor < 0 || m.cursor >= len(m.rows) {
		return nil
	}
	return m.rows[m.cursor]
}

func (m *boardModel) act(verb string, run func(ctx context.Context, ref, actorID string) (*domain.ChangeRequest, error)) tea.Cmd {
	cr := m.selected()
	if cr == nil {
		return nil
	}
	id := cr.ID
	return func() tea.Msg {
		updated, err := run(m.ctx, id, m.actor.ID)
		return boardActionMsg{verb: verb, cr: updated, err: err}
	}
}

func (m *boardModel) openDetail() tea.Cmd {
	cr := m.selected()
	if cr == nil {
		return nil
	}
	id := cr.ID
	return func() tea.Msg {
		d, err := m.app.Query.Get(m.ctx, id, m.actor.ID)
		if err != nil {
			return boardDetailMsg{err: err}
		}
		return boardDetailMsg{text: formatter.FormatRequestDetail(d, m.names, m.app.now())}
	}
}

func (m *boardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		return m, nil

	case boardLoadedMsg:
		m.loading = false
		m.err = msg.err
		if msg.err != nil {
			return m, nil
		}
		m.rows, m.names = msg.rows, msg.names
		if m.cursor >= len(m.rows) {
			m.cursor = max(len(m.rows)-1, 0)
		}
		return m, nil

	case boardActionMsg:
		if msg.err != nil {
			m.status = strings.TrimSpace(formatter.FormatError(msg.err))
			return m, nil
		}
		m.status = formatter.StyleGreen.Render(fmt.Sprintf("%s %s", msg.verb, msg.cr.Number)) +
			" " + formatter.StatusBadge(msg.cr.Status)
		m.loading = true
		return m, m.load()

	case boardDetailMsg:
		if msg.err != nil {
			m.status = strings.TrimSpace(formatter.FormatError(msg.err))
			return m, nil
		}
		m.detail = msg.text
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m *boardModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Quit) {
		return m, tea.Quit
	}
	if m.detail != "" {
		if key.Matches(msg, m.keys.Close) || key.Matches(msg, m.keys.Open) {
			m.detail = ""
		}
		return m, nil
	}

	wf := m.app.Workflow
	switch {
	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.rows)-1 {
			m.cursor++
		}
	case key.Matches(msg, m.keys.Open):
		return m, m.openDetail()
	case key.Matches(msg, m.keys.Approve):
		return m, m.act("Approved", func(ctx context.Context, ref, actorID string) (*domain.ChangeRequest, error) {
			return wf.ApproveByCAB(ctx, ref, actorID, "")
		})
	case key.Matches(msg, m.keys.Reject):
		return m, m.act("Rejected", func(ctx context.Context, ref, actorID string) (*domain.ChangeRequest, error) {
			return wf.RejectByCAB(ctx, ref, actorID, "")
		})
	case key.Matches(msg, m.keys.SendCAB):
		return m, m.act("Submitted", wf.SubmitForCABApproval)
	case key.Matches(msg, m.keys.Refresh):
		m.loading = true
		m.status = ""
		return m, m.load()
	case key.Matches(msg, m.keys.ShowHelp):
		m.help.ShowAll = !m.help.ShowAll
	}
	return m, nil
}

func (m *boardModel) View() string {
	var b strings.Builder
	b.WriteString(formatter.Header("CAB board") + "  " + formatter.Dim("as "+m.actor.Username) + "\n\n")

	switch {
	case m.err != nil:
		b.WriteString(formatter.FormatError(m.err))
	case m.detail != "":
		b.WriteString(m.detail)
	case m.loading && len(m.rows) == 0:
		b.WriteString(formatter.Dim("Loading…") + "\n")
	case len(m.rows) == 0:
		b.WriteString(formatter.Dim("The CAB queue is empty.") + "\n")
	default:
		rows := make([][]string, 0, len(m.rows))
		for i, cr := range m.rows {
			marker := " "
			if i == m.cursor {
				marker = formatter.StyleHeader.Render("▸")
			}
			tally := formatter.Dim("--")
			if cr.Status == domain.StatusSubmittedForCABApproval {
				tally = formatter.TallyBar(cr.CAB, 6)
			}
			rows = append(rows, []string{
				marker,
				formatter.Bold(cr.Number),
				formatter.Truncate(cr.Title, 36),
				formatter.StatusBadge(cr.Status),
				formatter.RiskBadge(cr.Risk),
				tally,
				formatter.Window(cr.ScheduledStart, cr.ScheduledEnd),
			})
		}
		b.WriteString(formatter.RenderTable([]string{"", "NUMBER", "TITLE", "STATUS", "RISK", "CAB", "WINDOW"}, rows))
	}

	if m.status != "" {
		b.WriteString("\n" + m.status + "\n")
	}
	b.WriteString("\n" + m.help.View(m.keys))
	return b.String()
}

func newBoardCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "board",
		Short: "Interactive CAB dashboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if !app.interactive() {
				return domain.Invalid("the board needs an interactive terminal; use 'crq queue cab' instead")
			}
			actor, err := app.actor(ctx)
			if err != nil {
				return err
			}
			p := tea.NewProgram(newBoardModel(ctx, app, actor),
				tea.WithAltScreen(),
				tea.WithContext(ctx),
				tea.WithInput(cmd.InOrStdin()),
				tea.WithOutput(cmd.OutOrStdout()),
			)
			_, err = p.Run()
			return err
		},
	}
}
