package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"codescope/internal/index"
	"codescope/internal/query"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
)

const helpText = `Type an identifier, keywords or a "quoted phrase".
Filters: lang:go,python  kind:function  path:internal/**  ext:ts
Prefix with symbol: or text: to force a branch.

Commands:
  /reindex  - run the indexer again
  /clear    - clear results
  /exit     - quit
  /help     - show this help`

type searchModel struct {
	viewport    viewport.Model
	input       textinput.Model
	spinner     spinner.Model
	renderer    *glamour.TermRenderer
	entries     []searchEntry
	engine      *index.Engine
	ctx         context.Context
	status      index.Status
	searching   bool
	width       int
	height      int
	initialized bool
}

type searchEntry struct {
	kind    string // "query", "results", "error" or "system"
	content string
	elapsed time.Duration
}

// resultsMsg is sent when a query completes.
type resultsMsg struct {
	raw     string
	results []query.Result
	elapsed time.Duration
	err     error
}

// statusMsg carries a fresh engine status for the status bar.
type statusMsg struct {
	status index.Status
	err    error
}

func newSearchModel(cfg Config) searchModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = selectedStyle

	ti := textinput.New()
	ti.Placeholder = "Search symbols and code..."
	ti.CharLimit = 500
	ti.Focus()

	return searchModel{
		spinner: sp,
		input:   ti,
		engine:  cfg.Engine,
		ctx:     cfg.Ctx,
	}
}

func (m *searchModel) initViewport(width, height int) {
	m.width = width
	m.height = height

	// Layout: viewport + status bar (1 line) + input (1 line) + gap (1 line).
	vpHeight := height - 3
	if vpHeight < 5 {
		vpHeight = 5
	}
	m.viewport = viewport.New(width, vpHeight)
	m.viewport.SetContent(dimStyle.Render(helpText))

	m.input.Width = width - 4

	wrap := width - 2
	if wrap < 20 {
		wrap = 80
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(wrap),
	)
	if err == nil {
		m.renderer = r
	}

	m.initialized = true
}

func runQuery(ctx context.Context, eng *index.Engine, raw string) tea.Cmd {
	return func() tea.Msg {
		start := time.Now()
		opts := query.Options{}
		for _, p := range []struct {
			prefix string
			mode   query.Mode
		}{{"symbol:", query.ModeSymbol}, {"text:", query.ModeText}} {
			if rest, ok := strings.CutPrefix(raw, p.prefix); ok {
				raw = strings.TrimSpace(rest)
				opts.Mode = p.mode
				break
			}
		}
		results, err := eng.Query(ctx, raw, opts)
		return resultsMsg{raw: raw, results: results, elapsed: time.Since(start), err: err}
	}
}

func fetchStatus(ctx context.Context, eng *index.Engine) tea.Cmd {
	return func() tea.Msg {
		st, err := eng.Status(ctx)
		return statusMsg{status: st, err: err}
	}
}

func (m searchModel) Update(msg tea.Msg) (searchModel, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.initViewport(msg.Width, msg.Height)
		m.viewport.SetContent(m.renderEntries())
		return m, nil

	case statusMsg:
		if msg.err == nil {
			m.status = msg.status
		}
		return m, nil

	case resultsMsg:
		m.searching = false
		if msg.err != nil {
			m.entries = append(m.entries, searchEntry{kind: "error", content: msg.err.Error()})
		} else {
			m.entries = append(m.entries, searchEntry{
				kind:    "results",
				content: query.Markdown(msg.raw, msg.results),
				elapsed: msg.elapsed,
			})
		}
		m.viewport.SetContent(m.renderEntries())
		m.viewport.GotoBottom()
		return m, fetchStatus(m.ctx, m.engine)

	case spinner.TickMsg:
		if m.searching {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			m.viewport.SetContent(m.renderEntries())
			m.viewport.GotoBottom()
			cmds = append(cmds, cmd)
		}
		return m, tea.Batch(cmds...)

	case tea.KeyMsg:
		if m.searching {
			return m, nil
		}
		if msg.Type == tea.KeyEnter {
			raw := strings.TrimSpace(m.input.Value())
			if raw == "" {
				return m, nil
			}
			m.input.Reset()

			switch raw {
			case "/exit", "/quit":
				return m, tea.Quit
			case "/clear":
				m.entries = nil
				m.viewport.SetContent(dimStyle.Render("Results cleared."))
				return m, nil
			case "/help":
				m.entries = append(m.entries, searchEntry{kind: "system", content: helpText})
				m.viewport.SetContent(m.renderEntries())
				m.viewport.GotoBottom()
				return m, nil
			case "/reindex":
				return m, func() tea.Msg { return reindexMsg{} }
			}

			m.entries = append(m.entries, searchEntry{kind: "query", content: raw})
			m.searching = true
			m.viewport.SetContent(m.renderEntries())
			m.viewport.GotoBottom()

			return m, tea.Batch(m.spinner.Tick, runQuery(m.ctx, m.engine, raw))
		}
	}

	if !m.searching {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m searchModel) renderMarkdown(content string) string {
	if m.renderer == nil {
		return resultStyle.Render(content)
	}
	rendered, err := m.renderer.Render(content)
	if err != nil {
		return resultStyle.Render(content)
	}
	return strings.TrimRight(rendered, "\n")
}

func (m searchModel) renderEntries() string {
	var sb strings.Builder
	for _, e := range m.entries {
		switch e.kind {
		case "query":
			sb.WriteString(queryStyle.Render("> ") + e.content + "\n\n")
		case "results":
			sb.WriteString(m.renderMarkdown(e.content) + "\n")
			sb.WriteString(dimStyle.Render(fmt.Sprintf("(%s)", e.elapsed.Round(time.Microsecond))) + "\n\n")
		case "error":
			sb.WriteString(errorStyle.Render("Error: "+e.content) + "\n\n")
		case "system":
			sb.WriteString(dimStyle.Render(e.content) + "\n\n")
		}
	}

	if m.searching {
		sb.WriteString(m.spinner.View() + " " + dimStyle.Render("Searching...") + "\n")
	}

	return sb.String()
}

func (m searchModel) statusLine() string {
	st := m.status
	line := fmt.Sprintf(" codescope • %d files • %d symbols • %d calls", st.FileCount, st.SymbolCount, st.CallCount)
	if st.DegradedCount > 0 {
		line += fmt.Sprintf(" • %d text-only", st.DegradedCount)
	}
	line += fmt.Sprintf(" • cache %.0f%% • p95 %s", st.CacheHitRate*100, st.QueryP95.Round(time.Microsecond))
	if m.searching {
		line += " • searching..."
	}
	return line
}

func (m searchModel) View() string {
	if !m.initialized {
		return ""
	}

	bar := statusBarStyle
	if m.status.DegradedCount > 0 {
		bar = statusWarnStyle
	}
	statusBar := bar.Width(m.width).Render(m.statusLine())

	return lipgloss.JoinVertical(
		lipgloss.Left,
		m.viewport.View(),
		statusBar,
		m.input.View(),
	)
}
