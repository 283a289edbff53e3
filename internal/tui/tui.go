package tui

import (
	"context"

	"codescope/internal/index"

	tea "github.com/charmbracelet/bubbletea"
)

// ViewState represents which screen is active.
type ViewState int

const (
	ViewWelcome ViewState = iota
	ViewIndexing
	ViewSearch
)

// programRef is an indirect pointer to the tea.Program so background goroutines
// can send messages. It must be set after tea.NewProgram returns but before Run.
type programRef struct {
	p *tea.Program
}

func (r *programRef) send(msg tea.Msg) {
	if r != nil && r.p != nil {
		r.p.Send(msg)
	}
}

// Config holds what the CLI layer hands to the UI.
type Config struct {
	Engine *index.Engine
	// Ctx bounds background indexing. Defaults to context.Background.
	Ctx context.Context

	program *programRef
}

// Model is the top-level Bubble Tea model.
type Model struct {
	state  ViewState
	config Config
	width  int
	height int

	welcome  welcomeModel
	indexing indexingModel
	search   searchModel
}

// New creates a new TUI model with the given config.
func New(cfg Config) Model {
	if cfg.Ctx == nil {
		cfg.Ctx = context.Background()
	}
	return Model{
		state:  ViewWelcome,
		config: cfg,
	}
}

func (m Model) Init() tea.Cmd {
	return checkIndex(m.config)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if m.state == ViewSearch {
			var c tea.Cmd
			m.search, c = m.search.Update(msg)
			return m, c
		}
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit
		case "q":
			if m.state != ViewSearch {
				return m, tea.Quit
			}
		}

	case reindexMsg:
		return m, m.startIndexing()
	}

	var cmd tea.Cmd

	switch m.state {
	case ViewWelcome:
		m.welcome, cmd = m.welcome.Update(msg)
		if cmd != nil {
			return m, cmd
		}
		if keyMsg, ok := msg.(tea.KeyMsg); ok && keyMsg.Type == tea.KeyEnter && m.welcome.ready {
			if m.welcome.status == indexReady {
				return m, m.transitionToSearch()
			}
			return m, m.startIndexing()
		}

	case ViewIndexing:
		m.indexing, cmd = m.indexing.Update(msg)
		if cmd != nil {
			return m, cmd
		}
		if keyMsg, ok := msg.(tea.KeyMsg); ok && keyMsg.Type == tea.KeyEnter && m.indexing.done {
			return m, m.transitionToSearch()
		}

	case ViewSearch:
		m.search, cmd = m.search.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m *Model) startIndexing() tea.Cmd {
	m.state = ViewIndexing
	m.indexing = newIndexingModel()
	return tea.Batch(m.indexing.spinner.Tick, runIndex(m.config))
}

func (m *Model) transitionToSearch() tea.Cmd {
	m.search = newSearchModel(m.config)
	m.search.initViewport(m.width, m.height)
	m.state = ViewSearch
	return fetchStatus(m.config.Ctx, m.config.Engine)
}

func (m Model) View() string {
	switch m.state {
	case ViewWelcome:
		return m.welcome.View(m.config.Engine.Root())
	case ViewIndexing:
		return m.indexing.View()
	case ViewSearch:
		return m.search.View()
	}
	return ""
}

// Run starts the TUI program against an open engine.
func Run(ctx context.Context, eng *index.Engine) error {
	ref := &programRef{}
	model := New(Config{Engine: eng, Ctx: ctx, program: ref})
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	ref.p = p
	_, err := p.Run()
	return err
}
