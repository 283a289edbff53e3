package tui

import (
	"fmt"

	"codescope/internal/index"

	tea "github.com/charmbracelet/bubbletea"
)

type indexStatus int

const (
	indexNotFound indexStatus = iota
	indexReady
	indexDegraded
)

type welcomeModel struct {
	status indexStatus
	stats  index.Status
	err    error
	ready  bool // true once the check has completed
}

// checkIndexMsg is sent after checking the index status.
type checkIndexMsg struct {
	status indexStatus
	stats  index.Status
	err    error
}

func checkIndex(cfg Config) tea.Cmd {
	return func() tea.Msg {
		st, err := cfg.Engine.Status(cfg.Ctx)
		if err != nil {
			return checkIndexMsg{status: indexNotFound, err: err}
		}
		switch {
		case st.FileCount == 0:
			return checkIndexMsg{status: indexNotFound, stats: st}
		case st.DegradedCount > 0:
			return checkIndexMsg{status: indexDegraded, stats: st}
		}
		return checkIndexMsg{status: indexReady, stats: st}
	}
}

func (m welcomeModel) Update(msg tea.Msg) (welcomeModel, tea.Cmd) {
	switch msg := msg.(type) {
	case checkIndexMsg:
		m.status = msg.status
		m.stats = msg.stats
		m.err = msg.err
		m.ready = true
	}
	return m, nil
}

func (m welcomeModel) View(root string) string {
	s := "\n"
	s += titleStyle.Render("  ◆ codescope") + "\n"
	s += subtitleStyle.Render("  Symbols, call graph and full-text search for "+root) + "\n\n"

	if !m.ready {
		s += dimStyle.Render("  Checking index...") + "\n"
		return s
	}

	switch m.status {
	case indexReady:
		s += successStyle.Render("  ✓ Index ready") + "\n"
		s += dimStyle.Render(fmt.Sprintf("    %d files, %d symbols", m.stats.FileCount, m.stats.SymbolCount)) + "\n"
	case indexDegraded:
		s += successStyle.Render("  ✓ Index ready") + "\n"
		s += warnStyle.Render(fmt.Sprintf("  ⚠ %d of %d files indexed as text only", m.stats.DegradedCount, m.stats.FileCount)) + "\n"
	case indexNotFound:
		s += warnStyle.Render("  ✗ No index found") + "\n"
		if m.err != nil {
			s += dimStyle.Render("    "+m.err.Error()) + "\n"
		}
	}

	s += "\n"
	if m.status == indexNotFound {
		s += dimStyle.Render("  Press Enter to index, q to quit") + "\n"
	} else {
		s += dimStyle.Render("  Press Enter to search, q to quit") + "\n"
	}
	return s
}
