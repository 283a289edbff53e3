package tui

import (
	"fmt"
	"time"

	"codescope/internal/index"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

type indexingModel struct {
	spinner        spinner.Model
	phase          string
	filesProcessed int
	filesTotal     int
	done           bool
	summary        index.Summary
	err            error
}

func newIndexingModel() indexingModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = selectedStyle
	return indexingModel{
		spinner: sp,
		phase:   "walking",
	}
}

// indexDoneMsg is sent when indexing completes.
type indexDoneMsg struct {
	summary index.Summary
	err     error
}

// indexProgressMsg is sent by the pipeline as it advances.
type indexProgressMsg struct {
	phase          string
	filesProcessed int
	filesTotal     int
}

// reindexMsg asks the top-level model to run the pipeline again.
type reindexMsg struct{}

func runIndex(cfg Config) tea.Cmd {
	return func() tea.Msg {
		sum, err := cfg.Engine.Index(cfg.Ctx, "", index.Options{
			Progress: func(stage string, current, total int) {
				cfg.program.send(indexProgressMsg{
					phase:          stage,
					filesProcessed: current,
					filesTotal:     total,
				})
			},
		})
		return indexDoneMsg{summary: sum, err: err}
	}
}

func (m indexingModel) Update(msg tea.Msg) (indexingModel, tea.Cmd) {
	switch msg := msg.(type) {
	case indexDoneMsg:
		m.done = true
		m.summary = msg.summary
		m.err = msg.err
		return m, nil
	case indexProgressMsg:
		m.phase = msg.phase
		m.filesProcessed = msg.filesProcessed
		m.filesTotal = msg.filesTotal
		return m, nil
	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m indexingModel) View() string {
	s := "\n"
	s += titleStyle.Render("  Indexing") + "\n\n"

	if m.done {
		if m.err != nil {
			s += errorStyle.Render(fmt.Sprintf("  Error: %v", m.err)) + "\n\n"
			s += dimStyle.Render("  Press Enter to search what was indexed, or q to quit.") + "\n"
			return s
		}
		sum := m.summary
		s += successStyle.Render(fmt.Sprintf("  ✓ Indexing complete in %s", sum.Duration.Round(time.Millisecond))) + "\n\n"
		s += fmt.Sprintf("  Files: %d seen, %d indexed, %d unchanged\n",
			sum.FilesTotal, sum.FilesIndexed, sum.FilesSkipped)
		if sum.FilesDegraded > 0 {
			s += warnStyle.Render(fmt.Sprintf("  %d indexed as text only", sum.FilesDegraded)) + "\n"
		}
		if sum.FilesFailed > 0 {
			s += errorStyle.Render(fmt.Sprintf("  %d failed", sum.FilesFailed)) + "\n"
		}
		s += fmt.Sprintf("  Calls resolved: %d\n", sum.CallsResolved)
		s += "\n"
		s += dimStyle.Render("  Press Enter to start searching") + "\n"
		return s
	}

	s += fmt.Sprintf("  %s %s\n", m.spinner.View(), m.phase)
	if m.filesTotal > 0 {
		s += fmt.Sprintf("  %d / %d\n", m.filesProcessed, m.filesTotal)
	}
	s += "\n"
	s += dimStyle.Render("  Unchanged files are skipped on later runs.") + "\n"
	return s
}
