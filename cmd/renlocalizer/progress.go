package main

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	log "github.com/sirupsen/logrus"
	"golang.org/x/term"

	"github.com/renlocalizer/renlocalizer/internal/logging"
	"github.com/renlocalizer/renlocalizer/internal/model"
	"github.com/renlocalizer/renlocalizer/internal/pipeline"
)

// logTailSize is how many recent log lines progressModel.View renders below
// the progress bar.
const logTailSize = 5

var (
	stageStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	doneStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
	failStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
)

// runWithPlainLogs drives the pipeline without any TUI — the path taken
// when stdout isn't a real terminal (piped output, CI), so a bubbletea
// renderer would just emit garbled escape codes.
func runWithPlainLogs(ctx context.Context, orch *pipeline.Orchestrator, inputPath string) *model.PipelineResult {
	started := make(chan <-chan pipeline.Event, 1)
	resultCh := make(chan *model.PipelineResult, 1)

	go func() {
		resultCh <- orch.RunWithStartSignal(ctx, inputPath, started)
	}()

	events := <-started
	for e := range events {
		logEvent(e)
	}
	return <-resultCh
}

func logEvent(e pipeline.Event) {
	switch e.Kind {
	case pipeline.EventStageChanged:
		log.WithField("stage", e.Stage).Info(e.Message)
	case pipeline.EventProgress:
		log.Debugf("%s (%d/%d)", e.Text, e.Current, e.Total)
	case pipeline.EventWarning:
		log.WithField("title", e.Title).Warn(e.Message)
	case pipeline.EventLog:
		log.Debug(e.Message)
	case pipeline.EventFinished:
		if e.Result != nil {
			log.WithField("success", e.Result.Success).Info(e.Result.Message)
		}
	}
}

// progressModel is the bubbletea model for the interactive run: a stage
// label, a progress bar, and a scrolling tail of the last few log lines.
type progressModel struct {
	ctx      context.Context
	orch     *pipeline.Orchestrator
	events   <-chan pipeline.Event
	bar      progress.Model
	stage    model.Stage
	message  string
	warnings []string
	logTail  []string
	result   *model.PipelineResult
	quitting bool
}

type eventMsg pipeline.Event

func newProgressModel(ctx context.Context, orch *pipeline.Orchestrator, events <-chan pipeline.Event) progressModel {
	bar := progress.New(progress.WithDefaultGradient())
	// Size the bar for the real terminal up front; WindowSizeMsg corrects it
	// later if the user resizes, but a reasonable width from the first frame
	// beats the bubbles default on a narrow terminal.
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 4 {
		bar.Width = w - 4
	}
	return progressModel{
		ctx:    ctx,
		orch:   orch,
		events: events,
		bar:    bar,
		stage:  model.StageIdle,
	}
}

func waitForEvent(events <-chan pipeline.Event) tea.Cmd {
	return func() tea.Msg {
		e, ok := <-events
		if !ok {
			return nil
		}
		return eventMsg(e)
	}
}

func (m progressModel) Init() tea.Cmd {
	return waitForEvent(m.events)
}

func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.orch.Stop()
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.bar.Width = msg.Width - 4
		return m, nil

	case eventMsg:
		e := pipeline.Event(msg)
		switch e.Kind {
		case pipeline.EventStageChanged:
			m.stage = e.Stage
			m.message = e.Message
		case pipeline.EventProgress:
			var cmd tea.Cmd
			if e.Total > 0 {
				cmd = m.bar.SetPercent(float64(e.Current) / float64(e.Total))
			}
			m.logTail = logging.RecentTail(logTailSize)
			return m, tea.Batch(cmd, waitForEvent(m.events))
		case pipeline.EventWarning:
			m.warnings = append(m.warnings, fmt.Sprintf("%s: %s", e.Title, e.Message))
		case pipeline.EventFinished:
			m.quitting = true
			m.result = e.Result
			return m, tea.Quit
		}
		m.logTail = logging.RecentTail(logTailSize)
		return m, waitForEvent(m.events)

	case progress.FrameMsg:
		next, cmd := m.bar.Update(msg)
		m.bar = next.(progress.Model)
		return m, cmd
	}
	return m, nil
}

func (m progressModel) View() string {
	if m.quitting && m.result != nil {
		if m.result.Success {
			return doneStyle.Render(fmt.Sprintf("done: %s\n", m.result.Message))
		}
		return failStyle.Render(fmt.Sprintf("failed: %s\n", m.result.Message))
	}

	view := stageStyle.Render(string(m.stage)) + "  " + m.message + "\n" + m.bar.View() + "\n"
	for _, w := range m.warnings {
		view += warnStyle.Render("! "+w) + "\n"
	}
	for _, line := range m.logTail {
		view += line + "\n"
	}
	view += "\n(press q to stop)\n"
	return view
}

// runWithProgressUI drives the pipeline under an interactive bubbletea
// renderer, matching the Model/Update/View shape the teacher's internal/tui
// status and login screens use, generalized from a spinner to a progress bar.
func runWithProgressUI(ctx context.Context, orch *pipeline.Orchestrator, inputPath string) *model.PipelineResult {
	started := make(chan <-chan pipeline.Event, 1)
	resultCh := make(chan *model.PipelineResult, 1)

	go func() {
		resultCh <- orch.RunWithStartSignal(ctx, inputPath, started)
	}()

	events := <-started
	p := tea.NewProgram(newProgressModel(ctx, orch, events))
	if _, err := p.Run(); err != nil {
		log.WithError(err).Warn("renlocalizer: progress UI exited with an error")
	}
	return <-resultCh
}
