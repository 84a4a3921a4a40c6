package cli

import (
	"context"
	"fmt"
	"time"

	"charm.land/bubbles/v2/progress"
	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/lipgloss"

	"github.com/raphaelgruber/quizdeck/internal/client"
	"github.com/raphaelgruber/quizdeck/internal/pipeline"
	"github.com/raphaelgruber/quizdeck/internal/service"
)

const pollInterval = time.Second

// Theme holds the color scheme for the progress display.
type Theme struct {
	Status     lipgloss.Color
	Success    lipgloss.Color
	Error      lipgloss.Color
	Hint       lipgloss.Color
	ProgressBg lipgloss.Color
}

// defaultTheme provides default colors.
var defaultTheme = Theme{
	Status:     lipgloss.Color("#5FAFD7"), // light blue
	Success:    lipgloss.Color("#00D787"), // green
	Error:      lipgloss.Color("#FF005F"), // red
	Hint:       lipgloss.Color("#6C6C6C"), // dim gray
	ProgressBg: lipgloss.Color("#3A3A3A"), // dark gray
}

// Style functions for dynamic theming
func (t Theme) statusStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Status)
}

func (t Theme) completedStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Success).Bold(true)
}

func (t Theme) errorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Error).Bold(true)
}

func (t Theme) hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint).Italic(true)
}

// tickMsg triggers polling the job status
type tickMsg time.Time

// jobUpdateMsg carries the updated job data
type jobUpdateMsg struct {
	job *service.JobView
	err error
}

// stageMsg carries a stage event from a local run
type stageMsg pipeline.StageEvent

// doneMsg ends a local run
type doneMsg struct {
	result *pipeline.Result
	err    error
}

// progressModel shows stage progress for either a local run (fed by stage
// events) or a server job (polled).
type progressModel struct {
	// remote mode
	remote bool
	client *client.Client
	jobID  string

	// local mode
	cancel context.CancelFunc

	label    string
	status   string
	stage    pipeline.Stage
	done     int
	total    int
	result   *pipeline.Result
	progress progress.Model
	theme    Theme
	finished bool
	quitting bool
	err      error
}

func newBar() progress.Model {
	return progress.New(
		progress.WithDefaultBlend(),
		progress.WithWidth(40),
	)
}

// newLocalModel creates a model fed by stage events.
func newLocalModel(label string, cancel context.CancelFunc) progressModel {
	return progressModel{
		cancel:   cancel,
		label:    label,
		status:   "starting",
		total:    len(pipeline.Stages),
		progress: newBar(),
		theme:    defaultTheme,
	}
}

// newRemoteModel creates a model that polls a server job.
func newRemoteModel(c *client.Client, job *service.JobView) progressModel {
	return progressModel{
		remote:   true,
		client:   c,
		jobID:    job.ID,
		label:    "job " + job.ID,
		status:   string(job.Status),
		total:    len(pipeline.Stages),
		progress: newBar(),
		theme:    defaultTheme,
	}
}

// Init returns the initial command (start polling in remote mode).
func (m progressModel) Init() tea.Cmd {
	if m.remote {
		return tea.Batch(tickCmd(), m.progress.Init())
	}
	return m.progress.Init()
}

// Update handles messages and returns the updated model.
func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			if m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit
		}

	case tickMsg:
		return m, m.fetchJob()

	case jobUpdateMsg:
		if msg.err != nil {
			m.err = fmt.Errorf("failed to fetch job status: %w", msg.err)
			m.finished = true
			return m, tea.Quit
		}
		if msg.job == nil {
			m.err = fmt.Errorf("job %s not found", m.jobID)
			m.finished = true
			return m, tea.Quit
		}
		return m.applyJob(msg.job)

	case stageMsg:
		m.applyStage(pipeline.StageEvent(msg))
		return m, nil

	case doneMsg:
		m.finished = true
		m.result = msg.result
		m.err = msg.err
		if msg.err == nil {
			m.done = m.total
		}
		return m, tea.Quit

	case progress.FrameMsg:
		// Update progress bar animation
		var cmd tea.Cmd
		m.progress, cmd = m.progress.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m *progressModel) applyStage(ev pipeline.StageEvent) {
	if ev.SourceID != "" {
		m.label = ev.SourceID
	}
	switch ev.Stage {
	case pipeline.StageFailed:
		m.status = "failed at " + string(ev.Failed)
	case pipeline.StageDone:
		m.stage = ev.Stage
		m.status = string(ev.Stage)
		m.done = m.total
	default:
		m.stage = ev.Stage
		m.status = string(ev.Stage)
		m.done = ev.Stage.Index()
	}
}

func (m progressModel) applyJob(job *service.JobView) (tea.Model, tea.Cmd) {
	if job.SourceID != "" {
		m.label = job.SourceID
	}
	m.stage = job.Stage
	m.done = job.Progress
	if job.Total > 0 {
		m.total = job.Total
	}
	m.status = string(job.Status)
	if job.Stage != "" && job.Status == service.JobStatusRunning {
		m.status = string(job.Stage)
	}

	switch job.Status {
	case service.JobStatusCompleted:
		m.finished = true
		m.result = job.Result
		return m, tea.Quit
	case service.JobStatusFailed:
		m.finished = true
		m.result = job.Result
		m.err = jobError(job)
		return m, tea.Quit
	}

	// Continue polling for running jobs
	return m, tickCmd()
}

func jobError(job *service.JobView) error {
	switch {
	case job.Error == "":
		return fmt.Errorf("job failed with unknown error")
	case job.ErrorKind != "":
		return fmt.Errorf("%s: %s", job.ErrorKind, job.Error)
	default:
		return fmt.Errorf("%s", job.Error)
	}
}

// View renders the progress display.
func (m progressModel) View() tea.View {
	return tea.NewView(m.renderContent())
}

// renderContent builds the display string.
func (m progressModel) renderContent() string {
	if m.finished || m.quitting {
		return m.finalView()
	}

	var pct float64
	if m.total > 0 {
		pct = float64(m.done) / float64(m.total)
	}

	status := m.theme.statusStyle().Render(fmt.Sprintf("[%s]", m.status))
	progressBar := m.progress.ViewAs(pct)
	counts := fmt.Sprintf("%d/%d stages", m.done, m.total)

	hint := "Press Ctrl+C to cancel"
	if m.remote {
		hint = "Press Ctrl+C to continue in background"
	}

	return fmt.Sprintf("%s\n%s %s %s\n%s\n", m.label, status, progressBar, counts, m.theme.hintStyle().Render(hint))
}

// finalView renders the completion message.
func (m progressModel) finalView() string {
	if m.quitting {
		if m.remote {
			msg := fmt.Sprintf("\nJob %s continues in background.\nUse 'quizdeck jobs %s' to check status.\n",
				m.jobID, m.jobID)
			return m.theme.hintStyle().Render(msg)
		}
		return m.theme.hintStyle().Render("\nCancelled.\n")
	}

	if m.err != nil {
		return m.theme.errorStyle().Render(fmt.Sprintf("\n✗ Failed: %s\n", m.err)) + failureHint(m.result, m.err)
	}

	return formatResult(m.theme, m.result)
}

// fetchJob fetches the current job status from the server.
// Runs in a separate goroutine (command) to avoid blocking Update().
func (m progressModel) fetchJob() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		job, err := m.client.GetJob(ctx, m.jobID)
		return jobUpdateMsg{job: job, err: err}
	}
}

// tickCmd returns a command that sends a tick after the poll interval.
func tickCmd() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// runFunc executes a pipeline operation, reporting stages to obs.
type runFunc func(ctx context.Context, obs pipeline.Observer) (*pipeline.Result, error)

// RunLocalProgress runs fn with the interactive progress display. Ctrl+C
// cancels the run. The final view already shows the outcome; the result and
// error are returned for the exit status.
func RunLocalProgress(ctx context.Context, label string, fn runFunc) (*pipeline.Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(newLocalModel(label, cancel))

	results := make(chan doneMsg, 1)
	go func() {
		res, err := fn(ctx, func(ev pipeline.StageEvent) { p.Send(stageMsg(ev)) })
		msg := doneMsg{result: res, err: err}
		results <- msg
		p.Send(msg)
	}()

	_, uiErr := p.Run()
	// The pipeline stops at its next context check if the UI ended first.
	cancel()
	out := <-results
	if uiErr != nil {
		return out.result, fmt.Errorf("progress UI error: %w", uiErr)
	}
	return out.result, out.err
}

// RunJobProgress runs the interactive progress UI for a server job.
// Returns nil on success or Ctrl+C (background), error on job failure.
func RunJobProgress(c *client.Client, job *service.JobView) error {
	p := tea.NewProgram(newRemoteModel(c, job))

	finalModel, err := p.Run()
	if err != nil {
		return fmt.Errorf("progress UI error: %w", err)
	}

	// Check final state
	if m, ok := finalModel.(progressModel); ok {
		// If user quit with Ctrl+C, job continues in background - not an error
		if m.quitting {
			return nil
		}
		if m.err != nil {
			return m.err
		}
	}

	return nil
}
