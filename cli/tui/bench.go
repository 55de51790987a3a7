package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/justapithecus/chunkwire/bench"
)

type benchProgressMsg bench.Progress

type benchDoneMsg struct {
	res *bench.Result
	err error
}

// BenchModel is a live Bubble Tea model for a benchmark run.
type BenchModel struct {
	bar      progress.Model
	last     bench.Progress
	res      *bench.Result
	err      error
	done     bool
	quitting bool
	cancel   context.CancelFunc
}

// NewBenchModel creates a bench model. cancel is called when the user quits
// before the run finishes.
func NewBenchModel(cancel context.CancelFunc) BenchModel {
	return BenchModel{
		bar:    progress.New(progress.WithDefaultGradient(), progress.WithWidth(48)),
		cancel: cancel,
	}
}

// Init implements tea.Model.
func (m BenchModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m BenchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case benchProgressMsg:
		m.last = bench.Progress(msg)
	case benchDoneMsg:
		m.done = true
		m.res, m.err = msg.res, msg.err
		return m, tea.Quit
	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			m.quitting = true
			if m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m BenchModel) percent() float64 {
	if m.last.Writes == 0 {
		return 0
	}
	return float64(m.last.Write) / float64(m.last.Writes)
}

// View implements tea.Model.
func (m BenchModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("chunkwire bench"))
	b.WriteString("\n")
	b.WriteString(m.bar.ViewAs(m.percent()))
	b.WriteString("\n\n")

	state := "running"
	switch {
	case m.err != nil:
		state = "failed"
	case m.done:
		state = "done"
	}
	rows := [][2]string{
		{"State", OutcomeStyle(state).Render(state)},
		{"Writes", fmt.Sprintf("%d / %d", m.last.Write, m.last.Writes)},
		{"Sent", fmt.Sprintf("%.2f MB", float64(m.last.SentBytes)/(1<<20))},
		{"Rate", fmt.Sprintf("%.2f MB/s", m.last.RateMBps)},
		{"Heap delta", fmt.Sprintf("%.2f MB", float64(m.last.HeapDelta)/(1<<20))},
	}
	if m.err != nil {
		rows = append(rows, [2]string{"Error", ErrorStyle.Render(m.err.Error())})
	}
	for _, r := range rows {
		fmt.Fprintf(&b, "%s %s\n", LabelStyle.Render(r[0]+":"), ValueStyle.Render(r[1]))
	}

	b.WriteString(HelpStyle.Render("Press q or Ctrl+C to stop"))
	return b.String()
}

// RunBench runs a benchmark behind the live progress view and returns its
// result once the run ends or the user quits.
func RunBench(ctx context.Context, cfg bench.Config) (*bench.Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(NewBenchModel(cancel))
	cfg.Progress = func(pr bench.Progress) { p.Send(benchProgressMsg(pr)) }

	type outcome struct {
		res *bench.Result
		err error
	}
	out := make(chan outcome, 1)
	go func() {
		res, err := bench.Run(ctx, cfg)
		out <- outcome{res, err}
		p.Send(benchDoneMsg{res: res, err: err})
	}()

	if _, err := p.Run(); err != nil {
		cancel()
		<-out
		return nil, err
	}
	o := <-out
	return o.res, o.err
}
