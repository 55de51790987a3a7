package tui

import (
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/justapithecus/chunkwire/cli/reader"
)

func TestIsTUISupported(t *testing.T) {
	tests := []struct {
		viewType string
		want     bool
	}{
		{ViewStatsSession, true},
		{ViewBenchProgress, true},
		{"encode", false},
		{"decode", false},
		{"version", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.viewType, func(t *testing.T) {
			if got := IsTUISupported(tt.viewType); got != tt.want {
				t.Errorf("IsTUISupported(%q) = %v, want %v", tt.viewType, got, tt.want)
			}
		})
	}
}

func TestRun_UnsupportedViewType(t *testing.T) {
	if err := Run("decode", nil); err == nil {
		t.Error("Expected error for unsupported view type")
	}
	if err := Run(ViewBenchProgress, nil); err == nil {
		t.Error("Expected error for live view through Run")
	}
	if err := Run(ViewStatsSession, "not stats"); err == nil {
		t.Error("Expected error for wrong data type")
	}
}

func TestRenderStatsStatic(t *testing.T) {
	out := RenderStatsStatic(&reader.SessionStats{
		SessionID:         "sess-42",
		Policy:            "strict",
		MessagesCompleted: 17,
		RedundantChunks:   3,
	})
	for _, want := range []string{"sess-42", "strict", "17", "Redundant"} {
		if !strings.Contains(out, want) {
			t.Errorf("static stats view missing %q", want)
		}
	}
}

func TestStatsModel_Quit(t *testing.T) {
	m := NewStatsModel(&reader.SessionStats{})
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if next.(StatsModel).View() != "" {
		t.Error("view should be empty after quit")
	}
}

func TestBenchModel_Progress(t *testing.T) {
	m := NewBenchModel(nil)
	next, _ := m.Update(benchProgressMsg{Write: 5, Writes: 10, SentBytes: 3 << 20, RateMBps: 12.5})
	bm := next.(BenchModel)

	if got := bm.percent(); got != 0.5 {
		t.Errorf("percent = %v, want 0.5", got)
	}
	view := bm.View()
	for _, want := range []string{"5 / 10", "3.00 MB", "12.50 MB/s", "running"} {
		if !strings.Contains(view, want) {
			t.Errorf("bench view missing %q", want)
		}
	}

	next, cmd := bm.Update(benchDoneMsg{err: errors.New("boom")})
	if cmd == nil {
		t.Fatal("expected quit after done")
	}
	if view := next.(BenchModel).View(); !strings.Contains(view, "boom") {
		t.Error("failed run should show the error")
	}
}

func TestBenchModel_QuitCancels(t *testing.T) {
	canceled := false
	m := NewBenchModel(func() { canceled = true })
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if cmd == nil || !canceled {
		t.Errorf("quit: cmd = %v, canceled = %v", cmd, canceled)
	}
}
