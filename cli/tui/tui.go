package tui

import (
	"fmt"
	"slices"
)

// View types with TUI support.
const (
	ViewStatsSession  = "stats_session"
	ViewBenchProgress = "bench_progress"
)

// Run starts the static TUI for viewType over data.
// The bench view is live and is started with RunBench instead.
func Run(viewType string, data any) error {
	switch viewType {
	case ViewStatsSession:
		return RunStatsTUI(data)
	case ViewBenchProgress:
		return fmt.Errorf("%s is a live view; use RunBench", viewType)
	default:
		return fmt.Errorf("TUI mode is not supported for %s", viewType)
	}
}

// IsTUISupported returns true if the view type supports TUI mode.
// Only read-only views (stats, bench progress) do.
func IsTUISupported(viewType string) bool {
	return slices.Contains(SupportedTUIViews(), viewType)
}

// SupportedTUIViews returns a list of view types that support TUI.
func SupportedTUIViews() []string {
	return []string{ViewStatsSession, ViewBenchProgress}
}
