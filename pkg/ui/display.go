package ui

import (
	"fmt"
	"strings"
	"time"

	"lnscraper/pkg/progress"
)

// Display renders a live single-line progress view of a running
// session. It reads snapshots; it never touches session state.
type Display struct {
	username string
}

// NewDisplay creates a display for one profile.
func NewDisplay(username string) *Display {
	return &Display{username: username}
}

// Render writes the current progress line, overwriting the previous one.
func (d *Display) Render(snap progress.Snapshot) {
	if isQuiet() {
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "\r\033[K%s %s", Cyan("▸"), d.username)
	fmt.Fprintf(&b, "  %s posts", Green(fmt.Sprintf("%d", snap.ItemsCollected)))

	if snap.Errors > 0 {
		fmt.Fprintf(&b, "  %s", Red(fmt.Sprintf("%d errors", snap.Errors)))
	}

	if snap.RatePerMinute > 0 {
		fmt.Fprintf(&b, "  %s", Dim(fmt.Sprintf("%.1f/min", snap.RatePerMinute)))
	}

	if snap.TotalEstimate > 0 {
		fmt.Fprintf(&b, "  %.0f%%", snap.PercentComplete)
	}

	if snap.HasEstimate {
		fmt.Fprintf(&b, "  ETA %s", formatDuration(snap.EstimatedRemaining))
	} else {
		fmt.Fprintf(&b, "  %s", Dim(formatDuration(snap.Elapsed)))
	}

	fmt.Print(b.String())
}

// Finish terminates the progress line.
func (d *Display) Finish() {
	if isQuiet() {
		return
	}
	fmt.Println()
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	if d >= time.Hour {
		return fmt.Sprintf("%dh%02dm", int(d.Hours()), int(d.Minutes())%60)
	}
	if d >= time.Minute {
		return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%ds", int(d.Seconds()))
}
