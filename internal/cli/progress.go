package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"

	"github.com/jiraexport/jiraexport-go/internal/service"
)

// ProgressTracker renders the fetch and write stages of exports.
type ProgressTracker struct {
	mu      sync.Mutex
	out     io.Writer
	enabled bool
	bars    []*barState
	stopCh  chan struct{}
	doneCh  chan struct{}
	started bool
	stopped bool
	drawn   int // lines drawn by the last render
}

type barState struct {
	key       string
	label     string
	current   int64
	total     int64
	startTime time.Time
	done      bool
	doneMsg   string
}

var _ service.Progress = (*ProgressTracker)(nil)

// NewProgressTracker creates a new progress tracker writing to out.
func NewProgressTracker(out io.Writer, enabled bool) *ProgressTracker {
	return &ProgressTracker{
		out:     out,
		enabled: enabled,
		bars:    make([]*barState, 0),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// startRenderLoop starts the render loop if not already started.
func (pt *ProgressTracker) startRenderLoop() {
	if pt.started {
		return
	}
	pt.started = true
	go pt.renderLoop()
}

// renderLoop continuously redraws all progress bars.
func (pt *ProgressTracker) renderLoop() {
	defer close(pt.doneCh)

	// Hide cursor
	pt.mu.Lock()
	fmt.Fprint(pt.out, "\033[?25l")
	pt.mu.Unlock()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-pt.stopCh:
			pt.mu.Lock()
			fmt.Fprint(pt.out, "\033[?25h") // Show cursor
			pt.mu.Unlock()
			return
		case <-ticker.C:
			pt.render()
		}
	}
}

// render draws all progress bars.
func (pt *ProgressTracker) render() {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	if len(pt.bars) == 0 {
		return
	}

	// Move cursor up to overwrite the previous render; bars added since
	// then are drawn on new lines below it.
	if pt.drawn > 0 {
		fmt.Fprintf(pt.out, "\033[%dA", pt.drawn)
	}
	pt.drawn = len(pt.bars)

	for _, bar := range pt.bars {
		fmt.Fprint(pt.out, "\r\033[K") // Clear line
		if bar.done {
			fmt.Fprint(pt.out, bar.doneMsg)
		} else {
			pt.drawBar(bar)
		}
		fmt.Fprintln(pt.out)
	}
}

// drawBar draws a single progress bar.
func (pt *ProgressTracker) drawBar(bar *barState) {
	const width = 30

	labelColor := color.New(color.FgCyan)
	barColor := color.New(color.FgYellow)

	labelColor.Fprintf(pt.out, "%s ", bar.label)

	if bar.total > 0 {
		percent := float64(bar.current) / float64(bar.total) * 100
		filled := min(int(float64(width)*percent/100), width)

		fmt.Fprint(pt.out, "[")
		barColor.Fprint(pt.out, strings.Repeat("█", filled))
		fmt.Fprint(pt.out, strings.Repeat("░", width-filled))
		fmt.Fprintf(pt.out, "] %5.1f%% %s/%s rows", percent, fmtNum(bar.current), fmtNum(bar.total))
	} else {
		// Jira does not report the size of a request up front.
		spinner := []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
		idx := int(time.Now().UnixMilli()/100) % len(spinner)
		fmt.Fprintf(pt.out, "%s %s", spinner[idx], time.Since(bar.startTime).Round(100*time.Millisecond))
	}
}

// Stop stops the render loop and prints final state. Later calls do nothing.
func (pt *ProgressTracker) Stop() {
	if !pt.enabled || !pt.started || pt.stopped {
		return
	}
	pt.stopped = true

	// Final render to show all completion messages
	pt.render()

	close(pt.stopCh)
	<-pt.doneCh
}

// findBar finds a bar by key.
func (pt *ProgressTracker) findBar(key string) *barState {
	for _, bar := range pt.bars {
		if bar.key == key {
			return bar
		}
	}
	return nil
}

// StartFetch starts tracking a Jira request.
func (pt *ProgressTracker) StartFetch(kind service.Kind) {
	if !pt.enabled {
		return
	}

	pt.mu.Lock()
	defer pt.mu.Unlock()

	pt.startRenderLoop()

	pt.bars = append(pt.bars, &barState{
		key:       "fetch:" + string(kind),
		label:     "Fetching " + string(kind),
		startTime: time.Now(),
	})
}

// FinishFetch finishes a Jira request.
func (pt *ProgressTracker) FinishFetch(kind service.Kind, rows int, duration time.Duration) {
	if !pt.enabled {
		return
	}

	pt.mu.Lock()
	defer pt.mu.Unlock()

	if bar := pt.findBar("fetch:" + string(kind)); bar != nil {
		bar.current = int64(rows)
		bar.total = int64(rows)
		bar.done = true
		bar.doneMsg = color.CyanString("  ✓ Fetched %s %s in %v",
			fmtNum(int64(rows)), kind, duration.Round(time.Millisecond))
	}
}

// StartWrite starts tracking the delivery of a file.
func (pt *ProgressTracker) StartWrite(filename string, rows int) {
	if !pt.enabled {
		return
	}

	pt.mu.Lock()
	defer pt.mu.Unlock()

	pt.startRenderLoop()

	pt.bars = append(pt.bars, &barState{
		key:       "write:" + filename,
		label:     "Writing " + getShortPath(filename),
		total:     int64(rows),
		startTime: time.Now(),
	})
}

// FinishWrite finishes the delivery of a file.
func (pt *ProgressTracker) FinishWrite(filename, path string, rows int) {
	if !pt.enabled {
		return
	}

	pt.mu.Lock()
	defer pt.mu.Unlock()

	if bar := pt.findBar("write:" + filename); bar != nil {
		bar.current = int64(rows)
		bar.done = true
		bar.doneMsg = color.GreenString("  ✓ Wrote %s rows to %s", fmtNum(int64(rows)), path)
	}
}

// Error marks the bar of a stage as failed.
func (pt *ProgressTracker) Error(stage, key string, err error) {
	if !pt.enabled {
		return
	}

	pt.mu.Lock()
	defer pt.mu.Unlock()

	if bar := pt.findBar(stage + ":" + key); bar != nil {
		bar.done = true
		bar.doneMsg = color.YellowString("  ✗ %s failed: %v", bar.label, err)
	}
}

// Helper functions

func fmtNum(n int64) string {
	if n >= 1000000 {
		return fmt.Sprintf("%.1fM", float64(n)/1000000)
	}
	if n >= 1000 {
		return fmt.Sprintf("%.1fK", float64(n)/1000)
	}
	return fmt.Sprintf("%d", n)
}

func getShortPath(filePath string) string {
	return filepath.Base(filePath)
}

func isTerminal(f *os.File) bool {
	fileInfo, err := f.Stat()
	if err != nil {
		return false
	}
	return (fileInfo.Mode() & os.ModeCharDevice) != 0
}
