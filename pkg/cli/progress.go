package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

const (
	progressBarWidth    = 40
	progressMinInterval = 100 * time.Millisecond
)

// Progress is a single-line terminal progress bar for long-running
// commands. Repaints are limited to one per 100ms, plus the start and
// finish states.
type Progress struct {
	mu       sync.Mutex
	total    int64
	current  int64
	started  time.Time
	rendered time.Time
	writer   io.Writer
}

// NewProgressReporter returns a progress bar writing to w, or to stdout
// when w is nil.
func NewProgressReporter(w io.Writer) *Progress {
	if w == nil {
		w = os.Stdout
	}
	return &Progress{writer: w}
}

// Start resets the bar for a run of total items.
func (p *Progress) Start(total int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.total = total
	p.current = 0
	p.started = time.Now()
	p.rendered = time.Time{}
	p.render(true)
}

// Update moves the bar to current.
func (p *Progress) Update(current int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.current = current
	p.render(false)
}

// Finish fills the bar and moves to the next line.
func (p *Progress) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.current = p.total
	p.render(true)
	fmt.Fprintln(p.writer)
}

func (p *Progress) render(force bool) {
	if p.total <= 0 {
		return
	}
	now := time.Now()
	if !force && now.Sub(p.rendered) < progressMinInterval {
		return
	}
	p.rendered = now

	ratio := float64(p.current) / float64(p.total)
	if ratio > 1 {
		ratio = 1
	}
	filled := int(progressBarWidth * ratio)

	var bar string
	switch {
	case filled >= progressBarWidth:
		bar = strings.Repeat("=", progressBarWidth)
	case filled > 0:
		bar = strings.Repeat("=", filled-1) + ">"
	}

	line := fmt.Sprintf("[%-*s] %3.0f%% (%d/%d)", progressBarWidth, bar, ratio*100, p.current, p.total)
	if elapsed := now.Sub(p.started).Seconds(); elapsed > 0 {
		line += fmt.Sprintf(" %.1f req/s", float64(p.current)/elapsed)
	}
	fmt.Fprintf(p.writer, "\r%s", line)
}
