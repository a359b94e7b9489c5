package ui

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
)

// DrainBar visualizes queue drain progress with completion count and
// throughput. The total grows when a PDF fans out mid-drain, so the bar
// supports raising its ceiling while running.
type DrainBar struct {
	bar       *progressbar.ProgressBar
	total     int64
	current   int64
	startTime time.Time
}

// NewDrainBar creates a progress bar for draining a known number of entries
func NewDrainBar(total int64) *DrainBar {
	return newDrainBar(total, os.Stderr)
}

// NewDrainBarWithWriter creates a drain bar writing to a specific writer.
// Useful for testing with mock writers.
func NewDrainBarWithWriter(total int64, writer io.Writer) *DrainBar {
	return newDrainBar(total, writer)
}

func newDrainBar(total int64, writer io.Writer) *DrainBar {
	bar := progressbar.NewOptions64(
		total,
		progressbar.OptionSetDescription("Processing queue"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionThrottle(500*time.Millisecond),
		progressbar.OptionShowIts(),
		progressbar.OptionSetWriter(writer),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionEnableColorCodes(false),
	)

	return &DrainBar{
		bar:       bar,
		total:     total,
		startTime: time.Now(),
	}
}

// Advance increments the bar by one processed entry
func (d *DrainBar) Advance() error {
	d.current++
	return d.bar.Add64(1)
}

// GrowTotal raises the ceiling when fan-out adds entries mid-drain
func (d *DrainBar) GrowTotal(by int64) {
	d.total += by
	d.bar.ChangeMax64(d.total)
}

// Finish completes the bar
func (d *DrainBar) Finish() error {
	return d.bar.Finish()
}

// Clear removes the bar from the terminal
func (d *DrainBar) Clear() error {
	return d.bar.Clear()
}

// Elapsed returns time since the drain started
func (d *DrainBar) Elapsed() time.Duration {
	return time.Since(d.startTime)
}

// Spinner provides visual feedback for operations with unknown duration,
// such as a single capability call from the CLI.
type Spinner struct {
	description string
	startTime   time.Time
	active      bool
}

// NewSpinner creates a spinner for unknown-duration operations
func NewSpinner(description string) *Spinner {
	return &Spinner{
		description: description,
		startTime:   time.Now(),
	}
}

// Start begins the spinner
func (s *Spinner) Start() {
	s.active = true
	s.startTime = time.Now()
	fmt.Printf("%s...\n", s.description)
}

// Stop ends the spinner, reporting elapsed time
func (s *Spinner) Stop(success bool) {
	s.active = false
	elapsed := time.Since(s.startTime)

	if success {
		fmt.Printf("✓ %s (completed in %v)\n", s.description, elapsed.Round(time.Millisecond))
	} else {
		fmt.Printf("✗ %s (failed after %v)\n", s.description, elapsed.Round(time.Millisecond))
	}
}

// IsActive returns whether the spinner is currently running
func (s *Spinner) IsActive() bool {
	return s.active
}
