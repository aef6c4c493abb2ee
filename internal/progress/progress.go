package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"tradewatch/internal/ports"
)

// ConsoleReporter prints (done, total, message) updates with elapsed time.
type ConsoleReporter struct {
	mu    sync.Mutex
	out   io.Writer
	label string
	start time.Time
}

var _ ports.ProgressReporter = (*ConsoleReporter)(nil)

// NewConsole reports to stderr under the given label.
func NewConsole(label string) *ConsoleReporter {
	return &ConsoleReporter{out: os.Stderr, label: label, start: time.Now()}
}

// Report prints one progress line. Safe for use from a single sink loop or
// several sequential commands.
func (r *ConsoleReporter) Report(done, total int, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	elapsed := time.Since(r.start).Round(time.Second)
	fmt.Fprintf(r.out, "%s: %d/%d (%s) %s\n", r.label, done, total, elapsed, message)
}
