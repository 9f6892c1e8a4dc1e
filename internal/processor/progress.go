package processor

import (
	"sync"

	"photo-resizer-go/internal/compressor"

	"github.com/pterm/pterm"
)

// ProgressBar renders job completion with pterm. It is safe for concurrent
// use and a nil or disabled bar does nothing.
type ProgressBar struct {
	enabled bool
	mutex   sync.Mutex
	bar     *pterm.ProgressbarPrinter
}

// NewProgressBar returns a bar that renders only when enabled.
func NewProgressBar(enabled bool) *ProgressBar {
	return &ProgressBar{enabled: enabled}
}

// Start shows the bar for total jobs.
func (b *ProgressBar) Start(total int) {
	if b == nil || !b.enabled || total == 0 {
		return
	}
	b.mutex.Lock()
	defer b.mutex.Unlock()

	bar, err := pterm.DefaultProgressbar.WithTotal(total).WithTitle("Processing").Start()
	if err != nil {
		return
	}
	b.bar = bar
}

// JobDone advances the bar by one job.
func (b *ProgressBar) JobDone(compressor.ProcessResult) {
	if b == nil {
		return
	}
	b.mutex.Lock()
	defer b.mutex.Unlock()
	if b.bar != nil {
		b.bar.Increment()
	}
}

// Stop removes the bar.
func (b *ProgressBar) Stop() {
	if b == nil {
		return
	}
	b.mutex.Lock()
	defer b.mutex.Unlock()
	if b.bar != nil {
		_, _ = b.bar.Stop()
		b.bar = nil
	}
}
