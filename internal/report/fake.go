package report

import (
	"sync"

	"github.com/sweeney/bat-detector/internal/logic"
)

// Fake records reported bursts for test assertions. It is safe for
// concurrent use.
type Fake struct {
	mu     sync.Mutex
	bursts []logic.Burst

	// ReportError, if set, will be returned by Report after recording.
	ReportError error
}

// NewFake creates a Fake reporter.
func NewFake() *Fake {
	return &Fake{}
}

// Report records the burst.
func (f *Fake) Report(b logic.Burst) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bursts = append(f.bursts, b)
	return f.ReportError
}

// Bursts returns a copy of the recorded bursts.
func (f *Fake) Bursts() []logic.Burst {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]logic.Burst, len(f.bursts))
	copy(out, f.bursts)
	return out
}

// Reset clears recorded bursts.
func (f *Fake) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bursts = nil
	f.ReportError = nil
}
