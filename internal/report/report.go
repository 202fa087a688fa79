// Package report delivers completed bursts to their sinks.
package report

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"

	"github.com/sweeney/bat-detector/internal/logic"
)

// Reporter receives completed bursts.
type Reporter interface {
	// Report delivers one burst. Errors are logged by the caller and never
	// stop detection.
	Report(b logic.Burst) error
}

// CSV writes one "pin,clicks,duration" line per burst.
type CSV struct {
	mu sync.Mutex
	w  *csv.Writer
}

// NewCSV creates a CSV reporter writing to w.
func NewCSV(w io.Writer) *CSV {
	return &CSV{w: csv.NewWriter(w)}
}

// Report writes the burst and flushes so each line appears as it happens.
func (c *CSV) Report(b logic.Burst) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.w.Write(FormatRecord(b)); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	c.w.Flush()
	if err := c.w.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// FormatRecord returns the CSV fields for a burst.
func FormatRecord(b logic.Burst) []string {
	return []string{
		strconv.Itoa(b.Pin),
		strconv.FormatUint(uint64(b.Clicks), 10),
		strconv.FormatUint(b.Duration, 10),
	}
}

// Multi fans a burst out to several reporters. Every reporter is called even
// if an earlier one fails; the failures are joined.
type Multi []Reporter

// Report delivers b to every reporter in order.
func (m Multi) Report(b logic.Burst) error {
	var errs []error
	for _, r := range m {
		if err := r.Report(b); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
