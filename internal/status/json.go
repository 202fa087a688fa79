package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string     `json:"event,omitempty"`
	UptimeSeconds int64      `json:"uptime_seconds"`
	StartTime     string     `json:"start_time"`
	Timestamp     string     `json:"timestamp"`
	Queue         QueueJSON  `json:"queue"`
	Detectors     []PinJSON  `json:"detectors"`
	Config        ConfigJSON `json:"config"`
}

// QueueJSON reports edge queue state.
type QueueJSON struct {
	Depth   int    `json:"depth"`
	Dropped uint64 `json:"dropped"`
}

// PinJSON is the JSON representation of one detector's totals.
type PinJSON struct {
	Pin       int        `json:"pin"`
	Bursts    uint64     `json:"bursts"`
	Clicks    uint64     `json:"clicks"`
	LastBurst *BurstJSON `json:"last_burst,omitempty"`
}

// BurstJSON is the JSON representation of a completed burst.
type BurstJSON struct {
	Clicks    uint32 `json:"clicks"`
	Duration  uint64 `json:"duration_ticks"`
	Timestamp string `json:"timestamp"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	Chip          string `json:"chip"`
	QuietTicks    uint32 `json:"quiet_ticks"`
	QueueCapacity int    `json:"queue_capacity"`
	HeartbeatMs   int64  `json:"heartbeat_ms"`
}

func buildInner(snap Snapshot) StatusInner {
	inner := StatusInner{
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		Queue:         QueueJSON{Depth: snap.QueueDepth, Dropped: snap.Dropped},
		Detectors:     make([]PinJSON, 0, len(snap.Pins)),
		Config: ConfigJSON{
			Chip:          snap.Config.Chip,
			QuietTicks:    snap.Config.QuietTicks,
			QueueCapacity: snap.Config.QueueCapacity,
			HeartbeatMs:   snap.Config.HeartbeatMs,
		},
	}

	for _, p := range snap.Pins {
		pj := PinJSON{Pin: p.Pin, Bursts: p.Bursts, Clicks: p.Clicks}
		if p.LastBurst != nil {
			pj.LastBurst = &BurstJSON{
				Clicks:    p.LastBurst.Clicks,
				Duration:  p.LastBurst.Duration,
				Timestamp: p.LastAt.UTC().Format(time.RFC3339),
			}
		}
		inner.Detectors = append(inner.Detectors, pj)
	}
	return inner
}

// FormatJSON returns the indented JSON status.
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns compact JSON status tagged with a lifecycle event
// (e.g. "HEARTBEAT", "SHUTDOWN") for a single log line.
func FormatStatusEvent(snap Snapshot, event string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
