package media

import (
	"fmt"
	"time"
)

// SpliceEvent is an SCTE-35 splice point signaled alongside the media.
type SpliceEvent struct {
	// Command is "splice_null", "splice_insert", "time_signal" or "unknown".
	Command      string
	EventID      uint32
	Cancel       bool
	OutOfNetwork bool
	Immediate    bool
	// PTS of the splice point on the media timeline, NoTimestamp when the
	// splice is immediate or carries no time.
	PTS time.Duration
	// Duration of the break or segment, zero when not signaled.
	Duration time.Duration
	// Segmentation names the segmentation type of the first segmentation
	// descriptor, empty when there is none.
	Segmentation string
}

func (e *SpliceEvent) String() string {
	if e == nil {
		return "<nil>"
	}
	pts := "none"
	if e.PTS != NoTimestamp {
		pts = e.PTS.String()
	}
	return fmt.Sprintf("command: %s event_id: %d out_of_network: %t immediate: %t pts: %s duration: %s segmentation: %q",
		e.Command, e.EventID, e.OutOfNetwork, e.Immediate, pts, e.Duration, e.Segmentation)
}
