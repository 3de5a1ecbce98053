package container

import (
	"github.com/zsiec/esdemux/internal/scte35"
	"github.com/zsiec/esdemux/media"
)

// spliceEvent decodes a SCTE-35 section. Undecodable sections are logged
// and dropped.
func (m *MPEGTS) spliceEvent(section []byte) *media.SpliceEvent {
	s, err := scte35.Decode(section)
	if err != nil {
		m.log.Warn("failed to parse SCTE-35", "error", err)
		return nil
	}
	if s.CommandType == scte35.SpliceNullType {
		return nil
	}

	ev := &media.SpliceEvent{
		Command:      s.Command(),
		EventID:      s.EventID,
		Cancel:       s.Cancel,
		OutOfNetwork: s.OutOfNetwork,
		Immediate:    s.Immediate,
		PTS:          media.NoTimestamp,
		Duration:     ptsToDuration(int64(s.BreakDuration)),
	}
	if s.PTS != scte35.NoPTS {
		ev.PTS = ptsToDuration(s.PTS)
	}
	if len(s.Segments) > 0 {
		seg := s.Segments[0]
		ev.Segmentation = seg.Name()
		if s.CommandType == scte35.TimeSignalType {
			ev.EventID = seg.EventID
			ev.Cancel = seg.Cancel
		}
		if ev.Duration == 0 {
			ev.Duration = ptsToDuration(int64(seg.Duration))
		}
	}
	m.log.Debug("splice signaled", "event", ev.String())
	return ev
}
