// Package container implements demuxer.ContainerParser for the container
// formats esdemux reads. MPEGTS handles MPEG-2 transport streams carrying
// H.264 or H.265 video and ADTS AAC audio.
package container

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/zsiec/esdemux/demuxer"
	"github.com/zsiec/esdemux/internal/mpegts"
	"github.com/zsiec/esdemux/media"
	"github.com/zsiec/esdemux/source"
)

const (
	defaultProbeSize = 4 << 20
	durationScanSize = 1 << 20
	seekScanSize     = 512 << 10
)

// ErrNoProgram is returned by Open when the input carries no program with
// at least one supported elementary stream.
var ErrNoProgram = errors.New("container: no supported program")

// Option configures an MPEGTS parser.
type Option func(*MPEGTS)

// WithProbeSize bounds how many bytes Open reads looking for the program
// tables and the first decoder configuration of every track.
func WithProbeSize(n int64) Option {
	return func(m *MPEGTS) { m.probeSize = n }
}

// WithProgram selects a program by number. By default the lowest numbered
// program in the PAT is used.
func WithProgram(number uint16) Option {
	return func(m *MPEGTS) { m.program = number }
}

// MPEGTS is a ContainerParser for MPEG-2 transport streams. Like every
// ContainerParser it is driven from a single goroutine.
type MPEGTS struct {
	log       *slog.Logger
	probeSize int64
	program   uint16

	src    source.Source
	ra     io.ReaderAt
	seeker io.Seeker
	size   int64
	rd     *mpegts.Reader

	pmtPID   uint16
	tracks   []demuxer.TrackInfo
	streams  map[uint16]*elementaryStream
	refPID   uint16
	probing  bool
	startPTS int64

	queue    []*demuxer.Packet
	captions *captionDecoder
}

var _ demuxer.ContainerParser = (*MPEGTS)(nil)

// NewMPEGTS returns a transport stream parser. If log is nil, slog.Default()
// is used.
func NewMPEGTS(log *slog.Logger, opts ...Option) *MPEGTS {
	if log == nil {
		log = slog.Default()
	}
	m := &MPEGTS{
		log:       log.With("component", "container", "format", "mpegts"),
		probeSize: defaultProbeSize,
		startPTS:  mpegts.NoTimestamp,
		captions:  newCaptionDecoder(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Open reads the program tables and enough of every elementary stream to
// describe it. Packets read while probing are returned by NextPacket.
func (m *MPEGTS) Open(ctx context.Context, src source.Source) (*demuxer.ContainerInfo, error) {
	m.src = src
	m.size = -1
	if n, ok := src.Size(); ok {
		m.size = n
	}
	if !src.IsStreaming() {
		m.ra, _ = src.(io.ReaderAt)
		m.seeker, _ = src.(io.Seeker)
	}
	m.rd = mpegts.NewReader(src, m.log)

	if err := m.probe(ctx); err != nil {
		return nil, err
	}

	info := &demuxer.ContainerInfo{
		FormatName: "mpegts",
		Duration:   media.NoTimestamp,
		StartTime:  media.NoTimestamp,
	}
	if m.startPTS != mpegts.NoTimestamp {
		info.StartTime = ptsToDuration(m.startPTS)
		if m.ra != nil && m.size > 0 {
			if err := m.scanDuration(ctx, info); err != nil {
				m.log.Debug("duration scan failed", "error", err)
			}
		}
	}
	for _, es := range m.streams {
		m.tracks[es.index].Codec = es.codecName()
		m.tracks[es.index].VideoConfig = es.video
		m.tracks[es.index].AudioConfig = es.audio
	}
	info.Tracks = append([]demuxer.TrackInfo(nil), m.tracks...)

	m.log.Info("opened transport stream",
		"pmt_pid", m.pmtPID,
		"tracks", len(info.Tracks),
		"start", info.StartTime,
		"duration", info.Duration,
		"queued", len(m.queue))
	return info, nil
}

func (m *MPEGTS) probe(ctx context.Context) error {
	m.probing = true
	defer func() { m.probing = false }()

	for !m.ready() && m.rd.Offset() < m.probeSize {
		u, err := m.rd.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("container: probe: %w", err)
		}
		m.handleUnit(u)
	}

	if m.streams == nil {
		return ErrNoProgram
	}
	return nil
}

// ready reports whether the program is known and every track has a decoder
// configuration.
func (m *MPEGTS) ready() bool {
	if m.streams == nil {
		return false
	}
	for _, es := range m.streams {
		if es.video == nil && es.audio == nil {
			return false
		}
	}
	return true
}

// NextPacket returns the next elementary stream packet, or a side-data-only
// packet with TrackIndex -1 for splice signals.
func (m *MPEGTS) NextPacket(ctx context.Context) (*demuxer.Packet, error) {
	for len(m.queue) == 0 {
		u, err := m.rd.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		if err != nil {
			return nil, fmt.Errorf("container: read: %w", err)
		}
		m.handleUnit(u)
	}
	pkt := m.queue[0]
	m.queue[0] = nil
	m.queue = m.queue[1:]
	return pkt, nil
}

func (m *MPEGTS) handleUnit(u mpegts.Unit) {
	switch {
	case u.PAT != nil:
		if m.pmtPID == 0 {
			m.selectProgram(u.PAT)
		}
	case u.PMT != nil:
		if u.PID != m.pmtPID {
			return
		}
		if m.streams == nil {
			m.setProgram(u.PMT)
		} else {
			m.log.Debug("ignoring PMT update", "version", u.PMT.Version)
		}
	case u.Section != nil:
		if ev := m.spliceEvent(u.Section); ev != nil {
			m.queue = append(m.queue, &demuxer.Packet{
				TrackIndex: -1,
				PTS:        media.NoTimestamp,
				DTS:        media.NoTimestamp,
				Pos:        u.Offset,
				Splices:    []*media.SpliceEvent{ev},
			})
		}
	case u.PES != nil:
		es := m.streams[u.PID]
		if es == nil {
			return
		}
		pkts := m.packets(es, u)
		if pts := u.PES.PTS; m.probing && len(pkts) > 0 && pts != mpegts.NoTimestamp {
			if m.startPTS == mpegts.NoTimestamp || pts < m.startPTS {
				m.startPTS = pts
			}
		}
		m.queue = append(m.queue, pkts...)
	}
}

func (m *MPEGTS) selectProgram(pat map[uint16]uint16) {
	if m.program != 0 {
		m.pmtPID = pat[m.program]
		return
	}
	first := uint16(0)
	for number, pid := range pat {
		if first == 0 || number < first {
			first, m.pmtPID = number, pid
		}
	}
}

func (m *MPEGTS) setProgram(p *mpegts.Program) {
	m.streams = make(map[uint16]*elementaryStream)
	for _, s := range p.Streams {
		if s.StreamType == mpegts.StreamTypeSCTE35 {
			m.rd.WatchSections(s.PID)
			continue
		}
		track := demuxer.TrackInfo{
			Index:    len(m.tracks),
			ID:       s.PID,
			Codec:    fmt.Sprintf("0x%02x", s.StreamType),
			Language: s.Language,
			Duration: media.NoTimestamp,
		}
		if es := newElementaryStream(track.Index, s); es != nil {
			track.Type = es.kind
			track.Codec = es.codecName()
			m.streams[s.PID] = es
			if m.refPID == 0 || (es.kind == media.Video && m.streams[m.refPID].kind != media.Video) {
				m.refPID = s.PID
			}
		}
		m.tracks = append(m.tracks, track)
		m.log.Debug("found elementary stream", "pid", s.PID, "stream_type", s.StreamType, "codec", track.Codec)
	}
	if len(m.streams) == 0 {
		m.log.Warn("program has no supported streams", "program", p.Number)
	}
}

// scanDuration reads the tail of the input for the last timestamp of every
// track.
func (m *MPEGTS) scanDuration(ctx context.Context, info *demuxer.ContainerInfo) error {
	off := max(0, m.size-durationScanSize)
	off -= off % mpegts.PacketSize
	rd := mpegts.NewReader(io.NewSectionReader(m.ra, off, m.size-off), m.log)

	last := make(map[uint16]int64)
	for {
		u, err := rd.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		if u.PES == nil || m.streams[u.PID] == nil || u.PES.PTS == mpegts.NoTimestamp {
			continue
		}
		if u.PES.PTS > last[u.PID] {
			last[u.PID] = u.PES.PTS
		}
	}

	for pid, pts := range last {
		if pts < m.startPTS {
			continue
		}
		d := ptsToDuration(pts - m.startPTS)
		m.tracks[m.streams[pid].index].Duration = d
		if info.Duration == media.NoTimestamp || d > info.Duration {
			info.Duration = d
		}
	}
	return nil
}

// Seek positions the reader at the last packet boundary whose reference
// track timestamp does not exceed t.
func (m *MPEGTS) Seek(ctx context.Context, t time.Duration) error {
	if m.ra == nil || m.seeker == nil || m.size <= 0 {
		return source.ErrNotSeekable
	}
	target := durationToPTS(t)

	lo, hi := int64(0), m.size/mpegts.PacketSize
	for hi-lo > 1 {
		mid := lo + (hi-lo)/2
		pts, err := m.ptsAt(ctx, mid*mpegts.PacketSize)
		if err != nil {
			return fmt.Errorf("container: seek: %w", err)
		}
		if pts == mpegts.NoTimestamp || pts > target {
			hi = mid
		} else {
			lo = mid
		}
	}

	off := lo * mpegts.PacketSize
	if _, err := m.seeker.Seek(off, io.SeekStart); err != nil {
		return fmt.Errorf("container: seek: %w", err)
	}
	m.rd.Reset(off)
	m.queue = nil
	m.captions.reset()
	m.log.Debug("seeked", "target", t, "offset", off)
	return nil
}

// ptsAt returns the first reference track timestamp found reading from off.
func (m *MPEGTS) ptsAt(ctx context.Context, off int64) (int64, error) {
	rd := mpegts.NewReader(io.NewSectionReader(m.ra, off, min(seekScanSize, m.size-off)), m.log)
	for {
		u, err := rd.Next(ctx)
		if errors.Is(err, io.EOF) {
			return mpegts.NoTimestamp, nil
		}
		if err != nil {
			return 0, err
		}
		if u.PES != nil && u.PID == m.refPID && u.PES.PTS != mpegts.NoTimestamp {
			return u.PES.PTS, nil
		}
	}
}

// Close drops buffered packets. The source is owned by the caller.
func (m *MPEGTS) Close() error {
	m.queue = nil
	return nil
}

func ptsToDuration(pts int64) time.Duration {
	return time.Duration(pts) * time.Second / 90000
}

func durationToPTS(d time.Duration) int64 {
	return int64(d) * 9 / 100000
}
