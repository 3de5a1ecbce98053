package container

import (
	"bytes"
	"fmt"
	"time"

	"github.com/zsiec/esdemux/demuxer"
	"github.com/zsiec/esdemux/internal/codec"
	"github.com/zsiec/esdemux/internal/mpegts"
	"github.com/zsiec/esdemux/media"
)

// elementaryStream tracks per-PID decoder state for one supported track.
type elementaryStream struct {
	index      int
	pid        uint16
	streamType uint8
	kind       media.StreamType

	vps, sps, pps []byte
	codecString   string

	video *media.VideoDecoderConfig
	audio *media.AudioDecoderConfig
}

func newElementaryStream(index int, s mpegts.ElementaryStream) *elementaryStream {
	es := &elementaryStream{index: index, pid: s.PID, streamType: s.StreamType}
	switch s.StreamType {
	case mpegts.StreamTypeH264, mpegts.StreamTypeH265:
		es.kind = media.Video
	case mpegts.StreamTypeADTS:
		es.kind = media.Audio
	default:
		return nil
	}
	return es
}

// codecName is the RFC 6381 codec string once the stream has been
// configured, and a generic name before that.
func (es *elementaryStream) codecName() string {
	if es.codecString != "" {
		return es.codecString
	}
	switch es.streamType {
	case mpegts.StreamTypeH264:
		return media.CodecH264.String()
	case mpegts.StreamTypeH265:
		return media.CodecHEVC.String()
	default:
		return media.CodecAAC.String()
	}
}

// packets converts a PES unit into demuxer packets. Video PES carry one
// access unit each; audio PES are split into ADTS frames.
func (m *MPEGTS) packets(es *elementaryStream, u mpegts.Unit) []*demuxer.Packet {
	if len(u.PES.Data) == 0 {
		return nil
	}
	pts, dts := u.PES.PTS, u.PES.DTS
	if dts == mpegts.NoTimestamp {
		dts = pts
	}
	if es.kind == media.Video {
		return []*demuxer.Packet{m.videoPacket(es, u, pts, dts)}
	}
	return m.audioPackets(es, u, pts)
}

func (m *MPEGTS) videoPacket(es *elementaryStream, u mpegts.Unit, pts, dts int64) *demuxer.Packet {
	var au codec.AccessUnit
	if es.streamType == mpegts.StreamTypeH265 {
		au = codec.ScanHEVC(u.PES.Data)
	} else {
		au = codec.ScanH264(u.PES.Data)
	}

	pkt := &demuxer.Packet{
		TrackIndex: es.index,
		Data:       u.PES.Data,
		PTS:        timestamp(pts),
		DTS:        timestamp(dts),
		KeyFrame:   au.KeyFrame,
		Pos:        u.Offset,
	}
	if cfg := m.updateVideoConfig(es, au); cfg != nil {
		pkt.VideoConfig = cfg
	}

	var captionPTS int64
	if pkt.PTS != media.NoTimestamp {
		captionPTS = pkt.PTS.Microseconds()
	}
	for _, sei := range au.SEI {
		pkt.Captions = append(pkt.Captions, m.captions.decode(sei, captionPTS)...)
	}
	m.captions.nextFrame()
	return pkt
}

// updateVideoConfig rebuilds the decoder configuration when the access unit
// carries parameter sets that differ from the current ones. It returns the
// new configuration, or nil when nothing changed.
func (m *MPEGTS) updateVideoConfig(es *elementaryStream, au codec.AccessUnit) *media.VideoDecoderConfig {
	changed := false
	for _, ps := range []struct {
		dst *[]byte
		src []byte
	}{{&es.vps, au.VPS}, {&es.sps, au.SPS}, {&es.pps, au.PPS}} {
		if ps.src != nil && !bytes.Equal(*ps.dst, ps.src) {
			*ps.dst = append([]byte(nil), ps.src...)
			changed = true
		}
	}
	if !changed || es.sps == nil || es.pps == nil {
		return nil
	}

	var (
		cfg *media.VideoDecoderConfig
		err error
	)
	if es.streamType == mpegts.StreamTypeH265 {
		if es.vps == nil {
			return nil
		}
		cfg, err = codec.HEVCVideoConfig(es.vps, es.sps, es.pps)
		if err == nil {
			info, _ := codec.ParseHEVCSPS(es.sps)
			es.codecString = info.CodecString()
		}
	} else {
		cfg, err = codec.H264VideoConfig(es.sps, es.pps)
		if err == nil {
			info, _ := codec.ParseH264SPS(es.sps)
			es.codecString = info.CodecString()
		}
	}
	if err != nil {
		m.log.Warn("invalid parameter sets", "pid", es.pid, "error", err)
		return nil
	}
	if cfg.Matches(es.video) {
		return nil
	}
	if es.video != nil {
		m.log.Info("video configuration changed", "pid", es.pid, "config", cfg.String())
	}
	es.video = cfg
	return cfg
}

// audioPackets splits an ADTS PES into one packet per frame. Frames after
// the first are timed by the frame duration.
func (m *MPEGTS) audioPackets(es *elementaryStream, u mpegts.Unit, pts int64) []*demuxer.Packet {
	frames, err := codec.SplitADTS(u.PES.Data)
	if err != nil {
		m.log.Debug("dropping ADTS payload", "pid", es.pid, "error", err)
		return nil
	}

	pkts := make([]*demuxer.Packet, 0, len(frames))
	next := timestamp(pts)
	for _, f := range frames {
		pkt := &demuxer.Packet{
			TrackIndex: es.index,
			Data:       f.Data,
			PTS:        next,
			DTS:        next,
			Duration:   f.Duration(),
			KeyFrame:   true,
			Pos:        u.Offset,
		}
		if cfg := codec.AACAudioConfig(f); !cfg.Matches(es.audio) {
			if es.audio != nil {
				m.log.Info("audio configuration changed", "pid", es.pid, "config", cfg.String())
			}
			es.audio = cfg
			es.codecString = fmt.Sprintf("mp4a.40.%d", f.ObjectType)
			pkt.AudioConfig = cfg
		}
		if next != media.NoTimestamp {
			next += f.Duration()
		}
		pkts = append(pkts, pkt)
	}
	return pkts
}

func timestamp(ts int64) time.Duration {
	if ts == mpegts.NoTimestamp {
		return media.NoTimestamp
	}
	return ptsToDuration(ts)
}
