// Package tsgen writes synthetic MPEG-2 transport streams for tests and
// load generation. Streams carry placeholder H.264 access units that parse
// but do not decode, ADTS AAC frames, CEA-608 roll-up captions in A/53 SEI
// and periodic SCTE-35 splice_insert cues.
package tsgen

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/zsiec/esdemux/internal/mpegts"
	"github.com/zsiec/esdemux/internal/scte35"
)

// PIDs used by generated streams.
const (
	PMTPID    uint16 = 0x1000
	VideoPID  uint16 = 0x100
	AudioPID  uint16 = 0x101
	SplicePID uint16 = 0x1F4
)

// tablesEvery repeats the PAT and PMT so a reader joining mid-stream can
// start within a second.
const tablesEvery = time.Second

// Config describes a generated stream. Zero fields take defaults.
type Config struct {
	Duration  time.Duration // default 10s
	FrameRate int           // default 30
	GOP       int           // frames per key frame interval, default FrameRate
	// StartPTS is the first video PTS in 90 kHz units, default 10s.
	StartPTS   int64
	SampleRate int // 48000, 44100 or 32000; default 48000
	Channels   int // default 2
	Language   string

	// Captions are sent as CEA-608 roll-up lines on channel 1, one after
	// another from the start of the stream.
	Captions []string

	// SpliceInterval inserts an out-of-network splice_insert at this
	// period; zero disables cues.
	SpliceInterval time.Duration
	BreakDuration  time.Duration
}

func (c *Config) withDefaults() (Config, error) {
	cfg := *c
	if cfg.Duration == 0 {
		cfg.Duration = 10 * time.Second
	}
	if cfg.FrameRate == 0 {
		cfg.FrameRate = 30
	}
	if cfg.GOP == 0 {
		cfg.GOP = cfg.FrameRate
	}
	if cfg.StartPTS == 0 {
		cfg.StartPTS = 10 * 90000
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 48000
	}
	if cfg.Channels == 0 {
		cfg.Channels = 2
	}
	if cfg.Duration < 0 || cfg.FrameRate < 0 || cfg.GOP < 0 {
		return cfg, errors.New("tsgen: negative duration, frame rate or GOP")
	}
	if 90000%cfg.FrameRate != 0 {
		return cfg, fmt.Errorf("tsgen: frame rate %d does not divide the 90 kHz clock", cfg.FrameRate)
	}
	if sampleRateIndex(cfg.SampleRate) < 0 {
		return cfg, fmt.Errorf("tsgen: unsupported sample rate %d", cfg.SampleRate)
	}
	if cfg.Channels > 7 {
		return cfg, fmt.Errorf("tsgen: unsupported channel count %d", cfg.Channels)
	}
	return cfg, nil
}

// Frames returns how many video frames a stream with this config holds.
func (c Config) Frames() int {
	cfg, err := c.withDefaults()
	if err != nil {
		return 0
	}
	return int(cfg.Duration * time.Duration(cfg.FrameRate) / time.Second)
}

// Generate writes a complete stream to w.
func Generate(w io.Writer, c Config) error {
	cfg, err := c.withDefaults()
	if err != nil {
		return err
	}
	g := &generator{
		cfg:      cfg,
		tw:       mpegts.NewWriter(w),
		captions: newCaptionQueue(cfg.Captions),
	}
	return g.run()
}

type generator struct {
	cfg      Config
	tw       *mpegts.Writer
	captions *captionQueue

	audioSamples int64
	nextEventID  uint32
}

func (g *generator) run() error {
	frames := g.cfg.Frames()
	ticks := int64(90000 / g.cfg.FrameRate)
	tablesFrames := max(1, int(tablesEvery*time.Duration(g.cfg.FrameRate)/time.Second))
	spliceFrames := int(g.cfg.SpliceInterval * time.Duration(g.cfg.FrameRate) / time.Second)

	for i := 0; i < frames; i++ {
		pts := g.cfg.StartPTS + int64(i)*ticks
		if i%tablesFrames == 0 {
			if err := g.writeTables(); err != nil {
				return err
			}
		}
		if spliceFrames > 0 && i > 0 && i%spliceFrames == 0 {
			if err := g.writeSplice(pts); err != nil {
				return err
			}
		}

		key := i%g.cfg.GOP == 0
		if err := g.tw.WritePES(VideoPID, 0xE0, pts, pts, g.accessUnit(key), key); err != nil {
			return fmt.Errorf("tsgen: video: %w", err)
		}
		if err := g.writeAudio(pts + ticks); err != nil {
			return err
		}
	}
	return nil
}

func (g *generator) writeTables() error {
	if err := g.tw.WritePAT(map[uint16]uint16{1: PMTPID}); err != nil {
		return fmt.Errorf("tsgen: pat: %w", err)
	}
	streams := []mpegts.ElementaryStream{
		{PID: VideoPID, StreamType: mpegts.StreamTypeH264},
		{PID: AudioPID, StreamType: mpegts.StreamTypeADTS, Language: g.cfg.Language},
	}
	if g.cfg.SpliceInterval > 0 {
		streams = append(streams, mpegts.ElementaryStream{PID: SplicePID, StreamType: mpegts.StreamTypeSCTE35})
	}
	err := g.tw.WritePMT(&mpegts.Program{Number: 1, PMTPID: PMTPID, PCRPID: VideoPID, Streams: streams})
	if err != nil {
		return fmt.Errorf("tsgen: pmt: %w", err)
	}
	return nil
}

func (g *generator) writeSplice(pts int64) error {
	g.nextEventID++
	section, err := scte35.Encode(&scte35.Splice{
		CommandType:   scte35.SpliceInsertType,
		Tier:          0xFFF,
		EventID:       g.nextEventID,
		OutOfNetwork:  true,
		PTS:           pts,
		BreakDuration: uint64(g.cfg.BreakDuration * 90000 / time.Second),
		AutoReturn:    g.cfg.BreakDuration > 0,
		Segments: []scte35.Segmentation{{
			EventID:  g.nextEventID,
			TypeID:   scte35.SegmentationTypeBreakStart,
			Duration: uint64(g.cfg.BreakDuration * 90000 / time.Second),
		}},
	})
	if err != nil {
		return err
	}
	if err := g.tw.WriteSection(SplicePID, section); err != nil {
		return fmt.Errorf("tsgen: splice: %w", err)
	}
	return nil
}

// writeAudio emits the ADTS frames that start before until, one PES each.
func (g *generator) writeAudio(until int64) error {
	const samplesPerFrame = 1024
	rate := int64(g.cfg.SampleRate)
	for {
		pts := g.cfg.StartPTS + g.audioSamples*90000/rate
		if pts >= until {
			return nil
		}
		frame := adtsFrame(g.cfg.SampleRate, g.cfg.Channels, []byte{0x21, 0x10, 0x04, byte(g.audioSamples / samplesPerFrame)})
		if err := g.tw.WritePES(AudioPID, 0xC0, pts, mpegts.NoTimestamp, frame, false); err != nil {
			return fmt.Errorf("tsgen: audio: %w", err)
		}
		g.audioSamples += samplesPerFrame
	}
}

func (g *generator) accessUnit(key bool) []byte {
	nals := [][]byte{audNAL}
	if key {
		nals = append(nals, sps720p, pps720p)
	}
	if cc, ok := g.captions.next(); ok {
		nals = append(nals, captionSEI(cc))
	}
	if key {
		nals = append(nals, idrNAL)
	} else {
		nals = append(nals, sliceNAL)
	}

	var out []byte
	for _, nal := range nals {
		out = append(out, 0x00, 0x00, 0x00, 0x01)
		out = append(out, nal...)
	}
	return out
}
