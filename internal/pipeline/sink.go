package pipeline

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/zsiec/esdemux/demuxer"
	"github.com/zsiec/esdemux/media"
)

// Sink consumes the buffers of one stream. WriteBuffer is never called
// after Close and never with the EOS marker.
type Sink interface {
	WriteBuffer(b *media.Buffer) error
	Close() error
}

// SinkFactory creates the Sink for a stream once demuxing has started.
type SinkFactory func(s *demuxer.Stream) (Sink, error)

type discard struct{}

func (discard) WriteBuffer(*media.Buffer) error { return nil }
func (discard) Close() error                    { return nil }

// FileSinks writes each stream as a raw elementary stream file in dir:
// Annex-B video to video.h264 or video.hevc and ADTS audio to audio.aac.
func FileSinks(dir string) SinkFactory {
	return func(s *demuxer.Stream) (Sink, error) {
		name, err := fileName(s)
		if err != nil {
			return nil, err
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
		f, err := os.Create(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		return &fileSink{f: f, w: bufio.NewWriterSize(f, 256<<10)}, nil
	}
}

func fileName(s *demuxer.Stream) (string, error) {
	switch s.Type() {
	case media.Video:
		if cfg := s.VideoDecoderConfig(); cfg != nil && cfg.Codec == media.CodecHEVC {
			return "video.hevc", nil
		}
		return "video.h264", nil
	case media.Audio:
		return "audio.aac", nil
	default:
		return "", fmt.Errorf("no file format for %s streams", s.Type())
	}
}

type fileSink struct {
	f *os.File
	w *bufio.Writer
}

func (s *fileSink) WriteBuffer(b *media.Buffer) error {
	_, err := s.w.Write(b.Data())
	return err
}

func (s *fileSink) Close() error {
	return errors.Join(s.w.Flush(), s.f.Close())
}

// FuncSink adapts a function to a Sink with a no-op Close.
type FuncSink func(b *media.Buffer) error

func (f FuncSink) WriteBuffer(b *media.Buffer) error { return f(b) }
func (f FuncSink) Close() error                      { return nil }
