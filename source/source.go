// Package source provides the byte sources a demuxer reads containers from:
// local files, in-memory data, and live network streams (SRT, QUIC).
package source

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// ErrNotSeekable is returned when repositioning a streaming source.
var ErrNotSeekable = errors.New("source: not seekable")

// Source is a byte provider for a container parser. File-backed sources also
// implement io.ReaderAt and io.Seeker; parsers use those when present.
type Source interface {
	io.Reader
	io.Closer

	// Size returns the total length in bytes, if known.
	Size() (int64, bool)

	// IsStreaming reports whether the source is live or otherwise cannot be
	// repositioned.
	IsStreaming() bool
}

// Aborter is implemented by sources whose blocking reads can be interrupted
// from any goroutine. Abort makes pending and future reads fail promptly.
type Aborter interface {
	Abort()
}

// File is a seekable Source backed by a local file.
type File struct {
	f    *os.File
	size int64
}

// OpenFile opens path for demuxing.
func OpenFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("source: open %s: %w", path, err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("source: stat %s: %w", path, err)
	}
	if fi.IsDir() {
		f.Close()
		return nil, fmt.Errorf("source: %s is a directory", path)
	}
	return &File{f: f, size: fi.Size()}, nil
}

func (s *File) Read(p []byte) (int, error)                   { return s.f.Read(p) }
func (s *File) ReadAt(p []byte, off int64) (int, error)      { return s.f.ReadAt(p, off) }
func (s *File) Seek(offset int64, whence int) (int64, error) { return s.f.Seek(offset, whence) }
func (s *File) Close() error                                 { return s.f.Close() }
func (s *File) Size() (int64, bool)                          { return s.size, true }
func (s *File) IsStreaming() bool                            { return false }

// Memory is a seekable Source over an in-memory byte slice.
type Memory struct {
	*bytes.Reader
}

// FromBytes returns a Source reading data. The slice is not copied.
func FromBytes(data []byte) *Memory {
	return &Memory{Reader: bytes.NewReader(data)}
}

func (s *Memory) Close() error        { return nil }
func (s *Memory) Size() (int64, bool) { return s.Reader.Size(), true }
func (s *Memory) IsStreaming() bool   { return false }

// Stream adapts an arbitrary reader, such as a pipe or socket, into a
// streaming Source of unknown length. It counts the traffic it delivers.
type Stream struct {
	r         io.Reader
	closer    io.Closer
	closeOnce sync.Once
	closeErr  error

	startedAt     time.Time
	remoteAddr    string
	bytesReceived atomic.Int64
	readCount     atomic.Int64
}

// Stats is a snapshot of the traffic read from a Stream.
type Stats struct {
	BytesReceived int64
	ReadCount     int64
	ConnectedAt   time.Time
	Uptime        time.Duration
	RemoteAddr    string
}

// NewStream wraps r. Closing or aborting the Stream closes r.
func NewStream(r io.ReadCloser) *Stream {
	return newStream(r, r, "")
}

func newStream(r io.Reader, c io.Closer, remoteAddr string) *Stream {
	return &Stream{r: r, closer: c, startedAt: time.Now(), remoteAddr: remoteAddr}
}

func (s *Stream) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	if n > 0 {
		s.bytesReceived.Add(int64(n))
		s.readCount.Add(1)
	}
	return n, err
}

func (s *Stream) Size() (int64, bool) { return 0, false }
func (s *Stream) IsStreaming() bool   { return true }

// Close closes the underlying reader once.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() { s.closeErr = s.closer.Close() })
	return s.closeErr
}

// Abort closes the underlying reader, unblocking a pending Read.
func (s *Stream) Abort() { s.Close() }

// Stats returns the traffic counters.
func (s *Stream) Stats() Stats {
	return Stats{
		BytesReceived: s.bytesReceived.Load(),
		ReadCount:     s.readCount.Load(),
		ConnectedAt:   s.startedAt,
		Uptime:        time.Since(s.startedAt),
		RemoteAddr:    s.remoteAddr,
	}
}
