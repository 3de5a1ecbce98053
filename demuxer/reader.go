package demuxer

import (
	"context"

	"github.com/zsiec/esdemux/media"
)

// Reader turns the callback-based Stream.Read into a blocking call for a
// consumer goroutine. A Reader must not be shared between goroutines.
type Reader struct {
	stream  *Stream
	pending chan *media.Buffer
}

// NewReader returns a blocking reader over s. Only one Reader, or one direct
// Read caller, may be active per stream.
func (s *Stream) NewReader() *Reader {
	return &Reader{stream: s}
}

// Next returns the next buffer, which is the EOS marker once the stream is
// exhausted. If ctx is done first, the read stays in flight and the following
// call to Next picks up its result.
func (r *Reader) Next(ctx context.Context) (*media.Buffer, error) {
	if r.pending == nil {
		ch := make(chan *media.Buffer, 1)
		r.pending = ch
		r.stream.Read(func(b *media.Buffer) { ch <- b })
	}
	select {
	case b := <-r.pending:
		r.pending = nil
		return b, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
