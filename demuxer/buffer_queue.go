package demuxer

import (
	"time"

	"github.com/zsiec/esdemux/media"
)

// BufferQueue is a FIFO of buffers in arrival (decode) order. It has no hard
// capacity; callers bound it by checking Duration.
type BufferQueue struct {
	buffers  []*media.Buffer
	dataSize int

	// Sum of per-buffer durations, and how many queued buffers carry one.
	knownDuration time.Duration
	withDuration  int
}

// NewBufferQueue returns an empty queue.
func NewBufferQueue() *BufferQueue {
	return &BufferQueue{}
}

// Push appends b to the back of the queue.
func (q *BufferQueue) Push(b *media.Buffer) {
	q.buffers = append(q.buffers, b)
	q.dataSize += len(b.Data())
	if d := b.Duration(); d != media.NoTimestamp && d >= 0 {
		q.knownDuration += d
		q.withDuration++
	}
}

// Pop removes and returns the oldest buffer, or nil if the queue is empty.
func (q *BufferQueue) Pop() *media.Buffer {
	if len(q.buffers) == 0 {
		return nil
	}
	b := q.buffers[0]
	q.buffers[0] = nil
	q.buffers = q.buffers[1:]

	q.dataSize -= len(b.Data())
	if d := b.Duration(); d != media.NoTimestamp && d >= 0 {
		q.knownDuration -= d
		q.withDuration--
	}
	if len(q.buffers) == 0 {
		q.buffers = nil
	}
	return b
}

// Clear drops every queued buffer.
func (q *BufferQueue) Clear() {
	q.buffers = nil
	q.dataSize = 0
	q.knownDuration = 0
	q.withDuration = 0
}

// IsEmpty reports whether the queue holds no buffers.
func (q *BufferQueue) IsEmpty() bool { return len(q.buffers) == 0 }

// Len returns the number of queued buffers.
func (q *BufferQueue) Len() int { return len(q.buffers) }

// DataSize returns the total payload size in bytes.
func (q *BufferQueue) DataSize() int { return q.dataSize }

// Duration returns the media time held by the queue. When every buffer
// carries its own duration the sum is used; otherwise it is the span between
// the oldest and newest timestamps.
func (q *BufferQueue) Duration() time.Duration {
	n := len(q.buffers)
	if n == 0 {
		return 0
	}
	if q.withDuration == n {
		return q.knownDuration
	}
	span := q.buffers[n-1].Timestamp() - q.buffers[0].Timestamp()
	if span < 0 {
		return 0
	}
	return span
}
