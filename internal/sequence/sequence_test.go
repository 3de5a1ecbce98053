package sequence

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSequenceRunsTasksInOrder(t *testing.T) {
	t.Parallel()
	s := New("order", nil)
	defer s.Close()

	var got []int
	for i := 0; i < 100; i++ {
		require.True(t, s.Post(func() { got = append(got, i) }))
	}
	require.NoError(t, s.Flush(context.Background()))

	require.Len(t, got, 100)
	for i, v := range got {
		require.Equal(t, i, v)
	}
}

func TestSequencePostNeverRunsSynchronously(t *testing.T) {
	t.Parallel()
	s := New("async", nil)
	defer s.Close()

	block := make(chan struct{})
	s.Post(func() { <-block })

	var ran atomic.Bool
	s.Post(func() { ran.Store(true) })
	require.False(t, ran.Load())

	close(block)
	require.NoError(t, s.Flush(context.Background()))
	require.True(t, ran.Load())
}

func TestSequenceTasksPostedFromTasksRunLater(t *testing.T) {
	t.Parallel()
	s := New("nested", nil)
	defer s.Close()

	var order []string
	done := make(chan struct{})
	s.Post(func() {
		s.Post(func() {
			order = append(order, "inner")
			close(done)
		})
		order = append(order, "outer")
	})
	<-done
	require.Equal(t, []string{"outer", "inner"}, order)
}

func TestSequenceCloseDrainsQueuedTasks(t *testing.T) {
	t.Parallel()
	s := New("close", nil)

	var count atomic.Int32
	for i := 0; i < 10; i++ {
		s.Post(func() { count.Add(1) })
	}
	s.Close()

	select {
	case <-s.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("sequence did not drain")
	}
	require.Equal(t, int32(10), count.Load())
	require.False(t, s.Post(func() {}))
	require.ErrorIs(t, s.Run(context.Background(), func() {}), ErrClosed)
}

func TestSequenceRunHonorsContext(t *testing.T) {
	t.Parallel()
	s := New("ctx", nil)
	defer s.Close()

	block := make(chan struct{})
	defer close(block)
	s.Post(func() { <-block })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, s.Run(ctx, func() {}), context.DeadlineExceeded)
}

func TestBindReentersTargetSequence(t *testing.T) {
	t.Parallel()
	owner := New("owner", nil)
	defer owner.Close()
	caller := New("caller", nil)
	defer caller.Close()

	// The caller marks its own state from inside its sequence; the bound
	// callback must observe it because it runs on the caller sequence too.
	var callerState int
	got := make(chan int, 1)
	cb := Bind(caller, func(v int) { got <- v + callerState })

	require.NoError(t, caller.Run(context.Background(), func() { callerState = 10 }))
	owner.Post(func() { cb(5) })

	select {
	case v := <-got:
		require.Equal(t, 15, v)
	case <-time.After(5 * time.Second):
		t.Fatal("bound callback never ran")
	}
}

func TestBindFunc(t *testing.T) {
	t.Parallel()
	s := New("bindfunc", nil)
	defer s.Close()

	done := make(chan struct{})
	BindFunc(s, func() { close(done) })()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("bound func never ran")
	}
}

func TestBindAfterCloseIsDropped(t *testing.T) {
	t.Parallel()
	s := New("closed", nil)
	ran := false
	cb := Bind(s, func(int) { ran = true })
	s.Close()
	<-s.Done()

	cb(1)
	BindFunc(s, func() { ran = true })()
	require.False(t, ran)
}
