package chat

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestOutbox_CloseDrainsQueuedLines(t *testing.T) {
	var buf syncBuffer
	o := NewOutbox(&buf, 8)

	require.NoError(t, o.Send("one"))
	require.NoError(t, o.Send("Goodbye!"))
	o.Close()

	assert.Equal(t, "one\nGoodbye!\n", buf.String())
	assert.ErrorIs(t, o.Send("late"), ErrSinkClosed)

	// Closing twice is harmless.
	o.Close()
}

type slowWriter struct {
	syncBuffer
	delay time.Duration
}

func (w *slowWriter) Write(p []byte) (int, error) {
	time.Sleep(w.delay)
	return w.syncBuffer.Write(p)
}

func TestOutbox_SlowReaderGetsEveryLine(t *testing.T) {
	w := &slowWriter{delay: time.Millisecond}
	o := NewOutbox(w, 4)

	var want strings.Builder
	for i := 0; i < 100; i++ {
		line := fmt.Sprintf("line %d", i)
		require.NoError(t, o.Send(line))
		want.WriteString(line + "\n")
	}
	o.Close()

	assert.Equal(t, want.String(), w.String())
}

func TestOutbox_StalledReaderTimesOut(t *testing.T) {
	pr, pw := io.Pipe()
	o := NewOutbox(pw, 1)
	o.sendWait = 50 * time.Millisecond

	var err error
	for i := 0; i < 3 && err == nil; i++ {
		err = o.Send("line")
	}
	assert.ErrorIs(t, err, ErrSinkFull)

	// Unblock the writer so Close can drain.
	go func() { _, _ = io.Copy(io.Discard, pr) }()
	o.Close()
	_ = pw.Close()
}

func TestOutbox_WriterStopsOnBrokenConnection(t *testing.T) {
	pr, pw := io.Pipe()
	_ = pr.CloseWithError(io.ErrClosedPipe)
	o := NewOutbox(pw, 4)

	require.NoError(t, o.Send("lost"))
	require.Eventually(t, func() bool {
		return errors.Is(o.Send("after"), ErrSinkClosed)
	}, time.Second, 10*time.Millisecond)
	o.Close()
}

func TestReadLine(t *testing.T) {
	r := bufio.NewReader(bytes.NewBufferString("alice\r\n/join 1\nlast"))

	line, err := readLine(r)
	require.NoError(t, err)
	assert.Equal(t, "alice", line)

	line, err = readLine(r)
	require.NoError(t, err)
	assert.Equal(t, "/join 1", line)

	line, err = readLine(r)
	require.NoError(t, err)
	assert.Equal(t, "last", line)

	_, err = readLine(r)
	assert.ErrorIs(t, err, io.EOF)
}
