package chat

import (
	"bufio"
	"io"
	"sync"
	"time"
)

const (
	// sendWait bounds how long Send waits for room in a full queue.
	sendWait = 2 * time.Second
	// drainTimeout bounds how long Close waits for queued lines to reach the peer.
	drainTimeout = 2 * time.Second
)

// Outbox is the outbound sink of one connection. Lines are queued on a
// buffered channel and written by a single writer goroutine. Send waits up to
// sendWait when the queue is full, so a slow but live peer loses nothing.
type Outbox struct {
	out      chan string
	quit     chan struct{}
	done     chan struct{}
	sendWait time.Duration

	closeOnce sync.Once
}

func NewOutbox(w io.Writer, size int) *Outbox {
	if size <= 0 {
		size = 64
	}
	o := &Outbox{
		out:      make(chan string, size),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
		sendWait: sendWait,
	}
	go o.writeLoop(w)
	return o
}

func (o *Outbox) Send(line string) error {
	select {
	case <-o.quit:
		return ErrSinkClosed
	case <-o.done:
		return ErrSinkClosed
	default:
	}

	select {
	case o.out <- line:
		return nil
	default:
	}

	timer := time.NewTimer(o.sendWait)
	defer timer.Stop()
	select {
	case o.out <- line:
		return nil
	case <-o.quit:
		return ErrSinkClosed
	case <-o.done:
		return ErrSinkClosed
	case <-timer.C:
		return ErrSinkFull
	}
}

// Close stops accepting lines and waits, up to drainTimeout, for the queued
// ones to be written. It is safe to call more than once.
func (o *Outbox) Close() {
	o.closeOnce.Do(func() { close(o.quit) })

	select {
	case <-o.done:
	case <-time.After(drainTimeout):
	}
}

func (o *Outbox) writeLoop(w io.Writer) {
	defer close(o.done)
	bw := bufio.NewWriter(w)
	write := func(msg string) bool {
		// Best-effort. If the connection breaks, just stop the writer.
		if _, err := bw.WriteString(msg + "\n"); err != nil {
			return false
		}
		if len(o.out) > 0 {
			return true
		}
		return bw.Flush() == nil
	}

	for {
		select {
		case msg := <-o.out:
			if !write(msg) {
				return
			}
		case <-o.quit:
			for {
				select {
				case msg := <-o.out:
					if !write(msg) {
						return
					}
				default:
					_ = bw.Flush()
					return
				}
			}
		}
	}
}
