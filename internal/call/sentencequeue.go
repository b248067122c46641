package call

import (
	"errors"
	"sync/atomic"
)

// ErrQueueFull is returned by TryPush when the queue is at capacity.
var ErrQueueFull = errors.New("sentence queue full")

// SentenceQueue is a bounded FIFO of sentences awaiting TTS. The
// producer is Generation, the consumer is the TTS Streamer; it is a
// thin wrapper over a buffered channel so both push and pop are
// suspension points per spec.md 5.
type SentenceQueue struct {
	ch      chan string
	pending int64 // sentences pushed but not yet marked Done by the consumer
}

// NewSentenceQueue creates a queue with the given capacity (spec
// recommends ≈8).
func NewSentenceQueue(capacity int) *SentenceQueue {
	return &SentenceQueue{ch: make(chan string, capacity)}
}

// Push blocks until the sentence is queued or done is closed.
func (q *SentenceQueue) Push(sentence string, done <-chan struct{}) error {
	select {
	case q.ch <- sentence:
		atomic.AddInt64(&q.pending, 1)
		return nil
	case <-done:
		return errors.New("cancelled")
	}
}

// TryPush pushes without blocking, returning ErrQueueFull if at capacity.
func (q *SentenceQueue) TryPush(sentence string) error {
	select {
	case q.ch <- sentence:
		atomic.AddInt64(&q.pending, 1)
		return nil
	default:
		return ErrQueueFull
	}
}

// Chan exposes the receive side for the TTS Streamer's select loop.
func (q *SentenceQueue) Chan() <-chan string {
	return q.ch
}

// Done marks one sentence as fully spoken (or abandoned). The TTS
// Streamer calls this after each sentence it pops, so Pending reflects
// work still in flight rather than just what's buffered in the channel.
func (q *SentenceQueue) Done() {
	atomic.AddInt64(&q.pending, -1)
}

// Pending returns the number of sentences pushed but not yet marked
// Done — used by the Session Controller to detect "TTS drained" (spec
// md 4.6) before reverting phase from Responding to Listening.
func (q *SentenceQueue) Pending() int64 {
	return atomic.LoadInt64(&q.pending)
}

// Drain empties the queue without blocking, returning the number of
// sentences discarded. Used by the cancel handler.
func (q *SentenceQueue) Drain() int {
	n := 0
	for {
		select {
		case <-q.ch:
			n++
			atomic.AddInt64(&q.pending, -1)
		default:
			return n
		}
	}
}

// Close closes the underlying channel; the TTS Streamer's range/select
// loop observes this as end-of-stream.
func (q *SentenceQueue) Close() {
	close(q.ch)
}
