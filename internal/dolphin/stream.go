package dolphin

import (
	"bufio"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"
)

// Stream parses r line by line and delivers the events in order. The
// returned channel is closed once r is exhausted. Reading never waits on the
// consumer: events are buffered until they are received.
func Stream(r io.Reader, logger *slog.Logger) <-chan Event {
	return stream(r, logger, nil)
}

// stream is Stream with a hook that runs once r is exhausted, before the
// channel is closed.
func stream(r io.Reader, logger *slog.Logger, atEOF func()) <-chan Event {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	q := newEventQueue()
	out := make(chan Event)
	go q.forward(out)
	go func() {
		scanEvents(r, q, logger)
		if atEOF != nil {
			atEOF()
		}
		q.close()
	}()
	return out
}

// scanEvents reads lines from r until EOF and pushes every recognized event
// onto q. Bad lines are logged and skipped.
func scanEvents(r io.Reader, q *eventQueue, logger *slog.Logger) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		ev, err := ParseLine(line)
		if err != nil {
			var perr *PayloadError
			if errors.As(err, &perr) {
				logger.Warn("dropping dolphin line", "line", line, "err", err)
			} else {
				logger.Debug("ignoring dolphin line", "line", line)
			}
			continue
		}
		if ev == nil {
			continue
		}
		q.push(*ev)
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, os.ErrClosed) {
		logger.Debug("dolphin output ended", "err", err)
	}
}

// eventQueue is an unbounded FIFO between the stdout reader and the
// consumer, so a consumer that is sleeping through a delay never stalls
// Dolphin's writes.
type eventQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []Event
	closed bool
}

func newEventQueue() *eventQueue {
	q := &eventQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *eventQueue) push(ev Event) {
	q.mu.Lock()
	q.items = append(q.items, ev)
	q.mu.Unlock()
	q.cond.Signal()
}

func (q *eventQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cond.Signal()
}

// forward delivers queued events to out in push order and closes out after
// the queue is closed and drained.
func (q *eventQueue) forward(out chan<- Event) {
	for {
		q.mu.Lock()
		for len(q.items) == 0 && !q.closed {
			q.cond.Wait()
		}
		if len(q.items) == 0 {
			q.mu.Unlock()
			close(out)
			return
		}
		ev := q.items[0]
		q.items[0] = Event{}
		q.items = q.items[1:]
		q.mu.Unlock()
		out <- ev
	}
}
