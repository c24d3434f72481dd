package logger

import (
	"bufio"
	"errors"
	"io"
	"sync"
)

// asyncWriter fans formatted log lines out to its sinks from a single
// background goroutine, so webhook turns never block on stdout or log-file
// latency. Sinks are buffered; buffers are pushed out whenever the queue
// drains, on explicit Flush, and on Close.
type asyncWriter struct {
	queue    chan []byte
	flushReq chan chan error
	done     chan struct{}
	closing  sync.Once

	mu    sync.Mutex
	sinks []*bufio.Writer
	err   error
}

func newAsyncWriter(writers []io.Writer, bufSize int) *asyncWriter {
	if bufSize <= 0 {
		bufSize = 32 * 1024
	}
	sinks := make([]*bufio.Writer, 0, len(writers))
	for _, w := range writers {
		if w != nil {
			sinks = append(sinks, bufio.NewWriterSize(w, bufSize))
		}
	}
	aw := &asyncWriter{
		queue:    make(chan []byte, 256),
		flushReq: make(chan chan error),
		done:     make(chan struct{}),
		sinks:    sinks,
	}
	go aw.run()
	return aw
}

func (w *asyncWriter) run() {
	for {
		select {
		case line, ok := <-w.queue:
			if !ok {
				w.recordErr(w.flushSinks())
				close(w.done)
				return
			}
			w.recordErr(w.fanOut(line))
			if len(w.queue) == 0 {
				// Burst over; push buffered lines out now instead of
				// waiting for the buffers to fill.
				w.recordErr(w.flushSinks())
			}
		case ack := <-w.flushReq:
			w.drainQueue()
			ack <- w.flushSinks()
		}
	}
}

// Write queues one formatted line. The handler may reuse the byte slice
// after the call returns, so the line is copied before handoff.
func (w *asyncWriter) Write(p []byte) error {
	if len(p) == 0 {
		return nil
	}
	if err := w.lastErr(); err != nil {
		return err
	}
	line := make([]byte, len(p))
	copy(line, p)
	w.queue <- line
	return nil
}

// Flush blocks until every line queued before the call reaches the sinks.
func (w *asyncWriter) Flush() error {
	if err := w.lastErr(); err != nil {
		return err
	}
	ack := make(chan error, 1)
	w.flushReq <- ack
	return <-ack
}

// Close drains the queue, flushes the sinks, and reports the first write
// error seen over the writer's lifetime. Safe to call more than once.
func (w *asyncWriter) Close() error {
	w.closing.Do(func() { close(w.queue) })
	<-w.done
	return w.lastErr()
}

func (w *asyncWriter) drainQueue() {
	for {
		select {
		case line, ok := <-w.queue:
			if !ok {
				return
			}
			w.recordErr(w.fanOut(line))
		default:
			return
		}
	}
}

func (w *asyncWriter) fanOut(line []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, sink := range w.sinks {
		if _, err := sink.Write(line); err != nil {
			return err
		}
	}
	return nil
}

func (w *asyncWriter) flushSinks() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	var errs []error
	for _, sink := range w.sinks {
		if err := sink.Flush(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (w *asyncWriter) lastErr() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

func (w *asyncWriter) recordErr(err error) {
	if err == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err == nil {
		w.err = err
	}
}
