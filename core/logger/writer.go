package logger

import (
	"bufio"
	"errors"
	"io"
	"sync"
)

var errWriterClosed = errors.New("logger: writer closed")

// lineWriter hands formatted lines to a goroutine that fans them out to the
// sinks through one buffer. The buffer is flushed whenever the queue drains,
// so a burst of lines costs one syscall per sink.
type lineWriter struct {
	lines chan []byte
	acks  chan chan error
	done  chan struct{}
	buf   *bufio.Writer

	mu     sync.RWMutex // guards closed against Write racing Close
	closed bool

	errMu sync.Mutex
	err   error
}

func newLineWriter(sinks ...io.Writer) *lineWriter {
	w := &lineWriter{
		lines: make(chan []byte, 256),
		acks:  make(chan chan error),
		done:  make(chan struct{}),
		buf:   bufio.NewWriterSize(io.MultiWriter(sinks...), 64*1024),
	}
	go w.run()
	return w
}

func (w *lineWriter) run() {
	defer close(w.done)
	for {
		select {
		case line, ok := <-w.lines:
			if !ok {
				w.keep(w.buf.Flush())
				return
			}
			w.write(line)
			if len(w.lines) == 0 {
				w.keep(w.buf.Flush())
			}
		case ack := <-w.acks:
			for len(w.lines) > 0 {
				w.write(<-w.lines)
			}
			ack <- w.buf.Flush()
		}
	}
}

func (w *lineWriter) write(line []byte) {
	if _, err := w.buf.Write(line); err != nil {
		w.keep(err)
	}
}

// Write queues a copy of line. It blocks while the queue is full rather
// than drop output.
func (w *lineWriter) Write(line []byte) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return errWriterClosed
	}
	if err := w.firstErr(); err != nil {
		return err
	}
	if len(line) > 0 {
		w.lines <- append([]byte(nil), line...)
	}
	return nil
}

// Flush waits until every queued line reached the sinks.
func (w *lineWriter) Flush() error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return w.firstErr()
	}
	ack := make(chan error, 1)
	w.acks <- ack
	return <-ack
}

// Close drains the queue and returns the first write error.
func (w *lineWriter) Close() error {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.lines)
	}
	w.mu.Unlock()
	<-w.done
	return w.firstErr()
}

// keep records the first sink error.
func (w *lineWriter) keep(err error) {
	if err == nil {
		return
	}
	w.errMu.Lock()
	if w.err == nil {
		w.err = err
	}
	w.errMu.Unlock()
}

func (w *lineWriter) firstErr() error {
	w.errMu.Lock()
	defer w.errMu.Unlock()
	return w.err
}
