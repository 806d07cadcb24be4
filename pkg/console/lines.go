package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/golang/glog"
)

// DefaultLineLimit bounds a line being assembled. It is well above the
// longest name=value line a setting accepts.
const DefaultLineLimit = 256

// LineReader assembles '\n' terminated lines from a byte stream. Every
// byte is echoed back as it arrives; '\r' stays in the line for the
// command parser to strip. Zero length lines are dropped.
type LineReader struct {
	Reader io.Reader
	Echo   io.Writer
	// Limit discards whole lines longer than it, DefaultLineLimit if zero.
	Limit int

	lock     sync.Mutex
	lines    []string
	cur      []byte
	overflow bool
	onLine   func()
}

// NewLineReader creates a LineReader echoing to echo.
func NewLineReader(r io.Reader, echo io.Writer) *LineReader {
	return &LineReader{Reader: r, Echo: echo}
}

// Run implements framework.Runnable.
func (r *LineReader) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- r.readLoop()
	}()
	select {
	case <-ctx.Done():
		if closer, ok := r.Reader.(io.Closer); ok {
			closer.Close()
		}
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (r *LineReader) readLoop() error {
	buf := make([]byte, 64)
	for {
		n, err := r.Reader.Read(buf)
		if n > 0 {
			r.Feed(buf[:n])
		}
		if errors.Is(err, io.EOF) {
			glog.V(1).Info("console: input closed")
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// Feed consumes bytes as if they were read.
func (r *LineReader) Feed(data []byte) {
	if r.Echo != nil {
		r.Echo.Write(data)
	}
	limit := r.Limit
	if limit <= 0 {
		limit = DefaultLineLimit
	}
	var queued, dropped bool
	r.lock.Lock()
	for _, b := range data {
		if b != '\n' {
			if len(r.cur) < limit {
				r.cur = append(r.cur, b)
			} else {
				r.overflow = true
			}
			continue
		}
		switch {
		case r.overflow:
			dropped = true
		case len(r.cur) > 0:
			r.lines = append(r.lines, string(r.cur))
			queued = true
		}
		r.cur, r.overflow = r.cur[:0], false
	}
	onLine := r.onLine
	r.lock.Unlock()
	if dropped {
		glog.Warningf("console: discarded line longer than %d bytes", limit)
		if r.Echo != nil {
			fmt.Fprintf(r.Echo, "Line longer than %d characters discarded\n", limit)
		}
	}
	if queued && onLine != nil {
		onLine()
	}
}

// SetOnLine sets the func called from the reading goroutine after a line
// is queued. It replaces the previous one.
func (r *LineReader) SetOnLine(fn func()) {
	r.lock.Lock()
	r.onLine = fn
	r.lock.Unlock()
}

// Drain returns the complete lines received so far, in order.
func (r *LineReader) Drain() []string {
	r.lock.Lock()
	defer r.lock.Unlock()
	lines := r.lines
	r.lines = nil
	return lines
}
