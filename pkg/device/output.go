package device

import (
	"io"
	"sync"

	"github.com/golang/glog"
)

// Tee writes the console output and keeps a transcript of it. Transcript
// failures never reach the console.
type Tee struct {
	Console    io.Writer
	Transcript io.Writer

	lock sync.Mutex
}

func (t *Tee) Write(p []byte) (int, error) {
	t.lock.Lock()
	defer t.lock.Unlock()
	if t.Transcript != nil {
		if _, err := t.Transcript.Write(p); err != nil {
			glog.Warningf("device: transcript: %v", err)
		}
	}
	if t.Console == nil {
		return len(p), nil
	}
	return t.Console.Write(p)
}
