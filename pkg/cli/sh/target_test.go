package sh

import (
	"bytes"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandLine(t *testing.T) {
	testCases := []struct {
		name, value string
		line        string
		err         bool
	}{
		{name: "ssid", value: "home", line: "ssid=home"},
		{name: "topic", value: "news flash", line: "topic=news flash"},
		{name: "userPass", value: "", line: "userPass="},
		{name: "reset", value: "yes", line: "reset=yes"},
		{name: "SSID", value: "home", err: true},
		{name: "ssid", value: "ho\nme", err: true},
	}
	for _, tc := range testCases {
		line, err := CommandLine(tc.name, tc.value)
		if tc.err {
			assert.Error(t, err, tc.name)
			continue
		}
		require.NoError(t, err, tc.name)
		assert.Equal(t, tc.line, line)
	}
}

type pipePort struct {
	io.Reader
	written bytes.Buffer
	closed  bool
}

func (p *pipePort) Write(b []byte) (int, error) { return p.written.Write(b) }
func (p *pipePort) Close() error                { p.closed = true; return nil }

func TestConsoleTarget(t *testing.T) {
	r, w := io.Pipe()
	port := &pipePort{Reader: r}
	var lock sync.Mutex
	var lines []string
	target := NewConsoleTarget("/dev/ttyUSB0", port, func(line string) {
		lock.Lock()
		lines = append(lines, line)
		lock.Unlock()
	})
	assert.Equal(t, "/dev/ttyUSB0", target.Name())

	require.NoError(t, target.SendCommand("pitch=800"))
	assert.Equal(t, "pitch=800\n", port.written.String())
	assert.Error(t, target.Play("SOS"))

	go w.Write([]byte("Settings deemed complete\nIP Address=10.10.6.99\n"))
	require.Eventually(t, func() bool {
		lock.Lock()
		defer lock.Unlock()
		return len(lines) == 2
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"Settings deemed complete", "IP Address=10.10.6.99"}, lines)

	require.NoError(t, target.Close())
	assert.True(t, port.closed)
	w.Close()
}
