package console

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeedAssemblesLines(t *testing.T) {
	var echo bytes.Buffer
	r := NewLineReader(nil, &echo)
	notified := 0
	r.SetOnLine(func() { notified++ })

	r.Feed([]byte("ssid=ho"))
	assert.Empty(t, r.Drain())
	r.Feed([]byte("me\r\n\n\r\npitch=800\n"))
	assert.Equal(t, []string{"ssid=home\r", "\r", "pitch=800"}, r.Drain())
	assert.Nil(t, r.Drain())
	assert.Equal(t, 1, notified)
	assert.Equal(t, "ssid=home\r\n\n\r\npitch=800\n", echo.String())
}

func TestFeedDiscardsLongLines(t *testing.T) {
	var echo bytes.Buffer
	r := NewLineReader(nil, &echo)
	r.Limit = 4
	notified := 0
	r.SetOnLine(func() { notified++ })
	r.Feed([]byte("abcd\nabcdefgh"))
	r.Feed([]byte("ij\nxy\n"))
	assert.Equal(t, []string{"abcd", "xy"}, r.Drain())
	assert.Equal(t, 2, notified)
	assert.Contains(t, echo.String(), "Line longer than 4 characters discarded")
}

func TestFeedDefaultLimitFitsLongestSetting(t *testing.T) {
	r := NewLineReader(nil, nil)
	line := "mqttCommandTopic=" + strings.Repeat("t", 100) + "\r"
	r.Feed([]byte(line + "\n"))
	assert.Equal(t, []string{line}, r.Drain())
}

func TestRunReadsUntilEOF(t *testing.T) {
	r := NewLineReader(strings.NewReader("reset=no\ntopic=news\npartial"), nil)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, r.Run(ctx))
	assert.Equal(t, []string{"reset=no", "topic=news"}, r.Drain())
}

type blockingReader struct {
	closed chan struct{}
}

func (b *blockingReader) Read(p []byte) (int, error) {
	<-b.closed
	return 0, context.Canceled
}

func (b *blockingReader) Close() error {
	close(b.closed)
	return nil
}

func TestRunStopsOnCancel(t *testing.T) {
	reader := &blockingReader{closed: make(chan struct{})}
	r := NewLineReader(reader, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, r.Run(ctx), context.Canceled)
	select {
	case <-reader.closed:
	default:
		t.Fatal("reader not closed")
	}
}

func TestOpenStdio(t *testing.T) {
	port, err := Open("-", 0)
	require.NoError(t, err)
	assert.Equal(t, Stdio(), port)
	assert.NoError(t, port.Close())
}
