package device

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robotalks/morse.go/pkg/config"
	"github.com/robotalks/morse.go/pkg/connectivity"
	"github.com/robotalks/morse.go/pkg/console"
	"github.com/robotalks/morse.go/pkg/metrics"
)

type fakeLink struct {
	lock       sync.Mutex
	associated []string
}

func (l *fakeLink) Associate(ctx context.Context, id, secret string) error {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.associated = append(l.associated, id)
	return nil
}

func (l *fakeLink) Up() bool {
	l.lock.Lock()
	defer l.lock.Unlock()
	return len(l.associated) > 0
}

func (l *fakeLink) Address() string {
	if l.Up() {
		return "10.10.6.99"
	}
	return ""
}

type fakeSession struct {
	lock       sync.Mutex
	connected  bool
	params     []connectivity.SessionParams
	subscribed []string
	published  []string
}

func (s *fakeSession) Connect(ctx context.Context, params connectivity.SessionParams) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.params = append(s.params, params)
	s.connected = true
	return nil
}

func (s *fakeSession) Subscribe(topic string) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.subscribed = append(s.subscribed, topic)
	return nil
}

func (s *fakeSession) Publish(topic string, payload []byte, retain bool) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.published = append(s.published, topic+"="+string(payload))
	return nil
}

func (s *fakeSession) Connected() bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.connected
}

func (s *fakeSession) Disconnect() {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.connected = false
}

func (s *fakeSession) connects() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return len(s.params)
}

func (s *fakeSession) lastParams() connectivity.SessionParams {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.params[len(s.params)-1]
}

type recorder struct {
	lock      sync.Mutex
	tones     []time.Duration
	pitches   []int
	indicator []bool
}

func (r *recorder) Tone(pitchHz int, d time.Duration) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.tones = append(r.tones, d)
	r.pitches = append(r.pitches, pitchHz)
	return nil
}

func (r *recorder) Set(active bool) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.indicator = append(r.indicator, active)
	return nil
}

func (r *recorder) toneCount() int {
	r.lock.Lock()
	defer r.lock.Unlock()
	return len(r.tones)
}

type syncBuffer struct {
	lock sync.Mutex
	buf  bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.buf.String()
}

type testDevice struct {
	*Device
	mem     *config.MemStorage
	lines   *console.LineReader
	link    *fakeLink
	session *fakeSession
	rig     *recorder
	out     *syncBuffer
	metrics *metrics.Metrics
	errCh   chan error
	cancel  context.CancelFunc
}

func usableImage(dotMs int) []byte {
	rec := config.DefaultRecord()
	rec.Marker = config.ValidMarker
	rec.NetworkID = "home"
	rec.NetworkSecret = "secret"
	rec.BrokerAddress = "10.10.6.15"
	rec.ClientID = "morseCode42"
	rec.DotDurationMs = dotMs
	return config.Encode(rec)
}

func startDevice(t *testing.T, image []byte) *testDevice {
	td := &testDevice{
		mem:     &config.MemStorage{},
		lines:   console.NewLineReader(nil, nil),
		link:    &fakeLink{},
		session: &fakeSession{},
		rig:     &recorder{},
		out:     &syncBuffer{},
		metrics: metrics.New(),
		errCh:   make(chan error, 1),
	}
	if image != nil {
		_, err := td.mem.WriteAt(image, 0)
		require.NoError(t, err)
	}
	td.Device = New(Options{
		Storage:      td.mem,
		Lines:        td.lines,
		Output:       td.out,
		Tone:         td.rig,
		Indicator:    td.rig,
		Link:         td.link,
		Session:      td.session,
		Metrics:      td.metrics,
		MachineID:    "machine-1",
		LoopInterval: 5 * time.Millisecond,
	})
	ctx, cancel := context.WithCancel(context.Background())
	td.cancel = cancel
	go func() { td.errCh <- td.Run(ctx) }()
	t.Cleanup(cancel)
	return td
}

func (td *testDevice) stop(t *testing.T) error {
	td.cancel()
	select {
	case err := <-td.errCh:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("device did not stop")
		return nil
	}
}

func (td *testDevice) stored(t *testing.T) config.Record {
	rec, err := config.Decode(td.mem.Bytes())
	require.NoError(t, err)
	return rec
}

func TestConfigureOverConsoleThenConnect(t *testing.T) {
	td := startDevice(t, nil)
	require.Eventually(t, func() bool {
		return strings.Contains(td.out.String(), "Publish any text")
	}, time.Second, 5*time.Millisecond)
	assert.Contains(t, td.out.String(), "ssid=<wifi ssid> ()")
	assert.Equal(t, 0, td.session.connects())

	td.lines.Feed([]byte("ssid=home\r\nwifipass=secret\r\nbroker=10.10.6.15\r\n"))
	require.Eventually(t, func() bool {
		return td.session.connects() == 1
	}, 2*time.Second, 5*time.Millisecond)

	params := td.session.lastParams()
	assert.Equal(t, "10.10.6.15", params.BrokerAddress)
	assert.Equal(t, 1883, params.BrokerPort)
	assert.Equal(t, "morse_code/status", params.StatusTopic)
	assert.Contains(t, td.out.String(), "Settings deemed complete")
	assert.ErrorIs(t, td.stop(t), context.Canceled)

	rec := td.stored(t)
	assert.Equal(t, config.ValidMarker, rec.Marker)
	assert.Equal(t, "home", rec.NetworkID)
	assert.False(t, td.session.Connected())
}

func TestPlaysDataTopic(t *testing.T) {
	td := startDevice(t, usableImage(1))
	require.Eventually(t, func() bool {
		return td.session.connects() == 1
	}, time.Second, 5*time.Millisecond)

	td.Deliver("morse_code", []byte("ET"))
	require.Eventually(t, func() bool {
		return td.rig.toneCount() == 2
	}, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		return strings.Contains(td.out.String(), "ET\n-->ET\n")
	}, time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, td.stop(t), context.Canceled)

	td.rig.lock.Lock()
	assert.Equal(t, []time.Duration{time.Millisecond, 3 * time.Millisecond}, td.rig.tones)
	assert.Equal(t, []int{1000, 1000}, td.rig.pitches)
	td.rig.lock.Unlock()
	assert.Equal(t, 2.0, testutil.ToFloat64(td.metrics.Characters))
	assert.Equal(t, 1.0, testutil.ToFloat64(td.metrics.Messages.WithLabelValues("data")))
}

func TestCommandTopicApplies(t *testing.T) {
	td := startDevice(t, usableImage(1))
	require.Eventually(t, func() bool {
		return td.session.connects() == 1
	}, time.Second, 5*time.Millisecond)

	td.Deliver("morse_code/command", []byte("pitch=750"))
	require.Eventually(t, func() bool {
		rec, err := config.Decode(td.mem.Bytes())
		return err == nil && rec.TonePitchHz == 750
	}, time.Second, 5*time.Millisecond)

	td.Deliver("morse_code", []byte("E"))
	require.Eventually(t, func() bool {
		return td.rig.toneCount() == 1
	}, time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, td.stop(t), context.Canceled)

	td.rig.lock.Lock()
	assert.Equal(t, []int{750}, td.rig.pitches)
	td.rig.lock.Unlock()
	assert.Equal(t, 1, td.session.connects())
	assert.Equal(t, 1.0, testutil.ToFloat64(td.metrics.Saves.WithLabelValues("ok")))
}

func TestBrokerChangeReconnects(t *testing.T) {
	td := startDevice(t, usableImage(1))
	require.Eventually(t, func() bool {
		return td.session.connects() == 1
	}, time.Second, 5*time.Millisecond)

	td.lines.Feed([]byte("broker=10.10.6.16\n"))
	require.Eventually(t, func() bool {
		return td.session.connects() == 2
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, "10.10.6.16", td.session.lastParams().BrokerAddress)
	assert.ErrorIs(t, td.stop(t), context.Canceled)
}

func TestDropsMessagesWhenUnconfigured(t *testing.T) {
	td := startDevice(t, nil)
	require.Eventually(t, func() bool {
		return strings.Contains(td.out.String(), "Publish any text")
	}, time.Second, 5*time.Millisecond)

	td.Deliver("morse_code", []byte("SOS"))
	time.Sleep(50 * time.Millisecond)
	assert.ErrorIs(t, td.stop(t), context.Canceled)
	assert.Equal(t, 0, td.rig.toneCount())
}

func TestRestartRequested(t *testing.T) {
	td := startDevice(t, nil)
	td.lines.Feed([]byte("reset=yes\n"))
	select {
	case err := <-td.errCh:
		assert.ErrorIs(t, err, ErrRestart)
	case <-time.After(5 * time.Second):
		t.Fatal("device did not restart")
	}
	assert.Contains(t, td.out.String(), "Resetting device")
	assert.Equal(t, 1.0, testutil.ToFloat64(td.metrics.Restarts))
}

func TestIndicatorOffAtStartup(t *testing.T) {
	td := startDevice(t, nil)
	require.Eventually(t, func() bool {
		td.rig.lock.Lock()
		defer td.rig.lock.Unlock()
		return len(td.rig.indicator) > 0
	}, time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, td.stop(t), context.Canceled)
	td.rig.lock.Lock()
	assert.False(t, td.rig.indicator[0])
	td.rig.lock.Unlock()
}
