package metrics

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectors(t *testing.T) {
	m := New()
	m.Commands.WithLabelValues("ssid", "applied").Inc()
	m.Characters.Add(3)
	m.State.Set(2)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.Commands.WithLabelValues("ssid", "applied")))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.Characters))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.State))
}

func TestHandler(t *testing.T) {
	m := New()
	m.Restarts.Inc()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "morse_restarts_total 1")
}

func TestServerStopsOnCancel(t *testing.T) {
	srv := &Server{Addr: "127.0.0.1:0", Metrics: New()}
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run(ctx) }()
	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
