package hw

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readValue(t *testing.T, path string) string {
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestSysfsPin(t *testing.T) {
	path := filepath.Join(t.TempDir(), "value")
	require.NoError(t, os.WriteFile(path, []byte("0"), 0644))

	pin := NewSysfsPin(path, false)
	require.NoError(t, pin.Set(true))
	assert.Equal(t, "1", readValue(t, path))
	require.NoError(t, pin.Set(false))
	assert.Equal(t, "0", readValue(t, path))

	pin.ActiveLow = true
	require.NoError(t, pin.Set(true))
	assert.Equal(t, "0", readValue(t, path))
	require.NoError(t, pin.Set(false))
	assert.Equal(t, "1", readValue(t, path))
}

func TestSysfsPinMissing(t *testing.T) {
	pin := NewSysfsPin(filepath.Join(t.TempDir(), "none", "value"), false)
	assert.Error(t, pin.Set(true))
}

func TestCommandToneArgs(t *testing.T) {
	tone := NewCommandTone("beep", "-f", "{pitch}", "-l", "{ms}")
	assert.Equal(t, []string{"beep", "-f", "1000", "-l", "600"}, tone.Args(1000, 600*time.Millisecond))
}

func TestNopOutputs(t *testing.T) {
	assert.NoError(t, NopPin{}.Set(true))
	assert.NoError(t, LogTone{}.Tone(1000, time.Second))
	assert.NoError(t, (&CommandTone{}).Tone(1000, time.Second))
}
