package hw

import (
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/golang/glog"
)

// Placeholders substituted in CommandTone arguments.
const (
	PitchPlaceholder    = "{pitch}"
	DurationPlaceholder = "{ms}"
)

// LogTone logs tones instead of playing them.
type LogTone struct{}

// Tone implements morse.Tone.
func (LogTone) Tone(pitchHz int, d time.Duration) error {
	glog.V(3).Infof("tone: %dHz %v", pitchHz, d)
	return nil
}

// CommandTone plays a tone by starting an external program, e.g.
// beep -f {pitch} -l {ms}. It does not wait for the program.
type CommandTone struct {
	Command []string
}

// NewCommandTone creates a CommandTone.
func NewCommandTone(command ...string) *CommandTone {
	return &CommandTone{Command: command}
}

// Args returns the command line for a tone.
func (t *CommandTone) Args(pitchHz int, d time.Duration) []string {
	r := strings.NewReplacer(
		PitchPlaceholder, strconv.Itoa(pitchHz),
		DurationPlaceholder, strconv.FormatInt(d.Milliseconds(), 10),
	)
	args := make([]string, len(t.Command))
	for n, arg := range t.Command {
		args[n] = r.Replace(arg)
	}
	return args
}

// Tone implements morse.Tone.
func (t *CommandTone) Tone(pitchHz int, d time.Duration) error {
	if len(t.Command) == 0 {
		return nil
	}
	args := t.Args(pitchHz, d)
	cmd := exec.Command(args[0], args[1:]...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("tone: %w", err)
	}
	go func() {
		if err := cmd.Wait(); err != nil {
			glog.Warningf("tone: %s: %v", args[0], err)
		}
	}()
	return nil
}
