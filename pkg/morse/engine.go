package morse

import (
	"context"
	"io"
	"time"

	"github.com/golang/glog"
)

// Gaps between marks, in dot durations. The element gap already counts
// towards the character and word gaps.
const (
	ElementGapUnits   = 1
	CharacterGapUnits = 3
	WordGapUnits      = 7
)

// Tone starts a tone. It must not block for the duration.
type Tone interface {
	Tone(pitchHz int, d time.Duration) error
}

// Indicator drives the indicator output.
type Indicator interface {
	Set(active bool) error
}

// Scheduler is the cooperative wait used between pulses.
type Scheduler interface {
	Pause(ctx context.Context, d time.Duration) error
	Yield(ctx context.Context) error
}

// Timing is the playback parameters.
type Timing struct {
	Dot     time.Duration
	PitchHz int
}

// Settings provides the current timing. It is read before every symbol
// so changes apply from the next character.
type Settings interface {
	Timing() Timing
}

// SettingsFunc is the func form of Settings.
type SettingsFunc func() Timing

// Timing implements Settings.
func (f SettingsFunc) Timing() Timing {
	return f()
}

// Engine plays text as morse.
type Engine struct {
	Tone      Tone
	Indicator Indicator
	Scheduler Scheduler
	Settings  Settings
	// Echo receives each character as it is played, may be nil.
	Echo io.Writer
	// OnCharacter is called after every played symbol, may be nil.
	OnCharacter func(c rune)
}

// Render plays one symbol: each element is a tone with the indicator on
// for one (dot) or three (dash) units followed by one unit of silence,
// then two more units close the character gap.
func (e *Engine) Render(ctx context.Context, sym Symbol) error {
	timing := e.Settings.Timing()
	for _, el := range sym.Elements() {
		mark := time.Duration(el.Units()) * timing.Dot
		if err := e.Tone.Tone(timing.PitchHz, mark); err != nil {
			glog.Warningf("morse: tone: %v", err)
		}
		e.indicate(true)
		if err := e.Scheduler.Pause(ctx, mark); err != nil {
			e.indicate(false)
			return err
		}
		e.indicate(false)
		if err := e.Scheduler.Pause(ctx, ElementGapUnits*timing.Dot); err != nil {
			return err
		}
	}
	return e.Scheduler.Pause(ctx, (CharacterGapUnits-ElementGapUnits)*timing.Dot)
}

// Transcode plays msg. A space is a silent word gap; characters without
// a symbol are skipped. The scheduler gets a yield after every character
// so the bus session stays alive during long messages.
func (e *Engine) Transcode(ctx context.Context, msg string) error {
	defer e.echo("\n")
	for _, c := range msg {
		e.echo(string(c))
		if c == ' ' {
			if err := e.Scheduler.Pause(ctx, WordGapUnits*e.Settings.Timing().Dot); err != nil {
				return err
			}
		} else if sym, ok := SymbolFor(c); ok {
			if err := e.Render(ctx, sym); err != nil {
				return err
			}
			if e.OnCharacter != nil {
				e.OnCharacter(c)
			}
		}
		if err := e.Scheduler.Yield(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) indicate(active bool) {
	if err := e.Indicator.Set(active); err != nil {
		glog.Warningf("morse: indicator: %v", err)
	}
}

func (e *Engine) echo(s string) {
	if e.Echo != nil {
		io.WriteString(e.Echo, s)
	}
}
