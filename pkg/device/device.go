// Package device composes the configuration store, the command protocol,
// the morse engine and the connectivity supervisor into one cooperative
// loop.
package device

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/morse.go/pkg/bus/mqtt"
	"github.com/robotalks/morse.go/pkg/command"
	"github.com/robotalks/morse.go/pkg/config"
	"github.com/robotalks/morse.go/pkg/connectivity"
	fx "github.com/robotalks/morse.go/pkg/framework"
	"github.com/robotalks/morse.go/pkg/metrics"
	"github.com/robotalks/morse.go/pkg/morse"
)

// ErrRestart is returned by Run when a restart was requested. The caller
// discards the Device and builds a new one from storage.
var ErrRestart = errors.New("restart requested")

// LineSource provides the console lines.
type LineSource interface {
	// Drain returns the lines received since the last call.
	Drain() []string
	// SetOnLine sets a callback invoked when lines are available.
	SetOnLine(func())
}

// Options are the device collaborators.
type Options struct {
	Storage      config.Storage
	Lines        LineSource
	Output       io.Writer
	Tone         morse.Tone
	Indicator    morse.Indicator
	Link         connectivity.Link
	Session      connectivity.Session
	Metrics      *metrics.Metrics
	MachineID    string
	StartupDelay time.Duration
	LoopInterval time.Duration
}

// Message is an inbound bus message.
type Message struct {
	Topic   string
	Payload []byte
}

// Device is one boot of the device.
type Device struct {
	Loop       *fx.Loop
	Store      *config.Store
	Protocol   *command.Protocol
	Engine     *morse.Engine
	Supervisor *connectivity.Supervisor

	opts    Options
	restart bool
	relink  bool
	debug   bool
	stats   connectivity.Stats
}

// New creates a Device.
func New(opts Options) *Device {
	if opts.Output == nil {
		opts.Output = io.Discard
	}
	d := &Device{opts: opts, Loop: fx.NewLoop()}
	if opts.LoopInterval > 0 {
		d.Loop.Interval = opts.LoopInterval
	}
	d.Store = config.NewStore(opts.Storage)
	d.Protocol = &command.Protocol{
		Store:          d.Store,
		Output:         opts.Output,
		Scheduler:      d.Loop,
		Relinker:       d,
		Restarter:      command.RestartFunc(d.requestRestart),
		NetworkAddress: opts.Link.Address,
		MachineID:      opts.MachineID,
		OnCommand:      d.observeCommand,
	}
	d.Engine = &morse.Engine{
		Tone:        opts.Tone,
		Indicator:   opts.Indicator,
		Scheduler:   d.Loop,
		Settings:    morse.SettingsFunc(d.timing),
		Echo:        opts.Output,
		OnCharacter: d.observeCharacter,
	}
	d.Supervisor = connectivity.NewSupervisor(opts.Link, opts.Session, d.Store, d.Loop)
	d.Supervisor.OnStateChange = d.observeState
	if s, ok := opts.Session.(*mqtt.Session); ok {
		s.Handler = d.Deliver
		s.OnConnectionLost = func(error) { d.Loop.TriggerNext() }
	}
	d.Loop.OnYield(d.processConsole, d.watchSession)
	d.Loop.AddController(fx.ControlFunc(d.control))
	return d
}

// Run boots the device and runs it until ctx is done or a restart is
// requested, in which case ErrRestart is returned.
func (d *Device) Run(ctx context.Context) error {
	d.indicate(false)
	if delay := d.opts.StartupDelay; delay > 0 {
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	d.Store.LoadOrDefault()
	d.applyDebug()
	d.Protocol.Introspect()
	rec := d.Store.Record()
	fmt.Fprintf(d.opts.Output, "\nMorse code converter\nPublish any text to broker at %s using topic \"%s\"\n",
		rec.BrokerAddress, rec.DataTopic)

	if d.opts.Lines != nil {
		d.opts.Lines.SetOnLine(d.Loop.TriggerNext)
		defer d.opts.Lines.SetOnLine(nil)
	}
	defer d.opts.Session.Disconnect()
	err := d.Loop.Run(ctx)
	if errors.Is(err, ErrRestart) {
		glog.Info("device: restarting")
	}
	return err
}

// Deliver queues an inbound bus message. Safe from any goroutine.
func (d *Device) Deliver(topic string, payload []byte) {
	d.Loop.PostMessage(&Message{Topic: topic, Payload: append([]byte(nil), payload...)})
	d.Loop.TriggerNext()
}

// Relink implements command.Relinker.
func (d *Device) Relink() {
	d.relink = true
	d.Loop.TriggerNext()
}

func (d *Device) requestRestart() {
	d.restart = true
	if m := d.opts.Metrics; m != nil {
		m.Restarts.Inc()
	}
}

func (d *Device) control(cc fx.ControlContext) error {
	ctx := cc.Context()
	if d.restart {
		return ErrRestart
	}
	if d.relink {
		d.relink = false
		d.Supervisor.Invalidate()
	}
	err := d.Supervisor.Check(ctx)
	d.observeStats()
	if err != nil {
		return err
	}
	cc.Messages().ProcessMessages(fx.ProcessMessageFunc(func(mc fx.MessageProcessingContext) {
		msg, ok := mc.CurrentMessage().(*Message)
		if !ok {
			return
		}
		mc.MessageTaken()
		if err = d.handleMessage(ctx, msg); err != nil {
			mc.StopProcessing()
		}
	}))
	return err
}

func (d *Device) handleMessage(ctx context.Context, msg *Message) error {
	if !d.Store.Usable() {
		glog.V(1).Infof("device: dropped message on %q, not configured", msg.Topic)
		return nil
	}
	rec := d.Store.Record()
	glog.V(1).Infof("device: topic is %q", msg.Topic)
	switch msg.Topic {
	case rec.DataTopic:
		d.countMessage("data")
		fmt.Fprintf(d.opts.Output, "%s\n-->", msg.Payload)
		return d.Engine.Transcode(ctx, string(msg.Payload))
	case rec.CommandTopic:
		d.countMessage("command")
		return d.apply(ctx, string(msg.Payload))
	}
	d.countMessage("other")
	return nil
}

// processConsole is the yield hook applying pending console lines.
func (d *Device) processConsole(ctx context.Context) error {
	if d.opts.Lines == nil {
		return nil
	}
	for _, line := range d.opts.Lines.Drain() {
		if err := d.apply(ctx, line); err != nil {
			return err
		}
	}
	return nil
}

// watchSession is the yield hook noticing a dropped session while the
// loop is busy. The paho client keeps the session alive on its own.
func (d *Device) watchSession(ctx context.Context) error {
	if d.Supervisor.State() == connectivity.BusConnected && !d.opts.Session.Connected() {
		glog.V(1).Info("device: session dropped")
		d.Loop.TriggerNext()
	}
	return nil
}

func (d *Device) apply(ctx context.Context, line string) error {
	outcome, err := d.Protocol.Apply(ctx, line)
	if m := d.opts.Metrics; m != nil && outcome == command.Applied {
		result := "ok"
		if err != nil {
			result = "failed"
		}
		m.Saves.WithLabelValues(result).Inc()
	}
	if err != nil && !errors.Is(err, config.ErrPersist) {
		return err
	}
	d.applyDebug()
	if d.restart {
		return ErrRestart
	}
	return nil
}

func (d *Device) timing() morse.Timing {
	rec := d.Store.Record()
	return morse.Timing{Dot: rec.DotDuration(), PitchHz: rec.TonePitchHz}
}

func (d *Device) applyDebug() {
	if debug := d.Store.Record().Debug; debug != d.debug {
		d.debug = debug
		setDebugLogging(debug)
	}
}

func (d *Device) indicate(active bool) {
	if err := d.opts.Indicator.Set(active); err != nil {
		glog.Warningf("device: indicator: %v", err)
	}
}

func (d *Device) observeCommand(cmd command.Command, outcome command.Outcome) {
	if m := d.opts.Metrics; m != nil {
		m.Commands.WithLabelValues(cmd.Key.String(), outcome.String()).Inc()
	}
}

func (d *Device) observeCharacter(rune) {
	if m := d.opts.Metrics; m != nil {
		m.Characters.Inc()
	}
}

func (d *Device) observeState(state connectivity.State) {
	if m := d.opts.Metrics; m != nil {
		m.State.Set(float64(state))
	}
}

func (d *Device) observeStats() {
	stats := d.Supervisor.Stats()
	if m := d.opts.Metrics; m != nil {
		m.NetworkRetries.Add(float64(stats.NetworkRetries - d.stats.NetworkRetries))
		m.ConnectRetries.Add(float64(stats.ConnectRetries - d.stats.ConnectRetries))
	}
	d.stats = stats
}

func (d *Device) countMessage(kind string) {
	if m := d.opts.Metrics; m != nil {
		m.Messages.WithLabelValues(kind).Inc()
	}
}
