package command

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/morse.go/pkg/config"
	fx "github.com/robotalks/morse.go/pkg/framework"
)

// Pauses before a requested restart so the console output drains.
const (
	FactoryDefaultsPause = 2 * time.Second
	RestartPause         = time.Second
)

// Outcome tells what Apply did with a line.
type Outcome int

// Outcomes.
const (
	Introspected Outcome = iota
	Applied
	Restarting
)

// String implements fmt.Stringer.
func (o Outcome) String() string {
	switch o {
	case Applied:
		return "applied"
	case Restarting:
		return "restarting"
	}
	return "introspected"
}

// Relinker is notified when a save changed what the link depends on.
type Relinker interface {
	Relink()
}

// Restarter takes the device down and back up from storage.
type Restarter interface {
	Restart()
}

// RestartFunc is the func form of Restarter.
type RestartFunc func()

// Restart implements Restarter.
func (f RestartFunc) Restart() {
	f()
}

// Protocol applies command lines to the configuration store.
type Protocol struct {
	Store     *config.Store
	Output    io.Writer
	Scheduler fx.Scheduler
	Relinker  Relinker
	Restarter Restarter
	// NetworkAddress reports the current device address, may be nil.
	NetworkAddress func() string
	MachineID      string
	// OnCommand observes every applied line, may be nil.
	OnCommand func(Command, Outcome)
}

// Apply parses line and executes it. Every mutating command saves right
// away. A persistence failure is reported and returned but the command
// still counts as applied.
func (p *Protocol) Apply(ctx context.Context, line string) (Outcome, error) {
	cmd := Parse(line)
	glog.V(1).Infof("command: processing %q value %q", cmd.Name, cmd.Value)
	outcome, err := p.apply(ctx, cmd)
	if p.OnCommand != nil {
		p.OnCommand(cmd, outcome)
	}
	return outcome, err
}

func (p *Protocol) apply(ctx context.Context, cmd Command) (Outcome, error) {
	s := p.Store
	before, wasUsable := s.Record(), s.Usable()
	if cmd.Key.NeedsConfirmation() && cmd.Value != Confirmation {
		cmd.Key = KeyUnknown
	}
	switch cmd.Key {
	case KeyNetworkID:
		s.SetNetworkID(cmd.Value)
	case KeyNetworkSecret:
		s.SetNetworkSecret(cmd.Value)
	case KeyBrokerAddress:
		s.SetBrokerAddress(cmd.Value)
	case KeyBrokerPort:
		s.SetBrokerPort(atoi(cmd.Value))
	case KeyBrokerUsername:
		s.SetBrokerUsername(cmd.Value)
	case KeyBrokerUserSecret:
		s.SetBrokerUserSecret(cmd.Value)
	case KeyLastWillMessage:
		s.SetLastWillMessage(cmd.Value)
	case KeyDataTopic:
		s.SetDataTopic(cmd.Value)
	case KeyCommandTopic:
		s.SetCommandTopic(cmd.Value)
	case KeyResetClientID:
		s.RegenerateClientID()
		p.printf("New MQTT client id is %s\n", s.Record().ClientID)
	case KeyDebug:
		s.SetDebug(cmd.Value != "false")
	case KeyTonePitch:
		s.SetTonePitch(atoi(cmd.Value))
	case KeyDotDuration:
		s.SetDotDuration(atoi(cmd.Value))
	case KeyFactoryDefaults:
		p.printf("\n*********************** Resetting stored values ************************\n")
		err := s.ResetToDefaults()
		if err != nil {
			p.reportPersist(err)
		}
		if outcome, perr := p.restart(ctx, FactoryDefaultsPause); perr != nil {
			return outcome, perr
		}
		return Restarting, err
	case KeyRestart:
		p.printf("\n*********************** Resetting device ************************\n")
		return p.restart(ctx, RestartPause)
	default:
		p.Introspect()
		return Introspected, nil
	}
	return Applied, p.save(before, wasUsable)
}

// save persists the store and tells the relinker when the link must be
// rebuilt: usability flipped, or a connectivity field changed while the
// configuration stays usable.
func (p *Protocol) save(before config.Record, wasUsable bool) error {
	err := p.Store.Save()
	if err != nil {
		p.reportPersist(err)
	}
	if p.Store.Usable() {
		p.printf("Settings deemed complete\n")
	} else {
		p.printf("Settings still incomplete\n")
	}
	if p.Relinker != nil {
		usable := p.Store.Usable()
		if usable != wasUsable || (usable && LinkChanged(before, p.Store.Record())) {
			glog.V(1).Info("command: connectivity settings changed, relinking")
			p.Relinker.Relink()
		}
	}
	return err
}

func (p *Protocol) restart(ctx context.Context, pause time.Duration) (Outcome, error) {
	if p.Scheduler != nil {
		if err := p.Scheduler.Pause(ctx, pause); err != nil {
			return Restarting, err
		}
	}
	if p.Restarter != nil {
		p.Restarter.Restart()
	}
	return Restarting, nil
}

func (p *Protocol) reportPersist(err error) {
	glog.Errorf("command: %v", err)
	if errors.Is(err, config.ErrPersist) {
		p.printf("Saving settings failed: %v\n", err)
	}
}

func (p *Protocol) printf(format string, args ...interface{}) {
	if p.Output != nil {
		fmt.Fprintf(p.Output, format, args...)
	}
}

// LinkChanged reports whether any field the network link or the bus
// session depends on differs between a and b.
func LinkChanged(a, b config.Record) bool {
	return a.NetworkID != b.NetworkID ||
		a.NetworkSecret != b.NetworkSecret ||
		a.BrokerAddress != b.BrokerAddress ||
		a.BrokerPort != b.BrokerPort ||
		a.BrokerUsername != b.BrokerUsername ||
		a.BrokerUserSecret != b.BrokerUserSecret ||
		a.DataTopic != b.DataTopic ||
		a.CommandTopic != b.CommandTopic ||
		a.LastWillMessage != b.LastWillMessage ||
		a.ClientID != b.ClientID
}
