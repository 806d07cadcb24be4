package connectivity

import (
	"context"
	"errors"
	"time"

	"github.com/golang/glog"

	fx "github.com/robotalks/morse.go/pkg/framework"
)

// Retry intervals.
const (
	DefaultNetworkRetry = 1500 * time.Millisecond
	DefaultConnectRetry = time.Second
)

// StatusConnected is published, retained, to the status topic on connect.
const StatusConnected = "connected"

var errLinkLost = errors.New("link lost")

// Supervisor drives the link and the session towards BusConnected. It is
// level-triggered: every Check looks at the actual link and session
// state, so it recovers from drops without being told.
type Supervisor struct {
	Link         Link
	Session      Session
	Config       Config
	Scheduler    fx.Scheduler
	NetworkRetry time.Duration
	ConnectRetry time.Duration
	// OnStateChange is called on every transition, may be nil.
	OnStateChange func(State)

	state State
	stale bool
	stats Stats
}

// NewSupervisor creates a Supervisor with the default retry intervals.
func NewSupervisor(link Link, session Session, cfg Config, scheduler fx.Scheduler) *Supervisor {
	return &Supervisor{
		Link:         link,
		Session:      session,
		Config:       cfg,
		Scheduler:    scheduler,
		NetworkRetry: DefaultNetworkRetry,
		ConnectRetry: DefaultConnectRetry,
	}
}

// State returns the state reached by the last Check.
func (s *Supervisor) State() State {
	return s.state
}

// Stats returns the counters.
func (s *Supervisor) Stats() Stats {
	return s.stats
}

// Invalidate marks the session stale. The next Check disconnects and
// reconnects with freshly read parameters.
func (s *Supervisor) Invalidate() {
	s.stale = true
}

// Check runs one supervision cycle. It blocks, retrying forever through
// the scheduler, until the session is up or the configuration becomes
// unusable. Only a context error is returned.
func (s *Supervisor) Check(ctx context.Context) error {
	if !s.Config.Usable() {
		s.teardown()
		return nil
	}
	if s.stale {
		s.stale = false
		if s.Session.Connected() {
			glog.Info("connectivity: settings changed, reconnecting")
			s.Session.Disconnect()
			s.setState(NetworkUp)
		}
	}
	for {
		var err error
		switch {
		case !s.Link.Up():
			s.dropSession()
			s.setState(DisconnectedNetwork)
			err = s.joinNetwork(ctx)
		case !s.Session.Connected():
			s.dropSession()
			s.setState(NetworkUp)
			err = s.connectSession(ctx)
		default:
			s.setState(BusConnected)
			return nil
		}
		switch {
		case err == nil, errors.Is(err, errLinkLost):
		case errors.Is(err, ErrUnusable):
			s.teardown()
			return nil
		default:
			return err
		}
	}
}

func (s *Supervisor) joinNetwork(ctx context.Context) error {
	rec := s.Config.Record()
	glog.Infof("connectivity: joining network %q", rec.NetworkID)
	s.associate(ctx, rec.NetworkID, rec.NetworkSecret)
	for !s.Link.Up() {
		s.stats.NetworkRetries++
		if err := s.Scheduler.Pause(ctx, s.retry(s.NetworkRetry, DefaultNetworkRetry)); err != nil {
			return err
		}
		if !s.Config.Usable() {
			return ErrUnusable
		}
		if next := s.Config.Record(); next.NetworkID != rec.NetworkID || next.NetworkSecret != rec.NetworkSecret {
			rec = next
			glog.Infof("connectivity: network settings changed, joining %q", rec.NetworkID)
			s.associate(ctx, rec.NetworkID, rec.NetworkSecret)
		}
	}
	glog.Infof("connectivity: network up, address %s", s.Link.Address())
	return nil
}

func (s *Supervisor) associate(ctx context.Context, id, secret string) {
	if err := s.Link.Associate(ctx, id, secret); err != nil {
		glog.Warningf("connectivity: associate %q: %v", id, err)
	}
}

func (s *Supervisor) connectSession(ctx context.Context) error {
	for {
		params := ParamsFrom(s.Config.Record())
		glog.V(1).Infof("connectivity: connecting to %s:%d as %s", params.BrokerAddress, params.BrokerPort, params.ClientID)
		err := s.Session.Connect(ctx, params)
		if err == nil {
			s.stats.Connects++
			s.announce(params)
			return nil
		}
		glog.Warningf("connectivity: connect %s:%d failed: %v", params.BrokerAddress, params.BrokerPort, err)
		s.stats.ConnectRetries++
		if err := s.Scheduler.Pause(ctx, s.retry(s.ConnectRetry, DefaultConnectRetry)); err != nil {
			return err
		}
		if !s.Config.Usable() {
			return ErrUnusable
		}
		if !s.Link.Up() {
			glog.Warning("connectivity: network lost while connecting")
			return errLinkLost
		}
	}
}

// announce subscribes the command topic, then the data topic, and
// publishes the retained status. Failures are logged only.
func (s *Supervisor) announce(params SessionParams) {
	glog.Infof("connectivity: connected to %s:%d", params.BrokerAddress, params.BrokerPort)
	for _, topic := range []string{params.CommandTopic, params.DataTopic} {
		if topic == "" {
			continue
		}
		if err := s.Session.Subscribe(topic); err != nil {
			glog.Errorf("connectivity: subscribe %q rejected: %v", topic, err)
		} else {
			glog.V(1).Infof("connectivity: subscribed to %q", topic)
		}
	}
	if err := s.Session.Publish(params.StatusTopic, []byte(StatusConnected), true); err != nil {
		glog.Warningf("connectivity: publish status: %v", err)
	}
}

// dropSession closes a session whose transport went away underneath.
func (s *Supervisor) dropSession() {
	if s.state == BusConnected {
		s.stats.Drops++
		glog.Warning("connectivity: session dropped")
	}
	if s.Session.Connected() {
		s.Session.Disconnect()
	}
}

func (s *Supervisor) teardown() {
	if s.Session.Connected() {
		glog.Info("connectivity: configuration unusable, closing session")
		s.Session.Disconnect()
	}
	s.setState(DisconnectedNetwork)
}

func (s *Supervisor) setState(state State) {
	if s.state == state {
		return
	}
	glog.V(1).Infof("connectivity: %s -> %s", s.state, state)
	s.state = state
	if s.OnStateChange != nil {
		s.OnStateChange(state)
	}
}

func (s *Supervisor) retry(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
