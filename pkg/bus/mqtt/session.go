// Package mqtt implements the bus session on an MQTT broker.
package mqtt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/golang/glog"

	"github.com/robotalks/morse.go/pkg/connectivity"
)

// ErrNotConnected is returned when the session is not open.
var ErrNotConnected = errors.New("not connected")

// ErrTimeout is returned when the broker does not acknowledge in time.
var ErrTimeout = errors.New("broker timeout")

// Handler is the callback when a message is received. It is called from
// the client goroutine.
type Handler func(topic string, payload []byte)

// Session is a device bus session. One paho client is created per
// Connect and discarded on Disconnect.
type Session struct {
	Handler    Handler
	AckTimeout time.Duration
	// OnConnectionLost is called from the client goroutine, may be nil.
	OnConnectionLost func(error)
	// NewClient creates the paho client, paho.NewClient by default.
	NewClient func(*paho.ClientOptions) paho.Client

	lock   sync.RWMutex
	client paho.Client
	subs   []string
}

// NewSession creates a Session delivering inbound messages to handler.
func NewSession(handler Handler) *Session {
	return &Session{Handler: handler, AckTimeout: DefaultAckTimeout}
}

// Connect implements connectivity.Session.
func (s *Session) Connect(ctx context.Context, params connectivity.SessionParams) error {
	s.Disconnect()
	opts := ClientOptions(params)
	opts.SetConnectionLostHandler(s.connectionLost)
	newClient := s.NewClient
	if newClient == nil {
		newClient = paho.NewClient
	}
	client := newClient(opts)
	if err := s.wait(ctx, client.Connect()); err != nil {
		client.Disconnect(0)
		return fmt.Errorf("connect %s: %w", BrokerURL(params), err)
	}
	s.lock.Lock()
	s.client, s.subs = client, nil
	s.lock.Unlock()
	return nil
}

// Subscribe implements connectivity.Session.
func (s *Session) Subscribe(topic string) error {
	client := s.current()
	if client == nil {
		return ErrNotConnected
	}
	glog.V(2).Infof("SUB %q", topic)
	// retained messages may arrive before the acknowledgement
	s.lock.Lock()
	s.subs = append(s.subs, topic)
	s.lock.Unlock()
	token := client.Subscribe(topic, 0, s.dispatch)
	if err := s.wait(context.Background(), token); err != nil {
		return err
	}
	if sub, ok := token.(*paho.SubscribeToken); ok {
		if code, exists := sub.Result()[topic]; exists && code == 0x80 {
			return fmt.Errorf("subscribe %q: refused by broker", topic)
		}
	}
	return nil
}

// Publish implements connectivity.Session.
func (s *Session) Publish(topic string, payload []byte, retain bool) error {
	client := s.current()
	if client == nil {
		return ErrNotConnected
	}
	glog.V(2).Infof("PUB %q", topic)
	return s.wait(context.Background(), client.Publish(topic, 0, retain, payload))
}

// Connected implements connectivity.Session.
func (s *Session) Connected() bool {
	client := s.current()
	return client != nil && client.IsConnectionOpen()
}

// Disconnect implements connectivity.Session. The will is not published
// on a graceful disconnect.
func (s *Session) Disconnect() {
	s.lock.Lock()
	client := s.client
	s.client, s.subs = nil, nil
	s.lock.Unlock()
	if client != nil {
		client.Disconnect(250)
	}
}

// Close implements io.Closer.
func (s *Session) Close() error {
	s.Disconnect()
	return nil
}

func (s *Session) current() paho.Client {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.client
}

func (s *Session) wait(ctx context.Context, token paho.Token) error {
	timeout := s.AckTimeout
	if timeout <= 0 {
		timeout = DefaultAckTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrTimeout
	case <-token.Done():
		return token.Error()
	}
}

func (s *Session) connectionLost(c paho.Client, err error) {
	glog.Warningf("mqtt: connection lost: %v", err)
	if h := s.OnConnectionLost; h != nil {
		h(err)
	}
}

func (s *Session) dispatch(c paho.Client, msg paho.Message) {
	s.deliver(msg.Topic(), msg.Payload())
}

// deliver forwards a message received on a subscribed topic.
func (s *Session) deliver(topic string, payload []byte) {
	glog.V(2).Infof("RCV %q", topic)
	s.lock.RLock()
	var matched bool
	for _, pattern := range s.subs {
		if matched = MatchTopic(topic, pattern); matched {
			break
		}
	}
	s.lock.RUnlock()
	if !matched {
		glog.V(2).Infof("mqtt: dropped message on %q, not subscribed", topic)
		return
	}
	if h := s.Handler; h != nil {
		h(topic, payload)
	}
}
