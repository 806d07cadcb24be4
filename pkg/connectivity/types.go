// Package connectivity keeps the network link and the bus session up as
// long as the configuration is usable.
package connectivity

import (
	"context"
	"errors"
	"fmt"

	"github.com/robotalks/morse.go/pkg/config"
)

// ErrUnusable aborts a retry loop because the configuration turned
// incomplete while waiting.
var ErrUnusable = errors.New("configuration unusable")

// State is the connectivity level.
type State int

// States.
const (
	DisconnectedNetwork State = iota
	NetworkUp
	BusConnected
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case DisconnectedNetwork:
		return "DisconnectedNetwork"
	case NetworkUp:
		return "NetworkUp"
	case BusConnected:
		return "BusConnected"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Link is the network link.
type Link interface {
	// Associate starts joining the network; it does not wait for Up.
	Associate(ctx context.Context, networkID, secret string) error
	Up() bool
	// Address is the local address, empty when down.
	Address() string
}

// SessionParams is what a bus session is opened with.
type SessionParams struct {
	BrokerAddress   string
	BrokerPort      int
	ClientID        string
	Username        string
	Password        string
	StatusTopic     string
	LastWillMessage string
	CommandTopic    string
	DataTopic       string
}

// ParamsFrom extracts the session parameters from a record.
func ParamsFrom(rec config.Record) SessionParams {
	return SessionParams{
		BrokerAddress:   rec.BrokerAddress,
		BrokerPort:      rec.BrokerPort,
		ClientID:        rec.ClientID,
		Username:        rec.BrokerUsername,
		Password:        rec.BrokerUserSecret,
		StatusTopic:     rec.StatusTopic(),
		LastWillMessage: rec.LastWillMessage,
		CommandTopic:    rec.CommandTopic,
		DataTopic:       rec.DataTopic,
	}
}

// Session is a bus session.
type Session interface {
	// Connect opens the session with a last will of params.LastWillMessage
	// on params.StatusTopic.
	Connect(ctx context.Context, params SessionParams) error
	Subscribe(topic string) error
	Publish(topic string, payload []byte, retain bool) error
	Connected() bool
	Disconnect()
}

// Config is the view of the configuration store the supervisor reads.
type Config interface {
	Record() config.Record
	Usable() bool
}

// Stats counts supervisor activity.
type Stats struct {
	NetworkRetries int
	ConnectRetries int
	Connects       int
	Drops          int
}
