// Package config owns the persisted device configuration record.
package config

import "time"

// Field bounds, in bytes.
const (
	NetworkIDSize       = 100
	SecretSize          = 50
	BrokerAddressSize   = 30
	UsernameSize        = 50
	TopicSize           = 100
	LastWillMessageSize = 15
	ClientIDSize        = 25
)

// ValidMarker is stored in Record.Marker when the record passed the
// completeness check at its last save.
const ValidMarker uint32 = 0xDAB0

// Defaults.
const (
	DefaultBrokerPort      = 1883
	DefaultDataTopic       = "morse_code"
	DefaultCommandTopic    = "morse_code/command"
	DefaultLastWillMessage = "disconnected"
	DefaultDotDurationMs   = 200
	DefaultTonePitchHz     = 1000
)

// Record is the device configuration. Field order is the persisted order.
type Record struct {
	Marker           uint32
	NetworkID        string
	NetworkSecret    string
	BrokerAddress    string
	BrokerPort       int
	BrokerUsername   string
	BrokerUserSecret string
	DataTopic        string
	LastWillMessage  string
	CommandTopic     string
	ClientID         string
	DotDurationMs    int
	TonePitchHz      int
	Debug            bool
}

// DefaultRecord returns the factory record. ClientID is left empty.
func DefaultRecord() Record {
	return Record{
		BrokerPort:      DefaultBrokerPort,
		DataTopic:       DefaultDataTopic,
		CommandTopic:    DefaultCommandTopic,
		LastWillMessage: DefaultLastWillMessage,
		DotDurationMs:   DefaultDotDurationMs,
		TonePitchHz:     DefaultTonePitchHz,
	}
}

// Complete reports whether every field required for operation holds.
// It is a pure function of the field values; Marker is ignored.
func (r Record) Complete() bool {
	return bounded(r.NetworkID, 1, NetworkIDSize) &&
		bounded(r.NetworkSecret, 1, SecretSize) &&
		bounded(r.BrokerAddress, 1, BrokerAddressSize) &&
		bounded(r.LastWillMessage, 1, LastWillMessageSize) &&
		bounded(r.CommandTopic, 1, TopicSize) &&
		bounded(r.DataTopic, 0, TopicSize) &&
		r.BrokerPort > 0 && r.BrokerPort <= 65535 &&
		r.DotDurationMs > 0 &&
		r.TonePitchHz > 0
}

// Valid reports whether the marker carries the sentinel.
func (r Record) Valid() bool {
	return r.Marker == ValidMarker
}

// DotDuration is the morse time unit.
func (r Record) DotDuration() time.Duration {
	return time.Duration(r.DotDurationMs) * time.Millisecond
}

// StatusTopic is where the session announces itself and where the broker
// publishes the last will.
func (r Record) StatusTopic() string {
	if r.DataTopic == "" {
		return "status"
	}
	return r.DataTopic + "/status"
}

func bounded(s string, min, max int) bool {
	return len(s) >= min && len(s) <= max
}

// clamp truncates s to at most max bytes.
func clamp(s string, max int) string {
	if len(s) > max {
		return s[:max]
	}
	return s
}
