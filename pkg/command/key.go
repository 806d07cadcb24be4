// Package command implements the line oriented configuration protocol
// spoken over the console and the bus command topic.
package command

import (
	"math"
	"sort"
	"strings"
)

// Key identifies a command.
type Key int

// Keys.
const (
	KeyUnknown Key = iota
	KeyNetworkID
	KeyNetworkSecret
	KeyBrokerAddress
	KeyBrokerPort
	KeyBrokerUsername
	KeyBrokerUserSecret
	KeyLastWillMessage
	KeyDataTopic
	KeyCommandTopic
	KeyResetClientID
	KeyDebug
	KeyTonePitch
	KeyDotDuration
	KeyFactoryDefaults
	KeyRestart
)

// Confirmation is the value required by destructive commands.
const Confirmation = "yes"

var keyNames = map[string]Key{
	"ssid":             KeyNetworkID,
	"wifipass":         KeyNetworkSecret,
	"broker":           KeyBrokerAddress,
	"brokerPort":       KeyBrokerPort,
	"userName":         KeyBrokerUsername,
	"userPass":         KeyBrokerUserSecret,
	"lwtMessage":       KeyLastWillMessage,
	"topic":            KeyDataTopic,
	"mqttCommandTopic": KeyCommandTopic,
	"resetmqttid":      KeyResetClientID,
	"debug":            KeyDebug,
	"pitch":            KeyTonePitch,
	"dotLength":        KeyDotDuration,
	"factorydefaults":  KeyFactoryDefaults,
	"reset":            KeyRestart,
}

// LookupKey resolves a command name. Names are case-sensitive.
func LookupKey(name string) Key {
	return keyNames[name]
}

// Names returns the command names, sorted.
func Names() []string {
	names := make([]string, 0, len(keyNames))
	for name := range keyNames {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// String returns the command name of the key.
func (k Key) String() string {
	for name, key := range keyNames {
		if key == k {
			return name
		}
	}
	return "unknown"
}

// NeedsConfirmation reports whether the key only acts with value "yes".
func (k Key) NeedsConfirmation() bool {
	switch k {
	case KeyResetClientID, KeyFactoryDefaults, KeyRestart:
		return true
	}
	return false
}

// Command is a parsed line.
type Command struct {
	Name  string
	Value string
	Key   Key
}

// Parse splits line on the first '=' and strips up to two trailing CR/LF
// from the name and the value independently. A line without '=' has an
// empty value.
func Parse(line string) Command {
	var cmd Command
	if pos := strings.IndexByte(line, '='); pos >= 0 {
		cmd.Name, cmd.Value = line[:pos], line[pos+1:]
	} else {
		cmd.Name = line
	}
	cmd.Name, cmd.Value = trimEOL(cmd.Name), trimEOL(cmd.Value)
	cmd.Key = LookupKey(cmd.Name)
	return cmd
}

func trimEOL(s string) string {
	for n := 0; n < 2 && len(s) > 0; n++ {
		if c := s[len(s)-1]; c != '\r' && c != '\n' {
			break
		}
		s = s[:len(s)-1]
	}
	return s
}

// atoi accepts leading blanks, an optional sign and the leading digits.
// Anything unparsable is 0; the result saturates at the int32 range.
func atoi(s string) int {
	s = strings.TrimLeft(s, " \t")
	neg := false
	if len(s) > 0 && (s[0] == '+' || s[0] == '-') {
		neg = s[0] == '-'
		s = s[1:]
	}
	var v int64
	for n := 0; n < len(s) && s[n] >= '0' && s[n] <= '9'; n++ {
		if v = v*10 + int64(s[n]-'0'); v > math.MaxInt32+1 {
			v = math.MaxInt32 + 1
		}
	}
	if neg {
		v = -v
	}
	if v > math.MaxInt32 {
		v = math.MaxInt32
	}
	return int(v)
}
