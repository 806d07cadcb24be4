package sh

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/robotalks/morse.go/pkg/bus/mqtt"
	"github.com/robotalks/morse.go/pkg/command"
	"github.com/robotalks/morse.go/pkg/config"
)

// Target is a device reachable from the shell.
type Target interface {
	Name() string
	// SendCommand sends a name=value line to the device.
	SendCommand(line string) error
	// Play sends text to be played.
	Play(text string) error
	Close() error
}

// CommandLine formats a setting assignment.
func CommandLine(name, value string) (string, error) {
	if command.LookupKey(name) == command.KeyUnknown {
		return "", fmt.Errorf("unknown setting %q", name)
	}
	if strings.ContainsAny(name+value, "\r\n") {
		return "", fmt.Errorf("line breaks not allowed")
	}
	return name + "=" + value, nil
}

// ConsoleTarget talks to the device console. The console only accepts
// commands, so Play is rejected.
type ConsoleTarget struct {
	Port io.ReadWriteCloser
	name string
}

// NewConsoleTarget wraps an opened console port. Device output is copied
// to out line by line until the port is closed.
func NewConsoleTarget(name string, port io.ReadWriteCloser, out func(string)) *ConsoleTarget {
	t := &ConsoleTarget{Port: port, name: name}
	go func() {
		scanner := bufio.NewScanner(port)
		for scanner.Scan() {
			out(scanner.Text())
		}
	}()
	return t
}

// Name implements Target.
func (t *ConsoleTarget) Name() string { return t.name }

// SendCommand implements Target.
func (t *ConsoleTarget) SendCommand(line string) error {
	_, err := io.WriteString(t.Port, line+"\n")
	return err
}

// Play implements Target.
func (t *ConsoleTarget) Play(text string) error {
	return fmt.Errorf("%s: console does not play text, connect over mqtt", t.name)
}

// Close implements Target.
func (t *ConsoleTarget) Close() error { return t.Port.Close() }

// BusTarget talks to the device through the broker.
type BusTarget struct {
	Client       paho.Client
	DataTopic    string
	CommandTopic string
	Timeout      time.Duration
	name         string
}

// DialBus connects to the broker at serverURL and watches the device
// status on the status topic derived from dataTopic.
func DialBus(ctx context.Context, serverURL, dataTopic, commandTopic string, out func(string)) (*BusTarget, error) {
	opts, err := mqtt.ClientOptionsFromURL(serverURL)
	if err != nil {
		return nil, err
	}
	if len(opts.ClientID) == 0 {
		opts.SetClientID(config.NewClientID() + "sh")
	}
	t := &BusTarget{
		Client:       paho.NewClient(opts),
		DataTopic:    dataTopic,
		CommandTopic: commandTopic,
		Timeout:      mqtt.DefaultAckTimeout,
		name:         serverURL,
	}
	if err := t.wait(ctx, t.Client.Connect()); err != nil {
		return nil, fmt.Errorf("connect %s: %w", serverURL, err)
	}
	status := config.Record{DataTopic: dataTopic}.StatusTopic()
	token := t.Client.Subscribe(status, 0, func(c paho.Client, msg paho.Message) {
		out(fmt.Sprintf("[%s] %s", msg.Topic(), msg.Payload()))
	})
	if err := t.wait(ctx, token); err != nil {
		t.Close()
		return nil, fmt.Errorf("subscribe %s: %w", status, err)
	}
	return t, nil
}

// Name implements Target.
func (t *BusTarget) Name() string { return t.name }

// SendCommand implements Target.
func (t *BusTarget) SendCommand(line string) error {
	return t.publish(t.CommandTopic, line)
}

// Play implements Target.
func (t *BusTarget) Play(text string) error {
	return t.publish(t.DataTopic, text)
}

// Close implements Target.
func (t *BusTarget) Close() error {
	t.Client.Disconnect(250)
	return nil
}

func (t *BusTarget) publish(topic, payload string) error {
	return t.wait(context.Background(), t.Client.Publish(topic, 0, false, payload))
}

func (t *BusTarget) wait(ctx context.Context, token paho.Token) error {
	timer := time.NewTimer(t.Timeout)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return mqtt.ErrTimeout
	case <-token.Done():
		return token.Error()
	}
}
