package sh

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/morse.go/pkg/command"
	"github.com/robotalks/morse.go/pkg/config"
	"github.com/robotalks/morse.go/pkg/console"
)

// Shell provides ishell backed interactive shell.
type Shell struct {
	Interactive bool

	Shell  *ishell.Shell
	Target Target
}

const (
	shellKey          = "$shell"
	unconnectedPrompt = "[none] > "
)

var (
	// flags

	evalOnly     bool
	connectURL   string
	serialPort   string
	baudRate     = console.DefaultBaudRate
	dataTopic    = config.DefaultDataTopic
	commandTopic = config.DefaultCommandTopic

	// commands
	commands = []*ishell.Cmd{
		&PortsCmd,
		&ConnectCmd,
		&DisconnectCmd,
		&SetCmd,
		&ShowCmd,
		&SendCmd,
		&ResetCmd,
		&FactoryDefaultsCmd,
	}
)

func init() {
	flag.BoolVar(&evalOnly, "e", evalOnly, "Evaluation only, no interactive shell.")
	flag.StringVar(&connectURL, "mqtt", connectURL, "Connect through the broker, e.g. mqtt://host:1883.")
	flag.StringVar(&serialPort, "serial", serialPort, "Connect to the device console on the serial port.")
	flag.IntVar(&baudRate, "baud", baudRate, "Serial baud rate.")
	flag.StringVar(&dataTopic, "topic", dataTopic, "Data topic of the device.")
	flag.StringVar(&commandTopic, "command-topic", commandTopic, "Command topic of the device.")
}

// New creates a new shell.
func New() *Shell {
	s := &Shell{
		Interactive: !evalOnly,
		Shell:       ishell.New(),
	}
	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt(unconnectedPrompt)
	for _, cmd := range commands {
		s.Shell.AddCmd(cmd)
	}
	return s
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

// MustBeConnected wraps command func requires a connection.
func MustBeConnected(fn func(c *ishell.Context, t Target)) func(c *ishell.Context) {
	return func(c *ishell.Context) {
		t := ShellFrom(c).Target
		if t == nil {
			c.Err(fmt.Errorf("not connected"))
			return
		}
		fn(c, t)
	}
}

// SetTarget replaces the current target.
func (s *Shell) SetTarget(t Target) {
	s.Disconnect()
	s.Target = t
	s.Shell.SetPrompt(fmt.Sprintf("%s > ", t.Name()))
}

// ConnectSerial connects the device console.
func (s *Shell) ConnectSerial(name string, baud int) error {
	port, err := console.OpenSerial(name, baud)
	if err != nil {
		return err
	}
	s.SetTarget(NewConsoleTarget(name, port, s.println))
	return nil
}

// ConnectBus connects the device through the broker.
func (s *Shell) ConnectBus(serverURL string) error {
	t, err := DialBus(context.Background(), serverURL, dataTopic, commandTopic, s.println)
	if err != nil {
		return err
	}
	s.SetTarget(t)
	return nil
}

// Disconnect disconnects current target.
func (s *Shell) Disconnect() {
	if s.Target != nil {
		s.Target.Close()
		s.Target = nil
		s.Shell.SetPrompt(unconnectedPrompt)
	}
}

func (s *Shell) println(line string) {
	s.Shell.Println(line)
}

// Run runs the shell.
func (s *Shell) Run(args ...string) {
	var err error
	switch {
	case connectURL != "":
		err = s.ConnectBus(connectURL)
	case serialPort != "":
		err = s.ConnectSerial(serialPort, baudRate)
	}
	if err != nil {
		log.Fatalf("connect failed: %v", err)
	}
	defer s.Disconnect()

	if len(args) > 0 {
		if err := s.Shell.Process(args...); err != nil {
			log.Fatalln(err)
		}
		return
	}
	if s.Interactive {
		s.Shell.Run()
		return
	}
	log.Fatalln("command expected")
}

func sendCommand(c *ishell.Context, t Target, name, value string) {
	line, err := CommandLine(name, value)
	if err != nil {
		c.Err(err)
		return
	}
	if err := t.SendCommand(line); err != nil {
		c.Err(err)
	}
}

func confirmed(c *ishell.Context, what string) bool {
	if len(c.Args) > 0 && c.Args[0] == "-y" {
		return true
	}
	if !ShellFrom(c).Interactive {
		c.Err(fmt.Errorf("%s needs -y in non-interactive mode", what))
		return false
	}
	c.Printf("%s? (yes/no) ", what)
	return c.ReadLine() == command.Confirmation
}

var (
	// PortsCmd lists serial ports.
	PortsCmd = ishell.Cmd{
		Name:    "ports",
		Aliases: []string{"list", "l"},
		Help:    "list serial ports",
		Func: func(c *ishell.Context) {
			ports, err := console.ListPorts()
			if err != nil {
				c.Err(err)
				return
			}
			if len(ports) == 0 {
				c.Println("No serial ports found")
				return
			}
			for _, port := range ports {
				c.Println(port)
			}
		},
	}

	// ConnectCmd connects a device.
	ConnectCmd = ishell.Cmd{
		Name:    "connect",
		Aliases: []string{"c"},
		Help:    "mqtt://HOST[:PORT] | SERIAL-PORT [BAUD]",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			if len(c.Args) == 0 {
				c.Err(fmt.Errorf("broker URL or serial port expected"))
				return
			}
			var err error
			if strings.Contains(c.Args[0], "://") {
				err = s.ConnectBus(c.Args[0])
			} else {
				baud := console.DefaultBaudRate
				if len(c.Args) > 1 {
					if baud, err = strconv.Atoi(c.Args[1]); err != nil {
						c.Err(fmt.Errorf("invalid baud rate %q", c.Args[1]))
						return
					}
				}
				err = s.ConnectSerial(c.Args[0], baud)
			}
			if err != nil {
				c.Err(err)
			}
		},
	}

	// DisconnectCmd disconnects current device.
	DisconnectCmd = ishell.Cmd{
		Name:    "disconnect",
		Aliases: []string{"d"},
		Help:    "",
		Func: func(c *ishell.Context) {
			ShellFrom(c).Disconnect()
		},
	}

	// SetCmd changes a setting.
	SetCmd = ishell.Cmd{
		Name: "set",
		Help: "NAME VALUE",
		Completer: func([]string) []string {
			return command.Names()
		},
		Func: MustBeConnected(func(c *ishell.Context, t Target) {
			if len(c.Args) < 1 {
				c.Err(fmt.Errorf("setting name expected"))
				return
			}
			sendCommand(c, t, c.Args[0], strings.Join(c.Args[1:], " "))
		}),
	}

	// ShowCmd asks the device to list its settings.
	ShowCmd = ishell.Cmd{
		Name:    "show",
		Aliases: []string{"s"},
		Help:    "",
		Func: MustBeConnected(func(c *ishell.Context, t Target) {
			// Any unknown line lists the settings.
			if err := t.SendCommand("?"); err != nil {
				c.Err(err)
			}
		}),
	}

	// SendCmd plays text.
	SendCmd = ishell.Cmd{
		Name:    "send",
		Aliases: []string{"play"},
		Help:    "TEXT",
		Func: MustBeConnected(func(c *ishell.Context, t Target) {
			if err := t.Play(strings.Join(c.Args, " ")); err != nil {
				c.Err(err)
			}
		}),
	}

	// ResetCmd restarts the device.
	ResetCmd = ishell.Cmd{
		Name: "reset",
		Help: "[-y]",
		Func: MustBeConnected(func(c *ishell.Context, t Target) {
			if confirmed(c, "Restart the device") {
				sendCommand(c, t, command.KeyRestart.String(), command.Confirmation)
			}
		}),
	}

	// FactoryDefaultsCmd erases every setting.
	FactoryDefaultsCmd = ishell.Cmd{
		Name: "factorydefaults",
		Help: "[-y]",
		Func: MustBeConnected(func(c *ishell.Context, t Target) {
			if confirmed(c, "Reset all settings") {
				sendCommand(c, t, command.KeyFactoryDefaults.String(), command.Confirmation)
			}
		}),
	}
)

// Main is a helper to provide a single call in main.
func Main() {
	flag.Parse()
	New().Run(flag.Args()...)
}
