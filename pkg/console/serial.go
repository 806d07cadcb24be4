// Package console provides the byte channel the command protocol is
// typed on: a serial port or the process stdio.
package console

import (
	"fmt"
	"io"
	"os"

	"go.bug.st/serial"
)

// DefaultBaudRate is the console speed.
const DefaultBaudRate = 115200

// Port is a console channel.
type Port interface {
	io.ReadWriteCloser
}

// SerialPort wraps a serial port.
type SerialPort struct {
	port serial.Port
}

// OpenSerial opens a serial port at baudRate, 8N1.
func OpenSerial(name string, baudRate int) (*SerialPort, error) {
	if baudRate <= 0 {
		baudRate = DefaultBaudRate
	}
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(name, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", name, err)
	}
	return &SerialPort{port: port}, nil
}

func (s *SerialPort) Read(p []byte) (int, error) {
	return s.port.Read(p)
}

func (s *SerialPort) Write(p []byte) (int, error) {
	return s.port.Write(p)
}

// Close implements io.Closer.
func (s *SerialPort) Close() error {
	return s.port.Close()
}

// ListPorts returns the serial ports present on the host.
func ListPorts() ([]string, error) {
	return serial.GetPortsList()
}

type stdio struct{}

// Stdio is the process standard input and output as a Port. Closing it
// does nothing.
func Stdio() Port {
	return stdio{}
}

func (stdio) Read(p []byte) (int, error)  { return os.Stdin.Read(p) }
func (stdio) Write(p []byte) (int, error) { return os.Stdout.Write(p) }
func (stdio) Close() error                { return nil }

// Open opens the named serial port, or stdio when name is empty or "-".
func Open(name string, baudRate int) (Port, error) {
	if name == "" || name == "-" {
		return Stdio(), nil
	}
	return OpenSerial(name, baudRate)
}
