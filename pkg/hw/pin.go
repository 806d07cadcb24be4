// Package hw drives the indicator pin and the tone output on the host.
package hw

import (
	"fmt"
	"os"
	"sync"

	"github.com/golang/glog"
)

// SysfsPin is a GPIO output through its sysfs value file, e.g.
// /sys/class/gpio/gpio2/value.
type SysfsPin struct {
	Path string
	// ActiveLow drives the line low for active, like an LED wired to
	// the supply.
	ActiveLow bool

	lock sync.Mutex
}

// NewSysfsPin creates a SysfsPin.
func NewSysfsPin(path string, activeLow bool) *SysfsPin {
	return &SysfsPin{Path: path, ActiveLow: activeLow}
}

// Set implements morse.Indicator.
func (p *SysfsPin) Set(active bool) error {
	level := active != p.ActiveLow
	value := []byte("0")
	if level {
		value = []byte("1")
	}
	p.lock.Lock()
	defer p.lock.Unlock()
	if err := os.WriteFile(p.Path, value, 0); err != nil {
		return fmt.Errorf("gpio %s: %w", p.Path, err)
	}
	return nil
}

// NopPin is a pin which only logs.
type NopPin struct{}

// Set implements morse.Indicator.
func (NopPin) Set(active bool) error {
	glog.V(3).Infof("pin: active=%v", active)
	return nil
}
