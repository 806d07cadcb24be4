package device

import (
	"flag"
	"strconv"
	"sync"

	"github.com/golang/glog"
)

// DebugVerbosity is the glog verbosity while the debug setting is on.
const DebugVerbosity = 2

var (
	baseVerbosity     string
	baseVerbosityOnce sync.Once
)

// setDebugLogging raises glog verbosity to DebugVerbosity while on and
// restores the command line level otherwise.
func setDebugLogging(on bool) {
	f := flag.Lookup("v")
	if f == nil {
		return
	}
	baseVerbosityOnce.Do(func() { baseVerbosity = f.Value.String() })
	level := baseVerbosity
	if on {
		if n, _ := strconv.Atoi(baseVerbosity); n < DebugVerbosity {
			level = strconv.Itoa(DebugVerbosity)
		}
	}
	if err := f.Value.Set(level); err != nil {
		glog.Warningf("device: set verbosity %s: %v", level, err)
	}
}
