package device

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
	"gopkg.in/yaml.v2"

	"github.com/robotalks/morse.go/pkg/bus/mqtt"
	"github.com/robotalks/morse.go/pkg/config"
	"github.com/robotalks/morse.go/pkg/console"
	"github.com/robotalks/morse.go/pkg/env"
	"github.com/robotalks/morse.go/pkg/hw"
	"github.com/robotalks/morse.go/pkg/metrics"
	"github.com/robotalks/morse.go/pkg/morse"
	"github.com/robotalks/morse.go/pkg/network"
)

// Config defines how the device maps onto the host. The device settings
// themselves live in the persisted record.
type Config struct {
	// StorePath is the image file holding the record.
	StorePath string `yaml:"store"`
	// Serial is the console port, stdio if empty or "-".
	Serial   string `yaml:"serial"`
	BaudRate int    `yaml:"baudRate"`
	// Interface restricts the network link to one interface.
	Interface   string   `yaml:"interface"`
	JoinCommand []string `yaml:"joinCommand"`
	// ToneCommand plays a tone, with {pitch} and {ms} substituted.
	ToneCommand []string `yaml:"toneCommand"`
	// Indicator is the sysfs value file of the indicator GPIO.
	Indicator          string `yaml:"indicator"`
	IndicatorActiveLow bool   `yaml:"indicatorActiveLow"`
	// Transcript receives a copy of the console output, rotated.
	Transcript          string        `yaml:"transcript"`
	TranscriptMaxSizeMB int           `yaml:"transcriptMaxSizeMB"`
	MetricsAddr         string        `yaml:"metricsAddr"`
	StartupDelay        time.Duration `yaml:"startupDelay"`
	LoopInterval        time.Duration `yaml:"loopInterval"`
}

// Defaults.
const (
	DefaultStorePath    = "morse.eeprom"
	DefaultStartupDelay = 2 * time.Second
	DefaultLoopInterval = 100 * time.Millisecond
)

var defaultConfig = Config{
	StorePath:           DefaultStorePath,
	BaudRate:            console.DefaultBaudRate,
	IndicatorActiveLow:  true,
	TranscriptMaxSizeMB: 10,
	StartupDelay:        DefaultStartupDelay,
	LoopInterval:        DefaultLoopInterval,
}

func init() {
	applyEnv(&defaultConfig, os.Getenv)
}

func applyEnv(c *Config, getenv func(string) string) {
	if val := getenv("MORSE_STORE"); val != "" {
		c.StorePath = val
	}
	if val := getenv("MORSE_SERIAL"); val != "" {
		c.Serial = val
	}
	if val := getenv("MORSE_INTERFACE"); val != "" {
		c.Interface = val
	}
	if val := getenv("MORSE_INDICATOR"); val != "" {
		c.Indicator = val
	}
	if val := getenv("MORSE_TONE_COMMAND"); val != "" {
		c.ToneCommand = strings.Fields(val)
	}
	if val := getenv("MORSE_TRANSCRIPT"); val != "" {
		c.Transcript = val
	}
	if val := getenv("MORSE_METRICS_ADDR"); val != "" {
		c.MetricsAddr = val
	}
}

// SetupFlags sets command line flags.
func SetupFlags(fs *pflag.FlagSet) {
	fs.StringVar(&defaultConfig.StorePath, "store", defaultConfig.StorePath, "Image file holding the device settings.")
	fs.StringVar(&defaultConfig.Serial, "serial", defaultConfig.Serial, "Console serial port, \"-\" for stdio.")
	fs.IntVar(&defaultConfig.BaudRate, "baud", defaultConfig.BaudRate, "Console baud rate.")
	fs.StringVar(&defaultConfig.Interface, "interface", defaultConfig.Interface, "Network interface, any if empty.")
	fs.StringSliceVar(&defaultConfig.JoinCommand, "join-command", defaultConfig.JoinCommand, "Command joining the network, credentials in MORSE_NETWORK_ID/MORSE_NETWORK_SECRET.")
	fs.StringSliceVar(&defaultConfig.ToneCommand, "tone-command", defaultConfig.ToneCommand, "Command playing a tone, with {pitch} and {ms} substituted.")
	fs.StringVar(&defaultConfig.Indicator, "indicator", defaultConfig.Indicator, "Sysfs GPIO value file of the indicator.")
	fs.BoolVar(&defaultConfig.IndicatorActiveLow, "indicator-active-low", defaultConfig.IndicatorActiveLow, "Drive the indicator low when active.")
	fs.StringVar(&defaultConfig.Transcript, "transcript", defaultConfig.Transcript, "File receiving a copy of the console output.")
	fs.StringVar(&defaultConfig.MetricsAddr, "metrics-addr", defaultConfig.MetricsAddr, "Address serving Prometheus metrics, disabled if empty.")
	fs.DurationVar(&defaultConfig.StartupDelay, "startup-delay", defaultConfig.StartupDelay, "Delay before the device starts.")
}

// Default gets default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a config with defaults.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// LoadConfig reads a yaml file into the default config. Flags changed on
// the command line keep precedence over the file.
func LoadConfig(path string, fs *pflag.FlagSet) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var changed []*pflag.Flag
	if fs != nil {
		fs.Visit(func(f *pflag.Flag) { changed = append(changed, f) })
	}
	saved := make(map[string]interface{}, len(changed))
	for _, f := range changed {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			saved[f.Name] = sv.GetSlice()
		} else {
			saved[f.Name] = f.Value.String()
		}
	}
	if err := yaml.Unmarshal(data, &defaultConfig); err != nil {
		return fmt.Errorf("config %s: %w", path, err)
	}
	for _, f := range changed {
		switch v := saved[f.Name].(type) {
		case []string:
			f.Value.(pflag.SliceValue).Replace(v)
		case string:
			f.Value.Set(v)
		}
	}
	return nil
}

// Output is the console output, teed to the transcript when configured.
func (c *Config) Output(port console.Port) (out *Tee, closer func() error) {
	out = &Tee{Console: port}
	if c.Transcript == "" {
		return out, func() error { return nil }
	}
	transcript := &lumberjack.Logger{
		Filename:   c.Transcript,
		MaxSize:    c.TranscriptMaxSizeMB,
		MaxBackups: 3,
		MaxAge:     28,
	}
	out.Transcript = transcript
	return out, transcript.Close
}

// NewOptions builds the device collaborators on the host. Console and
// output persist across device restarts and are passed in.
func (c *Config) NewOptions(lines LineSource, out *Tee, m *metrics.Metrics) Options {
	var indicator morse.Indicator = hw.NopPin{}
	if c.Indicator != "" {
		indicator = hw.NewSysfsPin(c.Indicator, c.IndicatorActiveLow)
	}
	var tone morse.Tone = hw.LogTone{}
	if len(c.ToneCommand) > 0 {
		tone = hw.NewCommandTone(c.ToneCommand...)
	}
	return Options{
		Storage:      config.NewFileStorage(c.StorePath),
		Lines:        lines,
		Output:       out,
		Tone:         tone,
		Indicator:    indicator,
		Link:         network.NewHostLink(c.Interface, c.JoinCommand...),
		Session:      mqtt.NewSession(nil),
		Metrics:      m,
		MachineID:    env.AppMachineID("morsed"),
		StartupDelay: c.StartupDelay,
		LoopInterval: c.LoopInterval,
	}
}
