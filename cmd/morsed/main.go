package main

//go-build: CGO_ENABLED=0

import (
	"context"
	"errors"
	"flag"
	"os"

	"github.com/golang/glog"
	"github.com/spf13/cobra"

	"github.com/robotalks/morse.go/pkg/bus/mqtt"
	"github.com/robotalks/morse.go/pkg/console"
	"github.com/robotalks/morse.go/pkg/device"
	fx "github.com/robotalks/morse.go/pkg/framework"
	"github.com/robotalks/morse.go/pkg/metrics"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "morsed",
	Short: "MQTT to morse code converter",
	Long: `morsed plays text published on an MQTT topic as morse code.

Settings are entered as name=value lines on the console or published on the
command topic, and persisted in the store image. Type any unknown line on the
console to list the settings.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// glog checks flag.Parsed.
		flag.CommandLine.Parse(nil)
		if configFile != "" {
			return device.LoadConfig(configFile, cmd.Flags())
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		defer glog.Flush()
		return run(device.Default())
	},
}

func init() {
	rootCmd.Flags().StringVarP(&configFile, "config", "c", "", "YAML config file.")
	device.SetupFlags(rootCmd.Flags())
	rootCmd.Flags().AddGoFlagSet(flag.CommandLine)
}

func run(conf *device.Config) error {
	port, err := console.Open(conf.Serial, conf.BaudRate)
	if err != nil {
		return err
	}
	defer port.Close()
	out, closeTranscript := conf.Output(port)
	defer closeTranscript()
	mqtt.RouteLogs()

	lines := console.NewLineReader(port, out)
	var m *metrics.Metrics
	runner := fx.NewRunner().HandleSignals()
	runner.Go(fx.NamedRun("console", fx.RunFunc(func(ctx context.Context) error {
		if err := lines.Run(ctx); err != nil {
			return err
		}
		// The device keeps running without console input.
		<-ctx.Done()
		return ctx.Err()
	})))
	if conf.MetricsAddr != "" {
		m = metrics.New()
		runner.Go(fx.NamedRun("metrics", &metrics.Server{Addr: conf.MetricsAddr, Metrics: m}))
	}
	runner.Go(fx.NamedRun("device", fx.RunFunc(func(ctx context.Context) error {
		for {
			err := device.New(conf.NewOptions(lines, out, m)).Run(ctx)
			if !errors.Is(err, device.ErrRestart) {
				return err
			}
		}
	})))
	return runner.Wait()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
