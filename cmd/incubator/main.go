// Command incubator regulates an egg incubator's temperature and humidity and
// reports telemetry over MQTT.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"
	_ "go.uber.org/automaxprocs"

	"github.com/sweeney/incubator/internal/config"
	"github.com/sweeney/incubator/internal/log"
	"github.com/sweeney/incubator/internal/logic"
	"github.com/sweeney/incubator/internal/sensor"
)

func main() {
	ctx, cancel := signalContext(context.Background())
	defer cancel(nil)

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "incubator",
		Short: "Egg incubator controller",
		Long: "incubator samples a DHT22, drives the heater relay, indicator LEDs and buzzer, " +
			"and publishes temperature and humidity telemetry to MQTT.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cmd.Flags(), cfgFile)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	fs := cmd.PersistentFlags()
	fs.StringVar(&cfgFile, "config", "", "YAML config file")
	config.NewDefault().AddFlags(fs)

	cmd.AddCommand(newReadCommand(&cfgFile))
	return cmd
}

func newReadCommand(cfgFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "read",
		Short: "Sample the sensor once, print the reading and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cmd.Flags(), *cfgFile)
			if err != nil {
				return err
			}
			logger, err := log.New(cfg.Log)
			if err != nil {
				return err
			}
			defer log.Sync(logger)

			source := sensor.NewIIOSource(cfg.Sensor.Device, logger)
			return printReading(cmd.OutOrStdout(), source.Sample(time.Now()), cfg.LogicThresholds())
		},
	}
}

// printReading writes r and the outputs the policy would select from an
// all-off state.
func printReading(w io.Writer, r logic.Reading, th logic.Thresholds) error {
	if !r.Valid {
		return errors.New("sensor reading invalid")
	}
	state, alert := logic.Evaluate(r, logic.ActuatorState{}, th)

	table := uitable.New()
	table.MaxColWidth = 40
	table.AddRow("FIELD", "VALUE")
	table.AddRow("Temperature", fmt.Sprintf("%.1f C", r.TemperatureC))
	table.AddRow("Humidity", fmt.Sprintf("%.1f %%", r.HumidityPct))
	table.AddRow("Time", r.Time.UTC().Format(time.RFC3339))
	table.AddRow("Heater", onOff(state.HeaterOn))
	table.AddRow("Humidity indicator", onOff(state.HumidityIndicatorOn))
	table.AddRow("Abnormal", fmt.Sprintf("%t", state.Abnormal))
	table.AddRow("Alert", fmt.Sprintf("%t", alert != nil))
	_, err := fmt.Fprintln(w, table)
	return err
}

func onOff(b bool) string {
	if b {
		return "ON"
	}
	return "OFF"
}

// signalError records which signal ended the process.
type signalError struct {
	name string
}

func (e *signalError) Error() string { return "received " + e.name }

// signalContext is cancelled on SIGINT or SIGTERM with a *signalError cause.
func signalContext(parent context.Context) (context.Context, context.CancelCauseFunc) {
	ctx, cancel := context.WithCancelCause(parent)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		defer signal.Stop(sigCh)
		select {
		case s := <-sigCh:
			cancel(&signalError{name: signalName(s)})
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}

// shutdownReason names the signal that cancelled ctx, if any.
func shutdownReason(ctx context.Context) string {
	var se *signalError
	if errors.As(context.Cause(ctx), &se) {
		return se.name
	}
	return "shutdown"
}
