package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/airsense"
	"github.com/mklimuk/airsense/cmd/airsense/console"
	"github.com/mklimuk/airsense/co2"
	"github.com/mklimuk/airsense/config"
	"github.com/mklimuk/airsense/snsctx"
)

var scd4xCmd = cli.Command{
	Name:  "scd4x",
	Usage: "operate a Sensirion SCD40/SCD41 CO2 sensor",
	Flags: busFlags,
	Subcommands: cli.Commands{
		&scd4xSerialCmd,
		&scd4xReadCmd,
		&scd4xSingleShotCmd,
		&scd4xSelfTestCmd,
		&scd4xCalibrateCmd,
		&scd4xASCCmd,
		&scd4xAltitudeCmd,
		&scd4xOffsetCmd,
		&scd4xPressureCmd,
		&scd4xPersistCmd,
		&scd4xReinitCmd,
		&scd4xFactoryResetCmd,
		&scd4xStopCmd,
		&scd4xServeCmd,
	},
}

// withBus opens the transport selected by the flags and runs fn with a
// context cancelled on SIGINT/SIGTERM.
func withBus(c *cli.Context, cfg config.Config, fn func(ctx context.Context, bus airsense.I2CBus) error) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = adapterContext(ctx, cfg, c.Bool("verbose"))
	if err := cfg.Validate(); err != nil {
		return console.Exit(1, "%s", console.Red(err))
	}
	bus, closeBus, err := openBus(ctx, cfg)
	if err != nil {
		return console.Exit(1, "could not open bus: %s", console.Red(err))
	}
	defer func() {
		if err := closeBus(); err != nil {
			slog.Warn("could not close bus", "error", err)
		}
	}()
	err = fn(ctx, bus)
	if err := bus.Release(context.WithoutCancel(ctx)); err != nil {
		slog.Warn("could not release bus", "error", err)
	}
	return err
}

// adapterContext carries the verbosity and the logger used by bus adapters.
func adapterContext(ctx context.Context, cfg config.Config, verbose bool) context.Context {
	ctx = snsctx.SetVerbose(ctx, verbose)
	return snsctx.WithLogger(ctx, slog.Default().With("adapter", cfg.Bus.Adapter))
}

func sensorOptions(cfg config.Config) []co2.Option {
	return []co2.Option{
		co2.WithAddress(cfg.Sensor.Address),
		co2.WithLogger(slog.Default()),
	}
}

// idleAction runs fn against a sensor expected to be idle.
func idleAction(fn func(ctx context.Context, c *cli.Context, sensor *co2.IdleSCD4x) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		cfg, err := busConfig(c, config.Default())
		if err != nil {
			return console.Exit(2, "%s", console.Red(err))
		}
		return withBus(c, cfg, func(ctx context.Context, bus airsense.I2CBus) error {
			return fn(ctx, c, co2.New(bus, sensorOptions(cfg)...))
		})
	}
}

func parseFloatArg(c *cli.Context, name string) (float32, error) {
	v, err := strconv.ParseFloat(c.Args().First(), 32)
	if err != nil {
		return 0, console.Exit(2, "invalid %s %q: %s", name, c.Args().First(), console.Red(err))
	}
	return float32(v), nil
}

func confirmed(c *cli.Context, question string) (bool, error) {
	if c.Bool("yes") {
		return true, nil
	}
	answer, err := console.YesOrNo(question)
	if err != nil {
		return false, err
	}
	return answer == console.Yes, nil
}

var scd4xSerialCmd = cli.Command{
	Name:  "serial",
	Usage: "print the sensor serial number",
	Action: idleAction(func(ctx context.Context, _ *cli.Context, sensor *co2.IdleSCD4x) error {
		serial, err := sensor.GetSerialNumber(ctx)
		if err != nil {
			return console.Exit(1, "could not read serial number: %s", console.Red(err))
		}
		console.Printf("%s %s (%s)\n", console.PictoKey, console.White(serial), console.White(strconv.FormatUint(serial, 16)))
		return nil
	}),
}

var scd4xReadCmd = cli.Command{
	Name:  "read",
	Usage: "start periodic measurement and print samples",
	Flags: []cli.Flag{
		&cli.IntFlag{Name: "count", Aliases: []string{"n"}, Value: 1, Usage: "number of samples to read, 0 reads until interrupted"},
		&cli.BoolFlag{Name: "low-power", Usage: "use the 30 s low power measurement interval"},
		&cli.DurationFlag{Name: "poll", Value: time.Second, Usage: "data ready polling interval"},
	},
	Action: idleAction(func(ctx context.Context, c *cli.Context, sensor *co2.IdleSCD4x) error {
		var measuring *co2.MeasuringSCD4x
		var err error
		if c.Bool("low-power") {
			measuring, err = sensor.StartLowPowerPeriodicMeasurement(ctx)
		} else {
			measuring, err = sensor.StartPeriodicMeasurement(ctx)
		}
		if err != nil {
			return console.Exit(1, "could not start measurement: %s", console.Red(err))
		}
		console.Info("waiting for samples")
		count := c.Int("count")
		var readErr error
		for i := 0; count <= 0 || i < count; i++ {
			sample, err := measuring.AwaitSample(ctx, c.Duration("poll"))
			if err != nil {
				if ctx.Err() == nil {
					readErr = console.Exit(1, "could not read sample: %s", console.Red(err))
				}
				break
			}
			printSample(sample)
		}
		if _, err := measuring.StopPeriodicMeasurement(context.WithoutCancel(ctx)); err != nil {
			return console.Exit(1, "could not stop measurement: %s", console.Red(err))
		}
		return readErr
	}),
}

func printSample(sample co2.Sample) {
	console.Printf("%s %s  %s %s  %s %s\n",
		console.PictoCO2, console.White(sample.CO2),
		console.PictoThermometer, console.White(sample.Temperature),
		console.PictoHumidity, console.White(sample.Humidity))
}

var scd4xSingleShotCmd = cli.Command{
	Name:  "single-shot",
	Usage: "perform a single measurement (SCD41 only)",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "rht-only", Usage: "measure temperature and humidity only"},
	},
	Action: idleAction(func(ctx context.Context, c *cli.Context, sensor *co2.IdleSCD4x) error {
		measure := sensor.MeasureSingleShot
		if c.Bool("rht-only") {
			measure = sensor.MeasureSingleShotRHTOnly
		}
		measuring, err := measure(ctx)
		if err != nil {
			return console.Exit(1, "could not trigger measurement: %s", console.Red(err))
		}
		sample, err := measuring.ReadMeasurement(ctx)
		if err != nil {
			return console.Exit(1, "could not read sample: %s", console.Red(err))
		}
		printSample(sample)
		return nil
	}),
}

var scd4xSelfTestCmd = cli.Command{
	Name:  "self-test",
	Usage: "run the built-in self test (takes 10 seconds)",
	Action: idleAction(func(ctx context.Context, _ *cli.Context, sensor *co2.IdleSCD4x) error {
		console.Info("running self test")
		passed, err := sensor.PerformSelfTest(ctx)
		if err != nil {
			return console.Exit(1, "self test failed to run: %s", console.Red(err))
		}
		if !passed {
			return console.Exit(1, "%s", console.Red("sensor malfunction detected"))
		}
		console.PInfof(console.PictoFinish, "%s", console.Green("self test passed"))
		return nil
	}),
}

var scd4xCalibrateCmd = cli.Command{
	Name:  "calibrate",
	Usage: "perform forced recalibration against a known CO2 concentration",
	Flags: []cli.Flag{
		&cli.UintFlag{Name: "ppm", Required: true, Usage: "reference CO2 concentration"},
		&cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "do not ask for confirmation"},
	},
	Action: idleAction(func(ctx context.Context, c *cli.Context, sensor *co2.IdleSCD4x) error {
		ok, err := confirmed(c, "The sensor must have been measuring in the reference atmosphere for at least 3 minutes. Continue?")
		if err != nil {
			return err
		}
		if !ok {
			console.Warn("calibration aborted")
			return nil
		}
		correction, ok, err := sensor.PerformForcedRecalibration(ctx, co2.PPM(c.Uint("ppm")))
		if err != nil {
			return console.Exit(1, "could not recalibrate: %s", console.Red(err))
		}
		if !ok {
			return console.Exit(1, "%s", console.Red("the sensor rejected the recalibration"))
		}
		console.PInfof(console.PictoFinish, "correction applied: %s", console.White(correction))
		return nil
	}),
}

var scd4xASCCmd = cli.Command{
	Name:      "asc",
	Usage:     "get or set automatic self calibration",
	ArgsUsage: "[on|off]",
	Action: idleAction(func(ctx context.Context, c *cli.Context, sensor *co2.IdleSCD4x) error {
		if c.NArg() == 0 {
			enabled, err := sensor.GetAutomaticSelfCalibrationEnabled(ctx)
			if err != nil {
				return console.Exit(1, "could not read automatic self calibration: %s", console.Red(err))
			}
			console.Printf("automatic self calibration enabled: %s\n", console.White(enabled))
			return nil
		}
		var enabled bool
		switch c.Args().First() {
		case "on":
			enabled = true
		case "off":
		default:
			return console.Exit(2, "expected on or off, got %q", c.Args().First())
		}
		if err := sensor.SetAutomaticSelfCalibrationEnabled(ctx, enabled); err != nil {
			return console.Exit(1, "could not set automatic self calibration: %s", console.Red(err))
		}
		return nil
	}),
}

var scd4xAltitudeCmd = cli.Command{
	Name:      "altitude",
	Usage:     "get or set the sensor altitude",
	ArgsUsage: "[meters]",
	Action: idleAction(func(ctx context.Context, c *cli.Context, sensor *co2.IdleSCD4x) error {
		if c.NArg() == 0 {
			altitude, err := sensor.GetSensorAltitude(ctx)
			if err != nil {
				return console.Exit(1, "could not read altitude: %s", console.Red(err))
			}
			console.Printf("%s %s\n", console.PictoPin, console.White(altitude))
			return nil
		}
		altitude, err := parseFloatArg(c, "altitude")
		if err != nil {
			return err
		}
		if err := sensor.SetSensorAltitude(ctx, co2.Meter(altitude)); err != nil {
			return console.Exit(1, "could not set altitude: %s", console.Red(err))
		}
		return nil
	}),
}

var scd4xOffsetCmd = cli.Command{
	Name:      "offset",
	Usage:     "get or set the temperature offset",
	ArgsUsage: "[celsius]",
	Action: idleAction(func(ctx context.Context, c *cli.Context, sensor *co2.IdleSCD4x) error {
		if c.NArg() == 0 {
			offset, err := sensor.GetTemperatureOffset(ctx)
			if err != nil {
				return console.Exit(1, "could not read temperature offset: %s", console.Red(err))
			}
			console.Printf("%s %s\n", console.PictoThermometer, console.White(offset))
			return nil
		}
		offset, err := parseFloatArg(c, "offset")
		if err != nil {
			return err
		}
		if err := sensor.SetTemperatureOffset(ctx, co2.Celsius(offset)); err != nil {
			return console.Exit(1, "could not set temperature offset: %s", console.Red(err))
		}
		return nil
	}),
}

var scd4xPressureCmd = cli.Command{
	Name:      "pressure",
	Usage:     "set the ambient pressure used for compensation",
	ArgsUsage: "<hPa>",
	Action: idleAction(func(ctx context.Context, c *cli.Context, sensor *co2.IdleSCD4x) error {
		if c.NArg() == 0 {
			return console.Exit(2, "missing pressure")
		}
		pressure, err := parseFloatArg(c, "pressure")
		if err != nil {
			return err
		}
		if err := sensor.SetAmbientPressure(ctx, co2.Hectopascal(pressure)); err != nil {
			return console.Exit(1, "could not set ambient pressure: %s", console.Red(err))
		}
		return nil
	}),
}

var scd4xPersistCmd = cli.Command{
	Name:  "persist",
	Usage: "store the current settings in EEPROM",
	Action: idleAction(func(ctx context.Context, _ *cli.Context, sensor *co2.IdleSCD4x) error {
		if err := sensor.PersistSettings(ctx); err != nil {
			return console.Exit(1, "could not persist settings: %s", console.Red(err))
		}
		console.Info("settings persisted")
		return nil
	}),
}

var scd4xReinitCmd = cli.Command{
	Name:  "reinit",
	Usage: "reload settings from EEPROM",
	Action: idleAction(func(ctx context.Context, _ *cli.Context, sensor *co2.IdleSCD4x) error {
		if err := sensor.Reinit(ctx); err != nil {
			return console.Exit(1, "could not reinitialize: %s", console.Red(err))
		}
		return nil
	}),
}

var scd4xFactoryResetCmd = cli.Command{
	Name:  "factory-reset",
	Usage: "erase all settings and the calibration history",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "do not ask for confirmation"},
	},
	Action: idleAction(func(ctx context.Context, c *cli.Context, sensor *co2.IdleSCD4x) error {
		ok, err := confirmed(c, "All settings and calibration history will be lost. Continue?")
		if err != nil {
			return err
		}
		if !ok {
			console.Warn("factory reset aborted")
			return nil
		}
		if err := sensor.PerformFactoryReset(ctx); err != nil {
			return console.Exit(1, "could not reset: %s", console.Red(err))
		}
		console.PInfof(console.PictoFinish, "factory reset done")
		return nil
	}),
}

var scd4xStopCmd = cli.Command{
	Name:  "stop",
	Usage: "stop a running periodic measurement",
	Action: func(c *cli.Context) error {
		cfg, err := busConfig(c, config.Default())
		if err != nil {
			return console.Exit(2, "%s", console.Red(err))
		}
		return withBus(c, cfg, func(ctx context.Context, bus airsense.I2CBus) error {
			if _, err := co2.NewMeasuring(bus, sensorOptions(cfg)...).StopPeriodicMeasurement(ctx); err != nil {
				return console.Exit(1, "could not stop measurement: %s", console.Red(err))
			}
			console.PInfof(console.PictoStop, "measurement stopped")
			return nil
		})
	},
}
