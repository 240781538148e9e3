package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"
	"gobot.io/x/gobot/v2/platforms/friendlyelec/nanopi"

	"github.com/mklimuk/airsense"
	"github.com/mklimuk/airsense/adapter"
	"github.com/mklimuk/airsense/co2"
	"github.com/mklimuk/airsense/config"
	"github.com/mklimuk/airsense/i2c"
)

var busFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "adapter",
		Aliases: []string{"a"},
		Value:   config.AdapterPeriph,
		Usage:   "bus adapter: periph, gobot, mcp2221 or emulator",
	},
	&cli.StringFlag{
		Name:    "device",
		Aliases: []string{"d"},
		Usage:   "periph bus name, e.g. /dev/i2c-1 (first available bus when empty)",
	},
	&cli.IntFlag{
		Name:  "bus",
		Value: -1,
		Usage: "gobot bus number (board default when negative)",
	},
	&cli.UintFlag{
		Name:  "address",
		Value: co2.DefaultAddress,
		Usage: "sensor I2C address",
	},
}

// busConfig merges the bus flags into cfg. Flags win over the file only when
// set explicitly.
func busConfig(c *cli.Context, cfg config.Config) (config.Config, error) {
	if c.IsSet("adapter") {
		cfg.Bus.Adapter = c.String("adapter")
	}
	if c.IsSet("device") {
		cfg.Bus.Device = c.String("device")
	}
	if c.IsSet("bus") {
		cfg.Bus.Number = c.Int("bus")
	}
	if c.IsSet("address") {
		address := c.Uint("address")
		if address == 0 || address > 0x7f {
			return cfg, fmt.Errorf("%w: sensor address %#x is not a 7-bit address", config.ErrInvalid, address)
		}
		cfg.Sensor.Address = byte(address)
	}
	return cfg, nil
}

// openBus returns the transport selected in cfg and a function closing it.
func openBus(ctx context.Context, cfg config.Config) (airsense.I2CBus, func() error, error) {
	switch cfg.Bus.Adapter {
	case config.AdapterPeriph:
		bus, err := i2c.NewGenericBus(cfg.Bus.Device)
		if err != nil {
			return nil, nil, err
		}
		return bus, bus.Close, nil
	case config.AdapterGobot:
		npi := nanopi.NewNeoAdaptor()
		err := npi.I2cBusAdaptor.Connect()
		if err != nil {
			return nil, nil, fmt.Errorf("adaptor connect error: %w", err)
		}
		bus := i2c.NewGobotBus(npi, cfg.Bus.Number)
		return bus, func() error {
			if err := bus.Release(ctx); err != nil {
				return err
			}
			return npi.I2cBusAdaptor.Finalize()
		}, nil
	case config.AdapterMCP2221:
		mcp2221 := adapter.NewMCP2221()
		err := mcp2221.Init(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("adapter initialization error: %w", err)
		}
		return mcp2221, func() error { return nil }, nil
	case config.AdapterEmulator:
		emulator := co2.NewEmulator()
		emulator.SetAddress(cfg.Sensor.Address)
		return emulator, func() error { return nil }, nil
	}
	return nil, nil, fmt.Errorf("unknown adapter %q", cfg.Bus.Adapter)
}
