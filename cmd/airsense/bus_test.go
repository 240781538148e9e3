package main

import (
	"context"
	"flag"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/mklimuk/airsense/co2"
	"github.com/mklimuk/airsense/config"
	"github.com/mklimuk/airsense/snsctx"
)

func newFlagContext(t *testing.T, args ...string) *cli.Context {
	t.Helper()
	set := flag.NewFlagSet("scd4x", flag.ContinueOnError)
	for _, f := range busFlags {
		require.NoError(t, f.Apply(set))
	}
	require.NoError(t, set.Parse(args))
	return cli.NewContext(cli.NewApp(), set, nil)
}

func TestBusConfig(t *testing.T) {
	file := config.Default()
	file.Bus.Adapter = config.AdapterGobot
	file.Bus.Number = 2
	file.Sensor.Address = 0x63

	tests := []struct {
		name     string
		args     []string
		adapter  string
		device   string
		number   int
		address  byte
		rejected bool
	}{
		{name: "file values without flags", adapter: config.AdapterGobot, number: 2, address: 0x63},
		{name: "explicit flags win", args: []string{"--adapter", "emulator", "--address", "0x61"}, adapter: config.AdapterEmulator, number: 2, address: 0x61},
		{name: "device and bus number", args: []string{"--device", "/dev/i2c-3", "--bus", "0"}, adapter: config.AdapterGobot, device: "/dev/i2c-3", number: 0, address: 0x63},
		{name: "address wider than 7 bits", args: []string{"--address", "0x162"}, rejected: true},
		{name: "general call address", args: []string{"--address", "0"}, rejected: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := busConfig(newFlagContext(t, tt.args...), file)
			if tt.rejected {
				assert.ErrorIs(t, err, config.ErrInvalid)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.adapter, cfg.Bus.Adapter)
			assert.Equal(t, tt.device, cfg.Bus.Device)
			assert.Equal(t, tt.number, cfg.Bus.Number)
			assert.Equal(t, tt.address, cfg.Sensor.Address)
		})
	}
}

func TestOpenBus(t *testing.T) {
	cfg := config.Default()
	cfg.Bus.Adapter = config.AdapterEmulator
	cfg.Sensor.Address = 0x61

	bus, closeBus, err := openBus(context.Background(), cfg)
	require.NoError(t, err)
	serial, err := co2.New(bus, sensorOptions(cfg)...).GetSerialNumber(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(273325796834238), serial)
	_, err = co2.New(bus).GetSerialNumber(context.Background())
	assert.ErrorIs(t, err, co2.ErrNACK)
	assert.NoError(t, closeBus())

	cfg.Bus.Adapter = "spi"
	_, _, err = openBus(context.Background(), cfg)
	assert.ErrorContains(t, err, "unknown adapter")
}

func TestAdapterContext(t *testing.T) {
	cfg := config.Default()
	ctx := adapterContext(context.Background(), cfg, true)
	assert.True(t, snsctx.IsVerbose(ctx))
	assert.NotSame(t, slog.Default(), snsctx.Logger(ctx))
}
