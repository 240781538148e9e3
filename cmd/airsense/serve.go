package main

import (
	"context"
	"log/slog"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/airsense"
	"github.com/mklimuk/airsense/cmd/airsense/console"
	"github.com/mklimuk/airsense/co2"
	"github.com/mklimuk/airsense/config"
	"github.com/mklimuk/airsense/monitor"
)

var scd4xServeCmd = cli.Command{
	Name:  "serve",
	Usage: "measure continuously and expose samples as Prometheus metrics and a websocket stream",
	Flags: []cli.Flag{
		&cli.PathFlag{Name: "config", Aliases: []string{"c"}, Usage: "YAML configuration file"},
		&cli.StringFlag{Name: "listen", Usage: "HTTP listen address"},
	},
	Action: func(c *cli.Context) error {
		cfg := config.Default()
		if path := c.Path("config"); path != "" {
			var err error
			cfg, err = config.Load(path)
			if err != nil {
				return console.Exit(1, "%s", console.Red(err))
			}
		}
		cfg, err := busConfig(c, cfg)
		if err != nil {
			return console.Exit(2, "%s", console.Red(err))
		}
		if c.IsSet("listen") {
			cfg.HTTP.Listen = c.String("listen")
		}
		return withBus(c, cfg, func(ctx context.Context, bus airsense.I2CBus) error {
			return serve(ctx, cfg, bus)
		})
	},
}

func serve(ctx context.Context, cfg config.Config, bus airsense.I2CBus) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	metrics := monitor.NewMetrics()
	stream := monitor.NewStream(slog.Default())
	srv := monitor.NewServer(cfg.HTTP, metrics, stream)
	served := make(chan error, 1)
	go func() {
		served <- monitor.Serve(ctx, srv)
	}()

	sensor := co2.New(bus, sensorOptions(cfg)...)
	_, runErr := monitor.Run(ctx, sensor, cfg, metrics, stream, monitor.LogSink{Logger: slog.Default()})
	cancel()
	stream.Close()
	if err := <-served; err != nil {
		slog.Error("http server error", "error", err)
	}
	if runErr != nil {
		return console.Exit(1, "monitor failed: %s", console.Red(runErr))
	}
	return nil
}
