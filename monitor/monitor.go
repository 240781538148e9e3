package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/mklimuk/airsense/co2"
	"github.com/mklimuk/airsense/config"
)

// stopTimeout bounds the stop command sent after the monitor was cancelled.
const stopTimeout = 2 * time.Second

// Sink receives every sample read by the monitor.
type Sink interface {
	Publish(serial string, sample co2.Sample)
}

// ErrorSink is implemented by sinks that want to know about failed reads.
type ErrorSink interface {
	ReadFailed(serial string, err error)
}

// LogSink writes samples to a structured logger.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Publish(serial string, sample co2.Sample) {
	s.Logger.Info("sample", "serial_number", serial, "co2", sample.CO2, "temperature", sample.Temperature, "humidity", sample.Humidity)
}

func (s LogSink) ReadFailed(serial string, err error) {
	s.Logger.Warn("sample read failed", "serial_number", serial, "error", err)
}

// Run configures the sensor, starts measuring and publishes samples until ctx
// is cancelled. The sensor is then stopped and handed back in idle mode.
//
// A sensor left measuring by a previous process rejects idle commands, so Run
// always stops and reinitializes it first.
func Run(ctx context.Context, sensor *co2.IdleSCD4x, cfg config.Config, sinks ...Sink) (*co2.IdleSCD4x, error) {
	sensor, err := sensor.StopPeriodicMeasurement(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not stop measurement: %w", err)
	}
	if err := sensor.Reinit(ctx); err != nil {
		return nil, fmt.Errorf("could not reinitialize sensor: %w", err)
	}

	number, err := sensor.GetSerialNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not read serial number: %w", err)
	}
	serial := strconv.FormatUint(number, 10)
	logger := slog.With("serial_number", serial)

	if alt := cfg.Sensor.Altitude; alt != nil {
		if err := sensor.SetSensorAltitude(ctx, co2.Meter(*alt)); err != nil {
			return nil, err
		}
	}
	if offset := cfg.Sensor.TemperatureOffset; offset != nil {
		if err := sensor.SetTemperatureOffset(ctx, co2.Celsius(*offset)); err != nil {
			return nil, err
		}
	}

	var measuring *co2.MeasuringSCD4x
	switch cfg.Sensor.Mode {
	case config.ModeLowPower:
		measuring, err = sensor.StartLowPowerPeriodicMeasurement(ctx)
	default:
		measuring, err = sensor.StartPeriodicMeasurement(ctx)
	}
	if err != nil {
		return nil, err
	}
	logger.Info("measurement started", "mode", cfg.Sensor.Mode)

	if pressure := cfg.Sensor.AmbientPressure; pressure != nil {
		if err := measuring.SetAmbientPressure(ctx, co2.Hectopascal(*pressure)); err != nil {
			logger.Warn("could not set ambient pressure", "error", err)
		}
	}

	for ctx.Err() == nil {
		sample, err := measuring.AwaitSample(ctx, cfg.Monitor.PollInterval)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			logger.Warn("could not read sample", "error", err)
			for _, sink := range sinks {
				if es, ok := sink.(ErrorSink); ok {
					es.ReadFailed(serial, err)
				}
			}
			select {
			case <-ctx.Done():
			case <-time.After(cfg.Monitor.PollInterval):
			}
			continue
		}
		logger.Debug("sample read", "sample", sample.String())
		for _, sink := range sinks {
			sink.Publish(serial, sample)
		}
	}

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stopTimeout)
	defer cancel()
	idle, err := measuring.StopPeriodicMeasurement(stopCtx)
	if err != nil {
		return nil, fmt.Errorf("could not stop measurement: %w", err)
	}
	logger.Info("measurement stopped")
	return idle, nil
}
