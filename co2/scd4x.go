package co2

import (
	"context"
	"log/slog"
	"time"

	"github.com/mklimuk/airsense"
)

// DefaultAddress is the fixed 7-bit I2C address of SCD40 and SCD41 sensors.
const DefaultAddress = 0x62

type Config struct {
	Address byte
	Delayer airsense.Delayer
	Logger  *slog.Logger
}

type Option func(*Config)

func WithAddress(address byte) Option {
	return func(c *Config) {
		c.Address = address
	}
}

// WithDelayer replaces the default TimerDelay, e.g. with airsense.SleepDelay
// or a fake clock in tests.
func WithDelayer(delayer airsense.Delayer) Option {
	return func(c *Config) {
		c.Delayer = delayer
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

func newTransaction(bus airsense.I2CBus, opts []Option) *transaction {
	config := &Config{
		Address: DefaultAddress,
		Delayer: airsense.TimerDelay,
		Logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(config)
	}
	return &transaction{
		bus:     bus,
		delayer: config.Delayer,
		address: config.Address,
		logger:  config.Logger.With("sensor", "scd4x"),
	}
}

// IdleSCD4x is a sensor that is not measuring. It accepts configuration,
// calibration and diagnostic commands.
//
// Mode transitions hand the device over to the returned handle; the receiver
// is detached afterwards and answers every call with ErrDetached. A failed
// transition keeps the receiver attached. If ctx is cancelled while a command
// waits for the device, the command is left half-done and the sensor state is
// unknown.
//
// Handles are not safe for concurrent use.
type IdleSCD4x struct {
	tx *transaction
}

// New returns a handle for a sensor that has just been powered up.
func New(bus airsense.I2CBus, opts ...Option) *IdleSCD4x {
	return &IdleSCD4x{tx: newTransaction(bus, opts)}
}

func (s *IdleSCD4x) detach() *transaction {
	tx := s.tx
	s.tx = nil
	return tx
}

// Release detaches the handle and gives the bus back to the caller.
func (s *IdleSCD4x) Release() (airsense.I2CBus, error) {
	if s.tx == nil {
		return nil, ErrDetached
	}
	return s.detach().bus, nil
}

// Reinit reloads the user settings from EEPROM.
func (s *IdleSCD4x) Reinit(ctx context.Context) error {
	if s.tx == nil {
		return ErrDetached
	}
	_, err := cmdReinit.execute(ctx, s.tx, none{})
	return err
}

func (s *IdleSCD4x) GetSerialNumber(ctx context.Context) (uint64, error) {
	if s.tx == nil {
		return 0, ErrDetached
	}
	return cmdGetSerialNumber.execute(ctx, s.tx, none{})
}

func (s *IdleSCD4x) GetTemperatureOffset(ctx context.Context) (Celsius, error) {
	if s.tx == nil {
		return 0, ErrDetached
	}
	return cmdGetTemperatureOffset.execute(ctx, s.tx, none{})
}

// SetTemperatureOffset changes the offset subtracted from the measured
// temperature. It only affects the RAM copy; use PersistSettings to keep it.
func (s *IdleSCD4x) SetTemperatureOffset(ctx context.Context, offset Celsius) error {
	if s.tx == nil {
		return ErrDetached
	}
	_, err := cmdSetTemperatureOffset.execute(ctx, s.tx, offset)
	return err
}

func (s *IdleSCD4x) GetSensorAltitude(ctx context.Context) (Meter, error) {
	if s.tx == nil {
		return 0, ErrDetached
	}
	return cmdGetSensorAltitude.execute(ctx, s.tx, none{})
}

func (s *IdleSCD4x) SetSensorAltitude(ctx context.Context, altitude Meter) error {
	if s.tx == nil {
		return ErrDetached
	}
	_, err := cmdSetSensorAltitude.execute(ctx, s.tx, altitude)
	return err
}

// SetAmbientPressure overrides the altitude compensation with a pressure
// reading.
func (s *IdleSCD4x) SetAmbientPressure(ctx context.Context, pressure Hectopascal) error {
	if s.tx == nil {
		return ErrDetached
	}
	_, err := cmdSetAmbientPressure.execute(ctx, s.tx, pressure)
	return err
}

func (s *IdleSCD4x) GetAutomaticSelfCalibrationEnabled(ctx context.Context) (bool, error) {
	if s.tx == nil {
		return false, ErrDetached
	}
	return cmdGetAutomaticSelfCalibrationEnabled.execute(ctx, s.tx, none{})
}

func (s *IdleSCD4x) SetAutomaticSelfCalibrationEnabled(ctx context.Context, enabled bool) error {
	if s.tx == nil {
		return ErrDetached
	}
	_, err := cmdSetAutomaticSelfCalibrationEnabled.execute(ctx, s.tx, enabled)
	return err
}

// PerformForcedRecalibration tells the sensor that the current CO₂
// concentration is target and returns the correction it applied. ok is false
// when the device reports a failed recalibration, which happens when it was
// not measuring for at least 3 minutes before being stopped.
func (s *IdleSCD4x) PerformForcedRecalibration(ctx context.Context, target PPM) (correction PPM, ok bool, err error) {
	if s.tx == nil {
		return 0, false, ErrDetached
	}
	res, err := cmdPerformForcedRecalibration.execute(ctx, s.tx, target)
	if err != nil {
		return 0, false, err
	}
	return res.correction, res.ok, nil
}

// PerformSelfTest takes about 10 seconds and reports whether the sensor found
// no malfunction.
func (s *IdleSCD4x) PerformSelfTest(ctx context.Context) (bool, error) {
	if s.tx == nil {
		return false, ErrDetached
	}
	return cmdPerformSelfTest.execute(ctx, s.tx, none{})
}

// PerformFactoryReset wipes all settings stored in EEPROM and the calibration
// history.
func (s *IdleSCD4x) PerformFactoryReset(ctx context.Context) error {
	if s.tx == nil {
		return ErrDetached
	}
	_, err := cmdPerformFactoryReset.execute(ctx, s.tx, none{})
	return err
}

func (s *IdleSCD4x) PersistSettings(ctx context.Context) error {
	if s.tx == nil {
		return ErrDetached
	}
	_, err := cmdPersistSettings.execute(ctx, s.tx, none{})
	return err
}

// StopPeriodicMeasurement is accepted in idle mode too. The receiver is
// detached and replaced by the returned handle.
func (s *IdleSCD4x) StopPeriodicMeasurement(ctx context.Context) (*IdleSCD4x, error) {
	if s.tx == nil {
		return nil, ErrDetached
	}
	if _, err := cmdStopPeriodicMeasurement.execute(ctx, s.tx, none{}); err != nil {
		return nil, err
	}
	return &IdleSCD4x{tx: s.detach()}, nil
}

// StartPeriodicMeasurement starts measuring with a 5 second signal update
// interval.
func (s *IdleSCD4x) StartPeriodicMeasurement(ctx context.Context) (*MeasuringSCD4x, error) {
	return s.startMeasuring(ctx, cmdStartPeriodicMeasurement)
}

// StartLowPowerPeriodicMeasurement starts measuring with a 30 second signal
// update interval.
func (s *IdleSCD4x) StartLowPowerPeriodicMeasurement(ctx context.Context) (*MeasuringSCD4x, error) {
	return s.startMeasuring(ctx, cmdStartLowPowerPeriodicMeasurement)
}

// MeasureSingleShot triggers one measurement (SCD41 only) and returns once it
// is complete.
func (s *IdleSCD4x) MeasureSingleShot(ctx context.Context) (*MeasuringSCD4x, error) {
	return s.startMeasuring(ctx, cmdMeasureSingleShot)
}

// MeasureSingleShotRHTOnly triggers a temperature and humidity measurement.
// The CO₂ value of the resulting sample is 0.
func (s *IdleSCD4x) MeasureSingleShotRHTOnly(ctx context.Context) (*MeasuringSCD4x, error) {
	return s.startMeasuring(ctx, cmdMeasureSingleShotRHTOnly)
}

func (s *IdleSCD4x) startMeasuring(ctx context.Context, cmd command[none, none]) (*MeasuringSCD4x, error) {
	if s.tx == nil {
		return nil, ErrDetached
	}
	if _, err := cmd.execute(ctx, s.tx, none{}); err != nil {
		return nil, err
	}
	s.tx.logger.Debug("scd4x mode change", "mode", "measuring", "trigger", cmd.name)
	return &MeasuringSCD4x{tx: s.detach()}, nil
}

// MeasuringSCD4x is a sensor in periodic or single shot measurement mode.
// It only accepts the commands the device processes while measuring.
type MeasuringSCD4x struct {
	tx *transaction
}

// NewMeasuring returns a handle for a sensor that is known to be measuring
// already, e.g. after the host restarted without stopping it.
func NewMeasuring(bus airsense.I2CBus, opts ...Option) *MeasuringSCD4x {
	return &MeasuringSCD4x{tx: newTransaction(bus, opts)}
}

func (s *MeasuringSCD4x) Release() (airsense.I2CBus, error) {
	if s.tx == nil {
		return nil, ErrDetached
	}
	tx := s.tx
	s.tx = nil
	return tx.bus, nil
}

// ReadMeasurement reads the last sample. The device drops the sample once it
// has been read, so call GetDataReadyStatus first.
func (s *MeasuringSCD4x) ReadMeasurement(ctx context.Context) (Sample, error) {
	if s.tx == nil {
		return Sample{}, ErrDetached
	}
	return cmdReadMeasurement.execute(ctx, s.tx, none{})
}

func (s *MeasuringSCD4x) GetDataReadyStatus(ctx context.Context) (bool, error) {
	if s.tx == nil {
		return false, ErrDetached
	}
	return cmdGetDataReadyStatus.execute(ctx, s.tx, none{})
}

func (s *MeasuringSCD4x) SetAmbientPressure(ctx context.Context, pressure Hectopascal) error {
	if s.tx == nil {
		return ErrDetached
	}
	_, err := cmdSetAmbientPressure.execute(ctx, s.tx, pressure)
	return err
}

// StopPeriodicMeasurement returns the sensor to idle mode. The device accepts
// other commands only after the 500 ms the command takes to complete, which
// the returned handle already waited out.
func (s *MeasuringSCD4x) StopPeriodicMeasurement(ctx context.Context) (*IdleSCD4x, error) {
	if s.tx == nil {
		return nil, ErrDetached
	}
	if _, err := cmdStopPeriodicMeasurement.execute(ctx, s.tx, none{}); err != nil {
		return nil, err
	}
	tx := s.tx
	s.tx = nil
	tx.logger.Debug("scd4x mode change", "mode", "idle")
	return &IdleSCD4x{tx: tx}, nil
}

// AwaitSample polls the data ready status every poll interval and reads the
// sample as soon as one is available.
func (s *MeasuringSCD4x) AwaitSample(ctx context.Context, poll time.Duration) (Sample, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Sample{}, err
		}
		ready, err := s.GetDataReadyStatus(ctx)
		if err != nil {
			return Sample{}, err
		}
		if ready {
			return s.ReadMeasurement(ctx)
		}
		if err := s.tx.delayer.Delay(ctx, poll); err != nil {
			return Sample{}, err
		}
	}
}
