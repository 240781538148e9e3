package co2

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/airsense"
)

// MockI2CBus is a mock implementation of airsense.I2CBus using testify/mock
type MockI2CBus struct {
	mock.Mock
}

func (m *MockI2CBus) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	args := m.Called(ctx, address, buffer)
	return args.Error(0)
}

func (m *MockI2CBus) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	args := m.Called(ctx, address, buffer)
	if data, ok := args.Get(0).([]byte); ok && len(data) <= len(buffer) {
		copy(buffer, data)
	}
	return args.Error(1)
}

func (m *MockI2CBus) Release(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockI2CBus) expectWrite(data ...byte) {
	m.On("WriteToAddr", mock.Anything, byte(DefaultAddress), data).Return(nil).Once()
}

func (m *MockI2CBus) expectRead(data ...byte) {
	m.On("ReadFromAddr", mock.Anything, byte(DefaultAddress), mock.MatchedBy(func(buf []byte) bool {
		return len(buf) == len(data)
	})).Return(data, nil).Once()
}

// recordingDelayer returns immediately and remembers every requested wait.
type recordingDelayer struct {
	waits []time.Duration
}

func (d *recordingDelayer) Delay(_ context.Context, wait time.Duration) error {
	d.waits = append(d.waits, wait)
	return nil
}

func TestIdleCommands(t *testing.T) {
	tests := []struct {
		name  string
		write []byte
		read  []byte
		wait  time.Duration
		run   func(t *testing.T, s *IdleSCD4x)
	}{
		{
			name:  "serial number",
			write: []byte{0x36, 0x82},
			read:  []byte{0xf8, 0x96, 0x31, 0x9f, 0x07, 0xc2, 0x3b, 0xbe, 0x89},
			wait:  time.Millisecond,
			run: func(t *testing.T, s *IdleSCD4x) {
				serial, err := s.GetSerialNumber(context.Background())
				require.NoError(t, err)
				assert.Equal(t, uint64(273325796834238), serial)
			},
		},
		{
			name:  "reinit",
			write: []byte{0x36, 0x46},
			wait:  20 * time.Millisecond,
			run: func(t *testing.T, s *IdleSCD4x) {
				require.NoError(t, s.Reinit(context.Background()))
			},
		},
		{
			name:  "factory reset",
			write: []byte{0x36, 0x32},
			wait:  1200 * time.Millisecond,
			run: func(t *testing.T, s *IdleSCD4x) {
				require.NoError(t, s.PerformFactoryReset(context.Background()))
			},
		},
		{
			name:  "self test",
			write: []byte{0x36, 0x39},
			read:  []byte{0x00, 0x00, 0x81},
			wait:  10 * time.Second,
			run: func(t *testing.T, s *IdleSCD4x) {
				passed, err := s.PerformSelfTest(context.Background())
				require.NoError(t, err)
				assert.True(t, passed)
			},
		},
		{
			name:  "self test failure",
			write: []byte{0x36, 0x39},
			read:  []byte{0x00, 0x01, 0xb0},
			wait:  10 * time.Second,
			run: func(t *testing.T, s *IdleSCD4x) {
				passed, err := s.PerformSelfTest(context.Background())
				require.NoError(t, err)
				assert.False(t, passed)
			},
		},
		{
			name:  "persist settings",
			write: []byte{0x36, 0x15},
			wait:  800 * time.Millisecond,
			run: func(t *testing.T, s *IdleSCD4x) {
				require.NoError(t, s.PersistSettings(context.Background()))
			},
		},
		{
			name:  "get automatic self calibration",
			write: []byte{0x23, 0x13},
			read:  []byte{0x00, 0x00, 0x81},
			wait:  time.Millisecond,
			run: func(t *testing.T, s *IdleSCD4x) {
				enabled, err := s.GetAutomaticSelfCalibrationEnabled(context.Background())
				require.NoError(t, err)
				assert.False(t, enabled)
			},
		},
		{
			name:  "set automatic self calibration",
			write: []byte{0x24, 0x16, 0x00, 0x01, 0xb0},
			wait:  time.Millisecond,
			run: func(t *testing.T, s *IdleSCD4x) {
				require.NoError(t, s.SetAutomaticSelfCalibrationEnabled(context.Background(), true))
			},
		},
		{
			name:  "forced recalibration",
			write: []byte{0x36, 0x2f, 0x01, 0xe0, 0xb4},
			read:  []byte{0x7f, 0xce, 0x7b},
			wait:  400 * time.Millisecond,
			run: func(t *testing.T, s *IdleSCD4x) {
				correction, ok, err := s.PerformForcedRecalibration(context.Background(), 480)
				require.NoError(t, err)
				assert.True(t, ok)
				assert.Equal(t, PPM(-50), correction)
			},
		},
		{
			name:  "failed forced recalibration",
			write: []byte{0x36, 0x2f, 0x01, 0xe0, 0xb4},
			read:  []byte{0xff, 0xff, 0xac},
			wait:  400 * time.Millisecond,
			run: func(t *testing.T, s *IdleSCD4x) {
				_, ok, err := s.PerformForcedRecalibration(context.Background(), 480)
				require.NoError(t, err)
				assert.False(t, ok)
			},
		},
		{
			name:  "set ambient pressure",
			write: []byte{0xe0, 0x00, 0x03, 0xdb, 0x42},
			wait:  time.Millisecond,
			run: func(t *testing.T, s *IdleSCD4x) {
				require.NoError(t, s.SetAmbientPressure(context.Background(), 987))
			},
		},
		{
			name:  "get sensor altitude",
			write: []byte{0x23, 0x22},
			read:  []byte{0x04, 0x4c, 0x42},
			wait:  time.Millisecond,
			run: func(t *testing.T, s *IdleSCD4x) {
				altitude, err := s.GetSensorAltitude(context.Background())
				require.NoError(t, err)
				assert.Equal(t, Meter(1100), altitude)
			},
		},
		{
			name:  "set sensor altitude",
			write: []byte{0x24, 0x27, 0x07, 0x9e, 0x09},
			wait:  time.Millisecond,
			run: func(t *testing.T, s *IdleSCD4x) {
				require.NoError(t, s.SetSensorAltitude(context.Background(), 1950))
			},
		},
		{
			name:  "get temperature offset",
			write: []byte{0x23, 0x18},
			read:  []byte{0x09, 0x12, 0x63},
			wait:  time.Millisecond,
			run: func(t *testing.T, s *IdleSCD4x) {
				offset, err := s.GetTemperatureOffset(context.Background())
				require.NoError(t, err)
				assert.Equal(t, Celsius(6.200409), offset)
			},
		},
		{
			name:  "set temperature offset",
			write: []byte{0x24, 0x1d, 0x07, 0xe6, 0x48},
			wait:  time.Millisecond,
			run: func(t *testing.T, s *IdleSCD4x) {
				require.NoError(t, s.SetTemperatureOffset(context.Background(), 5.4))
			},
		},
		{
			name:  "stop periodic measurement in idle mode",
			write: []byte{0x3f, 0x86},
			wait:  500 * time.Millisecond,
			run: func(t *testing.T, s *IdleSCD4x) {
				idle, err := s.StopPeriodicMeasurement(context.Background())
				require.NoError(t, err)
				require.NotNil(t, idle)
				assert.NotSame(t, s, idle)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus := &MockI2CBus{}
			bus.expectWrite(tt.write...)
			if tt.read != nil {
				bus.expectRead(tt.read...)
			}
			delayer := &recordingDelayer{}
			tt.run(t, New(bus, WithDelayer(delayer)))
			bus.AssertExpectations(t)
			assert.Equal(t, []time.Duration{tt.wait}, delayer.waits)
		})
	}
}

func TestMeasuringCommands(t *testing.T) {
	tests := []struct {
		name  string
		write []byte
		read  []byte
		wait  time.Duration
		run   func(t *testing.T, s *MeasuringSCD4x)
	}{
		{
			name:  "read measurement",
			write: []byte{0xec, 0x05},
			read:  []byte{0x01, 0xf4, 0x33, 0x66, 0x67, 0xa2, 0x5e, 0xb9, 0x3c},
			wait:  time.Millisecond,
			run: func(t *testing.T, s *MeasuringSCD4x) {
				sample, err := s.ReadMeasurement(context.Background())
				require.NoError(t, err)
				assert.Equal(t, Sample{CO2: 500, Temperature: 25.001602, Humidity: 37.001038}, sample)
			},
		},
		{
			name:  "data not ready",
			write: []byte{0xe4, 0xb8},
			read:  []byte{0x80, 0x00, 0xa2},
			wait:  time.Millisecond,
			run: func(t *testing.T, s *MeasuringSCD4x) {
				ready, err := s.GetDataReadyStatus(context.Background())
				require.NoError(t, err)
				assert.False(t, ready)
			},
		},
		{
			name:  "data ready",
			write: []byte{0xe4, 0xb8},
			read:  []byte{0x80, 0x06, 0x04},
			wait:  time.Millisecond,
			run: func(t *testing.T, s *MeasuringSCD4x) {
				ready, err := s.GetDataReadyStatus(context.Background())
				require.NoError(t, err)
				assert.True(t, ready)
			},
		},
		{
			name:  "set ambient pressure",
			write: []byte{0xe0, 0x00, 0x03, 0xdb, 0x42},
			wait:  time.Millisecond,
			run: func(t *testing.T, s *MeasuringSCD4x) {
				require.NoError(t, s.SetAmbientPressure(context.Background(), 987))
			},
		},
		{
			name:  "stop periodic measurement",
			write: []byte{0x3f, 0x86},
			wait:  500 * time.Millisecond,
			run: func(t *testing.T, s *MeasuringSCD4x) {
				idle, err := s.StopPeriodicMeasurement(context.Background())
				require.NoError(t, err)
				require.NotNil(t, idle)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus := &MockI2CBus{}
			bus.expectWrite(tt.write...)
			if tt.read != nil {
				bus.expectRead(tt.read...)
			}
			delayer := &recordingDelayer{}
			tt.run(t, NewMeasuring(bus, WithDelayer(delayer)))
			bus.AssertExpectations(t)
			assert.Equal(t, []time.Duration{tt.wait}, delayer.waits)
		})
	}
}

func TestStartMeasuring(t *testing.T) {
	tests := []struct {
		name  string
		write []byte
		wait  time.Duration
		start func(*IdleSCD4x, context.Context) (*MeasuringSCD4x, error)
	}{
		{"periodic", []byte{0x21, 0xb1}, 0, (*IdleSCD4x).StartPeriodicMeasurement},
		{"low power", []byte{0x21, 0xac}, 0, (*IdleSCD4x).StartLowPowerPeriodicMeasurement},
		{"single shot", []byte{0x21, 0x9d}, 5 * time.Second, (*IdleSCD4x).MeasureSingleShot},
		{"single shot rht only", []byte{0x21, 0x96}, 50 * time.Millisecond, (*IdleSCD4x).MeasureSingleShotRHTOnly},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus := &MockI2CBus{}
			bus.expectWrite(tt.write...)
			delayer := &recordingDelayer{}
			idle := New(bus, WithDelayer(delayer))

			measuring, err := tt.start(idle, context.Background())
			require.NoError(t, err)
			require.NotNil(t, measuring)
			// zero waits still go through the delayer
			assert.Equal(t, []time.Duration{tt.wait}, delayer.waits)

			_, err = idle.GetSerialNumber(context.Background())
			assert.ErrorIs(t, err, ErrDetached)
			_, err = tt.start(idle, context.Background())
			assert.ErrorIs(t, err, ErrDetached)
			bus.AssertExpectations(t)
		})
	}
}

func TestCustomAddress(t *testing.T) {
	bus := &MockI2CBus{}
	bus.On("WriteToAddr", mock.Anything, byte(0x63), []byte{0x36, 0x46}).Return(nil).Once()
	sensor := New(bus, WithAddress(0x63), WithDelayer(&recordingDelayer{}))
	require.NoError(t, sensor.Reinit(context.Background()))
	bus.AssertExpectations(t)
}

func TestChecksumMismatchAbortsRead(t *testing.T) {
	bus := &MockI2CBus{}
	bus.expectWrite(0xec, 0x05)
	// the last group is damaged, no partial sample is returned
	bus.expectRead(0x01, 0xf4, 0x33, 0x66, 0x67, 0xa2, 0x5e, 0xb9, 0x3d)
	sensor := NewMeasuring(bus, WithDelayer(&recordingDelayer{}))

	sample, err := sensor.ReadMeasurement(context.Background())
	var mismatch *ChecksumMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, byte(0x3c), mismatch.Actual)
	assert.Equal(t, byte(0x3d), mismatch.Expected)
	assert.Equal(t, Sample{}, sample)
	bus.AssertExpectations(t)
}

func TestTransportErrors(t *testing.T) {
	t.Run("write", func(t *testing.T) {
		bus := &MockI2CBus{}
		bus.On("WriteToAddr", mock.Anything, byte(DefaultAddress), []byte{0x36, 0x82}).Return(airsense.ErrBusBusy).Once()
		delayer := &recordingDelayer{}
		sensor := New(bus, WithDelayer(delayer))

		_, err := sensor.GetSerialNumber(context.Background())
		require.ErrorIs(t, err, airsense.ErrBusBusy)
		var transport *TransportError
		require.ErrorAs(t, err, &transport)
		assert.Equal(t, "write", transport.Op)
		assert.Equal(t, byte(DefaultAddress), transport.Address)
		assert.Empty(t, delayer.waits)
		bus.AssertExpectations(t)
	})
	t.Run("read", func(t *testing.T) {
		bus := &MockI2CBus{}
		bus.expectWrite(0x36, 0x82)
		bus.On("ReadFromAddr", mock.Anything, byte(DefaultAddress), mock.Anything).Return(nil, errors.New("nack")).Once()
		sensor := New(bus, WithDelayer(&recordingDelayer{}))

		_, err := sensor.GetSerialNumber(context.Background())
		var transport *TransportError
		require.ErrorAs(t, err, &transport)
		assert.Equal(t, "read", transport.Op)
		assert.EqualError(t, err, "scd4x: get serial number: bus read at 0x62 failed: nack")
		bus.AssertExpectations(t)
	})
}

func TestFailedTransitionKeepsHandle(t *testing.T) {
	bus := &MockI2CBus{}
	bus.On("WriteToAddr", mock.Anything, byte(DefaultAddress), []byte{0x21, 0xb1}).Return(airsense.ErrBusBusy).Once()
	bus.expectWrite(0x21, 0xb1)
	idle := New(bus, WithDelayer(&recordingDelayer{}))

	measuring, err := idle.StartPeriodicMeasurement(context.Background())
	require.Error(t, err)
	assert.Nil(t, measuring)

	measuring, err = idle.StartPeriodicMeasurement(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, measuring)
	bus.AssertExpectations(t)
}

func TestCancelledWait(t *testing.T) {
	bus := &MockI2CBus{}
	bus.expectWrite(0x36, 0x39)
	sensor := New(bus, WithDelayer(airsense.TimerDelay))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := sensor.PerformSelfTest(ctx)
	require.ErrorIs(t, err, context.Canceled)
	// the response is never fetched
	bus.AssertNotCalled(t, "ReadFromAddr", mock.Anything, mock.Anything, mock.Anything)
	bus.AssertExpectations(t)
}

func TestRelease(t *testing.T) {
	bus := &MockI2CBus{}
	idle := New(bus)
	released, err := idle.Release()
	require.NoError(t, err)
	assert.Same(t, bus, released)

	_, err = idle.Release()
	assert.ErrorIs(t, err, ErrDetached)
	assert.ErrorIs(t, idle.PersistSettings(context.Background()), ErrDetached)

	measuring := NewMeasuring(bus)
	released, err = measuring.Release()
	require.NoError(t, err)
	assert.Same(t, bus, released)
	_, err = measuring.ReadMeasurement(context.Background())
	assert.ErrorIs(t, err, ErrDetached)
	bus.AssertExpectations(t)
}

func TestAwaitSample(t *testing.T) {
	emulator := NewEmulator()
	emulator.ReadyAfter = 2
	delayer := &recordingDelayer{}
	idle := New(emulator, WithDelayer(delayer))

	measuring, err := idle.StartLowPowerPeriodicMeasurement(context.Background())
	require.NoError(t, err)
	delayer.waits = nil

	sample, err := measuring.AwaitSample(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, Sample{CO2: 500, Temperature: 25.001602, Humidity: 37.001038}, sample)
	// three data ready polls, two poll waits, one read
	assert.Equal(t, []time.Duration{
		time.Millisecond, time.Second,
		time.Millisecond, time.Second,
		time.Millisecond,
		time.Millisecond,
	}, delayer.waits)
}

func TestAwaitSampleCancelled(t *testing.T) {
	emulator := NewEmulator()
	emulator.ReadyAfter = 1000
	measuring := NewMeasuring(emulator, WithDelayer(airsense.TimerDelay))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := measuring.AwaitSample(ctx, 5*time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
