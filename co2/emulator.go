package co2

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"sync"
)

// ErrNACK is returned by the emulator where a real SCD4x would not
// acknowledge the transfer.
var ErrNACK = errors.New("scd4x emulator: transfer not acknowledged")

const (
	regReinit               = 0x3646
	regGetSerialNumber      = 0x3682
	regReadMeasurement      = 0xec05
	regStartPeriodic        = 0x21b1
	regStopPeriodic         = 0x3f86
	regGetTemperatureOffset = 0x2318
	regSetTemperatureOffset = 0x241d
	regGetSensorAltitude    = 0x2322
	regSetSensorAltitude    = 0x2427
	regSetAmbientPressure   = 0xe000
	regStartLowPower        = 0x21ac
	regGetDataReadyStatus   = 0xe4b8
	regPerformSelfTest      = 0x3639
	regMeasureSingleShot    = 0x219d
	regMeasureRHTOnly       = 0x2196
	regPersistSettings      = 0x3615
	regForcedRecalibration  = 0x362f
	regGetASCEnabled        = 0x2313
	regSetASCEnabled        = 0x2416
	regFactoryReset         = 0x3632
)

// registers accepted while the sensor is measuring
var measuringRegisters = map[uint16]bool{
	regReadMeasurement:    true,
	regGetDataReadyStatus: true,
	regStopPeriodic:       true,
	regSetAmbientPressure: true,
}

// registers followed by a checksummed argument word
var argumentRegisters = map[uint16]bool{
	regSetTemperatureOffset: true,
	regSetSensorAltitude:    true,
	regSetAmbientPressure:   true,
	regForcedRecalibration:  true,
	regSetASCEnabled:        true,
}

type emulatorSettings struct {
	temperatureOffset uint16
	altitude          uint16
	asc               bool
}

// factory defaults: 4 °C offset, sea level, ASC enabled
var defaultEmulatorSettings = emulatorSettings{
	temperatureOffset: 0x05da,
	altitude:          0,
	asc:               true,
}

// Emulator is an in-memory SCD4x attached to an I2C bus. It decodes commands
// the way the sensor does, keeps its mode and settings, and answers reads with
// checksummed words. It is safe for concurrent use.
type Emulator struct {
	// SerialNumber is reported by the get serial number command.
	SerialNumber uint64
	// ReadyAfter is the number of data ready polls answered negatively
	// before a new periodic sample becomes available.
	ReadyAfter int
	// FailRecalibration makes forced recalibration report a failure.
	FailRecalibration bool
	// FailSelfTest makes the self test report a malfunction.
	FailSelfTest bool

	mx        sync.Mutex
	address   byte
	settings  emulatorSettings
	persisted emulatorSettings
	pressure  uint16
	sample    [3]uint16
	measuring bool
	rhtOnly   bool
	ready     bool
	polls     int
	pending   []byte
	corrupt   bool
}

// NewEmulator returns an idle sensor with factory settings listening on
// DefaultAddress.
func NewEmulator() *Emulator {
	return &Emulator{
		SerialNumber: 0xf8969f073bbe,
		address:      DefaultAddress,
		settings:     defaultEmulatorSettings,
		persisted:    defaultEmulatorSettings,
		pressure:     1013,
		sample:       [3]uint16{0x01f4, 0x6667, 0x5eb9},
	}
}

// SetAddress moves the emulated sensor to another bus address.
func (e *Emulator) SetAddress(address byte) {
	e.mx.Lock()
	defer e.mx.Unlock()
	e.address = address
}

// SetSample programs the values reported by the next measurements.
func (e *Emulator) SetSample(s Sample) {
	e.mx.Lock()
	defer e.mx.Unlock()
	e.sample = [3]uint16{
		clampWord(float64(s.CO2)),
		clampWord(math.Round((float64(s.Temperature) + 45) * 65536 / 175)),
		clampWord(math.Round(float64(s.Humidity) * 65536 / 100)),
	}
}

// CorruptNextRead damages the checksum of the first word of the next read.
func (e *Emulator) CorruptNextRead() {
	e.mx.Lock()
	defer e.mx.Unlock()
	e.corrupt = true
}

func (e *Emulator) Measuring() bool {
	e.mx.Lock()
	defer e.mx.Unlock()
	return e.measuring
}

func (e *Emulator) AmbientPressure() Hectopascal {
	e.mx.Lock()
	defer e.mx.Unlock()
	return Hectopascal(e.pressure)
}

func (e *Emulator) WriteToAddr(_ context.Context, address byte, buffer []byte) error {
	e.mx.Lock()
	defer e.mx.Unlock()
	if address != e.address {
		return ErrNACK
	}
	e.pending = nil
	if len(buffer) != 2 && len(buffer) != 5 {
		return ErrNACK
	}
	register := binary.BigEndian.Uint16(buffer)
	if argumentRegisters[register] != (len(buffer) == 5) {
		return ErrNACK
	}
	var arg uint16
	if len(buffer) == 5 {
		word, err := decodeWord(buffer[2:5])
		if err != nil {
			return ErrNACK
		}
		arg = word
	}
	if e.measuring && !measuringRegisters[register] {
		return ErrNACK
	}
	return e.handle(register, arg)
}

func (e *Emulator) handle(register, arg uint16) error {
	switch register {
	case regReinit:
		e.settings = e.persisted
	case regGetSerialNumber:
		e.respond(uint16(e.SerialNumber>>32), uint16(e.SerialNumber>>16), uint16(e.SerialNumber))
	case regReadMeasurement:
		co2 := e.sample[0]
		if e.rhtOnly {
			co2 = 0
		}
		e.respond(co2, e.sample[1], e.sample[2])
		e.ready = false
		e.polls = 0
	case regStartPeriodic, regStartLowPower:
		e.measuring = true
		e.rhtOnly = false
		e.ready = false
		e.polls = 0
	case regMeasureSingleShot, regMeasureRHTOnly:
		e.measuring = true
		e.rhtOnly = register == regMeasureRHTOnly
		e.ready = true
	case regStopPeriodic:
		e.measuring = false
		e.ready = false
	case regGetTemperatureOffset:
		e.respond(e.settings.temperatureOffset)
	case regSetTemperatureOffset:
		e.settings.temperatureOffset = arg
	case regGetSensorAltitude:
		e.respond(e.settings.altitude)
	case regSetSensorAltitude:
		e.settings.altitude = arg
	case regSetAmbientPressure:
		e.pressure = arg
	case regGetDataReadyStatus:
		if !e.ready {
			if e.polls >= e.ReadyAfter {
				e.ready = true
			} else {
				e.polls++
			}
		}
		if e.ready {
			e.respond(0x8006)
		} else {
			e.respond(0x8000)
		}
	case regPerformSelfTest:
		if e.FailSelfTest {
			e.respond(0x0001)
		} else {
			e.respond(0x0000)
		}
	case regPersistSettings:
		e.persisted = e.settings
	case regForcedRecalibration:
		if e.FailRecalibration || e.sample[0] == 0 {
			e.respond(recalibrationFailed)
		} else {
			e.respond(uint16(0x8000 + int(arg) - int(e.sample[0])))
		}
	case regGetASCEnabled:
		e.respond(enabledToWord(e.settings.asc))
	case regSetASCEnabled:
		e.settings.asc = wordToEnabled(arg)
	case regFactoryReset:
		e.settings = defaultEmulatorSettings
		e.persisted = defaultEmulatorSettings
	default:
		return ErrNACK
	}
	return nil
}

func (e *Emulator) respond(words ...uint16) {
	e.pending = make([]byte, 0, 3*len(words))
	for _, w := range words {
		group := encodeWord(w)
		e.pending = append(e.pending, group[:]...)
	}
}

func (e *Emulator) ReadFromAddr(_ context.Context, address byte, buffer []byte) error {
	e.mx.Lock()
	defer e.mx.Unlock()
	if address != e.address || e.pending == nil || len(buffer) > len(e.pending) {
		return ErrNACK
	}
	copy(buffer, e.pending)
	e.pending = nil
	if e.corrupt && len(buffer) >= 3 {
		buffer[2] ^= 0xFF
		e.corrupt = false
	}
	return nil
}

func (e *Emulator) Release(context.Context) error {
	return nil
}

func clampWord(v float64) uint16 {
	if v <= 0 {
		return 0
	}
	if v >= math.MaxUint16 {
		return math.MaxUint16
	}
	return uint16(v)
}
