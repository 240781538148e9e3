package co2

import (
	"context"
	"fmt"
	"time"
)

// none stands for the missing input or output of a command.
type none = struct{}

// command describes one SCD4x operation: where it lives, how long the device
// needs to process it and how its words map to typed values.
type command[In, Out any] struct {
	name     string
	register uint16
	wait     time.Duration
	seq      sequence
	encode   func(In) uint16
	decode   func([]uint16) Out
}

func (c command[In, Out]) execute(ctx context.Context, t *transaction, in In) (Out, error) {
	var out Out
	var payload uint16
	if c.encode != nil {
		payload = c.encode(in)
	}
	words, err := t.run(ctx, c.register, c.wait, c.seq, payload)
	if err != nil {
		return out, fmt.Errorf("scd4x: %s: %w", c.name, err)
	}
	if c.decode != nil {
		out = c.decode(words)
	}
	return out, nil
}

type recalibration struct {
	correction PPM
	ok         bool
}

func oneWord[T any](convert func(uint16) T) func([]uint16) T {
	return func(words []uint16) T {
		return convert(words[0])
	}
}

var (
	cmdReinit = command[none, none]{
		name:     "reinit",
		register: 0x3646,
		wait:     20 * time.Millisecond,
		seq:      sendCommand,
	}
	cmdGetSerialNumber = command[none, uint64]{
		name:     "get serial number",
		register: 0x3682,
		wait:     time.Millisecond,
		seq:      readThreeWords,
		decode: func(words []uint16) uint64 {
			return wordsToSerialNumber(words[0], words[1], words[2])
		},
	}
	cmdReadMeasurement = command[none, Sample]{
		name:     "read measurement",
		register: 0xec05,
		wait:     time.Millisecond,
		seq:      readThreeWords,
		decode: func(words []uint16) Sample {
			return wordsToSample(words[0], words[1], words[2])
		},
	}
	cmdStartPeriodicMeasurement = command[none, none]{
		name:     "start periodic measurement",
		register: 0x21b1,
		seq:      sendCommand,
	}
	cmdStopPeriodicMeasurement = command[none, none]{
		name:     "stop periodic measurement",
		register: 0x3f86,
		wait:     500 * time.Millisecond,
		seq:      sendCommand,
	}
	cmdGetTemperatureOffset = command[none, Celsius]{
		name:     "get temperature offset",
		register: 0x2318,
		wait:     time.Millisecond,
		seq:      readWord,
		decode:   oneWord(wordToTemperatureOffset),
	}
	cmdSetTemperatureOffset = command[Celsius, none]{
		name:     "set temperature offset",
		register: 0x241d,
		wait:     time.Millisecond,
		seq:      writeWord,
		encode:   temperatureOffsetToWord,
	}
	cmdGetSensorAltitude = command[none, Meter]{
		name:     "get sensor altitude",
		register: 0x2322,
		wait:     time.Millisecond,
		seq:      readWord,
		decode:   oneWord(wordToAltitude),
	}
	cmdSetSensorAltitude = command[Meter, none]{
		name:     "set sensor altitude",
		register: 0x2427,
		wait:     time.Millisecond,
		seq:      writeWord,
		encode:   altitudeToWord,
	}
	cmdSetAmbientPressure = command[Hectopascal, none]{
		name:     "set ambient pressure",
		register: 0xe000,
		wait:     time.Millisecond,
		seq:      writeWord,
		encode:   ambientPressureToWord,
	}
	cmdStartLowPowerPeriodicMeasurement = command[none, none]{
		name:     "start low power periodic measurement",
		register: 0x21ac,
		seq:      sendCommand,
	}
	cmdGetDataReadyStatus = command[none, bool]{
		name:     "get data ready status",
		register: 0xe4b8,
		wait:     time.Millisecond,
		seq:      readWord,
		decode:   oneWord(wordToDataReady),
	}
	cmdPerformSelfTest = command[none, bool]{
		name:     "perform self test",
		register: 0x3639,
		wait:     10 * time.Second,
		seq:      readWord,
		decode:   oneWord(wordToSelfTestPassed),
	}
	cmdMeasureSingleShot = command[none, none]{
		name:     "measure single shot",
		register: 0x219d,
		wait:     5 * time.Second,
		seq:      sendCommand,
	}
	cmdMeasureSingleShotRHTOnly = command[none, none]{
		name:     "measure single shot rht only",
		register: 0x2196,
		wait:     50 * time.Millisecond,
		seq:      sendCommand,
	}
	cmdPersistSettings = command[none, none]{
		name:     "persist settings",
		register: 0x3615,
		wait:     800 * time.Millisecond,
		seq:      sendCommand,
	}
	cmdPerformForcedRecalibration = command[PPM, recalibration]{
		name:     "perform forced recalibration",
		register: 0x362f,
		wait:     400 * time.Millisecond,
		seq:      sendCommandAndFetch,
		encode:   co2ToWord,
		decode: oneWord(func(word uint16) recalibration {
			correction, ok := wordToCorrection(word)
			return recalibration{correction: correction, ok: ok}
		}),
	}
	cmdGetAutomaticSelfCalibrationEnabled = command[none, bool]{
		name:     "get automatic self calibration",
		register: 0x2313,
		wait:     time.Millisecond,
		seq:      readWord,
		decode:   oneWord(wordToEnabled),
	}
	cmdSetAutomaticSelfCalibrationEnabled = command[bool, none]{
		name:     "set automatic self calibration",
		register: 0x2416,
		wait:     time.Millisecond,
		seq:      writeWord,
		encode:   enabledToWord,
	}
	cmdPerformFactoryReset = command[none, none]{
		name:     "perform factory reset",
		register: 0x3632,
		wait:     1200 * time.Millisecond,
		seq:      sendCommand,
	}
)
