package co2

import "math"

// dataReadyMask keeps the low 11 bits of the data-ready word; the upper bits
// are reserved and may be set without data being available.
const dataReadyMask = 0x07FF

// recalibrationFailed is the forced recalibration response of a failed run.
const recalibrationFailed = 0xFFFF

func wordsToSerialNumber(word0, word1, word2 uint16) uint64 {
	return uint64(word0)<<32 | uint64(word1)<<16 | uint64(word2)
}

func wordsToSample(word0, word1, word2 uint16) Sample {
	return Sample{
		CO2:         PPM(word0),
		Temperature: wordToTemperature(word1),
		Humidity:    wordToHumidity(word2),
	}
}

// T = -45 + 175 * word / 2^16
func wordToTemperature(word uint16) Celsius {
	return Celsius(-45 + 175*float32(word)/65536)
}

// RH = 100 * word / 2^16
func wordToHumidity(word uint16) RelativeHumidity {
	return RelativeHumidity(100 * float32(word) / 65536)
}

func wordToTemperatureOffset(word uint16) Celsius {
	return Celsius(175 * float32(word) / 65536)
}

func temperatureOffsetToWord(offset Celsius) uint16 {
	word := 65536 * float32(offset) / 175
	return uint16(math.Round(float64(word)))
}

func wordToAltitude(word uint16) Meter {
	return Meter(word)
}

func altitudeToWord(altitude Meter) uint16 {
	return uint16(altitude)
}

func ambientPressureToWord(pressure Hectopascal) uint16 {
	return uint16(pressure)
}

func co2ToWord(concentration PPM) uint16 {
	return uint16(concentration)
}

// wordToCorrection decodes the forced recalibration response. The correction
// is offset by 0x8000; ok is false when the device reports a failed run.
func wordToCorrection(word uint16) (correction PPM, ok bool) {
	if word == recalibrationFailed {
		return 0, false
	}
	return PPM(int16(word - 0x8000)), true
}

func wordToDataReady(word uint16) bool {
	return word&dataReadyMask != 0
}

func wordToSelfTestPassed(word uint16) bool {
	return word == 0
}

func wordToEnabled(word uint16) bool {
	return word&0x01 != 0
}

func enabledToWord(enabled bool) uint16 {
	if enabled {
		return 1
	}
	return 0
}
