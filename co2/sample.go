package co2

import (
	"fmt"

	"periph.io/x/conn/v3/physic"
)

// PPM is a CO₂ concentration in parts per million. Forced recalibration
// corrections are expressed in PPM too and may be negative.
type PPM float32

func (p PPM) String() string {
	return fmt.Sprintf("%g ppm", float32(p))
}

// Celsius is a temperature, or a temperature offset, in degrees Celsius.
type Celsius float32

func (c Celsius) String() string {
	return fmt.Sprintf("%g °C", float32(c))
}

// Temperature converts to periph's fixed point representation.
func (c Celsius) Temperature() physic.Temperature {
	return physic.ZeroCelsius + physic.Temperature(float64(c)*float64(physic.Celsius))
}

// RelativeHumidity is expressed in percent. Sensor tolerance lets it go
// slightly over 100.
type RelativeHumidity float32

func (h RelativeHumidity) String() string {
	return fmt.Sprintf("%g %%RH", float32(h))
}

func (h RelativeHumidity) Humidity() physic.RelativeHumidity {
	return physic.RelativeHumidity(float64(h) * float64(physic.PercentRH))
}

// Hectopascal is an ambient pressure.
type Hectopascal float32

func (p Hectopascal) String() string {
	return fmt.Sprintf("%g hPa", float32(p))
}

func (p Hectopascal) Pressure() physic.Pressure {
	return physic.Pressure(float64(p) * float64(100*physic.Pascal))
}

// Meter is a sensor altitude above sea level.
type Meter float32

func (m Meter) String() string {
	return fmt.Sprintf("%g m", float32(m))
}

func (m Meter) Distance() physic.Distance {
	return physic.Distance(float64(m) * float64(physic.Metre))
}

// Sample is one measurement as returned by ReadMeasurement. Values derive
// from a fixed conversion of the raw words, so == comparison is exact.
type Sample struct {
	CO2         PPM              `json:"co2"`
	Temperature Celsius          `json:"temperature"`
	Humidity    RelativeHumidity `json:"humidity"`
}

func (s Sample) String() string {
	return fmt.Sprintf("CO2: %s Temperature: %s Humidity: %s", s.CO2, s.Temperature, s.Humidity)
}
