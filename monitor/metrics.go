package monitor

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mklimuk/airsense/co2"
)

// Metrics exports the latest sample of every sensor as Prometheus gauges.
type Metrics struct {
	registry    *prometheus.Registry
	co2         *prometheus.GaugeVec
	temperature *prometheus.GaugeVec
	humidity    *prometheus.GaugeVec
	readErrors  *prometheus.CounterVec
}

func newGauge(name string, help string) *prometheus.GaugeVec {
	return prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: name,
			Help: help,
		},
		[]string{"serial_number"},
	)
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry:    prometheus.NewRegistry(),
		co2:         newGauge("airsense_co2_ppm", "CO2 concentration (units: ppm)"),
		temperature: newGauge("airsense_temperature_celsius", "Air temperature (units: degrees Celsius)"),
		humidity:    newGauge("airsense_humidity_percent", "Relative humidity (units: %)"),
		readErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "airsense_read_errors_total",
				Help: "Number of failed sample reads",
			},
			[]string{"serial_number"},
		),
	}
	m.registry.MustRegister(m.co2, m.temperature, m.humidity, m.readErrors)
	m.registry.MustRegister(collectors.NewBuildInfoCollector())
	return m
}

func (m *Metrics) Publish(serial string, sample co2.Sample) {
	m.co2.WithLabelValues(serial).Set(float64(sample.CO2))
	m.temperature.WithLabelValues(serial).Set(float64(sample.Temperature))
	m.humidity.WithLabelValues(serial).Set(float64(sample.Humidity))
}

func (m *Metrics) ReadFailed(serial string, _ error) {
	m.readErrors.WithLabelValues(serial).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		// Opt into OpenMetrics to support exemplars.
		EnableOpenMetrics: true,
	})
}
