// Package metrics exposes Prometheus instruments for the controller.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ayusman/mudra/internal/control"
	"github.com/ayusman/mudra/internal/controller"
)

// Metrics holds the instruments and the registry they are registered on.
type Metrics struct {
	registry *prometheus.Registry

	ccSent       *prometheus.CounterVec
	sendFailures *prometheus.CounterVec
	frames       *prometheus.CounterVec
	frameSeconds prometheus.Histogram
	mapping      prometheus.Gauge
	selectedCC   prometheus.Gauge
}

// New creates the instruments on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ccSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mudra_cc_sent_total",
				Help: "Control-change messages sent, by slot",
			},
			[]string{"slot", "cc"},
		),
		sendFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mudra_cc_send_failures_total",
				Help: "Control-change messages that failed to send, by slot",
			},
			[]string{"slot"},
		),
		frames: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mudra_frames_total",
				Help: "Frames processed, by mode and whether a hand was seen",
			},
			[]string{"mode", "hand"},
		),
		frameSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "mudra_frame_duration_seconds",
				Help:    "Time to detect, compute and emit one frame",
				Buckets: []float64{.005, .01, .02, .035, .05, .075, .1, .15, .25, .5},
			},
		),
		mapping: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mudra_mapping_mode",
			Help: "1 while mapping mode is active",
		}),
		selectedCC: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mudra_mapping_selected_cc",
			Help: "CC number of the selected mapping slot, 0 if none",
		}),
	}

	m.registry.MustRegister(
		m.ccSent, m.sendFailures, m.frames, m.frameSeconds, m.mapping, m.selectedCC,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry backing the instruments.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveEmit records one CC send.
func (m *Metrics) ObserveEmit(slot control.Slot, err error) {
	if err != nil {
		m.sendFailures.WithLabelValues(slot.String()).Inc()
		return
	}
	m.ccSent.WithLabelValues(slot.String(), strconv.Itoa(int(slot.CC()))).Inc()
}

// ObserveFrame records one processed frame and how long it took.
func (m *Metrics) ObserveFrame(f controller.Frame, took time.Duration) {
	hand := "no"
	if f.Hand != nil {
		hand = "yes"
	}
	m.frames.WithLabelValues(f.Mode.String(), hand).Inc()
	m.frameSeconds.Observe(took.Seconds())
}

// ObserveState records the mode and selection.
func (m *Metrics) ObserveState(s controller.State) {
	if s.Mode == controller.Mapping {
		m.mapping.Set(1)
	} else {
		m.mapping.Set(0)
	}
	m.selectedCC.Set(float64(s.Selected.CC()))
}
