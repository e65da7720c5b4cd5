package blesniffer

import (
	"strconv"

	"github.com/hatstand/blesniffer/rfcore"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts receive activity. A nil *Metrics counts nothing.
type Metrics struct {
	// One counter per channel, resolved up front so the interrupt path does
	// no label lookups.
	frames  [rfcore.NumChannels]prometheus.Counter
	dropped prometheus.Counter
	hops    prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	frames := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "blesniffer",
		Name:      "frames_total",
		Help:      "Frames delivered to the handler, by channel.",
	}, []string{"channel"})
	m := &Metrics{
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "blesniffer",
			Name:      "frames_dropped_total",
			Help:      "Completed receive entries reclaimed with no handler registered.",
		}),
		hops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "blesniffer",
			Name:      "hops_total",
			Help:      "Hop commands issued to an advertising chain.",
		}),
	}
	for ch := range m.frames {
		m.frames[ch] = frames.WithLabelValues(strconv.Itoa(ch))
	}
	reg.MustRegister(frames, m.dropped, m.hops)
	return m
}

func (m *Metrics) frameDispatched(channel uint8) {
	if m == nil || int(channel) >= len(m.frames) {
		return
	}
	m.frames[channel].Inc()
}

func (m *Metrics) frameDropped() {
	if m == nil {
		return
	}
	m.dropped.Inc()
}

func (m *Metrics) hopTriggered() {
	if m == nil {
		return
	}
	m.hops.Inc()
}
