package reassemble

import "github.com/prometheus/client_golang/prometheus"

// Metrics wraps the Prometheus collectors the reassembler updates on its
// hot path. Construct one per engine (not per thread) and pass it to every
// ThreadCtx; the underlying CounterVecs are already safe for concurrent
// use across goroutines. The segments_held and memcap_used_bytes gauges are
// registered, but no code path calls setSegmentsHeld or setMemUsed, so they
// stay at 0.
type Metrics struct {
	events      *prometheus.CounterVec
	segments    prometheus.Gauge
	memUsed     prometheus.Gauge
	depthGates  *prometheus.CounterVec
	gapsClosed  *prometheus.CounterVec
	bytesRaw    *prometheus.CounterVec
	bytesApp    *prometheus.CounterVec
}

// NewMetrics registers the reassembler's collectors with reg. Pass
// prometheus.DefaultRegisterer to use the global registry, or a fresh
// prometheus.NewRegistry() in tests to avoid collisions across cases.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reassemble",
			Name:      "events_total",
			Help:      "Rule-engine-visible events raised by the reassembler, by event type.",
		}, []string{"event"}),

		segments: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "reassemble",
			Name:      "segments_held",
			Help:      "Segments currently checked out of the pool and referenced by a live stream.",
		}),

		memUsed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "reassemble",
			Name:      "memcap_used_bytes",
			Help:      "Bytes currently accounted against the segment memory cap.",
		}),

		depthGates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reassemble",
			Name:      "depth_reached_total",
			Help:      "Streams that hit reassembly_depth, by direction.",
		}, []string{"direction"}),

		gapsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reassemble",
			Name:      "gaps_total",
			Help:      "Permanent app-layer gaps declared, by direction.",
		}, []string{"direction"}),

		bytesRaw: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reassemble",
			Name:      "raw_bytes_total",
			Help:      "Bytes delivered to the raw pattern matcher, by direction.",
		}, []string{"direction"}),

		bytesApp: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reassemble",
			Name:      "app_bytes_total",
			Help:      "Bytes delivered to the app-layer parser, by direction.",
		}, []string{"direction"}),
	}

	reg.MustRegister(m.events, m.segments, m.memUsed, m.depthGates, m.gapsClosed, m.bytesRaw, m.bytesApp)

	return m
}

// observeEvent increments the per-event-type counter. Safe to call with a
// nil *Metrics (becomes a no-op), so callers needn't guard every site.
func (m *Metrics) observeEvent(ev Event) {
	if m == nil {
		return
	}

	m.events.WithLabelValues(string(ev)).Inc()
}

func (m *Metrics) observeDepthReached(dir Direction) {
	if m == nil {
		return
	}

	m.depthGates.WithLabelValues(dir.String()).Inc()
}

func (m *Metrics) observeGap(dir Direction) {
	if m == nil {
		return
	}

	m.gapsClosed.WithLabelValues(dir.String()).Inc()
}

func (m *Metrics) observeRawBytes(dir Direction, n int) {
	if m == nil {
		return
	}

	m.bytesRaw.WithLabelValues(dir.String()).Add(float64(n))
}

func (m *Metrics) observeAppBytes(dir Direction, n int) {
	if m == nil {
		return
	}

	m.bytesApp.WithLabelValues(dir.String()).Add(float64(n))
}

func (m *Metrics) setSegmentsHeld(n int) {
	if m == nil {
		return
	}

	m.segments.Set(float64(n))
}

func (m *Metrics) setMemUsed(n int64) {
	if m == nil {
		return
	}

	m.memUsed.Set(float64(n))
}

// metricsSink adapts a *Metrics to EventSink so the assembler's calls into
// C2/C3/C5/C6 can feed both the caller's own sink and the Prometheus
// counters without those packages depending on prometheus directly.
type metricsSink struct {
	metrics *Metrics
	next    EventSink
}

func (s metricsSink) RaiseEvent(ev Event) {
	s.metrics.observeEvent(ev)

	if s.next != nil {
		s.next.RaiseEvent(ev)
	}
}
