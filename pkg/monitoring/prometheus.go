package monitoring

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusReporter reports metrics to prometheus collectors registered by name
type PrometheusReporter struct {
	registerer    prometheus.Registerer
	countersVec   map[string]*prometheus.CounterVec
	counters      map[string]prometheus.Counter
	gaugesVec     map[string]*prometheus.GaugeVec
	gauges        map[string]prometheus.Gauge
	histograms    map[string]prometheus.Histogram
	histogramsVec map[string]*prometheus.HistogramVec
}

// NewPrometheusReporter create reporter which registers collectors in given registerer
func NewPrometheusReporter(registerer prometheus.Registerer) *PrometheusReporter {
	p := PrometheusReporter{registerer: registerer}
	p.countersVec = make(map[string]*prometheus.CounterVec)
	p.counters = make(map[string]prometheus.Counter)
	p.gaugesVec = make(map[string]*prometheus.GaugeVec)
	p.gauges = make(map[string]prometheus.Gauge)
	p.histograms = make(map[string]prometheus.Histogram)
	p.histogramsVec = make(map[string]*prometheus.HistogramVec)
	return &p
}

// Inc increments counter by one
// metric - status_codes;sc:200
func (p *PrometheusReporter) Inc(metric string) {
	p.Counter(metric, 1)
}

// Counter add val to counter
func (p *PrometheusReporter) Counter(metric string, val float64) {
	name, labels := parseMetric(metric)
	if labels == nil {
		if c, ok := p.counters[name]; ok {
			c.Add(val)
		}
		return
	}

	if c, ok := p.countersVec[name]; ok {
		c.With(labels).Add(val)
	}
}

// Gauge add val to gauge
func (p *PrometheusReporter) Gauge(metric string, val float64) {
	name, labels := parseMetric(metric)
	if labels == nil {
		if g, ok := p.gauges[name]; ok {
			g.Add(val)
		}
		return
	}

	if g, ok := p.gaugesVec[name]; ok {
		g.With(labels).Add(val)
	}
}

// Histogram observe val in histogram
func (p *PrometheusReporter) Histogram(metric string, val float64) {
	name, labels := parseMetric(metric)
	if labels == nil {
		if h, ok := p.histograms[name]; ok {
			h.Observe(val)
		}
		return
	}

	if h, ok := p.histogramsVec[name]; ok {
		h.With(labels).Observe(val)
	}
}

// Timer returns timer that observes elapsed milliseconds in histogram
func (p *PrometheusReporter) Timer(metric string) Timer {
	return Timer{start: time.Now(), report: func(v float64) {
		p.Histogram(metric, v)
	}}
}

// RegisterCounter register counter under given name
func (p *PrometheusReporter) RegisterCounter(name string, c prometheus.Counter) error {
	if err := p.registerer.Register(c); err != nil {
		return err
	}

	p.counters[name] = c
	return nil
}

// RegisterCounterVec register counter vector under given name
func (p *PrometheusReporter) RegisterCounterVec(name string, c *prometheus.CounterVec) error {
	if err := p.registerer.Register(c); err != nil {
		return err
	}

	p.countersVec[name] = c
	return nil
}

// RegisterGauge register gauge under given name
func (p *PrometheusReporter) RegisterGauge(name string, g prometheus.Gauge) error {
	if err := p.registerer.Register(g); err != nil {
		return err
	}

	p.gauges[name] = g
	return nil
}

// RegisterGaugeVec register gauge vector under given name
func (p *PrometheusReporter) RegisterGaugeVec(name string, g *prometheus.GaugeVec) error {
	if err := p.registerer.Register(g); err != nil {
		return err
	}

	p.gaugesVec[name] = g
	return nil
}

// RegisterHistogram register histogram under given name
func (p *PrometheusReporter) RegisterHistogram(name string, h prometheus.Histogram) error {
	if err := p.registerer.Register(h); err != nil {
		return err
	}

	p.histograms[name] = h
	return nil
}

// RegisterHistogramVec register histogram vector under given name
func (p *PrometheusReporter) RegisterHistogramVec(name string, h *prometheus.HistogramVec) error {
	if err := p.registerer.Register(h); err != nil {
		return err
	}

	p.histogramsVec[name] = h
	return nil
}

// RegisterEdgeMetrics registers collectors used by the edge pipeline
func (p *PrometheusReporter) RegisterEdgeMetrics() error {
	collectors := []func() error{
		func() error {
			return p.RegisterCounterVec("request_count", prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "imgedge_request_count",
				Help: "imgedge requests count by route and status code",
			}, []string{"route", "sc"}))
		},
		func() error {
			return p.RegisterCounterVec("fallback_count", prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "imgedge_fallback_count",
				Help: "imgedge number of primary responses which triggered fallback",
			}, []string{"route", "sc"}))
		},
		func() error {
			return p.RegisterCounterVec("cache_ratio", prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "imgedge_cache_ratio",
				Help: "imgedge edge cache hit ratio",
			}, []string{"status"}))
		},
		func() error {
			return p.RegisterCounter("collapsed_count", prometheus.NewCounter(prometheus.CounterOpts{
				Name: "imgedge_collapsed_count",
				Help: "imgedge count of collapsed compute invocations",
			}))
		},
		func() error {
			return p.RegisterCounter("throttled_count", prometheus.NewCounter(prometheus.CounterOpts{
				Name: "imgedge_throttled_count",
				Help: "imgedge count of throttled compute invocations",
			}))
		},
		func() error {
			return p.RegisterHistogramVec("backend_time", prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "imgedge_backend_time",
				Help:    "imgedge backend response time in milliseconds",
				Buckets: []float64{5, 10, 50, 100, 200, 500, 1000, 5000, 10000, 60000},
			}, []string{"backend"}))
		},
		func() error {
			return p.RegisterHistogramVec("request_time", prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "imgedge_request_time",
				Help:    "imgedge request time in milliseconds",
				Buckets: []float64{1, 5, 10, 50, 100, 200, 500, 1000, 5000, 60000},
			}, []string{"route"}))
		},
	}

	for _, register := range collectors {
		if err := register(); err != nil {
			return err
		}
	}

	return nil
}

func parseMetric(metric string) (string, prometheus.Labels) {
	parts := strings.SplitN(metric, ";", 2)
	if len(parts) == 1 {
		return parts[0], nil
	}

	return parts[0], getLabels(parts[1])
}

// getLabels parse "label:value,label2:value2"
func getLabels(label string) prometheus.Labels {
	labels := make(prometheus.Labels)
	for _, pair := range strings.Split(label, ",") {
		kv := strings.SplitN(pair, ":", 2)
		if len(kv) != 2 {
			continue
		}

		labels[kv[0]] = kv[1]
	}

	return labels
}
