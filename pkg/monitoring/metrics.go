package monitoring

import "time"

// Reporter is an interface for reporting metrics
// metric name can contain labels in format "name;label:value,label2:value2"
type Reporter interface {
	Counter(metric string, val float64)
	Inc(metric string)
	Histogram(metric string, val float64)
	Gauge(metric string, val float64)
	Timer(metric string) Timer
}

// Timer measures time between its creation and Done call
type Timer struct {
	start  time.Time
	report func(float64)
}

// Done reports elapsed time in milliseconds
func (t Timer) Done() {
	if t.report != nil {
		t.report(float64(time.Since(t.start)) / float64(time.Millisecond))
	}
}

// NopReporter do nothing
type NopReporter struct {
}

// Counter do nothing
func (n NopReporter) Counter(_ string, _ float64) {
}

// Inc do nothing
func (n NopReporter) Inc(_ string) {
}

// Histogram do nothing
func (n NopReporter) Histogram(_ string, _ float64) {
}

// Gauge do nothing
func (n NopReporter) Gauge(_ string, _ float64) {
}

// Timer returns timer which is not reporting
func (n NopReporter) Timer(_ string) Timer {
	return Timer{start: time.Now()}
}

var reporter Reporter = &NopReporter{}

// Report returns registered reporter
func Report() Reporter {
	return reporter
}

// RegisterReporter change reporter used by service
// RegisterReporter is NOT THREAD SAFE
func RegisterReporter(r Reporter) {
	reporter = r
}
