package bridge

import "github.com/prometheus/client_golang/prometheus"

var (
	scansTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nfcbridge",
			Name:      "scans_total",
			Help:      "Card reads by outcome",
		},
		[]string{"result"},
	)

	readerFaults = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "nfcbridge",
		Name:      "reader_faults_total",
		Help:      "Driver-reported reader faults",
	})

	handlerPanics = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "nfcbridge",
		Name:      "handler_panics_total",
		Help:      "Recovered faults inside event handling",
	})

	readerAttached = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "nfcbridge",
		Name:      "reader_attached",
		Help:      "1 while a reader is attached",
	})

	phaseGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "nfcbridge",
		Name:      "supervisor_phase",
		Help:      "Supervisor phase (0 starting, 1 listening, 2 degraded, 3 shutting down, 4 stopped)",
	})
)

// scan outcomes
const (
	resultAccepted  = "accepted"
	resultDebounced = "debounced"
	resultMalformed = "malformed"
	resultFailed    = "failed"
)

func init() {
	prometheus.MustRegister(scansTotal, readerFaults, handlerPanics, readerAttached, phaseGauge)
}
