package broadcast

import "github.com/prometheus/client_golang/prometheus"

var (
	subscribersGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "nfcbridge",
		Subsystem: "broadcast",
		Name:      "subscribers",
		Help:      "Connected event channel subscribers",
	})

	droppedFrames = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "nfcbridge",
		Subsystem: "broadcast",
		Name:      "dropped_frames_total",
		Help:      "Frames skipped because a subscriber queue was full",
	})
)

func init() {
	prometheus.MustRegister(subscribersGauge, droppedFrames)
}
