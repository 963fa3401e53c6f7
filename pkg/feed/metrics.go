package feed

import (
	"github.com/prometheus/client_golang/prometheus"
)

// StatsProvider is implemented by *Feed.
type StatsProvider interface {
	Stats() Stats
}

// Collector exports feed counters to Prometheus. Values are read from
// Stats at scrape time.
type Collector struct {
	feed StatsProvider

	grabs          *prometheus.Desc
	grabFailures   *prometheus.Desc
	produced       *prometheus.Desc
	rewinds        *prometheus.Desc
	rewindFailures *prometheus.Desc
	deliveries     *prometheus.Desc
	skips          *prometheus.Desc
	running        *prometheus.Desc
}

// NewCollector creates a collector for feed. constLabels are attached to
// every metric, e.g. {"source": "0"}.
func NewCollector(namespace string, feed StatsProvider, constLabels prometheus.Labels) *Collector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "feed", name), help, nil, constLabels)
	}
	return &Collector{
		feed:           feed,
		grabs:          desc("grabs_total", "Grab calls made on the capture source."),
		grabFailures:   desc("grab_failures_total", "Grab calls that returned no frame."),
		produced:       desc("frames_produced_total", "Frames placed in the slot."),
		rewinds:        desc("rewinds_total", "Successful rewinds of a file source."),
		rewindFailures: desc("rewind_failures_total", "Rewinds refused by the source."),
		deliveries:     desc("deliveries_total", "Frames handed to the consumer."),
		skips:          desc("skips_total", "Polls that found no frame or a busy slot."),
		running:        desc("running", "1 while the acquisition loop is running."),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.grabs
	ch <- c.grabFailures
	ch <- c.produced
	ch <- c.rewinds
	ch <- c.rewindFailures
	ch <- c.deliveries
	ch <- c.skips
	ch <- c.running
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.feed.Stats()

	counter := func(d *prometheus.Desc, v uint64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v))
	}
	counter(c.grabs, s.Loop.Grabs)
	counter(c.grabFailures, s.Loop.GrabFailures)
	counter(c.produced, s.Loop.Produced)
	counter(c.rewinds, s.Loop.Rewinds)
	counter(c.rewindFailures, s.Loop.RewindFailures)
	counter(c.deliveries, s.Consumer.Deliveries)
	counter(c.skips, s.Consumer.Skips)

	running := 0.0
	if s.State == StateRunning {
		running = 1
	}
	ch <- prometheus.MustNewConstMetric(c.running, prometheus.GaugeValue, running)
}

var _ prometheus.Collector = (*Collector)(nil)
