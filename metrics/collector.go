// Package metrics exposes store statistics to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/argus-labs/tabletop/gamedata"
)

const namespace = "tabletop"

// Source is anything that reports store statistics. *gamedata.Store satisfies it.
type Source interface {
	Stats() gamedata.Stats
}

// Collector reads Stats on every scrape, so the values are never stale and nothing has to be updated from the
// store's hot path.
type Collector struct {
	source Source

	entities  *prometheus.Desc
	pending   *prometheus.Desc
	overlays  *prometheus.Desc
	commits   *prometheus.Desc
	rollbacks *prometheus.Desc
	tracked   *prometheus.Desc
	applied   *prometheus.Desc
	anomalies *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector returns a collector labelling every metric with worldID.
func NewCollector(source Source, worldID string) *Collector {
	labels := prometheus.Labels{"world": worldID}
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "store", name), help, nil, labels)
	}
	return &Collector{
		source:    source,
		entities:  desc("entities", "Number of live entities."),
		pending:   desc("pending_changes", "Number of change records waiting for commit."),
		overlays:  desc("overlays", "Number of entities with uncommitted changes."),
		commits:   desc("commits_total", "Number of committed transactions."),
		rollbacks: desc("rollbacks_total", "Number of rolled back transactions."),
		tracked:   desc("tracked_changes_total", "Number of change records tracked."),
		applied:   desc("applied_changes_total", "Number of change records applied from outside."),
		anomalies: desc("anomalies_total", "Number of change records that did not fit the stored state."),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.entities
	ch <- c.pending
	ch <- c.overlays
	ch <- c.commits
	ch <- c.rollbacks
	ch <- c.tracked
	ch <- c.applied
	ch <- c.anomalies
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.source.Stats()
	ch <- prometheus.MustNewConstMetric(c.entities, prometheus.GaugeValue, float64(s.Entities))
	ch <- prometheus.MustNewConstMetric(c.pending, prometheus.GaugeValue, float64(s.Pending))
	ch <- prometheus.MustNewConstMetric(c.overlays, prometheus.GaugeValue, float64(s.Overlays))
	ch <- prometheus.MustNewConstMetric(c.commits, prometheus.CounterValue, float64(s.Commits))
	ch <- prometheus.MustNewConstMetric(c.rollbacks, prometheus.CounterValue, float64(s.Rollbacks))
	ch <- prometheus.MustNewConstMetric(c.tracked, prometheus.CounterValue, float64(s.Tracked))
	ch <- prometheus.MustNewConstMetric(c.applied, prometheus.CounterValue, float64(s.Applied))
	ch <- prometheus.MustNewConstMetric(c.anomalies, prometheus.CounterValue, float64(s.Anomalies))
}

// NewRegistry returns a registry holding the store collector next to the Go runtime and process collectors.
func NewRegistry(source Source, worldID string) (*prometheus.Registry, error) {
	reg := prometheus.NewRegistry()
	if err := reg.Register(NewCollector(source, worldID)); err != nil {
		return nil, err
	}
	reg.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return reg, nil
}
