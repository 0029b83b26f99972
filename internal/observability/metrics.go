// Package observability provides Prometheus metrics and the ops HTTP
// server.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector exports pipeline metrics from a Status snapshot on scrape.
// All counters are process-lifetime monotonic, so const metrics read at
// collect time are sufficient; no component needs a metrics handle.
type Collector struct {
	source StatusSource

	logsReceived   *prometheus.Desc
	swapsParsed    *prometheus.Desc
	poolsSeen      *prometheus.Desc
	depositsSeen   *prometheus.Desc
	eventsDropped  *prometheus.Desc
	skippedYoung   *prometheus.Desc
	enrichFailures *prometheus.Desc

	universeSize      *prometheus.Desc
	universeRefreshed *prometheus.Desc
	catalogSpent      *prometheus.Desc

	streamState *prometheus.Desc
}

// NewCollector creates a Collector over the given snapshot source.
func NewCollector(namespace string, source StatusSource) *Collector {
	if namespace == "" {
		namespace = "signal_pipeline"
	}

	desc := func(subsystem, name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, name), help, labels, nil)
	}

	return &Collector{
		source: source,

		logsReceived:   desc("ingestion", "logs_received_total", "Program log notifications received"),
		swapsParsed:    desc("ingestion", "swaps_parsed_total", "Swap events parsed and stored"),
		poolsSeen:      desc("ingestion", "pools_seen_total", "Pool initializations observed"),
		depositsSeen:   desc("ingestion", "deposits_seen_total", "Large liquidity deposits observed"),
		eventsDropped:  desc("ingestion", "events_dropped_total", "Events dropped from the full dispatch buffer"),
		skippedYoung:   desc("ingestion", "skipped_young_pool_total", "Swaps skipped by the pool age gate"),
		enrichFailures: desc("ingestion", "enrich_failures_total", "Failed transaction enrichment calls"),

		universeSize:      desc("universe", "size", "Monitored tokens"),
		universeRefreshed: desc("universe", "refreshed_timestamp_seconds", "Unix time of the last universe refresh"),
		catalogSpent:      desc("universe", "catalog_requests_spent_total", "External catalog requests spent today"),

		streamState: desc("stream", "state", "Stream connection state (1 for the current state)", "state"),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.logsReceived
	ch <- c.swapsParsed
	ch <- c.poolsSeen
	ch <- c.depositsSeen
	ch <- c.eventsDropped
	ch <- c.skippedYoung
	ch <- c.enrichFailures
	ch <- c.universeSize
	ch <- c.universeRefreshed
	ch <- c.catalogSpent
	ch <- c.streamState
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.source()

	counter := func(d *prometheus.Desc, v uint64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v))
	}
	counter(c.logsReceived, s.Ingestion.LogsReceived)
	counter(c.swapsParsed, s.Ingestion.SwapsParsed)
	counter(c.poolsSeen, s.Ingestion.PoolsSeen)
	counter(c.depositsSeen, s.Ingestion.DepositsSeen)
	counter(c.eventsDropped, s.Ingestion.EventsDropped)
	counter(c.skippedYoung, s.Ingestion.SkippedYoung)
	counter(c.enrichFailures, s.Ingestion.EnrichFailures)

	ch <- prometheus.MustNewConstMetric(c.universeSize,
		prometheus.GaugeValue, float64(s.UniverseSize))
	if !s.UniverseRefreshedAt.IsZero() {
		ch <- prometheus.MustNewConstMetric(c.universeRefreshed,
			prometheus.GaugeValue, float64(s.UniverseRefreshedAt.Unix()))
	}
	ch <- prometheus.MustNewConstMetric(c.catalogSpent,
		prometheus.CounterValue, float64(s.CatalogSpent))

	ch <- prometheus.MustNewConstMetric(c.streamState,
		prometheus.GaugeValue, 1, s.StreamState)
}

// Compile-time interface check.
var _ prometheus.Collector = (*Collector)(nil)
