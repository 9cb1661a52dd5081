// Package metrics holds the Prometheus collectors shared across the pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// GeocodeRequests counts calls to external geocoding providers.
	GeocodeRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "eventmap",
		Name:      "geocode_requests_total",
		Help:      "Geocoding provider calls by provider and status",
	}, []string{"provider", "status"})

	// LocationResolutions counts which resolver strategy placed an event.
	LocationResolutions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "eventmap",
		Name:      "location_resolutions_total",
		Help:      "Resolved event locations by strategy (known, city, cache, geocode, hash)",
	}, []string{"source"})

	// NormalizeOutcomes counts calendar items by normalizer outcome.
	NormalizeOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "eventmap",
		Name:      "normalize_items_total",
		Help:      "Calendar items by normalizer outcome",
	}, []string{"outcome"})

	// CalendarLoads counts calendar source attempts.
	CalendarLoads = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "eventmap",
		Name:      "calendar_loads_total",
		Help:      "Calendar source load attempts by source and status",
	}, []string{"source", "status"})

	// LoadedEvents is the size of the current canonical event set.
	LoadedEvents = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "eventmap",
		Name:      "events_loaded",
		Help:      "Number of events in the current canonical set",
	})

	// LastLoadTimestamp is the unix time of the last successful reload.
	LastLoadTimestamp = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "eventmap",
		Name:      "last_load_timestamp_seconds",
		Help:      "Unix timestamp of the last successful calendar load",
	})

	// SearchDuration observes how long a filter pass took, origin resolution included.
	SearchDuration = prometheus.NewSummary(prometheus.SummaryOpts{
		Namespace: "eventmap",
		Name:      "search_duration_seconds",
		Help:      "Time spent resolving and applying one filter pass",
	})
)

func init() {
	prometheus.MustRegister(
		GeocodeRequests, LocationResolutions, NormalizeOutcomes,
		CalendarLoads, LoadedEvents, LastLoadTimestamp, SearchDuration,
	)
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
