package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	OpenSeaPages = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stw_opensea_pages_total",
		Help: "Marketplace pages fetched successfully",
	})

	OpenSeaRateLimited = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stw_opensea_rate_limited_total",
		Help: "Marketplace responses with HTTP 429",
	})

	ActiveListings = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "stw_active_listings",
		Help: "Deduplicated listings retained by the last aggregation",
	})

	FloorPriceEth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "stw_floor_price_eth",
		Help: "Lowest positive listing price (ETH)",
	})

	BurnedTokens = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "stw_burned_tokens",
		Help: "Token balance of the burn sink address",
	})

	UsernameLookups = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stw_username_lookups_total",
		Help: "External identity lookups (cache misses)",
	})

	RequestLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stw_api_request_seconds",
		Help:    "API handler latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
)

func init() {
	prometheus.MustRegister(
		OpenSeaPages,
		OpenSeaRateLimited,
		ActiveListings,
		FloorPriceEth,
		BurnedTokens,
		UsernameLookups,
		RequestLatency,
	)
}
