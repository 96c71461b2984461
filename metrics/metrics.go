// Package metrics implements the six counters of spec.md §4.7 backed by
// github.com/prometheus/client_golang, registered against a private
// registry (never the global default) so multiple Node instances in one
// process — exactly what the overlay and vfs test suites spin up — don't
// collide on metric names.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector owns every counter/gauge a Node updates and exposes a
// read-only Snapshot; there is no external mutation path other than the
// Inc*/Set* methods called from overlay and from the root Node's Metrics.
type Collector struct {
	registry *prometheus.Registry
	start    time.Time

	requestsTotal  prometheus.Counter
	requestsFailed prometheus.Counter
	blocksLocal    prometheus.Gauge
	bytesStored    prometheus.Gauge
	peersConnected prometheus.Gauge
}

func New() *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{
		registry: reg,
		start:    startTime(),
		requestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vault_requests_total",
			Help: "Total overlay requests issued.",
		}),
		requestsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vault_requests_failed_total",
			Help: "Overlay requests that did not succeed.",
		}),
		blocksLocal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vault_blocks_local",
			Help: "Blocks currently held in local storage.",
		}),
		bytesStored: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vault_bytes_stored",
			Help: "Plaintext bytes represented by locally-stored blocks.",
		}),
		peersConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vault_peers_connected",
			Help: "Peers currently known to the overlay routing table.",
		}),
	}
	reg.MustRegister(c.requestsTotal, c.requestsFailed, c.blocksLocal, c.bytesStored, c.peersConnected)
	return c
}

// startTime returns the moment New is called; uptime is measured from the
// Collector's creation, not from process start.
func startTime() time.Time { return time.Now() }

func (c *Collector) IncRequests()       { c.requestsTotal.Inc() }
func (c *Collector) IncRequestsFailed() { c.requestsFailed.Inc() }

func (c *Collector) SetBlocksLocal(n int)    { c.blocksLocal.Set(float64(n)) }
func (c *Collector) SetBytesStored(n int64)  { c.bytesStored.Set(float64(n)) }
func (c *Collector) SetPeersConnected(n int) { c.peersConnected.Set(float64(n)) }

// Snapshot is a point-in-time read of every counter, plus the derived
// success_rate and uptime_seconds fields from spec.md §4.7.
type Snapshot struct {
	RequestsTotal  uint64
	RequestsFailed uint64
	BlocksLocal    int
	BytesStored    int64
	PeersConnected int
	UptimeSeconds  float64
	SuccessRate    float64
}

// Snapshot gathers the registry's current values via Gather, the same
// read path the Prometheus exposition endpoint would use — there just
// isn't one wired up here, since the HTTP façade is out of scope.
func (c *Collector) Snapshot() Snapshot {
	families, err := c.registry.Gather()
	if err != nil {
		return Snapshot{}
	}

	s := Snapshot{UptimeSeconds: time.Since(c.start).Seconds()}
	for _, f := range families {
		if len(f.Metric) == 0 {
			continue
		}
		m := f.Metric[0]
		switch f.GetName() {
		case "vault_requests_total":
			s.RequestsTotal = uint64(m.GetCounter().GetValue())
		case "vault_requests_failed_total":
			s.RequestsFailed = uint64(m.GetCounter().GetValue())
		case "vault_blocks_local":
			s.BlocksLocal = int(m.GetGauge().GetValue())
		case "vault_bytes_stored":
			s.BytesStored = int64(m.GetGauge().GetValue())
		case "vault_peers_connected":
			s.PeersConnected = int(m.GetGauge().GetValue())
		}
	}

	s.SuccessRate = 1
	if s.RequestsTotal > 0 {
		s.SuccessRate = 1 - float64(s.RequestsFailed)/float64(s.RequestsTotal)
	}
	return s
}
