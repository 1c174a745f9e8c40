package kvstore

import (
	dto "github.com/prometheus/client_model/go"

	"github.com/prometheus/client_golang/prometheus"
)

// counters tracks the per-area metrics named in spec §4.1: flood-rate,
// merge-wins, merge-losses, expired-keys, and current key count.
type counters struct {
	areaID string

	floodedTotal    prometheus.Counter
	mergeWinsTotal  prometheus.Counter
	mergeLossTotal  prometheus.Counter
	expiredTotal    prometheus.Counter
	loopDropsTotal  prometheus.Counter
	peerErrorsTotal prometheus.Counter
	keyCount        prometheus.Gauge
}

var (
	floodedVec    = promAuto("kvstore_flooded_publications_total", "Publications sent to peers.")
	mergeWinsVec  = promAuto("kvstore_merge_wins_total", "Writes where the incoming value won the merge.")
	mergeLossVec  = promAuto("kvstore_merge_losses_total", "Writes where the local value won the merge.")
	expiredVec    = promAuto("kvstore_expired_keys_total", "Keys removed by TTL expiry.")
	loopDropsVec  = promAuto("kvstore_loop_drops_total", "Publications dropped by loop prevention.")
	peerErrorsVec = promAuto("kvstore_peer_errors_total", "Peer RPC failures.")
	keyCountVec   = promAutoGauge("kvstore_key_count", "Current number of keys in the area.")
)

func promAuto(name, help string) *prometheus.CounterVec {
	v := prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: help}, []string{"area"})
	prometheus.MustRegister(v)
	return v
}

func promAutoGauge(name, help string) *prometheus.GaugeVec {
	v := prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: name, Help: help}, []string{"area"})
	prometheus.MustRegister(v)
	return v
}

func newCounters(areaID string) *counters {
	return &counters{
		areaID:          areaID,
		floodedTotal:    floodedVec.WithLabelValues(areaID),
		mergeWinsTotal:  mergeWinsVec.WithLabelValues(areaID),
		mergeLossTotal:  mergeLossVec.WithLabelValues(areaID),
		expiredTotal:    expiredVec.WithLabelValues(areaID),
		loopDropsTotal:  loopDropsVec.WithLabelValues(areaID),
		peerErrorsTotal: peerErrorsVec.WithLabelValues(areaID),
		keyCount:        keyCountVec.WithLabelValues(areaID),
	}
}

func (c *counters) snapshot() map[string]int64 {
	return map[string]int64{
		"kvstore.flooded_publications":  counterValue(c.floodedTotal),
		"kvstore.merge_wins":            counterValue(c.mergeWinsTotal),
		"kvstore.merge_losses":          counterValue(c.mergeLossTotal),
		"kvstore.expired_keys":          counterValue(c.expiredTotal),
		"kvstore.loop_drops":            counterValue(c.loopDropsTotal),
		"kvstore.peer_errors":           counterValue(c.peerErrorsTotal),
		"kvstore.key_count":             int64(gaugeValue(c.keyCount)),
	}
}

func counterValue(c prometheus.Counter) int64 {
	var m dto.Metric
	if err := c.Write(&m); err != nil || m.Counter == nil {
		return 0
	}
	return int64(m.Counter.GetValue())
}

func gaugeValue(g prometheus.Gauge) float64 {
	var m dto.Metric
	if err := g.Write(&m); err != nil || m.Gauge == nil {
		return 0
	}
	return m.Gauge.GetValue()
}
