package metrics

import (
	"math/big"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type SettlementMetrics struct {
	proofs      *prometheus.CounterVec
	fees        *prometheus.CounterVec
	staked      *prometheus.GaugeVec
	transitions *prometheus.CounterVec
}

var (
	settlementOnce     sync.Once
	settlementRegistry *SettlementMetrics
)

// Settlement returns the lazily registered settlement engine metrics.
func Settlement() *SettlementMetrics {
	settlementOnce.Do(func() {
		settlementRegistry = &SettlementMetrics{
			proofs: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "dominator_proofs_total",
				Help: "Count of settlement proofs processed by command and outcome.",
			}, []string{"command", "outcome"}),
			fees: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "dominator_fees_credited_total",
				Help: "Trading fees credited to season pools by token.",
			}, []string{"token"}),
			staked: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "dominator_staked",
				Help: "Total stake behind each dominator.",
			}, []string{"dominator"}),
			transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "dominator_status_transitions_total",
				Help: "Count of dominator lifecycle transitions by target status.",
			}, []string{"status"}),
		}
		prometheus.MustRegister(
			settlementRegistry.proofs,
			settlementRegistry.fees,
			settlementRegistry.staked,
			settlementRegistry.transitions,
		)
	})
	return settlementRegistry
}

func (m *SettlementMetrics) ObserveProof(command, outcome string) {
	if m == nil {
		return
	}
	if command == "" {
		command = "unknown"
	}
	m.proofs.WithLabelValues(command, outcome).Inc()
}

func (m *SettlementMetrics) ObserveFee(token uint32, amount *big.Int) {
	if m == nil || amount == nil || amount.Sign() <= 0 {
		return
	}
	value, _ := new(big.Float).SetInt(amount).Float64()
	m.fees.WithLabelValues(strconv.FormatUint(uint64(token), 10)).Add(value)
}

func (m *SettlementMetrics) SetStaked(dominator string, amount *big.Int) {
	if m == nil {
		return
	}
	value := 0.0
	if amount != nil {
		value, _ = new(big.Float).SetInt(amount).Float64()
	}
	m.staked.WithLabelValues(dominator).Set(value)
}

func (m *SettlementMetrics) ObserveTransition(status string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(status).Inc()
}
