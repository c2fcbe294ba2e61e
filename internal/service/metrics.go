package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/roach88/civicledger/internal/ledger"
)

// Metrics holds the service's Prometheus collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	recordsAppended    prometheus.Counter
	flagsRecorded      prometheus.Counter
	escalationsCreated prometheus.Counter
	rejected           *prometheus.CounterVec
	verifications      *prometheus.CounterVec
	violations         *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with registry. A nil
// registry leaves them unregistered.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)
	return &Metrics{
		recordsAppended: factory.NewCounter(prometheus.CounterOpts{
			Name: "civicledger_records_appended_total",
			Help: "Total number of budget records appended to a chain",
		}),
		flagsRecorded: factory.NewCounter(prometheus.CounterOpts{
			Name: "civicledger_flags_recorded_total",
			Help: "Total number of citizen flags recorded",
		}),
		escalationsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "civicledger_escalations_created_total",
			Help: "Total number of escalations created",
		}),
		rejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "civicledger_operations_rejected_total",
			Help: "Total number of rejected operations by operation and error code",
		}, []string{"operation", "code"}),
		verifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "civicledger_chain_verifications_total",
			Help: "Total number of chain verifications by result",
		}, []string{"result"}),
		violations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "civicledger_chain_violations_total",
			Help: "Total number of chain integrity violations found by reason",
		}, []string{"reason"}),
	}
}

func (m *Metrics) recordAppended() {
	if m == nil {
		return
	}
	m.recordsAppended.Inc()
}

func (m *Metrics) flagRecorded(escalated bool) {
	if m == nil {
		return
	}
	m.flagsRecorded.Inc()
	if escalated {
		m.escalationsCreated.Inc()
	}
}

func (m *Metrics) rejectedOp(op string, code ledger.Code) {
	if m == nil {
		return
	}
	if code == "" {
		code = ledger.CodeStorage
	}
	m.rejected.WithLabelValues(op, string(code)).Inc()
}

func (m *Metrics) verified(report ledger.Report) {
	if m == nil {
		return
	}
	result := "valid"
	if !report.Valid {
		result = "invalid"
	}
	m.verifications.WithLabelValues(result).Inc()
	for _, v := range report.Violations {
		m.violations.WithLabelValues(string(v.Reason)).Inc()
	}
}

// WriteTextfile writes every metric gathered from g to path in the text
// exposition format, for the node exporter textfile collector.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	return prometheus.WriteToTextfile(path, g)
}
