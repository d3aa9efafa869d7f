package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics expõe os indicadores do registro de óbitos e das câmaras frias.
// Um *Metrics nil é válido e ignora todas as observações.
type Metrics struct {
	CasesAdmitted      prometheus.Counter
	CasesReleased      prometheus.Counter
	ChamberTransfers   prometheus.Counter
	CapacityRejections *prometheus.CounterVec
	ChamberOccupancy   *prometheus.GaugeVec
	ChamberCapacity    *prometheus.GaugeVec
	OperationDuration  *prometheus.HistogramVec
}

// New registra as métricas em reg. Em testes, use prometheus.NewRegistry().
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		CasesAdmitted: f.NewCounter(prometheus.CounterOpts{
			Name: "gomorgue_cases_admitted_total",
			Help: "Total de casos admitidos em câmaras",
		}),
		CasesReleased: f.NewCounter(prometheus.CounterOpts{
			Name: "gomorgue_cases_released_total",
			Help: "Total de casos liberados com guia de saída",
		}),
		ChamberTransfers: f.NewCounter(prometheus.CounterOpts{
			Name: "gomorgue_chamber_transfers_total",
			Help: "Total de transferências de caso entre câmaras",
		}),
		CapacityRejections: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gomorgue_capacity_rejections_total",
			Help: "Reservas recusadas por câmara lotada",
		}, []string{"chamber"}),
		ChamberOccupancy: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gomorgue_chamber_occupancy",
			Help: "Ocupação atual por câmara",
		}, []string{"chamber"}),
		ChamberCapacity: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gomorgue_chamber_capacity",
			Help: "Capacidade configurada por câmara",
		}, []string{"chamber"}),
		OperationDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gomorgue_operation_duration_seconds",
			Help:    "Duração das operações públicas, incluindo novas tentativas de transação",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"operation", "outcome"}),
	}
}

// IncrementCasesAdmitted registra uma admissão concluída.
func (m *Metrics) IncrementCasesAdmitted() {
	if m == nil {
		return
	}
	m.CasesAdmitted.Inc()
}

// IncrementCasesReleased registra uma liberação concluída.
func (m *Metrics) IncrementCasesReleased() {
	if m == nil {
		return
	}
	m.CasesReleased.Inc()
}

// IncrementChamberTransfers registra uma troca de câmara concluída.
func (m *Metrics) IncrementChamberTransfers() {
	if m == nil {
		return
	}
	m.ChamberTransfers.Inc()
}

// IncrementCapacityRejection registra uma reserva recusada por lotação.
func (m *Metrics) IncrementCapacityRejection(chamber string) {
	if m == nil {
		return
	}
	m.CapacityRejections.WithLabelValues(chamber).Inc()
}

// SetChamberOccupancy publica ocupação e capacidade de uma câmara.
func (m *Metrics) SetChamberOccupancy(chamber string, occupancy, capacity int) {
	if m == nil {
		return
	}
	m.ChamberOccupancy.WithLabelValues(chamber).Set(float64(occupancy))
	m.ChamberCapacity.WithLabelValues(chamber).Set(float64(capacity))
}

// ObserveOperation registra a duração de uma operação.
// Chame com time.Now() tomado no início da operação.
func (m *Metrics) ObserveOperation(operation string, start time.Time, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.OperationDuration.WithLabelValues(operation, outcome).Observe(time.Since(start).Seconds())
}
