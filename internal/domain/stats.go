package domain

import "time"

// CaseStats agrega os casos admitidos em um período [From, To).
type CaseStats struct {
	From                     time.Time          `json:"from"`
	To                       time.Time          `json:"to"`
	Total                    int                `json:"total"`
	ByStatus                 map[CaseStatus]int `json:"by_status"`
	ReleasedCount            int                `json:"released_count"`
	AverageConservationHours float64            `json:"average_conservation_hours"`
}

// NewEmptyCaseStats cria estatísticas zeradas com todos os estados presentes.
func NewEmptyCaseStats(from, to time.Time) CaseStats {
	byStatus := make(map[CaseStatus]int, len(AllStatuses))
	for _, s := range AllStatuses {
		byStatus[s] = 0
	}
	return CaseStats{From: from, To: to, ByStatus: byStatus}
}

// ConservationHours retorna o tempo em conservação de um caso liberado, medido do início
// da conservação (ou da admissão, se a conservação nunca foi registrada) até a liberação.
func (c RegistryCase) ConservationHours() (float64, bool) {
	if c.Status != StatusReleased || c.ReleasedAt == nil {
		return 0, false
	}
	start := c.AdmissionTime
	if c.ConservationStartedAt != nil {
		start = *c.ConservationStartedAt
	}
	return c.ReleasedAt.Sub(start).Hours(), true
}
