package domain

import "time"

// CaseStatus é o estado de um caso no ciclo de vida do registro de óbitos.
type CaseStatus string

// Estados do ciclo de vida. RELEASED é terminal.
const (
	StatusAdmitted              CaseStatus = "ADMITTED"
	StatusInConservation        CaseStatus = "IN_CONSERVATION"
	StatusAwaitingDocumentation CaseStatus = "AWAITING_DOCUMENTATION"
	StatusReleased              CaseStatus = "RELEASED"
)

// AllStatuses lista os estados na ordem do ciclo de vida.
var AllStatuses = []CaseStatus{
	StatusAdmitted,
	StatusInConservation,
	StatusAwaitingDocumentation,
	StatusReleased,
}

// IsValid informa se o status é conhecido.
func (s CaseStatus) IsValid() bool {
	for _, known := range AllStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// IsTerminal informa se nenhuma transição é permitida a partir do status.
func (s CaseStatus) IsTerminal() bool {
	return s == StatusReleased
}

// RegistryCase representa uma entrada do registro de óbitos, da admissão à liberação.
// ExitGuideNumber é preenchido se e somente se Status == RELEASED.
type RegistryCase struct {
	Code                   string     `json:"code"`
	DeceasedName           string     `json:"deceased_name"`
	DeceasedDocument       string     `json:"deceased_document,omitempty"`
	ExternalReference      string     `json:"external_reference,omitempty"` // Identificador do caso no sistema hospitalar
	CauseOfDeath           string     `json:"cause_of_death,omitempty"`
	Origin                 string     `json:"origin,omitempty"` // Setor/local de procedência
	Notes                  string     `json:"notes,omitempty"`
	ChamberCode            string     `json:"chamber_code"`
	Status                 CaseStatus `json:"status"`
	AdmissionTime          time.Time  `json:"admission_time"`
	DeathCertificateIssued bool       `json:"death_certificate_issued"`
	ExitGuideNumber        *string    `json:"exit_guide_number,omitempty"`
	ConservationStartedAt  *time.Time `json:"conservation_started_at,omitempty"`
	ReleasedAt             *time.Time `json:"released_at,omitempty"`
	CreatedAt              time.Time  `json:"created_at"`
	UpdatedAt              time.Time  `json:"updated_at"`
}

// CaseAdmission é o payload de entrada para admissão de um caso.
type CaseAdmission struct {
	DeceasedName           string     `json:"deceased_name" validate:"required,max=200"`
	DeceasedDocument       string     `json:"deceased_document" validate:"max=50"`
	ExternalReference      string     `json:"external_reference" validate:"max=64"`
	CauseOfDeath           string     `json:"cause_of_death" validate:"max=500"`
	Origin                 string     `json:"origin" validate:"max=100"`
	Notes                  string     `json:"notes" validate:"max=2000"`
	ChamberCode            string     `json:"chamber_code" validate:"required,max=32"`
	AdmissionTime          *time.Time `json:"admission_time"` // Opcional; padrão: agora
	DeathCertificateIssued bool       `json:"death_certificate_issued"`
}

// ChamberChangeRequest é o payload para a troca de câmara de um caso.
type ChamberChangeRequest struct {
	ChamberCode string `json:"chamber_code" validate:"required,max=32"`
}

// CaseFilter define os parâmetros de busca e paginação de casos.
type CaseFilter struct {
	Status      CaseStatus
	ChamberCode string
	Page        int
	Limit       int
}

// Normalize aplica os padrões de paginação.
func (f CaseFilter) Normalize() CaseFilter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 || f.Limit > 200 {
		f.Limit = 50
	}
	return f
}

// Offset calcula o deslocamento da página.
func (f CaseFilter) Offset() int {
	return (f.Page - 1) * f.Limit
}
