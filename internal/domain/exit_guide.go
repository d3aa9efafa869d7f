package domain

import "time"

// ExitGuide é a autorização de saída do corpo. Criada uma única vez por caso e nunca alterada.
type ExitGuide struct {
	Number                string    `json:"number"`
	CaseCode              string    `json:"case_code"`
	IssuedAt              time.Time `json:"issued_at"`
	RecipientName         string    `json:"recipient_name"`
	RecipientDocument     string    `json:"recipient_document"`
	RecipientRelationship string    `json:"recipient_relationship,omitempty"`
	Destination           string    `json:"destination"`
	IssuedBy              string    `json:"issued_by,omitempty"`
}

// Recipient é o payload com os dados de quem retira o corpo.
type Recipient struct {
	Name         string `json:"recipient_name" validate:"required,max=200"`
	Document     string `json:"recipient_document" validate:"required,max=50"`
	Relationship string `json:"recipient_relationship" validate:"max=100"`
	Destination  string `json:"destination" validate:"required,max=200"`
}
