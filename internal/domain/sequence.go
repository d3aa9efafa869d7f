package domain

import "fmt"

// SequenceKind identifica o contador anual usado na geração de códigos.
type SequenceKind string

const (
	SequenceCase  SequenceKind = "case"
	SequenceGuide SequenceKind = "guide"
)

// Prefix retorna o prefixo do código formatado para o tipo de sequência.
func (k SequenceKind) Prefix() (string, bool) {
	switch k {
	case SequenceCase:
		return "OB", true
	case SequenceGuide:
		return "GS", true
	default:
		return "", false
	}
}

// SequenceCounter guarda o último valor alocado para um par (kind, year).
type SequenceCounter struct {
	Kind      SequenceKind `json:"kind"`
	Year      int          `json:"year"`
	LastValue int64        `json:"last_value"`
}

// FormatSequenceCode monta códigos no formato <PREFIXO>-<ano>-<valor com 5 dígitos>.
func FormatSequenceCode(prefix string, year int, value int64) string {
	return fmt.Sprintf("%s-%d-%05d", prefix, year, value)
}
