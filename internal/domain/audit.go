package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// AuditAction identifica o evento registrado na outbox de auditoria.
type AuditAction string

const (
	AuditCaseAdmitted           AuditAction = "CASE_ADMITTED"
	AuditConservationStarted    AuditAction = "CASE_CONSERVATION_STARTED"
	AuditDocumentationReady     AuditAction = "CASE_DOCUMENTATION_READY"
	AuditDeathCertificateIssued AuditAction = "CASE_DEATH_CERTIFICATE_RECORDED"
	AuditChamberChanged         AuditAction = "CASE_CHAMBER_CHANGED"
	AuditCaseReleased           AuditAction = "CASE_RELEASED"
	AuditExitGuideIssued        AuditAction = "EXIT_GUIDE_ISSUED"
	AuditChamberCreated         AuditAction = "CHAMBER_CREATED"
	AuditChamberCapacityChanged AuditAction = "CHAMBER_CAPACITY_CHANGED"
	AuditChamberDeactivated     AuditAction = "CHAMBER_DEACTIVATED"
	AuditChamberActivated       AuditAction = "CHAMBER_ACTIVATED"
)

// AuditEntry é gravada na mesma transação da mutação que descreve.
// A entrega aos consumidores (notificações, trilha de auditoria) é responsabilidade externa.
type AuditEntry struct {
	ID         string         `json:"id"`
	Action     AuditAction    `json:"action"`
	EntityType string         `json:"entity_type"`
	EntityCode string         `json:"entity_code"`
	ActorID    string         `json:"actor_id,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// NewAuditEntry monta uma entrada com id novo e o ator presente no contexto.
func NewAuditEntry(ctx context.Context, action AuditAction, entityType, entityCode string, payload map[string]any, at time.Time) AuditEntry {
	return AuditEntry{
		ID:         uuid.NewString(),
		Action:     action,
		EntityType: entityType,
		EntityCode: entityCode,
		ActorID:    ActorFrom(ctx),
		Payload:    payload,
		OccurredAt: at.UTC(),
	}
}

// Tipos de entidade auditados.
const (
	EntityCase      = "case"
	EntityChamber   = "chamber"
	EntityExitGuide = "exit_guide"
)

type actorKey struct{}

// WithActor anexa ao contexto o identificador de quem executa a operação.
func WithActor(ctx context.Context, actorID string) context.Context {
	if actorID == "" {
		return ctx
	}
	return context.WithValue(ctx, actorKey{}, actorID)
}

// ActorFrom extrai o identificador do ator, ou "" se ausente.
func ActorFrom(ctx context.Context) string {
	actor, _ := ctx.Value(actorKey{}).(string)
	return actor
}
