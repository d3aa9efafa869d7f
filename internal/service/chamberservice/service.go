package chamberservice

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"gomorgue/internal/domain"
	apperror "gomorgue/internal/errors"
	"gomorgue/internal/pkg/database"
	"gomorgue/internal/pkg/logger"
	"gomorgue/internal/pkg/metrics"
	"gomorgue/internal/pkg/tracing"
	"gomorgue/internal/pkg/validation"
)

const tracerName = "gomorgue/chamberservice"

// ChamberRepository define o contrato que o Registro de Câmaras espera da camada de Persistência.
type ChamberRepository interface {
	Create(ctx context.Context, c domain.Chamber) (domain.Chamber, error)
	Get(ctx context.Context, code string) (domain.Chamber, error)
	GetForUpdate(ctx context.Context, code string) (domain.Chamber, error)
	List(ctx context.Context) ([]domain.Chamber, error)
	Update(ctx context.Context, c domain.Chamber) (domain.Chamber, error)
}

// AuditRepository grava entradas na outbox de auditoria.
type AuditRepository interface {
	Append(ctx context.Context, entry domain.AuditEntry) error
}

// Service é a única autoridade sobre a ocupação das câmaras.
// Reserve, Release e Transfer não emitem auditoria: quem os chama registra o evento de negócio.
type Service struct {
	tx        database.Transactor
	repo      ChamberRepository
	audit     AuditRepository
	metrics   *metrics.Metrics
	validator *validation.Validator
	logger    logger.Logger
	now       func() time.Time
}

// NewService cria e retorna uma nova instância do Registro de Câmaras.
func NewService(tx database.Transactor, repo ChamberRepository, audit AuditRepository, m *metrics.Metrics, v *validation.Validator, logger logger.Logger) *Service {
	return &Service{
		tx:        tx,
		repo:      repo,
		audit:     audit,
		metrics:   m,
		validator: v,
		logger:    logger,
		now:       time.Now,
	}
}

// Reserve ocupa uma vaga da câmara.
func (s *Service) Reserve(ctx context.Context, code string) (chamber domain.Chamber, err error) {
	ctx, span := tracing.Start(ctx, tracerName, "chamber.Reserve", attribute.String("chamber.code", code))
	defer func() { tracing.End(span, err) }()

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		c, err := s.repo.GetForUpdate(ctx, code)
		if err != nil {
			return err
		}
		if !c.Active {
			return apperror.NewPreconditionFailedError(apperror.ReasonChamberInactive,
				fmt.Sprintf("A câmara %s está inativa.", code))
		}
		if c.IsFull() {
			return apperror.NewCapacityExceededError(code, c.Capacity)
		}
		c.CurrentOccupancy++
		chamber, err = s.repo.Update(ctx, c)
		return err
	})
	if err != nil {
		var capErr *apperror.CapacityExceededError
		if errors.As(err, &capErr) {
			s.metrics.IncrementCapacityRejection(code)
			s.logger.Warn("Reserva rejeitada: câmara lotada.", map[string]interface{}{"chamber_code": code, "capacity": capErr.Capacity})
		}
		return domain.Chamber{}, apperror.Wrap(err, "Falha interna ao reservar vaga.")
	}

	s.logger.Debug("Vaga reservada.", map[string]interface{}{"chamber_code": code, "occupancy": chamber.CurrentOccupancy})
	return chamber, nil
}

// Release libera uma vaga da câmara. Liberar uma câmara vazia indica corrupção de estado.
func (s *Service) Release(ctx context.Context, code string) (chamber domain.Chamber, err error) {
	ctx, span := tracing.Start(ctx, tracerName, "chamber.Release", attribute.String("chamber.code", code))
	defer func() { tracing.End(span, err) }()

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		c, err := s.repo.GetForUpdate(ctx, code)
		if err != nil {
			return err
		}
		if c.CurrentOccupancy == 0 {
			return apperror.NewInvariantViolationError(fmt.Sprintf("liberação de vaga na câmara vazia %s", code))
		}
		c.CurrentOccupancy--
		chamber, err = s.repo.Update(ctx, c)
		return err
	})
	if err != nil {
		s.logger.Error("Falha ao liberar vaga.", err)
		return domain.Chamber{}, apperror.Wrap(err, "Falha interna ao liberar vaga.")
	}

	s.logger.Debug("Vaga liberada.", map[string]interface{}{"chamber_code": code, "occupancy": chamber.CurrentOccupancy})
	return chamber, nil
}

// Transfer move uma vaga de from para to: reserva o destino e só então libera a origem.
func (s *Service) Transfer(ctx context.Context, from, to string) (err error) {
	ctx, span := tracing.Start(ctx, tracerName, "chamber.Transfer",
		attribute.String("chamber.from", from), attribute.String("chamber.to", to))
	defer func() { tracing.End(span, err) }()

	if from == to {
		return apperror.NewValidationError(fmt.Sprintf("A câmara de destino deve ser diferente da atual (%s).", from))
	}

	return s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := s.Reserve(ctx, to); err != nil {
			return err
		}
		_, err := s.Release(ctx, from)
		return err
	})
}

// Occupancy retorna a ocupação de todas as câmaras ou, com code, de uma única.
func (s *Service) Occupancy(ctx context.Context, code string) (result []domain.ChamberOccupancy, err error) {
	start := time.Now()
	ctx, span := tracing.Start(ctx, tracerName, "chamber.Occupancy", attribute.String("chamber.code", code))
	defer func() {
		tracing.End(span, err)
		s.metrics.ObserveOperation("chamber_occupancy", start, err)
	}()

	var chambers []domain.Chamber
	if code != "" {
		c, err := s.repo.Get(ctx, code)
		if err != nil {
			return nil, err
		}
		chambers = []domain.Chamber{c}
	} else {
		chambers, err = s.repo.List(ctx)
		if err != nil {
			return nil, err
		}
	}

	result = make([]domain.ChamberOccupancy, 0, len(chambers))
	for _, c := range chambers {
		s.metrics.SetChamberOccupancy(c.Code, c.CurrentOccupancy, c.Capacity)
		result = append(result, c.Occupancy())
	}
	return result, nil
}

// CreateChamber cadastra uma câmara ativa e vazia.
func (s *Service) CreateChamber(ctx context.Context, c domain.Chamber) (created domain.Chamber, err error) {
	start := time.Now()
	ctx, span := tracing.Start(ctx, tracerName, "chamber.Create", attribute.String("chamber.code", c.Code))
	defer func() {
		tracing.End(span, err)
		s.metrics.ObserveOperation("chamber_create", start, err)
	}()

	if err := s.validator.Struct(c); err != nil {
		return domain.Chamber{}, err
	}
	c.CurrentOccupancy = 0
	c.Active = true

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		created, err = s.repo.Create(ctx, c)
		if err != nil {
			return err
		}
		return s.audit.Append(ctx, domain.NewAuditEntry(ctx, domain.AuditChamberCreated, domain.EntityChamber, created.Code,
			map[string]any{"capacity": created.Capacity, "name": created.Name}, s.now()))
	})
	if err != nil {
		return domain.Chamber{}, apperror.Wrap(err, "Falha interna ao criar câmara.")
	}

	s.metrics.SetChamberOccupancy(created.Code, created.CurrentOccupancy, created.Capacity)
	s.logger.Info("Câmara criada com sucesso.", map[string]interface{}{"chamber_code": created.Code, "capacity": created.Capacity})
	return created, nil
}

// UpdateCapacity altera a capacidade. Nunca abaixo da ocupação atual.
func (s *Service) UpdateCapacity(ctx context.Context, code string, req domain.CapacityUpdateRequest) (updated domain.Chamber, err error) {
	start := time.Now()
	ctx, span := tracing.Start(ctx, tracerName, "chamber.UpdateCapacity",
		attribute.String("chamber.code", code), attribute.Int("chamber.capacity", req.Capacity))
	defer func() {
		tracing.End(span, err)
		s.metrics.ObserveOperation("chamber_update_capacity", start, err)
	}()

	if err := s.validator.Struct(req); err != nil {
		return domain.Chamber{}, err
	}

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		c, err := s.repo.GetForUpdate(ctx, code)
		if err != nil {
			return err
		}
		if req.Capacity < c.CurrentOccupancy {
			return apperror.NewPreconditionFailedError(apperror.ReasonCapacityBelowOccupancy,
				fmt.Sprintf("A câmara %s tem %d corpos; a capacidade não pode ser %d.", code, c.CurrentOccupancy, req.Capacity))
		}
		previous := c.Capacity
		c.Capacity = req.Capacity
		if updated, err = s.repo.Update(ctx, c); err != nil {
			return err
		}
		return s.audit.Append(ctx, domain.NewAuditEntry(ctx, domain.AuditChamberCapacityChanged, domain.EntityChamber, code,
			map[string]any{"from": previous, "to": req.Capacity}, s.now()))
	})
	if err != nil {
		return domain.Chamber{}, apperror.Wrap(err, "Falha interna ao alterar capacidade.")
	}

	s.metrics.SetChamberOccupancy(updated.Code, updated.CurrentOccupancy, updated.Capacity)
	s.logger.Info("Capacidade da câmara alterada.", map[string]interface{}{"chamber_code": code, "capacity": updated.Capacity})
	return updated, nil
}

// Deactivate impede novas reservas. Rejeitada enquanto houver corpos na câmara.
func (s *Service) Deactivate(ctx context.Context, code string) (domain.Chamber, error) {
	return s.setActive(ctx, code, false)
}

// Activate volta a aceitar reservas.
func (s *Service) Activate(ctx context.Context, code string) (domain.Chamber, error) {
	return s.setActive(ctx, code, true)
}

func (s *Service) setActive(ctx context.Context, code string, active bool) (updated domain.Chamber, err error) {
	operation, action := "chamber_activate", domain.AuditChamberActivated
	if !active {
		operation, action = "chamber_deactivate", domain.AuditChamberDeactivated
	}

	start := time.Now()
	ctx, span := tracing.Start(ctx, tracerName, "chamber.SetActive",
		attribute.String("chamber.code", code), attribute.Bool("chamber.active", active))
	defer func() {
		tracing.End(span, err)
		s.metrics.ObserveOperation(operation, start, err)
	}()

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		c, err := s.repo.GetForUpdate(ctx, code)
		if err != nil {
			return err
		}
		if c.Active == active {
			updated = c
			return nil
		}
		if !active && c.CurrentOccupancy > 0 {
			return apperror.NewPreconditionFailedError(apperror.ReasonChamberOccupied,
				fmt.Sprintf("A câmara %s ainda tem %d corpos.", code, c.CurrentOccupancy))
		}
		c.Active = active
		if updated, err = s.repo.Update(ctx, c); err != nil {
			return err
		}
		return s.audit.Append(ctx, domain.NewAuditEntry(ctx, action, domain.EntityChamber, code, nil, s.now()))
	})
	if err != nil {
		s.logger.Warn("Alteração de estado da câmara rejeitada.", map[string]interface{}{"chamber_code": code, "active": active, "error": err.Error()})
		return domain.Chamber{}, apperror.Wrap(err, "Falha interna ao alterar estado da câmara.")
	}

	s.logger.Info("Estado da câmara alterado.", map[string]interface{}{"chamber_code": code, "active": updated.Active})
	return updated, nil
}
