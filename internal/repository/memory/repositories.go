package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"gomorgue/internal/domain"
	apperror "gomorgue/internal/errors"
)

// ChamberRepository é a versão em memória de chamberrepo.
type ChamberRepository struct {
	store *Store
}

func (r *ChamberRepository) Create(ctx context.Context, c domain.Chamber) (domain.Chamber, error) {
	err := r.store.with(ctx, func(st *state) error {
		if _, exists := st.chambers[c.Code]; exists {
			return apperror.NewConflictError(fmt.Sprintf("A câmara %s já existe.", c.Code))
		}
		if err := checkOccupancy(c); err != nil {
			return err
		}
		now := r.store.now()
		c.CreatedAt, c.UpdatedAt = now, now
		st.chambers[c.Code] = c
		return nil
	})
	if err != nil {
		return domain.Chamber{}, err
	}
	return c, nil
}

func (r *ChamberRepository) Get(ctx context.Context, code string) (domain.Chamber, error) {
	var c domain.Chamber
	err := r.store.with(ctx, func(st *state) error {
		found, ok := st.chambers[code]
		if !ok {
			return apperror.NewNotFoundError(fmt.Sprintf("Câmara %s não encontrada.", code))
		}
		c = found
		return nil
	})
	return c, err
}

// GetForUpdate equivale a Get: as transações em memória já são exclusivas.
func (r *ChamberRepository) GetForUpdate(ctx context.Context, code string) (domain.Chamber, error) {
	return r.Get(ctx, code)
}

func (r *ChamberRepository) List(ctx context.Context) ([]domain.Chamber, error) {
	var chambers []domain.Chamber
	err := r.store.with(ctx, func(st *state) error {
		chambers = make([]domain.Chamber, 0, len(st.chambers))
		for _, c := range st.chambers {
			chambers = append(chambers, c)
		}
		return nil
	})
	sort.Slice(chambers, func(i, j int) bool { return chambers[i].Code < chambers[j].Code })
	return chambers, err
}

func (r *ChamberRepository) Update(ctx context.Context, c domain.Chamber) (domain.Chamber, error) {
	err := r.store.with(ctx, func(st *state) error {
		current, ok := st.chambers[c.Code]
		if !ok {
			return apperror.NewNotFoundError(fmt.Sprintf("Câmara %s não encontrada.", c.Code))
		}
		if err := checkOccupancy(c); err != nil {
			return err
		}
		c.CreatedAt = current.CreatedAt
		c.UpdatedAt = r.store.now()
		st.chambers[c.Code] = c
		return nil
	})
	if err != nil {
		return domain.Chamber{}, err
	}
	return c, nil
}

// checkOccupancy reproduz a restrição CHECK da tabela chambers.
func checkOccupancy(c domain.Chamber) error {
	if c.Capacity <= 0 || c.CurrentOccupancy < 0 || c.CurrentOccupancy > c.Capacity {
		return apperror.NewInvariantViolationError(
			fmt.Sprintf("ocupação %d fora de [0, %d] na câmara %s", c.CurrentOccupancy, c.Capacity, c.Code))
	}
	return nil
}

// CaseRepository é a versão em memória de caserepo.
type CaseRepository struct {
	store *Store
}

// checkGuide reproduz a restrição guia-se-e-somente-se-RELEASED.
func checkGuide(c domain.RegistryCase) error {
	if (c.Status == domain.StatusReleased) != (c.ExitGuideNumber != nil) {
		return apperror.NewInvariantViolationError(
			fmt.Sprintf("caso %s com estado %s e guia inconsistentes", c.Code, c.Status))
	}
	return nil
}

func (r *CaseRepository) Create(ctx context.Context, c domain.RegistryCase) (domain.RegistryCase, error) {
	err := r.store.with(ctx, func(st *state) error {
		if _, exists := st.cases[c.Code]; exists {
			return apperror.NewInvariantViolationError(fmt.Sprintf("código de caso %s já utilizado", c.Code))
		}
		if _, ok := st.chambers[c.ChamberCode]; !ok {
			return apperror.NewNotFoundError(fmt.Sprintf("Câmara %s não encontrada.", c.ChamberCode))
		}
		if err := checkGuide(c); err != nil {
			return err
		}
		now := r.store.now()
		c.CreatedAt, c.UpdatedAt = now, now
		st.cases[c.Code] = cloneCase(c)
		return nil
	})
	if err != nil {
		return domain.RegistryCase{}, err
	}
	return c, nil
}

func (r *CaseRepository) Get(ctx context.Context, code string) (domain.RegistryCase, error) {
	var c domain.RegistryCase
	err := r.store.with(ctx, func(st *state) error {
		found, ok := st.cases[code]
		if !ok {
			return apperror.NewNotFoundError(fmt.Sprintf("Caso %s não encontrado.", code))
		}
		c = cloneCase(found)
		return nil
	})
	return c, err
}

// GetForUpdate equivale a Get: as transações em memória já são exclusivas.
func (r *CaseRepository) GetForUpdate(ctx context.Context, code string) (domain.RegistryCase, error) {
	return r.Get(ctx, code)
}

func (r *CaseRepository) Update(ctx context.Context, c domain.RegistryCase) (domain.RegistryCase, error) {
	err := r.store.with(ctx, func(st *state) error {
		current, ok := st.cases[c.Code]
		if !ok {
			return apperror.NewNotFoundError(fmt.Sprintf("Caso %s não encontrado.", c.Code))
		}
		if _, ok := st.chambers[c.ChamberCode]; !ok {
			return apperror.NewNotFoundError(fmt.Sprintf("Câmara %s não encontrada.", c.ChamberCode))
		}
		if err := checkGuide(c); err != nil {
			return err
		}
		// Campos imutáveis permanecem os da admissão.
		updated := current
		updated.ChamberCode = c.ChamberCode
		updated.Status = c.Status
		updated.DeathCertificateIssued = c.DeathCertificateIssued
		updated.ExitGuideNumber = c.ExitGuideNumber
		updated.ConservationStartedAt = c.ConservationStartedAt
		updated.ReleasedAt = c.ReleasedAt
		updated.Notes = c.Notes
		updated.UpdatedAt = r.store.now()
		st.cases[c.Code] = cloneCase(updated)
		c = updated
		return nil
	})
	if err != nil {
		return domain.RegistryCase{}, err
	}
	return c, nil
}

func (r *CaseRepository) List(ctx context.Context, filter domain.CaseFilter) ([]domain.RegistryCase, int, error) {
	filter = filter.Normalize()

	var matched []domain.RegistryCase
	err := r.store.with(ctx, func(st *state) error {
		for _, c := range st.cases {
			if filter.Status != "" && c.Status != filter.Status {
				continue
			}
			if filter.ChamberCode != "" && c.ChamberCode != filter.ChamberCode {
				continue
			}
			matched = append(matched, cloneCase(c))
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].AdmissionTime.Equal(matched[j].AdmissionTime) {
			return matched[i].AdmissionTime.After(matched[j].AdmissionTime)
		}
		return matched[i].Code > matched[j].Code
	})

	total := len(matched)
	start := filter.Offset()
	if start >= total {
		return []domain.RegistryCase{}, total, nil
	}
	end := start + filter.Limit
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func (r *CaseRepository) Stats(ctx context.Context, from, to time.Time) (domain.CaseStats, error) {
	stats := domain.NewEmptyCaseStats(from, to)
	var hoursSum float64

	err := r.store.with(ctx, func(st *state) error {
		for _, c := range st.cases {
			if c.AdmissionTime.Before(from) || !c.AdmissionTime.Before(to) {
				continue
			}
			stats.Total++
			stats.ByStatus[c.Status]++
			if hours, ok := c.ConservationHours(); ok {
				stats.ReleasedCount++
				hoursSum += hours
			}
		}
		return nil
	})
	if err != nil {
		return domain.CaseStats{}, err
	}

	if stats.ReleasedCount > 0 {
		stats.AverageConservationHours = hoursSum / float64(stats.ReleasedCount)
	}
	return stats, nil
}

// GuideRepository é a versão em memória de guiderepo.
type GuideRepository struct {
	store *Store
}

func (r *GuideRepository) Create(ctx context.Context, g domain.ExitGuide) (domain.ExitGuide, error) {
	err := r.store.with(ctx, func(st *state) error {
		if _, exists := st.guides[g.CaseCode]; exists {
			return apperror.NewAlreadyReleasedError(g.CaseCode)
		}
		for _, existing := range st.guides {
			if existing.Number == g.Number {
				return apperror.NewInvariantViolationError(fmt.Sprintf("número de guia %s já utilizado", g.Number))
			}
		}
		st.guides[g.CaseCode] = g
		return nil
	})
	if err != nil {
		return domain.ExitGuide{}, err
	}
	return g, nil
}

func (r *GuideRepository) GetByCase(ctx context.Context, caseCode string) (domain.ExitGuide, error) {
	var g domain.ExitGuide
	err := r.store.with(ctx, func(st *state) error {
		found, ok := st.guides[caseCode]
		if !ok {
			return apperror.NewNotFoundError(fmt.Sprintf("Guia de saída do caso %s não encontrada.", caseCode))
		}
		g = found
		return nil
	})
	return g, err
}

// Count retorna o número de guias emitidas.
func (r *GuideRepository) Count(ctx context.Context) int {
	var n int
	_ = r.store.with(ctx, func(st *state) error {
		n = len(st.guides)
		return nil
	})
	return n
}

// SequenceRepository é a versão em memória de sequencerepo.
type SequenceRepository struct {
	store *Store
}

func (r *SequenceRepository) Increment(ctx context.Context, kind domain.SequenceKind, year int) (int64, error) {
	var value int64
	err := r.store.with(ctx, func(st *state) error {
		key := sequenceKey{kind: kind, year: year}
		st.sequences[key]++
		value = st.sequences[key]
		return nil
	})
	return value, err
}

// AuditRepository é a versão em memória da outbox.
type AuditRepository struct {
	store *Store
}

func (r *AuditRepository) Append(ctx context.Context, entry domain.AuditEntry) error {
	return r.store.with(ctx, func(st *state) error {
		st.audit = append(st.audit, entry)
		return nil
	})
}

// Entries retorna uma cópia das entradas confirmadas.
func (r *AuditRepository) Entries(ctx context.Context) []domain.AuditEntry {
	var entries []domain.AuditEntry
	_ = r.store.with(ctx, func(st *state) error {
		entries = append([]domain.AuditEntry(nil), st.audit...)
		return nil
	})
	return entries
}
