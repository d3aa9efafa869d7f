// Package memory implementa os repositórios e o Transactor em memória, para testes
// e execuções com STORAGE_DRIVER=memory.
package memory

import (
	"context"
	"sync"
	"time"

	"gomorgue/internal/domain"
	"gomorgue/internal/pkg/database"
)

var _ database.Transactor = (*Store)(nil)

type sequenceKey struct {
	kind domain.SequenceKind
	year int
}

type state struct {
	chambers  map[string]domain.Chamber
	cases     map[string]domain.RegistryCase
	guides    map[string]domain.ExitGuide // por código do caso
	sequences map[sequenceKey]int64
	audit     []domain.AuditEntry
}

func newState() state {
	return state{
		chambers:  make(map[string]domain.Chamber),
		cases:     make(map[string]domain.RegistryCase),
		guides:    make(map[string]domain.ExitGuide),
		sequences: make(map[sequenceKey]int64),
	}
}

func (s state) clone() state {
	c := state{
		chambers:  make(map[string]domain.Chamber, len(s.chambers)),
		cases:     make(map[string]domain.RegistryCase, len(s.cases)),
		guides:    make(map[string]domain.ExitGuide, len(s.guides)),
		sequences: make(map[sequenceKey]int64, len(s.sequences)),
		audit:     append([]domain.AuditEntry(nil), s.audit...),
	}
	for k, v := range s.chambers {
		c.chambers[k] = v
	}
	for k, v := range s.cases {
		c.cases[k] = cloneCase(v)
	}
	for k, v := range s.guides {
		c.guides[k] = v
	}
	for k, v := range s.sequences {
		c.sequences[k] = v
	}
	return c
}

func cloneCase(c domain.RegistryCase) domain.RegistryCase {
	if c.ExitGuideNumber != nil {
		n := *c.ExitGuideNumber
		c.ExitGuideNumber = &n
	}
	if c.ConservationStartedAt != nil {
		t := *c.ConservationStartedAt
		c.ConservationStartedAt = &t
	}
	if c.ReleasedAt != nil {
		t := *c.ReleasedAt
		c.ReleasedAt = &t
	}
	return c
}

// Store guarda todo o estado atrás de um único mutex. Transações trabalham sobre uma
// cópia do estado, que substitui o original apenas se fn retornar nil.
type Store struct {
	mu    sync.Mutex
	state state
	now   func() time.Time
}

// NewStore cria um Store vazio.
func NewStore() *Store {
	return &Store{state: newState(), now: time.Now}
}

type txKey struct{}

type txState struct {
	store *Store
	st    *state
}

func (s *Store) txFrom(ctx context.Context) *state {
	ts, ok := ctx.Value(txKey{}).(*txState)
	if !ok || ts.store != s {
		return nil
	}
	return ts.st
}

// RunInTx serializa as transações do Store. Chamadas aninhadas participam da externa.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.txFrom(ctx) != nil {
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	working := s.state.clone()
	if err := fn(context.WithValue(ctx, txKey{}, &txState{store: s, st: &working})); err != nil {
		return err
	}
	s.state = working
	return nil
}

// with executa fn sobre o estado da transação do contexto ou, fora dela, sobre o estado
// confirmado com o mutex adquirido.
func (s *Store) with(ctx context.Context, fn func(st *state) error) error {
	if st := s.txFrom(ctx); st != nil {
		return fn(st)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&s.state)
}

// Chambers retorna o repositório de câmaras.
func (s *Store) Chambers() *ChamberRepository { return &ChamberRepository{store: s} }

// Cases retorna o repositório de casos.
func (s *Store) Cases() *CaseRepository { return &CaseRepository{store: s} }

// Guides retorna o repositório de guias de saída.
func (s *Store) Guides() *GuideRepository { return &GuideRepository{store: s} }

// Sequences retorna o repositório de contadores.
func (s *Store) Sequences() *SequenceRepository { return &SequenceRepository{store: s} }

// Audit retorna a outbox de auditoria.
func (s *Store) Audit() *AuditRepository { return &AuditRepository{store: s} }
