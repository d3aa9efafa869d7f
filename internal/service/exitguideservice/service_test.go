package exitguideservice_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"gomorgue/internal/domain"
	apperror "gomorgue/internal/errors"
	"gomorgue/internal/pkg/logger"
	"gomorgue/internal/pkg/metrics"
	"gomorgue/internal/pkg/validation"
	"gomorgue/internal/repository/memory"
	"gomorgue/internal/service/caseservice"
	"gomorgue/internal/service/chamberservice"
	"gomorgue/internal/service/exitguideservice"
	"gomorgue/internal/service/sequenceservice"
)

var fixedNow = time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)

var recipient = domain.Recipient{
	Name:         "João da Silva",
	Document:     "123.456.789-00",
	Relationship: "filho",
	Destination:  "Funerária Central",
}

// MockCaseLifecycle é uma implementação mock da interface CaseLifecycle
type MockCaseLifecycle struct {
	mock.Mock
}

func (m *MockCaseLifecycle) LoadForUpdate(ctx context.Context, code string) (domain.RegistryCase, error) {
	args := m.Called(ctx, code)
	return args.Get(0).(domain.RegistryCase), args.Error(1)
}

func (m *MockCaseLifecycle) Release(ctx context.Context, code, exitGuideNumber string) (domain.RegistryCase, error) {
	args := m.Called(ctx, code, exitGuideNumber)
	return args.Get(0).(domain.RegistryCase), args.Error(1)
}

type harness struct {
	store    *memory.Store
	cases    *caseservice.Service
	chambers *chamberservice.Service
	issuer   *exitguideservice.Service
	metrics  *metrics.Metrics
}

func newHarness(t *testing.T, chambers ...domain.Chamber) *harness {
	t.Helper()
	store := memory.NewStore()
	for _, c := range chambers {
		_, err := store.Chambers().Create(context.Background(), c)
		require.NoError(t, err)
	}
	log := logger.NewNop()
	v := validation.New()
	m := metrics.New(prometheus.NewRegistry())
	clock := func() time.Time { return fixedNow }

	chamberSvc := chamberservice.NewService(store, store.Chambers(), store.Audit(), m, v, log)
	sequences := sequenceservice.NewService(store, store.Sequences(), log)
	caseSvc := caseservice.NewService(caseservice.Deps{
		Tx: store, Repo: store.Cases(), Chambers: chamberSvc, Sequences: sequences,
		Audit: store.Audit(), Metrics: m, Validator: v, Logger: log,
	}, caseservice.WithClock(clock))
	issuer := exitguideservice.NewService(exitguideservice.Deps{
		Tx: store, Guides: store.Guides(), Cases: caseSvc, Sequences: sequences,
		Audit: store.Audit(), Metrics: m, Validator: v, Logger: log,
	}, exitguideservice.WithClock(clock))

	return &harness{store: store, cases: caseSvc, chambers: chamberSvc, issuer: issuer, metrics: m}
}

func (h *harness) occupancy(t *testing.T, code string) int {
	t.Helper()
	c, err := h.store.Chambers().Get(context.Background(), code)
	require.NoError(t, err)
	return c.CurrentOccupancy
}

func (h *harness) admit(t *testing.T, chamber string, certified bool) domain.RegistryCase {
	t.Helper()
	c, err := h.cases.Create(context.Background(), domain.CaseAdmission{
		DeceasedName: "Maria da Silva", ChamberCode: chamber, DeathCertificateIssued: certified,
	})
	require.NoError(t, err)
	return c
}

// --- Cenários ponta a ponta ---

func TestScenario_ThirdAdmissionExceedsCapacity(t *testing.T) {
	h := newHarness(t, domain.Chamber{Code: "A", Capacity: 2, Active: true})

	caseA := h.admit(t, "A", false)
	assert.Equal(t, fmt.Sprintf("OB-%d-00001", fixedNow.Year()), caseA.Code)
	assert.Equal(t, 1, h.occupancy(t, "A"))

	caseB := h.admit(t, "A", false)
	assert.Equal(t, fmt.Sprintf("OB-%d-00002", fixedNow.Year()), caseB.Code)
	assert.Equal(t, 2, h.occupancy(t, "A"))

	_, err := h.cases.Create(context.Background(), domain.CaseAdmission{DeceasedName: "José", ChamberCode: "A"})
	var capErr *apperror.CapacityExceededError
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, 2, h.occupancy(t, "A"))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.CapacityRejections.WithLabelValues("A")))
}

func TestScenario_IssueWithoutCertificateChangesNothing(t *testing.T) {
	h := newHarness(t, domain.Chamber{Code: "A", Capacity: 2, Active: true})
	c := h.admit(t, "A", false)

	_, err := h.issuer.Issue(context.Background(), c.Code, recipient)

	assert.Equal(t, apperror.ReasonCertificateNotIssued, apperror.ReasonOf(err))
	stored, err := h.cases.Get(context.Background(), c.Code)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAdmitted, stored.Status)
	assert.Nil(t, stored.ExitGuideNumber)
	assert.Equal(t, 1, h.occupancy(t, "A"))
	assert.Equal(t, 0, h.store.Guides().Count(context.Background()))
}

func TestScenario_IssueReleasesCaseAndSlot(t *testing.T) {
	h := newHarness(t, domain.Chamber{Code: "A", Capacity: 2, Active: true})
	h.admit(t, "A", false)
	c := h.admit(t, "A", true)
	require.Equal(t, 2, h.occupancy(t, "A"))

	ctx := domain.WithActor(context.Background(), "u-42")
	guide, err := h.issuer.Issue(ctx, c.Code, recipient)

	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("GS-%d-00001", fixedNow.Year()), guide.Number)
	assert.Equal(t, c.Code, guide.CaseCode)
	assert.Equal(t, "u-42", guide.IssuedBy)
	assert.True(t, guide.IssuedAt.Equal(fixedNow))

	stored, err := h.cases.Get(context.Background(), c.Code)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusReleased, stored.Status)
	require.NotNil(t, stored.ExitGuideNumber)
	assert.Equal(t, guide.Number, *stored.ExitGuideNumber)
	assert.Equal(t, 1, h.occupancy(t, "A"))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.CasesReleased))

	fetched, err := h.issuer.GetByCase(context.Background(), c.Code)
	require.NoError(t, err)
	assert.Equal(t, guide, fetched)

	var actions []domain.AuditAction
	for _, e := range h.store.Audit().Entries(context.Background()) {
		actions = append(actions, e.Action)
	}
	assert.Contains(t, actions, domain.AuditCaseReleased)
	assert.Contains(t, actions, domain.AuditExitGuideIssued)
}

func TestScenario_ChangeChamberBetweenSingleSlotChambers(t *testing.T) {
	h := newHarness(t,
		domain.Chamber{Code: "A", Capacity: 1, Active: true},
		domain.Chamber{Code: "B", Capacity: 1, Active: true},
	)
	c := h.admit(t, "A", false)

	_, err := h.cases.ChangeChamber(context.Background(), c.Code, domain.ChamberChangeRequest{ChamberCode: "B"})

	require.NoError(t, err)
	assert.Equal(t, 0, h.occupancy(t, "A"))
	assert.Equal(t, 1, h.occupancy(t, "B"))
}

// --- Propriedades ---

func TestIssue_SecondIssuanceIsAlreadyReleased(t *testing.T) {
	h := newHarness(t, domain.Chamber{Code: "A", Capacity: 2, Active: true})
	c := h.admit(t, "A", true)
	ctx := context.Background()

	_, err := h.issuer.Issue(ctx, c.Code, recipient)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err = h.issuer.Issue(ctx, c.Code, recipient)
		assert.Equal(t, apperror.ReasonAlreadyReleased, apperror.ReasonOf(err))
	}
	assert.Equal(t, 1, h.store.Guides().Count(ctx))
	assert.Equal(t, 0, h.occupancy(t, "A"))
}

func TestIssue_ConcurrentIssuanceCreatesOneGuide(t *testing.T) {
	h := newHarness(t, domain.Chamber{Code: "A", Capacity: 2, Active: true})
	c := h.admit(t, "A", true)

	const callers = 10
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		issued   int
		released int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.issuer.Issue(context.Background(), c.Code, recipient)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				issued++
			} else if apperror.ReasonOf(err) == apperror.ReasonAlreadyReleased {
				released++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, issued)
	assert.Equal(t, callers-1, released)
	assert.Equal(t, 1, h.store.Guides().Count(context.Background()))
	assert.Equal(t, 0, h.occupancy(t, "A"))
}

func TestIssue_GuideNumbersAreSequential(t *testing.T) {
	h := newHarness(t, domain.Chamber{Code: "A", Capacity: 3, Active: true})
	first := h.admit(t, "A", true)
	second := h.admit(t, "A", true)

	g1, err := h.issuer.Issue(context.Background(), first.Code, recipient)
	require.NoError(t, err)
	g2, err := h.issuer.Issue(context.Background(), second.Code, recipient)
	require.NoError(t, err)

	assert.Equal(t, fmt.Sprintf("GS-%d-00001", fixedNow.Year()), g1.Number)
	assert.Equal(t, fmt.Sprintf("GS-%d-00002", fixedNow.Year()), g2.Number)
}

func TestIssue_UnknownCaseIsNotFound(t *testing.T) {
	h := newHarness(t)

	_, err := h.issuer.Issue(context.Background(), "OB-2026-99999", recipient)

	var notFound *apperror.NotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestIssue_InvalidRecipientIsValidationError(t *testing.T) {
	cases := new(MockCaseLifecycle)
	svc := exitguideservice.NewService(exitguideservice.Deps{
		Tx: memory.NewStore(), Cases: cases, Validator: validation.New(), Logger: logger.NewNop(),
	})

	_, err := svc.Issue(context.Background(), "OB-2026-00001", domain.Recipient{Name: "João"})

	var validationErr *apperror.ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Contains(t, validationErr.Error(), "recipient_document")
	assert.Contains(t, validationErr.Error(), "destination")
	cases.AssertNotCalled(t, "LoadForUpdate", mock.Anything, mock.Anything)
}

func TestIssue_ReleaseFailureRollsBackGuideAndNumber(t *testing.T) {
	store := memory.NewStore()
	log := logger.NewNop()
	cases := new(MockCaseLifecycle)
	cases.On("LoadForUpdate", mock.Anything, "OB-2026-00001").
		Return(domain.RegistryCase{Code: "OB-2026-00001", Status: domain.StatusAwaitingDocumentation, DeathCertificateIssued: true}, nil)
	cases.On("Release", mock.Anything, "OB-2026-00001", mock.Anything).
		Return(domain.RegistryCase{}, apperror.NewInvariantViolationError("liberação de vaga na câmara vazia A"))

	svc := exitguideservice.NewService(exitguideservice.Deps{
		Tx: store, Guides: store.Guides(), Cases: cases,
		Sequences: sequenceservice.NewService(store, store.Sequences(), log),
		Audit:     store.Audit(), Validator: validation.New(), Logger: log,
	}, exitguideservice.WithClock(func() time.Time { return fixedNow }))

	_, err := svc.Issue(context.Background(), "OB-2026-00001", recipient)

	var invariant *apperror.InvariantViolationError
	require.True(t, errors.As(err, &invariant))
	assert.Equal(t, 0, store.Guides().Count(context.Background()))
	assert.Empty(t, store.Audit().Entries(context.Background()))
	next, err := store.Sequences().Increment(context.Background(), domain.SequenceGuide, fixedNow.Year())
	require.NoError(t, err)
	assert.Equal(t, int64(1), next)
}

func TestGetByCase_NotFound(t *testing.T) {
	h := newHarness(t, domain.Chamber{Code: "A", Capacity: 2, Active: true})
	c := h.admit(t, "A", true)

	_, err := h.issuer.GetByCase(context.Background(), c.Code)

	var notFound *apperror.NotFoundError
	assert.ErrorAs(t, err, &notFound)
}
