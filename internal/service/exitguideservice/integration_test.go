//go:build integration

package exitguideservice_test

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"gomorgue/internal/domain"
	apperror "gomorgue/internal/errors"
	"gomorgue/internal/pkg/database"
	"gomorgue/internal/pkg/logger"
	"gomorgue/internal/pkg/metrics"
	"gomorgue/internal/pkg/validation"
	"gomorgue/internal/repository/auditrepo"
	"gomorgue/internal/repository/caserepo"
	"gomorgue/internal/repository/chamberrepo"
	"gomorgue/internal/repository/guiderepo"
	"gomorgue/internal/repository/sequencerepo"
	"gomorgue/internal/service/caseservice"
	"gomorgue/internal/service/chamberservice"
	"gomorgue/internal/service/exitguideservice"
	"gomorgue/internal/service/sequenceservice"
)

type pgStack struct {
	db        *sql.DB
	chambers  *chamberservice.Service
	cases     *caseservice.Service
	sequences *sequenceservice.Service
	issuer    *exitguideservice.Service
}

func newPostgres(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("gomorgue_test"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := database.NewPostgresDB(ctx, dsn, database.DefaultPoolConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, database.Migrate(ctx, db))
	return db
}

func newPgStack(t *testing.T) *pgStack {
	t.Helper()
	db := newPostgres(t)
	log := logger.NewNop()
	v := validation.New()
	m := metrics.New(prometheus.NewRegistry())
	timeout := 5 * time.Second

	tx := database.NewTxManager(db, 25, 5*time.Millisecond, log)
	audit := auditrepo.NewAuditRepository(db, timeout, log)
	chamberSvc := chamberservice.NewService(tx, chamberrepo.NewChamberRepository(db, timeout, log), audit, m, v, log)
	sequences := sequenceservice.NewService(tx, sequencerepo.NewSequenceRepository(db, timeout, log), log)
	caseSvc := caseservice.NewService(caseservice.Deps{
		Tx: tx, Repo: caserepo.NewCaseRepository(db, timeout, log), Chambers: chamberSvc, Sequences: sequences,
		Audit: audit, Metrics: m, Validator: v, Logger: log,
	})
	issuer := exitguideservice.NewService(exitguideservice.Deps{
		Tx: tx, Guides: guiderepo.NewGuideRepository(db, nil, timeout, time.Minute, log), Cases: caseSvc, Sequences: sequences,
		Audit: audit, Metrics: m, Validator: v, Logger: log,
	})
	return &pgStack{db: db, chambers: chamberSvc, cases: caseSvc, sequences: sequences, issuer: issuer}
}

func (s *pgStack) occupancy(t *testing.T, code string) int {
	t.Helper()
	occ, err := s.chambers.Occupancy(context.Background(), code)
	require.NoError(t, err)
	require.Len(t, occ, 1)
	return occ[0].CurrentOccupancy
}

func TestPostgres_AdmissionAndReleaseLifecycle(t *testing.T) {
	s := newPgStack(t)
	ctx := context.Background()

	_, err := s.chambers.CreateChamber(ctx, domain.Chamber{Code: "A", Name: "Câmara A", Capacity: 2})
	require.NoError(t, err)

	caseA, err := s.cases.Create(ctx, domain.CaseAdmission{DeceasedName: "Maria", ChamberCode: "A"})
	require.NoError(t, err)
	_, err = s.cases.Create(ctx, domain.CaseAdmission{DeceasedName: "José", ChamberCode: "A", DeathCertificateIssued: true})
	require.NoError(t, err)

	_, err = s.cases.Create(ctx, domain.CaseAdmission{DeceasedName: "Ana", ChamberCode: "A"})
	var capErr *apperror.CapacityExceededError
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, 2, s.occupancy(t, "A"))

	recipient := domain.Recipient{Name: "João", Document: "123", Destination: "Funerária Central"}
	_, err = s.issuer.Issue(ctx, caseA.Code, recipient)
	var pre *apperror.PreconditionFailedError
	require.ErrorAs(t, err, &pre)
	assert.Equal(t, apperror.ReasonCertificateNotIssued, pre.Reason)

	_, err = s.cases.RecordDeathCertificate(ctx, caseA.Code)
	require.NoError(t, err)

	guide, err := s.issuer.Issue(ctx, caseA.Code, recipient)
	require.NoError(t, err)
	assert.Equal(t, caseA.Code, guide.CaseCode)
	assert.Equal(t, 1, s.occupancy(t, "A"))

	released, err := s.cases.Get(ctx, caseA.Code)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusReleased, released.Status)
	require.NotNil(t, released.ExitGuideNumber)
	assert.Equal(t, guide.Number, *released.ExitGuideNumber)

	_, err = s.issuer.Issue(ctx, caseA.Code, recipient)
	require.ErrorAs(t, err, &pre)
	assert.Equal(t, apperror.ReasonAlreadyReleased, pre.Reason)

	var auditCount int
	require.NoError(t, s.db.QueryRowContext(ctx, `SELECT count(*) FROM audit_outbox`).Scan(&auditCount))
	assert.Equal(t, 6, auditCount) // câmara, 2 admissões, certidão, liberação, guia
}

func TestPostgres_ConcurrentSequenceValuesAreDistinct(t *testing.T) {
	s := newPgStack(t)
	ctx := context.Background()

	const callers = 8
	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		values = make(map[int64]bool)
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := s.sequences.Next(ctx, domain.SequenceCase, 2026)
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			values[v] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, values, callers)
	for i := int64(1); i <= callers; i++ {
		assert.True(t, values[i], "valor %d ausente", i)
	}
}
