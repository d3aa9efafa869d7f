package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gomorgue/internal/domain"
	apperror "gomorgue/internal/errors"
)

func seedChamber(t *testing.T, s *Store, code string, capacity int) {
	t.Helper()
	_, err := s.Chambers().Create(context.Background(), domain.Chamber{Code: code, Capacity: capacity, Active: true})
	require.NoError(t, err)
}

func TestRunInTx_CommitsOnSuccess(t *testing.T) {
	s := NewStore()
	seedChamber(t, s, "A", 2)

	err := s.RunInTx(context.Background(), func(ctx context.Context) error {
		c, err := s.Chambers().GetForUpdate(ctx, "A")
		if err != nil {
			return err
		}
		c.CurrentOccupancy++
		_, err = s.Chambers().Update(ctx, c)
		return err
	})

	require.NoError(t, err)
	c, err := s.Chambers().Get(context.Background(), "A")
	require.NoError(t, err)
	assert.Equal(t, 1, c.CurrentOccupancy)
}

func TestRunInTx_RollsBackOnError(t *testing.T) {
	s := NewStore()
	seedChamber(t, s, "A", 2)
	boom := errors.New("boom")

	err := s.RunInTx(context.Background(), func(ctx context.Context) error {
		c, _ := s.Chambers().GetForUpdate(ctx, "A")
		c.CurrentOccupancy = 2
		if _, err := s.Chambers().Update(ctx, c); err != nil {
			return err
		}
		if _, err := s.Sequences().Increment(ctx, domain.SequenceCase, 2026); err != nil {
			return err
		}
		return boom
	})

	assert.ErrorIs(t, err, boom)
	c, _ := s.Chambers().Get(context.Background(), "A")
	assert.Equal(t, 0, c.CurrentOccupancy)
	next, _ := s.Sequences().Increment(context.Background(), domain.SequenceCase, 2026)
	assert.Equal(t, int64(1), next)
}

func TestRunInTx_NestedCallJoinsOuter(t *testing.T) {
	s := NewStore()
	seedChamber(t, s, "A", 2)

	err := s.RunInTx(context.Background(), func(ctx context.Context) error {
		return s.RunInTx(ctx, func(inner context.Context) error {
			_, err := s.Sequences().Increment(inner, domain.SequenceGuide, 2026)
			return err
		})
	})

	require.NoError(t, err)
	next, _ := s.Sequences().Increment(context.Background(), domain.SequenceGuide, 2026)
	assert.Equal(t, int64(2), next)
}

func TestChamberUpdate_RejectsOccupancyAboveCapacity(t *testing.T) {
	s := NewStore()
	seedChamber(t, s, "A", 1)

	_, err := s.Chambers().Update(context.Background(), domain.Chamber{Code: "A", Capacity: 1, CurrentOccupancy: 2})

	var invariant *apperror.InvariantViolationError
	assert.ErrorAs(t, err, &invariant)
}

func TestChamberCreate_DuplicateIsConflict(t *testing.T) {
	s := NewStore()
	seedChamber(t, s, "A", 1)

	_, err := s.Chambers().Create(context.Background(), domain.Chamber{Code: "A", Capacity: 3})

	var conflict *apperror.ConflictError
	assert.ErrorAs(t, err, &conflict)
}

func TestCaseUpdate_GuideOnlyWhenReleased(t *testing.T) {
	s := NewStore()
	seedChamber(t, s, "A", 1)
	ctx := context.Background()
	_, err := s.Cases().Create(ctx, domain.RegistryCase{Code: "OB-2026-00001", ChamberCode: "A", Status: domain.StatusAdmitted})
	require.NoError(t, err)

	number := "GS-2026-00001"
	_, err = s.Cases().Update(ctx, domain.RegistryCase{Code: "OB-2026-00001", ChamberCode: "A", Status: domain.StatusAdmitted, ExitGuideNumber: &number})

	var invariant *apperror.InvariantViolationError
	assert.ErrorAs(t, err, &invariant)
}

func TestGuideCreate_SecondGuideIsAlreadyReleased(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	_, err := s.Guides().Create(ctx, domain.ExitGuide{Number: "GS-2026-00001", CaseCode: "OB-2026-00001"})
	require.NoError(t, err)

	_, err = s.Guides().Create(ctx, domain.ExitGuide{Number: "GS-2026-00002", CaseCode: "OB-2026-00001"})

	assert.Equal(t, apperror.ReasonAlreadyReleased, apperror.ReasonOf(err))
	assert.Equal(t, 1, s.Guides().Count(ctx))
}

func TestCaseList_OrdersAndPaginates(t *testing.T) {
	s := NewStore()
	seedChamber(t, s, "A", 5)
	seedChamber(t, s, "B", 5)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	for i, chamber := range []string{"A", "A", "B"} {
		_, err := s.Cases().Create(ctx, domain.RegistryCase{
			Code:          domain.FormatSequenceCode("OB", 2026, int64(i+1)),
			ChamberCode:   chamber,
			Status:        domain.StatusAdmitted,
			AdmissionTime: base.Add(time.Duration(i) * time.Hour),
		})
		require.NoError(t, err)
	}

	cases, total, err := s.Cases().List(ctx, domain.CaseFilter{ChamberCode: "A", Page: 1, Limit: 1})

	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, cases, 1)
	assert.Equal(t, "OB-2026-00002", cases[0].Code)

	cases, total, err = s.Cases().List(ctx, domain.CaseFilter{Page: 5, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Empty(t, cases)
}

func TestCaseStats_WindowAndAverage(t *testing.T) {
	s := NewStore()
	seedChamber(t, s, "A", 5)
	ctx := context.Background()
	admitted := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	released := admitted.Add(30 * time.Hour)
	number := "GS-2026-00001"

	_, err := s.Cases().Create(ctx, domain.RegistryCase{Code: "OB-2026-00001", ChamberCode: "A", Status: domain.StatusReleased,
		AdmissionTime: admitted, ExitGuideNumber: &number, ReleasedAt: &released})
	require.NoError(t, err)
	_, err = s.Cases().Create(ctx, domain.RegistryCase{Code: "OB-2026-00002", ChamberCode: "A", Status: domain.StatusAdmitted,
		AdmissionTime: admitted.AddDate(0, 1, 0)})
	require.NoError(t, err)

	stats, err := s.Cases().Stats(ctx, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC))

	require.NoError(t, err)
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 1, stats.ByStatus[domain.StatusReleased])
	assert.Equal(t, 0, stats.ByStatus[domain.StatusAdmitted])
	assert.Equal(t, 30.0, stats.AverageConservationHours)
}
