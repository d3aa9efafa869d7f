package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperror "gomorgue/internal/errors"
	"gomorgue/internal/pkg/logger"
)

func newTestManager(t *testing.T, attempts int) (*TxManager, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewTxManager(db, attempts, time.Millisecond, logger.NewNop()), mock
}

func serializationFailure() error {
	return &pq.Error{Code: "40001", Message: "could not serialize access due to concurrent update"}
}

func TestRunInTx_CommitsOnSuccess(t *testing.T) {
	m, mock := newTestManager(t, 3)
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE chambers").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := m.RunInTx(context.Background(), func(ctx context.Context) error {
		tx, ok := TxFrom(ctx)
		require.True(t, ok)
		_, err := tx.ExecContext(ctx, "UPDATE chambers SET current_occupancy = 1")
		return err
	})

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunInTx_RollsBackBusinessErrorWithoutRetry(t *testing.T) {
	m, mock := newTestManager(t, 3)
	mock.ExpectBegin()
	mock.ExpectRollback()

	calls := 0
	err := m.RunInTx(context.Background(), func(ctx context.Context) error {
		calls++
		return apperror.NewCapacityExceededError("A", 2)
	})

	var capErr *apperror.CapacityExceededError
	assert.ErrorAs(t, err, &capErr)
	assert.Equal(t, 1, calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunInTx_RetriesSerializationFailure(t *testing.T) {
	m, mock := newTestManager(t, 3)
	mock.ExpectBegin()
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectCommit()

	calls := 0
	err := m.RunInTx(context.Background(), func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return apperror.NewDBError("Falha ao reservar vaga", serializationFailure())
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunInTx_RetriesConflictOnCommit(t *testing.T) {
	m, mock := newTestManager(t, 2)
	mock.ExpectBegin()
	mock.ExpectCommit().WillReturnError(serializationFailure())
	mock.ExpectBegin()
	mock.ExpectCommit()

	calls := 0
	err := m.RunInTx(context.Background(), func(ctx context.Context) error {
		calls++
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunInTx_ExhaustedRetriesBecomeConcurrencyConflict(t *testing.T) {
	m, mock := newTestManager(t, 3)
	for i := 0; i < 3; i++ {
		mock.ExpectBegin()
		mock.ExpectRollback()
	}

	calls := 0
	err := m.RunInTx(context.Background(), func(ctx context.Context) error {
		calls++
		return &pq.Error{Code: "40P01", Message: "deadlock detected"}
	})

	var conflict *apperror.ConcurrencyConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, 3, calls)
	assert.True(t, IsSerializationFailure(conflict.Unwrap()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunInTx_NestedCallJoinsOuterTransaction(t *testing.T) {
	m, mock := newTestManager(t, 3)
	mock.ExpectBegin()
	mock.ExpectCommit()

	err := m.RunInTx(context.Background(), func(ctx context.Context) error {
		outer, _ := TxFrom(ctx)
		return m.RunInTx(ctx, func(inner context.Context) error {
			tx, ok := TxFrom(inner)
			assert.True(t, ok)
			assert.Same(t, outer, tx)
			return nil
		})
	})

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunInTx_BeginFailureIsDBError(t *testing.T) {
	m, mock := newTestManager(t, 3)
	mock.ExpectBegin().WillReturnError(errors.New("connection refused"))

	err := m.RunInTx(context.Background(), func(ctx context.Context) error { return nil })

	var internal *apperror.InternalError
	assert.ErrorAs(t, err, &internal)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConn_PrefersTransactionFromContext(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	assert.Equal(t, Querier(db), Conn(context.Background(), db))

	mock.ExpectBegin()
	tx, err := db.Begin()
	require.NoError(t, err)
	assert.Equal(t, Querier(tx), Conn(WithTx(context.Background(), tx), db))
}

func TestIsSerializationFailure(t *testing.T) {
	assert.True(t, IsSerializationFailure(serializationFailure()))
	assert.True(t, IsSerializationFailure(apperror.NewDBError("x", &pq.Error{Code: "40P01"})))
	assert.False(t, IsSerializationFailure(&pq.Error{Code: "23505"}))
	assert.False(t, IsSerializationFailure(errors.New("boom")))
	assert.False(t, IsSerializationFailure(nil))
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, IsUniqueViolation(&pq.Error{Code: "23505"}))
	assert.False(t, IsUniqueViolation(serializationFailure()))
	assert.False(t, IsUniqueViolation(errors.New("boom")))
	assert.True(t, IsCheckViolation(&pq.Error{Code: "23514"}))
	assert.False(t, IsCheckViolation(&pq.Error{Code: "23505"}))
}
