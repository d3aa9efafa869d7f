package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/sethvargo/go-retry"

	apperror "gomorgue/internal/errors"
	"gomorgue/internal/pkg/logger"
)

// SQLSTATE que indicam conflito de escrita entre transações concorrentes.
const (
	sqlStateSerializationFailure = "40001"
	sqlStateDeadlockDetected     = "40P01"
	sqlStateUniqueViolation      = "23505"
	sqlStateCheckViolation       = "23514"
)

// Transactor executa fn como uma única unidade atômica.
// Chamadas aninhadas (ctx já transacional) participam da transação externa.
type Transactor interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Querier é o subconjunto comum de *sql.DB e *sql.Tx usado pelos repositórios.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type txKey struct{}

// WithTx guarda a transação no contexto para os repositórios.
func WithTx(ctx context.Context, tx *sql.Tx) context.Context {
	if tx == nil {
		return ctx
	}
	return context.WithValue(ctx, txKey{}, tx)
}

// TxFrom extrai a transação do contexto, se houver.
func TxFrom(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(*sql.Tx)
	return tx, ok
}

// Conn retorna a transação do contexto ou, fora dela, o próprio pool.
func Conn(ctx context.Context, db *sql.DB) Querier {
	if tx, ok := TxFrom(ctx); ok {
		return tx
	}
	return db
}

// IsSerializationFailure informa se o erro é uma falha de serialização ou deadlock do PostgreSQL.
func IsSerializationFailure(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == sqlStateSerializationFailure || pqErr.Code == sqlStateDeadlockDetected
	}
	return false
}

// IsUniqueViolation informa se o erro é uma violação de chave única.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == sqlStateUniqueViolation
}

// IsCheckViolation informa se o erro é a violação de uma restrição CHECK.
func IsCheckViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == sqlStateCheckViolation
}

// TxManager abre transações SERIALIZABLE e repete as que falham por conflito.
type TxManager struct {
	db          *sql.DB
	maxAttempts int
	baseBackoff time.Duration
	logger      logger.Logger
}

// NewTxManager cria o gerenciador de transações. maxAttempts inclui a primeira tentativa.
func NewTxManager(db *sql.DB, maxAttempts int, baseBackoff time.Duration, log logger.Logger) *TxManager {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if baseBackoff <= 0 {
		baseBackoff = time.Millisecond
	}
	return &TxManager{db: db, maxAttempts: maxAttempts, baseBackoff: baseBackoff, logger: log}
}

// RunInTx executa fn numa transação SERIALIZABLE. Se ctx já carrega uma transação, fn
// roda nela sem commit próprio. Apenas falhas de serialização/deadlock são repetidas;
// esgotadas as tentativas, retorna ConcurrencyConflictError.
func (m *TxManager) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := TxFrom(ctx); ok {
		return fn(ctx)
	}

	backoff := retry.WithMaxRetries(uint64(m.maxAttempts-1), retry.NewExponential(m.baseBackoff))
	attempt := 0

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		err := m.runOnce(ctx, fn)
		if IsSerializationFailure(err) {
			m.logger.Warn("Conflito de serialização detectado. Repetindo transação.", map[string]interface{}{
				"attempt":      attempt,
				"max_attempts": m.maxAttempts,
			})
			return retry.RetryableError(err)
		}
		return err
	})

	if IsSerializationFailure(err) {
		m.logger.Warn("Tentativas de transação esgotadas.", map[string]interface{}{"attempts": attempt})
		return apperror.NewConcurrencyConflictError(
			fmt.Sprintf("transação abortada após %d tentativas por conflito de escrita", attempt), err)
	}
	return err
}

func (m *TxManager) runOnce(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	tx, err := m.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		if IsSerializationFailure(err) {
			return err
		}
		return apperror.NewDBError("Falha ao iniciar transação", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				m.logger.Error("Falha ao desfazer transação.", rbErr)
			}
		}
	}()

	if err = fn(WithTx(ctx, tx)); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		// O PostgreSQL pode rejeitar no commit uma transação serializável conflitante.
		if IsSerializationFailure(err) {
			return err
		}
		return apperror.NewDBError("Falha ao commitar transação", err)
	}
	return nil
}
