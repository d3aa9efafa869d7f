package sequenceservice_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"gomorgue/internal/domain"
	apperror "gomorgue/internal/errors"
	"gomorgue/internal/pkg/logger"
	"gomorgue/internal/repository/memory"
	"gomorgue/internal/service/sequenceservice"
)

// MockSequenceRepository é uma implementação mock da interface SequenceRepository
type MockSequenceRepository struct {
	mock.Mock
}

func (m *MockSequenceRepository) Increment(ctx context.Context, kind domain.SequenceKind, year int) (int64, error) {
	args := m.Called(ctx, kind, year)
	return args.Get(0).(int64), args.Error(1)
}

// passthroughTx executa fn sem transação real.
type passthroughTx struct{}

func (passthroughTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func TestNextCode_FormatsWithPrefixAndPadding(t *testing.T) {
	mockRepo := new(MockSequenceRepository)
	svc := sequenceservice.NewService(passthroughTx{}, mockRepo, logger.NewNop())
	mockRepo.On("Increment", mock.Anything, domain.SequenceGuide, 2026).Return(int64(42), nil)

	code, err := svc.NextCode(context.Background(), domain.SequenceGuide, 2026)

	require.NoError(t, err)
	assert.Equal(t, "GS-2026-00042", code)
	mockRepo.AssertExpectations(t)
}

func TestNext_RejectsUnknownKindAndInvalidYear(t *testing.T) {
	mockRepo := new(MockSequenceRepository)
	svc := sequenceservice.NewService(passthroughTx{}, mockRepo, logger.NewNop())

	_, err := svc.Next(context.Background(), domain.SequenceKind("invoice"), 2026)
	var validationErr *apperror.ValidationError
	assert.ErrorAs(t, err, &validationErr)

	_, err = svc.Next(context.Background(), domain.SequenceCase, 0)
	assert.ErrorAs(t, err, &validationErr)

	mockRepo.AssertNotCalled(t, "Increment", mock.Anything, mock.Anything, mock.Anything)
}

func TestNext_RepositoryFailureIsInternal(t *testing.T) {
	mockRepo := new(MockSequenceRepository)
	svc := sequenceservice.NewService(passthroughTx{}, mockRepo, logger.NewNop())
	mockRepo.On("Increment", mock.Anything, domain.SequenceCase, 2026).Return(int64(0), errors.New("conexão perdida"))

	_, err := svc.Next(context.Background(), domain.SequenceCase, 2026)

	var internal *apperror.InternalError
	assert.ErrorAs(t, err, &internal)
}

func TestNext_ConcurrentCallersGetDistinctValues(t *testing.T) {
	store := memory.NewStore()
	svc := sequenceservice.NewService(store, store.Sequences(), logger.NewNop())

	const callers = 50
	var (
		mu     sync.Mutex
		values = make(map[int64]struct{}, callers)
	)
	var g errgroup.Group
	for i := 0; i < callers; i++ {
		g.Go(func() error {
			v, err := svc.Next(context.Background(), domain.SequenceCase, 2026)
			if err != nil {
				return err
			}
			mu.Lock()
			values[v] = struct{}{}
			mu.Unlock()
			return nil
		})
	}

	require.NoError(t, g.Wait())
	assert.Len(t, values, callers)
	for v := int64(1); v <= callers; v++ {
		assert.Contains(t, values, v)
	}
}

func TestNext_YearsAreIndependent(t *testing.T) {
	store := memory.NewStore()
	svc := sequenceservice.NewService(store, store.Sequences(), logger.NewNop())
	ctx := context.Background()

	_, _ = svc.Next(ctx, domain.SequenceCase, 2025)
	_, _ = svc.Next(ctx, domain.SequenceCase, 2025)
	v, err := svc.Next(ctx, domain.SequenceCase, 2026)

	require.NoError(t, err)
	assert.Equal(t, int64(1), v)
}
