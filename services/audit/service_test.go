package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/upb/model-router/models"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

// MockStore is a mock implementation of Store
type MockStore struct {
	mock.Mock
	mu       sync.Mutex
	inserted []*models.GenerationRecord
}

func (m *MockStore) Insert(ctx context.Context, rec *models.GenerationRecord) error {
	args := m.Called(ctx, rec)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.inserted = append(m.inserted, rec)
	return args.Error(0)
}

func (m *MockStore) Inserted() []*models.GenerationRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*models.GenerationRecord(nil), m.inserted...)
}

// blockingStore holds every insert until release is closed
type blockingStore struct {
	entered chan struct{}
	release chan struct{}
}

func (b *blockingStore) Insert(ctx context.Context, rec *models.GenerationRecord) error {
	b.entered <- struct{}{}
	<-b.release
	return nil
}

func newRecord(id string) *models.GenerationRecord {
	rec := models.NewGenerationRecord(id, "openai__gpt-4", 10)
	rec.MarkAsSucceeded("openai__gpt-4", 1, 1, time.Millisecond)
	return rec
}

func TestAuditService_StartStop(t *testing.T) {
	store := new(MockStore)
	service := NewAuditService(store, zaptest.NewLogger(t), Config{BufferSize: 10, WorkerCount: 2})

	require.NoError(t, service.Start())

	stats := service.GetStats()
	assert.True(t, stats.Started)
	assert.Equal(t, 2, stats.WorkerCount)
	assert.Equal(t, 10, stats.BufferSize)

	// Cannot start again
	assert.Error(t, service.Start())

	require.NoError(t, service.Stop(5*time.Second))
	assert.False(t, service.GetStats().Started)

	// Cannot stop twice or restart
	assert.ErrorIs(t, service.Stop(time.Second), ErrNotStarted)
	assert.Error(t, service.Start())
}

func TestAuditService_DefaultsApplied(t *testing.T) {
	service := NewAuditService(new(MockStore), zap.NewNop(), Config{})

	stats := service.GetStats()
	assert.Equal(t, DefaultConfig().BufferSize, stats.BufferSize)
	assert.Equal(t, DefaultConfig().WorkerCount, stats.WorkerCount)
}

func TestAuditService_RecordBeforeStart(t *testing.T) {
	service := NewAuditService(new(MockStore), zap.NewNop(), DefaultConfig())

	assert.ErrorIs(t, service.Record(newRecord("req")), ErrNotStarted)
}

func TestAuditService_RecordAfterStop(t *testing.T) {
	service := NewAuditService(new(MockStore), zap.NewNop(), DefaultConfig())
	require.NoError(t, service.Start())
	require.NoError(t, service.Stop(time.Second))

	assert.ErrorIs(t, service.Record(newRecord("req")), ErrNotStarted)
}

func TestAuditService_Record(t *testing.T) {
	store := new(MockStore)
	store.On("Insert", mock.Anything, mock.Anything).Return(nil)

	service := NewAuditService(store, zaptest.NewLogger(t), Config{BufferSize: 100, WorkerCount: 2})
	require.NoError(t, service.Start())

	require.NoError(t, service.Record(newRecord("req-1")))

	// Stop drains the buffer
	require.NoError(t, service.Stop(5*time.Second))

	inserted := store.Inserted()
	require.Len(t, inserted, 1)
	assert.Equal(t, "req-1", inserted[0].RequestID)
	assert.Equal(t, int64(1), service.GetStats().Written)
	store.AssertExpectations(t)
}

func TestAuditService_MultipleRecords(t *testing.T) {
	store := new(MockStore)
	store.On("Insert", mock.Anything, mock.Anything).Return(nil)

	service := NewAuditService(store, zap.NewNop(), Config{BufferSize: 100, WorkerCount: 3})
	require.NoError(t, service.Start())

	const count = 50
	for i := 0; i < count; i++ {
		require.NoError(t, service.Record(newRecord("")))
	}

	require.NoError(t, service.Stop(5*time.Second))
	assert.Len(t, store.Inserted(), count)
	assert.Equal(t, int64(count), service.GetStats().Written)
}

func TestAuditService_ConcurrentRecording(t *testing.T) {
	store := new(MockStore)
	store.On("Insert", mock.Anything, mock.Anything).Return(nil)

	service := NewAuditService(store, zap.NewNop(), Config{BufferSize: 1000, WorkerCount: 5})
	require.NoError(t, service.Start())

	var wg sync.WaitGroup
	for g := 0; g < 10; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				_ = service.Record(newRecord(""))
			}
		}()
	}
	wg.Wait()

	require.NoError(t, service.Stop(5*time.Second))
	assert.Len(t, store.Inserted(), 200)
}

func TestAuditService_StoreFailureCounted(t *testing.T) {
	store := new(MockStore)
	store.On("Insert", mock.Anything, mock.Anything).Return(errors.New("connection refused"))

	service := NewAuditService(store, zap.NewNop(), Config{BufferSize: 10, WorkerCount: 1})
	require.NoError(t, service.Start())

	require.NoError(t, service.Record(newRecord("req-1")))
	require.NoError(t, service.Stop(5*time.Second))

	stats := service.GetStats()
	assert.Equal(t, int64(1), stats.Failed)
	assert.Zero(t, stats.Written)
}

func TestAuditService_BufferFullDrops(t *testing.T) {
	store := &blockingStore{entered: make(chan struct{}, 1), release: make(chan struct{})}
	service := NewAuditService(store, zap.NewNop(), Config{BufferSize: 1, WorkerCount: 1})
	require.NoError(t, service.Start())

	// First record occupies the only worker
	require.NoError(t, service.Record(newRecord("req-1")))
	<-store.entered

	// Second fills the buffer, third is dropped
	require.NoError(t, service.Record(newRecord("req-2")))
	assert.ErrorIs(t, service.Record(newRecord("req-3")), ErrBufferFull)
	assert.Equal(t, int64(1), service.GetStats().Dropped)

	close(store.release)
	require.NoError(t, service.Stop(5*time.Second))
	assert.Equal(t, int64(2), service.GetStats().Written)
}

func TestAuditService_StopTimeout(t *testing.T) {
	store := &blockingStore{entered: make(chan struct{}, 1), release: make(chan struct{})}
	service := NewAuditService(store, zap.NewNop(), Config{BufferSize: 1, WorkerCount: 1})
	require.NoError(t, service.Start())

	require.NoError(t, service.Record(newRecord("req-1")))
	<-store.entered

	err := service.Stop(20 * time.Millisecond)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "timeout")

	close(store.release)
}
