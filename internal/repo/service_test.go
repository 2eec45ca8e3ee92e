package repo

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/debrepod/debrepod/internal/config"
)

type fakeCreator struct {
	createCalls atomic.Int32
	failCreate  bool
}

func (f *fakeCreator) Initialize() error { return nil }

func (f *fakeCreator) Create(ctx context.Context, d string) error {
	f.createCalls.Add(1)
	if f.failCreate {
		return errors.New("boom")
	}
	return nil
}

type fakeSigner struct {
	signCalls atomic.Int32
	failSign  bool
}

func (f *fakeSigner) Initialize() error { return nil }

func (f *fakeSigner) Sign(d string) error {
	f.signCalls.Add(1)
	if f.failSign {
		return errors.New("boom")
	}
	return nil
}

func testService(t *testing.T, cfg *config.Config, cache *Cache, creator distributionCreator, signer distributionSigner) *Service {
	t.Helper()
	pool := pond.NewPool(2, pond.WithoutPanicRecovery())
	t.Cleanup(func() { pool.StopAndWait() })
	return newService(cfg, cache, creator, signer, NewWatcher(t.TempDir()), pool)
}

func TestService_Update_ClearsCacheOnSuccess(t *testing.T) {
	cfg := &config.Config{Distributions: []string{"stable"}}
	cache := NewCache()
	creator := &fakeCreator{}
	signer := &fakeSigner{}
	svc := testService(t, cfg, cache, creator, signer)

	require.NoError(t, svc.update(context.Background(), "stable"))
	assert.Equal(t, int32(1), creator.createCalls.Load())
	assert.Equal(t, int32(1), signer.signCalls.Load())
}

func TestService_Update_DiscardsCacheOnCreateFailure(t *testing.T) {
	cfg := &config.Config{Distributions: []string{"stable"}}
	cache := NewCache()
	creator := &fakeCreator{failCreate: true}
	signer := &fakeSigner{}
	svc := testService(t, cfg, cache, creator, signer)

	err := svc.update(context.Background(), "stable")
	require.Error(t, err)
	assert.Equal(t, int32(0), signer.signCalls.Load(), "signer must not run after a failed create")

	// update must have released the partition lock even on failure.
	done := make(chan struct{})
	go func() {
		cache.Lock("stable")
		cache.Unlock("stable")
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("partition lock was not released after a failed update")
	}
}

func TestService_Update_DiscardsCacheOnSignFailure(t *testing.T) {
	cfg := &config.Config{Distributions: []string{"stable"}}
	cache := NewCache()
	creator := &fakeCreator{}
	signer := &fakeSigner{failSign: true}
	svc := testService(t, cfg, cache, creator, signer)

	err := svc.update(context.Background(), "stable")
	require.Error(t, err)
	assert.Equal(t, int32(1), creator.createCalls.Load())
}

func TestService_HandleEvent_IgnoresUnconfiguredDistribution(t *testing.T) {
	cfg := &config.Config{Distributions: []string{"stable"}, TriggerDelay: 0.02}
	cache := NewCache()
	creator := &fakeCreator{}
	signer := &fakeSigner{}
	svc := testService(t, cfg, cache, creator, signer)

	svc.handleEvent(context.Background(), "unstable")

	svc.mu.Lock()
	_, tracked := svc.timers["unstable"]
	svc.mu.Unlock()
	assert.False(t, tracked)
}

func TestService_HandleEvent_DebouncesRepeatedEvents(t *testing.T) {
	cfg := &config.Config{Distributions: []string{"stable"}, TriggerDelay: 0.05}
	cache := NewCache()
	creator := &fakeCreator{}
	signer := &fakeSigner{}
	svc := testService(t, cfg, cache, creator, signer)

	svc.handleEvent(context.Background(), "stable")
	time.Sleep(10 * time.Millisecond)
	svc.handleEvent(context.Background(), "stable") // should reset, not trigger a second rebuild

	time.Sleep(200 * time.Millisecond)

	assert.Equal(t, int32(1), creator.createCalls.Load())
}
