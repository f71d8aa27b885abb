package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docuforge/docuforge/common/errdomain"
	"github.com/docuforge/docuforge/common/kvstore"
	"github.com/docuforge/docuforge/common/logger"
)

// countingStore observes writes without changing store semantics.
type countingStore struct {
	kvstore.Store
	mu   sync.Mutex
	puts int
}

func (c *countingStore) Put(ctx context.Context, key string, value any, opts *kvstore.PutOptions) error {
	c.mu.Lock()
	c.puts++
	c.mu.Unlock()
	return c.Store.Put(ctx, key, value, opts)
}

func (c *countingStore) putCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.puts
}

func newTestAppState(t *testing.T) (*AppState, *countingStore) {
	t.Helper()
	kv := &countingStore{Store: newTestKV()}
	return NewAppState(kv, newTestBus(), logger.Discard()), kv
}

func TestAppStatePersistedKeyWritesOnce(t *testing.T) {
	ctx := context.Background()
	state, kv := newTestAppState(t)

	require.NoError(t, state.Set(ctx, "compressionLevel", "high"))
	assert.Equal(t, 1, kv.putCount())
	assert.Equal(t, "high", state.Get("compressionLevel"))
}

func TestAppStateSessionKeyNeverPersists(t *testing.T) {
	ctx := context.Background()
	state, kv := newTestAppState(t)

	require.NoError(t, state.Set(ctx, "currentFileId", "f1"))
	assert.Equal(t, 0, kv.putCount())
	assert.Equal(t, "f1", state.Get("currentFileId"))
}

func TestAppStateEqualValueIsNoOp(t *testing.T) {
	ctx := context.Background()
	state, kv := newTestAppState(t)

	fired := 0
	state.Subscribe("theme", func(key string, value, oldValue any) { fired++ })

	require.NoError(t, state.Set(ctx, "theme", "light"))
	assert.Equal(t, 0, fired)
	assert.Equal(t, 0, kv.putCount())
}

func TestAppStateUpdatePersistsOncePerCall(t *testing.T) {
	ctx := context.Background()
	state, kv := newTestAppState(t)

	require.NoError(t, state.Update(ctx, map[string]any{
		"theme":            "dark",
		"compressionLevel": "maximum",
		"imageQuality":     60,
	}))
	assert.Equal(t, 1, kv.putCount())
}

func TestAppStateListenerSeesOldAndNewValue(t *testing.T) {
	ctx := context.Background()
	state, _ := newTestAppState(t)

	var gotValue, gotOld any
	state.Subscribe("theme", func(key string, value, oldValue any) {
		gotValue, gotOld = value, oldValue
	})

	require.NoError(t, state.Set(ctx, "theme", "dark"))
	assert.Equal(t, "dark", gotValue)
	assert.Equal(t, "light", gotOld)
}

func TestAppStateWildcardListener(t *testing.T) {
	ctx := context.Background()
	state, _ := newTestAppState(t)

	var keys []string
	state.Subscribe("*", func(key string, value, oldValue any) {
		keys = append(keys, key)
	})

	require.NoError(t, state.Set(ctx, "theme", "dark"))
	require.NoError(t, state.Set(ctx, "language", "de"))
	assert.Equal(t, []string{"theme", "language"}, keys)
}

func TestAppStateUnsubscribeStopsDelivery(t *testing.T) {
	ctx := context.Background()
	state, _ := newTestAppState(t)

	fired := 0
	unsubscribe := state.Subscribe("theme", func(key string, value, oldValue any) { fired++ })

	require.NoError(t, state.Set(ctx, "theme", "dark"))
	unsubscribe()
	require.NoError(t, state.Set(ctx, "theme", "light"))

	assert.Equal(t, 1, fired)
}

func TestAppStateBulkModeRequiresTier(t *testing.T) {
	ctx := context.Background()
	state, _ := newTestAppState(t)

	err := state.SetProcessingMode(ctx, "bulk")
	assert.ErrorIs(t, err, errdomain.ErrUpgradeRequired)
	assert.Equal(t, "single", state.Get("processingMode"))

	require.NoError(t, state.Set(ctx, "userTier", "pro"))
	require.NoError(t, state.SetProcessingMode(ctx, "bulk"))
	assert.Equal(t, "bulk", state.Get("processingMode"))
}

func TestAppStateUnknownProcessingMode(t *testing.T) {
	ctx := context.Background()
	state, _ := newTestAppState(t)

	err := state.SetProcessingMode(ctx, "turbo")
	assert.Equal(t, errdomain.KindValidation, errdomain.KindOf(err))
}

func TestAppStateInitRestoresPersistedSettings(t *testing.T) {
	ctx := context.Background()
	kv := newTestKV()
	b := newTestBus()

	first := NewAppState(kv, b, logger.Discard())
	require.NoError(t, first.Update(ctx, map[string]any{
		"theme":           "dark",
		"currentFileId":   "f1",
		"isAuthenticated": true,
	}))

	second := NewAppState(kv, b, logger.Discard())
	require.NoError(t, second.Init(ctx))

	assert.Equal(t, "dark", second.Get("theme"))
	// Session-local keys reset with the process.
	assert.Nil(t, second.Get("currentFileId"))
	assert.Equal(t, false, second.Get("isAuthenticated"))
}

func TestAppStateSnapshotIsACopy(t *testing.T) {
	state, _ := newTestAppState(t)

	snap := state.Snapshot()
	snap["theme"] = "mutated"

	assert.Equal(t, "light", state.Get("theme"))
}
