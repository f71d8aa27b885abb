package kvstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docuforge/docuforge/common/cryptox"
	"github.com/docuforge/docuforge/common/errdomain"
	"github.com/docuforge/docuforge/common/logger"
)

func newTestMemoryStore(t *testing.T, encrypted bool) *MemoryStore {
	t.Helper()
	var crypto *cryptox.Provider
	var keys *SessionKeys
	if encrypted {
		crypto = cryptox.NewProvider()
		keys = NewSessionKeys(crypto)
	}
	return NewMemoryStore("docuforge_", crypto, keys, logger.Discard())
}

func TestMemoryStorePutGet(t *testing.T) {
	ctx := context.Background()
	store := newTestMemoryStore(t, false)

	type payload struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}

	require.NoError(t, store.Put(ctx, "k1", payload{Name: "a", Count: 3}, nil))

	var out payload
	found, err := store.Get(ctx, "k1", &out)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, payload{Name: "a", Count: 3}, out)
}

func TestMemoryStoreGetMissing(t *testing.T) {
	ctx := context.Background()
	store := newTestMemoryStore(t, false)

	var out string
	found, err := store.Get(ctx, "absent", &out)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMemoryStoreExpiry(t *testing.T) {
	ctx := context.Background()
	store := newTestMemoryStore(t, false)

	require.NoError(t, store.Put(ctx, "ttl", "soon gone", &PutOptions{Expires: time.Millisecond}))
	time.Sleep(5 * time.Millisecond)

	var out string
	found, err := store.Get(ctx, "ttl", &out)
	require.NoError(t, err)
	assert.False(t, found, "expired record must read as absent")

	// The expired record is discarded on read.
	keys, err := store.Keys(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestMemoryStoreEncryptedRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestMemoryStore(t, true)

	require.NoError(t, store.Put(ctx, "secret", map[string]string{"token": "abc"}, nil))

	// Raw storage must not contain the plaintext token.
	store.mu.RLock()
	raw := string(store.data["docuforge_secret"])
	store.mu.RUnlock()
	assert.NotContains(t, raw, "abc")
	assert.Contains(t, raw, `"encrypted":true`)

	var out map[string]string
	found, err := store.Get(ctx, "secret", &out)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "abc", out["token"])
}

func TestMemoryStoreDecryptFailure(t *testing.T) {
	ctx := context.Background()
	writer := newTestMemoryStore(t, true)
	require.NoError(t, writer.Put(ctx, "sealed", "value", nil))

	// A reader with a different session key cannot decrypt the record.
	reader := newTestMemoryStore(t, true)
	reader.data = writer.data

	var out string
	_, err := reader.Get(ctx, "sealed", &out)
	require.Error(t, err)
	assert.ErrorIs(t, err, errdomain.ErrIntegrity)
}

func TestMemoryStoreClearIsPrefixScoped(t *testing.T) {
	ctx := context.Background()
	store := newTestMemoryStore(t, false)
	require.NoError(t, store.Put(ctx, "a", 1, nil))
	require.NoError(t, store.Put(ctx, "b", 2, nil))

	// A foreign key outside the prefix must survive Clear.
	store.mu.Lock()
	store.data["other_c"] = []byte(`{"value":3,"timestamp":0,"expires":null,"version":0}`)
	store.mu.Unlock()

	require.NoError(t, store.Clear(ctx))

	keys, err := store.Keys(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)

	store.mu.RLock()
	_, foreign := store.data["other_c"]
	store.mu.RUnlock()
	assert.True(t, foreign)
}

func TestMemoryStoreRemove(t *testing.T) {
	ctx := context.Background()
	store := newTestMemoryStore(t, false)
	require.NoError(t, store.Put(ctx, "k", "v", nil))
	require.NoError(t, store.Remove(ctx, "k"))

	var out string
	found, err := store.Get(ctx, "k", &out)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSessionKeyStableAcrossReads(t *testing.T) {
	keys := NewSessionKeys(cryptox.NewProvider())

	k1, err := keys.Key()
	require.NoError(t, err)
	k2, err := keys.Key()
	require.NoError(t, err)

	assert.Equal(t, k1, k2)
	assert.Len(t, k1, 32)
}
