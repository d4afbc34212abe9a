package stores

import (
	"testing"
	"time"

	"github.com/AtRiskMedia/splittest-go/internal/infrastructure/caching/types"
	"github.com/AtRiskMedia/splittest-go/internal/infrastructure/observability/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type activeSetBackend interface {
	GetActiveSetPart(tenantID, key string) ([]byte, bool, error)
	SetActiveSetPart(tenantID, key string, value []byte) error
	InvalidateActiveSet(tenantID string) error
	InitializeTenant(tenantID string)
	TenantIDs() []string
	Close() error
}

func activeSetBackends(t *testing.T) map[string]activeSetBackend {
	t.Helper()
	logger := logging.NewNopLogger()

	badgerStore, err := OpenBadgerActiveSetStore(BadgerConfig{InMemory: true}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = badgerStore.Close() })

	return map[string]activeSetBackend{
		"memory": NewActiveSetStore(logger),
		"badger": badgerStore,
	}
}

func TestActiveSetStoreRoundTrip(t *testing.T) {
	for name, store := range activeSetBackends(t) {
		t.Run(name, func(t *testing.T) {
			_, found, err := store.GetActiveSetPart("site-a", types.KeyCohortActiveUUIDs)
			require.NoError(t, err)
			assert.False(t, found)

			require.NoError(t, store.SetActiveSetPart("site-a", types.KeyCohortActiveUUIDs, []byte(`["c1"]`)))

			value, found, err := store.GetActiveSetPart("site-a", types.KeyCohortActiveUUIDs)
			require.NoError(t, err)
			assert.True(t, found)
			assert.Equal(t, `["c1"]`, string(value))

			// tenants are isolated
			_, found, err = store.GetActiveSetPart("site-b", types.KeyCohortActiveUUIDs)
			require.NoError(t, err)
			assert.False(t, found)
		})
	}
}

func TestActiveSetStoreInvalidate(t *testing.T) {
	for name, store := range activeSetBackends(t) {
		t.Run(name, func(t *testing.T) {
			store.InitializeTenant("site-a")
			for _, key := range types.ActiveSetKeys {
				require.NoError(t, store.SetActiveSetPart("site-a", key, []byte(`{}`)))
			}
			require.NoError(t, store.SetActiveSetPart("site-b", types.KeyExperimentActiveUUIDs, []byte(`[]`)))

			require.NoError(t, store.InvalidateActiveSet("site-a"))

			for _, key := range types.ActiveSetKeys {
				_, found, err := store.GetActiveSetPart("site-a", key)
				require.NoError(t, err)
				assert.False(t, found, key)
			}
			_, found, err := store.GetActiveSetPart("site-b", types.KeyExperimentActiveUUIDs)
			require.NoError(t, err)
			assert.True(t, found)
			assert.Contains(t, store.TenantIDs(), "site-a")
		})
	}
}

func TestMemoryActiveSetStoreReturnsCopies(t *testing.T) {
	store := NewActiveSetStore(nil)
	require.NoError(t, store.SetActiveSetPart("site-a", types.KeyExperimentActiveUUIDs, []byte(`["e1"]`)))

	value, _, _ := store.GetActiveSetPart("site-a", types.KeyExperimentActiveUUIDs)
	value[0] = 'X'

	again, _, _ := store.GetActiveSetPart("site-a", types.KeyExperimentActiveUUIDs)
	assert.Equal(t, `["e1"]`, string(again))
}

func TestBadgerRunGCInMemoryIsNoop(t *testing.T) {
	store, err := OpenBadgerActiveSetStore(BadgerConfig{InMemory: true}, nil)
	require.NoError(t, err)
	defer store.Close()

	rewrites, err := store.RunGC()
	require.NoError(t, err)
	assert.Equal(t, 0, rewrites)
}

func TestSessionsStoreIsolatesCopies(t *testing.T) {
	store := NewSessionsStore(logging.NewNopLogger())

	session := types.NewSessionData("01HSESSION")
	session.Values["split_tests"] = map[string]string{"exp1": "c1"}
	store.SetSession("site-a", session)

	loaded, found := store.GetSession("site-a", "01HSESSION")
	require.True(t, found)
	loaded.Values["split_tests"]["exp1"] = "mutated"

	again, _ := store.GetSession("site-a", "01HSESSION")
	assert.Equal(t, "c1", again.Values["split_tests"]["exp1"])

	_, found = store.GetSession("site-b", "01HSESSION")
	assert.False(t, found)
}

func TestSessionsStorePurgeExpired(t *testing.T) {
	store := NewSessionsStore(nil)
	store.SetSession("site-a", types.NewSessionData("fresh"))
	store.SetSession("site-a", types.NewSessionData("stale"))

	cache, _ := store.GetTenantCache("site-a")
	cache.Mu.Lock()
	cache.Sessions["stale"].LastActivity = time.Now().Add(-48 * time.Hour)
	cache.Mu.Unlock()

	purged := store.PurgeExpiredSessions("site-a", 24*time.Hour)

	assert.Equal(t, 1, purged)
	assert.Equal(t, 1, store.SessionCount("site-a"))
	_, found := store.GetSession("site-a", "fresh")
	assert.True(t, found)
}

func TestSessionsStoreDelete(t *testing.T) {
	store := NewSessionsStore(nil)
	store.SetSession("site-a", types.NewSessionData("s1"))
	store.DeleteSession("site-a", "s1")
	assert.Equal(t, 0, store.SessionCount("site-a"))
}
