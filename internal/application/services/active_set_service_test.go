package services

import (
	"testing"

	"github.com/AtRiskMedia/splittest-go/internal/infrastructure/caching/types"
	"github.com/AtRiskMedia/splittest-go/internal/infrastructure/observability/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRebuildExcludesInactiveExperiments(t *testing.T) {
	f := newFixture(t)
	svc := NewActiveSetService(logging.NewNopLogger())

	live := f.experiment(t, "live", true)
	a := f.cohort(t, live, "a", 1, true)
	off := f.cohort(t, live, "off", 1, false)
	paused := f.experiment(t, "paused", false)
	pausedCohort := f.cohort(t, paused, "p", 1, true)

	snapshot, err := svc.Rebuild(f.ctx, f.tc)
	require.NoError(t, err)

	assert.Equal(t, []string{live.UUID}, snapshot.ExperimentActiveUUIDs.Sorted())
	assert.Equal(t, []string{a.UUID}, snapshot.CohortActiveUUIDs.Sorted())
	assert.Equal(t, map[string]string{a.UUID: live.UUID}, snapshot.CohortUUIDExperimentUUIDMap)
	assert.NotContains(t, snapshot.CohortUUIDSlugMap, off.UUID)
	assert.NotContains(t, snapshot.CohortUUIDSlugMap, pausedCohort.UUID)

	for _, key := range types.ActiveSetKeys {
		_, found, err := f.tc.CacheManager.GetActiveSetPart(f.tc.TenantID, key)
		require.NoError(t, err)
		assert.True(t, found, key)
	}
}

func TestAccessorRebuildsOnMiss(t *testing.T) {
	f := newFixture(t)
	svc := NewActiveSetService(logging.NewNopLogger())

	exp := f.experiment(t, "homepage", true)
	f.cohort(t, exp, "blue", 1, true)

	slugs, err := svc.ExperimentUUIDSlugMap(f.ctx, f.tc)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{exp.UUID: "homepage"}, slugs)

	// the miss rebuilt every part, not only the one asked for
	_, found, err := f.tc.CacheManager.GetActiveSetPart(f.tc.TenantID, types.KeyCohortActiveUUIDs)
	require.NoError(t, err)
	assert.True(t, found)
}

func TestAccessorRebuildsUndecodablePart(t *testing.T) {
	f := newFixture(t)
	svc := NewActiveSetService(logging.NewNopLogger())

	exp := f.experiment(t, "homepage", true)
	f.cohort(t, exp, "blue", 1, true)
	require.NoError(t, f.tc.CacheManager.SetActiveSetPart(f.tc.TenantID, types.KeyExperimentActiveUUIDs, []byte("{not json")))

	active, err := svc.ExperimentActiveUUIDs(f.ctx, f.tc)
	require.NoError(t, err)
	assert.True(t, active.Has(exp.UUID))

	raw, found, err := f.tc.CacheManager.GetActiveSetPart(f.tc.TenantID, types.KeyExperimentActiveUUIDs)
	require.NoError(t, err)
	require.True(t, found)
	assert.JSONEq(t, `["`+exp.UUID+`"]`, string(raw))
}

func TestRebuildFailsClosed(t *testing.T) {
	f := newFixture(t)
	svc := NewActiveSetService(logging.NewNopLogger())

	exp := f.experiment(t, "homepage", true)
	f.cohort(t, exp, "blue", 1, true)
	require.NoError(t, f.raw.Close())

	_, err := svc.Rebuild(f.ctx, f.tc)
	require.Error(t, err)

	_, err = svc.Snapshot(f.ctx, f.tc)
	require.Error(t, err)

	for _, key := range types.ActiveSetKeys {
		_, found, err := f.tc.CacheManager.GetActiveSetPart(f.tc.TenantID, key)
		require.NoError(t, err)
		assert.False(t, found, key)
	}
}

func TestSnapshotServesCachedParts(t *testing.T) {
	f := newFixture(t)
	svc := NewActiveSetService(logging.NewNopLogger())

	exp := f.experiment(t, "homepage", true)
	blue := f.cohort(t, exp, "blue", 1, true)
	_, err := svc.Rebuild(f.ctx, f.tc)
	require.NoError(t, err)

	// a closed store proves every part came from the cache
	require.NoError(t, f.raw.Close())

	snapshot, err := svc.Snapshot(f.ctx, f.tc)
	require.NoError(t, err)
	assert.True(t, snapshot.CohortBelongsTo(blue.UUID, exp.UUID))
	assert.Equal(t, "blue", snapshot.CohortUUIDSlugMap[blue.UUID])
}
