package splittest

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildActiveSnapshotExcludesInactiveExperiments(t *testing.T) {
	experiments := []*Experiment{
		{UUID: "exp-active", Slug: "active", IsActive: true, Cohorts: []*Cohort{
			{UUID: "c-1", Slug: "one", IsActive: true, Weight: 1},
			{UUID: "c-2", Slug: "two", IsActive: false, Weight: 1},
		}},
		{UUID: "exp-inactive", Slug: "inactive", IsActive: false, Cohorts: []*Cohort{
			{UUID: "c-3", Slug: "three", IsActive: true, Weight: 1},
		}},
		{UUID: "exp-empty", Slug: "empty", IsActive: true, Cohorts: []*Cohort{
			{UUID: "c-4", Slug: "four", IsActive: false, Weight: 1},
		}},
	}

	snapshot := BuildActiveSnapshot(experiments)

	assert.Equal(t, []string{"exp-active"}, snapshot.ExperimentActiveUUIDs.Sorted())
	assert.Equal(t, map[string]string{"exp-active": "active"}, snapshot.ExperimentUUIDSlugMap)
	assert.Equal(t, []string{"c-1"}, snapshot.CohortActiveUUIDs.Sorted())
	assert.Equal(t, map[string]string{"c-1": "one"}, snapshot.CohortUUIDSlugMap)
	assert.Equal(t, map[string]string{"c-1": "exp-active"}, snapshot.CohortUUIDExperimentUUIDMap)
}

func TestCohortBelongsToRejectsCrossExperimentCohort(t *testing.T) {
	snapshot := BuildActiveSnapshot([]*Experiment{
		{UUID: "exp1", Slug: "exp1", IsActive: true, Cohorts: []*Cohort{{UUID: "x", Slug: "x", IsActive: true, Weight: 1}}},
		{UUID: "exp2", Slug: "exp2", IsActive: true, Cohorts: []*Cohort{{UUID: "y", Slug: "y", IsActive: true, Weight: 1}}},
	})

	assert.True(t, snapshot.CohortBelongsTo("x", "exp1"))
	assert.False(t, snapshot.CohortBelongsTo("y", "exp1"))
	assert.False(t, snapshot.CohortBelongsTo("missing", "exp1"))
}

func TestSlugMapSkipsUnresolvedEntries(t *testing.T) {
	snapshot := BuildActiveSnapshot([]*Experiment{
		{UUID: "exp1", Slug: "homepage", IsActive: true, Cohorts: []*Cohort{{UUID: "c1", Slug: "blue", IsActive: true, Weight: 1}}},
	})

	slugs := snapshot.SlugMap(map[string]string{
		"exp1":  "c1",
		"exp1b": "c1",
		"exp1c": "stale",
	})

	assert.Equal(t, map[string]string{"homepage": "blue"}, slugs)
}

func TestUUIDSetJSONIsSortedArray(t *testing.T) {
	set := NewUUIDSet("b", "a", "c")

	data, err := json.Marshal(set)
	require.NoError(t, err)
	assert.JSONEq(t, `["a","b","c"]`, string(data))

	var decoded UUIDSet
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.True(t, decoded.Has("a"))
	assert.Len(t, decoded, 3)
}

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"Homepage Hero":          "homepage-hero",
		"  Crème brûlée  test ": "creme-brulee-test",
		"Checkout -- v2!":        "checkout-v2",
		"snake_case name":        "snake_case-name",
		"???":                    "",
	}
	for name, want := range cases {
		assert.Equal(t, want, Slugify(name), name)
	}

	long := Slugify("a very long experiment name that keeps going and going past the column")
	assert.LessOrEqual(t, len(long), MaxSlugLength)
	assert.True(t, ValidSlug(long))
}

func TestValidSlug(t *testing.T) {
	assert.True(t, ValidSlug("cohort-one"))
	assert.False(t, ValidSlug(""))
	assert.False(t, ValidSlug("Cohort One"))
}
