package services

import (
	"testing"
	"time"

	"github.com/AtRiskMedia/splittest-go/internal/domain/entities/splittest"
	"github.com/AtRiskMedia/splittest-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/splittest-go/internal/infrastructure/persistence/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssignInactiveExperimentYieldsNone(t *testing.T) {
	f := newFixture(t)
	svc := NewAssignmentServiceWithRand(fixedRand(0), logging.NewNopLogger())
	user := f.user(t, "ada")

	paused := f.experiment(t, "paused", false)
	f.cohort(t, paused, "a", 1, true)

	cohort, err := svc.AssignOrFetch(f.ctx, f.tc, user, paused.UUID)
	require.NoError(t, err)
	assert.Nil(t, cohort)
	assert.Zero(t, f.assignmentCount(t))

	cohort, err = svc.AssignOrFetch(f.ctx, f.tc, user, "no-such-experiment")
	require.NoError(t, err)
	assert.Nil(t, cohort)
}

func TestAssignNeverPicksZeroWeight(t *testing.T) {
	f := newFixture(t)
	svc := NewAssignmentService(logging.NewNopLogger())

	exp := f.experiment(t, "exp1", true)
	f.cohort(t, exp, "a", 0, true)
	b := f.cohort(t, exp, "b", 1, true)

	for i := 0; i < 200; i++ {
		cohort, err := svc.AssignOrFetch(f.ctx, f.tc, splittest.Anonymous{}, exp.UUID)
		require.NoError(t, err)
		require.NotNil(t, cohort)
		assert.Equal(t, b.UUID, cohort.UUID)
	}
}

func TestAssignAllZeroWeightsYieldsNone(t *testing.T) {
	f := newFixture(t)
	svc := NewAssignmentService(logging.NewNopLogger())
	user := f.user(t, "ada")

	exp := f.experiment(t, "exp1", true)
	f.cohort(t, exp, "a", 0, true)
	f.cohort(t, exp, "b", 0, true)

	cohort, err := svc.AssignOrFetch(f.ctx, f.tc, user, exp.UUID)
	require.NoError(t, err)
	assert.Nil(t, cohort)
	assert.Zero(t, f.assignmentCount(t))
}

func TestAssignPicksProportionallyToWeight(t *testing.T) {
	f := newFixture(t)

	exp := f.experiment(t, "exp1", true)
	heavy := f.cohort(t, exp, "heavy", 3, true)
	light := f.cohort(t, exp, "light", 1, true)

	// candidates are ordered weight DESC, so draws 0..2 land on heavy and 3 on light
	cases := map[int]string{0: heavy.UUID, 2: heavy.UUID, 3: light.UUID}
	for draw, want := range cases {
		svc := NewAssignmentServiceWithRand(fixedRand(draw), logging.NewNopLogger())
		cohort, err := svc.AssignOrFetch(f.ctx, f.tc, splittest.Anonymous{}, exp.UUID)
		require.NoError(t, err)
		assert.Equal(t, want, cohort.UUID, "draw %d", draw)
	}
}

func TestAssignIsIdempotentForAuthenticatedUser(t *testing.T) {
	f := newFixture(t)
	user := f.user(t, "ada")

	exp := f.experiment(t, "exp1", true)
	f.cohort(t, exp, "a", 1, true)
	f.cohort(t, exp, "b", 1, true)

	first, err := NewAssignmentServiceWithRand(fixedRand(0), logging.NewNopLogger()).AssignOrFetch(f.ctx, f.tc, user, exp.UUID)
	require.NoError(t, err)
	require.NotNil(t, first)

	// a different draw must not change the stored answer
	second, err := NewAssignmentServiceWithRand(fixedRand(1), logging.NewNopLogger()).AssignOrFetch(f.ctx, f.tc, user, exp.UUID)
	require.NoError(t, err)
	assert.Equal(t, first.UUID, second.UUID)

	count, err := f.tc.AssignmentRepo().CountForUser(f.ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestAssignAnonymousIsNeverPersisted(t *testing.T) {
	f := newFixture(t)
	svc := NewAssignmentServiceWithRand(fixedRand(0), logging.NewNopLogger())

	exp := f.experiment(t, "exp1", true)
	f.cohort(t, exp, "a", 1, true)

	cohort, err := svc.AssignOrFetch(f.ctx, f.tc, splittest.Anonymous{}, exp.UUID)
	require.NoError(t, err)
	require.NotNil(t, cohort)
	assert.Zero(t, f.assignmentCount(t))
}

func TestAssignReturnsOldestActiveAssignment(t *testing.T) {
	f := newFixture(t)
	svc := NewAssignmentServiceWithRand(fixedRand(0), logging.NewNopLogger())
	user := f.user(t, "ada")

	exp := f.experiment(t, "exp1", true)
	a := f.cohort(t, exp, "a", 1, true)
	b := f.cohort(t, exp, "b", 1, true)

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err := f.raw.Exec(`INSERT INTO assignments (cohort_id, user_id, assigned_at) VALUES (?, ?, ?)`, a.ID, user.ID, database.FormatTime(base.Add(time.Hour)))
	require.NoError(t, err)
	_, err = f.raw.Exec(`INSERT INTO assignments (cohort_id, user_id, assigned_at) VALUES (?, ?, ?)`, b.ID, user.ID, database.FormatTime(base))
	require.NoError(t, err)

	cohort, err := svc.AssignOrFetch(f.ctx, f.tc, user, exp.UUID)
	require.NoError(t, err)
	assert.Equal(t, b.UUID, cohort.UUID)
	assert.Equal(t, 2, f.assignmentCount(t))
}

func TestAssignSkipsDeactivatedCohort(t *testing.T) {
	f := newFixture(t)
	svc := NewAssignmentServiceWithRand(fixedRand(0), logging.NewNopLogger())
	user := f.user(t, "ada")

	exp := f.experiment(t, "exp1", true)
	a := f.cohort(t, exp, "a", 1, true)
	b := f.cohort(t, exp, "b", 1, true)

	first, err := svc.AssignOrFetch(f.ctx, f.tc, user, exp.UUID)
	require.NoError(t, err)
	require.Equal(t, a.UUID, first.UUID)

	a.IsActive = false
	require.NoError(t, f.tc.CohortRepo().Update(f.ctx, a))

	second, err := svc.AssignOrFetch(f.ctx, f.tc, user, exp.UUID)
	require.NoError(t, err)
	assert.Equal(t, b.UUID, second.UUID)
	assert.Equal(t, 2, f.assignmentCount(t))
}

func TestPickIgnoresNonPositiveWeights(t *testing.T) {
	svc := NewAssignmentServiceWithRand(func(n int) int {
		require.Equal(t, 2, n)
		return 1
	}, logging.NewNopLogger())

	picked := svc.pick([]*splittest.Cohort{
		{UUID: "a", Weight: 0},
		{UUID: "b", Weight: 2},
		{UUID: "c", Weight: -1},
	})
	require.NotNil(t, picked)
	assert.Equal(t, "b", picked.UUID)
	assert.Nil(t, svc.pick(nil))
}
