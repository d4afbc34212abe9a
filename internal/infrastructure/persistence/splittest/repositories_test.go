package splittest

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/AtRiskMedia/splittest-go/internal/domain/entities/splittest"
	"github.com/AtRiskMedia/splittest-go/internal/domain/repositories"
	schema "github.com/AtRiskMedia/splittest-go/internal/infrastructure/database"
	"github.com/AtRiskMedia/splittest-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/splittest-go/internal/infrastructure/persistence/database"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	ctx         context.Context
	experiments *ExperimentRepository
	cohorts     *CohortRepository
	assignments *AssignmentRepository
	users       *UserRepository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	raw, err := sql.Open("sqlite3", "file::memory:?_foreign_keys=on")
	require.NoError(t, err)
	raw.SetMaxOpenConns(1)
	t.Cleanup(func() { raw.Close() })

	db := database.Wrap(raw, database.DialectSQLite)
	require.NoError(t, schema.NewTableCreator().CreateSchema(context.Background(), db))

	logger := logging.NewNopLogger()
	return &fixture{
		ctx:         context.Background(),
		experiments: NewExperimentRepository(db, logger),
		cohorts:     NewCohortRepository(db, logger),
		assignments: NewAssignmentRepository(db, logger),
		users:       NewUserRepository(db, logger),
	}
}

func (f *fixture) experiment(t *testing.T, site, slug string, active bool) *splittest.Experiment {
	t.Helper()
	exp := &splittest.Experiment{UUID: uuid.NewString(), Slug: slug, Name: slug, IsActive: active, SiteID: site}
	require.NoError(t, f.experiments.Store(f.ctx, exp))
	return exp
}

func (f *fixture) cohort(t *testing.T, exp *splittest.Experiment, slug string, weight int, active bool) *splittest.Cohort {
	t.Helper()
	c := &splittest.Cohort{UUID: uuid.NewString(), Slug: slug, Name: slug, IsActive: active, Weight: weight, ExperimentID: exp.ID}
	require.NoError(t, f.cohorts.Store(f.ctx, c))
	return c
}

func (f *fixture) user(t *testing.T, name string) *repositories.User {
	t.Helper()
	u := &repositories.User{Username: name, PasswordHash: "x"}
	require.NoError(t, f.users.Store(f.ctx, u))
	return u
}

func TestFindActiveWithCohortsFiltersInactive(t *testing.T) {
	f := newFixture(t)

	live := f.experiment(t, "default", "live", true)
	f.cohort(t, live, "a", 1, true)
	f.cohort(t, live, "b", 3, true)
	f.cohort(t, live, "off", 1, false)

	paused := f.experiment(t, "default", "paused", false)
	f.cohort(t, paused, "a", 1, true)

	empty := f.experiment(t, "default", "empty", true)
	f.cohort(t, empty, "off", 1, false)

	other := f.experiment(t, "other-site", "live", true)
	f.cohort(t, other, "a", 1, true)

	got, err := f.experiments.FindActiveWithCohorts(f.ctx, "default")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, live.UUID, got[0].UUID)
	require.Len(t, got[0].Cohorts, 2)
	assert.Equal(t, "b", got[0].Cohorts[0].Slug)
	assert.Equal(t, live.UUID, got[0].Cohorts[0].ExperimentUUID)
}

func TestExperimentSlugUniquePerSite(t *testing.T) {
	f := newFixture(t)
	f.experiment(t, "default", "hero", true)

	dup := &splittest.Experiment{UUID: uuid.NewString(), Slug: "hero", Name: "Hero", SiteID: "default"}
	assert.ErrorIs(t, f.experiments.Store(f.ctx, dup), splittest.ErrSlugConflict)

	f.experiment(t, "other", "hero", true)
}

func TestExperimentFindAndUpdate(t *testing.T) {
	f := newFixture(t)
	exp := f.experiment(t, "default", "hero", true)

	found, err := f.experiments.FindByUUID(f.ctx, "default", exp.UUID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "hero", found.Slug)
	assert.False(t, found.CreatedAt.IsZero())

	missing, err := f.experiments.FindByUUID(f.ctx, "other", exp.UUID)
	require.NoError(t, err)
	assert.Nil(t, missing)

	found.Name = "Hero banner"
	found.IsActive = false
	require.NoError(t, f.experiments.Update(f.ctx, found))

	bySlug, err := f.experiments.FindBySlug(f.ctx, "default", "hero")
	require.NoError(t, err)
	assert.Equal(t, "Hero banner", bySlug.Name)
	assert.False(t, bySlug.IsActive)

	ghost := &splittest.Experiment{ID: 999, SiteID: "default"}
	assert.ErrorIs(t, f.experiments.Update(f.ctx, ghost), splittest.ErrExperimentNotFound)
}

func TestExperimentFindAllFilters(t *testing.T) {
	f := newFixture(t)
	first := f.experiment(t, "default", "first", true)
	time.Sleep(2 * time.Millisecond)
	f.experiment(t, "default", "second", false)

	all, err := f.experiments.FindAll(f.ctx, "default", splittest.ExperimentFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "second", all[0].Slug)

	active := true
	onlyActive, err := f.experiments.FindAll(f.ctx, "default", splittest.ExperimentFilter{Active: &active})
	require.NoError(t, err)
	require.Len(t, onlyActive, 1)
	assert.Equal(t, first.UUID, onlyActive[0].UUID)

	searched, err := f.experiments.FindAll(f.ctx, "default", splittest.ExperimentFilter{Search: "SEC"})
	require.NoError(t, err)
	require.Len(t, searched, 1)
	assert.Equal(t, "second", searched[0].Slug)
}

func TestExperimentDeleteCascades(t *testing.T) {
	f := newFixture(t)
	exp := f.experiment(t, "default", "hero", true)
	c := f.cohort(t, exp, "a", 1, true)
	u := f.user(t, "ada")
	_, err := f.assignments.InsertIfAbsent(f.ctx, c.ID, u.ID)
	require.NoError(t, err)

	require.NoError(t, f.experiments.Delete(f.ctx, "default", exp.UUID))

	gone, err := f.cohorts.FindByUUID(f.ctx, "default", c.UUID)
	require.NoError(t, err)
	assert.Nil(t, gone)
	count, err := f.assignments.CountForUser(f.ctx, u.ID)
	require.NoError(t, err)
	assert.Zero(t, count)

	assert.ErrorIs(t, f.experiments.Delete(f.ctx, "default", exp.UUID), splittest.ErrExperimentNotFound)
}

func TestCohortWeightAndSlugRules(t *testing.T) {
	f := newFixture(t)
	exp := f.experiment(t, "default", "hero", true)
	f.cohort(t, exp, "a", 0, true)

	neg := &splittest.Cohort{UUID: uuid.NewString(), Slug: "neg", Name: "neg", Weight: -1, ExperimentID: exp.ID}
	assert.ErrorIs(t, f.cohorts.Store(f.ctx, neg), splittest.ErrInvalidWeight)

	dup := &splittest.Cohort{UUID: uuid.NewString(), Slug: "a", Name: "a", Weight: 1, ExperimentID: exp.ID}
	assert.ErrorIs(t, f.cohorts.Store(f.ctx, dup), splittest.ErrSlugConflict)
}

func TestCohortOrderingAndUpdate(t *testing.T) {
	f := newFixture(t)
	exp := f.experiment(t, "default", "hero", true)
	light := f.cohort(t, exp, "light", 1, true)
	f.cohort(t, exp, "heavy", 5, true)
	f.cohort(t, exp, "off", 9, false)

	active, err := f.cohorts.FindActiveByExperimentWeighted(f.ctx, exp.ID)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "heavy", active[0].Slug)
	assert.Equal(t, "light", active[1].Slug)

	all, err := f.cohorts.FindByExperiment(f.ctx, exp.ID)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	light.Weight = 10
	require.NoError(t, f.cohorts.Update(f.ctx, light))
	active, err = f.cohorts.FindActiveByExperimentWeighted(f.ctx, exp.ID)
	require.NoError(t, err)
	assert.Equal(t, "light", active[0].Slug)

	require.NoError(t, f.cohorts.Delete(f.ctx, "default", light.UUID))
	assert.ErrorIs(t, f.cohorts.Delete(f.ctx, "default", light.UUID), splittest.ErrCohortNotFound)
}

func TestInsertIfAbsentIsIdempotent(t *testing.T) {
	f := newFixture(t)
	exp := f.experiment(t, "default", "hero", true)
	c := f.cohort(t, exp, "a", 1, true)
	u := f.user(t, "ada")

	inserted, err := f.assignments.InsertIfAbsent(f.ctx, c.ID, u.ID)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = f.assignments.InsertIfAbsent(f.ctx, c.ID, u.ID)
	require.NoError(t, err)
	assert.False(t, inserted)

	count, err := f.assignments.CountForUser(f.ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestInsertIfAbsentUnknownUser(t *testing.T) {
	f := newFixture(t)
	exp := f.experiment(t, "default", "hero", true)
	c := f.cohort(t, exp, "a", 1, true)

	inserted, err := f.assignments.InsertIfAbsent(f.ctx, c.ID, 4242)
	assert.ErrorIs(t, err, repositories.ErrMissingReference)
	assert.False(t, inserted)
}

func TestFindOldestActiveCohort(t *testing.T) {
	f := newFixture(t)
	exp := f.experiment(t, "default", "hero", true)
	a := f.cohort(t, exp, "a", 1, true)
	b := f.cohort(t, exp, "b", 1, true)
	u := f.user(t, "ada")

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	f.assignments.now = func() time.Time { return base.Add(time.Hour) }
	_, err := f.assignments.InsertIfAbsent(f.ctx, b.ID, u.ID)
	require.NoError(t, err)
	f.assignments.now = func() time.Time { return base.Add(2 * time.Hour) }
	_, err = f.assignments.InsertIfAbsent(f.ctx, a.ID, u.ID)
	require.NoError(t, err)

	oldest, err := f.assignments.FindOldestActiveCohort(f.ctx, u.ID, exp.ID)
	require.NoError(t, err)
	require.NotNil(t, oldest)
	assert.Equal(t, "b", oldest.Slug)

	b.IsActive = false
	require.NoError(t, f.cohorts.Update(f.ctx, b))
	oldest, err = f.assignments.FindOldestActiveCohort(f.ctx, u.ID, exp.ID)
	require.NoError(t, err)
	require.NotNil(t, oldest)
	assert.Equal(t, "a", oldest.Slug)

	none, err := f.assignments.FindOldestActiveCohort(f.ctx, u.ID+1, exp.ID)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestUserRepository(t *testing.T) {
	f := newFixture(t)
	u := f.user(t, "ada")

	byName, err := f.users.FindByUsername(f.ctx, "ada")
	require.NoError(t, err)
	assert.Equal(t, u.ID, byName.ID)

	byID, err := f.users.FindByID(f.ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "ada", byID.Username)

	missing, err := f.users.FindByUsername(f.ctx, "grace")
	require.NoError(t, err)
	assert.Nil(t, missing)

	assert.ErrorIs(t, f.users.Store(f.ctx, &repositories.User{Username: "ada", PasswordHash: "y"}), repositories.ErrUsernameTaken)
}
