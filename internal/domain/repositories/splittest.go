// Package repositories defines the storage ports for split tests.
package repositories

import (
	"context"
	"errors"

	"github.com/AtRiskMedia/splittest-go/internal/domain/entities/splittest"
)

// ExperimentRepository persists experiments for a site.
type ExperimentRepository interface {
	// FindActiveWithCohorts returns active experiments that have at least one
	// active cohort, with only their active cohorts attached.
	FindActiveWithCohorts(ctx context.Context, siteID string) ([]*splittest.Experiment, error)
	FindByUUID(ctx context.Context, siteID, uuid string) (*splittest.Experiment, error)
	FindBySlug(ctx context.Context, siteID, slug string) (*splittest.Experiment, error)
	FindAll(ctx context.Context, siteID string, filter splittest.ExperimentFilter) ([]*splittest.Experiment, error)
	Store(ctx context.Context, experiment *splittest.Experiment) error
	Update(ctx context.Context, experiment *splittest.Experiment) error
	Delete(ctx context.Context, siteID, uuid string) error
}

// CohortRepository persists cohorts.
type CohortRepository interface {
	FindByUUID(ctx context.Context, siteID, uuid string) (*splittest.Cohort, error)
	FindByExperiment(ctx context.Context, experimentID int64) ([]*splittest.Cohort, error)
	// FindActiveByExperimentWeighted returns active cohorts ordered by weight
	// descending, then id.
	FindActiveByExperimentWeighted(ctx context.Context, experimentID int64) ([]*splittest.Cohort, error)
	Store(ctx context.Context, cohort *splittest.Cohort) error
	Update(ctx context.Context, cohort *splittest.Cohort) error
	Delete(ctx context.Context, siteID, uuid string) error
}

// AssignmentRepository persists user to cohort assignments.
type AssignmentRepository interface {
	// FindOldestActiveCohort returns the earliest assigned active cohort of the
	// experiment held by the user, or nil.
	FindOldestActiveCohort(ctx context.Context, userID, experimentID int64) (*splittest.Cohort, error)
	// InsertIfAbsent records the assignment unless one exists for the pair.
	// It reports whether a row was written, and returns ErrMissingReference
	// when the user or cohort row is gone.
	InsertIfAbsent(ctx context.Context, cohortID, userID int64) (bool, error)
	CountForUser(ctx context.Context, userID int64) (int, error)
}

var (
	// ErrUsernameTaken is returned when storing a duplicate username.
	ErrUsernameTaken = errors.New("username already exists")
	// ErrMissingReference is returned when a write points at a row that no
	// longer exists.
	ErrMissingReference = errors.New("referenced row does not exist")
)

// User is a stored account.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	IsStaff      bool
}

// UserRepository persists accounts.
type UserRepository interface {
	FindByUsername(ctx context.Context, username string) (*User, error)
	FindByID(ctx context.Context, id int64) (*User, error)
	Store(ctx context.Context, user *User) error
}
