// Package splittest defines split test experiments, their cohorts and the
// assignments that bind users to cohorts.
package splittest

import (
	"errors"
	"time"
)

var (
	ErrExperimentNotFound = errors.New("split test not found")
	ErrCohortNotFound     = errors.New("cohort not found")
	ErrSlugConflict       = errors.New("slug already in use")
	ErrImmutableField     = errors.New("field cannot be changed after creation")
	ErrInvalidWeight      = errors.New("cohort weight must be zero or greater")
	ErrNameRequired       = errors.New("name is required")
	ErrInvalidSlug        = errors.New("slug must be lowercase letters, digits, hyphens or underscores")
)

// Experiment is a named A/B test scoped to a site.
type Experiment struct {
	ID         int64     `json:"id"`
	UUID       string    `json:"uuid"`
	Slug       string    `json:"slug"`
	Name       string    `json:"name"`
	IsActive   bool      `json:"isActive"`
	SiteID     string    `json:"siteId"`
	CreatedAt  time.Time `json:"createdAt"`
	ModifiedAt time.Time `json:"modifiedAt"`
	Cohorts    []*Cohort `json:"cohorts,omitempty"`
}

// Cohort is one arm of an experiment. A weight of 0 is never selected.
type Cohort struct {
	ID             int64     `json:"id"`
	UUID           string    `json:"uuid"`
	Slug           string    `json:"slug"`
	Name           string    `json:"name"`
	IsActive       bool      `json:"isActive"`
	Weight         int       `json:"weight"`
	ExperimentID   int64     `json:"experimentId"`
	ExperimentUUID string    `json:"experimentUuid,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	ModifiedAt     time.Time `json:"modifiedAt"`
}

// Assignment binds an authenticated user to a cohort.
type Assignment struct {
	ID         int64     `json:"id"`
	CohortID   int64     `json:"cohortId"`
	UserID     int64     `json:"userId"`
	AssignedAt time.Time `json:"assignedAt"`
}

// ExperimentFilter narrows admin listings.
type ExperimentFilter struct {
	Active *bool
	Search string
}
