// Package splittest provides split test repositories
package splittest

import (
	"time"

	"github.com/AtRiskMedia/splittest-go/internal/domain/entities/splittest"
	"github.com/AtRiskMedia/splittest-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/splittest-go/internal/infrastructure/persistence/database"
)

const experimentColumns = `e.id, e.uuid, e.slug, e.name, e.is_active, e.site_id, e.created_at, e.modified_at`

const cohortColumns = `c.id, c.uuid, c.slug, c.name, c.is_active, c.weight, c.split_test_id, e.uuid, c.created_at, c.modified_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExperiment(row rowScanner) (*splittest.Experiment, error) {
	var exp splittest.Experiment
	var created, modified database.Timestamp
	if err := row.Scan(&exp.ID, &exp.UUID, &exp.Slug, &exp.Name, &exp.IsActive, &exp.SiteID, &created, &modified); err != nil {
		return nil, err
	}
	exp.CreatedAt = created.Time
	exp.ModifiedAt = modified.Time
	return &exp, nil
}

func scanCohort(row rowScanner) (*splittest.Cohort, error) {
	var cohort splittest.Cohort
	var created, modified database.Timestamp
	if err := row.Scan(&cohort.ID, &cohort.UUID, &cohort.Slug, &cohort.Name, &cohort.IsActive, &cohort.Weight,
		&cohort.ExperimentID, &cohort.ExperimentUUID, &created, &modified); err != nil {
		return nil, err
	}
	cohort.CreatedAt = created.Time
	cohort.ModifiedAt = modified.Time
	return &cohort, nil
}

func observe(logger *logging.ChanneledLogger, query string, start time.Time, siteID string) {
	database.CheckAndLogSlowQuery(logger, query, time.Since(start), siteID)
}
