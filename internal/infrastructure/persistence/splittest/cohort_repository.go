package splittest

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/AtRiskMedia/splittest-go/internal/domain/entities/splittest"
	"github.com/AtRiskMedia/splittest-go/internal/domain/repositories"
	"github.com/AtRiskMedia/splittest-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/splittest-go/internal/infrastructure/persistence/database"
)

var _ repositories.CohortRepository = (*CohortRepository)(nil)

type CohortRepository struct {
	db     *database.DB
	logger *logging.ChanneledLogger
}

func NewCohortRepository(db *database.DB, logger *logging.ChanneledLogger) *CohortRepository {
	return &CohortRepository{db: db, logger: logger}
}

func (r *CohortRepository) FindByUUID(ctx context.Context, siteID, uuid string) (*splittest.Cohort, error) {
	start := time.Now()
	query := `SELECT ` + cohortColumns + ` FROM cohorts c
		JOIN split_tests e ON e.id = c.split_test_id
		WHERE e.site_id = ? AND c.uuid = ?`

	cohort, err := scanCohort(r.db.QueryRowContext(ctx, r.db.Rebind(query), siteID, uuid))
	observe(r.logger, query, start, siteID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query cohort: %w", err)
	}
	return cohort, nil
}

func (r *CohortRepository) FindByExperiment(ctx context.Context, experimentID int64) ([]*splittest.Cohort, error) {
	return r.list(ctx, `c.split_test_id = ?`, experimentID)
}

func (r *CohortRepository) FindActiveByExperimentWeighted(ctx context.Context, experimentID int64) ([]*splittest.Cohort, error) {
	return r.list(ctx, `c.split_test_id = ? AND c.is_active = TRUE`, experimentID)
}

func (r *CohortRepository) list(ctx context.Context, predicate string, experimentID int64) ([]*splittest.Cohort, error) {
	start := time.Now()
	query := `SELECT ` + cohortColumns + ` FROM cohorts c
		JOIN split_tests e ON e.id = c.split_test_id
		WHERE ` + predicate + ` ORDER BY c.weight DESC, c.id`

	rows, err := r.db.QueryContext(ctx, r.db.Rebind(query), experimentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query cohorts: %w", err)
	}
	defer rows.Close()

	cohorts := []*splittest.Cohort{}
	for rows.Next() {
		cohort, err := scanCohort(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cohort: %w", err)
		}
		cohorts = append(cohorts, cohort)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cohorts: %w", err)
	}

	observe(r.logger, query, start, "")
	return cohorts, nil
}

func (r *CohortRepository) Store(ctx context.Context, cohort *splittest.Cohort) error {
	if cohort.Weight < 0 {
		return splittest.ErrInvalidWeight
	}
	start := time.Now()
	now := time.Now().UTC()
	if cohort.CreatedAt.IsZero() {
		cohort.CreatedAt = now
	}
	cohort.ModifiedAt = now

	query := `INSERT INTO cohorts (uuid, slug, name, is_active, weight, split_test_id, created_at, modified_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	id, err := r.db.InsertReturningID(ctx, query, cohort.UUID, cohort.Slug, cohort.Name, cohort.IsActive, cohort.Weight,
		cohort.ExperimentID, database.FormatTime(cohort.CreatedAt), database.FormatTime(cohort.ModifiedAt))
	if err != nil {
		if database.IsUniqueViolation(err) {
			return splittest.ErrSlugConflict
		}
		r.logger.Database().Error("Cohort insert failed", "error", err.Error(), "uuid", cohort.UUID)
		return fmt.Errorf("failed to insert cohort: %w", err)
	}
	cohort.ID = id

	r.logger.Database().Info("Cohort insert completed", "uuid", cohort.UUID, "duration", time.Since(start))
	observe(r.logger, query, start, "")
	return nil
}

// Update writes the mutable fields: name, is_active and weight.
func (r *CohortRepository) Update(ctx context.Context, cohort *splittest.Cohort) error {
	if cohort.Weight < 0 {
		return splittest.ErrInvalidWeight
	}
	start := time.Now()
	cohort.ModifiedAt = time.Now().UTC()

	query := `UPDATE cohorts SET name = ?, is_active = ?, weight = ?, modified_at = ? WHERE id = ?`
	result, err := r.db.ExecContext(ctx, r.db.Rebind(query), cohort.Name, cohort.IsActive, cohort.Weight,
		database.FormatTime(cohort.ModifiedAt), cohort.ID)
	if err != nil {
		return fmt.Errorf("failed to update cohort: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return splittest.ErrCohortNotFound
	}

	observe(r.logger, query, start, "")
	return nil
}

// Delete removes the cohort and its assignments.
func (r *CohortRepository) Delete(ctx context.Context, siteID, uuid string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	scope := `(SELECT c.id FROM cohorts c JOIN split_tests e ON e.id = c.split_test_id WHERE e.site_id = ? AND c.uuid = ?)`

	if _, err := tx.ExecContext(ctx, r.db.Rebind(`DELETE FROM assignments WHERE cohort_id IN `+scope), siteID, uuid); err != nil {
		return fmt.Errorf("failed to delete cohort assignments: %w", err)
	}
	result, err := tx.ExecContext(ctx, r.db.Rebind(`DELETE FROM cohorts WHERE id IN `+scope), siteID, uuid)
	if err != nil {
		return fmt.Errorf("failed to delete cohort: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return splittest.ErrCohortNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit cohort delete: %w", err)
	}
	r.logger.Database().Info("Cohort deleted", "uuid", uuid, "tenantId", siteID)
	return nil
}
