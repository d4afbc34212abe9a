package splittest

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/AtRiskMedia/splittest-go/internal/domain/entities/splittest"
	"github.com/AtRiskMedia/splittest-go/internal/domain/repositories"
	"github.com/AtRiskMedia/splittest-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/splittest-go/internal/infrastructure/persistence/database"
)

var _ repositories.ExperimentRepository = (*ExperimentRepository)(nil)

type ExperimentRepository struct {
	db     *database.DB
	logger *logging.ChanneledLogger
}

func NewExperimentRepository(db *database.DB, logger *logging.ChanneledLogger) *ExperimentRepository {
	return &ExperimentRepository{db: db, logger: logger}
}

// FindActiveWithCohorts loads the rebuild source set in two queries: qualifying
// experiments, then their active cohorts.
func (r *ExperimentRepository) FindActiveWithCohorts(ctx context.Context, siteID string) ([]*splittest.Experiment, error) {
	start := time.Now()

	experimentQuery := `SELECT ` + experimentColumns + ` FROM split_tests e
		WHERE e.site_id = ? AND e.is_active = TRUE
		AND EXISTS (SELECT 1 FROM cohorts c WHERE c.split_test_id = e.id AND c.is_active = TRUE)
		ORDER BY e.id`

	rows, err := r.db.QueryContext(ctx, r.db.Rebind(experimentQuery), siteID)
	if err != nil {
		return nil, fmt.Errorf("failed to query active split tests: %w", err)
	}
	defer rows.Close()

	var experiments []*splittest.Experiment
	byID := make(map[int64]*splittest.Experiment)
	for rows.Next() {
		exp, err := scanExperiment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan split test: %w", err)
		}
		experiments = append(experiments, exp)
		byID[exp.ID] = exp
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating split tests: %w", err)
	}
	if len(experiments) == 0 {
		observe(r.logger, "REBUILD_ACTIVE_SET", start, siteID)
		return experiments, nil
	}

	cohortQuery := `SELECT ` + cohortColumns + ` FROM cohorts c
		JOIN split_tests e ON e.id = c.split_test_id
		WHERE e.site_id = ? AND e.is_active = TRUE AND c.is_active = TRUE
		ORDER BY c.split_test_id, c.weight DESC, c.id`

	cohortRows, err := r.db.QueryContext(ctx, r.db.Rebind(cohortQuery), siteID)
	if err != nil {
		return nil, fmt.Errorf("failed to query active cohorts: %w", err)
	}
	defer cohortRows.Close()

	for cohortRows.Next() {
		cohort, err := scanCohort(cohortRows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cohort: %w", err)
		}
		if exp, ok := byID[cohort.ExperimentID]; ok {
			exp.Cohorts = append(exp.Cohorts, cohort)
		}
	}
	if err := cohortRows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cohorts: %w", err)
	}

	observe(r.logger, "REBUILD_ACTIVE_SET", start, siteID)
	r.logger.Database().Debug("Active split tests loaded", "tenantId", siteID, "count", len(experiments), "duration", time.Since(start))
	return experiments, nil
}

func (r *ExperimentRepository) FindByUUID(ctx context.Context, siteID, uuid string) (*splittest.Experiment, error) {
	return r.findOne(ctx, siteID, "e.uuid = ?", uuid)
}

func (r *ExperimentRepository) FindBySlug(ctx context.Context, siteID, slug string) (*splittest.Experiment, error) {
	return r.findOne(ctx, siteID, "e.slug = ?", slug)
}

func (r *ExperimentRepository) findOne(ctx context.Context, siteID, predicate string, value string) (*splittest.Experiment, error) {
	start := time.Now()
	query := `SELECT ` + experimentColumns + ` FROM split_tests e WHERE e.site_id = ? AND ` + predicate

	exp, err := scanExperiment(r.db.QueryRowContext(ctx, r.db.Rebind(query), siteID, value))
	observe(r.logger, query, start, siteID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query split test: %w", err)
	}
	return exp, nil
}

// FindAll lists experiments newest first.
func (r *ExperimentRepository) FindAll(ctx context.Context, siteID string, filter splittest.ExperimentFilter) ([]*splittest.Experiment, error) {
	start := time.Now()
	query := `SELECT ` + experimentColumns + ` FROM split_tests e WHERE e.site_id = ?`
	args := []any{siteID}

	if filter.Active != nil {
		query += ` AND e.is_active = ?`
		args = append(args, *filter.Active)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		pattern := "%" + strings.ToLower(search) + "%"
		query += ` AND (LOWER(e.name) LIKE ? OR LOWER(e.slug) LIKE ? OR LOWER(e.uuid) LIKE ?)`
		args = append(args, pattern, pattern, pattern)
	}
	query += ` ORDER BY e.created_at DESC, e.id DESC`

	rows, err := r.db.QueryContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list split tests: %w", err)
	}
	defer rows.Close()

	experiments := []*splittest.Experiment{}
	for rows.Next() {
		exp, err := scanExperiment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan split test: %w", err)
		}
		experiments = append(experiments, exp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating split tests: %w", err)
	}

	observe(r.logger, query, start, siteID)
	return experiments, nil
}

func (r *ExperimentRepository) Store(ctx context.Context, exp *splittest.Experiment) error {
	start := time.Now()
	now := time.Now().UTC()
	if exp.CreatedAt.IsZero() {
		exp.CreatedAt = now
	}
	exp.ModifiedAt = now

	query := `INSERT INTO split_tests (uuid, slug, name, is_active, site_id, created_at, modified_at) VALUES (?, ?, ?, ?, ?, ?, ?)`
	id, err := r.db.InsertReturningID(ctx, query, exp.UUID, exp.Slug, exp.Name, exp.IsActive, exp.SiteID,
		database.FormatTime(exp.CreatedAt), database.FormatTime(exp.ModifiedAt))
	if err != nil {
		if database.IsUniqueViolation(err) {
			return splittest.ErrSlugConflict
		}
		r.logger.Database().Error("Split test insert failed", "error", err.Error(), "uuid", exp.UUID)
		return fmt.Errorf("failed to insert split test: %w", err)
	}
	exp.ID = id

	r.logger.Database().Info("Split test insert completed", "uuid", exp.UUID, "tenantId", exp.SiteID, "duration", time.Since(start))
	observe(r.logger, query, start, exp.SiteID)
	return nil
}

// Update writes the mutable fields: name and is_active.
func (r *ExperimentRepository) Update(ctx context.Context, exp *splittest.Experiment) error {
	start := time.Now()
	exp.ModifiedAt = time.Now().UTC()

	query := `UPDATE split_tests SET name = ?, is_active = ?, modified_at = ? WHERE id = ? AND site_id = ?`
	result, err := r.db.ExecContext(ctx, r.db.Rebind(query), exp.Name, exp.IsActive, database.FormatTime(exp.ModifiedAt), exp.ID, exp.SiteID)
	if err != nil {
		return fmt.Errorf("failed to update split test: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return splittest.ErrExperimentNotFound
	}

	observe(r.logger, query, start, exp.SiteID)
	return nil
}

// Delete removes the experiment with its cohorts and their assignments.
func (r *ExperimentRepository) Delete(ctx context.Context, siteID, uuid string) error {
	start := time.Now()
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	statements := []string{
		`DELETE FROM assignments WHERE cohort_id IN (SELECT c.id FROM cohorts c JOIN split_tests e ON e.id = c.split_test_id WHERE e.site_id = ? AND e.uuid = ?)`,
		`DELETE FROM cohorts WHERE split_test_id IN (SELECT id FROM split_tests WHERE site_id = ? AND uuid = ?)`,
	}
	for _, stmt := range statements {
		if _, err := tx.ExecContext(ctx, r.db.Rebind(stmt), siteID, uuid); err != nil {
			return fmt.Errorf("failed to delete split test children: %w", err)
		}
	}

	result, err := tx.ExecContext(ctx, r.db.Rebind(`DELETE FROM split_tests WHERE site_id = ? AND uuid = ?`), siteID, uuid)
	if err != nil {
		return fmt.Errorf("failed to delete split test: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return splittest.ErrExperimentNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit split test delete: %w", err)
	}

	r.logger.Database().Info("Split test deleted", "uuid", uuid, "tenantId", siteID, "duration", time.Since(start))
	return nil
}
