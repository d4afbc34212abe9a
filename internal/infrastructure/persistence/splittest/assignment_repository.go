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

var _ repositories.AssignmentRepository = (*AssignmentRepository)(nil)

type AssignmentRepository struct {
	db     *database.DB
	logger *logging.ChanneledLogger
	now    func() time.Time
}

func NewAssignmentRepository(db *database.DB, logger *logging.ChanneledLogger) *AssignmentRepository {
	return &AssignmentRepository{db: db, logger: logger, now: time.Now}
}

// FindOldestActiveCohort ignores assignments whose cohort has since been deactivated.
func (r *AssignmentRepository) FindOldestActiveCohort(ctx context.Context, userID, experimentID int64) (*splittest.Cohort, error) {
	start := time.Now()
	query := `SELECT ` + cohortColumns + ` FROM assignments a
		JOIN cohorts c ON c.id = a.cohort_id
		JOIN split_tests e ON e.id = c.split_test_id
		WHERE a.user_id = ? AND c.split_test_id = ? AND c.is_active = TRUE
		ORDER BY a.assigned_at ASC, a.id ASC
		LIMIT 1`

	cohort, err := scanCohort(r.db.QueryRowContext(ctx, r.db.Rebind(query), userID, experimentID))
	observe(r.logger, query, start, "")
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query assignments: %w", err)
	}
	return cohort, nil
}

// InsertIfAbsent treats a lost insert race as success without a write.
func (r *AssignmentRepository) InsertIfAbsent(ctx context.Context, cohortID, userID int64) (bool, error) {
	start := time.Now()
	query := `INSERT INTO assignments (cohort_id, user_id, assigned_at) VALUES (?, ?, ?)
		ON CONFLICT (cohort_id, user_id) DO NOTHING`

	result, err := r.db.ExecContext(ctx, r.db.Rebind(query), cohortID, userID, database.FormatTime(r.now()))
	if err != nil {
		if database.IsUniqueViolation(err) {
			r.logger.Database().Debug("Assignment already recorded", "cohortId", cohortID, "userId", userID)
			return false, nil
		}
		if database.IsForeignKeyViolation(err) {
			return false, repositories.ErrMissingReference
		}
		return false, fmt.Errorf("failed to insert assignment: %w", err)
	}
	observe(r.logger, query, start, "")

	affected, err := result.RowsAffected()
	if err != nil {
		return true, nil
	}
	return affected > 0, nil
}

func (r *AssignmentRepository) CountForUser(ctx context.Context, userID int64) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, r.db.Rebind(`SELECT COUNT(*) FROM assignments WHERE user_id = ?`), userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count assignments: %w", err)
	}
	return count, nil
}
