package splittest

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/AtRiskMedia/splittest-go/internal/domain/repositories"
	"github.com/AtRiskMedia/splittest-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/splittest-go/internal/infrastructure/persistence/database"
)

var _ repositories.UserRepository = (*UserRepository)(nil)

// UserRepository stores accounts used for assignment persistence.
type UserRepository struct {
	db     *database.DB
	logger *logging.ChanneledLogger
}

func NewUserRepository(db *database.DB, logger *logging.ChanneledLogger) *UserRepository {
	return &UserRepository{db: db, logger: logger}
}

func (r *UserRepository) FindByUsername(ctx context.Context, username string) (*repositories.User, error) {
	return r.findOne(ctx, `username = ?`, username)
}

func (r *UserRepository) FindByID(ctx context.Context, id int64) (*repositories.User, error) {
	return r.findOne(ctx, `id = ?`, id)
}

func (r *UserRepository) findOne(ctx context.Context, predicate string, value any) (*repositories.User, error) {
	query := `SELECT id, username, password_hash, is_staff FROM users WHERE ` + predicate

	var user repositories.User
	err := r.db.QueryRowContext(ctx, r.db.Rebind(query), value).Scan(&user.ID, &user.Username, &user.PasswordHash, &user.IsStaff)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return &user, nil
}

func (r *UserRepository) Store(ctx context.Context, user *repositories.User) error {
	query := `INSERT INTO users (username, password_hash, is_staff, created_at) VALUES (?, ?, ?, ?)`
	id, err := r.db.InsertReturningID(ctx, query, user.Username, user.PasswordHash, user.IsStaff, database.FormatTime(time.Now()))
	if err != nil {
		if database.IsUniqueViolation(err) {
			return repositories.ErrUsernameTaken
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}
	user.ID = id
	r.logger.Database().Info("User created", "userId", id, "staff", user.IsStaff)
	return nil
}
