package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fullstack-poc/usersview/internal/models"
	"github.com/go-sql-driver/mysql"
	"go.uber.org/zap"
)

// mysqlDuplicateEntry is the MySQL error number of unique key violations
const mysqlDuplicateEntry = 1062

// ErrDuplicateEmail is returned when a user with the same email already exists
var ErrDuplicateEmail = errors.New("email already exists")

type usersRepository struct {
	db     *sql.DB
	logger *zap.Logger
	now    func() time.Time
}

// NewUsersRepository creates a new MySQL backed users repository
func NewUsersRepository(db *sql.DB, logger *zap.Logger) *usersRepository {
	return &usersRepository{
		db:     db,
		logger: logger,
		now:    time.Now,
	}
}

// Method GetAll is a UsersRepository implementation for retrieving all users ordered by creation.
func (r *usersRepository) GetAll(ctx context.Context) ([]models.UserRecord, error) {
	query := `
		SELECT id, name, email, role, created_at
		FROM users
		ORDER BY id
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		r.logger.Error("failed to query users", zap.Error(err))
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	users := []models.UserRecord{}
	for rows.Next() {
		var (
			user      models.UserRecord
			createdAt time.Time
		)
		if err := rows.Scan(&user.ID, &user.Name, &user.Email, &user.Role, &createdAt); err != nil {
			r.logger.Error("failed to scan user", zap.Error(err))
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		user.CreatedAt = formatTimestamp(createdAt)
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		r.logger.Error("error iterating rows", zap.Error(err))
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return users, nil
}

// Method Create is a UsersRepository implementation for inserting a user.
//
// The creation time is assigned here. ErrDuplicateEmail is returned if the email is taken.
func (r *usersRepository) Create(ctx context.Context, draft models.DraftUser) (*models.UserRecord, error) {
	createdAt := r.now().UTC().Truncate(time.Second)

	query := `INSERT INTO users (name, email, role, created_at) VALUES (?, ?, ?, ?)`

	result, err := r.db.ExecContext(ctx, query, draft.Name, draft.Email, string(draft.Role), createdAt)
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry {
			return nil, ErrDuplicateEmail
		}
		r.logger.Error("failed to insert user", zap.Error(err))
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		r.logger.Error("failed to get inserted user id", zap.Error(err))
		return nil, fmt.Errorf("failed to get inserted user id: %w", err)
	}

	return &models.UserRecord{
		ID:        int(id),
		Name:      draft.Name,
		Email:     draft.Email,
		Role:      draft.Role,
		CreatedAt: formatTimestamp(createdAt),
	}, nil
}

// Method Ping is a UsersRepository implementation for checking the database connection.
func (r *usersRepository) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	return nil
}

func formatTimestamp(t time.Time) *string {
	s := t.UTC().Format(time.RFC3339)
	return &s
}
