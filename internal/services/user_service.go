package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fullstack-poc/usersview/internal/models"
	"go.uber.org/zap"
)

// UsersRepository is the interface that wraps methods for users table data access
type UsersRepository interface {
	// Method GetAll retrieve all users ordered by their ID.
	//
	// If some error will occur during data retrieve, the error will be returned together with "nil" value.
	GetAll(ctx context.Context) ([]models.UserRecord, error)
	// Method Create insert a user built from the draft and return the stored record.
	//
	// The draft must be validated beforehand. ID and creation time are assigned by the storage.
	Create(ctx context.Context, draft models.DraftUser) (*models.UserRecord, error)
	// Method Ping check that the storage is reachable.
	Ping(ctx context.Context) error
}

// HealthStatusOK and HealthStatusError are the reported health states
const (
	HealthStatusOK    = "OK"
	HealthStatusError = "ERROR"
)

// ErrInvalidUser is returned for drafts that fail validation
var ErrInvalidUser = errors.New("invalid user")

type usersService struct {
	repo      UsersRepository
	logger    *zap.Logger
	startedAt time.Time
	now       func() time.Time
}

// NewUsersService creates a new users service. Uptime is measured from this call.
func NewUsersService(repo UsersRepository, logger *zap.Logger) *usersService {
	return &usersService{
		repo:      repo,
		logger:    logger,
		startedAt: time.Now(),
		now:       time.Now,
	}
}

// GetAll retrieves all users. The result is never nil.
func (s *usersService) GetAll(ctx context.Context) ([]models.UserRecord, error) {
	users, err := s.repo.GetAll(ctx)
	if err != nil {
		s.logger.Error("failed to get all users", zap.Error(err))
		return nil, fmt.Errorf("failed to get users: %w", err)
	}
	if users == nil {
		users = []models.UserRecord{}
	}
	return users, nil
}

// Create validates the draft and stores it.
//
// Name and email are required, role must be "user" or "admin" and defaults to "user".
// Validation failures wrap ErrInvalidUser.
func (s *usersService) Create(ctx context.Context, draft models.DraftUser) (*models.UserRecord, error) {
	draft.Name = strings.TrimSpace(draft.Name)
	draft.Email = strings.TrimSpace(draft.Email)
	draft = draft.WithDefaults()

	if draft.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidUser)
	}
	if draft.Email == "" {
		return nil, fmt.Errorf("%w: email is required", ErrInvalidUser)
	}
	if !draft.Role.Valid() {
		return nil, fmt.Errorf("%w: invalid role: %s, must be 'user' or 'admin'", ErrInvalidUser, draft.Role)
	}

	user, err := s.repo.Create(ctx, draft)
	if err != nil {
		s.logger.Error("failed to create user", zap.Error(err), zap.String("email", draft.Email))
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.logger.Info("user created", zap.Int("id", user.ID))
	return user, nil
}

// Health reports the service status and uptime.
// The status is HealthStatusError and an error is returned when the storage is unreachable.
func (s *usersService) Health(ctx context.Context) (models.HealthStatus, error) {
	now := s.now()
	health := models.HealthStatus{
		Status:    HealthStatusOK,
		Uptime:    now.Sub(s.startedAt).Seconds(),
		Timestamp: now.UTC().Format(time.RFC3339),
	}

	if err := s.repo.Ping(ctx); err != nil {
		s.logger.Warn("health check failed", zap.Error(err))
		health.Status = HealthStatusError
		return health, err
	}
	return health, nil
}
