package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fullstack-poc/usersview/internal/models"
	"github.com/fullstack-poc/usersview/internal/repositories"
	"github.com/fullstack-poc/usersview/internal/services"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// UsersService is the interface that wraps methods for users business logic.
type UsersService interface {
	// Method GetAll retrieve all users using configured repository.
	//
	// The returned slice is never nil on success.
	GetAll(ctx context.Context) ([]models.UserRecord, error)
	// Method Create validate the draft and store it using configured repository.
	//
	// Validation failures wrap services.ErrInvalidUser, a taken email is reported as repositories.ErrDuplicateEmail.
	Create(ctx context.Context, draft models.DraftUser) (*models.UserRecord, error)
	// Method Health report the service status and uptime.
	//
	// A non-nil error means the service is not able to serve requests; the status is still filled in.
	Health(ctx context.Context) (models.HealthStatus, error)
}

// UsersHandler handles HTTP requests of the users API
type UsersHandler struct {
	BaseHandler
	service UsersService
}

// NewUsersHandler creates a new users API handler
func NewUsersHandler(svc UsersService, logger *zap.Logger) *UsersHandler {
	return &UsersHandler{
		service:     svc,
		BaseHandler: BaseHandler{logger: logger},
	}
}

// RegisterRoutes registers all users API routes
func (h *UsersHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)
		r.Route("/users", func(r chi.Router) {
			r.Get("/", h.GetAll)
			r.Post("/", h.Create)
		})
	})
}

// Health handles GET /api/health
// @Summary Health check
// @Description Get the API status, uptime in seconds and server time
// @Tags health
// @Produce json
// @Success 200 {object} models.HealthStatus
// @Failure 503 {object} models.HealthStatus
// @Router /health [get]
func (h *UsersHandler) Health(w http.ResponseWriter, r *http.Request) {
	health, err := h.service.Health(r.Context())
	if err != nil {
		h.respondJSON(w, http.StatusServiceUnavailable, health)
		return
	}

	h.respondJSON(w, http.StatusOK, health)
}

// GetAll handles GET /api/users
// @Summary Get all users
// @Description Get a list of all users in creation order
// @Tags users
// @Produce json
// @Success 200 {array} models.UserRecord
// @Failure 500 {object} map[string]string
// @Router /users [get]
func (h *UsersHandler) GetAll(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.GetAll(r.Context())
	if err != nil {
		h.logger.Error("failed to get all users", zap.Error(err))
		h.respondError(w, http.StatusInternalServerError, "failed to get users")
		return
	}

	h.respondJSON(w, http.StatusOK, users)
}

// Create handles POST /api/users
// @Summary Create user
// @Description Create a user. Role defaults to "user".
// @Tags users
// @Accept json
// @Produce json
// @Param user body models.DraftUser true "User to create"
// @Success 201 {object} models.UserRecord
// @Failure 400 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Failure 500 {object} map[string]string
// @Router /users [post]
func (h *UsersHandler) Create(w http.ResponseWriter, r *http.Request) {
	var draft models.DraftUser
	if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := h.service.Create(r.Context(), draft)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidUser):
			h.respondError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, repositories.ErrDuplicateEmail):
			h.respondError(w, http.StatusConflict, "email already exists")
		default:
			h.logger.Error("failed to create user", zap.Error(err))
			h.respondError(w, http.StatusInternalServerError, "failed to create user")
		}
		return
	}

	h.respondJSON(w, http.StatusCreated, user)
}
