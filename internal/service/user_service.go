package service

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/lms-api/internal/dto"
	"github.com/noah-isme/lms-api/internal/models"
	appErrors "github.com/noah-isme/lms-api/pkg/errors"
)

type userRepository interface {
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	UpdateRole(ctx context.Context, id string, role models.UserRole) error
	SetActive(ctx context.Context, id string, active bool) error
	RevokeUserRefreshTokens(ctx context.Context, userID string) error
}

// UserService backs the admin console's account management.
type UserService struct {
	repo      userRepository
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewUserService creates an instance of UserService.
func NewUserService(repo userRepository, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &UserService{repo: repo, cache: cache, validator: validate, logger: logger}
}

// List returns paginated users and pagination metadata.
func (s *UserService) List(ctx context.Context, query dto.UserListQuery) ([]models.User, *models.Pagination, error) {
	filter := models.UserFilter{
		Search:    strings.TrimSpace(query.Search),
		Page:      query.Page,
		PageSize:  query.Limit,
		SortBy:    query.SortBy,
		SortOrder: query.SortOrder,
	}
	if query.Role != "" {
		role := models.UserRole(strings.ToUpper(query.Role))
		if !role.Valid() {
			return nil, nil, appErrors.Clone(appErrors.ErrValidation, "unknown role filter")
		}
		filter.Role = &role
	}
	switch strings.ToLower(query.Active) {
	case "":
	case "true":
		active := true
		filter.Active = &active
	case "false":
		active := false
		filter.Active = &active
	default:
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "active must be true or false")
	}

	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, internalError(err, "failed to list users")
	}
	if users == nil {
		users = []models.User{}
	}
	return users, models.NewPagination(filter.Page, filter.PageSize, total), nil
}

// Get returns a user by ID.
func (s *UserService) Get(ctx context.Context, id string) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "user not found", "failed to load user")
	}
	return user, nil
}

// UpdateRole changes another account's role.
func (s *UserService) UpdateRole(ctx context.Context, actor *models.JWTClaims, id string, req models.UpdateRoleRequest) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid role payload")
	}
	if actor != nil && actor.UserID == id {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "administrators cannot change their own role")
	}
	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if user.Role == req.Role {
		return user, nil
	}
	if err := s.repo.UpdateRole(ctx, id, req.Role); err != nil {
		return nil, lookupError(err, "user not found", "failed to update role")
	}
	if err := s.repo.RevokeUserRefreshTokens(ctx, id); err != nil {
		s.logger.Warn("failed to revoke sessions after role change", zap.String("user_id", id), zap.Error(err))
	}
	s.logger.Info("user role changed", zap.String("user_id", id), zap.String("from", string(user.Role)), zap.String("to", string(req.Role)))
	user.Role = req.Role
	s.cache.InvalidateDashboards(ctx)
	return user, nil
}

// SetStatus activates or deactivates another account. Deactivation revokes its refresh tokens.
func (s *UserService) SetStatus(ctx context.Context, actor *models.JWTClaims, id string, req models.UpdateStatusRequest) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid status payload")
	}
	if actor != nil && actor.UserID == id {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "administrators cannot change their own status")
	}
	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	active := *req.Active
	if err := s.repo.SetActive(ctx, id, active); err != nil {
		return nil, lookupError(err, "user not found", "failed to update status")
	}
	s.logger.Info("user status changed", zap.String("user_id", id), zap.Bool("active", active))
	user.Active = active
	return user, nil
}
