package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/noah-isme/lms-api/internal/models"
	appErrors "github.com/noah-isme/lms-api/pkg/errors"
)

func internalError(err error, message string) error {
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}

// lookupError maps sql.ErrNoRows to a 404 carrying notFound and anything else to a 500.
func lookupError(err error, notFound, internal string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, notFound)
	}
	return internalError(err, internal)
}

func validationError(err error, message string) error {
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, message)
}

type courseReader interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

func loadCourse(ctx context.Context, repo courseReader, id string) (*models.Course, error) {
	course, err := repo.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "course not found", "failed to load course")
	}
	return course, nil
}

func isAdmin(actor *models.JWTClaims) bool {
	return actor != nil && actor.Role == models.RoleAdmin
}

// canManageCourse reports whether actor is the course owner or an admin.
func canManageCourse(actor *models.JWTClaims, course *models.Course) bool {
	if actor == nil || course == nil {
		return false
	}
	return isAdmin(actor) || (actor.Role == models.RoleInstructor && course.InstructorID == actor.UserID)
}

func requireCourseOwner(actor *models.JWTClaims, course *models.Course) error {
	if actor == nil || actor.Role != models.RoleInstructor || course.InstructorID != actor.UserID {
		return appErrors.Clone(appErrors.ErrForbidden, "only the course instructor can do this")
	}
	return nil
}

func requireCourseManager(actor *models.JWTClaims, course *models.Course) error {
	if !canManageCourse(actor, course) {
		return appErrors.Clone(appErrors.ErrForbidden, "course access denied")
	}
	return nil
}

func strPtr(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
