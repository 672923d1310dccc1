package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmissionRepositoryUpdateContentSkipsGraded(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSubmissionRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE submissions SET content = $2, submitted_at = $3 WHERE id = $1 AND graded_at IS NULL")).
		WithArgs("sub-1", "v2", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateContent(context.Background(), "sub-1", "v2", time.Now())
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmissionRepositoryGrade(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSubmissionRepository(db)

	feedback := "well done"
	mock.ExpectExec(regexp.QuoteMeta("UPDATE submissions SET score = $2, feedback = $3, graded_by = $4, graded_at = $5 WHERE id = $1")).
		WithArgs("sub-1", 90, &feedback, "i1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Grade(context.Background(), "sub-1", 90, &feedback, "i1", time.Now()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
