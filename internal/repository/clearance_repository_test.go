package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/opencampus/college-portal-api/internal/models"
	appErrors "github.com/opencampus/college-portal-api/pkg/errors"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

var clearanceCols = []string{"id", "student_id", "semester", "office_status", "librarian_status", "hod_status", "principal_status", "remarks", "overall_status", "created_at", "updated_at"}

func clearanceRowFixture(id string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(clearanceCols).
		AddRow(id, "stu-1", 5, "PENDING", "PENDING", "PENDING", "PENDING", "", "PENDING", now, now)
}

func subjectRows(pairs ...string) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{"clearance_id", "subject_key", "status"})
	for i := 0; i+1 < len(pairs); i += 2 {
		rows.AddRow("clr-1", pairs[i], pairs[i+1])
	}
	return rows
}

func TestClearanceRepositoryCreateIdempotent(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewClearanceRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO clearance_requests")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, student_id, semester")).
		WithArgs("stu-1", 5).
		WillReturnRows(clearanceRowFixture("clr-1"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT clearance_id, subject_key, status")).
		WithArgs("clr-1").
		WillReturnRows(subjectRows())

	rec, created, err := repo.Create(context.Background(), "stu-1", 5)
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, "clr-1", rec.ID)
	require.Equal(t, models.ApprovalPending, rec.OverallStatus)

	// Conflict path: the insert touches no row and the existing record is
	// returned unchanged.
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO clearance_requests")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, student_id, semester")).
		WithArgs("stu-1", 5).
		WillReturnRows(clearanceRowFixture("clr-1"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT clearance_id, subject_key, status")).
		WithArgs("clr-1").
		WillReturnRows(subjectRows())

	rec, created, err = repo.Create(context.Background(), "stu-1", 5)
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, "clr-1", rec.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClearanceRepositoryFindByID(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewClearanceRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, student_id, semester")).
		WithArgs("clr-1").
		WillReturnRows(clearanceRowFixture("clr-1"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT clearance_id, subject_key, status")).
		WithArgs("clr-1").
		WillReturnRows(subjectRows("cs101", "APPROVED"))

	rec, err := repo.FindByID(context.Background(), "clr-1")
	require.NoError(t, err)
	require.Equal(t, models.ApprovalApproved, rec.SubjectStatus["cs101"])
	require.Equal(t, models.ApprovalPending, rec.StatusOf("ma201"))

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, student_id, semester")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)
	_, err = repo.FindByID(context.Background(), "missing")
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClearanceRepositoryTransitionPersistsAppliedState(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewClearanceRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs("clr-1").
		WillReturnRows(clearanceRowFixture("clr-1"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT clearance_id, subject_key, status")).
		WithArgs("clr-1").
		WillReturnRows(subjectRows())
	mock.ExpectExec(regexp.QuoteMeta("UPDATE clearance_requests")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO clearance_subject_status")).
		WithArgs("clr-1", "cs101", "APPROVED").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	rec, err := repo.Transition(context.Background(), "clr-1", func(rec *models.ClearanceRequest) error {
		rec.SetStatus(string(models.StageOffice), models.ApprovalApproved)
		rec.SetStatus("cs101", models.ApprovalApproved)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, models.ApprovalApproved, rec.StatusOf(string(models.StageOffice)))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClearanceRepositoryTransitionRollsBackOnApplyError(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewClearanceRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs("clr-1").
		WillReturnRows(clearanceRowFixture("clr-1"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT clearance_id, subject_key, status")).
		WithArgs("clr-1").
		WillReturnRows(subjectRows())
	mock.ExpectRollback()

	_, err := repo.Transition(context.Background(), "clr-1", func(rec *models.ClearanceRequest) error {
		return appErrors.Clone(appErrors.ErrStagePrerequisite, "")
	})
	require.ErrorIs(t, err, appErrors.ErrStagePrerequisite)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClearanceRepositoryDelete(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewClearanceRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM clearance_subject_status")).
		WithArgs("clr-1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM clearance_requests")).
		WithArgs("clr-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	require.NoError(t, repo.Delete(context.Background(), "clr-1"))

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM clearance_subject_status")).
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM clearance_requests")).
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()
	require.ErrorIs(t, repo.Delete(context.Background(), "missing"), sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClearanceRepositoryListFilters(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewClearanceRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, student_id, semester")).
		WithArgs("stu-1", "PENDING").
		WillReturnRows(clearanceRowFixture("clr-1"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT clearance_id, subject_key, status")).
		WithArgs("clr-1").
		WillReturnRows(subjectRows())

	list, err := repo.List(context.Background(), ClearanceFilter{StudentID: "stu-1", OverallStatus: models.ApprovalPending})
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "clr-1", list[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}
