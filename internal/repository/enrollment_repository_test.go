package repository

import (
	"context"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func TestEnrollmentRepositoryListForStudent(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	rows := sqlmock.NewRows([]string{"subject_code", "subject_name", "teacher_id", "teacher_name"}).
		AddRow("CS101", "Data Structures", "staff-1", "John Smith").
		AddRow("MA201", "Engineering Math", nil, "Dr. Alice Brown").
		AddRow("N/A", "Value Education", nil, "Sr. Teresa").
		AddRow("CS101", "Data Structures", "staff-1", "John Smith")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT sub.code AS subject_code")).
		WillReturnRows(rows)

	snapshot, err := repo.ListForStudent(context.Background(), "stu-1")
	require.NoError(t, err)
	// Duplicates collapse on the normalized key; sentinel codes key by name.
	require.Len(t, snapshot, 3)
	require.Equal(t, "cs101", snapshot[0].SubjectKey)
	require.Equal(t, "staff-1", *snapshot[0].TeacherID)
	require.Equal(t, "ma201", snapshot[1].SubjectKey)
	require.Nil(t, snapshot[1].TeacherID)
	require.Equal(t, "value_education", snapshot[2].SubjectKey)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryEmptySnapshot(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT sub.code AS subject_code")).
		WillReturnRows(sqlmock.NewRows([]string{"subject_code", "subject_name", "teacher_id", "teacher_name"}))

	snapshot, err := repo.ListForStudent(context.Background(), "stu-1")
	require.NoError(t, err)
	require.Empty(t, snapshot)
	require.NoError(t, mock.ExpectationsWereMet())
}
