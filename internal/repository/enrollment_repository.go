package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/opencampus/college-portal-api/internal/models"
)

// Subject groups that are administrative placeholders rather than taught
// courses; they carry no teacher sign-off and are excluded from snapshots.
var placeholderGroups = []string{"SOFT_SKILL", "NPTEL"}

// EnrollmentRepository resolves a student's enrollment snapshot: the ordered
// subjects the student is taking this semester with each subject's teacher of
// record from the class timetable.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

type enrollmentRow struct {
	SubjectCode string  `db:"subject_code"`
	SubjectName string  `db:"subject_name"`
	TeacherID   *string `db:"teacher_id"`
	TeacherName string  `db:"teacher_name"`
}

// ListForStudent returns the snapshot for one student. Teacher identity may
// be a linked staff profile or only a free-text name from the timetable.
func (r *EnrollmentRepository) ListForStudent(ctx context.Context, studentID string) ([]models.SubjectEnrollment, error) {
	const query = `SELECT sub.code AS subject_code, sub.name AS subject_name,
        cs.teacher_id, COALESCE(u.full_name, cs.teacher_name, '') AS teacher_name
        FROM students s
        JOIN class_subjects cs ON cs.year = s.year AND cs.section = s.section AND cs.semester = s.semester
        JOIN subjects sub ON sub.id = cs.subject_id
        LEFT JOIN users u ON u.profile_id = cs.teacher_id AND u.role = 'STAFF'
        WHERE s.id = $1 AND sub.subject_group <> ALL($2::text[])
        ORDER BY sub.code, sub.name`

	var rows []enrollmentRow
	if err := r.db.SelectContext(ctx, &rows, query, studentID, pq.Array(placeholderGroups)); err != nil {
		return nil, fmt.Errorf("resolve enrollment snapshot: %w", err)
	}

	snapshot := make([]models.SubjectEnrollment, 0, len(rows))
	seen := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		key := models.SubjectKey(row.SubjectCode, row.SubjectName)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		snapshot = append(snapshot, models.SubjectEnrollment{
			SubjectKey:  key,
			SubjectCode: row.SubjectCode,
			SubjectName: row.SubjectName,
			TeacherID:   row.TeacherID,
			TeacherName: row.TeacherName,
		})
	}
	return snapshot, nil
}
