package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/opencampus/college-portal-api/internal/models"
)

// ClearanceFilter constrains clearance listing queries.
type ClearanceFilter struct {
	StudentID     string
	Semester      int
	OverallStatus models.ApprovalStatus
}

// ClearanceRepository handles persistence of clearance requests. A request is
// one row with fixed stage-status columns plus a side table holding one row
// per decided subject key.
type ClearanceRepository struct {
	db *sqlx.DB
}

// NewClearanceRepository constructs the repository.
func NewClearanceRepository(db *sqlx.DB) *ClearanceRepository {
	return &ClearanceRepository{db: db}
}

type clearanceRow struct {
	ID              string    `db:"id"`
	StudentID       string    `db:"student_id"`
	Semester        int       `db:"semester"`
	OfficeStatus    string    `db:"office_status"`
	LibrarianStatus string    `db:"librarian_status"`
	HODStatus       string    `db:"hod_status"`
	PrincipalStatus string    `db:"principal_status"`
	Remarks         string    `db:"remarks"`
	OverallStatus   string    `db:"overall_status"`
	CreatedAt       time.Time `db:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"`
}

type subjectStatusRow struct {
	ClearanceID string `db:"clearance_id"`
	SubjectKey  string `db:"subject_key"`
	Status      string `db:"status"`
}

const clearanceColumns = `id, student_id, semester, office_status, librarian_status, hod_status, principal_status, remarks, overall_status, created_at, updated_at`

func (row clearanceRow) toModel(subjects []subjectStatusRow) *models.ClearanceRequest {
	rec := &models.ClearanceRequest{
		ID:        row.ID,
		StudentID: row.StudentID,
		Semester:  row.Semester,
		StageStatus: map[models.ClearanceStage]models.ApprovalStatus{
			models.StageOffice:    models.ApprovalStatus(row.OfficeStatus),
			models.StageLibrarian: models.ApprovalStatus(row.LibrarianStatus),
			models.StageHOD:       models.ApprovalStatus(row.HODStatus),
			models.StagePrincipal: models.ApprovalStatus(row.PrincipalStatus),
		},
		SubjectStatus: make(map[string]models.ApprovalStatus, len(subjects)),
		Remarks:       row.Remarks,
		OverallStatus: models.ApprovalStatus(row.OverallStatus),
		CreatedAt:     row.CreatedAt,
		UpdatedAt:     row.UpdatedAt,
	}
	for _, s := range subjects {
		rec.SubjectStatus[s.SubjectKey] = models.ApprovalStatus(s.Status)
	}
	return rec
}

// Create inserts a pending request for (studentID, semester) if none exists
// and returns the stored record either way. Duplicate creation is a no-op.
func (r *ClearanceRepository) Create(ctx context.Context, studentID string, semester int) (*models.ClearanceRequest, bool, error) {
	const insert = `INSERT INTO clearance_requests (id, student_id, semester, office_status, librarian_status, hod_status, principal_status, remarks, overall_status, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $4, $4, $4, '', $4, $5, $5)
        ON CONFLICT (student_id, semester) DO NOTHING`
	now := time.Now().UTC()
	result, err := r.db.ExecContext(ctx, insert, uuid.NewString(), studentID, semester, string(models.ApprovalPending), now)
	if err != nil {
		return nil, false, fmt.Errorf("create clearance request: %w", err)
	}
	inserted, _ := result.RowsAffected()

	rec, err := r.FindByStudentAndSemester(ctx, studentID, semester)
	if err != nil {
		return nil, false, err
	}
	return rec, inserted > 0, nil
}

// FindByID returns a clearance request with its subject statuses.
func (r *ClearanceRepository) FindByID(ctx context.Context, id string) (*models.ClearanceRequest, error) {
	query := fmt.Sprintf(`SELECT %s FROM clearance_requests WHERE id = $1`, clearanceColumns)
	var row clearanceRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		return nil, err
	}
	subjects, err := r.subjectStatuses(ctx, r.db, id)
	if err != nil {
		return nil, err
	}
	return row.toModel(subjects), nil
}

// FindByStudentAndSemester returns the request for the identity pair.
func (r *ClearanceRepository) FindByStudentAndSemester(ctx context.Context, studentID string, semester int) (*models.ClearanceRequest, error) {
	query := fmt.Sprintf(`SELECT %s FROM clearance_requests WHERE student_id = $1 AND semester = $2`, clearanceColumns)
	var row clearanceRow
	if err := r.db.GetContext(ctx, &row, query, studentID, semester); err != nil {
		return nil, err
	}
	subjects, err := r.subjectStatuses(ctx, r.db, row.ID)
	if err != nil {
		return nil, err
	}
	return row.toModel(subjects), nil
}

// List returns clearance requests matching the filter, newest first.
func (r *ClearanceRepository) List(ctx context.Context, filter ClearanceFilter) ([]models.ClearanceRequest, error) {
	var conditions []string
	var args []interface{}
	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.Semester > 0 {
		conditions = append(conditions, fmt.Sprintf("semester = $%d", len(args)+1))
		args = append(args, filter.Semester)
	}
	if filter.OverallStatus != "" {
		conditions = append(conditions, fmt.Sprintf("overall_status = $%d", len(args)+1))
		args = append(args, string(filter.OverallStatus))
	}
	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}
	query := fmt.Sprintf(`SELECT %s FROM clearance_requests%s ORDER BY created_at DESC`, clearanceColumns, clause)

	var rows []clearanceRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list clearance requests: %w", err)
	}

	records := make([]models.ClearanceRequest, 0, len(rows))
	for _, row := range rows {
		subjects, err := r.subjectStatuses(ctx, r.db, row.ID)
		if err != nil {
			return nil, err
		}
		records = append(records, *row.toModel(subjects))
	}
	return records, nil
}

// Transition loads the request under a row lock, runs apply against the
// in-memory record and persists the mutated state in the same transaction.
// Concurrent writers to the same record serialize on the lock, so apply
// always validates against current state and lost updates cannot occur.
func (r *ClearanceRepository) Transition(ctx context.Context, id string, apply func(*models.ClearanceRequest) error) (*models.ClearanceRequest, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin clearance transition: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	query := fmt.Sprintf(`SELECT %s FROM clearance_requests WHERE id = $1 FOR UPDATE`, clearanceColumns)
	var row clearanceRow
	if err := tx.GetContext(ctx, &row, query, id); err != nil {
		return nil, err
	}
	subjects, err := r.subjectStatuses(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	rec := row.toModel(subjects)
	if err := apply(rec); err != nil {
		return nil, err
	}
	rec.UpdatedAt = time.Now().UTC()

	const update = `UPDATE clearance_requests
        SET office_status = $2, librarian_status = $3, hod_status = $4, principal_status = $5,
            remarks = $6, overall_status = $7, updated_at = $8
        WHERE id = $1`
	if _, err := tx.ExecContext(ctx, update, id,
		string(rec.StatusOf(string(models.StageOffice))),
		string(rec.StatusOf(string(models.StageLibrarian))),
		string(rec.StatusOf(string(models.StageHOD))),
		string(rec.StatusOf(string(models.StagePrincipal))),
		rec.Remarks, string(rec.OverallStatus), rec.UpdatedAt); err != nil {
		return nil, fmt.Errorf("persist clearance stages: %w", err)
	}

	const upsert = `INSERT INTO clearance_subject_status (clearance_id, subject_key, status)
        VALUES ($1, $2, $3)
        ON CONFLICT (clearance_id, subject_key) DO UPDATE SET status = EXCLUDED.status`
	for key, status := range rec.SubjectStatus {
		if _, err := tx.ExecContext(ctx, upsert, id, key, string(status)); err != nil {
			return nil, fmt.Errorf("persist subject status %s: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit clearance transition: %w", err)
	}
	return rec, nil
}

// Delete removes a request and its subject rows.
func (r *ClearanceRepository) Delete(ctx context.Context, id string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin clearance delete: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM clearance_subject_status WHERE clearance_id = $1`, id); err != nil {
		return fmt.Errorf("delete subject statuses: %w", err)
	}
	result, err := tx.ExecContext(ctx, `DELETE FROM clearance_requests WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete clearance request: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return sql.ErrNoRows
	}
	return tx.Commit()
}

type queryer interface {
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

func (r *ClearanceRepository) subjectStatuses(ctx context.Context, q queryer, clearanceID string) ([]subjectStatusRow, error) {
	var subjects []subjectStatusRow
	const query = `SELECT clearance_id, subject_key, status FROM clearance_subject_status WHERE clearance_id = $1`
	if err := q.SelectContext(ctx, &subjects, query, clearanceID); err != nil {
		return nil, fmt.Errorf("load subject statuses: %w", err)
	}
	return subjects, nil
}
