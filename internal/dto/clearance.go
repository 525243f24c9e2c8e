package dto

import "github.com/opencampus/college-portal-api/internal/models"

// CreateClearanceRequest opens a no-due request for a student and semester.
// StudentID is only honored for admin callers; students always create their
// own request.
type CreateClearanceRequest struct {
	StudentID string `json:"student_id"`
	Semester  int    `json:"semester" validate:"required,min=1,max=12"`
}

// DecideClearanceRequest records one approval or rejection. Key is either a
// stage literal (office, librarian, hod, principal) or a normalized subject
// key. Remarks are required when rejecting.
type DecideClearanceRequest struct {
	Key      string `json:"key" validate:"required"`
	Decision string `json:"decision" validate:"required"`
	Remarks  string `json:"remarks"`
}

// BulkApproveRequest applies the caller's next actionable approval to each
// listed request, continuing past individual failures.
type BulkApproveRequest struct {
	RequestIDs []string `json:"request_ids" validate:"required,min=1"`
}

// ClearanceResponse pairs a clearance record with its resolved enrollment
// snapshot so UIs can render subject rows without a second round trip.
type ClearanceResponse struct {
	models.ClearanceRequest
	StudentName string                     `json:"student_name,omitempty"`
	StudentRoll string                     `json:"student_roll,omitempty"`
	Enrollment  []models.SubjectEnrollment `json:"enrollment"`
}

// BulkFailure tags one failed item of a bulk operation with its error kind.
type BulkFailure struct {
	RequestID string `json:"request_id"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

// BulkApproveResult reports partial-failure semantics of a bulk call.
type BulkApproveResult struct {
	Succeeded []string      `json:"succeeded"`
	Failed    []BulkFailure `json:"failed"`
}
