package service

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/opencampus/college-portal-api/internal/models"
)

func visibilitySnapshot() []models.SubjectEnrollment {
	return []models.SubjectEnrollment{
		{SubjectKey: "cs101", SubjectCode: "CS101", SubjectName: "Data Structures", TeacherID: strPtr("staff-1"), TeacherName: "John Smith"},
		{SubjectKey: "ma201", SubjectCode: "MA201", SubjectName: "Engineering Math", TeacherName: "Dr. Alice Brown"},
	}
}

func pendingRecord() *models.ClearanceRequest {
	return &models.ClearanceRequest{
		ID:            "clr-1",
		StudentID:     "stu-1",
		Semester:      5,
		StageStatus:   make(map[models.ClearanceStage]models.ApprovalStatus),
		SubjectStatus: make(map[string]models.ApprovalStatus),
		OverallStatus: models.ApprovalPending,
	}
}

func TestVisibleToFollowsWorkflowPosition(t *testing.T) {
	snapshot := visibilitySnapshot()
	rec := pendingRecord()

	owner := models.Actor{Role: models.RoleStudent, ProfileID: "stu-1"}
	stranger := models.Actor{Role: models.RoleStudent, ProfileID: "stu-2"}
	office := models.Actor{Role: models.RoleOffice}
	librarian := models.Actor{Role: models.RoleLibrarian}
	john := models.Actor{Role: models.RoleStaff, ProfileID: "staff-1", Name: "John Smith"}
	hod := models.Actor{Role: models.RoleHOD}
	principal := models.Actor{Role: models.RolePrincipal}
	admin := models.Actor{Role: models.RoleAdmin}

	require.True(t, visibleTo(owner, rec, snapshot, nil))
	require.False(t, visibleTo(stranger, rec, snapshot, nil))
	require.True(t, visibleTo(admin, rec, snapshot, nil))

	// Freshly submitted: only the office queue sees it.
	require.True(t, visibleTo(office, rec, snapshot, nil))
	require.False(t, visibleTo(librarian, rec, snapshot, nil))
	require.False(t, visibleTo(john, rec, snapshot, nil))
	require.False(t, visibleTo(hod, rec, snapshot, nil))
	require.False(t, visibleTo(principal, rec, snapshot, nil))

	rec.SetStatus(string(models.StageOffice), models.ApprovalApproved)
	require.False(t, visibleTo(office, rec, snapshot, nil))
	require.True(t, visibleTo(librarian, rec, snapshot, nil))
	require.True(t, visibleTo(john, rec, snapshot, nil))
	// HOD waits for the librarian and every subject.
	require.False(t, visibleTo(hod, rec, snapshot, nil))

	rec.SetStatus(string(models.StageLibrarian), models.ApprovalApproved)
	rec.SetStatus("cs101", models.ApprovalApproved)
	require.False(t, visibleTo(john, rec, snapshot, nil))
	require.False(t, visibleTo(hod, rec, snapshot, nil))

	rec.SetStatus("ma201", models.ApprovalApproved)
	require.True(t, visibleTo(hod, rec, snapshot, nil))
	require.False(t, visibleTo(principal, rec, snapshot, nil))

	rec.SetStatus(string(models.StageHOD), models.ApprovalApproved)
	require.False(t, visibleTo(hod, rec, snapshot, nil))
	require.True(t, visibleTo(principal, rec, snapshot, nil))

	rec.SetStatus(string(models.StagePrincipal), models.ApprovalApproved)
	require.False(t, visibleTo(principal, rec, snapshot, nil))
	require.True(t, visibleTo(owner, rec, snapshot, nil))
}

func TestActionableKeysPerRole(t *testing.T) {
	snapshot := visibilitySnapshot()
	rec := pendingRecord()

	office := models.Actor{Role: models.RoleOffice}
	librarian := models.Actor{Role: models.RoleLibrarian}
	alice := models.Actor{Role: models.RoleStaff, ProfileID: "staff-2", Name: "Alice Brown"}

	require.Equal(t, []string{"office"}, actionableKeys(office, rec, snapshot, nil))
	require.Nil(t, actionableKeys(librarian, rec, snapshot, nil))
	require.Nil(t, actionableKeys(alice, rec, snapshot, nil))

	rec.SetStatus(string(models.StageOffice), models.ApprovalApproved)
	require.Nil(t, actionableKeys(office, rec, snapshot, nil))
	require.Equal(t, []string{"librarian"}, actionableKeys(librarian, rec, snapshot, nil))
	require.Equal(t, []string{"ma201"}, actionableKeys(alice, rec, snapshot, nil))
}

func TestActionableKeysAdminPicksEarliestReadyKey(t *testing.T) {
	snapshot := visibilitySnapshot()
	rec := pendingRecord()
	admin := models.Actor{Role: models.RoleAdmin}

	require.Equal(t, []string{"office"}, actionableKeys(admin, rec, snapshot, nil))

	rec.SetStatus(string(models.StageOffice), models.ApprovalApproved)
	require.Equal(t, []string{"librarian"}, actionableKeys(admin, rec, snapshot, nil))

	rec.SetStatus(string(models.StageLibrarian), models.ApprovalApproved)
	require.Equal(t, []string{"cs101"}, actionableKeys(admin, rec, snapshot, nil))

	rec.SetStatus("cs101", models.ApprovalApproved)
	rec.SetStatus("ma201", models.ApprovalApproved)
	require.Equal(t, []string{"hod"}, actionableKeys(admin, rec, snapshot, nil))

	rec.SetStatus(string(models.StageHOD), models.ApprovalApproved)
	require.Equal(t, []string{"principal"}, actionableKeys(admin, rec, snapshot, nil))

	rec.SetStatus(string(models.StagePrincipal), models.ApprovalApproved)
	require.Nil(t, actionableKeys(admin, rec, snapshot, nil))
}
