package service

import (
	"go.uber.org/zap"

	"github.com/opencampus/college-portal-api/internal/models"
)

// visibleTo reports whether the actor is currently expected to act on (or,
// for students and admins, allowed to see) the request. The predicate is
// recomputed on every read because subject completeness depends on the live
// enrollment snapshot, not on any stored field.
func visibleTo(actor models.Actor, rec *models.ClearanceRequest, snapshot []models.SubjectEnrollment, logger *zap.Logger) bool {
	switch actor.Role {
	case models.RoleAdmin:
		return true
	case models.RoleStudent:
		return actor.ProfileID != "" && rec.StudentID == actor.ProfileID
	case models.RoleOffice:
		return rec.StatusOf(string(models.StageOffice)) == models.ApprovalPending
	case models.RoleLibrarian:
		return rec.StatusOf(string(models.StageOffice)) == models.ApprovalApproved &&
			rec.StatusOf(string(models.StageLibrarian)) == models.ApprovalPending
	case models.RoleStaff:
		if rec.StatusOf(string(models.StageOffice)) != models.ApprovalApproved {
			return false
		}
		return len(pendingSubjectsFor(actor, rec, snapshot, logger)) > 0
	case models.RoleHOD:
		if rec.StatusOf(string(models.StageOffice)) != models.ApprovalApproved ||
			rec.StatusOf(string(models.StageLibrarian)) != models.ApprovalApproved ||
			rec.StatusOf(string(models.StageHOD)) != models.ApprovalPending {
			return false
		}
		for _, subject := range snapshot {
			if rec.StatusOf(subject.SubjectKey) != models.ApprovalApproved {
				return false
			}
		}
		return true
	case models.RolePrincipal:
		return rec.StatusOf(string(models.StageHOD)) == models.ApprovalApproved &&
			rec.StatusOf(string(models.StagePrincipal)) == models.ApprovalPending
	}
	return false
}

// pendingSubjectsFor returns the subject keys still pending on the request
// that the staff actor owns. Exact profile-id matches are preferred; the
// heuristic name-match fallback is logged so ambiguous free-text assignments
// can be audited.
func pendingSubjectsFor(actor models.Actor, rec *models.ClearanceRequest, snapshot []models.SubjectEnrollment, logger *zap.Logger) []string {
	var keys []string
	for _, subject := range snapshot {
		if rec.StatusOf(subject.SubjectKey) != models.ApprovalPending {
			continue
		}
		match := models.MatchTeacher(actor, subject)
		if match == models.TeacherMatchNone {
			continue
		}
		if match == models.TeacherMatchHeuristic && logger != nil {
			logger.Info("teacher resolved by name heuristic",
				zap.String("actor", actor.Name),
				zap.String("subject_key", subject.SubjectKey),
				zap.String("assigned_teacher", subject.TeacherName))
		}
		keys = append(keys, subject.SubjectKey)
	}
	return keys
}

// actionableKeys resolves the keys the actor would decide next on the
// request: the same computation the visibility filter uses to justify showing
// it. Admins get the earliest pending key whose prerequisites are met.
func actionableKeys(actor models.Actor, rec *models.ClearanceRequest, snapshot []models.SubjectEnrollment, logger *zap.Logger) []string {
	switch actor.Role {
	case models.RoleOffice:
		if rec.StatusOf(string(models.StageOffice)) == models.ApprovalPending {
			return []string{string(models.StageOffice)}
		}
	case models.RoleLibrarian:
		if visibleTo(actor, rec, snapshot, logger) {
			return []string{string(models.StageLibrarian)}
		}
	case models.RoleStaff:
		if rec.StatusOf(string(models.StageOffice)) == models.ApprovalApproved {
			return pendingSubjectsFor(actor, rec, snapshot, logger)
		}
	case models.RoleHOD:
		if visibleTo(actor, rec, snapshot, logger) {
			return []string{string(models.StageHOD)}
		}
	case models.RolePrincipal:
		if visibleTo(actor, rec, snapshot, logger) {
			return []string{string(models.StagePrincipal)}
		}
	case models.RoleAdmin:
		graph := models.BuildApprovalGraph(snapshot)
		ordered := []string{string(models.StageOffice), string(models.StageLibrarian)}
		ordered = append(ordered, graph.SubjectKeys()...)
		ordered = append(ordered, string(models.StageHOD), string(models.StagePrincipal))
		for _, key := range ordered {
			if rec.StatusOf(key) == models.ApprovalPending && len(graph.Unmet(key, rec.StatusOf)) == 0 {
				return []string{key}
			}
		}
	}
	return nil
}
