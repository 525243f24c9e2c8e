package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/opencampus/college-portal-api/internal/dto"
	"github.com/opencampus/college-portal-api/internal/models"
	"github.com/opencampus/college-portal-api/internal/repository"
	"github.com/opencampus/college-portal-api/pkg/config"
	appErrors "github.com/opencampus/college-portal-api/pkg/errors"
)

type clearanceStore interface {
	Create(ctx context.Context, studentID string, semester int) (*models.ClearanceRequest, bool, error)
	FindByID(ctx context.Context, id string) (*models.ClearanceRequest, error)
	List(ctx context.Context, filter repository.ClearanceFilter) ([]models.ClearanceRequest, error)
	Transition(ctx context.Context, id string, apply func(*models.ClearanceRequest) error) (*models.ClearanceRequest, error)
	Delete(ctx context.Context, id string) error
}

type enrollmentResolver interface {
	ListForStudent(ctx context.Context, studentID string) ([]models.SubjectEnrollment, error)
}

type userDirectory interface {
	ListActiveByRole(ctx context.Context, role models.UserRole) ([]models.User, error)
	FindByProfileID(ctx context.Context, profileID string) (*models.User, error)
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type clearanceStudentReader interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

type notificationSink interface {
	Notify(ctx context.Context, event models.NotificationEvent)
}

// ClearanceService is the approval engine for no-due clearance requests: it
// validates and applies stage/subject decisions against the dependency graph,
// derives the overall status, filters requests per role and fans out
// notifications on state changes.
type ClearanceService struct {
	repo       clearanceStore
	enrollment enrollmentResolver
	users      userDirectory
	students   clearanceStudentReader
	sink       notificationSink
	cache      *CacheService
	metrics    *MetricsService
	validator  *validator.Validate
	logger     *zap.Logger
	policy     config.ClearanceConfig
}

// NewClearanceService constructs the service.
func NewClearanceService(repo clearanceStore, enrollment enrollmentResolver, users userDirectory, students clearanceStudentReader, sink notificationSink, cache *CacheService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, policy config.ClearanceConfig) *ClearanceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClearanceService{
		repo:       repo,
		enrollment: enrollment,
		users:      users,
		students:   students,
		sink:       sink,
		cache:      cache,
		metrics:    metrics,
		validator:  validate,
		logger:     logger,
		policy:     policy,
	}
}

// Submit opens a clearance request for (studentID, semester). Idempotent: a
// duplicate submission returns the existing record unchanged. Students submit
// for themselves; admins may submit on a student's behalf.
func (s *ClearanceService) Submit(ctx context.Context, actor models.Actor, req dto.CreateClearanceRequest) (*dto.ClearanceResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid clearance payload")
	}

	studentID := ""
	switch actor.Role {
	case models.RoleStudent:
		studentID = actor.ProfileID
	case models.RoleAdmin:
		studentID = req.StudentID
	default:
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only students may open clearance requests")
	}
	if studentID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student_id is required")
	}

	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	rec, created, err := s.repo.Create(ctx, studentID, req.Semester)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create clearance request")
	}

	if created {
		s.audit(ctx, actor, models.AuditActionClearanceSubmit, rec.ID, map[string]interface{}{"semester": req.Semester})
		s.notifyRole(ctx, models.RoleOffice,
			"New no-due request",
			fmt.Sprintf("%s (%s) has applied for no-due clearance, semester %d.", student.FullName, student.Roll, req.Semester))
	}

	return s.respond(ctx, rec, student)
}

// Get returns one request when the actor owns it, administers it, or is
// currently expected to act on it.
func (s *ClearanceService) Get(ctx context.Context, actor models.Actor, id string) (*dto.ClearanceResponse, error) {
	rec, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	snapshot, err := s.snapshot(ctx, rec.StudentID)
	if err != nil {
		return nil, err
	}
	if !visibleTo(actor, rec, snapshot, s.logger) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "clearance request not accessible")
	}
	return s.respondWithSnapshot(ctx, rec, snapshot)
}

// List returns the requests the actor is currently expected to act on,
// each with its resolved enrollment snapshot embedded.
func (s *ClearanceService) List(ctx context.Context, actor models.Actor) ([]dto.ClearanceResponse, error) {
	filter := repository.ClearanceFilter{}
	if actor.Role == models.RoleStudent {
		if actor.ProfileID == "" {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "student profile not linked")
		}
		filter.StudentID = actor.ProfileID
	}

	records, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list clearance requests")
	}

	responses := make([]dto.ClearanceResponse, 0, len(records))
	for i := range records {
		rec := &records[i]
		snapshot, err := s.snapshot(ctx, rec.StudentID)
		if err != nil {
			return nil, err
		}
		if !visibleTo(actor, rec, snapshot, s.logger) {
			continue
		}
		resp, err := s.respondWithSnapshot(ctx, rec, snapshot)
		if err != nil {
			return nil, err
		}
		responses = append(responses, *resp)
	}
	return responses, nil
}

// Decide records one approval or rejection on a stage or subject key,
// enforcing the dependency ordering under the store's row lock, recomputing
// the overall status in the same write and fanning out notifications.
func (s *ClearanceService) Decide(ctx context.Context, actor models.Actor, requestID string, req dto.DecideClearanceRequest) (*dto.ClearanceResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid decision payload")
	}

	decision := models.ApprovalStatus(strings.ToUpper(strings.TrimSpace(req.Decision)))
	if decision != models.ApprovalApproved && decision != models.ApprovalRejected {
		return nil, appErrors.Clone(appErrors.ErrInvalidDecision, "")
	}
	remarks := strings.TrimSpace(req.Remarks)
	if decision == models.ApprovalRejected && remarks == "" {
		return nil, appErrors.Clone(appErrors.ErrMissingRemarks, "")
	}
	key := strings.ToLower(strings.TrimSpace(req.Key))

	rec, err := s.load(ctx, requestID)
	if err != nil {
		return nil, err
	}
	snapshot, err := s.snapshot(ctx, rec.StudentID)
	if err != nil {
		return nil, err
	}
	graph := models.BuildApprovalGraph(snapshot)

	if !graph.Contains(key) {
		return nil, appErrors.Clone(appErrors.ErrInvalidKey, fmt.Sprintf("%q is neither a stage nor an enrolled subject", key))
	}
	if err := s.authorize(actor, key, snapshot); err != nil {
		return nil, err
	}

	hodGate := append([]string{string(models.StageLibrarian)}, graph.SubjectKeys()...)
	var keyBefore models.ApprovalStatus
	var hodGateBefore bool

	updated, err := s.repo.Transition(ctx, requestID, func(locked *models.ClearanceRequest) error {
		// Validate against the state under the lock, not the earlier read:
		// a concurrent writer may have concluded this key already.
		if unmet := graph.Unmet(key, locked.StatusOf); len(unmet) > 0 {
			return appErrors.Clone(appErrors.ErrStagePrerequisite, fmt.Sprintf("waiting on %s", strings.Join(unmet, ", ")))
		}
		keyBefore = locked.StatusOf(key)
		hodGateBefore = graph.Satisfied(hodGate, locked.StatusOf)

		locked.SetStatus(key, decision)
		if decision == models.ApprovalRejected {
			locked.Remarks = remarks
		}
		locked.OverallStatus = locked.DeriveOverallStatus(graph.SubjectKeys())
		return nil
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "clearance request not found")
		}
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to apply decision")
	}

	if s.metrics != nil {
		kind := "subject"
		if models.IsStage(key) {
			kind = "stage"
		}
		s.metrics.RecordClearanceDecision(kind, string(decision))
	}
	s.audit(ctx, actor, models.AuditActionClearanceDecide, updated.ID, map[string]interface{}{
		"key":      key,
		"decision": string(decision),
		"remarks":  remarks,
	})

	s.emitEvents(ctx, updated, snapshot, graph, key, decision, remarks, keyBefore, hodGateBefore)

	return s.respondWithSnapshot(ctx, updated, snapshot)
}

// Delete removes a request. Owner-only; unless the unrestricted policy flag
// is set, denied once any key beyond the office stage has been decided.
func (s *ClearanceService) Delete(ctx context.Context, actor models.Actor, requestID string) error {
	rec, err := s.load(ctx, requestID)
	if err != nil {
		return err
	}
	if actor.Role != models.RoleStudent || actor.ProfileID != rec.StudentID {
		return appErrors.Clone(appErrors.ErrForbidden, "only the owning student may withdraw a clearance request")
	}
	if !s.policy.UnrestrictedDelete {
		if rec.OverallStatus != models.ApprovalPending {
			return appErrors.Clone(appErrors.ErrForbidden, "clearance request already concluded")
		}
		for _, stage := range []models.ClearanceStage{models.StageLibrarian, models.StageHOD, models.StagePrincipal} {
			if rec.StatusOf(string(stage)) != models.ApprovalPending {
				return appErrors.Clone(appErrors.ErrForbidden, "clearance request already under review")
			}
		}
		for _, status := range rec.SubjectStatus {
			if status != models.ApprovalPending {
				return appErrors.Clone(appErrors.ErrForbidden, "clearance request already under review")
			}
		}
	}

	if err := s.repo.Delete(ctx, requestID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "clearance request not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete clearance request")
	}
	s.audit(ctx, actor, models.AuditActionClearanceDelete, requestID, nil)
	return nil
}

// BulkApprove applies the actor's next actionable approval to each listed
// request, continuing past individual failures. Not transactional across
// records: each item is an independent single-record transition.
func (s *ClearanceService) BulkApprove(ctx context.Context, actor models.Actor, req dto.BulkApproveRequest) (*dto.BulkApproveResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bulk payload")
	}

	result := &dto.BulkApproveResult{Succeeded: []string{}, Failed: []dto.BulkFailure{}}
	for _, id := range req.RequestIDs {
		if err := s.bulkApproveOne(ctx, actor, id); err != nil {
			appErr := appErrors.FromError(err)
			result.Failed = append(result.Failed, dto.BulkFailure{RequestID: id, Code: appErr.Code, Message: appErr.Message})
			continue
		}
		result.Succeeded = append(result.Succeeded, id)
	}
	return result, nil
}

func (s *ClearanceService) bulkApproveOne(ctx context.Context, actor models.Actor, id string) error {
	rec, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	snapshot, err := s.snapshot(ctx, rec.StudentID)
	if err != nil {
		return err
	}

	keys := actionableKeys(actor, rec, snapshot, s.logger)
	if len(keys) == 0 {
		return appErrors.Clone(appErrors.ErrStagePrerequisite, "no pending approval for this actor")
	}
	// Staff may own several pending subjects on the same request; all are
	// decided within this one bulk item.
	for _, key := range keys {
		if _, err := s.Decide(ctx, actor, id, dto.DecideClearanceRequest{Key: key, Decision: string(models.ApprovalApproved)}); err != nil {
			return err
		}
	}
	return nil
}

func (s *ClearanceService) load(ctx context.Context, id string) (*models.ClearanceRequest, error) {
	rec, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "clearance request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load clearance request")
	}
	return rec, nil
}

// authorize checks that the actor owns the target key. Admins may act as any
// owner; staff must resolve as the subject's teacher of record.
func (s *ClearanceService) authorize(actor models.Actor, key string, snapshot []models.SubjectEnrollment) error {
	if actor.Role == models.RoleAdmin {
		return nil
	}
	if models.IsStage(key) {
		if actor.Role == models.StageOwnerRole(models.ClearanceStage(key)) {
			return nil
		}
		return appErrors.Clone(appErrors.ErrForbidden, fmt.Sprintf("%s stage is not owned by role %s", key, actor.Role))
	}
	if actor.Role != models.RoleStaff {
		return appErrors.Clone(appErrors.ErrForbidden, "subject sign-off requires a staff account")
	}
	for _, subject := range snapshot {
		if subject.SubjectKey != key {
			continue
		}
		match := models.MatchTeacher(actor, subject)
		if match == models.TeacherMatchNone {
			break
		}
		if match == models.TeacherMatchHeuristic {
			s.logger.Info("teacher resolved by name heuristic",
				zap.String("actor", actor.Name),
				zap.String("subject_key", key),
				zap.String("assigned_teacher", subject.TeacherName))
		}
		return nil
	}
	return appErrors.Clone(appErrors.ErrForbidden, "not the teacher of record for this subject")
}

// snapshot resolves the student's enrollment, consulting the short-TTL cache
// first.
func (s *ClearanceService) snapshot(ctx context.Context, studentID string) ([]models.SubjectEnrollment, error) {
	cacheKey := "clearance:snapshot:" + studentID
	var cached []models.SubjectEnrollment
	if hit, err := s.cache.Get(ctx, cacheKey, &cached); err == nil && hit {
		return cached, nil
	}

	snapshot, err := s.enrollment.ListForStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve enrollment snapshot")
	}
	if err := s.cache.Set(ctx, cacheKey, snapshot, s.policy.SnapshotCacheTTL); err != nil {
		s.logger.Warn("failed to cache enrollment snapshot", zap.String("student_id", studentID), zap.Error(err))
	}
	return snapshot, nil
}

// emitEvents pushes the notification fan-out for one applied decision. The
// hod gate event fires only on the transition that completes the gate so an
// idempotent re-approval does not re-notify.
func (s *ClearanceService) emitEvents(ctx context.Context, rec *models.ClearanceRequest, snapshot []models.SubjectEnrollment, graph *models.ApprovalGraph, key string, decision models.ApprovalStatus, remarks string, keyBefore models.ApprovalStatus, hodGateBefore bool) {
	if decision == models.ApprovalRejected {
		s.notifyStudent(ctx, rec.StudentID,
			"Clearance rejected",
			fmt.Sprintf("Your no-due request was rejected at %q: %s", key, remarks))
		return
	}
	if keyBefore == models.ApprovalApproved {
		return
	}

	switch {
	case key == string(models.StageOffice):
		s.notifySubjectTeachers(ctx, rec, snapshot)
	case key == string(models.StageHOD):
		s.notifyRole(ctx, models.RolePrincipal,
			"Clearance awaiting principal",
			fmt.Sprintf("A no-due request (semester %d) has departmental sign-off and awaits your approval.", rec.Semester))
	case key == string(models.StagePrincipal):
		s.notifyStudent(ctx, rec.StudentID,
			"Clearance approved",
			fmt.Sprintf("Your no-due request for semester %d is fully approved.", rec.Semester))
	}

	hodGate := append([]string{string(models.StageLibrarian)}, graph.SubjectKeys()...)
	if !hodGateBefore && graph.Satisfied(hodGate, rec.StatusOf) {
		s.notifyRole(ctx, models.RoleHOD,
			"Clearance awaiting HOD",
			fmt.Sprintf("A no-due request (semester %d) has library and all subject sign-offs and awaits your approval.", rec.Semester))
	}
}

// notifySubjectTeachers fans one event out to each distinct teacher owning a
// still-pending subject on the request. Free-text assignments without a
// linked account are skipped with a log line.
func (s *ClearanceService) notifySubjectTeachers(ctx context.Context, rec *models.ClearanceRequest, snapshot []models.SubjectEnrollment) {
	notified := make(map[string]struct{}, len(snapshot))
	for _, subject := range snapshot {
		if rec.StatusOf(subject.SubjectKey) != models.ApprovalPending {
			continue
		}
		if subject.TeacherID == nil {
			s.logger.Warn("subject teacher has no linked account, notification skipped",
				zap.String("subject_key", subject.SubjectKey),
				zap.String("teacher_name", subject.TeacherName))
			continue
		}
		if _, done := notified[*subject.TeacherID]; done {
			continue
		}
		notified[*subject.TeacherID] = struct{}{}

		user, err := s.users.FindByProfileID(ctx, *subject.TeacherID)
		if err != nil {
			s.logger.Warn("failed to resolve teacher account",
				zap.String("teacher_id", *subject.TeacherID), zap.Error(err))
			continue
		}
		s.sink.Notify(ctx, models.NotificationEvent{
			RecipientID: user.ID,
			Title:       "Clearance ready for subject sign-off",
			Message:     fmt.Sprintf("A no-due request (semester %d) cleared the office and awaits your subject approval.", rec.Semester),
			Type:        models.NotificationTypeClearance,
		})
	}
}

func (s *ClearanceService) notifyRole(ctx context.Context, role models.UserRole, title, message string) {
	users, err := s.users.ListActiveByRole(ctx, role)
	if err != nil {
		s.logger.Warn("failed to resolve notification recipients", zap.String("role", string(role)), zap.Error(err))
		return
	}
	for _, user := range users {
		s.sink.Notify(ctx, models.NotificationEvent{
			RecipientID: user.ID,
			Title:       title,
			Message:     message,
			Type:        models.NotificationTypeClearance,
		})
	}
}

func (s *ClearanceService) notifyStudent(ctx context.Context, studentID, title, message string) {
	user, err := s.users.FindByProfileID(ctx, studentID)
	if err != nil {
		s.logger.Warn("failed to resolve student account", zap.String("student_id", studentID), zap.Error(err))
		return
	}
	s.sink.Notify(ctx, models.NotificationEvent{
		RecipientID: user.ID,
		Title:       title,
		Message:     message,
		Type:        models.NotificationTypeClearance,
	})
}

func (s *ClearanceService) audit(ctx context.Context, actor models.Actor, action, resourceID string, values map[string]interface{}) {
	payload, _ := json.Marshal(values)
	userID := actor.UserID
	log := &models.AuditLog{
		UserID:     &userID,
		Action:     action,
		Resource:   "clearance",
		ResourceID: &resourceID,
		NewValues:  payload,
	}
	if err := s.users.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to record audit log", zap.String("action", action), zap.Error(err))
	}
}

func (s *ClearanceService) respond(ctx context.Context, rec *models.ClearanceRequest, student *models.Student) (*dto.ClearanceResponse, error) {
	snapshot, err := s.snapshot(ctx, rec.StudentID)
	if err != nil {
		return nil, err
	}
	resp := &dto.ClearanceResponse{ClearanceRequest: *rec, Enrollment: snapshot}
	if student != nil {
		resp.StudentName = student.FullName
		resp.StudentRoll = student.Roll
	}
	return resp, nil
}

func (s *ClearanceService) respondWithSnapshot(ctx context.Context, rec *models.ClearanceRequest, snapshot []models.SubjectEnrollment) (*dto.ClearanceResponse, error) {
	resp := &dto.ClearanceResponse{ClearanceRequest: *rec, Enrollment: snapshot}
	if student, err := s.students.FindByID(ctx, rec.StudentID); err == nil {
		resp.StudentName = student.FullName
		resp.StudentRoll = student.Roll
	}
	return resp, nil
}
