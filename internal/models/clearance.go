package models

import (
	"strings"
	"time"
)

// ApprovalStatus is the state of a single stage or subject sign-off.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "PENDING"
	ApprovalApproved ApprovalStatus = "APPROVED"
	ApprovalRejected ApprovalStatus = "REJECTED"
)

// Valid reports whether the status is a known decision value.
func (s ApprovalStatus) Valid() bool {
	switch s {
	case ApprovalPending, ApprovalApproved, ApprovalRejected:
		return true
	}
	return false
}

// ClearanceStage identifies one of the single-approver checkpoints.
type ClearanceStage string

const (
	StageOffice    ClearanceStage = "office"
	StageLibrarian ClearanceStage = "librarian"
	StageHOD       ClearanceStage = "hod"
	StagePrincipal ClearanceStage = "principal"
)

// Stages lists all single-approver stages in dependency order.
var Stages = []ClearanceStage{StageOffice, StageLibrarian, StageHOD, StagePrincipal}

// IsStage reports whether key names one of the fixed stages.
func IsStage(key string) bool {
	switch ClearanceStage(key) {
	case StageOffice, StageLibrarian, StageHOD, StagePrincipal:
		return true
	}
	return false
}

// ClearanceRequest is one student's per-semester no-due application.
// Subject statuses are sparse: a subject enrolled but absent from
// SubjectStatus is PENDING.
type ClearanceRequest struct {
	ID          string                            `json:"id"`
	StudentID   string                            `json:"student_id"`
	Semester    int                               `json:"semester"`
	StageStatus map[ClearanceStage]ApprovalStatus `json:"stage_status"`
	// SubjectStatus is keyed by the normalized subject key produced by
	// SubjectKey. Keys materialize on first decision.
	SubjectStatus map[string]ApprovalStatus `json:"subject_status"`
	// Remarks holds the most recent rejection reason across every stage and
	// subject. A single slot: a newer rejection overwrites an older one, and
	// re-approving a key does not clear it. The audit log keeps the full
	// per-decision trail.
	Remarks       string         `json:"remarks,omitempty"`
	OverallStatus ApprovalStatus `json:"overall_status"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// StatusOf returns the status of a stage or subject key, treating absent
// subject entries as PENDING.
func (r *ClearanceRequest) StatusOf(key string) ApprovalStatus {
	if IsStage(key) {
		if s, ok := r.StageStatus[ClearanceStage(key)]; ok {
			return s
		}
		return ApprovalPending
	}
	if s, ok := r.SubjectStatus[key]; ok {
		return s
	}
	return ApprovalPending
}

// SetStatus writes a decision into the appropriate map slot.
func (r *ClearanceRequest) SetStatus(key string, status ApprovalStatus) {
	if IsStage(key) {
		if r.StageStatus == nil {
			r.StageStatus = make(map[ClearanceStage]ApprovalStatus, len(Stages))
		}
		r.StageStatus[ClearanceStage(key)] = status
		return
	}
	if r.SubjectStatus == nil {
		r.SubjectStatus = make(map[string]ApprovalStatus)
	}
	r.SubjectStatus[key] = status
}

// DeriveOverallStatus computes the summary status from the joint state of all
// stages and the enrolled subject keys. REJECTED wins over everything;
// APPROVED requires every stage and every enrolled subject approved.
func (r *ClearanceRequest) DeriveOverallStatus(subjectKeys []string) ApprovalStatus {
	allApproved := true
	for _, stage := range Stages {
		switch r.StatusOf(string(stage)) {
		case ApprovalRejected:
			return ApprovalRejected
		case ApprovalPending:
			allApproved = false
		}
	}
	for _, key := range subjectKeys {
		switch r.StatusOf(key) {
		case ApprovalRejected:
			return ApprovalRejected
		case ApprovalPending:
			allApproved = false
		}
	}
	// A rejection on a subject the student is no longer enrolled in still
	// blocks the request until re-approved on that same key.
	for _, status := range r.SubjectStatus {
		if status == ApprovalRejected {
			return ApprovalRejected
		}
	}
	if allApproved {
		return ApprovalApproved
	}
	return ApprovalPending
}

// ApprovalGraph is the directed dependency graph over stage and subject keys:
// office -> {librarian, every subject} -> hod -> principal. Built per request
// from the live enrollment snapshot.
type ApprovalGraph struct {
	prereqs     map[string][]string
	subjectKeys []string
}

// BuildApprovalGraph constructs the graph for the given enrollment snapshot.
func BuildApprovalGraph(snapshot []SubjectEnrollment) *ApprovalGraph {
	g := &ApprovalGraph{prereqs: make(map[string][]string, len(snapshot)+len(Stages))}

	g.prereqs[string(StageOffice)] = nil
	g.prereqs[string(StageLibrarian)] = []string{string(StageOffice)}

	hodPrereqs := []string{string(StageLibrarian)}
	for _, subject := range snapshot {
		if _, dup := g.prereqs[subject.SubjectKey]; dup {
			continue
		}
		g.prereqs[subject.SubjectKey] = []string{string(StageOffice)}
		g.subjectKeys = append(g.subjectKeys, subject.SubjectKey)
		hodPrereqs = append(hodPrereqs, subject.SubjectKey)
	}

	g.prereqs[string(StageHOD)] = hodPrereqs
	g.prereqs[string(StagePrincipal)] = []string{string(StageHOD)}
	return g
}

// Contains reports whether key is a node of the graph.
func (g *ApprovalGraph) Contains(key string) bool {
	_, ok := g.prereqs[key]
	return ok
}

// SubjectKeys returns the subject nodes in snapshot order.
func (g *ApprovalGraph) SubjectKeys() []string {
	return g.subjectKeys
}

// Unmet returns the prerequisite keys of key that are not yet APPROVED,
// in dependency order. Empty means the key may be decided.
func (g *ApprovalGraph) Unmet(key string, statusOf func(string) ApprovalStatus) []string {
	var unmet []string
	for _, dep := range g.prereqs[key] {
		if statusOf(dep) != ApprovalApproved {
			unmet = append(unmet, dep)
		}
	}
	return unmet
}

// Satisfied reports whether every node in keys is APPROVED.
func (g *ApprovalGraph) Satisfied(keys []string, statusOf func(string) ApprovalStatus) bool {
	for _, key := range keys {
		if statusOf(key) != ApprovalApproved {
			return false
		}
	}
	return true
}

// placeholder subject codes that carry no stable identity.
var sentinelCodes = map[string]struct{}{
	"": {}, "-": {}, "--": {}, "na": {}, "n/a": {}, "nil": {}, "none": {},
}

// SubjectKey normalizes a subject code (or its name when the code is a
// sentinel placeholder) into the token used to key subject statuses:
// lowercase, runs of non-alphanumerics collapsed to a single underscore.
// The enrollment resolver and the clearance store must both use this
// function or subject rows become orphaned.
func SubjectKey(code, name string) string {
	source := strings.TrimSpace(strings.ToLower(code))
	if _, sentinel := sentinelCodes[source]; sentinel {
		source = strings.TrimSpace(strings.ToLower(name))
	}

	var b strings.Builder
	b.Grow(len(source))
	lastUnderscore := false
	for _, ch := range source {
		if (ch >= 'a' && ch <= 'z') || (ch >= '0' && ch <= '9') {
			b.WriteRune(ch)
			lastUnderscore = false
			continue
		}
		if !lastUnderscore && b.Len() > 0 {
			b.WriteByte('_')
			lastUnderscore = true
		}
	}
	return strings.TrimSuffix(b.String(), "_")
}
