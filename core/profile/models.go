package profile

import (
	"time"
)

// Roles
const (
	RoleStudent = "student"
	RoleTeacher = "teacher"
	RoleAdmin   = "admin"
)

var AllRoles = []string{RoleStudent, RoleTeacher, RoleAdmin}

// Approval statuses
const (
	StatusPending  = "PENDING"
	StatusApproved = "APPROVED"
	StatusRejected = "REJECTED"
)

// Approval actions
const (
	ActionApprove = "approve"
	ActionReject  = "reject"
)

// SystemApprover marks transitions performed by the core itself
// (admin auto-approval).
const SystemApprover = "system"

// StudentAttrs holds the student variant fields.
type StudentAttrs struct {
	EnrollmentNo  string   `json:"enrollment_no"`
	ClassLevel    string   `json:"class_level"`
	GuardianName  string   `json:"guardian_name"`
	GuardianPhone string   `json:"guardian_phone"`
	Subjects      []string `json:"subjects,omitempty"`
	Batches       []string `json:"batches,omitempty"`
}

// TeacherAttrs holds the teacher variant fields.
type TeacherAttrs struct {
	Specialization  string `json:"specialization"`
	ExperienceYears int    `json:"experience_years"`
}

// Profile is the role-specific record describing a registrant, gated by an
// approval status. It is a tagged union over a shared base: exactly one of
// Student/Teacher is set, selected by Role (the admin variant carries no
// extra payload).
type Profile struct {
	ID         string    `json:"id"`
	IdentityID string    `json:"identity_id"`
	Role       string    `json:"role"`
	Status     string    `json:"status"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	CreatedAt  time.Time `json:"created_at"` // UTC
	UpdatedAt  time.Time `json:"updated_at"` // UTC

	ApprovedBy      string    `json:"approved_by,omitempty"`
	ApprovedAt      time.Time `json:"approved_at,omitempty"`
	RejectedBy      string    `json:"rejected_by,omitempty"`
	RejectedAt      time.Time `json:"rejected_at,omitempty"`
	RejectionReason string    `json:"rejection_reason,omitempty"`

	Student *StudentAttrs `json:"student,omitempty"`
	Teacher *TeacherAttrs `json:"teacher,omitempty"`
}

func (p *Profile) IsPending() bool  { return p.Status == StatusPending }
func (p *Profile) IsApproved() bool { return p.Status == StatusApproved }
func (p *Profile) IsRejected() bool { return p.Status == StatusRejected }

// ApprovalAction is an append-only audit record of an approve/reject
// transition.
type ApprovalAction struct {
	ID           string    `json:"id"`
	ProfileID    string    `json:"profile_id"`
	ApproverID   string    `json:"approver_id"`
	ApproverRole string    `json:"approver_role"`
	Action       string    `json:"action"`
	Reason       string    `json:"reason,omitempty"`
	CreatedAt    time.Time `json:"created_at"` // UTC
}

// QueryFilter narrows profile queries. Fields are ANDed.
type QueryFilter struct {
	Role   string `query:"role"`
	Status string `query:"status"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Role == "" && qf.Status == ""
}
