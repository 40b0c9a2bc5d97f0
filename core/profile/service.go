package profile

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/identity"
)

var (
	// errors
	ErrNotFound = errors.New("profile not found")

	// ErrDenied is returned when the access policy layer refuses an
	// operation for the current caller. It is a configuration/authorization
	// problem: retrying cannot change the outcome.
	ErrDenied = errors.New("operation denied by access policy")

	// ErrProfileExists is returned by repositories on an identity_id
	// uniqueness conflict; the provisioner treats it as "already
	// provisioned".
	ErrProfileExists = errors.New("a profile already exists for this identity")

	// ErrEnrollmentTaken is returned by repositories on an enrollment_no
	// uniqueness conflict.
	ErrEnrollmentTaken = errors.New("enrollment number already taken")

	// ErrStatusChanged is returned by repositories when a conditional status
	// update finds the row no longer in the expected previous status.
	ErrStatusChanged = errors.New("profile status changed concurrently")

	// ErrNotPending rejects an approve/reject on a profile that already
	// reached a terminal status.
	ErrNotPending = errors.New("profile is not pending approval")

	// ErrAllocationConflict surfaces a repeated enrollment number collision
	// after the single re-allocation attempt.
	ErrAllocationConflict = errors.New("enrollment number allocation conflict")
)

// ProvisioningError wraps a profile insert failure that is not a uniqueness
// conflict.
type ProvisioningError struct {
	Err error
}

func (e *ProvisioningError) Error() string {
	return "profile provisioning failed: " + e.Err.Error()
}

func (e *ProvisioningError) Unwrap() error { return e.Err }

type (
	Repository interface {
		// CreateProfile inserts a profile. It returns ErrProfileExists on an
		// identity_id conflict and ErrEnrollmentTaken on an enrollment_no
		// conflict.
		CreateProfile(ctx context.Context, p Profile) (Profile, error)
		GetProfileByID(ctx context.Context, id string) (Profile, error)
		GetProfileByIdentityID(ctx context.Context, identityID string) (Profile, error)
		// FilterProfiles applies AND operation on available QueryFilter fields.
		FilterProfiles(ctx context.Context, filter QueryFilter) ([]Profile, error)
		// DecideProfile writes the status transition carried by p and appends
		// act in a single atomic operation, only if the stored status still
		// equals prevStatus; the losing concurrent writer gets
		// ErrStatusChanged. A transition is never persisted without its
		// audit entry, and vice versa.
		DecideProfile(ctx context.Context, p Profile, prevStatus string, act ApprovalAction) (Profile, error)
		CountStudents(ctx context.Context) (int, error)
		// NextEnrollmentSeq atomically increments and returns the student
		// enrollment sequence.
		NextEnrollmentSeq(ctx context.Context) (int, error)
		ApprovalActionsByProfile(ctx context.Context, profileID string) ([]ApprovalAction, error)
	}

	Service struct {
		repo        Repository
		alloc       Allocator
		mailSvc     core.EmailService
		logger      core.Logger
		frontendURL string
	}
)

func NewService(repo Repository, alloc Allocator, mailSvc core.EmailService, logger core.Logger, conf *core.Config) *Service {
	return &Service{
		repo:        repo,
		alloc:       alloc,
		mailSvc:     mailSvc,
		logger:      logger,
		frontendURL: conf.FrontendBaseURL,
	}
}

// Provision builds and persists the role-specific profile for ident.
// It is idempotent: repeated calls for the same identity return the existing
// profile instead of creating a duplicate row.
func (svc *Service) Provision(ctx context.Context, ident identity.Identity) (Profile, error) {
	existing, err := svc.repo.GetProfileByIdentityID(ctx, ident.ID)
	if err == nil {
		return existing, nil
	}
	if errors.Cause(err) != ErrNotFound {
		return Profile{}, errors.Wrap(err, "checking existing profile")
	}

	p, err := svc.build(ctx, ident)
	if err != nil {
		return Profile{}, err
	}

	created, err := svc.repo.CreateProfile(ctx, p)
	if err == nil {
		return created, nil
	}

	switch errors.Cause(err) {
	case ErrProfileExists:
		// lost the race to a concurrent provisioning of the same identity
		return svc.repo.GetProfileByIdentityID(ctx, ident.ID)
	case ErrEnrollmentTaken:
		return svc.retryEnrollment(ctx, p)
	}
	return Profile{}, &ProvisioningError{err}
}

func (svc *Service) build(ctx context.Context, ident identity.Identity) (Profile, error) {
	meta := ident.Metadata
	now := time.Now().UTC()
	p := Profile{
		ID:         uuid.New().String(),
		IdentityID: ident.ID,
		Role:       meta.Role,
		Status:     StatusPending,
		Name:       meta.Name,
		Email:      ident.Email,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	switch meta.Role {
	case RoleAdmin:
		// admins never go through the approval queue
		p.Status = StatusApproved
		p.ApprovedBy = SystemApprover
		p.ApprovedAt = now
	case RoleTeacher:
		p.Teacher = &TeacherAttrs{
			Specialization:  meta.Specialization,
			ExperienceYears: meta.ExperienceYears,
		}
	case RoleStudent:
		no, err := svc.alloc.Allocate(ctx)
		if err != nil {
			return Profile{}, errors.Wrap(err, "allocating enrollment number")
		}
		p.Student = &StudentAttrs{
			EnrollmentNo:  no,
			ClassLevel:    meta.ClassLevel,
			GuardianName:  meta.GuardianName,
			GuardianPhone: meta.GuardianPhone,
			Subjects:      meta.Subjects,
			Batches:       meta.Batches,
		}
	default:
		return Profile{}, core.NewValidationError(
			errors.Errorf("unknown role %q", meta.Role),
			core.FieldError{Field: "role", Error: "must be one of " + strings.Join(AllRoles, ", ")},
		)
	}
	return p, nil
}

// retryEnrollment makes the single re-allocation attempt allowed on an
// enrollment number collision.
func (svc *Service) retryEnrollment(ctx context.Context, p Profile) (Profile, error) {
	if p.Student == nil {
		return Profile{}, ErrEnrollmentTaken
	}
	svc.logger.Warn("enrollment number collision, re-allocating",
		"identity_id", p.IdentityID, "enrollment_no", p.Student.EnrollmentNo)

	no, err := svc.alloc.Allocate(ctx)
	if err != nil {
		return Profile{}, errors.Wrap(err, "re-allocating enrollment number")
	}
	p.Student.EnrollmentNo = no

	created, err := svc.repo.CreateProfile(ctx, p)
	if err == nil {
		return created, nil
	}
	switch errors.Cause(err) {
	case ErrProfileExists:
		return svc.repo.GetProfileByIdentityID(ctx, p.IdentityID)
	case ErrEnrollmentTaken:
		return Profile{}, ErrAllocationConflict
	}
	return Profile{}, &ProvisioningError{err}
}

// canModerate checks that caller's role is authorized for the profile's
// role: admin may moderate any profile, a teacher only student profiles.
// The policy layer enforces the same rule on the subsequent write.
func canModerate(caller Caller, p Profile) error {
	if caller.IsAdmin() {
		return nil
	}
	if caller.IsTeacher() && p.Role == RoleStudent {
		return nil
	}
	return ErrDenied
}

// Approve transitions a PENDING profile to APPROVED, recording the approver
// and appending an audit entry in the same storage operation. A non-PENDING
// profile is rejected with ErrNotPending, not silently ignored.
func (svc *Service) Approve(ctx context.Context, caller Caller, profileID string) (Profile, error) {
	ctx = WithCaller(ctx, caller)
	p, err := svc.repo.GetProfileByID(ctx, profileID)
	if err != nil {
		return Profile{}, err
	}
	if err := canModerate(caller, p); err != nil {
		return Profile{}, err
	}
	if !p.IsPending() {
		return Profile{}, ErrNotPending
	}

	now := time.Now().UTC()
	upd := p
	upd.Status = StatusApproved
	upd.ApprovedBy = caller.ID
	upd.ApprovedAt = now
	upd.UpdatedAt = now

	saved, err := svc.repo.DecideProfile(ctx, upd, StatusPending, newAction(p.ID, caller, ActionApprove, "", now))
	if err != nil {
		if errors.Cause(err) == ErrStatusChanged {
			return Profile{}, ErrNotPending
		}
		return Profile{}, errors.Wrap(err, "approving profile")
	}
	svc.notifyOutcome(saved)
	return saved, nil
}

// Reject transitions a PENDING profile to REJECTED. A non-empty reason is
// required.
func (svc *Service) Reject(ctx context.Context, caller Caller, profileID, reason string) (Profile, error) {
	reason = core.CleanString(reason)
	if reason == "" {
		return Profile{}, core.NewValidationError(
			errors.New("a rejection reason is required"),
			core.FieldError{Field: "reason", Error: "this field is required"},
		)
	}

	ctx = WithCaller(ctx, caller)
	p, err := svc.repo.GetProfileByID(ctx, profileID)
	if err != nil {
		return Profile{}, err
	}
	if err := canModerate(caller, p); err != nil {
		return Profile{}, err
	}
	if !p.IsPending() {
		return Profile{}, ErrNotPending
	}

	now := time.Now().UTC()
	upd := p
	upd.Status = StatusRejected
	upd.RejectedBy = caller.ID
	upd.RejectedAt = now
	upd.RejectionReason = reason
	upd.UpdatedAt = now

	saved, err := svc.repo.DecideProfile(ctx, upd, StatusPending, newAction(p.ID, caller, ActionReject, reason, now))
	if err != nil {
		if errors.Cause(err) == ErrStatusChanged {
			return Profile{}, ErrNotPending
		}
		return Profile{}, errors.Wrap(err, "rejecting profile")
	}
	svc.notifyOutcome(saved)
	return saved, nil
}

type (
	BulkFailure struct {
		ProfileID string `json:"profile_id"`
		Reason    string `json:"reason"`
	}

	BulkResult struct {
		Approved int           `json:"approved"`
		Failures []BulkFailure `json:"failures,omitempty"`
	}
)

// ApproveAll approves every pending profile the caller may moderate.
// It is best-effort: each row is transitioned independently and a failure on
// one row does not roll back the others.
func (svc *Service) ApproveAll(ctx context.Context, caller Caller) (BulkResult, error) {
	pending, err := svc.Pending(ctx, caller)
	if err != nil {
		return BulkResult{}, err
	}

	var res BulkResult
	for _, p := range pending {
		if _, err := svc.Approve(ctx, caller, p.ID); err != nil {
			res.Failures = append(res.Failures, BulkFailure{ProfileID: p.ID, Reason: err.Error()})
			continue
		}
		res.Approved++
	}
	return res, nil
}

// Pending lists the profiles awaiting a decision from the caller; a teacher
// only sees student profiles.
func (svc *Service) Pending(ctx context.Context, caller Caller) ([]Profile, error) {
	ctx = WithCaller(ctx, caller)
	filter := QueryFilter{Status: StatusPending}
	if caller.IsTeacher() {
		filter.Role = RoleStudent
	}
	return svc.repo.FilterProfiles(ctx, filter)
}

func (svc *Service) GetByID(ctx context.Context, id string) (Profile, error) {
	return svc.repo.GetProfileByID(ctx, id)
}

func (svc *Service) GetByIdentityID(ctx context.Context, identityID string) (Profile, error) {
	return svc.repo.GetProfileByIdentityID(ctx, identityID)
}

func (svc *Service) Actions(ctx context.Context, profileID string) ([]ApprovalAction, error) {
	return svc.repo.ApprovalActionsByProfile(ctx, profileID)
}

func newAction(profileID string, caller Caller, action, reason string, at time.Time) ApprovalAction {
	return ApprovalAction{
		ID:           uuid.New().String(),
		ProfileID:    profileID,
		ApproverID:   caller.ID,
		ApproverRole: caller.Role,
		Action:       action,
		Reason:       reason,
		CreatedAt:    at,
	}
}

// notifyOutcome emails the registrant about the decision; failures only log.
func (svc *Service) notifyOutcome(p Profile) {
	if svc.mailSvc == nil || p.Email == "" {
		return
	}
	var body string
	switch p.Status {
	case StatusApproved:
		body = "Good news! Your registration has been approved and your account is now active."
		if p.Student != nil {
			body += fmt.Sprintf("\nYour enrollment number is %s.", p.Student.EnrollmentNo)
		}
		if svc.frontendURL != "" {
			body += fmt.Sprintf("\nSign in at %s to get started.", svc.frontendURL)
		}
	case StatusRejected:
		body = fmt.Sprintf("Your registration was not approved.\nReason: %s", p.RejectionReason)
	default:
		return
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:      []mail.Address{{Name: p.Name, Address: p.Email}},
		Subject: "Registration update",
		BodyStr: body,
	})
}
