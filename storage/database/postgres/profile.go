package pgrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/shule/core/profile"
)

const pqUniqueViolation = "23505"

type profileRepository struct {
	db *sqlx.DB
}

var _ profile.Repository = (*profileRepository)(nil) // interface compliance check

func NewProfileRepository(db *sqlx.DB) *profileRepository {
	return &profileRepository{db: db}
}

// profileRow maps the profile table; role-specific columns are nullable.
type profileRow struct {
	ID              string         `db:"id"`
	IdentityID      string         `db:"identity_id"`
	Role            string         `db:"role"`
	Status          string         `db:"status"`
	Name            string         `db:"name"`
	Email           string         `db:"email"`
	CreatedAt       time.Time      `db:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at"`
	ApprovedBy      null.String    `db:"approved_by"`
	ApprovedAt      null.Time      `db:"approved_at"`
	RejectedBy      null.String    `db:"rejected_by"`
	RejectedAt      null.Time      `db:"rejected_at"`
	RejectionReason null.String    `db:"rejection_reason"`
	EnrollmentNo    null.String    `db:"enrollment_no"`
	ClassLevel      null.String    `db:"class_level"`
	GuardianName    null.String    `db:"guardian_name"`
	GuardianPhone   null.String    `db:"guardian_phone"`
	Subjects        pq.StringArray `db:"subjects"`
	Batches         pq.StringArray `db:"batches"`
	Specialization  null.String    `db:"specialization"`
	ExperienceYears null.Int       `db:"experience_years"`
}

func toRow(p profile.Profile) profileRow {
	row := profileRow{
		ID:              p.ID,
		IdentityID:      p.IdentityID,
		Role:            p.Role,
		Status:          p.Status,
		Name:            p.Name,
		Email:           p.Email,
		CreatedAt:       p.CreatedAt.UTC(),
		UpdatedAt:       p.UpdatedAt.UTC(),
		ApprovedBy:      null.NewString(p.ApprovedBy, p.ApprovedBy != ""),
		ApprovedAt:      null.NewTime(p.ApprovedAt.UTC(), !p.ApprovedAt.IsZero()),
		RejectedBy:      null.NewString(p.RejectedBy, p.RejectedBy != ""),
		RejectedAt:      null.NewTime(p.RejectedAt.UTC(), !p.RejectedAt.IsZero()),
		RejectionReason: null.NewString(p.RejectionReason, p.RejectionReason != ""),
	}
	if p.Student != nil {
		row.EnrollmentNo = null.StringFrom(p.Student.EnrollmentNo)
		row.ClassLevel = null.StringFrom(p.Student.ClassLevel)
		row.GuardianName = null.StringFrom(p.Student.GuardianName)
		row.GuardianPhone = null.StringFrom(p.Student.GuardianPhone)
		row.Subjects = p.Student.Subjects
		row.Batches = p.Student.Batches
	}
	if p.Teacher != nil {
		row.Specialization = null.StringFrom(p.Teacher.Specialization)
		row.ExperienceYears = null.IntFrom(p.Teacher.ExperienceYears)
	}
	return row
}

func fromRow(row profileRow) profile.Profile {
	p := profile.Profile{
		ID:              row.ID,
		IdentityID:      row.IdentityID,
		Role:            row.Role,
		Status:          row.Status,
		Name:            row.Name,
		Email:           row.Email,
		CreatedAt:       row.CreatedAt,
		UpdatedAt:       row.UpdatedAt,
		ApprovedBy:      row.ApprovedBy.String,
		ApprovedAt:      row.ApprovedAt.Time,
		RejectedBy:      row.RejectedBy.String,
		RejectedAt:      row.RejectedAt.Time,
		RejectionReason: row.RejectionReason.String,
	}
	switch row.Role {
	case profile.RoleStudent:
		p.Student = &profile.StudentAttrs{
			EnrollmentNo:  row.EnrollmentNo.String,
			ClassLevel:    row.ClassLevel.String,
			GuardianName:  row.GuardianName.String,
			GuardianPhone: row.GuardianPhone.String,
			Subjects:      row.Subjects,
			Batches:       row.Batches,
		}
	case profile.RoleTeacher:
		p.Teacher = &profile.TeacherAttrs{
			Specialization:  row.Specialization.String,
			ExperienceYears: int(row.ExperienceYears.Int),
		}
	}
	return p
}

// trapConflictErr maps psql uniqueness violations to the repository's
// conflict sentinels.
func trapConflictErr(err error, msg string) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
		switch pqErr.Constraint {
		case "profile_identity_id_key":
			return profile.ErrProfileExists
		case "profile_enrollment_no_key":
			return profile.ErrEnrollmentTaken
		}
	}
	return errors.Wrap(err, msg)
}

// trapNoRowsErr maps psql "no rows" err to profile.ErrNotFound
func trapNoRowsErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return profile.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

const profileColumns = `id, identity_id, role, status, name, email, created_at, updated_at,
	approved_by, approved_at, rejected_by, rejected_at, rejection_reason,
	enrollment_no, class_level, guardian_name, guardian_phone, subjects, batches,
	specialization, experience_years`

func (repo profileRepository) CreateProfile(ctx context.Context, p profile.Profile) (profile.Profile, error) {
	row := toRow(p)
	_, err := repo.db.NamedExecContext(ctx, `
		INSERT INTO profile (`+profileColumns+`)
		VALUES (:id, :identity_id, :role, :status, :name, :email, :created_at, :updated_at,
			:approved_by, :approved_at, :rejected_by, :rejected_at, :rejection_reason,
			:enrollment_no, :class_level, :guardian_name, :guardian_phone, :subjects, :batches,
			:specialization, :experience_years)`,
		row,
	)
	if err != nil {
		return profile.Profile{}, trapConflictErr(err, "inserting profile")
	}
	return fromRow(row), nil
}

func (repo profileRepository) GetProfileByID(ctx context.Context, id string) (profile.Profile, error) {
	var row profileRow
	err := repo.db.GetContext(ctx, &row, `SELECT `+profileColumns+` FROM profile WHERE id = $1`, id)
	if err != nil {
		return profile.Profile{}, trapNoRowsErr(err, "getting profile by id")
	}
	return fromRow(row), nil
}

func (repo profileRepository) GetProfileByIdentityID(ctx context.Context, identityID string) (profile.Profile, error) {
	var row profileRow
	err := repo.db.GetContext(ctx, &row, `SELECT `+profileColumns+` FROM profile WHERE identity_id = $1`, identityID)
	if err != nil {
		return profile.Profile{}, trapNoRowsErr(err, "getting profile by identity id")
	}
	return fromRow(row), nil
}

func (repo profileRepository) FilterProfiles(ctx context.Context, filter profile.QueryFilter) ([]profile.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profile`
	var (
		where []string
		args  []interface{}
	)
	if filter.Role != "" {
		args = append(args, filter.Role)
		where = append(where, "role = $1")
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		if len(args) == 1 {
			where = append(where, "status = $1")
		} else {
			where = append(where, "status = $2")
		}
	}
	if len(where) > 0 {
		query += " WHERE " + where[0]
		if len(where) > 1 {
			query += " AND " + where[1]
		}
	}
	query += " ORDER BY created_at"

	var rows []profileRow
	if err := repo.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "filtering profiles")
	}
	profiles := make([]profile.Profile, 0, len(rows))
	for _, row := range rows {
		profiles = append(profiles, fromRow(row))
	}
	return profiles, nil
}

// DecideProfile runs the conditional status update and the audit insert in
// one transaction so a decided row can never exist without its
// approval_action entry.
func (repo profileRepository) DecideProfile(ctx context.Context, p profile.Profile, prevStatus string, act profile.ApprovalAction) (profile.Profile, error) {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return profile.Profile{}, errors.Wrap(err, "beginning decision transaction")
	}
	defer tx.Rollback()

	row := toRow(p)
	res, err := tx.ExecContext(ctx, `
		UPDATE profile
		SET status = $1, approved_by = $2, approved_at = $3,
			rejected_by = $4, rejected_at = $5, rejection_reason = $6, updated_at = $7
		WHERE id = $8 AND status = $9`,
		row.Status, row.ApprovedBy, row.ApprovedAt,
		row.RejectedBy, row.RejectedAt, row.RejectionReason, row.UpdatedAt,
		row.ID, prevStatus,
	)
	if err != nil {
		return profile.Profile{}, errors.Wrap(err, "updating profile status")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return profile.Profile{}, errors.Wrap(err, "updating profile status")
	}
	if n == 0 {
		// distinguish a lost conditional write from a missing row
		var exists bool
		if err := tx.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM profile WHERE id = $1)`, p.ID); err != nil {
			return profile.Profile{}, errors.Wrap(err, "checking profile existence")
		}
		if !exists {
			return profile.Profile{}, profile.ErrNotFound
		}
		return profile.Profile{}, profile.ErrStatusChanged
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO approval_action (id, profile_id, approver_id, approver_role, action, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		act.ID, act.ProfileID, act.ApproverID, act.ApproverRole, act.Action,
		null.NewString(act.Reason, act.Reason != ""), act.CreatedAt.UTC(),
	); err != nil {
		return profile.Profile{}, errors.Wrap(err, "inserting approval action")
	}
	if err := tx.Commit(); err != nil {
		return profile.Profile{}, errors.Wrap(err, "committing decision")
	}
	return repo.GetProfileByID(ctx, p.ID)
}

func (repo profileRepository) CountStudents(ctx context.Context) (int, error) {
	var n int
	err := repo.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM profile WHERE role = $1`, profile.RoleStudent)
	if err != nil {
		return 0, errors.Wrap(err, "counting student profiles")
	}
	return n, nil
}

func (repo profileRepository) NextEnrollmentSeq(ctx context.Context) (int, error) {
	var seq int
	err := repo.db.GetContext(ctx, &seq, `SELECT nextval('enrollment_seq')`)
	if err != nil {
		return 0, errors.Wrap(err, "incrementing enrollment sequence")
	}
	return seq, nil
}

func (repo profileRepository) ApprovalActionsByProfile(ctx context.Context, profileID string) ([]profile.ApprovalAction, error) {
	type actionRow struct {
		ID           string      `db:"id"`
		ProfileID    string      `db:"profile_id"`
		ApproverID   string      `db:"approver_id"`
		ApproverRole string      `db:"approver_role"`
		Action       string      `db:"action"`
		Reason       null.String `db:"reason"`
		CreatedAt    time.Time   `db:"created_at"`
	}
	var rows []actionRow
	err := repo.db.SelectContext(ctx, &rows, `
		SELECT id, profile_id, approver_id, approver_role, action, reason, created_at
		FROM approval_action
		WHERE profile_id = $1
		ORDER BY created_at`,
		profileID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "querying approval actions")
	}
	acts := make([]profile.ApprovalAction, 0, len(rows))
	for _, row := range rows {
		acts = append(acts, profile.ApprovalAction{
			ID:           row.ID,
			ProfileID:    row.ProfileID,
			ApproverID:   row.ApproverID,
			ApproverRole: row.ApproverRole,
			Action:       row.Action,
			Reason:       row.Reason.String,
			CreatedAt:    row.CreatedAt,
		})
	}
	return acts, nil
}
