// Package policy is the row-level access layer in front of the persisted
// profile and audit collections. Every read/write is evaluated against the
// authenticated caller carried in the context; a denial (profile.ErrDenied)
// is distinguishable from not-found and from validation failures.
package policy

import (
	"context"

	"github.com/trezcool/shule/core/profile"
)

// Store gates an underlying profile.Repository with per-caller allow/deny
// rules.
type Store struct {
	inner profile.Repository
}

var _ profile.Repository = (*Store)(nil)

func NewStore(inner profile.Repository) *Store {
	return &Store{inner: inner}
}

func caller(ctx context.Context) (profile.Caller, bool) {
	return profile.CallerFrom(ctx)
}

// canRead reports whether c may see p: the core itself and admins see
// everything, a teacher sees student profiles plus their own, everyone
// sees their own.
func canRead(c profile.Caller, p profile.Profile) bool {
	if c.IsSystem() || c.IsAdmin() {
		return true
	}
	if c.IsTeacher() && p.Role == profile.RoleStudent {
		return true
	}
	return p.IdentityID == c.ID
}

// canTransition reports whether c may write a status transition on p:
// admins on any profile, teachers on student profiles only.
func canTransition(c profile.Caller, p profile.Profile) bool {
	if c.IsAdmin() {
		return true
	}
	return c.IsTeacher() && p.Role == profile.RoleStudent
}

func (s *Store) CreateProfile(ctx context.Context, p profile.Profile) (profile.Profile, error) {
	c, ok := caller(ctx)
	if !ok || !c.IsSystem() {
		// profiles are only ever inserted by the provisioning pipeline
		return profile.Profile{}, profile.ErrDenied
	}
	return s.inner.CreateProfile(ctx, p)
}

func (s *Store) GetProfileByID(ctx context.Context, id string) (profile.Profile, error) {
	c, ok := caller(ctx)
	if !ok {
		return profile.Profile{}, profile.ErrDenied
	}
	p, err := s.inner.GetProfileByID(ctx, id)
	if err != nil {
		return profile.Profile{}, err
	}
	if !canRead(c, p) {
		return profile.Profile{}, profile.ErrDenied
	}
	return p, nil
}

func (s *Store) GetProfileByIdentityID(ctx context.Context, identityID string) (profile.Profile, error) {
	c, ok := caller(ctx)
	if !ok {
		return profile.Profile{}, profile.ErrDenied
	}
	p, err := s.inner.GetProfileByIdentityID(ctx, identityID)
	if err != nil {
		return profile.Profile{}, err
	}
	if !canRead(c, p) {
		return profile.Profile{}, profile.ErrDenied
	}
	return p, nil
}

func (s *Store) FilterProfiles(ctx context.Context, filter profile.QueryFilter) ([]profile.Profile, error) {
	c, ok := caller(ctx)
	if !ok {
		return nil, profile.ErrDenied
	}
	profiles, err := s.inner.FilterProfiles(ctx, filter)
	if err != nil {
		return nil, err
	}
	visible := make([]profile.Profile, 0, len(profiles))
	for _, p := range profiles {
		if canRead(c, p) {
			visible = append(visible, p)
		}
	}
	return visible, nil
}

func (s *Store) DecideProfile(ctx context.Context, p profile.Profile, prevStatus string, act profile.ApprovalAction) (profile.Profile, error) {
	c, ok := caller(ctx)
	if !ok || !canTransition(c, p) {
		return profile.Profile{}, profile.ErrDenied
	}
	// the audit log only ever records the caller's own decisions
	if act.ApproverID != c.ID {
		return profile.Profile{}, profile.ErrDenied
	}
	return s.inner.DecideProfile(ctx, p, prevStatus, act)
}

func (s *Store) CountStudents(ctx context.Context) (int, error) {
	c, ok := caller(ctx)
	if !ok || !(c.IsSystem() || c.IsAdmin()) {
		return 0, profile.ErrDenied
	}
	return s.inner.CountStudents(ctx)
}

func (s *Store) NextEnrollmentSeq(ctx context.Context) (int, error) {
	c, ok := caller(ctx)
	if !ok || !c.IsSystem() {
		return 0, profile.ErrDenied
	}
	return s.inner.NextEnrollmentSeq(ctx)
}

func (s *Store) ApprovalActionsByProfile(ctx context.Context, profileID string) ([]profile.ApprovalAction, error) {
	c, ok := caller(ctx)
	if !ok || !(c.IsSystem() || c.IsAdmin() || c.IsTeacher()) {
		return nil, profile.ErrDenied
	}
	return s.inner.ApprovalActionsByProfile(ctx, profileID)
}
