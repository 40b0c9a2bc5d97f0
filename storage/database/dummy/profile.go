package dummydb

import (
	"context"

	"github.com/trezcool/shule/core/profile"
)

type profileRepository struct {
	profiles *profileTable
	actions  *actionTable
	seq      *sequence
}

var _ profile.Repository = (*profileRepository)(nil) // interface compliance check

func NewProfileRepository(db *DB) *profileRepository {
	return &profileRepository{profiles: db.profile, actions: db.action, seq: db.seq}
}

// clone guards callers against aliasing the stored variant structs.
func clone(p profile.Profile) profile.Profile {
	if p.Student != nil {
		s := *p.Student
		p.Student = &s
	}
	if p.Teacher != nil {
		t := *p.Teacher
		p.Teacher = &t
	}
	return p
}

func (repo *profileRepository) CreateProfile(_ context.Context, p profile.Profile) (profile.Profile, error) {
	repo.profiles.mutex.Lock()
	defer repo.profiles.mutex.Unlock()

	for _, existing := range repo.profiles.t {
		if existing.IdentityID == p.IdentityID {
			return profile.Profile{}, profile.ErrProfileExists
		}
		if p.Student != nil && existing.Student != nil &&
			existing.Student.EnrollmentNo == p.Student.EnrollmentNo {
			return profile.Profile{}, profile.ErrEnrollmentTaken
		}
	}
	stored := clone(p)
	repo.profiles.t[p.ID] = &stored
	return clone(stored), nil
}

func (repo *profileRepository) GetProfileByID(_ context.Context, id string) (profile.Profile, error) {
	repo.profiles.mutex.RLock()
	defer repo.profiles.mutex.RUnlock()

	if p, ok := repo.profiles.t[id]; ok {
		return clone(*p), nil
	}
	return profile.Profile{}, profile.ErrNotFound
}

func (repo *profileRepository) GetProfileByIdentityID(_ context.Context, identityID string) (profile.Profile, error) {
	repo.profiles.mutex.RLock()
	defer repo.profiles.mutex.RUnlock()

	for _, p := range repo.profiles.t {
		if p.IdentityID == identityID {
			return clone(*p), nil
		}
	}
	return profile.Profile{}, profile.ErrNotFound
}

func (repo *profileRepository) FilterProfiles(_ context.Context, filter profile.QueryFilter) ([]profile.Profile, error) {
	repo.profiles.mutex.RLock()
	defer repo.profiles.mutex.RUnlock()

	res := make([]profile.Profile, 0, len(repo.profiles.t))
	for _, p := range repo.profiles.t {
		if filter.Role != "" && p.Role != filter.Role {
			continue
		}
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		res = append(res, clone(*p))
	}
	return res, nil
}

// DecideProfile applies the status transition and appends the audit entry
// under the same lock; the losing concurrent writer gets ErrStatusChanged
// and no action is recorded.
func (repo *profileRepository) DecideProfile(_ context.Context, p profile.Profile, prevStatus string, act profile.ApprovalAction) (profile.Profile, error) {
	repo.profiles.mutex.Lock()
	defer repo.profiles.mutex.Unlock()

	stored, ok := repo.profiles.t[p.ID]
	if !ok {
		return profile.Profile{}, profile.ErrNotFound
	}
	if stored.Status != prevStatus {
		return profile.Profile{}, profile.ErrStatusChanged
	}
	stored.Status = p.Status
	stored.ApprovedBy = p.ApprovedBy
	stored.ApprovedAt = p.ApprovedAt
	stored.RejectedBy = p.RejectedBy
	stored.RejectedAt = p.RejectedAt
	stored.RejectionReason = p.RejectionReason
	stored.UpdatedAt = p.UpdatedAt

	repo.actions.mutex.Lock()
	repo.actions.t = append(repo.actions.t, act)
	repo.actions.mutex.Unlock()
	return clone(*stored), nil
}

func (repo *profileRepository) CountStudents(_ context.Context) (int, error) {
	repo.profiles.mutex.RLock()
	defer repo.profiles.mutex.RUnlock()

	var n int
	for _, p := range repo.profiles.t {
		if p.Role == profile.RoleStudent {
			n++
		}
	}
	return n, nil
}

func (repo *profileRepository) NextEnrollmentSeq(_ context.Context) (int, error) {
	repo.seq.mutex.Lock()
	defer repo.seq.mutex.Unlock()

	repo.seq.n++
	return repo.seq.n, nil
}

func (repo *profileRepository) ApprovalActionsByProfile(_ context.Context, profileID string) ([]profile.ApprovalAction, error) {
	repo.actions.mutex.RLock()
	defer repo.actions.mutex.RUnlock()

	res := make([]profile.ApprovalAction, 0)
	for _, act := range repo.actions.t {
		if act.ProfileID == profileID {
			res = append(res, act)
		}
	}
	return res, nil
}
