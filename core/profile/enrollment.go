package profile

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
)

// NowFunc returns the current time; mockable in tests.
var NowFunc = time.Now

// Allocator produces a unique human-readable enrollment code for student
// profiles, shaped STU<year><month><zero-padded sequence>.
type Allocator interface {
	Allocate(ctx context.Context) (string, error)
}

// countingAllocator derives the sequence from counting existing student
// profiles at call time. The count-then-construct pattern is NOT atomic:
// two registrations completing in the same period can race and receive the
// same code. Kept as the legacy scheme behind a config switch; see
// sequenceAllocator for the fix.
type countingAllocator struct {
	repo Repository
}

var _ Allocator = (*countingAllocator)(nil)

func NewCountingAllocator(repo Repository) Allocator {
	return &countingAllocator{repo: repo}
}

func (a *countingAllocator) Allocate(ctx context.Context) (string, error) {
	now := NowFunc().UTC()
	n, err := a.repo.CountStudents(ctx)
	if err != nil {
		// fall back to a timestamp-derived suffix to guarantee forward progress
		return enrollmentCode(now, int(now.UnixNano()/int64(time.Millisecond))%10000), nil
	}
	return enrollmentCode(now, n+1), nil
}

// sequenceAllocator draws the sequence from an atomic increment at the
// storage layer, making codes collision-free under concurrent registrations.
type sequenceAllocator struct {
	repo Repository
}

var _ Allocator = (*sequenceAllocator)(nil)

func NewSequenceAllocator(repo Repository) Allocator {
	return &sequenceAllocator{repo: repo}
}

func (a *sequenceAllocator) Allocate(ctx context.Context) (string, error) {
	seq, err := a.repo.NextEnrollmentSeq(ctx)
	if err != nil {
		return "", errors.Wrap(err, "incrementing enrollment sequence")
	}
	return enrollmentCode(NowFunc().UTC(), seq), nil
}

func enrollmentCode(t time.Time, seq int) string {
	return fmt.Sprintf("STU%d%02d%04d", t.Year(), int(t.Month()), seq)
}
