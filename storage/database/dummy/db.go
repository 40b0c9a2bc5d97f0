package dummydb

import (
	"sync"

	"github.com/trezcool/shule/core/profile"
)

type (
	DB struct {
		profile *profileTable
		action  *actionTable
		seq     *sequence
	}

	profileTable struct {
		t     map[string]*profile.Profile // by ID
		mutex sync.RWMutex
	}

	actionTable struct {
		t     []profile.ApprovalAction
		mutex sync.RWMutex
	}

	sequence struct {
		n     int
		mutex sync.Mutex
	}
)

func Open() (*DB, error) {
	db := &DB{
		profile: &profileTable{t: make(map[string]*profile.Profile)},
		action:  &actionTable{},
		seq:     &sequence{},
	}
	return db, nil
}
