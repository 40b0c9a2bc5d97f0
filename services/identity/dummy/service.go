// Package dummyidp is an in-memory identity provider for tests and local
// development.
package dummyidp

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/trezcool/shule/core/identity"
)

type account struct {
	ident        identity.Identity
	passwordHash []byte
	confirmToken string
}

type Service struct {
	// Autoconfirm makes CreateAccount grant a session immediately instead
	// of requiring the email confirmation round trip.
	Autoconfirm bool

	// RejectMetadata, when set, simulates the provider refusing a signup
	// metadata shape.
	RejectMetadata func(identity.Metadata) bool

	// MinPasswordLen simulates the provider's credential strength policy.
	MinPasswordLen int

	mutex    sync.Mutex
	accounts map[string]*account // by identity ID
	tokens   map[string]string   // confirm token -> identity ID
	sessions map[string]string   // access token -> identity ID
}

var _ identity.Provider = (*Service)(nil)

func NewService() *Service {
	return &Service{
		MinPasswordLen: 6,
		accounts:       make(map[string]*account),
		tokens:         make(map[string]string),
		sessions:       make(map[string]string),
	}
}

func (svc *Service) CreateAccount(_ context.Context, acc identity.NewAccount) (identity.Identity, *identity.Session, error) {
	svc.mutex.Lock()
	defer svc.mutex.Unlock()

	for _, a := range svc.accounts {
		if a.ident.Email == acc.Email {
			return identity.Identity{}, nil, identity.ErrEmailTaken
		}
	}
	if len(acc.Password) < svc.MinPasswordLen {
		return identity.Identity{}, nil, identity.ErrWeakPassword
	}
	if svc.RejectMetadata != nil && svc.RejectMetadata(acc.Metadata) {
		return identity.Identity{}, nil, identity.ErrMetadataRejected
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(acc.Password), bcrypt.MinCost)
	if err != nil {
		return identity.Identity{}, nil, err
	}

	a := &account{
		ident: identity.Identity{
			ID:        uuid.New().String(),
			Email:     acc.Email,
			Confirmed: svc.Autoconfirm,
			Metadata:  acc.Metadata,
			CreatedAt: time.Now().UTC(),
		},
		passwordHash: hash,
	}
	svc.accounts[a.ident.ID] = a

	if svc.Autoconfirm {
		token := uuid.New().String()
		svc.sessions[token] = a.ident.ID
		sess := &identity.Session{AccessToken: token, ExpiresAt: time.Now().Add(time.Hour)}
		return a.ident, sess, nil
	}

	a.confirmToken = uuid.New().String()
	svc.tokens[a.confirmToken] = a.ident.ID
	return a.ident, nil, nil
}

func (svc *Service) GetUser(_ context.Context, accessToken string) (identity.Identity, error) {
	svc.mutex.Lock()
	defer svc.mutex.Unlock()

	id, ok := svc.sessions[accessToken]
	if !ok {
		return identity.Identity{}, identity.ErrNotFound
	}
	return svc.accounts[id].ident, nil
}

func (svc *Service) ConfirmCallback(_ context.Context, token string) (identity.Identity, error) {
	svc.mutex.Lock()
	defer svc.mutex.Unlock()

	id, ok := svc.tokens[token]
	if !ok {
		return identity.Identity{}, identity.ErrInvalidToken
	}
	a := svc.accounts[id]
	a.ident.Confirmed = true
	// the token stays valid: callbacks may legitimately repeat (browser
	// refresh) and provisioning is expected to be idempotent
	return a.ident, nil
}

// ConfirmToken exposes the pending confirmation token for an email;
// test helper standing in for the confirmation email link.
func (svc *Service) ConfirmToken(email string) string {
	svc.mutex.Lock()
	defer svc.mutex.Unlock()

	for _, a := range svc.accounts {
		if a.ident.Email == email {
			return a.confirmToken
		}
	}
	return ""
}
