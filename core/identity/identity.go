package identity

import (
	"context"
	"errors"
	"time"
)

var (
	// errors
	ErrNotFound = errors.New("account not found")

	// business-rule rejections from the provider; never retried.
	ErrEmailTaken   = errors.New("an account with this email already exists")
	ErrWeakPassword = errors.New("password does not meet the strength policy")

	// ErrMetadataRejected signals the provider refused the signup metadata
	// shape. Unlike the errors above this is not a business rule and the
	// caller may retry with a reduced payload.
	ErrMetadataRejected = errors.New("signup metadata rejected by the provider")

	ErrInvalidToken = errors.New("invalid or expired confirmation token")
)

// Metadata is the role/attributes snapshot embedded in the provider account
// at signup time. It is the only place the registrant's intent survives an
// email-confirmation round trip.
type Metadata struct {
	Role string `json:"role"`
	Name string `json:"name"`

	// student attributes
	ClassLevel    string   `json:"class_level,omitempty"`
	GuardianName  string   `json:"guardian_name,omitempty"`
	GuardianPhone string   `json:"guardian_phone,omitempty"`
	Subjects      []string `json:"subjects,omitempty"`
	Batches       []string `json:"batches,omitempty"`

	// teacher attributes
	Specialization  string `json:"specialization,omitempty"`
	ExperienceYears int    `json:"experience_years,omitempty"`
}

// WithoutOptional drops the optional selections, keeping role, name and the
// per-role required attributes.
func (m Metadata) WithoutOptional() Metadata {
	m.Subjects = nil
	m.Batches = nil
	m.Specialization = ""
	m.ExperienceYears = 0
	return m
}

// Minimal keeps only the role and name.
func (m Metadata) Minimal() Metadata {
	return Metadata{Role: m.Role, Name: m.Name}
}

// Identity is an account record owned by the external identity provider.
// The core only ever reads it.
type Identity struct {
	ID        string
	Email     string
	Confirmed bool
	Metadata  Metadata
	CreatedAt time.Time
}

// Session is an active authenticated session granted by the provider.
type Session struct {
	AccessToken string
	ExpiresAt   time.Time
}

// NewAccount contains information needed to create a provider account.
type NewAccount struct {
	Email           string
	Password        string
	Metadata        Metadata
	ConfirmRedirect string
}

// Provider is the capability contract required from the external identity
// provider. Authentication mechanics (password hashing, token issuance,
// email delivery) are entirely opaque to the core.
type Provider interface {
	// CreateAccount registers a new account. The returned session is nil
	// when the provider requires an email confirmation round trip first.
	CreateAccount(ctx context.Context, acc NewAccount) (Identity, *Session, error)

	// GetUser returns the identity associated with an access token.
	GetUser(ctx context.Context, accessToken string) (Identity, error)

	// ConfirmCallback resolves a confirmation callback token into the
	// (now confirmed) identity it belongs to.
	ConfirmCallback(ctx context.Context, token string) (Identity, error)
}
