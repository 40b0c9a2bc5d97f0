package registration

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/identity"
	"github.com/trezcool/shule/core/profile"
)

const (
	confirmationSentMsg = "Check your email to confirm your address and complete your registration."
	registeredMsg       = "Registration received. You will be notified once an administrator reviews it."
)

// Service orchestrates the registration-to-approval pipeline: it validates
// input, creates the provider account and drives provisioning either
// synchronously (provider granted a session) or on the deferred
// email-confirmation callback.
type Service struct {
	provider        identity.Provider
	profiles        *profile.Service
	validate        *validator.Validate
	logger          core.Logger
	confirmRedirect string
}

func NewService(
	provider identity.Provider,
	profiles *profile.Service,
	validate *validator.Validate,
	logger core.Logger,
	conf *core.Config,
) *Service {
	return &Service{
		provider:        provider,
		profiles:        profiles,
		validate:        validate,
		logger:          logger,
		confirmRedirect: conf.Identity.ConfirmRedirect,
	}
}

// Register validates nr, creates the provider account and, when the
// provider grants a session immediately, provisions the profile
// synchronously. Otherwise the result carries RequiresConfirmation and
// provisioning happens in ConfirmEmail.
//
// Validation failures never reach the provider. Provider business-rule
// rejections (duplicate email, weak password) are surfaced verbatim and
// never retried; only a metadata-shape rejection triggers the bounded
// reduced-payload retry.
func (svc *Service) Register(ctx context.Context, nr NewRegistration) (RegistrationResult, error) {
	if err := nr.Validate(svc.validate); err != nil {
		return RegistrationResult{}, err
	}

	ident, sess, err := svc.createAccount(ctx, nr)
	if err != nil {
		return RegistrationResult{}, err
	}

	if sess == nil {
		// deferred-until-confirmed is the canonical policy: no profile is
		// visible until the confirmation callback fires.
		return RegistrationResult{
			Success:              true,
			RequiresConfirmation: true,
			Message:              confirmationSentMsg,
		}, nil
	}

	// legacy immediate path: only taken when the provider is configured to
	// grant sessions at signup (autoconfirm)
	return svc.provision(ctx, ident)
}

// createAccount calls the provider with the full metadata snapshot, then
// retries in a bounded, strictly decreasing payload sequence if the
// provider rejects the metadata shape.
func (svc *Service) createAccount(ctx context.Context, nr NewRegistration) (identity.Identity, *identity.Session, error) {
	meta := nr.Metadata()
	payloads := []identity.Metadata{meta, meta.WithoutOptional(), meta.Minimal()}

	var (
		ident identity.Identity
		sess  *identity.Session
		err   error
	)
	for i, m := range payloads {
		ident, sess, err = svc.provider.CreateAccount(ctx, identity.NewAccount{
			Email:           nr.Email,
			Password:        nr.Password,
			Metadata:        m,
			ConfirmRedirect: svc.confirmRedirect,
		})
		if err == nil {
			return ident, sess, nil
		}
		if errors.Cause(err) == identity.ErrMetadataRejected && i < len(payloads)-1 {
			svc.logger.Warn("provider rejected signup metadata, retrying with reduced payload",
				"email", nr.Email, "attempt", i+1)
			continue
		}
		break
	}
	return identity.Identity{}, nil, err
}

// ConfirmEmail completes provisioning when the provider signals that an
// account's email has been confirmed. It tolerates duplicate callbacks
// (browser refresh, provider retry): provisioning is idempotent and repeat
// invocations return the already-created profile.
func (svc *Service) ConfirmEmail(ctx context.Context, token string) (RegistrationResult, error) {
	ident, err := svc.provider.ConfirmCallback(ctx, token)
	if err != nil {
		if errors.Cause(err) == identity.ErrInvalidToken {
			return RegistrationResult{}, core.NewValidationError(err,
				core.FieldError{Field: "token", Error: err.Error()})
		}
		return RegistrationResult{}, errors.Wrap(err, "resolving confirmation callback")
	}
	return svc.provision(ctx, ident)
}

func (svc *Service) provision(ctx context.Context, ident identity.Identity) (RegistrationResult, error) {
	prof, err := svc.profiles.Provision(profile.WithCaller(ctx, profile.SystemCaller), ident)
	if err != nil {
		return RegistrationResult{}, err
	}

	res := RegistrationResult{
		Success:   true,
		Message:   registeredMsg,
		ProfileID: prof.ID,
	}
	if prof.Student != nil {
		res.EnrollmentNo = prof.Student.EnrollmentNo
	}
	if prof.IsApproved() {
		res.Message = "Registration complete. Your account is active."
	}
	return res, nil
}
