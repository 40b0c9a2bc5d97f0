package registration

import (
	"context"
	"log"
	"os"
	"testing"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/identity"
	"github.com/trezcool/shule/core/profile"
	dummyidp "github.com/trezcool/shule/services/identity/dummy"
	logsvc "github.com/trezcool/shule/services/logger"
	dummydb "github.com/trezcool/shule/storage/database/dummy"
	"github.com/trezcool/shule/storage/policy"
)

// countingProvider counts CreateAccount calls so tests can pin down the
// retry behavior.
type countingProvider struct {
	*dummyidp.Service
	attempts int
}

func (p *countingProvider) CreateAccount(ctx context.Context, acc identity.NewAccount) (identity.Identity, *identity.Session, error) {
	p.attempts++
	return p.Service.CreateAccount(ctx, acc)
}

type testEnv struct {
	svc      *Service
	provider *countingProvider
	profiles *profile.Service
}

func setup(t *testing.T) *testEnv {
	t.Helper()

	db, err := dummydb.Open()
	require.NoError(t, err)
	repo := policy.NewStore(dummydb.NewProfileRepository(db))

	enLocale := en.New()
	uni := ut.New(enLocale, enLocale)
	translator, _ := uni.GetTranslator("en")
	validate := validator.New()
	core.InitValidators(validate, translator)
	RegisterValidators(validate, translator)

	logger := logsvc.NewConsoleLogger(log.New(os.Stdout, "TEST : ", log.LstdFlags))
	conf := &core.Config{}
	conf.Identity.ConfirmRedirect = "http://localhost:8000/v1/register/confirm"
	profSvc := profile.NewService(repo, profile.NewSequenceAllocator(repo), nil, logger, conf)

	provider := &countingProvider{Service: dummyidp.NewService()}

	return &testEnv{
		svc:      NewService(provider, profSvc, validate, logger, conf),
		provider: provider,
		profiles: profSvc,
	}
}

func studentRegistration(email string) NewRegistration {
	return NewRegistration{
		Role:            profile.RoleStudent,
		Name:            "Amani M.",
		Email:           email,
		Password:        "s3cretPass",
		PasswordConfirm: "s3cretPass",
		ClassLevel:      "grade-10",
		GuardianName:    "Mrs M.",
		GuardianPhone:   "+243123456789",
		Subjects:        []string{"math", "physics"},
	}
}

func teacherRegistration(email string) NewRegistration {
	return NewRegistration{
		Role:            profile.RoleTeacher,
		Name:            "Mr K.",
		Email:           email,
		Password:        "s3cretPass",
		PasswordConfirm: "s3cretPass",
		Specialization:  "chemistry",
		ExperienceYears: 7,
	}
}

func TestService_Register_validation(t *testing.T) {
	fieldErrs := func(t *testing.T, err error) map[string]bool {
		t.Helper()
		require.Error(t, err)
		fields := make(map[string]bool)
		switch e := err.(type) {
		case validator.ValidationErrors:
			for _, fe := range e {
				fields[fe.Field()] = true
			}
		case *core.ValidationError:
			for _, fe := range e.Fields {
				fields[fe.Field] = true
			}
		default:
			t.Fatalf("unexpected error type %T: %v", err, err)
		}
		return fields
	}

	tests := []struct {
		name       string
		alter      func(nr *NewRegistration)
		wantFields []string
	}{
		{
			name:       "role is required",
			alter:      func(nr *NewRegistration) { nr.Role = "" },
			wantFields: []string{"role"},
		},
		{
			name:       "unknown role",
			alter:      func(nr *NewRegistration) { nr.Role = "headmaster" },
			wantFields: []string{"role"},
		},
		{
			name:       "bad email",
			alter:      func(nr *NewRegistration) { nr.Email = "nope" },
			wantFields: []string{"email"},
		},
		{
			name:       "short password",
			alter:      func(nr *NewRegistration) { nr.Password, nr.PasswordConfirm = "short", "short" },
			wantFields: []string{"password"},
		},
		{
			name:       "password mismatch",
			alter:      func(nr *NewRegistration) { nr.PasswordConfirm = "different1" },
			wantFields: []string{"password_confirm"},
		},
		{
			name: "student needs guardian details",
			alter: func(nr *NewRegistration) {
				nr.GuardianName, nr.GuardianPhone = "", ""
			},
			wantFields: []string{"guardian_name", "guardian_phone"},
		},
		{
			name:       "student needs a class level",
			alter:      func(nr *NewRegistration) { nr.ClassLevel = "" },
			wantFields: []string{"class_level"},
		},
		{
			name:       "bad guardian phone",
			alter:      func(nr *NewRegistration) { nr.GuardianPhone = "call me" },
			wantFields: []string{"guardian_phone"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setup(t)
			nr := studentRegistration("v@test.cd")
			tt.alter(&nr)

			_, err := env.svc.Register(context.Background(), nr)
			fields := fieldErrs(t, err)
			for _, f := range tt.wantFields {
				assert.True(t, fields[f], "expected a field error on %q, got %v", f, fields)
			}
			// invalid input never reaches the provider
			assert.Zero(t, env.provider.attempts)
		})
	}

	t.Run("teacher needs a specialization", func(t *testing.T) {
		env := setup(t)
		nr := teacherRegistration("t@test.cd")
		nr.Specialization = ""

		_, err := env.svc.Register(context.Background(), nr)
		fields := fieldErrs(t, err)
		assert.True(t, fields["specialization"])
		assert.Zero(t, env.provider.attempts)
	})
}

// The canonical deferred flow: no profile exists until the confirmation
// callback fires, and duplicate callbacks land on the same profile.
func TestService_Register_deferredConfirmation(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	nr := studentRegistration("amani@test.cd")

	res, err := env.svc.Register(ctx, nr)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.True(t, res.RequiresConfirmation)
	assert.Empty(t, res.ProfileID)

	// nothing provisioned yet
	sysCtx := profile.WithCaller(ctx, profile.SystemCaller)
	pending, err := env.profiles.Pending(sysCtx, profile.Caller{ID: "root", Role: profile.RoleAdmin})
	require.NoError(t, err)
	assert.Empty(t, pending)

	token := env.provider.ConfirmToken(nr.Email)
	require.NotEmpty(t, token)

	confirmed, err := env.svc.ConfirmEmail(ctx, token)
	require.NoError(t, err)
	assert.True(t, confirmed.Success)
	require.NotEmpty(t, confirmed.ProfileID)
	assert.NotEmpty(t, confirmed.EnrollmentNo)

	p, err := env.profiles.GetByID(sysCtx, confirmed.ProfileID)
	require.NoError(t, err)
	assert.Equal(t, profile.StatusPending, p.Status)
	require.NotNil(t, p.Student)
	assert.Equal(t, confirmed.EnrollmentNo, p.Student.EnrollmentNo)

	// browser refresh: same token again
	again, err := env.svc.ConfirmEmail(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, confirmed.ProfileID, again.ProfileID)
	assert.Equal(t, confirmed.EnrollmentNo, again.EnrollmentNo)
}

func TestService_Register_immediateSession(t *testing.T) {
	env := setup(t)
	env.provider.Autoconfirm = true
	ctx := context.Background()

	t.Run("student is provisioned synchronously", func(t *testing.T) {
		res, err := env.svc.Register(ctx, studentRegistration("now@test.cd"))
		require.NoError(t, err)
		assert.True(t, res.Success)
		assert.False(t, res.RequiresConfirmation)
		assert.NotEmpty(t, res.ProfileID)
		assert.NotEmpty(t, res.EnrollmentNo)
	})

	t.Run("admin comes out active", func(t *testing.T) {
		res, err := env.svc.Register(ctx, NewRegistration{
			Role:            profile.RoleAdmin,
			Name:            "Root",
			Email:           "root@test.cd",
			Password:        "s3cretPass",
			PasswordConfirm: "s3cretPass",
		})
		require.NoError(t, err)
		assert.Contains(t, res.Message, "active")

		sysCtx := profile.WithCaller(ctx, profile.SystemCaller)
		p, err := env.profiles.GetByID(sysCtx, res.ProfileID)
		require.NoError(t, err)
		assert.Equal(t, profile.StatusApproved, p.Status)
	})
}

func TestService_Register_metadataRetry(t *testing.T) {
	ctx := context.Background()

	t.Run("optional selections are dropped first", func(t *testing.T) {
		env := setup(t)
		env.provider.Autoconfirm = true
		env.provider.RejectMetadata = func(m identity.Metadata) bool {
			return len(m.Subjects) > 0 // chokes on the optional arrays
		}

		res, err := env.svc.Register(ctx, studentRegistration("retry@test.cd"))
		require.NoError(t, err)
		assert.Equal(t, 2, env.provider.attempts)

		// the reduced payload kept the required student fields
		sysCtx := profile.WithCaller(ctx, profile.SystemCaller)
		p, err := env.profiles.GetByID(sysCtx, res.ProfileID)
		require.NoError(t, err)
		require.NotNil(t, p.Student)
		assert.Equal(t, "grade-10", p.Student.ClassLevel)
		assert.Empty(t, p.Student.Subjects)
	})

	t.Run("the retry sequence is bounded", func(t *testing.T) {
		env := setup(t)
		env.provider.RejectMetadata = func(identity.Metadata) bool { return true }

		_, err := env.svc.Register(ctx, studentRegistration("never@test.cd"))
		assert.ErrorIs(t, err, identity.ErrMetadataRejected)
		assert.Equal(t, 3, env.provider.attempts)
	})

	t.Run("business rejections are not retried", func(t *testing.T) {
		env := setup(t)
		_, err := env.svc.Register(ctx, studentRegistration("taken@test.cd"))
		require.NoError(t, err)
		env.provider.attempts = 0

		_, err = env.svc.Register(ctx, studentRegistration("taken@test.cd"))
		assert.ErrorIs(t, err, identity.ErrEmailTaken)
		assert.Equal(t, 1, env.provider.attempts)

		env.provider.attempts = 0
		env.provider.MinPasswordLen = 20
		_, err = env.svc.Register(ctx, studentRegistration("strong@test.cd"))
		assert.ErrorIs(t, err, identity.ErrWeakPassword)
		assert.Equal(t, 1, env.provider.attempts)
	})
}

func TestService_ConfirmEmail_invalidToken(t *testing.T) {
	env := setup(t)

	_, err := env.svc.ConfirmEmail(context.Background(), "lol")
	var vErr *core.ValidationError
	require.ErrorAs(t, err, &vErr)
}
