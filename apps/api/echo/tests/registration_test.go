package tests

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/trezcool/shule/apps/api/echo"
	"github.com/trezcool/shule/core/identity"
	"github.com/trezcool/shule/core/profile"
	"github.com/trezcool/shule/core/registration"
)

func studentPayload(email string) registration.NewRegistration {
	return registration.NewRegistration{
		Role:            profile.RoleStudent,
		Name:            "Amani M.",
		Email:           email,
		Password:        "s3cretPass",
		PasswordConfirm: "s3cretPass",
		ClassLevel:      "grade-10",
		GuardianName:    "Mrs M.",
		GuardianPhone:   "+243123456789",
	}
}

func TestRegister(t *testing.T) {
	t.Run("invalid payload returns field errors", func(t *testing.T) {
		env := setup(t)
		nr := studentPayload("bad@test.cd")
		nr.GuardianName = ""
		nr.PasswordConfirm = "different1"

		req, rec := newRequest(http.MethodPost, "/v1/register", marshallObj(t, nr))
		env.server.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		var fields map[string]string
		decodeBody(t, rec, &fields)
		assert.Contains(t, fields, "guardian_name")
		assert.Contains(t, fields, "password_confirm")
	})

	t.Run("deferred registration waits for confirmation", func(t *testing.T) {
		env := setup(t)

		req, rec := newRequest(http.MethodPost, "/v1/register", marshallObj(t, studentPayload("amani@test.cd")))
		env.server.ServeHTTP(rec, req)

		require.Equal(t, http.StatusCreated, rec.Code)
		var res registration.RegistrationResult
		decodeBody(t, rec, &res)
		assert.True(t, res.Success)
		assert.True(t, res.RequiresConfirmation)
		assert.Empty(t, res.ProfileID)

		// the confirmation callback completes provisioning
		token := env.provider.ConfirmToken("amani@test.cd")
		require.NotEmpty(t, token)

		req, rec = newRequest(http.MethodGet, "/v1/register/confirm?token="+token)
		env.server.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		decodeBody(t, rec, &res)
		require.NotEmpty(t, res.ProfileID)
		assert.NotEmpty(t, res.EnrollmentNo)

		// a repeated callback is harmless
		req, rec = newRequest(http.MethodGet, "/v1/register/confirm?token="+token)
		env.server.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		var again registration.RegistrationResult
		decodeBody(t, rec, &again)
		assert.Equal(t, res.ProfileID, again.ProfileID)
	})

	t.Run("immediate session provisions synchronously", func(t *testing.T) {
		env := setup(t)
		env.provider.Autoconfirm = true

		req, rec := newRequest(http.MethodPost, "/v1/register", marshallObj(t, studentPayload("now@test.cd")))
		env.server.ServeHTTP(rec, req)

		require.Equal(t, http.StatusCreated, rec.Code)
		var res registration.RegistrationResult
		decodeBody(t, rec, &res)
		assert.False(t, res.RequiresConfirmation)
		assert.NotEmpty(t, res.ProfileID)
		assert.NotEmpty(t, res.EnrollmentNo)
	})

	t.Run("duplicate email", func(t *testing.T) {
		env := setup(t)
		payload := marshallObj(t, studentPayload("dup@test.cd"))

		req, rec := newRequest(http.MethodPost, "/v1/register", payload)
		env.server.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code)

		req, rec = newRequest(http.MethodPost, "/v1/register", payload)
		env.server.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		var body httpErr
		decodeBody(t, rec, &body)
		assert.Equal(t, identity.ErrEmailTaken.Error(), body.Error)
	})

	t.Run("missing confirmation token", func(t *testing.T) {
		env := setup(t)

		req, rec := newRequest(http.MethodGet, "/v1/register/confirm")
		env.server.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("invalid confirmation token", func(t *testing.T) {
		env := setup(t)

		req, rec := newRequest(http.MethodGet, "/v1/register/confirm?token=lol")
		env.server.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestLogin(t *testing.T) {
	t.Run("unknown access token", func(t *testing.T) {
		env := setup(t)

		req, rec := newRequest(http.MethodPost, "/v1/login", marshallObj(t, LoginRequest{AccessToken: "lol"}))
		env.server.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("missing access token", func(t *testing.T) {
		env := setup(t)

		req, rec := newRequest(http.MethodPost, "/v1/login", []byte("{}"))
		env.server.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("pending registrant gets a role-less session", func(t *testing.T) {
		env := setup(t)
		env.provider.Autoconfirm = true

		ident, sess, err := env.provider.CreateAccount(context.Background(), identity.NewAccount{
			Email:    "pending@test.cd",
			Password: "s3cretPass",
			Metadata: identity.Metadata{
				Role:          profile.RoleStudent,
				Name:          "Amani M.",
				ClassLevel:    "grade-10",
				GuardianName:  "Mrs M.",
				GuardianPhone: "+243123456789",
			},
		})
		require.NoError(t, err)
		require.NotNil(t, sess)
		_, err = env.profiles.Provision(profile.WithCaller(context.Background(), profile.SystemCaller), ident)
		require.NoError(t, err)

		req, rec := newRequest(http.MethodPost, "/v1/login", marshallObj(t, LoginRequest{AccessToken: sess.AccessToken}))
		env.server.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var res LoginResponse
		decodeBody(t, rec, &res)
		require.NotEmpty(t, res.Token)
		assert.Equal(t, profile.StatusPending, res.Profile.Status)

		// the role claim is withheld until approval: moderation is off-limits
		req, rec = newAuthRequest(http.MethodGet, "/v1/profiles/pending", res.Token)
		env.server.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)

		// but the registrant still sees their own profile
		req, rec = newAuthRequest(http.MethodGet, "/v1/profiles/me", res.Token)
		env.server.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("approval unlocks the role claim", func(t *testing.T) {
		env := setup(t)
		env.provider.Autoconfirm = true

		ident, sess, err := env.provider.CreateAccount(context.Background(), identity.NewAccount{
			Email:    "approved@test.cd",
			Password: "s3cretPass",
			Metadata: identity.Metadata{Role: profile.RoleTeacher, Name: "Mr K.", Specialization: "physics"},
		})
		require.NoError(t, err)
		p, err := env.profiles.Provision(profile.WithCaller(context.Background(), profile.SystemCaller), ident)
		require.NoError(t, err)
		env.approve(t, p.ID)

		req, rec := newRequest(http.MethodPost, "/v1/login", marshallObj(t, LoginRequest{AccessToken: sess.AccessToken}))
		env.server.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var res LoginResponse
		decodeBody(t, rec, &res)
		assert.Equal(t, profile.StatusApproved, res.Profile.Status)

		// an approved teacher may browse the moderation queue
		req, rec = newAuthRequest(http.MethodGet, "/v1/profiles/pending", res.Token)
		env.server.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}
