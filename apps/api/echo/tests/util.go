package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"

	. "github.com/trezcool/shule/apps/api/echo"
	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/identity"
	"github.com/trezcool/shule/core/profile"
	"github.com/trezcool/shule/core/registration"
	dummymail "github.com/trezcool/shule/services/email/dummy"
	dummyidp "github.com/trezcool/shule/services/identity/dummy"
	logsvc "github.com/trezcool/shule/services/logger"
	dummydb "github.com/trezcool/shule/storage/database/dummy"
	"github.com/trezcool/shule/storage/policy"
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

type testEnv struct {
	server   Server
	conf     *core.Config
	provider *dummyidp.Service
	profiles *profile.Service
	repo     profile.Repository
	mail     *dummymail.Service
}

func setup(t *testing.T) *testEnv {
	t.Helper()

	conf := &core.Config{
		TestMode:  true,
		AppName:   "Shule",
		SecretKey: []byte("secret"),
	}
	conf.Server.JWTExpirationDelta = time.Hour
	conf.Identity.ConfirmRedirect = "http://localhost:8000/v1/register/confirm"

	db, err := dummydb.Open()
	require.NoError(t, err)
	repo := policy.NewStore(dummydb.NewProfileRepository(db))

	enLocale := en.New()
	uni := ut.New(enLocale, enLocale)
	translator, _ := uni.GetTranslator("en")
	validate := validator.New()
	core.InitValidators(validate, translator)
	registration.RegisterValidators(validate, translator)

	logger := logsvc.NewConsoleLogger(log.New(os.Stdout, "TEST : ", log.LstdFlags))
	mailSvc := dummymail.NewService()
	profSvc := profile.NewService(repo, profile.NewSequenceAllocator(repo), mailSvc, logger, conf)
	provider := dummyidp.NewService()
	regSvc := registration.NewService(provider, profSvc, validate, logger, conf)

	server := NewServer(&Options{
		Conf:            conf,
		DisableReqLogs:  true,
		RegistrationSvc: regSvc,
		ProfileSvc:      profSvc,
		Provider:        provider,
		Translator:      translator,
	})
	return &testEnv{
		server:   server,
		conf:     conf,
		provider: provider,
		profiles: profSvc,
		repo:     repo,
		mail:     mailSvc,
	}
}

// provisionIdentity creates a provider account with the given metadata and
// runs it through the real provisioning pipeline.
func (env *testEnv) provisionIdentity(t *testing.T, email, password string, meta identity.Metadata) profile.Profile {
	t.Helper()

	env.provider.Autoconfirm = true
	ident, _, err := env.provider.CreateAccount(context.Background(), identity.NewAccount{
		Email:    email,
		Password: password,
		Metadata: meta,
	})
	require.NoError(t, err)

	ctx := profile.WithCaller(context.Background(), profile.SystemCaller)
	p, err := env.profiles.Provision(ctx, ident)
	require.NoError(t, err)
	return p
}

func (env *testEnv) approve(t *testing.T, profileID string) {
	t.Helper()
	_, err := env.profiles.Approve(context.Background(), profile.Caller{ID: "seed-admin", Role: profile.RoleAdmin}, profileID)
	require.NoError(t, err)
}

// token crafts a signed app JWT the way the login endpoint would issue it.
func (env *testEnv) token(t *testing.T, p profile.Profile) string {
	t.Helper()

	now := time.Now()
	claims := &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    env.conf.AppName,
			Subject:   p.IdentityID,
			ExpiresAt: now.Add(env.conf.Server.JWTExpirationDelta).Unix(),
			IssuedAt:  now.Unix(),
		},
		Email: p.Email,
		Name:  p.Name,
	}
	if p.IsApproved() {
		claims.Role = p.Role
	}
	token, err := GenerateToken(env.conf, claims)
	require.NoError(t, err)
	return token
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func marshallObj(t *testing.T, obj interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(obj)
	require.NoError(t, err)
	return data
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dst))
}
