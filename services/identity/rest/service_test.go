package restidp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/identity"
)

func newTestService(handler http.Handler) (identity.Provider, *httptest.Server) {
	srv := httptest.NewServer(handler)
	conf := &core.Config{}
	conf.Identity.BaseURL = srv.URL
	conf.Identity.APIKey = "test-key"
	return NewService(conf), srv
}

func TestService_CreateAccount(t *testing.T) {
	t.Run("confirmation required", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/signup", func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "test-key", r.Header.Get("apikey"))

			var req signupRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "amani@test.cd", req.Email)
			assert.Equal(t, "student", req.Data.Role)
			assert.Equal(t, "http://localhost/confirm", req.RedirectTo)

			_ = json.NewEncoder(w).Encode(userPayload{
				ID:           "id-1",
				Email:        req.Email,
				UserMetadata: req.Data,
				CreatedAt:    time.Now().UTC(),
			})
		})
		svc, srv := newTestService(mux)
		defer srv.Close()

		ident, sess, err := svc.CreateAccount(context.Background(), identity.NewAccount{
			Email:           "amani@test.cd",
			Password:        "s3cretPass",
			Metadata:        identity.Metadata{Role: "student", Name: "Amani M."},
			ConfirmRedirect: "http://localhost/confirm",
		})
		require.NoError(t, err)
		assert.Nil(t, sess)
		assert.Equal(t, "id-1", ident.ID)
		assert.False(t, ident.Confirmed)
		assert.Equal(t, "student", ident.Metadata.Role)
	})

	t.Run("autoconfirm grants a session", func(t *testing.T) {
		now := time.Now().UTC()
		mux := http.NewServeMux()
		mux.HandleFunc("/signup", func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"access_token": "tok-1",
				"expires_in":   3600,
				"user": map[string]interface{}{
					"id":                 "id-2",
					"email":              "now@test.cd",
					"email_confirmed_at": now,
				},
			})
		})
		svc, srv := newTestService(mux)
		defer srv.Close()

		ident, sess, err := svc.CreateAccount(context.Background(), identity.NewAccount{Email: "now@test.cd", Password: "s3cretPass"})
		require.NoError(t, err)
		require.NotNil(t, sess)
		assert.Equal(t, "tok-1", sess.AccessToken)
		assert.Equal(t, "id-2", ident.ID)
		assert.True(t, ident.Confirmed)
	})

	t.Run("error payloads fold into the identity errors", func(t *testing.T) {
		tests := []struct {
			name    string
			status  int
			payload errorPayload
			wantErr error
		}{
			{name: "email taken", status: 400, payload: errorPayload{Msg: "A user with this email address has already been registered"}, wantErr: identity.ErrEmailTaken},
			{name: "weak password", status: 422, payload: errorPayload{Msg: "Password should be at least 6 characters"}, wantErr: identity.ErrWeakPassword},
			{name: "bad metadata", status: 422, payload: errorPayload{Msg: "invalid user_metadata: unknown attribute"}, wantErr: identity.ErrMetadataRejected},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				mux := http.NewServeMux()
				mux.HandleFunc("/signup", func(w http.ResponseWriter, r *http.Request) {
					w.WriteHeader(tt.status)
					_ = json.NewEncoder(w).Encode(tt.payload)
				})
				svc, srv := newTestService(mux)
				defer srv.Close()

				_, _, err := svc.CreateAccount(context.Background(), identity.NewAccount{Email: "x@test.cd", Password: "pwd"})
				assert.ErrorIs(t, err, tt.wantErr)
			})
		}
	})
}

func TestService_GetUser(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		now := time.Now().UTC()
		mux := http.NewServeMux()
		mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
			_ = json.NewEncoder(w).Encode(userPayload{ID: "id-1", Email: "amani@test.cd", EmailConfirmedAt: &now})
		})
		svc, srv := newTestService(mux)
		defer srv.Close()

		ident, err := svc.GetUser(context.Background(), "tok-1")
		require.NoError(t, err)
		assert.Equal(t, "id-1", ident.ID)
		assert.True(t, ident.Confirmed)
	})

	t.Run("unauthorized maps to not found", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(errorPayload{Msg: "invalid claim: missing sub claim"})
		})
		svc, srv := newTestService(mux)
		defer srv.Close()

		_, err := svc.GetUser(context.Background(), "lol")
		assert.ErrorIs(t, err, identity.ErrNotFound)
	})
}

func TestService_ConfirmCallback(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		now := time.Now().UTC()
		mux := http.NewServeMux()
		mux.HandleFunc("/verify", func(w http.ResponseWriter, r *http.Request) {
			var req verifyRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "signup", req.Type)
			assert.Equal(t, "confirm-1", req.Token)

			_ = json.NewEncoder(w).Encode(sessionPayload{
				AccessToken: "tok-1",
				User:        &userPayload{ID: "id-1", Email: "amani@test.cd", EmailConfirmedAt: &now},
			})
		})
		svc, srv := newTestService(mux)
		defer srv.Close()

		ident, err := svc.ConfirmCallback(context.Background(), "confirm-1")
		require.NoError(t, err)
		assert.Equal(t, "id-1", ident.ID)
		assert.True(t, ident.Confirmed)
	})

	t.Run("expired token", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/verify", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(errorPayload{Msg: "Token has expired or is invalid"})
		})
		svc, srv := newTestService(mux)
		defer srv.Close()

		_, err := svc.ConfirmCallback(context.Background(), "old")
		assert.ErrorIs(t, err, identity.ErrInvalidToken)
	})
}
