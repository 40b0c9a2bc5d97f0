// Package restidp talks to a GoTrue-style identity provider REST API.
package restidp

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/identity"
)

type service struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

var _ identity.Provider = (*service)(nil)

func NewService(conf *core.Config) identity.Provider {
	return &service{
		baseURL: strings.TrimRight(conf.Identity.BaseURL, "/"),
		apiKey:  conf.Identity.APIKey,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type (
	signupRequest struct {
		Email      string            `json:"email"`
		Password   string            `json:"password"`
		Data       identity.Metadata `json:"data"`
		RedirectTo string            `json:"redirect_to,omitempty"`
	}

	verifyRequest struct {
		Type  string `json:"type"`
		Token string `json:"token"`
	}

	userPayload struct {
		ID               string            `json:"id"`
		Email            string            `json:"email"`
		EmailConfirmedAt *time.Time        `json:"email_confirmed_at"`
		UserMetadata     identity.Metadata `json:"user_metadata"`
		CreatedAt        time.Time         `json:"created_at"`
	}

	sessionPayload struct {
		AccessToken string       `json:"access_token"`
		ExpiresIn   int          `json:"expires_in"`
		User        *userPayload `json:"user"`
	}

	// signupPayload is either a bare user (confirmation required) or a
	// session wrapping the user (autoconfirm).
	signupPayload struct {
		userPayload
		sessionPayload
	}

	errorPayload struct {
		Msg              string `json:"msg"`
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
)

func (p userPayload) identity() identity.Identity {
	return identity.Identity{
		ID:        p.ID,
		Email:     p.Email,
		Confirmed: p.EmailConfirmedAt != nil,
		Metadata:  p.UserMetadata,
		CreatedAt: p.CreatedAt,
	}
}

func (p errorPayload) message() string {
	if p.Msg != "" {
		return p.Msg
	}
	if p.ErrorDescription != "" {
		return p.ErrorDescription
	}
	return p.Error
}

func (svc *service) CreateAccount(ctx context.Context, acc identity.NewAccount) (identity.Identity, *identity.Session, error) {
	body := signupRequest{
		Email:      acc.Email,
		Password:   acc.Password,
		Data:       acc.Metadata,
		RedirectTo: acc.ConfirmRedirect,
	}
	var payload signupPayload
	if err := svc.do(ctx, http.MethodPost, "/signup", "", body, &payload); err != nil {
		return identity.Identity{}, nil, err
	}

	if payload.AccessToken != "" && payload.User != nil {
		sess := &identity.Session{
			AccessToken: payload.AccessToken,
			ExpiresAt:   time.Now().Add(time.Duration(payload.ExpiresIn) * time.Second),
		}
		return payload.User.identity(), sess, nil
	}
	return payload.userPayload.identity(), nil, nil
}

func (svc *service) GetUser(ctx context.Context, accessToken string) (identity.Identity, error) {
	var payload userPayload
	if err := svc.do(ctx, http.MethodGet, "/user", accessToken, nil, &payload); err != nil {
		return identity.Identity{}, err
	}
	return payload.identity(), nil
}

func (svc *service) ConfirmCallback(ctx context.Context, token string) (identity.Identity, error) {
	body := verifyRequest{Type: "signup", Token: token}
	var payload sessionPayload
	if err := svc.do(ctx, http.MethodPost, "/verify", "", body, &payload); err != nil {
		return identity.Identity{}, err
	}
	if payload.User == nil {
		return identity.Identity{}, identity.ErrInvalidToken
	}
	return payload.User.identity(), nil
}

func (svc *service) do(ctx context.Context, method, path, bearer string, body, out interface{}) error {
	var buff bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buff).Encode(body); err != nil {
			return errors.Wrap(err, "encoding request body")
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, svc.baseURL+path, &buff)
	if err != nil {
		return errors.Wrap(err, "building provider request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", svc.apiKey)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := svc.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "calling identity provider")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errPayload errorPayload
		_ = json.NewDecoder(resp.Body).Decode(&errPayload)
		return mapError(resp.StatusCode, errPayload.message())
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return errors.Wrap(err, "decoding provider response")
		}
	}
	return nil
}

// mapError folds the provider's error payloads into the identity error
// codes; anything unrecognized is wrapped so no raw transport error escapes
// the core boundary.
func mapError(status int, msg string) error {
	lower := strings.ToLower(msg)
	switch {
	case status == http.StatusNotFound:
		return identity.ErrNotFound
	case strings.Contains(lower, "already been registered"),
		strings.Contains(lower, "already registered"),
		strings.Contains(lower, "already exists"):
		return identity.ErrEmailTaken
	case strings.Contains(lower, "password"):
		return identity.ErrWeakPassword
	case strings.Contains(lower, "metadata"), strings.Contains(lower, "data"):
		return identity.ErrMetadataRejected
	case strings.Contains(lower, "token"), strings.Contains(lower, "expired"), strings.Contains(lower, "otp"):
		return identity.ErrInvalidToken
	case status == http.StatusUnauthorized:
		return identity.ErrNotFound
	}
	return errors.Errorf("identity provider error (%d): %s", status, msg)
}
