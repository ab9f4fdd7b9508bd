// Package auth runs the login, registration and verification-code flows and
// gates protected commands on an unexpired session.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/MikeSquared-Agency/rehearse/internal/backend"
	"github.com/MikeSquared-Agency/rehearse/internal/interview"
	"github.com/MikeSquared-Agency/rehearse/internal/state"
)

var (
	// ErrSessionExpired means the stored session is missing or past its expiry.
	ErrSessionExpired = errors.New("session expired, please log in again")
	ErrBusy           = errors.New("request already in progress")
)

// DefaultCooldown applies when the backend does not say how long to wait
// before another verification code.
const DefaultCooldown = 60 * time.Second

type Backend interface {
	Login(ctx context.Context, req backend.LoginRequest) (*backend.LoginResponse, error)
	Register(ctx context.Context, req backend.RegisterRequest) (*backend.RegisterResponse, error)
	SendVerificationCode(ctx context.Context, email string) (*backend.VerificationResponse, error)
}

// Session is the stored auth state.
type Session struct {
	Token     string          `json:"token"`
	ExpiresAt time.Time       `json:"expires_at"`
	User      json.RawMessage `json:"user"`
}

// Result is what a successful flow tells the user.
type Result struct {
	Message    string
	Navigation interview.Navigation
}

type Service struct {
	api      Backend
	local    *state.Namespace
	validate *validator.Validate
	tokenTTL time.Duration
	logger   logrus.FieldLogger
	sem      *semaphore.Weighted
	now      func() time.Time
}

// NewService stores the auth session in the long-lived namespace of store.
// tokenTTL is the fallback lifetime when neither the backend nor the token
// says when the session ends.
func NewService(api Backend, store state.Store, tokenTTL time.Duration, logger logrus.FieldLogger) *Service {
	return &Service{
		api:      api,
		local:    state.Local(store),
		validate: newValidator(),
		tokenTTL: tokenTTL,
		logger:   logger,
		sem:      semaphore.NewWeighted(1),
		now:      time.Now,
	}
}

func (s *Service) Login(ctx context.Context, form LoginForm) (*Result, error) {
	form.Email = strings.TrimSpace(form.Email)
	form.Password = strings.TrimSpace(form.Password)
	if err := check(s.validate, &form); err != nil {
		return nil, err
	}
	if !s.sem.TryAcquire(1) {
		return nil, ErrBusy
	}
	defer s.sem.Release(1)

	resp, err := s.api.Login(ctx, backend.LoginRequest{Email: form.Email, Password: form.Password})
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}

	user := resp.User
	if len(user) == 0 {
		user = json.RawMessage("null")
	}
	expiresAt := s.expiry(resp)

	if err := s.local.Set(ctx, state.KeyUser, user); err != nil {
		return nil, fmt.Errorf("store user: %w", err)
	}
	if err := s.local.Set(ctx, state.KeyToken, resp.Token); err != nil {
		return nil, fmt.Errorf("store token: %w", err)
	}
	if err := s.local.Set(ctx, state.KeyExpiration, expiresAt.UnixMilli()); err != nil {
		return nil, fmt.Errorf("store expiration: %w", err)
	}

	target := resp.Redirect
	if target == "" {
		target = interview.TargetDashboard
	}
	s.logger.WithField("expires_at", expiresAt).Info("logged in")
	return &Result{Message: resp.Message, Navigation: interview.Navigation{Target: target}}, nil
}

// expiry prefers the backend's expiration, then the token's exp claim, then
// now plus the fallback lifetime.
func (s *Service) expiry(resp *backend.LoginResponse) time.Time {
	if resp.Expiration > 0 {
		return time.UnixMilli(resp.Expiration)
	}
	if exp, ok := tokenExpiry(resp.Token); ok {
		return exp
	}
	return s.now().Add(s.tokenTTL)
}

// tokenExpiry reads exp from a JWT without checking the signature.
func tokenExpiry(token string) (time.Time, bool) {
	if strings.Count(token, ".") != 2 {
		return time.Time{}, false
	}
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

func (s *Service) Register(ctx context.Context, form RegisterForm) (*Result, error) {
	form.Username = strings.TrimSpace(form.Username)
	form.Email = strings.TrimSpace(form.Email)
	form.VerificationCode = strings.TrimSpace(form.VerificationCode)
	if err := check(s.validate, &form); err != nil {
		return nil, err
	}
	if !s.sem.TryAcquire(1) {
		return nil, ErrBusy
	}
	defer s.sem.Release(1)

	resp, err := s.api.Register(ctx, backend.RegisterRequest{
		Username:         form.Username,
		Email:            form.Email,
		Password:         form.Password,
		ConfirmPassword:  form.ConfirmPassword,
		VerificationCode: form.VerificationCode,
	})
	if err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}

	msg := resp.Message
	if msg == "" {
		msg = "registration successful"
	}
	target := resp.Redirect
	if target == "" {
		target = interview.TargetSignIn
	}
	return &Result{Message: msg, Navigation: interview.Navigation{Target: target}}, nil
}

// SendCode requests a verification code and returns how long to wait before
// asking again.
func (s *Service) SendCode(ctx context.Context, form SendCodeForm) (string, time.Duration, error) {
	form.Email = strings.TrimSpace(form.Email)
	if err := check(s.validate, &form); err != nil {
		return "", 0, err
	}

	resp, err := s.api.SendVerificationCode(ctx, form.Email)
	if err != nil {
		return "", 0, fmt.Errorf("send verification code: %w", err)
	}
	msg := resp.Message
	if msg == "" {
		msg = "verification code sent"
	}
	cooldown := DefaultCooldown
	if resp.Cooldown > 0 {
		cooldown = time.Duration(resp.Cooldown) * time.Second
	}
	return msg, cooldown, nil
}

// Current returns the stored session, or ErrSessionExpired when the token or
// expiry is missing or the expiry has passed.
func (s *Service) Current(ctx context.Context) (*Session, error) {
	var token string
	hit, err := s.local.Get(ctx, state.KeyToken, &token)
	if err != nil {
		return nil, fmt.Errorf("read token: %w", err)
	}
	if !hit || token == "" {
		return nil, ErrSessionExpired
	}

	var expMillis int64
	hit, err = s.local.Get(ctx, state.KeyExpiration, &expMillis)
	if err != nil {
		return nil, fmt.Errorf("read expiration: %w", err)
	}
	if !hit || s.now().UnixMilli() > expMillis {
		return nil, ErrSessionExpired
	}

	var user json.RawMessage
	if _, err := s.local.Get(ctx, state.KeyUser, &user); err != nil {
		return nil, fmt.Errorf("read user: %w", err)
	}
	return &Session{Token: token, ExpiresAt: time.UnixMilli(expMillis), User: user}, nil
}

// Logout drops the auth session. With all set, the interview results go too.
func (s *Service) Logout(ctx context.Context, all bool, session *state.Namespace) error {
	if err := s.local.Del(ctx, state.LocalKeys...); err != nil {
		return fmt.Errorf("clear auth session: %w", err)
	}
	if all && session != nil {
		if err := session.Del(ctx, state.SessionKeys...); err != nil {
			return fmt.Errorf("clear interview results: %w", err)
		}
	}
	s.logger.WithField("all", all).Info("logged out")
	return nil
}
