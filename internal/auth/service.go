// Package auth handles password signup, login and bearer session tokens.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"budgettracker/internal/core"
	"budgettracker/internal/repository"
)

// DefaultSessionTTL is how long a session token stays valid.
const DefaultSessionTTL = 7 * 24 * time.Hour

// ProviderPassword marks accounts created with email and password.
const ProviderPassword = "password"

var (
	ErrMissingCredentials = errors.New("email and password are required")
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrWeakPassword       = errors.New("password does not meet requirements")
	ErrSessionExpired     = errors.New("session expired")
	ErrUnauthenticated    = errors.New("authentication required")
)

type (
	Repository interface {
		repository.UserRepository
		repository.SessionRepository
	}

	SignupRequest struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	LoginRequest struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	// Result is returned on successful signup or login.
	Result struct {
		User    core.User    `json:"user"`
		Session core.Session `json:"session"`
	}

	Option func(*Service)

	Service struct {
		repo       Repository
		ttl        time.Duration
		now        func() time.Time
		bcryptCost int
		logger     *slog.Logger
	}
)

func WithSessionTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithBcryptCost lowers hashing cost, mostly for tests.
func WithBcryptCost(cost int) Option {
	return func(s *Service) { s.bcryptCost = cost }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{
		repo:       repo,
		ttl:        DefaultSessionTTL,
		now:        time.Now,
		bcryptCost: bcrypt.DefaultCost,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Signup registers a new account and opens a session for it.
func (s *Service) Signup(ctx context.Context, req SignupRequest) (Result, error) {
	email := normalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		return Result{}, ErrMissingCredentials
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return Result{}, fmt.Errorf("%w: %s", ErrInvalidEmail, email)
	}
	if check := ValidatePassword(req.Password); !check.IsValid {
		return Result{}, fmt.Errorf("%w: needs %s", ErrWeakPassword, strings.Join(check.Missing(), ", "))
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.bcryptCost)
	if err != nil {
		return Result{}, fmt.Errorf("hash password: %w", err)
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		name, _, _ = strings.Cut(email, "@")
	}

	user := core.User{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         name,
		PasswordHash: string(hash),
		AuthProvider: ProviderPassword,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrAlreadyExists) {
			return Result{}, ErrEmailTaken
		}
		return Result{}, fmt.Errorf("create user: %w", err)
	}

	sess, err := s.openSession(ctx, user)
	if err != nil {
		return Result{}, err
	}

	s.logger.InfoContext(ctx, "User signed up", "component", "auth", "user_id", user.ID)
	return Result{User: user.Public(), Session: sess}, nil
}

// Login checks credentials and opens a new session.
func (s *Service) Login(ctx context.Context, req LoginRequest) (Result, error) {
	email := normalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		return Result{}, ErrMissingCredentials
	}

	user, err := s.repo.FindUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return Result{}, ErrInvalidCredentials
		}
		return Result{}, fmt.Errorf("find user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		s.logger.WarnContext(ctx, "Login rejected", "component", "auth", "user_id", user.ID)
		return Result{}, ErrInvalidCredentials
	}

	sess, err := s.openSession(ctx, user)
	if err != nil {
		return Result{}, err
	}
	return Result{User: user.Public(), Session: sess}, nil
}

func (s *Service) openSession(ctx context.Context, user core.User) (core.Session, error) {
	sess := core.Session{
		Token:     uuid.NewString(),
		UserID:    user.ID,
		Email:     user.Email,
		ExpiresAt: s.now().UTC().Add(s.ttl),
	}
	if err := s.repo.SaveSession(ctx, sess); err != nil {
		return core.Session{}, fmt.Errorf("save session: %w", err)
	}
	return sess, nil
}

// Authenticate resolves a bearer token to its session. Expired sessions are
// removed and reported as ErrSessionExpired.
func (s *Service) Authenticate(ctx context.Context, token string) (core.Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return core.Session{}, ErrUnauthenticated
	}

	sess, err := s.repo.FindSession(ctx, token)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return core.Session{}, ErrUnauthenticated
		}
		return core.Session{}, fmt.Errorf("find session: %w", err)
	}

	if sess.Expired(s.now()) {
		if err := s.repo.DeleteSession(ctx, token); err != nil && !errors.Is(err, repository.ErrNotFound) {
			s.logger.WarnContext(ctx, "Failed to remove expired session", "component", "auth", "error", err)
		}
		return core.Session{}, ErrSessionExpired
	}
	return sess, nil
}

// Logout ends a session. Unknown tokens are not an error.
func (s *Service) Logout(ctx context.Context, token string) error {
	if err := s.repo.DeleteSession(ctx, token); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// CurrentUser returns the account behind a session without its hash.
func (s *Service) CurrentUser(ctx context.Context, sess core.Session) (core.User, error) {
	u, err := s.repo.FindUserByID(ctx, sess.UserID)
	if err != nil {
		return core.User{}, fmt.Errorf("find user: %w", err)
	}
	return u.Public(), nil
}
