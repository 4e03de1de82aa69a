// Package account registers users, checks passwords and issues login
// session tokens.
package account

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/justestif/go-castor/internal/db"
)

// DefaultSessionTTL is how long a login token stays valid.
const DefaultSessionTTL = 7 * 24 * time.Hour

var (
	// ErrUserExists signals the email or username is already taken.
	ErrUserExists = errors.New("user already exists")
	// ErrInvalidCredentials indicates a login failure.
	ErrInvalidCredentials = errors.New("invalid username or password")
	// ErrUnauthorized indicates an invalid, expired or revoked token.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidInput wraps registration validation failures.
	ErrInvalidInput = errors.New("invalid input")

	dummyPasswordHash = []byte("$2a$10$CwTycUXWue0Thq9StjUM0uJ8n4VWeNseyX2fA9DE.D7su7J6iYGTC")
)

// UserStore persists users.
type UserStore interface {
	Create(ctx context.Context, user *db.User) error
	Get(ctx context.Context, id uuid.UUID) (*db.User, error)
	GetByLogin(ctx context.Context, login string) (*db.User, error)
	TouchLogin(ctx context.Context, id uuid.UUID, at time.Time) error
}

// SessionStore persists issued tokens so they can be revoked.
type SessionStore interface {
	Create(ctx context.Context, session *db.Session) error
	Get(ctx context.Context, token string) (*db.Session, error)
	Delete(ctx context.Context, token string) error
}

// Profile is the public view of a user.
type Profile struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Username string `json:"username"`
	Name     string `json:"name"`
	LastName string `json:"last_name,omitempty"`
}

func profileOf(u *db.User) Profile {
	return Profile{
		ID:       u.ID.String(),
		Email:    u.Email,
		Username: u.Username,
		Name:     u.Name,
		LastName: u.LastName,
	}
}

// Registration is the input to Register.
type Registration struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	LastName string `json:"last_name"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// Validate checks field requirements and returns the first failure.
func (r Registration) Validate() error {
	if _, err := mail.ParseAddress(r.Email); err != nil || !strings.Contains(r.Email, "@") {
		return fmt.Errorf("%w: invalid email", ErrInvalidInput)
	}
	if len([]rune(strings.TrimSpace(r.Name))) < 2 {
		return fmt.Errorf("%w: name must be at least 2 characters", ErrInvalidInput)
	}
	if len([]rune(strings.TrimSpace(r.Username))) < 3 {
		return fmt.Errorf("%w: username must be at least 3 characters", ErrInvalidInput)
	}
	if len(r.Password) < 6 {
		return fmt.Errorf("%w: password must be at least 6 characters", ErrInvalidInput)
	}
	return nil
}

// Service implements registration, login and token validation.
type Service struct {
	users    UserStore
	sessions SessionStore
	secret   []byte
	ttl      time.Duration
	cost     int
	now      func() time.Time
	logger   zerolog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithSessionTTL sets the token lifetime.
func WithSessionTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithBcryptCost sets the password hashing cost.
func WithBcryptCost(cost int) Option {
	return func(s *Service) {
		s.cost = cost
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// NewService creates a Service signing tokens with secret.
func NewService(users UserStore, sessions SessionStore, secret []byte, opts ...Option) (*Service, error) {
	if len(secret) == 0 {
		return nil, errors.New("account: signing secret is required")
	}
	s := &Service{
		users:    users,
		sessions: sessions,
		secret:   secret,
		ttl:      DefaultSessionTTL,
		cost:     bcrypt.DefaultCost,
		now:      time.Now,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// TTL returns the token lifetime.
func (s *Service) TTL() time.Duration {
	return s.ttl
}

// Register creates a user and logs them in.
func (s *Service) Register(ctx context.Context, reg Registration) (Profile, string, error) {
	reg.Email = strings.TrimSpace(strings.ToLower(reg.Email))
	reg.Username = strings.TrimSpace(reg.Username)
	reg.Name = strings.TrimSpace(reg.Name)
	reg.LastName = strings.TrimSpace(reg.LastName)
	if err := reg.Validate(); err != nil {
		return Profile{}, "", err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(reg.Password), s.cost)
	if err != nil {
		return Profile{}, "", fmt.Errorf("hashing password: %w", err)
	}

	user := &db.User{
		ID:           uuid.New(),
		Email:        reg.Email,
		Username:     reg.Username,
		Name:         reg.Name,
		LastName:     reg.LastName,
		PasswordHash: string(hash),
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, db.ErrConflict) {
			return Profile{}, "", ErrUserExists
		}
		return Profile{}, "", fmt.Errorf("creating user: %w", err)
	}

	token, err := s.IssueToken(ctx, user.ID.String())
	if err != nil {
		return Profile{}, "", err
	}

	s.logger.Info().Str("user_id", user.ID.String()).Msg("user registered")
	return profileOf(user), token, nil
}

// Login checks a password for an email or username and issues a token.
func (s *Service) Login(ctx context.Context, login, password string) (Profile, string, error) {
	user, err := s.users.GetByLogin(ctx, strings.TrimSpace(login))
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			_ = bcrypt.CompareHashAndPassword(dummyPasswordHash, []byte(password))
			return Profile{}, "", ErrInvalidCredentials
		}
		return Profile{}, "", fmt.Errorf("looking up user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return Profile{}, "", ErrInvalidCredentials
	}

	token, err := s.IssueToken(ctx, user.ID.String())
	if err != nil {
		return Profile{}, "", err
	}

	if err := s.users.TouchLogin(ctx, user.ID, s.now()); err != nil {
		s.logger.Warn().Err(err).Str("user_id", user.ID.String()).Msg("failed to record login time")
	}
	return profileOf(user), token, nil
}

// IssueToken signs a session token for userID and records it.
func (s *Service) IssueToken(ctx context.Context, userID string) (string, error) {
	id, err := uuid.Parse(userID)
	if err != nil {
		return "", fmt.Errorf("parsing user id: %w", err)
	}

	now := s.now()
	expires := now.Add(s.ttl)
	claims := jwt.RegisteredClaims{
		Subject:   id.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expires),
		ID:        uuid.NewString(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}

	if err := s.sessions.Create(ctx, &db.Session{
		Token:     token,
		UserID:    id,
		CreatedAt: now,
		ExpiresAt: expires,
	}); err != nil {
		return "", fmt.Errorf("storing session: %w", err)
	}
	return token, nil
}

// Validate returns the user id a token was issued to. The token must carry a
// valid signature, be unexpired and still be recorded as a session.
func (s *Service) Validate(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", ErrUnauthorized
	}

	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", ErrUnauthorized
	}

	session, err := s.sessions.Get(ctx, token)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return "", ErrUnauthorized
		}
		return "", fmt.Errorf("looking up session: %w", err)
	}
	if session.UserID.String() != claims.Subject || !s.now().Before(session.ExpiresAt) {
		return "", ErrUnauthorized
	}
	return claims.Subject, nil
}

// Profile returns the profile for userID.
func (s *Service) Profile(ctx context.Context, userID string) (Profile, error) {
	id, err := uuid.Parse(userID)
	if err != nil {
		return Profile{}, ErrUnauthorized
	}
	user, err := s.users.Get(ctx, id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return Profile{}, ErrUnauthorized
		}
		return Profile{}, fmt.Errorf("looking up user: %w", err)
	}
	return profileOf(user), nil
}

// Logout forgets token. Unknown tokens are ignored.
func (s *Service) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := s.sessions.Delete(ctx, token); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}
