package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var emailRegex = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

const (
	minPasswordLen = 6
	maxPasswordLen = 200
	refreshBytes   = 48
)

// TokenConfig holds the JWT parameters shared by the service and the
// access-token middleware.
type TokenConfig struct {
	Secret     []byte
	Issuer     string
	Audience   string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

type UserStore interface {
	CreateUser(ctx context.Context, email, passwordHash, provider string) (User, error)
	UserByEmail(ctx context.Context, email string) (User, error)
}

type TokenStore interface {
	SaveToken(ctx context.Context, userID, rawToken string, expiresAt time.Time) error
	RotateToken(ctx context.Context, userID, rawOld, rawNew string, newExpiresAt time.Time) error
	RevokeUserTokens(ctx context.Context, userID string) error
}

type LockoutStore interface {
	GetLoginAttempt(ctx context.Context, email string) (LoginAttempt, error)
	RegisterFailedAttempt(ctx context.Context, email string, maxAttempts int, lockDuration time.Duration, now time.Time) (*time.Time, error)
	ResetLoginAttempt(ctx context.Context, email string) error
}

// ExternalIdentity is the subset of a verified provider ID token the service
// needs to link a local account.
type ExternalIdentity struct {
	Subject       string
	Email         string
	EmailVerified bool
}

type IDTokenVerifier interface {
	Verify(ctx context.Context, rawIDToken string) (ExternalIdentity, error)
}

type Service struct {
	users        UserStore
	tokens       TokenStore
	lockouts     LockoutStore
	verifier     IDTokenVerifier
	cfg          TokenConfig
	maxAttempts  int
	lockDuration time.Duration
}

func NewService(users UserStore, tokens TokenStore, lockouts LockoutStore, cfg TokenConfig) *Service {
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = 15 * time.Minute
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 7 * 24 * time.Hour
	}

	return &Service{
		users:        users,
		tokens:       tokens,
		lockouts:     lockouts,
		cfg:          cfg,
		maxAttempts:  5,
		lockDuration: 15 * time.Minute,
	}
}

func (s *Service) WithLockoutPolicy(maxAttempts int, lockDuration time.Duration) {
	if maxAttempts > 0 {
		s.maxAttempts = maxAttempts
	}
	if lockDuration > 0 {
		s.lockDuration = lockDuration
	}
}

// WithVerifier enables external login with the given ID-token verifier.
func (s *Service) WithVerifier(verifier IDTokenVerifier) {
	s.verifier = verifier
}

// Register creates a local account and returns its first token pair.
// Malformed input fails with *ValidationError before any store call.
func (s *Service) Register(ctx context.Context, email, password, confirmPassword string) (AuthResponse, error) {
	email = normalizeEmail(email)

	verr := newValidationError()
	validateEmail(verr, email)
	validatePassword(verr, password)
	if confirmPassword != password {
		verr.Fields["confirmPassword"] = "passwords do not match"
	}
	if len(verr.Fields) > 0 {
		return AuthResponse{}, verr
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return AuthResponse{}, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.users.CreateUser(ctx, email, string(hash), ProviderLocal)
	if err != nil {
		return AuthResponse{}, err
	}

	return s.issuePair(ctx, user.ID)
}

// Login checks credentials and returns a fresh token pair. Repeated failures
// lock the account for the configured window.
func (s *Service) Login(ctx context.Context, email, password string) (AuthResponse, error) {
	email = normalizeEmail(email)

	verr := newValidationError()
	validateEmail(verr, email)
	validatePassword(verr, password)
	if len(verr.Fields) > 0 {
		return AuthResponse{}, verr
	}

	now := time.Now().UTC()
	attempt, err := s.lockouts.GetLoginAttempt(ctx, email)
	if err != nil {
		return AuthResponse{}, err
	}
	if attempt.LockedUntil != nil && now.Before(*attempt.LockedUntil) {
		return AuthResponse{}, ErrLoginLocked{Until: *attempt.LockedUntil}
	}

	user, err := s.users.UserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return AuthResponse{}, s.failLogin(ctx, email, now)
		}
		return AuthResponse{}, err
	}

	// Externally provisioned accounts have no local password.
	if user.PasswordHash == "" {
		return AuthResponse{}, s.failLogin(ctx, email, now)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return AuthResponse{}, s.failLogin(ctx, email, now)
	}

	if err := s.lockouts.ResetLoginAttempt(ctx, email); err != nil {
		return AuthResponse{}, err
	}

	return s.issuePair(ctx, user.ID)
}

func (s *Service) failLogin(ctx context.Context, email string, now time.Time) error {
	lockedUntil, err := s.lockouts.RegisterFailedAttempt(ctx, email, s.maxAttempts, s.lockDuration, now)
	if err != nil {
		return err
	}
	if lockedUntil != nil {
		return ErrLoginLocked{Until: *lockedUntil}
	}
	return ErrInvalidCredentials
}

// ExternalLogin exchanges a verified provider ID token for a local session,
// creating the local account on first sign-in.
func (s *Service) ExternalLogin(ctx context.Context, rawIDToken string) (AuthResponse, error) {
	if s.verifier == nil {
		return AuthResponse{}, ErrExternalDisabled
	}
	rawIDToken = strings.TrimSpace(rawIDToken)
	if rawIDToken == "" {
		return AuthResponse{}, ErrInvalidCredentials
	}

	identity, err := s.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return AuthResponse{}, fmt.Errorf("%w: %s", ErrInvalidCredentials, err)
	}
	if identity.Email == "" || !identity.EmailVerified {
		return AuthResponse{}, ErrInvalidCredentials
	}

	email := normalizeEmail(identity.Email)
	user, err := s.users.UserByEmail(ctx, email)
	if errors.Is(err, ErrUserNotFound) {
		user, err = s.users.CreateUser(ctx, email, "", ProviderGoogle)
		if errors.Is(err, ErrEmailTaken) {
			// Lost a first-sign-in race; the account exists now.
			user, err = s.users.UserByEmail(ctx, email)
		}
	}
	if err != nil {
		return AuthResponse{}, err
	}

	// The caller only holds a provider token, so tell it which local
	// account it landed on; refresh needs the email.
	pair, err := s.issuePair(ctx, user.ID)
	if err != nil {
		return AuthResponse{}, err
	}
	pair.Email = user.Email
	return pair, nil
}

// Refresh rotates a refresh token: the presented token is revoked and a new
// pair is issued in one transaction, so a replayed token always fails with
// ErrInvalidRefreshToken.
func (s *Service) Refresh(ctx context.Context, email, refreshToken string) (AuthResponse, error) {
	email = normalizeEmail(email)
	refreshToken = strings.TrimSpace(refreshToken)
	if email == "" || refreshToken == "" {
		return AuthResponse{}, ErrInvalidRefreshToken
	}

	user, err := s.users.UserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return AuthResponse{}, ErrInvalidRefreshToken
		}
		return AuthResponse{}, err
	}

	newRefresh, err := randomToken(refreshBytes)
	if err != nil {
		return AuthResponse{}, fmt.Errorf("generate refresh token: %w", err)
	}

	if err := s.tokens.RotateToken(ctx, user.ID, refreshToken, newRefresh, time.Now().UTC().Add(s.cfg.RefreshTTL)); err != nil {
		return AuthResponse{}, err
	}

	access, expiration, err := s.issueAccessToken(user.ID)
	if err != nil {
		return AuthResponse{}, err
	}

	return AuthResponse{
		AccessToken:  access,
		RefreshToken: newRefresh,
		Expiration:   expiration,
	}, nil
}

// Logout revokes every active refresh token of the user. Idempotent.
func (s *Service) Logout(ctx context.Context, userID string) error {
	if strings.TrimSpace(userID) == "" {
		return ErrInvalidRefreshToken
	}
	return s.tokens.RevokeUserTokens(ctx, userID)
}

// BootstrapAdmin creates the configured admin account if it does not exist.
func (s *Service) BootstrapAdmin(ctx context.Context, email, password string) error {
	email = normalizeEmail(email)
	if email == "" && password == "" {
		return nil
	}
	if email == "" || password == "" {
		return fmt.Errorf("admin email and password are required together")
	}

	if _, err := s.users.UserByEmail(ctx, email); err == nil {
		return nil
	} else if !errors.Is(err, ErrUserNotFound) {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	_, err = s.users.CreateUser(ctx, email, string(hash), ProviderLocal)
	if errors.Is(err, ErrEmailTaken) {
		return nil
	}
	return err
}

func (s *Service) issuePair(ctx context.Context, userID string) (AuthResponse, error) {
	access, expiration, err := s.issueAccessToken(userID)
	if err != nil {
		return AuthResponse{}, err
	}

	refreshToken, err := randomToken(refreshBytes)
	if err != nil {
		return AuthResponse{}, fmt.Errorf("generate refresh token: %w", err)
	}
	if err := s.tokens.SaveToken(ctx, userID, refreshToken, time.Now().UTC().Add(s.cfg.RefreshTTL)); err != nil {
		return AuthResponse{}, err
	}

	return AuthResponse{
		AccessToken:  access,
		RefreshToken: refreshToken,
		Expiration:   expiration,
	}, nil
}

func (s *Service) issueAccessToken(userID string) (string, time.Time, error) {
	now := time.Now().UTC()
	expiration := now.Add(s.cfg.AccessTTL)
	claims := jwt.MapClaims{
		"sub": userID,
		"iss": s.cfg.Issuer,
		"aud": s.cfg.Audience,
		"iat": now.Unix(),
		"exp": expiration.Unix(),
		"typ": "access",
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	encoded, err := token.SignedString(s.cfg.Secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign jwt: %w", err)
	}

	return encoded, expiration, nil
}

func normalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}

func validateEmail(verr *ValidationError, email string) {
	if email == "" || len(email) > 254 || !emailRegex.MatchString(email) {
		verr.Fields["email"] = "email format is invalid"
	}
}

func validatePassword(verr *ValidationError, password string) {
	if len(password) < minPasswordLen || len(password) > maxPasswordLen {
		verr.Fields["password"] = "password must be at least 6 characters"
	}
}

func randomToken(size int) (string, error) {
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
