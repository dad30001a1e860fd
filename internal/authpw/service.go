// Package authpw provides email/password authentication with verification.
package authpw

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/mail"
	"strings"
	"time"

	"youredu/api/internal/store"
	"youredu/api/internal/util"

	"golang.org/x/crypto/bcrypt"
)

const (
	MinPasswordLength  = 8
	VerificationTTL    = 24 * time.Hour
	PasswordResetTTL   = time.Hour
	defaultDisplayName = "Parent"
)

var (
	ErrMissingFields       = errors.New("email and password are required")
	ErrInvalidEmail        = errors.New("email address is invalid")
	ErrWeakPassword        = fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	ErrEmailTaken          = store.ErrEmailTaken
	ErrInvalidCredentials  = errors.New("invalid email or password")
	ErrInvalidVerification = errors.New("invalid or expired verification token")
	ErrInvalidReset        = errors.New("invalid or expired reset token")
)

// Service provides email/password authentication
type Service struct {
	store UserStore
	now   func() time.Time
}

// UserStore defines the storage interface for auth
type UserStore interface {
	GetUserByEmail(ctx context.Context, email string) (store.User, error)
	GetUserByID(ctx context.Context, id string) (store.User, error)
	CreateUser(ctx context.Context, user store.User) error
	UpdateUserVerificationToken(ctx context.Context, userID, token string, expiresAt time.Time) error
	VerifyUserEmail(ctx context.Context, token string) error
	UpdateUserPassword(ctx context.Context, userID, passwordHash string) error
	CreatePasswordReset(ctx context.Context, userID, token string, expiresAt time.Time) error
	GetPasswordReset(ctx context.Context, token string) (string, error)
	MarkPasswordResetUsed(ctx context.Context, token string) error
}

func NewService(store UserStore) *Service {
	return &Service{store: store, now: time.Now}
}

// NormalizeEmail trims and lowercases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

type SignUpRequest struct {
	Email       string
	Password    string
	DisplayName string
}

type SignUpResponse struct {
	User                store.User
	VerificationToken   string
	RequiresEmailVerify bool
}

// SignUp creates a parent account awaiting email verification.
func (s *Service) SignUp(ctx context.Context, req SignUpRequest) (*SignUpResponse, error) {
	email := NormalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		return nil, ErrMissingFields
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, ErrInvalidEmail
	}
	if len(req.Password) < MinPasswordLength {
		return nil, ErrWeakPassword
	}
	if _, err := s.store.GetUserByEmail(ctx, email); err == nil {
		return nil, ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	name := strings.TrimSpace(req.DisplayName)
	if name == "" {
		name = defaultDisplayName
	}
	verificationToken := util.NewToken("")
	user := store.User{
		ID:                util.NewID(),
		DisplayName:       name,
		Email:             email,
		PasswordHash:      string(hash),
		Role:              store.RoleParent,
		VerificationToken: verificationToken,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrEmailTaken) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	expiresAt := s.now().Add(VerificationTTL)
	if err := s.store.UpdateUserVerificationToken(ctx, user.ID, verificationToken, expiresAt); err != nil {
		return nil, fmt.Errorf("set verification expiry: %w", err)
	}
	user.VerificationExpiresAt = &expiresAt

	return &SignUpResponse{
		User:                user,
		VerificationToken:   verificationToken,
		RequiresEmailVerify: true,
	}, nil
}

type SignInRequest struct {
	Email    string
	Password string
}

type SignInResponse struct {
	User           store.User
	RequiresVerify bool
}

// SignIn checks the password first so an unverified account never leaks
// its state to someone who does not know the password.
func (s *Service) SignIn(ctx context.Context, req SignInRequest) (*SignInResponse, error) {
	email := NormalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		return nil, ErrMissingFields
	}

	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return &SignInResponse{User: user, RequiresVerify: !user.IsEmailVerified}, nil
}

// ResendVerification issues a fresh verification token for an unverified account.
func (s *Service) ResendVerification(ctx context.Context, email string) (store.User, string, error) {
	user, err := s.store.GetUserByEmail(ctx, NormalizeEmail(email))
	if err != nil || user.IsEmailVerified {
		return store.User{}, "", nil
	}
	token := util.NewToken("")
	if err := s.store.UpdateUserVerificationToken(ctx, user.ID, token, s.now().Add(VerificationTTL)); err != nil {
		return store.User{}, "", fmt.Errorf("set verification token: %w", err)
	}
	return user, token, nil
}

func (s *Service) VerifyEmail(ctx context.Context, token string) error {
	if strings.TrimSpace(token) == "" {
		return ErrInvalidVerification
	}
	if err := s.store.VerifyUserEmail(ctx, token); err != nil {
		return ErrInvalidVerification
	}
	return nil
}

// RequestPasswordReset creates a reset token. Unknown addresses return a
// zero user and no error so callers cannot probe for accounts.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) (store.User, string, error) {
	user, err := s.store.GetUserByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		return store.User{}, "", nil
	}

	token := util.NewToken("")
	if err := s.store.CreatePasswordReset(ctx, user.ID, token, s.now().Add(PasswordResetTTL)); err != nil {
		return store.User{}, "", fmt.Errorf("create password reset: %w", err)
	}
	return user, token, nil
}

type ResetPasswordRequest struct {
	Token       string
	NewPassword string
}

// ResetPassword sets a new password using a reset token.
func (s *Service) ResetPassword(ctx context.Context, req ResetPasswordRequest) error {
	if req.Token == "" || req.NewPassword == "" {
		return ErrInvalidReset
	}
	if len(req.NewPassword) < MinPasswordLength {
		return ErrWeakPassword
	}

	userID, err := s.store.GetPasswordReset(ctx, req.Token)
	if err != nil {
		return ErrInvalidReset
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.store.UpdateUserPassword(ctx, userID, string(hash)); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if err := s.store.MarkPasswordResetUsed(ctx, req.Token); err != nil {
		log.Printf("authpw: mark reset token used: %v", err)
	}
	return nil
}

// IsBcryptHash reports whether hash looks like a bcrypt hash with a usable cost.
func IsBcryptHash(hash string) bool {
	cost, err := bcrypt.Cost([]byte(hash))
	return err == nil && cost >= bcrypt.MinCost && cost <= bcrypt.MaxCost
}
