package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jordanlanch/familycart/pkg/logger"
	"github.com/jordanlanch/familycart/pkg/metrics"
	"github.com/jordanlanch/familycart/pkg/models"
	"github.com/jordanlanch/familycart/pkg/store"
)

var (
	// ErrInvalidCredentials is returned for an unknown email or wrong password.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrEmailTaken is returned when registering an existing email.
	ErrEmailTaken = errors.New("email already registered")
)

// Store is the persistence the auth service needs.
type Store interface {
	CreateUser(ctx context.Context, u *models.User) error
	GetUser(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetClaims(ctx context.Context, userID string) (models.CustomClaims, error)
}

// Service handles accounts and token issuance
type Service struct {
	store           Store
	secret          string
	expirationHours int
	log             logger.Logger
	metrics         *metrics.Metrics
}

// NewService creates an auth service
func NewService(s Store, secret string, expirationHours int, log logger.Logger, m *metrics.Metrics) *Service {
	return &Service{
		store:           s,
		secret:          secret,
		expirationHours: expirationHours,
		log:             log.With("component", "auth"),
		metrics:         m,
	}
}

// CreateAccount stores a new user with a bcrypt password hash
func (s *Service) CreateAccount(ctx context.Context, email, password string) (*models.User, error) {
	hash, err := HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	u := &models.User{
		ID:           uuid.NewString(),
		Email:        normalizeEmail(email),
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.metrics.RecordUserRegistered()
	s.log.Info("user registered", "user_id", u.ID)
	return u, nil
}

// Register creates an account and returns a token for it
func (s *Service) Register(ctx context.Context, email, password string) (*models.AuthResponse, error) {
	u, err := s.CreateAccount(ctx, email, password)
	if err != nil {
		return nil, err
	}
	return s.IssueToken(ctx, u)
}

// Login checks credentials and returns a token
func (s *Service) Login(ctx context.Context, email, password string) (*models.AuthResponse, error) {
	u, err := s.store.GetUserByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, store.ErrNotFound) {
		s.metrics.RecordLoginAttempt(false)
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	if !CheckPassword(u.PasswordHash, password) {
		s.metrics.RecordLoginAttempt(false)
		return nil, ErrInvalidCredentials
	}

	s.metrics.RecordLoginAttempt(true)
	return s.IssueToken(ctx, u)
}

// Refresh re-mints a token for userID from the currently stored claims.
// Clients call it after claimsUpdatedAt moves past their token's issue time.
func (s *Service) Refresh(ctx context.Context, userID string) (*models.AuthResponse, error) {
	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.IssueToken(ctx, u)
}

// IssueToken mints a token carrying the user's stored custom claims
func (s *Service) IssueToken(ctx context.Context, u *models.User) (*models.AuthResponse, error) {
	custom, err := s.store.GetClaims(ctx, u.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load claims: %w", err)
	}

	token, err := GenerateJWT(u.ID, u.Email, custom, s.secret, s.expirationHours)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}
	return &models.AuthResponse{Token: token, User: u}, nil
}

// ValidateToken parses a bearer token
func (s *Service) ValidateToken(token string) (*Claims, error) {
	return ValidateJWT(token, s.secret)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
