package claims

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jordanlanch/familycart/pkg/logger"
	"github.com/jordanlanch/familycart/pkg/metrics"
	"github.com/jordanlanch/familycart/pkg/models"
	"github.com/jordanlanch/familycart/pkg/store"
)

// BootstrapFlag is the one-shot store flag consumed by BootstrapAdmin.
const BootstrapFlag = "bootstrap_admin"

// ErrBootstrapUnavailable is returned when bootstrap is disabled or was
// already used.
var ErrBootstrapUnavailable = errors.New("admin bootstrap is not available")

// Store is the persistence the admin service needs.
type Store interface {
	Writer
	GetUser(ctx context.Context, id string) (*models.User, error)
	AcquireFlag(ctx context.Context, name string) error
	ReleaseFlag(ctx context.Context, name string) error
}

// Accounts creates users and mints their tokens.
type Accounts interface {
	CreateAccount(ctx context.Context, email, password string) (*models.User, error)
	IssueToken(ctx context.Context, u *models.User) (*models.AuthResponse, error)
}

// Service grants admin rights
type Service struct {
	store            Store
	accounts         Accounts
	bootstrapEnabled bool
	log              logger.Logger
	metrics          *metrics.Metrics
	now              func() time.Time
}

// NewService creates an admin claims service
func NewService(s Store, accounts Accounts, bootstrapEnabled bool, log logger.Logger, m *metrics.Metrics) *Service {
	return &Service{
		store:            s,
		accounts:         accounts,
		bootstrapEnabled: bootstrapEnabled,
		log:              log.With("component", "claims"),
		metrics:          m,
		now:              time.Now,
	}
}

// GrantAdmin sets admin=true on an existing user, keeping every other claim.
// It returns store.ErrNotFound for an unknown user.
func (s *Service) GrantAdmin(ctx context.Context, targetUserID string) error {
	if _, err := s.store.GetUser(ctx, targetUserID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return err
		}
		return fmt.Errorf("failed to load target user: %w", err)
	}
	return s.setAdmin(ctx, targetUserID)
}

// BootstrapAdmin creates the first admin account. It succeeds at most once
// per deployment.
func (s *Service) BootstrapAdmin(ctx context.Context, email, password string) (*models.AuthResponse, error) {
	if !s.bootstrapEnabled {
		return nil, ErrBootstrapUnavailable
	}

	if err := s.store.AcquireFlag(ctx, BootstrapFlag); err != nil {
		if errors.Is(err, store.ErrFlagConsumed) {
			return nil, ErrBootstrapUnavailable
		}
		return nil, fmt.Errorf("failed to acquire bootstrap flag: %w", err)
	}

	resp, err := s.bootstrap(ctx, email, password)
	if err != nil {
		if relErr := s.store.ReleaseFlag(ctx, BootstrapFlag); relErr != nil {
			s.log.Error("failed to release bootstrap flag", "error", relErr)
		}
		return nil, err
	}

	s.log.Warn("bootstrap admin created", "user_id", resp.User.ID)
	return resp, nil
}

func (s *Service) bootstrap(ctx context.Context, email, password string) (*models.AuthResponse, error) {
	u, err := s.accounts.CreateAccount(ctx, email, password)
	if err != nil {
		return nil, err
	}
	if err := s.setAdmin(ctx, u.ID); err != nil {
		return nil, err
	}
	return s.accounts.IssueToken(ctx, u)
}

func (s *Service) setAdmin(ctx context.Context, userID string) error {
	_, err := s.store.MergeClaims(ctx, userID, models.CustomClaims{models.ClaimAdmin: true})
	if err == nil {
		err = s.store.SetClaimsUpdatedAt(ctx, userID, s.now().UTC())
	}

	s.metrics.RecordClaimUpdate(ReasonAdminGranted, err)
	if err != nil {
		return fmt.Errorf("failed to grant admin to %s: %w", userID, err)
	}

	s.log.Info("admin claim granted", "user_id", userID)
	return nil
}
