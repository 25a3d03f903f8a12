// Package family manages family group membership. It is the only writer of a
// user's family group reference and fires claim propagation on every change.
package family

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jordanlanch/familycart/pkg/logger"
	"github.com/jordanlanch/familycart/pkg/models"
	"github.com/jordanlanch/familycart/pkg/store"
)

var (
	// ErrNotMember is returned when the user does not belong to the group.
	ErrNotMember = errors.New("user is not a member of this family group")
	// ErrNoGroup is returned by Leave for a user without a group.
	ErrNoGroup = errors.New("user has no family group")
)

// Store is the persistence the family service needs.
type Store interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	CreateFamilyGroup(ctx context.Context, g *models.FamilyGroup) error
	GetFamilyGroup(ctx context.Context, id string) (*models.FamilyGroup, error)
	SetUserFamilyGroup(ctx context.Context, userID, groupID string) (string, error)
}

// ClaimPropagator is notified after a user's group reference changes.
type ClaimPropagator interface {
	FamilyGroupChanged(ctx context.Context, userID, before, after string) error
}

// Service handles family group membership
type Service struct {
	store      Store
	propagator ClaimPropagator
	log        logger.Logger
}

// NewService creates a family service
func NewService(s Store, p ClaimPropagator, log logger.Logger) *Service {
	return &Service{
		store:      s,
		propagator: p,
		log:        log.With("component", "family"),
	}
}

// Create makes a new free-tier group owned by userID and moves the user into it
func (s *Service) Create(ctx context.Context, userID, name string) (*models.FamilyGroup, error) {
	g := &models.FamilyGroup{
		ID:               uuid.NewString(),
		Name:             strings.TrimSpace(name),
		OwnerID:          userID,
		SubscriptionTier: models.TierFree,
		CreatedAt:        time.Now().UTC(),
	}
	if err := s.store.CreateFamilyGroup(ctx, g); err != nil {
		return nil, fmt.Errorf("failed to create family group: %w", err)
	}

	if err := s.moveUser(ctx, userID, g.ID); err != nil {
		return nil, err
	}
	g.MemberIDs = []string{userID}

	s.log.Info("family group created", "family_group_id", g.ID, "owner_id", userID)
	return g, nil
}

// Join moves userID into groupID, leaving any previous group
func (s *Service) Join(ctx context.Context, userID, groupID string) (*models.FamilyGroup, error) {
	if _, err := s.store.GetFamilyGroup(ctx, groupID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to load family group: %w", err)
	}

	if err := s.moveUser(ctx, userID, groupID); err != nil {
		return nil, err
	}

	s.log.Info("joined family group", "family_group_id", groupID, "user_id", userID)
	return s.store.GetFamilyGroup(ctx, groupID)
}

// Leave clears userID's group reference
func (s *Service) Leave(ctx context.Context, userID string) error {
	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if u.FamilyGroupID == "" {
		return ErrNoGroup
	}

	if err := s.moveUser(ctx, userID, ""); err != nil {
		return err
	}

	s.log.Info("left family group", "family_group_id", u.FamilyGroupID, "user_id", userID)
	return nil
}

// Get returns groupID if userID belongs to it
func (s *Service) Get(ctx context.Context, userID, groupID string) (*models.FamilyGroup, error) {
	if err := s.RequireMember(ctx, userID, groupID); err != nil {
		return nil, err
	}
	return s.store.GetFamilyGroup(ctx, groupID)
}

// RequireMember checks the stored group reference of userID against groupID
func (s *Service) RequireMember(ctx context.Context, userID, groupID string) error {
	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if groupID == "" || u.FamilyGroupID != groupID {
		return ErrNotMember
	}
	return nil
}

func (s *Service) moveUser(ctx context.Context, userID, groupID string) error {
	before, err := s.store.SetUserFamilyGroup(ctx, userID, groupID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return err
		}
		return fmt.Errorf("failed to update family group reference: %w", err)
	}

	if err := s.propagator.FamilyGroupChanged(ctx, userID, before, groupID); err != nil {
		return err
	}
	return nil
}
