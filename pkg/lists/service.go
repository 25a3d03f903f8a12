// Package lists implements the quota-gated list and urgent item actions.
package lists

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jordanlanch/familycart/pkg/entitlement"
	"github.com/jordanlanch/familycart/pkg/logger"
	"github.com/jordanlanch/familycart/pkg/models"
	"github.com/jordanlanch/familycart/pkg/store"
)

var (
	// ErrEmptyName is returned when a name is blank after normalization.
	ErrEmptyName = errors.New("name must not be empty")
	// ErrListNotFound is returned when the list is missing or in another group.
	ErrListNotFound = errors.New("shopping list not found")
)

// Store is the persistence the list service needs.
type Store interface {
	CreateList(ctx context.Context, l *models.ShoppingList) error
	GetList(ctx context.Context, id string) (*models.ShoppingList, error)
	CreateUrgentItem(ctx context.Context, item *models.ListItem) error
}

// Quota gates an action on the caller's entitlement.
type Quota interface {
	Require(ctx context.Context, req entitlement.Request) (*models.EntitlementResult, error)
}

// Members verifies family group membership.
type Members interface {
	RequireMember(ctx context.Context, userID, groupID string) error
}

// Caller is the authenticated user performing an action.
type Caller struct {
	UserID string
	Admin  bool
}

// Service creates lists and urgent items
type Service struct {
	store   Store
	quota   Quota
	members Members
	log     logger.Logger
	now     func() time.Time
}

// NewService creates a list service
func NewService(s Store, q Quota, m Members, log logger.Logger) *Service {
	return &Service{
		store:   s,
		quota:   q,
		members: m,
		log:     log.With("component", "lists"),
		now:     time.Now,
	}
}

// CreateList checks the lists quota and stores a new list
func (s *Service) CreateList(ctx context.Context, caller Caller, req models.CreateListRequest) (*models.ShoppingList, error) {
	name := NormalizeName(req.Name)
	if name == "" {
		return nil, ErrEmptyName
	}
	if err := s.members.RequireMember(ctx, caller.UserID, req.FamilyGroupID); err != nil {
		return nil, err
	}

	if _, err := s.quota.Require(ctx, entitlement.Request{
		UserID:        caller.UserID,
		FamilyGroupID: req.FamilyGroupID,
		Category:      models.CategoryLists,
		Admin:         caller.Admin,
	}); err != nil {
		return nil, err
	}

	l := &models.ShoppingList{
		ID:            uuid.NewString(),
		FamilyGroupID: req.FamilyGroupID,
		Name:          name,
		CreatedBy:     caller.UserID,
		CreatedAt:     s.now().UTC(),
	}
	if err := s.store.CreateList(ctx, l); err != nil {
		return nil, err
	}

	s.log.Info("list created", "list_id", l.ID, "family_group_id", l.FamilyGroupID, "user_id", caller.UserID)
	return l, nil
}

// CreateUrgentItem checks the urgentItems quota and adds an urgent item to an
// existing list of the group
func (s *Service) CreateUrgentItem(ctx context.Context, caller Caller, req models.CreateUrgentItemRequest) (*models.ListItem, error) {
	name := NormalizeName(req.Name)
	if name == "" {
		return nil, ErrEmptyName
	}
	if err := s.members.RequireMember(ctx, caller.UserID, req.FamilyGroupID); err != nil {
		return nil, err
	}

	list, err := s.store.GetList(ctx, req.ListID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && list.FamilyGroupID != req.FamilyGroupID) {
		return nil, ErrListNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load list: %w", err)
	}

	if _, err := s.quota.Require(ctx, entitlement.Request{
		UserID:        caller.UserID,
		FamilyGroupID: req.FamilyGroupID,
		Category:      models.CategoryUrgentItems,
		Admin:         caller.Admin,
	}); err != nil {
		return nil, err
	}

	quantity := req.Quantity
	if quantity <= 0 {
		quantity = 1
	}
	item := &models.ListItem{
		ID:            uuid.NewString(),
		ListID:        list.ID,
		FamilyGroupID: req.FamilyGroupID,
		Name:          name,
		Quantity:      quantity,
		Urgent:        true,
		CreatedBy:     caller.UserID,
		CreatedAt:     s.now().UTC(),
	}
	if err := s.store.CreateUrgentItem(ctx, item); err != nil {
		return nil, err
	}

	s.log.Info("urgent item created", "item_id", item.ID, "list_id", list.ID, "user_id", caller.UserID)
	return item, nil
}
