// Package redisstore implements store.Store on Redis. Documents are hashes or
// JSON strings; multi-key writes go through MULTI/EXEC and read-then-write
// sequences through WATCH.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jordanlanch/familycart/pkg/cache"
	"github.com/jordanlanch/familycart/pkg/models"
	"github.com/jordanlanch/familycart/pkg/store"
	"github.com/redis/go-redis/v9"
)

const defaultPrefix = "fc:"

// Store is the Redis-backed store
type Store struct {
	client *cache.Client
	prefix string
}

var _ store.Store = (*Store)(nil)

// New creates a store on top of an existing cache client
func New(client *cache.Client) *Store {
	return &Store{client: client, prefix: defaultPrefix}
}

func (s *Store) key(parts ...string) string {
	return s.prefix + strings.Join(parts, ":")
}

func (s *Store) rdb() *redis.Client {
	return s.client.Redis
}

// Ping checks the connection
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx)
}

// Close closes the underlying client
func (s *Store) Close() error {
	return s.client.Close()
}

// ---- users ----

// CreateUser stores a user, reserving the email first
func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	emailKey := s.key("user_email", u.Email)

	ok, err := s.rdb().SetNX(ctx, emailKey, u.ID, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to reserve email: %w", err)
	}
	if !ok {
		return store.ErrAlreadyExists
	}

	fields := map[string]interface{}{
		"id":           u.ID,
		"email":        u.Email,
		"passwordHash": u.PasswordHash,
		"createdAt":    u.CreatedAt.UnixMilli(),
	}
	if u.FamilyGroupID != "" {
		fields["familyGroupId"] = u.FamilyGroupID
	}

	if err := s.rdb().HSet(ctx, s.key("user", u.ID), fields).Err(); err != nil {
		s.rdb().Del(ctx, emailKey)
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetUser loads a user by id
func (s *Store) GetUser(ctx context.Context, id string) (*models.User, error) {
	vals, err := s.rdb().HGetAll(ctx, s.key("user", id)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if len(vals) == 0 {
		return nil, store.ErrNotFound
	}

	return &models.User{
		ID:            vals["id"],
		Email:         vals["email"],
		PasswordHash:  vals["passwordHash"],
		FamilyGroupID: vals["familyGroupId"],
		CreatedAt:     parseMillis(vals["createdAt"]),
	}, nil
}

// GetUserByEmail resolves the email index then loads the user
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	id, err := s.rdb().Get(ctx, s.key("user_email", email)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve email: %w", err)
	}
	return s.GetUser(ctx, id)
}

// SetUserFamilyGroup swaps the user's group reference and membership
func (s *Store) SetUserFamilyGroup(ctx context.Context, userID, groupID string) (string, error) {
	userKey := s.key("user", userID)
	var previous string

	err := s.client.Transact(ctx, func(tx *redis.Tx) error {
		vals, err := tx.HMGet(ctx, userKey, "id", "familyGroupId").Result()
		if err != nil {
			return err
		}
		if vals[0] == nil {
			return store.ErrNotFound
		}
		previous, _ = vals[1].(string)

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if groupID == "" {
				pipe.HDel(ctx, userKey, "familyGroupId")
			} else {
				pipe.HSet(ctx, userKey, "familyGroupId", groupID)
				pipe.SAdd(ctx, s.key("family_members", groupID), userID)
			}
			if previous != "" && previous != groupID {
				pipe.SRem(ctx, s.key("family_members", previous), userID)
			}
			return nil
		})
		return err
	}, userKey)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", err
		}
		return "", fmt.Errorf("failed to set family group: %w", err)
	}
	return previous, nil
}

// ---- claims ----

// GetClaims returns the user's custom claims, empty if none are set
func (s *Store) GetClaims(ctx context.Context, userID string) (models.CustomClaims, error) {
	vals, err := s.rdb().HGetAll(ctx, s.key("claims", userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get claims: %w", err)
	}
	return decodeClaims(vals)
}

// MergeClaims applies set/unset and reads the result back inside one MULTI
func (s *Store) MergeClaims(ctx context.Context, userID string, set models.CustomClaims, unset ...string) (models.CustomClaims, error) {
	claimsKey := s.key("claims", userID)

	fields := make(map[string]interface{}, len(set))
	for k, v := range set {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to encode claim %s: %w", k, err)
		}
		fields[k] = string(raw)
	}

	var all *redis.MapStringStringCmd
	_, err := s.rdb().TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(fields) > 0 {
			pipe.HSet(ctx, claimsKey, fields)
		}
		if len(unset) > 0 {
			pipe.HDel(ctx, claimsKey, unset...)
		}
		all = pipe.HGetAll(ctx, claimsKey)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to merge claims: %w", err)
	}
	return decodeClaims(all.Val())
}

// SetClaimsUpdatedAt records when the user's claims last changed
func (s *Store) SetClaimsUpdatedAt(ctx context.Context, userID string, at time.Time) error {
	if err := s.rdb().HSet(ctx, s.key("claims_meta", userID), "claimsUpdatedAt", at.UnixMilli()).Err(); err != nil {
		return fmt.Errorf("failed to record claims update: %w", err)
	}
	return nil
}

// GetClaimsUpdatedAt returns the marker in unix ms, nil if never set
func (s *Store) GetClaimsUpdatedAt(ctx context.Context, userID string) (*int64, error) {
	v, err := s.rdb().HGet(ctx, s.key("claims_meta", userID), "claimsUpdatedAt").Int64()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get claims update marker: %w", err)
	}
	return &v, nil
}

func decodeClaims(vals map[string]string) (models.CustomClaims, error) {
	claims := make(models.CustomClaims, len(vals))
	for k, raw := range vals {
		var v interface{}
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return nil, fmt.Errorf("failed to decode claim %s: %w", k, err)
		}
		claims[k] = v
	}
	return claims, nil
}

// ---- usage ----

// GetUsage loads the counters
func (s *Store) GetUsage(ctx context.Context, userID string) (*models.UsageCounters, bool, error) {
	vals, err := s.rdb().HGetAll(ctx, s.key("usage", userID)).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to get usage: %w", err)
	}
	if len(vals) == 0 {
		return nil, false, nil
	}

	return &models.UsageCounters{
		ListsCreated:       atoi(vals["listsCreated"]),
		OCRProcessed:       atoi(vals["ocrProcessed"]),
		UrgentItemsCreated: atoi(vals["urgentItemsCreated"]),
		LastResetDate:      parseMillis(vals["lastResetDate"]),
	}, true, nil
}

// ResetMonthlyUsage zeroes the monthly counters, listsCreated is kept
func (s *Store) ResetMonthlyUsage(ctx context.Context, userID string, at time.Time) error {
	err := s.rdb().HSet(ctx, s.key("usage", userID),
		"ocrProcessed", 0,
		"urgentItemsCreated", 0,
		"lastResetDate", at.UnixMilli(),
	).Err()
	if err != nil {
		return fmt.Errorf("failed to reset usage: %w", err)
	}
	return nil
}

func (s *Store) queueIncrement(ctx context.Context, pipe redis.Pipeliner, userID, field string, at time.Time) {
	usageKey := s.key("usage", userID)
	pipe.HIncrBy(ctx, usageKey, field, 1)
	pipe.HSetNX(ctx, usageKey, "lastResetDate", at.UnixMilli())
}

// ---- families ----

// CreateFamilyGroup stores a new group with its initial members
func (s *Store) CreateFamilyGroup(ctx context.Context, g *models.FamilyGroup) error {
	groupKey := s.key("family", g.ID)
	tier := g.SubscriptionTier
	if tier == "" {
		tier = models.TierFree
	}

	err := s.client.Transact(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, groupKey).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return store.ErrAlreadyExists
		}

		fields := map[string]interface{}{
			"id":               g.ID,
			"name":             g.Name,
			"ownerId":          g.OwnerID,
			"subscriptionTier": string(tier),
			"createdAt":        g.CreatedAt.UnixMilli(),
		}
		if g.TierUpdatedAt != nil {
			fields["tierUpdatedAt"] = *g.TierUpdatedAt
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, groupKey, fields)
			if len(g.MemberIDs) > 0 {
				members := make([]interface{}, len(g.MemberIDs))
				for i, id := range g.MemberIDs {
					members[i] = id
				}
				pipe.SAdd(ctx, s.key("family_members", g.ID), members...)
			}
			return nil
		})
		return err
	}, groupKey)
	if err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return err
		}
		return fmt.Errorf("failed to create family group: %w", err)
	}
	return nil
}

// GetFamilyGroup loads a group and its member set
func (s *Store) GetFamilyGroup(ctx context.Context, id string) (*models.FamilyGroup, error) {
	pipe := s.rdb().Pipeline()
	fieldsCmd := pipe.HGetAll(ctx, s.key("family", id))
	membersCmd := pipe.SMembers(ctx, s.key("family_members", id))
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to get family group: %w", err)
	}

	vals := fieldsCmd.Val()
	if len(vals) == 0 {
		return nil, store.ErrNotFound
	}

	g := &models.FamilyGroup{
		ID:               vals["id"],
		Name:             vals["name"],
		OwnerID:          vals["ownerId"],
		SubscriptionTier: models.Tier(vals["subscriptionTier"]),
		MemberIDs:        membersCmd.Val(),
		CreatedAt:        parseMillis(vals["createdAt"]),
	}
	if raw, ok := vals["tierUpdatedAt"]; ok {
		if ts, err := strconv.ParseInt(raw, 10, 64); err == nil {
			g.TierUpdatedAt = &ts
		}
	}
	return g, nil
}

// SetFamilyTier is the last-write-wins compare-and-set on tierUpdatedAt
func (s *Store) SetFamilyTier(ctx context.Context, groupID string, tier models.Tier, eventMs int64) (bool, error) {
	groupKey := s.key("family", groupID)
	var applied bool

	err := s.client.Transact(ctx, func(tx *redis.Tx) error {
		applied = false

		vals, err := tx.HMGet(ctx, groupKey, "id", "tierUpdatedAt").Result()
		if err != nil {
			return err
		}
		if vals[0] == nil {
			return store.ErrNotFound
		}
		if raw, ok := vals[1].(string); ok {
			stored, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return fmt.Errorf("corrupt tierUpdatedAt %q: %w", raw, err)
			}
			if eventMs <= stored {
				return nil
			}
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, groupKey,
				"subscriptionTier", string(tier),
				"tierUpdatedAt", eventMs,
			)
			return nil
		})
		if err == nil {
			applied = true
		}
		return err
	}, groupKey)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, err
		}
		return false, fmt.Errorf("failed to set family tier: %w", err)
	}
	return applied, nil
}

// ---- lists ----

// CreateList writes the list and bumps listsCreated together
func (s *Store) CreateList(ctx context.Context, l *models.ShoppingList) error {
	raw, err := json.Marshal(l)
	if err != nil {
		return fmt.Errorf("failed to encode list: %w", err)
	}

	_, err = s.rdb().TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key("list", l.ID), raw, 0)
		pipe.SAdd(ctx, s.key("family_lists", l.FamilyGroupID), l.ID)
		s.queueIncrement(ctx, pipe, l.CreatedBy, "listsCreated", l.CreatedAt)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to create list: %w", err)
	}
	return nil
}

// GetList loads a list
func (s *Store) GetList(ctx context.Context, id string) (*models.ShoppingList, error) {
	var l models.ShoppingList
	if err := s.client.GetJSON(ctx, s.key("list", id), &l); err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get list: %w", err)
	}
	return &l, nil
}

// CreateUrgentItem writes the item and bumps urgentItemsCreated together
func (s *Store) CreateUrgentItem(ctx context.Context, item *models.ListItem) error {
	raw, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to encode item: %w", err)
	}

	_, err = s.rdb().TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key("item", item.ID), raw, 0)
		pipe.SAdd(ctx, s.key("list_items", item.ListID), item.ID)
		s.queueIncrement(ctx, pipe, item.CreatedBy, "urgentItemsCreated", item.CreatedAt)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to create item: %w", err)
	}
	return nil
}

// SaveReceiptScan writes the scan and bumps ocrProcessed together
func (s *Store) SaveReceiptScan(ctx context.Context, scan *models.ReceiptScan) error {
	raw, err := json.Marshal(scan)
	if err != nil {
		return fmt.Errorf("failed to encode receipt scan: %w", err)
	}

	_, err = s.rdb().TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key("receipt", scan.ID), raw, 0)
		s.queueIncrement(ctx, pipe, scan.UserID, "ocrProcessed", scan.CreatedAt)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save receipt scan: %w", err)
	}
	return nil
}

// ---- webhooks ----

// AppendWebhookLog pushes an entry and trims the log
func (s *Store) AppendWebhookLog(ctx context.Context, entry models.WebhookLogEntry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode webhook log entry: %w", err)
	}

	logKey := s.key("webhook_log")
	_, err = s.rdb().TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, logKey, raw)
		pipe.LTrim(ctx, logKey, 0, store.WebhookLogLimit-1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to append webhook log: %w", err)
	}
	return nil
}

// RecentWebhookLog returns the newest entries first
func (s *Store) RecentWebhookLog(ctx context.Context, limit int) ([]models.WebhookLogEntry, error) {
	if limit <= 0 || limit > store.WebhookLogLimit {
		limit = store.WebhookLogLimit
	}

	raws, err := s.rdb().LRange(ctx, s.key("webhook_log"), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read webhook log: %w", err)
	}

	entries := make([]models.WebhookLogEntry, 0, len(raws))
	for _, raw := range raws {
		var e models.WebhookLogEntry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, fmt.Errorf("failed to decode webhook log entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// ---- flags ----

// AcquireFlag sets a one-shot marker
func (s *Store) AcquireFlag(ctx context.Context, name string) error {
	ok, err := s.rdb().SetNX(ctx, s.key("flag", name), time.Now().UnixMilli(), 0).Result()
	if err != nil {
		return fmt.Errorf("failed to acquire flag %s: %w", name, err)
	}
	if !ok {
		return store.ErrFlagConsumed
	}
	return nil
}

// ReleaseFlag clears a marker
func (s *Store) ReleaseFlag(ctx context.Context, name string) error {
	if err := s.client.Delete(ctx, s.key("flag", name)); err != nil {
		return fmt.Errorf("failed to release flag %s: %w", name, err)
	}
	return nil
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func parseMillis(s string) time.Time {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
