// Package sqlstore implements store.Store on database/sql for Postgres and
// SQLite. Multi-row writes run in one transaction; the tier compare-and-set
// is a single conditional UPDATE.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jordanlanch/familycart/pkg/database"
	"github.com/jordanlanch/familycart/pkg/models"
	"github.com/jordanlanch/familycart/pkg/store"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// Store is the SQL-backed store
type Store struct {
	db      *sql.DB
	dialect string
}

var _ store.Store = (*Store)(nil)

// New wraps an open database client
func New(client *database.Client) *Store {
	return &Store{db: client.DB, dialect: client.Dialect}
}

// Ping checks the connection
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// forUpdate locks selected rows on Postgres; sqlite transactions already
// serialize writers.
func (s *Store) forUpdate() string {
	if s.dialect == database.DialectPostgres {
		return " FOR UPDATE"
	}
	return ""
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// ---- users ----

// CreateUser inserts a user
func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash, family_group_id, created_at) VALUES ($1, $2, $3, $4, $5)`,
		u.ID, u.Email, u.PasswordHash, nullString(u.FamilyGroupID), u.CreatedAt.UnixMilli(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrAlreadyExists
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetUser loads a user by id
func (s *Store) GetUser(ctx context.Context, id string) (*models.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx,
		`SELECT id, email, password_hash, family_group_id, created_at FROM users WHERE id = $1`, id))
}

// GetUserByEmail loads a user by email
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx,
		`SELECT id, email, password_hash, family_group_id, created_at FROM users WHERE email = $1`, email))
}

func (s *Store) scanUser(row *sql.Row) (*models.User, error) {
	var (
		u         models.User
		groupID   sql.NullString
		createdAt int64
	)
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &groupID, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	u.FamilyGroupID = groupID.String
	u.CreatedAt = time.UnixMilli(createdAt).UTC()
	return &u, nil
}

// SetUserFamilyGroup swaps the user's group reference and membership rows
func (s *Store) SetUserFamilyGroup(ctx context.Context, userID, groupID string) (string, error) {
	var previous string

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var current sql.NullString
		err := tx.QueryRowContext(ctx,
			`SELECT family_group_id FROM users WHERE id = $1`+s.forUpdate(), userID).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to read family group: %w", err)
		}
		previous = current.String

		if _, err := tx.ExecContext(ctx,
			`UPDATE users SET family_group_id = $1 WHERE id = $2`, nullString(groupID), userID); err != nil {
			return fmt.Errorf("failed to set family group: %w", err)
		}
		if previous != "" && previous != groupID {
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM family_members WHERE family_group_id = $1 AND user_id = $2`, previous, userID); err != nil {
				return fmt.Errorf("failed to remove membership: %w", err)
			}
		}
		if groupID != "" {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO family_members (family_group_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, groupID, userID); err != nil {
				return fmt.Errorf("failed to add membership: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return previous, nil
}

// ---- claims ----

// GetClaims returns the user's custom claims
func (s *Store) GetClaims(ctx context.Context, userID string) (models.CustomClaims, error) {
	return queryClaims(ctx, s.db, userID)
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

func queryClaims(ctx context.Context, q querier, userID string) (models.CustomClaims, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT claim_key, claim_value FROM custom_claims WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get claims: %w", err)
	}
	defer rows.Close()

	claims := make(models.CustomClaims)
	for rows.Next() {
		var key, raw string
		if err := rows.Scan(&key, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan claim: %w", err)
		}
		var v interface{}
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return nil, fmt.Errorf("failed to decode claim %s: %w", key, err)
		}
		claims[key] = v
	}
	return claims, rows.Err()
}

// MergeClaims upserts set, deletes unset and returns the result
func (s *Store) MergeClaims(ctx context.Context, userID string, set models.CustomClaims, unset ...string) (models.CustomClaims, error) {
	var result models.CustomClaims

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for k, v := range set {
			raw, err := json.Marshal(v)
			if err != nil {
				return fmt.Errorf("failed to encode claim %s: %w", k, err)
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO custom_claims (user_id, claim_key, claim_value) VALUES ($1, $2, $3)
				 ON CONFLICT (user_id, claim_key) DO UPDATE SET claim_value = excluded.claim_value`,
				userID, k, string(raw)); err != nil {
				return fmt.Errorf("failed to set claim %s: %w", k, err)
			}
		}
		for _, k := range unset {
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM custom_claims WHERE user_id = $1 AND claim_key = $2`, userID, k); err != nil {
				return fmt.Errorf("failed to unset claim %s: %w", k, err)
			}
		}

		var err error
		result, err = queryClaims(ctx, tx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// SetClaimsUpdatedAt records when the user's claims last changed
func (s *Store) SetClaimsUpdatedAt(ctx context.Context, userID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO claims_metadata (user_id, claims_updated_at) VALUES ($1, $2)
		 ON CONFLICT (user_id) DO UPDATE SET claims_updated_at = excluded.claims_updated_at`,
		userID, at.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to record claims update: %w", err)
	}
	return nil
}

// GetClaimsUpdatedAt returns the marker in unix ms, nil if never set
func (s *Store) GetClaimsUpdatedAt(ctx context.Context, userID string) (*int64, error) {
	var ms int64
	err := s.db.QueryRowContext(ctx,
		`SELECT claims_updated_at FROM claims_metadata WHERE user_id = $1`, userID).Scan(&ms)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get claims update marker: %w", err)
	}
	return &ms, nil
}

// ---- usage ----

// GetUsage loads the counters
func (s *Store) GetUsage(ctx context.Context, userID string) (*models.UsageCounters, bool, error) {
	var (
		u         models.UsageCounters
		lastReset int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT lists_created, ocr_processed, urgent_items_created, last_reset_date FROM usage_counters WHERE user_id = $1`,
		userID).Scan(&u.ListsCreated, &u.OCRProcessed, &u.UrgentItemsCreated, &lastReset)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get usage: %w", err)
	}
	u.LastResetDate = time.UnixMilli(lastReset).UTC()
	return &u, true, nil
}

// ResetMonthlyUsage zeroes the monthly counters, lists_created is kept
func (s *Store) ResetMonthlyUsage(ctx context.Context, userID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO usage_counters (user_id, last_reset_date) VALUES ($1, $2)
		 ON CONFLICT (user_id) DO UPDATE SET ocr_processed = 0, urgent_items_created = 0, last_reset_date = excluded.last_reset_date`,
		userID, at.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to reset usage: %w", err)
	}
	return nil
}

// incrementColumns maps counters to their column; values are never user input.
var incrementColumns = map[models.LimitCategory]string{
	models.CategoryLists:       "lists_created",
	models.CategoryOCR:         "ocr_processed",
	models.CategoryUrgentItems: "urgent_items_created",
}

func incrementUsage(ctx context.Context, tx *sql.Tx, userID string, category models.LimitCategory, at time.Time) error {
	col := incrementColumns[category]
	_, err := tx.ExecContext(ctx,
		`INSERT INTO usage_counters (user_id, `+col+`, last_reset_date) VALUES ($1, 1, $2)
		 ON CONFLICT (user_id) DO UPDATE SET `+col+` = usage_counters.`+col+` + 1`,
		userID, at.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to increment %s: %w", col, err)
	}
	return nil
}

// ---- families ----

// CreateFamilyGroup inserts a group and its initial members
func (s *Store) CreateFamilyGroup(ctx context.Context, g *models.FamilyGroup) error {
	tier := g.SubscriptionTier
	if tier == "" {
		tier = models.TierFree
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO family_groups (id, name, owner_id, subscription_tier, tier_updated_at, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
			g.ID, g.Name, g.OwnerID, string(tier), nullInt64(g.TierUpdatedAt), g.CreatedAt.UnixMilli())
		if err != nil {
			if isUniqueViolation(err) {
				return store.ErrAlreadyExists
			}
			return fmt.Errorf("failed to create family group: %w", err)
		}
		for _, memberID := range g.MemberIDs {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO family_members (family_group_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
				g.ID, memberID); err != nil {
				return fmt.Errorf("failed to add member: %w", err)
			}
		}
		return nil
	})
}

// GetFamilyGroup loads a group and its members
func (s *Store) GetFamilyGroup(ctx context.Context, id string) (*models.FamilyGroup, error) {
	var (
		g             models.FamilyGroup
		tier          string
		tierUpdatedAt sql.NullInt64
		createdAt     int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, owner_id, subscription_tier, tier_updated_at, created_at FROM family_groups WHERE id = $1`, id).
		Scan(&g.ID, &g.Name, &g.OwnerID, &tier, &tierUpdatedAt, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get family group: %w", err)
	}
	g.SubscriptionTier = models.Tier(tier)
	g.CreatedAt = time.UnixMilli(createdAt).UTC()
	if tierUpdatedAt.Valid {
		ts := tierUpdatedAt.Int64
		g.TierUpdatedAt = &ts
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id FROM family_members WHERE family_group_id = $1 ORDER BY user_id`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get members: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var memberID string
		if err := rows.Scan(&memberID); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		g.MemberIDs = append(g.MemberIDs, memberID)
	}
	return &g, rows.Err()
}

// SetFamilyTier is the last-write-wins compare-and-set on tier_updated_at
func (s *Store) SetFamilyTier(ctx context.Context, groupID string, tier models.Tier, eventMs int64) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE family_groups SET subscription_tier = $1, tier_updated_at = $2
		 WHERE id = $3 AND (tier_updated_at IS NULL OR tier_updated_at < $2)`,
		string(tier), eventMs, groupID)
	if err != nil {
		return false, fmt.Errorf("failed to set family tier: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to set family tier: %w", err)
	}
	if n > 0 {
		return true, nil
	}

	var exists int
	err = s.db.QueryRowContext(ctx, `SELECT 1 FROM family_groups WHERE id = $1`, groupID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, store.ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("failed to check family group: %w", err)
	}
	return false, nil
}

// ---- lists ----

// CreateList inserts the list and bumps lists_created in one transaction
func (s *Store) CreateList(ctx context.Context, l *models.ShoppingList) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO shopping_lists (id, family_group_id, name, created_by, created_at) VALUES ($1, $2, $3, $4, $5)`,
			l.ID, l.FamilyGroupID, l.Name, l.CreatedBy, l.CreatedAt.UnixMilli()); err != nil {
			return fmt.Errorf("failed to create list: %w", err)
		}
		return incrementUsage(ctx, tx, l.CreatedBy, models.CategoryLists, l.CreatedAt)
	})
}

// GetList loads a list
func (s *Store) GetList(ctx context.Context, id string) (*models.ShoppingList, error) {
	var (
		l         models.ShoppingList
		createdAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, family_group_id, name, created_by, created_at FROM shopping_lists WHERE id = $1`, id).
		Scan(&l.ID, &l.FamilyGroupID, &l.Name, &l.CreatedBy, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get list: %w", err)
	}
	l.CreatedAt = time.UnixMilli(createdAt).UTC()
	return &l, nil
}

// CreateUrgentItem inserts the item and bumps urgent_items_created together
func (s *Store) CreateUrgentItem(ctx context.Context, item *models.ListItem) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO list_items (id, list_id, family_group_id, name, quantity, urgent, created_by, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			item.ID, item.ListID, item.FamilyGroupID, item.Name, item.Quantity, item.Urgent, item.CreatedBy, item.CreatedAt.UnixMilli()); err != nil {
			return fmt.Errorf("failed to create item: %w", err)
		}
		return incrementUsage(ctx, tx, item.CreatedBy, models.CategoryUrgentItems, item.CreatedAt)
	})
}

// SaveReceiptScan inserts the scan and bumps ocr_processed together
func (s *Store) SaveReceiptScan(ctx context.Context, scan *models.ReceiptScan) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO receipt_scans (id, user_id, family_group_id, ocr_text, archive_key, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
			scan.ID, scan.UserID, scan.FamilyGroupID, scan.Text, nullString(scan.ArchiveKey), scan.CreatedAt.UnixMilli()); err != nil {
			return fmt.Errorf("failed to save receipt scan: %w", err)
		}
		return incrementUsage(ctx, tx, scan.UserID, models.CategoryOCR, scan.CreatedAt)
	})
}

// ---- webhooks ----

// AppendWebhookLog inserts an entry and trims the log
func (s *Store) AppendWebhookLog(ctx context.Context, entry models.WebhookLogEntry) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO webhook_log (id, event_id, event_type, app_user_id, product_id, outcome, received_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			uuid.NewString(), entry.EventID, string(entry.Type), entry.AppUserID, nullString(entry.ProductID), entry.Outcome, entry.ReceivedAt.UnixMilli()); err != nil {
			return fmt.Errorf("failed to append webhook log: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM webhook_log WHERE id NOT IN (SELECT id FROM webhook_log ORDER BY received_at DESC LIMIT $1)`,
			store.WebhookLogLimit); err != nil {
			return fmt.Errorf("failed to trim webhook log: %w", err)
		}
		return nil
	})
}

// RecentWebhookLog returns the newest entries first
func (s *Store) RecentWebhookLog(ctx context.Context, limit int) ([]models.WebhookLogEntry, error) {
	if limit <= 0 || limit > store.WebhookLogLimit {
		limit = store.WebhookLogLimit
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT event_id, event_type, app_user_id, product_id, outcome, received_at FROM webhook_log ORDER BY received_at DESC LIMIT $1`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("failed to read webhook log: %w", err)
	}
	defer rows.Close()

	var entries []models.WebhookLogEntry
	for rows.Next() {
		var (
			e          models.WebhookLogEntry
			eventType  string
			productID  sql.NullString
			receivedAt int64
		)
		if err := rows.Scan(&e.EventID, &eventType, &e.AppUserID, &productID, &e.Outcome, &receivedAt); err != nil {
			return nil, fmt.Errorf("failed to scan webhook log entry: %w", err)
		}
		e.Type = models.WebhookEventType(eventType)
		e.ProductID = productID.String
		e.ReceivedAt = time.UnixMilli(receivedAt).UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ---- flags ----

// AcquireFlag inserts the flag row; a duplicate means it is already held
func (s *Store) AcquireFlag(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO one_time_flags (name, acquired_at) VALUES ($1, $2)`, name, time.Now().UnixMilli())
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrFlagConsumed
		}
		return fmt.Errorf("failed to acquire flag %s: %w", name, err)
	}
	return nil
}

// ReleaseFlag deletes the flag row
func (s *Store) ReleaseFlag(ctx context.Context, name string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM one_time_flags WHERE name = $1`, name); err != nil {
		return fmt.Errorf("failed to release flag %s: %w", name, err)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}
