package database

import (
	"context"
	"fmt"
)

// schema is written in the subset of SQL shared by Postgres and SQLite.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		family_group_id TEXT,
		created_at BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS custom_claims (
		user_id TEXT NOT NULL,
		claim_key TEXT NOT NULL,
		claim_value TEXT NOT NULL,
		PRIMARY KEY (user_id, claim_key)
	)`,
	`CREATE TABLE IF NOT EXISTS claims_metadata (
		user_id TEXT PRIMARY KEY,
		claims_updated_at BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS usage_counters (
		user_id TEXT PRIMARY KEY,
		lists_created INTEGER NOT NULL DEFAULT 0,
		ocr_processed INTEGER NOT NULL DEFAULT 0,
		urgent_items_created INTEGER NOT NULL DEFAULT 0,
		last_reset_date BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS family_groups (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		owner_id TEXT NOT NULL,
		subscription_tier TEXT NOT NULL DEFAULT 'free',
		tier_updated_at BIGINT,
		created_at BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS family_members (
		family_group_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		PRIMARY KEY (family_group_id, user_id)
	)`,
	`CREATE TABLE IF NOT EXISTS shopping_lists (
		id TEXT PRIMARY KEY,
		family_group_id TEXT NOT NULL,
		name TEXT NOT NULL,
		created_by TEXT NOT NULL,
		created_at BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_shopping_lists_family ON shopping_lists (family_group_id)`,
	`CREATE TABLE IF NOT EXISTS list_items (
		id TEXT PRIMARY KEY,
		list_id TEXT NOT NULL,
		family_group_id TEXT NOT NULL,
		name TEXT NOT NULL,
		quantity INTEGER NOT NULL DEFAULT 1,
		urgent BOOLEAN NOT NULL DEFAULT FALSE,
		created_by TEXT NOT NULL,
		created_at BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_list_items_list ON list_items (list_id)`,
	`CREATE TABLE IF NOT EXISTS receipt_scans (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		family_group_id TEXT NOT NULL,
		ocr_text TEXT NOT NULL,
		archive_key TEXT,
		created_at BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS webhook_log (
		id TEXT PRIMARY KEY,
		event_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		app_user_id TEXT NOT NULL,
		product_id TEXT,
		outcome TEXT NOT NULL,
		received_at BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_webhook_log_received ON webhook_log (received_at)`,
	`CREATE TABLE IF NOT EXISTS one_time_flags (
		name TEXT PRIMARY KEY,
		acquired_at BIGINT NOT NULL
	)`,
}

// Migrate creates any missing tables and indexes
func (c *Client) Migrate(ctx context.Context) error {
	for i, stmt := range schema {
		if _, err := c.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed applying migration %d: %w", i, err)
		}
	}
	return nil
}
