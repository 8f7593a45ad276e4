// Package dbtest opens in-memory sqlite databases carrying the workflow schema.
package dbtest

import (
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var schema = []string{
	`CREATE TABLE orders (
		id TEXT PRIMARY KEY,
		buyer_id TEXT NOT NULL,
		currency TEXT NOT NULL DEFAULT 'USD',
		total_cents INTEGER NOT NULL,
		delivery_status TEXT NOT NULL,
		payment_status TEXT NOT NULL,
		refunded_cents INTEGER NOT NULL DEFAULT 0,
		payment_reference TEXT UNIQUE,
		shipping_address BLOB NOT NULL,
		delivery_proof_ref TEXT,
		delivered_at DATETIME,
		ledger_recorded BOOLEAN NOT NULL DEFAULT 0,
		ledger_error TEXT,
		ledger_reference TEXT,
		ledger_confirmed_at DATETIME,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE order_line_items (
		id TEXT PRIMARY KEY,
		order_id TEXT NOT NULL,
		product_id TEXT NOT NULL,
		quantity INTEGER NOT NULL CHECK (quantity > 0),
		unit_price_cents INTEGER NOT NULL,
		subtotal_cents INTEGER NOT NULL,
		product_snapshot BLOB NOT NULL,
		created_at DATETIME
	)`,
	`CREATE TABLE order_status_history (
		id TEXT PRIMARY KEY,
		order_id TEXT NOT NULL,
		axis TEXT NOT NULL,
		from_status TEXT NOT NULL,
		to_status TEXT NOT NULL,
		actor_id TEXT,
		actor_role TEXT NOT NULL,
		reason TEXT,
		created_at DATETIME
	)`,
	`CREATE TABLE disputes (
		id TEXT PRIMARY KEY,
		order_id TEXT NOT NULL,
		raised_by TEXT NOT NULL,
		raised_by_role TEXT NOT NULL,
		status TEXT NOT NULL,
		reason TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		resolution TEXT,
		refund_amount_cents INTEGER,
		resolved_by TEXT,
		resolved_at DATETIME,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE UNIQUE INDEX ux_disputes_active_order ON disputes(order_id) WHERE status IN ('OPEN','UNDER_REVIEW')`,
	`CREATE TABLE dispute_evidence (
		id TEXT PRIMARY KEY,
		dispute_id TEXT NOT NULL,
		uploaded_by TEXT NOT NULL,
		uploader_role TEXT NOT NULL,
		file_ref TEXT NOT NULL,
		evidence_type TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		created_at DATETIME
	)`,
	`CREATE TABLE dispute_messages (
		id TEXT PRIMARY KEY,
		dispute_id TEXT NOT NULL,
		sender_id TEXT NOT NULL,
		sender_role TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at DATETIME
	)`,
	`CREATE TABLE ledger_records (
		id TEXT PRIMARY KEY,
		order_id TEXT NOT NULL UNIQUE,
		fingerprint TEXT NOT NULL,
		external_reference TEXT NOT NULL,
		block_number INTEGER NOT NULL,
		attempt INTEGER NOT NULL,
		confirmed_at DATETIME NOT NULL,
		created_at DATETIME
	)`,
	`CREATE TABLE ledger_anchor_jobs (
		id TEXT PRIMARY KEY,
		order_id TEXT NOT NULL UNIQUE,
		status TEXT NOT NULL,
		attempt INTEGER NOT NULL DEFAULT 0,
		next_attempt_at DATETIME NOT NULL,
		last_error TEXT,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE gateway_events (
		event_id TEXT PRIMARY KEY,
		event_type TEXT NOT NULL,
		payment_reference TEXT NOT NULL,
		order_id TEXT,
		target_status TEXT NOT NULL,
		outcome TEXT NOT NULL,
		detail TEXT,
		received_at DATETIME NOT NULL
	)`,
	`CREATE TABLE payment_reconciliation_queue (
		id TEXT PRIMARY KEY,
		event_id TEXT NOT NULL UNIQUE,
		payment_reference TEXT NOT NULL,
		order_id TEXT,
		payload BLOB NOT NULL,
		error TEXT NOT NULL,
		status TEXT NOT NULL,
		attempts INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME,
		updated_at DATETIME,
		resolved_at DATETIME
	)`,
	`CREATE TABLE products (
		id TEXT PRIMARY KEY,
		owner_producer_id TEXT NOT NULL,
		name TEXT NOT NULL,
		price_cents INTEGER NOT NULL,
		currency TEXT NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT 1,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE product_producer_shares (
		product_id TEXT NOT NULL,
		producer_id TEXT NOT NULL,
		share_percentage TEXT NOT NULL,
		PRIMARY KEY (product_id, producer_id)
	)`,
	`CREATE TABLE outbox_events (
		id TEXT PRIMARY KEY,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload BLOB NOT NULL,
		created_at DATETIME,
		published_at DATETIME,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		last_error TEXT
	)`,
	`CREATE TABLE outbox_dlq (
		id TEXT PRIMARY KEY,
		event_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload_json BLOB NOT NULL,
		error_reason TEXT NOT NULL,
		error_message TEXT,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		failed_at DATETIME,
		created_at DATETIME
	)`,
}

// Open returns a fresh in-memory database with every workflow table created.
// The pool is pinned to one connection so every query sees the same memory database.
func Open(t testing.TB) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Discard,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		if err := conn.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return conn
}
