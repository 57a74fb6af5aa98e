package sqlstore

import "strings"

// serialType is replaced by the dialect's auto-increment key type.
const serialType = "$SERIAL"

var schema = []string{
	`CREATE TABLE IF NOT EXISTS user_keys (
		id TEXT PRIMARY KEY,
		user_id BIGINT NOT NULL,
		protected_key TEXT NOT NULL,
		public_key TEXT NOT NULL,
		encrypted_private_key TEXT NOT NULL,
		enabled INTEGER NOT NULL,
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS user_keys_enabled_user ON user_keys (user_id) WHERE enabled = 1`,

	`CREATE TABLE IF NOT EXISTS page_grants_symmetric (
		id TEXT PRIMARY KEY,
		page_id BIGINT NOT NULL,
		created_by BIGINT NOT NULL,
		revision_id BIGINT NOT NULL,
		protected_key TEXT NOT NULL,
		encrypted_content TEXT NOT NULL,
		encrypted_password TEXT NOT NULL,
		expiration_date BIGINT,
		viewed BIGINT,
		viewed_metadata TEXT,
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS page_grants_symmetric_page ON page_grants_symmetric (page_id)`,

	`CREATE TABLE IF NOT EXISTS page_grants_asymmetric (
		id TEXT PRIMARY KEY,
		page_id BIGINT NOT NULL,
		created_by BIGINT NOT NULL,
		recipient_id BIGINT NOT NULL,
		nonce TEXT NOT NULL,
		encrypted_content TEXT NOT NULL,
		expiration_date BIGINT,
		viewed BIGINT,
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS page_grants_asymmetric_page ON page_grants_asymmetric (page_id, recipient_id)`,

	`CREATE TABLE IF NOT EXISTS revisions (
		id $SERIAL PRIMARY KEY,
		page_id BIGINT NOT NULL,
		namespace INTEGER NOT NULL,
		author_id BIGINT NOT NULL,
		text TEXT NOT NULL,
		created_at BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS revisions_page ON revisions (page_id, id)`,
}

func schemaFor(dialect string) []string {
	serial := "INTEGER"
	if dialect == Postgres {
		serial = "BIGSERIAL"
	}
	stmts := make([]string, len(schema))
	for i, stmt := range schema {
		stmts[i] = strings.Replace(stmt, serialType, serial, -1)
	}
	return stmts
}
