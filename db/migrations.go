package db

import (
	"database/sql"
	"log"
)

const (
	sqlCreatePostsTable = `CREATE TABLE IF NOT EXISTS posts (
		id TEXT NOT NULL PRIMARY KEY,
		account_id TEXT NOT NULL,
		author TEXT NOT NULL,
		content TEXT,
		visibility TEXT DEFAULT 'public',
		object_uri TEXT,
		activity_uri TEXT,
		in_reply_to_id TEXT REFERENCES posts(id),
		repost_of_id TEXT REFERENCES posts(id),
		sensitive INTEGER DEFAULT 0,
		content_warning TEXT,
		local INTEGER DEFAULT 0,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		edited_at TIMESTAMP
	)`

	sqlCreatePostsIndices = `
		CREATE INDEX IF NOT EXISTS idx_posts_account_id ON posts(account_id);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_posts_object_uri ON posts(object_uri) WHERE object_uri != '';
		CREATE UNIQUE INDEX IF NOT EXISTS idx_posts_activity_uri ON posts(activity_uri) WHERE activity_uri != '';
		CREATE INDEX IF NOT EXISTS idx_posts_created_at ON posts(created_at DESC);
	`

	sqlCreateRemoteAccountsTable = `CREATE TABLE IF NOT EXISTS remote_accounts (
		id TEXT NOT NULL PRIMARY KEY,
		username TEXT NOT NULL,
		domain TEXT NOT NULL,
		actor_uri TEXT UNIQUE NOT NULL,
		display_name TEXT,
		summary TEXT,
		inbox_uri TEXT NOT NULL,
		shared_inbox_uri TEXT,
		followers_uri TEXT,
		subscribers_uri TEXT,
		public_key_pem TEXT NOT NULL,
		avatar_url TEXT,
		banner_url TEXT,
		last_fetched_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(username, domain)
	)`

	sqlCreateRemoteAccountsIndices = `
		CREATE INDEX IF NOT EXISTS idx_remote_accounts_actor_uri ON remote_accounts(actor_uri);
		CREATE INDEX IF NOT EXISTS idx_remote_accounts_domain ON remote_accounts(domain);
	`

	sqlCreateFollowsTable = `CREATE TABLE IF NOT EXISTS follows (
		id TEXT NOT NULL PRIMARY KEY,
		account_id TEXT NOT NULL,
		target_account_id TEXT NOT NULL,
		uri TEXT NOT NULL,
		accepted INTEGER DEFAULT 0,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(account_id, target_account_id)
	)`

	sqlCreateFollowsIndices = `
		CREATE INDEX IF NOT EXISTS idx_follows_account_id ON follows(account_id);
		CREATE INDEX IF NOT EXISTS idx_follows_target_account_id ON follows(target_account_id);
		CREATE INDEX IF NOT EXISTS idx_follows_uri ON follows(uri);
	`

	sqlCreateReactionsTable = `CREATE TABLE IF NOT EXISTS reactions (
		id TEXT NOT NULL PRIMARY KEY,
		account_id TEXT NOT NULL,
		post_id TEXT NOT NULL,
		activity_uri TEXT UNIQUE NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(account_id, post_id)
	)`

	sqlCreateReactionsIndices = `
		CREATE INDEX IF NOT EXISTS idx_reactions_post_id ON reactions(post_id);
		CREATE INDEX IF NOT EXISTS idx_reactions_activity_uri ON reactions(activity_uri);
	`

	sqlCreatePostTagsTable = `CREATE TABLE IF NOT EXISTS post_tags (
		post_id TEXT NOT NULL REFERENCES posts(id),
		tag_name TEXT NOT NULL,
		UNIQUE(post_id, tag_name)
	)`

	sqlCreatePostTagsIndices = `
		CREATE INDEX IF NOT EXISTS idx_post_tags_tag_name ON post_tags(tag_name);
	`

	sqlCreateNotificationsTable = `CREATE TABLE IF NOT EXISTS notifications (
		id TEXT NOT NULL PRIMARY KEY,
		recipient_id TEXT NOT NULL,
		actor_id TEXT NOT NULL,
		post_id TEXT,
		notification_type TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`

	sqlCreateNotificationsIndices = `
		CREATE INDEX IF NOT EXISTS idx_notifications_recipient_id ON notifications(recipient_id);
	`

	sqlCreateJobsTable = `CREATE TABLE IF NOT EXISTS background_jobs (
		id TEXT NOT NULL PRIMARY KEY,
		job_type INTEGER NOT NULL,
		job_data TEXT NOT NULL,
		job_status INTEGER DEFAULT 1,
		scheduled_for TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`

	sqlCreateJobsIndices = `
		CREATE INDEX IF NOT EXISTS idx_background_jobs_scheduled ON background_jobs(job_type, job_status, scheduled_for);
	`
)

// RunMigrations executes all database migrations
func (db *DB) RunMigrations() error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		if err := db.createTableIfNotExists(tx, sqlCreateAccountsTable, "accounts"); err != nil {
			return err
		}
		if err := db.createTableIfNotExists(tx, sqlCreatePostsTable, "posts"); err != nil {
			return err
		}
		if err := db.createTableIfNotExists(tx, sqlCreateRemoteAccountsTable, "remote_accounts"); err != nil {
			return err
		}
		if err := db.createTableIfNotExists(tx, sqlCreateFollowsTable, "follows"); err != nil {
			return err
		}
		if err := db.createTableIfNotExists(tx, sqlCreateReactionsTable, "reactions"); err != nil {
			return err
		}
		if err := db.createTableIfNotExists(tx, sqlCreatePostTagsTable, "post_tags"); err != nil {
			return err
		}
		if err := db.createTableIfNotExists(tx, sqlCreateNotificationsTable, "notifications"); err != nil {
			return err
		}
		if err := db.createTableIfNotExists(tx, sqlCreateJobsTable, "background_jobs"); err != nil {
			return err
		}

		// Indices are best-effort
		for _, indices := range []string{
			sqlCreatePostsIndices,
			sqlCreateRemoteAccountsIndices,
			sqlCreateFollowsIndices,
			sqlCreateReactionsIndices,
			sqlCreatePostTagsIndices,
			sqlCreateNotificationsIndices,
			sqlCreateJobsIndices,
		} {
			if _, err := tx.Exec(indices); err != nil {
				log.Printf("Warning: Failed to create indices: %v", err)
			}
		}

		return nil
	})
}

func (db *DB) createTableIfNotExists(tx *sql.Tx, createSQL string, tableName string) error {
	_, err := tx.Exec(createSQL)
	if err != nil {
		log.Printf("Error creating table %s: %v", tableName, err)
		return err
	}
	return nil
}
