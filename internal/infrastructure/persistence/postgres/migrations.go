package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION SUPPORT
// ══════════════════════════════════════════════════════════════════════════════

// Migration represents a database migration.
type Migration struct {
	Version int
	Name    string
	UpSQL   string
}

// NotifyChannels names the NOTIFY channels the document triggers fire on.
// They must match what the listener LISTENs on.
type NotifyChannels struct {
	// MessageCreated receives the path of every inserted message document.
	MessageCreated string

	// UserChanged receives the path of every updated or deleted user
	// document. Empty drops the trigger.
	UserChanged string
}

// DefaultNotifyChannels returns the default channel names.
func DefaultNotifyChannels() NotifyChannels {
	return NotifyChannels{
		MessageCreated: "message_created",
		UserChanged:    "user_changed",
	}
}

// Migrator handles database migrations.
type Migrator struct {
	conn       *Connection
	migrations []Migration
	channels   NotifyChannels
	tableName  string
}

// NewMigrator creates a new migrator with embedded migrations.
func NewMigrator(conn *Connection, channels NotifyChannels) *Migrator {
	if channels.MessageCreated == "" {
		channels.MessageCreated = DefaultNotifyChannels().MessageCreated
	}
	return &Migrator{
		conn:       conn,
		migrations: GetMigrations(),
		channels:   channels,
		tableName:  "schema_migrations",
	}
}

// EnsureMigrationTable creates the migration tracking table if it doesn't exist.
func (m *Migrator) EnsureMigrationTable(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)
	`, m.tableName)

	if _, err := m.conn.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	return nil
}

// GetAppliedMigrations returns all applied migrations.
func (m *Migrator) GetAppliedMigrations(ctx context.Context) (map[int]time.Time, error) {
	query := fmt.Sprintf("SELECT version, applied_at FROM %s ORDER BY version", m.tableName)

	rows, err := m.conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]time.Time)
	for rows.Next() {
		var version int
		var appliedAt time.Time

		if err := rows.Scan(&version, &appliedAt); err != nil {
			return nil, fmt.Errorf("failed to scan migration row: %w", err)
		}

		applied[version] = appliedAt
	}

	return applied, rows.Err()
}

// Migrate applies all pending migrations.
func (m *Migrator) Migrate(ctx context.Context) error {
	if err := m.EnsureMigrationTable(ctx); err != nil {
		return err
	}

	applied, err := m.GetAppliedMigrations(ctx)
	if err != nil {
		return err
	}

	for _, mig := range m.migrations {
		if _, isApplied := applied[mig.Version]; isApplied {
			continue
		}

		if mig.UpSQL == "" {
			return fmt.Errorf("%w: missing up SQL for migration %d", ErrMigrationFailed, mig.Version)
		}

		err := m.conn.WithTx(ctx, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, mig.UpSQL); err != nil {
				return fmt.Errorf("failed to execute migration %d: %w", mig.Version, err)
			}

			insertQuery := fmt.Sprintf(
				"INSERT INTO %s (version, name) VALUES ($1, $2)",
				m.tableName,
			)
			_, err := tx.Exec(ctx, insertQuery, mig.Version, mig.Name)
			return err
		})
		if err != nil {
			return fmt.Errorf("%w: version %d: %v", ErrMigrationFailed, mig.Version, err)
		}
	}

	return m.SyncNotifyTriggers(ctx)
}

// SyncNotifyTriggers recreates the document triggers for the configured
// channels. It runs after every Migrate, so a changed channel takes effect
// without a new migration.
func (m *Migrator) SyncNotifyTriggers(ctx context.Context) error {
	err := m.conn.WithTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, NotifyTriggersSQL(m.channels))
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: notify triggers: %v", ErrMigrationFailed, err)
	}
	return nil
}

// NotifyTriggersSQL builds the trigger DDL for channels. Channel names are
// passed to pg_notify as string literals.
func NotifyTriggersSQL(channels NotifyChannels) string {
	var b strings.Builder
	b.WriteString(`
DROP TRIGGER IF EXISTS documents_message_created ON documents;
DROP TRIGGER IF EXISTS documents_user_changed ON documents;
`)
	fmt.Fprintf(&b, `
CREATE TRIGGER documents_message_created
    AFTER INSERT ON documents
    FOR EACH ROW
    WHEN (NEW.collection LIKE 'chats/%%/messages')
    EXECUTE FUNCTION notify_document_path(%s);
`, quoteLiteral(channels.MessageCreated))

	if channels.UserChanged != "" {
		fmt.Fprintf(&b, `
CREATE TRIGGER documents_user_changed
    AFTER UPDATE OR DELETE ON documents
    FOR EACH ROW
    EXECUTE FUNCTION notify_document_path(%s, %s);
`, quoteLiteral(channels.UserChanged), quoteLiteral("users"))
	}
	return b.String()
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// ══════════════════════════════════════════════════════════════════════════════
// EMBEDDED MIGRATIONS
// ══════════════════════════════════════════════════════════════════════════════

// GetMigrations returns all embedded migrations.
func GetMigrations() []Migration {
	return []Migration{
		{
			Version: 1,
			Name:    "create_documents",
			UpSQL:   migration001Up,
		},
		{
			Version: 2,
			Name:    "notify_document_path",
			UpSQL:   migration002Up,
		},
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: CREATE DOCUMENTS
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
-- One row per document. path is "collection/id[/collection/id...]",
-- collection is the path without the trailing id.
CREATE TABLE IF NOT EXISTS documents (
    path TEXT PRIMARY KEY,
    collection TEXT NOT NULL,
    id TEXT NOT NULL,
    data JSONB NOT NULL DEFAULT '{}'::jsonb,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_path CHECK (path = collection || '/' || id)
);

CREATE INDEX IF NOT EXISTS idx_documents_collection ON documents(collection);
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: NOTIFY FUNCTION
// ══════════════════════════════════════════════════════════════════════════════

// notify_document_path(channel [, collection]) sends the row's path on
// channel, optionally only for rows of one collection. The payload is only
// the path; NOTIFY payloads are capped at 8000 bytes, so listeners read the
// document back. The triggers themselves come from NotifyTriggersSQL.
const migration002Up = `
CREATE OR REPLACE FUNCTION notify_document_path() RETURNS trigger AS $$
DECLARE
    doc documents%ROWTYPE;
BEGIN
    IF TG_OP = 'DELETE' THEN
        doc := OLD;
    ELSE
        doc := NEW;
    END IF;
    IF TG_NARGS < 2 OR doc.collection = TG_ARGV[1] THEN
        PERFORM pg_notify(TG_ARGV[0], doc.path);
    END IF;
    RETURN NULL;
END;
$$ LANGUAGE plpgsql;
`
