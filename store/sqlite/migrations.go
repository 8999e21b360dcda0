package sqlite

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the splitledger store (SQLite).
var Migrations = migrate.NewGroup("splitledger")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_splitledger_sessions",
			Version: "20240601000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS splitledger_sessions (
    id          TEXT PRIMARY KEY,
    created_by  TEXT NOT NULL,
    status      TEXT NOT NULL DEFAULT 'active',
    currency    TEXT NOT NULL,
    member_ids  TEXT NOT NULL DEFAULT '||',
    version     INTEGER NOT NULL DEFAULT 1,
    document    TEXT NOT NULL,
    ended_at    TEXT,
    created_at  TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at  TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_splitledger_sessions_created_by ON splitledger_sessions (created_by, created_at);
CREATE INDEX IF NOT EXISTS idx_splitledger_sessions_status ON splitledger_sessions (status);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS splitledger_sessions`)
				return err
			},
		},
	)
}
