package postgres

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the splitledger store (PostgreSQL).
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
    version     BIGINT NOT NULL DEFAULT 1,
    document    JSONB NOT NULL,
    ended_at    TIMESTAMPTZ,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_splitledger_sessions_created_by ON splitledger_sessions (created_by, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_splitledger_sessions_status ON splitledger_sessions (status);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS splitledger_sessions`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "add_splitledger_member_index",
			Version: "20240601000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE EXTENSION IF NOT EXISTS pg_trgm;
CREATE INDEX IF NOT EXISTS idx_splitledger_sessions_members ON splitledger_sessions USING gin (member_ids gin_trgm_ops);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP INDEX IF EXISTS idx_splitledger_sessions_members`)
				return err
			},
		},
	)
}
