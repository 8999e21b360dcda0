package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"
	"github.com/xraph/grove/migrate"

	"github.com/xraph/splitledger"
	"github.com/xraph/splitledger/id"
	"github.com/xraph/splitledger/session"
	ledgerstore "github.com/xraph/splitledger/store"
)

// compile-time interface check
var _ ledgerstore.Store = (*Store)(nil)

// Store implements store.Store using PostgreSQL via Grove ORM.
type Store struct {
	db *grove.DB
	pg *pgdriver.PgDB
}

// New creates a new PostgreSQL store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db: db,
		pg: pgdriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pg)
	if err != nil {
		return fmt.Errorf("splitledger/postgres: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("splitledger/postgres: migration failed: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Session Store ====================

func (s *Store) CreateSession(ctx context.Context, sess *session.Session) error {
	m, err := toSessionModel(sess)
	if err != nil {
		return fmt.Errorf("splitledger/postgres: %w", err)
	}
	res, err := s.pg.NewInsert(m).
		OnConflict("(id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("splitledger/postgres: create session: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("splitledger/postgres: session %s: %w", sess.ID, splitledger.ErrAlreadyExists)
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, sessionID id.SessionID) (*session.Session, error) {
	m, err := s.getModel(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return fromSessionModel(m)
}

func (s *Store) ReplaceSession(ctx context.Context, sess *session.Session, expectedVersion int64) error {
	if err := s.swap(ctx, sess, expectedVersion); err != nil {
		return err
	}
	sess.Version = expectedVersion + 1
	return nil
}

// ApplyPatch replays p on the stored document and writes it back if the
// version is still expectedVersion.
func (s *Store) ApplyPatch(ctx context.Context, sessionID id.SessionID, expectedVersion int64, p *session.Patch) error {
	m, err := s.getModel(ctx, sessionID)
	if err != nil {
		return err
	}
	if m.Version != expectedVersion {
		return versionConflict(sessionID, m.Version, expectedVersion)
	}
	sess, err := fromSessionModel(m)
	if err != nil {
		return err
	}
	if err := p.Apply(sess); err != nil {
		return fmt.Errorf("splitledger/postgres: apply patch to %s: %w", sessionID, err)
	}
	return s.swap(ctx, sess, expectedVersion)
}

func (s *Store) ListSessions(ctx context.Context, opts session.ListOpts) ([]*session.Session, error) {
	var models []sessionModel
	q := s.pg.NewSelect(&models)

	argIdx := 1
	if opts.Status != "" {
		q = q.Where(fmt.Sprintf("status = $%d", argIdx), string(opts.Status))
		argIdx++
	}
	switch {
	case opts.CreatedBy != "" && opts.ParticipantID != "":
		q = q.Where(fmt.Sprintf(`(created_by = $%d OR member_ids LIKE $%d ESCAPE '\')`, argIdx, argIdx+1),
			string(opts.CreatedBy), memberPattern(opts.ParticipantID))
	case opts.CreatedBy != "":
		q = q.Where(fmt.Sprintf("created_by = $%d", argIdx), string(opts.CreatedBy))
	case opts.ParticipantID != "":
		q = q.Where(fmt.Sprintf(`member_ids LIKE $%d ESCAPE '\'`, argIdx), memberPattern(opts.ParticipantID))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at DESC, id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("splitledger/postgres: list sessions: %w", err)
	}

	result := make([]*session.Session, len(models))
	for i := range models {
		sess, err := fromSessionModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = sess
	}
	return result, nil
}

// ==================== Helpers ====================

func (s *Store) getModel(ctx context.Context, sessionID id.SessionID) (*sessionModel, error) {
	m := new(sessionModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", sessionID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, splitledger.ErrSessionNotFound
		}
		return nil, fmt.Errorf("splitledger/postgres: get session %s: %w", sessionID, err)
	}
	return m, nil
}

// swap writes sess at expectedVersion+1 when the row is still at
// expectedVersion.
func (s *Store) swap(ctx context.Context, sess *session.Session, expectedVersion int64) error {
	next := *sess
	next.Version = expectedVersion + 1
	m, err := toSessionModel(&next)
	if err != nil {
		return fmt.Errorf("splitledger/postgres: %w", err)
	}

	res, err := s.pg.NewUpdate((*sessionModel)(nil)).
		Set("status = $1", m.Status).
		Set("member_ids = $2", m.MemberIDs).
		Set("version = $3", m.Version).
		Set("document = $4", m.Document).
		Set("ended_at = $5", m.EndedAt).
		Set("updated_at = $6", m.UpdatedAt).
		Where("id = $7", m.ID).
		Where("version = $8", expectedVersion).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("splitledger/postgres: update session %s: %w", sess.ID, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		current, err := s.getModel(ctx, sess.ID)
		if err != nil {
			return err
		}
		return versionConflict(sess.ID, current.Version, expectedVersion)
	}
	return nil
}

func versionConflict(sessionID id.SessionID, actual, expected int64) error {
	return fmt.Errorf("splitledger/postgres: session %s at version %d, expected %d: %w",
		sessionID, actual, expected, splitledger.ErrVersionConflict)
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
