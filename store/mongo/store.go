package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/splitledger"
	"github.com/xraph/splitledger/id"
	"github.com/xraph/splitledger/session"
	ledgerstore "github.com/xraph/splitledger/store"
)

// Collection name constants.
const (
	colSessions = "splitledger_sessions"
)

// compile-time interface check
var _ ledgerstore.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove ORM.
//
// Sessions are stored as native documents. Patches that only touch existing
// items and participants are committed as one conditional field-path
// update; membership changes swap the whole document.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for all splitledger collections.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := migrationIndexes()

	for col, models := range indexes {
		if len(models) == 0 {
			continue
		}
		_, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("splitledger/mongo: migrate %s indexes: %w", col, err)
		}
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
	m := toSessionModel(sess)
	_, err := s.mdb.NewInsert(m).Exec(ctx)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("splitledger/mongo: session %s: %w", sess.ID, splitledger.ErrAlreadyExists)
		}
		return fmt.Errorf("splitledger/mongo: create session: %w", err)
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

// ApplyPatch commits p if the stored session is still at expectedVersion.
func (s *Store) ApplyPatch(ctx context.Context, sessionID id.SessionID, expectedVersion int64, p *session.Patch) error {
	if !canUpdateFields(p) {
		return s.applyBySwap(ctx, sessionID, expectedVersion, p)
	}

	fu := buildFieldUpdate(sessionID, expectedVersion, p)
	opts := options.UpdateOne()
	if len(fu.arrayFilters) > 0 {
		opts = opts.SetArrayFilters(fu.arrayFilters)
	}
	res, err := s.mdb.Collection(colSessions).UpdateOne(ctx, fu.filter, fu.update, opts)
	if err != nil {
		return fmt.Errorf("splitledger/mongo: apply patch to %s: %w", sessionID, err)
	}
	if res.MatchedCount == 0 {
		return s.explainMiss(ctx, sessionID, expectedVersion, p)
	}
	return nil
}

func (s *Store) ListSessions(ctx context.Context, opts session.ListOpts) ([]*session.Session, error) {
	var models []sessionModel

	filter := bson.M{}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}
	switch {
	case opts.CreatedBy != "" && opts.ParticipantID != "":
		filter["$or"] = bson.A{
			bson.M{"created_by": string(opts.CreatedBy)},
			bson.M{"participants.id": string(opts.ParticipantID)},
		}
	case opts.CreatedBy != "":
		filter["created_by"] = string(opts.CreatedBy)
	case opts.ParticipantID != "":
		filter["participants.id"] = string(opts.ParticipantID)
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("splitledger/mongo: list sessions: %w", err)
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
	var m sessionModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": sessionID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, splitledger.ErrSessionNotFound
		}
		return nil, fmt.Errorf("splitledger/mongo: get session %s: %w", sessionID, err)
	}
	return &m, nil
}

func (s *Store) applyBySwap(ctx context.Context, sessionID id.SessionID, expectedVersion int64, p *session.Patch) error {
	sess, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.Version != expectedVersion {
		return versionConflict(sessionID, sess.Version, expectedVersion)
	}
	if err := p.Apply(sess); err != nil {
		return fmt.Errorf("splitledger/mongo: apply patch to %s: %w", sessionID, err)
	}
	return s.swap(ctx, sess, expectedVersion)
}

// swap replaces the document with sess at expectedVersion+1 when it is
// still at expectedVersion.
func (s *Store) swap(ctx context.Context, sess *session.Session, expectedVersion int64) error {
	next := *sess
	next.Version = expectedVersion + 1
	m := toSessionModel(&next)

	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID, "version": expectedVersion}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("splitledger/mongo: update session %s: %w", sess.ID, err)
	}
	if res.MatchedCount() == 0 {
		current, err := s.getModel(ctx, sess.ID)
		if err != nil {
			return err
		}
		return versionConflict(sess.ID, current.Version, expectedVersion)
	}
	return nil
}

// explainMiss works out why a field update matched nothing: the session
// is gone, its version moved, or the patch names an item or participant
// the document does not have.
func (s *Store) explainMiss(ctx context.Context, sessionID id.SessionID, expectedVersion int64, p *session.Patch) error {
	sess, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.Version != expectedVersion {
		return versionConflict(sessionID, sess.Version, expectedVersion)
	}
	if err := p.Apply(sess); err != nil {
		return fmt.Errorf("splitledger/mongo: apply patch to %s: %w", sessionID, err)
	}
	// Moved and moved back between the update and the read.
	return versionConflict(sessionID, sess.Version, expectedVersion)
}

func versionConflict(sessionID id.SessionID, actual, expected int64) error {
	return fmt.Errorf("splitledger/mongo: session %s at version %d, expected %d: %w",
		sessionID, actual, expected, splitledger.ErrVersionConflict)
}

func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// ==================== Indexes ====================

func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colSessions: {
			{Keys: bson.D{{Key: "created_by", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "participants.id", Value: 1}}},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: -1}}},
		},
	}
}
