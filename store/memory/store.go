// Package memory provides an in-process store.Store backed by maps. It is
// intended for tests and single-process deployments.
package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/xraph/splitledger"
	"github.com/xraph/splitledger/id"
	"github.com/xraph/splitledger/session"
	"github.com/xraph/splitledger/store"
)

var _ store.Store = (*Store)(nil)

// Store keeps deep copies of sessions so callers can never alias stored
// state.
type Store struct {
	mu sync.RWMutex

	// Session storage
	sessions map[string]*session.Session

	closed bool
}

func New() *Store {
	return &Store{
		sessions: make(map[string]*session.Session),
	}
}

// Session Store implementation
func (s *Store) CreateSession(_ context.Context, sess *session.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return splitledger.ErrStoreClosed
	}
	if _, exists := s.sessions[sess.ID.String()]; exists {
		return splitledger.ErrAlreadyExists
	}
	if sess.Version == 0 {
		sess.Version = 1
	}
	s.sessions[sess.ID.String()] = sess.Clone()
	return nil
}

func (s *Store) GetSession(_ context.Context, sessionID id.SessionID) (*session.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, splitledger.ErrStoreClosed
	}
	if sess, ok := s.sessions[sessionID.String()]; ok {
		return sess.Clone(), nil
	}
	return nil, splitledger.ErrSessionNotFound
}

func (s *Store) ReplaceSession(_ context.Context, sess *session.Session, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.current(sess.ID, expectedVersion); err != nil {
		return err
	}
	next := sess.Clone()
	next.Version = expectedVersion + 1
	s.sessions[sess.ID.String()] = next
	sess.Version = next.Version
	return nil
}

func (s *Store) ApplyPatch(_ context.Context, sessionID id.SessionID, expectedVersion int64, p *session.Patch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.current(sessionID, expectedVersion)
	if err != nil {
		return err
	}

	// Apply to a copy so a rejected patch leaves the stored session intact.
	next := current.Clone()
	if err := p.Apply(next); err != nil {
		return fmt.Errorf("memory: apply patch to %s: %w", sessionID, err)
	}
	next.Version = expectedVersion + 1
	s.sessions[sessionID.String()] = next
	return nil
}

func (s *Store) ListSessions(_ context.Context, opts session.ListOpts) ([]*session.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, splitledger.ErrStoreClosed
	}

	result := make([]*session.Session, 0)
	for _, sess := range s.sessions {
		if opts.Matches(sess) {
			result = append(result, sess)
		}
	}
	slices.SortFunc(result, func(a, b *session.Session) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID.String(), b.ID.String())
	})

	// Apply limit/offset
	start := min(opts.Offset, len(result))
	end := start + opts.Limit
	if opts.Limit == 0 || end > len(result) {
		end = len(result)
	}

	page := make([]*session.Session, 0, end-start)
	for _, sess := range result[start:end] {
		page = append(page, sess.Clone())
	}
	return page, nil
}

// current returns the stored session after checking the expected version.
// Callers must hold the write lock.
func (s *Store) current(sessionID id.SessionID, expectedVersion int64) (*session.Session, error) {
	if s.closed {
		return nil, splitledger.ErrStoreClosed
	}
	sess, ok := s.sessions[sessionID.String()]
	if !ok {
		return nil, splitledger.ErrSessionNotFound
	}
	if sess.Version != expectedVersion {
		return nil, fmt.Errorf("memory: session %s at version %d, expected %d: %w",
			sessionID, sess.Version, expectedVersion, splitledger.ErrVersionConflict)
	}
	return sess, nil
}

// Store management
func (s *Store) Migrate(_ context.Context) error {
	return nil // No migration needed for memory store
}

func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return splitledger.ErrStoreClosed
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return nil
}
