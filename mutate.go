package splitledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/splitledger/id"
	"github.com/xraph/splitledger/session"
)

// mutation computes a patch against s, mutating s into the post-operation
// state. It may run more than once per call to mutate.
type mutation func(s *session.Session, now time.Time) (*session.Patch, error)

// mutate runs fn in a read-compute-write cycle under the session's lock and
// commits the resulting patch with a version compare-and-swap. A lost race
// re-reads and recomputes up to maxAttempts times. An empty patch commits
// nothing and returns the snapshot fn saw.
func (l *Ledger) mutate(ctx context.Context, op string, sessionID id.SessionID, fn mutation) (*session.Session, error) {
	ctx, cancel := l.withTimeout(ctx)
	defer cancel()

	unlock, err := l.locks.lock(ctx, sessionID.String())
	if err != nil {
		return nil, l.storeError(op, sessionID, err)
	}
	defer unlock()

	for attempt := 1; attempt <= l.maxAttempts; attempt++ {
		s, err := l.load(ctx, op, sessionID)
		if err != nil {
			return nil, err
		}
		expected := s.Version

		now := l.clock()
		p, err := fn(s, now)
		if err != nil {
			if errors.Is(err, ErrIntegrity) {
				l.integrityFault(ctx, sessionID, op, err)
			}
			return nil, fmt.Errorf("%s %s: %w", op, sessionID, err)
		}
		if p.Empty() {
			return s, nil
		}

		s.Touch(now)
		p.UpdatedAt = s.UpdatedAt

		if l.verify {
			if err := session.Verify(s); err != nil {
				l.integrityFault(ctx, sessionID, op, err)
				return nil, fmt.Errorf("%s %s: %w", op, sessionID, err)
			}
		}

		err = l.store.ApplyPatch(ctx, sessionID, expected, p)
		if err == nil {
			s.Version = expected + 1
			l.watchers.publish(s)
			return s, nil
		}
		if !errors.Is(err, ErrVersionConflict) {
			return nil, l.storeError(op, sessionID, err)
		}

		l.logger.Debug("session version conflict, retrying",
			"op", op,
			"session_id", sessionID,
			"attempt", attempt,
			"expected_version", expected,
		)
		l.plugins.EmitMutationRetried(ctx, sessionID, op, attempt)
	}

	return nil, fmt.Errorf("%s %s: gave up after %d attempts: %w", op, sessionID, l.maxAttempts, ErrConflict)
}

// load reads a session, classifying store failures.
func (l *Ledger) load(ctx context.Context, op string, sessionID id.SessionID) (*session.Session, error) {
	s, err := l.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, l.storeError(op, sessionID, err)
	}
	return s, nil
}

// storeError wraps a store failure. Not-found and already-exists keep
// their meaning; everything else, deadlines included, becomes
// ErrStoreUnavailable.
func (l *Ledger) storeError(op string, sessionID id.SessionID, err error) error {
	switch {
	case errors.Is(err, ErrSessionNotFound),
		errors.Is(err, ErrItemNotFound),
		errors.Is(err, ErrParticipantNotFound),
		errors.Is(err, ErrAlreadyExists):
		return fmt.Errorf("%s %s: %w", op, sessionID, err)
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("%s %s: %w", op, sessionID, err)
	}

	l.logger.Error("store operation failed",
		"op", op,
		"session_id", sessionID,
		"error", err,
	)
	return fmt.Errorf("%s %s: %w: %w", op, sessionID, ErrStoreUnavailable, err)
}

// integrityFault reports a broken ledger invariant. The session is left
// as stored; Resync repairs it.
func (l *Ledger) integrityFault(ctx context.Context, sessionID id.SessionID, op string, err error) {
	l.logger.Error("session integrity fault",
		"op", op,
		"session_id", sessionID,
		"error", err,
	)
	l.plugins.EmitIntegrityFault(ctx, sessionID, err)
}
