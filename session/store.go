package session

import (
	"context"

	"github.com/xraph/splitledger/id"
)

// Store persists sessions as whole documents with versioned writes.
//
// ReplaceSession and ApplyPatch commit only if the stored version equals
// expectedVersion, returning ErrVersionConflict otherwise, and store the
// session at expectedVersion+1. ApplyPatch commits all fields of the patch
// together or none of them.
type Store interface {
	CreateSession(ctx context.Context, s *Session) error
	GetSession(ctx context.Context, sessionID id.SessionID) (*Session, error)
	ReplaceSession(ctx context.Context, s *Session, expectedVersion int64) error
	ApplyPatch(ctx context.Context, sessionID id.SessionID, expectedVersion int64, p *Patch) error
	ListSessions(ctx context.Context, opts ListOpts) ([]*Session, error)
}

// ListOpts filters ListSessions. CreatedBy and ParticipantID combine with
// OR when both are set, so a user's created and joined sessions come back
// from one call.
type ListOpts struct {
	CreatedBy     ParticipantID
	ParticipantID ParticipantID
	Status        Status
	Limit         int
	Offset        int
}

// Matches reports whether s satisfies the filter, ignoring paging.
func (o ListOpts) Matches(s *Session) bool {
	if o.Status != "" && s.Status != o.Status {
		return false
	}
	switch {
	case o.CreatedBy != "" && o.ParticipantID != "":
		return s.CreatedBy == o.CreatedBy || s.HasParticipant(o.ParticipantID)
	case o.CreatedBy != "":
		return s.CreatedBy == o.CreatedBy
	case o.ParticipantID != "":
		return s.HasParticipant(o.ParticipantID)
	}
	return true
}
