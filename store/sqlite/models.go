package sqlite

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/splitledger/session"
)

// sessionModel stores the whole session as a JSON document next to the
// columns needed for lookups and the version check.
type sessionModel struct {
	grove.BaseModel `grove:"table:splitledger_sessions"`

	ID        string          `grove:"id,pk"`
	CreatedBy string          `grove:"created_by"`
	Status    string          `grove:"status"`
	Currency  string          `grove:"currency"`
	MemberIDs string          `grove:"member_ids"`
	Version   int64           `grove:"version"`
	Document  json.RawMessage `grove:"document"`
	EndedAt   *time.Time      `grove:"ended_at"`
	CreatedAt time.Time       `grove:"created_at"`
	UpdatedAt time.Time       `grove:"updated_at"`
}

func toSessionModel(s *session.Session) (*sessionModel, error) {
	doc, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode session %s: %w", s.ID, err)
	}
	return &sessionModel{
		ID:        s.ID.String(),
		CreatedBy: string(s.CreatedBy),
		Status:    string(s.Status),
		Currency:  s.Currency,
		MemberIDs: memberList(s),
		Version:   s.Version,
		Document:  doc,
		EndedAt:   s.EndedAt,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}, nil
}

func fromSessionModel(m *sessionModel) (*session.Session, error) {
	s := new(session.Session)
	if err := json.Unmarshal(m.Document, s); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", m.ID, err)
	}
	// The column is authoritative; the document may lag a version bump.
	s.Version = m.Version
	return s, nil
}

var (
	pipeEscaper = strings.NewReplacer(`\`, `\\`, `|`, `\p`)
	likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
)

// memberList encodes participant ids as "|a|b|" so membership is a LIKE
// match on "%|id|%".
func memberList(s *session.Session) string {
	var b strings.Builder
	b.WriteByte('|')
	for _, pid := range s.MemberIDs() {
		b.WriteString(pipeEscaper.Replace(string(pid)))
		b.WriteByte('|')
	}
	return b.String()
}

// memberPattern is the LIKE pattern matching sessions that include pid.
func memberPattern(pid session.ParticipantID) string {
	return "%|" + likeEscaper.Replace(pipeEscaper.Replace(string(pid))) + "|%"
}
