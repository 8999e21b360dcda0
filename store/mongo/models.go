package mongo

import (
	"fmt"
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/splitledger/id"
	"github.com/xraph/splitledger/session"
	"github.com/xraph/splitledger/types"
)

// ==================== Session models ====================

type sessionModel struct {
	grove.BaseModel `grove:"table:splitledger_sessions"`

	ID           string             `grove:"id,pk"        bson:"_id"`
	CreatedBy    string             `grove:"created_by"   bson:"created_by"`
	Title        string             `grove:"title"        bson:"title"`
	Currency     string             `grove:"currency"     bson:"currency"`
	Status       string             `grove:"status"       bson:"status"`
	Items        []itemModel        `grove:"items"        bson:"items"`
	Participants []participantModel `grove:"participants" bson:"participants"`
	EndedAt      *time.Time         `grove:"ended_at"     bson:"ended_at,omitempty"`
	Version      int64              `grove:"version"      bson:"version"`
	CreatedAt    time.Time          `grove:"created_at"   bson:"created_at"`
	UpdatedAt    time.Time          `grove:"updated_at"   bson:"updated_at"`
}

type moneyModel struct {
	Amount   int64  `bson:"amount"`
	Currency string `bson:"currency"`
}

type itemModel struct {
	ID         string         `bson:"id"`
	Name       string         `bson:"name"`
	Price      moneyModel     `bson:"price"`
	Quantity   int            `bson:"quantity"`
	ClaimedBy  []string       `bson:"claimed_by"`
	PaidAmount moneyModel     `bson:"paid_amount"`
	Payments   []paymentModel `bson:"payments,omitempty"`
}

type paymentModel struct {
	ID         string     `bson:"id"`
	Amount     moneyModel `bson:"amount"`
	Requested  moneyModel `bson:"requested"`
	Reference  string     `bson:"reference,omitempty"`
	RecordedAt time.Time  `bson:"recorded_at"`
}

type participantModel struct {
	ID             string     `bson:"id"`
	Name           string     `bson:"name"`
	Email          string     `bson:"email,omitempty"`
	ClaimedItemIDs []string   `bson:"claimed_item_ids"`
	OwedAmount     moneyModel `bson:"owed_amount"`
	HasPaid        bool       `bson:"has_paid"`
	PaidAt         *time.Time `bson:"paid_at,omitempty"`
	JoinedAt       time.Time  `bson:"joined_at"`
}

func toSessionModel(s *session.Session) *sessionModel {
	items := make([]itemModel, len(s.Items))
	for i := range s.Items {
		items[i] = toItemModel(&s.Items[i])
	}
	parts := make([]participantModel, 0, len(s.Participants))
	for _, pid := range s.MemberIDs() {
		parts = append(parts, toParticipantModel(s.Participants[pid]))
	}
	return &sessionModel{
		ID:           s.ID.String(),
		CreatedBy:    string(s.CreatedBy),
		Title:        s.Title,
		Currency:     s.Currency,
		Status:       string(s.Status),
		Items:        items,
		Participants: parts,
		EndedAt:      s.EndedAt,
		Version:      s.Version,
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
	}
}

func fromSessionModel(m *sessionModel) (*session.Session, error) {
	sessionID, err := id.ParseSessionID(m.ID)
	if err != nil {
		return nil, err
	}

	items := make([]session.Item, len(m.Items))
	for i := range m.Items {
		it, err := fromItemModel(&m.Items[i])
		if err != nil {
			return nil, fmt.Errorf("session %s: %w", m.ID, err)
		}
		items[i] = it
	}

	parts := make(map[session.ParticipantID]*session.Participant, len(m.Participants))
	for i := range m.Participants {
		p, err := fromParticipantModel(&m.Participants[i])
		if err != nil {
			return nil, fmt.Errorf("session %s: %w", m.ID, err)
		}
		parts[p.ID] = p
	}

	return &session.Session{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:           sessionID,
		CreatedBy:    session.ParticipantID(m.CreatedBy),
		Title:        m.Title,
		Currency:     m.Currency,
		Items:        items,
		Participants: parts,
		Status:       session.Status(m.Status),
		EndedAt:      m.EndedAt,
		Version:      m.Version,
	}, nil
}

func toMoneyModel(m types.Money) moneyModel {
	return moneyModel{Amount: m.Amount, Currency: m.Currency}
}

func (m moneyModel) money() types.Money {
	return types.New(m.Amount, m.Currency)
}

func toItemModel(it *session.Item) itemModel {
	m := itemModel{
		ID:         it.ID.String(),
		Name:       it.Name,
		Price:      toMoneyModel(it.Price),
		Quantity:   it.Quantity,
		ClaimedBy:  pidStrings(it.ClaimedBy),
		PaidAmount: toMoneyModel(it.PaidAmount),
	}
	for _, pay := range it.Payments {
		m.Payments = append(m.Payments, toPaymentModel(pay))
	}
	return m
}

func fromItemModel(m *itemModel) (session.Item, error) {
	itemID, err := id.ParseItemID(m.ID)
	if err != nil {
		return session.Item{}, err
	}
	claimedBy := make([]session.ParticipantID, len(m.ClaimedBy))
	for i, c := range m.ClaimedBy {
		claimedBy[i] = session.ParticipantID(c)
	}
	it := session.Item{
		ID:         itemID,
		Name:       m.Name,
		Price:      m.Price.money(),
		Quantity:   m.Quantity,
		ClaimedBy:  claimedBy,
		PaidAmount: m.PaidAmount.money(),
	}
	for _, pm := range m.Payments {
		payID, err := id.ParsePaymentID(pm.ID)
		if err != nil {
			return session.Item{}, err
		}
		it.Payments = append(it.Payments, session.ItemPayment{
			ID:         payID,
			Amount:     pm.Amount.money(),
			Requested:  pm.Requested.money(),
			Reference:  pm.Reference,
			RecordedAt: pm.RecordedAt,
		})
	}
	return it, nil
}

func toPaymentModel(p session.ItemPayment) paymentModel {
	return paymentModel{
		ID:         p.ID.String(),
		Amount:     toMoneyModel(p.Amount),
		Requested:  toMoneyModel(p.Requested),
		Reference:  p.Reference,
		RecordedAt: p.RecordedAt,
	}
}

func toParticipantModel(p *session.Participant) participantModel {
	return participantModel{
		ID:             string(p.ID),
		Name:           p.Name,
		Email:          p.Email,
		ClaimedItemIDs: itemStrings(p.ClaimedItemIDs),
		OwedAmount:     toMoneyModel(p.OwedAmount),
		HasPaid:        p.HasPaid,
		PaidAt:         p.PaidAt,
		JoinedAt:       p.JoinedAt,
	}
}

func fromParticipantModel(m *participantModel) (*session.Participant, error) {
	claimed := make([]id.ItemID, len(m.ClaimedItemIDs))
	for i, raw := range m.ClaimedItemIDs {
		itemID, err := id.ParseItemID(raw)
		if err != nil {
			return nil, err
		}
		claimed[i] = itemID
	}
	return &session.Participant{
		ID:             session.ParticipantID(m.ID),
		Name:           m.Name,
		Email:          m.Email,
		ClaimedItemIDs: claimed,
		OwedAmount:     m.OwedAmount.money(),
		HasPaid:        m.HasPaid,
		PaidAt:         m.PaidAt,
		JoinedAt:       m.JoinedAt,
	}, nil
}

func pidStrings(pids []session.ParticipantID) []string {
	out := make([]string, len(pids))
	for i, p := range pids {
		out[i] = string(p)
	}
	return out
}

func itemStrings(ids []id.ItemID) []string {
	out := make([]string, len(ids))
	for i, x := range ids {
		out[i] = x.String()
	}
	return out
}
