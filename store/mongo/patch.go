package mongo

import (
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/xraph/splitledger/id"
	"github.com/xraph/splitledger/session"
)

// fieldUpdate is a patch translated to a single conditional UpdateOne.
type fieldUpdate struct {
	filter       bson.M
	update       bson.M
	arrayFilters []any
}

// canUpdateFields reports whether p can be committed with field paths.
// Membership changes rewrite the participants array and go through a
// whole-document swap instead.
func canUpdateFields(p *session.Patch) bool {
	return len(p.Joined) == 0 && len(p.Left) == 0
}

// buildFieldUpdate translates p into an update that only matches the
// document at expectedVersion whose items and participants are where the
// patch expects them, and bumps the version.
func buildFieldUpdate(sessionID id.SessionID, expectedVersion int64, p *session.Patch) fieldUpdate {
	filter := bson.M{"_id": sessionID.String(), "version": expectedVersion}
	set := bson.M{"updated_at": p.UpdatedAt}
	push := bson.M{}

	for _, ip := range p.Items {
		prefix := fmt.Sprintf("items.%d", ip.Index)
		filter[prefix+".id"] = ip.ID.String()
		if ip.ClaimedBy != nil {
			set[prefix+".claimed_by"] = pidStrings(ip.ClaimedBy)
		}
		if ip.PaidAmount != nil {
			set[prefix+".paid_amount"] = toMoneyModel(*ip.PaidAmount)
		}
		if ip.Payment != nil {
			push[prefix+".payments"] = toPaymentModel(*ip.Payment)
		}
	}

	var (
		arrayFilters []any
		pids         []string
	)
	for i, pp := range p.Participants {
		ident := fmt.Sprintf("p%d", i)
		prefix := "participants.$[" + ident + "]"
		arrayFilters = append(arrayFilters, bson.M{ident + ".id": string(pp.ID)})
		pids = append(pids, string(pp.ID))

		if pp.OwedAmount != nil {
			set[prefix+".owed_amount"] = toMoneyModel(*pp.OwedAmount)
		}
		if pp.ClaimedItemIDs != nil {
			set[prefix+".claimed_item_ids"] = itemStrings(pp.ClaimedItemIDs)
		}
		if pp.HasPaid != nil {
			set[prefix+".has_paid"] = *pp.HasPaid
		}
		if pp.PaidAt != nil {
			set[prefix+".paid_at"] = *pp.PaidAt
		}
	}
	if len(pids) > 0 {
		filter["participants.id"] = bson.M{"$all": pids}
	}

	if p.Status != nil {
		set["status"] = string(*p.Status)
	}
	if p.EndedAt != nil {
		set["ended_at"] = *p.EndedAt
	}

	update := bson.M{
		"$set": set,
		"$inc": bson.M{"version": 1},
	}
	if len(push) > 0 {
		update["$push"] = push
	}

	return fieldUpdate{filter: filter, update: update, arrayFilters: arrayFilters}
}
