package tablesession

import "time"

// Plan describes the effect of one assignment mutation on a single item.
// Updated lists siblings whose amount changed, in creation order.
type Plan struct {
	Created *Assignment
	Removed []Assignment
	Updated []Assignment
	// Noop is set when the request matched existing state exactly.
	Noop bool
}

// Change converts the plan into the store representation.
func (p Plan) Change() AssignmentChange {
	var c AssignmentChange
	for _, r := range p.Removed {
		c.Deleted = append(c.Deleted, r.ID)
	}
	if p.Created != nil {
		c.Saved = append(c.Saved, *p.Created)
	}
	c.Saved = append(c.Saved, p.Updated...)
	return c
}

type AssignRequest struct {
	ID              string
	CreditorID      string
	DebtorID        *string
	RequestedAmount int64
	CreatedAt       time.Time
}

// Shares splits price into n parts. The remainder goes one unit at a time
// to the first parts, so the result always sums to price.
func Shares(price int64, n int) []int64 {
	if n <= 0 {
		return nil
	}
	base := price / int64(n)
	rem := price % int64(n)
	out := make([]int64, n)
	for i := range out {
		out[i] = base
		if int64(i) < rem {
			out[i]++
		}
	}
	return out
}

// Resplit returns a copy of assignments, ordered by creation, with amounts
// evenly re-split over the item price.
func Resplit(price int64, assignments []Assignment) []Assignment {
	shares := Shares(price, len(assignments))
	out := make([]Assignment, len(assignments))
	for i, a := range assignments {
		a.AssignedAmount = shares[i]
		out[i] = a
	}
	return out
}

// PlanAssign adds a payer to item. current must hold the item's assignments
// in creation order.
func PlanAssign(item OrderItem, current []Assignment, req AssignRequest) (Plan, error) {
	if req.RequestedAmount < 0 {
		return Plan{}, ErrInvalidAmount
	}
	debtor := req.DebtorID
	if debtor != nil && *debtor == req.CreditorID {
		debtor = nil
	}

	for _, a := range current {
		if a.sameClaim(req.CreditorID, debtor) {
			return Plan{Noop: true}, nil
		}
	}
	if debtor != nil {
		for _, a := range current {
			if a.Consumer() == *debtor {
				return Plan{}, ErrAlreadyCovered
			}
		}
	}

	var plan Plan
	kept := make([]Assignment, 0, len(current)+1)
	for _, a := range current {
		// Nobody else pays for a participant who is now a creditor on this item.
		if a.DebtorID != nil && *a.DebtorID == req.CreditorID {
			plan.Removed = append(plan.Removed, a)
			continue
		}
		kept = append(kept, a)
	}

	created := Assignment{
		ID:          req.ID,
		OrderItemID: item.ID,
		CreditorID:  req.CreditorID,
		DebtorID:    debtor,
		CreatedAt:   req.CreatedAt,
	}
	next := Resplit(item.UnitPrice, append(kept, created))
	created = next[len(next)-1]
	plan.Created = &created
	plan.Updated = changed(kept, next[:len(next)-1])
	return plan, nil
}

// PlanRemove deletes one assignment and re-splits the remaining payers.
func PlanRemove(item OrderItem, current []Assignment, assignmentID string) (Plan, error) {
	idx := indexOf(current, assignmentID)
	if idx < 0 {
		return Plan{}, ErrNotFound
	}
	kept := make([]Assignment, 0, len(current)-1)
	kept = append(kept, current[:idx]...)
	kept = append(kept, current[idx+1:]...)

	return Plan{
		Removed: []Assignment{current[idx]},
		Updated: changed(kept, Resplit(item.UnitPrice, kept)),
	}, nil
}

// PlanUpdate sets a manual amount on one assignment. Siblings keep their
// amounts; the item total must stay within the price.
func PlanUpdate(item OrderItem, current []Assignment, assignmentID string, amount int64) (Plan, error) {
	if amount < 0 {
		return Plan{}, ErrInvalidAmount
	}
	idx := indexOf(current, assignmentID)
	if idx < 0 {
		return Plan{}, ErrNotFound
	}
	if current[idx].AssignedAmount == amount {
		return Plan{Noop: true}, nil
	}
	var others int64
	for i, a := range current {
		if i != idx {
			others += a.AssignedAmount
		}
	}
	if others+amount > item.UnitPrice {
		return Plan{}, ErrOverAssigned
	}
	updated := current[idx]
	updated.AssignedAmount = amount
	return Plan{Updated: []Assignment{updated}}, nil
}

func changed(before, after []Assignment) []Assignment {
	var out []Assignment
	for i := range before {
		if before[i].AssignedAmount != after[i].AssignedAmount {
			out = append(out, after[i])
		}
	}
	return out
}

func indexOf(assignments []Assignment, id string) int {
	for i, a := range assignments {
		if a.ID == id {
			return i
		}
	}
	return -1
}
