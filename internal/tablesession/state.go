package tablesession

import (
	"sort"
	"time"
)

// state is the in-memory mirror of one session. Only the owning actor
// goroutine touches it.
type state struct {
	session      Session
	participants []Participant
	items        []OrderItem
	itemIndex    map[string]int
	// assignments per item id, in creation order
	assignments map[string][]Assignment
	// assignment id -> item id
	assignmentItem map[string]string
	lastValidation *Validation
}

func newState(snap *Snapshot) *state {
	s := &state{
		session:        snap.Session,
		participants:   append([]Participant(nil), snap.Participants...),
		items:          append([]OrderItem(nil), snap.Items...),
		itemIndex:      make(map[string]int, len(snap.Items)),
		assignments:    make(map[string][]Assignment),
		assignmentItem: make(map[string]string, len(snap.Assignments)),
	}
	for i, it := range s.items {
		s.itemIndex[it.ID] = i
	}

	ordered := append([]Assignment(nil), snap.Assignments...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
	})
	for _, a := range ordered {
		if _, ok := s.itemIndex[a.OrderItemID]; !ok {
			continue
		}
		s.assignments[a.OrderItemID] = append(s.assignments[a.OrderItemID], a)
		s.assignmentItem[a.ID] = a.OrderItemID
	}
	return s
}

func (s *state) item(id string) (OrderItem, bool) {
	i, ok := s.itemIndex[id]
	if !ok {
		return OrderItem{}, false
	}
	return s.items[i], true
}

func (s *state) participant(id string) (Participant, bool) {
	for _, p := range s.participants {
		if p.ID == id {
			return p, true
		}
	}
	return Participant{}, false
}

func (s *state) participantByUser(userID string) (Participant, bool) {
	for _, p := range s.participants {
		if p.UserID != nil && *p.UserID == userID {
			return p, true
		}
	}
	return Participant{}, false
}

func (s *state) addParticipant(p Participant) {
	s.participants = append(s.participants, p)
}

func (s *state) removeParticipant(id string) {
	for i, p := range s.participants {
		if p.ID == id {
			s.participants = append(s.participants[:i], s.participants[i+1:]...)
			return
		}
	}
}

// itemAssignments returns a copy of the item's assignments.
func (s *state) itemAssignments(itemID string) []Assignment {
	return append([]Assignment(nil), s.assignments[itemID]...)
}

func (s *state) hasAssignments(participantID string) bool {
	for _, list := range s.assignments {
		for _, a := range list {
			if a.CreditorID == participantID || (a.DebtorID != nil && *a.DebtorID == participantID) {
				return true
			}
		}
	}
	return false
}

// apply commits an already persisted plan for itemID.
func (s *state) apply(itemID string, p Plan) {
	list := s.assignments[itemID]
	for _, r := range p.Removed {
		if i := indexOf(list, r.ID); i >= 0 {
			list = append(list[:i], list[i+1:]...)
		}
		delete(s.assignmentItem, r.ID)
	}
	for _, u := range p.Updated {
		if i := indexOf(list, u.ID); i >= 0 {
			list[i] = u
		}
	}
	if p.Created != nil {
		list = append(list, *p.Created)
		s.assignmentItem[p.Created.ID] = itemID
	}
	if len(list) == 0 {
		delete(s.assignments, itemID)
	} else {
		s.assignments[itemID] = list
	}
	s.lastValidation = nil
}

func (s *state) totalPrice() int64 {
	var total int64
	for _, it := range s.items {
		total += it.UnitPrice
	}
	return total
}

func (s *state) sessionView() SessionView {
	v := SessionView{
		ID:          s.session.ID,
		Status:      s.session.Status,
		Currency:    s.session.Currency,
		TotalAmount: s.session.TotalAmount,
		Locked:      s.session.Status == StatusLocked,
		LockedBy:    s.session.LockedBy,
		CreatedAt:   s.session.CreatedAt,
	}
	if s.session.Status != StatusClosed {
		v.TotalAmount = s.totalPrice()
	}
	if s.session.LockedBy != nil {
		if p, ok := s.participant(*s.session.LockedBy); ok {
			v.LockedByUserID = p.UserID
		}
	}
	return v
}

func (s *state) snapshotEvent() SessionStateEvent {
	ev := SessionStateEvent{
		Type:         EventSessionState,
		Session:      s.sessionView(),
		Participants: append([]Participant{}, s.participants...),
		OrderItems:   append([]OrderItem{}, s.items...),
		Assignments:  []Assignment{},
	}
	for _, it := range s.items {
		ev.Assignments = append(ev.Assignments, s.assignments[it.ID]...)
	}
	return ev
}

func (s *state) summary() Summary {
	sum := Summary{
		Participants: make(map[string]SummaryLine, len(s.participants)),
		Items:        make(map[string]ItemBalance, len(s.items)),
	}
	for _, p := range s.participants {
		sum.Participants[p.ID] = SummaryLine{}
	}
	for _, it := range s.items {
		bal := ItemBalance{UnitPrice: it.UnitPrice}
		for _, a := range s.assignments[it.ID] {
			bal.Assigned += a.AssignedAmount

			line := sum.Participants[a.CreditorID]
			line.Paying += a.AssignedAmount
			sum.Participants[a.CreditorID] = line

			consumer := sum.Participants[a.Consumer()]
			consumer.Consumed += a.AssignedAmount
			if a.DebtorID != nil {
				consumer.Owed += a.AssignedAmount
			}
			sum.Participants[a.Consumer()] = consumer
		}
		bal.Remaining = bal.UnitPrice - bal.Assigned
		sum.Items[it.ID] = bal
		sum.TotalAmount += it.UnitPrice
		sum.TotalAssigned += bal.Assigned
	}
	return sum
}

func (s *state) validate() Validation {
	v := Validation{AllAssigned: true}
	for _, it := range s.items {
		var assigned int64
		for _, a := range s.assignments[it.ID] {
			assigned += a.AssignedAmount
		}
		if assigned != it.UnitPrice {
			v.AllAssigned = false
			v.UnassignedItems = append(v.UnassignedItems, it.ID)
		}
	}
	return v
}

// selectable lists participants the caller may additionally pay for on item.
func (s *state) selectable(itemID, callerID string) []ParticipantRef {
	covered := make(map[string]bool)
	for _, a := range s.assignments[itemID] {
		covered[a.Consumer()] = true
	}
	out := []ParticipantRef{}
	for _, p := range s.participants {
		if p.ID == callerID || covered[p.ID] {
			continue
		}
		out = append(out, participantRef(p))
	}
	return out
}

// payingFor lists the debtors the caller currently pays for on item.
func (s *state) payingFor(itemID, callerID string) []ParticipantRef {
	out := []ParticipantRef{}
	for _, a := range s.assignments[itemID] {
		if a.CreditorID != callerID || a.DebtorID == nil {
			continue
		}
		if p, ok := s.participant(*a.DebtorID); ok {
			out = append(out, participantRef(p))
		}
	}
	return out
}

func participantRef(p Participant) ParticipantRef {
	return ParticipantRef{ParticipantID: p.ID, UserID: p.UserID, UserName: p.DisplayName}
}

// settlement aggregates creditor charges and debtor -> creditor debts.
func (s *state) settlement(now time.Time) Settlement {
	st := Settlement{
		SessionID:   s.session.ID,
		Currency:    s.session.Currency,
		FinalizedAt: now,
	}
	charges := make(map[string]int64)
	type pair struct{ debtor, creditor string }
	debts := make(map[pair]int64)
	for _, list := range s.assignments {
		for _, a := range list {
			charges[a.CreditorID] += a.AssignedAmount
			st.TotalAmount += a.AssignedAmount
			if a.DebtorID != nil && a.AssignedAmount > 0 {
				debts[pair{*a.DebtorID, a.CreditorID}] += a.AssignedAmount
			}
		}
	}
	for _, p := range s.participants {
		if amt, ok := charges[p.ID]; ok && amt > 0 {
			st.Charges = append(st.Charges, Charge{ParticipantID: p.ID, UserID: p.UserID, Amount: amt})
		}
	}
	for k, amt := range debts {
		st.Debts = append(st.Debts, Debt{DebtorID: k.debtor, CreditorID: k.creditor, Amount: amt})
	}
	sort.Slice(st.Debts, func(i, j int) bool {
		if st.Debts[i].DebtorID != st.Debts[j].DebtorID {
			return st.Debts[i].DebtorID < st.Debts[j].DebtorID
		}
		return st.Debts[i].CreditorID < st.Debts[j].CreditorID
	})
	return st
}

func (s *state) equalSplit() EqualSplitCalculatedEvent {
	total := s.session.TotalAmount
	if total == 0 {
		total = s.totalPrice()
	}
	ev := EqualSplitCalculatedEvent{
		Type:             EventEqualSplitCalculated,
		TotalAmount:      total,
		ParticipantCount: len(s.participants),
	}
	if n := int64(len(s.participants)); n > 0 {
		ev.AmountPerPerson = total / n
		ev.Remainder = total % n
	}
	return ev
}
