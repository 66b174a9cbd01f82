package tablesession

import "time"

// Outbound event types.
const (
	EventSessionState           = "session_state"
	EventItemAssigned           = "item_assigned"
	EventAssignmentUpdated      = "assignment_updated"
	EventAssignmentRemoved      = "assignment_removed"
	EventParticipantJoined      = "participant_joined"
	EventParticipantLeft        = "participant_left"
	EventSummaryUpdated         = "summary_updated"
	EventSelectableParticipants = "selectable_participants"
	EventPayingForParticipants  = "paying_for_participants"
	EventAssignmentsValidated   = "assignments_validated"
	EventSessionFinalized       = "session_finalized"
	EventSessionLocked          = "session_locked"
	EventSessionUnlocked        = "session_unlocked"
	EventEqualSplitCalculated   = "equal_split_calculated"
	EventError                  = "error"
)

type SessionView struct {
	ID             string    `json:"id"`
	Status         Status    `json:"status"`
	Currency       string    `json:"currency"`
	TotalAmount    int64     `json:"total_amount"`
	Locked         bool      `json:"locked"`
	LockedBy       *string   `json:"locked_by"`
	LockedByUserID *string   `json:"locked_by_user_id"`
	CreatedAt      time.Time `json:"created_at"`
}

type SessionStateEvent struct {
	Type         string        `json:"type"`
	Session      SessionView   `json:"session"`
	Participants []Participant `json:"participants"`
	OrderItems   []OrderItem   `json:"order_items"`
	Assignments  []Assignment  `json:"assignments"`
}

type ParticipantJoinedEvent struct {
	Type          string    `json:"type"`
	ParticipantID string    `json:"participant_id"`
	UserID        *string   `json:"user_id"`
	UserName      string    `json:"user_name,omitempty"`
	UserAvatarURL string    `json:"user_avatar_url,omitempty"`
	JoinedAt      time.Time `json:"joined_at"`
}

type ParticipantLeftEvent struct {
	Type          string `json:"type"`
	ParticipantID string `json:"participant_id"`
}

type ItemAssignedEvent struct {
	Type           string  `json:"type"`
	AssignmentID   string  `json:"assignment_id"`
	OrderItemID    string  `json:"order_item_id"`
	CreditorID     string  `json:"creditor_id"`
	DebtorID       *string `json:"debtor_id"`
	AssignedAmount int64   `json:"assigned_amount"`
}

type AssignmentUpdatedEvent struct {
	Type           string `json:"type"`
	AssignmentID   string `json:"assignment_id"`
	OrderItemID    string `json:"order_item_id"`
	AssignedAmount int64  `json:"assigned_amount"`
}

type AssignmentRemovedEvent struct {
	Type         string `json:"type"`
	AssignmentID string `json:"assignment_id"`
	OrderItemID  string `json:"order_item_id"`
}

type SummaryUpdatedEvent struct {
	Type string `json:"type"`
	// Summary maps participant id to the amount they pay as creditor.
	Summary       map[string]int64       `json:"summary"`
	Participants  map[string]SummaryLine `json:"participants"`
	Items         map[string]ItemBalance `json:"items"`
	TotalAmount   int64                  `json:"total_amount"`
	TotalAssigned int64                  `json:"total_assigned"`
}

type ParticipantRef struct {
	ParticipantID string  `json:"participant_id"`
	UserID        *string `json:"user_id"`
	UserName      string  `json:"user_name,omitempty"`
}

type SelectableParticipantsEvent struct {
	Type                   string           `json:"type"`
	OrderItemID            string           `json:"order_item_id"`
	SelectableParticipants []ParticipantRef `json:"selectable_participants"`
}

type PayingForParticipantsEvent struct {
	Type                  string           `json:"type"`
	OrderItemID           string           `json:"order_item_id"`
	PayingForParticipants []ParticipantRef `json:"paying_for_participants"`
}

type AssignmentsValidatedEvent struct {
	Type            string   `json:"type"`
	AllAssigned     bool     `json:"all_assigned"`
	UnassignedItems []string `json:"unassigned_items"`
}

type SessionFinalizedEvent struct {
	Type             string `json:"type"`
	SessionID        string `json:"session_id"`
	TotalAmount      int64  `json:"total_amount"`
	ReadyForInvoices bool   `json:"ready_for_invoices"`
}

type SessionLockedEvent struct {
	Type           string  `json:"type"`
	LockedBy       string  `json:"locked_by"`
	LockedByUserID *string `json:"locked_by_user_id"`
}

type SessionUnlockedEvent struct {
	Type string `json:"type"`
}

type EqualSplitCalculatedEvent struct {
	Type             string `json:"type"`
	TotalAmount      int64  `json:"total_amount"`
	ParticipantCount int    `json:"participant_count"`
	AmountPerPerson  int64  `json:"amount_per_person"`
	Remainder        int64  `json:"remainder"`
}

type ErrorEvent struct {
	Type      string `json:"type"`
	Code      Code   `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// NewErrorEvent renders err for the originating connection.
func NewErrorEvent(err error) ErrorEvent {
	e := AsError(err)
	msg := e.Message
	if e.Kind == KindInternal {
		msg = "internal error"
		if e == ErrActorStopped {
			msg = e.Message
		}
	}
	return ErrorEvent{Type: EventError, Code: e.Code, Message: msg, Retryable: e.Retryable()}
}

func itemAssignedEvent(a Assignment) ItemAssignedEvent {
	return ItemAssignedEvent{
		Type:           EventItemAssigned,
		AssignmentID:   a.ID,
		OrderItemID:    a.OrderItemID,
		CreditorID:     a.CreditorID,
		DebtorID:       a.DebtorID,
		AssignedAmount: a.AssignedAmount,
	}
}

func assignmentUpdatedEvent(a Assignment) AssignmentUpdatedEvent {
	return AssignmentUpdatedEvent{
		Type:           EventAssignmentUpdated,
		AssignmentID:   a.ID,
		OrderItemID:    a.OrderItemID,
		AssignedAmount: a.AssignedAmount,
	}
}

func assignmentRemovedEvent(a Assignment) AssignmentRemovedEvent {
	return AssignmentRemovedEvent{Type: EventAssignmentRemoved, AssignmentID: a.ID, OrderItemID: a.OrderItemID}
}

func participantJoinedEvent(p Participant) ParticipantJoinedEvent {
	return ParticipantJoinedEvent{
		Type:          EventParticipantJoined,
		ParticipantID: p.ID,
		UserID:        p.UserID,
		UserName:      p.DisplayName,
		UserAvatarURL: p.AvatarURL,
		JoinedAt:      p.JoinedAt,
	}
}

func validatedEvent(v Validation) AssignmentsValidatedEvent {
	items := v.UnassignedItems
	if items == nil {
		items = []string{}
	}
	return AssignmentsValidatedEvent{Type: EventAssignmentsValidated, AllAssigned: v.AllAssigned, UnassignedItems: items}
}

func summaryEvent(s Summary) SummaryUpdatedEvent {
	paying := make(map[string]int64, len(s.Participants))
	for id, line := range s.Participants {
		paying[id] = line.Paying
	}
	return SummaryUpdatedEvent{
		Type:          EventSummaryUpdated,
		Summary:       paying,
		Participants:  s.Participants,
		Items:         s.Items,
		TotalAmount:   s.TotalAmount,
		TotalAssigned: s.TotalAssigned,
	}
}
