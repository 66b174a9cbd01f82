package tablesession

import "time"

type Status string

const (
	StatusOpen   Status = "open"
	StatusLocked Status = "locked"
	StatusClosed Status = "closed"
)

type Session struct {
	ID          string     `json:"id"`
	Status      Status     `json:"status"`
	Currency    string     `json:"currency"`
	TotalAmount int64      `json:"total_amount"`
	LockedBy    *string    `json:"locked_by"`
	CreatedAt   time.Time  `json:"created_at"`
	ClosedAt    *time.Time `json:"closed_at,omitempty"`
}

type Participant struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id"`
	UserID      *string   `json:"user_id"`
	DisplayName string    `json:"user_name,omitempty"`
	AvatarURL   string    `json:"user_avatar_url,omitempty"`
	JoinedAt    time.Time `json:"joined_at"`
}

type OrderItem struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Name      string    `json:"item_name"`
	UnitPrice int64     `json:"unit_price"`
	OrderedAt time.Time `json:"ordered_at"`
}

// Assignment is a claim by CreditorID to pay AssignedAmount of an item.
// A nil DebtorID means the creditor pays for themselves.
type Assignment struct {
	ID             string    `json:"id"`
	OrderItemID    string    `json:"order_item_id"`
	CreditorID     string    `json:"creditor_id"`
	DebtorID       *string   `json:"debtor_id"`
	AssignedAmount int64     `json:"assigned_amount"`
	CreatedAt      time.Time `json:"created_at"`
}

// Consumer returns the participant who actually consumed the share.
func (a Assignment) Consumer() string {
	if a.DebtorID != nil {
		return *a.DebtorID
	}
	return a.CreditorID
}

func (a Assignment) sameClaim(creditorID string, debtorID *string) bool {
	if a.CreditorID != creditorID {
		return false
	}
	if a.DebtorID == nil || debtorID == nil {
		return a.DebtorID == nil && debtorID == nil
	}
	return *a.DebtorID == *debtorID
}

// Snapshot is the full state of one session as loaded from the store.
type Snapshot struct {
	Session      Session
	Participants []Participant
	Items        []OrderItem
	Assignments  []Assignment
}

type SummaryLine struct {
	// Paying is what the participant pays as creditor.
	Paying int64 `json:"paying"`
	// Owed is what others pay on the participant's behalf.
	Owed int64 `json:"owed"`
	// Consumed is the participant's own share of the bill.
	Consumed int64 `json:"consumed"`
}

type ItemBalance struct {
	UnitPrice int64 `json:"unit_price"`
	Assigned  int64 `json:"assigned"`
	Remaining int64 `json:"remaining"`
}

type Summary struct {
	Participants  map[string]SummaryLine
	Items         map[string]ItemBalance
	TotalAmount   int64
	TotalAssigned int64
}

type Validation struct {
	AllAssigned     bool
	UnassignedItems []string
}

// Settlement is handed to the invoicing collaborator when a session closes.
type Settlement struct {
	SessionID   string
	Currency    string
	TotalAmount int64
	FinalizedAt time.Time
	Charges     []Charge
	Debts       []Debt
}

// Charge is the amount one participant pays towards the bill.
type Charge struct {
	ParticipantID string
	UserID        *string
	Amount        int64
}

// Debt records that DebtorID owes CreditorID for items paid on their behalf.
type Debt struct {
	DebtorID   string
	CreditorID string
	Amount     int64
}
