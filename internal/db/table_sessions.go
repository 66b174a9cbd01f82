package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/susu3304/tablesplit/internal/tablesession"
)

// SessionStore persists table sessions. It implements tablesession.Store.
type SessionStore struct {
	db *DB
}

func (db *DB) Sessions() *SessionStore {
	return &SessionStore{db: db}
}

// LoadSession reads the session with its participants, items and assignments.
func (s *SessionStore) LoadSession(ctx context.Context, sessionID string) (*tablesession.Snapshot, error) {
	var snap tablesession.Snapshot
	var status string
	err := s.db.pool.QueryRow(ctx,
		`SELECT id, status, currency, total_amount, locked_by, created_at, closed_at
		 FROM table_sessions WHERE id = $1`,
		sessionID,
	).Scan(&snap.Session.ID, &status, &snap.Session.Currency, &snap.Session.TotalAmount,
		&snap.Session.LockedBy, &snap.Session.CreatedAt, &snap.Session.ClosedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, tablesession.ErrSessionNotFound
		}
		return nil, fmt.Errorf("load session: %w", err)
	}
	snap.Session.Status = tablesession.Status(status)

	if snap.Participants, err = s.participants(ctx, sessionID); err != nil {
		return nil, err
	}
	if snap.Items, err = s.orderItems(ctx, sessionID); err != nil {
		return nil, err
	}
	if snap.Assignments, err = s.assignments(ctx, sessionID); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (s *SessionStore) participants(ctx context.Context, sessionID string) ([]tablesession.Participant, error) {
	rows, err := s.db.pool.Query(ctx,
		`SELECT p.id, p.session_id, p.user_id,
		        COALESCE(NULLIF(p.user_name, ''), u.name, ''),
		        COALESCE(NULLIF(p.user_avatar_url, ''), u.avatar_url, ''),
		        p.joined_at
		 FROM table_participants p
		 LEFT JOIN users u ON u.id = p.user_id
		 WHERE p.session_id = $1
		 ORDER BY p.joined_at, p.id`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("load participants: %w", err)
	}
	defer rows.Close()
	var out []tablesession.Participant
	for rows.Next() {
		var p tablesession.Participant
		if err := rows.Scan(&p.ID, &p.SessionID, &p.UserID, &p.DisplayName, &p.AvatarURL, &p.JoinedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SessionStore) orderItems(ctx context.Context, sessionID string) ([]tablesession.OrderItem, error) {
	rows, err := s.db.pool.Query(ctx,
		`SELECT id, session_id, item_name, unit_price, ordered_at
		 FROM order_items WHERE session_id = $1
		 ORDER BY ordered_at, id`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("load order items: %w", err)
	}
	defer rows.Close()
	var out []tablesession.OrderItem
	for rows.Next() {
		var it tablesession.OrderItem
		if err := rows.Scan(&it.ID, &it.SessionID, &it.Name, &it.UnitPrice, &it.OrderedAt); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (s *SessionStore) assignments(ctx context.Context, sessionID string) ([]tablesession.Assignment, error) {
	rows, err := s.db.pool.Query(ctx,
		`SELECT a.id, a.order_item_id, a.creditor_id, a.debtor_id, a.assigned_amount, a.created_at
		 FROM item_assignments a
		 JOIN order_items i ON i.id = a.order_item_id
		 WHERE i.session_id = $1
		 ORDER BY a.created_at, a.id`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("load assignments: %w", err)
	}
	defer rows.Close()
	var out []tablesession.Assignment
	for rows.Next() {
		var a tablesession.Assignment
		if err := rows.Scan(&a.ID, &a.OrderItemID, &a.CreditorID, &a.DebtorID, &a.AssignedAmount, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SessionStore) SaveParticipant(ctx context.Context, p tablesession.Participant) error {
	_, err := s.db.pool.Exec(ctx,
		`INSERT INTO table_participants (id, session_id, user_id, user_name, user_avatar_url, joined_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO UPDATE
		 SET user_name = EXCLUDED.user_name, user_avatar_url = EXCLUDED.user_avatar_url`,
		p.ID, p.SessionID, p.UserID, p.DisplayName, p.AvatarURL, p.JoinedAt,
	)
	return err
}

func (s *SessionStore) DeleteParticipant(ctx context.Context, sessionID, participantID string) error {
	ct, err := s.db.pool.Exec(ctx,
		`DELETE FROM table_participants WHERE session_id = $1 AND id = $2`,
		sessionID, participantID,
	)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("participant %s not found", participantID)
	}
	return nil
}

// ApplyAssignments deletes and upserts assignments in one transaction.
func (s *SessionStore) ApplyAssignments(ctx context.Context, sessionID string, change tablesession.AssignmentChange) error {
	tx, err := s.db.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if len(change.Deleted) > 0 {
		if _, err := tx.Exec(ctx,
			`DELETE FROM item_assignments a
			 USING order_items i
			 WHERE i.id = a.order_item_id AND i.session_id = $1 AND a.id = ANY($2)`,
			sessionID, change.Deleted,
		); err != nil {
			return fmt.Errorf("delete assignments: %w", err)
		}
	}

	for _, a := range change.Saved {
		if _, err := tx.Exec(ctx,
			`INSERT INTO item_assignments (id, order_item_id, creditor_id, debtor_id, assigned_amount, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT (id) DO UPDATE SET assigned_amount = EXCLUDED.assigned_amount`,
			a.ID, a.OrderItemID, a.CreditorID, a.DebtorID, a.AssignedAmount, a.CreatedAt,
		); err != nil {
			return fmt.Errorf("save assignment %s: %w", a.ID, err)
		}
	}

	return tx.Commit(ctx)
}

func (s *SessionStore) SaveLock(ctx context.Context, sessionID string, status tablesession.Status, lockedBy *string) error {
	ct, err := s.db.pool.Exec(ctx,
		`UPDATE table_sessions SET status = $2, locked_by = $3 WHERE id = $1 AND status <> 'closed'`,
		sessionID, string(status), lockedBy,
	)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("session %s not found or closed", sessionID)
	}
	return nil
}

func (s *SessionStore) CloseSession(ctx context.Context, sessionID string, totalAmount int64, closedAt time.Time) error {
	_, err := s.db.pool.Exec(ctx,
		`UPDATE table_sessions
		 SET status = 'closed', total_amount = $2, closed_at = $3
		 WHERE id = $1`,
		sessionID, totalAmount, closedAt,
	)
	return err
}
