package db

import (
	"context"
	"fmt"

	"github.com/susu3304/tablesplit/internal/tablesession"
)

// SettlementStore writes invoice and settlement task rows for finalized
// sessions. It implements tablesession.Invoicer.
type SettlementStore struct {
	db *DB
}

func (db *DB) Settlements() *SettlementStore {
	return &SettlementStore{db: db}
}

// MaterializeSettlement replaces invoices and settlement tasks for the
// session, so a retried finalize writes the same rows again.
func (s *SettlementStore) MaterializeSettlement(ctx context.Context, st tablesession.Settlement) error {
	tx, err := s.db.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM invoices WHERE session_id = $1`, st.SessionID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM settlement_tasks WHERE session_id = $1`, st.SessionID); err != nil {
		return err
	}

	for _, c := range st.Charges {
		if c.Amount <= 0 {
			continue
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO invoices (session_id, participant_id, user_id, amount, currency, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			st.SessionID, c.ParticipantID, c.UserID, c.Amount, st.Currency, st.FinalizedAt,
		); err != nil {
			return fmt.Errorf("insert invoice: %w", err)
		}
	}
	for _, d := range st.Debts {
		if d.Amount <= 0 || d.DebtorID == "" || d.CreditorID == "" {
			continue
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO settlement_tasks (session_id, debtor_id, creditor_id, amount, paid)
			 VALUES ($1, $2, $3, $4, FALSE)`,
			st.SessionID, d.DebtorID, d.CreditorID, d.Amount,
		); err != nil {
			return fmt.Errorf("insert settlement task: %w", err)
		}
	}
	return tx.Commit(ctx)
}

// Settlement reads back what MaterializeSettlement wrote. It returns
// tablesession.ErrSessionNotFound when the session has no invoices.
func (s *SettlementStore) Settlement(ctx context.Context, sessionID string) (*tablesession.Settlement, error) {
	st := &tablesession.Settlement{SessionID: sessionID}

	rows, err := s.db.pool.Query(ctx,
		`SELECT participant_id, user_id, amount, currency, created_at
		 FROM invoices WHERE session_id = $1
		 ORDER BY participant_id`,
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var c tablesession.Charge
		if err := rows.Scan(&c.ParticipantID, &c.UserID, &c.Amount, &st.Currency, &st.FinalizedAt); err != nil {
			return nil, err
		}
		st.Charges = append(st.Charges, c)
		st.TotalAmount += c.Amount
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(st.Charges) == 0 {
		return nil, tablesession.ErrSessionNotFound
	}

	debtRows, err := s.db.pool.Query(ctx,
		`SELECT debtor_id, creditor_id, amount
		 FROM settlement_tasks
		 WHERE session_id = $1
		 ORDER BY debtor_id, creditor_id`,
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer debtRows.Close()
	for debtRows.Next() {
		var d tablesession.Debt
		if err := debtRows.Scan(&d.DebtorID, &d.CreditorID, &d.Amount); err != nil {
			return nil, err
		}
		st.Debts = append(st.Debts, d)
	}
	return st, debtRows.Err()
}
