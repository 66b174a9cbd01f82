package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/susu3304/tablesplit/internal/tablesession"
)

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if a.pinger != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := a.pinger.Ping(ctx); err != nil {
			log.Printf("api: health check: %v", err)
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Protected handlers
func (a *API) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["session_id"]

	state, err := a.registry.State(r.Context(), sessionID)
	if err != nil {
		respondError(w, "failed to load session", err)
		return
	}
	respondJSON(w, http.StatusOK, state)
}

func (a *API) handleGetSummary(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["session_id"]

	summary, err := a.registry.Summary(r.Context(), sessionID)
	if err != nil {
		respondError(w, "failed to load summary", err)
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

type settlementResponse struct {
	SessionID   string       `json:"session_id"`
	Currency    string       `json:"currency"`
	TotalAmount int64        `json:"total_amount"`
	FinalizedAt time.Time    `json:"finalized_at"`
	Charges     []chargeView `json:"charges"`
	Debts       []debtView   `json:"debts"`
}

type chargeView struct {
	ParticipantID string  `json:"participant_id"`
	UserID        *string `json:"user_id"`
	Amount        int64   `json:"amount"`
}

type debtView struct {
	DebtorID   string `json:"debtor_id"`
	CreditorID string `json:"creditor_id"`
	Amount     int64  `json:"amount"`
}

func (a *API) handleGetSettlement(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["session_id"]

	st, err := a.settlements.Settlement(r.Context(), sessionID)
	if err != nil {
		respondError(w, "failed to load settlement", err)
		return
	}

	resp := settlementResponse{
		SessionID:   st.SessionID,
		Currency:    st.Currency,
		TotalAmount: st.TotalAmount,
		FinalizedAt: st.FinalizedAt,
		Charges:     []chargeView{},
		Debts:       []debtView{},
	}
	for _, c := range st.Charges {
		resp.Charges = append(resp.Charges, chargeView{ParticipantID: c.ParticipantID, UserID: c.UserID, Amount: c.Amount})
	}
	for _, d := range st.Debts {
		resp.Debts = append(resp.Debts, debtView{DebtorID: d.DebtorID, CreditorID: d.CreditorID, Amount: d.Amount})
	}
	respondJSON(w, http.StatusOK, resp)
}

// respondError maps domain errors to HTTP status codes.
func respondError(w http.ResponseWriter, msg string, err error) {
	switch {
	case errors.Is(err, tablesession.ErrSessionNotFound):
		http.Error(w, "session not found", http.StatusNotFound)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, tablesession.ErrActorStopped):
		http.Error(w, msg, http.StatusServiceUnavailable)
	default:
		log.Printf("api: %s: %v", msg, err)
		http.Error(w, msg, http.StatusInternalServerError)
	}
}
