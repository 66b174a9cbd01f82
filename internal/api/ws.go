package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/susu3304/tablesplit/internal/hub"
	"github.com/susu3304/tablesplit/internal/tablesession"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 8 << 10
)

// Inbound message types.
const (
	msgJoinSession               = "join_session"
	msgAssignItem                = "assign_item"
	msgUpdateAssignment          = "update_assignment"
	msgRemoveAssignment          = "remove_assignment"
	msgGetSelectableParticipants = "get_selectable_participants"
	msgGetPayingForParticipants  = "get_paying_for_participants"
	msgRequestSummary            = "request_summary"
	msgValidateAssignments       = "validate_assignments"
	msgLockSession               = "lock_session"
	msgUnlockSession             = "unlock_session"
	msgFinalizeSession           = "finalize_session"
	msgLeaveSession              = "leave_session"
	msgCalculateEqualSplit       = "calculate_equal_split"
)

type inboundMessage struct {
	Type           string  `json:"type"`
	UserID         *string `json:"user_id"`
	OrderItemID    string  `json:"order_item_id"`
	CreditorID     string  `json:"creditor_id"`
	DebtorID       *string `json:"debtor_id"`
	AssignedAmount int64   `json:"assigned_amount"`
	AssignmentID   string  `json:"assignment_id"`
}

func badMessage(format string, args ...any) *tablesession.Error {
	return &tablesession.Error{
		Kind:    tablesession.KindValidation,
		Code:    tablesession.CodeInvalidCommand,
		Message: fmt.Sprintf(format, args...),
	}
}

func (a *API) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["session_id"]

	claims, err := a.claimsFromRequest(r)
	if err != nil {
		if a.config.WSRequireAuth {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		claims = nil
	}

	client := hub.NewClient(a.config.ConnSendBuffer)
	actor, err := a.registry.Connect(r.Context(), sessionID, client)
	if err != nil {
		if errors.Is(err, tablesession.ErrSessionNotFound) {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		log.Printf("api: connect session %s: %v", sessionID, err)
		http.Error(w, "session unavailable", http.StatusServiceUnavailable)
		return
	}
	sessionHub := actor.Hub()
	defer sessionHub.Unregister(client)

	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("api: websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	go a.writePump(conn, sessionHub, client)

	ctx := r.Context()
	if _, err := actor.Do(ctx, tablesession.GetState{Origin: client}); err != nil {
		return
	}

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				log.Printf("api: websocket read error on session %s: %v", sessionID, err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))

		var msg inboundMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			_ = sessionHub.Send(client, tablesession.NewErrorEvent(badMessage("invalid JSON")))
			continue
		}
		cmd, err := toCommand(msg, client, claims)
		if err != nil {
			_ = sessionHub.Send(client, tablesession.NewErrorEvent(err))
			continue
		}

		// Replies and errors reach the client through the hub.
		if _, err := actor.Do(ctx, cmd); errors.Is(err, tablesession.ErrActorStopped) {
			return
		}
	}
}

// writePump is the only writer on conn.
func (a *API) writePump(conn *websocket.Conn, h *hub.Hub, client *hub.Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
		h.Unregister(client)
	}()

	for {
		select {
		case frame := <-client.Outbox():
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-client.Done():
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
			return
		}
	}
}

// toCommand maps an inbound message onto a session command. An authenticated
// connection always joins as the user in its token.
func toCommand(msg inboundMessage, client *hub.Client, claims *Claims) (tablesession.Command, error) {
	switch msg.Type {
	case msgJoinSession:
		userID := msg.UserID
		if claims != nil {
			if userID != nil && *userID != "" && *userID != claims.UserID {
				return nil, badMessage("user_id does not match token")
			}
			userID = &claims.UserID
		}
		return tablesession.Join{Origin: client, UserID: userID}, nil
	case msgAssignItem:
		if msg.OrderItemID == "" {
			return nil, badMessage("order_item_id is required")
		}
		return tablesession.AssignItem{
			Origin:          client,
			OrderItemID:     msg.OrderItemID,
			CreditorID:      msg.CreditorID,
			DebtorID:        msg.DebtorID,
			RequestedAmount: msg.AssignedAmount,
		}, nil
	case msgUpdateAssignment:
		if msg.AssignmentID == "" {
			return nil, badMessage("assignment_id is required")
		}
		return tablesession.UpdateAssignment{Origin: client, AssignmentID: msg.AssignmentID, Amount: msg.AssignedAmount}, nil
	case msgRemoveAssignment:
		if msg.AssignmentID == "" {
			return nil, badMessage("assignment_id is required")
		}
		return tablesession.RemoveAssignment{Origin: client, AssignmentID: msg.AssignmentID}, nil
	case msgGetSelectableParticipants:
		if msg.OrderItemID == "" {
			return nil, badMessage("order_item_id is required")
		}
		return tablesession.GetSelectableParticipants{Origin: client, OrderItemID: msg.OrderItemID}, nil
	case msgGetPayingForParticipants:
		if msg.OrderItemID == "" {
			return nil, badMessage("order_item_id is required")
		}
		return tablesession.GetPayingForParticipants{Origin: client, OrderItemID: msg.OrderItemID}, nil
	case msgRequestSummary:
		return tablesession.RequestSummary{Origin: client}, nil
	case msgValidateAssignments:
		return tablesession.ValidateAssignments{Origin: client}, nil
	case msgLockSession:
		return tablesession.LockSession{Origin: client}, nil
	case msgUnlockSession:
		return tablesession.UnlockSession{Origin: client}, nil
	case msgFinalizeSession:
		return tablesession.FinalizeSession{Origin: client}, nil
	case msgLeaveSession:
		return tablesession.Leave{Origin: client}, nil
	case msgCalculateEqualSplit:
		return tablesession.CalculateEqualSplit{Origin: client}, nil
	case "":
		return nil, badMessage("type is required")
	default:
		return nil, badMessage("unknown message type %q", msg.Type)
	}
}
