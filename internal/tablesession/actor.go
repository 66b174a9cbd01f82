package tablesession

import (
	"context"
	"log"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/susu3304/tablesplit/internal/hub"
)

type Options struct {
	QueueSize      int
	PersistTimeout time.Duration
	Directory      Directory
	Invoicer       Invoicer
	Notifier       Notifier
	Now            func() time.Time
	NewID          func() string
}

func (o Options) withDefaults() Options {
	if o.QueueSize <= 0 {
		o.QueueSize = 64
	}
	if o.PersistTimeout <= 0 {
		o.PersistTimeout = 5 * time.Second
	}
	if o.Now == nil {
		o.Now = func() time.Time { return time.Now().UTC() }
	}
	if o.NewID == nil {
		o.NewID = uuid.NewString
	}
	return o
}

type result struct {
	value any
	err   error
}

type envelope struct {
	cmd   Command
	reply chan result
}

// Actor owns one session. All state changes and all store writes for the
// session happen on its goroutine, one command at a time.
type Actor struct {
	id    string
	store Store
	opts  Options
	hub   *hub.Hub
	st    *state

	ctx    context.Context
	cancel context.CancelFunc
	cmds   chan envelope
	quit   chan struct{}
	done   chan struct{}
}

func newActor(snap *Snapshot, store Store, opts Options) *Actor {
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	a := &Actor{
		id:     snap.Session.ID,
		store:  store,
		opts:   opts,
		st:     newState(snap),
		ctx:    ctx,
		cancel: cancel,
		cmds:   make(chan envelope, opts.QueueSize),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	a.hub = hub.New(a.id, a.participantGone)
	go a.run()
	return a
}

func (a *Actor) ID() string { return a.id }

func (a *Actor) Hub() *hub.Hub { return a.hub }

// Stopped reports whether the actor goroutine has exited.
func (a *Actor) Stopped() bool {
	select {
	case <-a.done:
		return true
	default:
		return false
	}
}

// Stop asks the actor to exit after the command in progress.
func (a *Actor) Stop() {
	select {
	case <-a.quit:
	default:
		close(a.quit)
	}
}

// Do enqueues cmd and waits for it to be processed. The command runs to
// completion even if ctx is cancelled after it was queued.
func (a *Actor) Do(ctx context.Context, cmd Command) (any, error) {
	env := envelope{cmd: cmd, reply: make(chan result, 1)}
	select {
	case a.cmds <- env:
	case <-a.done:
		return nil, ErrActorStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case r := <-env.reply:
		return r.value, r.err
	case <-a.done:
		select {
		case r := <-env.reply:
			return r.value, r.err
		default:
		}
		return nil, ErrActorStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (a *Actor) run() {
	defer close(a.done)
	defer a.hub.Close()
	defer a.cancel()
	defer func() {
		if r := recover(); r != nil {
			log.Printf("actor: session %s panicked: %v\n%s", a.id, r, debug.Stack())
		}
	}()

	for {
		select {
		case <-a.quit:
			return
		case env := <-a.cmds:
			value, err := a.handle(env.cmd)
			env.reply <- result{value: value, err: err}
		}
	}
}

func (a *Actor) handle(cmd Command) (any, error) {
	value, err := a.dispatch(cmd)
	origin := cmd.origin()
	if err != nil {
		e := AsError(err)
		if e.Kind == KindPersistence || e.Kind == KindInternal {
			log.Printf("actor: session %s: %T failed: %v", a.id, cmd, err)
		}
		if origin != nil {
			_ = a.hub.Send(origin, NewErrorEvent(e))
		}
		return nil, e
	}
	if value != nil && origin != nil && unicast(cmd) {
		_ = a.hub.Send(origin, value)
	}
	return value, nil
}

// unicast lists the commands whose value is a private reply.
func unicast(cmd Command) bool {
	switch cmd.(type) {
	case Join, GetSelectableParticipants, GetPayingForParticipants, GetState, FinalizeSession:
		return true
	}
	return false
}

func (a *Actor) dispatch(cmd Command) (any, error) {
	switch c := cmd.(type) {
	case Join:
		return a.join(c)
	case AssignItem:
		return a.assignItem(c)
	case UpdateAssignment:
		return a.updateAssignment(c)
	case RemoveAssignment:
		return a.removeAssignment(c)
	case GetSelectableParticipants:
		return a.selectableParticipants(c)
	case GetPayingForParticipants:
		return a.payingForParticipants(c)
	case RequestSummary:
		return a.requestSummary()
	case ValidateAssignments:
		return a.validateAssignments()
	case LockSession:
		return a.lock(c)
	case UnlockSession:
		return a.unlock(c)
	case FinalizeSession:
		return a.finalize(c)
	case Leave:
		return a.leave(c)
	case Disconnect:
		return a.disconnect(c)
	case CalculateEqualSplit:
		return a.equalSplit()
	case GetState:
		return a.st.snapshotEvent(), nil
	case GetSummary:
		return summaryEvent(a.st.summary()), nil
	default:
		return nil, invalidCommand("unsupported command %T", cmd)
	}
}

func (a *Actor) broadcast(v any) {
	if err := a.hub.Broadcast(v); err != nil {
		log.Printf("actor: session %s broadcast: %v", a.id, err)
	}
}

func (a *Actor) persist(op string, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(a.ctx, a.opts.PersistTimeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		return persistenceError(op, err)
	}
	return nil
}

// participantGone is the hub callback for a participant whose last
// connection closed.
func (a *Actor) participantGone(participantID string) {
	ctx, cancel := context.WithTimeout(context.Background(), a.opts.PersistTimeout)
	defer cancel()
	_, _ = a.Do(ctx, Disconnect{ParticipantID: participantID})
}

func (a *Actor) join(c Join) (any, error) {
	if err := checkJoinable(a.st.session.Status); err != nil {
		return nil, err
	}
	userID := c.UserID
	if userID != nil && *userID == "" {
		userID = nil
	}

	var (
		p     Participant
		found bool
	)
	bound := ""
	if c.Origin != nil {
		bound = c.Origin.ParticipantID()
	}
	if userID != nil {
		p, found = a.st.participantByUser(*userID)
		if bound != "" && (!found || p.ID != bound) {
			return nil, invalidCommand("connection already joined as another participant")
		}
	} else if bound != "" {
		p, found = a.st.participant(bound)
	}

	created := false
	if !found {
		p = Participant{
			ID:        a.opts.NewID(),
			SessionID: a.id,
			UserID:    userID,
			JoinedAt:  a.opts.Now(),
		}
		if userID != nil && a.opts.Directory != nil {
			ctx, cancel := context.WithTimeout(a.ctx, a.opts.PersistTimeout)
			prof, err := a.opts.Directory.LookupUser(ctx, *userID)
			cancel()
			if err != nil {
				log.Printf("actor: session %s profile lookup for %s: %v", a.id, *userID, err)
			} else {
				p.DisplayName = prof.DisplayName
				p.AvatarURL = prof.AvatarURL
			}
		}
		if err := a.persist("save participant", func(ctx context.Context) error {
			return a.store.SaveParticipant(ctx, p)
		}); err != nil {
			return nil, err
		}
		a.st.addParticipant(p)
		created = true
	}

	wasConnected := a.hub.Connected(p.ID)
	if c.Origin != nil {
		a.hub.Bind(c.Origin, p.ID)
	}
	if created || !wasConnected {
		a.broadcast(participantJoinedEvent(p))
	}
	return a.st.snapshotEvent(), nil
}

func (a *Actor) assignItem(c AssignItem) (any, error) {
	item, ok := a.st.item(c.OrderItemID)
	if !ok {
		return nil, ErrInvalidItem
	}
	if err := checkMutable(a.st.session.Status); err != nil {
		return nil, err
	}
	creditor := caller(c.CreditorID, c.Origin)
	if creditor == "" {
		return nil, ErrNotJoined
	}
	if _, ok := a.st.participant(creditor); !ok {
		return nil, ErrInvalidParticipant
	}
	if c.DebtorID != nil {
		if _, ok := a.st.participant(*c.DebtorID); !ok {
			return nil, ErrInvalidParticipant
		}
	}

	plan, err := PlanAssign(item, a.st.itemAssignments(item.ID), AssignRequest{
		ID:              a.opts.NewID(),
		CreditorID:      creditor,
		DebtorID:        c.DebtorID,
		RequestedAmount: c.RequestedAmount,
		CreatedAt:       a.opts.Now(),
	})
	if err != nil || plan.Noop {
		return nil, err
	}
	if err := a.applyPlan(item.ID, plan); err != nil {
		return nil, err
	}

	for _, r := range plan.Removed {
		a.broadcast(assignmentRemovedEvent(r))
	}
	a.broadcast(itemAssignedEvent(*plan.Created))
	for _, u := range plan.Updated {
		a.broadcast(assignmentUpdatedEvent(u))
	}
	return nil, nil
}

func (a *Actor) updateAssignment(c UpdateAssignment) (any, error) {
	if err := checkMutable(a.st.session.Status); err != nil {
		return nil, err
	}
	itemID, ok := a.st.assignmentItem[c.AssignmentID]
	if !ok {
		return nil, ErrNotFound
	}
	item, _ := a.st.item(itemID)
	plan, err := PlanUpdate(item, a.st.itemAssignments(itemID), c.AssignmentID, c.Amount)
	if err != nil || plan.Noop {
		return nil, err
	}
	if err := a.applyPlan(itemID, plan); err != nil {
		return nil, err
	}
	for _, u := range plan.Updated {
		a.broadcast(assignmentUpdatedEvent(u))
	}
	return nil, nil
}

func (a *Actor) removeAssignment(c RemoveAssignment) (any, error) {
	if err := checkMutable(a.st.session.Status); err != nil {
		return nil, err
	}
	itemID, ok := a.st.assignmentItem[c.AssignmentID]
	if !ok {
		return nil, ErrNotFound
	}
	item, _ := a.st.item(itemID)
	plan, err := PlanRemove(item, a.st.itemAssignments(itemID), c.AssignmentID)
	if err != nil {
		return nil, err
	}
	if err := a.applyPlan(itemID, plan); err != nil {
		return nil, err
	}
	for _, r := range plan.Removed {
		a.broadcast(assignmentRemovedEvent(r))
	}
	for _, u := range plan.Updated {
		a.broadcast(assignmentUpdatedEvent(u))
	}
	return nil, nil
}

// applyPlan persists the plan and only then applies it in memory.
func (a *Actor) applyPlan(itemID string, plan Plan) error {
	if err := a.persist("apply assignments", func(ctx context.Context) error {
		return a.store.ApplyAssignments(ctx, a.id, plan.Change())
	}); err != nil {
		return err
	}
	a.st.apply(itemID, plan)
	return nil
}

func (a *Actor) selectableParticipants(c GetSelectableParticipants) (any, error) {
	if _, ok := a.st.item(c.OrderItemID); !ok {
		return nil, ErrInvalidItem
	}
	pid := caller(c.ParticipantID, c.Origin)
	if pid == "" {
		return nil, ErrNotJoined
	}
	return SelectableParticipantsEvent{
		Type:                   EventSelectableParticipants,
		OrderItemID:            c.OrderItemID,
		SelectableParticipants: a.st.selectable(c.OrderItemID, pid),
	}, nil
}

func (a *Actor) payingForParticipants(c GetPayingForParticipants) (any, error) {
	if _, ok := a.st.item(c.OrderItemID); !ok {
		return nil, ErrInvalidItem
	}
	pid := caller(c.ParticipantID, c.Origin)
	if pid == "" {
		return nil, ErrNotJoined
	}
	return PayingForParticipantsEvent{
		Type:                  EventPayingForParticipants,
		OrderItemID:           c.OrderItemID,
		PayingForParticipants: a.st.payingFor(c.OrderItemID, pid),
	}, nil
}

func (a *Actor) requestSummary() (any, error) {
	ev := summaryEvent(a.st.summary())
	a.broadcast(ev)
	return ev, nil
}

func (a *Actor) validateAssignments() (any, error) {
	v := a.st.validate()
	a.st.lastValidation = &v
	ev := validatedEvent(v)
	a.broadcast(ev)
	return ev, nil
}

// initiator resolves the participant behind a lifecycle command.
func (a *Actor) initiator(explicit string, origin *hub.Client) (Participant, error) {
	pid := caller(explicit, origin)
	if pid == "" {
		return Participant{}, ErrNotJoined
	}
	p, ok := a.st.participant(pid)
	if !ok {
		return Participant{}, ErrInvalidParticipant
	}
	return p, nil
}

func (a *Actor) lock(c LockSession) (any, error) {
	p, err := a.initiator(c.ParticipantID, c.Origin)
	if err != nil {
		return nil, err
	}
	next, err := lockTransition(a.st.session.Status)
	if err != nil {
		return nil, err
	}
	if err := a.persist("save lock", func(ctx context.Context) error {
		return a.store.SaveLock(ctx, a.id, next, &p.ID)
	}); err != nil {
		return nil, err
	}
	a.st.session.Status = next
	a.st.session.LockedBy = &p.ID

	a.broadcast(SessionLockedEvent{Type: EventSessionLocked, LockedBy: p.ID, LockedByUserID: p.UserID})
	return a.validateAssignments()
}

func (a *Actor) unlock(c UnlockSession) (any, error) {
	if _, err := a.initiator(c.ParticipantID, c.Origin); err != nil {
		return nil, err
	}
	next, err := unlockTransition(a.st.session.Status)
	if err != nil {
		return nil, err
	}
	if err := a.persist("save lock", func(ctx context.Context) error {
		return a.store.SaveLock(ctx, a.id, next, nil)
	}); err != nil {
		return nil, err
	}
	a.st.session.Status = next
	a.st.session.LockedBy = nil
	a.st.lastValidation = nil

	ev := SessionUnlockedEvent{Type: EventSessionUnlocked}
	a.broadcast(ev)
	return ev, nil
}

func (a *Actor) finalize(c FinalizeSession) (any, error) {
	if _, err := a.initiator(c.ParticipantID, c.Origin); err != nil {
		return nil, err
	}
	next, noop, err := finalizeTransition(a.st.session.Status, a.st.lastValidation)
	if err != nil {
		return nil, err
	}
	if noop {
		return a.finalizedEvent(), nil
	}

	now := a.opts.Now()
	settlement := a.st.settlement(now)
	if a.opts.Invoicer != nil {
		if err := a.persist("materialize settlement", func(ctx context.Context) error {
			return a.opts.Invoicer.MaterializeSettlement(ctx, settlement)
		}); err != nil {
			return nil, err
		}
	}
	if err := a.persist("close session", func(ctx context.Context) error {
		return a.store.CloseSession(ctx, a.id, settlement.TotalAmount, now)
	}); err != nil {
		return nil, err
	}
	a.st.session.Status = next
	a.st.session.TotalAmount = settlement.TotalAmount
	a.st.session.ClosedAt = &now

	a.broadcast(a.finalizedEvent())
	a.notify(settlement)
	// The broadcast already reached the caller.
	return nil, nil
}

func (a *Actor) finalizedEvent() SessionFinalizedEvent {
	return SessionFinalizedEvent{
		Type:             EventSessionFinalized,
		SessionID:        a.id,
		TotalAmount:      a.st.session.TotalAmount,
		ReadyForInvoices: true,
	}
}

func (a *Actor) notify(s Settlement) {
	if a.opts.Notifier == nil {
		return
	}
	n, timeout := a.opts.Notifier, a.opts.PersistTimeout
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := n.SessionFinalized(ctx, s); err != nil {
			log.Printf("actor: session %s finalize notification: %v", s.SessionID, err)
		}
	}()
}

func (a *Actor) leave(c Leave) (any, error) {
	pid := caller(c.ParticipantID, c.Origin)
	if pid == "" {
		return nil, ErrNotJoined
	}
	if _, ok := a.st.participant(pid); !ok {
		return nil, ErrInvalidParticipant
	}
	if err := checkMutable(a.st.session.Status); err != nil {
		return nil, err
	}
	if a.st.hasAssignments(pid) {
		return nil, ErrParticipantBusy
	}
	if err := a.persist("delete participant", func(ctx context.Context) error {
		return a.store.DeleteParticipant(ctx, a.id, pid)
	}); err != nil {
		return nil, err
	}
	a.st.removeParticipant(pid)
	a.hub.Release(pid)

	ev := ParticipantLeftEvent{Type: EventParticipantLeft, ParticipantID: pid}
	a.broadcast(ev)
	return ev, nil
}

func (a *Actor) disconnect(c Disconnect) (any, error) {
	if c.ParticipantID == "" || a.hub.Connected(c.ParticipantID) {
		return nil, nil
	}
	if _, ok := a.st.participant(c.ParticipantID); !ok {
		return nil, nil
	}
	a.broadcast(ParticipantLeftEvent{Type: EventParticipantLeft, ParticipantID: c.ParticipantID})
	return nil, nil
}

func (a *Actor) equalSplit() (any, error) {
	ev := a.st.equalSplit()
	a.broadcast(ev)
	return ev, nil
}
