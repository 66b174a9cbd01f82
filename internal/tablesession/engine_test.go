package tablesession

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShares(t *testing.T) {
	tests := []struct {
		name  string
		price int64
		n     int
		want  []int64
	}{
		{"three ways with remainder", 1000, 3, []int64{334, 333, 333}},
		{"single payer", 1500, 1, []int64{1500}},
		{"two remainder units", 10, 4, []int64{3, 3, 2, 2}},
		{"even split", 1500, 2, []int64{750, 750}},
		{"zero price", 0, 2, []int64{0, 0}},
		{"more payers than units", 2, 3, []int64{1, 1, 0}},
		{"no payers", 1000, 0, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Shares(tt.price, tt.n))
		})
	}
}

func assignReq(id, creditor string, debtor *string, at int) AssignRequest {
	return AssignRequest{
		ID:         id,
		CreditorID: creditor,
		DebtorID:   debtor,
		CreatedAt:  time.Date(2024, 1, 1, 20, 0, at, 0, time.UTC),
	}
}

// commit applies a plan the way the actor state does.
func commit(t *testing.T, item OrderItem, current []Assignment, p Plan) []Assignment {
	t.Helper()
	s := newState(&Snapshot{Items: []OrderItem{item}, Assignments: current})
	s.apply(item.ID, p)
	return s.itemAssignments(item.ID)
}

func TestPlanAssignSelfThenCoPayer(t *testing.T) {
	item := OrderItem{ID: "item-1", UnitPrice: 1500}

	first, err := PlanAssign(item, nil, assignReq("a1", "alice", nil, 1))
	require.NoError(t, err)
	require.NotNil(t, first.Created)
	assert.Equal(t, int64(1500), first.Created.AssignedAmount)
	assert.Empty(t, first.Updated)
	current := commit(t, item, nil, first)

	second, err := PlanAssign(item, current, assignReq("a2", "bob", nil, 2))
	require.NoError(t, err)
	assert.Equal(t, int64(750), second.Created.AssignedAmount)
	require.Len(t, second.Updated, 1)
	assert.Equal(t, "a1", second.Updated[0].ID)
	assert.Equal(t, int64(750), second.Updated[0].AssignedAmount)
}

func TestPlanAssignRemainderGoesToEarliest(t *testing.T) {
	item := OrderItem{ID: "item-1", UnitPrice: 1000}
	var current []Assignment
	for i, who := range []string{"alice", "bob", "carol"} {
		p, err := PlanAssign(item, current, assignReq(fmt.Sprintf("a%d", i+1), who, nil, i))
		require.NoError(t, err)
		current = commit(t, item, current, p)
	}
	require.Len(t, current, 3)
	assert.Equal(t, "a1", current[0].ID)
	assert.Equal(t, int64(334), current[0].AssignedAmount)
	assert.Equal(t, int64(333), current[1].AssignedAmount)
	assert.Equal(t, int64(333), current[2].AssignedAmount)
}

func TestPlanAssignDuplicateIsNoop(t *testing.T) {
	item := OrderItem{ID: "item-1", UnitPrice: 900}
	p, err := PlanAssign(item, nil, assignReq("a1", "alice", strPtr("bob"), 1))
	require.NoError(t, err)
	current := commit(t, item, nil, p)

	again, err := PlanAssign(item, current, assignReq("a2", "alice", strPtr("bob"), 2))
	require.NoError(t, err)
	assert.True(t, again.Noop)
	assert.Nil(t, again.Created)
}

func TestPlanAssignSelfDebtorIsSelfPay(t *testing.T) {
	item := OrderItem{ID: "item-1", UnitPrice: 900}
	p, err := PlanAssign(item, nil, assignReq("a1", "alice", strPtr("alice"), 1))
	require.NoError(t, err)
	assert.Nil(t, p.Created.DebtorID)
}

func TestPlanAssignAlreadyCovered(t *testing.T) {
	item := OrderItem{ID: "item-1", UnitPrice: 900}
	p, err := PlanAssign(item, nil, assignReq("a1", "bob", nil, 1))
	require.NoError(t, err)
	current := commit(t, item, nil, p)

	_, err = PlanAssign(item, current, assignReq("a2", "alice", strPtr("bob"), 2))
	assert.ErrorIs(t, err, ErrAlreadyCovered)
}

func TestPlanAssignCreditorWasDebtor(t *testing.T) {
	build := func(t *testing.T, price int64, reqs ...AssignRequest) (OrderItem, []Assignment) {
		t.Helper()
		item := OrderItem{ID: "item-1", UnitPrice: price}
		var current []Assignment
		for i, req := range reqs {
			p, err := PlanAssign(item, current, req)
			require.NoError(t, err, "step %d", i)
			current = commit(t, item, current, p)
		}
		return item, current
	}

	t.Run("siblings unchanged", func(t *testing.T) {
		item, current := build(t, 1200,
			assignReq("a1", "alice", nil, 1),
			assignReq("a2", "alice", strPtr("bob"), 2),
		)

		// bob now pays for himself, so alice no longer pays for him.
		p, err := PlanAssign(item, current, assignReq("a3", "bob", nil, 3))
		require.NoError(t, err)
		require.Len(t, p.Removed, 1)
		assert.Equal(t, "a2", p.Removed[0].ID)
		assert.Equal(t, int64(600), p.Created.AssignedAmount)
		assert.Empty(t, p.Updated)
	})

	t.Run("remainder moves to next payer", func(t *testing.T) {
		item, current := build(t, 1000,
			assignReq("a1", "alice", strPtr("bob"), 1),
			assignReq("a2", "carol", nil, 2),
			assignReq("a3", "dave", nil, 3),
		)

		p, err := PlanAssign(item, current, assignReq("a4", "bob", nil, 4))
		require.NoError(t, err)
		require.Len(t, p.Removed, 1)
		assert.Equal(t, "a1", p.Removed[0].ID)
		assert.Equal(t, int64(333), p.Created.AssignedAmount)
		require.Len(t, p.Updated, 1)
		assert.Equal(t, "a2", p.Updated[0].ID)
		assert.Equal(t, int64(334), p.Updated[0].AssignedAmount)
	})
}

func TestPlanAssignNegativeAmount(t *testing.T) {
	req := assignReq("a1", "alice", nil, 1)
	req.RequestedAmount = -5
	_, err := PlanAssign(OrderItem{ID: "item-1", UnitPrice: 100}, nil, req)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestPlanRemoveResplits(t *testing.T) {
	item := OrderItem{ID: "item-1", UnitPrice: 1000}
	var current []Assignment
	for i, who := range []string{"alice", "bob", "carol"} {
		p, err := PlanAssign(item, current, assignReq(fmt.Sprintf("a%d", i+1), who, nil, i))
		require.NoError(t, err)
		current = commit(t, item, current, p)
	}

	p, err := PlanRemove(item, current, "a1")
	require.NoError(t, err)
	require.Len(t, p.Removed, 1)
	assert.Equal(t, "a1", p.Removed[0].ID)
	require.Len(t, p.Updated, 2)
	assert.Equal(t, int64(500), p.Updated[0].AssignedAmount)
	assert.Equal(t, int64(500), p.Updated[1].AssignedAmount)

	_, err = PlanRemove(item, current, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPlanUpdate(t *testing.T) {
	item := OrderItem{ID: "item-1", UnitPrice: 1000}
	current := []Assignment{
		{ID: "a1", OrderItemID: "item-1", CreditorID: "alice", AssignedAmount: 500},
		{ID: "a2", OrderItemID: "item-1", CreditorID: "bob", AssignedAmount: 500},
	}

	tests := []struct {
		name    string
		id      string
		amount  int64
		wantErr error
		noop    bool
	}{
		{"lower amount", "a1", 300, nil, false},
		{"unchanged", "a1", 500, nil, true},
		{"over price", "a1", 501, ErrOverAssigned, false},
		{"negative", "a2", -1, ErrInvalidAmount, false},
		{"unknown", "a9", 10, ErrNotFound, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := PlanUpdate(item, current, tt.id, tt.amount)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.noop, p.Noop)
			if !tt.noop {
				require.Len(t, p.Updated, 1)
				assert.Equal(t, tt.amount, p.Updated[0].AssignedAmount)
			}
		})
	}
}

func TestAssignedNeverExceedsPrice(t *testing.T) {
	item := OrderItem{ID: "item-1", UnitPrice: 997}
	people := []string{"p1", "p2", "p3", "p4", "p5"}
	var current []Assignment
	step := 0
	for round := 0; round < 4; round++ {
		for i, who := range people {
			step++
			var debtor *string
			if (round+i)%3 == 0 {
				debtor = strPtr(people[(i+round+1)%len(people)])
			}
			p, err := PlanAssign(item, current, assignReq(fmt.Sprintf("a%d", step), who, debtor, step))
			if err == nil && !p.Noop {
				current = commit(t, item, current, p)
			}
			if len(current) > 2 && step%4 == 0 {
				rp, err := PlanRemove(item, current, current[0].ID)
				require.NoError(t, err)
				current = commit(t, item, current, rp)
			}

			var sum int64
			for _, a := range current {
				sum += a.AssignedAmount
			}
			require.LessOrEqual(t, sum, item.UnitPrice)
			if len(current) > 0 {
				require.Equal(t, item.UnitPrice, sum)
			}
		}
	}
}
