package tablesession

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLockTransitions(t *testing.T) {
	tests := []struct {
		from    Status
		lock    error
		unlock  error
		mutable error
	}{
		{StatusOpen, nil, ErrNotLocked, nil},
		{StatusLocked, ErrSessionLocked, nil, ErrSessionLocked},
		{StatusClosed, ErrAlreadyClosed, ErrAlreadyClosed, ErrAlreadyClosed},
	}
	for _, tt := range tests {
		t.Run(string(tt.from), func(t *testing.T) {
			_, err := lockTransition(tt.from)
			if tt.lock == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.lock)
			}

			_, err = unlockTransition(tt.from)
			if tt.unlock == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.unlock)
			}

			err = checkMutable(tt.from)
			if tt.mutable == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.mutable)
			}
		})
	}
}

func TestFinalizeTransition(t *testing.T) {
	covered := &Validation{AllAssigned: true}
	partial := &Validation{AllAssigned: false, UnassignedItems: []string{"item-1"}}

	tests := []struct {
		name     string
		from     Status
		last     *Validation
		wantNoop bool
		wantErr  error
	}{
		{"open", StatusOpen, covered, false, ErrNotLocked},
		{"locked without validation", StatusLocked, nil, false, ErrNotValidated},
		{"locked with gaps", StatusLocked, partial, false, ErrNotValidated},
		{"locked and covered", StatusLocked, covered, false, nil},
		{"already closed", StatusClosed, nil, true, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, noop, err := finalizeTransition(tt.from, tt.last)
			assert.Equal(t, tt.wantNoop, noop)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, StatusClosed, next)
		})
	}
}

func TestClosedIsNotJoinable(t *testing.T) {
	assert.ErrorIs(t, checkJoinable(StatusClosed), ErrAlreadyClosed)
	assert.NoError(t, checkJoinable(StatusLocked))
}
