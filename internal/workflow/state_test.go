package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"refill-api-server/internal/apperror"
	"refill-api-server/internal/models"
)

func TestTransitionTable(t *testing.T) {
	cases := []struct {
		from models.RequestStatus
		ev   Event
		to   models.RequestStatus
		ok   bool
	}{
		{models.StatusPending, EventApprove, models.StatusApproved, true},
		{models.StatusPending, EventReject, models.StatusRejected, true},
		{models.StatusApproved, EventAttachReceipts, models.StatusPurchased, true},
		{models.StatusApproved, EventComplete, models.StatusCompleted, true},
		{models.StatusPurchased, EventComplete, models.StatusCompleted, true},

		{models.StatusPending, EventComplete, "", false},
		{models.StatusPending, EventAttachReceipts, "", false},
		{models.StatusApproved, EventApprove, "", false},
		{models.StatusApproved, EventReject, "", false},
		{models.StatusPurchased, EventAttachReceipts, "", false},
		{models.StatusCompleted, EventComplete, "", false},
		{models.StatusRejected, EventApprove, "", false},
		{models.StatusPending, Event("teleport"), "", false},
	}
	for _, tc := range cases {
		t.Run(string(tc.from)+"/"+string(tc.ev), func(t *testing.T) {
			to, ok := Next(tc.from, tc.ev)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.to, to)
		})
	}
}

func TestEventFor(t *testing.T) {
	ev, err := EventFor(models.StatusApproved)
	require.NoError(t, err)
	assert.Equal(t, EventApprove, ev)

	ev, err = EventFor(models.StatusRejected)
	require.NoError(t, err)
	assert.Equal(t, EventReject, ev)

	ev, err = EventFor(models.StatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, EventComplete, ev)

	for _, target := range []models.RequestStatus{models.StatusPurchased, models.StatusPending, "Lost"} {
		_, err := EventFor(target)
		assert.True(t, apperror.IsValidation(err), target)
	}
}
