package workflow

import (
	"refill-api-server/internal/apperror"
	"refill-api-server/internal/models"
)

// Event drives a request from one status to the next.
type Event string

const (
	EventApprove        Event = "approve"
	EventReject         Event = "reject"
	EventAttachReceipts Event = "attach receipts"
	EventComplete       Event = "complete"
)

type transition struct {
	from []models.RequestStatus
	to   models.RequestStatus
}

var transitions = map[Event]transition{
	EventApprove:        {from: []models.RequestStatus{models.StatusPending}, to: models.StatusApproved},
	EventReject:         {from: []models.RequestStatus{models.StatusPending}, to: models.StatusRejected},
	EventAttachReceipts: {from: []models.RequestStatus{models.StatusApproved}, to: models.StatusPurchased},
	EventComplete:       {from: []models.RequestStatus{models.StatusApproved, models.StatusPurchased}, to: models.StatusCompleted},
}

// Next returns the status ev leads to from the given status.
func Next(from models.RequestStatus, ev Event) (models.RequestStatus, bool) {
	t, ok := transitions[ev]
	if !ok {
		return "", false
	}
	for _, s := range t.from {
		if s == from {
			return t.to, true
		}
	}
	return "", false
}

// EventFor maps a requested target status to the event that reaches it.
// Pending is never a target and Purchased is only reached by attaching
// receipts.
func EventFor(target models.RequestStatus) (Event, error) {
	switch target {
	case models.StatusApproved:
		return EventApprove, nil
	case models.StatusRejected:
		return EventReject, nil
	case models.StatusCompleted:
		return EventComplete, nil
	case models.StatusPurchased:
		return "", apperror.NewValidation("a request becomes Purchased by uploading receipts")
	default:
		return "", apperror.NewValidation("unsupported target status").WithDetail("status", target)
	}
}
