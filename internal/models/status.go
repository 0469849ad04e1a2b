package models

import (
	"fmt"
	"strconv"
	"strings"
)

// RequestStatus is the lifecycle state of an ItemRequest or PurchaseRequest.
type RequestStatus string

const (
	StatusPending   RequestStatus = "Pending"
	StatusApproved  RequestStatus = "Approved"
	StatusRejected  RequestStatus = "Rejected"
	StatusPurchased RequestStatus = "Purchased"
	StatusCompleted RequestStatus = "Completed"
)

var orderedStatuses = []RequestStatus{
	StatusPending,
	StatusApproved,
	StatusRejected,
	StatusPurchased,
	StatusCompleted,
}

func (s RequestStatus) Valid() bool {
	for _, v := range orderedStatuses {
		if s == v {
			return true
		}
	}
	return false
}

func (s RequestStatus) String() string { return string(s) }

// ParseRequestStatus accepts the status name (case-insensitive) or the legacy
// numeric code 0-4 that older clients still send.
func ParseRequestStatus(raw string) (RequestStatus, error) {
	raw = strings.TrimSpace(raw)
	if n, err := strconv.Atoi(raw); err == nil {
		if n >= 0 && n < len(orderedStatuses) {
			return orderedStatuses[n], nil
		}
		return "", fmt.Errorf("unknown request status %q", raw)
	}
	for _, v := range orderedStatuses {
		if strings.EqualFold(raw, string(v)) {
			return v, nil
		}
	}
	return "", fmt.Errorf("unknown request status %q", raw)
}
