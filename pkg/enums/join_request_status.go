package enums

import (
	"fmt"
	"strings"
)

// JoinRequestStatus tracks the lifecycle of a team join request.
// Resolved statuses are terminal.
type JoinRequestStatus string

const (
	JoinRequestPending  JoinRequestStatus = "pending"
	JoinRequestApproved JoinRequestStatus = "approved"
	JoinRequestRejected JoinRequestStatus = "rejected"
)

func (s JoinRequestStatus) IsValid() bool {
	switch s {
	case JoinRequestPending, JoinRequestApproved, JoinRequestRejected:
		return true
	}
	return false
}

func (s JoinRequestStatus) IsResolved() bool {
	return s == JoinRequestApproved || s == JoinRequestRejected
}

func ParseJoinRequestStatus(value string) (JoinRequestStatus, error) {
	s := JoinRequestStatus(strings.ToLower(strings.TrimSpace(value)))
	if !s.IsValid() {
		return "", fmt.Errorf("invalid join request status %q", value)
	}
	return s, nil
}
