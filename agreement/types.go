package agreement

import (
	"fmt"
	"strings"
)

// Status mirrors the agreement's on-ledger state. Values only move forward.
type Status uint8

const (
	StatusCreated Status = iota
	StatusWorkConfirmed
	StatusCompleted
)

var statusNames = []string{"CREATED", "WORK_CONFIRMED", "COMPLETED"}

func (s Status) Valid() bool {
	return int(s) < len(statusNames)
}

func (s Status) String() string {
	if !s.Valid() {
		return fmt.Sprintf("UNKNOWN(%d)", uint8(s))
	}
	return statusNames[s]
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Action is a state changing request a client can issue.
type Action int

const (
	ActionConfirmWork Action = iota + 1
	ActionReleasePayment
)

func (a Action) String() string {
	switch a {
	case ActionConfirmWork:
		return "ConfirmWork"
	case ActionReleasePayment:
		return "ReleasePayment"
	}
	return fmt.Sprintf("Action(%d)", int(a))
}

func (a Action) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// Method is the agreement method invoked by the action.
func (a Action) Method() string {
	switch a {
	case ActionConfirmWork:
		return "confirmWork"
	case ActionReleasePayment:
		return "releasePayment"
	}
	return ""
}

// TargetStatus is the status the agreement reaches once the action is final.
func (a Action) TargetStatus() Status {
	switch a {
	case ActionConfirmWork:
		return StatusWorkConfirmed
	case ActionReleasePayment:
		return StatusCompleted
	}
	return StatusCreated
}

// ParseAction accepts action names case-insensitively, with or without the
// "Work"/"Payment" suffix.
func ParseAction(s string) (Action, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "confirmwork", "confirm_work", "confirm":
		return ActionConfirmWork, nil
	case "releasepayment", "release_payment", "release":
		return ActionReleasePayment, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownAction, s)
}
