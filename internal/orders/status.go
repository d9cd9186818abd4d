package orders

import (
	"errors"
	"fmt"
)

type Status string

const (
	StatusPending              Status = "pending"
	StatusPrescriptionVerified Status = "prescription_verified"
	StatusConfirmed            Status = "confirmed"
	StatusPacked               Status = "packed"
	StatusOutForDelivery       Status = "out_for_delivery"
	StatusDelivered            Status = "delivered"
	StatusCancelled            Status = "cancelled"
	StatusReturned             Status = "returned"
)

var validNext = map[Status]map[Status]bool{
	StatusPending:              {StatusPrescriptionVerified: true, StatusConfirmed: true, StatusCancelled: true},
	StatusPrescriptionVerified: {StatusConfirmed: true, StatusCancelled: true},
	StatusConfirmed:            {StatusPacked: true, StatusCancelled: true},
	StatusPacked:               {StatusOutForDelivery: true, StatusCancelled: true},
	StatusOutForDelivery:       {StatusDelivered: true, StatusCancelled: true},
	StatusDelivered:            {StatusReturned: true},
	StatusCancelled:            {},
	StatusReturned:             {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

func (s Status) Valid() bool {
	_, ok := validNext[s]
	return ok
}

// Terminal reports whether cancellation is no longer possible.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled || s == StatusReturned
}

type PrescriptionStatus string

const (
	PrescriptionNotRequired PrescriptionStatus = "not_required"
	PrescriptionPending     PrescriptionStatus = "pending_verification"
	PrescriptionVerified    PrescriptionStatus = "verified"
	PrescriptionRejected    PrescriptionStatus = "rejected"
)

var ErrInvalidTransition = errors.New("invalid status transition")

// TransitionError carries the current and attempted status.
type TransitionError struct {
	From   Status
	To     Status
	Reason string
}

func (e *TransitionError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("cannot move order from %s to %s: %s", e.From, e.To, e.Reason)
	}
	return fmt.Sprintf("cannot move order from %s to %s", e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// checkTransition applies the table plus the prescription gate on leaving pending.
func checkTransition(o *Order, to Status) error {
	if !CanTransition(o.Status, to) {
		return &TransitionError{From: o.Status, To: to}
	}
	if o.Status != StatusPending {
		return nil
	}
	switch to {
	case StatusPrescriptionVerified:
		if o.PrescriptionStatus != PrescriptionVerified {
			return &TransitionError{From: o.Status, To: to, Reason: "prescription status is " + string(o.PrescriptionStatus)}
		}
	case StatusConfirmed:
		if o.PrescriptionStatus != PrescriptionNotRequired {
			return &TransitionError{From: o.Status, To: to, Reason: "prescription verification required"}
		}
	}
	return nil
}
