package peer

import (
	"errors"
	"fmt"
)

var (
	// ErrNegotiationFailed wraps transport failures during offer/answer.
	ErrNegotiationFailed = errors.New("negotiation failed")
	// ErrNoPendingOffer: an answer arrived with no local offer outstanding.
	ErrNoPendingOffer = errors.New("no pending offer")
	// ErrGlare: a remote offer arrived while the local side is the offerer.
	ErrGlare = errors.New("offer glare: local offer in flight")
	// ErrOfferInProgress: a remote offer arrived while another remote
	// description is being applied, or after the round already completed.
	ErrOfferInProgress = errors.New("remote offer already applied")
	// ErrClosed: the session was closed.
	ErrClosed = errors.New("session closed")
)

// NegotiationError records which step failed. It matches both
// ErrNegotiationFailed and the underlying cause with errors.Is.
type NegotiationError struct {
	Op  string
	Err error
}

func (e *NegotiationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NegotiationError) Unwrap() []error {
	return []error{ErrNegotiationFailed, e.Err}
}

func negotiationError(op string, err error) error {
	return &NegotiationError{Op: op, Err: err}
}
