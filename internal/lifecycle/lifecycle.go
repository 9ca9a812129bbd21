// Package lifecycle encodes the issue status workflow enforced on the client
// side before any network call: pending -> in_progress -> {escalated,
// resolved}, escalated -> resolved. Resolved is terminal. The backend applies
// the same state machine again; this package exists so invalid requests never
// leave the process.
package lifecycle

import (
	"errors"
	"fmt"
	"strings"
)

// Status is an issue workflow state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusEscalated  Status = "escalated"
	StatusResolved   Status = "resolved"
)

// MaxCompletionImageSize caps the resolve evidence upload at 5 MiB.
const MaxCompletionImageSize = 5 << 20

var (
	ErrUnknownStatus     = errors.New("lifecycle: unknown status")
	ErrInvalidTransition = errors.New("lifecycle: invalid transition")
	ErrNotImage          = errors.New("lifecycle: completion file is not an image")
	ErrImageTooLarge     = errors.New("lifecycle: completion image exceeds 5 MiB")
)

var transitions = map[Status][]Status{
	StatusPending:    {StatusInProgress},
	StatusInProgress: {StatusEscalated, StatusResolved},
	StatusEscalated:  {StatusResolved},
	StatusResolved:   {},
}

// Known reports whether s is one of the four workflow states.
func Known(s Status) bool {
	_, ok := transitions[s]
	return ok
}

// NextStatuses lists the states reachable from s. Empty for resolved and for
// unknown states.
func NextStatuses(s Status) []Status {
	next := transitions[s]
	out := make([]Status, len(next))
	copy(out, next)
	return out
}

// ValidTransition reports whether from -> to is allowed. Self-transitions and
// every pair not listed in the workflow are invalid.
func ValidTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CheckTransition returns a descriptive error for a disallowed transition.
func CheckTransition(from, to Status) error {
	if !Known(from) {
		return fmt.Errorf("%w: %q", ErrUnknownStatus, from)
	}
	if !Known(to) {
		return fmt.Errorf("%w: %q", ErrUnknownStatus, to)
	}
	if !ValidTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// Handoff reports whether moving to the given status hands the issue off to
// another authority, i.e. the actor should leave the detail view afterwards.
func Handoff(to Status) bool {
	return to == StatusEscalated
}

// ValidateCompletionImage checks the resolve evidence before anything is sent
// over the network: the declared type must be an image and the size must not
// exceed MaxCompletionImageSize.
func ValidateCompletionImage(contentType string, size int64) error {
	if !strings.HasPrefix(contentType, "image/") {
		return ErrNotImage
	}
	if size <= 0 || size > MaxCompletionImageSize {
		return ErrImageTooLarge
	}
	return nil
}
