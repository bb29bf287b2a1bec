package barter

import "github.com/MarcoPoloResearchLab/swapcircle/backend/internal/codes"

type event string

const (
	eventAccept      event = "accept"
	eventReject      event = "reject"
	eventAcknowledge event = "acknowledge"
	eventComplete    event = "complete"
)

var transitions = map[Status]map[event]Status{
	StatusPending: {
		eventAccept: StatusOwnerAccepted,
		eventReject: StatusRejected,
	},
	StatusOwnerAccepted: {
		eventAcknowledge: StatusBothAccepted,
		eventReject:      StatusRejected,
	},
	StatusBothAccepted: {
		eventComplete: StatusCompleted,
	},
}

// nextStatus is the whole negotiation lattice. Anything not listed is refused.
func nextStatus(from Status, ev event) (Status, error) {
	if next, ok := transitions[from][ev]; ok {
		return next, nil
	}
	return from, ErrInvalidTransition
}

// effect names what a successful mutation did, so the service can pick
// notifications and side effects without re-inspecting state.
type effect int

const (
	effectNone effect = iota
	effectAccepted
	effectDeclined
	effectWithdrawn
	effectBothAccepted
	effectAcknowledged
	effectCodeVerified
	effectCompleted
)

func counterpartRole(role Role) Role {
	if role == RoleOwner {
		return RoleRequester
	}
	return RoleOwner
}

func applyResponse(req *Request, role Role, accept bool, generator codes.Generator) (effect, error) {
	if role != RoleOwner {
		return effectNone, ErrNotOwner
	}
	if !accept {
		next, err := nextStatus(req.Status, eventReject)
		if err != nil {
			return effectNone, err
		}
		req.Status = next
		return effectDeclined, nil
	}

	next, err := nextStatus(req.Status, eventAccept)
	if err != nil {
		return effectNone, err
	}
	if req.HasCodes() {
		return effectNone, ErrInvalidTransition
	}
	ownerCode, requesterCode, err := mintCodePair(generator)
	if err != nil {
		return effectNone, err
	}
	req.Status = next
	req.OwnerConfirmationCode = ownerCode
	req.RequesterConfirmationCode = requesterCode
	return effectAccepted, nil
}

func applyAcknowledge(req *Request, role Role) (effect, error) {
	if role != RoleRequester {
		return effectNone, ErrNotRequester
	}
	if req.Status == StatusBothAccepted {
		return effectNone, nil
	}
	next, err := nextStatus(req.Status, eventAcknowledge)
	if err != nil {
		return effectNone, err
	}
	req.Status = next
	return effectBothAccepted, nil
}

func applyPartyConfirmed(req *Request, role Role) (effect, error) {
	if req.Status != StatusOwnerAccepted && req.Status != StatusBothAccepted {
		return effectNone, ErrInvalidTransition
	}
	flag := &req.RequesterAcknowledged
	if role == RoleOwner {
		flag = &req.OwnerAcknowledged
	}
	if *flag {
		return effectNone, nil
	}
	*flag = true
	return effectAcknowledged, nil
}

// applyCompletion verifies the code role received from its counterparty.
func applyCompletion(req *Request, role Role, submitted string) (effect, error) {
	expected := req.CodeFor(counterpartRole(role))
	switch req.Status {
	case StatusCompleted:
		if codes.Match(expected, submitted) {
			return effectNone, nil
		}
		return effectNone, ErrInvalidTransition
	case StatusBothAccepted:
	default:
		return effectNone, ErrInvalidTransition
	}

	if !codes.Match(expected, submitted) {
		return effectNone, ErrInvalidConfirmationCode
	}
	flag := &req.RequesterConfirmed
	if role == RoleOwner {
		flag = &req.OwnerConfirmed
	}
	if *flag {
		return effectNone, nil
	}
	*flag = true

	if !req.OwnerConfirmed || !req.RequesterConfirmed {
		return effectCodeVerified, nil
	}
	next, err := nextStatus(req.Status, eventComplete)
	if err != nil {
		return effectNone, err
	}
	req.Status = next
	return effectCompleted, nil
}

func applyDecline(req *Request, role Role) (effect, error) {
	next, err := nextStatus(req.Status, eventReject)
	if err != nil {
		return effectNone, err
	}
	req.Status = next
	if role == RoleOwner {
		return effectDeclined, nil
	}
	return effectWithdrawn, nil
}
