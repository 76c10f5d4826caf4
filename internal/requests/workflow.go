package requests

import (
	"fmt"
	"time"

	"github.com/sentinel-ops/sentinel/internal/rbac"
)

// Action is a verb that moves a request between statuses.
type Action string

const (
	// ActionReview escalates a pending request for admin decision ("recommend").
	ActionReview  Action = "review"
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
	ActionCancel  Action = "cancel"
)

// IsValid reports whether a is a known action.
func (a Action) IsValid() bool {
	switch a {
	case ActionReview, ActionApprove, ActionReject, ActionCancel:
		return true
	}
	return false
}

// Actions lists every workflow action.
func Actions() []Action {
	return []Action{ActionReview, ActionApprove, ActionReject, ActionCancel}
}

type edge struct {
	from   Status
	action Action
}

// edges is the complete transition graph. Terminal statuses have no entries.
var edges = map[edge]Status{
	{StatusPending, ActionReview}:      StatusUnderReview,
	{StatusPending, ActionApprove}:     StatusApproved,
	{StatusUnderReview, ActionApprove}: StatusApproved,
	{StatusPending, ActionReject}:      StatusRejected,
	{StatusUnderReview, ActionReject}:  StatusRejected,
	{StatusPending, ActionCancel}:      StatusCancelled,
	{StatusUnderReview, ActionCancel}:  StatusCancelled,
}

// Next returns the status reached by applying action from status.
func Next(from Status, action Action) (Status, error) {
	to, ok := edges[edge{from, action}]
	if !ok {
		return "", fmt.Errorf("%w: %s from %s", ErrInvalidTransition, action, from)
	}
	return to, nil
}

// Permitted reports whether p may perform action on req, ignoring the graph.
//
// Only a base commander reviews, and only for their own base. Admins approve
// or reject from pending or under_review; commanders only while the request is
// still pending and belongs to their base. Cancelling needs workflow
// management, which only admins hold.
func Permitted(p rbac.Principal, req Request, action Action) bool {
	switch action {
	case ActionReview:
		return p.Role == rbac.RoleBaseCommander &&
			p.Can(rbac.PermApproveRequests) &&
			p.CanAccessBase(req.BaseID)
	case ActionApprove, ActionReject:
		if !p.Can(rbac.PermApproveRequests) {
			return false
		}
		if p.Role == rbac.RoleAdmin {
			return true
		}
		return req.Status == StatusPending && p.CanAccessBase(req.BaseID)
	case ActionCancel:
		return p.Can(rbac.PermManageWorkflow)
	}
	return false
}

// AllowedActions lists the actions p can currently perform on req.
func AllowedActions(p rbac.Principal, req Request) []Action {
	var out []Action
	for _, a := range Actions() {
		if _, err := Next(req.Status, a); err != nil {
			continue
		}
		if Permitted(p, req, a) {
			out = append(out, a)
		}
	}
	return out
}

// Apply validates and performs action on req, returning the updated request
// and the transition record to persist. req is not modified.
func Apply(req Request, action Action, p rbac.Principal, comment string, at time.Time) (Request, Transition, error) {
	if !action.IsValid() {
		return req, Transition{}, fmt.Errorf("%w: unknown action %q", ErrInvalidTransition, action)
	}
	to, err := Next(req.Status, action)
	if err != nil {
		return req, Transition{}, err
	}
	if !Permitted(p, req, action) {
		return req, Transition{}, fmt.Errorf("%w: %s cannot %s request in %s", ErrNotPermitted, p.Role, action, req.Status)
	}

	at = at.UTC()
	updated := req
	updated.Status = to
	stamp := at
	switch action {
	case ActionReview:
		updated.ReviewedBy, updated.ReviewedAt = p.Username, &stamp
	case ActionApprove:
		updated.ApprovedBy, updated.ApprovedAt = p.Username, &stamp
	case ActionReject:
		updated.RejectedBy, updated.RejectedAt = p.Username, &stamp
	case ActionCancel:
		updated.CancelledBy, updated.CancelledAt = p.Username, &stamp
	}

	tr := Transition{
		RequestID:     req.ID,
		Action:        action,
		From:          req.Status,
		To:            to,
		ActorID:       p.ID,
		ActorUsername: p.Username,
		ActorRole:     p.Role,
		Comment:       comment,
		At:            at,
	}
	return updated, tr, nil
}
