package requests

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/sentinel-ops/sentinel/internal/rbac"
)

var (
	adminP     = rbac.Principal{ID: 1, Username: "admin", Role: rbac.RoleAdmin}
	commanderP = rbac.Principal{ID: 2, Username: "commander1", Role: rbac.RoleBaseCommander, BaseID: "base-alpha"}
	logisticsP = rbac.Principal{ID: 3, Username: "logistics1", Role: rbac.RoleLogisticsOfficer}
)

func pendingRequest(base string) Request {
	return Request{
		ID:          uuid.New(),
		Type:        TypePurchase,
		Status:      StatusPending,
		RequestedBy: "logistics1",
		RequestedAt: time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
		BaseID:      base,
		Title:       "Rifles",
		Priority:    PriorityHigh,
	}
}

func TestTerminalStatusesHaveNoOutgoingEdges(t *testing.T) {
	for _, st := range Statuses() {
		for _, a := range Actions() {
			_, err := Next(st, a)
			if st.IsTerminal() {
				require.ErrorIs(t, err, ErrInvalidTransition, "%s/%s", st, a)
			}
		}
	}
	for e := range edges {
		require.False(t, e.from.IsTerminal(), "edge out of terminal %s", e.from)
	}
}

func TestTransitionGraph(t *testing.T) {
	cases := []struct {
		from Status
		act  Action
		to   Status
	}{
		{StatusPending, ActionReview, StatusUnderReview},
		{StatusPending, ActionApprove, StatusApproved},
		{StatusUnderReview, ActionApprove, StatusApproved},
		{StatusPending, ActionReject, StatusRejected},
		{StatusUnderReview, ActionReject, StatusRejected},
		{StatusPending, ActionCancel, StatusCancelled},
		{StatusUnderReview, ActionCancel, StatusCancelled},
	}
	for _, tc := range cases {
		to, err := Next(tc.from, tc.act)
		require.NoError(t, err)
		require.Equal(t, tc.to, to)
	}
	_, err := Next(StatusUnderReview, ActionReview)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestPermittedByRole(t *testing.T) {
	own := pendingRequest("base-alpha")
	foreign := pendingRequest("base-bravo")
	reviewed := own
	reviewed.Status = StatusUnderReview

	require.True(t, Permitted(commanderP, own, ActionReview))
	require.False(t, Permitted(commanderP, foreign, ActionReview))
	require.False(t, Permitted(adminP, own, ActionReview))
	require.False(t, Permitted(logisticsP, own, ActionReview))

	require.True(t, Permitted(commanderP, own, ActionApprove))
	require.False(t, Permitted(commanderP, foreign, ActionApprove))
	require.False(t, Permitted(commanderP, reviewed, ActionApprove))
	require.True(t, Permitted(adminP, reviewed, ActionApprove))
	require.False(t, Permitted(logisticsP, own, ActionApprove))

	require.True(t, Permitted(commanderP, own, ActionReject))
	require.False(t, Permitted(commanderP, reviewed, ActionReject))
	require.True(t, Permitted(adminP, reviewed, ActionReject))

	require.True(t, Permitted(adminP, reviewed, ActionCancel))
	require.False(t, Permitted(commanderP, own, ActionCancel))
	require.False(t, Permitted(logisticsP, own, ActionCancel))
}

func TestLogisticsOfficerHoldsNoEdge(t *testing.T) {
	for _, st := range Statuses() {
		req := pendingRequest("base-alpha")
		req.Status = st
		require.Empty(t, AllowedActions(logisticsP, req))
	}
}

func TestAllowedActions(t *testing.T) {
	own := pendingRequest("base-alpha")
	require.Equal(t, []Action{ActionReview, ActionApprove, ActionReject}, AllowedActions(commanderP, own))
	require.Equal(t, []Action{ActionApprove, ActionReject, ActionCancel}, AllowedActions(adminP, own))

	own.Status = StatusUnderReview
	require.Empty(t, AllowedActions(commanderP, own))
	require.Equal(t, []Action{ActionApprove, ActionReject, ActionCancel}, AllowedActions(adminP, own))

	own.Status = StatusApproved
	require.Empty(t, AllowedActions(adminP, own))
}

func TestApplyStampsActorAndTime(t *testing.T) {
	req := pendingRequest("base-alpha")
	at := time.Date(2024, 1, 16, 9, 0, 0, 0, time.FixedZone("X", 3600))

	reviewed, tr, err := Apply(req, ActionReview, commanderP, "looks fine", at)
	require.NoError(t, err)
	require.Equal(t, StatusUnderReview, reviewed.Status)
	require.Equal(t, "commander1", reviewed.ReviewedBy)
	require.NotNil(t, reviewed.ReviewedAt)
	require.Equal(t, at.UTC(), *reviewed.ReviewedAt)
	require.Equal(t, StatusPending, req.Status, "input must not be mutated")
	require.Equal(t, Transition{
		RequestID:     req.ID,
		Action:        ActionReview,
		From:          StatusPending,
		To:            StatusUnderReview,
		ActorID:       2,
		ActorUsername: "commander1",
		ActorRole:     rbac.RoleBaseCommander,
		Comment:       "looks fine",
		At:            at.UTC(),
	}, tr)

	cancelled, _, err := Apply(reviewed, ActionCancel, adminP, "", at)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, cancelled.Status)
	require.Equal(t, "admin", cancelled.CancelledBy)
	require.Equal(t, "commander1", cancelled.ReviewedBy)

	_, _, err = Apply(cancelled, ActionApprove, adminP, "", at)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestApplyRejectsUnauthorisedAndUnknownActions(t *testing.T) {
	req := pendingRequest("base-alpha")
	_, _, err := Apply(req, ActionApprove, logisticsP, "", time.Now())
	require.ErrorIs(t, err, ErrNotPermitted)

	_, _, err = Apply(req, Action("escalate"), adminP, "", time.Now())
	require.ErrorIs(t, err, ErrInvalidTransition)

	rejected, _, err := Apply(req, ActionReject, commanderP, "no budget", time.Now())
	require.NoError(t, err)
	require.Equal(t, "commander1", rejected.RejectedBy)
	require.NotNil(t, rejected.RejectedAt)
}
