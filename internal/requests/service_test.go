package requests

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/sentinel-ops/sentinel/internal/platform/httpx"
	"github.com/sentinel-ops/sentinel/internal/shared"
	"github.com/sentinel-ops/sentinel/internal/visibility"
)

type memoryRepo struct {
	mu          sync.Mutex
	requests    map[uuid.UUID]Request
	transitions []Transition
	audits      []shared.AuditLog
	failInsert  error
	failCommit  error
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{requests: make(map[uuid.UUID]Request)}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	snapshot := make(map[uuid.UUID]Request, len(r.requests))
	for k, v := range r.requests {
		snapshot[k] = v
	}
	trLen, auditLen := len(r.transitions), len(r.audits)
	err := fn(ctx, &memoryTx{repo: r})
	if err == nil && r.failCommit != nil {
		err = r.failCommit
	}
	if err != nil {
		r.requests = snapshot
		r.transitions = r.transitions[:trLen]
		r.audits = r.audits[:auditLen]
		return shared.ConflictOnRace(err)
	}
	return nil
}

func (r *memoryRepo) Get(ctx context.Context, id uuid.UUID) (Request, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.requests[id]
	if !ok {
		return Request{}, ErrNotFound
	}
	return req, nil
}

func (r *memoryRepo) List(ctx context.Context, filter ListFilter) ([]Request, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Request
	for _, req := range r.requests {
		if filter.Status != "" && req.Status != filter.Status {
			continue
		}
		if filter.Type != "" && req.Type != filter.Type {
			continue
		}
		if !filter.Since.IsZero() && req.RequestedAt.Before(filter.Since) {
			continue
		}
		if !filter.Until.IsZero() && !req.RequestedAt.Before(filter.Until) {
			continue
		}
		out = append(out, req)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

func (r *memoryRepo) History(ctx context.Context, id uuid.UUID) ([]Transition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Transition
	for _, tr := range r.transitions {
		if tr.RequestID == id {
			out = append(out, tr)
		}
	}
	return out, nil
}

func (t *memoryTx) Insert(ctx context.Context, req Request) error {
	if t.repo.failInsert != nil {
		return t.repo.failInsert
	}
	t.repo.requests[req.ID] = req
	return nil
}

func (t *memoryTx) GetForUpdate(ctx context.Context, id uuid.UUID) (Request, error) {
	req, ok := t.repo.requests[id]
	if !ok {
		return Request{}, ErrNotFound
	}
	return req, nil
}

func (t *memoryTx) UpdateStatus(ctx context.Context, req Request, expected Status) error {
	cur, ok := t.repo.requests[req.ID]
	if !ok {
		return ErrNotFound
	}
	if cur.Status != expected {
		return shared.ErrConflict
	}
	t.repo.requests[req.ID] = req
	return nil
}

func (t *memoryTx) InsertTransition(ctx context.Context, tr Transition) (int64, error) {
	tr.ID = int64(len(t.repo.transitions) + 1)
	t.repo.transitions = append(t.repo.transitions, tr)
	return tr.ID, nil
}

func (t *memoryTx) RecordAudit(ctx context.Context, log shared.AuditLog) error {
	t.repo.audits = append(t.repo.audits, log)
	return nil
}

type memoryIdempotency struct {
	keys map[string]bool
}

func (m *memoryIdempotency) CheckAndInsert(ctx context.Context, key, module string) error {
	if m.keys[module+key] {
		return shared.ErrIdempotencyConflict
	}
	m.keys[module+key] = true
	return nil
}

func (m *memoryIdempotency) Delete(ctx context.Context, key, module string) error {
	delete(m.keys, module+key)
	return nil
}

type recordingEvents struct {
	changed []Request
}

func (e *recordingEvents) RequestChanged(ctx context.Context, req Request) error {
	e.changed = append(e.changed, req)
	return nil
}

type countingMetrics struct {
	seen []string
}

func (m *countingMetrics) ObserveTransition(action, from, to string) {
	m.seen = append(m.seen, action+":"+from+">"+to)
}

func fixedClock() func() time.Time {
	t := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Minute)
		return t
	}
}

func purchaseInput(base string) SubmitInput {
	return SubmitInput{
		Type:     TypePurchase,
		BaseID:   base,
		Title:    "M4 Rifles",
		Priority: PriorityHigh,
		Data: Payload{
			EquipmentType: "weapons",
			Quantity:      50,
			UnitCost:      1200,
			Supplier:      "Defense Contractor Inc.",
			Justification: "Required for upcoming training exercises",
		},
	}
}

func newTestService(t *testing.T) (*Service, *memoryRepo, *recordingEvents, *countingMetrics) {
	t.Helper()
	repo := newMemoryRepo()
	events := &recordingEvents{}
	metrics := &countingMetrics{}
	svc := NewService(repo, nil,
		WithClock(fixedClock()),
		WithEvents(events),
		WithMetrics(metrics),
		WithIdempotency(&memoryIdempotency{keys: map[string]bool{}}),
	)
	return svc, repo, events, metrics
}

func TestSubmitComputesTotalAndAudits(t *testing.T) {
	svc, repo, events, _ := newTestService(t)
	ctx := context.Background()

	req, err := svc.Submit(ctx, logisticsP, purchaseInput("base-bravo"), "")
	require.NoError(t, err)
	require.Equal(t, StatusPending, req.Status)
	require.Equal(t, "logistics1", req.RequestedBy)
	require.Equal(t, 60000.0, req.Data.TotalCost)
	require.Len(t, repo.audits, 1)
	require.Equal(t, "REQUEST_SUBMIT", repo.audits[0].Action)
	require.Len(t, events.changed, 1)
}

func TestSubmitValidationMessages(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(*SubmitInput)
		msg    string
	}{
		{"missing title", func(in *SubmitInput) { in.Title = " " }, shared.MsgRequiredFields},
		{"missing supplier", func(in *SubmitInput) { in.Data.Supplier = "" }, shared.MsgRequiredFields},
		{"zero quantity", func(in *SubmitInput) { in.Data.Quantity = 0 }, shared.MsgQuantityPositive},
		{"negative cost", func(in *SubmitInput) { in.Data.UnitCost = -1 }, shared.MsgUnitCostPositive},
		{"same bases", func(in *SubmitInput) {
			in.Type = TypeTransfer
			in.Data.FromBase, in.Data.ToBase = "base-alpha", "base-alpha"
		}, shared.MsgDistinctBases},
	}
	for _, tc := range cases {
		in := purchaseInput("base-alpha")
		tc.mutate(&in)
		_, err := svc.Submit(ctx, adminP, in, "")
		var ve *shared.ValidationError
		require.ErrorAs(t, err, &ve, tc.name)
		require.Equal(t, tc.msg, ve.Message, tc.name)
		require.ErrorIs(t, err, httpx.ErrValidation)
	}
}

func TestSubmitTransferDerivesQuantityFromAssets(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	in := SubmitInput{
		Type:     TypeTransfer,
		BaseID:   "base-alpha",
		Title:    "Vehicle Transfer",
		Priority: PriorityMedium,
		Data: Payload{
			EquipmentType: "vehicles",
			ToBase:        "base-bravo",
			Assets: []AssetRef{
				{ID: "HV-001", Type: "Humvee", Condition: "Good"},
				{ID: "HV-002", Type: "Humvee", Condition: "Excellent"},
			},
		},
	}
	req, err := svc.Submit(context.Background(), logisticsP, in, "")
	require.NoError(t, err)
	require.Equal(t, "base-alpha", req.Data.FromBase)
	require.Equal(t, 2, req.Data.Quantity)
}

func TestSubmitScopeRules(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Submit(ctx, commanderP, purchaseInput("base-bravo"), "")
	require.ErrorIs(t, err, ErrNotPermitted)

	_, err = svc.Submit(ctx, commanderP, purchaseInput("base-alpha"), "")
	require.NoError(t, err)

	assign := purchaseInput("base-alpha")
	assign.Type = TypeAssignment
	_, err = svc.Submit(ctx, logisticsP, assign, "")
	require.ErrorIs(t, err, ErrNotPermitted)
}

func TestSubmitIdempotencyKey(t *testing.T) {
	svc, repo, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Submit(ctx, logisticsP, purchaseInput("base-bravo"), "abc")
	require.NoError(t, err)
	_, err = svc.Submit(ctx, logisticsP, purchaseInput("base-bravo"), "abc")
	require.ErrorIs(t, err, ErrDuplicate)
	require.Len(t, repo.requests, 1)

	repo.failInsert = errors.New("disk full")
	_, err = svc.Submit(ctx, logisticsP, purchaseInput("base-bravo"), "def")
	require.Error(t, err)
	repo.failInsert = nil
	_, err = svc.Submit(ctx, logisticsP, purchaseInput("base-bravo"), "def")
	require.NoError(t, err, "failed submission must release its key")
}

func TestTransitionLifecycleRecordsTrail(t *testing.T) {
	svc, repo, events, metrics := newTestService(t)
	ctx := context.Background()

	req, err := svc.Submit(ctx, logisticsP, purchaseInput("base-alpha"), "")
	require.NoError(t, err)

	req, err = svc.Transition(ctx, commanderP, req.ID, ActionReview, "recommend")
	require.NoError(t, err)
	require.Equal(t, StatusUnderReview, req.Status)

	_, err = svc.Transition(ctx, commanderP, req.ID, ActionApprove, "")
	require.ErrorIs(t, err, ErrNotPermitted)

	req, err = svc.Transition(ctx, adminP, req.ID, ActionApprove, "ok")
	require.NoError(t, err)
	require.Equal(t, StatusApproved, req.Status)
	require.Equal(t, "admin", req.ApprovedBy)

	_, err = svc.Transition(ctx, adminP, req.ID, ActionCancel, "")
	require.ErrorIs(t, err, ErrInvalidTransition)
	require.ErrorIs(t, err, httpx.ErrConflict)

	trail, err := svc.History(ctx, adminP, req.ID)
	require.NoError(t, err)
	require.Len(t, trail, 2)
	require.Equal(t, ActionReview, trail[0].Action)
	require.Equal(t, ActionApprove, trail[1].Action)
	require.Equal(t, []string{"review:pending>under_review", "approve:under_review>approved"}, metrics.seen)
	require.Len(t, events.changed, 3)

	var actions []string
	for _, a := range repo.audits {
		actions = append(actions, a.Action)
	}
	require.Equal(t, []string{"REQUEST_SUBMIT", "REQUEST_REVIEW", "REQUEST_APPROVE"}, actions)
}

func TestTransitionHidesForeignRequestsFromCommander(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()
	req, err := svc.Submit(ctx, logisticsP, purchaseInput("base-bravo"), "")
	require.NoError(t, err)

	_, err = svc.Transition(ctx, commanderP, req.ID, ActionApprove, "")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = svc.Transition(ctx, logisticsP, req.ID, ActionCancel, "")
	require.ErrorIs(t, err, ErrNotPermitted)
}

func TestListAppliesRoleThenQuery(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Submit(ctx, logisticsP, purchaseInput("base-alpha"), "")
	require.NoError(t, err)
	_, err = svc.Submit(ctx, logisticsP, purchaseInput("base-bravo"), "")
	require.NoError(t, err)
	own, err := svc.Submit(ctx, commanderP, purchaseInput("base-alpha"), "")
	require.NoError(t, err)
	_, err = svc.Transition(ctx, commanderP, own.ID, ActionApprove, "")
	require.NoError(t, err)

	all, err := svc.List(ctx, adminP, visibility.Query{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.True(t, !all[0].RequestedAt.Before(all[1].RequestedAt), "newest first")

	mine, err := svc.List(ctx, commanderP, visibility.Query{})
	require.NoError(t, err)
	require.Len(t, mine, 2)

	logistics, err := svc.List(ctx, logisticsP, visibility.Query{})
	require.NoError(t, err)
	require.Len(t, logistics, 2)

	closed, err := svc.List(ctx, commanderP, visibility.Query{Tab: "closed"})
	require.NoError(t, err)
	require.Len(t, closed, 1)

	search, err := svc.List(ctx, adminP, visibility.Query{Search: "m4", BaseID: "base-bravo"})
	require.NoError(t, err)
	require.Len(t, search, 1)
}

func TestCountsByStatus(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()
	a, err := svc.Submit(ctx, logisticsP, purchaseInput("base-alpha"), "")
	require.NoError(t, err)
	_, err = svc.Submit(ctx, logisticsP, purchaseInput("base-alpha"), "")
	require.NoError(t, err)
	_, err = svc.Transition(ctx, adminP, a.ID, ActionReject, "")
	require.NoError(t, err)

	counts, err := svc.Counts(ctx, commanderP, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Equal(t, 1, counts[StatusPending])
	require.Equal(t, 1, counts[StatusRejected])
	require.Equal(t, 0, counts[StatusApproved])
}

func TestGetUnknownRequest(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	_, err := svc.Get(context.Background(), adminP, uuid.New())
	require.ErrorIs(t, err, httpx.ErrNotFound)
}
