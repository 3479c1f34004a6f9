package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	xerrors "github.com/webhook-indexer/internal/errors"
	"github.com/webhook-indexer/internal/models"
	"github.com/webhook-indexer/internal/retry"
	"github.com/webhook-indexer/internal/storage"
	"github.com/webhook-indexer/internal/types"
)

type fakeSnapshots struct {
	snapshot *storage.Snapshot
	err      error
}

func (f *fakeSnapshots) Load(ctx context.Context) (*storage.Snapshot, error) {
	return f.snapshot, f.err
}

type fakeMeter struct {
	mu      sync.Mutex
	credits map[string]int64
	charges map[string]int
	missing map[string]bool
}

func newFakeMeter() *fakeMeter {
	return &fakeMeter{
		credits: make(map[string]int64),
		charges: make(map[string]int),
		missing: make(map[string]bool),
	}
}

func (f *fakeMeter) Charge(ctx context.Context, userID, databaseID string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.charges[userID]++
	if f.missing[userID] {
		return nil, storage.ErrUserNotFound
	}
	if f.credits[userID] > 0 {
		f.credits[userID]--
	}
	return &models.User{ID: userID, Credits: f.credits[userID]}, nil
}

func (f *fakeMeter) chargeCount(userID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.charges[userID]
}

func (f *fakeMeter) balance(userID string) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.credits[userID]
}

type fakePool struct {
	mu       sync.Mutex
	acquired []string
	err      error
}

func (f *fakePool) Acquire(ctx context.Context, cfg *models.DatabaseConfig) (*storage.TenantClient, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}
	f.acquired = append(f.acquired, cfg.ID)
	return storage.NewTenantClient(cfg.ID, nil, nil), nil
}

type fakeSuspender struct {
	mu    sync.Mutex
	calls []suspendCall
	err   error
}

type suspendCall struct {
	settingID string
	userID    string
}

func (f *fakeSuspender) Suspend(ctx context.Context, rule *models.Setting, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return f.err
	}
	f.calls = append(f.calls, suspendCall{settingID: rule.ID, userID: userID})
	return nil
}

type fakeIngestor struct {
	mu     sync.Mutex
	calls  []string
	errFor map[string]error
}

func newFakeIngestor() *fakeIngestor {
	return &fakeIngestor{errFor: make(map[string]error)}
}

func (f *fakeIngestor) Ingest(ctx context.Context, client *storage.TenantClient, kind types.EventKind, event *models.WebhookEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.errFor[client.DatabaseID]; err != nil {
		return err
	}
	f.calls = append(f.calls, client.DatabaseID)
	return nil
}

func (f *fakeIngestor) ingestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type dispatchFixture struct {
	snapshots *fakeSnapshots
	meter     *fakeMeter
	pool      *fakePool
	suspender *fakeSuspender
	ingestor  *fakeIngestor
}

func newDispatchFixture(snapshot *storage.Snapshot) *dispatchFixture {
	return &dispatchFixture{
		snapshots: &fakeSnapshots{snapshot: snapshot},
		meter:     newFakeMeter(),
		pool:      &fakePool{},
		suspender: &fakeSuspender{},
		ingestor:  newFakeIngestor(),
	}
}

func (f *dispatchFixture) dispatcher(t *testing.T) *Dispatcher {
	t.Helper()

	d, err := NewDispatcher(&DispatcherConfig{
		Snapshots:   f.snapshots,
		Meter:       f.meter,
		Pool:        f.pool,
		Suspender:   f.suspender,
		Ingestor:    f.ingestor,
		UnitTimeout: 5 * time.Second,
		Retry:       &retry.Config{MaxAttempts: 2, Delay: time.Millisecond},
	})
	require.NoError(t, err)
	return d
}

func transferEvent(accounts ...string) *models.WebhookEvent {
	entries := make([]models.AccountEntry, 0, len(accounts))
	for _, a := range accounts {
		entries = append(entries, models.AccountEntry{Account: a, NativeBalanceChange: -5000})
	}
	return &models.WebhookEvent{
		Type:         types.EventTransfer,
		Slot:         311987654,
		Signature:    "5KtP3vbFTcQ",
		FeePayer:     "feePayerAddr",
		Fee:          5000,
		AccountData:  entries,
		Instructions: []json.RawMessage{json.RawMessage(`{"programId":"11111111111111111111111111111111"}`)},
	}
}

func snapshotWith(settings []*models.Setting, users []*models.User) *storage.Snapshot {
	seen := make(map[string]bool)
	var databases []*models.DatabaseConfig
	for _, s := range settings {
		if !seen[s.DatabaseID] {
			seen[s.DatabaseID] = true
			databases = append(databases, &models.DatabaseConfig{ID: s.DatabaseID, Name: "db_" + s.DatabaseID})
		}
	}
	return storage.NewSnapshot(databases, settings, users)
}

func TestNewDispatcher_Validation(t *testing.T) {
	fix := newDispatchFixture(snapshotWith(nil, nil))

	tests := []struct {
		name   string
		mutate func(cfg *DispatcherConfig)
	}{
		{"nil snapshots", func(cfg *DispatcherConfig) { cfg.Snapshots = nil }},
		{"nil meter", func(cfg *DispatcherConfig) { cfg.Meter = nil }},
		{"nil pool", func(cfg *DispatcherConfig) { cfg.Pool = nil }},
		{"nil suspender", func(cfg *DispatcherConfig) { cfg.Suspender = nil }},
		{"nil ingestor", func(cfg *DispatcherConfig) { cfg.Ingestor = nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &DispatcherConfig{
				Snapshots: fix.snapshots,
				Meter:     fix.meter,
				Pool:      fix.pool,
				Suspender: fix.suspender,
				Ingestor:  fix.ingestor,
			}
			tt.mutate(cfg)
			_, err := NewDispatcher(cfg)
			assert.Error(t, err)
		})
	}
}

func TestDispatch_NoAccountDataIsNoOp(t *testing.T) {
	fix := newDispatchFixture(snapshotWith(
		[]*models.Setting{{ID: "s1", UserID: "u1", DatabaseID: "d1", TargetAddr: "addrA"}},
		[]*models.User{{ID: "u1", Credits: 500}},
	))
	d := fix.dispatcher(t)

	event := transferEvent()
	event.AccountData = nil

	summary := d.Dispatch(context.Background(), event)

	assert.Equal(t, 0, summary.Matched)
	assert.Empty(t, summary.Outcomes)
	assert.Equal(t, 0, fix.meter.chargeCount("u1"))
}

func TestDispatch_OnlyMatchingRulesRun(t *testing.T) {
	fix := newDispatchFixture(snapshotWith(
		[]*models.Setting{
			{ID: "s1", UserID: "u1", DatabaseID: "d1", TargetAddr: "addrA"},
			{ID: "s2", UserID: "u2", DatabaseID: "d2", TargetAddr: "addrC"},
		},
		[]*models.User{{ID: "u1", Credits: 500}, {ID: "u2", Credits: 500}},
	))
	fix.meter.credits["u1"] = 5
	fix.meter.credits["u2"] = 5
	d := fix.dispatcher(t)

	summary := d.Dispatch(context.Background(), transferEvent("addrA", "addrB"))

	assert.Equal(t, 1, summary.Matched)
	assert.Equal(t, 1, summary.Ingested())
	assert.Equal(t, 1, fix.meter.chargeCount("u1"))
	assert.Equal(t, int64(4), fix.meter.balance("u1"))
	assert.Equal(t, 0, fix.meter.chargeCount("u2"))
	assert.Equal(t, int64(5), fix.meter.balance("u2"))
	assert.Equal(t, []string{"d1"}, fix.pool.acquired)
}

func TestDispatch_LowBalanceSuspends(t *testing.T) {
	fix := newDispatchFixture(snapshotWith(
		[]*models.Setting{{ID: "s1", UserID: "u1", DatabaseID: "d1", TargetAddr: "addrA"}},
		[]*models.User{{ID: "u1", Credits: 101}},
	))
	fix.meter.credits["u1"] = 101 // charge drops the balance to the suspension mark
	d := fix.dispatcher(t)

	summary := d.Dispatch(context.Background(), transferEvent("addrA"))

	require.Len(t, summary.Outcomes, 1)
	assert.Equal(t, StatusSuspended, summary.Outcomes[0].Status)
	require.Len(t, fix.suspender.calls, 1)
	assert.Equal(t, suspendCall{settingID: "s1", userID: "u1"}, fix.suspender.calls[0])
	assert.Equal(t, 0, fix.ingestor.ingestCount())
}

func TestDispatch_VanishedUserSuspendsWithoutZeroing(t *testing.T) {
	fix := newDispatchFixture(snapshotWith(
		[]*models.Setting{{ID: "s1", UserID: "u1", DatabaseID: "d1", TargetAddr: "addrA"}},
		[]*models.User{{ID: "u1", Credits: 500}},
	))
	fix.meter.missing["u1"] = true
	d := fix.dispatcher(t)

	summary := d.Dispatch(context.Background(), transferEvent("addrA"))

	require.Len(t, summary.Outcomes, 1)
	assert.Equal(t, StatusSuspended, summary.Outcomes[0].Status)
	require.Len(t, fix.suspender.calls, 1)
	assert.Empty(t, fix.suspender.calls[0].userID)
}

func TestDispatch_SuspendFailureReportsFailed(t *testing.T) {
	fix := newDispatchFixture(snapshotWith(
		[]*models.Setting{{ID: "s1", UserID: "u1", DatabaseID: "d1", TargetAddr: "addrA"}},
		[]*models.User{{ID: "u1", Credits: 50}},
	))
	fix.meter.credits["u1"] = 50
	fix.suspender.err = xerrors.NewProviderRejectedError(403, "forbidden")
	d := fix.dispatcher(t)

	summary := d.Dispatch(context.Background(), transferEvent("addrA"))

	require.Len(t, summary.Outcomes, 1)
	assert.Equal(t, StatusFailed, summary.Outcomes[0].Status)
	assert.Equal(t, 0, fix.ingestor.ingestCount())
}

func TestDispatch_UnitFailuresAreIsolated(t *testing.T) {
	fix := newDispatchFixture(snapshotWith(
		[]*models.Setting{
			{ID: "s1", UserID: "u1", DatabaseID: "d1", TargetAddr: "addrA"},
			{ID: "s2", UserID: "u2", DatabaseID: "d2", TargetAddr: "addrB"},
		},
		[]*models.User{{ID: "u1", Credits: 500}, {ID: "u2", Credits: 500}},
	))
	fix.meter.credits["u1"] = 500
	fix.meter.credits["u2"] = 500
	fix.ingestor.errFor["d1"] = fmt.Errorf("disk full")
	d := fix.dispatcher(t)

	summary := d.Dispatch(context.Background(), transferEvent("addrA", "addrB"))

	assert.Equal(t, 2, summary.Matched)
	assert.Equal(t, 1, summary.Failed())
	assert.Equal(t, 1, summary.Ingested())
	assert.Equal(t, []string{"d2"}, fix.ingestor.calls)
}

func TestDispatch_DataErrorSkipsUnit(t *testing.T) {
	fix := newDispatchFixture(snapshotWith(
		[]*models.Setting{{ID: "s1", UserID: "u1", DatabaseID: "d1", TargetAddr: "addrA"}},
		[]*models.User{{ID: "u1", Credits: 500}},
	))
	fix.meter.credits["u1"] = 500
	fix.ingestor.errFor["d1"] = xerrors.NewDataError("MISSING_FIELD", "transfer event missing signature")
	d := fix.dispatcher(t)

	summary := d.Dispatch(context.Background(), transferEvent("addrA"))

	require.Len(t, summary.Outcomes, 1)
	assert.Equal(t, StatusSkipped, summary.Outcomes[0].Status)
	assert.Nil(t, summary.Outcomes[0].Err)
}

func TestDispatch_UserMissingFromSnapshotSkips(t *testing.T) {
	fix := newDispatchFixture(snapshotWith(
		[]*models.Setting{{ID: "s1", UserID: "ghost", DatabaseID: "d1", TargetAddr: "addrA"}},
		nil,
	))
	d := fix.dispatcher(t)

	summary := d.Dispatch(context.Background(), transferEvent("addrA"))

	require.Len(t, summary.Outcomes, 1)
	assert.Equal(t, StatusSkipped, summary.Outcomes[0].Status)
	assert.Equal(t, 0, fix.meter.chargeCount("ghost"))
	assert.Empty(t, fix.suspender.calls)
}

func TestDispatch_SnapshotLoadFailureDropsEvent(t *testing.T) {
	fix := newDispatchFixture(nil)
	fix.snapshots.err = fmt.Errorf("connection refused")
	d := fix.dispatcher(t)

	summary := d.Dispatch(context.Background(), transferEvent("addrA"))

	assert.Equal(t, 0, summary.Matched)
	assert.Empty(t, summary.Outcomes)
}

func TestDispatch_TransientAcquireIsRetried(t *testing.T) {
	fix := newDispatchFixture(snapshotWith(
		[]*models.Setting{{ID: "s1", UserID: "u1", DatabaseID: "d1", TargetAddr: "addrA"}},
		[]*models.User{{ID: "u1", Credits: 500}},
	))
	fix.meter.credits["u1"] = 500
	fix.pool.err = xerrors.NewTransientError("tenant server unreachable", nil)
	d := fix.dispatcher(t)

	summary := d.Dispatch(context.Background(), transferEvent("addrA"))

	require.Len(t, summary.Outcomes, 1)
	assert.Equal(t, StatusFailed, summary.Outcomes[0].Status)
	assert.Error(t, summary.Outcomes[0].Err)
}

func TestDispatch_IngestionCountMatchesMatchingRules(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	addrGen := gen.OneConstOf("addrA", "addrB", "addrC", "addrD", "addrE", "addrF")

	properties.Property("one ingestion per matching rule", prop.ForAll(
		func(ruleAddrs []string, eventAddrs []string) bool {
			settings := make([]*models.Setting, len(ruleAddrs))
			users := make([]*models.User, len(ruleAddrs))
			for i, addr := range ruleAddrs {
				settings[i] = &models.Setting{
					ID:         fmt.Sprintf("s%d", i),
					UserID:     fmt.Sprintf("u%d", i),
					DatabaseID: fmt.Sprintf("d%d", i),
					TargetAddr: addr,
				}
				users[i] = &models.User{ID: fmt.Sprintf("u%d", i), Credits: 10_000}
			}

			fix := newDispatchFixture(snapshotWith(settings, users))
			for _, u := range users {
				fix.meter.credits[u.ID] = 10_000
			}

			d, err := NewDispatcher(&DispatcherConfig{
				Snapshots: fix.snapshots,
				Meter:     fix.meter,
				Pool:      fix.pool,
				Suspender: fix.suspender,
				Ingestor:  fix.ingestor,
				Retry:     &retry.Config{MaxAttempts: 1},
			})
			if err != nil {
				return false
			}

			summary := d.Dispatch(context.Background(), transferEvent(eventAddrs...))

			touched := make(map[string]bool, len(eventAddrs))
			for _, a := range eventAddrs {
				touched[a] = true
			}
			expected := 0
			for _, s := range settings {
				if touched[s.TargetAddr] {
					expected++
				}
			}

			return summary.Matched == expected && fix.ingestor.ingestCount() == expected
		},
		gen.SliceOf(addrGen),
		gen.SliceOf(addrGen),
	))

	properties.TestingRun(t)
}
