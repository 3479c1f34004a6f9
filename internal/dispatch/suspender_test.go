package dispatch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	xerrors "github.com/webhook-indexer/internal/errors"
	"github.com/webhook-indexer/internal/helius"
	"github.com/webhook-indexer/internal/models"
	"github.com/webhook-indexer/internal/types"
)

type fakeParamsStore struct {
	params  *models.WebhookParams
	getErr  error
	commits []paramsCommit
}

type paramsCommit struct {
	userID  string
	trimmed *models.WebhookParams
}

func (f *fakeParamsStore) Get(ctx context.Context) (*models.WebhookParams, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.params, nil
}

func (f *fakeParamsStore) CommitSuspension(ctx context.Context, userID string, trimmed *models.WebhookParams) error {
	f.commits = append(f.commits, paramsCommit{userID: userID, trimmed: trimmed})
	return nil
}

type fakeEditor struct {
	edits    []*helius.WebhookConfig
	clusters []types.Cluster
	err      error
}

func (f *fakeEditor) EditWebhook(ctx context.Context, cluster types.Cluster, webhook *helius.WebhookConfig) error {
	if f.err != nil {
		return f.err
	}
	f.edits = append(f.edits, webhook)
	f.clusters = append(f.clusters, cluster)
	return nil
}

type fakeInvalidator struct {
	invalidated []string
	err         error
}

func (f *fakeInvalidator) InvalidateTenant(ctx context.Context, databaseID string) error {
	if f.err != nil {
		return f.err
	}
	f.invalidated = append(f.invalidated, databaseID)
	return nil
}

func watchedParams(addresses ...string) *models.WebhookParams {
	return &models.WebhookParams{
		ID:               "p1",
		TransactionTypes: []string{"TRANSFER"},
		AccountAddresses: addresses,
	}
}

func suspendRule() *models.Setting {
	return &models.Setting{
		ID:         "s1",
		UserID:     "u1",
		DatabaseID: "d1",
		TargetAddr: "addrB",
		Cluster:    types.ClusterMainnet,
	}
}

func TestNewSuspender_Validation(t *testing.T) {
	params := &fakeParamsStore{}
	editor := &fakeEditor{}
	cache := &fakeInvalidator{}

	_, err := NewSuspender(nil, editor, cache)
	assert.Error(t, err)

	_, err = NewSuspender(params, nil, cache)
	assert.Error(t, err)

	_, err = NewSuspender(params, editor, nil)
	assert.Error(t, err)

	s, err := NewSuspender(params, editor, cache)
	require.NoError(t, err)
	assert.NotNil(t, s)
}

func TestSuspend_TrimsOnlyTheTriggeringAddress(t *testing.T) {
	params := &fakeParamsStore{params: watchedParams("addrA", "addrB", "addrC")}
	editor := &fakeEditor{}
	cache := &fakeInvalidator{}

	s, err := NewSuspender(params, editor, cache)
	require.NoError(t, err)

	err = s.Suspend(context.Background(), suspendRule(), "u1")
	require.NoError(t, err)

	require.Len(t, editor.edits, 1)
	assert.Equal(t, []string{"addrA", "addrC"}, editor.edits[0].AccountAddresses)
	assert.Equal(t, []string{"TRANSFER"}, editor.edits[0].TransactionTypes)
	assert.Equal(t, types.ClusterMainnet, editor.clusters[0])

	require.Len(t, params.commits, 1)
	assert.Equal(t, "u1", params.commits[0].userID)
	assert.Equal(t, []string{"addrA", "addrC"}, params.commits[0].trimmed.AccountAddresses)

	assert.Equal(t, []string{"d1"}, cache.invalidated)
}

func TestSuspend_UpstreamRejectionLeavesLocalStateAlone(t *testing.T) {
	params := &fakeParamsStore{params: watchedParams("addrA", "addrB")}
	editor := &fakeEditor{err: xerrors.NewProviderRejectedError(401, "bad secret")}
	cache := &fakeInvalidator{}

	s, err := NewSuspender(params, editor, cache)
	require.NoError(t, err)

	err = s.Suspend(context.Background(), suspendRule(), "u1")
	require.Error(t, err)
	assert.True(t, xerrors.IsProviderRejected(err))

	assert.Empty(t, params.commits)
	assert.Empty(t, cache.invalidated)
	assert.Equal(t, []string{"addrA", "addrB"}, params.params.AccountAddresses)
}

func TestSuspend_VanishedUserStillTrimsWatchList(t *testing.T) {
	params := &fakeParamsStore{params: watchedParams("addrB")}
	editor := &fakeEditor{}
	cache := &fakeInvalidator{}

	s, err := NewSuspender(params, editor, cache)
	require.NoError(t, err)

	err = s.Suspend(context.Background(), suspendRule(), "")
	require.NoError(t, err)

	require.Len(t, params.commits, 1)
	assert.Empty(t, params.commits[0].userID)
	assert.Empty(t, params.commits[0].trimmed.AccountAddresses)
}

func TestSuspend_CacheFailureIsNotFatal(t *testing.T) {
	params := &fakeParamsStore{params: watchedParams("addrB")}
	editor := &fakeEditor{}
	cache := &fakeInvalidator{err: xerrors.NewTransientError("redis down", nil)}

	s, err := NewSuspender(params, editor, cache)
	require.NoError(t, err)

	err = s.Suspend(context.Background(), suspendRule(), "u1")
	assert.NoError(t, err)
	require.Len(t, params.commits, 1)
}

func TestSuspend_ParamsLookupFailurePropagates(t *testing.T) {
	params := &fakeParamsStore{getErr: xerrors.NewTransientError("connection reset", nil)}
	editor := &fakeEditor{}
	cache := &fakeInvalidator{}

	s, err := NewSuspender(params, editor, cache)
	require.NoError(t, err)

	err = s.Suspend(context.Background(), suspendRule(), "u1")
	require.Error(t, err)
	assert.Empty(t, editor.edits)
	assert.Empty(t, params.commits)
}
