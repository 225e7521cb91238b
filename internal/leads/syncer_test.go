package leads

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/patrickwarner/adsync/internal/graph"
	"github.com/patrickwarner/adsync/internal/models"
	"github.com/patrickwarner/adsync/internal/observability"
)

type fakeSource struct {
	leads []graph.Lead
	err   error
}

func (f *fakeSource) Leads(_ context.Context, _, _, _ string) ([]graph.Lead, error) {
	return f.leads, f.err
}

type fakeStore struct {
	stored []models.Lead
	raws   []json.RawMessage
	err    error
}

func (f *fakeStore) Upsert(_ context.Context, lead models.Lead, raw json.RawMessage) error {
	if f.err != nil {
		return f.err
	}
	f.stored = append(f.stored, lead)
	f.raws = append(f.raws, raw)
	return nil
}

var business = models.Business{ID: 3, AdAccountID: "act_1", AccessToken: "tok"}

func TestSyncAd_StoresEveryLead(t *testing.T) {
	source := &fakeSource{leads: []graph.Lead{
		{ID: "l1", FieldData: fields("email", "a@b.co")},
		{ID: "l2", AdID: "ad9"},
	}}
	store := &fakeStore{}
	metrics := observability.NewMockMetricsRegistry()

	n, err := NewSyncer(source, store, zap.NewNop(), metrics).SyncAd(context.Background(), business, "ad1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Len(t, store.stored, 2)
	assert.Equal(t, "ad1", store.stored[0].AdID, "missing ad id falls back to the queried ad")
	assert.Equal(t, "ad9", store.stored[1].AdID)
	assert.Contains(t, string(store.raws[0]), `"a@b.co"`)
	assert.Equal(t, 2.0, metrics.Count("leads_synced"))
}

func TestSyncAd_PermissionDeniedIsSkipped(t *testing.T) {
	source := &fakeSource{err: &graph.APIError{StatusCode: 403, Code: 200, Message: "Requires leads_retrieval permission"}}
	store := &fakeStore{}

	n, err := NewSyncer(source, store, nil, nil).SyncAd(context.Background(), business, "ad1")
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, store.stored)
}

func TestSyncAd_OtherErrorsPropagate(t *testing.T) {
	source := &fakeSource{err: &graph.APIError{StatusCode: 400, Code: 17, Message: "User request limit reached"}}

	_, err := NewSyncer(source, &fakeStore{}, nil, nil).SyncAd(context.Background(), business, "ad1")
	require.Error(t, err)
	assert.True(t, graph.IsRateLimit(err))
}

func TestSyncAd_StoreFailure(t *testing.T) {
	source := &fakeSource{leads: []graph.Lead{{ID: "l1"}, {ID: "l2"}}}
	store := &fakeStore{err: errors.New("tx aborted")}

	n, err := NewSyncer(source, store, nil, nil).SyncAd(context.Background(), business, "ad1")
	require.Error(t, err)
	assert.Zero(t, n)
}
