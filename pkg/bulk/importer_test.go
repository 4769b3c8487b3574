package bulk

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/natserract/harmony/pkg/calllog"
	"github.com/natserract/harmony/pkg/harmony"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeClient succeeds for every key except those listed in reject.
type fakeClient struct {
	reject map[string]bool

	mu       sync.Mutex
	calls    []string
	nextID   atomic.Int64
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (f *fakeClient) record(method string, p harmony.Profile) (*harmony.Result, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		peak := f.peak.Load()
		if n <= peak || f.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)

	key, _ := p.CustomerKey()
	f.mu.Lock()
	f.calls = append(f.calls, method+":"+key)
	f.mu.Unlock()

	id := f.nextID.Add(1)
	if f.reject[key] {
		return nil, &harmony.RemoteError{Kind: harmony.ErrProviderRejected, StatusCode: 400, LogID: id}
	}
	return &harmony.Result{Data: map[string]interface{}(p), StatusCode: 200, LogID: id}, nil
}

func (f *fakeClient) Token(ctx context.Context, force bool) (string, *calllog.Record, error) {
	return "t", nil, nil
}

func (f *fakeClient) TestAPI(ctx context.Context) (*calllog.Record, error) { return nil, nil }

func (f *fakeClient) CreateRecord(ctx context.Context, p harmony.Profile) (*harmony.Result, error) {
	return f.record("create", p)
}

func (f *fakeClient) UpdateRecord(ctx context.Context, p harmony.Profile) (*harmony.Result, error) {
	if _, ok := p.CustomerKey(); !ok {
		return nil, harmony.ErrMissingCustomerKey
	}
	return f.record("update", p)
}

func (f *fakeClient) DeleteRecord(ctx context.Context, key string) (*harmony.Result, error) {
	return nil, nil
}

func (f *fakeClient) RetrieveRecord(ctx context.Context, key string) (*harmony.Result, error) {
	return nil, nil
}

func profiles(keys ...string) []harmony.Profile {
	out := make([]harmony.Profile, len(keys))
	for i, k := range keys {
		out[i] = harmony.Profile{"CustomerKey": k}
	}
	return out
}

func TestImport_CreateContinuesPastFailures(t *testing.T) {
	client := &fakeClient{reject: map[string]bool{"K2": true, "K5": true}}
	importer := NewImporterWithLogger(client, 2, zap.NewNop())

	report, err := importer.Import(context.Background(), profiles("K1", "K2", "K3", "K4", "K5", "K6"), ModeCreate)
	require.NoError(t, err)

	assert.Equal(t, 4, report.Metrics.Succeeded)
	assert.Equal(t, 2, report.Metrics.Failed)
	assert.Equal(t, 6, report.Metrics.Total())
	assert.Len(t, client.calls, 6)
	assert.LessOrEqual(t, client.peak.Load(), int32(2))

	for i, o := range report.Outcomes {
		assert.Equal(t, i, o.Index)
		assert.NotZero(t, o.LogID)
	}

	failures := report.Failures()
	require.Len(t, failures, 2)
	assert.Equal(t, "K2", failures[0].CustomerKey)
	assert.Equal(t, "K5", failures[1].CustomerKey)
	assert.ErrorIs(t, failures[0].Err, harmony.ErrProviderRejected)
}

func TestImport_UpdateMissingKey(t *testing.T) {
	client := &fakeClient{}
	importer := NewImporterWithLogger(client, 0, zap.NewNop())
	assert.Equal(t, DefaultMaxConcurrency, importer.maxConcurrency)

	input := append(profiles("K1"), harmony.Profile{"FirstName": "Ada"})
	report, err := importer.Import(context.Background(), input, ModeUpdate)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Metrics.Succeeded)
	assert.ErrorIs(t, report.Outcomes[1].Err, harmony.ErrMissingCustomerKey)
	assert.Zero(t, report.Outcomes[1].LogID)
	assert.Equal(t, []string{"update:K1"}, client.calls)
}

func TestImport_UnknownMode(t *testing.T) {
	importer := NewImporterWithLogger(&fakeClient{}, 1, zap.NewNop())
	_, err := importer.Import(context.Background(), profiles("K1"), Mode("upsert"))
	assert.Error(t, err)
}

func TestReadProfiles(t *testing.T) {
	got, err := ReadProfiles(strings.NewReader(`[{"CustomerKey":"A"},{"CustomerKey":"B","Tier":"gold"}]`))
	require.NoError(t, err)
	require.Len(t, got, 2)
	key, ok := got[1].CustomerKey()
	assert.True(t, ok)
	assert.Equal(t, "B", key)

	_, err = ReadProfiles(strings.NewReader(``))
	assert.Error(t, err)

	_, err = ReadProfiles(strings.NewReader(`{"CustomerKey":"A"}`))
	assert.Error(t, err)
}
