package itbi

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errNotLoaded = errors.New("not loaded")

type fakeStore struct {
	mu   sync.Mutex
	snap *Snapshot
}

func (s *fakeStore) Replace(snapshot *Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = snapshot
}

func (s *fakeStore) Current() (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snap == nil {
		return nil, errNotLoaded
	}
	return s.snap, nil
}

type fakeSource struct {
	mu       sync.Mutex
	calls    int
	features []RawFeature
	err      error
	block    chan struct{}
	ctxErr   error
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) FetchAll(ctx context.Context) ([]RawFeature, error) {
	f.mu.Lock()
	f.calls++
	block := f.block
	f.mu.Unlock()

	if block != nil {
		<-block
	}
	f.mu.Lock()
	f.ctxErr = ctx.Err()
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.features, nil
}

func newTestService(src *fakeSource) (*Service, *fakeStore) {
	st := &fakeStore{}
	svc := NewService(st, src, Options{Now: func() time.Time { return fixedNow }})
	return svc, st
}

func TestService_EndToEndWeightedPrice(t *testing.T) {
	src := &fakeSource{features: []RawFeature{
		{"street": "Rua X", "year_month": "2024-03", "total_transaction_value": 300000.0, "total_built_area_m2": 100.0, "total_transactions": 1.0, "neighborhood": "Centro"},
		{"street": "Rua X", "year_month": "2024-03", "total_transaction_value": 600000.0, "total_built_area_m2": 300.0, "total_transactions": 2.0, "neighborhood": "Centro"},
		{"street": "Rua Y", "year_month": "2024-03", "total_transaction_value": 100000.0, "total_built_area_m2": 10.0},
		{"street": "", "year_month": "2024-03"},
	}}
	svc, _ := newTestService(src)

	snap, err := svc.Refresh(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, snap.ID)
	assert.Equal(t, 4, snap.Fetched)
	assert.Equal(t, 3, snap.Stats.Kept)
	assert.Equal(t, 1, snap.Stats.MissingAddress)

	report, err := svc.Report(UseResidential, "rua x")
	require.NoError(t, err)
	assert.Equal(t, snap.ID, report.SnapshotID)
	assert.Equal(t, 2, report.Matched)
	assert.Equal(t, "Centro", report.Neighborhood)
	require.Len(t, report.Series, DefaultWindowMonths)

	march := pointFor(t, report.Series, "2024-03")
	require.NotNil(t, march.WeightedPrice)
	assert.Equal(t, 2250.0, *march.WeightedPrice)
	assert.Equal(t, 3, march.TransactionTotal)

	assert.Equal(t, 2250.0, report.Insights.LatestPrice)
	assert.Equal(t, 3, report.Insights.TotalTransactions)
	assert.Equal(t, DirectionFlat, report.Insights.Trend.Direction)
}

func TestService_FiltersUseClassAndParking(t *testing.T) {
	src := &fakeSource{features: []RawFeature{
		{"street": "Rua Z", "year_month": "2024-01", "construction_type": "RESIDENCIAL VERTICAL", "total_transactions": 2.0},
		{"street": "Rua Z", "year_month": "2024-01", "construction_type": "COMERCIAL VERTICAL", "total_transactions": 5.0},
		{"street": "Rua Z", "year_month": "2024-01", "construction_type": "RESIDENCIAL VERTICAL", "principais_tipologias": "VAGA DE GARAGEM", "total_transactions": 9.0},
	}}
	svc, _ := newTestService(src)
	_, err := svc.Refresh(context.Background())
	require.NoError(t, err)

	residential, err := svc.Report(UseResidential, "rua z")
	require.NoError(t, err)
	assert.Equal(t, 2, residential.Insights.TotalTransactions)

	commercial, err := svc.Report(UseNonResidential, "rua z")
	require.NoError(t, err)
	assert.Equal(t, 5, commercial.Insights.TotalTransactions)

	records, err := svc.Records(UseResidential, "")
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestService_ReportNoMatches(t *testing.T) {
	src := &fakeSource{features: []RawFeature{{"street": "Rua A", "year_month": "2024-01"}}}
	svc, _ := newTestService(src)
	_, err := svc.Refresh(context.Background())
	require.NoError(t, err)

	_, err = svc.Report(UseResidential, "rua b")
	assert.ErrorIs(t, err, ErrNoMatches)
}

func TestService_Suggest(t *testing.T) {
	src := &fakeSource{features: []RawFeature{
		{"street": "Rua São João", "year_month": "2024-01", "neighborhood": "Centro"},
		{"street": "Rua São João", "year_month": "2024-02", "neighborhood": "Centro"},
		{"street": "Av. São João", "year_month": "2024-01", "neighborhood": "República"},
	}}
	svc, _ := newTestService(src)
	_, err := svc.Refresh(context.Background())
	require.NoError(t, err)

	got, err := svc.Suggest(UseResidential, "sao jo")
	require.NoError(t, err)
	assert.Equal(t, []Suggestion{
		{Address: "Rua São João", Neighborhood: "Centro"},
		{Address: "Av. São João", Neighborhood: "República"},
	}, got)
}

func TestService_FailedRefreshKeepsPreviousSnapshot(t *testing.T) {
	src := &fakeSource{features: []RawFeature{{"street": "Rua A", "year_month": "2024-01"}}}
	svc, st := newTestService(src)

	first, err := svc.Refresh(context.Background())
	require.NoError(t, err)

	src.err = errors.New("upstream down")
	_, err = svc.Refresh(context.Background())
	require.Error(t, err)

	current, err := st.Current()
	require.NoError(t, err)
	assert.Equal(t, first.ID, current.ID)

	status := svc.Status()
	assert.True(t, status.Loaded)
	assert.Equal(t, first.ID, status.SnapshotID)
	assert.Equal(t, "upstream down", status.LastError)
	assert.EqualError(t, svc.LastError(), "upstream down")
}

func TestService_QueriesBeforeLoadSurfaceLastError(t *testing.T) {
	src := &fakeSource{err: errors.New("timeout")}
	svc, _ := newTestService(src)

	_, err := svc.Refresh(context.Background())
	require.Error(t, err)

	_, err = svc.Report(UseResidential, "rua a")
	require.ErrorIs(t, err, errNotLoaded)
	assert.Contains(t, err.Error(), "timeout")

	assert.False(t, svc.Status().Loaded)
}

func TestService_ConcurrentRefreshSharesOneFetch(t *testing.T) {
	src := &fakeSource{
		features: []RawFeature{{"street": "Rua A", "year_month": "2024-01"}},
		block:    make(chan struct{}),
	}
	svc, _ := newTestService(src)

	var wg sync.WaitGroup
	ids := make([]string, 3)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			snap, err := svc.Refresh(context.Background())
			if err == nil {
				ids[i] = snap.ID
			}
		}(i)
	}

	// Let the goroutines pile onto the in-flight load before releasing it.
	require.Eventually(t, func() bool {
		src.mu.Lock()
		defer src.mu.Unlock()
		return src.calls == 1
	}, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(src.block)
	wg.Wait()

	src.mu.Lock()
	calls := src.calls
	src.mu.Unlock()
	assert.Equal(t, 1, calls)
	assert.NotEmpty(t, ids[0])
	assert.Equal(t, ids[0], ids[1])
	assert.Equal(t, ids[0], ids[2])
}

func TestService_CanceledCallerDoesNotAbortSharedRefresh(t *testing.T) {
	src := &fakeSource{
		features: []RawFeature{{"street": "Rua A", "year_month": "2024-01"}},
		block:    make(chan struct{}),
	}
	svc, st := newTestService(src)

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := svc.Refresh(firstCtx)
		firstErr <- err
	}()

	require.Eventually(t, func() bool {
		src.mu.Lock()
		defer src.mu.Unlock()
		return src.calls == 1
	}, time.Second, 5*time.Millisecond)

	type result struct {
		snap *Snapshot
		err  error
	}
	second := make(chan result, 1)
	go func() {
		snap, err := svc.Refresh(context.Background())
		second <- result{snap, err}
	}()
	time.Sleep(50 * time.Millisecond)

	// The first caller gives up; the load it started keeps going.
	cancelFirst()
	require.ErrorIs(t, <-firstErr, context.Canceled)

	close(src.block)
	res := <-second
	require.NoError(t, res.err)
	require.NotNil(t, res.snap)

	src.mu.Lock()
	assert.Equal(t, 1, src.calls)
	assert.NoError(t, src.ctxErr)
	src.mu.Unlock()

	current, err := st.Current()
	require.NoError(t, err)
	assert.Equal(t, res.snap.ID, current.ID)
}
