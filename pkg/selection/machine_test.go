package selection

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greenledger/ghgstage/pkg/factor"
	"github.com/greenledger/ghgstage/pkg/ghg"
	"github.com/greenledger/ghgstage/pkg/hierarchy"
	"github.com/greenledger/ghgstage/pkg/lookup/fixture"
	"github.com/greenledger/ghgstage/pkg/notify"
)

func newMachine(t *testing.T, scope ghg.Scope) (*Machine, *fixture.Service) {
	t.Helper()
	svc := fixture.New(nil)
	m := New(scope, ghg.GHGProtocol, hierarchy.New(svc, nil), factor.NewResolver(svc, nil))
	require.NoError(t, m.Load(context.Background()))
	return m, svc
}

func TestHappyPath(t *testing.T) {
	ctx := context.Background()
	m, svc := newMachine(t, ghg.Scope1)
	assert.Equal(t, StateEmpty, m.State())
	assert.Equal(t, []string{"Stationary Combustion", "Mobile Combustion"}, m.Options(ghg.LevelMainCategory).Labels())

	require.NoError(t, m.Select(ctx, ghg.LevelMainCategory, "Stationary Combustion"))
	assert.Equal(t, StateMainCategoryChosen, m.State())
	assert.Equal(t, []string{"Submain 1", "Submain 2", "Submain 3"}, m.Options(ghg.LevelSubCategory).Labels())

	require.NoError(t, m.Select(ctx, ghg.LevelSubCategory, "Submain 1"))
	assert.Equal(t, []string{"Natural Gas"}, m.Options(ghg.LevelActivity).Labels())
	assert.False(t, m.CanCalculate())

	require.NoError(t, m.Select(ctx, ghg.LevelActivity, "Natural Gas"))
	assert.Equal(t, StateComplete, m.State())
	path := m.Path()
	assert.True(t, path.Selection1().NotApplicable)
	assert.True(t, path.Selection2().NotApplicable)
	assert.Equal(t, 1, svc.Calls(fixture.OpListSelection2))

	assert.True(t, m.CanCalculate())
	assert.False(t, m.CanAddEntry())
	assert.Equal(t, ghg.Placeholder, m.Display())

	res, err := m.Calculate(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2.1", res.Value.String())
	assert.Equal(t, "501", res.SubcategoryID)
	assert.Equal(t, "2.1", m.Display())
	assert.True(t, m.CanAddEntry())
}

func TestSelectByID(t *testing.T) {
	m, _ := newMachine(t, ghg.Scope1)
	require.NoError(t, m.Select(context.Background(), ghg.LevelMainCategory, "11"))
	assert.Equal(t, "Mobile Combustion", m.Path().MainCategory().Label)
}

func TestSentinelAutoAdvanceQueriesNextLevelWithSentinel(t *testing.T) {
	ctx := context.Background()
	svc := fixture.New(nil)
	src := &recordingSource{inner: hierarchy.New(svc, nil)}
	m := New(ghg.Scope1, ghg.GHGProtocol, src, factor.NewResolver(svc, nil))
	require.NoError(t, m.Load(ctx))
	require.NoError(t, m.Select(ctx, ghg.LevelMainCategory, "10"))
	require.NoError(t, m.Select(ctx, ghg.LevelSubCategory, "Submain 1"))
	require.NoError(t, m.Select(ctx, ghg.LevelActivity, "Natural Gas"))

	last := src.paths[len(src.paths)-1]
	assert.Equal(t, ghg.LevelSelection2, src.levels[len(src.levels)-1])
	assert.True(t, last.Selection1().NotApplicable)
}

func TestSentinelStopsAtRealOptions(t *testing.T) {
	ctx := context.Background()
	m, _ := newMachine(t, ghg.Scope1)
	require.NoError(t, m.Select(ctx, ghg.LevelMainCategory, "10"))
	require.NoError(t, m.Select(ctx, ghg.LevelSubCategory, "Submain 2"))
	require.NoError(t, m.Select(ctx, ghg.LevelActivity, "Diesel"))
	assert.Equal(t, StateActivityChosen, m.State())
	assert.Equal(t, []string{"Litres", "Tonnes"}, m.Options(ghg.LevelSelection1).Labels())

	require.NoError(t, m.Select(ctx, ghg.LevelSelection1, "Litres"))
	assert.Equal(t, StateComplete, m.State())

	require.NoError(t, m.Select(ctx, ghg.LevelSelection1, "Tonnes"))
	assert.Equal(t, StateSelection1Chosen, m.State())
	require.NoError(t, m.Select(ctx, ghg.LevelSelection2, "Net CV"))
	res, err := m.Calculate(ctx)
	require.NoError(t, err)
	assert.Equal(t, "504", res.SubcategoryID)
}

func TestEmptyOptions(t *testing.T) {
	ctx := context.Background()
	m, _ := newMachine(t, ghg.Scope1)
	require.NoError(t, m.Select(ctx, ghg.LevelMainCategory, "10"))
	require.NoError(t, m.Select(ctx, ghg.LevelSubCategory, "Submain 3"))

	assert.Equal(t, StateSubCategoryChosen, m.State())
	assert.NotNil(t, m.Options(ghg.LevelActivity))
	assert.Empty(t, m.Options(ghg.LevelActivity))
	assert.False(t, m.CanCalculate())

	_, err := m.Calculate(ctx)
	assert.ErrorIs(t, err, ErrIncomplete)
}

func TestNotAvailableFactor(t *testing.T) {
	ctx := context.Background()
	m, _ := newMachine(t, ghg.Scope1)
	require.NoError(t, m.Select(ctx, ghg.LevelMainCategory, "10"))
	require.NoError(t, m.Select(ctx, ghg.LevelSubCategory, "Submain 2"))
	require.NoError(t, m.Select(ctx, ghg.LevelActivity, "Biogas"))

	res, err := m.Calculate(ctx)
	require.NoError(t, err)
	assert.False(t, res.Available)
	assert.Equal(t, "--.--", m.Display())
	assert.False(t, m.CanAddEntry())
	assert.True(t, m.CanCalculate())
}

func TestIdempotentReResolution(t *testing.T) {
	ctx := context.Background()
	m, svc := newMachine(t, ghg.Scope2)
	require.NoError(t, m.Select(ctx, ghg.LevelMainCategory, "20"))
	require.NoError(t, m.Select(ctx, ghg.LevelSubCategory, "Grid"))
	require.NoError(t, m.Select(ctx, ghg.LevelActivity, "UK Grid"))

	first, err := m.Calculate(ctx)
	require.NoError(t, err)
	second, err := m.Calculate(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.SubcategoryID, second.SubcategoryID)
	assert.True(t, first.Value.Equal(second.Value))
	assert.Equal(t, 2, svc.Calls(fixture.OpGetFactor))
}

func TestDownstreamInvalidation(t *testing.T) {
	ctx := context.Background()
	for _, level := range ghg.Levels {
		t.Run(level.String(), func(t *testing.T) {
			m, _ := newMachine(t, ghg.Scope1)
			require.NoError(t, m.Select(ctx, ghg.LevelMainCategory, "10"))
			require.NoError(t, m.Select(ctx, ghg.LevelSubCategory, "Submain 2"))
			require.NoError(t, m.Select(ctx, ghg.LevelActivity, "Diesel"))
			require.NoError(t, m.Select(ctx, ghg.LevelSelection1, "Tonnes"))
			require.NoError(t, m.Select(ctx, ghg.LevelSelection2, "Gross CV"))
			_, err := m.Calculate(ctx)
			require.NoError(t, err)
			require.True(t, m.CanAddEntry())

			value := m.Path().Choice(level).ID
			require.NoError(t, m.Select(ctx, level, value))

			path := m.Path()
			for _, below := range ghg.Levels[level+1:] {
				assert.True(t, path.Choice(below).IsZero(), "%s should be cleared", below)
			}
			_, ok := m.Result()
			assert.False(t, ok)
			assert.False(t, m.CanAddEntry())
		})
	}
}

func TestSelectErrors(t *testing.T) {
	ctx := context.Background()
	m, _ := newMachine(t, ghg.Scope1)

	err := m.Select(ctx, ghg.LevelActivity, "Natural Gas")
	assert.ErrorIs(t, err, ErrLevelNotReady)

	err = m.Select(ctx, ghg.LevelMainCategory, "Purchased Electricity")
	assert.ErrorIs(t, err, ErrUnknownOption)
}

func TestSentinelDistinctFromLiteralLabel(t *testing.T) {
	ctx := context.Background()
	literal := ghg.Options{ghg.Named("N/A")}
	src := staticSource{
		ghg.LevelMainCategory: {{ID: "1", Label: "Main"}},
		ghg.LevelSubCategory:  {ghg.Named("Sub")},
		ghg.LevelActivity:     literal,
	}
	m := New(ghg.Scope1, ghg.GHGProtocol, src, nil)
	require.NoError(t, m.Load(ctx))
	require.NoError(t, m.Select(ctx, ghg.LevelMainCategory, "1"))
	require.NoError(t, m.Select(ctx, ghg.LevelSubCategory, "Sub"))
	assert.Equal(t, StateSubCategoryChosen, m.State())

	require.NoError(t, m.Select(ctx, ghg.LevelActivity, "N/A"))
	assert.False(t, m.Path().Activity().NotApplicable)
}

func TestStaleFetchDiscarded(t *testing.T) {
	ctx := context.Background()
	svc := fixture.New(nil)
	src := &blockingSource{
		inner:   hierarchy.New(svc, nil),
		blockID: "10",
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	m := New(ghg.Scope1, ghg.GHGProtocol, src, factor.NewResolver(svc, nil))
	require.NoError(t, m.Load(ctx))

	done := make(chan error, 1)
	go func() { done <- m.Select(ctx, ghg.LevelMainCategory, "10") }()
	<-src.started
	assert.True(t, m.Loading(ghg.LevelSubCategory))

	require.NoError(t, m.Select(ctx, ghg.LevelMainCategory, "11"))
	close(src.release)
	require.NoError(t, <-done)

	assert.True(t, src.cancelled, "superseded fetch should be cancelled")
	assert.Equal(t, "11", m.Path().MainCategory().ID)
	assert.Equal(t, []string{"Company Vehicles"}, m.Options(ghg.LevelSubCategory).Labels())
	assert.False(t, m.Loading(ghg.LevelSubCategory))
}

func TestReselectWhileSupersededFetchInFlight(t *testing.T) {
	ctx := context.Background()
	svc := &lateHierarchy{Service: fixture.New(nil), started: make(chan struct{}), release: make(chan struct{})}
	rec := &notify.Recorder{}
	m := New(ghg.Scope1, ghg.GHGProtocol, hierarchy.New(svc, rec), factor.NewResolver(svc, rec))
	require.NoError(t, m.Load(ctx))

	first := make(chan error, 1)
	go func() { first <- m.Select(ctx, ghg.LevelMainCategory, "10") }()
	<-svc.started
	require.NoError(t, m.Select(ctx, ghg.LevelMainCategory, "11"))
	require.NoError(t, <-first)

	again := make(chan error, 1)
	go func() { again <- m.Select(ctx, ghg.LevelMainCategory, "10") }()
	time.Sleep(20 * time.Millisecond)
	close(svc.release)
	require.NoError(t, <-again)

	assert.Equal(t, "10", m.Path().MainCategory().ID)
	assert.Equal(t, []string{"Submain 1", "Submain 2", "Submain 3"}, m.Options(ghg.LevelSubCategory).Labels())
	assert.Equal(t, 0, rec.Count(notify.LevelWarning))
}

func TestStaleCalculationDropped(t *testing.T) {
	ctx := context.Background()
	svc := fixture.New(nil)
	res := &blockingResolver{
		inner:   factor.NewResolver(svc, notify.Nop{}),
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	m := New(ghg.Scope1, ghg.GHGProtocol, hierarchy.New(svc, nil), res)
	require.NoError(t, m.Load(ctx))
	require.NoError(t, m.Select(ctx, ghg.LevelMainCategory, "11"))
	require.NoError(t, m.Select(ctx, ghg.LevelSubCategory, "Company Vehicles"))
	require.NoError(t, m.Select(ctx, ghg.LevelActivity, "Petrol Car"))
	require.NoError(t, m.Select(ctx, ghg.LevelSelection1, "Small"))

	type outcome struct {
		res ghg.FactorResult
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		r, err := m.Calculate(ctx)
		done <- outcome{r, err}
	}()
	<-res.started
	assert.True(t, m.Calculating())
	assert.False(t, m.CanCalculate())

	require.NoError(t, m.Select(ctx, ghg.LevelSelection1, "Large"))
	close(res.release)
	out := <-done
	assert.ErrorIs(t, out.err, ErrStale)

	_, ok := m.Result()
	assert.False(t, ok)
	assert.False(t, m.Calculating())
	assert.True(t, m.CanCalculate())
}

type recordingSource struct {
	inner  OptionSource
	levels []ghg.Level
	paths  []ghg.Path
}

func (r *recordingSource) Children(ctx context.Context, level ghg.Level, path ghg.Path) ghg.Options {
	r.levels = append(r.levels, level)
	r.paths = append(r.paths, path)
	return r.inner.Children(ctx, level, path)
}

type staticSource map[ghg.Level]ghg.Options

func (s staticSource) Children(_ context.Context, level ghg.Level, _ ghg.Path) ghg.Options {
	return s[level]
}

// blockingSource holds the subcategory fetch of one main category until
// release is closed, then answers anyway as a slow server would.
type blockingSource struct {
	inner     OptionSource
	blockID   string
	started   chan struct{}
	release   chan struct{}
	cancelled bool
}

func (b *blockingSource) Children(ctx context.Context, level ghg.Level, path ghg.Path) ghg.Options {
	if level == ghg.LevelSubCategory && path.MainCategory().ID == b.blockID {
		close(b.started)
		<-b.release
		b.cancelled = errors.Is(ctx.Err(), context.Canceled)
		return b.inner.Children(context.Background(), level, path)
	}
	return b.inner.Children(ctx, level, path)
}

type blockingResolver struct {
	inner   FactorSource
	started chan struct{}
	release chan struct{}
}

func (b *blockingResolver) Resolve(ctx context.Context, path ghg.Path) ghg.FactorResult {
	close(b.started)
	<-b.release
	return b.inner.Resolve(context.Background(), path)
}

// lateHierarchy holds the first subcategory fetch of main category "10"
// until release is closed, then fails if that request was cancelled.
type lateHierarchy struct {
	*fixture.Service
	once    sync.Once
	started chan struct{}
	release chan struct{}
}

func (h *lateHierarchy) ListSubCategories(ctx context.Context, mainCategoryID string) ([]ghg.Option, error) {
	first := false
	if mainCategoryID == "10" {
		h.once.Do(func() { first = true })
	}
	if first {
		close(h.started)
		<-h.release
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
	return h.Service.ListSubCategories(ctx, mainCategoryID)
}
