package hierarchy

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greenledger/ghgstage/pkg/ghg"
	"github.com/greenledger/ghgstage/pkg/lookup/fixture"
	"github.com/greenledger/ghgstage/pkg/notify"
)

var (
	stationary = ghg.Option{ID: "10", Label: "Stationary Combustion"}
	mobile     = ghg.Option{ID: "11", Label: "Mobile Combustion"}
)

func TestChildrenMemoized(t *testing.T) {
	ctx := context.Background()
	svc := fixture.New(nil)
	c := New(svc, nil)
	root := ghg.NewPath(ghg.Scope1, ghg.GHGProtocol)

	first := c.Children(ctx, ghg.LevelMainCategory, root)
	second := c.Children(ctx, ghg.LevelMainCategory, root)
	assert.Equal(t, first, second)
	assert.Len(t, first, 2)
	assert.Equal(t, 1, svc.Calls(fixture.OpListMainCategories))

	// A choice at the level itself does not change the key.
	c.Children(ctx, ghg.LevelMainCategory, root.Set(ghg.LevelMainCategory, stationary))
	assert.Equal(t, 1, svc.Calls(fixture.OpListMainCategories))
	assert.Equal(t, 1, c.Len())
}

func TestChildrenKeyedByAncestors(t *testing.T) {
	ctx := context.Background()
	svc := fixture.New(nil)
	c := New(svc, nil)
	root := ghg.NewPath(ghg.Scope1, ghg.GHGProtocol)

	a := c.Children(ctx, ghg.LevelSubCategory, root.Set(ghg.LevelMainCategory, stationary))
	b := c.Children(ctx, ghg.LevelSubCategory, root.Set(ghg.LevelMainCategory, mobile))
	assert.NotEqual(t, a, b)
	assert.Equal(t, 2, svc.Calls(fixture.OpListSubCategories))
	assert.True(t, c.Cached(ghg.LevelSubCategory, root.Set(ghg.LevelMainCategory, mobile)))
	assert.False(t, c.Cached(ghg.LevelSubCategory, ghg.NewPath(ghg.Scope2, ghg.GHGProtocol).Set(ghg.LevelMainCategory, mobile)))
}

func TestChildrenFailureNotCached(t *testing.T) {
	ctx := context.Background()
	svc := fixture.New(nil)
	rec := &notify.Recorder{}
	c := New(svc, rec)
	path := ghg.NewPath(ghg.Scope1, ghg.GHGProtocol).Set(ghg.LevelMainCategory, stationary)

	svc.Fail(fixture.OpListSubCategories, errors.New("unreachable"))
	opts := c.Children(ctx, ghg.LevelSubCategory, path)
	assert.NotNil(t, opts)
	assert.Empty(t, opts)
	assert.Equal(t, 1, rec.Count(notify.LevelWarning))
	assert.Equal(t, 0, c.Len())

	svc.Heal(fixture.OpListSubCategories)
	opts = c.Children(ctx, ghg.LevelSubCategory, path)
	assert.Len(t, opts, 3)
	assert.Equal(t, 2, svc.Calls(fixture.OpListSubCategories))
}

func TestChildrenEmptyListCached(t *testing.T) {
	ctx := context.Background()
	svc := fixture.New(nil)
	c := New(svc, nil)
	path := ghg.NewPath(ghg.Scope1, ghg.GHGProtocol).
		Set(ghg.LevelMainCategory, stationary).
		Set(ghg.LevelSubCategory, ghg.Named("Submain 3"))

	require.Empty(t, c.Children(ctx, ghg.LevelActivity, path))
	require.Empty(t, c.Children(ctx, ghg.LevelActivity, path))
	assert.Equal(t, 1, svc.Calls(fixture.OpListActivities))
}

func TestReset(t *testing.T) {
	ctx := context.Background()
	svc := fixture.New(nil)
	c := New(svc, nil)
	root := ghg.NewPath(ghg.Scope1, ghg.GHGProtocol)

	c.Children(ctx, ghg.LevelMainCategory, root)
	c.Reset()
	assert.Equal(t, 0, c.Len())
	c.Children(ctx, ghg.LevelMainCategory, root)
	assert.Equal(t, 2, svc.Calls(fixture.OpListMainCategories))
}

// slowSource holds the first subcategory fetch until release is closed and
// then answers like a server that noticed the request was cancelled.
type slowSource struct {
	*fixture.Service
	once    sync.Once
	started chan struct{}
	release chan struct{}
}

func newSlowSource() *slowSource {
	return &slowSource{
		Service: fixture.New(nil),
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (s *slowSource) ListSubCategories(ctx context.Context, mainCategoryID string) ([]ghg.Option, error) {
	first := false
	s.once.Do(func() { first = true })
	if first {
		close(s.started)
		<-s.release
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
	return s.Service.ListSubCategories(ctx, mainCategoryID)
}

func TestChildrenCancelledCallerDoesNotFailOthers(t *testing.T) {
	src := newSlowSource()
	rec := &notify.Recorder{}
	c := New(src, rec)
	path := ghg.NewPath(ghg.Scope1, ghg.GHGProtocol).Set(ghg.LevelMainCategory, stationary)

	ctx1, cancel := context.WithCancel(context.Background())
	first := make(chan ghg.Options, 1)
	go func() { first <- c.Children(ctx1, ghg.LevelSubCategory, path) }()
	<-src.started
	cancel()
	assert.Empty(t, <-first)

	second := make(chan ghg.Options, 1)
	go func() { second <- c.Children(context.Background(), ghg.LevelSubCategory, path) }()
	time.Sleep(20 * time.Millisecond)
	close(src.release)

	assert.Equal(t, []string{"Submain 1", "Submain 2", "Submain 3"}, (<-second).Labels())
	assert.Equal(t, 0, rec.Count(notify.LevelWarning))
	assert.True(t, c.Cached(ghg.LevelSubCategory, path))
}
