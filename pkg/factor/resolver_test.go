package factor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/greenledger/ghgstage/pkg/ghg"
	"github.com/greenledger/ghgstage/pkg/lookup/fixture"
	"github.com/greenledger/ghgstage/pkg/notify"
)

func naturalGas() ghg.Path {
	return ghg.NewPath(ghg.Scope1, ghg.GHGProtocol).
		Set(ghg.LevelMainCategory, ghg.Option{ID: "10", Label: "Stationary Combustion"}).
		Set(ghg.LevelSubCategory, ghg.Named("Submain 1")).
		Set(ghg.LevelActivity, ghg.Named("Natural Gas")).
		Set(ghg.LevelSelection1, ghg.NotApplicable()).
		Set(ghg.LevelSelection2, ghg.NotApplicable())
}

func TestResolve(t *testing.T) {
	ctx := context.Background()
	svc := fixture.New(nil)
	rec := &notify.Recorder{}
	r := NewResolver(svc, rec)

	res := r.Resolve(ctx, naturalGas())
	assert.True(t, res.Available)
	assert.Equal(t, "2.1", res.Display())
	assert.Equal(t, "501", res.SubcategoryID)
	assert.True(t, res.Matches(naturalGas()))
	assert.Zero(t, rec.Count(notify.LevelWarning))
}

func TestResolveNeverCached(t *testing.T) {
	ctx := context.Background()
	svc := fixture.New(nil)
	r := NewResolver(svc, nil)

	assert.Equal(t, "2.1", r.Resolve(ctx, naturalGas()).Display())
	assert.NoError(t, svc.SetFactor("501", "2.2"))
	assert.Equal(t, "2.2", r.Resolve(ctx, naturalGas()).Display())
	assert.Equal(t, 2, svc.Calls(fixture.OpGetFactor))
}

func TestResolveNotAvailable(t *testing.T) {
	tests := []struct {
		name  string
		path  ghg.Path
		fault error
		calls int
	}{
		{
			name:  "leaf without factor",
			path:  naturalGas().Set(ghg.LevelSubCategory, ghg.Named("Submain 2")).Set(ghg.LevelActivity, ghg.Named("Biogas")).Set(ghg.LevelSelection1, ghg.NotApplicable()).Set(ghg.LevelSelection2, ghg.NotApplicable()),
			calls: 1,
		},
		{
			name:  "service failure",
			path:  naturalGas(),
			fault: errors.New("timeout"),
			calls: 1,
		},
		{
			name:  "incomplete path",
			path:  naturalGas().ClearFrom(ghg.LevelSelection2),
			calls: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := fixture.New(nil)
			if tt.fault != nil {
				svc.Fail(fixture.OpGetFactor, tt.fault)
			}
			rec := &notify.Recorder{}
			res := NewResolver(svc, rec).Resolve(context.Background(), tt.path)
			assert.False(t, res.Available)
			assert.Equal(t, ghg.Placeholder, res.Display())
			assert.Equal(t, tt.calls, svc.Calls(fixture.OpGetFactor))
			assert.Equal(t, 1, rec.Count(notify.LevelWarning))
		})
	}
}

func TestResolveCancelledIsSilent(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	svc := fixture.New(nil)
	svc.Fail(fixture.OpGetFactor, context.Canceled)
	rec := &notify.Recorder{}

	res := NewResolver(svc, rec).Resolve(ctx, naturalGas())
	assert.False(t, res.Available)
	assert.Empty(t, rec.All())
}
