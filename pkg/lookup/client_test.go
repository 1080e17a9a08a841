package lookup_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greenledger/ghgstage/internal/server"
	"github.com/greenledger/ghgstage/pkg/ghg"
	"github.com/greenledger/ghgstage/pkg/lookup"
	"github.com/greenledger/ghgstage/pkg/lookup/fixture"
	"github.com/greenledger/ghgstage/pkg/whttp"
)

func newTestClient(t *testing.T, legacy bool, opts ...lookup.ClientOption) (*lookup.Client, *fixture.Service) {
	t.Helper()
	svc := fixture.New(nil)
	ts := httptest.NewServer(server.New(svc, "secret", legacy).Router())
	t.Cleanup(ts.Close)

	hc, err := whttp.NewClient(whttp.ClientConfig{Retries: 0})
	require.NoError(t, err)
	opts = append([]lookup.ClientOption{lookup.WithToken("secret"), lookup.WithHTTPClient(hc)}, opts...)
	c, err := lookup.NewClient(ts.URL, opts...)
	require.NoError(t, err)
	return c, svc
}

func TestNewClientRejectsBadURL(t *testing.T) {
	_, err := lookup.NewClient("not a url")
	assert.Error(t, err)
}

func TestClientHierarchy(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestClient(t, false)

	mains, err := c.ListMainCategories(ctx, ghg.Scope2, ghg.GHGProtocol)
	require.NoError(t, err)
	assert.Equal(t, []ghg.Option{{ID: "20", Label: "Purchased Electricity"}}, mains)

	acts, err := c.ListActivities(ctx, "10", "Submain 2")
	require.NoError(t, err)
	assert.Equal(t, []string{"Diesel", "Biogas"}, ghg.Options(acts).Labels())

	sel1, err := c.ListSelection1(ctx, "10", "Submain 1", "Natural Gas")
	require.NoError(t, err)
	assert.Equal(t, []ghg.Option{ghg.NotApplicable()}, sel1)

	sel2, err := c.ListSelection2(ctx, "10", "Submain 2", "Diesel", "Tonnes")
	require.NoError(t, err)
	assert.Equal(t, []string{"Gross CV", "Net CV"}, ghg.Options(sel2).Labels())
}

func TestClientLegacySentinel(t *testing.T) {
	ctx := context.Background()

	c, _ := newTestClient(t, true)
	sel1, err := c.ListSelection1(ctx, "10", "Submain 1", "Natural Gas")
	require.NoError(t, err)
	assert.True(t, ghg.Options(sel1).IsNotApplicable())

	strict, _ := newTestClient(t, true, lookup.WithLegacySentinel(false))
	sel1, err = strict.ListSelection1(ctx, "10", "Submain 1", "Natural Gas")
	require.NoError(t, err)
	require.Len(t, sel1, 1)
	assert.False(t, sel1[0].NotApplicable)
	assert.Equal(t, "N/A", sel1[0].Label)
}

func TestClientFactor(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestClient(t, false)

	path := ghg.NewPath(ghg.Scope1, ghg.GHGProtocol).
		Set(ghg.LevelMainCategory, ghg.Option{ID: "10", Label: "Stationary Combustion"}).
		Set(ghg.LevelSubCategory, ghg.Named("Submain 2")).
		Set(ghg.LevelActivity, ghg.Named("Diesel")).
		Set(ghg.LevelSelection1, ghg.Named("Litres")).
		Set(ghg.LevelSelection2, ghg.NotApplicable())

	f, err := c.GetFactor(ctx, lookup.QueryFor(path))
	require.NoError(t, err)
	assert.Equal(t, "2.68", f.Value.String())
	assert.Equal(t, "502", f.SubcategoryID)

	path = path.Set(ghg.LevelActivity, ghg.Named("Biogas")).
		Set(ghg.LevelSelection1, ghg.NotApplicable()).
		Set(ghg.LevelSelection2, ghg.NotApplicable())
	_, err = c.GetFactor(ctx, lookup.QueryFor(path))
	assert.True(t, lookup.IsNotAvailable(err))

	var apiErr *lookup.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
}

func TestClientStaged(t *testing.T) {
	ctx := context.Background()
	c, svc := newTestClient(t, false)

	id, err := c.AppendStagedActivity(ctx, "p1", "701", "Monthly")
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	list, err := c.ListStagedActivities(ctx, "p1", ghg.Scope3)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Economy", list[0].Selection1)
	assert.Equal(t, "0.151", list[0].EmissionFactor.String())

	require.NoError(t, c.UpdateStagedActivity(ctx, "p1", "701", "702", "Yearly"))
	require.NoError(t, c.CommitStagedChanges(ctx, "p1"))
	require.Len(t, svc.Committed("p1"), 1)
	assert.Equal(t, "702", svc.Committed("p1")[0].SubcategoryID)

	assert.Error(t, c.DeleteStagedActivity(ctx, "p1", "702"))
}

func TestClientEnvelopeErrors(t *testing.T) {
	ctx := context.Background()

	unauthorized, _ := newTestClient(t, false, lookup.WithToken("wrong"))
	_, err := unauthorized.ListSubCategories(ctx, "10")
	var apiErr *lookup.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "unauthorized", apiErr.Code)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>"))
	}))
	defer ts.Close()
	hc, _ := whttp.NewClient(whttp.ClientConfig{Retries: 0})
	c, err := lookup.NewClient(ts.URL, lookup.WithHTTPClient(hc))
	require.NoError(t, err)
	_, err = c.ListSubCategories(ctx, "10")
	require.ErrorAs(t, err, &apiErr)
	assert.Contains(t, apiErr.Message, "invalid JSON")
}
