package lookup

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/greenledger/ghgstage/internal/utils"
	"github.com/greenledger/ghgstage/pkg/ghg"
	"github.com/greenledger/ghgstage/pkg/whttp"
)

const apiPrefix = "/api/v1"

// Client talks to the lookup service over its REST API.
type Client struct {
	baseURL        string
	token          string
	httpClient     *retryablehttp.Client
	legacySentinel bool
}

var _ Service = (*Client)(nil)

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithToken sends a bearer token on every request.
func WithToken(token string) ClientOption {
	return func(c *Client) { c.token = token }
}

// WithHTTPClient replaces the default retrying client.
func WithHTTPClient(hc *retryablehttp.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithLegacySentinel controls whether a lone {"name":"N/A"} option without
// the not_applicable flag is read as the sentinel. Enabled by default.
func WithLegacySentinel(on bool) ClientOption {
	return func(c *Client) { c.legacySentinel = on }
}

func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid lookup service URL %q", baseURL)
	}
	c := &Client{
		baseURL:        strings.TrimSuffix(baseURL, "/"),
		legacySentinel: true,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		if c.httpClient, err = whttp.NewClient(whttp.ClientConfig{Retries: whttp.DefaultRetries}); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Client) ListMainCategories(ctx context.Context, scope ghg.Scope, db ghg.Database) ([]ghg.Option, error) {
	q := url.Values{}
	q.Set("scope", strconv.Itoa(int(scope)))
	q.Set("database", string(db))
	data, err := c.do(ctx, http.MethodGet, "/categories?"+q.Encode(), "")
	if err != nil {
		return nil, err
	}
	return c.decodeOptions(data), nil
}

func (c *Client) ListSubCategories(ctx context.Context, mainCategoryID string) ([]ghg.Option, error) {
	return c.listLevel(ctx, mainCategoryID, "subcategories", nil)
}

func (c *Client) ListActivities(ctx context.Context, mainCategoryID, subCategory string) ([]ghg.Option, error) {
	return c.listLevel(ctx, mainCategoryID, "activities", url.Values{"sub": {subCategory}})
}

func (c *Client) ListSelection1(ctx context.Context, mainCategoryID, subCategory, activity string) ([]ghg.Option, error) {
	return c.listLevel(ctx, mainCategoryID, "selection1", url.Values{
		"sub":      {subCategory},
		"activity": {activity},
	})
}

func (c *Client) ListSelection2(ctx context.Context, mainCategoryID, subCategory, activity, selection1 string) ([]ghg.Option, error) {
	return c.listLevel(ctx, mainCategoryID, "selection2", url.Values{
		"sub":        {subCategory},
		"activity":   {activity},
		"selection1": {selection1},
	})
}

func (c *Client) listLevel(ctx context.Context, mainCategoryID, level string, q url.Values) ([]ghg.Option, error) {
	path := "/categories/" + url.PathEscape(mainCategoryID) + "/" + level
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	data, err := c.do(ctx, http.MethodGet, path, "")
	if err != nil {
		return nil, err
	}
	return c.decodeOptions(data), nil
}

func (c *Client) GetFactor(ctx context.Context, q FactorQuery) (Factor, error) {
	body, err := encode(
		field{"database", string(q.Database)},
		field{"scope", int(q.Scope)},
		field{"main_category_id", q.MainCategoryID},
		field{"sub_category", q.SubCategory},
		field{"activity", q.Activity},
		field{"selection1", q.Selection1},
		field{"selection2", q.Selection2},
	)
	if err != nil {
		return Factor{}, err
	}
	data, err := c.do(whttp.RetrySafe(ctx), http.MethodPost, "/factors", body)
	if err != nil {
		return Factor{}, err
	}
	raw := data.Get("factor")
	if !raw.Exists() || raw.Type == gjson.Null {
		return Factor{}, ErrNotAvailable
	}
	value, err := decimal.NewFromString(raw.String())
	if err != nil {
		return Factor{}, fmt.Errorf("%w: unparseable factor %q", ErrNotAvailable, raw.String())
	}
	return Factor{Value: value, SubcategoryID: data.Get("subcategory_id").String()}, nil
}

func (c *Client) ListStagedActivities(ctx context.Context, projectID string, scope ghg.Scope) ([]StagedActivity, error) {
	path := "/projects/" + url.PathEscape(projectID) + "/staged?scope=" + strconv.Itoa(int(scope))
	data, err := c.do(ctx, http.MethodGet, path, "")
	if err != nil {
		return nil, err
	}
	var out []StagedActivity
	data.ForEach(func(_, v gjson.Result) bool {
		a := StagedActivity{
			ID:             v.Get("id").String(),
			SubcategoryID:  v.Get("subcategory_id").String(),
			Frequency:      v.Get("frequency").String(),
			Scope:          ghg.Scope(v.Get("scope").Int()),
			Database:       ghg.Database(v.Get("database").String()),
			MainCategoryID: v.Get("main_category_id").String(),
			MainCategory:   v.Get("main_category").String(),
			SubCategory:    v.Get("sub_category").String(),
			Activity:       v.Get("activity").String(),
			Selection1:     v.Get("selection1").String(),
			Selection2:     v.Get("selection2").String(),
		}
		if f := v.Get("emission_factor"); f.Exists() {
			a.EmissionFactor, _ = decimal.NewFromString(f.String())
		}
		out = append(out, a)
		return true
	})
	return out, nil
}

func (c *Client) AppendStagedActivity(ctx context.Context, projectID, subcategoryID, frequency string) (string, error) {
	body, err := encode(field{"subcategory_id", subcategoryID}, field{"frequency", frequency})
	if err != nil {
		return "", err
	}
	data, err := c.do(ctx, http.MethodPost, "/projects/"+url.PathEscape(projectID)+"/staged", body)
	if err != nil {
		return "", err
	}
	return data.Get("id").String(), nil
}

func (c *Client) UpdateStagedActivity(ctx context.Context, projectID, oldSubcategoryID, newSubcategoryID, frequency string) error {
	body, err := encode(
		field{"old_subcategory_id", oldSubcategoryID},
		field{"new_subcategory_id", newSubcategoryID},
		field{"frequency", frequency},
	)
	if err != nil {
		return err
	}
	_, err = c.do(ctx, http.MethodPut, "/projects/"+url.PathEscape(projectID)+"/staged", body)
	return err
}

func (c *Client) DeleteStagedActivity(ctx context.Context, projectID, subcategoryID string) error {
	_, err := c.do(ctx, http.MethodDelete, "/projects/"+url.PathEscape(projectID)+"/staged/"+url.PathEscape(subcategoryID), "")
	return err
}

func (c *Client) CommitStagedChanges(ctx context.Context, projectID string) error {
	_, err := c.do(ctx, http.MethodPost, "/projects/"+url.PathEscape(projectID)+"/commit", "")
	return err
}

// do sends one request and unwraps the {success, data, error} envelope.
func (c *Client) do(ctx context.Context, method, path, body string) (gjson.Result, error) {
	req := &whttp.WHTTPReq{
		Method: method,
		URL:    c.baseURL + apiPrefix + path,
		Body:   body,
	}
	if c.token != "" {
		req.Headers = append(req.Headers, whttp.WHTTPHeader{Name: "Authorization", Value: "Bearer " + c.token})
	}

	utils.Log.Debugf("[lookup] %s %s", method, req.URL)
	res, err := whttp.SendHTTPRequest(ctx, req, c.httpClient)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("%s %s: %w", method, path, err)
	}

	if !gjson.Valid(res.BodyString) {
		return gjson.Result{}, &APIError{StatusCode: res.StatusCode, Message: "invalid JSON response"}
	}
	envelope := gjson.Parse(res.BodyString)
	if res.StatusCode >= http.StatusBadRequest || !envelope.Get("success").Bool() {
		return gjson.Result{}, &APIError{
			StatusCode: res.StatusCode,
			Code:       envelope.Get("error.code").String(),
			Message:    envelope.Get("error.message").String(),
		}
	}
	return envelope.Get("data"), nil
}

func (c *Client) decodeOptions(data gjson.Result) []ghg.Option {
	items := data.Array()
	out := make([]ghg.Option, 0, len(items))
	for _, it := range items {
		name := it.Get("name").String()
		if it.Get("not_applicable").Bool() {
			out = append(out, ghg.NotApplicable())
			continue
		}
		id := name
		if v := it.Get("id"); v.Exists() {
			id = v.String()
		}
		out = append(out, ghg.Option{ID: id, Label: name})
	}
	if c.legacySentinel && len(items) == 1 && !items[0].Get("not_applicable").Exists() &&
		out[0].Label == ghg.NotApplicableLabel {
		out[0] = ghg.NotApplicable()
	}
	return out
}

type field struct {
	path  string
	value interface{}
}

func encode(fields ...field) (string, error) {
	body := "{}"
	for _, f := range fields {
		var err error
		if body, err = sjson.Set(body, f.path, f.value); err != nil {
			return "", fmt.Errorf("encode %s: %w", f.path, err)
		}
	}
	return body, nil
}
