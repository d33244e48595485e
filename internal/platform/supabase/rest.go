package supabase

import (
	"context"
	"net/http"
	"net/url"
)

const singleObjectMediaType = "application/vnd.pgrst.object+json"

// Select reads rows of table visible to the caller under row-level security.
// query uses PostgREST syntax, e.g. select=id,name&order=created_at.desc.
func (c *Client) Select(ctx context.Context, accessToken, table string, query url.Values, out interface{}) error {
	return c.do(ctx, request{
		method:      http.MethodGet,
		path:        "/rest/v1/" + table,
		query:       query,
		accessToken: accessToken,
	}, out)
}

// SelectSingle is Select for exactly one row. Zero or several rows come back
// as a 406 APIError.
func (c *Client) SelectSingle(ctx context.Context, accessToken, table string, query url.Values, out interface{}) error {
	return c.do(ctx, request{
		method:      http.MethodGet,
		path:        "/rest/v1/" + table,
		query:       query,
		accessToken: accessToken,
		accept:      singleObjectMediaType,
	}, out)
}

// RPC calls a stored procedure with named params and decodes its result.
func (c *Client) RPC(ctx context.Context, accessToken, fn string, params interface{}, out interface{}) error {
	if params == nil {
		params = struct{}{}
	}
	return c.do(ctx, request{
		method:      http.MethodPost,
		path:        "/rest/v1/rpc/" + fn,
		accessToken: accessToken,
		body:        params,
	}, out)
}

// Eq renders a PostgREST equality filter value.
func Eq(value string) string {
	return "eq." + value
}
