package crm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
)

// Park is a parent grouping lots belong to. A user associated with more than
// one park must map a park-name column before importing.
type Park struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ListParks returns the parks the authenticated user manages.
func (c *Client) ListParks(ctx context.Context) ([]Park, error) {
	var resp struct {
		Parks []Park `json:"parks"`
	}
	if err := c.Do(ctx, http.MethodGet, "/api/v1/parks", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Parks, nil
}

// ListLots fetches the lot listing, optionally filtered by park name. The
// payload is passed through untouched; the import service only caches it.
func (c *Client) ListLots(ctx context.Context, park string) (json.RawMessage, error) {
	path := "/api/v1/lots"
	if park != "" {
		path += "?park=" + url.QueryEscape(park)
	}

	var raw json.RawMessage
	if err := c.Do(ctx, http.MethodGet, path, nil, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}
