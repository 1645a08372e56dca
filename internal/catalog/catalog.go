// Package catalog is a client for the course catalog's filter endpoint.
package catalog

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/jonathan/cab-scheduler/internal/fetch"
	"github.com/jonathan/cab-scheduler/internal/types"
)

// Client queries GET {BaseURL}/filter?term=<term>&dept=<dept>.
type Client struct {
	baseURL string
	options *fetch.Options
}

// NewClient creates a catalog client. A nil opts uses fetch.DefaultOptions.
func NewClient(baseURL string, opts *fetch.Options) *Client {
	if opts == nil {
		opts = fetch.DefaultOptions()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		options: opts,
	}
}

// filterResponse mirrors the catalog's response envelope. Only the fields
// the scheduler needs are decoded; the rest of each result is ignored.
type filterResponse struct {
	SrcDB      string         `json:"srcdb"`
	Department string         `json:"department"`
	Count      int            `json:"count"`
	Results    []filterResult `json:"results"`
}

type filterResult struct {
	Code  string `json:"code"`
	Title string `json:"title"`
}

// Filter returns the department's courses offered in term, in catalog order.
// An unknown department yields an empty slice, not an error.
func (c *Client) Filter(ctx context.Context, term types.Term, dept string) ([]types.Course, error) {
	query := url.Values{}
	query.Set("term", string(term))
	query.Set("dept", dept)
	endpoint := fmt.Sprintf("%s/filter?%s", c.baseURL, query.Encode())

	var resp filterResponse
	if err := fetch.GetJSON(ctx, endpoint, &resp, c.options); err != nil {
		return nil, fmt.Errorf("catalog filter %s/%s: %w", term, dept, err)
	}

	courses := make([]types.Course, 0, len(resp.Results))
	for _, r := range resp.Results {
		code := strings.TrimSpace(r.Code)
		if code == "" {
			continue
		}
		courses = append(courses, types.Course{
			Code:  code,
			Title: fetch.PlainText(r.Title),
		})
	}
	return courses, nil
}
