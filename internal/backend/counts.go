package backend

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/Abhishek8642/MindPal-1.3/internal/fault"
)

// CountRows returns the number of rows in a table belonging to a user,
// using PostgREST's exact-count header so no row data crosses the wire.
func (c *Client) CountRows(ctx context.Context, table, userID string) (int, error) {
	op := "backend.count_" + table
	path := "/rest/v1/" + url.PathEscape(table) +
		"?user_id=eq." + url.QueryEscape(userID) + "&select=id&limit=1"

	resp, err := c.do(ctx, op, "HEAD", path, nil, map[string]string{
		"Prefer": "count=exact",
	})
	if err != nil {
		return 0, err
	}
	_ = resp.Body.Close()

	// Content-Range: "0-0/57" or "*/0" for an empty table.
	cr := resp.Header.Get("Content-Range")
	idx := strings.LastIndex(cr, "/")
	if idx < 0 {
		return 0, fault.New(fault.Internal, op, "missing Content-Range header")
	}
	total := cr[idx+1:]
	if total == "*" {
		return 0, nil
	}
	n, err := strconv.Atoi(total)
	if err != nil {
		return 0, fault.New(fault.Internal, op, "malformed Content-Range: "+cr)
	}
	return n, nil
}
