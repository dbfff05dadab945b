package tracker

import (
	"context"
	"fmt"
	"net/http"

	"github.com/threadline/threadline/internal/core"
)

// CommentPage is one page of issue notes.
type CommentPage struct {
	Number   int
	Comments []core.IssueComment
	// Next is the following page advertised by the Link header, or 0.
	Next int
}

// LoadCommentsPage fetches page (1-based) of an issue's notes. A 401 is
// reported so that IsUnauthorized(err) holds.
func (c *Client) LoadCommentsPage(ctx context.Context, iid int64, page int) (*CommentPage, error) {
	req := request{
		method: http.MethodGet,
		path:   fmt.Sprintf("projects/%d/issues/%d/notes?page=%d&per_page=%d", c.projectID, iid, page, core.PageSize),
	}
	resp, err := c.do(ctx, req)
	if err != nil {
		return nil, err
	}

	message := "error fetching comments"
	if resp.StatusCode == http.StatusUnauthorized {
		message = "unauthorized"
	}
	if err := expectOK(resp, req, message); err != nil {
		return nil, err
	}

	next := ReadRelNext(resp.Header.Get("Link"))

	var comments []core.IssueComment
	if err := decodeJSON(resp, req, &comments); err != nil {
		return nil, err
	}
	return &CommentPage{Number: page, Comments: comments, Next: next}, nil
}
