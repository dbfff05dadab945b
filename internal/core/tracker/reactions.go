package tracker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/threadline/threadline/internal/core"
)

// ErrUnexpectedResponse is returned when a reaction create answers with
// neither 201 (created) nor 200 (already present).
var ErrUnexpectedResponse = errors.New(`expected "201 reaction created" or "200 reaction already exists"`)

// ReactionsPath is the award emoji collection of a note.
func (c *Client) ReactionsPath(iid, noteID int64) string {
	return fmt.Sprintf("projects/%d/issues/%d/notes/%d/award_emoji", c.projectID, iid, noteID)
}

// ToggleReaction flips the signed-in user's kind reaction on the award emoji
// collection at targetURL. A fresh reaction is created; an existing one
// (reported with 200) is deleted. Repeated calls alternate.
func (c *Client) ToggleReaction(ctx context.Context, targetURL string, kind core.ReactionKind) (*core.ReactionResult, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("unknown reaction %q", kind)
	}

	path := strings.TrimPrefix(strings.TrimPrefix(targetURL, c.baseURL), "/")

	req, err := jsonRequest(http.MethodPost, path, map[string]string{"name": string(kind)})
	if err != nil {
		return nil, err
	}
	resp, err := c.do(ctx, req)
	if err != nil {
		return nil, err
	}

	switch resp.StatusCode {
	case http.StatusCreated:
		var reaction core.Reaction
		if err := decodeJSON(resp, req, &reaction); err != nil {
			return nil, err
		}
		return &core.ReactionResult{Reaction: &reaction, Deleted: false}, nil
	case http.StatusOK:
		var reaction core.Reaction
		if err := decodeJSON(resp, req, &reaction); err != nil {
			return nil, err
		}

		del := request{method: http.MethodDelete, path: fmt.Sprintf("%s/%d", path, reaction.ID)}
		delResp, err := c.do(ctx, del)
		if err != nil {
			return nil, err
		}
		if delResp.StatusCode >= 300 && c.logger != nil {
			c.logger.Warn("Reaction delete returned non-success status",
				zap.String("path", del.path),
				zap.Int("status", delResp.StatusCode))
		}
		drain(delResp)
		return &core.ReactionResult{Reaction: &reaction, Deleted: true}, nil
	default:
		drain(resp)
		return nil, fmt.Errorf("toggle %s on %s: status %d: %w", kind, path, resp.StatusCode, ErrUnexpectedResponse)
	}
}
