package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ExchangeSession trades a relay session token for the access token it
// seals, stores it on the client and returns it.
func (c *Client) ExchangeSession(ctx context.Context, session string) (string, error) {
	if c.relayURL == "" {
		return "", errors.New("tracker: relay URL is required to exchange a session")
	}
	if strings.TrimSpace(session) == "" {
		return "", errors.New("tracker: session is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	body, err := json.Marshal(map[string]string{"session": session})
	if err != nil {
		return "", err
	}
	endpoint := c.relayURL + "/token"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &RequestError{Method: http.MethodPost, Path: endpoint, Err: err}
	}
	defer resp.Body.Close() // nolint:errcheck // best-effort cleanup on HTTP response body

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &RequestError{Method: http.MethodPost, Path: endpoint, StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return "", &RequestError{Method: http.MethodPost, Path: endpoint, StatusCode: resp.StatusCode, Message: relayErrorMessage(data)}
	}

	var token string
	if err := json.Unmarshal(data, &token); err != nil {
		return "", &RequestError{Method: http.MethodPost, Path: endpoint, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode token: %w", err)}
	}

	c.SetToken(token)
	return token, nil
}

// relayErrorMessage pulls the message out of the relay's error envelope,
// falling back to the raw body.
func relayErrorMessage(data []byte) string {
	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(data, &envelope) == nil && envelope.Error.Message != "" {
		return envelope.Error.Message
	}
	return strings.TrimSpace(string(data))
}
