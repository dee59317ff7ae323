// Package relay implements the reverse relay transport: a long-lived push
// stream for relay-to-bridge traffic paired with plain HTTP POSTs for
// bridge-to-relay traffic.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mcplink/toolbridge/internal/wire"
)

// Client posts bridge-initiated requests and call replies to the relay.
type Client struct {
	baseURL string
	token   string
	httpc   *http.Client
}

// NewClient returns a client for the discovered endpoint.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpc:   &http.Client{Timeout: 30 * time.Second},
	}
}

// PostRequest submits a correlated request on the rpc endpoint. The reply
// arrives on the push stream, not in the HTTP response.
func (c *Client) PostRequest(ctx context.Context, req wire.Request) error {
	return c.post(ctx, "/rpc", req)
}

// PostReply answers a reverse call on the reply endpoint.
func (c *Client) PostReply(ctx context.Context, rep wire.Reply) error {
	return c.post(ctx, "/reply", rep)
}

func (c *Client) post(ctx context.Context, path string, body any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode %s body: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)
	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("relay %s: status %s: %s", path, resp.Status, strings.TrimSpace(string(msg)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
