package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"portmap-ai/pkg/model"
)

// StatusError is returned for non-2xx orchestrator responses.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("orchestrator returned %d", e.Code)
	}
	return fmt.Sprintf("orchestrator returned %d: %s", e.Code, e.Message)
}

// NotFound reports whether the orchestrator did not know the node.
func (e *StatusError) NotFound() bool { return e.Code == http.StatusNotFound }

// Client talks to the orchestrator HTTP API.
type Client struct {
	BaseURL string
	Token   string
	Timeout time.Duration
	HTTP    *http.Client
}

// NewClient builds a client with a per-call timeout (5s when zero).
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		Timeout: timeout,
		HTTP:    &http.Client{},
	}
}

// WithCA trusts the PEM bundle at caFile for HTTPS orchestrators.
func (c *Client) WithCA(caFile string) (*Client, error) {
	return c.WithTLS(caFile, "", "")
}

// WithTLS configures HTTPS with an optional pinned CA and client certificate.
// With nothing set the client is returned unchanged.
func (c *Client) WithTLS(caFile, certFile, keyFile string) (*Client, error) {
	if caFile == "" && (certFile == "" || keyFile == "") {
		return c, nil
	}
	tlsCfg, err := ClientTLSConfig(caFile, certFile, keyFile)
	if err != nil {
		return nil, err
	}
	c.HTTP = &http.Client{Transport: &http.Transport{TLSClientConfig: tlsCfg}}
	return c, nil
}

func (c *Client) Register(ctx context.Context, req RegisterRequest) (model.Node, error) {
	var resp NodeResponse
	err := c.do(ctx, http.MethodPost, "/register", req, &resp)
	return resp.Node, err
}

func (c *Client) Heartbeat(ctx context.Context, req HeartbeatRequest) (HeartbeatResponse, error) {
	var resp HeartbeatResponse
	err := c.do(ctx, http.MethodPost, "/heartbeat", req, &resp)
	return resp, err
}

func (c *Client) Enqueue(ctx context.Context, nodeID string, cmd model.Command) error {
	return c.do(ctx, http.MethodPost, "/commands", CommandRequest{NodeID: nodeID, Command: cmd}, nil)
}

func (c *Client) ListNodes(ctx context.Context) ([]model.Node, error) {
	var resp NodesResponse
	err := c.do(ctx, http.MethodGet, "/nodes", nil, &resp)
	return resp.Nodes, err
}

func (c *Client) GetNode(ctx context.Context, nodeID string) (model.Node, error) {
	var resp NodeResponse
	err := c.do(ctx, http.MethodGet, "/nodes/"+url.PathEscape(nodeID), nil, &resp)
	return resp.Node, err
}

func (c *Client) Healthz(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, payload, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("%s %s: read response: %w", method, path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e ErrorResponse
		_ = json.Unmarshal(data, &e)
		return &StatusError{Code: resp.StatusCode, Message: e.Error}
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}
	return nil
}
