package near

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/NEAR-Edu/contract-registry/internal/tracing"
)

// Client is a minimal NEAR JSON-RPC client. It is safe for concurrent use.
type Client struct {
	url    string
	http   *http.Client
	nextID atomic.Uint64
}

func NewClient(nodeURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{url: nodeURL, http: &http.Client{Timeout: timeout}}
}

func (c *Client) NodeURL() string { return c.url }

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

func (c *Client) call(ctx context.Context, method string, params any, out any) error {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      strconv.FormatUint(c.nextID.Add(1), 10),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", method, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("near rpc %s: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")
	tracing.InjectHeaders(ctx, req.Header)
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("near rpc %s: %w", method, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("near rpc %s: read body: %w", method, err)
	}

	var rr rpcResponse
	if err := json.Unmarshal(data, &rr); err != nil {
		return fmt.Errorf("near rpc %s: status %d: %w: %v", method, resp.StatusCode, ErrMalformedResponse, err)
	}
	if rr.Error != nil {
		return rr.Error
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("near rpc %s: unexpected status %d", method, resp.StatusCode)
	}
	if len(rr.Result) == 0 || string(rr.Result) == "null" {
		return fmt.Errorf("near rpc %s: %w: empty result", method, ErrMalformedResponse)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(rr.Result, out); err != nil {
		return fmt.Errorf("near rpc %s: %w: %v", method, ErrMalformedResponse, err)
	}
	return nil
}
