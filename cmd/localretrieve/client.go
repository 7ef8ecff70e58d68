package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// rpcClient is a thin HTTP client for a running localretrieve server's
// JSON-RPC surface.
type rpcClient struct {
	baseURL string
	http    *http.Client
}

func newRPCClient(baseURL string) *rpcClient {
	return &rpcClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// rpcErrorField mirrors internal/rpcserver's wire error shape.
type rpcErrorField struct {
	Kind            string `json:"kind"`
	Message         string `json:"message"`
	UserMessage     string `json:"userMessage"`
	Severity        string `json:"severity"`
	Recoverable     bool   `json:"recoverable"`
	SuggestedAction string `json:"suggestedAction"`
	RequestID       string `json:"requestId"`
	Timestamp       string `json:"timestamp"`
}

// rpcError is returned when the server reports {success:false}.
type rpcError struct {
	field rpcErrorField
}

func (e *rpcError) Error() string {
	if e.field.UserMessage != "" {
		return e.field.UserMessage
	}
	return e.field.Message
}

// call invokes method with params and decodes the success result into out.
// out may be nil when the caller only cares whether the call succeeded.
func (c *rpcClient) call(method string, params, out any) error {
	payload, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/rpc/%s", c.baseURL, method)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach %s: %w", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	var envelope struct {
		Success bool            `json:"success"`
		Result  json.RawMessage `json:"result"`
		Error   *rpcErrorField  `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(body))
	}

	if !envelope.Success {
		if envelope.Error == nil {
			return fmt.Errorf("server reported failure with no error detail")
		}
		return &rpcError{field: *envelope.Error}
	}

	if out == nil || len(envelope.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return fmt.Errorf("failed to decode result: %w", err)
	}
	return nil
}

// health calls the plain /health endpoint, which isn't wrapped in the RPC
// envelope since it predates method dispatch and is meant for load balancers.
func (c *rpcClient) health() (map[string]any, error) {
	resp, err := c.http.Get(c.baseURL + "/health")
	if err != nil {
		return nil, fmt.Errorf("failed to reach %s/health: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode health response: %w", err)
	}
	return out, nil
}
