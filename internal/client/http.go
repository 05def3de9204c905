package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/quillworks/loom/internal/model"
)

// HTTPClient implements LoomClient using the loom HTTP/JSON REST API.
type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewHTTPClient creates a new HTTP client targeting the given base URL
// (e.g. "http://localhost:8080"). When token is non-empty, an Authorization
// header is set on every request.
func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{},
	}
}

// Close is a no-op for the HTTP client.
func (c *HTTPClient) Close() error { return nil }

// --- Engine definitions ---

func (c *HTTPClient) CreateEngine(ctx context.Context, req *EngineRequest) (*model.Engine, error) {
	var eng model.Engine
	if err := c.doJSON(ctx, http.MethodPost, "/v1/engines", req, &eng); err != nil {
		return nil, err
	}
	return &eng, nil
}

func (c *HTTPClient) GetEngine(ctx context.Context, id string) (*model.Engine, error) {
	var eng model.Engine
	if err := c.doJSON(ctx, http.MethodGet, "/v1/engines/"+url.PathEscape(id), nil, &eng); err != nil {
		return nil, err
	}
	return &eng, nil
}

func (c *HTTPClient) ListEngines(ctx context.Context, status string) ([]*model.Engine, error) {
	path := "/v1/engines"
	if status != "" {
		path += "?status=" + url.QueryEscape(status)
	}
	var resp struct {
		Engines []*model.Engine `json:"engines"`
	}
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Engines, nil
}

func (c *HTTPClient) UpdateEngine(ctx context.Context, id string, req *EngineRequest) (*model.Engine, error) {
	var eng model.Engine
	if err := c.doJSON(ctx, http.MethodPut, "/v1/engines/"+url.PathEscape(id), req, &eng); err != nil {
		return nil, err
	}
	return &eng, nil
}

func (c *HTTPClient) DeleteEngine(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/v1/engines/"+url.PathEscape(id), nil, nil)
}

// --- Runs ---

func (c *HTTPClient) StartRun(ctx context.Context, req *StartRunRequest) (*StartRunResponse, error) {
	var resp StartRunResponse
	if err := c.doJSON(ctx, http.MethodPost, "/v1/runs", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *HTTPClient) StartRunWait(ctx context.Context, req *StartRunRequest) (*model.RunResult, error) {
	var result model.RunResult
	if err := c.doJSON(ctx, http.MethodPost, "/v1/runs?wait=true", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *HTTPClient) GetRun(ctx context.Context, id string) (*model.ExecutionRecord, error) {
	var rec model.ExecutionRecord
	if err := c.doJSON(ctx, http.MethodGet, "/v1/runs/"+url.PathEscape(id), nil, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (c *HTTPClient) GetResult(ctx context.Context, id string) (*model.RunResult, error) {
	var result model.RunResult
	if err := c.doJSON(ctx, http.MethodGet, "/v1/runs/"+url.PathEscape(id)+"/result", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *HTTPClient) ListRuns(ctx context.Context, limit int) ([]*model.ExecutionRecord, error) {
	path := "/v1/runs"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var resp struct {
		Runs []*model.ExecutionRecord `json:"runs"`
	}
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Runs, nil
}

func (c *HTTPClient) PauseRun(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodPost, "/v1/runs/"+url.PathEscape(id)+"/pause", nil, nil)
}

func (c *HTTPClient) ResumeRun(ctx context.Context, id, guidance string) error {
	body := map[string]string{}
	if guidance != "" {
		body["guidance"] = guidance
	}
	return c.doJSON(ctx, http.MethodPost, "/v1/runs/"+url.PathEscape(id)+"/resume", body, nil)
}

func (c *HTTPClient) StopRun(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodPost, "/v1/runs/"+url.PathEscape(id)+"/stop", nil, nil)
}

// --- Events ---

// StreamEvents connects to the server's SSE stream and invokes fn for each
// event until the context is canceled or the connection drops.
func (c *HTTPClient) StreamEvents(ctx context.Context, topics []string, fn EventHandler) error {
	path := "/v1/events/stream"
	if len(topics) > 0 {
		path += "?topics=" + url.QueryEscape(strings.Join(topics, ","))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}

	var topic string
	var data []byte
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if topic != "" && data != nil {
				fn(topic, data)
			}
			topic, data = "", nil
		case strings.HasPrefix(line, "event: "):
			topic = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = append(data, strings.TrimPrefix(line, "data: ")...)
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("reading stream: %w", err)
	}
	return ctx.Err()
}

// --- Health ---

func (c *HTTPClient) Health(ctx context.Context) (string, error) {
	var resp struct {
		Status string `json:"status"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/health", nil, &resp); err != nil {
		return "", err
	}
	return resp.Status, nil
}

// --- internal helpers ---

// APIError represents an error response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// doJSON performs an HTTP request with optional JSON body and decodes the JSON response.
// If result is nil, the response body is discarded (for DELETE/204 responses).
func (c *HTTPClient) doJSON(ctx context.Context, method, path string, body any, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()

	// 204 No Content means success with no body.
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != "" {
			return &APIError{StatusCode: resp.StatusCode, Message: errResp.Error}
		}
		return &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}

	return nil
}
