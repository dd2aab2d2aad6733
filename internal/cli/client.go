package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/me/taskhost/pkg/model"
)

// Client talks to the diagnostics API of a running taskhost.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// NewClient creates a diagnostics API client.
func NewClient(baseURL string, logger *slog.Logger) *Client {
	return &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		Logger:     logger,
	}
}

// envelope mirrors model.Response with the payload left undecoded.
type envelope struct {
	Status     string            `json:"status"`
	Data       json.RawMessage   `json:"data"`
	Pagination *model.Pagination `json:"pagination"`
	Error      *model.APIError   `json:"error"`
}

// call sends a bodiless request and decodes the envelope's data into out,
// which may be nil. API errors are returned as *model.APIError.
func (c *Client) call(ctx context.Context, method, path string, out any) (*model.Pagination, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.Logger.Debug("api request", "method", method, "path", path)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	c.Logger.Debug("api response", "status", resp.StatusCode, "bytes", len(body))

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("parse response (status %d): %w", resp.StatusCode, err)
	}
	if env.Error != nil {
		return nil, env.Error
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
	}
	return env.Pagination, nil
}

// ListTasks returns the live tasks, optionally only those with status.
func (c *Client) ListTasks(ctx context.Context, status model.TaskStatus) ([]model.TaskInfo, error) {
	path := "/api/v1/tasks/"
	if status != "" {
		path += "?status=" + url.QueryEscape(string(status))
	}
	var tasks []model.TaskInfo
	_, err := c.call(ctx, http.MethodGet, path, &tasks)
	return tasks, err
}

// GetTask returns one live task.
func (c *Client) GetTask(ctx context.Context, id string) (model.TaskInfo, error) {
	var t model.TaskInfo
	_, err := c.call(ctx, http.MethodGet, "/api/v1/tasks/"+url.PathEscape(id), &t)
	return t, err
}

// CancelTask cancels a task and returns its state afterwards.
func (c *Client) CancelTask(ctx context.Context, id string) (model.TaskInfo, error) {
	var t model.TaskInfo
	_, err := c.call(ctx, http.MethodPut, "/api/v1/tasks/"+url.PathEscape(id)+"/cancel", &t)
	return t, err
}

// KillTask tears a task down.
func (c *Client) KillTask(ctx context.Context, id string) error {
	_, err := c.call(ctx, http.MethodDelete, "/api/v1/tasks/"+url.PathEscape(id), nil)
	return err
}

// ListOutcomes returns journal entries matching opts and the total count.
func (c *Client) ListOutcomes(ctx context.Context, opts model.ListOptions) ([]*model.JournalEntry, int, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(opts.Limit))
	if opts.Offset > 0 {
		q.Set("offset", strconv.Itoa(opts.Offset))
	}
	if opts.RunID != "" {
		q.Set("run_id", opts.RunID)
	}
	if opts.Kind != "" {
		q.Set("kind", string(opts.Kind))
	}

	var entries []*model.JournalEntry
	page, err := c.call(ctx, http.MethodGet, "/api/v1/outcomes?"+q.Encode(), &entries)
	if err != nil {
		return nil, 0, err
	}
	total := len(entries)
	if page != nil {
		total = page.Total
	}
	return entries, total, nil
}
