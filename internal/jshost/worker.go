package jshost

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/dop251/goja"

	"github.com/me/taskhost/internal/host"
	"github.com/me/taskhost/internal/scheduler"
	"github.com/me/taskhost/pkg/model"
)

// Minimum capability for each blocking builtin.
const (
	readFileCapability = model.CapabilityHostScript
	globCapability     = model.CapabilityHostScript
	fetchCapability    = model.CapabilityLocalUser
)

// maxFetchBody caps the response body fetch delivers to a script.
const maxFetchBody = 8 << 20

// readFile(path) suspends the calling task until the file is read and
// delivers its contents as a string.
func (h *Host) readFile(call goja.FunctionCall) goja.Value {
	path := h.stringArg("readFile", call.Argument(0))
	th := h.running("readFile")
	h.require(th, "readFile", readFileCapability)

	full := h.resolvePath(path)
	h.yieldForWork(th, func(ctx context.Context) ([]any, error) {
		data, err := os.ReadFile(full)
		if err != nil {
			return nil, fmt.Errorf("readFile: %w", err)
		}
		return []any{string(data)}, nil
	})
	return goja.Undefined()
}

// glob(pattern) delivers the paths matching a doublestar pattern.
func (h *Host) glob(call goja.FunctionCall) goja.Value {
	pattern := h.stringArg("glob", call.Argument(0))
	th := h.running("glob")
	h.require(th, "glob", globCapability)

	full := h.resolvePath(pattern)
	h.yieldForWork(th, func(ctx context.Context) ([]any, error) {
		matches, err := doublestar.FilepathGlob(full)
		if err != nil {
			return nil, fmt.Errorf("glob: %w", err)
		}
		out := make([]any, len(matches))
		for i, m := range matches {
			out[i] = m
		}
		return []any{out}, nil
	})
	return goja.Undefined()
}

// fetch(url) performs an HTTP GET and delivers the body as a string.
// Non-2xx responses fail the task.
func (h *Host) fetch(call goja.FunctionCall) goja.Value {
	url := h.stringArg("fetch", call.Argument(0))
	th := h.running("fetch")
	h.require(th, "fetch", fetchCapability)

	h.yieldForWork(th, func(ctx context.Context) ([]any, error) {
		body, err := h.fetcher.get(ctx, url)
		if err != nil {
			return nil, err
		}
		return []any{body}, nil
	})
	return goja.Undefined()
}

func (h *Host) yieldForWork(th host.Thread, work scheduler.WorkFunc) {
	if _, err := h.sched.YieldForWork(th, work); err != nil {
		h.throw(err)
	}
}

func (h *Host) require(th host.Thread, op string, need model.Capability) {
	have, ok := h.sched.Capability(th)
	if !ok || !have.AtLeast(need) {
		h.throwError(fmt.Sprintf("%s: requires %s capability (task has %s)", op, need, have))
	}
}

func (h *Host) stringArg(op string, v goja.Value) string {
	s, ok := v.Export().(string)
	if !ok {
		panic(h.vm.NewTypeError(fmt.Sprintf("invalid argument #1 to '%s' (string expected, got %s)", op, typeName(v))))
	}
	return s
}

func (h *Host) resolvePath(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(h.cfg.BaseDir, p)
}

// fetcher is a pooled HTTP client for the fetch builtin.
type fetcher struct {
	httpClient *http.Client
}

func newFetcher(timeout time.Duration) *fetcher {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}
	return &fetcher{
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
	}
}

func (f *fetcher) get(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("fetch: %w", err)
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("fetch: HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBody+1))
	if err != nil {
		return "", fmt.Errorf("fetch: read body: %w", err)
	}
	if len(body) > maxFetchBody {
		return "", fmt.Errorf("fetch: response body exceeds %d MiB", maxFetchBody>>20)
	}
	return string(body), nil
}
