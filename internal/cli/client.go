// Package cli implements the foremanctl command set: a thin HTTP client over
// the daemon API plus table-style output rendering.
package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultBaseURL is where a single-host daemon listens.
const DefaultBaseURL = "http://localhost:8800"

// requestTimeout is generous because a dispatch against the sync bridge waits
// for the full inference round trip.
const requestTimeout = 120 * time.Second

// HTTPError is a non-2xx response from the daemon.
type HTTPError struct {
	Status int
	Detail string
	Code   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%d: %s", e.Status, e.Detail)
}

// UnreachableError means the daemon did not answer at all.
type UnreachableError struct {
	err error
}

func (e *UnreachableError) Error() string {
	return fmt.Sprintf("daemon not responding: %v", e.err)
}

func (e *UnreachableError) Unwrap() error { return e.err }

// ExitCode maps an error to the process exit code: 0 on success, 1 when the
// API is unreachable, 2 on an HTTP error response.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var he *HTTPError
	if errors.As(err, &he) {
		return 2
	}
	return 1
}

// Client talks to the daemon's /api/v1 surface.
type Client struct {
	base string
	http *http.Client
}

// NewClient creates a client for the given base URL (scheme://host:port).
func NewClient(base string) *Client {
	return &Client{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: requestTimeout},
	}
}

// Get fetches path under /api/v1 and decodes the response into out.
func (c *Client) Get(path string, out any) error {
	return c.do(http.MethodGet, path, nil, out)
}

// Post sends body (may be nil) to path under /api/v1 and decodes into out.
func (c *Client) Post(path string, body, out any) error {
	return c.do(http.MethodPost, path, body, out)
}

func (c *Client) do(method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.base+"/api/v1"+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &UnreachableError{err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &UnreachableError{err: err}
	}

	if resp.StatusCode >= 400 {
		he := &HTTPError{Status: resp.StatusCode, Detail: strings.TrimSpace(string(data))}
		var errBody struct {
			Detail string `json:"detail"`
			Code   string `json:"code"`
		}
		if json.Unmarshal(data, &errBody) == nil && errBody.Detail != "" {
			he.Detail = errBody.Detail
			he.Code = errBody.Code
		}
		return he
	}

	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}
