// Package e2e drives a running MediConnect server through its HTTP API.
// Scenarios live in features/ and are executed by godog.
package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
)

var ipCounter atomic.Uint32

// TestContext holds per-scenario HTTP state.
type TestContext struct {
	BaseURL string
	Client  *http.Client

	clientIP    string
	accessToken string
	lastStatus  int
	lastBody    []byte
	lastHeader  http.Header
}

// NewTestContext creates a context for one scenario. Each scenario gets its
// own forwarded client address so per-IP sign-in throttling does not leak
// between scenarios.
func NewTestContext(baseURL string) *TestContext {
	n := ipCounter.Add(1)
	return &TestContext{
		BaseURL:  strings.TrimRight(baseURL, "/"),
		Client:   &http.Client{Timeout: 10 * time.Second},
		clientIP: fmt.Sprintf("10.%d.%d.%d", (n>>16)&0xff, (n>>8)&0xff, n&0xff),
	}
}

// POST sends body as JSON, authenticated with the current access token.
func (tc *TestContext) POST(path string, body interface{}) error {
	return tc.send(http.MethodPost, path, body, nil)
}

// PUT sends body as JSON, authenticated with the current access token.
func (tc *TestContext) PUT(path string, body interface{}) error {
	return tc.send(http.MethodPut, path, body, nil)
}

// GET issues a GET. Explicit headers override the default Authorization.
func (tc *TestContext) GET(path string, headers map[string]string) error {
	return tc.send(http.MethodGet, path, nil, headers)
}

func (tc *TestContext) send(method, path string, body interface{}, headers map[string]string) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode body: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, tc.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Forwarded-For", tc.clientIP)
	if tc.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+tc.accessToken)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := tc.Client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	tc.lastBody, err = io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	tc.lastStatus = resp.StatusCode
	tc.lastHeader = resp.Header
	return nil
}

// GetResponseField returns a top-level field of the last JSON response.
func (tc *TestContext) GetResponseField(field string) (interface{}, error) {
	var body map[string]interface{}
	if err := json.Unmarshal(tc.lastBody, &body); err != nil {
		return nil, fmt.Errorf("decode response: %w (body: %s)", err, tc.lastBody)
	}
	v, ok := body[field]
	if !ok {
		return nil, fmt.Errorf("field %q not in response: %s", field, tc.lastBody)
	}
	return v, nil
}

func (tc *TestContext) GetLastResponseStatus() int            { return tc.lastStatus }
func (tc *TestContext) GetLastResponseBody() []byte           { return tc.lastBody }
func (tc *TestContext) GetLastResponseHeader(k string) string { return tc.lastHeader.Get(k) }
func (tc *TestContext) GetAccessToken() string                { return tc.accessToken }
func (tc *TestContext) SetAccessToken(token string)           { tc.accessToken = token }
