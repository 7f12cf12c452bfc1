// Package apiclient calls a running ideafit API over HTTP.
package apiclient

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

	"github.com/joelkehle/ideafit/internal/model"
)

// StatusError carries the status and the server's detail message.
type StatusError struct {
	Method string
	Path   string
	Status int
	Detail string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s failed status=%d detail=%s", e.Method, e.Path, e.Status, e.Detail)
}

type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			// simulations fan out to every persona; leave room for LLM retries
			Timeout: 2 * time.Minute,
		},
	}
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		blob, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(blob)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	blob, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		var e struct {
			Detail string `json:"detail"`
		}
		if json.Unmarshal(blob, &e) != nil || e.Detail == "" {
			e.Detail = string(blob)
		}
		return &StatusError{Method: method, Path: path, Status: resp.StatusCode, Detail: e.Detail}
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(blob, out)
}

func (c *Client) Health(ctx context.Context) error {
	var out map[string]string
	if err := c.doJSON(ctx, http.MethodGet, "/health", nil, &out); err != nil {
		return err
	}
	if out["status"] != "ok" {
		return fmt.Errorf("health: unexpected status %q", out["status"])
	}
	return nil
}

func (c *Client) ListIdeas(ctx context.Context, projectID string) ([]model.Idea, error) {
	path := "/ideas"
	if projectID != "" {
		path += "?projectId=" + url.QueryEscape(projectID)
	}
	var out []model.Idea
	err := c.doJSON(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

func (c *Client) Simulate(ctx context.Context, ideaIDs []string) ([]model.SimulationResult, error) {
	var out []model.SimulationResult
	err := c.doJSON(ctx, http.MethodPost, "/simulate", map[string]any{"ideaIds": ideaIDs}, &out)
	return out, err
}

// ScoreResult mirrors one element of the /ideas/score response.
type ScoreResult struct {
	model.Score
	Factors  []model.Factor `json:"factors"`
	Reaction model.Reaction `json:"reaction"`
}

func (c *Client) Score(ctx context.Context, ideaIDs []string) ([]ScoreResult, error) {
	var out []ScoreResult
	err := c.doJSON(ctx, http.MethodPost, "/ideas/score", map[string]any{"ideaIds": ideaIDs}, &out)
	return out, err
}
