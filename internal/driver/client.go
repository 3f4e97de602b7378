// Package driver talks to the browser automation sidecar over its local HTTP
// API. The sidecar owns page lifecycle, selectors, and screenshots; this
// client only moves instructions and results across the wire, implementing
// the collaborator interfaces the orchestrator consumes.
package driver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/proofrun/proofrun/internal/collab"
	"github.com/proofrun/proofrun/internal/plan"
)

const defaultRequestTimeout = 5 * time.Minute

// reason codes the sidecar reports for unsaved scenarios.
const (
	reasonNoEligibleRecord = "no-eligible-record"
	reasonMergeInProgress  = "merge-in-progress"
)

// Client is an HTTP client for the automation sidecar.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient builds a client for the sidecar at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: defaultRequestTimeout},
	}
}

// Session is a live sidecar browser session.
type Session struct {
	client *Client
	ID     string
}

// Close tears the remote browser session down.
func (s *Session) Close() error {
	req, err := http.NewRequest(http.MethodDelete, s.client.url("/sessions/"+s.ID), nil)
	if err != nil {
		return fmt.Errorf("driver: close session: %w", err)
	}
	resp, err := s.client.http.Do(req)
	if err != nil {
		return fmt.Errorf("driver: close session: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("driver: close session: status %d", resp.StatusCode)
	}
	return nil
}

// Acquire starts a browser session writing artifacts beneath outputDir.
func (c *Client) Acquire(ctx context.Context, environment, outputDir, label string, headed bool) (collab.BrowserSession, error) {
	var out struct {
		ID string `json:"id"`
	}
	err := c.post(ctx, "/sessions", map[string]any{
		"environment": environment,
		"outputDir":   outputDir,
		"label":       label,
		"headed":      headed,
	}, &out)
	if err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, fmt.Errorf("driver: sidecar returned no session id")
	}
	return &Session{client: c, ID: out.ID}, nil
}

// SignIn signs the session into the product.
func (c *Client) SignIn(ctx context.Context, s collab.BrowserSession, email, password, productSlug, environment string) error {
	session, err := c.own(s)
	if err != nil {
		return err
	}
	return c.post(ctx, "/sessions/"+session.ID+"/sign-in", map[string]any{
		"email":       email,
		"password":    password,
		"product":     productSlug,
		"environment": environment,
	}, nil)
}

// Navigate drives the session into a product dashboard.
func (c *Client) Navigate(ctx context.Context, s collab.BrowserSession, productSlug, environment string) error {
	session, err := c.own(s)
	if err != nil {
		return err
	}
	return c.post(ctx, "/sessions/"+session.ID+"/navigate", map[string]any{
		"product":     productSlug,
		"environment": environment,
	}, nil)
}

// MergeInProgress reads the nightly-merge indicator on the current dashboard.
func (c *Client) MergeInProgress(ctx context.Context, s collab.BrowserSession) (bool, error) {
	session, err := c.own(s)
	if err != nil {
		return false, err
	}
	var out struct {
		InProgress bool `json:"inProgress"`
	}
	if err := c.get(ctx, "/sessions/"+session.ID+"/merge-indicator", &out); err != nil {
		return false, err
	}
	return out.InProgress, nil
}

// Runner returns an ActionRunner that executes one scenario through the
// sidecar. Every concrete action shares this transport; the sidecar selects
// the scenario script by name.
func (c *Client) Runner(action plan.Action) collab.ActionRunner {
	return collab.RunnerFunc(func(ctx context.Context, rc collab.RunContext) (bool, error) {
		session, err := c.own(rc.Session)
		if err != nil {
			return false, err
		}
		var out struct {
			Saved  bool   `json:"saved"`
			Reason string `json:"reason"`
			Record string `json:"record"`
		}
		err = c.post(ctx, "/sessions/"+session.ID+"/actions/"+string(action), map[string]any{
			"schoolId":        rc.Plan.SchoolID,
			"product":         string(rc.Product),
			"token":           rc.Token,
			"outputDir":       rc.OutputDir,
			"courseFormName":  rc.Plan.CourseFormName,
			"programFormName": rc.Plan.ProgramFormName,
			"usedRecords":     rc.Used.Claimed(),
		}, &out)
		if err != nil {
			return false, err
		}
		if out.Record != "" {
			rc.Used.MarkUsed(out.Record)
		}
		switch out.Reason {
		case reasonNoEligibleRecord:
			return false, collab.ErrNoEligibleRecord
		case reasonMergeInProgress:
			return false, collab.ErrMergeInProgress
		}
		return out.Saved, nil
	})
}

// own asserts a session handle came from this client.
func (c *Client) own(s collab.BrowserSession) (*Session, error) {
	session, ok := s.(*Session)
	if !ok || session.client != c {
		return nil, fmt.Errorf("driver: foreign browser session")
	}
	return session, nil
}

func (c *Client) url(path string) string {
	return c.baseURL + path
}

func (c *Client) post(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("driver: encode %s: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(path), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("driver: %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, path, out)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url(path), nil)
	if err != nil {
		return fmt.Errorf("driver: %s: %w", path, err)
	}
	return c.do(req, path, out)
}

func (c *Client) do(req *http.Request, path string, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("driver: %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("driver: %s: status %d: %s", path, resp.StatusCode, bytes.TrimSpace(detail))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("driver: decode %s: %w", path, err)
	}
	return nil
}
