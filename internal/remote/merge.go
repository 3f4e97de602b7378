package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/proofrun/proofrun/internal/logbook"
)

const mergeReportFileName = "merge-report.json"

// MergeClient polls the remote merge-report endpoint after a successful
// action and drops the final report into the action's folder. Each poll runs
// in its own goroutine; the orchestrator never joins it, so success and
// failure are only visible in the logbook.
type MergeClient struct {
	baseURLs map[string]string
	apiKey   string
	http     *http.Client
	logbook  *logbook.Logbook
	interval time.Duration
	deadline time.Duration
	wg       sync.WaitGroup
}

// NewMergeClient builds a poller. interval and deadline bound each poll loop.
func NewMergeClient(baseURLs map[string]string, apiKey string, lb *logbook.Logbook, interval, deadline time.Duration) *MergeClient {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	if deadline <= 0 {
		deadline = 10 * time.Minute
	}
	return &MergeClient{
		baseURLs: baseURLs,
		apiKey:   apiKey,
		http:     &http.Client{Timeout: apiRequestTimeout},
		logbook:  lb,
		interval: interval,
		deadline: deadline,
	}
}

// Start launches a detached poll. It returns immediately.
func (c *MergeClient) Start(environment, schoolID, action, outputDir string) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := c.poll(environment, schoolID, action, outputDir); err != nil {
			c.logbook.Warn("Merge report for %s/%s: %v", schoolID, action, err)
			return
		}
		c.logbook.Info("Merge report for %s/%s written to %s", schoolID, action, outputDir)
	}()
}

// Wait blocks until all in-flight polls finish. Used at shutdown and in
// tests; runs never call it.
func (c *MergeClient) Wait() {
	c.wg.Wait()
}

func (c *MergeClient) poll(environment, schoolID, action, outputDir string) error {
	base, ok := c.baseURLs[environment]
	if !ok || base == "" {
		return fmt.Errorf("no API base URL configured for environment %q", environment)
	}
	endpoint := fmt.Sprintf("%s/api/v1/schools/%s/merge-reports?action=%s",
		base, url.PathEscape(schoolID), url.QueryEscape(action))

	ctx, cancel := context.WithTimeout(context.Background(), c.deadline)
	defer cancel()
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		report, ready, err := c.fetch(ctx, endpoint)
		if err != nil {
			return err
		}
		if ready {
			path := filepath.Join(outputDir, mergeReportFileName)
			if err := os.WriteFile(path, report, 0o644); err != nil {
				return fmt.Errorf("write report: %w", err)
			}
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("report not ready after %s", c.deadline)
		case <-ticker.C:
		}
	}
}

func (c *MergeClient) fetch(ctx context.Context, endpoint string) ([]byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusAccepted {
		// Still generating.
		return nil, false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, false, fmt.Errorf("status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, false, err
	}
	if !json.Valid(body) {
		return nil, false, fmt.Errorf("malformed report payload")
	}
	return body, true, nil
}
