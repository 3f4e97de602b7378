// Package workspace owns the on-disk layout of a single run: the timestamped
// root folder, one nested folder per action, and the append-only outcome
// summary at the root.
package workspace

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/proofrun/proofrun/internal/plan"
)

const (
	timestampLayout = "2006-01-02_15-04-05"
	summaryFileName = "run-summary.log"
)

// Workspace is the root folder for one wizard-to-completion execution. All
// actions expanded from one plan share it; it is never reused across runs.
type Workspace struct {
	ID        string
	Root      string
	SchoolID  string
	CreatedAt time.Time
}

// New creates `<outputRoot>/<school-id>/Run-<timestamp>/` and returns the
// workspace handle. The run id is a fresh UUID recorded in every outcome.
func New(outputRoot, schoolID string, now time.Time) (*Workspace, error) {
	if schoolID == "" {
		return nil, fmt.Errorf("workspace: school id is required")
	}
	root := filepath.Join(outputRoot, schoolID, "Run-"+now.Format(timestampLayout))
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("workspace: create %s: %w", root, err)
	}
	return &Workspace{
		ID:        uuid.NewString(),
		Root:      root,
		SchoolID:  schoolID,
		CreatedAt: now,
	}, nil
}

// ActionDir creates (if needed) and returns the output folder for one action,
// nested under its product category label.
func (w *Workspace) ActionDir(product plan.Product, action plan.Action) (string, error) {
	dir := filepath.Join(w.Root, product.CategoryLabel(), string(action))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("workspace: create action dir %s: %w", dir, err)
	}
	return dir, nil
}

// SummaryPath returns the run-summary log location.
func (w *Workspace) SummaryPath() string {
	return filepath.Join(w.Root, summaryFileName)
}

// Status classifies an action outcome.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Outcome is one immutable run-summary entry.
type Outcome struct {
	RunID     string      `json:"run_id"`
	SchoolID  string      `json:"school_id"`
	Action    plan.Action `json:"action"`
	Status    Status      `json:"status"`
	Reason    string      `json:"reason,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// AppendOutcome appends one JSON line to the run summary. Entries are never
// rewritten.
func (w *Workspace) AppendOutcome(o Outcome) error {
	if o.RunID == "" {
		o.RunID = w.ID
	}
	if o.SchoolID == "" {
		o.SchoolID = w.SchoolID
	}
	encoded, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("workspace: encode outcome: %w", err)
	}
	file, err := os.OpenFile(w.SummaryPath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("workspace: open summary: %w", err)
	}
	defer file.Close()
	if _, err := file.Write(append(encoded, '\n')); err != nil {
		return fmt.Errorf("workspace: append outcome: %w", err)
	}
	return nil
}

// Outcomes reads the summary back in append order. A missing summary yields
// an empty slice.
func (w *Workspace) Outcomes() ([]Outcome, error) {
	file, err := os.Open(w.SummaryPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("workspace: open summary: %w", err)
	}
	defer file.Close()

	var outcomes []Outcome
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var o Outcome
		if err := json.Unmarshal(line, &o); err != nil {
			return nil, fmt.Errorf("workspace: parse summary line: %w", err)
		}
		outcomes = append(outcomes, o)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("workspace: read summary: %w", err)
	}
	return outcomes, nil
}
