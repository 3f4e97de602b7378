package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/proofrun/proofrun/internal/actions"
	"github.com/proofrun/proofrun/internal/collab"
	"github.com/proofrun/proofrun/internal/plan"
	"github.com/proofrun/proofrun/internal/workspace"
)

type fakeSession struct {
	closed int
}

func (s *fakeSession) Close() error {
	s.closed++
	return nil
}

type pollCall struct {
	action string
	dir    string
}

type fakeCollabs struct {
	tokenErr   error
	mergeAfter int // actions run before the merge indicator appears; -1 = never
	runs       int
	sessions   []*fakeSession
	polls      []pollCall
	signedIn   []string
	navigated  []string
}

func (f *fakeCollabs) ObtainToken(ctx context.Context, environment, schoolID string) (string, error) {
	if f.tokenErr != nil {
		return "", f.tokenErr
	}
	return "token-123", nil
}

func (f *fakeCollabs) Acquire(ctx context.Context, environment, outputDir, label string, headed bool) (collab.BrowserSession, error) {
	s := &fakeSession{}
	f.sessions = append(f.sessions, s)
	return s, nil
}

func (f *fakeCollabs) SignIn(ctx context.Context, s collab.BrowserSession, email, password, productSlug, environment string) error {
	f.signedIn = append(f.signedIn, productSlug)
	return nil
}

func (f *fakeCollabs) Navigate(ctx context.Context, s collab.BrowserSession, productSlug, environment string) error {
	f.navigated = append(f.navigated, productSlug)
	return nil
}

func (f *fakeCollabs) MergeInProgress(ctx context.Context, s collab.BrowserSession) (bool, error) {
	if f.mergeAfter >= 0 && f.runs >= f.mergeAfter {
		return true, nil
	}
	return false, nil
}

func (f *fakeCollabs) Start(environment, schoolID, action, outputDir string) {
	f.polls = append(f.polls, pollCall{action: action, dir: outputDir})
}

func (f *fakeCollabs) collaborators() Collaborators {
	return Collaborators{Tokens: f, Browser: f, Auth: f, Nav: f, Poller: f}
}

func registryWith(t *testing.T, run func(collab.RunContext) (bool, error), actionList ...plan.Action) *actions.Registry {
	t.Helper()
	reg := actions.NewRegistry()
	for _, a := range actionList {
		reg.MustRegister(a, func() (collab.ActionRunner, error) {
			return collab.RunnerFunc(func(_ context.Context, rc collab.RunContext) (bool, error) {
				return run(rc)
			}), nil
		})
	}
	return reg
}

func allConcreteActions() []plan.Action {
	return plan.Expand(plan.ActionAllProducts)
}

func testPlan(action plan.Action, product plan.Product) plan.RunPlan {
	return plan.RunPlan{
		Email:           "qa@example.edu",
		Password:        "hunter2",
		Environment:     plan.EnvironmentStaging,
		Product:         product,
		SchoolID:        "acme-banner",
		Action:          action,
		CourseFormName:  plan.DefaultCourseFormName,
		ProgramFormName: plan.DefaultProgramFormName,
	}
}

func findWorkspace(t *testing.T, root string, p plan.RunPlan, now time.Time) *workspace.Workspace {
	t.Helper()
	ws := &workspace.Workspace{
		Root:     filepath.Join(root, p.SchoolID, "Run-"+now.UTC().Format("2006-01-02_15-04-05")),
		SchoolID: p.SchoolID,
	}
	return ws
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestExecuteAggregateRunsEveryActionInOrder(t *testing.T) {
	fakes := &fakeCollabs{mergeAfter: -1}
	var ran []plan.Action
	reg := registryWith(t, func(rc collab.RunContext) (bool, error) {
		ran = append(ran, rc.Action)
		return true, nil
	}, allConcreteActions()...)
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	root := t.TempDir()
	orch, err := New(fakes.collaborators(), reg, root, WithClock(fixedClock(now)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	p := testPlan(plan.ActionAllProducts, plan.ProductAll)
	if err := orch.Execute(context.Background(), p); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	want := plan.Expand(plan.ActionAllProducts)
	if len(ran) != len(want) {
		t.Fatalf("ran %d actions, want %d", len(ran), len(want))
	}
	for i := range want {
		if ran[i] != want[i] {
			t.Fatalf("action %d = %s, want %s", i, ran[i], want[i])
		}
	}
	ws := findWorkspace(t, root, p, now)
	outcomes, err := ws.Outcomes()
	if err != nil {
		t.Fatalf("Outcomes: %v", err)
	}
	if len(outcomes) != len(want) {
		t.Fatalf("recorded %d outcomes, want %d", len(outcomes), len(want))
	}
	for _, o := range outcomes {
		if o.Status != workspace.StatusSucceeded {
			t.Fatalf("unexpected failed outcome: %+v", o)
		}
	}
	if len(fakes.polls) != len(want) {
		t.Fatalf("poller started %d times, want %d", len(fakes.polls), len(want))
	}
}

func TestExecuteClosesEverySession(t *testing.T) {
	fakes := &fakeCollabs{mergeAfter: -1}
	reg := registryWith(t, func(collab.RunContext) (bool, error) { return true, nil }, allConcreteActions()...)
	orch, err := New(fakes.collaborators(), reg, t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := orch.Execute(context.Background(), testPlan(plan.ActionAllScheduling, plan.ProductScheduling)); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(fakes.sessions) != 6 {
		t.Fatalf("acquired %d sessions, want 6", len(fakes.sessions))
	}
	for i, s := range fakes.sessions {
		if s.closed != 1 {
			t.Fatalf("session %d closed %d times", i, s.closed)
		}
	}
}

func TestRelationshipActionsForceSchedulingSlug(t *testing.T) {
	fakes := &fakeCollabs{mergeAfter: -1}
	reg := registryWith(t, func(collab.RunContext) (bool, error) { return true, nil }, plan.ActionEditRelationships)
	orch, err := New(fakes.collaborators(), reg, t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	p := testPlan(plan.ActionEditRelationships, plan.ProductCurriculum)
	if err := orch.Execute(context.Background(), p); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(fakes.navigated) != 1 || fakes.navigated[0] != string(plan.ProductScheduling) {
		t.Fatalf("navigated slugs = %v, want [scheduling]", fakes.navigated)
	}
}

func TestMergeInProgressAbortsRemainingActions(t *testing.T) {
	fakes := &fakeCollabs{mergeAfter: 0}
	var ran int
	reg := registryWith(t, func(collab.RunContext) (bool, error) {
		ran++
		fakes.runs++
		return true, nil
	}, allConcreteActions()...)
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	root := t.TempDir()
	orch, err := New(fakes.collaborators(), reg, root, WithClock(fixedClock(now)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	p := testPlan(plan.ActionAllProducts, plan.ProductAll)
	err = orch.Execute(context.Background(), p)
	if !errors.Is(err, collab.ErrMergeInProgress) {
		t.Fatalf("Execute error = %v, want merge in progress", err)
	}
	if ran != 0 {
		t.Fatalf("%d actions ran past the merge indicator", ran)
	}
	if len(fakes.sessions) != 1 || fakes.sessions[0].closed != 1 {
		t.Fatalf("browser session not closed before abort: %+v", fakes.sessions)
	}
	outcomes, err := findWorkspace(t, root, p, now).Outcomes()
	if err != nil {
		t.Fatalf("Outcomes: %v", err)
	}
	if len(outcomes) != 1 || outcomes[0].Status != workspace.StatusFailed {
		t.Fatalf("expected a single failed outcome, got %+v", outcomes)
	}
}

func TestSaveFailureRecordsOutcomeAndContinues(t *testing.T) {
	fakes := &fakeCollabs{mergeAfter: -1}
	reg := registryWith(t, func(rc collab.RunContext) (bool, error) {
		if rc.Action == plan.ActionCreateSection {
			return false, nil
		}
		return true, nil
	}, allConcreteActions()...)
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	root := t.TempDir()
	orch, err := New(fakes.collaborators(), reg, root, WithClock(fixedClock(now)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	p := testPlan(plan.ActionAllScheduling, plan.ProductScheduling)
	if err := orch.Execute(context.Background(), p); err != nil {
		t.Fatalf("Execute must not fail on a save failure: %v", err)
	}
	outcomes, err := findWorkspace(t, root, p, now).Outcomes()
	if err != nil {
		t.Fatalf("Outcomes: %v", err)
	}
	var failed []workspace.Outcome
	for _, o := range outcomes {
		if o.Status == workspace.StatusFailed {
			failed = append(failed, o)
		}
	}
	if len(failed) != 1 || failed[0].Action != plan.ActionCreateSection {
		t.Fatalf("unexpected failures: %+v", failed)
	}
	if failed[0].Reason != "save failed" {
		t.Fatalf("reason = %q", failed[0].Reason)
	}
}

func TestNoEligibleRecordIsActionLocal(t *testing.T) {
	fakes := &fakeCollabs{mergeAfter: -1}
	reg := registryWith(t, func(rc collab.RunContext) (bool, error) {
		if rc.Action == plan.ActionInactivateSection {
			return false, collab.ErrNoEligibleRecord
		}
		return true, nil
	}, allConcreteActions()...)
	orch, err := New(fakes.collaborators(), reg, t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := orch.Execute(context.Background(), testPlan(plan.ActionAllScheduling, plan.ProductScheduling)); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	// All six actions still attempted; the failing one only lost its own outcome.
	if len(fakes.sessions) != 6 {
		t.Fatalf("acquired %d sessions, want 6", len(fakes.sessions))
	}
	if len(fakes.polls) != 5 {
		t.Fatalf("poller started %d times, want 5", len(fakes.polls))
	}
}

func TestRunnerPanicFreeErrorBecomesFailedOutcome(t *testing.T) {
	fakes := &fakeCollabs{mergeAfter: -1}
	reg := registryWith(t, func(collab.RunContext) (bool, error) {
		return false, fmt.Errorf("selector timed out after 30s")
	}, plan.ActionUpdateCourse)
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	root := t.TempDir()
	orch, err := New(fakes.collaborators(), reg, root, WithClock(fixedClock(now)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	p := testPlan(plan.ActionUpdateCourse, plan.ProductCurriculum)
	if err := orch.Execute(context.Background(), p); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	outcomes, err := findWorkspace(t, root, p, now).Outcomes()
	if err != nil {
		t.Fatalf("Outcomes: %v", err)
	}
	if len(outcomes) != 1 || outcomes[0].Reason != "selector timed out after 30s" {
		t.Fatalf("unexpected outcomes: %+v", outcomes)
	}
}

func TestTokenFailureIsFatal(t *testing.T) {
	fakes := &fakeCollabs{tokenErr: errors.New("401 unauthorized"), mergeAfter: -1}
	reg := registryWith(t, func(collab.RunContext) (bool, error) { return true, nil }, plan.ActionUpdateSection)
	orch, err := New(fakes.collaborators(), reg, t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	err = orch.Execute(context.Background(), testPlan(plan.ActionUpdateSection, plan.ProductScheduling))
	if err == nil {
		t.Fatalf("expected fatal setup error")
	}
	if len(fakes.sessions) != 0 {
		t.Fatalf("no browser work should happen without a token")
	}
}

func TestUnknownActionFailsBeforeBrowserWork(t *testing.T) {
	fakes := &fakeCollabs{mergeAfter: -1}
	reg := actions.NewRegistry()
	orch, err := New(fakes.collaborators(), reg, t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := orch.Execute(context.Background(), testPlan(plan.ActionUpdateSection, plan.ProductScheduling)); err == nil {
		t.Fatalf("expected resolve failure")
	}
	if len(fakes.sessions) != 0 {
		t.Fatalf("browser session acquired for unknown action")
	}
}

func TestUsedRecordTrackerSharedAcrossActions(t *testing.T) {
	fakes := &fakeCollabs{mergeAfter: -1}
	var trackers []*collab.RecordTracker
	reg := registryWith(t, func(rc collab.RunContext) (bool, error) {
		trackers = append(trackers, rc.Used)
		rc.Used.MarkUsed("section-" + string(rc.Action))
		return true, nil
	}, allConcreteActions()...)
	orch, err := New(fakes.collaborators(), reg, t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := orch.Execute(context.Background(), testPlan(plan.ActionAllScheduling, plan.ProductScheduling)); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(trackers) != 6 {
		t.Fatalf("tracker seen by %d actions, want 6", len(trackers))
	}
	for i := 1; i < len(trackers); i++ {
		if trackers[i] != trackers[0] {
			t.Fatalf("tracker not shared across actions")
		}
	}
	if trackers[0].Len() != 6 {
		t.Fatalf("tracker holds %d records, want 6", trackers[0].Len())
	}

	// A second Execute starts from a fresh tracker.
	trackers = nil
	if err := orch.Execute(context.Background(), testPlan(plan.ActionUpdateSection, plan.ProductScheduling)); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if trackers[0].Len() != 1 {
		t.Fatalf("tracker not reset between runs: %d", trackers[0].Len())
	}
}
