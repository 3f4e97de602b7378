// Package orchestrator turns a run plan into a sequence of folder-scoped
// scenario executions. It owns the workspace lifecycle and outcome recording;
// every browser- or API-level step is delegated to a collaborator.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/proofrun/proofrun/internal/actions"
	"github.com/proofrun/proofrun/internal/collab"
	"github.com/proofrun/proofrun/internal/logbook"
	"github.com/proofrun/proofrun/internal/plan"
	"github.com/proofrun/proofrun/internal/workspace"
)

// Collaborators bundles the external services a run needs.
type Collaborators struct {
	Tokens  collab.TokenSource
	Browser collab.BrowserProvider
	Auth    collab.Authenticator
	Nav     collab.Navigator
	Poller  collab.MergePoller
}

func (c Collaborators) validate() error {
	switch {
	case c.Tokens == nil:
		return fmt.Errorf("orchestrator: token source is required")
	case c.Browser == nil:
		return fmt.Errorf("orchestrator: browser provider is required")
	case c.Auth == nil:
		return fmt.Errorf("orchestrator: authenticator is required")
	case c.Nav == nil:
		return fmt.Errorf("orchestrator: navigator is required")
	case c.Poller == nil:
		return fmt.Errorf("orchestrator: merge poller is required")
	}
	return nil
}

// Option customizes the orchestrator.
type Option func(*Orchestrator)

// WithClock injects a deterministic clock (tests).
func WithClock(clock func() time.Time) Option {
	return func(o *Orchestrator) {
		if clock != nil {
			o.now = clock
		}
	}
}

// WithLogbook attaches the journey log.
func WithLogbook(lb *logbook.Logbook) Option {
	return func(o *Orchestrator) {
		o.logbook = lb
	}
}

// WithHeadedBrowser makes acquired sessions visible instead of headless.
func WithHeadedBrowser(headed bool) Option {
	return func(o *Orchestrator) {
		o.headed = headed
	}
}

// Orchestrator executes run plans strictly sequentially: one action, one
// browser session at a time.
type Orchestrator struct {
	collabs    Collaborators
	registry   *actions.Registry
	outputRoot string
	logbook    *logbook.Logbook
	headed     bool
	now        func() time.Time
}

// New wires an orchestrator. outputRoot is where run workspaces are created.
func New(collabs Collaborators, registry *actions.Registry, outputRoot string, opts ...Option) (*Orchestrator, error) {
	if err := collabs.validate(); err != nil {
		return nil, err
	}
	if registry == nil {
		return nil, fmt.Errorf("orchestrator: action registry is required")
	}
	if outputRoot == "" {
		return nil, fmt.Errorf("orchestrator: output root is required")
	}
	o := &Orchestrator{
		collabs:    collabs,
		registry:   registry,
		outputRoot: outputRoot,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Execute runs every action the plan expands to. It returns an error only for
// unrecoverable setup failures or the run-fatal merge-in-progress condition;
// action-local failures are recorded as outcomes and the run continues.
func (o *Orchestrator) Execute(ctx context.Context, p plan.RunPlan) error {
	token, err := o.collabs.Tokens.ObtainToken(ctx, p.Environment, p.SchoolID)
	if err != nil {
		return fmt.Errorf("obtain auth token: %w", err)
	}

	ws, err := workspace.New(o.outputRoot, p.SchoolID, o.now())
	if err != nil {
		return err
	}
	o.logbook.Info("Run %s opened at %s", ws.ID, ws.Root)

	queue := plan.Expand(p.Action)
	runners := make(map[plan.Action]collab.ActionRunner, len(queue))
	for _, action := range queue {
		runner, err := o.registry.Resolve(action)
		if err != nil {
			return err
		}
		runners[action] = runner
	}

	used := collab.NewRecordTracker()
	for _, action := range queue {
		if err := o.runAction(ctx, p, action, ws, token, used, runners[action]); err != nil {
			// Merge in progress is the only condition that aborts the
			// remaining actions.
			return err
		}
	}
	o.logbook.Info("Run %s finished (%d action(s))", ws.ID, len(queue))
	return nil
}

// runAction executes one scenario. Action-local failures are recorded and
// swallowed; only collab.ErrMergeInProgress propagates.
func (o *Orchestrator) runAction(
	ctx context.Context,
	p plan.RunPlan,
	action plan.Action,
	ws *workspace.Workspace,
	token string,
	used *collab.RecordTracker,
	runner collab.ActionRunner,
) error {
	product := plan.EffectiveProduct(action, p.Product)
	o.logbook.Info("Action %s starting (product %s)", action, product)

	dir, err := ws.ActionDir(product, action)
	if err != nil {
		o.recordFailure(ws, action, err.Error())
		return nil
	}

	session, err := o.collabs.Browser.Acquire(ctx, p.Environment, dir, string(action), o.headed)
	if err != nil {
		o.recordFailure(ws, action, fmt.Sprintf("acquire browser session: %v", err))
		return nil
	}

	if err := o.collabs.Auth.SignIn(ctx, session, p.Email, p.Password, string(product), p.Environment); err != nil {
		o.closeSession(session, action)
		o.recordFailure(ws, action, fmt.Sprintf("sign in: %v", err))
		return nil
	}

	if err := o.collabs.Nav.Navigate(ctx, session, string(product), p.Environment); err != nil {
		o.closeSession(session, action)
		o.recordFailure(ws, action, fmt.Sprintf("navigate: %v", err))
		return nil
	}

	merging, err := o.collabs.Nav.MergeInProgress(ctx, session)
	if err != nil && !errors.Is(err, collab.ErrMergeInProgress) {
		o.closeSession(session, action)
		o.recordFailure(ws, action, fmt.Sprintf("merge indicator check: %v", err))
		return nil
	}
	if merging || errors.Is(err, collab.ErrMergeInProgress) {
		o.closeSession(session, action)
		o.recordFailure(ws, action, collab.ErrMergeInProgress.Error())
		o.logbook.Error("Run aborted: nightly merge in progress on %s", p.SchoolID)
		return collab.ErrMergeInProgress
	}

	saved, err := runner.Run(ctx, collab.RunContext{
		Plan:      p,
		Action:    action,
		Product:   product,
		Session:   session,
		Token:     token,
		OutputDir: dir,
		Used:      used,
	})
	o.closeSession(session, action)
	switch {
	case errors.Is(err, collab.ErrMergeInProgress):
		o.recordFailure(ws, action, collab.ErrMergeInProgress.Error())
		o.logbook.Error("Run aborted: nightly merge in progress on %s", p.SchoolID)
		return collab.ErrMergeInProgress
	case errors.Is(err, collab.ErrNoEligibleRecord):
		o.recordFailure(ws, action, collab.ErrNoEligibleRecord.Error())
		return nil
	case err != nil:
		o.recordFailure(ws, action, err.Error())
		return nil
	case !saved:
		o.recordFailure(ws, action, "save failed")
		return nil
	}

	// The poll runs detached; its outcome never reaches this run's summary.
	o.collabs.Poller.Start(p.Environment, p.SchoolID, string(action), dir)

	o.appendOutcome(ws, workspace.Outcome{
		Action:    action,
		Status:    workspace.StatusSucceeded,
		Timestamp: o.now(),
	})
	o.logbook.Info("Action %s succeeded", action)
	return nil
}

func (o *Orchestrator) recordFailure(ws *workspace.Workspace, action plan.Action, reason string) {
	o.logbook.Warn("Action %s failed: %s", action, reason)
	o.appendOutcome(ws, workspace.Outcome{
		Action:    action,
		Status:    workspace.StatusFailed,
		Reason:    reason,
		Timestamp: o.now(),
	})
}

func (o *Orchestrator) appendOutcome(ws *workspace.Workspace, outcome workspace.Outcome) {
	if err := ws.AppendOutcome(outcome); err != nil {
		o.logbook.Error("Failed to record outcome for %s: %v", outcome.Action, err)
	}
}

func (o *Orchestrator) closeSession(s collab.BrowserSession, action plan.Action) {
	if err := s.Close(); err != nil {
		o.logbook.Warn("Close browser session for %s: %v", action, err)
	}
}
