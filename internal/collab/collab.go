// Package collab declares the interfaces the orchestrator uses to reach its
// external collaborators: the browser stack, the remote product APIs, and the
// merge-report poller. Implementations live outside the core (internal/driver,
// internal/remote) or in test fakes.
package collab

import (
	"context"
	"errors"

	"github.com/proofrun/proofrun/internal/plan"
)

// ErrMergeInProgress marks the one run-fatal condition: a nightly merge is
// running on the target school, so no scenario can execute safely.
var ErrMergeInProgress = errors.New("nightly merge in progress")

// ErrNoEligibleRecord reports that a scenario found nothing to act on (for
// example, no section left to inactivate). Action-local, never fatal.
var ErrNoEligibleRecord = errors.New("no eligible record available")

// TokenSource obtains the API auth token a run needs before any browser work.
type TokenSource interface {
	ObtainToken(ctx context.Context, environment, schoolID string) (string, error)
}

// BrowserSession is a live, signed-out browser handle. The orchestrator owns
// exactly one at a time and closes it before the next action starts.
type BrowserSession interface {
	Close() error
}

// BrowserProvider acquires browser sessions scoped to an output folder.
type BrowserProvider interface {
	Acquire(ctx context.Context, environment, outputDir, label string, headed bool) (BrowserSession, error)
}

// Authenticator signs a session into the product.
type Authenticator interface {
	SignIn(ctx context.Context, s BrowserSession, email, password, productSlug, environment string) error
}

// Navigator drives the signed-in session into a product dashboard and checks
// the nightly-merge indicator shown there.
type Navigator interface {
	Navigate(ctx context.Context, s BrowserSession, productSlug, environment string) error
	MergeInProgress(ctx context.Context, s BrowserSession) (bool, error)
}

// MergePoller starts the remote merge-report poll for a finished action.
// Fire-and-forget: the orchestrator never waits on it.
type MergePoller interface {
	Start(environment, schoolID, action, outputDir string)
}

// RunContext carries everything one scenario needs from the orchestrator.
type RunContext struct {
	Plan      plan.RunPlan
	Action    plan.Action
	Product   plan.Product
	Session   BrowserSession
	Token     string
	OutputDir string
	Used      *RecordTracker
}

// ActionRunner executes one concrete scenario end to end (form filling,
// validation, screenshots, save) inside an already navigated session. It
// reports whether the save committed.
type ActionRunner interface {
	Run(ctx context.Context, rc RunContext) (saved bool, err error)
}

// RunnerFunc adapts a function to the ActionRunner interface.
type RunnerFunc func(ctx context.Context, rc RunContext) (bool, error)

// Run implements ActionRunner.
func (f RunnerFunc) Run(ctx context.Context, rc RunContext) (bool, error) {
	return f(ctx, rc)
}
